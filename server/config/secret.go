package config

import (
	"sync"

	"gopkg.in/yaml.v3"
)

// SecretString wraps a string value that should be treated as sensitive.
// Secret values are hidden in logs and in `cmarkup config` output.
type SecretString struct {
	value    string
	isSecret bool
}

// NewSecretString creates a new SecretString with the given value.
func NewSecretString(value string) SecretString {
	return SecretString{value: value, isSecret: true}
}

// Value returns the actual secret value.
func (s SecretString) Value() string {
	return s.value
}

// IsSecret returns true if this value should be treated as sensitive.
func (s SecretString) IsSecret() bool {
	return s.isSecret
}

// String returns a redacted representation for logging.
func (s SecretString) String() string {
	if s.isSecret && s.value != "" {
		return "[hidden]"
	}
	return s.value
}

// UnmarshalYAML implements yaml.Unmarshaler to handle the !secret tag.
func (s *SecretString) UnmarshalYAML(node *yaml.Node) error {
	if node.Tag == "!secret" {
		s.isSecret = true
	}

	var value string
	if err := node.Decode(&value); err != nil {
		return err
	}
	s.value = value
	return nil
}

// MarshalYAML implements yaml.Marshaler. Secret values are written redacted
// and keep their !secret tag.
func (s SecretString) MarshalYAML() (any, error) {
	if s.isSecret {
		return &yaml.Node{
			Kind:  yaml.ScalarNode,
			Tag:   "!secret",
			Value: s.String(),
		}, nil
	}
	return s.value, nil
}

// SecretTracker tracks which config paths contain secret values.
type SecretTracker struct {
	mu    sync.RWMutex
	paths map[string]bool
}

// NewSecretTracker creates a new SecretTracker.
func NewSecretTracker() *SecretTracker {
	return &SecretTracker{
		paths: make(map[string]bool),
	}
}

// MarkSecret marks a config path as containing a secret value.
func (t *SecretTracker) MarkSecret(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.paths[path] = true
}

// IsSecret returns true if the given path contains a secret value.
func (t *SecretTracker) IsSecret(path string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.paths[path]
}

// Paths returns all paths that contain secret values.
func (t *SecretTracker) Paths() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	result := make([]string, 0, len(t.paths))
	for path := range t.paths {
		result = append(result, path)
	}
	return result
}

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads configuration from a file with ENV interpolation.
// If configPath is empty, it searches default locations.
func Load(configPath string, getenv func(string) string) (*Config, error) {
	cfg, _, err := LoadWithPath(configPath, getenv)
	return cfg, err
}

// LoadWithPath reads configuration and returns both the config and the resolved path.
// When no path is given and no config file exists in the default locations,
// it returns Defaults() and an empty path.
func LoadWithPath(configPath string, getenv func(string) string) (*Config, string, error) {
	path, err := resolveConfigPath(configPath, getenv)
	if err != nil {
		return nil, "", err
	}
	if path == "" {
		cfg := Defaults()
		if wd, err := os.Getwd(); err == nil {
			cfg.BaseDir = wd
			resolvePaths(cfg, wd)
		}
		if err := validateBasic(cfg); err != nil {
			return nil, "", err
		}
		return cfg, "", nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to resolve config path: %w", err)
	}
	baseDir := filepath.Dir(absPath)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data, getenv)
	if err != nil {
		return nil, "", err
	}
	cfg.BaseDir = baseDir
	resolvePaths(cfg, baseDir)

	if err := validateBasic(cfg); err != nil {
		return nil, "", err
	}

	return cfg, absPath, nil
}

// Parse decodes configuration data over Defaults() after interpolating
// environment variables. Paths are left as written.
func Parse(data []byte, getenv func(string) string) (*Config, error) {
	data = interpolateEnv(data, getenv)

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Catalog.DSN.IsSecret() {
		cfg.Secrets.MarkSecret("catalog.dsn")
	}
	return cfg, nil
}

// resolvePaths makes relative file paths relative to baseDir.
func resolvePaths(cfg *Config, baseDir string) {
	if cfg.Content.Dir != "" && !filepath.IsAbs(cfg.Content.Dir) {
		cfg.Content.Dir = filepath.Join(baseDir, cfg.Content.Dir)
	}
	if cfg.Catalog.Dataset != "" && !filepath.IsAbs(cfg.Catalog.Dataset) {
		cfg.Catalog.Dataset = filepath.Join(baseDir, cfg.Catalog.Dataset)
	}
	// SQLite DSNs are file paths unless in-memory or URI form.
	if cfg.Catalog.Driver == "sqlite" {
		dsn := cfg.Catalog.DSN.Value()
		if dsn != "" && dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") && !filepath.IsAbs(dsn) {
			cfg.Catalog.DSN.value = filepath.Join(baseDir, dsn)
		}
	}
	if cfg.Logging.Output != "" && cfg.Logging.Output != "stderr" && cfg.Logging.Output != "stdout" &&
		!filepath.IsAbs(cfg.Logging.Output) {
		cfg.Logging.Output = filepath.Join(baseDir, cfg.Logging.Output)
	}
}

// Validate performs full configuration validation.
// Call this after applying CLI overrides (like --port).
func Validate(cfg *Config) error {
	return validateBasic(cfg)
}

// Warnings returns non-fatal configuration issues that should be reported to the user.
func Warnings(cfg *Config) []string {
	var warnings []string

	if cfg.UsesRemote() && cfg.Catalog.Dataset != "" {
		warnings = append(warnings, "catalog.dataset is ignored when remote.base_url is set")
	}

	if cfg.Content.Dir != "" {
		if info, err := os.Stat(cfg.Content.Dir); err != nil || !info.IsDir() {
			warnings = append(warnings, fmt.Sprintf("content.dir %s does not exist - /pages will return 404", cfg.Content.Dir))
		}
	}

	if !cfg.UsesRemote() && cfg.Catalog.Driver == "sqlite" && cfg.Catalog.DSN.Value() == ":memory:" && cfg.Catalog.Dataset == "" {
		warnings = append(warnings, "catalog is an empty in-memory database - tags that fetch data will render as fallbacks")
	}

	if !cfg.Catalog.DSN.IsSecret() && strings.Contains(cfg.Catalog.DSN.Value(), "password=") {
		warnings = append(warnings, "catalog.dsn contains a password - tag it with !secret to keep it out of logs")
	}

	return warnings
}

// resolveConfigPath finds the config file to use.
// Search order: explicit path > CMARKUP_CONFIG env > ./cmarkup.yaml > ~/.config/cmarkup/cmarkup.yaml
func resolveConfigPath(explicit string, getenv func(string) string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	if envPath := getenv("CMARKUP_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err != nil {
			return "", fmt.Errorf("CMARKUP_CONFIG file not found: %s", envPath)
		}
		return envPath, nil
	}

	if _, err := os.Stat("cmarkup.yaml"); err == nil {
		return "cmarkup.yaml", nil
	}

	home, err := os.UserHomeDir()
	if err == nil {
		xdgPath := filepath.Join(home, ".config", "cmarkup", "cmarkup.yaml")
		if _, err := os.Stat(xdgPath); err == nil {
			return xdgPath, nil
		}
	}

	return "", nil
}

// envPattern matches ${VAR} or ${VAR:-default}
var envPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// interpolateEnv replaces ${VAR} and ${VAR:-default} patterns with environment values.
func interpolateEnv(data []byte, getenv func(string) string) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		parts := envPattern.FindSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		value := getenv(string(parts[1]))
		if value == "" && len(parts) >= 3 && len(parts[2]) > 0 {
			value = string(parts[2])
		}
		return []byte(value)
	})
}

// validateBasic checks the configuration for errors, reporting all of them.
func validateBasic(cfg *Config) error {
	var errs []string

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port: %d (must be 1-65535)", cfg.Server.Port))
	}
	if cfg.Server.BaseURL != "" {
		if err := checkHTTPURL(cfg.Server.BaseURL); err != nil {
			errs = append(errs, fmt.Sprintf("server.base_url: %v", err))
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", cfg.Logging.Level))
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.Logging.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be json or text)", cfg.Logging.Format))
	}

	validCompression := map[string]bool{"fastest": true, "default": true, "best": true, "none": true}
	if !validCompression[cfg.Compression.Level] {
		errs = append(errs, fmt.Sprintf("invalid compression level: %s (must be fastest, default, best, or none)", cfg.Compression.Level))
	}
	if _, err := ParseSize(cfg.Compression.MinSize); err != nil {
		errs = append(errs, fmt.Sprintf("compression.min_size: %v", err))
	}

	if cfg.Render.FetchConcurrency < 1 {
		errs = append(errs, fmt.Sprintf("render.fetch_concurrency must be at least 1, got %d", cfg.Render.FetchConcurrency))
	}
	if cfg.Render.FetchTimeout < 0 {
		errs = append(errs, "render.fetch_timeout cannot be negative")
	}
	if cfg.Render.RateLimit < 0 {
		errs = append(errs, "render.rate_limit cannot be negative")
	}
	if _, err := ParseSize(cfg.Render.MaxBodySize); err != nil {
		errs = append(errs, fmt.Sprintf("render.max_body_size: %v", err))
	}

	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[cfg.Catalog.Driver] {
		errs = append(errs, fmt.Sprintf("invalid catalog driver: %s (must be sqlite, postgres, or mysql)", cfg.Catalog.Driver))
	}
	if !cfg.UsesRemote() && cfg.Catalog.DSN.Value() == "" {
		errs = append(errs, "catalog.dsn is required unless remote.base_url is set")
	}

	if cfg.UsesRemote() {
		if err := checkHTTPURL(cfg.Remote.BaseURL); err != nil {
			errs = append(errs, fmt.Sprintf("remote.base_url: %v", err))
		}
		if cfg.Remote.Timeout < 0 {
			errs = append(errs, "remote.timeout cannot be negative")
		}
	}

	validContent := map[string]bool{"markdown": true, "html": true}
	if !validContent[cfg.Content.Format] {
		errs = append(errs, fmt.Sprintf("invalid content format: %s (must be markdown or html)", cfg.Content.Format))
	}

	if len(cfg.CORS.Origins) > 0 && cfg.CORS.Credentials && cfg.CORS.Origins.Contains("*") {
		errs = append(errs, "cors: cannot use origins '*' with credentials true (browsers reject this)")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func checkHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%q must be an http or https URL", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%q has no host", raw)
	}
	return nil
}

// ParseSize parses a size string like "10MB", "1GB", "500KB" to bytes.
// Supports: B, KB, MB, GB (case insensitive).
// Returns 0 for empty string.
func ParseSize(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}

	s = strings.TrimSpace(strings.ToUpper(s))

	// Longest suffix first so "B" does not match before "MB"
	suffixes := []struct {
		suffix string
		mult   int64
	}{
		{"GB", 1024 * 1024 * 1024},
		{"MB", 1024 * 1024},
		{"KB", 1024},
		{"B", 1},
	}

	for _, sf := range suffixes {
		if strings.HasSuffix(s, sf.suffix) {
			numStr := strings.TrimSpace(strings.TrimSuffix(s, sf.suffix))
			var num int64
			if _, err := fmt.Sscanf(numStr, "%d", &num); err != nil {
				return 0, fmt.Errorf("invalid size number: %s", numStr)
			}
			return num * sf.mult, nil
		}
	}

	var num int64
	if _, err := fmt.Sscanf(s, "%d", &num); err != nil {
		return 0, fmt.Errorf("invalid size format: %s (use B, KB, MB, or GB suffix)", s)
	}
	return num, nil
}

// Dump renders cfg as YAML with secrets redacted.
func Dump(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

package config

import (
	"slices"
	"time"
)

// Config represents the complete cmarkup configuration
type Config struct {
	BaseDir     string            `yaml:"-"` // Directory containing config file, for resolving relative paths
	Server      ServerConfig      `yaml:"server"`
	Security    SecurityConfig    `yaml:"security"`
	CORS        CORSConfig        `yaml:"cors"`
	Compression CompressionConfig `yaml:"compression"`
	Logging     LoggingConfig     `yaml:"logging"`
	Render      RenderConfig      `yaml:"render"`
	Catalog     CatalogConfig     `yaml:"catalog"`
	Remote      RemoteConfig      `yaml:"remote"`
	Content     ContentConfig     `yaml:"content"`
	Instance    InstanceConfig    `yaml:"instance"`
	Secrets     *SecretTracker    `yaml:"-"` // Tracks which config paths contain secrets
}

// ServerConfig holds server settings
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Dev             bool          `yaml:"-"`        // Set via CLI flag, not config
	BaseURL         string        `yaml:"base_url"` // Public origin used for absolute links in units
	Proxy           ProxyConfig   `yaml:"proxy"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ProxyConfig holds reverse proxy settings
type ProxyConfig struct {
	Trusted    bool     `yaml:"trusted"`     // Trust X-Forwarded-* headers
	TrustedIPs []string `yaml:"trusted_ips"` // Optional: restrict to specific proxies
}

// SecurityConfig holds security header settings
type SecurityConfig struct {
	ContentTypeOptions string `yaml:"content_type_options"` // X-Content-Type-Options (default: "nosniff")
	FrameOptions       string `yaml:"frame_options"`        // X-Frame-Options (default: "SAMEORIGIN", players are framed)
	ReferrerPolicy     string `yaml:"referrer_policy"`      // Referrer-Policy
	CSP                string `yaml:"csp"`                  // Content-Security-Policy
}

// CORSConfig holds CORS settings for the render API
type CORSConfig struct {
	Origins     StringOrSlice `yaml:"origins"`     // "*" or list of allowed origins
	Methods     []string      `yaml:"methods"`     // Allowed HTTP methods
	Headers     []string      `yaml:"headers"`     // Allowed request headers
	Credentials bool          `yaml:"credentials"` // Allow credentials
	MaxAge      int           `yaml:"maxAge"`      // Preflight cache duration in seconds
}

// CompressionConfig holds HTTP response compression settings
type CompressionConfig struct {
	Enabled bool   `yaml:"enabled"`  // Enable gzip compression (default: true)
	Level   string `yaml:"level"`    // "fastest", "default", "best", "none"
	MinSize string `yaml:"min_size"` // Minimum response size to compress, e.g. "1KB"
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
	Output string `yaml:"output"` // stderr, stdout, or file path
	Quiet  bool   `yaml:"quiet"`  // suppress request logs
}

// RenderConfig holds render pass settings
type RenderConfig struct {
	FetchConcurrency int           `yaml:"fetch_concurrency"` // Max in-flight fetches per pass
	FetchTimeout     time.Duration `yaml:"fetch_timeout"`     // Per-fetch timeout (0 = none)
	MaxBodySize      string        `yaml:"max_body_size"`     // Largest accepted render request, e.g. "1MB"
	RateLimit        int           `yaml:"rate_limit"`        // Render requests per client per minute (0 = unlimited)
}

// CatalogConfig selects the SQL store that backs tag data
type CatalogConfig struct {
	Driver  string       `yaml:"driver"`  // sqlite, postgres or mysql
	DSN     SecretString `yaml:"dsn"`     // Data source name (tag with !secret to hide it)
	Dataset string       `yaml:"dataset"` // Optional JSON dataset imported at startup
}

// RemoteConfig points tag data at a PeerTube-style HTTP API instead of the store
type RemoteConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// ContentConfig holds the page document settings
type ContentConfig struct {
	Dir    string `yaml:"dir"`    // Directory with page documents
	Format string `yaml:"format"` // Preferred format: markdown or html
	Watch  bool   `yaml:"watch"`  // Re-render pages when their files change
}

// InstanceConfig describes the instance when the catalog has no instance row
type InstanceConfig struct {
	Name             string `yaml:"name"`
	ShortDescription string `yaml:"short_description"`
	BannerURL        string `yaml:"banner_url"`
	AvatarURL        string `yaml:"avatar_url"`
}

// StringOrSlice supports YAML fields that can be either a string or a slice of strings
type StringOrSlice []string

// UnmarshalYAML implements yaml.Unmarshaler to handle both string and []string
func (s *StringOrSlice) UnmarshalYAML(unmarshal func(any) error) error {
	var single string
	if err := unmarshal(&single); err == nil {
		*s = []string{single}
		return nil
	}

	var slice []string
	if err := unmarshal(&slice); err != nil {
		return err
	}
	*s = slice
	return nil
}

// Contains checks if the slice contains the given string
func (s StringOrSlice) Contains(str string) bool {
	return slices.Contains(s, str)
}

// UsesRemote reports whether tag data comes from the remote API.
func (c *Config) UsesRemote() bool {
	return c.Remote.BaseURL != ""
}

// Defaults returns a Config with sensible defaults
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			ShutdownTimeout: 30 * time.Second,
		},
		Security: SecurityConfig{
			ContentTypeOptions: "nosniff",
			FrameOptions:       "SAMEORIGIN",
			ReferrerPolicy:     "strict-origin-when-cross-origin",
		},
		CORS: CORSConfig{
			// Empty by default - CORS disabled unless configured
			Methods: []string{"GET", "POST", "DELETE"},
			MaxAge:  86400, // 24 hours
		},
		Compression: CompressionConfig{
			Enabled: true,
			Level:   "default",
			MinSize: "1KB",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Render: RenderConfig{
			FetchConcurrency: 8,
			FetchTimeout:     5 * time.Second,
			MaxBodySize:      "1MB",
		},
		Catalog: CatalogConfig{
			Driver: "sqlite",
			DSN:    SecretString{value: ":memory:"},
		},
		Remote: RemoteConfig{
			Timeout: 10 * time.Second,
		},
		Content: ContentConfig{
			Dir:    "pages",
			Format: "markdown",
			Watch:  true,
		},
		Instance: InstanceConfig{
			Name: "cmarkup",
		},
		Secrets: NewSecretTracker(),
	}
}

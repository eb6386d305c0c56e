package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// AppName names the XDG sub-directories and the config file
const AppName = "igbenford"

// UserPlaceholder is substituted with the sanitized account name in output
// file patterns.
const UserPlaceholder = "{user}"

// Config holds all configuration options for a collection run
type Config struct {
	Instagram  InstagramConfig  `yaml:"instagram" json:"instagram"`
	Collection CollectionConfig `yaml:"collection" json:"collection"`
	Output     OutputConfig     `yaml:"output" json:"output"`
	Analysis   AnalysisConfig   `yaml:"analysis" json:"analysis"`
	Metrics    MetricsConfig    `yaml:"metrics" json:"metrics"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// InstagramConfig holds the session used against the Instagram web API
type InstagramConfig struct {
	SessionID string        `yaml:"session_id" json:"session_id"`
	CSRFToken string        `yaml:"csrf_token" json:"csrf_token"`
	UserAgent string        `yaml:"user_agent" json:"user_agent"`
	BaseURL   string        `yaml:"base_url" json:"base_url"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
}

// CollectionConfig controls retry, pacing and parallelism of a run
type CollectionConfig struct {
	MaxRetries int           `yaml:"max_retries" json:"max_retries"`
	Backoff    time.Duration `yaml:"backoff" json:"backoff"`
	Pacing     time.Duration `yaml:"pacing" json:"pacing"`
	Workers    int           `yaml:"workers" json:"workers"`
	// RetryPermanent retries every failure regardless of its kind
	RetryPermanent bool `yaml:"retry_permanent" json:"retry_permanent"`
}

// OutputConfig holds artifact locations
type OutputConfig struct {
	Directory  string `yaml:"directory" json:"directory"`
	CSVFile    string `yaml:"csv_file" json:"csv_file"`
	ReportFile string `yaml:"report_file" json:"report_file"`
	SQLite     string `yaml:"sqlite" json:"sqlite"`
}

// AnalysisConfig holds the goodness-of-fit settings
type AnalysisConfig struct {
	Confidence float64 `yaml:"confidence" json:"confidence"`
}

// MetricsConfig holds Prometheus export settings
type MetricsConfig struct {
	Textfile string `yaml:"textfile" json:"textfile"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Instagram: InstagramConfig{
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			BaseURL:   "https://www.instagram.com",
			Timeout:   30 * time.Second,
		},
		Collection: CollectionConfig{
			MaxRetries: 3,
			Backoff:    10 * time.Second,
			Pacing:     2 * time.Second,
			Workers:    1,
		},
		Output: OutputConfig{
			Directory:  ".",
			CSVFile:    "{user}_followers.csv",
			ReportFile: "benford_{user}.md",
		},
		Analysis: AnalysisConfig{
			Confidence: 0.95,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// SanitizeUsername turns an account name into a file-name fragment:
// lower case, spaces replaced by underscores.
func SanitizeUsername(username string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(username), " ", "_"))
}

// CSVPath returns the snapshot path for the given account
func (o OutputConfig) CSVPath(username string) string {
	return o.resolve(o.CSVFile, username)
}

// ReportPath returns the Markdown report path for the given account
func (o OutputConfig) ReportPath(username string) string {
	if o.ReportFile == "" {
		return ""
	}
	return o.resolve(o.ReportFile, username)
}

func (o OutputConfig) resolve(pattern, username string) string {
	name := strings.ReplaceAll(pattern, UserPlaceholder, SanitizeUsername(username))
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(o.Directory, name)
}

// LoadFromEnv loads configuration from IGBENFORD_* environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	setString("IGBENFORD_SESSION_ID", &c.Instagram.SessionID)
	setString("IGBENFORD_CSRF_TOKEN", &c.Instagram.CSRFToken)
	setString("IGBENFORD_USER_AGENT", &c.Instagram.UserAgent)
	setString("IGBENFORD_BASE_URL", &c.Instagram.BaseURL)
	setDuration("IGBENFORD_TIMEOUT", &c.Instagram.Timeout)

	setInt("IGBENFORD_MAX_RETRIES", &c.Collection.MaxRetries)
	setDuration("IGBENFORD_BACKOFF", &c.Collection.Backoff)
	setDuration("IGBENFORD_PACING", &c.Collection.Pacing)
	setInt("IGBENFORD_WORKERS", &c.Collection.Workers)
	if v := os.Getenv("IGBENFORD_RETRY_PERMANENT"); v != "" {
		c.Collection.RetryPermanent = strings.ToLower(v) == "true"
	}

	setString("IGBENFORD_OUTPUT_DIR", &c.Output.Directory)
	setString("IGBENFORD_SQLITE", &c.Output.SQLite)
	if v := os.Getenv("IGBENFORD_CONFIDENCE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("IGBENFORD_CONFIDENCE: %w", err))
		} else {
			c.Analysis.Confidence = f
		}
	}
	setString("IGBENFORD_METRICS_TEXTFILE", &c.Metrics.Textfile)

	setString("IGBENFORD_LOG_LEVEL", &c.Logging.Level)
	setString("IGBENFORD_LOG_FILE", &c.Logging.File)

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file. An empty path searches
// the default locations; finding nothing there is not an error.
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// DefaultPath is where `config init` writes when no path is given
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, "config.yaml")
}

// findConfigFile searches the working directory first, then the XDG config dirs
func findConfigFile() string {
	for _, loc := range []string{".igbenford.yaml", ".igbenford.yml"} {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	if path, err := xdg.SearchConfigFile(filepath.Join(AppName, "config.yaml")); err == nil {
		return path
	}
	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Instagram.BaseURL != "" {
		if u, err := url.Parse(c.Instagram.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("invalid instagram base URL %q", c.Instagram.BaseURL))
		}
	}
	if c.Instagram.Timeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}

	if c.Collection.MaxRetries < 1 {
		errs = append(errs, errors.New("max retries must be at least 1"))
	}
	if c.Collection.Backoff < 0 {
		errs = append(errs, errors.New("backoff cannot be negative"))
	}
	if c.Collection.Pacing < 0 {
		errs = append(errs, errors.New("pacing cannot be negative"))
	}
	if c.Collection.Workers < 1 {
		errs = append(errs, errors.New("workers must be positive"))
	}
	if c.Collection.Workers > 16 {
		errs = append(errs, errors.New("workers should not exceed 16"))
	}

	if c.Output.Directory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	if c.Output.CSVFile == "" {
		errs = append(errs, errors.New("csv file pattern is required"))
	}

	if c.Analysis.Confidence <= 0 || c.Analysis.Confidence >= 1 {
		errs = append(errs, fmt.Errorf("confidence must be between 0 and 1 exclusive, got %v", c.Analysis.Confidence))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "disabled": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Errorf("invalid log level %q", c.Logging.Level))
	}

	return errors.Join(errs...)
}

// ValidateCredentials checks that a session is available for collection
func (c *Config) ValidateCredentials() error {
	if c.Instagram.SessionID == "" {
		return errors.New("instagram session ID is required")
	}
	return nil
}

// Redacted returns a copy of the configuration with secrets masked
func (c *Config) Redacted() *Config {
	cp := *c
	cp.Instagram.SessionID = mask(c.Instagram.SessionID)
	cp.Instagram.CSRFToken = mask(c.Instagram.CSRFToken)
	return &cp
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges explicitly set command line flags into the
// configuration. Keys follow the flag names of the collect command.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["session-id"].(string); ok && v != "" {
		c.Instagram.SessionID = v
	}
	if v, ok := flags["csrf-token"].(string); ok && v != "" {
		c.Instagram.CSRFToken = v
	}
	if v, ok := flags["output"].(string); ok && v != "" {
		c.Output.Directory = v
	}
	if v, ok := flags["sqlite"].(string); ok && v != "" {
		c.Output.SQLite = v
	}
	if v, ok := flags["max-retries"].(int); ok && v > 0 {
		c.Collection.MaxRetries = v
	}
	if v, ok := flags["backoff"].(time.Duration); ok {
		c.Collection.Backoff = v
	}
	if v, ok := flags["pacing"].(time.Duration); ok {
		c.Collection.Pacing = v
	}
	if v, ok := flags["workers"].(int); ok && v > 0 {
		c.Collection.Workers = v
	}
	if v, ok := flags["retry-permanent"].(bool); ok {
		c.Collection.RetryPermanent = v
	}
	if v, ok := flags["confidence"].(float64); ok && v > 0 {
		c.Analysis.Confidence = v
	}
	if v, ok := flags["metrics-textfile"].(string); ok && v != "" {
		c.Metrics.Textfile = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := flags["log-file"].(string); ok && v != "" {
		c.Logging.File = v
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Missing .env files are fine
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(xdg.ConfigHome, AppName, "igbenford.env"))

	cfg := DefaultConfig()

	if err := cfg.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg.MergeCommandLineFlags(flags)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

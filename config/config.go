// Package config loads the run configuration from config.json.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultBaseURL is the catalogue the scraper targets.
const DefaultBaseURL = "https://books.toscrape.com"

// Storage backends.
const (
	BackendGCS  = "gcs"
	BackendFile = "file"
)

// ResultsObject is the fixed object name written under the folder.
const ResultsObject = "results.json"

// Config holds the process-wide settings for one run. It is built once by
// Load and handed to constructors; nothing reads it from global state.
type Config struct {
	ProjectID    string `mapstructure:"project_id"`
	Zone         string `mapstructure:"zone"`
	InstanceName string `mapstructure:"instance_name"`
	Bucket       string `mapstructure:"bucket"`
	Folder       string `mapstructure:"folder"`

	Scraper ScraperConfig `mapstructure:"scraper"`
	Storage StorageConfig `mapstructure:"storage"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Reaper  ReaperConfig  `mapstructure:"reaper"`
}

// ScraperConfig controls page fetching.
type ScraperConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	UserAgent string `mapstructure:"user_agent"`
	// RequestTimeout of zero leaves requests without a deadline.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// StorageConfig selects where the result document goes.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	ChunkSize int    `mapstructure:"chunk_size"`
	LocalDir  string `mapstructure:"local_dir"`
}

// LoggingConfig toggles zap development output and the Cloud Logging sink.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Cloud       bool   `mapstructure:"cloud"`
	LogName     string `mapstructure:"log_name"`
}

// MetricsConfig configures the optional Pushgateway hand-off.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	JobName        string `mapstructure:"job_name"`
}

// ReaperConfig controls instance teardown.
type ReaperConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// DefaultConfig returns the defaults applied beneath config.json.
func DefaultConfig() Config {
	return Config{
		Scraper: ScraperConfig{
			BaseURL:   DefaultBaseURL,
			UserAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		},
		Storage: StorageConfig{
			Backend:  BackendGCS,
			LocalDir: "output",
		},
		Logging: LoggingConfig{
			Cloud:   true,
			LogName: "scraper",
		},
		Metrics: MetricsConfig{
			JobName: "books_scraper",
		},
		Reaper: ReaperConfig{
			Enabled: true,
		},
	}
}

// Load reads the JSON config file at path. An empty path searches the
// working directory for config.json.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}
	v.SetConfigType("json")

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("project_id", "")
	v.SetDefault("zone", "")
	v.SetDefault("instance_name", "")
	v.SetDefault("scraper.base_url", d.Scraper.BaseURL)
	v.SetDefault("scraper.user_agent", d.Scraper.UserAgent)
	v.SetDefault("scraper.request_timeout", "0s")
	v.SetDefault("storage.backend", d.Storage.Backend)
	v.SetDefault("storage.chunk_size", 0)
	v.SetDefault("storage.local_dir", d.Storage.LocalDir)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.cloud", d.Logging.Cloud)
	v.SetDefault("logging.log_name", d.Logging.LogName)
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job_name", d.Metrics.JobName)
	v.SetDefault("reaper.enabled", d.Reaper.Enabled)
}

// Validate ensures the values needed before any network call are coherent.
// Instance identity is checked separately by ValidateInstance because it may
// still be resolved from the metadata server.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Bucket) == "" && c.Storage.Backend == BackendGCS {
		return fmt.Errorf("bucket cannot be empty")
	}
	if strings.TrimSpace(c.Folder) == "" {
		return fmt.Errorf("folder cannot be empty")
	}
	if c.Scraper.BaseURL == "" {
		return fmt.Errorf("scraper.base_url cannot be empty")
	}
	parsed, err := url.Parse(c.Scraper.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid scraper.base_url: %w", err)
	}
	if parsed.Host == "" {
		return fmt.Errorf("scraper.base_url must include a host")
	}
	if c.Scraper.RequestTimeout < 0 {
		return fmt.Errorf("scraper.request_timeout cannot be negative")
	}
	switch c.Storage.Backend {
	case BackendGCS:
	case BackendFile:
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir cannot be empty for the file backend")
		}
	default:
		return fmt.Errorf("storage.backend must be %s or %s", BackendGCS, BackendFile)
	}
	if c.Storage.ChunkSize < 0 {
		return fmt.Errorf("storage.chunk_size cannot be negative")
	}
	if c.Metrics.PushgatewayURL != "" && c.Metrics.JobName == "" {
		return fmt.Errorf("metrics.job_name is required with a pushgateway")
	}
	return nil
}

// ValidateInstance checks the identity the reaper deletes.
func (c Config) ValidateInstance() error {
	if c.ProjectID == "" {
		return fmt.Errorf("project_id cannot be empty")
	}
	if c.Zone == "" {
		return fmt.Errorf("zone cannot be empty")
	}
	if c.InstanceName == "" {
		return fmt.Errorf("instance_name cannot be empty")
	}
	return nil
}

// ObjectName is the path of the result document inside the bucket.
func (c Config) ObjectName() string {
	return strings.TrimSuffix(c.Folder, "/") + "/" + ResultsObject
}

// PageURLTemplate returns the fmt template for catalogue pages.
func (c Config) PageURLTemplate() string {
	return strings.TrimSuffix(c.Scraper.BaseURL, "/") + "/catalogue/page-%d.html"
}

// The application's root configuration, shared by every command through a
// load-once singleton.
package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/spf13/viper"
)

var (
	instance *Config
	once     sync.Once
	loadErr  error
)

// Config is the root configuration structure for the entire application.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Network  NetworkConfig  `mapstructure:"network"`
	Store    StoreConfig    `mapstructure:"store"`
	Scenario ScenarioConfig `mapstructure:"scenario"`
}

// ColorConfig defines the color settings for different log levels.
// These are used for console output to make logs more readable.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" json:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" json:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" json:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" json:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" json:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" json:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" json:"fatal" yaml:"fatal"`
}

// LoggerConfig holds all the configuration for the logger.
// This is the single source of truth for this struct.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" json:"level" yaml:"level"`
	Format      string      `mapstructure:"format" json:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" json:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" json:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" json:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" json:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" json:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" json:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" json:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" json:"colors" yaml:"colors"`
}

// EngineConfig selects and tunes the crawl backend.
type EngineConfig struct {
	// Backend picks the engine implementation: "htmldom" or "cdp".
	Backend           string    `mapstructure:"backend"`
	Persona           string    `mapstructure:"persona"`
	ExecuteScripts    bool      `mapstructure:"execute_scripts"`
	FailOnScriptError bool      `mapstructure:"fail_on_script_error"`
	CaptureTraffic    bool      `mapstructure:"capture_traffic"`
	CaptureBodies     bool      `mapstructure:"capture_bodies"`
	CDP               CDPConfig `mapstructure:"cdp"`
}

// CDPConfig holds settings for the Chrome DevTools Protocol backend.
type CDPConfig struct {
	Headless bool     `mapstructure:"headless"`
	Args     []string `mapstructure:"args"`
	// Humanize paces interactions with jittered delays instead of firing
	// them back to back.
	Humanize bool `mapstructure:"humanize"`
}

// NetworkConfig holds settings for HTTP requests.
type NetworkConfig struct {
	NavigationTimeout  time.Duration `mapstructure:"navigation_timeout"`
	ProxyURL           string        `mapstructure:"proxy_url"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
	EnableHTTP3        bool          `mapstructure:"enable_http3"`
}

// StoreConfig holds settings for the extraction store.
type StoreConfig struct {
	// Driver selects the backend: "sqlite" or "postgres".
	Driver      string `mapstructure:"driver"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresURL string `mapstructure:"postgres_url"`
}

// ScenarioConfig holds settings for scenario execution. File and RunID are
// populated from CLI flags rather than the config file.
type ScenarioConfig struct {
	File        string        `mapstructure:"file"`
	RunID       string        `mapstructure:"run_id"`
	StepTimeout time.Duration `mapstructure:"step_timeout"`
}

// SetDefaults installs the baseline values a bare config file inherits.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "sccrawler")
	v.SetDefault("engine.backend", "htmldom")
	v.SetDefault("engine.persona", "chrome-linux")
	v.SetDefault("engine.cdp.headless", true)
	v.SetDefault("network.navigation_timeout", 60*time.Second)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "sccrawler.db")
	v.SetDefault("scenario.step_timeout", 30*time.Second)
}

// Validate checks cross-field constraints that viper cannot express.
func (c *Config) Validate() error {
	switch c.Engine.Backend {
	case "", "htmldom", "cdp":
	default:
		return fmt.Errorf("engine.backend must be 'htmldom' or 'cdp', got '%s'", c.Engine.Backend)
	}
	switch c.Store.Driver {
	case "", "sqlite":
	case "postgres":
		if c.Store.PostgresURL == "" {
			return fmt.Errorf("store.postgres_url is required when store.driver is 'postgres'")
		}
	default:
		return fmt.Errorf("store.driver must be 'sqlite' or 'postgres', got '%s'", c.Store.Driver)
	}
	if c.Network.NavigationTimeout < 0 {
		return fmt.Errorf("network.navigation_timeout must not be negative")
	}
	return nil
}

// Load initializes the configuration singleton from Viper.
func Load(v *viper.Viper) error {
	once.Do(func() {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			loadErr = fmt.Errorf("error unmarshaling config: %w", err)
			return
		}
		if err := cfg.Validate(); err != nil {
			loadErr = fmt.Errorf("invalid configuration: %w", err)
			return
		}
		instance = &cfg
	})
	return loadErr
}

// Set installs a pre-built configuration, bypassing Load. Intended for tests
// and embedded callers that assemble the config in code.
func Set(cfg *Config) {
	once.Do(func() {})
	instance = cfg
}

// Get returns the loaded configuration instance.
func Get() *Config {
	if instance == nil {
		panic("Configuration not initialized. Call config.Load() in the root command.")
	}
	return instance
}

package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Kite     KiteConfig     `mapstructure:"kite"`
	Symbols  []string       `mapstructure:"symbols"`
	Bars     BarsConfig     `mapstructure:"bars"`
	Sqlite   SqliteConfig   `mapstructure:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Export   ExportConfig   `mapstructure:"export"`
	Log      LogConfig      `mapstructure:"log"`
}

type KiteConfig struct {
	REST RESTConfig `mapstructure:"rest"`
	WS   WSConfig   `mapstructure:"ws"`

	APIKey       string `mapstructure:"api_key"`
	APISecret    string `mapstructure:"api_secret"`
	RequestToken string `mapstructure:"request_token"`
	AccessToken  string `mapstructure:"access_token"` // skips the token exchange when set

	// Environment "prod" resolves the API key and secret from AWS SSM
	// instead of this file.
	Environment string `mapstructure:"environment"`
}

type RESTConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type WSConfig struct {
	URL string `mapstructure:"url"`
}

type BarsConfig struct {
	RangeATR RangeATRConfig `mapstructure:"range_atr"`
}

type RangeATRConfig struct {
	ATRLookBack int           `mapstructure:"atr_lookback"`
	RecalcBars  int           `mapstructure:"recalc_bars"`
	MinTicks    int           `mapstructure:"min_ticks"`
	MinTime     time.Duration `mapstructure:"min_time"`
}

type SqliteConfig struct {
	Path   string        `mapstructure:"path"`
	MaxAge time.Duration `mapstructure:"max_age"` // instrument cache freshness window
}

type ExportConfig struct {
	Dir string `mapstructure:"dir"`
}

// LogConfig defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"
}

// Load loads application configuration using Viper.
// It reads from config.yaml and overrides with environment variables.
func Load() *Config {
	v := viper.New()

	v.SetConfigName("config") // config.yaml
	v.SetConfigType("yaml")

	ex, _ := os.Executable()
	if strings.Contains(ex, "go-build") {
		pwd, _ := os.Getwd()
		v.AddConfigPath(filepath.Join(pwd, "../../config"))
	} else {
		v.AddConfigPath(filepath.Join(filepath.Dir(ex), "../config"))
	}

	// Support environment variables with dot notation (e.g., KITE_WS_URL)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		log.Fatalf("failed to read config: %v", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		log.Fatalf("failed to unmarshal config: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	return &cfg
}

// Validate fails fast on caller misconfiguration instead of letting bad
// values reach the aggregation core.
func (c *Config) Validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("symbols: at least one trading symbol required")
	}

	ra := c.Bars.RangeATR
	if ra.ATRLookBack < 0 || ra.ATRLookBack == 1 {
		return fmt.Errorf("bars.range_atr.atr_lookback must be 0 (default) or >= 2, got %d", ra.ATRLookBack)
	}
	if ra.RecalcBars < 0 {
		return fmt.Errorf("bars.range_atr.recalc_bars must be >= 0, got %d", ra.RecalcBars)
	}
	if ra.MinTicks < 0 {
		return fmt.Errorf("bars.range_atr.min_ticks must be >= 0, got %d", ra.MinTicks)
	}
	if ra.MinTime < 0 {
		return fmt.Errorf("bars.range_atr.min_time must be >= 0, got %s", ra.MinTime)
	}

	if c.Sqlite.Path == "" {
		return fmt.Errorf("sqlite.path required for the instrument cache")
	}
	if c.Export.Dir == "" {
		return fmt.Errorf("export.dir required for CSV output")
	}
	return nil
}

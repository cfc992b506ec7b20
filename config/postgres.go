package config

import (
	"fmt"
	"time"
)

// PostgresConfig defines the configuration for the optional bar archive.
type PostgresConfig struct {
	Enabled bool `mapstructure:"enabled"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	TimeZone string `mapstructure:"timezone"`

	// Environment "prod" pulls credentials from AWS SSM Parameter Store.
	Environment string `mapstructure:"environment"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

func (cfg *PostgresConfig) DSN() string {
	host, user, password := cfg.Host, cfg.User, cfg.Password
	if cfg.Environment == "prod" {
		host = getParameterStoreValue("BARCOLLECTOR_DB_HOST", true)
		user = getParameterStoreValue("BARCOLLECTOR_DB_USER", true)
		password = getParameterStoreValue("BARCOLLECTOR_DB_PASSWORD", true)
	}

	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		host, cfg.Port, user, password, cfg.DBName, cfg.SSLMode,
	)

	if cfg.TimeZone != "" {
		dsn += fmt.Sprintf(" TimeZone=%s", cfg.TimeZone)
	}

	return dsn
}

// BootstrapDSN targets the server's default database, used before the
// archive database exists.
func (cfg *PostgresConfig) BootstrapDSN() string {
	bootstrap := *cfg
	bootstrap.DBName = "postgres"
	return bootstrap.DSN()
}

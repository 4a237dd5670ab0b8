package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig   `mapstructure:"server"`
	Database  DatabaseConfig `mapstructure:"database"`
	Schema    SchemaConfig   `mapstructure:"schema"`
	Index     IndexConfig    `mapstructure:"index"`
	Auth      AuthConfig     `mapstructure:"auth"`
	QueryLog  QueryLogConfig `mapstructure:"query_log"`
	JWTSecret string         `mapstructure:"jwt_secret"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
	// SlowQueryMs logs queries slower than this; 0 disables the warning.
	SlowQueryMs int `mapstructure:"slow_query_ms"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	PoolSize int    `mapstructure:"pool_size"`
	Path     string `mapstructure:"path"` // directory for SQLite database files
}

// SchemaConfig locates the object model description. An empty path selects
// the bundled sample schema.
type SchemaConfig struct {
	Path string `mapstructure:"path"`
}

type IndexConfig struct {
	TablePrefix string `mapstructure:"table_prefix"`
	AppVersion  string `mapstructure:"app_version"`
}

// ClientConfig is one API client allowed to request tokens. SecretHash is a
// bcrypt hash of the client secret.
type ClientConfig struct {
	ID         string   `mapstructure:"id"`
	SecretHash string   `mapstructure:"secret_hash"`
	Roles      []string `mapstructure:"roles"`
}

type AuthConfig struct {
	Clients     []ClientConfig `mapstructure:"clients"`
	TokenTTLMin int            `mapstructure:"token_ttl_min"`
}

type QueryLogConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	BufferSize      int  `mapstructure:"buffer_size"`
	FlushIntervalMs int  `mapstructure:"flush_interval_ms"`
	RetentionDays   int  `mapstructure:"retention_days"`
}

// DSN returns the driver-specific data source name.
func (d DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return filepath.Join(d.Path, d.Name+".db")
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// IsSQLite returns true if the driver is sqlite.
func (d DatabaseConfig) IsSQLite() bool {
	return d.Driver == "sqlite"
}

// Load reads app.yaml from the working directory (or ../..) unless path names
// a file explicitly. A missing default file is not an error; every key has a
// default and can be set from the environment (QINDEX_DATABASE_DRIVER, ...).
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("app")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("../..")
	}

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.slow_query_ms", 500)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.name", "qindex")
	v.SetDefault("database.pool_size", 10)
	v.SetDefault("database.path", "./data")
	v.SetDefault("schema.path", "")
	v.SetDefault("index.table_prefix", "qname_")
	v.SetDefault("index.app_version", "dev")
	v.SetDefault("jwt_secret", "changeme-secret")
	v.SetDefault("auth.token_ttl_min", 60)
	v.SetDefault("query_log.enabled", true)
	v.SetDefault("query_log.buffer_size", 500)
	v.SetDefault("query_log.flush_interval_ms", 1000)
	v.SetDefault("query_log.retention_days", 7)

	v.SetEnvPrefix("qindex")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Database.Driver != "postgres" && cfg.Database.Driver != "sqlite" {
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
	return &cfg, nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the application configuration, read from environment variables
// with an optional YAML file underneath.
type Config struct {
	Server struct {
		Address  string `mapstructure:"address"`
		HTTPPort string `mapstructure:"http_port"`
	} `mapstructure:"server"`

	Database struct {
		DSN       string        `mapstructure:"dsn"`
		OpTimeout time.Duration `mapstructure:"op_timeout"`
	} `mapstructure:"database"`

	Auth struct {
		JWTSecret string        `mapstructure:"jwt_secret"`
		TokenTTL  time.Duration `mapstructure:"token_ttl"`
	} `mapstructure:"auth"`

	Logging struct {
		Level  string `mapstructure:"level"`  // trace|debug|info|warning|error|fatal
		Format string `mapstructure:"format"` // text|json
		File   string `mapstructure:"file"`   // file path prefix; empty means stdout only
	} `mapstructure:"logs"`
}

// Load reads the config from env/file with defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.http_port", "8080")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.op_timeout", 5*time.Second)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 24*time.Hour)

	v.SetDefault("logs.level", "info")
	v.SetDefault("logs.format", "text")
	v.SetDefault("logs.file", "")

	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/traindesk")
	}

	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return nil, fmt.Errorf("config read error: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal error: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MustLoad is Load or panic; for use in main only.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func validate(c *Config) error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("database.dsn must be set")
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return errors.New("auth.jwt_secret must be set")
	}
	if c.Database.OpTimeout <= 0 {
		return errors.New("database.op_timeout must be positive")
	}
	if strings.TrimSpace(c.Server.HTTPPort) == "" {
		return errors.New("server.http_port must not be empty")
	}
	return nil
}

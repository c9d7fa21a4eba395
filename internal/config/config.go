package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Server struct {
		Addr string
	}
	Log struct {
		Level string
	}
	Database struct {
		Path string
	}
	Persistence struct {
		Driver       string
		Path         string
		Format       string
		FlushTimeout time.Duration
	}
	Streak struct {
		Timezone string
	}
	Auth struct {
		JWTSecret       string
		TokenTTLMinutes int
	}
	Backup struct {
		Bucket    string
		KeyPrefix string
		Region    string
		Endpoint  string
		Interval  time.Duration
		Retain    int
	}
	AWS struct {
		Profile string
	}
}

// Load reads configuration from environment variables and optional config files.
func Load() (Config, error) {
	loadDotEnv(".env")

	v := viper.New()
	v.SetEnvPrefix("MOOD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", "0.0.0.0:8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("database.path", "data/mood.db")
	v.SetDefault("persistence.driver", DriverFile)
	v.SetDefault("persistence.path", "data/moods.csv")
	v.SetDefault("persistence.format", "keyed")
	v.SetDefault("persistence.flushtimeout", 5*time.Second)
	v.SetDefault("streak.timezone", "UTC")
	v.SetDefault("auth.jwtsecret", "")
	v.SetDefault("auth.tokenttlminutes", 60)
	v.SetDefault("backup.bucket", "")
	v.SetDefault("backup.keyprefix", "mood-snapshots")
	v.SetDefault("backup.region", "us-east-1")
	v.SetDefault("backup.endpoint", "")
	v.SetDefault("backup.interval", time.Hour)
	v.SetDefault("backup.retain", 24)
	v.SetDefault("aws.profile", "")

	v.SetConfigName("config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	switch c.Persistence.Driver {
	case DriverFile, DriverSQLite:
	default:
		return fmt.Errorf("unknown persistence driver %q", c.Persistence.Driver)
	}
	switch strings.ToLower(c.Persistence.Format) {
	case "keyed", "positional":
	default:
		return fmt.Errorf("unknown persistence format %q", c.Persistence.Format)
	}
	if c.Persistence.FlushTimeout <= 0 {
		return fmt.Errorf("persistence flush timeout must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Auth.JWTSecret != "" && c.Auth.TokenTTLMinutes <= 0 {
		return fmt.Errorf("auth token ttl must be positive")
	}
	if c.Backup.Bucket != "" && c.Backup.Interval <= 0 {
		return fmt.Errorf("backup interval must be positive")
	}
	return nil
}

// Location resolves the timezone used for streak day boundaries.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Streak.Timezone)
	if err != nil {
		return nil, fmt.Errorf("streak timezone %q: %w", c.Streak.Timezone, err)
	}
	return loc, nil
}

func loadDotEnv(path string) {
	file, err := os.Open(path)
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		if _, exists := os.LookupEnv(key); !exists {
			_ = os.Setenv(key, value)
		}
	}
}

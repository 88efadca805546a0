// Package config resolves ingestctl settings from, in increasing priority,
// built-in defaults, a .env file, a YAML file and the environment. Command
// line flags are applied on top by the cli package.
package config

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	internal_storage "github.com/ignatij/ingestctl/internal/storage"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	DefaultAPIURL = "http://localhost:8000"
	DefaultPort   = 8080
)

type StoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type Config struct {
	APIURL   string       `yaml:"api_url"`
	LogLevel string       `yaml:"log_level"`
	Store    StoreConfig  `yaml:"store"`
	Server   ServerConfig `yaml:"server"`
}

// DefaultStorePath is where the SQLite store lives unless configured.
func DefaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".ingestctl", "state.db")
	}
	return filepath.Join(home, ".ingestctl", "state.db")
}

func Default() Config {
	return Config{
		APIURL:   DefaultAPIURL,
		LogLevel: "INFO",
		Store:    StoreConfig{Driver: internal_storage.SQLiteDriver, DSN: DefaultStorePath()},
		Server:   ServerConfig{Port: DefaultPort},
	}
}

// Load builds the configuration. path names an optional YAML file; when it
// is empty INGESTCTL_CONFIG is consulted. A missing .env is not an error,
// a missing YAML file that was asked for is.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		return Config{}, errors.Wrap(err, "load .env")
	}
	cfg := Default()

	if path == "" {
		path = os.Getenv("INGESTCTL_CONFIG")
	}
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.mergeEnv(); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) mergeFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read config %s", path)
	}
	driverBefore := c.Store.Driver
	if err := yaml.Unmarshal(raw, c); err != nil {
		return errors.Wrapf(err, "parse config %s", path)
	}
	if c.Store.Driver != driverBefore && c.Store.DSN == DefaultStorePath() {
		c.Store.DSN = ""
	}
	return nil
}

func (c *Config) mergeEnv() error {
	if v := os.Getenv("INGESTCTL_API_URL"); v != "" {
		c.APIURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("INGESTCTL_STORE_DRIVER"); v != "" {
		if v != c.Store.Driver && c.Store.DSN == DefaultStorePath() {
			c.Store.DSN = ""
		}
		c.Store.Driver = v
	}
	if v := os.Getenv("INGESTCTL_STORE_DSN"); v != "" {
		c.Store.DSN = v
	}
	if v := os.Getenv("INGESTCTL_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "INGESTCTL_PORT %q", v)
		}
		c.Server.Port = port
	}
	if c.Store.Driver == internal_storage.PostgresDriver && c.Store.DSN == "" {
		c.Store.DSN = PostgresDSNFromEnv()
	}
	return nil
}

// PostgresDSNFromEnv assembles a connection string from the DB_* variables,
// or returns "" when any of them is missing.
func PostgresDSNFromEnv() string {
	user := os.Getenv("DB_USERNAME")
	password := os.Getenv("DB_PASSWORD")
	host := os.Getenv("DB_HOST")
	port := os.Getenv("DB_PORT")
	name := os.Getenv("DB_NAME")
	if user == "" || password == "" || host == "" || port == "" || name == "" {
		return ""
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, name)
}

func (c Config) Validate() error {
	if c.APIURL == "" {
		return errors.New("api url is required")
	}
	switch c.Store.Driver {
	case internal_storage.SQLiteDriver, internal_storage.PostgresDriver:
		if c.Store.DSN == "" {
			return errors.Errorf("store driver %s needs a dsn", c.Store.Driver)
		}
	case internal_storage.MemoryDriver:
	default:
		return errors.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Errorf("invalid server port %d", c.Server.Port)
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment overrides.
const (
	EnvGameConfig  = "LA2GO_GAME_CONFIG"
	EnvDatabaseDSN = "LA2GO_DATABASE_DSN"
)

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`

	// Overrides the fields above when set (LA2GO_DATABASE_DSN).
	URL string `yaml:"url"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// DefaultDatabase returns the local development database settings.
func DefaultDatabase() DatabaseConfig {
	return DatabaseConfig{
		Host:     "127.0.0.1",
		Port:     5432,
		User:     "la2go",
		Password: "la2go",
		DBName:   "la2go",
		SSLMode:  "disable",
	}
}

// LoadEnv reads a .env file from the working directory into the process
// environment. A missing file is not an error; variables already set win.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading env file %s: %w", p, err)
		}
	}
	return nil
}

// loadYAML merges the YAML file at path over cfg.
// If the file doesn't exist, cfg is left untouched.
func loadYAML(path string, cfg any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

package config

import (
	"fmt"
	"os"
	"time"

	"github.com/udisondev/la2go-idfactory/internal/idfactory"
)

// IDFactory holds object ID allocator settings.
type IDFactory struct {
	FirstID         int32         `yaml:"first_id"`
	LastID          int32         `yaml:"last_id"`
	InitialCapacity int           `yaml:"initial_capacity"`
	GrowthInterval  time.Duration `yaml:"growth_interval"`

	// Delete rows that reference missing characters/clans/items before seeding.
	CleanUpOnStart bool `yaml:"clean_up_on_start"`
}

// DefaultIDFactory returns the 0x10000000-0x7FFFFFFF domain, 100k initial
// capacity and 30s growth checks.
func DefaultIDFactory() IDFactory {
	return IDFactory{
		FirstID:         idfactory.FirstObjectID,
		LastID:          idfactory.LastObjectID,
		InitialCapacity: idfactory.DefaultInitialCapacity,
		GrowthInterval:  idfactory.DefaultGrowthInterval,
		CleanUpOnStart:  true,
	}
}

// Validate checks the domain bounds and sizing.
func (c IDFactory) Validate() error {
	if c.FirstID >= c.LastID {
		return fmt.Errorf("id_factory: first_id %#x must be below last_id %#x", c.FirstID, c.LastID)
	}
	if c.InitialCapacity <= 0 {
		return fmt.Errorf("id_factory: initial_capacity must be positive, got %d", c.InitialCapacity)
	}
	if c.GrowthInterval <= 0 {
		return fmt.Errorf("id_factory: growth_interval must be positive, got %s", c.GrowthInterval)
	}
	return nil
}

// AllocatorConfig converts the section into idfactory.Config.
func (c IDFactory) AllocatorConfig() idfactory.Config {
	return idfactory.Config{
		Domain:          idfactory.Domain{First: c.FirstID, Last: c.LastID},
		InitialCapacity: c.InitialCapacity,
		GrowthInterval:  c.GrowthInterval,
	}
}

// GameServer holds all configuration for the game server.
type GameServer struct {
	LogLevel string `yaml:"log_level"` // debug, info, warn, error

	// Database
	Database DatabaseConfig `yaml:"database"`

	// Object IDs
	IDFactory IDFactory `yaml:"id_factory"`
}

// DefaultGameServer returns GameServer config with sensible defaults.
func DefaultGameServer() GameServer {
	return GameServer{
		LogLevel:  "info",
		Database:  DefaultDatabase(),
		IDFactory: DefaultIDFactory(),
	}
}

// LoadGameServer loads game server config from a YAML file.
// If the file doesn't exist, returns defaults. LA2GO_DATABASE_DSN overrides
// the database section.
func LoadGameServer(path string) (GameServer, error) {
	cfg := DefaultGameServer()

	if err := loadYAML(path, &cfg); err != nil {
		return cfg, err
	}

	if dsn := os.Getenv(EnvDatabaseDSN); dsn != "" {
		cfg.Database.URL = dsn
	}

	if err := cfg.IDFactory.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

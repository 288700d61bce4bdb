package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kdudkov/tileview/pkg/model"
)

const (
	DefaultConfigFile = "tileview.yml"
	envPrefix         = "TILEVIEW_"
)

type Config struct {
	Listen   string          `yaml:"listen" env:"LISTEN"`
	Debug    bool            `yaml:"debug" env:"DEBUG"`
	Workers  int             `yaml:"workers" env:"WORKERS"`
	TileSize int             `yaml:"tileSize" env:"TILE_SIZE"`
	Offline  bool            `yaml:"offline" env:"OFFLINE"`
	Cache    Cache           `yaml:"cache" envPrefix:"CACHE_"`
	Sources  []*model.Source `yaml:"sources"`
}

type Cache struct {
	// file, mbtiles or bolt
	Type string `yaml:"type" env:"TYPE"`
	Dir  string `yaml:"dir" env:"DIR"`
	// read-only mbtiles files consulted after the cache
	Packs []string `yaml:"packs" env:"PACKS"`
}

func Default() *Config {
	return &Config{
		Listen:   ":8888",
		Workers:  1,
		TileSize: 256,
		Cache: Cache{
			Type: "file",
			Dir:  "./cache",
		},
	}
}

// Load reads the yaml file (if it exists), then applies TILEVIEW_* environment
// overrides, optionally taken from a .env file.
func Load(path string) (*Config, error) {
	cfg := Default()

	d, err := os.ReadFile(path)

	switch {
	case err == nil:
		if err := yaml.Unmarshal(d, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	_ = godotenv.Load()

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: envPrefix}); err != nil {
		return nil, fmt.Errorf("env: %w", err)
	}

	if len(cfg.Sources) == 0 {
		cfg.Sources = []*model.Source{model.OpenStreetMap()}
	}

	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}

	if c.TileSize <= 0 {
		return fmt.Errorf("invalid tile size %d", c.TileSize)
	}

	switch c.Cache.Type {
	case "file", "mbtiles", "bolt":
	default:
		return fmt.Errorf("unknown cache type: %s (supported: file, mbtiles, bolt)", c.Cache.Type)
	}

	keys := make(map[string]bool)

	for _, s := range c.Sources {
		if s.Key == "" || s.Url == "" {
			return fmt.Errorf("source %q needs key and url", s.Name)
		}

		if keys[s.Key] {
			return fmt.Errorf("duplicate source key %s", s.Key)
		}

		keys[s.Key] = true
	}

	return nil
}

func (c *Config) Source(key string) (*model.Source, bool) {
	for _, s := range c.Sources {
		if s.Key == key {
			return s, true
		}
	}

	return nil, false
}

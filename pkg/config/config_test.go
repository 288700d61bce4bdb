package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testConfig = `
listen: ":9000"
workers: 4
cache:
  type: bolt
  dir: /tmp/tiles
sources:
  - name: Topo
    key: topo
    url: "https://{s}.tile.opentopomap.org/{z}/{x}/{y}.png"
    serverParts: [a, b, c]
    maxZoom: 17
    timeout: 5s
  - name: Local
    key: local
    url: "http://localhost:8080/tiles"
`

func writeConfig(t *testing.T, s string) string {
	t.Helper()

	p := filepath.Join(t.TempDir(), DefaultConfigFile)

	if err := os.WriteFile(p, []byte(s), 0644); err != nil {
		t.Fatal(err)
	}

	return p
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, testConfig))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Listen != ":9000" || cfg.Workers != 4 || cfg.TileSize != 256 {
		t.Errorf("wrong config %+v", cfg)
	}

	if cfg.Cache.Type != "bolt" || cfg.Cache.Dir != "/tmp/tiles" {
		t.Errorf("wrong cache %+v", cfg.Cache)
	}

	if len(cfg.Sources) != 2 {
		t.Fatalf("got %d sources", len(cfg.Sources))
	}

	s, ok := cfg.Source("topo")
	if !ok {
		t.Fatal("no topo source")
	}

	if s.Timeout != 5*time.Second || len(s.ServerParts) != 3 || s.MaxZoom != 17 {
		t.Errorf("wrong source %+v", s)
	}

	if _, ok := cfg.Source("osm"); ok {
		t.Error("default source must not be added")
	}
}

func TestLoadMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	if err != nil {
		t.Fatal(err)
	}

	if len(cfg.Sources) != 1 || cfg.Sources[0].Key != "osm" {
		t.Errorf("want default source, got %+v", cfg.Sources)
	}
}

func TestEnv(t *testing.T) {
	t.Setenv("TILEVIEW_WORKERS", "8")
	t.Setenv("TILEVIEW_OFFLINE", "true")
	t.Setenv("TILEVIEW_CACHE_TYPE", "mbtiles")

	cfg, err := Load(writeConfig(t, testConfig))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Workers != 8 || !cfg.Offline || cfg.Cache.Type != "mbtiles" {
		t.Errorf("env not applied: %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yml  string
	}{
		{"workers", "workers: 0"},
		{"cache", "cache:\n  type: redis"},
		{"no url", "sources:\n  - key: a"},
		{"duplicate", "sources:\n  - {key: a, url: x}\n  - {key: a, url: y}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.yml)); err == nil {
				t.Error("config must be rejected")
			}
		})
	}
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default() should validate, got %v", err)
	}
	if cfg.MaxWidth != 800 || cfg.MaxHeight != 600 || cfg.EngineTimeout != 60*time.Second {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "facemood.yaml")
	yml := "cachedir: /var/cache/facemood\nmaxwidth: 1024\nenginetimeout: 90s\n"
	if err := os.WriteFile(path, []byte(yml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.CacheDir != "/var/cache/facemood" || cfg.MaxWidth != 1024 || cfg.EngineTimeout != 90*time.Second {
		t.Errorf("YAML values not applied: %+v", cfg)
	}
	// Keys absent from the file keep their defaults.
	if cfg.MaxHeight != 600 || cfg.AssetName != "encodings.pkl" {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for a missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("maxwidth: [1, 2"), 0644)
	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestLoadEnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "facemood.yaml")
	os.WriteFile(path, []byte("filesdir: /from/yaml\n"), 0644)
	t.Setenv("FACEMOOD_FILES_DIR", "/from/env")
	t.Setenv("FACEMOOD_ENGINE_TIMEOUT", "15")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.FilesDir != "/from/env" {
		t.Errorf("FilesDir = %q, want env value", cfg.FilesDir)
	}
	if cfg.EngineTimeout != 15*time.Second {
		t.Errorf("EngineTimeout = %s, want 15s", cfg.EngineTimeout)
	}
}

func TestApplyEnv(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantURL string
		wantErr bool
	}{
		{"Nothing set", map[string]string{}, "", false},
		{"DATABASE_URL wins", map[string]string{"DATABASE_URL": "postgres://a/b", "POSTGRES_HOST": "db"}, "postgres://a/b", false},
		{"POSTGRES parts", map[string]string{"POSTGRES_HOST": "db", "POSTGRES_USER": "u", "POSTGRES_PASSWORD": "p", "POSTGRES_DB": "facemood"}, "postgres://u:p@db:5432/facemood", false},
		{"POSTGRES custom port", map[string]string{"POSTGRES_HOST": "db", "POSTGRES_PORT": "6543"}, "postgres://:@db:6543/", false},
		{"Bad timeout", map[string]string{"FACEMOOD_ENGINE_TIMEOUT": "soon"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			err := cfg.applyEnv(func(k string) string { return tt.env[k] })
			if (err != nil) != tt.wantErr {
				t.Fatalf("applyEnv() error = %v, wantErr %v", err, tt.wantErr)
			}
			if cfg.DatabaseURL != tt.wantURL {
				t.Errorf("DatabaseURL = %q, want %q", cfg.DatabaseURL, tt.wantURL)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"Zero width", func(c *Config) { c.MaxWidth = 0 }, "bounds must be positive"},
		{"Negative height", func(c *Config) { c.MaxHeight = -1 }, "bounds must be positive"},
		{"Quality too high", func(c *Config) { c.JPEGQuality = 101 }, "jpeg quality"},
		{"Zero timeout", func(c *Config) { c.EngineTimeout = 0 }, "engine timeout"},
		{"No cache dir", func(c *Config) { c.CacheDir = "" }, "directories are required"},
		{"No asset", func(c *Config) { c.AssetName = "" }, "asset name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.want)
			}
		})
	}
}

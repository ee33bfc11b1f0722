// Package config loads facemood settings from defaults, an optional YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the resolved runtime configuration.
type Config struct {
	CacheDir  string `yaml:"cachedir"`
	FilesDir  string `yaml:"filesdir"`
	AssetsDir string `yaml:"assetsdir"`
	AssetName string `yaml:"assetname"`

	MaxWidth    int `yaml:"maxwidth"`
	MaxHeight   int `yaml:"maxheight"`
	JPEGQuality int `yaml:"jpegquality"`

	Python        string        `yaml:"python"`
	EngineScript  string        `yaml:"enginescript"`
	EngineTimeout time.Duration `yaml:"enginetimeout"`

	DatabaseURL string `yaml:"databaseurl"`
}

// Default returns the settings used when nothing else is configured.
func Default() Config {
	return Config{
		CacheDir:      "./cache",
		FilesDir:      "./files",
		AssetsDir:     "./assets",
		AssetName:     "encodings.pkl",
		MaxWidth:      800,
		MaxHeight:     600,
		JPEGQuality:   85,
		Python:        "python3",
		EngineScript:  "python/worker.py",
		EngineTimeout: 60 * time.Second,
	}
}

// Load builds a Config from the defaults, the YAML file at path (skipped when
// path is empty) and then the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	strs := map[string]*string{
		"FACEMOOD_CACHE_DIR":     &c.CacheDir,
		"FACEMOOD_FILES_DIR":     &c.FilesDir,
		"FACEMOOD_ASSETS_DIR":    &c.AssetsDir,
		"FACEMOOD_ASSET_NAME":    &c.AssetName,
		"FACEMOOD_PYTHON":        &c.Python,
		"FACEMOOD_ENGINE_SCRIPT": &c.EngineScript,
	}
	for key, dst := range strs {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	if v := getenv("FACEMOOD_ENGINE_TIMEOUT"); v != "" {
		d, err := parseTimeout(v)
		if err != nil {
			return fmt.Errorf("FACEMOOD_ENGINE_TIMEOUT: %w", err)
		}
		c.EngineTimeout = d
	}

	if v := getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	} else if url := postgresURL(getenv); url != "" {
		c.DatabaseURL = url
	}
	return nil
}

// parseTimeout accepts a Go duration ("90s") or a bare number of seconds.
func parseTimeout(v string) (time.Duration, error) {
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	return time.Duration(secs) * time.Second, nil
}

// postgresURL builds a connection string from the POSTGRES_* variables, or
// returns "" if POSTGRES_HOST is unset.
func postgresURL(getenv func(string) string) string {
	host := getenv("POSTGRES_HOST")
	if host == "" {
		return ""
	}
	port := getenv("POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
		getenv("POSTGRES_USER"), getenv("POSTGRES_PASSWORD"), host, port, getenv("POSTGRES_DB"))
}

// Validate rejects settings the pipeline cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.MaxWidth <= 0 || c.MaxHeight <= 0 {
		errs = append(errs, fmt.Errorf("bounds must be positive, got %dx%d", c.MaxWidth, c.MaxHeight))
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("jpeg quality must be between 1 and 100, got %d", c.JPEGQuality))
	}
	if c.EngineTimeout <= 0 {
		errs = append(errs, fmt.Errorf("engine timeout must be positive, got %s", c.EngineTimeout))
	}
	if c.CacheDir == "" || c.FilesDir == "" {
		errs = append(errs, errors.New("cache and files directories are required"))
	}
	if c.AssetName == "" {
		errs = append(errs, errors.New("asset name is required"))
	}
	return errors.Join(errs...)
}

// pkg/config/load.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const (
	ManifestEnv     = "RELAY_MANIFEST"
	DefaultManifest = "relay.toml"
	MetricsEnv      = "RELAY_METRICS_LISTEN"
)

// Load reads a .toml, .yaml or .yml manifest and validates it.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	default:
		err = toml.Unmarshal(b, &cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if v := os.Getenv(MetricsEnv); v != "" {
		cfg.Metrics.Listen = v
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ManifestPath resolves the manifest location: explicit flag, then env, then default.
func ManifestPath(flag string) string {
	if flag != "" {
		return flag
	}
	return envOr(ManifestEnv, DefaultManifest)
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

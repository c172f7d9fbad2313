package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk configuration. Zero values mean "unspecified";
// booleans are pointers so an explicit false is kept.
type FileConfig struct {
	Backend struct {
		BaseURL   string `json:"base_url" yaml:"base_url" toml:"base_url"`
		Token     string `json:"token" yaml:"token" toml:"token"`
		TimeoutMS int    `json:"timeout_ms" yaml:"timeout_ms" toml:"timeout_ms"`
	} `json:"backend" yaml:"backend" toml:"backend"`
	Camera struct {
		Command           string `json:"command" yaml:"command" toml:"command"`
		InputFormat       string `json:"input_format" yaml:"input_format" toml:"input_format"`
		Device            string `json:"device" yaml:"device" toml:"device"`
		EnvironmentDevice string `json:"environment_device" yaml:"environment_device" toml:"environment_device"`
		FacingMode        string `json:"facing_mode" yaml:"facing_mode" toml:"facing_mode"`
		Width             int    `json:"width" yaml:"width" toml:"width"`
		Height            int    `json:"height" yaml:"height" toml:"height"`
		FrameRate         int    `json:"frame_rate" yaml:"frame_rate" toml:"frame_rate"`
	} `json:"camera" yaml:"camera" toml:"camera"`
	Scanner struct {
		DebounceMS int    `json:"debounce_ms" yaml:"debounce_ms" toml:"debounce_ms"`
		IntervalMS int    `json:"interval_ms" yaml:"interval_ms" toml:"interval_ms"`
		TryHarder  *bool  `json:"try_harder" yaml:"try_harder" toml:"try_harder"`
		EventID    string `json:"event_id" yaml:"event_id" toml:"event_id"`
	} `json:"scanner" yaml:"scanner" toml:"scanner"`
	Payload struct {
		RulesPath string `json:"rules_path" yaml:"rules_path" toml:"rules_path"`
		MaxLength int    `json:"max_length" yaml:"max_length" toml:"max_length"`
	} `json:"payload" yaml:"payload" toml:"payload"`
	Journal struct {
		Enabled *bool  `json:"enabled" yaml:"enabled" toml:"enabled"`
		Path    string `json:"path" yaml:"path" toml:"path"`
	} `json:"journal" yaml:"journal" toml:"journal"`
	Feed struct {
		Enabled        *bool    `json:"enabled" yaml:"enabled" toml:"enabled"`
		Addr           string   `json:"addr" yaml:"addr" toml:"addr"`
		AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins" toml:"allowed_origins"`
	} `json:"feed" yaml:"feed" toml:"feed"`
	Log struct {
		Level  string `json:"level" yaml:"level" toml:"level"`
		Format string `json:"format" yaml:"format" toml:"format"`
	} `json:"log" yaml:"log" toml:"log"`
}

// LoadFile reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func LoadFile(path string) (FileConfig, error) {
	var cfg FileConfig
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	case ".json":
		err = json.Unmarshal(b, &cfg)
	case ".toml":
		err = toml.Unmarshal(b, &cfg)
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	if err != nil {
		return FileConfig{}, fmt.Errorf("parse config %q: %w", path, err)
	}
	return cfg, nil
}

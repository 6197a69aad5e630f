package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// RuntimeConfig holds the startup parameters read from config.yaml.
type RuntimeConfig struct {
	Addr             string  `mapstructure:"addr"`
	SnapshotDir      string  `mapstructure:"snapshotDir"`
	SnapshotWorkers  int     `mapstructure:"snapshotWorkers"`
	DefaultTickRate  float64 `mapstructure:"defaultTickRate"`
	Width            float64 `mapstructure:"width"`
	Height           float64 `mapstructure:"height"`
	FoodCount        int     `mapstructure:"foodCount"`
	SnapshotInterval float64 `mapstructure:"snapshotInterval"`
}

// loadConfig reads the YAML file at path with a fresh *viper.Viper, then
// unmarshals it into a mapstructure-tagged struct, applying defaults for
// anything the file omits.
func loadConfig(path string) (*RuntimeConfig, error) {
	vp := viper.New()
	vp.SetConfigFile(path)
	vp.SetConfigType("yaml")
	vp.AddConfigPath(filepath.Dir(path))

	vp.SetDefault("addr", ":8080")
	vp.SetDefault("snapshotDir", "data/snapshots")
	vp.SetDefault("snapshotWorkers", 2)
	vp.SetDefault("defaultTickRate", 30.0)
	vp.SetDefault("width", 1000.0)
	vp.SetDefault("height", 1000.0)
	vp.SetDefault("foodCount", 200)
	vp.SetDefault("snapshotInterval", 10.0)

	if err := vp.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	cfg := &RuntimeConfig{}
	if err := vp.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshaling: %w", err)
	}
	return cfg, nil
}

// dumpConfig renders the resolved runtime config back to YAML. Used by
// -print-config to let an operator confirm what defaults and file values
// actually resolved to before the server binds its listener.
func dumpConfig(cfg *RuntimeConfig) (string, error) {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("config: marshaling: %w", err)
	}
	return string(out), nil
}

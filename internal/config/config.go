// Package config loads the ambient configuration spec.md §6 and
// original_source's CLI enumerate, following the viper-backed pattern of
// rohankatakam-coderisk/internal/config: a struct of typed fields populated
// from a config file, then overridden by environment variables, then by
// explicit flags.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/aksw/quit-go/pkg/quadstore"
)

// Config holds the settings spec.md §6 lists as recognized at the HTTP
// boundary, plus the original QuitStore's namespace/feature/mode flags
// (SPEC_FULL §8).
type Config struct {
	TargetDir         string          `mapstructure:"target_dir"`
	LogFile           string          `mapstructure:"log_file"`
	Namespace         string          `mapstructure:"namespace"`
	ConfigFile        string          `mapstructure:"config_file"`
	Port              int             `mapstructure:"port"`
	BasePath          string          `mapstructure:"base_path"`
	Mode              string          `mapstructure:"mode"` // sidecar | config
	DefaultGraphUnion bool            `mapstructure:"default_graph_union"`
	Features          quadstore.Feature
	Verbose           int // count of -v flags
}

// Default returns the original QuitStore's documented defaults
// (application.py's parseArgs): port 5000, namespace http://quit.instance/,
// config file config.ttl, sidecar graph discovery.
func Default() *Config {
	return &Config{
		TargetDir:  ".",
		Namespace:  "http://quit.instance/",
		ConfigFile: "config.ttl",
		Port:       5000,
		Mode:       "sidecar",
	}
}

// Load first loads a .env file into the environment if present (godotenv,
// best-effort; variables already set are not overridden), then reads
// settings from the optional YAML file at path, then lets the QUIT_*
// environment variables spec.md §6 names override them.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // best-effort; absence of .env is not an error

	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	v.SetEnvPrefix("QUIT")
	v.AutomaticEnv()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyEnv(cfg)
	return cfg, nil
}

// applyEnv mirrors original_source/quit/application.py's direct
// `os.environ['QUIT_*']` reads, which viper's AutomaticEnv already covers
// for mapstructure-tagged fields but not for the handful of names whose
// JSON/env spelling differs from their struct field.
func applyEnv(cfg *Config) {
	if v := os.Getenv("QUIT_TARGETDIR"); v != "" {
		cfg.TargetDir = v
	}
	if v := os.Getenv("QUIT_LOGFILE"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv("QUIT_BASEPATH"); v != "" {
		cfg.BasePath = v
	}
	if v := os.Getenv("QUIT_NAMESPACE"); v != "" {
		cfg.Namespace = v
	}
	if v := os.Getenv("QUIT_CONFIGFILE"); v != "" {
		cfg.ConfigFile = v
	}
}

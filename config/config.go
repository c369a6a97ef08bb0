// Package config loads a goSession.Config from YAML and the environment.
//
// Sources, highest priority first:
//  1. the explicit path argument;
//  2. CONFIG_PATH;
//  3. ./local.yaml;
//  4. environment variables only.
//
// Environment variables always overlay the file. Values absent from every source keep
// goSession.DefaultConfig.
package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"

	goSession "github.com/MrEthical07/goSession"
)

// MustLoad panics when Load fails.
func MustLoad(path string) goSession.Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads the configuration and validates it.
func Load(path string) (goSession.Config, error) {
	cfg, err := read(path)
	if err != nil {
		return goSession.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return goSession.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func read(path string) (goSession.Config, error) {
	cfg := goSession.DefaultConfig()

	tryRead := func(p string) (goSession.Config, error) {
		if _, err := os.Stat(p); err != nil {
			return goSession.Config{}, fmt.Errorf("config file %q stat failed: %w", p, err)
		}
		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return goSession.Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return goSession.Config{}, fmt.Errorf("failed to overlay env: %w", err)
		}
		return cfg, nil
	}

	// 1) explicit path
	if path != "" {
		return tryRead(path)
	}

	// 2) CONFIG_PATH
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return tryRead(envPath)
	}

	// 3) ./local.yaml
	if _, err := os.Stat("local.yaml"); err == nil {
		return tryRead("local.yaml")
	}

	// 4) env only
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return goSession.Config{}, fmt.Errorf("config not found: provide a path, CONFIG_PATH, local.yaml or env vars: %w", err)
	}
	return cfg, nil
}

// Usage renders the supported environment variables.
func Usage() string {
	var cfg goSession.Config
	text, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return ""
	}
	return text
}

package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix         = "CHARTD_"
	maxConfigFileSize = 1024 * 1024
)

// Load reads configuration from the YAML file at configPath, then
// overrides with CHARTD_* environment variables.
//
// An empty configPath means the default location,
// ~/.config/chartd/config.yaml, and a missing file there is fine. An
// explicit path that does not exist is an error.
//
// The config file must not be group or world readable (0600 or 0400),
// since it may hold API keys.
//
// Environment variables map section-first onto config keys:
//
//	CHARTD_SERVER_PORT              -> server.port
//	CHARTD_RETRIEVAL_MAX_CONTEXT_CHARS -> retrieval.max_context_chars
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	explicit := configPath != ""
	if !explicit {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "chartd", "config.yaml")
	}

	f, err := os.Open(configPath)
	switch {
	case err == nil:
		defer f.Close()

		// Validate against the open descriptor so the checks cannot race
		// with a file swap.
		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("stating config file: %w", err)
		}
		if err := validateConfigFile(info); err != nil {
			return nil, fmt.Errorf("config file %s: %w", configPath, err)
		}

		content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", configPath, err)
		}
	case os.IsNotExist(err) && !explicit:
		// No config file at the default location, defaults plus
		// environment apply.
	default:
		return nil, fmt.Errorf("opening config file %s: %w", configPath, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyTransform), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// envKeyTransform maps CHARTD_SECTION_FIELD_NAME to section.field_name.
// Only the first underscore becomes a separator, so multi-word field
// names survive.
func envKeyTransform(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

// EnsureConfigDir creates ~/.config/chartd with owner-only permissions.
func EnsureConfigDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolving home directory: %w", err)
	}
	dir := filepath.Join(home, ".config", "chartd")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}
	return nil
}

func validateConfigFile(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure permissions %v, expected 0600 or 0400", perm)
		}
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}

// Package config loads ccr runtime settings from layered TOML files.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	defaultDelay          = 2 * time.Second
	defaultMaxParallel    = 3
	defaultAssistantBin   = "claude"
	defaultProbeTimeout   = 5 * time.Second
	defaultReadyTimeout   = 10 * time.Second
	defaultDeliverTimeout = 10 * time.Second
	defaultPollInterval   = 250 * time.Millisecond
)

// Config stores runtime settings loaded from TOML files.
type Config struct {
	Delay          time.Duration
	MaxParallel    int
	Exclude        []string
	AssistantBin   string
	Terminal       string
	ProbeTimeout   time.Duration
	ReadyTimeout   time.Duration
	DeliverTimeout time.Duration
	PollInterval   time.Duration
}

type fileConfig struct {
	Delay          *int      `toml:"delay"`
	MaxParallel    *int      `toml:"max_parallel"`
	Exclude        *[]string `toml:"exclude"`
	AssistantBin   *string   `toml:"assistant_bin"`
	Terminal       *string   `toml:"terminal"`
	ProbeTimeout   *string   `toml:"probe_timeout"`
	ReadyTimeout   *string   `toml:"ready_timeout"`
	DeliverTimeout *string   `toml:"deliver_timeout"`
	PollInterval   *string   `toml:"poll_interval"`
}

// Load reads config from ~/.ccr/config.toml and overlays a root-local
// .ccr/config.toml. Missing files are not errors.
func Load(ctx context.Context, rootDir string) (*Config, error) {
	cfg := defaults()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	paths := []string{filepath.Join(homeDir, ".ccr", "config.toml")}
	if rootDir = strings.TrimSpace(rootDir); rootDir != "" {
		paths = append(paths, filepath.Join(rootDir, ".ccr", "config.toml"))
	}

	for _, path := range paths {
		if err := overlayFromFile(&cfg, path); err != nil {
			return nil, err
		}
	}

	_ = ctx
	return &cfg, nil
}

func defaults() Config {
	return Config{
		Delay:          defaultDelay,
		MaxParallel:    defaultMaxParallel,
		Exclude:        []string{},
		AssistantBin:   defaultAssistantBin,
		ProbeTimeout:   defaultProbeTimeout,
		ReadyTimeout:   defaultReadyTimeout,
		DeliverTimeout: defaultDeliverTimeout,
		PollInterval:   defaultPollInterval,
	}
}

func overlayFromFile(cfg *Config, path string) error {
	if cfg == nil {
		return errors.New("config must not be nil")
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat config file %q: %w", path, err)
	}

	var decoded fileConfig
	if _, err := toml.DecodeFile(path, &decoded); err != nil {
		return fmt.Errorf("decode config file %q: %w", path, err)
	}

	if err := applyScalarOverrides(cfg, decoded, path); err != nil {
		return err
	}
	return applyDurationOverrides(cfg, decoded, path)
}

func applyScalarOverrides(cfg *Config, decoded fileConfig, path string) error {
	if decoded.Delay != nil {
		if *decoded.Delay < 0 {
			return fmt.Errorf("parse delay in %q: must be >= 0", path)
		}
		cfg.Delay = time.Duration(*decoded.Delay) * time.Second
	}
	if decoded.MaxParallel != nil {
		if *decoded.MaxParallel <= 0 {
			return fmt.Errorf("parse max_parallel in %q: must be > 0", path)
		}
		cfg.MaxParallel = *decoded.MaxParallel
	}
	if decoded.Exclude != nil {
		exclude := make([]string, 0, len(*decoded.Exclude))
		for _, name := range *decoded.Exclude {
			if name = strings.TrimSpace(name); name != "" {
				exclude = append(exclude, name)
			}
		}
		cfg.Exclude = exclude
	}
	if decoded.AssistantBin != nil {
		if bin := strings.TrimSpace(*decoded.AssistantBin); bin != "" {
			cfg.AssistantBin = bin
		}
	}
	if decoded.Terminal != nil {
		cfg.Terminal = strings.ToLower(strings.TrimSpace(*decoded.Terminal))
	}
	return nil
}

func applyDurationOverrides(cfg *Config, decoded fileConfig, path string) error {
	entries := []struct {
		raw    *string
		key    string
		target *time.Duration
	}{
		{decoded.ProbeTimeout, "probe_timeout", &cfg.ProbeTimeout},
		{decoded.ReadyTimeout, "ready_timeout", &cfg.ReadyTimeout},
		{decoded.DeliverTimeout, "deliver_timeout", &cfg.DeliverTimeout},
		{decoded.PollInterval, "poll_interval", &cfg.PollInterval},
	}
	for _, entry := range entries {
		if entry.raw == nil {
			continue
		}
		parsed, err := parseDuration(*entry.raw, entry.key, path)
		if err != nil {
			return err
		}
		if parsed <= 0 {
			return fmt.Errorf("parse %s in %q: must be > 0", entry.key, path)
		}
		*entry.target = parsed
	}
	return nil
}

func parseDuration(value, key, path string) (time.Duration, error) {
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s in %q: %w", key, path, err)
	}
	return parsed, nil
}

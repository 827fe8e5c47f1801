package parseredux

import (
	"fmt"
	"log/slog"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

type fileConfig struct {
	StorageDir       string `toml:"storage_dir"`
	StorageKeyPrefix string `toml:"storage_key_prefix"`
	UserType         string `toml:"user_type"`
	LogLevel         string `toml:"log_level"`
}

// LoadOptions reads store options from a TOML file. Fields left out of
// the file keep their defaults.
func LoadOptions(path string) (Options, error) {
	var cfg fileConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Options{}, errors.Wrap(err, "load options")
	}
	level, err := parseLogLevel(cfg.LogLevel)
	if err != nil {
		return Options{}, err
	}
	opts := Options{
		StorageDir:       cfg.StorageDir,
		StorageKeyPrefix: cfg.StorageKeyPrefix,
		UserType:         cfg.UserType,
		LogLevel:         level,
	}
	opts.SetDefaults()
	return opts, nil
}

func parseLogLevel(name string) (slog.Level, error) {
	switch name {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("parse-redux: unknown log level %q", name)
	}
}

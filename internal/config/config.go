// Package config loads dealsserver's config.yaml (table capacities, listen
// address, low-memory threshold) via viper, grounded on the teacher's
// viper-singleton wiring (steveyegge-beads/cmd/bd/main.go) and its direct
// local_config.go YAML-read pattern. A background fsnotify watch hot-reloads
// the in-memory Config only — tables opened before the reload keep the
// capacities they were created with, grounded on the teacher's fsnotify-backed credential-file
// watcher (internal/slackbot/cred_watcher.go: watch, re-read, swap an
// in-memory value under a lock).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// TableLimits is one table's capacity ceiling, grounded on spec.md §3's
// Table<T> constructor parameters.
type TableLimits struct {
	MaxPages            int   `mapstructure:"max_pages"`
	ElementsPerPage     int   `mapstructure:"elements_per_page"`
	RecordExpireSeconds int64 `mapstructure:"record_expire_seconds"`
}

// Config is dealsserver's full runtime configuration.
type Config struct {
	ListenAddr    string      `mapstructure:"listen_addr"`
	LowMemPercent int         `mapstructure:"low_mem_percent"`
	DealsInfo     TableLimits `mapstructure:"deals_info"`
	DealsData     TableLimits `mapstructure:"deals_data"`
	TopDst        TableLimits `mapstructure:"top_dst"`
	ShmDir        string      `mapstructure:"shm_dir"`
}

// defaults mirrors dealstore/topdest's own Default* constants, so a
// missing config.yaml still produces a fully-usable Config.
func defaults() Config {
	return Config{
		ListenAddr:    ":8080",
		LowMemPercent: 10,
		ShmDir:        "/tmp/dealsindex",
		DealsInfo:     TableLimits{MaxPages: 5000, ElementsPerPage: 10000, RecordExpireSeconds: 86400},
		DealsData:     TableLimits{MaxPages: 10000, ElementsPerPage: 50_000_000, RecordExpireSeconds: 86400},
		TopDst:        TableLimits{MaxPages: 5000, ElementsPerPage: 10000, RecordExpireSeconds: 86400},
	}
}

// Loader owns the viper instance and the live Config, swapped atomically
// under mu as config.yaml changes.
type Loader struct {
	v      *viper.Viper
	path   string
	logger *slog.Logger

	mu  sync.RWMutex
	cur Config
}

// Load reads path (if it exists; a missing file falls back to defaults())
// and returns a Loader holding the parsed Config.
func Load(path string, logger *slog.Logger) (*Loader, error) {
	if logger == nil {
		logger = slog.Default()
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	cfg := defaults()
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: defaults unmarshal: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
		logger.Warn("config file not found, using defaults", "path", path)
	} else if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal %q: %w", path, err)
	}

	return &Loader{v: v, path: path, logger: logger, cur: cfg}, nil
}

// Current returns the live Config, safe for concurrent use alongside Watch.
func (l *Loader) Current() Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cur
}

// Watch starts a background fsnotify watch on the config file's directory,
// re-reading and swapping in a new Config on every write, and invoking
// onChange (if non-nil) with the reloaded value. Returns the fsnotify
// watcher so the caller can Close it on shutdown.
func (l *Loader) Watch(onChange func(Config)) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create watcher: %w", err)
	}
	if err := watcher.Add(dirOf(l.path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("config: watch %q: %w", l.path, err)
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != l.path || (event.Op&(fsnotify.Write|fsnotify.Create) == 0) {
					continue
				}
				l.reload(onChange)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.logger.Warn("config watch error", "error", err)
			}
		}
	}()

	return watcher, nil
}

func (l *Loader) reload(onChange func(Config)) {
	cfg := defaults()
	if err := l.v.ReadInConfig(); err != nil {
		l.logger.Warn("config reload failed, keeping previous values", "path", l.path, "error", err)
		return
	}
	if err := l.v.Unmarshal(&cfg); err != nil {
		l.logger.Warn("config reload unmarshal failed, keeping previous values", "path", l.path, "error", err)
		return
	}

	l.mu.Lock()
	l.cur = cfg
	l.mu.Unlock()

	l.logger.Info("config reloaded", "path", l.path)
	if onChange != nil {
		onChange(cfg)
	}
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}

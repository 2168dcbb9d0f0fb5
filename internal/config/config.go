package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dshills/livedoc/internal/parser"
	"github.com/dshills/livedoc/internal/reparse"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "LIVEDOC_"

// ErrInvalid is wrapped by every validation failure
var ErrInvalid = errors.New("invalid configuration")

// Config is the server configuration
type Config struct {
	Debounce          time.Duration `yaml:"debounce"`
	SyncLineThreshold int           `yaml:"sync_line_threshold"`
	Backpressure      string        `yaml:"backpressure"`
	Engine            string        `yaml:"engine"`
	DBPath            string        `yaml:"db_path"`
	Watch             bool          `yaml:"watch"`
	LoadWorkers       int           `yaml:"load_workers"`
	LogLevel          string        `yaml:"log_level"`
}

// DefaultConfig returns the built-in configuration
func DefaultConfig() *Config {
	return &Config{
		Debounce:          reparse.DefaultDebounce,
		SyncLineThreshold: reparse.DefaultSyncLineThreshold,
		Backpressure:      string(reparse.BackpressureCoalesce),
		Engine:            parser.EngineAST,
		DBPath:            defaultDBPath(),
		Watch:             true,
		LoadWorkers:       runtime.NumCPU(),
		LogLevel:          "info",
	}
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".livedoc", "journal.db")
	}
	return filepath.Join(home, ".livedoc", "journal.db")
}

// Load builds the configuration from the defaults, the YAML file at path (if
// path is not empty) and LIVEDOC_* environment variables, in that order.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}

	str("BACKPRESSURE", &c.Backpressure)
	str("ENGINE", &c.Engine)
	str("DB_PATH", &c.DBPath)
	str("LOG_LEVEL", &c.LogLevel)

	if v, ok := lookup(EnvPrefix + "DEBOUNCE"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %sDEBOUNCE: %v", ErrInvalid, EnvPrefix, err)
		}
		c.Debounce = d
	}
	for key, dst := range map[string]*int{
		"SYNC_LINE_THRESHOLD": &c.SyncLineThreshold,
		"LOAD_WORKERS":        &c.LoadWorkers,
	} {
		if v, ok := lookup(EnvPrefix + key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%w: %s%s: %v", ErrInvalid, EnvPrefix, key, err)
			}
			*dst = n
		}
	}
	if v, ok := lookup(EnvPrefix + "WATCH"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %sWATCH: %v", ErrInvalid, EnvPrefix, err)
		}
		c.Watch = b
	}
	return nil
}

// Validate checks every setting
func (c *Config) Validate() error {
	if c.Debounce <= 0 {
		return fmt.Errorf("%w: debounce must be positive, got %s", ErrInvalid, c.Debounce)
	}
	if c.SyncLineThreshold < 1 {
		return fmt.Errorf("%w: sync_line_threshold must be at least 1, got %d", ErrInvalid, c.SyncLineThreshold)
	}
	if err := reparse.Backpressure(c.Backpressure).Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	switch c.Engine {
	case parser.EngineAST, parser.EngineTreeSitter:
	default:
		return fmt.Errorf("%w: unknown engine %q", ErrInvalid, c.Engine)
	}
	if c.DBPath == "" {
		return fmt.Errorf("%w: db_path is required", ErrInvalid)
	}
	if c.LoadWorkers < 1 {
		return fmt.Errorf("%w: load_workers must be at least 1, got %d", ErrInvalid, c.LoadWorkers)
	}
	if _, ok := verbosities[strings.ToLower(c.LogLevel)]; !ok {
		return fmt.Errorf("%w: unknown log_level %q", ErrInvalid, c.LogLevel)
	}
	return nil
}

var verbosities = map[string]int{
	"none":     -4,
	"critical": -3,
	"error":    -2,
	"warning":  -1,
	"notice":   0,
	"info":     1,
	"debug":    2,
}

// Verbosity maps LogLevel to a commonlog verbosity
func (c *Config) Verbosity() int {
	if v, ok := verbosities[strings.ToLower(c.LogLevel)]; ok {
		return v
	}
	return 1
}

// ReparseConfig returns the coordinator settings for every document
func (c *Config) ReparseConfig() *reparse.Config {
	return &reparse.Config{
		Debounce:          c.Debounce,
		SyncLineThreshold: c.SyncLineThreshold,
		Backpressure:      reparse.Backpressure(c.Backpressure),
		Binder:            reparse.EngineBinder(c.Engine),
	}
}

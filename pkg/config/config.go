// Package config loads netmeta configuration.
//
// Values come from three layers, later ones overriding earlier ones:
// built-in defaults, an optional TOML file, and NETMETA_* environment
// variables. The loaded Config is turned into explicit per-request
// pipeline options; nothing is kept in package state.
//
//	[analysis]
//	measure = "OR"
//	models = ["fixed", "random"]
//	level = 0.95
//	small_values = "undesirable"
//	timeout = "60s"
//
//	[solver]
//	name = "rscript"
//	r_path = "/usr/bin/R"
//
//	[server]
//	addr = ":8080"
//
//	[cache]
//	backend = "redis"
//	redis_url = "redis://localhost:6379/0"
package config

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"

	"github.com/matzehuels/netmeta/pkg/cache"
	"github.com/matzehuels/netmeta/pkg/contrast"
	"github.com/matzehuels/netmeta/pkg/errors"
	"github.com/matzehuels/netmeta/pkg/estimator"
	"github.com/matzehuels/netmeta/pkg/estimator/gls"
	"github.com/matzehuels/netmeta/pkg/estimator/rscript"
	"github.com/matzehuels/netmeta/pkg/pipeline"
)

// Solver names.
const (
	SolverGLS     = "gls"
	SolverRScript = "rscript"
)

// Cache backends.
const (
	CacheNone  = "none"
	CacheFile  = "file"
	CacheRedis = "redis"
)

// Config is the complete application configuration.
type Config struct {
	Analysis AnalysisConfig `toml:"analysis"`
	Solver   SolverConfig   `toml:"solver"`
	Server   ServerConfig   `toml:"server"`
	Cache    CacheConfig    `toml:"cache"`
	Log      LogConfig      `toml:"log"`
}

// AnalysisConfig holds the default analysis options.
type AnalysisConfig struct {
	Measure     string   `toml:"measure"`
	Models      []string `toml:"models"`
	Level       float64  `toml:"level"`
	SmallValues string   `toml:"small_values"`
	Increment   float64  `toml:"increment"`
	Timeout     Duration `toml:"timeout"`
}

// SolverConfig selects the estimation backend.
type SolverConfig struct {
	Name    string `toml:"name"`
	RPath   string `toml:"r_path"`
	TempDir string `toml:"temp_dir"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string   `toml:"addr"`
	ReadTimeout     Duration `toml:"read_timeout"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
}

// CacheConfig selects the plot cache backend.
type CacheConfig struct {
	Backend  string `toml:"backend"`
	Dir      string `toml:"dir"`
	RedisURL string `toml:"redis_url"`
	Prefix   string `toml:"prefix"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// Duration is a time.Duration written as a string ("90s", "2m") in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Analysis: AnalysisConfig{
			Models:      []string{string(estimator.ModelFixed), string(estimator.ModelRandom)},
			Level:       estimator.DefaultLevel,
			SmallValues: string(estimator.DefaultSmallValues),
			Increment:   contrast.DefaultIncrement,
			Timeout:     Duration{estimator.DefaultTimeout},
		},
		Solver: SolverConfig{Name: SolverGLS, RPath: rscript.DefaultCommand},
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     Duration{30 * time.Second},
			ShutdownTimeout: Duration{10 * time.Second},
		},
		Cache: CacheConfig{Backend: CacheNone, Dir: defaultCacheDir()},
		Log:   LogConfig{Level: "info"},
	}
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "netmeta")
}

// Load reads configuration from path (optional, TOML) and the environment,
// then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "read config %s", path)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes TOML data over the defaults and validates the result. The
// environment is not consulted.
func Parse(data string) (*Config, error) {
	cfg := Default()
	if _, err := toml.Decode(data, cfg); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	a := &c.Analysis
	a.Measure = getEnvOrDefault("NETMETA_MEASURE", a.Measure)
	a.SmallValues = getEnvOrDefault("NETMETA_SMALL_VALUES", a.SmallValues)
	if v := os.Getenv("NETMETA_MODELS"); v != "" {
		a.Models = splitList(v)
	}
	var err error
	if a.Level, err = getEnvFloat("NETMETA_LEVEL", a.Level); err != nil {
		return err
	}
	if a.Increment, err = getEnvFloat("NETMETA_INCREMENT", a.Increment); err != nil {
		return err
	}
	if a.Timeout.Duration, err = getEnvDuration("NETMETA_TIMEOUT", a.Timeout.Duration); err != nil {
		return err
	}

	c.Solver.Name = getEnvOrDefault("NETMETA_SOLVER", c.Solver.Name)
	c.Solver.RPath = getEnvOrDefault("NETMETA_R_PATH", c.Solver.RPath)
	c.Server.Addr = getEnvOrDefault("NETMETA_ADDR", c.Server.Addr)
	c.Cache.Backend = getEnvOrDefault("NETMETA_CACHE", c.Cache.Backend)
	c.Cache.Dir = getEnvOrDefault("NETMETA_CACHE_DIR", c.Cache.Dir)
	c.Cache.RedisURL = getEnvOrDefault("NETMETA_REDIS_URL", c.Cache.RedisURL)
	c.Cache.Prefix = getEnvOrDefault("NETMETA_CACHE_PREFIX", c.Cache.Prefix)
	c.Log.Level = getEnvOrDefault("NETMETA_LOG_LEVEL", c.Log.Level)
	return nil
}

// Validate checks every setting and returns an INVALID_CONFIG error naming
// the first bad one.
func (c *Config) Validate() error {
	if _, err := c.PipelineOptions(); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "analysis")
	}
	switch c.Solver.Name {
	case SolverGLS, SolverRScript:
	default:
		return errors.New(errors.ErrCodeInvalidConfig, "solver.name: %q (must be one of: gls, rscript)", c.Solver.Name)
	}
	if c.Solver.Name == SolverRScript && c.Solver.RPath == "" {
		return errors.New(errors.ErrCodeInvalidConfig, "solver.r_path is required for the rscript solver")
	}
	if c.Server.Addr == "" {
		return errors.New(errors.ErrCodeInvalidConfig, "server.addr is required")
	}
	switch c.Cache.Backend {
	case CacheNone:
	case CacheFile:
		if c.Cache.Dir == "" {
			return errors.New(errors.ErrCodeInvalidConfig, "cache.dir is required for the file cache")
		}
	case CacheRedis:
		if c.Cache.RedisURL == "" {
			return errors.New(errors.ErrCodeInvalidConfig, "cache.redis_url is required for the redis cache")
		}
	default:
		return errors.New(errors.ErrCodeInvalidConfig, "cache.backend: %q (must be one of: none, file, redis)", c.Cache.Backend)
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "log.level")
	}
	return nil
}

// PipelineOptions converts the analysis section to pipeline options. The
// measure is left empty when unset so the pipeline picks it per outcome.
func (c *Config) PipelineOptions() (pipeline.Options, error) {
	a := c.Analysis
	opts := pipeline.Options{
		Increment:   a.Increment,
		Timeout:     a.Timeout.Duration,
		Level:       a.Level,
		SmallValues: estimator.SmallValues(a.SmallValues),
	}
	if a.Measure != "" {
		m, err := contrast.ParseMeasure(a.Measure)
		if err != nil {
			return pipeline.Options{}, err
		}
		opts.Measure = m
	}
	for _, s := range a.Models {
		m, err := estimator.ParseModel(s)
		if err != nil {
			return pipeline.Options{}, err
		}
		opts.Models = append(opts.Models, m)
	}
	check := opts
	if err := check.ValidateAndSetDefaults(check.Measure.Outcome()); err != nil {
		return pipeline.Options{}, err
	}
	return opts, nil
}

// LogLevel returns the configured log level, defaulting to info.
func (c *Config) LogLevel() log.Level {
	lvl, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// NewSolver builds the configured solver.
func (c *Config) NewSolver(logger *log.Logger) estimator.Solver {
	if c.Solver.Name == SolverRScript {
		s := rscript.New(c.Solver.RPath, logger)
		s.TempDir = c.Solver.TempDir
		return s
	}
	return gls.New(logger)
}

// NewCache opens the configured cache backend and its keyer.
func (c *Config) NewCache(ctx context.Context) (cache.Cache, cache.Keyer, error) {
	var keyer cache.Keyer = cache.NewDefaultKeyer()
	if c.Cache.Prefix != "" {
		keyer = cache.NewScopedKeyer(keyer, c.Cache.Prefix)
	}
	switch c.Cache.Backend {
	case CacheFile:
		fc, err := cache.NewFileCache(c.Cache.Dir)
		if err != nil {
			return nil, nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "open file cache")
		}
		return fc, keyer, nil
	case CacheRedis:
		rc, err := cache.NewRedisCache(ctx, c.Cache.RedisURL)
		if err != nil {
			return nil, nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "connect redis cache")
		}
		return rc, keyer, nil
	}
	return cache.NewNullCache(), keyer, nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, errors.New(errors.ErrCodeInvalidConfig, "%s: %q is not a number", key, value)
	}
	return f, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, errors.New(errors.ErrCodeInvalidConfig, "%s: %q is not a duration", key, value)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

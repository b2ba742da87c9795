package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/go-cmp/cmp"

	"github.com/matzehuels/netmeta/pkg/cache"
	"github.com/matzehuels/netmeta/pkg/contrast"
	"github.com/matzehuels/netmeta/pkg/errors"
	"github.com/matzehuels/netmeta/pkg/estimator"
	"github.com/matzehuels/netmeta/pkg/estimator/gls"
	"github.com/matzehuels/netmeta/pkg/estimator/rscript"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
}

func TestParse(t *testing.T) {
	cfg, err := Parse(`
[analysis]
measure = "rr"
models = ["common"]
level = 0.9
small_values = "desirable"
timeout = "2m"

[solver]
name = "rscript"
r_path = "/opt/R/bin/R"

[server]
addr = "127.0.0.1:9000"

[cache]
backend = "file"
dir = "/tmp/netmeta"
`)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Analysis.Timeout.Duration != 2*time.Minute {
		t.Errorf("Timeout = %s, want 2m", cfg.Analysis.Timeout)
	}
	if cfg.Server.Addr != "127.0.0.1:9000" || cfg.Cache.Backend != CacheFile {
		t.Errorf("Server/Cache = %+v / %+v", cfg.Server, cfg.Cache)
	}
	// Unset values keep their defaults.
	if cfg.Analysis.Increment != contrast.DefaultIncrement || cfg.Log.Level != "info" {
		t.Errorf("defaults lost: increment %v, log level %q", cfg.Analysis.Increment, cfg.Log.Level)
	}

	opts, err := cfg.PipelineOptions()
	if err != nil {
		t.Fatalf("PipelineOptions() error = %v", err)
	}
	if opts.Measure != contrast.RiskRatio || opts.Level != 0.9 || opts.SmallValues != estimator.SmallValuesDesirable {
		t.Errorf("PipelineOptions() = %+v", opts)
	}
	if diff := cmp.Diff([]estimator.Model{estimator.ModelFixed}, opts.Models); diff != "" {
		t.Errorf("Models mismatch (-want +got):\n%s", diff)
	}

	s, ok := cfg.NewSolver(nil).(*rscript.Solver)
	if !ok || s.Command != "/opt/R/bin/R" {
		t.Errorf("NewSolver() = %#v, want rscript with /opt/R/bin/R", cfg.NewSolver(nil))
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		toml string
	}{
		{"syntax", `[analysis`},
		{"measure", "[analysis]\nmeasure = \"HR\""},
		{"model", "[analysis]\nmodels = [\"bayes\"]"},
		{"level", "[analysis]\nlevel = 2.0"},
		{"timeout", "[analysis]\ntimeout = \"soon\""},
		{"solver", "[solver]\nname = \"stan\""},
		{"r path", "[solver]\nname = \"rscript\"\nr_path = \"\""},
		{"cache backend", "[cache]\nbackend = \"memcached\""},
		{"redis url", "[cache]\nbackend = \"redis\""},
		{"log level", "[log]\nlevel = \"loud\""},
		{"addr", "[server]\naddr = \"\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.toml); !errors.Is(err, errors.ErrCodeInvalidConfig) {
				t.Errorf("Parse() error = %v, want INVALID_CONFIG", err)
			}
		})
	}
}

func TestLoadWithEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netmeta.toml")
	if err := os.WriteFile(path, []byte("[analysis]\nmeasure = \"OR\"\nlevel = 0.9\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("NETMETA_LEVEL", "0.8")
	t.Setenv("NETMETA_MODELS", "random")
	t.Setenv("NETMETA_TIMEOUT", "5s")
	t.Setenv("NETMETA_ADDR", ":9999")
	t.Setenv("NETMETA_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Analysis.Measure != "OR" {
		t.Errorf("Measure = %q, want OR from the file", cfg.Analysis.Measure)
	}
	if cfg.Analysis.Level != 0.8 {
		t.Errorf("Level = %v, want 0.8 from the environment", cfg.Analysis.Level)
	}
	if diff := cmp.Diff([]string{"random"}, cfg.Analysis.Models); diff != "" {
		t.Errorf("Models mismatch (-want +got):\n%s", diff)
	}
	if cfg.Analysis.Timeout.Duration != 5*time.Second || cfg.Server.Addr != ":9999" {
		t.Errorf("Timeout/Addr = %s / %s", cfg.Analysis.Timeout, cfg.Server.Addr)
	}
	if cfg.LogLevel() != log.DebugLevel {
		t.Errorf("LogLevel() = %v, want debug", cfg.LogLevel())
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); !errors.Is(err, errors.ErrCodeInvalidConfig) {
		t.Errorf("Load(missing) error = %v, want INVALID_CONFIG", err)
	}

	t.Setenv("NETMETA_LEVEL", "high")
	if _, err := Load(""); !errors.Is(err, errors.ErrCodeInvalidConfig) {
		t.Errorf("Load() with bad NETMETA_LEVEL error = %v, want INVALID_CONFIG", err)
	}
}

func TestNewCache(t *testing.T) {
	ctx := context.Background()

	cfg := Default()
	c, keyer, err := cfg.NewCache(ctx)
	if err != nil {
		t.Fatalf("NewCache(none) error = %v", err)
	}
	if _, ok := c.(*cache.NullCache); !ok {
		t.Errorf("NewCache(none) = %T, want *cache.NullCache", c)
	}
	if _, ok := keyer.(cache.DefaultKeyer); !ok {
		t.Errorf("keyer = %T, want cache.DefaultKeyer", keyer)
	}

	cfg.Cache = CacheConfig{Backend: CacheFile, Dir: t.TempDir(), Prefix: "test:"}
	c, keyer, err = cfg.NewCache(ctx)
	if err != nil {
		t.Fatalf("NewCache(file) error = %v", err)
	}
	defer c.Close()
	if _, ok := c.(*cache.FileCache); !ok {
		t.Errorf("NewCache(file) = %T, want *cache.FileCache", c)
	}
	if _, ok := keyer.(*cache.ScopedKeyer); !ok {
		t.Errorf("keyer = %T, want *cache.ScopedKeyer", keyer)
	}
}

func TestNewSolverDefault(t *testing.T) {
	if _, ok := Default().NewSolver(nil).(*gls.Solver); !ok {
		t.Error("default solver is not gls")
	}
}

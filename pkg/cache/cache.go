package cache

import (
	"context"
	"time"
)

// Cache is a byte-oriented key/value store with per-entry expiry.
//
// Implementations must be safe for concurrent use. A miss is reported as
// (nil, false, nil); errors are reserved for backend failures.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Default time-to-live values.
const (
	// TTLPlot applies to rendered network plots. Plots are a pure function
	// of the graph and options, so they only expire to bound storage.
	TTLPlot = 7 * 24 * time.Hour
)

// PlotKeyOpts holds the rendering options that change a plot's bytes.
type PlotKeyOpts struct {
	Format      string  `json:"format"`
	Labels      bool    `json:"labels,omitempty"`
	Highlight   string  `json:"highlight,omitempty"`
	MaxPenWidth float64 `json:"max_pen_width,omitempty"`
}

// Keyer builds cache keys.
type Keyer interface {
	// PlotKey returns the key of a rendered network plot.
	PlotKey(graphHash string, opts PlotKeyOpts) string
}

// DefaultKeyer produces unscoped keys.
type DefaultKeyer struct{}

// NewDefaultKeyer returns the default keyer.
func NewDefaultKeyer() Keyer {
	return DefaultKeyer{}
}

// PlotKey hashes the graph hash together with the options.
func (DefaultKeyer) PlotKey(graphHash string, opts PlotKeyOpts) string {
	return hashKey("plot", graphHash, opts)
}

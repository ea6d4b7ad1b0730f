// Package pixscout provides the public API for extracting images and text
// from web pages, either from the fetched HTML or from a rendered browser
// session.
package pixscout

import (
	"os"
	"path/filepath"
	"time"

	"github.com/jmylchreest/pixscout/pkg/extract"
	"github.com/jmylchreest/pixscout/pkg/fetcher"
	"github.com/jmylchreest/pixscout/pkg/store"
)

// Config holds all pixscout configuration.
type Config struct {
	// Content store for captured images
	StoreDir       string
	StoreURLPrefix string

	// Image validation
	Concurrency   int
	ProbeRate     float64 // Probes per second, 0 for unlimited
	MaxImageBytes int64

	// Fetching
	Timeout             time.Duration // Per profile attempt
	Profiles            []fetcher.Profile
	LegacyStylePatterns bool

	// Rendering
	ChromePath string
	Stealth    bool
	CDNHints   []string
	DebugDir   string // Screenshots of failed renders

	// Injected components (optional, mainly for tests)
	Fetcher     fetcher.Fetcher
	Stylesheets extract.StylesheetFetcher
}

// DefaultStoreDir is where captured images go when no directory is set.
func DefaultStoreDir() string {
	return filepath.Join(os.TempDir(), "pixscout", "captured")
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		StoreDir:       DefaultStoreDir(),
		StoreURLPrefix: store.DefaultURLPrefix,
		Concurrency:    4,
		MaxImageBytes:  32 << 20,
		Timeout:        10 * time.Second,
		Stealth:        true,
	}
}

// Option configures a Client.
type Option func(*Config)

// WithStoreDir sets the directory captured images are written to.
func WithStoreDir(dir string) Option {
	return func(c *Config) {
		c.StoreDir = dir
	}
}

// WithStoreURLPrefix sets the path captured images are served under.
func WithStoreURLPrefix(prefix string) Option {
	return func(c *Config) {
		c.StoreURLPrefix = prefix
	}
}

// WithConcurrency sets how many images are validated at once.
func WithConcurrency(n int) Option {
	return func(c *Config) {
		c.Concurrency = n
	}
}

// WithProbeRate limits image probes to n per second.
func WithProbeRate(n float64) Option {
	return func(c *Config) {
		c.ProbeRate = n
	}
}

// WithMaxImageBytes caps how much of an image is downloaded for inspection.
func WithMaxImageBytes(n int64) Option {
	return func(c *Config) {
		c.MaxImageBytes = n
	}
}

// WithChromePath sets the browser binary used in rendering mode.
func WithChromePath(path string) Option {
	return func(c *Config) {
		c.ChromePath = path
	}
}

// WithStealth toggles the automation-hiding browser flags and script.
func WithStealth(enabled bool) Option {
	return func(c *Config) {
		c.Stealth = enabled
	}
}

// WithLegacyStylePatterns keeps only the last matching background pattern
// for <style> blocks.
func WithLegacyStylePatterns(enabled bool) Option {
	return func(c *Config) {
		c.LegacyStylePatterns = enabled
	}
}

// WithDebugDir sets where screenshots of failed renders are written.
func WithDebugDir(dir string) Option {
	return func(c *Config) {
		c.DebugDir = dir
	}
}

// WithTimeout sets the per-attempt page fetch timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Timeout = d
	}
}

// WithCDNHints replaces the host fragments that mark image CDNs.
func WithCDNHints(hints ...string) Option {
	return func(c *Config) {
		c.CDNHints = hints
	}
}

// WithFetcher injects a custom page fetcher.
func WithFetcher(f fetcher.Fetcher) Option {
	return func(c *Config) {
		c.Fetcher = f
	}
}

// WithStylesheetFetcher injects a custom external stylesheet fetcher.
func WithStylesheetFetcher(f extract.StylesheetFetcher) Option {
	return func(c *Config) {
		c.Stylesheets = f
	}
}

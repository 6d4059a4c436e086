package politeness

import "time"

const (
	// DefaultCrawlDelay is the starting delay between requests to one host.
	DefaultCrawlDelay = 1000 * time.Millisecond
	// DefaultMaxDelay caps adaptive delay growth.
	DefaultMaxDelay = 10 * time.Second
	// DefaultIncreaseFactor multiplies the delay after a 429 or 5xx.
	DefaultIncreaseFactor = 1.5
	// DefaultDecreaseFactor multiplies the delay after a fast 200.
	DefaultDecreaseFactor = 0.9
	// DefaultFastResponse is the response time under which a 200 is "fast".
	DefaultFastResponse = time.Second
	// DefaultMaxPerHost is the per-host concurrency ceiling.
	DefaultMaxPerHost = 2
	// DefaultMaxGlobal is the process-wide concurrency ceiling.
	DefaultMaxGlobal = 5
	// DefaultIdleTTL is how long an idle host is kept.
	DefaultIdleTTL = 30 * time.Minute
	// DefaultCleanupInterval is the period of the eviction sweep.
	DefaultCleanupInterval = 5 * time.Minute
)

// Config holds the politeness tuning constants.
type Config struct {
	DefaultDelay    time.Duration
	MaxDelay        time.Duration
	IncreaseFactor  float64
	DecreaseFactor  float64
	FastResponse    time.Duration
	MaxPerHost      int
	MaxGlobal       int
	IdleTTL         time.Duration
	CleanupInterval time.Duration
}

// DefaultConfig returns the default politeness settings.
func DefaultConfig() Config {
	return Config{
		DefaultDelay:    DefaultCrawlDelay,
		MaxDelay:        DefaultMaxDelay,
		IncreaseFactor:  DefaultIncreaseFactor,
		DecreaseFactor:  DefaultDecreaseFactor,
		FastResponse:    DefaultFastResponse,
		MaxPerHost:      DefaultMaxPerHost,
		MaxGlobal:       DefaultMaxGlobal,
		IdleTTL:         DefaultIdleTTL,
		CleanupInterval: DefaultCleanupInterval,
	}
}

// withDefaults fills zero values from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DefaultDelay < 0 {
		c.DefaultDelay = 0
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.IncreaseFactor <= 1 {
		c.IncreaseFactor = d.IncreaseFactor
	}
	if c.DecreaseFactor <= 0 || c.DecreaseFactor >= 1 {
		c.DecreaseFactor = d.DecreaseFactor
	}
	if c.FastResponse <= 0 {
		c.FastResponse = d.FastResponse
	}
	if c.MaxPerHost <= 0 {
		c.MaxPerHost = d.MaxPerHost
	}
	if c.MaxGlobal <= 0 {
		c.MaxGlobal = d.MaxGlobal
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = d.IdleTTL
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = d.CleanupInterval
	}
	return c
}

package pipeline

import "time"

// Config controls batching, shutdown and restarts.
type Config struct {
	BatchSize       int
	PollTimeout     time.Duration
	FlushInterval   time.Duration // max batch age; 0 disables
	ShutdownTimeout time.Duration

	MaxRestarts      int // consecutive failed runs before giving up; 0 = unlimited
	RestartBaseDelay time.Duration
	RestartMaxDelay  time.Duration
}

// DefaultConfig returns the default pipeline settings.
func DefaultConfig() Config {
	return Config{
		BatchSize:        100,
		PollTimeout:      time.Second,
		FlushInterval:    5 * time.Second,
		ShutdownTimeout:  30 * time.Second,
		MaxRestarts:      10,
		RestartBaseDelay: time.Second,
		RestartMaxDelay:  time.Minute,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = def.PollTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
	if c.RestartBaseDelay <= 0 {
		c.RestartBaseDelay = def.RestartBaseDelay
	}
	if c.RestartMaxDelay <= 0 {
		c.RestartMaxDelay = def.RestartMaxDelay
	}
	return c
}

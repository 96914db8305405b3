package covey

import (
	"errors"
	"fmt"
	"time"

	"github.com/covey-io/covey/logging"
)

// Config holds the recognized consumer group options. The zero value is
// not usable; start from DefaultConfig and override fields.
type Config struct {
	// MaxBytes is the maximum fetch size passed to partition consumers.
	// Default: 1 MiB.
	MaxBytes int32

	// MinBytes is the minimum fetch size. Default: 0.
	MinBytes int32

	// MaxWaitMS is the maximum fetch wait in milliseconds. Default: 100.
	MaxWaitMS int32

	// ClaimTimeout bounds how long a contended partition claim waits for
	// the current owner to release before giving up. Default: 30s.
	ClaimTimeout time.Duration

	// LoopDelay is the idle sleep between FetchLoop iterations that
	// yielded nothing. Default: 1s.
	LoopDelay time.Duration

	// SocketTimeout bounds broker socket operations. Default: 10s.
	SocketTimeout time.Duration

	// Register controls whether construction joins the member set and
	// runs the initial rebalance. Default: true.
	Register bool

	// Trail starts consumption from the partition tail instead of the
	// head when no offset is stored. Default: false.
	Trail bool

	// Logger overrides the global logger. Optional.
	Logger *logging.Logger

	// Recorder receives metrics observations. Optional.
	Recorder Recorder
}

// DefaultConfig returns a Config with the documented defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxBytes:      1 << 20,
		MinBytes:      0,
		MaxWaitMS:     100,
		ClaimTimeout:  30 * time.Second,
		LoopDelay:     time.Second,
		SocketTimeout: 10 * time.Second,
		Register:      true,
	}
}

// Validate checks option values for consistency.
func (c *Config) Validate() error {
	if c.MaxBytes <= 0 {
		return errors.New("covey: MaxBytes must be positive")
	}
	if c.MinBytes < 0 {
		return errors.New("covey: MinBytes must not be negative")
	}
	if c.MinBytes > c.MaxBytes {
		return fmt.Errorf("covey: MinBytes (%d) must not exceed MaxBytes (%d)", c.MinBytes, c.MaxBytes)
	}
	if c.MaxWaitMS < 0 {
		return errors.New("covey: MaxWaitMS must not be negative")
	}
	if c.ClaimTimeout <= 0 {
		return errors.New("covey: ClaimTimeout must be positive")
	}
	if c.LoopDelay <= 0 {
		return errors.New("covey: LoopDelay must be positive")
	}
	if c.SocketTimeout <= 0 {
		return errors.New("covey: SocketTimeout must be positive")
	}
	return nil
}

// logger returns the configured logger or the process global.
func (c *Config) logger() *logging.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logging.Global()
}

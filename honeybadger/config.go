package honeybadger

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Config is the configuration of a single epoch
type Config struct {
	// Epoch is the number of the epoch, used in logs only
	Epoch uint64
	// NodeID is the index of the local node, in [0, NParticipants)
	NodeID int64
	// NParticipants is the total number of nodes n
	NParticipants int
	// Timeout bounds the whole epoch. Zero means no deadline.
	Timeout time.Duration
	// Logger overrides the default node logger
	Logger *zerolog.Logger
	// Metrics may be nil
	Metrics *Metrics
}

// Validate checks the configuration against the scheme threshold: n must be
// at least 3f+1 where f = threshold-1.
func (c *Config) Validate(threshold int) error {
	if c.NParticipants < 1 {
		return fmt.Errorf("%w: need at least one participant, got %d", ErrInvalidConfig, c.NParticipants)
	}
	if c.NodeID < 0 || c.NodeID >= int64(c.NParticipants) {
		return fmt.Errorf("%w: node id %d out of range [0, %d)", ErrInvalidConfig, c.NodeID, c.NParticipants)
	}
	if threshold < 1 {
		return fmt.Errorf("%w: threshold must be positive, got %d", ErrInvalidConfig, threshold)
	}
	f := threshold - 1
	if c.NParticipants < 3*f+1 {
		return fmt.Errorf("%w: %d participants cannot tolerate %d faults", ErrInvalidConfig, c.NParticipants, f)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: negative timeout", ErrInvalidConfig)
	}
	return nil
}

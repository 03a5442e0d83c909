package host

import (
	"context"
	"fmt"

	"clusterwatch/pkg/remote"
)

// Connector tries to bring hosts online during startup.
type Connector interface {
	// Connect makes one connection attempt, numbered from 1. It returns an
	// error wrapping ErrPermanent when no further attempt makes sense.
	Connect(ctx context.Context, attempt int) error
}

// ProbeConnector connects by running the probe command on every host that
// is not connected yet.
type ProbeConnector struct {
	Hosts       []*Host
	Probe       remote.Command
	MaxAttempts int
}

func (c *ProbeConnector) Connect(ctx context.Context, attempt int) error {
	if c.MaxAttempts > 0 && attempt > c.MaxAttempts {
		return fmt.Errorf("%w: gave up after %d attempts", ErrPermanent, c.MaxAttempts)
	}
	for _, h := range c.Hosts {
		if h.IsConnected() {
			continue
		}
		if h.Probe(ctx, c.Probe) {
			h.Log().Infof("connected on attempt %d", attempt)
		}
	}
	return ctx.Err()
}

// AnyConnected returns the first connected host, or nil.
func AnyConnected(hosts []*Host) *Host {
	for _, h := range hosts {
		if h.IsConnected() {
			return h
		}
	}
	return nil
}

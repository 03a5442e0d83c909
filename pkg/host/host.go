// Package host models one managed cluster node and its status flags.
package host

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"clusterwatch/pkg/hwinfo"
	"clusterwatch/pkg/remote"
)

// ErrPermanent is returned by a Connector that gave up for good.
var ErrPermanent = errors.New("host: permanent connection failure")

// Host is one managed node. Flags are written by the host's own loops and
// read by everyone else.
type Host struct {
	name   string
	runner remote.Runner
	log    *log.Entry

	connected  atomic.Bool
	clStatus   atomic.Bool
	drbdStatus atomic.Bool
	drbdLoaded atomic.Bool

	stack   atomic.Pointer[hwinfo.Stack]
	devices atomic.Pointer[[]hwinfo.BlockDevice]

	serverStatus *Latch
}

// New creates a disconnected host.
func New(name string, runner remote.Runner, logger *log.Entry) *Host {
	h := &Host{
		name:         name,
		runner:       runner,
		log:          logger.WithField("host", name),
		serverStatus: NewLatch(),
	}
	h.stack.Store(&hwinfo.Stack{})
	h.devices.Store(&[]hwinfo.BlockDevice{})
	return h
}

func (h *Host) Name() string    { return h.name }
func (h *Host) Log() *log.Entry { return h.log }

func (h *Host) IsConnected() bool       { return h.connected.Load() }
func (h *Host) SetConnected(v bool)     { h.connected.Store(v) }
func (h *Host) ClStatus() bool          { return h.clStatus.Load() }
func (h *Host) SetClStatus(v bool)      { h.clStatus.Store(v) }
func (h *Host) DrbdStatus() bool        { return h.drbdStatus.Load() }
func (h *Host) SetDrbdStatus(v bool)    { h.drbdStatus.Store(v) }
func (h *Host) IsDrbdLoaded() bool      { return h.drbdLoaded.Load() }
func (h *Host) SetDrbdLoaded(v bool)    { h.drbdLoaded.Store(v) }
func (h *Host) Stack() hwinfo.Stack     { return *h.stack.Load() }
func (h *Host) SetStack(s hwinfo.Stack) { h.stack.Store(&s) }

// IsClusterStackRunning reports whether heartbeat, corosync or openais runs.
func (h *Host) IsClusterStackRunning() bool { return h.Stack().Running() }

func (h *Host) IsCommLayerStarting() bool { return h.Stack().Starting }
func (h *Host) IsCommLayerStopping() bool { return h.Stack().Stopping }

// IsPacemaker reports whether the host runs pacemaker rather than bare heartbeat.
func (h *Host) IsPacemaker() bool { return h.Stack().Pacemaker != "" }

// BlockDevices returns the last reported block devices. The slice must not be
// modified.
func (h *Host) BlockDevices() []hwinfo.BlockDevice { return *h.devices.Load() }

// ApplyHardware stores a parsed hardware report. Sections missing from the
// report leave the previous values in place.
func (h *Host) ApplyHardware(info hwinfo.Info) {
	if info.BlockDevices != nil {
		devs := append([]hwinfo.BlockDevice(nil), info.BlockDevices...)
		h.devices.Store(&devs)
	}
	if info.HasStack {
		h.SetStack(info.Stack)
	}
	if info.HasDrbd {
		h.SetDrbdLoaded(info.DrbdLoaded)
	}
	for _, w := range info.Warnings {
		h.log.Warnf("unparsed hardware line: %q", w)
	}
}

// ServerStatusLatch is released after the first server status cycle.
func (h *Host) ServerStatusLatch() *Latch { return h.serverStatus }

// Run executes cmd on the host.
func (h *Host) Run(ctx context.Context, cmd remote.Command) remote.Result {
	return h.runner.Run(ctx, cmd)
}

// Stream executes a streaming command on the host.
func (h *Host) Stream(ctx context.Context, cmd remote.Command, fn func(remote.Event)) {
	h.runner.Stream(ctx, cmd, fn)
}

// Reconnect asks the transport to dial again on the next command.
func (h *Host) Reconnect() error {
	if err := h.runner.Reconnect(); err != nil {
		return fmt.Errorf("reconnecting %s: %w", h.name, err)
	}
	return nil
}

// Probe runs cmd and records the outcome in the connected flag. A failed
// probe requests a reconnect.
func (h *Host) Probe(ctx context.Context, cmd remote.Command) bool {
	res := h.runner.Run(ctx, cmd)
	if res.OK() {
		h.SetConnected(true)
		return true
	}
	if err := h.Reconnect(); err != nil {
		h.log.WithError(err).Debug("reconnect request failed")
	}
	h.SetConnected(false)
	return false
}

func (h *Host) Close() error { return h.runner.Close() }

func (h *Host) String() string { return h.name }

// Latch is a one-shot countdown latch.
type Latch struct {
	once sync.Once
	ch   chan struct{}
}

func NewLatch() *Latch { return &Latch{ch: make(chan struct{})} }

// CountDown releases the latch. Later calls do nothing.
func (l *Latch) CountDown() { l.once.Do(func() { close(l.ch) }) }

// Done is closed once the latch is released.
func (l *Latch) Done() <-chan struct{} { return l.ch }

// Released reports whether CountDown was called.
func (l *Latch) Released() bool {
	select {
	case <-l.ch:
		return true
	default:
		return false
	}
}

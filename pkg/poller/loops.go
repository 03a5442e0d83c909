package poller

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"

	"clusterwatch/pkg/crm"
	"clusterwatch/pkg/drbd"
	"clusterwatch/pkg/host"
	"clusterwatch/pkg/hwinfo"
	"clusterwatch/pkg/remote"
	"clusterwatch/pkg/vm"
)

// connectionLoop probes the host until the process shuts down.
func (s *Supervisor) connectionLoop(ctx context.Context, h *host.Host) {
	for {
		up := h.Probe(ctx, s.cmd(CmdProbe))
		s.metrics.Connected(h.Name(), up)
		if !sleep(ctx, s.clock, s.iv.Connection) {
			return
		}
	}
}

// clusterLoop streams the cluster status of h and processes every complete
// frame.
func (s *Supervisor) clusterLoop(ctx context.Context, h *host.Host) {
	logger := h.Log().WithField("loop", "cluster")
	for !s.cluster.stopped.Load() {
		var buf crm.FrameBuffer
		h.Stream(ctx, s.cmd(CmdClusterStatus), func(ev remote.Event) {
			switch ev := ev.(type) {
			case remote.Chunk:
				if f, ok := buf.Write(ev.Text); ok {
					s.processFrame(h, f, logger)
				}
			case remote.Failure:
				if ctx.Err() != nil {
					return
				}
				s.clusterCommandFailed(h, ev, logger)
			}
		})
		s.firstCluster.CountDown()
		if !sleep(ctx, s.clock, s.iv.CrmRetry) {
			return
		}
	}
}

func (s *Supervisor) processFrame(h *host.Host, f crm.Frame, logger *log.Entry) {
	defer s.metrics.Frame(h.Name(), f.Kind.String())
	s.store.WithClusterStatusLock(func() {
		switch f.Kind {
		case crm.FrameStopped:
			logger.Info("cluster stack is stopped")
		case crm.FrameError:
			s.store.SetClusterStatus(s.store.ClusterStatus().WithNodeOffline(h.Name()))
			h.SetClStatus(false)
		default:
			cs, err := s.parser.Parse(f.Text)
			if err != nil {
				logger.WithError(err).Warn("dropping cluster status frame")
				return
			}
			s.store.SetClusterStatus(cs)
			s.publish(s.reconciler.Services(cs))
			for _, other := range s.hosts {
				other.SetClStatus(cs.IsOnline(other.Name()))
			}
		}
	})
}

func (s *Supervisor) clusterCommandFailed(h *host.Host, ev remote.Failure, logger *log.Entry) {
	s.metrics.CommandFailed(h.Name(), CmdClusterStatus, ev.ExitCode)
	entry := logger.WithError(ev.Err).WithField("exit_code", ev.ExitCode)
	if ev.ExitCode == remote.ExitConnectionLost {
		entry.Warn("cluster status failed, connection may be lost")
	} else {
		entry.Warn("cluster status failed")
	}
	s.store.WithClusterStatusLock(func() {
		cs := s.store.ClusterStatus()
		next := cs.WithNodeOffline(h.Name())
		// a failing peer says nothing about the DC
		if strings.EqualFold(h.Name(), cs.DC()) {
			next = next.WithoutDC()
		}
		s.store.SetClusterStatus(next)
		h.SetClStatus(false)
	})
}

// drbdLoop streams DRBD events of h. Between runs it waits until the host is
// connected and the DRBD module is loaded.
func (s *Supervisor) drbdLoop(ctx context.Context, h *host.Host) {
	logger := h.Log().WithField("loop", "drbd")
	for !s.drbdStatus.stopped.Load() {
		var lines lineBuffer
		h.Stream(ctx, s.cmd(CmdDrbdEvents), func(ev remote.Event) {
			switch ev := ev.(type) {
			case remote.Chunk:
				for _, line := range lines.Write(ev.Text) {
					s.drbdLine(h, line, logger)
				}
			case remote.Success:
				if rest := lines.Flush(); rest != "" {
					s.drbdLine(h, rest, logger)
				}
			case remote.Failure:
				if ctx.Err() != nil {
					return
				}
				s.drbdCommandFailed(h, ev, logger)
			}
		})
		s.firstDrbd.CountDown()

		for waited := false; !waited || !(h.IsConnected() && h.IsDrbdLoaded()); waited = true {
			if !sleep(ctx, s.clock, s.iv.DrbdWait) || s.drbdStatus.stopped.Load() {
				return
			}
		}
	}
}

func (s *Supervisor) drbdLine(h *host.Host, line string, logger *log.Entry) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	if line == drbd.NotLoaded {
		h.SetDrbdStatus(false)
		return
	}
	h.SetDrbdStatus(true)

	ev, ok := drbd.ParseEvent(line).(*drbd.Event)
	if !ok {
		logger.WithField("line", line).Debug("unparsed drbd event")
		return
	}
	s.store.WithDrbdLock(func() {
		next, changed := s.store.Drbd().ApplyEvent(h.Name(), ev)
		if !changed {
			return
		}
		s.store.SetDrbd(next)
		s.metrics.DrbdEvent(h.Name())
		s.publish(s.reconciler.Drbd(next, s.hostNames()))
	})
}

func (s *Supervisor) drbdCommandFailed(h *host.Host, ev remote.Failure, logger *log.Entry) {
	entry := logger.WithError(ev.Err).WithField("exit_code", ev.ExitCode)
	switch ev.ExitCode {
	case remote.ExitKilled, remote.ExitNullExit:
		entry.Debug("drbd status stopped")
	case remote.ExitConnectionLost:
		s.metrics.CommandFailed(h.Name(), CmdDrbdEvents, ev.ExitCode)
		entry.Warn("drbd status failed, connection may be lost")
	default:
		s.metrics.CommandFailed(h.Name(), CmdDrbdEvents, ev.ExitCode)
		h.SetDrbdStatus(false)
		entry.Warn("drbd status failed")
	}
}

// serverStatusLoop refreshes hardware, DRBD configuration and VMs of h.
func (s *Supervisor) serverStatusLoop(ctx context.Context, h *host.Host) {
	for count := 0; !s.serverStatus.stopped.Load(); count++ {
		s.refreshHardware(ctx, h, count%s.iv.FullRefreshEvery == 0)
		s.drbdGraph.AddHost(h.Name(), h.BlockDevices())
		s.publish(s.reconciler.BlockDevices(s.blockDevices()))

		s.store.TryDrbdLock(func() {
			if _, err := s.refreshDrbdConfigs(ctx, false); err != nil && ctx.Err() == nil {
				h.Log().WithError(err).Warn("drbd config refresh failed")
			}
		})
		s.refreshVMs(ctx, h)
		h.ServerStatusLatch().CountDown()

		if !sleep(ctx, s.clock, s.iv.ServerStatus) {
			return
		}
	}
}

func (s *Supervisor) refreshHardware(ctx context.Context, h *host.Host, full bool) {
	name := CmdHWInfoLazy
	if full {
		name = CmdHWInfo
	}
	res := h.Run(ctx, s.cmd(name))
	if !res.OK() {
		if ctx.Err() == nil {
			h.Log().WithError(res.Err).WithField("exit_code", res.ExitCode).Warn("hardware info not available")
			s.metrics.CommandFailed(h.Name(), name, res.ExitCode)
		}
		return
	}
	h.ApplyHardware(hwinfo.Parse(res.Output))
}

func (s *Supervisor) refreshVMs(ctx context.Context, h *host.Host) {
	res := h.Run(ctx, s.cmd(CmdVMInfo))
	if !res.OK() {
		if ctx.Err() == nil {
			h.Log().WithError(res.Err).Debug("vm info not available")
			s.metrics.CommandFailed(h.Name(), CmdVMInfo, res.ExitCode)
		}
		return
	}
	inv, err := vm.Parse(res.Output)
	if err != nil {
		h.Log().WithError(err).Warn("dropping unparsable vm info")
		return
	}
	s.vms.Put(h.Name(), inv)
	s.publish(s.reconciler.VMs(s.vms.Inventories()))
}

func (s *Supervisor) blockDevices() [][]hwinfo.BlockDevice {
	var out [][]hwinfo.BlockDevice
	for _, h := range s.hosts {
		out = append(out, h.BlockDevices())
	}
	return out
}

// lineBuffer cuts streamed output into lines.
type lineBuffer struct {
	partial string
}

// Write returns the lines completed by chunk.
func (b *lineBuffer) Write(chunk string) []string {
	text := b.partial + chunk
	i := strings.LastIndexByte(text, '\n')
	if i < 0 {
		b.partial = text
		return nil
	}
	b.partial = text[i+1:]
	return strings.Split(text[:i], "\n")
}

// Flush returns the unterminated tail.
func (b *lineBuffer) Flush() string {
	rest := b.partial
	b.partial = ""
	return rest
}

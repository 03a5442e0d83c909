package poller

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"clusterwatch/pkg/drbd"
	"clusterwatch/pkg/host"
	"clusterwatch/storage"
)

const configKeyPrefix = "drbd-config/"

// ConfigCache remembers the last DRBD configuration text seen per host.
type ConfigCache struct {
	st storage.Storage
}

func NewConfigCache(st storage.Storage) *ConfigCache { return &ConfigCache{st: st} }

// Get returns the cached configuration of host.
func (c *ConfigCache) Get(ctx context.Context, host string) (string, bool, error) {
	raw, ok, err := c.st.Get(ctx, configKeyPrefix+host)
	if err != nil {
		return "", false, fmt.Errorf("reading cached drbd config of %s: %w", host, err)
	}
	return string(raw), ok, nil
}

// Swap stores raw for host and reports whether it differs from the cached
// text byte for byte.
func (c *ConfigCache) Swap(ctx context.Context, host, raw string) (bool, error) {
	old, ok, err := c.Get(ctx, host)
	if err != nil {
		return false, err
	}
	if ok && old == raw {
		return false, nil
	}
	if err := c.st.Set(ctx, configKeyPrefix+host, []byte(raw), 0); err != nil {
		return false, fmt.Errorf("caching drbd config of %s: %w", host, err)
	}
	return true, nil
}

// fetchConfigs runs the DRBD config command on every connected host in
// parallel and returns the outputs by host name. Failing hosts are logged
// and left out.
func (s *Supervisor) fetchConfigs(ctx context.Context) (map[string]string, error) {
	var (
		mu  sync.Mutex
		out = map[string]string{}
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, h := range s.hosts {
		if !h.IsConnected() {
			continue
		}
		h := h
		g.Go(func() error {
			res := h.Run(gctx, s.cmd(CmdDrbdConfig))
			if !res.OK() {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				h.Log().WithError(res.Err).WithField("exit_code", res.ExitCode).Warn("drbd config not available")
				s.metrics.CommandFailed(h.Name(), CmdDrbdConfig, res.ExitCode)
				return nil
			}
			mu.Lock()
			out[h.Name()] = res.Output
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// refreshDrbdConfigs fetches all configs and rebuilds the DRBD snapshot when
// any host's text changed. It reports whether a rebuild happened. The caller
// holds the DRBD status lock.
func (s *Supervisor) refreshDrbdConfigs(ctx context.Context, force bool) (bool, error) {
	fetched, err := s.fetchConfigs(ctx)
	if err != nil {
		return false, err
	}
	changed := force
	for name, raw := range fetched {
		c, err := s.configs.Swap(ctx, name, raw)
		if err != nil {
			return false, err
		}
		changed = changed || c
	}
	if !changed {
		return false, nil
	}

	var configs []*drbd.Config
	for _, h := range s.hosts {
		raw, ok := fetched[h.Name()]
		if !ok {
			if raw, ok, err = s.configs.Get(ctx, h.Name()); err != nil {
				return false, err
			}
		}
		if !ok || raw == "" {
			continue
		}
		cfg, err := drbd.ParseConfig(raw)
		if err != nil {
			h.Log().WithError(err).Warn("ignoring unparsable drbd config")
			continue
		}
		configs = append(configs, cfg)
	}
	snap := drbd.Build(configs, s.store.Drbd())
	s.store.SetDrbd(snap)
	s.publish(s.reconciler.Drbd(snap, s.hostNames()))
	return true, nil
}

func (s *Supervisor) hostNames() []string {
	names := make([]string, 0, len(s.hosts))
	for _, h := range s.hosts {
		names = append(names, h.Name())
	}
	return names
}

func connectedHosts(hosts []*host.Host) []*host.Host {
	var out []*host.Host
	for _, h := range hosts {
		if h.IsConnected() {
			out = append(out, h)
		}
	}
	return out
}

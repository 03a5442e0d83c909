// Package poller runs the per-host status loops and the startup sequence
// that feeds them.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go"
	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"

	"clusterwatch/pkg/crm"
	"clusterwatch/pkg/graph"
	"clusterwatch/pkg/host"
	"clusterwatch/pkg/index"
	"clusterwatch/pkg/layout"
	"clusterwatch/pkg/metrics"
	"clusterwatch/pkg/reconcile"
	"clusterwatch/pkg/remote"
	"clusterwatch/pkg/status"
)

var (
	// ErrStopTimeout is returned when loops did not finish within the stop
	// bound.
	ErrStopTimeout = errors.New("poller: timed out waiting for loops to stop")
	// ErrNoHostConnected is the retry reason while no host is reachable.
	ErrNoHostConnected = errors.New("poller: no host connected")
	// ErrNoLayoutStore is returned when positions are saved without a
	// layout store.
	ErrNoLayoutStore = errors.New("poller: no layout store configured")
)

// Command names, also used as metric labels.
const (
	CmdProbe         = "probe"
	CmdClusterStatus = "cluster_status"
	CmdDrbdEvents    = "drbd_events"
	CmdDrbdConfig    = "drbd_config"
	CmdHWInfo        = "hw_info"
	CmdHWInfoLazy    = "hw_info_lazy"
	CmdVMInfo        = "vm_info"
	CmdRACatalog     = "ra_catalog"
)

// Commands maps command names to the command lines run on the hosts.
type Commands map[string]string

// Intervals are the loop periods.
type Intervals struct {
	Connection       time.Duration
	ServerStatus     time.Duration
	DrbdWait         time.Duration
	CrmRetry         time.Duration
	FullRefreshEvery int
	ConnectBackoff   time.Duration
	ConnectAttempts  int
	StopTimeout      time.Duration
}

// DefaultIntervals are the periods used when none are configured.
var DefaultIntervals = Intervals{
	Connection:       10 * time.Second,
	ServerStatus:     10 * time.Second,
	DrbdWait:         10 * time.Second,
	CrmRetry:         5 * time.Second,
	FullRefreshEvery: 5,
	ConnectBackoff:   30 * time.Second,
	ConnectAttempts:  10,
	StopTimeout:      30 * time.Second,
}

// withDefaults fills every zero field from DefaultIntervals.
func (iv Intervals) withDefaults() Intervals {
	d := DefaultIntervals
	if iv.Connection <= 0 {
		iv.Connection = d.Connection
	}
	if iv.ServerStatus <= 0 {
		iv.ServerStatus = d.ServerStatus
	}
	if iv.DrbdWait <= 0 {
		iv.DrbdWait = d.DrbdWait
	}
	if iv.CrmRetry <= 0 {
		iv.CrmRetry = d.CrmRetry
	}
	if iv.FullRefreshEvery <= 0 {
		iv.FullRefreshEvery = d.FullRefreshEvery
	}
	if iv.ConnectBackoff <= 0 {
		iv.ConnectBackoff = d.ConnectBackoff
	}
	if iv.ConnectAttempts <= 0 {
		iv.ConnectAttempts = d.ConnectAttempts
	}
	if iv.StopTimeout <= 0 {
		iv.StopTimeout = d.StopTimeout
	}
	return iv
}

// Options configure a Supervisor. Zero fields get defaults in New.
type Options struct {
	Hosts     []*host.Host
	Commands  Commands
	Intervals Intervals
	Clock     clockwork.Clock
	// Connector brings hosts online during startup. Defaults to probing.
	Connector  host.Connector
	Parser     crm.Parser
	Store      *status.Store
	Elector    *status.Elector
	Reconciler *reconcile.Reconciler
	Catalog    *crm.Catalog
	VMs        *index.VMs
	// ServiceGraph and DrbdGraph are the two resource graphs.
	ServiceGraph *graph.Graph
	DrbdGraph    *graph.Graph
	Configs      *ConfigCache
	Layout       *layout.Store
	Metrics      *metrics.Metrics
	Log          *log.Entry
}

// Supervisor owns the startup sequence and every status loop.
type Supervisor struct {
	hosts        []*host.Host
	commands     Commands
	iv           Intervals
	clock        clockwork.Clock
	connector    host.Connector
	parser       crm.Parser
	store        *status.Store
	elector      *status.Elector
	reconciler   *reconcile.Reconciler
	catalog      *crm.Catalog
	vms          *index.VMs
	serviceGraph *graph.Graph
	drbdGraph    *graph.Graph
	configs      *ConfigCache
	layout       *layout.Store
	metrics      *metrics.Metrics
	log          *log.Entry

	started      atomic.Bool
	connection   *kind
	cluster      *kind
	drbdStatus   *kind
	serverStatus *kind

	firstCluster *host.Latch
	firstDrbd    *host.Latch
	loaded       *host.Latch
}

func New(opts Options) *Supervisor {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	opts.Intervals = opts.Intervals.withDefaults()
	if opts.Parser == nil {
		opts.Parser = crm.TextParser{}
	}
	if opts.Log == nil {
		opts.Log = log.NewEntry(log.StandardLogger())
	}
	if opts.Store == nil {
		opts.Store = status.NewStore()
	}
	if opts.Elector == nil {
		opts.Elector = status.NewElector(opts.Hosts, opts.Store)
	}
	if opts.Catalog == nil {
		opts.Catalog = crm.NewCatalog()
	}
	if opts.VMs == nil {
		opts.VMs = index.NewVMs()
	}
	if opts.ServiceGraph == nil {
		opts.ServiceGraph = graph.New("services")
	}
	if opts.DrbdGraph == nil {
		opts.DrbdGraph = graph.New("drbd")
	}
	if opts.Reconciler == nil {
		opts.Reconciler = reconcile.New(reconcile.Config{
			Services:     index.NewServices(),
			Drbd:         index.NewDrbd(),
			ServiceGraph: opts.ServiceGraph,
			DrbdGraph:    opts.DrbdGraph,
			Log:          opts.Log,
		})
	}
	s := &Supervisor{
		hosts:        opts.Hosts,
		commands:     opts.Commands,
		iv:           opts.Intervals,
		clock:        opts.Clock,
		connector:    opts.Connector,
		parser:       opts.Parser,
		store:        opts.Store,
		elector:      opts.Elector,
		reconciler:   opts.Reconciler,
		catalog:      opts.Catalog,
		vms:          opts.VMs,
		serviceGraph: opts.ServiceGraph,
		drbdGraph:    opts.DrbdGraph,
		configs:      opts.Configs,
		layout:       opts.Layout,
		metrics:      opts.Metrics,
		log:          opts.Log.WithField("component", "poller"),
		firstCluster: host.NewLatch(),
		firstDrbd:    host.NewLatch(),
		loaded:       host.NewLatch(),
	}
	if s.connector == nil {
		s.connector = &host.ProbeConnector{
			Hosts:       s.hosts,
			Probe:       s.cmd(CmdProbe),
			MaxAttempts: s.iv.ConnectAttempts,
		}
	}
	return s
}

func (s *Supervisor) cmd(name string) remote.Command {
	return remote.Command{Name: name, Line: s.commands[name]}
}

func (s *Supervisor) Store() *status.Store              { return s.store }
func (s *Supervisor) Elector() *status.Elector          { return s.elector }
func (s *Supervisor) Reconciler() *reconcile.Reconciler { return s.reconciler }
func (s *Supervisor) Catalog() *crm.Catalog             { return s.catalog }
func (s *Supervisor) Hosts() []*host.Host               { return s.hosts }

// Loaded is closed once every host finished its first server status cycle.
func (s *Supervisor) Loaded() <-chan struct{} { return s.loaded.Done() }

// FirstClusterStatus is closed after the first cluster status cycle.
func (s *Supervisor) FirstClusterStatus() <-chan struct{} { return s.firstCluster.Done() }

// FirstDrbdStatus is closed after the first DRBD status cycle.
func (s *Supervisor) FirstDrbdStatus() <-chan struct{} { return s.firstDrbd.Done() }

// Start waits for a connected host, loads the initial state and launches
// the loops. The loops run until ctx ends or they are stopped.
func (s *Supervisor) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("poller: already started")
	}
	if len(s.hosts) == 0 {
		return fmt.Errorf("%w: no hosts configured", ErrNoHostConnected)
	}
	if err := s.waitForFirstHost(ctx); err != nil {
		return err
	}

	first := host.AnyConnected(s.hosts)
	s.log.WithField("host", first.Name()).Info("first host connected, loading initial state")
	s.loadCatalog(ctx, first)
	for _, h := range connectedHosts(s.hosts) {
		s.refreshHardware(ctx, h, true)
		s.drbdGraph.AddHost(h.Name(), h.BlockDevices())
	}
	s.publish(s.reconciler.BlockDevices(s.blockDevices()))

	var err error
	s.store.WithDrbdLock(func() {
		_, err = s.refreshDrbdConfigs(ctx, true)
	})
	if err != nil {
		return fmt.Errorf("loading drbd configuration: %w", err)
	}

	s.connection = newKind(ctx, "connection")
	s.cluster = newKind(ctx, "cluster status")
	s.drbdStatus = newKind(ctx, "drbd status")
	s.serverStatus = newKind(ctx, "server status")
	for _, h := range s.hosts {
		h := h
		s.connection.goLoop(func(ctx context.Context) { s.connectionLoop(ctx, h) })
		s.serverStatus.goLoop(func(ctx context.Context) { s.serverStatusLoop(ctx, h) })
		s.drbdStatus.goLoop(func(ctx context.Context) { s.drbdLoop(ctx, h) })
		s.cluster.goLoop(func(ctx context.Context) { s.clusterLoop(ctx, h) })
	}
	go s.watchLoaded(ctx)
	return nil
}

// waitForFirstHost retries the connector until a host is connected.
func (s *Supervisor) waitForFirstHost(ctx context.Context) error {
	attempt := 0
	var permanent error
	err := retry.Do(
		func() error {
			if host.AnyConnected(s.hosts) != nil {
				return nil
			}
			attempt++
			if err := s.connector.Connect(ctx, attempt); err != nil {
				if errors.Is(err, host.ErrPermanent) {
					permanent = err
					return retry.Unrecoverable(err)
				}
				s.log.WithError(err).Warn("connection attempt failed")
			}
			if host.AnyConnected(s.hosts) != nil {
				return nil
			}
			return ErrNoHostConnected
		},
		retry.Context(ctx),
		retry.Attempts(uint(s.iv.ConnectAttempts)+1),
		retry.Delay(s.iv.ConnectBackoff),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			s.log.WithField("attempt", n+1).Debug("waiting for a connected host")
		}),
	)
	switch {
	case permanent != nil:
		return fmt.Errorf("startup: %w", permanent)
	case err != nil:
		return fmt.Errorf("startup: %w", err)
	}
	return nil
}

func (s *Supervisor) loadCatalog(ctx context.Context, h *host.Host) {
	res := h.Run(ctx, s.cmd(CmdRACatalog))
	if !res.OK() {
		h.Log().WithError(res.Err).Warn("resource agent catalog not available")
		s.metrics.CommandFailed(h.Name(), CmdRACatalog, res.ExitCode)
		return
	}
	for _, line := range s.catalog.Load(res.Output) {
		h.Log().Debugf("skipped catalog line %q", line)
	}
	h.Log().WithField("agents", s.catalog.Len()).Info("resource agent catalog loaded")
}

// watchLoaded waits for the first server status of every host.
func (s *Supervisor) watchLoaded(ctx context.Context) {
	for _, h := range s.hosts {
		select {
		case <-ctx.Done():
			return
		case <-h.ServerStatusLatch().Done():
		}
	}
	s.loaded.CountDown()
	s.log.Info("all hosts loaded")
}

// StopClusterStatus stops the cluster status loops of every host and waits
// for them, bounded by ctx and the configured stop timeout.
func (s *Supervisor) StopClusterStatus(ctx context.Context) error {
	if s.cluster == nil {
		return nil
	}
	return s.cluster.stop(ctx, s.clock, s.iv.StopTimeout)
}

// StopDrbdStatus stops the DRBD status loops like StopClusterStatus.
func (s *Supervisor) StopDrbdStatus(ctx context.Context) error {
	if s.drbdStatus == nil {
		return nil
	}
	return s.drbdStatus.stop(ctx, s.clock, s.iv.StopTimeout)
}

// CancelServerStatus makes the server status loops end after their current
// iteration.
func (s *Supervisor) CancelServerStatus() {
	if s.serverStatus != nil {
		s.serverStatus.stopped.Store(true)
	}
}

// Wait blocks until every loop returned.
func (s *Supervisor) Wait() {
	for _, k := range []*kind{s.connection, s.cluster, s.drbdStatus, s.serverStatus} {
		if k != nil {
			<-k.done()
		}
	}
}

// SaveGraphPositions stores the node positions of both graphs for every
// host. Nothing is saved while the DRBD graph has no positions.
func (s *Supervisor) SaveGraphPositions(ctx context.Context) error {
	if s.layout == nil {
		return ErrNoLayoutStore
	}
	drbdPos := s.drbdGraph.Positions()
	if len(drbdPos) == 0 {
		return nil
	}
	all := make(map[string]graph.Position, len(drbdPos))
	for id, p := range s.serviceGraph.Positions() {
		all["service:"+id] = p
	}
	for id, p := range drbdPos {
		all["drbd:"+id] = p
	}
	for _, h := range s.hosts {
		if err := s.layout.Save(ctx, h.Name(), all); err != nil {
			return err
		}
	}
	return nil
}

func (s *Supervisor) publish(b reconcile.Batch) {
	if !b.Empty() {
		s.metrics.Batch(string(b.Category))
	}
}

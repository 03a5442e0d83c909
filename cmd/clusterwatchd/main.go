package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"

	"clusterwatch/config"
	"clusterwatch/pkg/host"
	"clusterwatch/pkg/layout"
	"clusterwatch/pkg/metrics"
	"clusterwatch/pkg/poller"
	"clusterwatch/pkg/remote"
	"clusterwatch/pkg/server"
	"clusterwatch/storage"
)

var (
	configPath = flag.String("config", "", "Path to configuration file")
	dataDir    = flag.String("data-dir", "", "Data directory")
	port       = flag.Int("port", 0, "gRPC server port")
	bindHost   = flag.String("host", "", "gRPC server host")
	logLevel   = flag.String("log-level", "", "Log level")
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Override config with command line flags
	if *dataDir != "" {
		cfg.Storage.DataDir = *dataDir
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *bindHost != "" {
		cfg.Server.Host = *bindHost
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	logger := log.StandardLogger()
	if err := cfg.Logging.Apply(logger); err != nil {
		log.Fatalf("Invalid logging configuration: %v", err)
	}
	entry := log.NewEntry(logger).WithField("cluster", cfg.Cluster.Name)
	if len(cfg.Cluster.Hosts) == 0 {
		entry.Fatal("no hosts configured")
	}

	// Initialize storage
	store, err := storage.Open(cfg.Storage.Backend, cfg.Storage.DataDir)
	if err != nil {
		entry.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	hosts, err := newHosts(cfg, entry)
	if err != nil {
		entry.Fatalf("Failed to prepare hosts: %v", err)
	}
	defer func() {
		for _, h := range hosts {
			h.Close()
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	sup := poller.New(poller.Options{
		Hosts:     hosts,
		Commands:  pollerCommands(cfg.Commands),
		Intervals: pollerIntervals(cfg),
		Configs:   poller.NewConfigCache(store),
		Layout:    layout.NewStore(store),
		Metrics:   metrics.New(reg),
		Log:       entry,
	})
	srv := server.NewServer(cfg, sup, reg, entry)

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		entry.Info("received shutdown signal")
		cancel()
	}()

	srvErr := make(chan error, 1)
	go func() { srvErr <- srv.Start(ctx) }()

	if err := sup.Start(ctx); err != nil {
		entry.WithError(err).Error("startup failed")
		cancel()
		<-srvErr
		os.Exit(1)
	}
	go func() {
		<-sup.Loaded()
		entry.Info("initial state loaded")
	}()

	if err := <-srvErr; err != nil {
		entry.WithError(err).Error("server error")
		cancel()
	}
	shutdown(sup, cfg.Poller.StopTimeout, entry)
	entry.Info("clusterwatchd stopped")
}

func newHosts(cfg *config.Config, logger *log.Entry) ([]*host.Host, error) {
	hosts := make([]*host.Host, 0, len(cfg.Cluster.Hosts))
	for _, hc := range cfg.Cluster.Hosts {
		runner, err := remote.NewSSHRunner(remote.SSHConfig{
			Address:        hc.Address,
			Port:           hc.Port,
			User:           hc.User,
			KeyFile:        cfg.SSH.KeyFile,
			KnownHostsFile: cfg.SSH.KnownHosts,
			Timeout:        cfg.SSH.Timeout,
		}, logger.WithField("host", hc.Name))
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, host.New(hc.Name, runner, logger))
	}
	return hosts, nil
}

func pollerCommands(c config.CommandsConfig) poller.Commands {
	return poller.Commands{
		poller.CmdProbe:         c.Probe,
		poller.CmdClusterStatus: c.ClusterStatus,
		poller.CmdDrbdEvents:    c.DrbdEvents,
		poller.CmdDrbdConfig:    c.DrbdConfig,
		poller.CmdHWInfo:        c.HWInfo,
		poller.CmdHWInfoLazy:    c.HWInfoLazy,
		poller.CmdVMInfo:        c.VMInfo,
		poller.CmdRACatalog:     c.RACatalog,
	}
}

func pollerIntervals(cfg *config.Config) poller.Intervals {
	return poller.Intervals{
		Connection:       cfg.Intervals.Connection,
		ServerStatus:     cfg.Intervals.ServerStatus,
		DrbdWait:         cfg.Intervals.DrbdWait,
		CrmRetry:         cfg.Intervals.CrmRetry,
		FullRefreshEvery: cfg.Intervals.FullRefreshEvery,
		ConnectBackoff:   cfg.Startup.ConnectBackoff,
		ConnectAttempts:  cfg.Startup.ConnectAttempts,
		StopTimeout:      cfg.Poller.StopTimeout,
	}
}

// shutdown stops the status loops and waits for every loop to return.
func shutdown(sup *poller.Supervisor, timeout time.Duration, logger *log.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	sup.CancelServerStatus()
	if err := sup.StopClusterStatus(ctx); err != nil {
		logger.WithError(err).Warn("cluster status loops did not stop")
	}
	if err := sup.StopDrbdStatus(ctx); err != nil {
		logger.WithError(err).Warn("drbd status loops did not stop")
	}

	done := make(chan struct{})
	go func() {
		sup.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logger.Warn("timed out waiting for status loops")
	}
}

// Package server publishes the watcher state to observers over gRPC and a
// small HTTP endpoint for metrics and health.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"

	"clusterwatch/config"
)

const shutdownTimeout = 30 * time.Second

// Server represents the gRPC and HTTP listeners
type Server struct {
	config  *config.Config
	grpc    *grpc.Server
	http    *http.Server
	hub     *Hub
	service *StatusService
	log     *log.Entry
}

// NewServer creates a new server instance. Tree batches of the backend are
// forwarded to watch subscribers from here on.
func NewServer(cfg *config.Config, backend Backend, gatherer prometheus.Gatherer, logger *log.Entry) *Server {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	opts := []grpc.ServerOption{
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle: 15 * time.Minute,
			Time:              30 * time.Second,
			Timeout:           5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             10 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.MaxRecvMsgSize(4 * 1024 * 1024),
		grpc.MaxSendMsgSize(16 * 1024 * 1024),
	}

	s := &Server{
		config: cfg,
		grpc:   grpc.NewServer(opts...),
		hub:    NewHub(64, logger),
		log:    logger.WithField("component", "server"),
	}
	s.service = NewStatusService(backend, s.hub, logger)
	RegisterStatusServer(s.grpc, s.service)
	backend.Reconciler().Tree().Subscribe(s.hub.Publish)

	if cfg.Metrics.Enabled {
		s.http = &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Metrics.Host, cfg.Metrics.Port),
			Handler:           NewHTTPHandler(backend, gatherer, cfg.Metrics.Path, s.log),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}
	return s
}

// Hub returns the watch fan-out.
func (s *Server) Hub() *Hub { return s.hub }

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	s.log.WithField("address", address).Info("starting gRPC server")

	errCh := make(chan error, 2)
	go func() {
		if err := s.grpc.Serve(listener); err != nil {
			errCh <- fmt.Errorf("grpc: %w", err)
		}
	}()
	if s.http != nil {
		s.log.WithField("address", s.http.Addr).Info("starting HTTP server")
		go func() {
			if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-errCh:
		s.Stop()
		return err
	}
}

// Stop stops the server gracefully
func (s *Server) Stop() error {
	s.log.Info("stopping server")
	s.hub.Close()

	var httpErr error
	if s.http != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		httpErr = s.http.Shutdown(ctx)
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("server stopped gracefully")
	case <-time.After(shutdownTimeout):
		s.log.Warn("force stopping server")
		s.grpc.Stop()
	}
	return httpErr
}

// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-authenticator.
//
// go-authenticator is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package server assembles the authenticator from its parts and runs it:
// storage, command engine, protocol handler, transport, and the optional
// metrics listener, with graceful shutdown on signal.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jeremyhahn/go-authenticator/internal/config"
	"github.com/jeremyhahn/go-authenticator/pkg/authenticator"
	"github.com/jeremyhahn/go-authenticator/pkg/clock"
	"github.com/jeremyhahn/go-authenticator/pkg/ctap"
	"github.com/jeremyhahn/go-authenticator/pkg/hid"
	"github.com/jeremyhahn/go-authenticator/pkg/logging"
	"github.com/jeremyhahn/go-authenticator/pkg/metrics"
	"github.com/jeremyhahn/go-authenticator/pkg/presence"
	"github.com/jeremyhahn/go-authenticator/pkg/storage"
	"github.com/jeremyhahn/go-authenticator/pkg/storage/file"
	"github.com/jeremyhahn/go-authenticator/pkg/transport"
	"github.com/jeremyhahn/go-authenticator/pkg/transport/uhid"
	"github.com/jeremyhahn/go-authenticator/pkg/u2f"
)

const (
	// recvPoll bounds each transport wait so the run loop can observe
	// shutdown between packets.
	recvPoll = 100 * time.Millisecond

	// sendTimeout bounds delivery of a single response packet.
	sendTimeout = time.Second

	// shutdownTimeout bounds the whole drain on Shutdown.
	shutdownTimeout = 10 * time.Second
)

// Server runs the authenticator device: one run loop pumping packets
// between the transport and the protocol handler, plus the Prometheus
// listener when metrics are enabled.
type Server struct {
	config *config.Config
	mu     sync.RWMutex
	logger *logging.Logger

	store    storage.Backend
	engine   *ctap.Engine
	handler  *authenticator.Handler
	conn     transport.Connection
	hostConn transport.Connection

	// Metrics
	metricsServer    *http.Server
	metricsCollector *metrics.ResourceCollector

	// Lifecycle
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	shutdownCh chan struct{}
}

// New creates a server from the given configuration. The transport is
// opened and the device registered with the host before New returns, so
// a failed uhid open surfaces here rather than in the run loop.
func New(cfg *config.Config) (*Server, error) {
	logger := setupLogger(cfg.Logging)

	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		config:     cfg,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		shutdownCh: make(chan struct{}),
	}

	if err := s.initializeStorage(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := s.initializeTransport(); err != nil {
		cancel()
		s.closeStore()
		return nil, fmt.Errorf("failed to initialize transport: %w", err)
	}

	if err := s.initializeDevice(); err != nil {
		cancel()
		s.conn.Close()
		s.closeStore()
		return nil, fmt.Errorf("failed to initialize device: %w", err)
	}

	return s, nil
}

// setupLogger configures the logger based on config
func setupLogger(cfg config.LoggingConfig) *logging.Logger {
	return logging.New(cfg.Level, cfg.Format, os.Stdout)
}

// initializeStorage opens the configured backend and claims it for this
// process.
func (s *Server) initializeStorage() error {
	var backend storage.Backend
	switch s.config.Storage.Backend {
	case "file":
		fs, err := file.New(s.config.Storage.Path)
		if err != nil {
			return fmt.Errorf("failed to open file storage at %s: %w", s.config.Storage.Path, err)
		}
		backend = fs
	default:
		backend = storage.NewMemory()
	}

	s.store = storage.Take(backend)
	s.logger.Info("Storage initialized",
		"backend", s.config.Storage.Backend,
		"path", s.config.Storage.Path)
	return nil
}

// initializeTransport opens the packet stream the device serves. The pipe
// backend keeps the host end reachable through HostConn for in-process
// hosts.
func (s *Server) initializeTransport() error {
	switch s.config.Transport.Backend {
	case "pipe":
		device, host := transport.Pipe()
		s.conn = device
		s.hostConn = host
		s.logger.Info("Transport initialized", "backend", "pipe")
	default:
		dev, err := uhid.Open(uhid.Config{
			Path:      s.config.Transport.UHIDPath,
			Name:      s.config.Device.Name,
			VendorID:  uint32(s.config.Device.VendorID),
			ProductID: uint32(s.config.Device.ProductID),
			Logger:    s.logger,
		})
		if err != nil {
			return fmt.Errorf("failed to open uhid device: %w", err)
		}
		s.conn = dev
		s.logger.Info("Transport initialized",
			"backend", "uhid",
			"path", s.config.Transport.UHIDPath,
			"name", s.config.Device.Name)
	}
	return nil
}

// initializeDevice wires clock, presence, command engine, and protocol
// handler together. Must run after storage and transport are up.
func (s *Server) initializeDevice() error {
	clk := clock.NewSys(s.config.Clock.FrequencyHz)

	coordinator := presence.NewCoordinator(presence.Config{
		Clock:          clk,
		Conn:           s.conn,
		UI:             s.presenceUI(clk),
		TotalTimeout:   time.Duration(s.config.Presence.TotalTimeoutMS) * time.Millisecond,
		KeepaliveDelay: time.Duration(s.config.Presence.KeepaliveDelayMS) * time.Millisecond,
		Logger:         s.logger,
	})

	var pinned uuid.UUID
	if s.config.Device.AAGUID != "" {
		var err error
		pinned, err = uuid.Parse(s.config.Device.AAGUID)
		if err != nil {
			return fmt.Errorf("failed to parse device aaguid: %w", err)
		}
	}

	engine, err := ctap.NewEngine(ctap.Config{
		Store:         s.store,
		Presence:      coordinator,
		Clock:         clk,
		LegacyEnabled: s.config.Legacy.Enabled,
		AAGUID:        pinned,
		Logger:        s.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create command engine: %w", err)
	}
	s.engine = engine

	bridge := u2f.Disabled()
	if s.config.Legacy.Enabled {
		bridge = u2f.NewBridge()
	}

	handler, err := authenticator.NewHandler(authenticator.Config{
		Clock:     clk,
		Bridge:    bridge,
		Processor: engine,
		Version: hid.DeviceVersion{
			Major: byte(s.config.Device.VersionMajor),
			Minor: byte(s.config.Device.VersionMinor),
			Build: byte(s.config.Device.VersionBuild),
		},
		MessageTimeout: time.Duration(s.config.Device.MessageTimeoutMS) * time.Millisecond,
		WinkDuration:   time.Duration(s.config.Device.WinkDurationMS) * time.Millisecond,
		Logger:         s.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create protocol handler: %w", err)
	}
	s.handler = handler

	s.logger.Info("Device initialized",
		"aaguid", engine.AAGUID().String(),
		"legacy", s.config.Legacy.Enabled,
		"capabilities", fmt.Sprintf("0x%02x", byte(handler.Capabilities())))
	return nil
}

// presenceUI selects the user-presence source for this deployment. A
// virtual device has no button, so presence is either granted after a
// configured delay or denied outright.
func (s *Server) presenceUI(clk clock.Clock) presence.UserInterface {
	switch s.config.Presence.Mode {
	case "deny":
		return presence.Deny()
	default:
		delay := time.Duration(s.config.Presence.AutoConfirmDelayMS) * time.Millisecond
		return presence.AutoConfirm(clk, delay)
	}
}

// Start launches the run loop and, when enabled, the metrics listener.
// It returns immediately; use WaitForShutdown to block.
func (s *Server) Start() error {
	s.logger.Info("Starting authenticator server...")

	if s.config.Metrics.Enabled {
		if err := s.initializeMetrics(); err != nil {
			return fmt.Errorf("failed to initialize metrics: %w", err)
		}
	}

	s.wg.Add(1)
	go s.runDevice()

	if s.config.Metrics.Enabled {
		s.wg.Add(1)
		go s.startMetrics()
	}

	s.logger.Info("Authenticator started",
		"transport", s.config.Transport.Backend,
		"device", s.config.Device.Name)

	return nil
}

// runDevice is the device loop: receive a packet, process it, send the
// responses. The protocol stack is confined to this goroutine.
func (s *Server) runDevice() {
	defer s.wg.Done()

	winkOn := false

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Info("Device loop stopping")
			return
		default:
		}

		pkt, err := s.conn.Recv(recvPoll)
		if err != nil {
			if errors.Is(err, transport.ErrTimeout) {
				winkOn = s.driveWink(winkOn)
				continue
			}
			if errors.Is(err, transport.ErrClosed) {
				s.logger.Info("Transport closed, device loop stopping")
				return
			}
			s.logger.Errorf("transport receive: %v", err)
			return
		}

		metrics.RecordPacket(metrics.DirectionIn)

		out, err := s.handler.ProcessPacket(s.ctx, pkt)
		if err != nil {
			s.logger.Errorf("process packet: %v", err)
			continue
		}

		for i := range out {
			if err := s.conn.Send(&out[i], sendTimeout); err != nil {
				s.logger.Errorf("transport send: %v", err)
				break
			}
			metrics.RecordPacket(metrics.DirectionOut)
		}

		winkOn = s.driveWink(winkOn)
	}
}

// driveWink surfaces the wink permission as log transitions. Hardware
// would blink an LED; a virtual device tells the operator instead.
func (s *Server) driveWink(was bool) bool {
	now := s.handler.ShouldWink()
	if now != was {
		if now {
			s.logger.Info("Host requested attention", "wink", "on")
		} else {
			s.logger.Debug("Wink window ended", "wink", "off")
		}
	}
	return now
}

// initializeMetrics enables collection and builds the scrape listener.
// The http.Server is constructed here, before any goroutine starts, so
// Shutdown can reach it without a race.
func (s *Server) initializeMetrics() error {
	s.logger.Info("Initializing metrics...")

	metrics.Enable()

	s.metricsCollector = metrics.StartResourceCollector(s.ctx, 30*time.Second)

	mux := http.NewServeMux()
	mux.Handle(s.config.Metrics.Path, promhttp.Handler())
	s.metricsServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Metrics.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second, // Prevent Slowloris attacks
	}

	s.logger.Info("Metrics initialized successfully")
	return nil
}

// startMetrics serves the Prometheus scrape endpoint.
func (s *Server) startMetrics() {
	defer s.wg.Done()

	s.logger.Info("Starting metrics server",
		"address", s.metricsServer.Addr,
		"path", s.config.Metrics.Path)

	if err := s.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.logger.Errorf("metrics server: %v", err)
	}
}

// Shutdown stops the run loop, the metrics listener, and the storage
// backend, waiting up to shutdownTimeout for everything to drain.
func (s *Server) Shutdown() error {
	s.logger.Info("Shutting down server...")

	if s.metricsCollector != nil {
		s.metricsCollector.Stop()
	}

	// Cancel context to signal all goroutines
	s.cancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if s.metricsServer != nil {
		s.logger.Info("Shutting down metrics server...")
		if err := s.metricsServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Errorf("error shutting down metrics server: %v", err)
		}
	}

	// Closing the transport unblocks a run loop parked in Recv.
	if err := s.conn.Close(); err != nil {
		s.logger.Errorf("error closing transport: %v", err)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Device loop stopped")
	case <-shutdownCtx.Done():
		s.logger.Warn("Shutdown timeout exceeded, forcing stop")
	}

	s.closeStore()

	close(s.shutdownCh)
	s.logger.Info("Server shutdown complete")

	return nil
}

// closeStore closes the storage backend
func (s *Server) closeStore() {
	if s.store == nil {
		return
	}
	if err := s.store.Close(); err != nil {
		s.logger.Errorf("error closing storage: %v", err)
	}
}

// WaitForShutdown blocks until the server is shut down
func (s *Server) WaitForShutdown() {
	<-s.shutdownCh
}

// SetupSignalHandler sets up signal handling for graceful shutdown
func SetupSignalHandler() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-signalCh
		slog.Info("Received shutdown signal")
		cancel()
	}()

	return ctx
}

// Engine returns the command engine instance
func (s *Server) Engine() *ctap.Engine {
	return s.engine
}

// Handler returns the protocol handler instance
func (s *Server) Handler() *authenticator.Handler {
	return s.handler
}

// HostConn returns the host end of the pipe transport, or nil when the
// device is backed by uhid.
func (s *Server) HostConn() transport.Connection {
	return s.hostConn
}

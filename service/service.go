// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mattermost/meshcall/logger"
	"github.com/mattermost/meshcall/service/api"
	"github.com/mattermost/meshcall/service/perf"
	"github.com/mattermost/meshcall/service/room"
	"github.com/mattermost/meshcall/service/ws"

	"github.com/mattermost/mattermost/server/public/shared/mlog"
	"github.com/prometheus/procfs"
)

const (
	metricsNamespace  = "meshcall"
	maxSweepInterval  = time.Minute
	hubRequestChSize  = 64
	wsReadBufferSize  = 1024
	wsWriteBufferSize = 1024
)

var errServiceStopped = errors.New("service is stopped")

type Service struct {
	cfg       Config
	apiServer *api.Server
	wsServer  *ws.Server
	registry  *room.Registry
	roomOpts  []room.Option
	metrics   *perf.Metrics
	log       *mlog.Logger
	proc      *procfs.FS
	startTime time.Time

	// Owned by the hub goroutine.
	conns map[string]*connState

	reqCh  chan hubRequest
	doneCh chan struct{}
}

func New(cfg Config, opts ...Option) (*Service, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, err
	}

	s := &Service{
		cfg:       cfg,
		metrics:   perf.NewMetrics(metricsNamespace, nil),
		startTime: time.Now(),
		conns:     make(map[string]*connState),
		reqCh:     make(chan hubRequest, hubRequestChSize),
		doneCh:    make(chan struct{}),
	}

	var err error
	s.log, err = logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}

	s.log.Info("meshcall: starting up", GetVersionInfo().logFields()...)

	for _, opt := range opts {
		if err := opt(s); err != nil {
			_ = s.log.Shutdown()
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	s.registry = room.NewRegistry(s.roomOpts...)

	if fs, err := procfs.NewDefaultFS(); err != nil {
		s.log.Warn("failed to open procfs, uptime will be relative to service start", mlog.Err(err))
	} else {
		s.proc = &fs
	}

	s.apiServer, err = api.NewServer(cfg.API.HTTP, s.log)
	if err != nil {
		return nil, fmt.Errorf("failed to create api server: %w", err)
	}

	wsConfig := ws.ServerConfig{
		ReadBufferSize:  wsReadBufferSize,
		WriteBufferSize: wsWriteBufferSize,
		PingInterval:    cfg.Signaling.pingInterval(),
	}
	s.wsServer, err = ws.NewServer(wsConfig, s.log, ws.WithUpgradeCb(s.wsUpgradeHandler))
	if err != nil {
		return nil, fmt.Errorf("failed to create ws server: %w", err)
	}

	s.apiServer.RegisterHandleFunc("/version", s.getVersion)
	s.apiServer.RegisterHandleFunc("/health", s.getHealth)
	s.apiServer.RegisterHandleFunc("GET /stats", s.getStats)
	s.apiServer.RegisterHandleFunc("POST /api/rooms", s.createRoom)
	s.apiServer.RegisterHandleFunc("GET /api/rooms/{roomId}", s.describeRoom)
	s.apiServer.RegisterHandler("/metrics", s.metrics.Handler())
	s.apiServer.RegisterHandler("/ws", s.wsServer)
	if cfg.API.EnableProfiling {
		s.registerProfilingHandlers()
	}

	return s, nil
}

func (s *Service) Start() error {
	go s.hub()

	if err := s.apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	return nil
}

func (s *Service) Stop() error {
	var err error
	if stopErr := s.apiServer.Stop(); stopErr != nil {
		err = fmt.Errorf("failed to stop API server: %w", stopErr)
	}

	// Closing the ws server closes its receiving channel which in turn makes
	// the hub exit.
	s.wsServer.Close()
	<-s.doneCh

	if shutdownErr := s.log.Shutdown(); shutdownErr != nil && err == nil {
		err = fmt.Errorf("failed to shutdown logger: %w", shutdownErr)
	}

	return err
}

// Addr returns the address the API server is listening on.
func (s *Service) Addr() string {
	return s.apiServer.Addr()
}

type hubRequest struct {
	fn   func()
	done chan struct{}
}

// do runs fn on the hub goroutine and waits for it to complete.
func (s *Service) do(ctx context.Context, fn func()) error {
	req := hubRequest{
		fn:   fn,
		done: make(chan struct{}),
	}

	select {
	case s.reqCh <- req:
	case <-s.doneCh:
		return errServiceStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-s.doneCh:
		// The hub may have exited before picking the request up.
		select {
		case <-req.done:
			return nil
		default:
			return errServiceStopped
		}
	}
}

func (s *Service) sweepInterval() time.Duration {
	interval := s.cfg.Signaling.reservationTTL() / 2
	if interval > maxSweepInterval {
		interval = maxSweepInterval
	}
	return interval
}

// hub is the only goroutine touching the registry and the connection states.
func (s *Service) hub() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.sweepInterval())
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-s.wsServer.ReceiveCh():
			if !ok {
				s.log.Debug("hub: ws server closed, exiting")
				return
			}
			s.handleMessage(msg)
		case req := <-s.reqCh:
			req.fn()
			close(req.done)
		case <-ticker.C:
			s.sweepReservations()
		}
	}
}

func (s *Service) sweepReservations() {
	codes := s.registry.Sweep(s.cfg.Signaling.reservationTTL())
	if len(codes) == 0 {
		return
	}
	s.log.Debug("hub: swept expired room reservations", mlog.Int("count", len(codes)))
	s.updateRoomStats()
}

func (s *Service) updateRoomStats() {
	s.metrics.SetRoomStats(s.registry.Stats())
}

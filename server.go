package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/sourcegraph/conc"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// reapInterval is how often the background hygiene pass scans for expired
// entries. Correctness never depends on this; it only bounds how long an
// expired-but-not-reaped entry can linger in memory.
const reapInterval = 10 * time.Second

// Supervisor accepts connections, admits up to config.MaxClients concurrent
// workers, and coordinates shutdown and drain.
type Supervisor struct {
	cfg      *Config
	store    *Store
	metrics  *Metrics
	buffers  *BufferPool
	logger   *zap.Logger
	listener net.Listener

	sem      *semaphore.Weighted
	workers  conc.WaitGroup
	shutdown atomic.Bool
}

// NewSupervisor wires a Store, Metrics, and BufferPool sized off cfg and
// returns a Supervisor ready to Serve.
func NewSupervisor(cfg *Config, logger *zap.Logger) (*Supervisor, error) {
	store := NewStore(cfg.HashCapacity)
	buffers, err := NewBufferPool(int32(cfg.MaxClients) * 2)
	if err != nil {
		return nil, fmt.Errorf("creating buffer pool: %w", err)
	}

	return &Supervisor{
		cfg:     cfg,
		store:   store,
		metrics: NewMetrics(store),
		buffers: buffers,
		logger:  logger,
		sem:     semaphore.NewWeighted(int64(cfg.MaxClients)),
	}, nil
}

// Serve binds the listener and runs the accept loop, the background expiry
// sweep, and (if configured) the metrics HTTP server, all under one
// errgroup: a fatal error in any of them cancels the others and is returned.
func (s *Supervisor) Serve(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", addr, err)
	}
	s.listener = listener
	s.logger.Info("cache server listening", zap.String("addr", addr), zap.Int("max_clients", s.cfg.MaxClients))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.acceptLoop(gctx)
	})

	g.Go(func() error {
		s.reapLoop(gctx)
		return nil
	})

	if s.cfg.MetricsAddr != "" {
		g.Go(func() error {
			return s.metrics.Serve(gctx, s.cfg.MetricsAddr)
		})
	}

	go func() {
		<-gctx.Done()
		_ = s.initiateShutdown()
	}()

	err = g.Wait()
	s.workers.Wait()
	s.buffers.Close()
	return err
}

// acceptLoop accepts connections until shutdown is signaled, admitting each
// one against the semaphore without blocking the loop: a connection that
// can't be admitted is closed immediately.
func (s *Supervisor) acceptLoop(ctx context.Context) error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.shutdown.Load() {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		if !s.sem.TryAcquire(1) {
			s.metrics.admissionRejected()
			s.logger.Debug("rejecting connection, worker cap reached", zap.String("remote", conn.RemoteAddr().String()))
			conn.Close()
			continue
		}

		s.metrics.connectionAdmitted()
		worker := newConnWorker(conn, NewExecutor(s.store, s.metrics, s.buffers), s.cfg.ClientTimeout, s.cfg.ReadChunkBytes, s.logger)

		s.workers.Go(func() {
			defer s.sem.Release(1)
			defer s.metrics.connectionClosed()
			worker.Run(ctx)
		})
	}
}

// reapLoop periodically clears entries observed expired, purely as memory
// hygiene; no reader's correctness depends on it running.
func (s *Supervisor) reapLoop(ctx context.Context) {
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.store.ReapExpired(); n > 0 {
				s.logger.Debug("reaped expired entries", zap.Int("count", n))
			}
		}
	}
}

func (s *Supervisor) initiateShutdown() error {
	s.shutdown.Store(true)
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

// Stop signals shutdown, closes the listener, and waits for every admitted
// worker to finish. Serve's own errgroup.Wait still needs to return for
// Serve to unblock; Stop is for callers (e.g. a signal handler) driving
// shutdown from outside Serve's goroutine, instead of canceling Serve's ctx.
func (s *Supervisor) Stop() error {
	closeErr := s.initiateShutdown()
	s.workers.Wait()
	return closeErr
}

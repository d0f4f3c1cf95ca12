package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exports operational counters for the cache server using real
// Prometheus collectors, registered against a private registry so multiple
// Supervisors (as in tests) never collide on the global default one.
type Metrics struct {
	registry *prometheus.Registry

	opsTotal        *prometheus.CounterVec
	connectionsOpen prometheus.Gauge
	connectionsTot  prometheus.Counter
	admissionsRej   prometheus.Counter
	storeSize       prometheus.GaugeFunc
	storeCapacity   prometheus.GaugeFunc
	storeResizes    prometheus.CounterFunc
}

// NewMetrics wires a Metrics instance to the given Store so store size,
// capacity, and resize count are scraped live rather than snapshotted.
func NewMetrics(store *Store) *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		opsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "gofast_cache_ops_total",
			Help: "Total cache operations processed, by command.",
		}, []string{"command"}),
		connectionsOpen: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "gofast_cache_connections_open",
			Help: "Number of connection workers currently admitted.",
		}),
		connectionsTot: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "gofast_cache_connections_total",
			Help: "Total connections admitted since startup.",
		}),
		admissionsRej: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "gofast_cache_admissions_rejected_total",
			Help: "Connections closed immediately because the worker cap was reached.",
		}),
	}

	m.storeSize = promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "gofast_cache_store_size",
		Help: "Current number of entries in the store.",
	}, func() float64 { return float64(store.Size()) })

	m.storeCapacity = promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "gofast_cache_store_capacity",
		Help: "Current bucket capacity of the store.",
	}, func() float64 { return float64(store.Capacity()) })

	m.storeResizes = promauto.With(reg).NewCounterFunc(prometheus.CounterOpts{
		Name: "gofast_cache_store_resizes_total",
		Help: "Number of doubling resizes the store has performed.",
	}, func() float64 { return float64(store.Resizes()) })

	return m
}

func (m *Metrics) recordOp(command string) {
	m.opsTotal.WithLabelValues(command).Inc()
}

func (m *Metrics) connectionAdmitted() {
	m.connectionsOpen.Inc()
	m.connectionsTot.Inc()
}

func (m *Metrics) connectionClosed() {
	m.connectionsOpen.Dec()
}

func (m *Metrics) admissionRejected() {
	m.admissionsRej.Inc()
}

// Server builds the HTTP server that serves /metrics on addr.
func (m *Metrics) Server(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	return &http.Server{Addr: addr, Handler: mux}
}

// Serve runs the metrics HTTP server until ctx is canceled, then shuts it
// down gracefully. It returns nil on a clean shutdown triggered by ctx.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	srv := m.Server(addr)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

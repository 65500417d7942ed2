package metrics

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the daemon's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	SessionsStarted   prometheus.Counter
	SessionsCommitted prometheus.Counter
	CommittedChars    prometheus.Counter
	EngineErrors      *prometheus.CounterVec
	Copies            *prometheus.CounterVec
	Listening         prometheus.Gauge
	SessionDuration   prometheus.Histogram
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		SessionsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "voicepad_sessions_started_total",
			Help: "Recognition sessions started",
		}),
		SessionsCommitted: f.NewCounter(prometheus.CounterOpts{
			Name: "voicepad_sessions_committed_total",
			Help: "Sessions whose transcript was appended to the scratchpad",
		}),
		CommittedChars: f.NewCounter(prometheus.CounterOpts{
			Name: "voicepad_committed_characters_total",
			Help: "Characters appended to the scratchpad",
		}),
		EngineErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicepad_engine_errors_total",
			Help: "Recognition errors by kind",
		}, []string{"kind"}),
		Copies: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicepad_copies_total",
			Help: "Clipboard copies by result",
		}, []string{"result"}),
		Listening: f.NewGauge(prometheus.GaugeOpts{
			Name: "voicepad_listening",
			Help: "1 while a recognition session is listening",
		}),
		SessionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicepad_session_duration_seconds",
			Help:    "Time from session start to commit or error",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// CopyResult records a clipboard copy. An empty backend means failure.
func (m *Metrics) CopyResult(backend string) {
	if backend == "" {
		m.Copies.WithLabelValues("failed").Inc()
		return
	}
	m.Copies.WithLabelValues(backend).Inc()
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return m.serve(ctx, ln)
}

func (m *Metrics) serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	srv := &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("Metrics: serving on %s", ln.Addr())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Package metrics exports orchestrator activity as Prometheus series.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/bnema/cloudwhisper/internal/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const namespace = "cloudwhisper"

// Outcome labels for tool calls.
const (
	OutcomeOK          = "ok"
	OutcomeToolError   = "tool_error"
	OutcomeProtocol    = "protocol_error"
	OutcomeUnavailable = "unavailable"
)

type Recorder struct {
	registry *prometheus.Registry

	toolCalls      *prometheus.CounterVec
	toolLatency    *prometheus.HistogramVec
	workerStarts   prometheus.Counter
	workerFailures prometheus.Counter
	turns          *prometheus.CounterVec
}

var _ ports.Recorder = (*Recorder)(nil)

func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Recorder{
		registry: registry,
		toolCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_calls_total",
				Help:      "Tool calls sent to the broker worker",
			},
			[]string{"tool", "outcome"},
		),
		toolLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tool_call_duration_seconds",
				Help:      "Round-trip latency of broker tool calls",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
			},
			[]string{"tool"},
		),
		workerStarts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_starts_total",
			Help:      "Broker worker launch attempts",
		}),
		workerFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_start_failures_total",
			Help:      "Broker worker launches that did not become ready",
		}),
		turns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "turns_total",
				Help:      "Answered questions by analysis backend",
			},
			[]string{"backend"},
		),
	}
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) ToolCall(tool string, outcome string, elapsed time.Duration) {
	r.toolCalls.WithLabelValues(tool, outcome).Inc()
	r.toolLatency.WithLabelValues(tool).Observe(elapsed.Seconds())
}

func (r *Recorder) WorkerStart(err error) {
	r.workerStarts.Inc()
	if err != nil {
		r.workerFailures.Inc()
	}
}

func (r *Recorder) Turn(backend string) {
	r.turns.WithLabelValues(backend).Inc()
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Serve exposes /metrics on addr until ctx is done.
func (r *Recorder) Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", listener.Addr().String()).Msg("metrics endpoint listening")
	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

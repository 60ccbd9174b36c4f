// Package telemetry exposes client-side prometheus metrics for the conversation session.
package telemetry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metric names.
const (
	MetricConnectionState = "chat_client_connection_state"
	MetricReconnectsTotal = "chat_client_reconnects_scheduled_total"
	MetricFramesTotal     = "chat_client_frames_received_total"
	MetricSendsTotal      = "chat_client_sends_total"
	MetricReconciledTotal = "chat_client_messages_reconciled_total"
	MetricPollsTotal      = "chat_client_polls_total"
	MetricPendingMessages = "chat_client_pending_messages"
)

var knownStates = []string{"disconnected", "connecting", "connected", "failed"}

// Metrics records connection and reconciliation activity. A nil *Metrics is a
// valid no-op recorder.
type Metrics struct {
	registry *prometheus.Registry

	connectionState *prometheus.GaugeVec
	reconnects      prometheus.Counter
	frames          *prometheus.CounterVec
	sends           *prometheus.CounterVec
	reconciled      *prometheus.CounterVec
	polls           *prometheus.CounterVec
	pending         prometheus.Gauge
}

// New registers the client metrics on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connectionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: MetricConnectionState,
			Help: "1 for the current socket state, 0 otherwise",
		}, []string{"state"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricReconnectsTotal,
			Help: "Reconnect attempts scheduled after a dropped or failed socket",
		}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricFramesTotal,
			Help: "Inbound socket frames by type",
		}, []string{"type"}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricSendsTotal,
			Help: "Message sends by delivery channel and outcome",
		}, []string{"channel", "outcome"}),
		reconciled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricReconciledTotal,
			Help: "Server messages merged into the timeline by result",
		}, []string{"result"}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricPollsTotal,
			Help: "History polls issued while the socket is down",
		}, []string{"outcome"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricPendingMessages,
			Help: "Optimistic messages awaiting confirmation",
		}),
	}
	m.registry.MustRegister(m.connectionState, m.reconnects, m.frames, m.sends, m.reconciled, m.polls, m.pending)
	m.StateChanged("disconnected")
	return m
}

// Registry returns the registry holding the client metrics.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// StateChanged sets the state gauge so exactly one state reads 1.
func (m *Metrics) StateChanged(state string) {
	if m == nil {
		return
	}
	for _, s := range knownStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.connectionState.WithLabelValues(s).Set(v)
	}
}

func (m *Metrics) ReconnectScheduled() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

func (m *Metrics) FrameReceived(kind string) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(kind).Inc()
}

// SendCompleted counts a send over channel ("socket" or "http").
func (m *Metrics) SendCompleted(channel string, err error) {
	if m == nil {
		return
	}
	m.sends.WithLabelValues(channel, outcome(err)).Inc()
}

// Reconciled counts a server message by merge result ("appended", "duplicate").
func (m *Metrics) Reconciled(result string) {
	if m == nil {
		return
	}
	m.reconciled.WithLabelValues(result).Inc()
}

func (m *Metrics) Polled(err error) {
	if m == nil {
		return
	}
	m.polls.WithLabelValues(outcome(err)).Inc()
}

func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	log.Info("metrics endpoint listening", zap.String("addr", ln.Addr().String()))

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

package telemetry

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_StateGaugeIsExclusive(t *testing.T) {
	m := New()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.connectionState.WithLabelValues("disconnected")))

	m.StateChanged("connected")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connectionState.WithLabelValues("connected")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.connectionState.WithLabelValues("disconnected")))
}

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.ReconnectScheduled()
	m.ReconnectScheduled()
	m.FrameReceived("message")
	m.SendCompleted("socket", nil)
	m.SendCompleted("http", errors.New("boom"))
	m.Reconciled("appended")
	m.Polled(nil)
	m.SetPending(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.reconnects))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.frames.WithLabelValues("message")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sends.WithLabelValues("socket", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sends.WithLabelValues("http", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reconciled.WithLabelValues("appended")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.polls.WithLabelValues("ok")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.pending))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.StateChanged("connected")
		m.ReconnectScheduled()
		m.FrameReceived("error")
		m.SendCompleted("socket", nil)
		m.Reconciled("duplicate")
		m.Polled(nil)
		m.SetPending(1)
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.FrameReceived("message")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), MetricFramesTotal)
	assert.Contains(t, string(body), MetricConnectionState)
}

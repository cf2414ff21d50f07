package observability

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_IsolatedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)

	m.ScrapesTotal.WithLabelValues("ok", "").Inc()
	m.VotesCast.WithLabelValues("inserted").Add(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScrapesTotal.WithLabelValues("ok", "")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.VotesCast.WithLabelValues("inserted")))
}

func TestRecordBroadcast(t *testing.T) {
	before := testutil.ToFloat64(DefaultMetrics.EventsDropped)

	RecordBroadcast(3)
	RecordBroadcast(0)

	assert.Equal(t, before+3, testutil.ToFloat64(DefaultMetrics.EventsDropped))
}

func TestStatusText(t *testing.T) {
	assert.Equal(t, "2xx", statusText(200))
	assert.Equal(t, "4xx", statusText(429))
	assert.Equal(t, "5xx", statusText(503))
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogOptions{Level: "warn", Format: "json", Output: &buf})

	logger.Info("dropped")
	logger.Warn("kept", "address", "wallet1")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "kept", rec["msg"])
	assert.Equal(t, "wallet1", rec["address"])
}

func TestNewLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogOptions{Level: "debug", Output: &buf})

	logger.Debug("scrape state", "to", "rendering")

	assert.Contains(t, buf.String(), "scrape state")
	assert.Contains(t, buf.String(), "to=rendering")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

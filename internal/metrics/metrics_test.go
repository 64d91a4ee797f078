package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Upload("ok", 100)
	m.Upload("ok", 50)
	m.Upload("invalid", 999)
	m.Fetch("ok")
	m.Fetch("expired")
	m.Check("found")
	m.SweepRecord("deleted")
	m.Orphan("fetch")
	m.ObserveRequest("/api/upload", "POST", 20*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.UploadsTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UploadsTotal.WithLabelValues("invalid")))
	assert.Equal(t, 150.0, testutil.ToFloat64(m.UploadBytesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchesTotal.WithLabelValues("expired")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChecksTotal.WithLabelValues("found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SweepRecords.WithLabelValues("deleted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OrphansTotal.WithLabelValues("fetch")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "zeroshare_http_request_duration_seconds")
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Upload("ok", 1)
		m.Fetch("ok")
		m.Check("found")
		m.SweepRecord("deleted")
		m.Orphan("upload")
		m.ObserveRequest("/", "GET", time.Second)
	})
}

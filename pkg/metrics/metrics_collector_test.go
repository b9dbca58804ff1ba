package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollectorRecords(t *testing.T) {
	m := NewMetricsCollector()

	m.RecordInteraction("like", true)
	m.RecordInteraction("like", true)
	m.RecordInteraction("like", false)
	m.RecordLedgerOp("tip", "ok", 30)
	m.RecordLedgerOp("tip", "insufficient_balance", 30)
	m.RecordRecount("posts.like_count", 2)
	m.RecordRecount("posts.save_count", 0)
	m.RecordNotification("store", nil)
	m.RecordNotification("push", errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.interactionsTotal.WithLabelValues("like", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.interactionsTotal.WithLabelValues("like", "false")))
	assert.Equal(t, 30.0, testutil.ToFloat64(m.ledgerAmount.WithLabelValues("tip")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.recountCorrections.WithLabelValues("posts.like_count")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notificationsTotal.WithLabelValues("push", "error")))
}

func TestNilCollectorIsSafe(t *testing.T) {
	var m *MetricsCollector
	assert.NotPanics(t, func() {
		m.RecordInteraction("like", true)
		m.RecordHTTPRequest("GET", "/posts", 200, time.Millisecond)
		m.RecordCacheLookup("redis", "rel", 1, 1)
	})
}

func TestCollectorsAreIndependent(t *testing.T) {
	a := NewMetricsCollector()
	b := NewMetricsCollector()
	a.RecordRealtimeEvent("thread", "insert")

	assert.Equal(t, 1.0, testutil.ToFloat64(a.realtimeEventsTotal.WithLabelValues("thread", "insert")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.realtimeEventsTotal.WithLabelValues("thread", "insert")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := NewMetricsCollector()
	m.RecordHTTPRequest("POST", "/posts/:id/like", 200, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `http_requests_total{endpoint="/posts/:id/like",method="POST",status="2xx"} 1`))
}

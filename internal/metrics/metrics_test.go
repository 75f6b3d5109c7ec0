package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_IndependentRegistries(t *testing.T) {
	// 两次创建不应因重复注册而 panic
	a := New()
	b := New()

	a.MessagesReceived.Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.MessagesReceived))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.MessagesReceived))
}

func TestHandler_ExposesCounters(t *testing.T) {
	m := New()
	m.MessagesEnriched.WithLabelValues("true").Add(3)
	m.QueueDepth.Set(7)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)
	assert.True(t, strings.Contains(text, `biodata_bridge_messages_enriched_total{mapped="true"} 3`), text)
	assert.Contains(t, text, "biodata_bridge_queue_depth 7")
	assert.Contains(t, text, "go_goroutines")
}

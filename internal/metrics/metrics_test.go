package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCounters(t *testing.T) {
	m := New()

	m.ReplyOutcome("success")
	m.ReplyOutcome("success")
	m.ReplyOutcome("flood")
	m.FloodRejected()
	m.BanRejected("sequential")
	m.NotificationResult("push", errors.New("boom"))
	m.NotificationResult("email", nil)
	m.TempPurged(3)
	m.TaskRun("temp-attachment-cleanup", nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.replies.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.replies.WithLabelValues("flood")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.floods))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.bans.WithLabelValues("sequential")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("push", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("email", "ok")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.tempCleaned))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.taskRuns.WithLabelValues("temp-attachment-cleanup", "ok")))
}

func TestMetricsHandler(t *testing.T) {
	m := New()
	m.ReplyOutcome("success")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `helpdesk_replies_total{outcome="success"} 1`)
}

func TestIndependentRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New()
		New()
	})
}

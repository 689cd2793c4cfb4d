package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollectors(t *testing.T) {
	Init()
	Init()

	before := testutil.ToFloat64(toolReqs.WithLabelValues("split-pdf", "success"))
	ObserveTool("split-pdf", "success", 20*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(toolReqs.WithLabelValues("split-pdf", "success")))

	AddPages("split-pdf", 7)
	assert.GreaterOrEqual(t, testutil.ToFloat64(pagesProcessed.WithLabelValues("split-pdf")), 7.0)

	SetQueueDepth("stream", 3)
	assert.Equal(t, 3.0, testutil.ToFloat64(queueDepth.WithLabelValues("stream")))

	IncJob("success")
	IncRetry()
	IncRateLimited()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "minitools_tool_requests_total")
	assert.Contains(t, rec.Body.String(), "minitools_rate_limited_total")
}

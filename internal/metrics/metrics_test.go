package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/joeblew999/plat-servicearea/internal/orchestrator"
)

var _ orchestrator.Observer = (*Collector)(nil)

func TestObserverCounts(t *testing.T) {
	c := NewCollector()
	c.Issued(orchestrator.KindSolve)
	c.Issued(orchestrator.KindSolve)
	c.Superseded(orchestrator.KindSolve)
	c.Failed(orchestrator.KindMetadata, errors.New("boom"))
	c.Completed(orchestrator.KindSolve, 250*time.Millisecond)

	if got := testutil.ToFloat64(c.Requests.WithLabelValues("solve")); got != 2 {
		t.Fatalf("requests=%v, want 2", got)
	}
	if got := testutil.ToFloat64(c.RequestsSuperseded.WithLabelValues("solve")); got != 1 {
		t.Fatalf("superseded=%v, want 1", got)
	}
	if got := testutil.ToFloat64(c.RequestsFailed.WithLabelValues("metadata")); got != 1 {
		t.Fatalf("failed=%v, want 1", got)
	}
}

func TestHandlerExposesZeroSeries(t *testing.T) {
	c := NewCollector()
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		`servicearea_requests_total{kind="search"} 0`,
		`servicearea_sessions_active 0`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}

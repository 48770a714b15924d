package metrics_test

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"corpora/internal/metrics"
)

func scrape(t *testing.T, reg *metrics.Registry) string {
	t.Helper()
	rec := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	return string(body)
}

func TestObserveClaimOutcomes(t *testing.T) {
	reg := metrics.NewRegistry()
	reg.ObserveClaim("s", 3, time.Millisecond, nil)
	reg.ObserveClaim("s", 0, time.Millisecond, nil)
	reg.ObserveClaim("s", 0, time.Millisecond, errors.New("locked"))

	body := scrape(t, reg)
	for _, want := range []string{
		`corpora_claim_batches_total{outcome="claimed",subset="s"} 1`,
		`corpora_claim_batches_total{outcome="empty",subset="s"} 1`,
		`corpora_claim_batches_total{outcome="error",subset="s"} 1`,
		`corpora_claim_documents_total{subset="s"} 3`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q:\n%s", want, body)
		}
	}
}

func TestNilRegistryIsSafe(t *testing.T) {
	var reg *metrics.Registry
	reg.ObserveClaim("s", 1, 0, nil)
	reg.ObserveStage("tokens", 0, nil)
	reg.ObserveDocument("s", "processed", "full", 0)
	reg.SetSubsetRows("s", 1, 2, 3, 0)
}

func TestHandlerExposesStageFailures(t *testing.T) {
	reg := metrics.NewRegistry()
	reg.ObserveStage("tokens", 5*time.Millisecond, errors.New("boom"))

	body := scrape(t, reg)
	if !strings.Contains(body, `corpora_stage_failures_total{stage="tokens"} 1`) {
		t.Fatalf("metrics output missing stage failure:\n%s", body)
	}
}

package observability_test

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"friendly_eats/internal/adapters/observability"
)

func TestMetricsRegistryAndHandler(t *testing.T) {
	reg := observability.InitRegistry()

	// record one sample so counters are non-zero
	observability.ObserveHTTP("/test", "GET", 200, 12*time.Millisecond)
	observability.ObserveConflict(1, errors.New("conflict"))
	observability.ObserveTxn(nil)
	observability.ObserveReview(5)
	observability.ObserveFeed("restaurants", "publish")

	mh := observability.MetricsHandler(reg)
	req := httptest.NewRequest("GET", "/metrics", nil)
	rr := httptest.NewRecorder()
	mh.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status: %d", rr.Code)
	}
	body, _ := io.ReadAll(rr.Body)
	out := string(body)
	for _, name := range []string{
		"friendlyeats_http_requests_total",
		`friendlyeats_transaction_events_total{event="conflict"}`,
		`friendlyeats_reviews_added_total{rating="5"}`,
		"friendlyeats_change_feed_events_total",
	} {
		if !strings.Contains(out, name) {
			t.Fatalf("expected %s in output", name)
		}
	}
}

func TestLabelErr(t *testing.T) {
	if observability.LabelErr(nil) != "none" {
		t.Fatal("nil error label")
	}
	if got := observability.LabelErr(errors.New("x")); got != "*errors.errorString" {
		t.Fatalf("label: %s", got)
	}
}

package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandlerExposesCounters(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	r.ObserveTransition("published", "success")
	r.ObserveDelivery("rejected")
	r.SetQueueDepth(3)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`license_bot_post_transitions_total{kind="published",outcome="success"} 1`,
		`license_bot_relay_deliveries_total{state="rejected"} 1`,
		`license_bot_relay_queue_depth 3`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("missing %q in metrics output", want)
		}
	}
}

package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveHTTPRequestCountsErrors(t *testing.T) {
	before := testutil.ToFloat64(httpErrors.WithLabelValues("chat", "POST"))
	ObserveHTTPRequest("chat", "POST", 200, 10*time.Millisecond)
	ObserveHTTPRequest("chat", "POST", 502, 20*time.Millisecond)

	if got := testutil.ToFloat64(httpErrors.WithLabelValues("chat", "POST")) - before; got != 1 {
		t.Fatalf("expected one server error, got %v", got)
	}
	if got := testutil.ToFloat64(httpRequests.WithLabelValues("chat", "POST", "200")); got < 1 {
		t.Fatalf("expected request counter, got %v", got)
	}
}

func TestObserveToolAndLLM(t *testing.T) {
	ObserveTool("transfer_hbar_tool", OutcomeFailure)
	if got := testutil.ToFloat64(toolInvocations.WithLabelValues("transfer_hbar_tool", OutcomeFailure)); got < 1 {
		t.Fatalf("expected tool counter, got %v", got)
	}
	ObserveLLM("openai", errors.New("boom"))
	if got := testutil.ToFloat64(llmRequests.WithLabelValues("openai", OutcomeError)); got < 1 {
		t.Fatalf("expected llm error counter, got %v", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	ObserveMirror("/accounts/{id}", 200, 5*time.Millisecond)
	ObserveReturnedTransactions(2)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)
	for _, want := range []string{
		"hedera_agent_mirror_requests_total",
		"hedera_agent_returned_transactions_total",
		"go_goroutines",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("metrics output missing %s", want)
		}
	}
}

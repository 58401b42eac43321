package observability

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)

	m.RecordSaga("buy", OutcomeRefunded, time.Second)
	m.RecordRefundFailure()
	m.RecordRefundFailure()
	m.RecordSwap(nil, time.Millisecond)
	m.RecordSwap(errors.New("boom"), time.Millisecond)

	if got := testutil.ToFloat64(m.SagaRuns.WithLabelValues("buy", OutcomeRefunded)); got != 1 {
		t.Errorf("expected 1 refunded buy, got %v", got)
	}
	if got := testutil.ToFloat64(m.RefundFailures); got != 2 {
		t.Errorf("expected 2 refund failures, got %v", got)
	}
	if got := testutil.ToFloat64(m.SwapCalls.WithLabelValues("error")); got != 1 {
		t.Errorf("expected 1 failed swap, got %v", got)
	}
}

func TestMetrics_SetPendingReconciliation(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)

	m.SetPendingReconciliation(map[string]int{"withdrawal": 2, "buy": 1})
	if got := testutil.ToFloat64(m.PendingReconciliation.WithLabelValues("withdrawal")); got != 2 {
		t.Errorf("expected 2 pending withdrawals, got %v", got)
	}

	// kinds that disappear are reset
	m.SetPendingReconciliation(map[string]int{"buy": 1})
	if got := testutil.CollectAndCount(m.PendingReconciliation); got != 1 {
		t.Errorf("expected 1 series after reset, got %d", got)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.RecordSaga("buy", OutcomeSuccess, time.Second)
	m.RecordRefundFailure()
	m.RecordReconciliation("withdrawal")
	m.SetPendingReconciliation(map[string]int{"buy": 1})
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)
	m.RecordReconciliation("withdrawal")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "test_saga_reconciliation_required_total") {
		t.Errorf("metrics output missing counter:\n%s", body)
	}
}

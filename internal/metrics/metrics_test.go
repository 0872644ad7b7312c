package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	io_prometheus_client "github.com/prometheus/client_model/go"
)

func counterValue(counter prometheus.Counter) float64 {
	var m io_prometheus_client.Metric
	if err := counter.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

func TestRecordRun(t *testing.T) {
	okBefore := counterValue(RunsTotal.WithLabelValues("metrics-test", RunStatusOK))
	failedBefore := counterValue(RunsTotal.WithLabelValues("metrics-test", RunStatusFailed))

	RecordRun("metrics-test", 20*time.Millisecond, nil)
	RecordRun("metrics-test", 20*time.Millisecond, errors.New("boom"))
	RecordRun("metrics-test", 20*time.Millisecond, nil)

	if got := counterValue(RunsTotal.WithLabelValues("metrics-test", RunStatusOK)) - okBefore; got != 2 {
		t.Fatalf("unexpected ok runs: got %v want 2", got)
	}
	if got := counterValue(RunsTotal.WithLabelValues("metrics-test", RunStatusFailed)) - failedBefore; got != 1 {
		t.Fatalf("unexpected failed runs: got %v want 1", got)
	}
}

func TestRecordDocumentsIgnoresEmpty(t *testing.T) {
	before := counterValue(DocumentsTotal.WithLabelValues("metrics-test", DocumentSpam))

	RecordDocuments("metrics-test", DocumentSpam, 0)
	RecordDocuments("metrics-test", DocumentSpam, 3)

	if got := counterValue(DocumentsTotal.WithLabelValues("metrics-test", DocumentSpam)) - before; got != 3 {
		t.Fatalf("unexpected spam documents: got %v want 3", got)
	}
}

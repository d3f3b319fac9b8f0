package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestMetricsInitialized(t *testing.T) {
	Init()
	Init() // idempotent

	if CrawlsStarted == nil || CrawlsFailed == nil || CrawlsSucceeded == nil {
		t.Error("crawl counters not initialized")
	}
	if ProbeResults == nil || UpstreamRequests == nil || LoginAttempts == nil {
		t.Error("labelled counters not initialized")
	}
	if CrawlDuration == nil || CrawlInFlight == nil {
		t.Error("crawl duration/in-flight not initialized")
	}
}

func TestRecordHelpers(t *testing.T) {
	Init()

	probe := ProbeResults.WithLabelValues("text", "accessible")
	before := counterValue(t, probe)
	RecordProbe("text", true)
	if got := counterValue(t, probe); got != before+1 {
		t.Errorf("probe counter = %v, want %v", got, before+1)
	}

	transport := UpstreamRequests.WithLabelValues("channel", "0")
	before = counterValue(t, transport)
	RecordUpstream("channel", 0)
	if got := counterValue(t, transport); got != before+1 {
		t.Errorf("upstream counter = %v, want %v", got, before+1)
	}

	failed := LoginAttempts.WithLabelValues("password", "error")
	before = counterValue(t, failed)
	RecordLogin("password", errors.New("nope"))
	if got := counterValue(t, failed); got != before+1 {
		t.Errorf("login counter = %v, want %v", got, before+1)
	}
}

func TestSetCrawlInFlight(t *testing.T) {
	Init()
	m := &dto.Metric{}
	SetCrawlInFlight(true)
	_ = CrawlInFlight.Write(m)
	if m.GetGauge().GetValue() != 1 {
		t.Errorf("in-flight = %v, want 1", m.GetGauge().GetValue())
	}
	SetCrawlInFlight(false)
	_ = CrawlInFlight.Write(m)
	if m.GetGauge().GetValue() != 0 {
		t.Errorf("in-flight = %v, want 0", m.GetGauge().GetValue())
	}
}

func TestIncIfSetNil(t *testing.T) {
	IncIfSet(nil) // must not panic
}

func TestTimeFuncRecordsObservation(t *testing.T) {
	testHistogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_duration_seconds",
		Help:    "Test duration",
		Buckets: prometheus.DefBuckets,
	})

	executed := false
	duration := TimeFunc(testHistogram, func() {
		time.Sleep(10 * time.Millisecond)
		executed = true
	})
	if !executed {
		t.Error("TimeFunc did not execute provided function")
	}
	if duration < 10*time.Millisecond {
		t.Errorf("TimeFunc duration = %v, want >= 10ms", duration)
	}

	metric := &dto.Metric{}
	if err := testHistogram.Write(metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.GetHistogram().GetSampleCount() != 1 {
		t.Errorf("sample count = %d, want 1", metric.GetHistogram().GetSampleCount())
	}

	// nil observer still runs fn
	ran := false
	TimeFunc(nil, func() { ran = true })
	if !ran {
		t.Error("TimeFunc(nil) did not run fn")
	}
}

func TestCorrelation(t *testing.T) {
	ctx := context.Background()
	if GetCorrelation(ctx) != "" {
		t.Error("empty context has a correlation id")
	}
	ctx = WithCorrelation(ctx, "abc")
	if GetCorrelation(ctx) != "abc" {
		t.Errorf("GetCorrelation() = %q", GetCorrelation(ctx))
	}
	if LoggerWithCorr(ctx) == nil {
		t.Error("LoggerWithCorr returned nil")
	}
}

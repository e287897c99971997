package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"log/slog"
	"os"

	"staybot/internal/bus"
)

func TestCounterAndGauge(t *testing.T) {
	c := NewMetricsCollector()

	ctr := c.Counter("test_total", "test counter", "")
	ctr.Inc()
	ctr.Add(2)
	if ctr.Value() != 3 {
		t.Fatalf("expected 3, got %d", ctr.Value())
	}

	g := c.Gauge("test_gauge", "test gauge", "")
	g.Set(5)
	g.Inc()
	g.Dec()
	if g.Value() != 5 {
		t.Fatalf("expected 5, got %d", g.Value())
	}
}

func TestCounter_SameNameReturnsSameInstance(t *testing.T) {
	c := NewMetricsCollector()
	a := c.Counter("dup_total", "dup", "")
	b := c.Counter("dup_total", "dup", "")
	if a != b {
		t.Fatal("expected the same counter instance")
	}
}

func TestHandler_RendersPrometheusText(t *testing.T) {
	c := NewMetricsCollector()
	c.Counter("render_total", "rendered counter", "").Add(7)
	c.Histogram("render_latency_seconds", "latency", "", []float64{1, 5}).Observe(2)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	c.Handler()(rec, req)

	body := rec.Body.String()
	for _, want := range []string{
		"staybot_uptime_seconds",
		"# TYPE render_total counter",
		"render_total 7",
		"render_latency_seconds_count 1",
		`le="5"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected output to contain %q, got:\n%s", want, body)
		}
	}
}

func TestObserve_BumpsCountersOnEvents(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	ebus := bus.NewEventBus(logger)
	Observe(ebus)

	before := QuotesIssued.Value()
	ebus.Emit(bus.Event{Type: bus.EventQuoteIssued})
	if QuotesIssued.Value() != before+1 {
		t.Fatalf("expected quote counter to increment")
	}
}

package metrics

import (
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/radicugloss/radicugloss/pkg/radicugloss"
)

func TestNew_IndependentRegistries(t *testing.T) {
	// two instances must not collide on registration
	a, b := New(), New()
	a.MissedItems.Inc()

	if got := testutil.ToFloat64(b.MissedItems); got != 0 {
		t.Errorf("second registry saw %v missed items, want 0", got)
	}
}

func TestRecordScore(t *testing.T) {
	m := New()

	set := radicugloss.RelevanceSet{"a": 1, "b": 2, "c": 3}
	b, err := radicugloss.Explain([]string{"a", "x", "a"}, set, radicugloss.DefaultOptions())
	if err != nil {
		t.Fatalf("Explain() error = %v", err)
	}
	m.RecordScore("http", b, nil)

	if got := testutil.ToFloat64(m.ScoreRequests.WithLabelValues("http", "ok")); got != 1 {
		t.Errorf("ok requests = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.FalsePositives.WithLabelValues("false_positive")); got != 1 {
		t.Errorf("false positives = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.FalsePositives.WithLabelValues("duplicate")); got != 1 {
		t.Errorf("duplicates = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.MissedItems); got != 2 {
		t.Errorf("missed = %v, want 2", got)
	}
	if n := testutil.CollectAndCount(m.Scores); n != 2 {
		t.Errorf("score series = %d, want nrdcgl and pnrdcgl", n)
	}
}

func TestRecordScore_Errors(t *testing.T) {
	m := New()

	m.RecordScore("grpc", nil, fmt.Errorf("query q: %w", radicugloss.ErrInvalidArgument))
	m.RecordScore("grpc", nil, errors.New("boom"))

	if got := testutil.ToFloat64(m.ScoreRequests.WithLabelValues("grpc", "invalid")); got != 1 {
		t.Errorf("invalid = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ScoreRequests.WithLabelValues("grpc", "error")); got != 1 {
		t.Errorf("error = %v, want 1", got)
	}
}

func TestObserveEvaluation(t *testing.T) {
	m := New()

	m.ObserveEvaluation(5, 20*time.Millisecond, nil)
	m.ObserveEvaluation(3, time.Millisecond, errors.New("bad query"))

	if got := testutil.ToFloat64(m.EvaluationQueries); got != 5 {
		t.Errorf("queries = %v, want 5 (failed runs not counted)", got)
	}
	if got := testutil.ToFloat64(m.EvaluationRuns.WithLabelValues("error")); got != 1 {
		t.Errorf("failed runs = %v, want 1", got)
	}
}

func TestRecordBusPublishAndHistory(t *testing.T) {
	m := New()

	m.RecordBusPublish("topic", time.Millisecond, nil)
	m.RecordBusPublish("topic", time.Millisecond, errors.New("down"))
	m.RecordHistoryWrite(nil)

	if got := testutil.ToFloat64(m.BusPublishes.WithLabelValues("topic", "error")); got != 1 {
		t.Errorf("failed publishes = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.HistoryWrites.WithLabelValues("ok")); got != 1 {
		t.Errorf("history writes = %v, want 1", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.MissedItems.Add(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "radicugloss_missed_items_total 3") {
		t.Errorf("exposition missing counter:\n%s", body)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("exposition should include Go runtime metrics")
	}
}

package bus

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/radicugloss/radicugloss/internal/config"
	"github.com/radicugloss/radicugloss/internal/pkg/logger"
)

func TestJournal_AppendAndEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "events.jsonl")
	j, err := OpenJournal(path)
	if err != nil {
		t.Fatalf("OpenJournal() error = %v", err)
	}
	defer j.Close()

	start := time.Now().Add(-time.Second)
	for _, id := range []string{"e1", "e2", "e3"} {
		if err := j.Append(TopicEvaluationCompleted, Event{ID: id}); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	entries, err := j.Entries(start, 0)
	if err != nil {
		t.Fatalf("Entries() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("Entries() = %d, want 3", len(entries))
	}
	if entries[0].Event.ID != "e1" || entries[2].Event.ID != "e3" {
		t.Errorf("entries out of order: %+v", entries)
	}
	if entries[0].Topic != TopicEvaluationCompleted {
		t.Errorf("Topic = %s", entries[0].Topic)
	}

	limited, _ := j.Entries(start, 2)
	if len(limited) != 2 {
		t.Errorf("Entries(limit 2) = %d", len(limited))
	}

	future, _ := j.Entries(time.Now().Add(time.Hour), 0)
	if len(future) != 0 {
		t.Errorf("Entries(future) = %d, want 0", len(future))
	}
}

func TestJournal_SkipsTornLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	if err := os.WriteFile(path, []byte("{not json\n"), 0644); err != nil {
		t.Fatal(err)
	}

	j, err := OpenJournal(path)
	if err != nil {
		t.Fatalf("OpenJournal() error = %v", err)
	}
	defer j.Close()
	j.Append("t", Event{ID: "ok"})

	entries, err := j.Entries(time.Time{}, 0)
	if err != nil {
		t.Fatalf("Entries() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Event.ID != "ok" {
		t.Errorf("Entries() = %+v, want only the valid line", entries)
	}
}

func TestJournal_AppendAfterClose(t *testing.T) {
	j, err := OpenJournal(filepath.Join(t.TempDir(), "events.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	j.Close()

	if err := j.Append("t", Event{ID: "late"}); err == nil {
		t.Error("Append() after Close() should fail")
	}
	if err := j.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestJournal_Replay(t *testing.T) {
	j, err := OpenJournal(filepath.Join(t.TempDir(), "events.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()
	j.Append("t", Event{ID: "a"})
	j.Append("t", Event{ID: "b"})

	target := NewMemoryBus(logger.Discard())
	defer target.Close()

	var mu sync.Mutex
	var wg sync.WaitGroup
	var ids []string
	wg.Add(2)
	target.Subscribe(context.Background(), "t", func(ctx context.Context, e Event) error {
		mu.Lock()
		ids = append(ids, e.ID)
		mu.Unlock()
		wg.Done()
		return nil
	})

	n, err := j.Replay(context.Background(), target, time.Time{})
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Replay() = %d, want 2", n)
	}
	waitGroupTimeout(t, &wg, time.Second)
	if len(ids) != 2 {
		t.Errorf("replayed ids = %v", ids)
	}
}

func TestNewBus_WithJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	b, err := NewBus(config.BusConfig{Type: "memory", JournalPath: path}, logger.Discard())
	if err != nil {
		t.Fatalf("NewBus() error = %v", err)
	}

	if _, ok := b.(*JournaledBus); !ok {
		t.Fatalf("NewBus() = %T, want *JournaledBus", b)
	}
	if err := b.Publish(context.Background(), TopicEvaluationCompleted, Event{ID: "j1"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	b.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read journal: %v", err)
	}
	if len(data) == 0 {
		t.Error("journal should contain the published event")
	}
}

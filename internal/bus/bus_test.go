package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/radicugloss/radicugloss/internal/config"
	"github.com/radicugloss/radicugloss/internal/pkg/logger"
)

func waitGroupTimeout(t *testing.T, wg *sync.WaitGroup, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(d):
		t.Fatal("Timeout waiting for events")
	}
}

func TestNewEvent(t *testing.T) {
	before := time.Now().UnixMilli()
	ev := NewEvent(TypeEvaluationCompleted, "test", "run-1", map[string]float64{"nrdcgl": 0.5})

	if ev.ID == "" {
		t.Error("NewEvent() should assign an ID")
	}
	if ev.Type != TypeEvaluationCompleted || ev.Source != "test" || ev.CorrelationID != "run-1" {
		t.Errorf("NewEvent() = %+v", ev)
	}
	if ev.Timestamp < before {
		t.Errorf("Timestamp = %d, want >= %d", ev.Timestamp, before)
	}
	if other := NewEvent(TypeEvaluationCompleted, "test", "", nil); other.ID == ev.ID {
		t.Error("event IDs should be unique")
	}
}

func TestMemoryBus_PublishSubscribe(t *testing.T) {
	bus := NewMemoryBus(logger.Discard())
	defer bus.Close()

	var received atomic.Int32
	var wg sync.WaitGroup

	err := bus.Subscribe(context.Background(), TopicEvaluationCompleted, func(ctx context.Context, event Event) error {
		received.Add(1)
		wg.Done()
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	wg.Add(3)
	for i := 0; i < 3; i++ {
		if err := bus.Publish(context.Background(), TopicEvaluationCompleted, NewEvent(TypeEvaluationCompleted, "test", "", i)); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}

	waitGroupTimeout(t, &wg, time.Second)

	if got := received.Load(); got != 3 {
		t.Errorf("Received %d events, want 3", got)
	}
}

func TestMemoryBus_MultipleSubscribers(t *testing.T) {
	bus := NewMemoryBus(logger.Discard())
	defer bus.Close()

	var count1, count2 atomic.Int32
	var wg sync.WaitGroup

	bus.Subscribe(context.Background(), "topic", func(ctx context.Context, event Event) error {
		count1.Add(1)
		wg.Done()
		return nil
	})
	bus.Subscribe(context.Background(), "topic", func(ctx context.Context, event Event) error {
		count2.Add(1)
		wg.Done()
		return errors.New("handler failure is only logged")
	})

	wg.Add(2)
	if err := bus.Publish(context.Background(), "topic", Event{ID: "e1"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	waitGroupTimeout(t, &wg, time.Second)

	if count1.Load() != 1 || count2.Load() != 1 {
		t.Errorf("Expected both subscribers to receive 1 event, got %d and %d", count1.Load(), count2.Load())
	}
}

func TestMemoryBus_HandlerOutlivesCancelledContext(t *testing.T) {
	bus := NewMemoryBus(logger.Discard())
	defer bus.Close()

	got := make(chan error, 1)
	bus.Subscribe(context.Background(), "topic", func(ctx context.Context, event Event) error {
		time.Sleep(10 * time.Millisecond)
		got <- ctx.Err()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	bus.Publish(ctx, "topic", Event{ID: "e1"})
	cancel()

	select {
	case err := <-got:
		if err != nil {
			t.Errorf("handler context error = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Timeout")
	}
}

func TestMemoryBus_NoSubscribers(t *testing.T) {
	bus := NewMemoryBus(logger.Discard())
	defer bus.Close()

	if err := bus.Publish(context.Background(), "empty.topic", Event{ID: "test"}); err != nil {
		t.Errorf("Publish() to empty topic error = %v", err)
	}
}

func TestMemoryBus_Close(t *testing.T) {
	bus := NewMemoryBus(logger.Discard())

	var finished atomic.Bool
	bus.Subscribe(context.Background(), "slow", func(ctx context.Context, event Event) error {
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
		return nil
	})
	bus.Publish(context.Background(), "slow", Event{ID: "e1"})

	if err := bus.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !finished.Load() {
		t.Error("Close() should drain in-flight handlers")
	}

	if err := bus.Publish(context.Background(), "test", Event{}); err == nil {
		t.Error("Publish() after Close() should error")
	}

	err := bus.Subscribe(context.Background(), "test", func(ctx context.Context, event Event) error {
		return nil
	})
	if err == nil {
		t.Error("Subscribe() after Close() should error")
	}

	// second close is a no-op
	if err := bus.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestMemoryBus_Concurrent(t *testing.T) {
	bus := NewMemoryBus(logger.Discard())
	defer bus.Close()

	var received atomic.Int32
	var wg sync.WaitGroup

	bus.Subscribe(context.Background(), "concurrent", func(ctx context.Context, event Event) error {
		received.Add(1)
		wg.Done()
		return nil
	})

	numPublishers := 10
	eventsPerPublisher := 100
	wg.Add(numPublishers * eventsPerPublisher)

	for p := 0; p < numPublishers; p++ {
		go func() {
			for i := 0; i < eventsPerPublisher; i++ {
				bus.Publish(context.Background(), "concurrent", Event{ID: "test"})
			}
		}()
	}

	waitGroupTimeout(t, &wg, 5*time.Second)

	expected := int32(numPublishers * eventsPerPublisher)
	if got := received.Load(); got != expected {
		t.Errorf("Received %d events, want %d", got, expected)
	}
}

type recordedPublish struct {
	topic string
	err   error
}

type fakeRecorder struct {
	mu    sync.Mutex
	calls []recordedPublish
}

func (f *fakeRecorder) RecordBusPublish(topic string, latency time.Duration, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordedPublish{topic: topic, err: err})
}

func TestInstrumentedBus(t *testing.T) {
	inner := NewMemoryBus(logger.Discard())
	rec := &fakeRecorder{}
	bus := NewInstrumentedBus(inner, rec)

	if err := bus.Publish(context.Background(), "a", Event{ID: "1"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	bus.Close()
	if err := bus.Publish(context.Background(), "b", Event{ID: "2"}); err == nil {
		t.Fatal("Publish() on closed bus should fail")
	}

	if len(rec.calls) != 2 {
		t.Fatalf("recorded %d publishes, want 2", len(rec.calls))
	}
	if rec.calls[0].topic != "a" || rec.calls[0].err != nil {
		t.Errorf("first call = %+v", rec.calls[0])
	}
	if rec.calls[1].topic != "b" || rec.calls[1].err == nil {
		t.Errorf("second call = %+v, want failure on b", rec.calls[1])
	}
}

func TestNewBus(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.BusConfig
		wantErr bool
	}{
		{"memory", config.BusConfig{Type: "memory"}, false},
		{"empty type is memory", config.BusConfig{}, false},
		{"kafka without brokers", config.BusConfig{Type: "kafka"}, true},
		{"unknown", config.BusConfig{Type: "nats"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewBus(tt.cfg, logger.Discard())
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewBus() error = %v, wantErr %v", err, tt.wantErr)
			}
			if b != nil {
				b.Close()
			}
		})
	}
}

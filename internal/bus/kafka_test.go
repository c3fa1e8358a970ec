package bus

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"github.com/radicugloss/radicugloss/internal/pkg/logger"
)

func TestKafkaConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     KafkaConfig
		wantErr bool
	}{
		{
			name: "valid config",
			cfg: KafkaConfig{
				Brokers:       []string{"localhost:9092"},
				ConsumerGroup: "test-group",
			},
			wantErr: false,
		},
		{
			name: "empty brokers",
			cfg: KafkaConfig{
				ConsumerGroup: "test-group",
			},
			wantErr: true,
		},
		{
			name: "empty consumer group",
			cfg: KafkaConfig{
				Brokers: []string{"localhost:9092"},
			},
			wantErr: true,
		},
		{
			name: "invalid kafka version",
			cfg: KafkaConfig{
				Brokers:       []string{"localhost:9092"},
				ConsumerGroup: "test-group",
				Version:       "invalid",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := tt.cfg.withDefaults()
			if (err != nil) != tt.wantErr {
				t.Errorf("withDefaults() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestKafkaConfig_Defaults(t *testing.T) {
	cfg, version, err := KafkaConfig{
		Brokers:       []string{"localhost:9092"},
		ConsumerGroup: "test-group",
	}.withDefaults()
	if err != nil {
		t.Fatalf("withDefaults() error = %v", err)
	}

	if cfg.ClientID != "radicugloss" {
		t.Errorf("ClientID = %s, want radicugloss", cfg.ClientID)
	}
	if !version.IsAtLeast(sarama.V2_8_0_0) {
		t.Errorf("version = %v, want at least 2.8.0", version)
	}

	sc := cfg.saramaConfig(version)
	if sc.Producer.RequiredAcks != sarama.WaitForAll {
		t.Error("producer should wait for all replicas")
	}
	if !sc.Producer.Return.Successes {
		t.Error("sync producer needs Return.Successes")
	}
	if err := sc.Validate(); err != nil {
		t.Errorf("sarama config invalid: %v", err)
	}
}

func TestParseKafkaBrokers(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"single broker", "localhost:9092", []string{"localhost:9092"}},
		{"multiple brokers", "broker1:9092,broker2:9092,broker3:9092", []string{"broker1:9092", "broker2:9092", "broker3:9092"}},
		{"with whitespace", "broker1:9092 , broker2:9092 ", []string{"broker1:9092", "broker2:9092"}},
		{"trailing comma", "broker1:9092,", []string{"broker1:9092"}},
		{"empty string", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseKafkaBrokers(tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("ParseKafkaBrokers() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("ParseKafkaBrokers()[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestEncodeMessage(t *testing.T) {
	ev := Event{ID: "e1", Type: TypeEvaluationCompleted, CorrelationID: "run-9", Payload: "x"}

	msg, err := encodeMessage(TopicEvaluationCompleted, ev)
	if err != nil {
		t.Fatalf("encodeMessage() error = %v", err)
	}

	if msg.Topic != TopicEvaluationCompleted {
		t.Errorf("Topic = %s", msg.Topic)
	}
	if key, _ := msg.Key.Encode(); string(key) != "run-9" {
		t.Errorf("Key = %s, want correlation id run-9", key)
	}

	var headers = map[string]string{}
	for _, h := range msg.Headers {
		headers[string(h.Key)] = string(h.Value)
	}
	if headers["event_type"] != TypeEvaluationCompleted || headers["correlation_id"] != "run-9" {
		t.Errorf("Headers = %v", headers)
	}

	value, _ := msg.Value.Encode()
	var decoded Event
	if err := json.Unmarshal(value, &decoded); err != nil {
		t.Fatalf("value is not JSON: %v", err)
	}
	if decoded.ID != "e1" {
		t.Errorf("decoded ID = %s, want e1", decoded.ID)
	}

	// without a correlation ID the event ID is the key
	msg, _ = encodeMessage("t", Event{ID: "e2"})
	if key, _ := msg.Key.Encode(); string(key) != "e2" {
		t.Errorf("Key = %s, want e2", key)
	}
}

func TestKafkaBus_PublishWithMockProducer(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var ev Event
		return json.Unmarshal(val, &ev)
	})
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	bus := &KafkaBus{
		producer:     producer,
		log:          logger.Discard(),
		handlers:     make(map[string][]Handler),
		consumerStop: make(chan struct{}),
	}

	if err := bus.Publish(context.Background(), TopicEvaluationCompleted, NewEvent(TypeEvaluationCompleted, "test", "", nil)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := bus.Publish(context.Background(), TopicEvaluationCompleted, NewEvent(TypeEvaluationCompleted, "test", "", nil)); err == nil {
		t.Error("Publish() should surface producer failures")
	}

	if err := producer.Close(); err != nil {
		t.Errorf("unmet producer expectations: %v", err)
	}
}

func TestKafkaBus_Interface(t *testing.T) {
	var _ Bus = (*KafkaBus)(nil)
}

func TestKafkaBus_OperationsAfterClose(t *testing.T) {
	bus := &KafkaBus{
		log:          logger.Discard(),
		handlers:     make(map[string][]Handler),
		consumerStop: make(chan struct{}),
		closed:       true,
	}

	if err := bus.Publish(context.Background(), "test", Event{ID: "test"}); err == nil {
		t.Error("Publish() after Close() should return error")
	}

	err := bus.Subscribe(context.Background(), "test", func(ctx context.Context, event Event) error {
		return nil
	})
	if err == nil {
		t.Error("Subscribe() after Close() should return error")
	}

	// already closed: returns before touching kafka resources
	if err := bus.Close(); err != nil {
		t.Errorf("Close() on closed bus returned error: %v", err)
	}
}

func TestKafkaBus_Dispatch(t *testing.T) {
	bus := &KafkaBus{
		log:      logger.Discard(),
		handlers: make(map[string][]Handler),
	}

	var got []string
	bus.handlers["t"] = []Handler{
		func(ctx context.Context, e Event) error { got = append(got, "a:"+e.ID); return nil },
		func(ctx context.Context, e Event) error { got = append(got, "b:"+e.ID); return nil },
	}

	bus.dispatch(context.Background(), "t", Event{ID: "1"})
	bus.dispatch(context.Background(), "other", Event{ID: "2"})

	if len(got) != 2 || got[0] != "a:1" || got[1] != "b:1" {
		t.Errorf("dispatched = %v", got)
	}
}

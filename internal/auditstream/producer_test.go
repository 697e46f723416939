package auditstream

import (
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewProducerRequiresBrokers(t *testing.T) {
	_, err := NewProducer(Config{Topic: "events"}, zerolog.Nop())
	if err == nil {
		t.Fatal("expected an error when no brokers are configured")
	}
}

func TestNewProducerRequiresTopic(t *testing.T) {
	_, err := NewProducer(Config{Brokers: []string{"localhost:9092"}}, zerolog.Nop())
	if err == nil {
		t.Fatal("expected an error when no topic is configured")
	}
}

func TestRecordMarshalsExpectedShape(t *testing.T) {
	rec := Record{AppID: "1", Channel: "news", Event: "update", Data: "hello", Timestamp: 1000}
	raw, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	for _, key := range []string{"app_id", "channel", "event", "data", "timestamp"} {
		if _, ok := decoded[key]; !ok {
			t.Fatalf("expected key %q in marshaled record, got %v", key, decoded)
		}
	}
}

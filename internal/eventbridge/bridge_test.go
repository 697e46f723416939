package eventbridge

import (
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestMessageRoundTrip(t *testing.T) {
	m := Message{AppID: "1", Event: "update", Channel: "news", Data: "hello"}
	raw, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded Message
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded != m {
		t.Fatalf("expected round-trip to preserve the message, got %+v", decoded)
	}
}

func TestConnectRequiresReachableURL(t *testing.T) {
	_, err := Connect(Config{URL: "nats://127.0.0.1:0", Subject: "pulsewire.events"}, nil, zerolog.Nop())
	if err == nil {
		t.Fatal("expected an error connecting to an unreachable NATS URL")
	}
}

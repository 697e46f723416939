package pusherproto

import (
	"encoding/json"
	"testing"
)

func TestClientEventDecode(t *testing.T) {
	raw := []byte(`{"event":"pusher:subscribe","data":{"channel":"news"}}`)

	var ce ClientEvent
	if err := json.Unmarshal(raw, &ce); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ce.Event != EventSubscribe {
		t.Fatalf("got event %q", ce.Event)
	}

	var data SubscribeData
	if err := json.Unmarshal(ce.Data, &data); err != nil {
		t.Fatalf("unexpected error decoding data: %v", err)
	}
	if data.Channel != "news" {
		t.Fatalf("got channel %q", data.Channel)
	}
}

func TestConnectionEstablishedDoubleEncoding(t *testing.T) {
	ev, err := NewConnectionEstablished("0123456789012345.9876543210987654", 120)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	encoded, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var frame map[string]any
	if err := json.Unmarshal(encoded, &frame); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	dataStr, ok := frame["data"].(string)
	if !ok {
		t.Fatalf("expected data field to be a JSON string, got %T", frame["data"])
	}

	var inner ConnectionEstablishedPayload
	if err := json.Unmarshal([]byte(dataStr), &inner); err != nil {
		t.Fatalf("inner payload did not decode: %v", err)
	}
	if inner.ActivityTimeout != 120 {
		t.Fatalf("got activity_timeout %d", inner.ActivityTimeout)
	}
}

func TestSubscriptionSucceededNilRoster(t *testing.T) {
	ev, err := NewSubscriptionSucceeded("news", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Data == nil || *ev.Data != "null" {
		t.Fatalf("expected data to be the string \"null\", got %v", ev.Data)
	}
}

func TestChannelEventDoubleEncodesData(t *testing.T) {
	ev, err := NewChannelEvent("update", "news", "hello", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Data == nil || *ev.Data != `"hello"` {
		t.Fatalf("expected double-encoded string payload, got %v", ev.Data)
	}
}

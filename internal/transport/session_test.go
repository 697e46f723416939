package transport

import (
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/adred-codev/pulsewire/internal/auditlog"
	"github.com/adred-codev/pulsewire/internal/channel"
	"github.com/adred-codev/pulsewire/internal/metrics"
	"github.com/adred-codev/pulsewire/internal/pusherapp"
	"github.com/adred-codev/pulsewire/internal/pusherproto"
)

// Prometheus collectors must register exactly once per process, so tests
// share a single Registry rather than each building their own.
var (
	testMetricsOnce sync.Once
	testMetrics     *metrics.Registry
)

func sharedMetrics() *metrics.Registry {
	testMetricsOnce.Do(func() { testMetrics = metrics.NewRegistry() })
	return testMetrics
}

func testApp() *pusherapp.App {
	return &pusherapp.App{
		ID:       "1",
		Key:      "testkey",
		Secret:   "testsecret",
		Channels: channel.NewRegistry(),
	}
}

func newTestSession(t *testing.T) (*Session, net.Conn) {
	t.Helper()
	serverConn, _ := net.Pipe()
	s, err := NewSession(serverConn, testApp(), zerolog.Nop(), auditlog.New(auditlog.Critical), sharedMetrics())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return s, serverConn
}

func TestNewSessionGeneratesUniqueSocketID(t *testing.T) {
	s1, c1 := newTestSession(t)
	s2, c2 := newTestSession(t)
	defer c1.Close()
	defer c2.Close()

	if s1.SocketID == "" {
		t.Fatal("expected non-empty socket id")
	}
	if s1.SocketID == s2.SocketID {
		t.Fatalf("expected distinct socket ids, got %q twice", s1.SocketID)
	}
}

func TestHandleSubscribeAddsSubscription(t *testing.T) {
	s, c := newTestSession(t)
	defer c.Close()

	data, _ := json.Marshal(pusherproto.SubscribeData{Channel: "my-channel"})
	s.handleSubscribe(pusherproto.ClientEvent{Event: pusherproto.EventSubscribe, Data: data})

	ch, ok := s.App.Channels.Get("my-channel")
	if !ok {
		t.Fatal("expected channel to be created")
	}
	if ch.SubscriptionCount() != 1 {
		t.Fatalf("expected 1 subscription, got %d", ch.SubscriptionCount())
	}

	select {
	case event := <-s.sendQueue:
		if event.Event != pusherproto.EventSubscriptionSucceeded {
			t.Fatalf("expected subscription_succeeded, got %s", event.Event)
		}
	default:
		t.Fatal("expected an acknowledgement event to be queued")
	}
}

func TestHandleUnsubscribeRemovesSubscription(t *testing.T) {
	s, c := newTestSession(t)
	defer c.Close()

	data, _ := json.Marshal(pusherproto.SubscribeData{Channel: "my-channel"})
	s.handleSubscribe(pusherproto.ClientEvent{Event: pusherproto.EventSubscribe, Data: data})
	<-s.sendQueue // drain the ack

	unsub, _ := json.Marshal(pusherproto.UnsubscribeData{Channel: "my-channel"})
	s.handleUnsubscribe(pusherproto.ClientEvent{Event: pusherproto.EventUnsubscribe, Data: unsub})

	ch, _ := s.App.Channels.Get("my-channel")
	if ch.SubscriptionCount() != 0 {
		t.Fatalf("expected 0 subscriptions after unsubscribe, got %d", ch.SubscriptionCount())
	}
}

func TestHandleUnsubscribeUnknownChannelEnqueuesError(t *testing.T) {
	s, c := newTestSession(t)
	defer c.Close()

	data, _ := json.Marshal(pusherproto.UnsubscribeData{Channel: "never-subscribed"})
	s.handleUnsubscribe(pusherproto.ClientEvent{Event: pusherproto.EventUnsubscribe, Data: data})

	select {
	case event := <-s.sendQueue:
		if event.Event != pusherproto.EventError {
			t.Fatalf("expected pusher:error, got %s", event.Event)
		}
	default:
		t.Fatal("expected an error event to be queued")
	}
}

func TestHandlePingRepliesWithPong(t *testing.T) {
	s, c := newTestSession(t)
	defer c.Close()

	s.handleFrame([]byte(`{"event":"pusher:ping"}`))

	select {
	case event := <-s.sendQueue:
		if event.Event != pusherproto.EventPong {
			t.Fatalf("expected pusher:pong, got %s", event.Event)
		}
	default:
		t.Fatal("expected a pong event to be queued")
	}
}

func TestHandleFrameMalformedJSONIsDropped(t *testing.T) {
	s, c := newTestSession(t)
	defer c.Close()

	s.handleFrame([]byte(`not json`))

	select {
	case event := <-s.sendQueue:
		t.Fatalf("expected no queued event for malformed frame, got %v", event)
	default:
	}
}

func TestHandleChannelEventPublishesToSubscribers(t *testing.T) {
	s, c := newTestSession(t)
	defer c.Close()

	subQueue := make(chan pusherproto.ServerEvent, 1)
	s.App.Channels.AddSubscription("room", &channel.Subscription{SocketID: "other-socket", SendQueue: subQueue})

	s.handleChannelEvent(pusherproto.ClientEvent{
		Event:   "client-typing",
		Channel: "room",
		Data:    json.RawMessage(`{"name":"alice"}`),
	})

	select {
	case event := <-subQueue:
		if event.Event != "client-typing" || event.Channel != "room" {
			t.Fatalf("unexpected event: %+v", event)
		}
	case <-time.After(time.Second):
		t.Fatal("expected the subscriber to receive the published event")
	}
}

func TestTeardownRemovesSocketFromAllChannels(t *testing.T) {
	s, c := newTestSession(t)
	defer c.Close()

	data, _ := json.Marshal(pusherproto.SubscribeData{Channel: "room-a"})
	s.handleSubscribe(pusherproto.ClientEvent{Event: pusherproto.EventSubscribe, Data: data})

	s.teardown()

	ch, _ := s.App.Channels.Get("room-a")
	if ch.SubscriptionCount() != 0 {
		t.Fatalf("expected teardown to remove the socket's subscriptions, got %d", ch.SubscriptionCount())
	}
	if s.CurrentState() != Closed {
		t.Fatalf("expected state Closed after teardown, got %v", s.CurrentState())
	}
}

package channel

import (
	"testing"

	"github.com/adred-codev/pulsewire/internal/pusherproto"
)

func TestClassifyName(t *testing.T) {
	cases := map[string]Kind{
		"news":           Public,
		"private-chat":   Private,
		"presence-lobby": Presence,
	}
	for name, want := range cases {
		if got := ClassifyName(name); got != want {
			t.Errorf("ClassifyName(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestAddSubscriptionReplacesOnSecondSubscribe(t *testing.T) {
	r := NewRegistry()
	ch := r.AddSubscription("news", NewSubscription("sock-1", nil, ""))
	r.AddSubscription("news", NewSubscription("sock-1", nil, ""))

	if got := ch.SubscriptionCount(); got != 1 {
		t.Fatalf("expected exactly one subscription, got %d", got)
	}
}

func TestPublishFanOutToAllSubscribers(t *testing.T) {
	r := NewRegistry()
	subA := NewSubscription("a", nil, "")
	subB := NewSubscription("b", nil, "")
	r.AddSubscription("news", subA)
	r.AddSubscription("news", subB)

	ev, _ := pusherproto.NewChannelEvent("update", "news", "hi", "")
	result := r.Publish("news", ev)

	if !result.Found || result.Delivered != 2 || result.Dropped != 0 {
		t.Fatalf("unexpected publish result: %+v", result)
	}

	select {
	case got := <-subA.SendQueue:
		if got.Event != "update" {
			t.Fatalf("unexpected event on subA: %+v", got)
		}
	default:
		t.Fatalf("subA did not receive the event")
	}
}

func TestPublishToUnknownChannelNotFound(t *testing.T) {
	r := NewRegistry()
	ev, _ := pusherproto.NewChannelEvent("update", "ghost", "x", "")
	result := r.Publish("ghost", ev)
	if result.Found {
		t.Fatalf("expected Found=false for an unknown channel")
	}
}

func TestPublishDropsOnFullQueue(t *testing.T) {
	r := NewRegistry()
	sub := NewSubscription("full", nil, "")
	r.AddSubscription("news", sub)

	// Fill the queue to capacity.
	for i := 0; i < SendQueueCapacity; i++ {
		sub.SendQueue <- pusherproto.ServerEvent{Event: "filler"}
	}

	ev, _ := pusherproto.NewChannelEvent("update", "news", "hi", "")
	result := r.Publish("news", ev)

	if result.Delivered != 0 || result.Dropped != 1 {
		t.Fatalf("expected the overflow send to be dropped, got %+v", result)
	}
}

func TestRemoveSocketFromAllChannels(t *testing.T) {
	r := NewRegistry()
	r.AddSubscription("news", NewSubscription("sock-1", nil, ""))
	r.AddSubscription("sports", NewSubscription("sock-1", nil, ""))

	r.RemoveSocketFromAll("sock-1")

	newsCh, _ := r.Get("news")
	sportsCh, _ := r.Get("sports")
	if newsCh.SubscriptionCount() != 0 || sportsCh.SubscriptionCount() != 0 {
		t.Fatalf("expected socket removed from every channel")
	}
}

func TestListFiltersUnoccupiedChannels(t *testing.T) {
	r := NewRegistry()
	sub := NewSubscription("sock-1", nil, "")
	r.AddSubscription("news", sub)
	r.RemoveSubscription("news", "sock-1")

	list := r.List("", false)
	if _, ok := list["news"]; ok {
		t.Fatalf("expected unoccupied channel to be filtered out of List")
	}
}

func TestListFiltersByPrefix(t *testing.T) {
	r := NewRegistry()
	r.AddSubscription("news-us", NewSubscription("sock-1", nil, ""))
	r.AddSubscription("sports-us", NewSubscription("sock-2", nil, ""))

	list := r.List("news-", false)
	if _, ok := list["news-us"]; !ok {
		t.Fatalf("expected news-us in filtered list")
	}
	if _, ok := list["sports-us"]; ok {
		t.Fatalf("did not expect sports-us in filtered list")
	}
}

func TestStatsPresenceUserCount(t *testing.T) {
	r := NewRegistry()
	r.AddSubscription("presence-lobby", NewSubscription("sock-1", nil, ""))

	info, ok := r.Stats("presence-lobby", true)
	if !ok {
		t.Fatalf("expected channel to exist")
	}
	if !info.HasUserCount {
		t.Fatalf("expected HasUserCount for a presence channel")
	}
}

func TestStatsPublicChannelOmitsUserCount(t *testing.T) {
	r := NewRegistry()
	r.AddSubscription("news", NewSubscription("sock-1", nil, ""))

	info, ok := r.Stats("news", true)
	if !ok {
		t.Fatalf("expected channel to exist")
	}
	if info.HasUserCount {
		t.Fatalf("public channel must never report user_count")
	}
}

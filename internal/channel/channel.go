// Package channel implements the per-app channel registry: the mapping
// from channel name to channel state, subscription bookkeeping, and
// fan-out publish.
package channel

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/adred-codev/pulsewire/internal/pusherproto"
)

// Kind is the tagged-variant discriminator for a Channel, determined at
// first creation from the channel name's prefix.
type Kind int

const (
	Public Kind = iota
	Private
	Presence
)

func (k Kind) String() string {
	switch k {
	case Private:
		return "private"
	case Presence:
		return "presence"
	default:
		return "public"
	}
}

// ClassifyName determines a channel's Kind from its name prefix:
// "private-*" -> Private, "presence-*" -> Presence, anything else -> Public.
func ClassifyName(name string) Kind {
	switch {
	case strings.HasPrefix(name, "private-"):
		return Private
	case strings.HasPrefix(name, "presence-"):
		return Presence
	default:
		return Public
	}
}

// SendQueueCapacity is the fixed depth of every subscription's delivery
// queue — the sole path from a publisher to the owning WebSocket writer.
const SendQueueCapacity = 1024

// Subscription binds one socket to one channel.
type Subscription struct {
	SocketID    string
	SendQueue   chan pusherproto.ServerEvent
	ChannelData json.RawMessage
	UserID      string
}

// NewSubscription allocates a Subscription with a freshly created, bounded
// send queue.
func NewSubscription(socketID string, channelData json.RawMessage, userID string) *Subscription {
	return &Subscription{
		SocketID:    socketID,
		SendQueue:   make(chan pusherproto.ServerEvent, SendQueueCapacity),
		ChannelData: channelData,
		UserID:      userID,
	}
}

// Channel is a named fan-out endpoint. subscriptions is keyed by socket-id;
// a socket-id appears at most once (a second Subscribe replaces the first).
// users (Presence only) maps user-id to opaque user-info; this
// implementation never populates it (see the expanded spec's §9
// resolution) but the field exists so the type shape matches the wire
// contract's presence roster concept.
type Channel struct {
	Name string
	Kind Kind

	mu            sync.RWMutex
	subscriptions map[string]*Subscription
	users         map[string]json.RawMessage
}

func newChannel(name string) *Channel {
	return &Channel{
		Name:          name,
		Kind:          ClassifyName(name),
		subscriptions: make(map[string]*Subscription),
		users:         make(map[string]json.RawMessage),
	}
}

// SubscriptionCount returns the number of live subscriptions.
func (c *Channel) SubscriptionCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subscriptions)
}

// UserCount returns the number of distinct presence users, or 0 for
// non-presence channels.
func (c *Channel) UserCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.users)
}

func (c *Channel) add(sub *Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriptions[sub.SocketID] = sub
}

func (c *Channel) remove(socketID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subscriptions, socketID)
}

// snapshotQueues returns the current send queues of every subscription,
// taken under a read lock and safe to range over after release.
func (c *Channel) snapshotQueues() []chan pusherproto.ServerEvent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	queues := make([]chan pusherproto.ServerEvent, 0, len(c.subscriptions))
	for _, sub := range c.subscriptions {
		queues = append(queues, sub.SendQueue)
	}
	return queues
}

// Registry is the per-app mapping from channel name to Channel. The name
// map is guarded by a readers-writer lock: GetOrCreate (and so
// AddSubscription) acquires it exclusive; Get, Publish, List, Stats,
// RemoveSubscription and RemoveSocketFromAll acquire it shared. Each
// Channel's subscription map has its own readers-writer lock, taken
// exclusive to add or remove a subscription and shared to read it.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]*Channel
}

// NewRegistry returns an empty channel registry.
func NewRegistry() *Registry {
	return &Registry{channels: make(map[string]*Channel)}
}

// GetOrCreate returns the channel with the given name, creating and
// classifying it if this is the first reference.
func (r *Registry) GetOrCreate(name string) *Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[name]
	if !ok {
		ch = newChannel(name)
		r.channels[name] = ch
	}
	return ch
}

// Get returns the channel with the given name, or false if it does not
// exist.
func (r *Registry) Get(name string) (*Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[name]
	return ch, ok
}

// AddSubscription inserts sub into the named channel, creating the channel
// if necessary.
func (r *Registry) AddSubscription(name string, sub *Subscription) *Channel {
	ch := r.GetOrCreate(name)
	ch.add(sub)
	return ch
}

// RemoveSubscription removes socketID's subscription from the named
// channel. It is a no-op if the channel or the subscription does not
// exist.
func (r *Registry) RemoveSubscription(name, socketID string) bool {
	r.mu.RLock()
	ch, ok := r.channels[name]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	ch.remove(socketID)
	return true
}

// RemoveSocketFromAll removes socketID from every channel in the registry.
// Called once at session teardown.
func (r *Registry) RemoveSocketFromAll(socketID string) {
	r.mu.RLock()
	channels := make([]*Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		channels = append(channels, ch)
	}
	r.mu.RUnlock()

	for _, ch := range channels {
		ch.remove(socketID)
	}
}

// PublishResult reports the outcome of a fan-out publish.
type PublishResult struct {
	Delivered int
	Dropped   int
	Found     bool
}

// Publish enqueues event onto every subscription's send queue for the named
// channel. A full queue is a dropped delivery, counted in
// PublishResult.Dropped and never surfaced as an error — fan-out continues
// to the remaining subscribers regardless.
func (r *Registry) Publish(name string, event pusherproto.ServerEvent) PublishResult {
	r.mu.RLock()
	ch, ok := r.channels[name]
	r.mu.RUnlock()
	if !ok {
		return PublishResult{Found: false}
	}

	queues := ch.snapshotQueues()
	result := PublishResult{Found: true}
	for _, q := range queues {
		select {
		case q <- event:
			result.Delivered++
		default:
			result.Dropped++
		}
	}
	return result
}

// Info is a point-in-time view of one channel's occupancy.
type Info struct {
	Occupied          bool
	SubscriptionCount int
	UserCount         int
	HasUserCount      bool
}

// Stats returns occupancy info for the named channel. includeUserCount
// should be true only when the caller asked for it (see the HTTP control
// plane's `info=user_count` query parameter) and the channel is Presence.
func (r *Registry) Stats(name string, includeUserCount bool) (Info, bool) {
	ch, ok := r.Get(name)
	if !ok {
		return Info{}, false
	}
	count := ch.SubscriptionCount()
	info := Info{
		Occupied:          count > 0,
		SubscriptionCount: count,
	}
	if includeUserCount && ch.Kind == Presence {
		info.UserCount = ch.UserCount()
		info.HasUserCount = true
	}
	return info, true
}

// List returns occupancy info for every occupied channel (subscription
// count > 0), optionally filtered to names with the given prefix.
func (r *Registry) List(filterPrefix string, includeUserCount bool) map[string]Info {
	r.mu.RLock()
	names := make([]string, 0, len(r.channels))
	chans := make([]*Channel, 0, len(r.channels))
	for name, ch := range r.channels {
		names = append(names, name)
		chans = append(chans, ch)
	}
	r.mu.RUnlock()

	out := make(map[string]Info)
	for i, name := range names {
		if filterPrefix != "" && !strings.HasPrefix(name, filterPrefix) {
			continue
		}
		ch := chans[i]
		count := ch.SubscriptionCount()
		if count == 0 {
			continue
		}
		info := Info{Occupied: true, SubscriptionCount: count}
		if includeUserCount && ch.Kind == Presence {
			info.UserCount = ch.UserCount()
			info.HasUserCount = true
		}
		out[name] = info
	}
	return out
}

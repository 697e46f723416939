// Package transport implements the WebSocket session state machine: the
// per-connection handshake, read loop, write loop, and teardown, built on
// gobwas/ws the way the donor's ws subproject does.
package transport

import (
	"bufio"
	"encoding/json"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/rs/zerolog"

	"github.com/adred-codev/pulsewire/internal/auditlog"
	"github.com/adred-codev/pulsewire/internal/auditstream"
	"github.com/adred-codev/pulsewire/internal/channel"
	"github.com/adred-codev/pulsewire/internal/logging"
	"github.com/adred-codev/pulsewire/internal/metrics"
	"github.com/adred-codev/pulsewire/internal/pusherapp"
	"github.com/adred-codev/pulsewire/internal/pusherproto"
	"github.com/adred-codev/pulsewire/internal/resourceguard"
	"github.com/adred-codev/pulsewire/internal/signing"
)

// State is the session's lifecycle position.
type State int32

const (
	Handshaking State = iota
	Open
	Closing
	Closed
)

const (
	// ActivityTimeout is the value advertised in connection_established;
	// clients are expected to ping at least this often.
	ActivityTimeout = 120

	pingPeriod = 50 * time.Second
	pongWait   = (ActivityTimeout + 30) * time.Second
	writeWait  = 10 * time.Second
)

// Session is the per-connection state machine: exactly one per upgraded
// socket. The session owns the consumer end of its send queue; the channel
// registry owns clones of the producer end inside each Subscription it
// holds for this socket. There is no strong reference cycle: teardown
// removes the registry's producer-side references, and the consumer end is
// dropped with the session.
type Session struct {
	SocketID string
	App      *pusherapp.App

	conn      net.Conn
	sendQueue chan pusherproto.ServerEvent

	state     int32
	closeOnce sync.Once

	logger zerolog.Logger
	audit  *auditlog.SocketLogger
	m      *metrics.Registry

	// Stream, when non-nil, receives a durable mirror of every client-event
	// this session publishes to a channel. Optional: nil when the Kafka
	// audit stream is not configured.
	Stream *auditstream.Producer

	// Guard, when non-nil, rate-limits this session's client-event
	// publishes against the server-wide broadcast budget.
	Guard *resourceguard.Guard

	onClose func()
}

// NewSession allocates a session with a freshly generated socket-id and a
// bounded response queue.
func NewSession(conn net.Conn, app *pusherapp.App, logger zerolog.Logger, audit *auditlog.Logger, m *metrics.Registry) (*Session, error) {
	socketID, err := signing.GenerateSocketID()
	if err != nil {
		return nil, err
	}
	s := &Session{
		SocketID:  socketID,
		App:       app,
		conn:      conn,
		sendQueue: make(chan pusherproto.ServerEvent, channel.SendQueueCapacity),
		state:     int32(Handshaking),
		logger:    logger.With().Str("socket_id", socketID).Logger(),
		audit:     audit.WithSocket(socketID),
		m:         m,
	}
	return s, nil
}

// OnClose registers a callback that Start invokes once, after teardown, as
// soon as either the reader or the writer goroutine has exited.
func (s *Session) OnClose(fn func()) {
	s.onClose = fn
}

// Start spawns the reader and writer goroutines and performs the handshake
// (enqueuing connection_established), then blocks until the session closes.
// Callers that want non-blocking semantics should invoke it in its own
// goroutine.
func (s *Session) Start() {
	established, err := pusherproto.NewConnectionEstablished(s.SocketID, ActivityTimeout)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to build connection_established event")
		s.terminate()
		return
	}

	select {
	case s.sendQueue <- established:
	default:
		s.logger.Error().Msg("response queue rejected connection_established at handshake")
		s.terminate()
		return
	}

	done := make(chan struct{}, 2)
	go s.writePump(done)
	go s.readPump(done)

	s.transition(Open)

	<-done
	s.teardown()
	if s.onClose != nil {
		s.onClose()
	}
}

func (s *Session) transition(to State) {
	atomic.StoreInt32(&s.state, int32(to))
}

// CurrentState returns the session's current lifecycle state.
func (s *Session) CurrentState() State {
	return State(atomic.LoadInt32(&s.state))
}

func (s *Session) terminate() {
	s.closeOnce.Do(func() {
		if s.conn != nil {
			s.conn.Close()
		}
	})
	s.transition(Closed)
}

func (s *Session) teardown() {
	s.transition(Closing)
	s.App.Channels.RemoveSocketFromAll(s.SocketID)
	s.terminate()
}

// writePump drains the send queue, batching available messages per wakeup
// to reduce syscalls, and sends a periodic ping.
func (s *Session) writePump(done chan<- struct{}) {
	defer logging.RecoverPanic(s.logger, "writePump", nil)
	defer func() { done <- struct{}{} }()

	writer := bufio.NewWriter(s.conn)
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-s.sendQueue:
			if !ok {
				wsutil.WriteServerMessage(s.conn, ws.OpClose, nil)
				return
			}

			s.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if err := s.writeEvent(writer, event); err != nil {
				s.logger.Debug().Err(err).Msg("failed to write event")
				return
			}

			n := len(s.sendQueue)
			for i := 0; i < n; i++ {
				next := <-s.sendQueue
				if err := s.writeEvent(writer, next); err != nil {
					s.logger.Debug().Err(err).Msg("failed to write batched event")
					return
				}
			}

			if err := writer.Flush(); err != nil {
				s.logger.Debug().Err(err).Msg("failed to flush writer")
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsutil.WriteServerMessage(s.conn, ws.OpPing, nil); err != nil {
				s.logger.Debug().Err(err).Msg("failed to send ping")
				return
			}
		}
	}
}

func (s *Session) writeEvent(w *bufio.Writer, event pusherproto.ServerEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := wsutil.WriteServerMessage(w, ws.OpText, payload); err != nil {
		return err
	}
	s.m.MessagesSent.Inc()
	s.m.BytesSent.Add(float64(len(payload)))
	return nil
}

// readPump reads client frames and dispatches decoded ClientEvents.
func (s *Session) readPump(done chan<- struct{}) {
	defer logging.RecoverPanic(s.logger, "readPump", nil)
	defer func() { done <- struct{}{} }()

	s.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		msg, op, err := wsutil.ReadClientData(s.conn)
		if err != nil {
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		s.m.MessagesReceived.Inc()
		s.m.BytesReceived.Add(float64(len(msg)))

		switch op {
		case ws.OpText:
			s.handleFrame(msg)
		case ws.OpClose:
			return
		default:
			// Ping/Pong control frames are handled by wsutil internally.
		}
	}
}

func (s *Session) handleFrame(raw []byte) {
	var ce pusherproto.ClientEvent
	if err := json.Unmarshal(raw, &ce); err != nil {
		s.logger.Debug().Err(err).Msg("failed to decode client event, dropping frame")
		return
	}

	switch ce.Event {
	case pusherproto.EventSubscribe:
		s.handleSubscribe(ce)
	case pusherproto.EventUnsubscribe:
		s.handleUnsubscribe(ce)
	case pusherproto.EventPing:
		s.enqueue(pusherproto.NewPong())
	default:
		s.handleChannelEvent(ce)
	}
}

func (s *Session) handleSubscribe(ce pusherproto.ClientEvent) {
	var data pusherproto.SubscribeData
	if len(ce.Data) > 0 {
		if err := json.Unmarshal(ce.Data, &data); err != nil {
			s.logger.Debug().Err(err).Msg("failed to decode subscribe data, dropping frame")
			return
		}
	}
	if data.Channel == "" {
		return
	}
	if !pusherproto.ValidateChannelName(data.Channel) {
		s.logger.Debug().Str("channel", data.Channel).Msg("subscribe to invalid channel name, dropping frame")
		return
	}

	// auth/channel_data are intentionally not verified here; see this
	// repository's resolution of the presence/subscribe-auth open question.
	sub := &channel.Subscription{
		SocketID:    s.SocketID,
		SendQueue:   s.sendQueue,
		ChannelData: data.ChannelData,
	}
	s.App.Channels.AddSubscription(data.Channel, sub)

	ack, err := pusherproto.NewSubscriptionSucceeded(data.Channel, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to build subscription_succeeded event")
		return
	}
	s.enqueue(ack)
}

func (s *Session) handleUnsubscribe(ce pusherproto.ClientEvent) {
	var data pusherproto.UnsubscribeData
	if len(ce.Data) > 0 {
		if err := json.Unmarshal(ce.Data, &data); err != nil {
			s.logger.Debug().Err(err).Msg("failed to decode unsubscribe data, dropping frame")
			return
		}
	}
	if data.Channel == "" {
		return
	}

	if !s.App.Channels.RemoveSubscription(data.Channel, s.SocketID) {
		s.enqueue(pusherproto.NewError(
			"No current subscription to channel "+data.Channel+", or subscription in progress", nil))
	}
}

func (s *Session) handleChannelEvent(ce pusherproto.ClientEvent) {
	if ce.Channel == "" {
		return
	}
	if !pusherproto.ValidateChannelName(ce.Channel) {
		s.logger.Debug().Str("channel", ce.Channel).Msg("client event on invalid channel name, dropped")
		return
	}
	if s.Guard != nil && !s.Guard.AllowBroadcast() {
		s.logger.Warn().Str("channel", ce.Channel).Msg("broadcast rate limit exceeded, dropping client event")
		return
	}
	var payload any
	if len(ce.Data) > 0 {
		_ = json.Unmarshal(ce.Data, &payload)
	}

	event, err := pusherproto.NewChannelEvent(ce.Event, ce.Channel, payload, "")
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to build channel event")
		return
	}

	start := time.Now()
	result := s.App.Channels.Publish(ce.Channel, event)
	s.m.PublishLatency.Observe(time.Since(start).Seconds())
	if !result.Found {
		s.logger.Debug().Str("channel", ce.Channel).Msg("client event on unknown channel, dropped")
		return
	}
	if result.Dropped > 0 {
		s.m.PublishDropped.Add(float64(result.Dropped))
	}
	if s.Stream != nil {
		s.Stream.Mirror(auditstream.Record{
			AppID:     s.App.ID,
			Channel:   ce.Channel,
			Event:     ce.Event,
			Data:      string(ce.Data),
			Timestamp: time.Now().UnixMilli(),
		})
	}
}

func (s *Session) enqueue(event pusherproto.ServerEvent) {
	select {
	case s.sendQueue <- event:
	default:
		s.logger.Warn().Str("event", event.Event).Msg("response queue full, dropping outbound event")
	}
}

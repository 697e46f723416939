// Package eventbridge subscribes to a NATS subject and republishes each
// inbound message into an app's channel registry as a trigger event — an
// alternate event-ingestion path alongside the signed HTTP control plane,
// adapted from the donor go-server subproject's NATS client.
package eventbridge

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/adred-codev/pulsewire/internal/auditstream"
	"github.com/adred-codev/pulsewire/internal/pusherapp"
	"github.com/adred-codev/pulsewire/internal/pusherproto"
)

// Config describes the NATS connection and the single subject this bridge
// consumes.
type Config struct {
	URL     string
	Subject string
}

// Message is the expected payload shape on Subject: enough to build a
// ServerEvent::ChannelEvent without any further lookup.
type Message struct {
	AppID   string `json:"app_id"`
	Event   string `json:"event"`
	Channel string `json:"channel"`
	Data    string `json:"data"`
}

// Bridge owns one NATS subscription for the server's lifetime.
type Bridge struct {
	conn   *nats.Conn
	sub    *nats.Subscription
	apps   *pusherapp.Registry
	logger zerolog.Logger

	// Stream, when non-nil, mirrors every NATS-triggered event to the
	// Kafka audit topic.
	Stream *auditstream.Producer
}

// Connect dials NATS and subscribes to cfg.Subject, dispatching each
// message onto the matching app's channel registry. The subscription is
// asynchronous; Connect returns once the subscribe call succeeds.
func Connect(cfg Config, apps *pusherapp.Registry, logger zerolog.Logger) (*Bridge, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.ConnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("connected to NATS")
		}),
		nats.DisconnectErrHandler(func(c *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("disconnected from NATS")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Msg("reconnected to NATS")
		}),
		nats.ErrorHandler(func(c *nats.Conn, s *nats.Subscription, err error) {
			logger.Error().Err(err).Msg("NATS error")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	b := &Bridge{conn: conn, apps: apps, logger: logger}

	sub, err := conn.Subscribe(cfg.Subject, b.handle)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", cfg.Subject, err)
	}
	b.sub = sub

	logger.Info().Str("subject", cfg.Subject).Msg("subscribed to NATS subject")
	return b, nil
}

func (b *Bridge) handle(msg *nats.Msg) {
	var m Message
	if err := json.Unmarshal(msg.Data, &m); err != nil {
		b.logger.Warn().Err(err).Msg("failed to decode NATS bridge message, dropping")
		return
	}
	if m.Channel == "" || m.Event == "" {
		b.logger.Warn().Msg("NATS bridge message missing event or channel, dropping")
		return
	}

	app, err := b.apps.FindByID(m.AppID)
	if err != nil {
		b.logger.Warn().Str("app_id", m.AppID).Msg("NATS bridge message references unknown app, dropping")
		return
	}

	event, err := pusherproto.NewChannelEvent(m.Event, m.Channel, m.Data, "")
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to build event from NATS message")
		return
	}
	result := app.Channels.Publish(m.Channel, event)
	if result.Found && b.Stream != nil {
		b.Stream.Mirror(auditstream.Record{
			AppID:     app.ID,
			Channel:   m.Channel,
			Event:     m.Event,
			Data:      m.Data,
			Timestamp: time.Now().UnixMilli(),
		})
	}
}

// Close unsubscribes and closes the underlying NATS connection.
func (b *Bridge) Close() {
	if b.sub != nil {
		_ = b.sub.Unsubscribe()
	}
	if b.conn != nil {
		b.conn.Close()
	}
}

package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/adred-codev/pulsewire/internal/auditstream"
	"github.com/adred-codev/pulsewire/internal/pusherapp"
	"github.com/adred-codev/pulsewire/internal/pusherproto"
)

// triggerEventBody mirrors the wire contract's EventRequestBody. Data is
// carried as a raw string — the caller is expected to have already
// JSON-encoded their payload, matching real Pusher trigger semantics — and
// is forwarded as-is into the double-encoded server event.
type triggerEventBody struct {
	Name     string   `json:"name"`
	Data     string   `json:"data"`
	Channels []string `json:"channels,omitempty"`
	Channel  string   `json:"channel,omitempty"`
	SocketID string   `json:"socket_id,omitempty"`
}

func (h *Handler) handleTriggerEvent(w http.ResponseWriter, r *http.Request, app *pusherapp.App) {
	var body triggerEventBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, ErrMissingParameters)
		return
	}

	targets := body.Channels
	if body.Channel != "" {
		targets = []string{body.Channel}
	}
	if len(targets) == 0 {
		writeError(w, ErrEventChannelEmpty)
		return
	}
	if ok, _ := pusherproto.ValidateChannels(targets); !ok {
		writeError(w, ErrMissingParameters)
		return
	}

	for _, target := range targets {
		if h.Guard != nil && !h.Guard.AllowBroadcast() {
			h.Logger.Warn().Str("channel", target).Msg("broadcast rate limit exceeded, dropping trigger")
			continue
		}

		event, err := pusherproto.NewChannelEvent(body.Name, target, body.Data, body.SocketID)
		if err != nil {
			h.Logger.Error().Err(err).Str("channel", target).Msg("failed to build triggered event")
			continue
		}

		start := time.Now()
		// Missing channels are silently skipped: Publish reports Found=false
		// and there is nothing further to do.
		result := app.Channels.Publish(target, event)
		if h.Transport != nil && h.Transport.Metrics != nil {
			h.Transport.Metrics.PublishLatency.Observe(time.Since(start).Seconds())
			if result.Dropped > 0 {
				h.Transport.Metrics.PublishDropped.Add(float64(result.Dropped))
			}
		}
		if result.Found && h.Stream != nil {
			h.Stream.Mirror(auditstream.Record{
				AppID:     app.ID,
				Channel:   target,
				Event:     body.Name,
				Data:      body.Data,
				Timestamp: time.Now().UnixMilli(),
			})
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{})
}

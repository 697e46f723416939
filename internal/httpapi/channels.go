package httpapi

import (
	"net/http"
	"strings"

	"github.com/adred-codev/pulsewire/internal/channel"
	"github.com/adred-codev/pulsewire/internal/pusherapp"
)

type channelInfo struct {
	UserCount         *int `json:"user_count,omitempty"`
	SubscriptionCount int  `json:"subscription_count"`
}

func toChannelInfo(info channel.Info) channelInfo {
	ci := channelInfo{SubscriptionCount: info.SubscriptionCount}
	if info.HasUserCount {
		uc := info.UserCount
		ci.UserCount = &uc
	}
	return ci
}

// wantsUserCount mirrors PusherQuery.is_channel_presence: user_count is
// only included when both "info=user_count" and a presence- prefix filter
// are present together.
func wantsUserCount(r *http.Request) bool {
	info := r.URL.Query().Get("info")
	prefix := r.URL.Query().Get("filter_by_prefix")
	return strings.Contains(info, "user_count") && strings.HasPrefix(prefix, "presence-")
}

func (h *Handler) handleListChannels(w http.ResponseWriter, r *http.Request, app *pusherapp.App) {
	prefix := r.URL.Query().Get("filter_by_prefix")
	includeUserCount := wantsUserCount(r)

	raw := app.Channels.List(prefix, includeUserCount)
	channels := make(map[string]channelInfo, len(raw))
	for name, info := range raw {
		channels[name] = toChannelInfo(info)
	}

	writeJSON(w, http.StatusOK, map[string]any{"channels": channels})
}

func (h *Handler) handleGetChannel(w http.ResponseWriter, r *http.Request, app *pusherapp.App) {
	name := r.PathValue("name")
	includeUserCount := wantsUserCount(r)

	info, ok := app.Channels.Stats(name, includeUserCount)
	if !ok {
		writeError(w, ErrChannelNotFound)
		return
	}

	resp := struct {
		Occupied bool `json:"occupied"`
		channelInfo
	}{Occupied: info.Occupied, channelInfo: toChannelInfo(info)}

	writeJSON(w, http.StatusOK, resp)
}

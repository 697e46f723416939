package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/adred-codev/pulsewire/internal/auditstream"
	"github.com/adred-codev/pulsewire/internal/pusherapp"
	"github.com/adred-codev/pulsewire/internal/resourceguard"
	"github.com/adred-codev/pulsewire/internal/transport"
)

// Handler builds Pulsewire's public HTTP surface: the signed control plane,
// the WebSocket upgrade route, and the unauthenticated health/index routes.
type Handler struct {
	Apps      *pusherapp.Registry
	Transport *transport.Server
	Guard     *resourceguard.Guard
	Logger    zerolog.Logger

	// Stream, when non-nil, mirrors every HTTP-triggered event to the
	// Kafka audit topic.
	Stream *auditstream.Producer
}

// NewMux wires every route onto a fresh http.ServeMux, the same
// plain-stdlib routing style the donor's ws subproject uses for its public
// listener.
func (h *Handler) NewMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", h.handleIndex)
	mux.HandleFunc("GET /health", h.handleHealth)

	mux.HandleFunc("POST /apps/{id}/events", h.withAppByID(h.handleTriggerEvent))
	mux.HandleFunc("GET /apps/{id}/channels", h.withAppByID(h.handleListChannels))
	mux.HandleFunc("GET /apps/{id}/channels/{name}", h.withAppByID(h.handleGetChannel))

	mux.HandleFunc("GET /app/{key}", h.handleUpgrade)

	return mux
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	http.NotFound(w, r)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if h.Guard != nil {
		body["resources"] = h.Guard.Snapshot()
	}
	writeJSON(w, http.StatusOK, body)
}

// withAppByID resolves the {id} path value to an *pusherapp.App, enforces
// the signature guard, and only then invokes next.
func (h *Handler) withAppByID(next func(http.ResponseWriter, *http.Request, *pusherapp.App)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		app, err := h.Apps.FindByID(r.PathValue("id"))
		if err != nil {
			writeError(w, ErrAppIDNotFound)
			return
		}
		if apiErr := verifySignature(r, app.Secret); apiErr != nil {
			writeError(w, apiErr)
			return
		}
		next(w, r, app)
	}
}

func (h *Handler) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	app, err := h.Apps.FindByKey(r.PathValue("key"))
	if err != nil {
		writeError(w, ErrAppKeyNotFound)
		return
	}
	if apiErr := verifySignature(r, app.Secret); apiErr != nil {
		writeError(w, apiErr)
		return
	}
	h.Transport.Upgrade(w, r, app)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

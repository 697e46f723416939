// Package httpapi implements the signed HTTP control plane: event
// injection, channel occupancy queries, and the WebSocket upgrade route,
// wired together the way the donor's ws subproject wires its http.ServeMux.
package httpapi

import "net/http"

// APIError is a control-plane error carrying the HTTP status it maps to
// and the exact message text the wire contract specifies. The response
// body's "code" field is the HTTP status itself, per the wire contract's
// worked examples (e.g. a bad signature yields {"code":401,...}).
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string { return e.Message }

// The error taxonomy. Messages and statuses are taken verbatim from the
// reference implementation's error/status tables, not guessed from the
// name.
var (
	ErrMissingParameters  = &APIError{http.StatusBadRequest, "Missing parameter"}
	ErrChannelNotFound    = &APIError{http.StatusNotFound, "Channel Not Found"}
	ErrChannelNotPresence = &APIError{http.StatusBadRequest, "This Channel Not Presence Channel"}
	ErrChannelsNotFound   = &APIError{http.StatusNotFound, "Channels is Empty"}
	ErrEventChannelEmpty  = &APIError{http.StatusNotFound, "Event Channel or Channels Field Cannot Be Empty"}
	ErrNotFound           = &APIError{http.StatusNotFound, "Pusher App Not Found"}
	ErrAppKeyNotFound     = &APIError{http.StatusNotFound, "There is no app with the app_key you specified"}
	ErrAppIDNotFound      = &APIError{http.StatusNotFound, "There is no app with the app_id you specified"}
	ErrAuthKeyMismatch    = &APIError{http.StatusUnauthorized, "Auth credentials is wrong"}
	ErrAuthSignatureError = &APIError{http.StatusUnauthorized, "Invalid Auth Signature."}
)

type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, err *APIError) {
	writeJSON(w, err.Status, errorBody{Code: err.Status, Message: err.Message})
}

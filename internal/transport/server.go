package transport

import (
	"net/http"
	"sync/atomic"

	"github.com/gobwas/ws"
	"github.com/rs/zerolog"

	"github.com/adred-codev/pulsewire/internal/auditlog"
	"github.com/adred-codev/pulsewire/internal/auditstream"
	"github.com/adred-codev/pulsewire/internal/metrics"
	"github.com/adred-codev/pulsewire/internal/pusherapp"
	"github.com/adred-codev/pulsewire/internal/ratelimit"
	"github.com/adred-codev/pulsewire/internal/resourceguard"
)

// Server upgrades incoming HTTP requests to WebSocket sessions, applying
// the admission-control checks (connection rate limit, resource guard)
// before the handshake and tracking the live connection count both guards
// depend on.
type Server struct {
	Logger  zerolog.Logger
	Audit   *auditlog.Logger
	Metrics *metrics.Registry
	Guard   *resourceguard.Guard
	Limiter *ratelimit.ConnectionLimiter

	// Stream, when non-nil, is attached to every session so published
	// client-events are mirrored to the Kafka audit topic.
	Stream *auditstream.Producer

	connections int64
}

// NewServer builds a transport Server. The returned *int64 is the live
// connection counter; pass it to resourceguard.New so admission checks see
// the same count this server maintains.
func NewServer(logger zerolog.Logger, audit *auditlog.Logger, m *metrics.Registry, limiter *ratelimit.ConnectionLimiter) (*Server, *int64) {
	s := &Server{Logger: logger, Audit: audit, Metrics: m, Limiter: limiter}
	return s, &s.connections
}

// Upgrade performs admission control, upgrades the HTTP connection to a
// WebSocket, and starts a Session bound to app. Non-upgrade failures are
// reported via the ResponseWriter; once the upgrade succeeds this method
// takes ownership of the underlying connection.
func (s *Server) Upgrade(w http.ResponseWriter, r *http.Request, app *pusherapp.App) {
	clientIP := clientIP(r)

	if s.Limiter != nil && !s.Limiter.Allow(clientIP) {
		s.Metrics.ConnectionsRejected.WithLabelValues("rate_limited").Inc()
		http.Error(w, "too many connection attempts", http.StatusTooManyRequests)
		return
	}

	if s.Guard != nil {
		if accept, reason := s.Guard.ShouldAcceptConnection(); !accept {
			s.Metrics.ConnectionsRejected.WithLabelValues("resource_limit").Inc()
			s.Audit.Warning("connection_rejected", reason, map[string]any{"ip": clientIP})
			http.Error(w, "server at capacity", http.StatusServiceUnavailable)
			return
		}
	}

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.Logger.Debug().Err(err).Str("ip", clientIP).Msg("websocket upgrade failed")
		return
	}

	if s.Guard != nil && !s.Guard.AcquireGoroutine() {
		s.Logger.Warn().Str("ip", clientIP).Msg("goroutine ceiling reached, rejecting connection")
		s.Metrics.ConnectionsRejected.WithLabelValues("goroutine_limit").Inc()
		conn.Close()
		return
	}

	session, err := NewSession(conn, app, s.Logger, s.Audit, s.Metrics)
	if err != nil {
		s.Logger.Error().Err(err).Msg("failed to allocate session")
		conn.Close()
		if s.Guard != nil {
			s.Guard.ReleaseGoroutine()
		}
		return
	}
	session.Stream = s.Stream
	session.Guard = s.Guard

	atomic.AddInt64(&s.connections, 1)
	s.Metrics.ConnectionsCurrent.Inc()
	s.Metrics.ConnectionsTotal.Inc()
	s.Audit.WithSocket(session.SocketID).Info("connection_opened", "websocket upgraded", map[string]any{"ip": clientIP, "app_id": app.ID})

	session.OnClose(func() {
		atomic.AddInt64(&s.connections, -1)
		s.Metrics.ConnectionsCurrent.Dec()
		s.Audit.WithSocket(session.SocketID).Info("connection_closed", "websocket closed", nil)
	})
	go func() {
		session.Start()
		if s.Guard != nil {
			s.Guard.ReleaseGoroutine()
		}
	}()
}

// Connections returns the current live connection count.
func (s *Server) Connections() int64 { return atomic.LoadInt64(&s.connections) }

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}

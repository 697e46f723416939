package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/adred-codev/pulsewire/internal/auditlog"
	"github.com/adred-codev/pulsewire/internal/channel"
	"github.com/adred-codev/pulsewire/internal/metrics"
	"github.com/adred-codev/pulsewire/internal/pusherapp"
	"github.com/adred-codev/pulsewire/internal/pusherproto"
	"github.com/adred-codev/pulsewire/internal/ratelimit"
	"github.com/adred-codev/pulsewire/internal/signing"
	"github.com/adred-codev/pulsewire/internal/transport"
)

var (
	testMetricsOnce sync.Once
	testMetrics     *metrics.Registry
)

func sharedMetrics() *metrics.Registry {
	testMetricsOnce.Do(func() { testMetrics = metrics.NewRegistry() })
	return testMetrics
}

func testHandler(t *testing.T) (*Handler, *pusherapp.App) {
	t.Helper()
	apps := pusherapp.NewRegistry([]pusherapp.Config{
		{ID: "1", Key: "testkey", Secret: "testsecret", Name: "test"},
	})
	app, err := apps.FindByID("1")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}

	limiter := ratelimit.NewConnectionLimiter(ratelimit.ConnectionLimiterConfig{Logger: zerolog.Nop()})
	t.Cleanup(limiter.Stop)

	srv, _ := transport.NewServer(zerolog.Nop(), auditlog.New(auditlog.Critical), sharedMetrics(), limiter)

	return &Handler{Apps: apps, Transport: srv, Logger: zerolog.Nop()}, app
}

func signedRequest(t *testing.T, method, path, secret string, extraQuery map[string]string) *http.Request {
	t.Helper()
	authKey := "testkey"
	timestampMs := time.Now().UnixMilli()
	authVersion := "1.0"

	toSign := signing.CanonicalString(method, path, authKey, timestampMs, authVersion, "")
	sig := signing.Sign(secret, toSign)

	req := httptest.NewRequest(method, path, nil)
	q := req.URL.Query()
	q.Set("auth_key", authKey)
	q.Set("auth_timestamp", strconv.FormatInt(timestampMs, 10))
	q.Set("auth_version", authVersion)
	q.Set("auth_signature", sig)
	for k, v := range extraQuery {
		q.Set(k, v)
	}
	req.URL.RawQuery = q.Encode()
	return req
}

func TestListChannelsRequiresValidSignature(t *testing.T) {
	h, _ := testHandler(t)
	mux := h.NewMux()

	req := httptest.NewRequest(http.MethodGet, "/apps/1/channels", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing auth params, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestListChannelsWithValidSignatureReturnsEmptyMap(t *testing.T) {
	h, _ := testHandler(t)
	mux := h.NewMux()

	req := signedRequest(t, http.MethodGet, "/apps/1/channels", "testsecret", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	channels, ok := body["channels"].(map[string]any)
	if !ok || len(channels) != 0 {
		t.Fatalf("expected an empty channels map, got %v", body["channels"])
	}
}

func TestTamperedSignatureIsRejected(t *testing.T) {
	h, _ := testHandler(t)
	mux := h.NewMux()

	req := signedRequest(t, http.MethodGet, "/apps/1/channels", "testsecret", nil)
	q := req.URL.Query()
	sig := q.Get("auth_signature")
	last := "0"
	if sig[len(sig)-1] == '0' {
		last = "1"
	}
	q.Set("auth_signature", sig[:len(sig)-1]+last)
	req.URL.RawQuery = q.Encode()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for tampered signature, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestUnknownAppIDReturns404(t *testing.T) {
	h, _ := testHandler(t)
	mux := h.NewMux()

	req := signedRequest(t, http.MethodGet, "/apps/999/channels", "testsecret", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown app id, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestTriggerEventWithNoChannelsReturns404(t *testing.T) {
	h, _ := testHandler(t)
	mux := h.NewMux()

	req := signedRequest(t, http.MethodPost, "/apps/1/events", "testsecret", nil)
	req.Body = io.NopCloser(strings.NewReader(`{"name":"update","data":"hello"}`))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for empty channel set, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestTriggerEventMalformedBodyReturns400(t *testing.T) {
	h, _ := testHandler(t)
	mux := h.NewMux()

	req := signedRequest(t, http.MethodPost, "/apps/1/events", "testsecret", nil)
	req.Body = io.NopCloser(strings.NewReader(`not json`))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestTriggerEventPublishesToSubscribedChannel(t *testing.T) {
	h, app := testHandler(t)
	mux := h.NewMux()

	sub := &channel.Subscription{SocketID: "sock-1", SendQueue: make(chan pusherproto.ServerEvent, 4)}
	app.Channels.AddSubscription("news", sub)

	req := signedRequest(t, http.MethodPost, "/apps/1/events", "testsecret", nil)
	req.Body = io.NopCloser(strings.NewReader(`{"name":"update","data":"hello","channel":"news"}`))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	select {
	case ev := <-sub.SendQueue:
		if ev.Event != "update" {
			t.Fatalf("expected the update event to be enqueued, got %+v", ev)
		}
	default:
		t.Fatal("expected an event to be enqueued to the subscriber")
	}
}

func TestGetChannelUnknownReturns404(t *testing.T) {
	h, _ := testHandler(t)
	mux := h.NewMux()

	req := signedRequest(t, http.MethodGet, "/apps/1/channels/never-subscribed", "testsecret", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown channel, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHealthEndpointIsUnauthenticated(t *testing.T) {
	h, _ := testHandler(t)
	mux := h.NewMux()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestIndexReturns404(t *testing.T) {
	h, _ := testHandler(t)
	mux := h.NewMux()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for index, got %d", rec.Code)
	}
}

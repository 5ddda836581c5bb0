package apiclient

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/pribylovaa/nihongo-study/pkg/log"
	"github.com/stretchr/testify/require"
)

type capHandler struct {
	mu      sync.Mutex
	base    []slog.Attr
	lastMsg string
	lastLvl slog.Level
	attrs   map[string]any
	count   map[string]int
}

func (h *capHandler) Enabled(context.Context, slog.Level) bool { return true }
func (h *capHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make(map[string]any, len(h.base)+8)
	for _, a := range h.base {
		out[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		out[a.Key] = a.Value.Any()
		return true
	})
	if h.count == nil {
		h.count = make(map[string]int)
	}
	h.count[r.Message]++
	h.lastMsg = r.Message
	h.lastLvl = r.Level
	h.attrs = out
	return nil
}

func (h *capHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.base = append(h.base, attrs...)
	return h
}

func (h *capHandler) WithGroup(string) slog.Handler { return h }

func TestWithMetadata_SetsHeaders(t *testing.T) {
	t.Parallel()

	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
	}))
	t.Cleanup(srv.Close)

	rt := chain(http.DefaultTransport, withMetadata("nihongo-cli"))

	ctx := log.WithRequestID(context.Background(), "rid-123")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/vocabularies", nil)
	require.NoError(t, err)

	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, "rid-123", got.Get("X-Request-Id"))
	require.Equal(t, "nihongo-cli", got.Get("User-Agent"))
	// Исходный запрос не изменён.
	require.Empty(t, req.Header.Get("X-Request-Id"))
}

func TestWithMetadata_GeneratesRequestID(t *testing.T) {
	t.Parallel()

	var rid string
	next := roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		rid = r.Header.Get("X-Request-Id")
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
	})

	req, err := http.NewRequest(http.MethodGet, "http://example.test/", nil)
	require.NoError(t, err)

	_, err = withMetadata("")(next).RoundTrip(req)
	require.NoError(t, err)
	require.Len(t, rid, 36)
}

func TestWithLogging_LogsStatusAndError(t *testing.T) {
	t.Parallel()

	h := &capHandler{}
	lg := slog.New(h)

	ok := roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusUnauthorized, Body: http.NoBody}, nil
	})
	req, err := http.NewRequest(http.MethodPost, "http://example.test/api/auth/refresh", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-Id", "rid-1")

	_, err = withLogging(lg)(ok).RoundTrip(req)
	require.NoError(t, err)

	h.mu.Lock()
	require.Equal(t, "http_client", h.lastMsg)
	require.Equal(t, slog.LevelInfo, h.lastLvl)
	require.Equal(t, int64(http.StatusUnauthorized), h.attrs["status"])
	require.Equal(t, "/api/auth/refresh", h.attrs["path"])
	require.Equal(t, "rid-1", h.attrs["request_id"])
	h.mu.Unlock()

	broken := roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})
	_, err = withLogging(lg)(broken).RoundTrip(req)
	require.Error(t, err)

	h.mu.Lock()
	require.Equal(t, slog.LevelWarn, h.lastLvl)
	require.Equal(t, "connection refused", h.attrs["err"])
	h.mu.Unlock()
}

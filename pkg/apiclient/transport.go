package apiclient

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/nihongo-study/pkg/log"
)

// roundTripperFunc - адаптер функции к http.RoundTripper.
type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// middleware - обёртка исходящего транспорта.
type middleware func(http.RoundTripper) http.RoundTripper

// chain собирает транспорт: первый middleware - внешний.
func chain(base http.RoundTripper, mws ...middleware) http.RoundTripper {
	rt := base
	for i := len(mws) - 1; i >= 0; i-- {
		rt = mws[i](rt)
	}

	return rt
}

// withMetadata добавляет X-Request-Id (из контекста или новый uuid) и User-Agent.
// Запрос клонируется: RoundTripper не должен менять входной *http.Request.
func withMetadata(userAgent string) middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return roundTripperFunc(func(r *http.Request) (*http.Response, error) {
			r = r.Clone(r.Context())

			if r.Header.Get("X-Request-Id") == "" {
				rid := log.RequestID(r.Context())
				if rid == "" {
					rid = uuid.NewString()
				}
				r.Header.Set("X-Request-Id", rid)
			}

			if userAgent != "" && r.Header.Get("User-Agent") == "" {
				r.Header.Set("User-Agent", userAgent)
			}

			return next.RoundTrip(r)
		})
	}
}

// withLogging пишет одну запись на исходящий запрос: метод, путь, статус, длительность.
func withLogging(base *slog.Logger) middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return roundTripperFunc(func(r *http.Request) (*http.Response, error) {
			start := time.Now()
			l := base.With(
				slog.String("request_id", r.Header.Get("X-Request-Id")),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)

			resp, err := next.RoundTrip(r)
			dur := time.Since(start)
			if err != nil {
				l.Warn("http_client",
					slog.Duration("duration", dur),
					slog.String("err", err.Error()),
				)
				return nil, err
			}

			lvl := slog.LevelInfo
			if resp.StatusCode >= http.StatusInternalServerError {
				lvl = slog.LevelWarn
			}
			l.Log(r.Context(), lvl, "http_client",
				slog.Int("status", resp.StatusCode),
				slog.Duration("duration", dur),
			)

			return resp, nil
		})
	}
}

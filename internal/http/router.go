package http

import (
	"log/slog"
	"net/http"
	"time"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pribylovaa/nihongo-study/internal/config"
	apierrors "github.com/pribylovaa/nihongo-study/internal/errors"
	"github.com/pribylovaa/nihongo-study/internal/http/handlers"
	"github.com/pribylovaa/nihongo-study/internal/http/middleware"
	"github.com/pribylovaa/nihongo-study/pkg/envelope"
)

// Options - параметры сборки HTTP-роутера.
type Options struct {
	Logger  *slog.Logger
	Timeout time.Duration
	Cookie  config.CookieConfig
	// Registerer - куда регистрировать HTTP-метрики; nil - не регистрировать.
	Registerer prometheus.Registerer
}

// NewRouter собирает http.Handler с chi и подключёнными middleware/роутами.
func NewRouter(svc handlers.AuthService, opts Options) http.Handler {
	root := chi.NewRouter()

	// Middleware (внешний -> внутренний).
	root.Use(
		middleware.Recover(), // безопасно ловим паники
		sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle,
		middleware.RequestID(), // X-Request-Id до логирования
		middleware.Logging(opts.Logger),
		middleware.Metrics(opts.Registerer),
		middleware.Timeout(opts.Timeout),
	)

	root.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		apierrors.WriteJSON(w, http.StatusNotFound, envelope.Message(envelope.Code(http.StatusNotFound), "Not found"))
	})

	h := handlers.New(svc, opts.Cookie)
	registerRoutes(root, h, svc)

	return root
}

// registerRoutes - единая точка регистрации всех REST-эндпойнтов.
func registerRoutes(r chi.Router, h *handlers.Handlers, auth middleware.Authenticator) {
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Post("/signup", h.Signup)
		r.Post("/logout", h.Logout)
		r.Post("/refresh", h.Refresh)

		r.With(middleware.Session(auth)).Get("/me", h.Me)
	})

	r.With(middleware.Session(auth)).Get("/api/users/me", h.Me)
}

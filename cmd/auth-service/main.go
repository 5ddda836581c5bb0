package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pribylovaa/nihongo-study/internal/cache"
	"github.com/pribylovaa/nihongo-study/internal/config"
	authhttp "github.com/pribylovaa/nihongo-study/internal/http"
	"github.com/pribylovaa/nihongo-study/internal/service"
	"github.com/pribylovaa/nihongo-study/internal/storage/postgres"
)

// Константы для определения окружения.
const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)
	log.Info("starting auth-service", "env", cfg.Env)

	if err := setupSentry(cfg.Sentry, cfg.Env); err != nil {
		log.Warn("sentry_init_failed", slog.String("err", err.Error()))
	}
	defer sentry.Flush(2 * time.Second)

	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCancel()

	// Подключение к БД c таймаутом.
	dbCtx, dbCancel := context.WithTimeout(rootCtx, 10*time.Second)
	str, err := postgres.New(dbCtx, cfg.DB.DatabaseURL)
	dbCancel()
	if err != nil {
		log.Error("postgres_connect_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer str.Close()
	log.Info("postgres_connected")

	svc := service.New(str, cfg.Auth)

	// Кэш refresh-токенов опционален: без Redis сервис ходит только в БД.
	if cfg.Redis.RedisURL != "" {
		rcCtx, rcCancel := context.WithTimeout(rootCtx, 5*time.Second)
		rc, err := cache.NewRedisCache(rcCtx, cfg.Redis.RedisURL, cfg.Redis.Prefix)
		rcCancel()
		if err != nil {
			log.Warn("redis_unavailable_cache_disabled", slog.String("err", err.Error()))
		} else {
			defer func() {
				if cerr := rc.Close(); cerr != nil {
					log.Warn("redis_close_failed", slog.String("err", cerr.Error()))
				}
			}()
			svc.SetRefreshCache(rc)
			log.Info("redis_cache_enabled")
		}
	}
	log.Info("service_initialized")

	apiHandler := authhttp.NewRouter(svc, authhttp.Options{
		Logger:     log,
		Timeout:    cfg.Timeouts.Request,
		Cookie:     cfg.Cookie,
		Registerer: prometheus.DefaultRegisterer,
	})

	var ready int32 // 0 - not ready; 1 - ready

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if atomic.LoadInt32(&ready) != 1 {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := str.Ping(ctx); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", apiHandler)

	// Фоновая очистка просроченных refresh-токенов.
	startRefreshJanitor(rootCtx, svc, log, cfg.Timeouts.Janitor)

	httpAddr := cfg.HTTP.Addr()
	httpSrv := &http.Server{
		Addr:              httpAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", httpAddr)
	if err != nil {
		log.Error("http_listen_failed", slog.String("addr", httpAddr), slog.String("err", err.Error()))
		os.Exit(1)
	}
	log.Info("http_listen_start", slog.String("addr", httpAddr))

	serveErrCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
		}
		close(serveErrCh)
	}()

	atomic.StoreInt32(&ready, 1)
	log.Info("auth_service_ready")

	select {
	case <-rootCtx.Done():
		log.Info("shutdown_requested")
	case err := <-serveErrCh:
		if err != nil {
			log.Error("http_serve_failed", slog.String("err", err.Error()))
		}
	}

	atomic.StoreInt32(&ready, 0)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.Shutdown)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http_shutdown_incomplete", slog.String("err", err.Error()))
	} else {
		log.Info("http_stopped")
	}

	log.Info("service_stopped")
}

// setupLogger настраивает slog по окружению.
func setupLogger(env string) *slog.Logger {
	switch env {
	case envLocal:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envDev:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envProd:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}

// setupSentry включает отчёты об ошибках, если задан DSN.
func setupSentry(cfg config.SentryConfig, env string) error {
	if cfg.DSN == "" {
		return nil
	}

	return sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      env,
		SampleRate:       cfg.SampleRate,
		AttachStacktrace: true,
	})
}

// startRefreshJanitor периодически удаляет просроченные refresh-токены.
func startRefreshJanitor(ctx context.Context, svc *service.Service, log *slog.Logger, period time.Duration) {
	if period <= 0 {
		return
	}

	go func() {
		t := time.NewTicker(period)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				n, err := svc.CleanupExpired(ctx)
				if err != nil {
					log.Error("refresh_janitor_failed", slog.String("err", err.Error()))
					continue
				}
				if n > 0 {
					log.Info("refresh_janitor_deleted", slog.Int64("count", n))
				}
			}
		}
	}()
}

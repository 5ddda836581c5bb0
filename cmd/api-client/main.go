// api-client - консольный клиент auth-API: входит, проверяет сессию,
// отправляет пачку параллельных запросов через общий Coordinator и выходит.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/pribylovaa/nihongo-study/internal/config"
	"github.com/pribylovaa/nihongo-study/pkg/apiclient"
	"github.com/pribylovaa/nihongo-study/pkg/redact"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	cfg := config.MustLoadClient(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("api_client_failed", slog.String("err", err.Error()))
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.ClientConfig, log *slog.Logger) error {
	cl, err := apiclient.New(apiclient.Options{
		BaseURL:        cfg.API.BaseURL,
		UserAgent:      cfg.API.UserAgent,
		Timeout:        cfg.API.Timeout,
		RefreshTimeout: cfg.API.RefreshTimeout,
		MaxQueue:       cfg.API.MaxQueue,
		LoginPath:      cfg.API.LoginPath,
		Logger:         log,
		OnSessionExpired: func(loginPath string, err error) {
			log.Warn("session_expired_redirect",
				slog.String("to", loginPath),
				slog.String("err", err.Error()),
			)
		},
	})
	if err != nil {
		return err
	}

	if cfg.Credentials.Username != "" {
		env, err := cl.Login(ctx, apiclient.LoginRequest{
			Username: cfg.Credentials.Username,
			Password: cfg.Credentials.Password,
		})
		if err != nil {
			return err
		}
		log.Info("logged_in",
			slog.String("username", redact.Username(cfg.Credentials.Username)),
			slog.String("msg", env.Msg),
		)
	}

	sess, redirect, err := cl.RequireSession(ctx)
	if err != nil {
		return err
	}
	if redirect != "" {
		log.Warn("not_logged_in", slog.String("redirect", redirect))
		return nil
	}
	log.Info("session_active",
		slog.String("user_id", sess.User.ID),
		slog.String("nickname", sess.User.Nickname),
		slog.String("role", sess.User.Role),
	)

	for round := 0; round < cfg.Burst.Rounds; round++ {
		burst(ctx, cl, cfg.Burst.Paths, round, log)
	}

	log.Info("burst_done", slog.Uint64("session_refreshes", cl.Coordinator().Epoch()))

	if _, err := cl.Logout(ctx); err != nil {
		return err
	}
	log.Info("logged_out")

	return nil
}

// burst отправляет запросы ко всем путям одновременно; ошибки отдельных путей
// логируются и не прерывают остальные.
func burst(ctx context.Context, cl *apiclient.Client, paths []string, round int, log *slog.Logger) {
	var g errgroup.Group

	for _, p := range paths {
		g.Go(func() error {
			env, err := apiclient.Call[json.RawMessage](ctx, cl, apiclient.Request{Method: http.MethodGet, Path: p})
			switch {
			case errors.Is(err, apiclient.ErrUnauthenticated):
				log.Warn("burst_unauthenticated", slog.Int("round", round), slog.String("path", p))
			case err != nil:
				log.Warn("burst_request_failed",
					slog.Int("round", round),
					slog.String("path", p),
					slog.Int("status", apiclient.StatusCode(err)),
					slog.String("err", err.Error()),
				)
			default:
				log.Info("burst_request_ok",
					slog.Int("round", round),
					slog.String("path", p),
					slog.String("result_code", env.ResultCode),
				)
			}
			return nil
		})
	}

	_ = g.Wait()
}

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

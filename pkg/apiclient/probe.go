package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// UserInfo - текущий пользователь, как его возвращает эндпойнт «кто я».
type UserInfo struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Nickname string `json:"nickname"`
	Role     string `json:"role"`
}

// Session - результат проверки сессии.
type Session struct {
	Authenticated bool
	User          *UserInfo
}

// Probe спрашивает у сервера текущего пользователя.
//
// 401/403 - это нормальный результат «не залогинен» (Authenticated=false, err=nil):
// refresh при этом не запускается. Остальные сбои возвращаются как ошибка.
func (c *Client) Probe(ctx context.Context) (Session, error) {
	const op = "apiclient.Probe"

	env, err := Call[UserInfo](ctx, c, Request{Method: http.MethodGet, Path: c.probePath})
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			return Session{}, nil
		}
		return Session{}, fmt.Errorf("%s: %w", op, err)
	}

	u, ok := env.Value()
	if !ok {
		return Session{}, fmt.Errorf("%s: %w", op, ErrNoData)
	}

	return Session{Authenticated: true, User: &u}, nil
}

// RequireSession - проверка перед показом защищённого экрана.
// Возвращает путь для редиректа ("" если сессия есть).
func (c *Client) RequireSession(ctx context.Context) (Session, string, error) {
	s, err := c.Probe(ctx)
	if err != nil {
		return Session{}, "", err
	}
	if !s.Authenticated {
		return s, c.loginPath, nil
	}

	return s, "", nil
}

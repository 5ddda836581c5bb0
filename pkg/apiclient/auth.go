package apiclient

import (
	"context"
	"net/http"

	"github.com/pribylovaa/nihongo-study/pkg/envelope"
)

// LoginRequest - тело POST /api/auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SignupRequest - тело POST /api/auth/signup.
type SignupRequest struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
	Email           string `json:"email"`
	Nickname        string `json:"nickname"`
}

// Login входит и получает куки сессии. Неверные учётные данные - *HTTPError 401.
func (c *Client) Login(ctx context.Context, in LoginRequest) (*envelope.Envelope[envelope.Empty], error) {
	return Call[envelope.Empty](ctx, c, Request{Method: http.MethodPost, Path: PathLogin, Body: in})
}

// Signup регистрирует пользователя. Ошибки валидации - *HTTPError 400 с Msg.
func (c *Client) Signup(ctx context.Context, in SignupRequest) (*envelope.Envelope[envelope.Empty], error) {
	return Call[envelope.Empty](ctx, c, Request{Method: http.MethodPost, Path: PathSignup, Body: in})
}

// Logout завершает сессию; сервер отзывает refresh-токен и стирает куки.
func (c *Client) Logout(ctx context.Context) (*envelope.Envelope[envelope.Empty], error) {
	return Call[envelope.Empty](ctx, c, Request{Method: http.MethodPost, Path: PathLogout})
}

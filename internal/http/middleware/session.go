package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	apierrors "github.com/pribylovaa/nihongo-study/internal/errors"
)

// CookieAccessToken - имя HttpOnly-куки с access-токеном.
const CookieAccessToken = "accessToken"

type userIDKey struct{}

// Authenticator проверяет access-токен (реализуется service.Service).
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (uuid.UUID, error)
}

// Session требует валидный access-токен: кука accessToken,
// а при её отсутствии заголовок "Authorization: Bearer ...".
// ID пользователя кладётся в контекст (см. UserID).
func Session(auth Authenticator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := accessToken(r)
			if token == "" {
				apierrors.WriteError(w, r, apierrors.ErrNoSession)
				return
			}

			uid, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				apierrors.WriteError(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey{}, uid)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserID возвращает ID пользователя, положенный Session.
func UserID(ctx context.Context) (uuid.UUID, bool) {
	uid, ok := ctx.Value(userIDKey{}).(uuid.UUID)
	return uid, ok
}

func accessToken(r *http.Request) string {
	if c, err := r.Cookie(CookieAccessToken); err == nil && c.Value != "" {
		return c.Value
	}

	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
		return strings.TrimSpace(auth[len(prefix):])
	}

	return ""
}

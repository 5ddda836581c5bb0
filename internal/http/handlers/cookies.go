package handlers

import (
	"net/http"
	"time"

	"github.com/pribylovaa/nihongo-study/internal/http/middleware"
	"github.com/pribylovaa/nihongo-study/internal/models"
)

// CookieRefreshToken - имя HttpOnly-куки с refresh-токеном.
const CookieRefreshToken = "refreshToken"

// setSessionCookies выставляет обе куки сессии; Max-Age равен TTL токена.
func (h *Handlers) setSessionCookies(w http.ResponseWriter, pair *models.TokenPair) {
	http.SetCookie(w, h.newCookie(middleware.CookieAccessToken, pair.AccessToken, h.svc.AccessTTL()))
	http.SetCookie(w, h.newCookie(CookieRefreshToken, pair.RefreshToken, h.svc.RefreshTTL()))
}

// clearSessionCookies стирает обе куки (Max-Age<0).
func (h *Handlers) clearSessionCookies(w http.ResponseWriter) {
	http.SetCookie(w, h.newCookie(middleware.CookieAccessToken, "", -1))
	http.SetCookie(w, h.newCookie(CookieRefreshToken, "", -1))
}

func (h *Handlers) newCookie(name, value string, ttl time.Duration) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     h.cookie.Path,
		Domain:   h.cookie.Domain,
		Secure:   h.cookie.Secure,
		HttpOnly: true,
		SameSite: h.cookie.SameSiteMode(),
	}
	if c.Path == "" {
		c.Path = "/"
	}

	if ttl < 0 {
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
	} else {
		c.MaxAge = int(ttl / time.Second)
	}

	return c
}

func refreshCookie(r *http.Request) string {
	c, err := r.Cookie(CookieRefreshToken)
	if err != nil {
		return ""
	}
	return c.Value
}

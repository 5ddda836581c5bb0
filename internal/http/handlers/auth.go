package handlers

import (
	"net/http"

	apierrors "github.com/pribylovaa/nihongo-study/internal/errors"
	"github.com/pribylovaa/nihongo-study/internal/http/middleware"
	"github.com/pribylovaa/nihongo-study/internal/models"
	"github.com/pribylovaa/nihongo-study/internal/service"
	"github.com/pribylovaa/nihongo-study/pkg/envelope"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type signupRequest struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
	Email           string `json:"email"`
	Nickname        string `json:"nickname"`
}

// userResponse - данные эндпойнтов «кто я».
type userResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Nickname string `json:"nickname"`
	Role     string `json:"role"`
}

func userFromModel(u *models.User) userResponse {
	return userResponse{
		ID:       u.ID.String(),
		Username: u.Username,
		Email:    u.Email,
		Nickname: u.Nickname,
		Role:     string(u.Role),
	}
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, apierrors.ErrBadRequest)
		return
	}

	pair, _, err := h.svc.Login(r.Context(), in.Username, in.Password)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	h.setSessionCookies(w, pair)
	apierrors.WriteJSON(w, http.StatusOK, envelope.Message(envelope.Code(http.StatusOK), "Login successful"))
}

// Signup отвечает HTTP 200 с resultCode "201": клиенты смотрят на resultCode.
func (h *Handlers) Signup(w http.ResponseWriter, r *http.Request) {
	var in signupRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, apierrors.ErrBadRequest)
		return
	}

	_, err := h.svc.Signup(r.Context(), service.SignupInput{
		Username:        in.Username,
		Password:        in.Password,
		PasswordConfirm: in.PasswordConfirm,
		Email:           in.Email,
		Nickname:        in.Nickname,
	})
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	apierrors.WriteJSON(w, http.StatusOK, envelope.Message(envelope.Code(http.StatusCreated), "Signup successful"))
}

// Logout отзывает refresh-токен и стирает куки. Без куки тоже 200.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Logout(r.Context(), refreshCookie(r)); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	h.clearSessionCookies(w)
	apierrors.WriteJSON(w, http.StatusOK, envelope.Message(envelope.Code(http.StatusOK), "Logout successful"))
}

// Refresh ротирует пару токенов по куке refreshToken.
// При отказе куки стираются, чтобы клиент не повторял попытку с мёртвым токеном.
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	token := refreshCookie(r)
	if token == "" {
		apierrors.WriteError(w, r, apierrors.ErrNoSession)
		return
	}

	pair, err := h.svc.Refresh(r.Context(), token)
	if err != nil {
		if status, _ := apierrors.ToHTTP(err); status == http.StatusUnauthorized {
			h.clearSessionCookies(w)
		}
		apierrors.WriteError(w, r, err)
		return
	}

	h.setSessionCookies(w, pair)
	apierrors.WriteJSON(w, http.StatusOK, envelope.Message(envelope.Code(http.StatusOK), "Token refreshed"))
}

// Me возвращает текущего пользователя; маршрут закрыт middleware.Session.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	uid, ok := middleware.UserID(r.Context())
	if !ok {
		apierrors.WriteError(w, r, apierrors.ErrNoSession)
		return
	}

	u, err := h.svc.Me(r.Context(), uid)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	apierrors.WriteJSON(w, http.StatusOK, envelope.New(envelope.Code(http.StatusOK), "OK", userFromModel(u)))
}

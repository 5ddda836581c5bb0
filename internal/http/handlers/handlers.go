package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/nihongo-study/internal/config"
	"github.com/pribylovaa/nihongo-study/internal/models"
	"github.com/pribylovaa/nihongo-study/internal/service"
)

// maxBodyBytes ограничивает размер JSON-тела запросов.
const maxBodyBytes = 1 << 20

// AuthService - бизнес-операции, нужные хендлерам (реализуется service.Service).
type AuthService interface {
	Signup(ctx context.Context, in service.SignupInput) (*models.User, error)
	Login(ctx context.Context, username, password string) (*models.TokenPair, *models.User, error)
	Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	Authenticate(ctx context.Context, accessToken string) (uuid.UUID, error)
	Me(ctx context.Context, userID uuid.UUID) (*models.User, error)
	AccessTTL() time.Duration
	RefreshTTL() time.Duration
}

// Handlers агрегирует зависимости HTTP-хендлеров.
type Handlers struct {
	svc    AuthService
	cookie config.CookieConfig
}

func New(svc AuthService, cookie config.CookieConfig) *Handlers {
	return &Handlers{svc: svc, cookie: cookie}
}

// decodeStrict - строгий JSON-декодер: запрещаем неизвестные поля.
func decodeStrict(w http.ResponseWriter, r *http.Request, value any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(value)
}

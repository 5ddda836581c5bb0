// service содержит бизнес-логику auth-сервера nihongo-study:
// регистрацию и вход по логину/паролю, выпуск/проверку/ротацию токенов
// сессии и работу с хранилищем через интерфейсы из пакета storage.
//
// Основные аспекты:
//   - Service не хранит состояние запроса; экземпляр безопасен для
//     конкурентного использования при потокобезопасном storage.Storage.
//   - Ротация refresh-токена атомарна на уровне хранилища: из двух
//     параллельных refresh одного токена успешен ровно один, второй
//     получает ErrTokenRevoked.
//   - Ошибки маппятся на HTTP-статусы и конверты в internal/errors.
package service

import (
	"errors"
	"time"

	"github.com/pribylovaa/nihongo-study/internal/cache"
	"github.com/pribylovaa/nihongo-study/internal/config"
	"github.com/pribylovaa/nihongo-study/internal/storage"
)

var (
	// ErrInvalidCredentials - пара логин/пароль неверна или пользователь не найден. HTTP 401.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken - токен некорректен по формату/подписи или отсутствует в хранилище. HTTP 401.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired - срок действия токена истёк. HTTP 401.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenRevoked - токен отозван (logout/ротация). HTTP 401.
	ErrTokenRevoked = errors.New("token revoked")

	// ErrMissingField - не заполнено обязательное поле. HTTP 400.
	ErrMissingField = errors.New("required field is empty")

	// ErrInvalidEmail - e-mail имеет некорректный формат. HTTP 400.
	ErrInvalidEmail = errors.New("invalid email format")

	// ErrWeakPassword - пароль короче минимальной длины. HTTP 400.
	ErrWeakPassword = errors.New("password is too weak")

	// ErrPasswordMismatch - пароль и подтверждение не совпадают. HTTP 400.
	ErrPasswordMismatch = errors.New("passwords do not match")

	// ErrUsernameTaken - логин занят. HTTP 400.
	ErrUsernameTaken = errors.New("username already taken")

	// ErrNicknameTaken - никнейм занят. HTTP 400.
	ErrNicknameTaken = errors.New("nickname already taken")

	// ErrEmailTaken - e-mail занят. HTTP 400.
	ErrEmailTaken = errors.New("email already taken")

	// ErrRefreshTokenCollision - исчерпаны попытки сгенерировать уникальный refresh-токен. HTTP 500.
	ErrRefreshTokenCollision = errors.New("refresh token collision")
)

// Service описывает бизнес-логику auth-сервера.
type Service struct {
	storage storage.Storage
	cfg     config.AuthConfig
	rcache  cache.RefreshCache // может быть nil, если кэш не сконфигурирован
	now     func() time.Time
}

// New создаёт новый экземпляр Service.
func New(storage storage.Storage, cfg config.AuthConfig) *Service {
	return &Service{
		storage: storage,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetRefreshCache устанавливает кэш refresh-токенов (опционально).
func (s *Service) SetRefreshCache(c cache.RefreshCache) {
	s.rcache = c
}

// AccessTTL и RefreshTTL - сроки жизни токенов; из них транспорт считает Max-Age кук.
func (s *Service) AccessTTL() time.Duration  { return s.cfg.AccessTokenTTL }
func (s *Service) RefreshTTL() time.Duration { return s.cfg.RefreshTokenTTL }

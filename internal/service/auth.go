package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/pribylovaa/nihongo-study/internal/models"
	"github.com/pribylovaa/nihongo-study/internal/storage"
	"github.com/pribylovaa/nihongo-study/pkg/log"
	"github.com/pribylovaa/nihongo-study/pkg/redact"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLen = 8

// SignupInput - данные регистрации.
type SignupInput struct {
	Username        string
	Password        string
	PasswordConfirm string
	Email           string
	Nickname        string
}

// Signup регистрирует нового пользователя с ролью USER.
// Проверки идут в порядке: обязательные поля, e-mail, длина пароля,
// совпадение паролей, занятость username/nickname/email.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*models.User, error) {
	const op = "service.auth.Signup"

	username := strings.TrimSpace(in.Username)
	nickname := strings.TrimSpace(in.Nickname)
	if username == "" || nickname == "" || in.Password == "" || in.PasswordConfirm == "" || strings.TrimSpace(in.Email) == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrMissingField)
	}

	email, err := validateEmail(in.Email)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if len([]rune(in.Password)) < minPasswordLen {
		return nil, fmt.Errorf("%s: %w", op, ErrWeakPassword)
	}

	if in.Password != in.PasswordConfirm {
		return nil, fmt.Errorf("%s: %w", op, ErrPasswordMismatch)
	}

	conflicts, err := s.storage.FindConflicts(ctx, username, email, nickname)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	switch {
	case conflicts.Username:
		return nil, fmt.Errorf("%s: %w", op, ErrUsernameTaken)
	case conflicts.Nickname:
		return nil, fmt.Errorf("%s: %w", op, ErrNicknameTaken)
	case conflicts.Email:
		return nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
	}

	hashedPassword, err := hashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now()
	user := &models.User{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		Nickname:     nickname,
		PasswordHash: hashedPassword,
		Role:         models.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.storage.SaveUser(ctx, user); err != nil {
		// Гонка между FindConflicts и INSERT: уникальный индекс всё равно не пустит дубликат.
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, fmt.Errorf("%s: %w", op, ErrUsernameTaken)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Info("user_signed_up",
		slog.String("user_id", user.ID.String()),
		slog.String("username", redact.Username(user.Username)),
		slog.String("email", redact.Email(user.Email)),
	)

	return user, nil
}

// Login выполняет вход по логину и паролю и выпускает новую пару токенов.
func (s *Service) Login(ctx context.Context, username, password string) (*models.TokenPair, *models.User, error) {
	const op = "service.auth.Login"

	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	user, err := s.storage.UserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	if !checkPassword(user.PasswordHash, password) {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	pair, err := s.issueTokenPair(ctx, user, "")
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	return pair, user, nil
}

// Refresh обновляет пару токенов по refresh-токену из куки.
// Старый refresh-токен отзывается; повторное предъявление вернёт ErrTokenRevoked.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	const op = "service.auth.Refresh"

	if refreshToken == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	token, err := s.validateRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user, err := s.storage.UserByID(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	pair, err := s.issueTokenPair(ctx, user, hashToken(refreshToken))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return pair, nil
}

// Logout отзывает refresh-токен. Неизвестный или уже отозванный токен не ошибка:
// куки стираются в любом случае.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	const op = "service.auth.Logout"

	if refreshToken == "" {
		return nil
	}

	hash := hashToken(refreshToken)
	if _, err := s.storage.RevokeRefreshToken(ctx, hash); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}

		return fmt.Errorf("%s: %w", op, err)
	}
	s.cacheMarkRevoked(ctx, hash)

	return nil
}

// Authenticate проверяет access-токен и возвращает ID пользователя.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (uuid.UUID, error) {
	const op = "service.auth.Authenticate"

	if accessToken == "" {
		return uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	uid, err := s.validateAccessToken(accessToken)
	if err != nil {
		log.From(ctx).Debug("access_token_rejected", slog.String("err", err.Error()))
		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	return uid, nil
}

// Me возвращает текущего пользователя. Удалённый пользователь - ErrInvalidToken.
func (s *Service) Me(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	const op = "service.auth.Me"

	user, err := s.storage.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// CleanupExpired удаляет просроченные refresh-токены; используется фоновым janitor.
func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	const op = "service.auth.CleanupExpired"

	n, err := s.storage.DeleteExpiredTokens(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}

// hashPassword хэширует пароль с помощью bcrypt.
func hashPassword(password string) (string, error) {
	const op = "service.auth.hashPassword"

	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return string(bytes), nil
}

// checkPassword сравнивает пароль с хэшем.
func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// validateEmail проверяет базовый формат email и обрезает пробелы снаружи.
func validateEmail(raw string) (string, error) {
	const op = "service.auth.validateEmail"

	email := strings.TrimSpace(raw)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	return strings.ToLower(email), nil
}

// issueTokenPair выпускает новую пару access+refresh токенов.
// Если oldRefreshHash != "", сначала атомарно отзывает старый refresh-токен.
func (s *Service) issueTokenPair(ctx context.Context, user *models.User, oldRefreshHash string) (*models.TokenPair, error) {
	const op = "service.auth.issueTokenPair"

	now := s.now()

	accessToken, err := s.generateAccessToken(ctx, user, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// Старый токен отзывается только после сохранения нового.
	plain, err := s.generateRefreshToken(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if oldRefreshHash != "" {
		if err := s.revokeRotated(ctx, oldRefreshHash); err != nil {
			s.revokeOrphan(ctx, hashToken(plain))
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	return &models.TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     plain,
		AccessExpiresAt:  now.Add(s.cfg.AccessTokenTTL),
		RefreshExpiresAt: now.Add(s.cfg.RefreshTokenTTL),
	}, nil
}

// revokeRotated отзывает предъявленный при ротации токен.
// Уже отозванный токен означает проигранную гонку ротации.
func (s *Service) revokeRotated(ctx context.Context, hash string) error {
	revoked, err := s.storage.RevokeRefreshToken(ctx, hash)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrInvalidToken
		}

		return err
	}

	if !revoked {
		return ErrTokenRevoked
	}
	s.cacheMarkRevoked(ctx, hash)

	return nil
}

// revokeOrphan отзывает только что выданный токен, который не будет отдан клиенту.
func (s *Service) revokeOrphan(ctx context.Context, hash string) {
	if _, err := s.storage.RevokeRefreshToken(ctx, hash); err != nil {
		log.From(ctx).Warn("refresh_orphan_revoke_failed", slog.String("err", err.Error()))
	}
	s.cacheMarkRevoked(ctx, hash)
}

package models

import "time"

// TokenPair - пара токенов, выдаваемая при входе и обновлении сессии.
//
// Описание:
//   - AccessToken - короткоживущий JWT, уходит в куку accessToken;
//   - RefreshToken - случайный секрет, уходит в куку refreshToken;
//     на сервере хранится только его хэш;
//   - AccessExpiresAt/RefreshExpiresAt - моменты истечения (UTC),
//     из них считается Max-Age кук.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// errors стандартизирует ответы об ошибках HTTP-слоя auth-сервера.
// На вход он принимает ошибку сервисного слоя, а на выход даёт:
//   - корректный HTTP-статус;
//   - конверт {resultCode, msg} с безопасным человекочитаемым msg.
//
// Источник истинности по маппингу: sentinel-ошибки internal/service.
// Неизвестные ошибки отдаются как 500 без деталей и уходят в Sentry.
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/pribylovaa/nihongo-study/internal/service"
	"github.com/pribylovaa/nihongo-study/pkg/envelope"
	"github.com/pribylovaa/nihongo-study/pkg/log"
)

// Нестандартный код часто используемый для "клиент закрыл соединение".
const StatusClientClosedRequest = 499

var (
	// ErrNoSession - в запросе нет куки/заголовка с access-токеном.
	ErrNoSession = stderrors.New("no session")
	// ErrBadRequest - тело запроса не разобрано.
	ErrBadRequest = stderrors.New("bad request")
)

// mapping - строка таблицы маппинга.
type mapping struct {
	target error
	status int
	msg    string
}

// table проверяется сверху вниз; первая подходящая строка побеждает.
var table = []mapping{
	{service.ErrInvalidCredentials, http.StatusUnauthorized, "Incorrect username or password."},
	{ErrNoSession, http.StatusUnauthorized, "Unauthorized"},
	{service.ErrInvalidToken, http.StatusUnauthorized, "Invalid token"},
	{service.ErrTokenExpired, http.StatusUnauthorized, "Token expired"},
	{service.ErrTokenRevoked, http.StatusUnauthorized, "Token revoked"},

	{ErrBadRequest, http.StatusBadRequest, "Invalid request body"},
	{service.ErrMissingField, http.StatusBadRequest, "All fields are required"},
	{service.ErrInvalidEmail, http.StatusBadRequest, "Please enter a valid email address"},
	{service.ErrWeakPassword, http.StatusBadRequest, "Password must be at least 8 characters"},
	{service.ErrPasswordMismatch, http.StatusBadRequest, "Passwords do not match"},
	{service.ErrUsernameTaken, http.StatusBadRequest, "Username already exists"},
	{service.ErrNicknameTaken, http.StatusBadRequest, "Nickname already exists"},
	{service.ErrEmailTaken, http.StatusBadRequest, "Email already exists"},

	{context.Canceled, StatusClientClosedRequest, "canceled"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "deadline exceeded"},
}

// ToHTTP конвертирует ошибку сервиса в HTTP-статус и конверт ответа.
//
// Поведение:
//   - err == nil - это программная ошибка вызова: возвращаем 500,
//     чтобы не послать "200 OK" с телом ошибки и не маскировать баг.
//   - известная sentinel-ошибка - статус и msg из таблицы.
//   - прочее - 500/"internal error" без утечки деталей.
func ToHTTP(err error) (int, envelope.Envelope[envelope.Empty]) {
	if err != nil {
		for _, m := range table {
			if stderrors.Is(err, m.target) {
				return m.status, envelope.Message(envelope.Code(m.status), m.msg)
			}
		}
	}

	return http.StatusInternalServerError,
		envelope.Message(envelope.Code(http.StatusInternalServerError), "internal error")
}

// WriteError - хелпер для HTTP-хендлеров.
// Пишет статус и конверт; 5xx логирует и отправляет в Sentry.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := ToHTTP(err)

	if status >= http.StatusInternalServerError {
		ctx := r.Context()
		errText := "<nil>"
		if err != nil {
			errText = err.Error()
			capture(ctx, err)
		}
		log.From(ctx).Error("request_failed",
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.String("err", errText),
		)
	}

	WriteJSON(w, status, resp)
}

// WriteJSON пишет произвольное тело как JSON с указанным статусом.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// capture отправляет ошибку в хаб запроса (sentryhttp) или в глобальный.
// Без sentry.Init клиент хаба пуст и вызов ничего не делает.
func capture(ctx context.Context, err error) {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.CaptureException(err)
}

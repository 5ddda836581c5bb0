package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthenticated - терминальное «не залогинен»: 401/403 от session probe
	// или неудачный refresh. Проверяется через errors.Is.
	ErrUnauthenticated = errors.New("not logged in")

	// ErrRefreshQueueFull - очередь ожидающих refresh переполнена.
	ErrRefreshQueueFull = errors.New("refresh queue is full")

	// ErrUnexpectedContent - ответ не является JSON-конвертом.
	ErrUnexpectedContent = errors.New("unexpected response content type")

	// ErrNoData - в успешном конверте нет ожидаемого поля data.
	ErrNoData = errors.New("response has no data")
)

// TransportError - запрос не дошёл до сервера или ответ не был получен.
// Auth Guard такие ошибки не обрабатывает и не повторяет.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("apiclient: %s %s: transport: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// HTTPError - сервер ответил статусом вне 2xx.
// ResultCode и Msg заполняются из JSON-конверта, если он есть.
type HTTPError struct {
	Method     string
	Path       string
	StatusCode int
	Header     http.Header
	Body       []byte
	ResultCode string
	Msg        string
}

func (e *HTTPError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("apiclient: %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Msg)
	}

	return fmt.Sprintf("apiclient: %s %s: status %d", e.Method, e.Path, e.StatusCode)
}

// SessionError - типизированное «не залогинен».
// Op: "probe" (401/403 от эндпойнта «кто я») или "refresh" (refresh не удался).
// Err - исходная причина (*HTTPError или *TransportError).
type SessionError struct {
	Op        string
	LoginPath string
	Err       error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("apiclient: %s: %s: %v", e.Op, ErrUnauthenticated, e.Err)
}

func (e *SessionError) Unwrap() []error { return []error{ErrUnauthenticated, e.Err} }

// StatusCode достаёт HTTP-статус из цепочки ошибок (0, если его нет).
func StatusCode(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode
	}

	return 0
}

// envelope - общий формат JSON-ответов API: {resultCode, msg, data?}.
//
// Пакет используется обеими сторонами протокола: сервер пишет конверты,
// apiclient их читает. Поле data опционально, поэтому хранится как *T;
// до использования значения его наличие проверяется через Value().
package envelope

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Envelope - корневой объект любого JSON-ответа.
type Envelope[T any] struct {
	ResultCode string `json:"resultCode"`
	Msg        string `json:"msg"`
	Data       *T     `json:"data,omitempty"`
}

// Empty - тип данных для конвертов без полезной нагрузки.
type Empty struct{}

// New собирает конверт с данными.
func New[T any](code, msg string, data T) Envelope[T] {
	return Envelope[T]{ResultCode: code, Msg: msg, Data: &data}
}

// Message собирает конверт без данных.
func Message(code, msg string) Envelope[Empty] {
	return Envelope[Empty]{ResultCode: code, Msg: msg}
}

// Code форматирует HTTP-статус как resultCode ("200", "401", ...).
func Code(status int) string {
	return strconv.Itoa(status)
}

// Value возвращает данные и признак их наличия.
func (e Envelope[T]) Value() (T, bool) {
	if e.Data == nil {
		var zero T
		return zero, false
	}

	return *e.Data, true
}

// StatusCode разбирает числовую часть resultCode.
// Допускается суффикс через дефис ("200-1"); при ошибке разбора возвращает 0.
func (e Envelope[T]) StatusCode() int {
	head, _, _ := strings.Cut(e.ResultCode, "-")
	n, err := strconv.Atoi(head)
	if err != nil {
		return 0
	}

	return n
}

// OK сообщает, что resultCode относится к классу 2xx.
func (e Envelope[T]) OK() bool {
	c := e.StatusCode()
	return c >= 200 && c < 300
}

// Decode разбирает конверт из JSON.
func Decode[T any](b []byte) (*Envelope[T], error) {
	const op = "envelope.Decode"

	var env Envelope[T]
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &env, nil
}

package middleware

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/pribylovaa/nihongo-study/pkg/log"
)

// HeaderRequestID - заголовок корреляции запросов; его же ставит apiclient.
const HeaderRequestID = "X-Request-Id"

// maxRequestIDLen ограничивает длину чужого id, попадающего в логи.
const maxRequestIDLen = 128

// RequestID обеспечивает наличие X-Request-Id:
//  1. читает заголовок X-Request-Id, если он есть и разумной длины;
//  2. иначе генерирует UUID;
//  3. кладёт id в заголовок ответа, запроса и в контекст (log.WithRequestID).
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(HeaderRequestID)
			if id == "" || len(id) > maxRequestIDLen {
				id = uuid.NewString()
				r.Header.Set(HeaderRequestID, id)
			}
			w.Header().Set(HeaderRequestID, id)

			ctx := log.WithRequestID(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// redact предоставляет утилиты безопасного редактирования чувствительных
// данных для логов (e-mail, логины, токены, пароли).
package redact

import "strings"

// Email маскирует e-mail для логирования.
//
// Правила:
//   - Строка должна содержать РОВНО один символ '@', иначе возвращается "***";
//   - Локальная часть заменяется на первые два символа (по рунам) + "***";
//   - Если длина локальной части ≤ 2 символов - возвращается "***@<domain>".
//
// Примеры:
//
//	"foobar@example.com" -> "fo***@example.com"
//	"ab@ex.com"          -> "***@ex.com"
//	"no-at"              -> "***"
func Email(s string) string {
	if strings.Count(s, "@") != 1 {
		return "***"
	}

	i := strings.IndexByte(s, '@')
	local, domain := s[:i], s[i+1:]

	return mask(local) + "@" + domain
}

// Username маскирует логин по тем же правилам, что и локальную часть e-mail.
func Username(s string) string {
	return mask(s)
}

func mask(s string) string {
	r := []rune(s)
	if len(r) > 2 {
		return string(r[:2]) + "***"
	}

	return "***"
}

// Token возвращает литерал-заглушку для токена в логах.
func Token() string { return "[REDACTED_TOKEN]" }

// Password возвращает литерал-заглушку для пароля в логах.
func Password() string { return "[REDACTED_PASSWORD]" }

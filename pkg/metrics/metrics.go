// metrics - регистрация prometheus-коллекторов, допускающая повторные вызовы
// с одним Registerer (несколько клиентов или роутеров в одном процессе).
package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Register регистрирует c в reg и возвращает коллектор, который нужно использовать.
// Если такой коллектор уже зарегистрирован, возвращается существующий.
// reg == nil - c возвращается без регистрации.
func Register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	const op = "metrics.Register"

	if reg == nil {
		return c, nil
	}

	err := reg.Register(c)
	if err == nil {
		return c, nil
	}

	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(T); ok {
			return existing, nil
		}
	}

	return c, fmt.Errorf("%s: %w", op, err)
}

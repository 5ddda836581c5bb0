package apiclient

import (
	"net/http"
	"path"
)

// verdict - решение Auth Guard по неуспешному ответу.
type verdict int

const (
	// propagate - вернуть ошибку вызывающему как есть.
	propagate verdict = iota
	// unauthenticated - 401/403 от эндпойнта «кто я»: типизированное «не залогинен».
	unauthenticated
	// refreshAndRetry - обновить сессию и повторить запрос один раз.
	refreshAndRetry
)

func (v verdict) String() string {
	switch v {
	case unauthenticated:
		return "unauthenticated"
	case refreshAndRetry:
		return "refresh_and_retry"
	default:
		return "propagate"
	}
}

// guard классифицирует ответы. Правила применяются по порядку, первое совпадение выигрывает:
//  1. probe-эндпойнт и 401/403 -> unauthenticated;
//  2. login/signup/refresh -> propagate (refresh по ним не запускается никогда);
//  3. 401 и запрос ещё не повторялся -> refreshAndRetry;
//  4. иначе -> propagate.
type guard struct {
	probe      map[string]struct{}
	credential map[string]struct{}
}

func newGuard(probePath string) guard {
	g := guard{
		probe: map[string]struct{}{
			PathMe:      {},
			PathUsersMe: {},
		},
		credential: map[string]struct{}{
			PathLogin:   {},
			PathSignup:  {},
			PathRefresh: {},
		},
	}
	if probePath != "" {
		g.probe[cleanPath(probePath)] = struct{}{}
	}

	return g
}

func (g guard) classify(p string, status int, retried bool) verdict {
	p = cleanPath(p)

	if _, ok := g.probe[p]; ok && (status == http.StatusUnauthorized || status == http.StatusForbidden) {
		return unauthenticated
	}
	if _, ok := g.credential[p]; ok {
		return propagate
	}
	if status == http.StatusUnauthorized && !retried {
		return refreshAndRetry
	}

	return propagate
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if p[0] != '/' {
		p = "/" + p
	}

	return path.Clean(p)
}

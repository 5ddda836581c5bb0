// apiclient - HTTP-клиент API nihongo-study с cookie-сессией.
//
// Клиент отправляет запросы с куками сессии (accessToken/refreshToken),
// а на 401 прозрачно обновляет сессию через POST /api/auth/refresh и
// повторяет исходный запрос ровно один раз.
//
// Основные аспекты:
//   - Client безопасен для конкурентного использования из разных горутин;
//   - все одновременные 401 обслуживаются одним вызовом refresh: первый
//     запрос становится «ведущим», остальные ждут его результата в очереди
//     Coordinator;
//   - 401/403 от эндпойнта «кто я» (session probe) никогда не запускает
//     refresh и возвращается как типизированное «не залогинен»;
//   - ошибки транспорта (*TransportError) отличимы от HTTP-ошибок (*HTTPError).
package apiclient

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/net/publicsuffix"
)

// Пути эндпойнтов auth API.
const (
	PathLogin   = "/api/auth/login"
	PathSignup  = "/api/auth/signup"
	PathLogout  = "/api/auth/logout"
	PathRefresh = "/api/auth/refresh"
	PathMe      = "/api/auth/me"
	PathUsersMe = "/api/users/me"
)

const (
	defaultTimeout        = 15 * time.Second
	defaultRefreshTimeout = 10 * time.Second
	defaultMaxQueue       = 256
	defaultLoginPath      = "/login"
	defaultUserAgent      = "nihongo-study-apiclient"
)

// Options - параметры клиента.
type Options struct {
	// BaseURL - origin API, например "http://localhost:8080".
	BaseURL string
	// UserAgent - значение заголовка User-Agent; пустое - значение по умолчанию.
	UserAgent string
	// Timeout - таймаут одного запроса, если у контекста нет дедлайна.
	Timeout time.Duration
	// RefreshTimeout - таймаут вызова refresh; зависший refresh не держит очередь дольше.
	RefreshTimeout time.Duration
	// MaxQueue - максимум запросов, ожидающих refresh.
	MaxQueue int
	// LoginPath - страница входа, куда приложение уводит пользователя при истёкшей сессии.
	LoginPath string
	// ProbePath - эндпойнт «кто я»; по умолчанию PathMe.
	ProbePath string
	// Header - дополнительные заголовки по умолчанию.
	Header http.Header

	Logger     *slog.Logger
	Registerer prometheus.Registerer // nil - метрики не регистрируются
	Transport  http.RoundTripper     // nil - http.DefaultTransport
	Jar        http.CookieJar        // nil - cookiejar с public suffix list

	// OnSessionExpired вызывается один раз на каждый неудачный refresh.
	// Хост-приложение делает здесь редирект на страницу входа.
	OnSessionExpired func(loginPath string, err error)
}

// Client - обёртка над http.Client с координацией refresh.
type Client struct {
	base      *url.URL
	http      *http.Client
	header    http.Header
	timeout   time.Duration
	loginPath string
	probePath string
	guard     guard
	refresher *Coordinator
	log       *slog.Logger
}

// New создаёт клиент. Coordinator создаётся здесь же и живёт столько же, сколько клиент.
func New(opts Options) (*Client, error) {
	const op = "apiclient.New"

	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%s: %w", op, errors.New("base url must be absolute"))
	}

	jar := opts.Jar
	if jar == nil {
		j, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		jar = j
	}

	lg := opts.Logger
	if lg == nil {
		lg = slog.Default()
	}

	rt := opts.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}

	ua := opts.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	loginPath := opts.LoginPath
	if loginPath == "" {
		loginPath = defaultLoginPath
	}

	probePath := opts.ProbePath
	if probePath == "" {
		probePath = PathMe
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("Accept", "application/json")
	for k, vs := range opts.Header {
		header[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
	}

	c := &Client{
		base: base,
		http: &http.Client{
			Jar:       jar,
			Transport: chain(rt, withMetadata(ua), withLogging(lg)),
		},
		header:    header,
		timeout:   timeout,
		loginPath: loginPath,
		probePath: probePath,
		guard:     newGuard(probePath),
		log:       lg,
	}

	c.refresher = NewCoordinator(c.refreshSession, CoordinatorOptions{
		Timeout:    opts.RefreshTimeout,
		MaxQueue:   opts.MaxQueue,
		Logger:     lg,
		Registerer: opts.Registerer,
		LoginPath:  loginPath,
		OnFailure: func(err error) {
			if opts.OnSessionExpired != nil {
				opts.OnSessionExpired(loginPath, err)
			}
		},
	})

	return c, nil
}

// LoginPath возвращает страницу входа для редиректа.
func (c *Client) LoginPath() string { return c.loginPath }

// Jar возвращает хранилище кук сессии.
func (c *Client) Jar() http.CookieJar { return c.http.Jar }

// Coordinator возвращает координатор refresh этого клиента.
func (c *Client) Coordinator() *Coordinator { return c.refresher }

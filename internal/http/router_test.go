package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/pribylovaa/nihongo-study/internal/config"
	"github.com/pribylovaa/nihongo-study/internal/http/middleware"
	"github.com/pribylovaa/nihongo-study/internal/models"
	"github.com/pribylovaa/nihongo-study/internal/service"
	"github.com/pribylovaa/nihongo-study/internal/storage"
	"github.com/pribylovaa/nihongo-study/mocks"
	"github.com/pribylovaa/nihongo-study/pkg/apiclient"
	"github.com/pribylovaa/nihongo-study/pkg/envelope"
)

// memStore - хранилище в памяти; мок storage.Storage делегирует ему через DoAndReturn.
type memStore struct {
	mu     sync.Mutex
	users  map[uuid.UUID]models.User
	tokens map[string]models.RefreshToken
}

func newMemStore() *memStore {
	return &memStore{users: map[uuid.UUID]models.User{}, tokens: map[string]models.RefreshToken{}}
}

func (m *memStore) SaveUser(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.users {
		if x.Username == u.Username || x.Email == u.Email || x.Nickname == u.Nickname {
			return storage.ErrAlreadyExists
		}
	}
	m.users[u.ID] = *u
	return nil
}

func (m *memStore) UserByUsername(_ context.Context, username string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.users {
		if x.Username == username {
			return &x, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *memStore) UserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if x, ok := m.users[id]; ok {
		return &x, nil
	}
	return nil, storage.ErrNotFound
}

func (m *memStore) FindConflicts(_ context.Context, username, email, nickname string) (models.UserConflicts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var c models.UserConflicts
	for _, x := range m.users {
		c.Username = c.Username || x.Username == username
		c.Email = c.Email || x.Email == email
		c.Nickname = c.Nickname || x.Nickname == nickname
	}
	return c, nil
}

func (m *memStore) SaveRefreshToken(_ context.Context, t *models.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[t.RefreshTokenHash]; ok {
		return storage.ErrAlreadyExists
	}
	m.tokens[t.RefreshTokenHash] = *t
	return nil
}

func (m *memStore) RefreshTokenByHash(_ context.Context, hash string) (*models.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tokens[hash]; ok {
		return &t, nil
	}
	return nil, storage.ErrNotFound
}

func (m *memStore) RevokeRefreshToken(_ context.Context, hash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[hash]
	if !ok {
		return false, storage.ErrNotFound
	}
	if t.Revoked {
		return false, nil
	}
	t.Revoked = true
	m.tokens[hash] = t
	return true, nil
}

func (m *memStore) revokedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tokens {
		if t.Revoked {
			n++
		}
	}
	return n
}

type codeWriter struct {
	http.ResponseWriter
	code int
}

func (w *codeWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// stack - auth-сервер на настоящем роутере плюс защищённый ресурс /api/vocabularies.
type stack struct {
	srv          *httptest.Server
	mem          *memStore
	refreshHits  atomic.Int32
	unauthorized atomic.Int32

	gateAt   int32
	gate     chan struct{}
	gateOnce sync.Once
}

// newStack поднимает сервер. holdRefreshUntil > 0 задерживает refresh,
// пока /api/vocabularies не отдаст столько ответов 401.
func newStack(t *testing.T, holdRefreshUntil int32) *stack {
	t.Helper()

	ctrl := gomock.NewController(t)
	st := mocks.NewMockStorage(ctrl)
	s := &stack{mem: newMemStore()}
	if holdRefreshUntil > 0 {
		s.gateAt = holdRefreshUntil
		s.gate = make(chan struct{})
	}

	st.EXPECT().SaveUser(gomock.Any(), gomock.Any()).DoAndReturn(s.mem.SaveUser).AnyTimes()
	st.EXPECT().UserByUsername(gomock.Any(), gomock.Any()).DoAndReturn(s.mem.UserByUsername).AnyTimes()
	st.EXPECT().UserByID(gomock.Any(), gomock.Any()).DoAndReturn(s.mem.UserByID).AnyTimes()
	st.EXPECT().FindConflicts(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(s.mem.FindConflicts).AnyTimes()
	st.EXPECT().SaveRefreshToken(gomock.Any(), gomock.Any()).DoAndReturn(s.mem.SaveRefreshToken).AnyTimes()
	st.EXPECT().RefreshTokenByHash(gomock.Any(), gomock.Any()).DoAndReturn(s.mem.RefreshTokenByHash).AnyTimes()
	st.EXPECT().RevokeRefreshToken(gomock.Any(), gomock.Any()).DoAndReturn(s.mem.RevokeRefreshToken).AnyTimes()

	svc := service.New(st, config.AuthConfig{
		JWTSecret:       "e2e-secret",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
		Issuer:          "nihongo-study",
		Audience:        []string{"nihongo-web"},
	})

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	api := NewRouter(svc, Options{
		Logger:  quiet,
		Timeout: 5 * time.Second,
		Cookie:  config.CookieConfig{Path: "/", SameSite: "lax"},
	})

	vocab := middleware.Session(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid, _ := middleware.UserID(r.Context())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"resultCode":"200","msg":"OK","data":{"owner":"` + uid.String() + `"}}`))
	}))

	mux := http.NewServeMux()
	mux.HandleFunc("/api/vocabularies", func(w http.ResponseWriter, r *http.Request) {
		cw := &codeWriter{ResponseWriter: w}
		vocab.ServeHTTP(cw, r)
		if cw.code == http.StatusUnauthorized {
			if s.unauthorized.Add(1) == s.gateAt && s.gate != nil {
				s.gateOnce.Do(func() { close(s.gate) })
			}
		}
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == apiclient.PathRefresh {
			s.refreshHits.Add(1)
			if s.gate != nil {
				select {
				case <-s.gate:
				case <-time.After(5 * time.Second):
				}
			}
		}
		api.ServeHTTP(w, r)
	})

	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.srv.Close)

	return s
}

func (s *stack) client(t *testing.T, redirects *atomic.Int32) *apiclient.Client {
	t.Helper()

	c, err := apiclient.New(apiclient.Options{
		BaseURL: s.srv.URL,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		OnSessionExpired: func(string, error) {
			if redirects != nil {
				redirects.Add(1)
			}
		},
	})
	require.NoError(t, err)
	return c
}

// breakAccessCookie подменяет access-куку в jar, имитируя истёкший токен.
func (s *stack) breakAccessCookie(t *testing.T, c *apiclient.Client) {
	t.Helper()
	u, err := url.Parse(s.srv.URL)
	require.NoError(t, err)
	c.Jar().SetCookies(u, []*http.Cookie{{Name: middleware.CookieAccessToken, Value: "stale", Path: "/"}})
}

func signupAndLogin(t *testing.T, c *apiclient.Client) {
	t.Helper()
	ctx := context.Background()

	env, err := c.Signup(ctx, apiclient.SignupRequest{
		Username: "hana", Password: "secret-pass", PasswordConfirm: "secret-pass",
		Email: "hana@example.com", Nickname: "Hana",
	})
	require.NoError(t, err)
	require.Equal(t, "201", env.ResultCode)

	env, err = c.Login(ctx, apiclient.LoginRequest{Username: "hana", Password: "secret-pass"})
	require.NoError(t, err)
	require.Equal(t, "200", env.ResultCode)
	require.Equal(t, "Login successful", env.Msg)
}

type vocabData struct {
	Owner string `json:"owner"`
}

func getVocab(ctx context.Context, c *apiclient.Client) (*envelope.Envelope[vocabData], error) {
	return apiclient.Call[vocabData](ctx, c, apiclient.Request{Method: http.MethodGet, Path: "/api/vocabularies"})
}

func TestE2E_SignupLoginProbeLogout(t *testing.T) {
	s := newStack(t, 0)
	c := s.client(t, nil)
	ctx := context.Background()

	sess, err := c.Probe(ctx)
	require.NoError(t, err)
	require.False(t, sess.Authenticated)

	signupAndLogin(t, c)

	sess, redirect, err := c.RequireSession(ctx)
	require.NoError(t, err)
	require.Empty(t, redirect)
	require.True(t, sess.Authenticated)
	require.Equal(t, "hana", sess.User.Username)
	require.Equal(t, "hana@example.com", sess.User.Email)
	require.Equal(t, "USER", sess.User.Role)

	// /api/users/me - тот же пользователь.
	env, err := apiclient.Call[apiclient.UserInfo](ctx, c, apiclient.Request{Path: apiclient.PathUsersMe})
	require.NoError(t, err)
	u, ok := env.Value()
	require.True(t, ok)
	require.Equal(t, sess.User.ID, u.ID)

	out, err := c.Logout(ctx)
	require.NoError(t, err)
	require.Equal(t, "Logout successful", out.Msg)
	require.Equal(t, 1, s.mem.revokedCount())

	_, redirect, err = c.RequireSession(ctx)
	require.NoError(t, err)
	require.Equal(t, "/login", redirect)
	require.Zero(t, s.refreshHits.Load())
}

func TestE2E_Credentials_NeverRefresh(t *testing.T) {
	s := newStack(t, 0)
	c := s.client(t, nil)
	ctx := context.Background()

	signupAndLogin(t, c)

	_, err := c.Login(ctx, apiclient.LoginRequest{Username: "hana", Password: "wrong-pass"})
	var he *apiclient.HTTPError
	require.ErrorAs(t, err, &he)
	require.Equal(t, http.StatusUnauthorized, he.StatusCode)
	require.Equal(t, "401", he.ResultCode)
	require.Equal(t, "Incorrect username or password.", he.Msg)

	_, err = c.Signup(ctx, apiclient.SignupRequest{
		Username: "hana", Password: "secret-pass", PasswordConfirm: "secret-pass",
		Email: "other@example.com", Nickname: "Other",
	})
	require.ErrorAs(t, err, &he)
	require.Equal(t, http.StatusBadRequest, he.StatusCode)
	require.Equal(t, "Username already exists", he.Msg)

	_, err = c.Signup(ctx, apiclient.SignupRequest{
		Username: "kenji", Password: "secret-pass", PasswordConfirm: "secret-pasS",
		Email: "kenji@example.com", Nickname: "Kenji",
	})
	require.ErrorAs(t, err, &he)
	require.Equal(t, "Passwords do not match", he.Msg)

	require.Zero(t, s.refreshHits.Load())
}

func TestE2E_StaleAccess_RefreshRotatesAndRetries(t *testing.T) {
	s := newStack(t, 0)
	c := s.client(t, nil)
	ctx := context.Background()

	signupAndLogin(t, c)
	s.breakAccessCookie(t, c)

	env, err := getVocab(ctx, c)
	require.NoError(t, err)
	v, ok := env.Value()
	require.True(t, ok)
	require.NotEmpty(t, v.Owner)

	require.EqualValues(t, 1, s.refreshHits.Load())
	require.EqualValues(t, 1, s.unauthorized.Load())
	// Ротация: старый refresh-токен отозван.
	require.Equal(t, 1, s.mem.revokedCount())

	// Новая пара работает без повторного refresh.
	_, err = getVocab(ctx, c)
	require.NoError(t, err)
	require.EqualValues(t, 1, s.refreshHits.Load())
}

func TestE2E_ConcurrentStaleRequests_ShareOneRefresh(t *testing.T) {
	const n = 6

	s := newStack(t, n)
	c := s.client(t, nil)

	signupAndLogin(t, c)
	s.breakAccessCookie(t, c)

	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, err := getVocab(ctx, c)
			return err
		})
	}
	require.NoError(t, g.Wait())

	require.EqualValues(t, 1, s.refreshHits.Load())
	require.EqualValues(t, n, s.unauthorized.Load())
	require.Equal(t, 1, s.mem.revokedCount())
}

func TestE2E_AfterLogout_ConcurrentRequests_OneRedirect(t *testing.T) {
	const n = 5

	s := newStack(t, n)
	var redirects atomic.Int32
	c := s.client(t, &redirects)
	ctx := context.Background()

	signupAndLogin(t, c)
	_, err := c.Logout(ctx)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = getVocab(ctx, c)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.True(t, errors.Is(err, apiclient.ErrUnauthenticated), "got %v", err)
		var se *apiclient.SessionError
		require.ErrorAs(t, err, &se)
		require.Equal(t, "/login", se.LoginPath)
	}
	require.EqualValues(t, 1, s.refreshHits.Load())
	require.EqualValues(t, 1, redirects.Load())
}

package postgres

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pribylovaa/nihongo-study/internal/models"
	"github.com/pribylovaa/nihongo-study/internal/storage"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Интеграционные тесты пакета postgres:
// - поднимают реальный PostgreSQL через testcontainers-go (образ postgres:16-alpine);
// - применяют миграции из ./migrations;
// - проверяют уникальность username/email/nickname и FindConflicts.
//
// Запуск локально:
//   GO_TEST_INTEGRATION=1 go test ./internal/storage/postgres -v -race -count=1

// repoRootFromThisFile - корень репозитория относительно текущего файла тестов.
func repoRootFromThisFile() string {
	// internal/storage/postgres/... -> подняться на 3 уровня до корня.
	_, thisFile, _, _ := runtime.Caller(0)
	return filepath.Clean(filepath.Join(filepath.Dir(thisFile), "..", "..", ".."))
}

func readMigration(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(repoRootFromThisFile(), "migrations", name)
	b, err := os.ReadFile(path)
	require.NoError(t, err, "read migration %s", path)
	return string(b)
}

// startPostgres поднимает временный PostgreSQL, применяет все up-миграции
// и возвращает хранилище. Без GO_TEST_INTEGRATION тест пропускается.
func startPostgres(t *testing.T) *Storage {
	t.Helper()
	if os.Getenv("GO_TEST_INTEGRATION") == "" {
		t.Skip("integration tests are disabled (set GO_TEST_INTEGRATION=1)")
	}

	ctx := context.Background()
	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		Env:          map[string]string{"POSTGRES_USER": "user", "POSTGRES_PASSWORD": "pass", "POSTGRES_DB": "db"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)

	host, _ := c.Host(ctx)
	port, _ := c.MappedPort(ctx, "5432/tcp")
	dsn := fmt.Sprintf("postgres://user:pass@%s:%s/db?sslmode=disable", host, port.Port())

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	for _, m := range []string{"1_init_users.up.sql", "2_init_refresh_tokens.up.sql"} {
		_, err = pool.Exec(ctx, readMigration(t, m))
		require.NoError(t, err, m)
	}

	st, err := New(ctx, dsn)
	require.NoError(t, err)

	t.Cleanup(func() {
		st.Close()
		_ = c.Terminate(context.Background())
	})
	return st
}

func newUser(username, email, nickname string) *models.User {
	now := time.Now().UTC()
	return &models.User{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		Nickname:     nickname,
		PasswordHash: "hash",
		Role:         models.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestIntegration_SaveUser_And_GetByUsername_And_ByID_OK(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()

	u := newUser("hana", "hana@example.com", "Hana")
	require.NoError(t, st.SaveUser(ctx, u))

	got, err := st.UserByUsername(ctx, "hana")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)
	require.Equal(t, "Hana", got.Nickname)
	require.Equal(t, models.RoleUser, got.Role)
	require.WithinDuration(t, u.CreatedAt, got.CreatedAt, time.Second)

	got, err = st.UserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "hana", got.Username)
	require.NoError(t, st.Ping(ctx))
}

func TestIntegration_SaveUser_UniqueViolations(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()

	require.NoError(t, st.SaveUser(ctx, newUser("hana", "hana@example.com", "Hana")))

	tests := []struct {
		name string
		user *models.User
	}{
		{"username", newUser("hana", "other@example.com", "Other")},
		{"email_case_insensitive", newUser("kenji", "HANA@EXAMPLE.COM", "Kenji")},
		{"nickname", newUser("kenji", "kenji@example.com", "Hana")},
	}

	for _, tt := range tests {
		err := st.SaveUser(ctx, tt.user)
		require.ErrorIs(t, err, storage.ErrAlreadyExists, tt.name)
	}
}

func TestIntegration_FindConflicts(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()

	require.NoError(t, st.SaveUser(ctx, newUser("hana", "hana@example.com", "Hana")))

	c, err := st.FindConflicts(ctx, "kenji", "kenji@example.com", "Kenji")
	require.NoError(t, err)
	require.False(t, c.Any())

	c, err = st.FindConflicts(ctx, "hana", "Hana@Example.com", "Kenji")
	require.NoError(t, err)
	require.True(t, c.Username)
	require.True(t, c.Email)
	require.False(t, c.Nickname)
}

func TestIntegration_UserLookups_NotFound(t *testing.T) {
	st := startPostgres(t)

	_, err := st.UserByUsername(context.Background(), "absent")
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = st.UserByID(context.Background(), uuid.New())
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestIntegration_UserQueries_ContextCanceled(t *testing.T) {
	st := startPostgres(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := st.UserByUsername(ctx, "hana")
	require.ErrorIs(t, err, context.Canceled)

	err = st.SaveUser(ctx, newUser("kenji", "kenji@example.com", "Kenji"))
	require.ErrorIs(t, err, context.Canceled)
}

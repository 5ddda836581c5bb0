package envelope

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

type user struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

func TestDecode_WithData(t *testing.T) {
	t.Parallel()

	env, err := Decode[user]([]byte(`{"resultCode":"200","msg":"ok","data":{"id":7,"username":"tanaka"}}`))
	require.NoError(t, err)
	require.True(t, env.OK())

	u, ok := env.Value()
	require.True(t, ok)
	require.Equal(t, int64(7), u.ID)
	require.Equal(t, "tanaka", u.Username)
}

func TestDecode_AbsentData(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{
		`{"resultCode":"200","msg":"ok"}`,
		`{"resultCode":"200","msg":"ok","data":null}`,
	} {
		env, err := Decode[user]([]byte(raw))
		require.NoError(t, err)

		_, ok := env.Value()
		require.False(t, ok, raw)
	}
}

func TestDecode_Broken(t *testing.T) {
	t.Parallel()

	_, err := Decode[user]([]byte(`{"resultCode":`))
	require.Error(t, err)
}

func TestStatusCode_AndOK(t *testing.T) {
	t.Parallel()

	require.Equal(t, 200, Message("200", "").StatusCode())
	require.Equal(t, 201, Message("201-1", "").StatusCode())
	require.Equal(t, 0, Message("oops", "").StatusCode())

	require.True(t, Message("201", "").OK())
	require.False(t, Message("401", "").OK())
	require.False(t, Message("", "").OK())
}

// Конверт без данных не пишет поле data.
func TestMessage_OmitsData(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(Message(Code(401), "authentication required"))
	require.NoError(t, err)
	require.JSONEq(t, `{"resultCode":"401","msg":"authentication required"}`, string(b))

	b, err = json.Marshal(New("200", "ok", user{ID: 1, Username: "a"}))
	require.NoError(t, err)
	require.JSONEq(t, `{"resultCode":"200","msg":"ok","data":{"id":1,"username":"a"}}`, string(b))
}

package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTelegram(t *testing.T, handler http.HandlerFunc) (*Telegram, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	tg := NewTelegram("token", "chat")
	tg.apiBase = srv.URL
	tg.sleep = func(time.Duration) {}
	return tg, srv
}

func TestTelegramSendText(t *testing.T) {
	var got map[string]any
	tg, _ := testTelegram(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/bottoken/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, tg.SendText("对账失败"))
	assert.Equal(t, "chat", got["chat_id"])
	assert.Equal(t, "对账失败", got["text"])
	assert.Equal(t, "Markdown", got["parse_mode"])
}

func TestTelegramRetriesThenSucceeds(t *testing.T) {
	calls := 0
	tg, _ := testTelegram(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, tg.SendText("hello"))
	assert.Equal(t, 3, calls)
}

func TestTelegramSurfacesAPIDescription(t *testing.T) {
	tg, _ := testTelegram(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"ok": false, "description": "chat not found"})
	})

	err := tg.SendText("hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
	assert.Contains(t, err.Error(), "status=400")
}

func TestTelegramRequiresConfig(t *testing.T) {
	tg := NewTelegram("", "")
	assert.Error(t, tg.SendText("hello"))
}

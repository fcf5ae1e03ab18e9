package vault

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binance-setup-scanner/config"
)

func newVaultServer(t *testing.T, path string, data map[string]interface{}) (*httptest.Server, *int32) {
	t.Helper()
	var reads int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/"+path {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"errors":[]}`))
			return
		}
		atomic.AddInt32(&reads, 1)
		assert.Equal(t, "test-token", r.Header.Get("X-Vault-Token"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{"data": data},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &reads
}

func newTestClient(t *testing.T, addr string) *Client {
	t.Helper()
	c, err := NewClient(config.VaultConfig{
		Enabled:    true,
		Address:    addr,
		Token:      "test-token",
		MountPath:  "secret/",
		SecretPath: "/setup-scanner/telegram",
	})
	require.NoError(t, err)
	return c
}

func TestGetTelegramCredentials(t *testing.T) {
	srv, reads := newVaultServer(t, "secret/data/setup-scanner/telegram", map[string]interface{}{
		"bot_token": "123:abc",
		"chat_id":   -100123456,
	})
	c := newTestClient(t, srv.URL)

	creds, err := c.GetTelegramCredentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "123:abc", creds.BotToken)
	assert.Equal(t, "-100123456", creds.ChatID)
	assert.True(t, creds.Complete())

	_, err = c.GetTelegramCredentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(reads))

	c.ClearCache()
	_, err = c.GetTelegramCredentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(reads))
}

func TestGetTelegramCredentialsMissing(t *testing.T) {
	srv, _ := newVaultServer(t, "secret/data/other", nil)
	c := newTestClient(t, srv.URL)

	_, err := c.GetTelegramCredentials(context.Background())
	assert.Error(t, err)
}

func TestApplyTelegramCredentialsKeepsExplicitValues(t *testing.T) {
	srv, _ := newVaultServer(t, "secret/data/setup-scanner/telegram", map[string]interface{}{
		"bot_token": "vault-token",
		"chat_id":   "vault-chat",
	})
	c := newTestClient(t, srv.URL)

	tg := config.TelegramConfig{BotToken: "env-token"}
	require.NoError(t, c.ApplyTelegramCredentials(context.Background(), &tg))

	assert.Equal(t, "env-token", tg.BotToken)
	assert.Equal(t, "vault-chat", tg.ChatID)
}

func TestDisabledClient(t *testing.T) {
	c, err := NewClient(config.VaultConfig{Enabled: false})
	require.NoError(t, err)

	assert.False(t, c.IsEnabled())
	assert.NoError(t, c.Health(context.Background()))

	tg := config.TelegramConfig{}
	assert.NoError(t, c.ApplyTelegramCredentials(context.Background(), &tg))
	assert.Empty(t, tg.BotToken)

	_, err = c.GetTelegramCredentials(context.Background())
	assert.Error(t, err)
}

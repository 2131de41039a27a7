package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maproulette/pushsub"
)

func newTestViper(t *testing.T, args ...string) *viper.Viper {
	t.Helper()
	cmd := newRootCmd(&bytes.Buffer{}, &bytes.Buffer{})
	require.NoError(t, cmd.Flags().Parse(args))

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	require.NoError(t, bindFlags(cmd.Flags(), v))
	return v
}

func TestLoadConfigFromFlags(t *testing.T) {
	v := newTestViper(t,
		"--endpoint=ws://localhost:9000/ws",
		"--subscribe=reviewTasks:42",
		"--subscribe=notifications",
		"--base-delay=250ms",
		"--ref-counted",
	)

	cfg, err := loadConfig(v)
	require.NoError(t, err)

	assert.Equal(t, "ws://localhost:9000/ws", cfg.Endpoint)
	assert.Equal(t, []pushsub.Subscription{
		pushsub.ForObject("reviewTasks", 42),
		pushsub.ForType("notifications"),
	}, cfg.Subscriptions)
	assert.Equal(t, 250*time.Millisecond, cfg.BaseDelay)
	assert.Equal(t, pushsub.DefaultKeepAliveInterval, cfg.KeepAlive)
	assert.Equal(t, "apiKey", cfg.APIKeyHeader)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.RefCounted)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("PUSHSUB_ENDPOINT", "ws://env/ws")
	t.Setenv("PUSHSUB_SUBSCRIBE", "challenge:7,tasks")
	t.Setenv("PUSHSUB_API_KEY", "secret")
	t.Setenv("PUSHSUB_KEEPALIVE", "10s")

	cfg, err := loadConfig(newTestViper(t))
	require.NoError(t, err)

	assert.Equal(t, "ws://env/ws", cfg.Endpoint)
	assert.Equal(t, []pushsub.Subscription{
		pushsub.ForObject("challenge", 7),
		pushsub.ForType("tasks"),
	}, cfg.Subscriptions)
	assert.Equal(t, "secret", cfg.APIKey)
	assert.Equal(t, 10*time.Second, cfg.KeepAlive)
}

func TestLoadConfigRequiresEndpointAndSubscription(t *testing.T) {
	_, err := loadConfig(newTestViper(t, "--subscribe=tasks"))
	assert.ErrorContains(t, err, "--endpoint")

	_, err = loadConfig(newTestViper(t, "--endpoint=ws://x"))
	assert.ErrorContains(t, err, "--subscribe")

	_, err = loadConfig(newTestViper(t, "--endpoint=ws://x", "--subscribe=:1"))
	assert.Error(t, err)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestTailPrintsPushedFrames(t *testing.T) {
	var upgrader websocket.Upgrader
	apiKeys := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKeys <- r.Header.Get("X-Api-Key")
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		go func() {
			defer ws.Close()
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			name := "reviewTasks_42"
			if !strings.Contains(string(data), name) {
				return
			}
			_ = ws.WriteMessage(websocket.TextMessage, []byte("{\n  \"meta\": {\"subscriptionName\": \""+name+"\"},\n  \"data\": {\"count\": 3}\n}"))
			for {
				if _, _, err := ws.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}))
	defer srv.Close()

	out := &syncBuffer{}
	cmd := newRootCmd(out, &bytes.Buffer{})
	cmd.SetArgs([]string{
		"--endpoint=ws" + strings.TrimPrefix(srv.URL, "http"),
		"--subscribe=reviewTasks:42",
		"--api-key=secret",
		"--api-key-header=X-Api-Key",
		"--base-delay=1ms",
		"--keepalive=0",
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "\n")
	}, 2*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, "secret", <-apiKeys)
	assert.Equal(t, `{"meta":{"subscriptionName":"reviewTasks_42"},"data":{"count":3}}`+"\n", out.String())
}

package network

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cbodonnell/relayhub/pkg/broadcast"
	"github.com/cbodonnell/relayhub/pkg/game"
	"github.com/cbodonnell/relayhub/pkg/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

type testServer struct {
	httpServer  *httptest.Server
	gameManager *game.GameManager
}

func newTestServer(t *testing.T, opts NewWSServerOptions) *testServer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	session := game.NewSession(game.NewSessionOptions{MaxUnhandledActions: 100})
	eventQueue := queue.NewInMemoryQueue(64)
	gameManager := game.NewGameManager(game.NewGameManagerOptions{
		Session:     session,
		Broadcaster: broadcast.NewBroadcaster(broadcast.NewBroadcasterOptions{ClientManager: session.Clients}),
		EventQueue:  eventQueue,
	})
	go gameManager.Start(ctx)

	opts.EventQueue = eventQueue
	opts.Stats = gameManager
	if opts.ClientSendBuffer == 0 {
		opts.ClientSendBuffer = 16
	}
	if opts.MaxMessageSize == 0 {
		opts.MaxMessageSize = 1 << 20
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = time.Second
	}
	server := NewWSServer(opts)

	httpServer := httptest.NewServer(server.Router(ctx))
	t.Cleanup(func() {
		cancel()
		httpServer.Close()
	})

	return &testServer{httpServer: httpServer, gameManager: gameManager}
}

func (s *testServer) dial(t *testing.T, ctx context.Context) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.httpServer.URL, "http") + "/room"
	c, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close(websocket.StatusNormalClosure, "") })
	return c
}

func readMessage(t *testing.T, ctx context.Context, c *websocket.Conn) map[string]interface{} {
	t.Helper()
	var msg map[string]interface{}
	require.NoError(t, wsjson.Read(ctx, c, &msg))
	return msg
}

func writeFrame(t *testing.T, ctx context.Context, c *websocket.Conn, frame string) {
	t.Helper()
	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte(frame)))
}

func TestWSServer_relay(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server := newTestServer(t, NewWSServerOptions{})

	a := server.dial(t, ctx)
	welcomeA := readMessage(t, ctx, a)
	require.Equal(t, "welcome", welcomeA["type"])
	idA := welcomeA["clientId"].(string)
	assert.Equal(t, map[string]interface{}{}, welcomeA["gameState"])
	assert.Equal(t, "", welcomeA["id"])

	b := server.dial(t, ctx)
	welcomeB := readMessage(t, ctx, b)
	require.Equal(t, "welcome", welcomeB["type"])
	idB := welcomeB["clientId"].(string)
	assert.NotEqual(t, idA, idB)
	assert.Equal(t, []interface{}{idA, idB}, welcomeB["clients"])

	joined := readMessage(t, ctx, a)
	assert.Equal(t, "clientJoined", joined["type"])
	assert.Equal(t, idB, joined["clientId"])

	writeFrame(t, ctx, a, `{"type":"playerAction","action":{"id":"act-1","dir":"up"}}`)
	for _, c := range []*websocket.Conn{a, b} {
		msg := readMessage(t, ctx, c)
		assert.Equal(t, "playerAction", msg["type"])
		assert.Equal(t, map[string]interface{}{"id": "act-1", "dir": "up"}, msg["action"])
	}

	writeFrame(t, ctx, b, `{"type":"gameStateUpdate","state":{"y":1},"basedOnId":"","id":"v1","handledActionIds":["act-1"],"serverTimeEstimate":42}`)
	for _, c := range []*websocket.Conn{a, b} {
		msg := readMessage(t, ctx, c)
		assert.Equal(t, "gameStateUpdate", msg["type"])
		assert.Equal(t, "v1", msg["id"])
		assert.Equal(t, []interface{}{"act-1"}, msg["handledActionIds"])
	}

	require.NoError(t, b.Close(websocket.StatusNormalClosure, "bye"))
	left := readMessage(t, ctx, a)
	assert.Equal(t, "clientLeft", left["type"])
	assert.Equal(t, idB, left["clientId"])
}

func TestWSServer_badFramesKeepConnectionOpen(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server := newTestServer(t, NewWSServerOptions{})

	c := server.dial(t, ctx)
	require.Equal(t, "welcome", readMessage(t, ctx, c)["type"])

	writeFrame(t, ctx, c, `not json`)
	writeFrame(t, ctx, c, `{"type":"chat","text":"hi"}`)
	writeFrame(t, ctx, c, `{"type":"playerAction","action":{"kind":"no id"}}`)
	writeFrame(t, ctx, c, "{\"type\":\"playerAction\",\"action\":{\"id\":\"a1\",\"s\":\"\xff\"}}")
	writeFrame(t, ctx, c, `{"type":"gameStateUpdate","state":{},"basedOnId":"","id":"v1","serverTimeEstimate":1e400}`)
	writeFrame(t, ctx, c, `{"type":"ping","payload":"still here"}`)

	pong := readMessage(t, ctx, c)
	assert.Equal(t, "pong", pong["type"])
	assert.Equal(t, "still here", pong["payload"])
	assert.Equal(t, 0, server.gameManager.Stats().UnhandledActions)
	assert.Equal(t, "", server.gameManager.Stats().Version)
}

func TestWSServer_binaryFrames(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server := newTestServer(t, NewWSServerOptions{})

	c := server.dial(t, ctx)
	require.Equal(t, "welcome", readMessage(t, ctx, c)["type"])

	require.NoError(t, c.Write(ctx, websocket.MessageBinary, []byte(`{"type":"ping","payload":1}`)))
	pong := readMessage(t, ctx, c)
	assert.Equal(t, "pong", pong["type"])
	assert.Equal(t, float64(1), pong["payload"])
}

func TestWSServer_rateLimit(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server := newTestServer(t, NewWSServerOptions{
		MessageRateLimit: 0.001,
		MessageRateBurst: 1,
	})

	c := server.dial(t, ctx)
	require.Equal(t, "welcome", readMessage(t, ctx, c)["type"])

	writeFrame(t, ctx, c, `{"type":"ping","payload":"first"}`)
	writeFrame(t, ctx, c, `{"type":"ping","payload":"second"}`)
	assert.Equal(t, "first", readMessage(t, ctx, c)["payload"])

	readCtx, readCancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer readCancel()
	var msg map[string]interface{}
	assert.Error(t, wsjson.Read(readCtx, c, &msg))
}

func TestWSServer_oversizedFrameClosesConnection(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server := newTestServer(t, NewWSServerOptions{MaxMessageSize: 64})

	a := server.dial(t, ctx)
	require.Equal(t, "welcome", readMessage(t, ctx, a)["type"])
	b := server.dial(t, ctx)
	idB := readMessage(t, ctx, b)["clientId"]
	require.Equal(t, "clientJoined", readMessage(t, ctx, a)["type"])

	writeFrame(t, ctx, b, `{"type":"ping","payload":"`+strings.Repeat("x", 128)+`"}`)

	left := readMessage(t, ctx, a)
	assert.Equal(t, "clientLeft", left["type"])
	assert.Equal(t, idB, left["clientId"])
}

func TestWSServer_healthz(t *testing.T) {
	server := newTestServer(t, NewWSServerOptions{})

	resp, err := http.Get(server.httpServer.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, map[string]string{"status": "ok"}, body)
}

func TestWSServer_stats(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server := newTestServer(t, NewWSServerOptions{})

	c := server.dial(t, ctx)
	require.Equal(t, "welcome", readMessage(t, ctx, c)["type"])
	writeFrame(t, ctx, c, `{"type":"playerAction","action":{"id":"act-1"}}`)
	require.Equal(t, "playerAction", readMessage(t, ctx, c)["type"])

	resp, err := http.Get(server.httpServer.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	var stats game.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 1, stats.Clients)
	assert.Equal(t, 1, stats.UnhandledActions)
	assert.Equal(t, "", stats.Version)
}

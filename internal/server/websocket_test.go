package server_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/gochat/internal/server"
	"github.com/Tyrowin/gochat/internal/testhelpers"
)

func startTestServer(t *testing.T, mutate func(*server.Config)) (*server.Hub, *httptest.Server) {
	t.Helper()
	cfg := server.DefaultConfig()
	cfg.AllowedOrigins = testhelpers.TestOrigin
	if mutate != nil {
		mutate(&cfg)
	}

	hub, err := server.NewHub(cfg)
	require.NoError(t, err)
	server.StartHub(hub)

	ts := httptest.NewServer(server.SetupRoutes(server.NewHandlers(hub, cfg, zerolog.Nop())))
	t.Cleanup(func() {
		ts.Close()
		_ = hub.Shutdown(2 * time.Second)
	})
	return hub, ts
}

func TestWebSocket_ChatScenario(t *testing.T) {
	req := require.New(t)
	hub, ts := startTestServer(t, nil)
	url := testhelpers.WebSocketURL(ts.URL)

	alice := testhelpers.MustConnect(t, url)
	bob := testhelpers.MustConnect(t, url)
	req.Eventually(func() bool { return hub.Connections() == 2 }, time.Second, 10*time.Millisecond)

	req.NoError(alice.Join("alice"))
	var history []server.Message
	alice.Expect(t, "history", &history)
	req.Empty(history)
	var count int
	alice.Expect(t, "participantCount", &count)
	req.Equal(1, count)

	var joined server.PresencePayload
	bob.Expect(t, "presence-joined", &joined)
	req.Equal("alice", joined.DisplayName)
	bob.Expect(t, "participantCount", &count)
	req.Equal(1, count)

	req.NoError(bob.Join("bob"))
	bob.Expect(t, "history", &history)
	req.Empty(history)
	bob.Expect(t, "participantCount", &count)
	req.Equal(2, count)
	alice.Expect(t, "participantCount", &count)
	req.Equal(2, count)

	req.NoError(alice.Say("hi"))
	for _, c := range []*testhelpers.WSClient{alice, bob} {
		var msg server.Message
		c.Expect(t, "message", &msg)
		req.Equal("hi", msg.Content)
		req.Equal("alice", msg.AuthorName)
		req.NotEmpty(msg.ID)
	}

	req.NoError(bob.Conn.Close())
	var left server.PresencePayload
	alice.Expect(t, "presence-left", &left)
	req.Equal("bob", left.DisplayName)
	alice.Expect(t, "participantCount", &count)
	req.Equal(1, count)

	req.Eventually(func() bool { return hub.Registry().Count() == 1 }, time.Second, 10*time.Millisecond)
	req.Equal(1, hub.Store().Len())
}

func TestWebSocket_LateJoinerReceivesHistory(t *testing.T) {
	req := require.New(t)
	_, ts := startTestServer(t, nil)
	url := testhelpers.WebSocketURL(ts.URL)

	alice := testhelpers.MustConnect(t, url)
	req.NoError(alice.Join("alice"))
	alice.Expect(t, "participantCount", nil)
	for _, text := range []string{"one", "two", "three"} {
		req.NoError(alice.Say(text))
		alice.Expect(t, "message", nil)
	}

	carol := testhelpers.MustConnect(t, url)
	req.NoError(carol.Join("carol"))
	var history []server.Message
	carol.Expect(t, "history", &history)
	req.Len(history, 3)
	req.Equal("one", history[0].Content)
	req.Equal("three", history[2].Content)
}

func TestWebSocket_Errors(t *testing.T) {
	req := require.New(t)
	_, ts := startTestServer(t, nil)
	url := testhelpers.WebSocketURL(ts.URL)

	c := testhelpers.MustConnect(t, url)

	var errPayload server.ErrorPayload
	req.NoError(c.Say("too early"))
	c.Expect(t, "error", &errPayload)
	req.Equal(server.KindMustJoinFirst, errPayload.Kind)

	req.NoError(c.Join(""))
	c.Expect(t, "error", &errPayload)
	req.Equal(server.KindInvalidUsername, errPayload.Kind)

	req.NoError(c.Conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	c.Expect(t, "error", &errPayload)
	req.Equal(server.KindInvalidMessage, errPayload.Kind)

	req.NoError(c.SendEvent("wave", nil))
	c.Expect(t, "error", &errPayload)
	req.Equal(server.KindUnknownEvent, errPayload.Kind)
}

func TestWebSocket_TypingIsRelayedToOthers(t *testing.T) {
	req := require.New(t)
	_, ts := startTestServer(t, nil)
	url := testhelpers.WebSocketURL(ts.URL)

	alice := testhelpers.MustConnect(t, url)
	bob := testhelpers.MustConnect(t, url)
	req.NoError(alice.Join("alice"))
	alice.Expect(t, "participantCount", nil)
	req.NoError(bob.Join("bob"))
	bob.Expect(t, "participantCount", nil)

	req.NoError(alice.SendEvent("typing-start", nil))
	var typing server.TypingPayload
	bob.Expect(t, "presence-typing", &typing)
	req.Equal(server.TypingPayload{DisplayName: "alice", IsTyping: true}, typing)

	alice.ExpectNone(t, "presence-typing", 200*time.Millisecond)
}

func TestWebSocket_RateLimited(t *testing.T) {
	req := require.New(t)
	_, ts := startTestServer(t, func(cfg *server.Config) {
		cfg.RateLimitMessages = 3
	})
	url := testhelpers.WebSocketURL(ts.URL)

	c := testhelpers.MustConnect(t, url)
	req.NoError(c.Join("alice"))
	c.Expect(t, "participantCount", nil)

	for i := 0; i < 3; i++ {
		req.NoError(c.Say("ok"))
		c.Expect(t, "message", nil)
	}
	req.NoError(c.Say("blocked"))
	var errPayload server.ErrorPayload
	c.Expect(t, "error", &errPayload)
	req.Equal(server.KindRateLimited, errPayload.Kind)
}

func TestWebSocket_RejectsDisallowedOrigin(t *testing.T) {
	req := require.New(t)
	_, ts := startTestServer(t, func(cfg *server.Config) {
		cfg.AllowedOrigins = "https://chat.example.com"
	})

	_, resp, err := testhelpers.ConnectWebSocket(testhelpers.WebSocketURL(ts.URL))
	req.Error(err)
	req.NotNil(resp)
	req.Equal(http.StatusForbidden, resp.StatusCode)
}

func TestWebSocket_UpgradeThrottle(t *testing.T) {
	req := require.New(t)
	_, ts := startTestServer(t, func(cfg *server.Config) {
		cfg.UpgradesPerSec = 1
	})
	url := testhelpers.WebSocketURL(ts.URL)

	testhelpers.MustConnect(t, url)
	_, resp, err := testhelpers.ConnectWebSocket(url)
	req.Error(err)
	req.NotNil(resp)
	req.Equal(http.StatusTooManyRequests, resp.StatusCode)
}

func TestWebSocket_OversizedFrameClosesConnection(t *testing.T) {
	req := require.New(t)
	hub, ts := startTestServer(t, func(cfg *server.Config) {
		cfg.MaxMessageSize = 256
	})
	url := testhelpers.WebSocketURL(ts.URL)

	c := testhelpers.MustConnect(t, url)
	req.NoError(c.Join("alice"))
	c.Expect(t, "participantCount", nil)

	req.NoError(c.Say(strings.Repeat("A", 512)))
	c.ExpectClosed(t, 2*time.Second)

	req.Eventually(func() bool { return hub.Registry().Count() == 0 }, time.Second, 10*time.Millisecond)
	req.Zero(hub.Store().Len())
}

func TestWebSocket_ShutdownClosesClients(t *testing.T) {
	req := require.New(t)
	hub, ts := startTestServer(t, nil)
	url := testhelpers.WebSocketURL(ts.URL)

	clients := make([]*testhelpers.WSClient, 3)
	for i := range clients {
		clients[i] = testhelpers.MustConnect(t, url)
	}
	req.Eventually(func() bool { return hub.Connections() == len(clients) }, time.Second, 10*time.Millisecond)

	req.NoError(hub.Shutdown(2 * time.Second))
	req.False(hub.Running())
	for _, c := range clients {
		c.ExpectClosed(t, 2*time.Second)
	}
}

func TestWebSocket_EscapedMaxLengthContentIsAccepted(t *testing.T) {
	req := require.New(t)
	_, ts := startTestServer(t, nil)
	url := testhelpers.WebSocketURL(ts.URL)

	c := testhelpers.MustConnect(t, url)
	req.NoError(c.Join("alice"))
	c.Expect(t, "participantCount", nil)

	escaped := strings.Repeat(`\ud83d\ude00`, server.DefaultConfig().MaxContentLength)
	frame := `{"event":"send","data":{"content":"` + escaped + `"}}`
	req.NoError(c.Conn.WriteMessage(websocket.TextMessage, []byte(frame)))

	var msg server.Message
	c.Expect(t, "message", &msg)
	req.Equal(strings.Repeat("\U0001F600", server.DefaultConfig().MaxContentLength), msg.Content)
}

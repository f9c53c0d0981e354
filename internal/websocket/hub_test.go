package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dom/werewolf/internal/domain"
	"github.com/dom/werewolf/internal/repository"
	redisrepo "github.com/dom/werewolf/internal/repository/redis"
	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type harness struct {
	repos       *repository.Repositories
	hub         *Hub
	broadcaster *Broadcaster
	server      *httptest.Server
}

func newHarness(t *testing.T, cfg HubConfig) *harness {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb, err := redisrepo.NewClient(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	t.Cleanup(func() { rdb.Close() })

	repos := redisrepo.NewRepositories(rdb, repository.DefaultOptions(), zap.NewNop())
	b := NewBroadcaster(repos.Bus, repos.Presence, zap.NewNop())
	hub := NewHub(repos, b, cfg, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	go hub.RunHeartbeat(ctx)

	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/ws/"), "/")
		if len(parts) != 2 {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Serve(r.Context(), conn, parts[0], parts[1])
	}))

	t.Cleanup(func() {
		server.Close()
		cancel()
		hub.Stop()
	})

	return &harness{repos: repos, hub: hub, broadcaster: b, server: server}
}

func defaultHubConfig() HubConfig {
	return HubConfig{HeartbeatInterval: time.Hour, HeartbeatTimeout: time.Hour}
}

// seedRoom stores a WAITING room with players p1 (Alice, admin) and p2 (Bob).
func (h *harness) seedRoom(t *testing.T, roomID string) *domain.Game {
	t.Helper()
	g := domain.NewGame(roomID, domain.DefaultSettings())
	_, err := g.AddPlayer("p1", "Alice")
	require.NoError(t, err)
	_, err = g.AddPlayer("p2", "Bob")
	require.NoError(t, err)
	require.NoError(t, h.repos.Games.Save(context.Background(), g))
	return g
}

func (h *harness) dial(t *testing.T, roomID, playerID string) *ws.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/ws/" + roomID + "/" + playerID
	conn, _, err := ws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *ws.Conn) *Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return &msg
}

// readUntil skips messages until one of type msgType matches accept.
func readUntil(t *testing.T, conn *ws.Conn, msgType MessageType, accept func(*Message) bool) *Message {
	t.Helper()
	for {
		msg := readMessage(t, conn)
		if msg.Type == msgType && (accept == nil || accept(msg)) {
			return msg
		}
	}
}

func decodeView(t *testing.T, msg *Message) *domain.GameView {
	t.Helper()
	var view domain.GameView
	require.NoError(t, json.Unmarshal(msg.Payload, &view))
	return &view
}

func decodePresence(t *testing.T, msg *Message) PresencePayload {
	t.Helper()
	var p PresencePayload
	require.NoError(t, json.Unmarshal(msg.Payload, &p))
	return p
}

func presenceFor(playerID string) func(*Message) bool {
	return func(m *Message) bool {
		var p PresencePayload
		return json.Unmarshal(m.Payload, &p) == nil && p.PlayerID == playerID
	}
}

func TestServeSendsInitialState(t *testing.T) {
	h := newHarness(t, defaultHubConfig())
	h.seedRoom(t, "room1")

	conn := h.dial(t, "room1", "p1")
	msg := readMessage(t, conn)

	assert.Equal(t, MessageTypeStateUpdate, msg.Type)
	assert.Equal(t, "room1", msg.RoomID)
	assert.NotZero(t, msg.Timestamp)

	view := decodeView(t, msg)
	assert.Equal(t, "p1", view.ViewerID)
	assert.Equal(t, domain.PhaseWaiting, view.Phase)
	assert.True(t, view.Players["p1"].IsOnline)

	online, err := h.repos.Presence.IsOnline(context.Background(), "room1", "p1")
	require.NoError(t, err)
	assert.True(t, online)
	assert.Equal(t, 1, h.hub.ConnectionCount("room1"))
}

func TestServeUnknownRoomCloses(t *testing.T) {
	h := newHarness(t, defaultHubConfig())

	conn := h.dial(t, "missing", "p1")
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()

	var closeErr *ws.CloseError
	require.True(t, errors.As(err, &closeErr), "expected close error, got %v", err)
	assert.Equal(t, CloseRoomNotFound, closeErr.Code)
}

func TestBroadcastGameDeliversFilteredViews(t *testing.T) {
	h := newHarness(t, defaultHubConfig())
	g := h.seedRoom(t, "room1")

	alice := h.dial(t, "room1", "p1")
	bob := h.dial(t, "room1", "p2")
	watcher := h.dial(t, "room1", "someone-else")
	for _, conn := range []*ws.Conn{alice, bob, watcher} {
		readUntil(t, conn, MessageTypeStateUpdate, nil)
	}

	g.Players["p1"].Role = domain.RoleWerewolf
	g.Players["p2"].Role = domain.RoleSeer
	g.Phase = domain.PhaseNight
	require.NoError(t, h.broadcaster.BroadcastGame(context.Background(), g))

	isNight := func(m *Message) bool { return decodeView(t, m).Phase == domain.PhaseNight }

	aliceView := decodeView(t, readUntil(t, alice, MessageTypeStateUpdate, isNight))
	assert.Equal(t, "p1", aliceView.ViewerID)
	assert.Equal(t, domain.RoleWerewolf, aliceView.Players["p1"].Role)
	assert.Empty(t, aliceView.Players["p2"].Role)

	bobView := decodeView(t, readUntil(t, bob, MessageTypeStateUpdate, isNight))
	assert.Equal(t, "p2", bobView.ViewerID)
	assert.Equal(t, domain.RoleSeer, bobView.Players["p2"].Role)
	assert.Empty(t, bobView.Players["p1"].Role)

	publicView := decodeView(t, readUntil(t, watcher, MessageTypeStateUpdate, isNight))
	assert.Empty(t, publicView.ViewerID)
	assert.Empty(t, publicView.Players["p1"].Role)
	assert.Empty(t, publicView.Players["p2"].Role)
}

func TestReconnectIsAnnounced(t *testing.T) {
	h := newHarness(t, defaultHubConfig())
	h.seedRoom(t, "room1")

	alice := h.dial(t, "room1", "p1")
	readUntil(t, alice, MessageTypeStateUpdate, nil)

	h.dial(t, "room1", "p2")

	msg := readUntil(t, alice, MessageTypePlayerReconnected, presenceFor("p2"))
	p := decodePresence(t, msg)
	assert.Equal(t, "Bob", p.Nickname)
}

func TestDisconnectClearsPresenceAndNotifies(t *testing.T) {
	h := newHarness(t, defaultHubConfig())
	h.seedRoom(t, "room1")

	alice := h.dial(t, "room1", "p1")
	readUntil(t, alice, MessageTypeStateUpdate, nil)
	bob := h.dial(t, "room1", "p2")
	readUntil(t, bob, MessageTypeStateUpdate, nil)

	require.NoError(t, bob.Close())

	msg := readUntil(t, alice, MessageTypePlayerDisconnected, presenceFor("p2"))
	assert.Equal(t, "Bob", decodePresence(t, msg).Nickname)

	assert.Eventually(t, func() bool {
		online, err := h.repos.Presence.IsOnline(context.Background(), "room1", "p2")
		return err == nil && !online
	}, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return h.hub.ConnectionCount("room1") == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestHeartbeat(t *testing.T) {
	t.Run("PingAndPongKeepConnection", func(t *testing.T) {
		h := newHarness(t, HubConfig{HeartbeatInterval: 50 * time.Millisecond, HeartbeatTimeout: 200 * time.Millisecond})
		h.seedRoom(t, "room1")

		conn := h.dial(t, "room1", "p1")
		for i := 0; i < 5; i++ {
			ping := readUntil(t, conn, MessageTypePing, nil)
			assert.Equal(t, "room1", ping.RoomID)
			require.NoError(t, conn.WriteJSON(Message{Type: MessageTypePong, RoomID: "room1"}))
		}
		assert.Equal(t, 1, h.hub.ConnectionCount("room1"))
	})

	t.Run("ClientPingGetsPong", func(t *testing.T) {
		h := newHarness(t, defaultHubConfig())
		h.seedRoom(t, "room1")

		conn := h.dial(t, "room1", "p1")
		readUntil(t, conn, MessageTypeStateUpdate, nil)
		require.NoError(t, conn.WriteJSON(Message{Type: MessageTypePing, RoomID: "room1"}))
		readUntil(t, conn, MessageTypePong, nil)
	})

	t.Run("SilentSocketIsDropped", func(t *testing.T) {
		h := newHarness(t, HubConfig{HeartbeatInterval: 30 * time.Millisecond, HeartbeatTimeout: 30 * time.Millisecond})
		h.seedRoom(t, "room1")

		conn := h.dial(t, "room1", "p1")
		readUntil(t, conn, MessageTypeStateUpdate, nil)

		assert.Eventually(t, func() bool { return h.hub.ConnectionCount("room1") == 0 }, 2*time.Second, 10*time.Millisecond)
		assert.Eventually(t, func() bool {
			online, err := h.repos.Presence.IsOnline(context.Background(), "room1", "p1")
			return err == nil && !online
		}, 2*time.Second, 10*time.Millisecond)
	})
}

func TestRelayIgnoresOtherRooms(t *testing.T) {
	h := newHarness(t, defaultHubConfig())
	h.seedRoom(t, "room1")
	other := h.seedRoom(t, "room2")

	conn := h.dial(t, "room1", "p1")
	readUntil(t, conn, MessageTypeStateUpdate, nil)

	other.Phase = domain.PhaseNight
	require.NoError(t, h.broadcaster.BroadcastGame(context.Background(), other))
	require.NoError(t, h.repos.Bus.Publish(context.Background(), "room1", []byte("not json")))
	require.NoError(t, h.broadcaster.BroadcastPresence(context.Background(), MessageTypePlayerReconnected, "room1", "marker", "M"))

	for {
		msg := readMessage(t, conn)
		require.Equal(t, "room1", msg.RoomID)
		if msg.Type == MessageTypePlayerReconnected && presenceFor("marker")(msg) {
			break
		}
	}
}

func TestDisconnectKeepsPresenceHeldElsewhere(t *testing.T) {
	h := newHarness(t, defaultHubConfig())
	h.seedRoom(t, "room1")
	ctx := context.Background()

	// Another server process still holds a socket for Bob.
	require.NoError(t, h.repos.Presence.Touch(ctx, "room1", "p2", "other-node"))

	alice := h.dial(t, "room1", "p1")
	readUntil(t, alice, MessageTypeStateUpdate, nil)
	bob := h.dial(t, "room1", "p2")
	readUntil(t, bob, MessageTypeStateUpdate, nil)
	require.Eventually(t, func() bool { return h.hub.ConnectionCount("room1") == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, bob.Close())
	require.Eventually(t, func() bool { return h.hub.ConnectionCount("room1") == 1 }, 2*time.Second, 10*time.Millisecond)
	h.hub.tasks.Wait()

	online, err := h.repos.Presence.IsOnline(ctx, "room1", "p2")
	require.NoError(t, err)
	assert.True(t, online)

	require.NoError(t, h.broadcaster.BroadcastPresence(ctx, MessageTypePlayerReconnected, "room1", "marker", "M"))
	for {
		msg := readMessage(t, alice)
		require.False(t, msg.Type == MessageTypePlayerDisconnected && presenceFor("p2")(msg), "Bob reported disconnected")
		if msg.Type == MessageTypePlayerReconnected && presenceFor("marker")(msg) {
			break
		}
	}
}

func TestStaleStateIsNotDelivered(t *testing.T) {
	h := newHarness(t, defaultHubConfig())
	g := h.seedRoom(t, "room1")
	ctx := context.Background()
	g.Version = 3
	require.NoError(t, h.repos.Games.Save(ctx, g))

	conn := h.dial(t, "room1", "p1")
	initial := decodeView(t, readUntil(t, conn, MessageTypeStateUpdate, nil))
	assert.Equal(t, int64(3), initial.Version)
	require.Eventually(t, func() bool { return h.hub.ConnectionCount("room1") == 1 }, 2*time.Second, 10*time.Millisecond)

	stale := domain.NewGame("room1", domain.DefaultSettings())
	stale.Version = 2
	require.NoError(t, h.broadcaster.BroadcastGame(ctx, stale))
	require.NoError(t, h.broadcaster.BroadcastPresence(ctx, MessageTypePlayerReconnected, "room1", "marker", "M"))

	for {
		msg := readMessage(t, conn)
		require.NotEqual(t, MessageTypeStateUpdate, msg.Type, "stale state delivered")
		if msg.Type == MessageTypePlayerReconnected && presenceFor("marker")(msg) {
			break
		}
	}

	g.Phase = domain.PhaseNight
	require.NoError(t, h.broadcaster.BroadcastGame(ctx, g))
	view := decodeView(t, readUntil(t, conn, MessageTypeStateUpdate, nil))
	assert.Equal(t, domain.PhaseNight, view.Phase)
	assert.Equal(t, int64(3), view.Version)
}

func TestClientStateOrdering(t *testing.T) {
	tests := []struct {
		name     string
		versions []int64
		want     []int64
	}{
		{name: "Increasing", versions: []int64{1, 2, 3}, want: []int64{1, 2, 3}},
		{name: "OlderDropped", versions: []int64{4, 2, 5}, want: []int64{4, 5}},
		{name: "EqualKept", versions: []int64{2, 2}, want: []int64{2, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient(nil, nil, "room1", "p1", "Alice", true)
			for _, v := range tt.versions {
				assert.True(t, c.trySendState(v, []byte{byte(v)}))
			}
			c.Close()

			var got []int64
			for data := range c.send {
				got = append(got, int64(data[0]))
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

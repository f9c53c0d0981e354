package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dom/werewolf/internal/domain"
	"github.com/dom/werewolf/internal/repository"
	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// CloseRoomNotFound is sent when a socket asks for a room that does not exist.
const CloseRoomNotFound = 4000

const ioTimeout = 5 * time.Second

type HubConfig struct {
	// HeartbeatInterval is how often every socket is sent a PING.
	HeartbeatInterval time.Duration
	// HeartbeatTimeout is the grace period after an interval before a silent
	// socket is dropped.
	HeartbeatTimeout time.Duration
}

// Hub is the per-process connection table. It relays bus events to the
// sockets it holds and pings them on a fixed interval.
type Hub struct {
	id          string // presence holder name of this process
	rooms       map[string]map[*Client]bool
	register    chan *Client
	unregister  chan *Client
	stop        chan struct{}
	done        chan struct{} // closed when Run() exits
	stopped     bool
	games       repository.GameRepository
	presence    repository.PresenceRepository
	bus         repository.Bus
	broadcaster *Broadcaster
	cfg         HubConfig
	logger      *zap.Logger
	tasks       sync.WaitGroup
	stopOnce    sync.Once
	mu          sync.RWMutex
}

func NewHub(repos *repository.Repositories, broadcaster *Broadcaster, cfg HubConfig, logger *zap.Logger) *Hub {
	return &Hub{
		id:          uuid.NewString(),
		rooms:       make(map[string]map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
		games:       repos.Games,
		presence:    repos.Presence,
		bus:         repos.Bus,
		broadcaster: broadcaster,
		cfg:         cfg,
		logger:      logger.Named("hub"),
	}
}

// Run owns the connection table and relays every bus message to the local
// sockets of its room. It returns when ctx is done or Stop is called.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	sub, err := h.bus.SubscribeAll(ctx)
	if err != nil {
		h.shutdown()
		return fmt.Errorf("subscribing to room events: %w", err)
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return nil

		case <-h.stop:
			h.shutdown()
			return nil

		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case msg, ok := <-sub.Messages():
			if !ok {
				h.shutdown()
				return errors.New("room event subscription closed")
			}
			h.relay(msg)
		}
	}
}

// RunHeartbeat sends a PING to every local socket each interval until ctx is
// done or the hub stops.
func (h *Hub) RunHeartbeat(ctx context.Context) error {
	ticker := time.NewTicker(h.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-h.done:
			return nil
		case <-ticker.C:
			h.pingAll()
		}
	}
}

// Stop shuts the hub down and closes every socket. It blocks until Run has
// returned and pending disconnect work is finished.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
	<-h.done
	h.tasks.Wait()
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped = true
	for _, clients := range h.rooms {
		for client := range clients {
			client.Close()
		}
	}
	h.rooms = make(map[string]map[*Client]bool)
}

// Serve takes over an upgraded connection for (roomID, playerID): it marks the
// player online, registers the socket, sends the current state and starts the
// pumps. Unknown rooms are closed with CloseRoomNotFound.
func (h *Hub) Serve(ctx context.Context, conn *ws.Conn, roomID, playerID string) {
	log := h.logger.With(zap.String("room_id", roomID), zap.String("player_id", playerID))

	game, err := h.games.Get(ctx, roomID)
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			closeConn(conn, CloseRoomNotFound, "room not found")
			return
		}
		log.Error("failed to load room for socket", zap.Error(err))
		closeConn(conn, ws.CloseInternalServerErr, "internal error")
		return
	}

	player, known := game.Players[playerID]
	nickname := "Unknown"
	if known {
		nickname = player.Nickname
	}

	wasOnline, err := h.presence.IsOnline(ctx, roomID, playerID)
	if err != nil {
		log.Warn("failed to read presence", zap.Error(err))
		wasOnline = true
	}
	if err := h.presence.Touch(ctx, roomID, playerID, h.id); err != nil {
		log.Warn("failed to mark player online", zap.Error(err))
	}

	client := NewClient(h, conn, roomID, playerID, nickname, known)
	if !h.Register(client) {
		closeConn(conn, ws.CloseGoingAway, "server shutting down")
		return
	}

	// Registered first: any state saved from here on is relayed, and anything
	// older than the snapshot below is dropped by the client.
	if fresh, err := h.games.Get(ctx, roomID); err == nil {
		game = fresh
	} else {
		log.Warn("failed to reload room for initial state", zap.Error(err))
	}
	online, err := h.presence.Online(ctx, roomID, game.PlayerIDs())
	if err != nil {
		online = nil
	}
	initial, err := NewMessage(MessageTypeStateUpdate, roomID, domain.Project(game, playerID, online))
	if err == nil {
		var data []byte
		if data, err = json.Marshal(initial); err == nil {
			client.trySendState(game.Version, data)
		}
	}
	if err != nil {
		log.Error("failed to encode initial state", zap.Error(err))
		h.Unregister(client)
		closeConn(conn, ws.CloseInternalServerErr, "internal error")
		return
	}

	if known && !wasOnline {
		if err := h.broadcaster.BroadcastPresence(ctx, MessageTypePlayerReconnected, roomID, playerID, nickname); err != nil {
			log.Warn("failed to broadcast reconnect", zap.Error(err))
		}
	}

	log.Debug("socket connected")
	go client.WritePump()
	go client.ReadPump()
}

// Register adds a client to the table. It reports false if the hub is gone.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ConnectionCount reports how many local sockets are open for a room.
func (h *Hub) ConnectionCount(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		client.Close()
		return
	}
	clients, ok := h.rooms[client.roomID]
	if !ok {
		clients = make(map[*Client]bool)
		h.rooms[client.roomID] = clients
	}
	clients[client] = true
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	clients, ok := h.rooms[client.roomID]
	if !ok || !clients[client] {
		h.mu.Unlock()
		return
	}
	delete(clients, client)
	client.Close()

	last := true
	for other := range clients {
		if other.playerID == client.playerID {
			last = false
			break
		}
	}
	if len(clients) == 0 {
		delete(h.rooms, client.roomID)
	}
	if last {
		h.tasks.Add(1)
	}
	h.mu.Unlock()

	if last {
		go h.playerGone(client)
	}
}

// playerGone drops this process's presence claim for a player whose last
// local socket closed. The room is told only when no other process still
// holds a socket for that player.
func (h *Hub) playerGone(client *Client) {
	defer h.tasks.Done()
	ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
	defer cancel()

	log := h.logger.With(zap.String("room_id", client.roomID), zap.String("player_id", client.playerID))
	if err := h.presence.Release(ctx, client.roomID, client.playerID, h.id); err != nil {
		log.Warn("failed to clear presence", zap.Error(err))
	}
	if !client.known {
		return
	}
	online, err := h.presence.IsOnline(ctx, client.roomID, client.playerID)
	if err != nil {
		log.Warn("failed to read presence", zap.Error(err))
	}
	if online {
		log.Debug("socket disconnected, player still connected elsewhere")
		return
	}
	if err := h.broadcaster.BroadcastPresence(ctx, MessageTypePlayerDisconnected, client.roomID, client.playerID, client.nickname); err != nil {
		log.Warn("failed to broadcast disconnect", zap.Error(err))
	}
	log.Debug("socket disconnected")
}

// relay delivers a bus message to every local socket of its room. Rooms with
// no local sockets are ignored.
func (h *Hub) relay(msg repository.BusMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := h.rooms[msg.RoomID]
	if len(clients) == 0 {
		return
	}

	var env envelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		h.logger.Warn("dropping malformed room event", zap.String("room_id", msg.RoomID), zap.Error(err))
		return
	}
	if env.RoomID == "" {
		env.RoomID = msg.RoomID
	}

	for client := range clients {
		data, err := json.Marshal(env.messageFor(client.playerID))
		if err != nil {
			h.logger.Error("failed to encode message", zap.Error(err))
			continue
		}
		var sent bool
		if env.Type == MessageTypeStateUpdate {
			sent = client.trySendState(env.Version, data)
		} else {
			sent = client.trySend(data)
		}
		if !sent {
			h.logger.Warn("socket send buffer full, closing",
				zap.String("room_id", client.roomID), zap.String("player_id", client.playerID))
			client.Close()
		}
	}
}

func (h *Hub) pingAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for roomID, clients := range h.rooms {
		msg, err := NewMessage(MessageTypePing, roomID, nil)
		if err != nil {
			continue
		}
		data, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		for client := range clients {
			client.trySend(data)
		}
	}
}

// touch refreshes presence after client activity.
func (h *Hub) touch(client *Client) {
	ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
	defer cancel()
	if err := h.presence.Touch(ctx, client.roomID, client.playerID, h.id); err != nil {
		h.logger.Warn("failed to refresh presence",
			zap.String("room_id", client.roomID), zap.String("player_id", client.playerID), zap.Error(err))
	}
}

func (h *Hub) readTimeout() time.Duration {
	return h.cfg.HeartbeatInterval + h.cfg.HeartbeatTimeout
}

func closeConn(conn *ws.Conn, code int, reason string) {
	deadline := time.Now().Add(writeWait)
	_ = conn.WriteControl(ws.CloseMessage, ws.FormatCloseMessage(code, reason), deadline)
	conn.Close()
}

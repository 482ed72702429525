package http

import (
	"context"
	"encoding/json"
	"errors"
	nethttp "net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/yahabaat/voiceroom/internal/domain"
	"github.com/yahabaat/voiceroom/internal/presence"
)

var ErrBackpressure = errors.New("backpressure")

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *nethttp.Request) bool { return true },
}

// PresenceWSController pushes one message per presence snapshot to lobby
// and room pages watching a room.
type PresenceWSController struct {
	Store *presence.Store
}

func NewPresenceWSController(store *presence.Store) *PresenceWSController {
	return &PresenceWSController{Store: store}
}

type wsConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

func (c *wsConn) trySend(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- payload:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

type presenceMessage struct {
	Type         string                 `json:"type"`
	Room         domain.RoomID          `json:"room"`
	Count        int                    `json:"count"`
	Participants []domain.PresenceEntry `json:"participants"`
}

// HandlePresence is GET /api/ws/presence?room=<id>.
func (ctl *PresenceWSController) HandlePresence(ctx context.Context, c *gin.Context) {
	room := domain.RoomID(c.Query("room"))
	if room == "" {
		c.JSON(nethttp.StatusBadRequest, gin.H{"error": "missing room"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Str("module", "adapters.ws").Err(err).Msg("ws upgrade")
		return
	}
	log.Info().Str("module", "adapters.ws").Str("room", string(room)).Msg("presence watcher connected")

	conn := &wsConn{conn: ws, send: make(chan []byte, 16)}
	ctx, cancel := context.WithCancel(ctx)

	go ctl.writePump(ctx, cancel, conn)
	go ctl.readPump(cancel, conn)

	entries, watchErr := ctl.Store.Watch(ctx, room)
	if watchErr != nil {
		log.Error().Str("module", "adapters.ws").Err(watchErr).Msg("presence watch")
		cancel()
		conn.close()
		return
	}
	go func() {
		defer cancel()
		for snapshot := range entries {
			msg := presenceMessage{
				Type:         "presence",
				Room:         room,
				Count:        len(snapshot),
				Participants: snapshot,
			}
			payload, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			if err := conn.trySend(payload); err != nil {
				if errors.Is(err, ErrBackpressure) {
					// Snapshots are full-state; dropping one loses nothing
					// the next snapshot will not restore.
					log.Debug().Str("module", "adapters.ws").Str("room", string(room)).Msg("snapshot dropped")
					continue
				}
				return
			}
		}
	}()
}

func (ctl *PresenceWSController) writePump(ctx context.Context, cancel context.CancelFunc, conn *wsConn) {
	defer cancel()
	defer conn.close()
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-conn.send:
			if !ok {
				return
			}
			_ = conn.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}
}

// readPump only drains control frames and detects the peer going away.
func (ctl *PresenceWSController) readPump(cancel context.CancelFunc, conn *wsConn) {
	defer cancel()
	defer conn.close()
	for {
		if _, _, err := conn.conn.ReadMessage(); err != nil {
			return
		}
	}
}

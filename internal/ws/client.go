package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/studyden/backend/internal/room"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// TokenVerifier resolves a presented credential into a user id.
type TokenVerifier interface {
	VerifyToken(token string) (string, error)
}

type Client struct {
	dir     *room.Directory
	conn    *websocket.Conn
	sess    *room.Session
	roomID  string
	limiter *rate.Limiter
}

// Handler serves the live-connection endpoint.
type Handler struct {
	dir      *room.Directory
	verifier TokenVerifier
	rate     float64
	burst    int
}

func NewHandler(dir *room.Directory, verifier TokenVerifier, eventsPerSecond float64, burst int) *Handler {
	return &Handler{dir: dir, verifier: verifier, rate: eventsPerSecond, burst: burst}
}

// ServeWs authenticates the connection, attaches a live session to the room,
// and starts the read/write pumps. /ws?room={id}&token={jwt}
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room")
	if roomID == "" {
		http.Error(w, "room is required", http.StatusBadRequest)
		return
	}

	userID, err := h.verifier.VerifyToken(r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	sess := room.NewSession(userID)
	if _, err := h.dir.Attach(r.Context(), roomID, sess); err != nil {
		reason := "cannot join room"
		code := websocket.ClosePolicyViolation
		if errors.Is(err, room.ErrRoomNotFound) {
			reason = "room not found"
		}
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
		conn.Close()
		return
	}

	client := &Client{
		dir:     h.dir,
		conn:    conn,
		sess:    sess,
		roomID:  roomID,
		limiter: rate.NewLimiter(rate.Limit(h.rate), h.burst),
	}

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.dir.Detach(context.Background(), c.roomID, c.sess)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	rateLimitWarnings := 0

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("room", c.roomID).Str("user", c.sess.UserID).Msg("websocket error")
			}
			break
		}

		if !c.limiter.Allow() {
			rateLimitWarnings++
			if rateLimitWarnings%100 == 1 {
				log.Warn().Str("room", c.roomID).Str("session", c.sess.ID).Int("warnings", rateLimitWarnings).Msg("rate limit exceeded")
			}
			if rateLimitWarnings > 1000 {
				log.Warn().Str("session", c.sess.ID).Msg("disconnecting client for excessive rate limit violations")
				return
			}
			continue
		}

		msg, err := parseInbound(data)
		if err != nil {
			log.Warn().Err(err).Str("session", c.sess.ID).Msg("invalid message")
			continue
		}

		if err := c.dir.Publish(context.Background(), c.roomID, c.sess, msg.Type, msg.Payload); err != nil {
			log.Warn().Err(err).Str("room", c.roomID).Str("session", c.sess.ID).Msg("publish rejected")
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.sess.Outbound():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

package messenger

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

// ErrNoSession is returned when the target chat has no connected client.
var ErrNoSession = errors.New("no ws session")

// inboundFrame is what a websocket client sends for one turn.
type inboundFrame struct {
	Text     string `json:"text,omitempty"`
	Callback string `json:"callback,omitempty"`
}

// OutboundFrame is what the gateway pushes to a client.
type OutboundFrame struct {
	Type      string  `json:"type"` // message or edit
	MessageID int     `json:"message_id"`
	Message   Message `json:"message"`
}

// wsSession represents one connected chat client.
type wsSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *wsSession) send(f OutboundFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(f)
}

// WSGateway is a Messenger for local clients and integration tests: each chat
// connects over a websocket and exchanges JSON frames.
type WSGateway struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader
	in       chan Event
	nextID   atomic.Int64

	mu        sync.RWMutex
	sessions  map[int64]*wsSession
	usernames map[int64]string
}

func NewWSGateway(logger *slog.Logger) *WSGateway {
	return &WSGateway{
		logger:    logger,
		in:        make(chan Event, 64),
		sessions:  make(map[int64]*wsSession),
		usernames: make(map[int64]string),
	}
}

func (g *WSGateway) Events(ctx context.Context) (<-chan Event, error) {
	out := make(chan Event)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-g.in:
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Serve upgrades the request and reads the chat's frames until the client
// disconnects. A newer connection for the same chat replaces the older one.
func (g *WSGateway) Serve(w http.ResponseWriter, r *http.Request, chatID int64, username string) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("ws upgrade failed", "chat_id", chatID, "error", err)
		return
	}
	sess := &wsSession{conn: conn}
	g.mu.Lock()
	if old, ok := g.sessions[chatID]; ok {
		old.conn.Close()
	}
	g.sessions[chatID] = sess
	if username != "" {
		g.usernames[chatID] = username
	}
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		if g.sessions[chatID] == sess {
			delete(g.sessions, chatID)
		}
		g.mu.Unlock()
		conn.Close()
	}()

	for {
		var f inboundFrame
		if err := conn.ReadJSON(&f); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				g.logger.Debug("ws read ended", "chat_id", chatID, "error", err)
			}
			return
		}
		ev := Event{ChatID: chatID, FromID: chatID, Text: f.Text}
		if f.Callback != "" {
			ev = Event{ChatID: chatID, FromID: chatID, Callback: f.Callback, IsCallback: true}
		}
		select {
		case g.in <- ev:
		case <-r.Context().Done():
			return
		}
	}
}

func (g *WSGateway) session(chatID int64) (*wsSession, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s, ok := g.sessions[chatID]
	return s, ok
}

func (g *WSGateway) Send(ctx context.Context, chatID int64, msg Message) (int, error) {
	s, ok := g.session(chatID)
	if !ok {
		return 0, ErrNoSession
	}
	id := int(g.nextID.Add(1))
	if err := s.send(OutboundFrame{Type: "message", MessageID: id, Message: msg}); err != nil {
		return 0, err
	}
	return id, nil
}

func (g *WSGateway) Edit(ctx context.Context, chatID int64, messageID int, msg Message) error {
	s, ok := g.session(chatID)
	if !ok {
		return ErrNoSession
	}
	if messageID <= 0 || int64(messageID) > g.nextID.Load() {
		return ErrMessageNotFound
	}
	return s.send(OutboundFrame{Type: "edit", MessageID: messageID, Message: msg})
}

func (g *WSGateway) Username(ctx context.Context, chatID int64) (string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.usernames[chatID], nil
}

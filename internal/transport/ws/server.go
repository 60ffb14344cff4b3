package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/1f916-ai/chat-service/internal/completion"
	"github.com/1f916-ai/chat-service/internal/domain"
	"github.com/1f916-ai/chat-service/internal/service"
	"github.com/1f916-ai/chat-service/internal/session"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

type Server struct {
	upgrader    websocket.Upgrader
	hub         *Hub
	rooms       *service.RoomService
	presence    *service.Presence
	relay       *service.Relay
	completions *completion.Client

	pingEvery time.Duration
}

func NewServer(hub *Hub, rooms *service.RoomService, presence *service.Presence, relay *service.Relay, completions *completion.Client) *Server {
	return &Server{
		hub:         hub,
		rooms:       rooms,
		presence:    presence,
		relay:       relay,
		completions: completions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		pingEvery: 15 * time.Second,
	}
}

// WS endpoint: GET /ws/rooms/{id}?agent_id=...
// Connections without agent_id attach as viewers and get a generated
// viewer identity.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")
	if roomID == "" {
		http.Error(w, "missing room id", http.StatusBadRequest)
		return
	}
	selfID := strings.TrimSpace(r.URL.Query().Get("agent_id"))

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "err", err)
		return
	}

	c := newWsConn(conn, roomID)

	ctrl := session.New(session.Context{ID: selfID}, roomID, s.rooms, s.presence, s.relay)
	ctrl.OnMessages(func(msgs []domain.Message) {
		items := make([]MessageItem, 0, len(msgs))
		for _, m := range msgs {
			items = append(items, MessageItem{
				Author:    m.Author,
				Content:   m.Content,
				Timestamp: m.Timestamp,
				Seq:       m.Seq,
			})
		}
		_ = c.Send(Message{Type: TypeMessages, Payload: MessagesPayload{RoomID: roomID, Items: items}})
		s.sendState(c, ctrl)
	})
	ctrl.OnViewers(func(n int) {
		_ = c.Send(Message{Type: TypeViewers, Payload: ViewersPayload{RoomID: roomID, Count: n}})
	})
	ctrl.OnPeers(func(ids []string) {
		_ = c.Send(Message{Type: TypePeers, Payload: PeersPayload{RoomID: roomID, Agents: ids}})
		s.sendState(c, ctrl)
	})
	ctrl.OnConnected(func(took time.Duration) {
		_ = c.Send(Message{Type: TypeConnected, Payload: ConnectedPayload{
			RoomID: roomID,
			TookMS: took.Milliseconds(),
		}})
	})

	if err := ctrl.Start(r.Context()); err != nil {
		status := "session start failed"
		if errors.Is(err, domain.ErrRoomNotFound) {
			status = "room not found"
		}
		_ = c.Send(Message{Type: TypeError, Payload: ErrorPayload{Error: status}})
		_ = c.Close()
		return
	}
	c.sessionID = ctrl.SelfID()

	s.sendState(c, ctrl)

	s.hub.Add(c)
	s.hub.Broadcast(roomID, Message{
		Type:    TypePeerJoined,
		Payload: PeerEventPayload{RoomID: roomID, SessionID: c.sessionID},
	})

	go s.writeLoop(c)
	s.readLoop(r.Context(), c, ctrl)

	s.hub.Remove(c)
	ctrl.Close()
	s.hub.Broadcast(roomID, Message{
		Type:    TypePeerLeft,
		Payload: PeerEventPayload{RoomID: roomID, SessionID: c.sessionID},
	})

	if err := c.Close(); err != nil {
		slog.Debug("ws close failed", "room", roomID, "session", c.sessionID, "err", err)
	}
}

func (s *Server) sendState(c *wsConn, ctrl *session.Controller) {
	_ = c.Send(Message{Type: TypeState, Payload: StatePayload{
		RoomID:     c.roomID,
		SessionID:  ctrl.SelfID(),
		State:      ctrl.State().String(),
		WaitingFor: string(ctrl.WaitingFor()),
		Admitted:   ctrl.Admitted(),
	}})
}

func (s *Server) readLoop(ctx context.Context, c *wsConn, ctrl *session.Controller) {
	defer func() { _ = c.Close() }()

	c.conn.SetReadLimit(1 << 20)
	c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case TypeChat:
			var p ChatPayload
			if decode(msg.Payload, &p) != nil {
				continue
			}
			if err := ctrl.Send(ctx, p.Content); err != nil {
				s.sendErr(c, err)
			}
		case TypeRun:
			var p RunPayload
			if decode(msg.Payload, &p) != nil {
				continue
			}
			if err := s.runTurn(ctx, c, ctrl, p); err != nil {
				s.sendErr(c, err)
			}
		default:
			// ignore
		}
	}
}

// runTurn asks the completion backend for the session's next line, based
// on the current log, then relays it as a regular message.
func (s *Server) runTurn(ctx context.Context, c *wsConn, ctrl *session.Controller, p RunPayload) error {
	if s.completions == nil {
		return errors.New("completion backend disabled")
	}

	cfg := completion.DefaultConfig()
	if len(p.Config) > 0 {
		parsed, err := completion.ParseConfig(p.Config)
		if err != nil {
			return err
		}
		cfg = parsed
	}

	history, err := s.relay.Messages(ctx, c.roomID)
	if err != nil {
		return err
	}

	reply, _, err := s.completions.Complete(ctx, cfg, ctrl.SelfID(), history)
	if err != nil {
		return err
	}

	return ctrl.Send(ctx, reply)
}

func (s *Server) sendErr(c *wsConn, err error) {
	_ = c.Send(Message{Type: TypeError, Payload: ErrorPayload{Error: err.Error()}})
}

func (s *Server) writeLoop(c *wsConn) {
	ticker := time.NewTicker(s.pingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
		case <-c.closed:
			return
		}
	}
}

func decode(payload interface{}, dst interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return json.Unmarshal(b, dst)
}

type wsConn struct {
	conn      *websocket.Conn
	roomID    string
	sessionID string
	sendMu    chan struct{}
	closed    chan struct{}
}

func newWsConn(c *websocket.Conn, roomID string) *wsConn {
	return &wsConn{
		conn:   c,
		roomID: roomID,
		sendMu: make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

func (c *wsConn) Send(msg Message) error {
	c.sendMu <- struct{}{}
	defer func() { <-c.sendMu }()
	c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))

	return c.conn.WriteJSON(msg)
}

func (c *wsConn) Close() error {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}

	return c.conn.Close()
}

func (c *wsConn) SessionID() string { return c.sessionID }
func (c *wsConn) RoomID() string    { return c.roomID }

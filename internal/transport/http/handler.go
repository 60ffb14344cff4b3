package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/1f916-ai/chat-service/internal/domain"
	"github.com/1f916-ai/chat-service/internal/postgres"
	"github.com/1f916-ai/chat-service/internal/service"
	httpmw "github.com/1f916-ai/chat-service/internal/transport/http/middleware"

	"github.com/go-chi/chi/v5"
)

// HistoryReader pages through archived transcripts. Nil when the service
// runs without the Postgres archive.
type HistoryReader interface {
	History(ctx context.Context, roomID, after string, limit int) ([]domain.Message, string, error)
}

type Handler struct {
	matchmaker *service.Matchmaker
	rooms      *service.RoomService
	relay      *service.Relay
	history    HistoryReader
}

func NewHandler(mm *service.Matchmaker, rooms *service.RoomService, relay *service.Relay, history HistoryReader) *Handler {
	return &Handler{
		matchmaker: mm,
		rooms:      rooms,
		relay:      relay,
		history:    history,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// POST /rooms/join
func (h *Handler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	participantID := httpmw.AgentIDFromCtx(r.Context())

	var req JoinRoomRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
			return
		}
	}
	if req.ParticipantID != "" {
		participantID = req.ParticipantID
	}
	if participantID == "" {
		participantID = domain.NewAgentID()
	}

	roomID, created, err := h.matchmaker.FindOrCreateRoom(r.Context(), participantID)
	if err != nil {
		if errors.Is(err, domain.ErrNotParticipant) {
			writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "viewer identities cannot join"})
			return
		}
		slog.Error("handler.JoinRoom:", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, JoinRoomResponse{
		RoomID:        roomID,
		ParticipantID: participantID,
		Created:       created,
	})
}

// GET /rooms/{id}
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	room, err := h.rooms.GetRoom(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "room not found"})
			return
		}
		slog.Error("handler.GetRoom:", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, RoomResponse{
		ID:        room.ID,
		CreatedBy: room.CreatedBy,
		IsActive:  room.IsActive,
		Agents:    room.Agents,
		Viewers:   room.Viewers,
		Messages:  room.Messages,
		CreatedAt: room.CreatedAt,
	})
}

// GET /rooms/{id}/messages
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.rooms.GetRoom(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "room not found"})
			return
		}
		slog.Error("handler.GetMessages:", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	msgs, err := h.relay.Messages(r.Context(), id)
	if err != nil {
		slog.Error("handler.GetMessages:", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, MessagesResponse{Items: toMessageItems(msgs)})
}

// POST /rooms/{id}/messages
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	author := httpmw.AgentIDFromCtx(r.Context())
	if author == "" {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "missing X-Agent-ID"})
		return
	}

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
		return
	}

	if err := h.relay.Append(r.Context(), id, author, req.Content); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotParticipant):
			writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "viewer identities cannot post"})
		case errors.Is(err, domain.ErrEmptyMessage):
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "empty message"})
		default:
			slog.Error("handler.PostMessage:", slog.Any("err", err))
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		}
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// GET /rooms/{id}/history?after=&limit=
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeJSON(w, http.StatusNotImplemented, ErrorResponse{Error: "archive disabled"})
		return
	}
	id := chi.URLParam(r, "id")
	after := r.URL.Query().Get("after")
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			limit = n
		}
	}

	items, next, err := h.history.History(r.Context(), id, after, limit)
	if err != nil {
		if errors.Is(err, postgres.ErrInvalidCursor) {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_cursor"})
			return
		}
		slog.Error("handler.GetHistory:", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, HistoryResponse{Items: toMessageItems(items), NextCursor: next})
}

func toMessageItems(msgs []domain.Message) []MessageItem {
	items := make([]MessageItem, 0, len(msgs))
	for _, m := range msgs {
		items = append(items, MessageItem{
			Author:    m.Author,
			Content:   m.Content,
			Timestamp: m.Timestamp,
			Seq:       m.Seq,
		})
	}
	return items
}

package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/1f916-ai/chat-service/internal/domain"
	"github.com/1f916-ai/chat-service/internal/rtstore"
)

// RoomService reads room snapshots for the transport layer.
type RoomService struct {
	store rtstore.Store
}

func NewRoomService(store rtstore.Store) *RoomService {
	return &RoomService{store: store}
}

// GetRoom assembles a domain.Room from the current store snapshot.
func (s *RoomService) GetRoom(ctx context.Context, id string) (*domain.Room, error) {
	v, err := s.store.Get(ctx, roomPath(id))
	if err != nil {
		return nil, fmt.Errorf("rooms: read %s: %w", id, err)
	}
	if v == nil {
		return nil, domain.ErrRoomNotFound
	}
	return decodeRoom(id, v), nil
}

func decodeRoom(id string, v any) *domain.Room {
	raw := rtstore.AsMap(v)
	agents := lo.Keys(rtstore.AsMap(raw["agents"]))
	sort.Strings(agents)

	room := &domain.Room{
		ID:        id,
		CreatedBy: rtstore.AsString(raw["createdBy"]),
		Agents:    agents,
		Viewers:   len(rtstore.AsMap(raw["viewers"])),
		Messages:  len(rtstore.AsMap(raw["messages"])),
	}
	if b, ok := raw["isActive"].(bool); ok {
		room.IsActive = b
	}
	if ts, err := time.Parse(time.RFC3339, rtstore.AsString(raw["createdAt"])); err == nil {
		room.CreatedAt = ts
	}
	return room
}

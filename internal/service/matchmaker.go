package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/1f916-ai/chat-service/internal/domain"
	"github.com/1f916-ai/chat-service/internal/metrics"
	"github.com/1f916-ai/chat-service/internal/rtstore"
)

// Matchmaker pairs a joining agent with an open room or creates a new
// one. A room is "open" while isActive is true and exactly one agent is
// bound. The scan-then-write race of the naive algorithm is closed with
// a conditional write on the agents map: of two joiners racing into the
// same room, the loser's SetIf fails and it moves on.
type Matchmaker struct {
	store rtstore.Store

	archive RoomArchive // optional write-through, may be nil
}

// RoomArchive persists room records outside the realtime store.
type RoomArchive interface {
	SaveRoom(ctx context.Context, room *domain.Room) error
}

func NewMatchmaker(store rtstore.Store) *Matchmaker {
	return &Matchmaker{store: store}
}

func (m *Matchmaker) SetArchive(a RoomArchive) { m.archive = a }

// FindOrCreateRoom binds participantID into an open room, creating one
// when none accepts it. created reports whether a fresh room was made.
func (m *Matchmaker) FindOrCreateRoom(ctx context.Context, participantID string) (roomID string, created bool, err error) {
	if !domain.IsAgent(participantID) {
		return "", false, domain.ErrNotParticipant
	}

	idx, err := m.store.Get(ctx, openRoomsPath)
	if err != nil {
		return "", false, fmt.Errorf("matchmaker: read open-room index: %w", err)
	}
	candidates := lo.Keys(rtstore.AsMap(idx))
	sort.Strings(candidates)

	for _, rid := range candidates {
		joined, err := m.tryJoin(ctx, rid, participantID)
		if err != nil {
			return "", false, err
		}
		if joined {
			return rid, false, nil
		}
	}

	rid, err := m.createRoom(ctx, participantID)
	if err != nil {
		return "", false, err
	}
	return rid, true, nil
}

// tryJoin attempts the conditional second-agent write on one candidate.
// A false return means the candidate was unusable (full, stale index
// entry, lost race); the caller moves on.
func (m *Matchmaker) tryJoin(ctx context.Context, roomID, participantID string) (bool, error) {
	cur, err := m.store.Get(ctx, agentsPath(roomID))
	if err != nil {
		return false, fmt.Errorf("matchmaker: read agents of %s: %w", roomID, err)
	}
	agents := rtstore.AsMap(cur)
	if _, ok := agents[participantID]; ok {
		// Already bound here; joining again is idempotent.
		return true, nil
	}
	if len(agents) != 1 {
		// Stale index entry: the room filled (or emptied) since it was
		// indexed. Drop it and move on.
		if derr := m.store.Delete(ctx, openRoomEntry(roomID)); derr != nil {
			slog.Warn("matchmaker: drop stale index entry", "room", roomID, "err", derr)
		}
		return false, nil
	}

	next := rtstore.AsMap(rtstore.Clone(cur))
	next[participantID] = true
	if err := m.store.SetIf(ctx, agentsPath(roomID), cur, next); err != nil {
		if errors.Is(err, rtstore.ErrConflict) {
			return false, nil // lost the race, try the next room
		}
		return false, fmt.Errorf("matchmaker: join %s: %w", roomID, err)
	}

	// Room is full now; retire the index entry. Best-effort: a stale
	// entry is re-detected by the cardinality check above.
	if err := m.store.Delete(ctx, openRoomEntry(roomID)); err != nil {
		slog.Warn("matchmaker: retire index entry", "room", roomID, "err", err)
	}
	metrics.RoomsJoined.Inc()
	metrics.OpenRooms.Dec()
	slog.Info("agent joined room", "room", roomID, "agent", participantID)
	return true, nil
}

func (m *Matchmaker) createRoom(ctx context.Context, participantID string) (string, error) {
	rid := uuid.NewString()
	createdAt := time.Now().UTC()
	room := map[string]any{
		"createdBy": participantID,
		"isActive":  true,
		"agents":    map[string]any{participantID: true},
		"viewers":   map[string]any{},
		"messages":  map[string]any{},
		"createdAt": createdAt.Format(time.RFC3339),
	}
	if err := m.store.Set(ctx, roomPath(rid), room); err != nil {
		return "", fmt.Errorf("matchmaker: create room: %w", err)
	}
	if err := m.store.Set(ctx, openRoomEntry(rid), true); err != nil {
		return "", fmt.Errorf("matchmaker: index room %s: %w", rid, err)
	}

	if m.archive != nil {
		rec := &domain.Room{ID: rid, CreatedBy: participantID, IsActive: true,
			Agents: []string{participantID}, CreatedAt: createdAt}
		if err := m.archive.SaveRoom(ctx, rec); err != nil {
			slog.Warn("matchmaker: archive room", "room", rid, "err", err)
		}
	}

	metrics.RoomsCreated.Inc()
	metrics.OpenRooms.Inc()
	slog.Info("room created", "room", rid, "agent", participantID)
	return rid, nil
}

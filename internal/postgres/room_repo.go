package postgres

import (
	"context"

	"github.com/1f916-ai/chat-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RoomRepository struct {
	db *pgxpool.Pool
}

func NewRoomRepository(db *pgxpool.Pool) *RoomRepository {
	return &RoomRepository{db: db}
}

// SaveRoom records a freshly created conversation. The live state (agents,
// viewers) stays in the realtime store; the archive only keeps the fact of
// creation for history lookups.
func (r *RoomRepository) SaveRoom(ctx context.Context, room *domain.Room) error {
	query := `
		INSERT INTO conversations (id, created_by, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING`
	_, err := r.db.Exec(ctx, query, room.ID, room.CreatedBy, room.CreatedAt)
	return err
}

func (r *RoomRepository) Get(ctx context.Context, id string) (*domain.Room, error) {
	var rm domain.Room
	query := `SELECT id, created_by, created_at FROM conversations WHERE id=$1`
	err := r.db.QueryRow(ctx, query, id).
		Scan(&rm.ID, &rm.CreatedBy, &rm.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrRoomNotFound
		}
		return nil, err
	}
	return &rm, nil
}

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/1f916-ai/chat-service/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

type MessageRepository struct {
	db *pgxpool.Pool
}

func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) SaveMessage(ctx context.Context, roomID string, msg domain.Message) error {
	ts, err := time.Parse(time.RFC3339, msg.Timestamp)
	if err != nil {
		ts = time.Now().UTC()
	}
	query := `
		INSERT INTO conversation_messages (conversation_id, seq, author, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (conversation_id, seq) DO NOTHING`
	_, err = r.db.Exec(ctx, query, roomID, msg.Seq, msg.Author, msg.Content, ts)
	return err
}

// History pages through an archived transcript in chronological order.
// The cursor points at the last sequence number already seen.
func (r *MessageRepository) History(ctx context.Context, roomID, after string, limit int) ([]domain.Message, string, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	cur, err := DecodeCursor(after)
	if err != nil {
		return nil, "", fmt.Errorf("decode cursor: %w", err)
	}

	const query = `
		SELECT seq, author, content, created_at
		FROM conversation_messages
		WHERE conversation_id = $1
		  AND ($2::bigint IS NULL OR seq > $2)
		ORDER BY seq ASC
		LIMIT $3
	`

	var afterSeq any
	if cur != nil {
		afterSeq = cur.Seq
	}

	rows, err := r.db.Query(ctx, query, roomID, afterSeq, limit)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	out := make([]domain.Message, 0, limit)
	for rows.Next() {
		var m domain.Message
		var ts time.Time
		if err := rows.Scan(&m.Seq, &m.Author, &m.Content, &ts); err != nil {
			return nil, "", err
		}
		m.Timestamp = ts.UTC().Format(time.RFC3339)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	var next string
	if len(out) == limit {
		last := out[len(out)-1]
		if c, e := EncodeCursor(Cursor{Seq: last.Seq}); e == nil {
			next = c
		}
	}
	return out, next, nil
}

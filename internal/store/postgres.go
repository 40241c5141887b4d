// Package store holds the durable side of the chat channel.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/edlive/classrelay/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS chat_messages (
	id         UUID PRIMARY KEY,
	room       TEXT NOT NULL,
	sender     TEXT NOT NULL,
	sender_id  TEXT,
	content    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS chat_messages_room_created_at
	ON chat_messages (room, created_at);
`

// Postgres persists chat messages through a pgx pool.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, url string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	log.Info().Str("module", "store.postgres").Msg("chat store ready")
	return &Postgres{pool: pool}, nil
}

func (s *Postgres) Close() {
	s.pool.Close()
}

func (s *Postgres) Insert(ctx context.Context, msg domain.ChatMessage) (domain.ChatMessage, error) {
	msg.ID = uuid.NewString()
	msg.CreatedAt = time.Now().UTC()

	var senderID any
	if msg.SenderID != "" {
		senderID = string(msg.SenderID)
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO chat_messages (id, room, sender, sender_id, content, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, string(msg.Room), msg.Sender, senderID, msg.Content, msg.CreatedAt,
	)
	if err != nil {
		return domain.ChatMessage{}, fmt.Errorf("insert chat message: %w", err)
	}
	return msg, nil
}

func (s *Postgres) RangeByRoom(ctx context.Context, room domain.RoomID, limit int) ([]domain.ChatMessage, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, room, sender, COALESCE(sender_id, ''), content, created_at
		 FROM chat_messages
		 WHERE room = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`,
		string(room), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("range chat messages: %w", err)
	}
	defer rows.Close()

	var out []domain.ChatMessage
	for rows.Next() {
		var m domain.ChatMessage
		var roomStr, senderID string
		if err := rows.Scan(&m.ID, &roomStr, &m.Sender, &senderID, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		m.Room = domain.RoomID(roomStr)
		m.SenderID = domain.UserID(senderID)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("range chat messages: %w", err)
	}

	// The query walks newest-first for the LIMIT; callers want ascending.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

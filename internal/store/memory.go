package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/edlive/classrelay/internal/domain"
)

// Memory is the store used when no database_url is configured (and in
// tests). Same contract as Postgres, nothing survives a restart.
type Memory struct {
	mu     sync.RWMutex
	byRoom map[domain.RoomID][]domain.ChatMessage
}

func NewMemory() *Memory {
	return &Memory{byRoom: make(map[domain.RoomID][]domain.ChatMessage)}
}

func (s *Memory) Insert(ctx context.Context, msg domain.ChatMessage) (domain.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg.ID = uuid.NewString()
	msg.CreatedAt = time.Now().UTC()
	if prev := s.byRoom[msg.Room]; len(prev) > 0 {
		// Keep created_at strictly increasing within a room even when
		// two inserts land on the same clock tick.
		if last := prev[len(prev)-1].CreatedAt; !msg.CreatedAt.After(last) {
			msg.CreatedAt = last.Add(time.Microsecond)
		}
	}
	s.byRoom[msg.Room] = append(s.byRoom[msg.Room], msg)
	return msg, nil
}

func (s *Memory) RangeByRoom(ctx context.Context, room domain.RoomID, limit int) ([]domain.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.byRoom[room]
	start := 0
	if limit > 0 && len(all) > limit {
		start = len(all) - limit
	}
	out := make([]domain.ChatMessage, len(all)-start)
	copy(out, all[start:])
	return out, nil
}

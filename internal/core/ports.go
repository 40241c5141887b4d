package core

import (
	"context"

	"github.com/edlive/classrelay/internal/domain"
)

// ChatStore is the durable side of the chat channel. Insert assigns the
// message id and timestamp; callers must not fill those in themselves.
type ChatStore interface {
	Insert(ctx context.Context, msg domain.ChatMessage) (domain.ChatMessage, error)
	// RangeByRoom returns up to limit of the most recent messages for
	// the room, in ascending created-at order.
	RangeByRoom(ctx context.Context, room domain.RoomID, limit int) ([]domain.ChatMessage, error)
}

// LiveNotifier fans an instructor go-live event out to the rest of the
// platform (push notifications, enrollment mailers). Failures there must
// never break the classroom itself.
type LiveNotifier interface {
	ClassLive(ctx context.Context, room domain.RoomID, instructor string) error
}

// Presence mirrors live membership into shared infrastructure so the
// request/response side of the platform can read "who is online" without
// talking to this process.
type Presence interface {
	Joined(ctx context.Context, room domain.RoomID, cid ConnID) error
	Left(ctx context.Context, room domain.RoomID, cid ConnID) error
}

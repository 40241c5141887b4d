package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/edlive/classrelay/internal/core"
	"github.com/edlive/classrelay/internal/domain"
)

var (
	ErrEmptyMessage = errors.New("empty chat message")
	ErrPersistence  = errors.New("chat message could not be stored")
)

// ChatService is the room-scoped messaging channel. A message is durable
// before anyone sees it: Send writes to the store, and only the stored
// form with its assigned id is fanned out. The fan-out reaches the
// sender too, so clients never locally echo.
type ChatService struct {
	store core.ChatStore
	rooms core.RoomManager
	limit int

	mu      sync.Mutex
	perRoom map[domain.RoomID]*sync.Mutex
}

func NewChatService(store core.ChatStore, rooms core.RoomManager, historyLimit int) *ChatService {
	if historyLimit <= 0 {
		historyLimit = 50
	}
	return &ChatService{
		store:   store,
		rooms:   rooms,
		limit:   historyLimit,
		perRoom: make(map[domain.RoomID]*sync.Mutex),
	}
}

// roomLock linearizes persist+broadcast per room, which is what makes
// delivery order match the durable order. Different rooms never contend.
func (c *ChatService) roomLock(room domain.RoomID) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.perRoom[room]
	if !ok {
		m = &sync.Mutex{}
		c.perRoom[room] = m
	}
	return m
}

// Send persists the message and broadcasts the stored form to every
// current member of the room, sender included. On a store failure nothing
// is broadcast and the error goes back to the sender alone.
func (c *ChatService) Send(ctx context.Context, room domain.RoomID, sender string, senderID domain.UserID, content string) (domain.ChatMessage, core.PublishResult, error) {
	if content == "" {
		return domain.ChatMessage{}, core.PublishResult{}, ErrEmptyMessage
	}
	if sender == "" {
		sender = "guest"
	}

	lock := c.roomLock(room)
	lock.Lock()
	defer lock.Unlock()

	msg, err := c.store.Insert(ctx, domain.ChatMessage{
		Room:     room,
		Sender:   sender,
		SenderID: senderID,
		Content:  content,
	})
	if err != nil {
		log.Error().Str("module", "app.chat").Str("room", string(room)).Err(err).Msg("insert failed")
		return domain.ChatMessage{}, core.PublishResult{}, fmt.Errorf("%w: %s", ErrPersistence, err)
	}

	payload := struct {
		Type string `json:"type"`
		domain.ChatMessage
	}{Type: "receive_message", ChatMessage: msg}

	data, err := json.Marshal(payload)
	if err != nil {
		// The message is stored; a marshal failure only loses the live
		// fan-out, members will still see it in history.
		log.Error().Str("module", "app.chat").Err(err).Msg("marshal receive_message")
		return msg, core.PublishResult{}, nil
	}

	res := core.PublishResult{}
	if r, ok := c.rooms.Get(room); ok {
		res = r.Publish(data)
	}
	log.Debug().Str("module", "app.chat").Str("room", string(room)).Str("id", msg.ID).Int("sent_to", res.SentTo).Msg("message broadcast")
	return msg, res, nil
}

// History loads the most recent window of the room's log, ascending by
// time, for private delivery to a joining connection.
func (c *ChatService) History(ctx context.Context, room domain.RoomID) ([]domain.ChatMessage, error) {
	return c.store.RangeByRoom(ctx, room, c.limit)
}

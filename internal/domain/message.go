package domain

import "time"

// ChatMessage is the durable record of one room message. It is immutable
// once stored; the ID is only assigned by the store, never by a client.
type ChatMessage struct {
	ID        string    `json:"id"`
	Room      RoomID    `json:"room"`
	Sender    string    `json:"user"`
	SenderID  UserID    `json:"senderId,omitempty"`
	Content   string    `json:"text"`
	CreatedAt time.Time `json:"time"`
}

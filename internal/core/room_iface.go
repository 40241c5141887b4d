package core

import (
	"github.com/edlive/classrelay/internal/domain"
)

// PublishResult reports delivery stats/backpressure to the caller.
type PublishResult struct {
	SentTo  int
	Dropped []ConnID
}

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	ConnID   ConnID        `json:"connectionId"`
	UserID   domain.UserID `json:"userId,omitempty"`
	Username string        `json:"username"`
}

// RoomService is the core-facing API of a room.
// It owns the membership set but never touches transport resources.
// All mutations serialize on the room's own lock, so two rooms never
// contend with each other.
type RoomService interface {
	ID() domain.RoomID
	MemberCount() int
	MembersSnapshot() []MemberDTO

	// AddMember is idempotent: adding a connection twice leaves the
	// set unchanged.
	AddMember(cid ConnID, ms MemberSession)
	RemoveMember(cid ConnID)
	Contains(cid ConnID) bool

	// PeerIDs lists every member except the given connection, sorted.
	PeerIDs(except ConnID) []ConnID

	// Send delivers to one member only.
	Send(to ConnID, data Frame) error
	// Broadcast delivers to every member except from.
	Broadcast(from ConnID, data Frame) PublishResult
	// Publish delivers to every member, sender included.
	Publish(data Frame) PublishResult
}

type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"memberCount"`
}

type RoomManager interface {
	GetOrCreate(id domain.RoomID) RoomService
	Get(id domain.RoomID) (RoomService, bool)
	List() []RoomInfo
}

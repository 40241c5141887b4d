package app

import "github.com/edlive/classrelay/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
)

// Policy decides what happens to a member whose send buffer overflowed
// during a room fan-out.
type Policy interface {
	OnBackpressure(room core.RoomService, cid core.ConnID) BackpressureAction
}

// SimplePolicy kicks slow consumers; a member that cannot drain chat and
// membership events will not survive media negotiation either.
type SimplePolicy struct{}

func (SimplePolicy) OnBackpressure(room core.RoomService, cid core.ConnID) BackpressureAction {
	return KickMember
}

package core

import (
	"errors"
	"sort"
	"sync"

	"github.com/edlive/classrelay/internal/domain"
	"github.com/rs/zerolog/log"
)

var ErrNotMember = errors.New("connection is not a member of this room")

// roomImpl is a threadsafe in-memory room.
// It never closes adapter-owned resources.
type roomImpl struct {
	id    domain.RoomID
	mu    sync.RWMutex
	byCID map[ConnID]MemberSession
}

func NewRoomService(id domain.RoomID) RoomService {
	return &roomImpl{
		id:    id,
		byCID: make(map[ConnID]MemberSession),
	}
}

func (r *roomImpl) ID() domain.RoomID { return r.id }

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byCID)
}

func (r *roomImpl) Contains(cid ConnID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byCID[cid]
	return ok
}

func (r *roomImpl) AddMember(cid ConnID, ms MemberSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byCID[cid]; ok {
		return
	}
	r.byCID[cid] = ms
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("cid", string(cid)).Msg("member added")
}

func (r *roomImpl) RemoveMember(cid ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byCID[cid]; !ok {
		return
	}
	delete(r.byCID, cid)
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("cid", string(cid)).Msg("member removed")
}

func (r *roomImpl) PeerIDs(except ConnID) []ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ConnID, 0, len(r.byCID))
	for cid := range r.byCID {
		if cid == except {
			continue
		}
		out = append(out, cid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *roomImpl) Send(to ConnID, data Frame) error {
	r.mu.RLock()
	ms, ok := r.byCID[to]
	r.mu.RUnlock()
	if !ok {
		return ErrNotMember
	}
	return ms.Signal().TrySend(data)
}

func (r *roomImpl) Broadcast(from ConnID, data Frame) PublishResult {
	return r.fanOut(data, func(cid ConnID) bool { return cid != from })
}

func (r *roomImpl) Publish(data Frame) PublishResult {
	return r.fanOut(data, func(ConnID) bool { return true })
}

func (r *roomImpl) fanOut(data Frame, want func(ConnID) bool) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := PublishResult{}
	for cid, ms := range r.byCID {
		if !want(cid) {
			continue
		}
		if err := ms.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, cid)
			continue
		}
		res.SentTo++
	}
	log.Debug().Str("module", "core.room").Str("room", string(r.id)).Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("fan-out result")
	return res
}

func (r *roomImpl) MembersSnapshot() []MemberDTO {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MemberDTO, 0, len(r.byCID))
	for cid, ms := range r.byCID {
		u := ms.Meta().User
		out = append(out, MemberDTO{ConnID: cid, UserID: u.ID, Username: u.Username})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnID < out[j].ConnID })
	return out
}

package core

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edlive/classrelay/internal/domain"
)

type sinkConn struct {
	mu     sync.Mutex
	frames []Frame
	fail   bool
}

func (s *sinkConn) TrySend(f Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("backpressure")
	}
	s.frames = append(s.frames, f)
	return nil
}

func (s *sinkConn) Close() {}

func (s *sinkConn) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func member(name string) (MemberSession, *sinkConn) {
	conn := &sinkConn{}
	user := &domain.User{Username: name}
	return NewMemberSession(domain.NewMember(user), conn), conn
}

func TestRoomAddMemberIdempotent(t *testing.T) {
	room := NewRoomService("course-42")
	ms, _ := member("alice")

	room.AddMember("a", ms)
	room.AddMember("a", ms)

	assert.Equal(t, 1, room.MemberCount())
	assert.True(t, room.Contains("a"))
}

func TestRoomPeerIDsExcludesCallerSorted(t *testing.T) {
	room := NewRoomService("course-42")
	for _, cid := range []ConnID{"c", "a", "b"} {
		ms, _ := member(string(cid))
		room.AddMember(cid, ms)
	}

	assert.Equal(t, []ConnID{"a", "c"}, room.PeerIDs("b"))
	assert.Equal(t, []ConnID{"a", "b", "c"}, room.PeerIDs("zz"))
}

func TestRoomSend(t *testing.T) {
	room := NewRoomService("course-42")
	ms, conn := member("alice")
	room.AddMember("a", ms)

	require.NoError(t, room.Send("a", Frame("hi")))
	assert.Equal(t, 1, conn.count())

	assert.ErrorIs(t, room.Send("ghost", Frame("hi")), ErrNotMember)
}

func TestRoomBroadcastExcludesSenderPublishDoesNot(t *testing.T) {
	room := NewRoomService("course-42")
	msA, connA := member("alice")
	msB, connB := member("bob")
	room.AddMember("a", msA)
	room.AddMember("b", msB)

	res := room.Broadcast("a", Frame("x"))
	assert.Equal(t, 1, res.SentTo)
	assert.Equal(t, 0, connA.count())
	assert.Equal(t, 1, connB.count())

	res = room.Publish(Frame("y"))
	assert.Equal(t, 2, res.SentTo)
	assert.Equal(t, 1, connA.count())
	assert.Equal(t, 2, connB.count())
}

func TestRoomFanOutReportsDropped(t *testing.T) {
	room := NewRoomService("course-42")
	msA, _ := member("alice")
	msB, connB := member("bob")
	connB.fail = true
	room.AddMember("a", msA)
	room.AddMember("b", msB)

	res := room.Publish(Frame("x"))
	assert.Equal(t, 1, res.SentTo)
	assert.Equal(t, []ConnID{"b"}, res.Dropped)
}

func TestRoomRemoveMember(t *testing.T) {
	room := NewRoomService("course-42")
	ms, _ := member("alice")
	room.AddMember("a", ms)

	room.RemoveMember("a")
	room.RemoveMember("a") // second removal is a no-op

	assert.Equal(t, 0, room.MemberCount())
	assert.False(t, room.Contains("a"))
}

func TestRoomConcurrentJoinLeave(t *testing.T) {
	room := NewRoomService("course-42")
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			cid := ConnID(string(rune('a' + n%8)))
			ms, _ := member(string(cid))
			room.AddMember(cid, ms)
			room.PeerIDs(cid)
			if n%2 == 0 {
				room.RemoveMember(cid)
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, room.MemberCount(), 8)
}

package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edlive/classrelay/internal/core"
	"github.com/edlive/classrelay/internal/domain"
)

func bindOne(r *Registry, cid core.ConnID) {
	user := &domain.User{Username: "alice"}
	sess := core.NewMemberSession(domain.NewMember(user), &fakeConn{})
	r.Bind(cid, user, sess, func() {})
}

func TestRegistryTakeIsAtomic(t *testing.T) {
	r := NewRegistry()
	bindOne(r, "a")
	require.True(t, r.UpdateRoom("a", "course-42"))

	room, ok := r.Take("a")
	require.True(t, ok)
	assert.Equal(t, domain.RoomID("course-42"), room)

	// Second take finds nothing, which is what makes a double close of
	// the socket harmless upstream.
	_, ok = r.Take("a")
	assert.False(t, ok)
	_, ok = r.Session("a")
	assert.False(t, ok)
}

func TestRegistryRoomLifecycle(t *testing.T) {
	r := NewRegistry()
	bindOne(r, "a")

	_, ok := r.RoomOf("a")
	assert.False(t, ok)

	require.True(t, r.UpdateRoom("a", "course-42"))
	room, ok := r.RoomOf("a")
	require.True(t, ok)
	assert.Equal(t, domain.RoomID("course-42"), room)

	r.ClearRoom("a")
	_, ok = r.RoomOf("a")
	assert.False(t, ok)

	assert.False(t, r.UpdateRoom("ghost", "course-42"))
}

func TestRegistryCancel(t *testing.T) {
	r := NewRegistry()
	fired := false
	user := &domain.User{Username: "alice"}
	sess := core.NewMemberSession(domain.NewMember(user), &fakeConn{})
	r.Bind("a", user, sess, func() { fired = true })

	assert.True(t, r.Cancel("a"))
	assert.True(t, fired)
	assert.False(t, r.Cancel("ghost"))
}

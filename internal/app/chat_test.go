package app

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatSendBroadcastsStoredForm(t *testing.T) {
	h := newHarness()
	connA := h.connect("a", "alice")
	connB := h.connect("b", "bob")
	h.join(t, "a", "course-42")
	h.join(t, "b", "course-42")

	msg, err := h.orch.SendChat(context.Background(), "a", "course-42", "alice", "hello")
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.False(t, msg.CreatedAt.IsZero())

	// Sender and peer both receive the broadcast, id included, so no
	// client ever has to locally echo an unstored message.
	for _, conn := range []*fakeConn{connA, connB} {
		got := conn.eventsOfType(t, "receive_message")
		require.Len(t, got, 1)
		assert.Equal(t, msg.ID, got[0]["id"])
		assert.Equal(t, "alice", got[0]["user"])
		assert.Equal(t, "hello", got[0]["text"])
		assert.Equal(t, "course-42", got[0]["room"])
	}
}

func TestChatStoreFailureSuppressesBroadcast(t *testing.T) {
	h := newHarness()
	h.orch.Chat = NewChatService(failStore{}, h.orch.Rooms, 50)
	h.connect("a", "alice")
	connB := h.connect("b", "bob")
	h.join(t, "a", "course-42")
	h.join(t, "b", "course-42")

	_, err := h.orch.SendChat(context.Background(), "a", "course-42", "", "hello")
	require.ErrorIs(t, err, ErrPersistence)
	assert.Empty(t, connB.eventsOfType(t, "receive_message"))
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	h := newHarness()
	h.connect("a", "alice")
	h.join(t, "a", "course-42")

	_, err := h.orch.SendChat(context.Background(), "a", "course-42", "", "")
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestChatDeliveryMatchesDurableOrder(t *testing.T) {
	h := newHarness()
	h.connect("a", "alice")
	connB := h.connect("b", "bob")
	h.join(t, "a", "course-42")
	h.join(t, "b", "course-42")

	for i := 0; i < 5; i++ {
		_, err := h.orch.SendChat(context.Background(), "a", "course-42", "", fmt.Sprintf("msg %d", i))
		require.NoError(t, err)
	}

	live := connB.eventsOfType(t, "receive_message")
	require.Len(t, live, 5)

	stored, err := h.orch.History(context.Background(), "course-42")
	require.NoError(t, err)
	require.Len(t, stored, 5)
	for i := range stored {
		assert.Equal(t, stored[i].ID, live[i]["id"])
		assert.Equal(t, fmt.Sprintf("msg %d", i), stored[i].Content)
	}
}

func TestChatHistoryWindow(t *testing.T) {
	h := newHarness()
	h.connect("a", "alice")
	h.join(t, "a", "course-42")

	for i := 0; i < 60; i++ {
		_, err := h.orch.SendChat(context.Background(), "a", "course-42", "", fmt.Sprintf("msg %d", i))
		require.NoError(t, err)
	}

	got, err := h.orch.History(context.Background(), "course-42")
	require.NoError(t, err)
	require.Len(t, got, 50)
	// Oldest ten fall off; the rest come back ascending.
	assert.Equal(t, "msg 10", got[0].Content)
	assert.Equal(t, "msg 59", got[49].Content)
	for i := 1; i < len(got); i++ {
		assert.True(t, got[i].CreatedAt.After(got[i-1].CreatedAt))
	}
}

func TestChatHistoryEmptyRoom(t *testing.T) {
	h := newHarness()
	got, err := h.orch.History(context.Background(), "never-used")
	require.NoError(t, err)
	assert.Empty(t, got)
}

package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edlive/classrelay/internal/core"
	"github.com/edlive/classrelay/internal/domain"
	"github.com/edlive/classrelay/internal/store"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	fail   bool
}

func (f *fakeConn) TrySend(fr core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("backpressure")
	}
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeConn) Close() {}

// events decodes every received frame into a generic map, in order.
func (f *fakeConn) events(t *testing.T) []map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, 0, len(f.frames))
	for _, fr := range f.frames {
		var m map[string]any
		require.NoError(t, json.Unmarshal(fr, &m))
		out = append(out, m)
	}
	return out
}

// eventsOfType filters by the protocol "type" discriminator.
func (f *fakeConn) eventsOfType(t *testing.T, typ string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, m := range f.events(t) {
		if m["type"] == typ {
			out = append(out, m)
		}
	}
	return out
}

type failStore struct{}

func (failStore) Insert(ctx context.Context, msg domain.ChatMessage) (domain.ChatMessage, error) {
	return domain.ChatMessage{}, errors.New("disk on fire")
}

func (failStore) RangeByRoom(ctx context.Context, room domain.RoomID, limit int) ([]domain.ChatMessage, error) {
	return nil, errors.New("disk on fire")
}

type harness struct {
	orch     *Orchestrator
	conns    map[core.ConnID]*fakeConn
	canceled map[core.ConnID]bool
	mu       sync.Mutex
}

func newHarness() *harness {
	registry := NewRegistry()
	rooms := NewRoomManager()
	relay := NewRelay(registry, rooms)
	chat := NewChatService(store.NewMemory(), rooms, 50)

	return &harness{
		orch: &Orchestrator{
			Registry: registry,
			Rooms:    rooms,
			Relay:    relay,
			Chat:     chat,
			Policy:   SimplePolicy{},
		},
		conns:    make(map[core.ConnID]*fakeConn),
		canceled: make(map[core.ConnID]bool),
	}
}

func (h *harness) connect(cid core.ConnID, name string) *fakeConn {
	conn := &fakeConn{}
	user := &domain.User{Username: name}
	sess := core.NewMemberSession(domain.NewMember(user), conn)
	h.orch.Connect(cid, user, sess, func() {
		h.mu.Lock()
		h.canceled[cid] = true
		h.mu.Unlock()
	})
	h.conns[cid] = conn
	return conn
}

func (h *harness) wasCanceled(cid core.ConnID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.canceled[cid]
}

func (h *harness) join(t *testing.T, cid core.ConnID, room domain.RoomID) []core.ConnID {
	t.Helper()
	peers, err := h.orch.Join(context.Background(), cid, room)
	require.NoError(t, err)
	return peers
}

func offerEnvelope(caller, target core.ConnID) (*core.SignalEnvelope, core.Frame) {
	return envelope(core.SignalOffer, caller, target)
}

func envelope(kind core.SignalKind, caller, target core.ConnID) (*core.SignalEnvelope, core.Frame) {
	env := &core.SignalEnvelope{
		Type:   kind,
		Caller: caller,
		Target: target,
	}
	payload := json.RawMessage(`{"opaque":"payload"}`)
	if kind == core.SignalCandidate {
		env.Candidate = payload
	} else {
		env.SDP = payload
	}
	raw, _ := json.Marshal(env)
	return env, raw
}

package app

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/edlive/classrelay/internal/core"
	"github.com/edlive/classrelay/internal/domain"
)

// Orchestrator wires the registry, rooms, relay and chat together and is
// the only component allowed to move a connection between them. It is
// constructed once in main and handed to every consumer explicitly.
type Orchestrator struct {
	Registry *Registry
	Rooms    core.RoomManager
	Relay    *Relay
	Chat     *ChatService
	Policy   Policy
	Presence core.Presence     // optional
	Notifier core.LiveNotifier // optional
}

// Connect registers a freshly upgraded connection. No room membership or
// negotiation state exists yet.
func (o *Orchestrator) Connect(cid core.ConnID, user *domain.User, sess core.MemberSession, cancel context.CancelFunc) {
	o.Registry.Bind(cid, user, sess, cancel)
}

// Join puts the connection into the room, announces the arrival to the
// existing members and returns the member list excluding the caller. A
// connection lives in at most one room, so a join while inside another
// room leaves that room first, with the same departure events a
// disconnect would have produced there. Joining the current room again
// is a no-op apart from the return value, announcement included.
func (o *Orchestrator) Join(ctx context.Context, cid core.ConnID, roomID domain.RoomID) ([]core.ConnID, error) {
	sess, ok := o.Registry.Session(cid)
	if !ok {
		return nil, ErrUnknownConnection
	}

	if current, ok := o.Registry.RoomOf(cid); ok && current != roomID {
		o.departRoom(ctx, cid, current)
	}

	room := o.Rooms.GetOrCreate(roomID)
	rejoin := room.Contains(cid)
	room.AddMember(cid, sess)
	o.Registry.UpdateRoom(cid, roomID)

	if !rejoin {
		res := room.Broadcast(cid, event(struct {
			Type   string      `json:"type"`
			ConnID core.ConnID `json:"connectionId"`
		}{Type: "user_joined", ConnID: cid}))
		o.applyBackpressure(room, res)
	}

	if o.Presence != nil {
		if err := o.Presence.Joined(ctx, roomID, cid); err != nil {
			log.Warn().Str("module", "app.orchestrator").Str("room", string(roomID)).Err(err).Msg("presence join mirror failed")
		}
	}

	log.Info().Str("module", "app.orchestrator").Str("cid", string(cid)).Str("room", string(roomID)).Msg("joined room")
	return room.PeerIDs(cid), nil
}

// Peers returns the negotiation targets for the caller's current room.
func (o *Orchestrator) Peers(cid core.ConnID) ([]core.ConnID, error) {
	return o.Relay.Peers(cid)
}

// Signal routes one negotiation envelope.
func (o *Orchestrator) Signal(env *core.SignalEnvelope, raw core.Frame) error {
	return o.Relay.Forward(env, raw)
}

// SendChat persists and fans out a chat message. The sender label from
// an authenticated identity wins over whatever the client typed into the
// payload; a guest who left the label empty is attributed by the display
// name it connected with.
func (o *Orchestrator) SendChat(ctx context.Context, cid core.ConnID, roomID domain.RoomID, label string, content string) (domain.ChatMessage, error) {
	var senderID domain.UserID
	if user, ok := o.Registry.User(cid); ok {
		if user.ID != "" {
			senderID = user.ID
			label = user.Username
		} else if label == "" {
			label = user.Username
		}
	}

	msg, res, err := o.Chat.Send(ctx, roomID, label, senderID, content)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	if room, ok := o.Rooms.Get(roomID); ok {
		o.applyBackpressure(room, res)
	}
	return msg, nil
}

// History is the private replay a connection gets right after a join.
func (o *Orchestrator) History(ctx context.Context, roomID domain.RoomID) ([]domain.ChatMessage, error) {
	return o.Chat.History(ctx, roomID)
}

// Disconnect tears down everything the connection owned: membership,
// peer links, presence, registry entry. It is idempotent; only the first
// call for a given id does any work.
func (o *Orchestrator) Disconnect(ctx context.Context, cid core.ConnID) bool {
	roomID, wasBound := o.Registry.Take(cid)
	if !wasBound {
		return false
	}
	if roomID != "" {
		o.departRoom(ctx, cid, roomID)
	}
	log.Info().Str("module", "app.orchestrator").Str("cid", string(cid)).Msg("disconnected")
	return true
}

// departRoom removes the member, closes its peer links and emits
// user_left / peer_left to the survivors.
func (o *Orchestrator) departRoom(ctx context.Context, cid core.ConnID, roomID domain.RoomID) {
	room, ok := o.Rooms.Get(roomID)
	if ok {
		room.RemoveMember(cid)
	}
	o.Registry.ClearRoom(cid)

	if o.Presence != nil {
		if err := o.Presence.Left(ctx, roomID, cid); err != nil {
			log.Warn().Str("module", "app.orchestrator").Str("room", string(roomID)).Err(err).Msg("presence leave mirror failed")
		}
	}

	if ok {
		res := room.Publish(event(struct {
			Type   string      `json:"type"`
			ConnID core.ConnID `json:"connectionId"`
		}{Type: "user_left", ConnID: cid}))
		o.applyBackpressure(room, res)
	}

	for _, other := range o.Relay.CloseFor(cid) {
		sess, ok := o.Registry.Session(other)
		if !ok {
			continue
		}
		frame := event(struct {
			Type   string      `json:"type"`
			ConnID core.ConnID `json:"connectionId"`
		}{Type: "peer_left", ConnID: cid})
		if err := sess.Signal().TrySend(frame); err != nil {
			log.Warn().Str("module", "app.orchestrator").Str("cid", string(other)).Err(err).Msg("peer_left not delivered")
		}
	}
}

// GoLive broadcasts the class start to the room and hands the event to
// the platform notifier so enrolled students who are not connected yet
// get their join invitation.
func (o *Orchestrator) GoLive(ctx context.Context, roomID domain.RoomID, instructor string) error {
	if room, ok := o.Rooms.Get(roomID); ok {
		res := room.Publish(event(struct {
			Type       string        `json:"type"`
			Room       domain.RoomID `json:"room"`
			Instructor string        `json:"instructor"`
		}{Type: "class_live", Room: roomID, Instructor: instructor}))
		o.applyBackpressure(room, res)
	}
	if o.Notifier == nil {
		return nil
	}
	return o.Notifier.ClassLive(ctx, roomID, instructor)
}

func (o *Orchestrator) applyBackpressure(room core.RoomService, res core.PublishResult) {
	if o.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		if o.Policy.OnBackpressure(room, slow) == KickMember {
			o.Registry.Cancel(slow)
		}
	}
}

func event(v any) core.Frame {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Str("module", "app.orchestrator").Err(err).Msg("event marshal")
		return nil
	}
	return data
}

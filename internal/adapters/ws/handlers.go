package ws

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/edlive/classrelay/internal/app"
	"github.com/edlive/classrelay/internal/core"
	"github.com/edlive/classrelay/internal/domain"
)

func (ctl *Controller) handle(ctx context.Context, cid core.ConnID, c *Conn, data []byte) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		log.Warn().Str("module", "ws").Str("cid", string(cid)).Err(err).Msg("bad json")
		ctl.sendError(c, "bad_payload")
		return
	}

	switch head.Type {
	case "join_room":
		ctl.handleJoinRoom(ctx, cid, c, data)
	case "join_web_rtc":
		ctl.handleJoinWebRTC(cid, c, data)
	case "offer", "answer", "ice_candidate":
		ctl.handleSignal(cid, c, data)
	case "send_message":
		ctl.handleSendMessage(ctx, cid, c, data)
	default:
		log.Warn().Str("module", "ws").Str("type", head.Type).Msg("unknown message type")
		ctl.sendError(c, "unknown_type")
	}
}

// handleJoinRoom adds the connection to the room, privately replays the
// recent history to the joiner and tells everyone else who arrived.
func (ctl *Controller) handleJoinRoom(ctx context.Context, cid core.ConnID, c *Conn, data []byte) {
	var p struct {
		Type string `json:"type"`
		Room string `json:"room"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.Room == "" {
		ctl.sendError(c, "bad_payload")
		return
	}
	roomID := domain.RoomID(p.Room)

	if _, err := ctl.Orch.Join(ctx, cid, roomID); err != nil {
		log.Error().Str("module", "ws").Str("cid", string(cid)).Str("room", p.Room).Err(err).Msg("join failed")
		ctl.sendError(c, "join_failed")
		return
	}

	history, err := ctl.Orch.History(ctx, roomID)
	if err != nil {
		// The join itself stands; the client just starts without context.
		log.Error().Str("module", "ws").Str("room", p.Room).Err(err).Msg("history load failed")
		history = nil
	}
	if history == nil {
		history = []domain.ChatMessage{}
	}
	ctl.sendJSON(c, struct {
		Type     string               `json:"type"`
		Room     domain.RoomID        `json:"room"`
		Messages []domain.ChatMessage `json:"messages"`
	}{Type: "load_history", Room: roomID, Messages: history})
}

// handleJoinWebRTC answers with the mesh targets: every other member of
// the room. Initiation direction is the client's call, decided by the
// id comparison both sides can run.
func (ctl *Controller) handleJoinWebRTC(cid core.ConnID, c *Conn, data []byte) {
	var p struct {
		Type string `json:"type"`
		Room string `json:"room"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.Room == "" {
		ctl.sendError(c, "bad_payload")
		return
	}
	roomID := domain.RoomID(p.Room)

	room, ok := ctl.Orch.Rooms.Get(roomID)
	if !ok || !room.Contains(cid) {
		ctl.sendError(c, "not_in_room")
		return
	}
	peers := room.PeerIDs(cid)
	if peers == nil {
		peers = []core.ConnID{}
	}
	ctl.sendJSON(c, struct {
		Type  string        `json:"type"`
		Room  domain.RoomID `json:"room"`
		Users []core.ConnID `json:"users"`
	}{Type: "all_users", Room: roomID, Users: peers})
}

// handleSignal relays one negotiation envelope. Malformed envelopes are
// rejected here, never forwarded; a vanished target is reported back to
// the sender so it can abandon the attempt instead of waiting forever.
func (ctl *Controller) handleSignal(cid core.ConnID, c *Conn, data []byte) {
	var env core.SignalEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		ctl.sendError(c, "bad_payload")
		return
	}
	if env.Caller != cid {
		// Covers both a spoofed and a missing caller field.
		log.Warn().Str("module", "ws").Str("cid", string(cid)).Str("caller", string(env.Caller)).Msg("caller mismatch")
		ctl.sendError(c, "bad_caller")
		return
	}

	err := ctl.Orch.Signal(&env, data)
	switch {
	case err == nil:
	case errors.Is(err, app.ErrTargetUnreachable):
		ctl.sendJSON(c, struct {
			Type   string      `json:"type"`
			Target core.ConnID `json:"target"`
			Reason string      `json:"reason"`
		}{Type: "signal_failed", Target: env.Target, Reason: "target_unreachable"})
	case errors.Is(err, app.ErrNotInitiator), errors.Is(err, app.ErrDuplicateOffer):
		// Glare: the losing side of the tie-break tried to offer. Drop
		// quietly, the winning side's offer is already on its way.
		log.Debug().Str("module", "ws").Str("cid", string(cid)).Str("target", string(env.Target)).Err(err).Msg("offer suppressed")
	default:
		log.Warn().Str("module", "ws").Str("cid", string(cid)).Err(err).Msg("signal rejected")
		ctl.sendError(c, "bad_signal")
	}
}

func (ctl *Controller) handleSendMessage(ctx context.Context, cid core.ConnID, c *Conn, data []byte) {
	var p struct {
		Type string `json:"type"`
		Room string `json:"room"`
		User string `json:"user"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.Room == "" {
		ctl.sendError(c, "bad_payload")
		return
	}

	if _, err := ctl.Orch.SendChat(ctx, cid, domain.RoomID(p.Room), p.User, p.Text); err != nil {
		reason := "invalid_message"
		if errors.Is(err, app.ErrPersistence) {
			reason = "persistence_failure"
		}
		ctl.sendJSON(c, struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		}{Type: "message_failed", Reason: reason})
	}
	// On success the broadcast from the chat channel reaches this
	// connection too; no direct reply here.
}

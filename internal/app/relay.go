package app

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/edlive/classrelay/internal/core"
)

var (
	ErrUnknownConnection = errors.New("connection is not registered")
	ErrNotInRoom         = errors.New("connection is not in a room")
	ErrNotInitiator      = errors.New("offer from non-initiator side")
	ErrDuplicateOffer    = errors.New("pair already has a negotiation in flight")
	ErrUnexpectedAnswer  = errors.New("answer without a pending offer")
	ErrNoLink            = errors.New("no negotiation exists for this pair")
	ErrTargetUnreachable = errors.New("target connection is gone")
)

// LinkState tracks one pair's negotiation as far as the server can see it.
type LinkState int

const (
	LinkNew LinkState = iota
	LinkOfferSent
	LinkAnswered
	LinkEstablished
	LinkClosed
)

func (s LinkState) String() string {
	switch s {
	case LinkNew:
		return "new"
	case LinkOfferSent:
		return "offer_sent"
	case LinkAnswered:
		return "answered"
	case LinkEstablished:
		return "established"
	case LinkClosed:
		return "closed"
	}
	return "unknown"
}

// pairKey is order-independent so A→B and B→A address the same link.
type pairKey struct {
	lo, hi core.ConnID
}

func keyFor(a, b core.ConnID) pairKey {
	if a < b {
		return pairKey{lo: a, hi: b}
	}
	return pairKey{lo: b, hi: a}
}

// Initiator resolves glare: of any two connections, the one with the
// lexicographically greater id sends the offer. Both sides can compute
// this locally, so two clients joining at the same instant never race
// each other into duplicate negotiations.
func Initiator(a, b core.ConnID) core.ConnID {
	if a > b {
		return a
	}
	return b
}

type peerLink struct {
	state LinkState
	// candidate flow per direction after the answer; both directions
	// seen means the pair is exchanging connectivity checks and the
	// link counts as established from where the server stands.
	candFromLo bool
	candFromHi bool
}

// Relay routes opaque negotiation envelopes between exactly two members
// of the same room and keeps the per-pair link table. It never inspects
// SDP or candidate payloads.
type Relay struct {
	registry *Registry
	rooms    core.RoomManager

	mu    sync.Mutex
	links map[pairKey]*peerLink
}

func NewRelay(registry *Registry, rooms core.RoomManager) *Relay {
	return &Relay{
		registry: registry,
		rooms:    rooms,
		links:    make(map[pairKey]*peerLink),
	}
}

// Peers lists the other members of the caller's room, the set a freshly
// joined client negotiates toward.
func (rl *Relay) Peers(cid core.ConnID) ([]core.ConnID, error) {
	roomID, ok := rl.registry.RoomOf(cid)
	if !ok {
		return nil, ErrNotInRoom
	}
	room, ok := rl.rooms.Get(roomID)
	if !ok {
		return nil, ErrNotInRoom
	}
	return room.PeerIDs(cid), nil
}

// Forward validates the envelope, advances the pair's link state and
// hands the raw frame to the target verbatim. The raw frame is forwarded
// rather than a re-marshal so clients can carry extra fields end to end.
//
// Delivery order per ordered pair is FIFO: each envelope is forwarded
// synchronously from the caller's single reader goroutine into the
// target's single writer channel, so nothing here may queue or reorder.
func (rl *Relay) Forward(env *core.SignalEnvelope, raw core.Frame) error {
	if err := env.Validate(); err != nil {
		return err
	}

	roomID, ok := rl.registry.RoomOf(env.Caller)
	if !ok {
		return ErrNotInRoom
	}
	room, ok := rl.rooms.Get(roomID)
	if !ok {
		return ErrNotInRoom
	}
	if !room.Contains(env.Target) {
		return ErrTargetUnreachable
	}

	undo, err := rl.advance(env)
	if err != nil {
		return err
	}

	if err := room.Send(env.Target, raw); err != nil {
		// Undelivered envelopes must not leave link state behind: a
		// stuck OFFER_SENT would turn every retry offer into glare and
		// strand the pair. Roll back so the next attempt starts clean.
		undo()
		log.Warn().Str("module", "app.relay").
			Str("caller", string(env.Caller)).
			Str("target", string(env.Target)).
			Err(err).Msg("envelope dropped")
		return ErrTargetUnreachable
	}
	return nil
}

// advance applies the envelope's transition and returns the inverse, so
// Forward can revert when delivery fails.
func (rl *Relay) advance(env *core.SignalEnvelope) (func(), error) {
	key := keyFor(env.Caller, env.Target)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	link := rl.links[key]
	noop := func() {}

	switch env.Type {
	case core.SignalOffer:
		if Initiator(env.Caller, env.Target) != env.Caller {
			return nil, ErrNotInitiator
		}
		if link != nil && link.state != LinkClosed {
			return nil, ErrDuplicateOffer
		}
		prev := link
		rl.links[key] = &peerLink{state: LinkOfferSent}
		return func() {
			rl.mu.Lock()
			defer rl.mu.Unlock()
			if prev == nil {
				delete(rl.links, key)
			} else {
				rl.links[key] = prev
			}
		}, nil

	case core.SignalAnswer:
		if link == nil {
			return nil, ErrUnexpectedAnswer
		}
		if link.state != LinkOfferSent {
			return nil, ErrUnexpectedAnswer
		}
		// Only the side that received the offer answers.
		if Initiator(env.Caller, env.Target) == env.Caller {
			return nil, ErrUnexpectedAnswer
		}
		link.state = LinkAnswered
		return func() {
			rl.mu.Lock()
			defer rl.mu.Unlock()
			link.state = LinkOfferSent
		}, nil

	case core.SignalCandidate:
		if link == nil || link.state == LinkClosed {
			return nil, ErrNoLink
		}
		if link.state != LinkAnswered {
			return noop, nil
		}
		prev := *link
		if env.Caller == key.lo {
			link.candFromLo = true
		} else {
			link.candFromHi = true
		}
		if link.candFromLo && link.candFromHi {
			link.state = LinkEstablished
			log.Info().Str("module", "app.relay").
				Str("a", string(key.lo)).Str("b", string(key.hi)).
				Msg("peer link established")
		}
		return func() {
			rl.mu.Lock()
			defer rl.mu.Unlock()
			*link = prev
		}, nil
	}
	return noop, nil
}

// CloseFor terminates every link the departing connection is part of and
// returns the surviving counterparts so the caller can tell them to
// release their local peer connection.
func (rl *Relay) CloseFor(cid core.ConnID) []core.ConnID {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	var others []core.ConnID
	for key, link := range rl.links {
		if key.lo != cid && key.hi != cid {
			continue
		}
		if link.state != LinkClosed {
			other := key.lo
			if other == cid {
				other = key.hi
			}
			others = append(others, other)
		}
		delete(rl.links, key)
	}
	if len(others) > 0 {
		log.Info().Str("module", "app.relay").Str("cid", string(cid)).Int("links", len(others)).Msg("closed peer links")
	}
	return others
}

// State reports the pair's link state, LinkNew when nothing exists yet.
func (rl *Relay) State(a, b core.ConnID) LinkState {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if link, ok := rl.links[keyFor(a, b)]; ok {
		return link.state
	}
	return LinkNew
}

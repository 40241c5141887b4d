package core

import (
	"encoding/json"
	"errors"
)

type SignalKind string

const (
	SignalOffer     SignalKind = "offer"
	SignalAnswer    SignalKind = "answer"
	SignalCandidate SignalKind = "ice_candidate"
)

var (
	ErrUnknownSignal = errors.New("unknown signal type")
	ErrMissingCaller = errors.New("signal envelope missing caller")
	ErrMissingTarget = errors.New("signal envelope missing target")
	ErrEmptyPayload  = errors.New("signal envelope missing payload")
)

// SignalEnvelope is the one negotiation message shape. The server never
// looks inside SDP or Candidate; it only routes on Caller/Target.
// Caller is mandatory on every variant, ice_candidate included, so the
// receiver can always attribute the envelope to a peer.
type SignalEnvelope struct {
	Type      SignalKind      `json:"type"`
	Caller    ConnID          `json:"caller"`
	Target    ConnID          `json:"target"`
	SDP       json.RawMessage `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

func (e *SignalEnvelope) Validate() error {
	switch e.Type {
	case SignalOffer, SignalAnswer:
		if len(e.SDP) == 0 {
			return ErrEmptyPayload
		}
	case SignalCandidate:
		if len(e.Candidate) == 0 {
			return ErrEmptyPayload
		}
	default:
		return ErrUnknownSignal
	}
	if e.Caller == "" {
		return ErrMissingCaller
	}
	if e.Target == "" {
		return ErrMissingTarget
	}
	return nil
}

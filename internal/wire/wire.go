// Package wire defines the signaling messages exchanged over the websocket.
// Every message is discriminated by a "type" field. The server never looks
// inside SDP or candidate payloads; it only reads the routing fields.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Message type discriminators. These names are the interop surface and must
// stay stable.
const (
	TypeRegister     = "register"
	TypeCallUser     = "call-user"
	TypeIncomingCall = "incoming-call"
	TypeAcceptCall   = "accept-call"
	TypeRejectCall   = "reject-call"
	TypeCallAccepted = "call-accepted"
	TypeCallRejected = "call-rejected"
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeCandidate    = "candidate"
	TypeEndCall      = "end-call"
	TypeCallEnded    = "call-ended"
	TypeJoin         = "join"
	TypePart         = "part"
	TypeAddPeer      = "add-peer"
	TypeRemovePeer   = "remove-peer"
	TypeVerdict      = "verdict"

	// Server-emitted events around the core set.
	TypeRegistered    = "user-registered"
	TypeCallInitiated = "call-initiated"
	TypeUserOnline    = "user-online"
	TypeUserOffline   = "user-offline"
	TypeError         = "error"
	TypePing          = "ping"
	TypePong          = "pong"
)

var ErrUnknownType = errors.New("unknown message type")

// Envelope carries only the discriminator; used to sniff before dispatch.
type Envelope struct {
	Type string `json:"type"`
}

type Register struct {
	Type     string `json:"type"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type Registered struct {
	Type     string `json:"type"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type UserOnline struct {
	Type     string `json:"type"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type UserOffline struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

type CallUser struct {
	Type         string `json:"type"`
	TargetUserID string `json:"targetUserId"`
}

type CallInitiated struct {
	Type         string `json:"type"`
	CallID       string `json:"callId"`
	TargetUserID string `json:"targetUserId"`
}

type IncomingCall struct {
	Type           string `json:"type"`
	CallID         string `json:"callId"`
	CallerID       string `json:"callerId"`
	CallerUsername string `json:"callerUsername"`
}

type AcceptCall struct {
	Type   string `json:"type"`
	CallID string `json:"callId"`
}

type RejectCall struct {
	Type   string `json:"type"`
	CallID string `json:"callId"`
}

type CallAccepted struct {
	Type   string `json:"type"`
	CallID string `json:"callId"`
}

type CallRejected struct {
	Type   string `json:"type"`
	CallID string `json:"callId"`
}

type EndCall struct {
	Type   string `json:"type"`
	CallID string `json:"callId"`
}

type CallEnded struct {
	Type   string `json:"type"`
	CallID string `json:"callId"`
	Reason string `json:"reason,omitempty"`
}

// Description carries an SDP offer or answer. Exactly one of CallID or
// Channel is set. In channel mode PeerID names the target on the way in and
// the source on the way out; the server swaps it when forwarding.
type Description struct {
	Type    string `json:"type"` // offer or answer
	CallID  string `json:"callId,omitempty"`
	Channel string `json:"channel,omitempty"`
	PeerID  string `json:"peerId,omitempty"`
	SDP     string `json:"sdp"`
}

type Candidate struct {
	Type          string  `json:"type"`
	CallID        string  `json:"callId,omitempty"`
	Channel       string  `json:"channel,omitempty"`
	PeerID        string  `json:"peerId,omitempty"`
	Candidate     string  `json:"candidate"`
	SDPMid        string  `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

type Join struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
}

type Part struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
}

type AddPeer struct {
	Type      string `json:"type"`
	Channel   string `json:"channel"`
	PeerID    string `json:"peerId"`
	Username  string `json:"username,omitempty"`
	Initiator bool   `json:"initiator"`
}

type RemovePeer struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
	PeerID  string `json:"peerId"`
}

// Verdict fans an analysis result out to every participant of a call or
// channel. UserID names the participant whose audio was analyzed.
type Verdict struct {
	Type       string  `json:"type"`
	CallID     string  `json:"callId,omitempty"`
	Channel    string  `json:"channel,omitempty"`
	UserID     string  `json:"userId"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Error is scoped to the connection that caused it; bystanders never see it.
type Error struct {
	Type   string `json:"type"`
	Code   string `json:"code"`
	Reason string `json:"reason,omitempty"`
}

type Ping struct {
	Type string `json:"type"`
}

type Pong struct {
	Type string `json:"type"`
}

// Sniff reads the discriminator without touching the payload.
func Sniff(data []byte) (string, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("sniff type: %w", err)
	}
	if env.Type == "" {
		return "", ErrUnknownType
	}
	return env.Type, nil
}

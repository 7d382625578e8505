// Package peer drives the endpoint side of call establishment: one
// connection handle per remote participant, offer/answer exchange through
// the signaling relay, and ordered buffering of connectivity candidates
// that arrive before the remote description.
package peer

import (
	"errors"

	"github.com/pion/webrtc/v4"

	"github.com/frostbyte/callguard/internal/domain"
)

// ErrUnexpectedRenegotiation: a second remote description arrived for a peer
// that already has one. Recovered by tearing down that handle only.
var ErrUnexpectedRenegotiation = errors.New("unexpected renegotiation")

// Connection is the narrow surface the orchestrator needs from an underlying
// peer connection. The production implementation wraps pion/webrtc; tests
// substitute a fake.
type Connection interface {
	// CreateOffer produces and installs the local offer.
	CreateOffer() (webrtc.SessionDescription, error)
	// CreateAnswer produces and installs the local answer. Valid only after
	// a remote offer was applied.
	CreateAnswer() (webrtc.SessionDescription, error)
	SetRemoteDescription(webrtc.SessionDescription) error
	AddICECandidate(webrtc.ICECandidateInit) error
	AddTrack(webrtc.TrackLocal) error
	Close() error
}

// ConnFactory allocates a fresh Connection for a remote participant.
// Handles are never reused across sessions.
type ConnFactory func(remote domain.UserID) (Connection, error)

// Signaler ships outbound negotiation payloads through the relay server.
type Signaler interface {
	SendDescription(remote domain.UserID, desc webrtc.SessionDescription) error
	SendCandidate(remote domain.UserID, cand webrtc.ICECandidateInit) error
	Close()
}

// MediaSource provides the local outgoing tracks attached to every new
// handle, and releases capture on teardown.
type MediaSource interface {
	Tracks() []webrtc.TrackLocal
	Close()
}

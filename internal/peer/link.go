package peer

import (
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/frostbyte/callguard/internal/domain"
)

// link is one handle to one remote participant. All operations on the same
// link are serialized; different links proceed independently.
type link struct {
	remote domain.UserID

	mu        sync.Mutex
	conn      Connection
	remoteSet bool
	pending   []webrtc.ICECandidateInit
	closed    bool
}

func newLink(remote domain.UserID, conn Connection) *link {
	return &link{remote: remote, conn: conn}
}

// applyDescription installs the remote description and drains the candidate
// queue in receipt order, exactly once. A second description is a protocol
// violation surfaced as ErrUnexpectedRenegotiation.
func (l *link) applyDescription(desc webrtc.SessionDescription) (answer *webrtc.SessionDescription, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, nil
	}
	if l.remoteSet {
		return nil, ErrUnexpectedRenegotiation
	}
	if err := l.conn.SetRemoteDescription(desc); err != nil {
		return nil, err
	}
	l.remoteSet = true

	if desc.Type == webrtc.SDPTypeOffer {
		a, err := l.conn.CreateAnswer()
		if err != nil {
			return nil, err
		}
		answer = &a
	}

	for _, cand := range l.pending {
		if err := l.conn.AddICECandidate(cand); err != nil {
			log.Warn().Str("module", "peer").Str("remote", string(l.remote)).
				Err(err).Msg("queued candidate rejected")
		}
	}
	l.pending = nil
	return answer, nil
}

// applyCandidate applies immediately once a remote description exists,
// otherwise queues in receipt order.
func (l *link) applyCandidate(cand webrtc.ICECandidateInit) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	if !l.remoteSet {
		l.pending = append(l.pending, cand)
		return nil
	}
	return l.conn.AddICECandidate(cand)
}

// close tears the handle down and drops any unapplied candidates. Idempotent.
func (l *link) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	l.pending = nil
	if err := l.conn.Close(); err != nil {
		log.Error().Str("module", "peer").Str("remote", string(l.remote)).Err(err).Msg("close handle")
	}
}

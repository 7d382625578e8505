package peer

import (
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/frostbyte/callguard/internal/domain"
)

// Orchestrator owns every peer handle of one endpoint. The initiator side of
// each pair is decided by the relay server, never negotiated, so both sides
// can never offer at once.
type Orchestrator struct {
	newConn ConnFactory
	signal  Signaler
	media   MediaSource

	mu     sync.Mutex
	links  map[domain.UserID]*link
	closed bool
}

func NewOrchestrator(newConn ConnFactory, signal Signaler, media MediaSource) *Orchestrator {
	return &Orchestrator{
		newConn: newConn,
		signal:  signal,
		media:   media,
		links:   make(map[domain.UserID]*link),
	}
}

// AddPeer reacts to an add-peer directive. A handle that already exists is
// left alone — join directives for the same pair may arrive from either
// direction and the second one must be a no-op.
func (o *Orchestrator) AddPeer(remote domain.UserID, initiator bool) error {
	l, created, err := o.ensureLink(remote)
	if err != nil {
		return err
	}
	if !created {
		log.Debug().Str("module", "peer").Str("remote", string(remote)).Msg("handle exists, directive ignored")
		return nil
	}
	if !initiator {
		return nil
	}

	l.mu.Lock()
	offer, err := l.conn.CreateOffer()
	l.mu.Unlock()
	if err != nil {
		o.RemovePeer(remote)
		return fmt.Errorf("create offer for %s: %w", remote, err)
	}
	if err := o.signal.SendDescription(remote, offer); err != nil {
		log.Warn().Str("module", "peer").Str("remote", string(remote)).Err(err).Msg("offer not sent")
	}
	return nil
}

// ApplyDescription installs a relayed remote description, answering if it
// was an offer. A missing handle is allocated on demand (we are then the
// non-initiator). A repeated description tears down only the affected handle.
func (o *Orchestrator) ApplyDescription(remote domain.UserID, desc webrtc.SessionDescription) error {
	l, _, err := o.ensureLink(remote)
	if err != nil {
		return err
	}
	answer, err := l.applyDescription(desc)
	if err != nil {
		if err == ErrUnexpectedRenegotiation {
			log.Warn().Str("module", "peer").Str("remote", string(remote)).Msg("renegotiation attempt, dropping handle")
			o.RemovePeer(remote)
		}
		return err
	}
	if answer != nil {
		if err := o.signal.SendDescription(remote, *answer); err != nil {
			log.Warn().Str("module", "peer").Str("remote", string(remote)).Err(err).Msg("answer not sent")
		}
	}
	return nil
}

// ApplyCandidate applies or queues a relayed connectivity candidate.
// Candidates may precede the description or even the handle itself.
func (o *Orchestrator) ApplyCandidate(remote domain.UserID, cand webrtc.ICECandidateInit) error {
	l, _, err := o.ensureLink(remote)
	if err != nil {
		return err
	}
	return l.applyCandidate(cand)
}

// RemovePeer tears down and discards the handle. Departure of an absent
// peer is a silent no-op.
func (o *Orchestrator) RemovePeer(remote domain.UserID) {
	o.mu.Lock()
	l, ok := o.links[remote]
	if ok {
		delete(o.links, remote)
	}
	o.mu.Unlock()
	if !ok {
		return
	}
	l.close()
	log.Info().Str("module", "peer").Str("remote", string(remote)).Msg("peer removed")
}

// Peers snapshots the current remote identities, mostly for tests and UIs.
func (o *Orchestrator) Peers() []domain.UserID {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]domain.UserID, 0, len(o.links))
	for id := range o.links {
		out = append(out, id)
	}
	return out
}

// Close tears down every handle, then local media, then the signaling
// connection — in that order, so no handle outlives signaling.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	links := make([]*link, 0, len(o.links))
	for _, l := range o.links {
		links = append(links, l)
	}
	o.links = make(map[domain.UserID]*link)
	o.mu.Unlock()

	for _, l := range links {
		l.close()
	}
	if o.media != nil {
		o.media.Close()
	}
	o.signal.Close()
	log.Info().Str("module", "peer").Int("handles", len(links)).Msg("orchestrator closed")
}

// ensureLink returns the existing handle or allocates a fresh one with the
// local tracks attached.
func (o *Orchestrator) ensureLink(remote domain.UserID) (*link, bool, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, false, fmt.Errorf("orchestrator closed")
	}
	if l, ok := o.links[remote]; ok {
		o.mu.Unlock()
		return l, false, nil
	}
	o.mu.Unlock()

	conn, err := o.newConn(remote)
	if err != nil {
		return nil, false, fmt.Errorf("allocate handle for %s: %w", remote, err)
	}
	if o.media != nil {
		for _, track := range o.media.Tracks() {
			if err := conn.AddTrack(track); err != nil {
				_ = conn.Close()
				return nil, false, fmt.Errorf("attach local track: %w", err)
			}
		}
	}

	l := newLink(remote, conn)
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		l.close()
		return nil, false, fmt.Errorf("orchestrator closed")
	}
	if existing, ok := o.links[remote]; ok {
		// Lost the allocation race to a concurrent message for the same peer.
		o.mu.Unlock()
		l.close()
		return existing, false, nil
	}
	o.links[remote] = l
	o.mu.Unlock()
	log.Info().Str("module", "peer").Str("remote", string(remote)).Msg("handle created")
	return l, true, nil
}

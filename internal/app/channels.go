package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/frostbyte/callguard/internal/core"
	"github.com/frostbyte/callguard/internal/domain"
)

// MemberSnap is a point-in-time view of one channel member.
type MemberSnap struct {
	ID      domain.UserID
	Name    string
	Session core.ClientSession
}

// ChannelManager owns multi-party channel membership. It decides the
// initiator side of every peer pair: the joiner initiates towards everyone
// already present, so a pair can never see two initiator directives.
type ChannelManager struct {
	mu       sync.Mutex
	channels map[domain.ChannelName]map[domain.UserID]core.ClientSession
}

func NewChannelManager() *ChannelManager {
	return &ChannelManager{
		channels: make(map[domain.ChannelName]map[domain.UserID]core.ClientSession),
	}
}

// Join adds the identity to the channel and returns the members that were
// already there. Re-joining refreshes the stored session; the endpoint
// orchestrator deduplicates the resulting directives.
func (m *ChannelManager) Join(name domain.ChannelName, id domain.UserID, sess core.ClientSession) []MemberSnap {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[name]
	if !ok {
		ch = make(map[domain.UserID]core.ClientSession)
		m.channels[name] = ch
	}
	existing := make([]MemberSnap, 0, len(ch))
	for mid, msess := range ch {
		if mid == id {
			continue
		}
		existing = append(existing, MemberSnap{ID: mid, Name: msess.Meta().DisplayName, Session: msess})
	}
	ch[id] = sess
	log.Info().Str("module", "app.channels").Str("channel", string(name)).
		Str("user", string(id)).Int("peers", len(existing)).Msg("joined channel")
	return existing
}

// Leave removes the identity and returns the members left behind so they can
// be told to drop their handle to the departed peer. The channel itself
// survives; leaving is silent for non-members.
func (m *ChannelManager) Leave(name domain.ChannelName, id domain.UserID) ([]MemberSnap, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[name]
	if !ok {
		return nil, false
	}
	if _, ok := ch[id]; !ok {
		return nil, false
	}
	delete(ch, id)
	if len(ch) == 0 {
		delete(m.channels, name)
	}
	log.Info().Str("module", "app.channels").Str("channel", string(name)).
		Str("user", string(id)).Msg("left channel")
	return m.snapshotLocked(ch), true
}

// LeaveAll removes the identity from every channel, for disconnect handling.
// The returned map carries the remaining members per affected channel.
func (m *ChannelManager) LeaveAll(id domain.UserID) map[domain.ChannelName][]MemberSnap {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[domain.ChannelName][]MemberSnap)
	for name, ch := range m.channels {
		if _, ok := ch[id]; !ok {
			continue
		}
		delete(ch, id)
		out[name] = m.snapshotLocked(ch)
		if len(ch) == 0 {
			delete(m.channels, name)
		}
	}
	return out
}

// Member resolves one member's session, for channel-mode relay routing.
func (m *ChannelManager) Member(name domain.ChannelName, id domain.UserID) (core.ClientSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[name]
	if !ok {
		return nil, false
	}
	sess, ok := ch[id]
	return sess, ok
}

// IsMember reports channel membership, for relay legality checks.
func (m *ChannelManager) IsMember(name domain.ChannelName, id domain.UserID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[name]
	if !ok {
		return false
	}
	_, ok = ch[id]
	return ok
}

// Members snapshots the full member set, for verdict fan-out.
func (m *ChannelManager) Members(name domain.ChannelName) []MemberSnap {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[name]
	if !ok {
		return nil
	}
	return m.snapshotLocked(ch)
}

func (m *ChannelManager) snapshotLocked(ch map[domain.UserID]core.ClientSession) []MemberSnap {
	out := make([]MemberSnap, 0, len(ch))
	for id, sess := range ch {
		out = append(out, MemberSnap{ID: id, Name: sess.Meta().DisplayName, Session: sess})
	}
	return out
}

package app

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/frostbyte/callguard/internal/core"
	"github.com/frostbyte/callguard/internal/domain"
)

type callEntry struct {
	sess      domain.CallSession
	ringTimer *time.Timer
}

// Ended describes one torn-down call and the parties still reachable, so the
// adapter can notify them. The record itself is already gone by the time an
// Ended is returned; terminal transitions release everything first.
type Ended struct {
	Call   domain.CallSession
	Notify []core.ClientSession
}

// CallManager mediates the 1:1 call lifecycle. It never inspects SDP or
// candidate payloads; relay routing is the only reason it keeps a record
// after both legs are connected.
type CallManager struct {
	mu    sync.Mutex
	calls map[domain.CallID]*callEntry

	reg         *Registry
	ringTimeout time.Duration

	// OnRingTimeout is invoked off the lock when an invite expires.
	OnRingTimeout func(Ended)
}

func NewCallManager(reg *Registry, ringTimeout time.Duration) *CallManager {
	return &CallManager{
		calls:       make(map[domain.CallID]*callEntry),
		reg:         reg,
		ringTimeout: ringTimeout,
	}
}

// Initiate creates a ringing session and returns the callee's session for
// the invite delivery. Fails fast when the callee is unknown or offline.
func (m *CallManager) Initiate(caller, target domain.UserID) (*domain.CallSession, core.ClientSession, error) {
	if _, ok := m.reg.Lookup(target); !ok {
		return nil, nil, ErrTargetUnknown
	}
	calleeSess, ok := m.reg.Session(target)
	if !ok {
		return nil, nil, ErrTargetUnreachable
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := domain.CallID(uuid.NewString())
	entry := &callEntry{
		sess: domain.CallSession{
			ID:        id,
			Caller:    caller,
			Callee:    target,
			State:     domain.CallRinging,
			CreatedAt: time.Now(),
		},
	}
	if m.ringTimeout > 0 {
		entry.ringTimer = time.AfterFunc(m.ringTimeout, func() { m.expire(id) })
	}
	m.calls[id] = entry

	log.Info().Str("module", "app.calls").Str("call", string(id)).
		Str("caller", string(caller)).Str("callee", string(target)).Msg("call initiated")
	sessCopy := entry.sess
	return &sessCopy, calleeSess, nil
}

// Respond resolves a ringing session. Only the callee may respond; anything
// else is ErrInvalidSession and a no-op. Accept moves both legs to active,
// reject releases the record. The caller's session is returned for the
// call-accepted / call-rejected notification.
func (m *CallManager) Respond(id domain.CallID, responder domain.UserID, accept bool) (*domain.CallSession, core.ClientSession, error) {
	m.mu.Lock()
	entry, ok := m.calls[id]
	if !ok || entry.sess.Callee != responder || entry.sess.State != domain.CallRinging {
		m.mu.Unlock()
		return nil, nil, ErrInvalidSession
	}
	if entry.ringTimer != nil {
		entry.ringTimer.Stop()
		entry.ringTimer = nil
	}
	if accept {
		entry.sess.State = domain.CallActive
	} else {
		delete(m.calls, id)
	}
	sessCopy := entry.sess
	m.mu.Unlock()

	log.Info().Str("module", "app.calls").Str("call", string(id)).Bool("accept", accept).Msg("call resolved")
	callerSess, _ := m.reg.Session(sessCopy.Caller)
	return &sessCopy, callerSess, nil
}

// Counterparty resolves the relay target for a signaling payload.
// ErrInvalidSession when the call is unknown or sender is not a party;
// ErrRelayDropped when the other side is gone — the payload is dropped,
// never queued.
func (m *CallManager) Counterparty(id domain.CallID, sender domain.UserID) (core.ClientSession, error) {
	m.mu.Lock()
	entry, ok := m.calls[id]
	var peer domain.UserID
	if ok {
		peer = entry.sess.Peer(sender)
	}
	m.mu.Unlock()
	if !ok || peer == "" {
		return nil, ErrInvalidSession
	}
	sess, ok := m.reg.Session(peer)
	if !ok {
		log.Warn().Str("module", "app.calls").Str("call", string(id)).
			Str("peer", string(peer)).Msg("relay dropped, counter-party offline")
		return nil, ErrRelayDropped
	}
	return sess, nil
}

// Participants returns every reachable party of the call, for verdict
// fan-out. Only a party of the call may fan out; anyone else gets
// ErrInvalidSession, same as the relay path. Verdicts cause no state
// transition.
func (m *CallManager) Participants(id domain.CallID, sender domain.UserID) ([]core.ClientSession, error) {
	m.mu.Lock()
	entry, ok := m.calls[id]
	var caller, callee domain.UserID
	if ok {
		caller, callee = entry.sess.Caller, entry.sess.Callee
	}
	m.mu.Unlock()
	if !ok || (sender != caller && sender != callee) {
		return nil, ErrInvalidSession
	}
	var out []core.ClientSession
	for _, id := range []domain.UserID{caller, callee} {
		if sess, ok := m.reg.Session(id); ok {
			out = append(out, sess)
		}
	}
	return out, nil
}

// End tears a call down from any state. Either party may end; both are
// notified (the terminator gets the call-ended echo too, as the original
// protocol does). The record is removed before anyone is notified.
func (m *CallManager) End(id domain.CallID, by domain.UserID) (*Ended, error) {
	m.mu.Lock()
	entry, ok := m.calls[id]
	if !ok || !entry.sess.Involves(by) {
		m.mu.Unlock()
		return nil, ErrInvalidSession
	}
	m.remove(entry)
	sessCopy := entry.sess
	m.mu.Unlock()

	log.Info().Str("module", "app.calls").Str("call", string(id)).Str("by", string(by)).Msg("call ended")
	return &Ended{Call: sessCopy, Notify: m.reachable(sessCopy.Caller, sessCopy.Callee)}, nil
}

// EndAllFor tears down every call the identity participates in. Called
// synchronously from disconnect handling so no session ever outlives the
// presence record it references.
func (m *CallManager) EndAllFor(id domain.UserID) []Ended {
	m.mu.Lock()
	var dropped []domain.CallSession
	for _, entry := range m.calls {
		if entry.sess.Involves(id) {
			m.remove(entry)
			dropped = append(dropped, entry.sess)
		}
	}
	m.mu.Unlock()

	out := make([]Ended, 0, len(dropped))
	for _, sess := range dropped {
		log.Info().Str("module", "app.calls").Str("call", string(sess.ID)).
			Str("user", string(id)).Msg("call ended by disconnect")
		out = append(out, Ended{Call: sess, Notify: m.reachable(sess.Peer(id))})
	}
	return out
}

// expire resolves a still-ringing invite to idle and notifies the caller.
func (m *CallManager) expire(id domain.CallID) {
	m.mu.Lock()
	entry, ok := m.calls[id]
	if !ok || entry.sess.State != domain.CallRinging {
		m.mu.Unlock()
		return
	}
	m.remove(entry)
	sessCopy := entry.sess
	m.mu.Unlock()

	log.Info().Str("module", "app.calls").Str("call", string(id)).Msg("ring timeout")
	if m.OnRingTimeout != nil {
		m.OnRingTimeout(Ended{Call: sessCopy, Notify: m.reachable(sessCopy.Caller)})
	}
}

// remove must be called under the lock.
func (m *CallManager) remove(entry *callEntry) {
	if entry.ringTimer != nil {
		entry.ringTimer.Stop()
		entry.ringTimer = nil
	}
	delete(m.calls, entry.sess.ID)
}

func (m *CallManager) reachable(ids ...domain.UserID) []core.ClientSession {
	var out []core.ClientSession
	for _, id := range ids {
		if sess, ok := m.reg.Session(id); ok {
			out = append(out, sess)
		}
	}
	return out
}

// Active reports the number of live call records, for the stats endpoint.
func (m *CallManager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

package app

import (
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/frostbyte/callguard/internal/core"
	"github.com/frostbyte/callguard/internal/domain"
)

type binding struct {
	cid  core.ClientID
	sess core.ClientSession
}

// Registry owns identities and presence. Identities survive disconnects
// (restart-scoped); a presence binding exists only while a connection is
// live, and its absence is the sole offline signal.
type Registry struct {
	mu         sync.RWMutex
	identities map[domain.UserID]*domain.Identity
	online     map[domain.UserID]*binding
	byClient   map[core.ClientID]domain.UserID
}

func NewRegistry() *Registry {
	return &Registry{
		identities: make(map[domain.UserID]*domain.Identity),
		online:     make(map[domain.UserID]*binding),
		byClient:   make(map[core.ClientID]domain.UserID),
	}
}

// Register creates or updates the identity (last write wins on the display
// name) and binds the connection as the identity's only live session.
// A superseded session, if any, is returned so the adapter can close it.
func (r *Registry) Register(
	cid core.ClientID,
	id domain.UserID,
	displayName string,
	conn core.SignalConnection,
) (*domain.Identity, core.ClientSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ident *domain.Identity
	if id != "" {
		ident = r.identities[id]
	}
	if ident == nil {
		if id == "" {
			var err error
			if ident, err = domain.NewIdentity(displayName); err != nil {
				return nil, nil, err
			}
		} else {
			ident = &domain.Identity{ID: id}
			if err := ident.SetDisplayName(displayName); err != nil {
				return nil, nil, err
			}
		}
		r.identities[ident.ID] = ident
		log.Info().Str("module", "app.registry").Str("user", string(ident.ID)).Str("name", displayName).Msg("created identity")
	} else if err := ident.SetDisplayName(displayName); err != nil {
		return nil, nil, err
	}

	var superseded core.ClientSession
	if old, ok := r.online[ident.ID]; ok && old.cid != cid {
		superseded = old.sess
		delete(r.byClient, old.cid)
		log.Info().Str("module", "app.registry").Str("user", string(ident.ID)).Msg("superseding earlier connection")
	}

	r.online[ident.ID] = &binding{cid: cid, sess: core.NewClientSession(ident, conn)}
	r.byClient[cid] = ident.ID
	log.Info().Str("module", "app.registry").Str("cid", string(cid)).Str("user", string(ident.ID)).Msg("bound presence")
	return ident, superseded, nil
}

// Unregister drops the presence record, but only if it still belongs to this
// connection; the disconnect of a superseded connection must not knock the
// replacement offline.
func (r *Registry) Unregister(cid core.ClientID) (*domain.Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byClient[cid]
	if !ok {
		return nil, false
	}
	delete(r.byClient, cid)
	if b, ok := r.online[id]; !ok || b.cid != cid {
		return nil, false
	}
	delete(r.online, id)
	log.Info().Str("module", "app.registry").Str("cid", string(cid)).Str("user", string(id)).Msg("presence removed")
	return r.identities[id], true
}

// IdentityOf resolves the identity currently registered on a connection.
func (r *Registry) IdentityOf(cid core.ClientID) (domain.UserID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byClient[cid]
	return id, ok
}

// Session returns the live session of an identity, if any.
func (r *Registry) Session(id domain.UserID) (core.ClientSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if b, ok := r.online[id]; ok {
		return b.sess, true
	}
	return nil, false
}

// Lookup returns an identity record whether or not it is online.
func (r *Registry) Lookup(id domain.UserID) (*domain.Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ident, ok := r.identities[id]
	return ident, ok
}

// SearchByPrefix returns at most limit identities whose display name starts
// with the query, case-insensitively.
func (r *Registry) SearchByPrefix(query string, limit int) []domain.Identity {
	q := strings.ToLower(query)
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Identity, 0, limit)
	for _, ident := range r.identities {
		if len(out) >= limit {
			break
		}
		if strings.HasPrefix(strings.ToLower(ident.DisplayName), q) {
			out = append(out, *ident)
		}
	}
	return out
}

// ListIdentities snapshots every known identity.
func (r *Registry) ListIdentities() []domain.Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Identity, 0, len(r.identities))
	for _, ident := range r.identities {
		out = append(out, *ident)
	}
	return out
}

// BroadcastExcept fans a frame out to every online identity but one.
// Backpressured connections are skipped; presence events are best-effort.
func (r *Registry) BroadcastExcept(except domain.UserID, data core.Frame) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, b := range r.online {
		if id == except {
			continue
		}
		if err := b.sess.Signal().TrySend(data); err != nil {
			log.Warn().Str("module", "app.registry").Str("user", string(id)).Err(err).Msg("broadcast dropped")
		}
	}
}

type Stats struct {
	TotalUsers  int `json:"totalUsers"`
	OnlineUsers int `json:"onlineUsers"`
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{TotalUsers: len(r.identities), OnlineUsers: len(r.online)}
}

package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/frostbyte/callguard/internal/core"
	"github.com/frostbyte/callguard/internal/domain"
	"github.com/frostbyte/callguard/internal/wire"
)

func (ctl *SignalWSController) handleRegister(cid core.ClientID, conn *WsSignalConn, data []byte) {
	var p wire.Register
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad register payload")
		ctl.sendError(conn, "bad_payload", "malformed register")
		return
	}

	ident, superseded, err := ctl.Registry.Register(cid, domain.UserID(p.UserID), p.Username, conn)
	if err != nil {
		ctl.sendError(conn, "invalid_name", err.Error())
		return
	}
	// Exactly one live connection per identity: the older one is told
	// nothing and simply closed, its readPump handles the rest.
	if superseded != nil {
		superseded.Signal().Close()
	}

	log.Info().Str("module", "signal").Str("cid", string(cid)).
		Str("user", string(ident.ID)).Str("name", ident.DisplayName).Msg("registered")

	ctl.sendJSON(conn, wire.Registered{
		Type:     wire.TypeRegistered,
		UserID:   string(ident.ID),
		Username: ident.DisplayName,
	})
	ctl.broadcastExcept(ident.ID, wire.UserOnline{
		Type:     wire.TypeUserOnline,
		UserID:   string(ident.ID),
		Username: ident.DisplayName,
	})
}

func (ctl *SignalWSController) broadcastExcept(except domain.UserID, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("broadcast marshal")
		return
	}
	ctl.Registry.BroadcastExcept(except, b)
}

// identityOf resolves the registered identity of a connection, emitting the
// scoped error event when there is none.
func (ctl *SignalWSController) identityOf(cid core.ClientID, conn *WsSignalConn) (domain.UserID, bool) {
	id, ok := ctl.Registry.IdentityOf(cid)
	if !ok {
		ctl.sendError(conn, "not_registered", "register first")
	}
	return id, ok
}

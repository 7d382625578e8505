package signal

import (
	"github.com/rs/zerolog/log"

	"github.com/frostbyte/callguard/internal/core"
	"github.com/frostbyte/callguard/internal/wire"
)

// onDisconnect is the single cleanup path for a vanished connection. It runs
// synchronously inside the readPump teardown: calls end, channel handles are
// dropped, presence disappears — all before the next message anywhere can
// observe a half-dismantled state. A superseded connection's exit is a no-op
// because its binding was already replaced.
func (ctl *SignalWSController) onDisconnect(cid core.ClientID) {
	ident, ok := ctl.Registry.Unregister(cid)
	if !ok {
		return
	}

	for _, e := range ctl.Calls.EndAllFor(ident.ID) {
		ctl.notifyEnded(e, "disconnected")
	}
	for channel, remaining := range ctl.Channels.LeaveAll(ident.ID) {
		ctl.notifyRemovePeer(string(channel), ident.ID, remaining)
	}
	ctl.broadcastExcept(ident.ID, wire.UserOffline{
		Type:   wire.TypeUserOffline,
		UserID: string(ident.ID),
	})
	log.Info().Str("module", "signal").Str("cid", string(cid)).
		Str("user", string(ident.ID)).Msg("disconnect cleanup done")
}

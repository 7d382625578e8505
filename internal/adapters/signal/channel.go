package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/frostbyte/callguard/internal/app"
	"github.com/frostbyte/callguard/internal/core"
	"github.com/frostbyte/callguard/internal/domain"
	"github.com/frostbyte/callguard/internal/wire"
)

// handleJoin adds the sender to a channel and fans the add-peer directives
// out: the joiner initiates towards everyone already present, the existing
// members wait for the joiner's offer. A pair therefore never gets two
// initiator directives, whatever order the joins land in.
func (ctl *SignalWSController) handleJoin(cid core.ClientID, conn *WsSignalConn, data []byte) {
	id, ok := ctl.identityOf(cid, conn)
	if !ok {
		return
	}
	var p wire.Join
	if err := json.Unmarshal(data, &p); err != nil || p.Channel == "" {
		ctl.sendError(conn, "bad_payload", "malformed join")
		return
	}

	sess, ok := ctl.Registry.Session(id)
	if !ok {
		ctl.sendError(conn, "not_registered", "register first")
		return
	}
	selfName := sess.Meta().DisplayName

	name := domain.ChannelName(p.Channel)
	existing := ctl.Channels.Join(name, id, sess)

	for _, member := range existing {
		ctl.sendJSON(conn, wire.AddPeer{
			Type:      wire.TypeAddPeer,
			Channel:   p.Channel,
			PeerID:    string(member.ID),
			Username:  member.Name,
			Initiator: true,
		})
		ctl.sendTo(member.Session, wire.AddPeer{
			Type:      wire.TypeAddPeer,
			Channel:   p.Channel,
			PeerID:    string(id),
			Username:  selfName,
			Initiator: false,
		})
	}
	log.Info().Str("module", "signal").Str("channel", p.Channel).
		Str("user", string(id)).Int("peers", len(existing)).Msg("join relayed")
}

// handlePart removes the sender from the channel; everyone left behind is
// told to drop their handle to the departed peer. The channel itself stays.
func (ctl *SignalWSController) handlePart(cid core.ClientID, conn *WsSignalConn, data []byte) {
	id, ok := ctl.identityOf(cid, conn)
	if !ok {
		return
	}
	var p wire.Part
	if err := json.Unmarshal(data, &p); err != nil || p.Channel == "" {
		ctl.sendError(conn, "bad_payload", "malformed part")
		return
	}

	remaining, was := ctl.Channels.Leave(domain.ChannelName(p.Channel), id)
	if !was {
		return
	}
	ctl.notifyRemovePeer(p.Channel, id, remaining)
}

func (ctl *SignalWSController) notifyRemovePeer(channel string, departed domain.UserID, remaining []app.MemberSnap) {
	msg := wire.RemovePeer{Type: wire.TypeRemovePeer, Channel: channel, PeerID: string(departed)}
	for _, member := range remaining {
		ctl.sendTo(member.Session, msg)
	}
}

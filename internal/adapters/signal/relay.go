package signal

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/frostbyte/callguard/internal/app"
	"github.com/frostbyte/callguard/internal/core"
	"github.com/frostbyte/callguard/internal/domain"
	"github.com/frostbyte/callguard/internal/wire"
)

// relayTarget resolves where a signaling payload goes. An unknown or foreign
// session is an error back to the sender; an unreachable counter-party is a
// silent drop — signaling has no value once its target is gone.
func (ctl *SignalWSController) relayTarget(
	conn *WsSignalConn,
	sender domain.UserID,
	callID, channel, peerID string,
) (core.ClientSession, bool) {
	switch {
	case callID != "":
		sess, err := ctl.Calls.Counterparty(domain.CallID(callID), sender)
		if errors.Is(err, app.ErrInvalidSession) {
			ctl.sendError(conn, "invalid_session", "invalid call")
			return nil, false
		}
		if err != nil {
			return nil, false
		}
		return sess, true

	case channel != "" && peerID != "":
		name := domain.ChannelName(channel)
		if !ctl.Channels.IsMember(name, sender) {
			ctl.sendError(conn, "invalid_session", "not a channel member")
			return nil, false
		}
		sess, ok := ctl.Channels.Member(name, domain.UserID(peerID))
		if !ok {
			log.Warn().Str("module", "signal").Str("channel", channel).
				Str("peer", peerID).Msg("relay dropped, peer not in channel")
			return nil, false
		}
		return sess, true

	default:
		ctl.sendError(conn, "bad_payload", "missing routing fields")
		return nil, false
	}
}

// handleDescription forwards an offer or answer. For 1:1 calls the payload
// goes through byte-for-byte; in channel mode only the peerId routing field
// is swapped to name the source.
func (ctl *SignalWSController) handleDescription(cid core.ClientID, conn *WsSignalConn, data []byte) {
	sender, ok := ctl.identityOf(cid, conn)
	if !ok {
		return
	}
	var p wire.Description
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(conn, "bad_payload", "malformed description")
		return
	}
	target, ok := ctl.relayTarget(conn, sender, p.CallID, p.Channel, p.PeerID)
	if !ok {
		return
	}
	if p.Channel != "" {
		p.PeerID = string(sender)
		ctl.sendTo(target, p)
		return
	}
	if err := target.Signal().TrySend(data); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("type", p.Type).Msg("relay send failed")
	}
}

func (ctl *SignalWSController) handleCandidate(cid core.ClientID, conn *WsSignalConn, data []byte) {
	sender, ok := ctl.identityOf(cid, conn)
	if !ok {
		return
	}
	var p wire.Candidate
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(conn, "bad_payload", "malformed candidate")
		return
	}
	target, ok := ctl.relayTarget(conn, sender, p.CallID, p.Channel, p.PeerID)
	if !ok {
		return
	}
	if p.Channel != "" {
		p.PeerID = string(sender)
		ctl.sendTo(target, p)
		return
	}
	if err := target.Signal().TrySend(data); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("candidate relay send failed")
	}
}

// handleVerdict broadcasts an analysis verdict to every participant of the
// call or channel. Pure fan-out; no state transition.
func (ctl *SignalWSController) handleVerdict(cid core.ClientID, conn *WsSignalConn, data []byte) {
	sender, ok := ctl.identityOf(cid, conn)
	if !ok {
		return
	}
	var p wire.Verdict
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(conn, "bad_payload", "malformed verdict")
		return
	}
	if p.UserID == "" {
		p.UserID = string(sender)
	}

	var targets []core.ClientSession
	switch {
	case p.CallID != "":
		sessions, err := ctl.Calls.Participants(domain.CallID(p.CallID), sender)
		if err != nil {
			ctl.sendError(conn, "invalid_session", "invalid call")
			return
		}
		targets = sessions
	case p.Channel != "":
		name := domain.ChannelName(p.Channel)
		if !ctl.Channels.IsMember(name, sender) {
			ctl.sendError(conn, "invalid_session", "not a channel member")
			return
		}
		for _, m := range ctl.Channels.Members(name) {
			targets = append(targets, m.Session)
		}
	default:
		ctl.sendError(conn, "bad_payload", "missing routing fields")
		return
	}

	for _, sess := range targets {
		ctl.sendTo(sess, p)
	}
	log.Debug().Str("module", "signal").Str("label", p.Label).
		Float64("confidence", p.Confidence).Int("fanout", len(targets)).Msg("verdict relayed")
}

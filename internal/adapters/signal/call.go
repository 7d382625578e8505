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

func (ctl *SignalWSController) handleCallUser(cid core.ClientID, conn *WsSignalConn, data []byte) {
	caller, ok := ctl.identityOf(cid, conn)
	if !ok {
		return
	}
	var p wire.CallUser
	if err := json.Unmarshal(data, &p); err != nil || p.TargetUserID == "" {
		ctl.sendError(conn, "bad_payload", "malformed call-user")
		return
	}

	call, calleeSess, err := ctl.Calls.Initiate(caller, domain.UserID(p.TargetUserID))
	switch {
	case errors.Is(err, app.ErrTargetUnknown):
		ctl.sendError(conn, "target_unknown", "user not found")
		return
	case errors.Is(err, app.ErrTargetUnreachable):
		ctl.sendError(conn, "target_unreachable", "user is not online")
		return
	case err != nil:
		ctl.sendError(conn, "call_failed", err.Error())
		return
	}

	callerName := ""
	if ident, ok := ctl.Registry.Lookup(caller); ok {
		callerName = ident.DisplayName
	}
	ctl.sendTo(calleeSess, wire.IncomingCall{
		Type:           wire.TypeIncomingCall,
		CallID:         string(call.ID),
		CallerID:       string(caller),
		CallerUsername: callerName,
	})
	ctl.sendJSON(conn, wire.CallInitiated{
		Type:         wire.TypeCallInitiated,
		CallID:       string(call.ID),
		TargetUserID: p.TargetUserID,
	})
}

func (ctl *SignalWSController) handleRespond(cid core.ClientID, conn *WsSignalConn, data []byte, accept bool) {
	responder, ok := ctl.identityOf(cid, conn)
	if !ok {
		return
	}
	var p wire.AcceptCall
	if err := json.Unmarshal(data, &p); err != nil || p.CallID == "" {
		ctl.sendError(conn, "bad_payload", "malformed call response")
		return
	}

	call, callerSess, err := ctl.Calls.Respond(domain.CallID(p.CallID), responder, accept)
	if err != nil {
		ctl.sendError(conn, "invalid_session", "invalid call")
		return
	}

	if accept {
		// Both legs move to active together; both ends hear about it.
		msg := wire.CallAccepted{Type: wire.TypeCallAccepted, CallID: string(call.ID)}
		ctl.sendTo(callerSess, msg)
		ctl.sendJSON(conn, msg)
		return
	}
	// Reject notifies the caller only; the callee already knows locally.
	ctl.sendTo(callerSess, wire.CallRejected{Type: wire.TypeCallRejected, CallID: string(call.ID)})
}

func (ctl *SignalWSController) handleEndCall(cid core.ClientID, conn *WsSignalConn, data []byte) {
	by, ok := ctl.identityOf(cid, conn)
	if !ok {
		return
	}
	var p wire.EndCall
	if err := json.Unmarshal(data, &p); err != nil || p.CallID == "" {
		ctl.sendError(conn, "bad_payload", "malformed end-call")
		return
	}

	ended, err := ctl.Calls.End(domain.CallID(p.CallID), by)
	if err != nil {
		ctl.sendError(conn, "invalid_session", "invalid call")
		return
	}
	ctl.notifyEnded(*ended, "")
	log.Info().Str("module", "signal").Str("call", p.CallID).Str("by", string(by)).Msg("end-call relayed")
}

package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/frostbyte/callguard/internal/core"
	"github.com/frostbyte/callguard/internal/wire"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	var keepalive <-chan time.Time
	if ctl.PingPeriod > 0 {
		ticker := time.NewTicker(ctl.PingPeriod)
		defer ticker.Stop()
		keepalive = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-keepalive:
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Info().Err(err).Str("module", "signal").Msg("writePump ping failed")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cid core.ClientID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("cid", string(cid)).Msg("readPump closing")
		ctl.onDisconnect(cid)
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("cid", string(cid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "signal").Str("cid", string(cid)).Msg("readPump read error")
				return
			}
			ctl.handleSignal(cid, c, data)
		}
	}
}

// handleSignal dispatches one inbound message. A malformed or illegal
// message produces a typed error event on this connection only; the loop
// keeps serving.
func (ctl *SignalWSController) handleSignal(cid core.ClientID, c *WsSignalConn, data []byte) {
	typ, err := wire.Sniff(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad json")
		ctl.sendError(c, "bad_payload", "malformed message")
		return
	}

	switch typ {
	case wire.TypeRegister:
		ctl.handleRegister(cid, c, data)
	case wire.TypeCallUser:
		ctl.handleCallUser(cid, c, data)
	case wire.TypeAcceptCall:
		ctl.handleRespond(cid, c, data, true)
	case wire.TypeRejectCall:
		ctl.handleRespond(cid, c, data, false)
	case wire.TypeEndCall:
		ctl.handleEndCall(cid, c, data)
	case wire.TypeOffer, wire.TypeAnswer:
		ctl.handleDescription(cid, c, data)
	case wire.TypeCandidate:
		ctl.handleCandidate(cid, c, data)
	case wire.TypeVerdict:
		ctl.handleVerdict(cid, c, data)
	case wire.TypeJoin:
		ctl.handleJoin(cid, c, data)
	case wire.TypePart:
		ctl.handlePart(cid, c, data)
	case wire.TypePing:
		ctl.handlePing(c)
	default:
		log.Warn().Str("module", "signal").Str("type", typ).Msg("unknown signal")
		ctl.sendError(c, "unknown_type", typ)
	}
}

func (ctl *SignalWSController) sendJSONConn(c core.SignalConnection, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, v any) {
	ctl.sendJSONConn(c, v)
}

func (ctl *SignalWSController) sendError(c *WsSignalConn, code, reason string) {
	ctl.sendJSON(c, wire.Error{Type: wire.TypeError, Code: code, Reason: reason})
}

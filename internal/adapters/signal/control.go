package signal

import "github.com/frostbyte/callguard/internal/wire"

func (ctl *SignalWSController) handlePing(conn *WsSignalConn) {
	ctl.sendJSON(conn, wire.Pong{Type: wire.TypePong})
}

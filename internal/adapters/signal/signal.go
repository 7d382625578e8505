package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/frostbyte/callguard/internal/app"
	"github.com/frostbyte/callguard/internal/core"
	"github.com/frostbyte/callguard/internal/wire"
)

var ErrBackpressure = errors.New("backpressure")

// SignalWSController terminates the websocket signaling plane: presence,
// call lifecycle and blind payload relay. One instance serves every
// connection; all shared state lives in the managers.
type SignalWSController struct {
	Registry *app.Registry
	Calls    *app.CallManager
	Channels *app.ChannelManager

	// ReadLimit caps inbound frame size; 0 means no cap.
	ReadLimit int64
	// PingPeriod drives transport-level keepalive pings; 0 disables them.
	PingPeriod time.Duration
}

func NewSignalWSController(reg *app.Registry, calls *app.CallManager, channels *app.ChannelManager) *SignalWSController {
	ctl := &SignalWSController{
		Registry: reg,
		Calls:    calls,
		Channels: channels,
	}
	calls.OnRingTimeout = func(e app.Ended) {
		ctl.notifyEnded(e, "timeout")
	}
	return ctl
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	cid := core.ClientID(c.GetString("client_token"))
	log.Info().Str("module", "signal").Str("cid", string(cid)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade")
		return
	}
	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go func() {
		defer cancel()
		ctl.readPump(ctx, cid, conn)
	}()
}

// notifyEnded fans a call-ended event out to the still-reachable parties.
func (ctl *SignalWSController) notifyEnded(e app.Ended, reason string) {
	msg := wire.CallEnded{Type: wire.TypeCallEnded, CallID: string(e.Call.ID), Reason: reason}
	for _, sess := range e.Notify {
		ctl.sendTo(sess, msg)
	}
}

func (ctl *SignalWSController) sendTo(sess core.ClientSession, v any) {
	if sess == nil {
		return
	}
	ctl.sendJSONConn(sess.Signal(), v)
}

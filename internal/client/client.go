// Package client is a headless call endpoint: it speaks the signaling
// protocol over a websocket, drives a peer.Orchestrator for media
// establishment and taps every remote track into the analysis service,
// relaying verdicts back to the other participants.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/frostbyte/callguard/internal/adapters/rtc"
	"github.com/frostbyte/callguard/internal/detect"
	"github.com/frostbyte/callguard/internal/domain"
	"github.com/frostbyte/callguard/internal/peer"
	"github.com/frostbyte/callguard/internal/wire"
)

type Options struct {
	ServerURL   string // ws://host:port/api/ws/signal
	UserID      string
	Username    string
	Channel     string
	DetectorURL string
	ChunkLen    time.Duration
	STUNServers []string
	// Media provides the local outgoing tracks; nil joins receive-only.
	Media peer.MediaSource
	// OnVerdict observes verdicts relayed into the channel.
	OnVerdict func(wire.Verdict)
}

type Client struct {
	opts Options

	conn    *websocket.Conn
	writeMu sync.Mutex

	orch     *peer.Orchestrator
	detector *detect.Client

	ctx    context.Context
	cancel context.CancelFunc
}

func New(opts Options) *Client {
	if opts.ChunkLen <= 0 {
		opts.ChunkLen = 3 * time.Second
	}
	c := &Client{opts: opts}
	if opts.DetectorURL != "" {
		c.detector = detect.NewClient(opts.DetectorURL)
	}
	c.orch = peer.NewOrchestrator(c.newConnection, (*signaler)(c), opts.Media)
	return c
}

// Run connects, registers, joins the channel and serves the signaling loop
// until ctx is done or the connection drops. Teardown closes every peer
// handle before the signaling socket.
func (c *Client) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.ctx, c.cancel = ctx, cancel
	defer c.orch.Close()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.opts.ServerURL, nil)
	if err != nil {
		return fmt.Errorf("dial signaling server: %w", err)
	}
	c.conn = conn

	if err := c.writeJSON(wire.Register{
		Type:     wire.TypeRegister,
		UserID:   c.opts.UserID,
		Username: c.opts.Username,
	}); err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("signaling read: %w", err)
		}
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	typ, err := wire.Sniff(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "client").Msg("bad signaling message")
		return
	}

	switch typ {
	case wire.TypeRegistered:
		var p wire.Registered
		if err := json.Unmarshal(data, &p); err != nil {
			return
		}
		log.Info().Str("module", "client").Str("user", p.UserID).Msg("registered")
		if c.opts.Channel != "" {
			_ = c.writeJSON(wire.Join{Type: wire.TypeJoin, Channel: c.opts.Channel})
		}

	case wire.TypeAddPeer:
		var p wire.AddPeer
		if err := json.Unmarshal(data, &p); err != nil {
			return
		}
		if err := c.orch.AddPeer(domain.UserID(p.PeerID), p.Initiator); err != nil {
			log.Error().Err(err).Str("module", "client").Str("peer", p.PeerID).Msg("add-peer failed")
		}

	case wire.TypeRemovePeer:
		var p wire.RemovePeer
		if err := json.Unmarshal(data, &p); err != nil {
			return
		}
		c.orch.RemovePeer(domain.UserID(p.PeerID))

	case wire.TypeOffer, wire.TypeAnswer:
		var p wire.Description
		if err := json.Unmarshal(data, &p); err != nil {
			return
		}
		sdpType := webrtc.SDPTypeOffer
		if p.Type == wire.TypeAnswer {
			sdpType = webrtc.SDPTypeAnswer
		}
		desc := webrtc.SessionDescription{Type: sdpType, SDP: p.SDP}
		if err := c.orch.ApplyDescription(domain.UserID(p.PeerID), desc); err != nil {
			log.Warn().Err(err).Str("module", "client").Str("peer", p.PeerID).Msg("description rejected")
		}

	case wire.TypeCandidate:
		var p wire.Candidate
		if err := json.Unmarshal(data, &p); err != nil {
			return
		}
		cand := webrtc.ICECandidateInit{Candidate: p.Candidate}
		if p.SDPMid != "" {
			mid := p.SDPMid
			cand.SDPMid = &mid
		}
		cand.SDPMLineIndex = p.SDPMLineIndex
		if err := c.orch.ApplyCandidate(domain.UserID(p.PeerID), cand); err != nil {
			log.Warn().Err(err).Str("module", "client").Str("peer", p.PeerID).Msg("candidate rejected")
		}

	case wire.TypeVerdict:
		var p wire.Verdict
		if err := json.Unmarshal(data, &p); err != nil {
			return
		}
		if c.opts.OnVerdict != nil {
			c.opts.OnVerdict(p)
		}

	case wire.TypeError:
		var p wire.Error
		if err := json.Unmarshal(data, &p); err != nil {
			return
		}
		log.Warn().Str("module", "client").Str("code", p.Code).Str("reason", p.Reason).Msg("server error event")

	case wire.TypeUserOnline, wire.TypeUserOffline, wire.TypePong:
		// Presence chatter; nothing for a headless endpoint to do.

	default:
		log.Debug().Str("module", "client").Str("type", typ).Msg("unhandled signal")
	}
}

// newConnection allocates the underlying connection for one remote peer and
// hooks its local candidates and remote tracks.
func (c *Client) newConnection(remote domain.UserID) (peer.Connection, error) {
	wc, err := rtc.NewWebRTCConnection(rtc.DefaultWebRTCConfig(c.opts.STUNServers), remote)
	if err != nil {
		return nil, err
	}

	wc.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		if err := (*signaler)(c).SendCandidate(remote, ci); err != nil {
			log.Warn().Err(err).Str("module", "client").Str("peer", string(remote)).Msg("candidate not sent")
		}
	})
	wc.OnTrack(func(trackCtx context.Context, track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if c.detector == nil {
			return
		}
		tap := detect.NewTap(c.detector, c.opts.ChunkLen, func(v domain.Verdict) {
			c.sendVerdict(remote, v)
		})
		go func() {
			if err := tap.Run(trackCtx, track); err != nil {
				log.Warn().Err(err).Str("module", "client").Str("peer", string(remote)).Msg("tap stopped")
			}
		}()
	})

	if err := wc.Start(c.ctx); err != nil {
		_ = wc.Close()
		return nil, err
	}
	return wc, nil
}

func (c *Client) sendVerdict(analyzed domain.UserID, v domain.Verdict) {
	err := c.writeJSON(wire.Verdict{
		Type:       wire.TypeVerdict,
		Channel:    c.opts.Channel,
		UserID:     string(analyzed),
		Label:      v.Label,
		Confidence: v.Confidence,
	})
	if err != nil {
		log.Warn().Err(err).Str("module", "client").Msg("verdict not sent")
	}
}

func (c *Client) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

// signaler adapts the client to the orchestrator's outbound surface.
type signaler Client

func (s *signaler) SendDescription(remote domain.UserID, desc webrtc.SessionDescription) error {
	typ := wire.TypeOffer
	if desc.Type == webrtc.SDPTypeAnswer {
		typ = wire.TypeAnswer
	}
	return (*Client)(s).writeJSON(wire.Description{
		Type:    typ,
		Channel: s.opts.Channel,
		PeerID:  string(remote),
		SDP:     desc.SDP,
	})
}

func (s *signaler) SendCandidate(remote domain.UserID, cand webrtc.ICECandidateInit) error {
	msg := wire.Candidate{
		Type:      wire.TypeCandidate,
		Channel:   s.opts.Channel,
		PeerID:    string(remote),
		Candidate: cand.Candidate,
	}
	if cand.SDPMid != nil {
		msg.SDPMid = *cand.SDPMid
	}
	msg.SDPMLineIndex = cand.SDPMLineIndex
	return (*Client)(s).writeJSON(msg)
}

func (s *signaler) Close() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.conn != nil {
		_ = s.conn.Close()
	}
}

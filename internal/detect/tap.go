package detect

import (
	"context"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/frostbyte/callguard/internal/domain"
)

// Tap reads RTP from a remote track, cuts the payload stream into
// time-boxed chunks and ships each chunk to the analysis service. Verdicts
// come back through the callback so the caller can relay them.
type Tap struct {
	client    *Client
	chunkLen  time.Duration
	onVerdict func(domain.Verdict)

	buf       []byte
	chunkFrom time.Time
}

func NewTap(client *Client, chunkLen time.Duration, onVerdict func(domain.Verdict)) *Tap {
	return &Tap{
		client:    client,
		chunkLen:  chunkLen,
		onVerdict: onVerdict,
	}
}

// Run consumes the track until ctx is done or the track errors out.
// Analysis requests run off the read loop; a slow detector never stalls the
// media path.
func (t *Tap) Run(ctx context.Context, track *webrtc.TrackRemote) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(3)

	t.chunkFrom = time.Now()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "detect").Msg("tap ctx done")
			return g.Wait()
		default:
		}
		pkt, _, err := track.ReadRTP()
		if err != nil {
			log.Warn().Str("module", "detect").Err(err).Msg("tap read RTP error, stopping")
			return g.Wait()
		}
		if chunk := t.cut(pkt); chunk != nil {
			t.dispatch(ctx, g, chunk)
		}
	}
}

// cut appends the packet payload and returns a finished chunk once the
// chunk window has elapsed.
func (t *Tap) cut(pkt *rtp.Packet) []byte {
	t.buf = append(t.buf, pkt.Payload...)
	if time.Since(t.chunkFrom) < t.chunkLen {
		return nil
	}
	chunk := t.buf
	t.buf = nil
	t.chunkFrom = time.Now()
	return chunk
}

// dispatch hands a chunk to the analysis pool without blocking the read
// loop: when every worker is busy the chunk is dropped, not queued.
func (t *Tap) dispatch(ctx context.Context, g *errgroup.Group, chunk []byte) bool {
	ok := g.TryGo(func() error {
		t.analyze(ctx, chunk)
		return nil
	})
	if !ok {
		log.Warn().Str("module", "detect").Int("bytes", len(chunk)).Msg("analysis saturated, chunk dropped")
	}
	return ok
}

func (t *Tap) analyze(ctx context.Context, chunk []byte) {
	v, err := t.client.Analyze(ctx, chunk)
	if err != nil {
		log.Warn().Str("module", "detect").Err(err).Msg("analysis failed, chunk dropped")
		return
	}
	log.Debug().Str("module", "detect").Str("label", v.Label).Float64("confidence", v.Confidence).Msg("verdict")
	if t.onVerdict != nil {
		t.onVerdict(v)
	}
}

package detect

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pion/rtp"
	"golang.org/x/sync/errgroup"
)

func TestDispatchDropsWhenSaturated(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		io.WriteString(w, `{"label":"REAL","confidence":0.5}`)
	}))
	defer srv.Close()

	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(1)

	tp := NewTap(NewClient(srv.URL), time.Second, nil)
	if !tp.dispatch(ctx, g, []byte("chunk-1")) {
		t.Fatal("first chunk should occupy the worker")
	}
	// The worker is stuck in the detector; the next chunk must be dropped
	// immediately instead of stalling the caller.
	if tp.dispatch(ctx, g, []byte("chunk-2")) {
		t.Fatal("saturated pool should drop, not queue")
	}

	close(release)
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if !tp.dispatch(ctx, g, []byte("chunk-3")) {
		t.Fatal("freed worker should accept again")
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestCutTimeBoxesChunks(t *testing.T) {
	tap := NewTap(nil, time.Hour, nil)
	tap.chunkFrom = time.Now()

	if got := tap.cut(&rtp.Packet{Payload: []byte("aa")}); got != nil {
		t.Fatalf("window still open, got chunk %q", got)
	}
	if got := tap.cut(&rtp.Packet{Payload: []byte("bb")}); got != nil {
		t.Fatalf("window still open, got chunk %q", got)
	}

	// Expire the window; the next packet closes the chunk.
	tap.chunkFrom = time.Now().Add(-2 * time.Hour)
	got := tap.cut(&rtp.Packet{Payload: []byte("cc")})
	if string(got) != "aabbcc" {
		t.Fatalf("chunk should carry the accumulated payload, got %q", got)
	}
	if tap.buf != nil {
		t.Fatal("buffer must reset after a cut")
	}
}

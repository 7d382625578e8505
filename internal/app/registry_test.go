package app

import (
	"sync"
	"testing"

	"github.com/frostbyte/callguard/internal/core"
	"github.com/frostbyte/callguard/internal/domain"
)

// fakeConn is an in-memory SignalConnection recording delivered frames.
type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	closed bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func TestRegisterLastWriteWins(t *testing.T) {
	reg := NewRegistry()

	first := &fakeConn{}
	ident, superseded, err := reg.Register("conn-1", "1", "alice", first)
	if err != nil {
		t.Fatal(err)
	}
	if superseded != nil {
		t.Fatal("first registration should supersede nothing")
	}
	if ident.ID != "1" || ident.DisplayName != "alice" {
		t.Fatalf("unexpected identity: %+v", ident)
	}

	second := &fakeConn{}
	ident2, superseded, err := reg.Register("conn-2", "1", "alice the great", second)
	if err != nil {
		t.Fatal(err)
	}
	if superseded == nil {
		t.Fatal("second registration must supersede the first connection")
	}
	if ident2.DisplayName != "alice the great" {
		t.Fatal("display name should be last-write-wins")
	}

	sess, ok := reg.Session("1")
	if !ok {
		t.Fatal("identity should be online")
	}
	if err := sess.Signal().TrySend(core.Frame("hi")); err != nil {
		t.Fatal(err)
	}
	if second.count() != 1 || first.count() != 0 {
		t.Fatal("live session must be bound to the most recent connection")
	}

	// The superseded connection's disconnect must not knock the new one offline.
	if _, ok := reg.Unregister("conn-1"); ok {
		t.Fatal("stale unregister should be a no-op")
	}
	if _, ok := reg.Session("1"); !ok {
		t.Fatal("identity went offline after stale unregister")
	}

	if _, ok := reg.Unregister("conn-2"); !ok {
		t.Fatal("current unregister should remove presence")
	}
	if _, ok := reg.Session("1"); ok {
		t.Fatal("absence of a presence record is the offline signal")
	}
	if _, ok := reg.Lookup("1"); !ok {
		t.Fatal("identity record must survive disconnect")
	}
}

func TestRegisterMintsIdentity(t *testing.T) {
	reg := NewRegistry()
	ident, _, err := reg.Register("conn-1", "", "bob", &fakeConn{})
	if err != nil {
		t.Fatal(err)
	}
	if ident.ID == "" {
		t.Fatal("expected a minted identity id")
	}
	if _, _, err := reg.Register("conn-2", "", "", &fakeConn{}); err == nil {
		t.Fatal("empty display name must be rejected")
	}
}

func TestSearchByPrefix(t *testing.T) {
	reg := NewRegistry()
	names := []string{"alice", "Albert", "bob", "alina", "ALF"}
	for i, n := range names {
		if _, _, err := reg.Register(core.ClientID(rune('a'+i)), domain.UserID(n), n, &fakeConn{}); err != nil {
			t.Fatal(err)
		}
	}

	got := reg.SearchByPrefix("al", 10)
	if len(got) != 4 {
		t.Fatalf("expected 4 case-insensitive prefix matches, got %d", len(got))
	}
	bounded := reg.SearchByPrefix("al", 2)
	if len(bounded) != 2 {
		t.Fatalf("expected bounded result of 2, got %d", len(bounded))
	}
	if len(reg.SearchByPrefix("zzz", 10)) != 0 {
		t.Fatal("expected no matches")
	}
}

func TestBroadcastExcept(t *testing.T) {
	reg := NewRegistry()
	a, b, c := &fakeConn{}, &fakeConn{}, &fakeConn{}
	reg.Register("ca", "1", "alice", a)
	reg.Register("cb", "2", "bob", b)
	reg.Register("cc", "3", "carol", c)

	reg.BroadcastExcept("1", core.Frame(`{"type":"user-online"}`))
	if a.count() != 0 {
		t.Fatal("sender must not receive its own broadcast")
	}
	if b.count() != 1 || c.count() != 1 {
		t.Fatal("all other online identities must receive the broadcast")
	}

	stats := reg.Stats()
	if stats.TotalUsers != 3 || stats.OnlineUsers != 3 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

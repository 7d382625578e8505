package peer

import (
	"errors"
	"sync"
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/frostbyte/callguard/internal/domain"
)

type fakeConn struct {
	mu         sync.Mutex
	remote     webrtc.SessionDescription
	remoteSet  bool
	candidates []string
	tracks     int
	offers     int
	answers    int
	closed     bool

	failOffer error
}

func (c *fakeConn) CreateOffer() (webrtc.SessionDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failOffer != nil {
		return webrtc.SessionDescription{}, c.failOffer
	}
	c.offers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "local-offer"}, nil
}

func (c *fakeConn) CreateAnswer() (webrtc.SessionDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.answers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "local-answer"}, nil
}

func (c *fakeConn) SetRemoteDescription(desc webrtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remote = desc
	c.remoteSet = true
	return nil
}

func (c *fakeConn) AddICECandidate(cand webrtc.ICECandidateInit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.candidates = append(c.candidates, cand.Candidate)
	return nil
}

func (c *fakeConn) AddTrack(webrtc.TrackLocal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracks++
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

type sent struct {
	remote domain.UserID
	desc   webrtc.SessionDescription
}

type fakeSignaler struct {
	mu     sync.Mutex
	descs  []sent
	cands  []string
	closed bool
}

func (s *fakeSignaler) SendDescription(remote domain.UserID, desc webrtc.SessionDescription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.descs = append(s.descs, sent{remote: remote, desc: desc})
	return nil
}

func (s *fakeSignaler) SendCandidate(remote domain.UserID, cand webrtc.ICECandidateInit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cands = append(s.cands, cand.Candidate)
	return nil
}

func (s *fakeSignaler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

type fakeMedia struct {
	mu     sync.Mutex
	closed bool
}

func (m *fakeMedia) Tracks() []webrtc.TrackLocal { return nil }
func (m *fakeMedia) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

func newFixture() (*Orchestrator, *fakeSignaler, map[domain.UserID]*fakeConn) {
	conns := make(map[domain.UserID]*fakeConn)
	sig := &fakeSignaler{}
	orch := NewOrchestrator(func(remote domain.UserID) (Connection, error) {
		c := &fakeConn{}
		conns[remote] = c
		return c, nil
	}, sig, nil)
	return orch, sig, conns
}

func TestInitiatorSendsOffer(t *testing.T) {
	orch, sig, conns := newFixture()

	if err := orch.AddPeer("bob", true); err != nil {
		t.Fatal(err)
	}
	if len(sig.descs) != 1 || sig.descs[0].remote != "bob" || sig.descs[0].desc.Type != webrtc.SDPTypeOffer {
		t.Fatalf("expected one offer to bob, got %+v", sig.descs)
	}
	if conns["bob"].offers != 1 {
		t.Fatal("offer should come from the bob handle")
	}

	// Second directive for the same pair must be a no-op.
	if err := orch.AddPeer("bob", true); err != nil {
		t.Fatal(err)
	}
	if len(sig.descs) != 1 {
		t.Fatal("duplicate directive produced a second offer")
	}
	if len(orch.Peers()) != 1 {
		t.Fatal("duplicate directive created a second handle")
	}
}

func TestNonInitiatorWaits(t *testing.T) {
	orch, sig, conns := newFixture()

	if err := orch.AddPeer("bob", false); err != nil {
		t.Fatal(err)
	}
	if len(sig.descs) != 0 {
		t.Fatal("non-initiator must not offer")
	}

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "remote-offer"}
	if err := orch.ApplyDescription("bob", offer); err != nil {
		t.Fatal(err)
	}
	if len(sig.descs) != 1 || sig.descs[0].desc.Type != webrtc.SDPTypeAnswer {
		t.Fatalf("remote offer should produce an answer, got %+v", sig.descs)
	}
	if conns["bob"].remote.SDP != "remote-offer" {
		t.Fatal("remote description not installed")
	}
}

func TestAnswerProducesNoReply(t *testing.T) {
	orch, sig, _ := newFixture()
	orch.AddPeer("bob", true)

	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "remote-answer"}
	if err := orch.ApplyDescription("bob", answer); err != nil {
		t.Fatal(err)
	}
	// One offer from AddPeer, nothing for the answer.
	if len(sig.descs) != 1 {
		t.Fatalf("answer must not be answered, got %+v", sig.descs)
	}
}

func TestCandidatesDrainInOrderAfterDescription(t *testing.T) {
	orch, _, conns := newFixture()

	// Candidates may arrive before the handle exists at all.
	for _, c := range []string{"c1", "c2", "c3"} {
		if err := orch.ApplyCandidate("bob", webrtc.ICECandidateInit{Candidate: c}); err != nil {
			t.Fatal(err)
		}
	}
	bob := conns["bob"]
	if len(bob.candidates) != 0 {
		t.Fatal("candidates must be held until the remote description")
	}

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "remote-offer"}
	if err := orch.ApplyDescription("bob", offer); err != nil {
		t.Fatal(err)
	}
	if len(bob.candidates) != 3 || bob.candidates[0] != "c1" || bob.candidates[1] != "c2" || bob.candidates[2] != "c3" {
		t.Fatalf("queue must drain once, in receipt order: %v", bob.candidates)
	}

	// Late candidates now apply immediately.
	orch.ApplyCandidate("bob", webrtc.ICECandidateInit{Candidate: "c4"})
	if len(bob.candidates) != 4 || bob.candidates[3] != "c4" {
		t.Fatalf("post-description candidate not applied: %v", bob.candidates)
	}
}

func TestRenegotiationTearsDownHandle(t *testing.T) {
	orch, _, conns := newFixture()
	orch.AddPeer("bob", false)

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "remote-offer"}
	if err := orch.ApplyDescription("bob", offer); err != nil {
		t.Fatal(err)
	}
	err := orch.ApplyDescription("bob", offer)
	if !errors.Is(err, ErrUnexpectedRenegotiation) {
		t.Fatalf("want ErrUnexpectedRenegotiation, got %v", err)
	}
	if !conns["bob"].closed {
		t.Fatal("offending handle should be torn down")
	}
	if len(orch.Peers()) != 0 {
		t.Fatal("torn-down handle still registered")
	}
}

func TestRemovePeerIdempotent(t *testing.T) {
	orch, _, conns := newFixture()
	orch.AddPeer("bob", false)

	orch.RemovePeer("bob")
	if !conns["bob"].closed {
		t.Fatal("handle not closed")
	}
	orch.RemovePeer("bob")
	orch.RemovePeer("never-joined")
}

func TestOfferFailureReleasesHandle(t *testing.T) {
	sig := &fakeSignaler{}
	boom := errors.New("boom")
	orch := NewOrchestrator(func(domain.UserID) (Connection, error) {
		return &fakeConn{failOffer: boom}, nil
	}, sig, nil)

	if err := orch.AddPeer("bob", true); !errors.Is(err, boom) {
		t.Fatalf("want wrapped offer error, got %v", err)
	}
	if len(orch.Peers()) != 0 {
		t.Fatal("failed handle should not linger")
	}
}

func TestCloseOrderAndFinality(t *testing.T) {
	conns := make(map[domain.UserID]*fakeConn)
	sig := &fakeSignaler{}
	media := &fakeMedia{}
	orch := NewOrchestrator(func(remote domain.UserID) (Connection, error) {
		c := &fakeConn{}
		conns[remote] = c
		return c, nil
	}, sig, media)
	orch.AddPeer("bob", false)
	orch.AddPeer("carol", false)

	orch.Close()
	for id, c := range conns {
		if !c.closed {
			t.Fatalf("handle %s survived Close", id)
		}
	}
	if !media.closed || !sig.closed {
		t.Fatal("media and signaling must be released")
	}

	if err := orch.AddPeer("dave", true); err == nil {
		t.Fatal("closed orchestrator must refuse new handles")
	}
	orch.Close()
}

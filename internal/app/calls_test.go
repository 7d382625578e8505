package app

import (
	"errors"
	"testing"
	"time"

	"github.com/frostbyte/callguard/internal/domain"
)

func newCallFixture(t *testing.T) (*CallManager, *Registry, *fakeConn, *fakeConn) {
	t.Helper()
	reg := NewRegistry()
	alice, bob := &fakeConn{}, &fakeConn{}
	if _, _, err := reg.Register("ca", "1", "alice", alice); err != nil {
		t.Fatal(err)
	}
	if _, _, err := reg.Register("cb", "2", "bob", bob); err != nil {
		t.Fatal(err)
	}
	return NewCallManager(reg, 0), reg, alice, bob
}

func TestInitiateTargetErrors(t *testing.T) {
	calls, reg, _, _ := newCallFixture(t)

	if _, _, err := calls.Initiate("1", "nobody"); !errors.Is(err, ErrTargetUnknown) {
		t.Fatalf("want ErrTargetUnknown, got %v", err)
	}

	// Known but offline: identity survives disconnect, presence does not.
	reg.Unregister("cb")
	if _, _, err := calls.Initiate("1", "2"); !errors.Is(err, ErrTargetUnreachable) {
		t.Fatalf("want ErrTargetUnreachable, got %v", err)
	}
	if calls.Active() != 0 {
		t.Fatal("failed initiation must not leave a record")
	}
}

func TestAcceptMovesCallActive(t *testing.T) {
	calls, _, _, _ := newCallFixture(t)

	sess, calleeSess, err := calls.Initiate("1", "2")
	if err != nil {
		t.Fatal(err)
	}
	if sess.State != domain.CallRinging || calleeSess == nil {
		t.Fatalf("unexpected initiate result: %+v", sess)
	}

	// Only the callee may respond, and only while ringing.
	if _, _, err := calls.Respond(sess.ID, "1", true); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("caller respond should be rejected, got %v", err)
	}
	if _, _, err := calls.Respond("no-such-call", "2", true); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("unknown call respond should be rejected, got %v", err)
	}

	accepted, callerSess, err := calls.Respond(sess.ID, "2", true)
	if err != nil {
		t.Fatal(err)
	}
	if accepted.State != domain.CallActive || callerSess == nil {
		t.Fatalf("accept should activate the call: %+v", accepted)
	}

	// A second respond hits a non-ringing session.
	if _, _, err := calls.Respond(sess.ID, "2", true); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("double respond should be rejected, got %v", err)
	}
}

func TestRejectReleasesRecord(t *testing.T) {
	calls, _, _, _ := newCallFixture(t)

	sess, _, err := calls.Initiate("1", "2")
	if err != nil {
		t.Fatal(err)
	}
	rejected, callerSess, err := calls.Respond(sess.ID, "2", false)
	if err != nil {
		t.Fatal(err)
	}
	if callerSess == nil {
		t.Fatal("caller session needed for the rejection notice")
	}
	if rejected.State != domain.CallRinging {
		t.Fatalf("rejected snapshot should show the pre-release state: %v", rejected.State)
	}
	if calls.Active() != 0 {
		t.Fatal("reject must release the record")
	}
	if _, err := calls.Counterparty(sess.ID, "1"); !errors.Is(err, ErrInvalidSession) {
		t.Fatal("relay against a released call must fail")
	}
}

func TestCounterpartyRouting(t *testing.T) {
	calls, reg, _, _ := newCallFixture(t)

	sess, _, err := calls.Initiate("1", "2")
	if err != nil {
		t.Fatal(err)
	}
	calls.Respond(sess.ID, "2", true)

	peer, err := calls.Counterparty(sess.ID, "1")
	if err != nil {
		t.Fatal(err)
	}
	if peer.Meta().ID != "2" {
		t.Fatalf("caller's counterparty should be the callee, got %v", peer.Meta().ID)
	}
	peer, err = calls.Counterparty(sess.ID, "2")
	if err != nil {
		t.Fatal(err)
	}
	if peer.Meta().ID != "1" {
		t.Fatalf("callee's counterparty should be the caller, got %v", peer.Meta().ID)
	}

	if _, err := calls.Counterparty(sess.ID, "3"); !errors.Is(err, ErrInvalidSession) {
		t.Fatal("non-party relay must be rejected")
	}

	// Counter-party offline: drop, never queue.
	reg.Unregister("cb")
	if _, err := calls.Counterparty(sess.ID, "1"); !errors.Is(err, ErrRelayDropped) {
		t.Fatalf("want ErrRelayDropped, got %v", err)
	}
}

func TestParticipantsPartyOnly(t *testing.T) {
	calls, reg, _, _ := newCallFixture(t)
	if _, _, err := reg.Register("cc", "3", "mallory", &fakeConn{}); err != nil {
		t.Fatal(err)
	}

	sess, _, err := calls.Initiate("1", "2")
	if err != nil {
		t.Fatal(err)
	}
	calls.Respond(sess.ID, "2", true)

	for _, party := range []domain.UserID{"1", "2"} {
		got, err := calls.Participants(sess.ID, party)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 2 {
			t.Fatalf("expected both parties, got %d", len(got))
		}
	}

	// A registered outsider must not be able to fan into the call.
	if _, err := calls.Participants(sess.ID, "3"); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("non-party fan-out should be rejected, got %v", err)
	}
	if _, err := calls.Participants("no-such-call", "1"); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("unknown call fan-out should be rejected, got %v", err)
	}
}

func TestEndNotifiesBothParties(t *testing.T) {
	calls, _, _, _ := newCallFixture(t)

	sess, _, err := calls.Initiate("1", "2")
	if err != nil {
		t.Fatal(err)
	}
	calls.Respond(sess.ID, "2", true)

	ended, err := calls.End(sess.ID, "1")
	if err != nil {
		t.Fatal(err)
	}
	if len(ended.Notify) != 2 {
		t.Fatalf("both parties should be notified, got %d", len(ended.Notify))
	}
	if calls.Active() != 0 {
		t.Fatal("end must release the record")
	}
	if _, err := calls.End(sess.ID, "1"); !errors.Is(err, ErrInvalidSession) {
		t.Fatal("ending twice must fail")
	}
}

func TestEndAllForDisconnect(t *testing.T) {
	calls, reg, _, _ := newCallFixture(t)
	if _, _, err := reg.Register("cc", "3", "carol", &fakeConn{}); err != nil {
		t.Fatal(err)
	}

	s1, _, _ := calls.Initiate("1", "2")
	calls.Respond(s1.ID, "2", true)
	calls.Initiate("3", "1")

	ended := calls.EndAllFor("1")
	if len(ended) != 2 {
		t.Fatalf("every call involving the identity should end, got %d", len(ended))
	}
	for _, e := range ended {
		if len(e.Notify) != 1 {
			t.Fatalf("only the surviving peer should be notified, got %d", len(e.Notify))
		}
	}
	if calls.Active() != 0 {
		t.Fatal("no records should survive the disconnect sweep")
	}
}

func TestRingTimeout(t *testing.T) {
	reg := NewRegistry()
	reg.Register("ca", "1", "alice", &fakeConn{})
	reg.Register("cb", "2", "bob", &fakeConn{})
	calls := NewCallManager(reg, 20*time.Millisecond)

	fired := make(chan Ended, 1)
	calls.OnRingTimeout = func(e Ended) { fired <- e }

	sess, _, err := calls.Initiate("1", "2")
	if err != nil {
		t.Fatal(err)
	}

	select {
	case e := <-fired:
		if e.Call.ID != sess.ID {
			t.Fatalf("timeout for wrong call: %v", e.Call.ID)
		}
		if len(e.Notify) != 1 {
			t.Fatalf("only the caller should be notified, got %d", len(e.Notify))
		}
	case <-time.After(time.Second):
		t.Fatal("ring timer never fired")
	}
	if calls.Active() != 0 {
		t.Fatal("expired invite must be released")
	}

	// Accept stops the timer; the callback must stay silent.
	sess2, _, _ := calls.Initiate("1", "2")
	if _, _, err := calls.Respond(sess2.ID, "2", true); err != nil {
		t.Fatal(err)
	}
	select {
	case <-fired:
		t.Fatal("timer fired for an accepted call")
	case <-time.After(60 * time.Millisecond):
	}
}

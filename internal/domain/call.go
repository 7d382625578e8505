package domain

import "time"

type CallID string

// CallState is the lifecycle of one leg of a 1:1 call.
type CallState int

const (
	CallIdle CallState = iota
	CallCalling
	CallRinging
	CallActive
	CallEnded
	CallError
)

func (s CallState) String() string {
	switch s {
	case CallIdle:
		return "idle"
	case CallCalling:
		return "calling"
	case CallRinging:
		return "ringing"
	case CallActive:
		return "active"
	case CallEnded:
		return "ended"
	case CallError:
		return "error"
	default:
		return "unknown"
	}
}

// CallSession is the server-side record of a 1:1 call. The server owns it
// while pending; once both legs are directly connected it is advisory and
// only used for relay routing and cleanup.
type CallSession struct {
	ID        CallID
	Caller    UserID
	Callee    UserID
	State     CallState
	CreatedAt time.Time
}

// Peer returns the counter-party of id, or "" if id is not part of the call.
func (c *CallSession) Peer(id UserID) UserID {
	switch id {
	case c.Caller:
		return c.Callee
	case c.Callee:
		return c.Caller
	default:
		return ""
	}
}

// Involves reports whether id is one of the two parties.
func (c *CallSession) Involves(id UserID) bool {
	return id == c.Caller || id == c.Callee
}

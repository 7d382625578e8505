package core

import "github.com/frostbyte/callguard/internal/domain"

// ClientID identifies one physical client connection, not an identity.
// A reconnecting identity gets a fresh ClientID and supersedes the old one.
type ClientID string

// ClientSession binds domain.Identity and its transport endpoint.
// This is what the registry stores and the relay fans out to.
type ClientSession interface {
	Meta() *domain.Identity
	Signal() SignalConnection
}

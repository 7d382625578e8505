package core

import "github.com/frostbyte/callguard/internal/domain"

// clientSession implements ClientSession by pairing meta + transport.
type clientSession struct {
	meta *domain.Identity
	conn SignalConnection
}

func NewClientSession(meta *domain.Identity, conn SignalConnection) ClientSession {
	return &clientSession{meta: meta, conn: conn}
}

func (s *clientSession) Meta() *domain.Identity   { return s.meta }
func (s *clientSession) Signal() SignalConnection { return s.conn }

package slots

import (
	"crypto/tls"
	"net"
	"time"
)

// entry is the pool's record for one position.
type entry struct {
	inUse      bool
	attached   bool
	generation uint64

	conn     net.Conn
	tlsConn  *tls.Conn
	peer     string
	session  string
	acquired time.Time
}

// reset clears everything a previous occupant left behind.
func (e *entry) reset() {
	e.attached = false
	e.conn = nil
	e.tlsConn = nil
	e.peer = ""
	e.session = ""
	e.acquired = time.Time{}
}

// Slot is the handle for one admitted connection. It is only meaningful
// between the Acquire that returned it and the matching Release; once
// released every accessor reports an empty slot.
type Slot struct {
	pool       *Pool
	index      int
	generation uint64
	session    string
	acquired   time.Time
}

// Index returns the slot's position in the pool.
func (s *Slot) Index() int {
	return s.index
}

// Generation returns the acquisition counter this handle was issued under.
func (s *Slot) Generation() uint64 {
	return s.generation
}

// SessionID returns the identifier assigned at acquisition.
func (s *Slot) SessionID() string {
	return s.session
}

// Acquired returns when the slot was handed out.
func (s *Slot) Acquired() time.Time {
	return s.acquired
}

// Attach records the accepted transport and counts the slot as active. It
// reports false when the handle is stale.
func (s *Slot) Attach(conn net.Conn) bool {
	s.pool.mu.Lock()
	defer s.pool.mu.Unlock()
	e := s.pool.ownedLocked(s)
	if e == nil {
		return false
	}
	switch {
	case conn != nil && !e.attached:
		s.pool.active++
	case conn == nil && e.attached:
		s.pool.active--
	}
	e.attached = conn != nil
	e.conn = conn
	if conn != nil && conn.RemoteAddr() != nil {
		e.peer = conn.RemoteAddr().String()
	}
	return true
}

// AttachTLS records the secure session layered over the transport.
func (s *Slot) AttachTLS(conn *tls.Conn) bool {
	s.pool.mu.Lock()
	defer s.pool.mu.Unlock()
	e := s.pool.ownedLocked(s)
	if e == nil {
		return false
	}
	e.tlsConn = conn
	return true
}

// Conn returns the transport, or nil before Attach or after Release.
func (s *Slot) Conn() net.Conn {
	s.pool.mu.Lock()
	defer s.pool.mu.Unlock()
	if e := s.pool.ownedLocked(s); e != nil {
		return e.conn
	}
	return nil
}

// TLS returns the secure session, or nil for plaintext connections.
func (s *Slot) TLS() *tls.Conn {
	s.pool.mu.Lock()
	defer s.pool.mu.Unlock()
	if e := s.pool.ownedLocked(s); e != nil {
		return e.tlsConn
	}
	return nil
}

// Peer returns the remote address recorded by Attach.
func (s *Slot) Peer() string {
	s.pool.mu.Lock()
	defer s.pool.mu.Unlock()
	if e := s.pool.ownedLocked(s); e != nil {
		return e.peer
	}
	return ""
}

// Release returns the slot to its pool. See Pool.Release.
func (s *Slot) Release() bool {
	return s.pool.Release(s)
}

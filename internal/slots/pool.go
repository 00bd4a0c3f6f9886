package slots

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// ErrExhausted is returned by Acquire when every slot is in use. It is
// expected backpressure, not a failure.
var ErrExhausted = errors.New("connection slots exhausted")

// Pool is a fixed-capacity set of connection slots.
type Pool struct {
	mu      sync.Mutex
	entries []entry
	inUse   int
	active  int
	next    int
	now     func() time.Time
}

// Info describes one occupied slot. Attached is false for a slot reserved
// ahead of Accept.
type Info struct {
	Index      int
	Attached   bool
	Generation uint64
	SessionID  string
	Peer       string
	Secure     bool
	Acquired   time.Time
}

// New creates a pool with room for capacity simultaneous connections.
func New(capacity int) (*Pool, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("slot pool capacity must be positive, got %d", capacity)
	}
	return &Pool{
		entries: make([]entry, capacity),
		now:     time.Now,
	}, nil
}

// Capacity returns the fixed number of slots.
func (p *Pool) Capacity() int {
	return len(p.entries)
}

// InUse returns the number of occupied slots, including reservations that
// have no transport attached yet.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inUse
}

// Active returns the number of slots holding an attached transport.
func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Acquire claims a free slot. It returns ErrExhausted without blocking when
// the pool is full.
func (p *Pool) Acquire() (*Slot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.inUse == len(p.entries) {
		return nil, ErrExhausted
	}

	// Round-robin from the last position so recently freed slots rest.
	for i := 0; i < len(p.entries); i++ {
		idx := (p.next + i) % len(p.entries)
		e := &p.entries[idx]
		if e.inUse {
			continue
		}

		e.reset()
		e.inUse = true
		e.generation++
		e.session = uuid.NewString()
		e.acquired = p.now()
		p.inUse++
		p.next = (idx + 1) % len(p.entries)

		return &Slot{
			pool:       p,
			index:      idx,
			generation: e.generation,
			session:    e.session,
			acquired:   e.acquired,
		}, nil
	}

	// inUse disagrees with the entries; treat as full rather than corrupt state.
	return nil, ErrExhausted
}

// Release frees the slot. It reports false for a nil, foreign, stale or
// already released handle and leaves the pool untouched in that case.
// Release does not close the transport.
func (p *Pool) Release(s *Slot) bool {
	if s == nil {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	e := p.ownedLocked(s)
	if e == nil {
		return false
	}
	if e.attached {
		p.active--
	}
	e.reset()
	e.inUse = false
	p.inUse--
	return true
}

// Snapshot returns the occupied slots ordered by index.
func (p *Pool) Snapshot() []Info {
	p.mu.Lock()
	defer p.mu.Unlock()

	infos := make([]Info, 0, p.inUse)
	for i := range p.entries {
		e := &p.entries[i]
		if !e.inUse {
			continue
		}
		infos = append(infos, Info{
			Index:      i,
			Attached:   e.attached,
			Generation: e.generation,
			SessionID:  e.session,
			Peer:       e.peer,
			Secure:     e.tlsConn != nil,
			Acquired:   e.acquired,
		})
	}
	return infos
}

// CloseAll closes every attached transport and returns how many were
// closed. Slots stay occupied until their owners release them.
func (p *Pool) CloseAll() (int, error) {
	p.mu.Lock()
	conns := make([]net.Conn, 0, p.inUse)
	for i := range p.entries {
		e := &p.entries[i]
		if !e.inUse {
			continue
		}
		// The raw transport is closed so no close_notify write can block.
		if e.conn != nil {
			conns = append(conns, e.conn)
		} else if e.tlsConn != nil {
			conns = append(conns, e.tlsConn)
		}
	}
	p.mu.Unlock()

	var err error
	for _, conn := range conns {
		if cerr := conn.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = multierr.Append(err, cerr)
		}
	}
	return len(conns), err
}

// ownedLocked returns the entry s refers to if the handle is still current.
// p.mu must be held.
func (p *Pool) ownedLocked(s *Slot) *entry {
	if s.pool != p || s.index < 0 || s.index >= len(p.entries) {
		return nil
	}
	e := &p.entries[s.index]
	if !e.inUse || e.generation != s.generation {
		return nil
	}
	return e
}

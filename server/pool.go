package server

import (
	"bufio"
	"sync"
)

// controlReaderPool and controlWriterPool recycle the bufio wrappers around
// each session's control connection, avoiding a fresh allocation per
// connection under the fixed-size session pool's steady-state churn.
var controlReaderPool = sync.Pool{
	New: func() any { return bufio.NewReaderSize(nil, 4096) },
}

var controlWriterPool = sync.Pool{
	New: func() any { return bufio.NewWriterSize(nil, 4096) },
}

// DefaultMaxSessions is the default number of session slots (§3, §4.6).
const DefaultMaxSessions = 32

// sessionPool is the fixed-capacity session slot array. Unlike the teacher's
// unbounded map-of-connections, a slot's state field doubles as its
// allocation marker: stateInit (the zero value) means free, anything else
// means in use. A single mutex serializes slot selection only; once a slot
// is handed to a worker, that worker owns its session fields exclusively
// until cleanup (§3, §5).
type sessionPool struct {
	mu    sync.Mutex
	slots []*session
}

// newSessionPool preallocates n empty (free) slots.
func newSessionPool(n int) *sessionPool {
	return &sessionPool{slots: make([]*session, n)}
}

// acquire scans for a free slot (nil, or occupied by a session that has
// finished terminating) and reserves it for sess, returning the slot index.
// It returns -1 if every slot is in use (§4.6 "on exhaustion, reject").
func (p *sessionPool) acquire(sess *session) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, occ := range p.slots {
		if occ == nil || sessionState(occ.state.Load()) == stateInit {
			p.slots[i] = sess
			sess.slot = i
			return i
		}
	}
	return -1
}

// release frees the slot back to Init, the pool's allocation-marker
// convention (§3: "state = Init doubles as free").
func (p *sessionPool) release(i int) {
	if i < 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < len(p.slots) && p.slots[i] != nil {
		p.slots[i].state.Store(int32(stateInit))
	}
}

// active returns the number of slots currently holding a non-Init session,
// the invariant §8 calls "the session pool's active count equals the number
// of slots whose state != Init."
func (p *sessionPool) active() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, occ := range p.slots {
		if occ != nil && sessionState(occ.state.Load()) != stateInit {
			n++
		}
	}
	return n
}

// cap returns the total number of slots.
func (p *sessionPool) cap() int {
	return len(p.slots)
}

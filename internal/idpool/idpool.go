// Package idpool is the deterministic id generator shared by Pid and
// ThreadId. Both draw from the same namespace, so a single pool type is
// shared by both; callers wrap the returned uint64 in their own named type.
package idpool

import "math/rand/v2"

// Pool hands out unique, pseudo-random uint64 identifiers. Given the same
// seed and the same sequence of Next() calls, two Pools produce the same
// sequence of ids — this is what makes process/thread id assignment
// reproducible across test runs built with the same seed.
type Pool struct {
	rng  *rand.Rand
	seen map[uint64]struct{}
}

// New creates a Pool seeded deterministically from seed.
func New(seed uint64) *Pool {
	return &Pool{
		rng:  rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		seen: make(map[uint64]struct{}),
	}
}

// Next returns a fresh id, never zero (zero is reserved as a sentinel by
// the extrinsics layer's notification-id arrays) and never a repeat of any
// id previously returned by this Pool.
func (p *Pool) Next() uint64 {
	for {
		id := p.rng.Uint64()
		if id == 0 {
			continue
		}
		if _, dup := p.seen[id]; dup {
			continue
		}
		p.seen[id] = struct{}{}
		return id
	}
}

// Forget releases bookkeeping for an id that will never be reused or
// queried again. Purely a memory-footprint optimization; omitting the call
// only means the Pool's dedup set grows unboundedly over a long-lived
// process, it never causes an id collision.
func (p *Pool) Forget(id uint64) {
	delete(p.seen, id)
}

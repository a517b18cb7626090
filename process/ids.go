package process

// Pid and ThreadId are drawn from the same deterministic id pool (spec
// §3 "single namespace"): a Pid and a ThreadId issued by the same
// Collection are guaranteed never to collide with each other, not just
// within their own kind.
type Pid uint64

// ThreadId uniquely identifies one thread across every process owned by a
// Collection.
type ThreadId uint64

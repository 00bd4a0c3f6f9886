// Package slots provides the fixed-capacity registry that bounds how many
// connections a server handles at once.
//
// Acquire never blocks and never grows the pool: when every slot is taken it
// returns ErrExhausted and the caller decides what to do with the excess
// connection. Each acquisition bumps the slot's generation, so a Release
// carrying a stale handle is detected and ignored instead of freeing a slot
// that now belongs to someone else.
//
// All pool state is guarded by one mutex; Acquire and Release are
// linearizable with respect to each other.
package slots

package sharedlock

import "sync/atomic"

// Proof is the kind of evidence a guard holds that the lock is held.
type Proof uint8

const (
	ProofOwned       Proof = iota + 1 // the guard acquired the token and releases it
	ProofBorrowed                     // read guard reusing another read guard's token
	ProofDowngraded                   // read guard reusing a write guard's exclusive token
	ProofBorrowedMut                  // write guard that checked out another write guard
)

func (p Proof) String() string {
	switch p {
	case ProofOwned:
		return "owned"
	case ProofBorrowed:
		return "borrowed"
	case ProofDowngraded:
		return "downgraded"
	case ProofBorrowedMut:
		return "borrowed-mut"
	default:
		return "unknown"
	}
}

// guardState is the type-independent half of a guard. Derived guards point
// at the state they were derived from; a guard is alive only while every
// state up the chain is unreleased and the token is live.
type guardState struct {
	token    *Token
	kind     Proof
	parent   *guardState
	released atomic.Bool

	// Write guards only.
	lent  atomic.Bool  // a ProofBorrowedMut guard derived from this one is live
	views atomic.Int32 // live ProofDowngraded guards derived from this one
}

func (s *guardState) alive() bool {
	for c := s; c != nil; c = c.parent {
		if c.released.Load() {
			return false
		}
	}
	return s.token.Live()
}

func (s *guardState) check(op string) {
	if !s.alive() {
		s.token.h.violate(op, ErrReleased, nil)
	}
}

// checkReadable is check plus the exclusive-borrow rule for write guards.
func (s *guardState) checkReadable(op string) {
	s.check(op)
	if s.lent.Load() {
		s.token.h.violate(op, ErrCheckedOut, nil)
	}
}

func (s *guardState) checkWritable(op string) {
	s.checkReadable(op)
	if s.views.Load() > 0 {
		s.token.h.violate(op, ErrViewsLive, nil)
	}
}

func (s *guardState) release(op string) {
	if !s.released.CompareAndSwap(false, true) {
		s.token.h.violate(op, ErrDoubleRelease, nil)
	}

	switch s.kind {
	case ProofOwned:
		s.token.Release()
	case ProofDowngraded:
		s.parent.views.Add(-1)
	case ProofBorrowedMut:
		s.parent.lent.Store(false)
	}
}

// ReadProof is implemented by *ReadGuard[T] for any T.
type ReadProof interface {
	readState() *guardState
}

// WriteProof is implemented by *WriteGuard[T] for any T.
type WriteProof interface {
	writeState() *guardState
}

// ReadGuard grants read access to one wrapper's payload.
//
// A guard may be read from several goroutines, but neither it nor any guard
// it was derived from may be released while another goroutine is still
// reading through it.
type ReadGuard[T any] struct {
	lock  *SharedRWLock[T]
	state *guardState
}

func (g *ReadGuard[T]) readState() *guardState {
	if g == nil {
		return nil
	}
	return g.state
}

// Proof returns the kind of proof g holds.
func (g *ReadGuard[T]) Proof() Proof { return g.state.kind }

// Live reports whether g can still be used.
func (g *ReadGuard[T]) Live() bool { return g.state.alive() }

// Get returns the payload. It panics with ErrReleased once g or the guard it
// derives from has been released.
//
// Reference types (maps, slices, pointers) in the payload must not be
// retained or read after g is released, and must not be written through.
func (g *ReadGuard[T]) Get() T {
	g.state.check("ReadGuard.Get")
	return g.lock.data
}

// Release ends g. An owned guard gives its token back to the handle; a
// borrowed or downgraded one only stops being usable. Guards derived from g
// become unusable too.
func (g *ReadGuard[T]) Release() {
	g.state.release("ReadGuard.Release")
}

func (g *ReadGuard[T]) releaseIfHeld() {
	if !g.state.released.Load() {
		g.Release()
	}
}

// WriteGuard grants read and write access to one wrapper's payload.
type WriteGuard[T any] struct {
	lock  *SharedRWLock[T]
	state *guardState
}

func (g *WriteGuard[T]) writeState() *guardState {
	if g == nil {
		return nil
	}
	return g.state
}

// Proof returns the kind of proof g holds.
func (g *WriteGuard[T]) Proof() Proof { return g.state.kind }

// Live reports whether g can still be used. A checked-out guard is live but
// not accessible until the guard derived from it is released.
func (g *WriteGuard[T]) Live() bool { return g.state.alive() }

// Get returns the payload.
func (g *WriteGuard[T]) Get() T {
	g.state.checkReadable("WriteGuard.Get")
	return g.lock.data
}

// Set replaces the payload.
func (g *WriteGuard[T]) Set(v T) {
	g.state.checkWritable("WriteGuard.Set")
	g.lock.data = v
}

// Update calls fn with a pointer to the payload. fn must not retain it.
func (g *WriteGuard[T]) Update(fn func(v *T)) {
	g.state.checkWritable("WriteGuard.Update")
	fn(&g.lock.data)
}

// Downgrade returns a read guard backed by g's exclusive proof. The handle
// stays exclusively held: other goroutines keep blocking exactly as before,
// and only the calling code gets a read-only view to pass on. While the view
// is live g refuses mutation and WriteWith; once g is released the view is
// unusable.
func (g *WriteGuard[T]) Downgrade() *ReadGuard[T] {
	g.state.checkReadable("WriteGuard.Downgrade")
	g.state.views.Add(1)

	return &ReadGuard[T]{
		lock: g.lock,
		state: &guardState{
			token:  g.state.token,
			kind:   ProofDowngraded,
			parent: g.state,
		},
	}
}

// Release ends g. An owned guard gives its token back to the handle; a
// borrowed one checks its source back in. Guards derived from g become
// unusable.
func (g *WriteGuard[T]) Release() {
	g.state.release("WriteGuard.Release")
}

func (g *WriteGuard[T]) releaseIfHeld() {
	if !g.state.released.Load() {
		g.Release()
	}
}

package sharedlock

import (
	"log/slog"
	"runtime"
)

// Config controls how a new lock domain is built.
type Config struct {
	Name         string       // shows up in logs and violations (default: derived from the handle ID)
	ReaderBiased bool         // use xsync.RBMutex instead of the default RWMutex
	Logger       *slog.Logger // nil means slog.Default()
}

// DefaultConfig returns the configuration used by New.
func DefaultConfig() Config {
	return Config{
		ReaderBiased: false,
		Logger:       slog.Default(),
	}
}

// SharedRWLock owns one payload of type T and protects it with a Handle that
// may be shared with sibling wrappers holding payloads of other types. The
// payload is only reachable through a guard.
//
// Share a SharedRWLock by pointer; it must not be copied.
type SharedRWLock[T any] struct {
	h    *Handle
	data T
}

// New creates a wrapper around data with a fresh handle.
func New[T any](data T) *SharedRWLock[T] {
	return NewWithConfig(data, DefaultConfig())
}

// NewWithConfig creates a wrapper around data with a fresh handle built from cfg.
func NewWithConfig[T any](data T, cfg Config) *SharedRWLock[T] {
	return attach(NewHandle(cfg), data)
}

// NewWithSameLock creates a wrapper around data that shares existing's
// handle. A guard obtained from either wrapper can be composed into a guard
// for the other with ReadWith or WriteWith.
//
// This is the only way to place two payloads in the same lock domain.
func NewWithSameLock[U, T any](existing *SharedRWLock[T], data U) *SharedRWLock[U] {
	return attach(existing.h, data)
}

func attach[T any](h *Handle, data T) *SharedRWLock[T] {
	l := &SharedRWLock[T]{h: h, data: data}
	h.refs.Add(1)
	runtime.SetFinalizer(l, func(l *SharedRWLock[T]) {
		l.h.refs.Add(-1)
	})
	return l
}

// Handle returns the handle protecting l.
func (l *SharedRWLock[T]) Handle() *Handle { return l.h }

// Read acquires the handle in shared mode and returns an owned read guard.
// It blocks while a write guard on the handle is live.
func (l *SharedRWLock[T]) Read() *ReadGuard[T] {
	return &ReadGuard[T]{
		lock: l,
		state: &guardState{
			token: l.h.AcquireRead(),
			kind:  ProofOwned,
		},
	}
}

// Write acquires the handle in exclusive mode and returns an owned write
// guard. It blocks while any guard on the handle is live.
func (l *SharedRWLock[T]) Write() *WriteGuard[T] {
	return &WriteGuard[T]{
		lock: l,
		state: &guardState{
			token: l.h.AcquireWrite(),
			kind:  ProofOwned,
		},
	}
}

// ReadWith returns a read guard for l that reuses the proof held by
// existing, which must belong to the same lock domain. No acquisition takes
// place. The result is valid only while existing is; after existing is
// released every access through the result panics.
//
// A guard from an unrelated domain panics with ErrForeignDomain.
func (l *SharedRWLock[T]) ReadWith(existing ReadProof) *ReadGuard[T] {
	var st *guardState
	if existing != nil {
		st = existing.readState()
	}
	src := l.source("ReadWith", st)
	src.check("ReadWith")

	return &ReadGuard[T]{
		lock: l,
		state: &guardState{
			token:  src.token,
			kind:   ProofBorrowed,
			parent: src,
		},
	}
}

// WriteWith returns a write guard for l that reuses the exclusive proof held
// by existing, which must belong to the same lock domain. existing is checked
// out until the result is released: using it, deriving from it or
// downgrading it in the meantime panics with ErrCheckedOut.
//
// A guard from an unrelated domain panics with ErrForeignDomain.
func (l *SharedRWLock[T]) WriteWith(existing WriteProof) *WriteGuard[T] {
	var st *guardState
	if existing != nil {
		st = existing.writeState()
	}
	src := l.source("WriteWith", st)
	src.checkWritable("WriteWith")
	if !src.lent.CompareAndSwap(false, true) {
		src.token.h.violate("WriteWith", ErrCheckedOut, nil)
	}

	return &WriteGuard[T]{
		lock: l,
		state: &guardState{
			token:  src.token,
			kind:   ProofBorrowedMut,
			parent: src,
		},
	}
}

// source validates the guard a composition starts from. A nil guard, typed
// or not, is treated as released.
func (l *SharedRWLock[T]) source(op string, src *guardState) *guardState {
	if src == nil {
		l.h.violate(op, ErrReleased, nil)
	}
	if !l.h.Same(src.token.h) {
		l.h.violate(op, ErrForeignDomain, src.token.h)
	}
	return src
}

// WithRead runs fn under a read guard and releases it when fn returns or
// panics.
//
// There is no poisoning: a panic inside fn leaves the lock usable.
func (l *SharedRWLock[T]) WithRead(fn func(g *ReadGuard[T])) {
	g := l.Read()
	defer g.releaseIfHeld()
	fn(g)
}

// WithWrite runs fn under a write guard and releases it when fn returns or
// panics. As with WithRead, a panic does not poison the lock.
func (l *SharedRWLock[T]) WithWrite(fn func(g *WriteGuard[T])) {
	g := l.Write()
	defer g.releaseIfHeld()
	fn(g)
}

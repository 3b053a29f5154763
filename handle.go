package sharedlock

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
)

// Mode is the admission mode of an acquisition.
type Mode uint8

const (
	Shared    Mode = iota + 1 // any number of holders, no writer
	Exclusive                 // single holder
)

func (m Mode) String() string {
	switch m {
	case Shared:
		return "shared"
	case Exclusive:
		return "exclusive"
	default:
		return "unknown"
	}
}

// backend is the exclusion primitive behind a Handle. Read acquisitions may
// return a token that must be handed back on release (reader-biased mutex);
// the plain backend returns nil.
type backend interface {
	rlock() *xsync.RToken
	runlock(t *xsync.RToken)
	lock()
	unlock()
}

type plainBackend struct {
	mu rwMutex
}

func (b *plainBackend) rlock() *xsync.RToken {
	b.mu.RLock()
	return nil
}

func (b *plainBackend) runlock(*xsync.RToken) { b.mu.RUnlock() }
func (b *plainBackend) lock()                 { b.mu.Lock() }
func (b *plainBackend) unlock()               { b.mu.Unlock() }

type biasedBackend struct {
	mu *xsync.RBMutex
}

func (b *biasedBackend) rlock() *xsync.RToken    { return b.mu.RLock() }
func (b *biasedBackend) runlock(t *xsync.RToken) { b.mu.RUnlock(t) }
func (b *biasedBackend) lock()                   { b.mu.Lock() }
func (b *biasedBackend) unlock()                 { b.mu.Unlock() }

// Handle is the exclusion primitive shared by every wrapper of one lock
// domain. It carries no payload.
//
// Ordering among blocked goroutines is whatever the backend provides: both
// sync.RWMutex and xsync.RBMutex stop admitting new readers once a writer
// is waiting. This is best-effort and not guaranteed starvation-free.
type Handle struct {
	id     uuid.UUID
	name   string
	biased bool
	mu     backend
	logger *slog.Logger

	refs    atomic.Int64  // wrappers attached to this handle
	readers atomic.Int64  // live shared tokens
	writers atomic.Int64  // live exclusive tokens
	seq     atomic.Uint64 // acquisitions so far, shared and exclusive
	reads   *xsync.Counter
	writes  *xsync.Counter
}

// NewHandle creates a handle with no wrapper attached. Wrappers create their
// own handle through New or NewWithConfig; a bare handle is useful for
// measuring a backend (see Measure).
func NewHandle(cfg Config) *Handle {
	id := uuid.New()

	h := &Handle{
		id:     id,
		name:   cfg.Name,
		biased: cfg.ReaderBiased,
		logger: cfg.Logger,
		reads:  xsync.NewCounter(),
		writes: xsync.NewCounter(),
	}
	if h.name == "" {
		h.name = "lock-" + id.String()[:8]
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if cfg.ReaderBiased {
		h.mu = &biasedBackend{mu: xsync.NewRBMutex()}
	} else {
		h.mu = &plainBackend{}
	}
	return h
}

// ID returns the identifier assigned when the handle was created.
func (h *Handle) ID() uuid.UUID { return h.id }

// Name returns the configured name, or a name derived from the ID.
func (h *Handle) Name() string { return h.name }

// Same reports whether h and other are the same handle.
func (h *Handle) Same(other *Handle) bool {
	if h == nil || other == nil {
		return false
	}
	return h.id == other.id
}

// AcquireRead blocks until no exclusive token is outstanding and returns a
// shared token.
func (h *Handle) AcquireRead() *Token {
	rt := h.mu.rlock()
	h.readers.Add(1)
	h.reads.Inc()
	return h.issue(Shared, rt)
}

// AcquireWrite blocks until no token of either mode is outstanding and
// returns an exclusive token.
func (h *Handle) AcquireWrite() *Token {
	h.mu.lock()
	h.writers.Add(1)
	h.writes.Inc()
	return h.issue(Exclusive, nil)
}

func (h *Handle) issue(mode Mode, rt *xsync.RToken) *Token {
	t := &Token{h: h, mode: mode, seq: h.seq.Add(1), rt: rt}
	if h.logger.Enabled(context.Background(), slog.LevelDebug) {
		h.logger.Debug("lock acquired", "lock", h.name, "mode", mode, "seq", t.seq)
	}
	return t
}

// Stats is a point-in-time view of a handle's counters.
type Stats struct {
	ID                uuid.UUID
	Name              string
	ReaderBiased      bool
	Refs              int64  // wrappers attached; a dropped wrapper counts until it is garbage collected
	Readers           int64  // live shared tokens
	Writers           int64  // live exclusive tokens (0 or 1)
	ReadAcquisitions  uint64 // cumulative
	WriteAcquisitions uint64 // cumulative
}

// Stats reads the counters without taking the lock; fields are individually
// consistent but not a single snapshot.
func (h *Handle) Stats() Stats {
	return Stats{
		ID:                h.id,
		Name:              h.name,
		ReaderBiased:      h.biased,
		Refs:              h.refs.Load(),
		Readers:           h.readers.Load(),
		Writers:           h.writers.Load(),
		ReadAcquisitions:  uint64(h.reads.Value()),
		WriteAcquisitions: uint64(h.writes.Value()),
	}
}

// Token is the proof that a handle is held in a given mode. It is released
// exactly once.
type Token struct {
	h        *Handle
	mode     Mode
	seq      uint64
	rt       *xsync.RToken
	released atomic.Bool
}

// Handle returns the handle the token was acquired from.
func (t *Token) Handle() *Handle { return t.h }

// Mode returns the admission mode the token grants.
func (t *Token) Mode() Mode { return t.mode }

// Seq returns the acquisition sequence number on the handle.
func (t *Token) Seq() uint64 { return t.seq }

// Live reports whether the token has not been released yet.
func (t *Token) Live() bool { return !t.released.Load() }

// Release gives the acquisition back to the handle. Releasing a token twice
// panics with a *ContractViolation.
func (t *Token) Release() {
	if !t.released.CompareAndSwap(false, true) {
		t.h.violate("Token.Release", ErrDoubleRelease, nil)
	}

	switch t.mode {
	case Shared:
		t.h.readers.Add(-1)
		t.h.mu.runlock(t.rt)
	case Exclusive:
		t.h.writers.Add(-1)
		t.h.mu.unlock()
	}

	if t.h.logger.Enabled(context.Background(), slog.LevelDebug) {
		t.h.logger.Debug("lock released", "lock", t.h.name, "mode", t.mode, "seq", t.seq)
	}
}

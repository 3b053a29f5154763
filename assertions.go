package sharedlock

import (
	"testing"
	"time"
)

// AssertIdle verifies no token is outstanding on h.
func AssertIdle(t testing.TB, h *Handle) {
	t.Helper()

	s := h.Stats()
	if s.Readers != 0 || s.Writers != 0 {
		t.Errorf("Lock %s not idle: readers=%d writers=%d", s.Name, s.Readers, s.Writers)
	}
}

// AssertWriterBlocked starts an exclusive acquisition on h in a new
// goroutine and verifies it is still blocked after wait.
//
// The returned channel is closed once the acquisition is finally granted
// (and immediately released); pass it to AssertAdmittedWithin after the
// blocking guard is released.
func AssertWriterBlocked(t testing.TB, h *Handle, wait time.Duration) <-chan struct{} {
	t.Helper()
	return assertBlocked(t, h, Exclusive, wait)
}

// AssertReaderBlocked is AssertWriterBlocked for a shared acquisition.
func AssertReaderBlocked(t testing.TB, h *Handle, wait time.Duration) <-chan struct{} {
	t.Helper()
	return assertBlocked(t, h, Shared, wait)
}

func assertBlocked(t testing.TB, h *Handle, mode Mode, wait time.Duration) <-chan struct{} {
	t.Helper()

	acquired := make(chan struct{})
	done := make(chan struct{})
	go func() {
		var tok *Token
		if mode == Exclusive {
			tok = h.AcquireWrite()
		} else {
			tok = h.AcquireRead()
		}
		close(acquired)
		tok.Release()
		close(done)
	}()

	select {
	case <-acquired:
		t.Errorf("%s acquisition on %s was admitted, expected it to block", mode, h.Name())
	case <-time.After(wait):
		t.Logf("✓ %s acquisition on %s blocked for %v", mode, h.Name(), wait)
	}

	return done
}

// AssertReaderAdmitted verifies a shared acquisition on h is granted within wait.
func AssertReaderAdmitted(t testing.TB, h *Handle, wait time.Duration) {
	t.Helper()

	done := make(chan struct{})
	go func() {
		h.AcquireRead().Release()
		close(done)
	}()

	AssertAdmittedWithin(t, done, wait)
}

// AssertAdmittedWithin verifies done is closed within wait.
func AssertAdmittedWithin(t testing.TB, done <-chan struct{}, wait time.Duration) {
	t.Helper()

	select {
	case <-done:
	case <-time.After(wait):
		t.Fatalf("Acquisition not granted within %v", wait)
	}
}

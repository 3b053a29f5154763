package sharedlock

import (
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestRoundTrip(t *testing.T) {
	type point struct{ X, Y int }

	t.Run("int", func(t *testing.T) {
		l := newTestLock(t, 0)
		w := l.Write()
		w.Set(42)
		w.Release()

		r := l.Read()
		defer r.Release()
		assert.Equal(t, 42, r.Get())
	})

	t.Run("string", func(t *testing.T) {
		l := newTestLock(t, "")
		l.WithWrite(func(g *WriteGuard[string]) { g.Set("forty-two") })
		l.WithRead(func(g *ReadGuard[string]) {
			assert.Equal(t, "forty-two", g.Get())
		})
	})

	t.Run("struct", func(t *testing.T) {
		l := newTestLock(t, point{})
		l.WithWrite(func(g *WriteGuard[point]) {
			g.Update(func(p *point) { p.X, p.Y = 4, 2 })
		})
		l.WithRead(func(g *ReadGuard[point]) {
			assert.Equal(t, point{4, 2}, g.Get())
		})
		AssertIdle(t, l.Handle())
	})
}

func TestNewWithSameLock_SharesHandle(t *testing.T) {
	a := newTestLock(t, 1)
	b := NewWithSameLock(a, "b")
	c := newTestLock(t, 1)

	assert.Same(t, a.Handle(), b.Handle())
	assert.True(t, a.Handle().Same(b.Handle()))
	assert.False(t, a.Handle().Same(c.Handle()))
	assert.Equal(t, int64(2), a.Handle().Stats().Refs)
	assert.Equal(t, int64(1), c.Handle().Stats().Refs)

	// A write on one sibling excludes readers of the other.
	w := a.Write()
	granted := AssertReaderBlocked(t, b.Handle(), blockWait)
	w.Release()
	AssertAdmittedWithin(t, granted, time.Second)
}

func TestNewWithSameLock_RefsDropOnCollect(t *testing.T) {
	a := newTestLock(t, 1)

	func() {
		b := NewWithSameLock(a, "b")
		require.Equal(t, int64(2), b.Handle().Stats().Refs)
	}()

	// The count drops only once the sibling has been collected.
	require.Eventually(t, func() bool {
		runtime.GC()
		return a.Handle().Stats().Refs == 1
	}, 5*time.Second, 10*time.Millisecond, "sibling wrapper never released its ref")
	t.Logf("✓ refs back to 1 after collection")
}

func TestReadWith_YieldsSiblingPayload(t *testing.T) {
	a := newTestLock(t, "payload of a")
	b := NewWithSameLock(a, 99)

	ra := a.Read()
	rb := b.ReadWith(ra)

	assert.Equal(t, 99, rb.Get())
	assert.Equal(t, "payload of a", ra.Get())
	assert.Equal(t, ProofBorrowed, rb.Proof())
	assert.Equal(t, uint64(1), a.Handle().Stats().ReadAcquisitions, "ReadWith must not acquire")

	rb.Release()
	assert.Equal(t, int64(1), a.Handle().Stats().Readers, "borrowed release must not unlock")
	ra.Release()
	AssertIdle(t, a.Handle())
}

func TestReadWith_ForeignDomainAlwaysPanics(t *testing.T) {
	a := newTestLock(t, 1)
	other := newTestLock(t, 2)

	r := other.Read()
	defer r.Release()

	for i := 0; i < 100; i++ {
		v := violation(t, func() { a.ReadWith(r) })
		require.ErrorIs(t, v, ErrForeignDomain)
		require.Equal(t, "ReadWith", v.Op)
		require.Equal(t, a.Handle().ID(), v.Want)
		require.Equal(t, other.Handle().ID(), v.Got)
	}

	assert.Equal(t, 2, r.Get(), "source guard unaffected by rejected composition")
	AssertIdle(t, a.Handle())
}

func TestWriteWith_ForeignDomainAlwaysPanics(t *testing.T) {
	a := newTestLock(t, 1)
	other := newTestLock(t, 2)

	w := other.Write()
	defer w.Release()

	for i := 0; i < 100; i++ {
		v := violation(t, func() { a.WriteWith(w) })
		require.ErrorIs(t, v, ErrForeignDomain)
		require.Equal(t, "WriteWith", v.Op)
	}

	// Rejected compositions must not check the source out.
	w.Set(3)
	assert.Equal(t, 3, w.Get())
}

func TestConcurrentReaders(t *testing.T) {
	for name, cfg := range backends(t) {
		t.Run(name, func(t *testing.T) {
			const readers = 8
			l := NewWithConfig(7, cfg)

			var arrived sync.WaitGroup
			arrived.Add(readers)
			release := make(chan struct{})
			done := make(chan struct{})

			var g errgroup.Group
			for i := 0; i < readers; i++ {
				g.Go(func() error {
					r := l.Read()
					defer r.Release()
					if r.Get() != 7 {
						t.Errorf("Reader saw %d", r.Get())
					}
					arrived.Done()
					<-release
					return nil
				})
			}

			allIn := make(chan struct{})
			go func() {
				arrived.Wait()
				close(allIn)
			}()
			select {
			case <-allIn:
			case <-time.After(5 * time.Second):
				t.Fatal("Readers were not admitted simultaneously")
			}

			assert.Equal(t, int64(readers), l.Handle().Stats().Readers)
			granted := AssertWriterBlocked(t, l.Handle(), blockWait)

			close(release)
			go func() {
				_ = g.Wait()
				close(done)
			}()
			AssertAdmittedWithin(t, done, 5*time.Second)
			AssertAdmittedWithin(t, granted, 5*time.Second)
			AssertIdle(t, l.Handle())
		})
	}
}

func TestWrite_BlocksUntilReadersDropped(t *testing.T) {
	l := newTestLock(t, 0)

	r1 := l.Read()
	second := make(chan *ReadGuard[int])
	go func() { second <- l.Read() }()
	r2 := <-second

	acquired := make(chan struct{})
	go func() {
		w := l.Write()
		w.Set(1)
		close(acquired)
		w.Release()
	}()

	r1.Release()
	select {
	case <-acquired:
		t.Fatal("Writer admitted while a reader is still live")
	case <-time.After(blockWait):
	}

	r2.Release()
	AssertAdmittedWithin(t, acquired, time.Second)

	l.WithRead(func(g *ReadGuard[int]) { assert.Equal(t, 1, g.Get()) })
}

func TestWithWrite_PanicDoesNotPoison(t *testing.T) {
	l := newTestLock(t, 0)

	assert.Panics(t, func() {
		l.WithWrite(func(g *WriteGuard[int]) {
			g.Set(1)
			panic("boom")
		})
	})
	AssertIdle(t, l.Handle())

	assert.Panics(t, func() {
		l.WithRead(func(*ReadGuard[int]) { panic("boom") })
	})
	AssertIdle(t, l.Handle())

	w := l.Write()
	assert.Equal(t, 1, w.Get(), "write before the panic is kept")
	w.Release()
}

func TestWithRead_GuardReleasedInside(t *testing.T) {
	l := newTestLock(t, 0)

	assert.NotPanics(t, func() {
		l.WithRead(func(g *ReadGuard[int]) { g.Release() })
	})
	AssertIdle(t, l.Handle())
}

func TestStress_WriterAndReader(t *testing.T) {
	const iterations = 10000

	type pair struct{ A, B int }

	for name, cfg := range backends(t) {
		t.Run(name, func(t *testing.T) {
			l := NewWithConfig(pair{}, cfg)

			var g errgroup.Group
			g.Go(func() error {
				for i := 1; i <= iterations; i++ {
					w := l.Write()
					w.Update(func(p *pair) { p.A = i })
					w.Update(func(p *pair) { p.B = i })
					w.Release()
				}
				return nil
			})

			var reads int
			g.Go(func() error {
				last := 0
				for last < iterations {
					r := l.Read()
					p := r.Get()
					r.Release()
					reads++

					if p.A != p.B {
						t.Errorf("Torn read: %+v", p)
						return nil
					}
					if p.A < last || p.A > iterations {
						t.Errorf("Read %d after %d", p.A, last)
						return nil
					}
					last = p.A
				}
				return nil
			})

			require.NoError(t, g.Wait())
			AssertIdle(t, l.Handle())
			t.Logf("✓ %d writes, %d consistent reads", iterations, reads)
		})
	}
}

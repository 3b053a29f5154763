// Package sharedlock protects several independently-typed values with one
// read/write lock.
//
// # Overview
//
// Values that always change together often want a single lock, but putting
// them in one struct couples their types and owners. sharedlock keeps each
// value in its own SharedRWLock while every wrapper of a lock domain shares
// one Handle. A guard taken on one wrapper can be composed into a guard for
// any sibling without touching the Handle again, which avoids both the cost
// of double locking and the self-deadlock of read-locking the same RWMutex
// twice on one goroutine.
//
// # Quick Start
//
//	stock := sharedlock.New(map[string]int{"apple": 3})
//	audit := sharedlock.NewWithSameLock(stock, []string(nil))
//
//	w := stock.Write()
//	defer w.Release()
//	w.Update(func(m *map[string]int) { (*m)["apple"]-- })
//
//	aw := audit.WriteWith(w) // no second acquisition
//	aw.Update(func(log *[]string) { *log = append(*log, "sold apple") })
//	aw.Release() // checks w back in
//
// # Guards and proofs
//
// A guard is the only way to reach a payload. Each guard holds a proof that
// the Handle is held:
//
//   - Read() and Write() return guards with an owned proof: they acquired
//     the Handle and release it on Release.
//   - ReadWith returns a borrowed read guard that reuses another read
//     guard's proof.
//   - WriteWith returns a write guard that checks out another write guard.
//     Until it is released the source cannot be read, written, derived from
//     or downgraded.
//   - Downgrade turns a write guard into a read-only view of the same
//     payload.
//
// Go has no borrow checker, so lifetimes are checked at run time. A derived
// guard is usable only while every guard it derives from is unreleased, and
// every Get, Set and Update walks that chain first.
//
// # Downgrade keeps exclusivity
//
// Downgrade does not release the exclusive hold and does not admit other
// readers. It only narrows what the calling code can do: other goroutines'
// Read and Write calls keep blocking until the source write guard is
// released. Use it to hand a read-only guard to code that must not mutate.
//
// # Contract violations
//
// Misuse panics with a *ContractViolation after logging it at Error level:
//
//   - composing guards across unrelated domains (ErrForeignDomain),
//   - using a guard after it or its source was released (ErrReleased),
//   - releasing twice (ErrDoubleRelease),
//   - touching a checked-out write guard (ErrCheckedOut),
//   - mutating through a write guard with live downgraded views (ErrViewsLive).
//
// These are defects, not runtime conditions, and are reported on every
// occurrence.
//
// # Poisoning
//
// Go's locks do not poison. A goroutine that panics while holding a guard
// from WithRead or WithWrite still releases it, and later Read and Write
// calls proceed normally. A guard obtained directly must be released with
// defer for the same effect.
//
// # Backends
//
// The default backend is sync.RWMutex. Config.ReaderBiased selects
// xsync.RBMutex, which scales read acquisition across cores at the price of
// slower writers. Building with -tags=lockdebug replaces the default
// backend with go-deadlock's RWMutex, which reports lock-order inversions
// and long waits during development. Neither backend promises fairness.
//
// go-deadlock treats a second Read taken by a goroutine that already holds a
// read guard on the same handle as recursive locking and, unless
// deadlock.Opts.OnPotentialDeadlock is replaced, exits the process. Nest
// reads on one goroutine with ReadWith, which reuses the held proof instead
// of locking again. Run the lockdebug build's own tests with
//
//	go test -race -tags=lockdebug ./...
//
// # Measuring
//
// Measure runs a configurable read/write mix against a Handle at several
// concurrency levels and reports acquisition wait times, so the two
// backends can be compared for a given workload:
//
//	results, err := sharedlock.Measure(ctx, stock.Handle(), sharedlock.DefaultMeasureConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, r := range results {
//	    s := sharedlock.Summarize(r.WriteWaits)
//	    fmt.Printf("N=%d p99 write wait %v\n", r.N, s.P99)
//	}
//
// # Testing
//
// AssertIdle, AssertWriterBlocked, AssertReaderBlocked and
// AssertReaderAdmitted check admission behaviour from a test:
//
//	w := stock.Write()
//	granted := sharedlock.AssertReaderBlocked(t, stock.Handle(), 50*time.Millisecond)
//	w.Release()
//	sharedlock.AssertAdmittedWithin(t, granted, time.Second)
package sharedlock

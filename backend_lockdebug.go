//go:build lockdebug

package sharedlock

import "github.com/sasha-s/go-deadlock"

// LockDebug reports whether handles are backed by the deadlock-reporting
// mutex. Build with -tags=lockdebug to enable it.
const LockDebug = true

type rwMutex = deadlock.RWMutex

//go:build !lockdebug

package sharedlock

import "sync"

// LockDebug reports whether handles are backed by the deadlock-reporting
// mutex. Build with -tags=lockdebug to enable it.
const LockDebug = false

type rwMutex = sync.RWMutex

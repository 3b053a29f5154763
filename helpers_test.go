package sharedlock

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/lmittmann/tint"
)

// testWriter routes log output into the test log.
type testWriter struct{ t testing.TB }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

func testConfig(t testing.TB) Config {
	cfg := DefaultConfig()
	cfg.Name = t.Name()
	cfg.Logger = slog.New(tint.NewHandler(testWriter{t}, &tint.Options{
		Level:   slog.LevelInfo,
		NoColor: true,
	}))
	return cfg
}

func newTestLock[T any](t testing.TB, data T) *SharedRWLock[T] {
	return NewWithConfig(data, testConfig(t))
}

// backends lists the configurations every admission test runs against.
func backends(t *testing.T) map[string]Config {
	plain := testConfig(t)
	biased := testConfig(t)
	biased.ReaderBiased = true
	return map[string]Config{
		"RWMutex": plain,
		"RBMutex": biased,
	}
}

// violation runs fn and returns the *ContractViolation it panics with.
func violation(t *testing.T, fn func()) *ContractViolation {
	t.Helper()

	var recovered any
	func() {
		defer func() { recovered = recover() }()
		fn()
	}()

	v, ok := recovered.(*ContractViolation)
	if !ok {
		t.Fatalf("Expected *ContractViolation panic, got %T (%v)", recovered, recovered)
	}
	return v
}

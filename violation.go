package sharedlock

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Contract violations. These are programming defects, never runtime
// conditions: they reach the caller as the Err of a *ContractViolation
// panic value.
var (
	ErrForeignDomain = errors.New("guard belongs to an unrelated lock domain")
	ErrReleased      = errors.New("guard or its source was already released")
	ErrDoubleRelease = errors.New("released twice")
	ErrCheckedOut    = errors.New("guard is lent to a derived write guard")
	ErrViewsLive     = errors.New("guard has live downgraded read views")
)

// ContractViolation is the panic value for misuse of a lock or guard.
type ContractViolation struct {
	Op   string    // operation that detected the violation, e.g. "ReadWith"
	Lock string    // name of the handle the operation ran against
	Want uuid.UUID // handle the operation required
	Got  uuid.UUID // handle it was given; uuid.Nil unless Err is ErrForeignDomain
	Err  error
}

func (v *ContractViolation) Error() string {
	if errors.Is(v.Err, ErrForeignDomain) {
		return fmt.Sprintf("sharedlock: %s on %s: %v (want handle %s, got %s)",
			v.Op, v.Lock, v.Err, v.Want, v.Got)
	}
	return fmt.Sprintf("sharedlock: %s on %s: %v", v.Op, v.Lock, v.Err)
}

func (v *ContractViolation) Unwrap() error { return v.Err }

// violate logs the violation and panics. got is the foreign handle for
// ErrForeignDomain and nil otherwise.
func (h *Handle) violate(op string, err error, got *Handle) {
	v := &ContractViolation{Op: op, Lock: h.name, Want: h.id, Err: err}
	attrs := []any{"lock", h.name, "op", op, "err", err}
	if got != nil {
		v.Got = got.id
		attrs = append(attrs, "want", h.id, "got", got.id)
	}
	h.logger.Error("lock contract violation", attrs...)
	panic(v)
}

package kernel

import (
	"fmt"
	"runtime/debug"
)

// PanicError is returned in place of a panic raised by module, driver or
// handler code.
type PanicError struct {
	// Scope names the hook or handler that panicked.
	Scope string
	// Value is the recovered panic value.
	Value any
	// Stack is the panicking goroutine's stack at recovery time.
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("%s: panic recovered: %v", e.Scope, e.Value)
}

// runSafely calls fn, tags its error with scope, and turns a panic into a
// *PanicError so one misbehaving plugin cannot crash the process.
func runSafely(scope string, fn func() error) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = &PanicError{Scope: scope, Value: recovered, Stack: debug.Stack()}
		}
	}()

	if err := fn(); err != nil {
		return fmt.Errorf("%s: %w", scope, err)
	}

	return nil
}

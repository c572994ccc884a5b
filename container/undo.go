package container

import (
	"errors"
	"fmt"
)

type undoStep struct {
	name string
	fn   func() error
}

// undoStack collects the cleanup of every completed step of a setup so a
// later failure can unwind them in reverse order
type undoStack struct {
	steps []undoStep
}

func (u *undoStack) push(name string, fn func() error) {
	u.steps = append(u.steps, undoStep{name: name, fn: fn})
}

// unwind runs every step, last pushed first, and empties the stack
func (u *undoStack) unwind() error {
	var errs []error
	for i := len(u.steps) - 1; i >= 0; i-- {
		if err := u.steps[i].fn(); err != nil {
			errs = append(errs, fmt.Errorf("undo %s: %w", u.steps[i].name, err))
		}
	}
	u.steps = nil
	return errors.Join(errs...)
}

// commit forgets the steps after a successful setup
func (u *undoStack) commit() {
	u.steps = nil
}

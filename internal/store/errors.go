package store

import "fmt"

// ConstraintError reports a row rejected by the store.
// Err is either ErrDuplicate or ErrConstraint.
type ConstraintError struct {
	Field  string
	Detail string
	Err    error
}

func (e *ConstraintError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%v on field %s: %s", e.Err, e.Field, e.Detail)
	}
	return fmt.Sprintf("%v: %s", e.Err, e.Detail)
}

func (e *ConstraintError) Unwrap() error {
	return e.Err
}

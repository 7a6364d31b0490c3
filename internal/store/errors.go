package store

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict reports a conditional write whose guard no longer matched.
	ErrConflict = errors.New("concurrent modification")
	// ErrDuplicate reports a uniqueness violation, such as a second active
	// participant row for the same user.
	ErrDuplicate = errors.New("duplicate row")
)

// Package lease serializes read-modify-write sections per entity key.
package lease

import "context"

// Release ends a held lease. Calling it more than once is a no-op.
type Release func()

// Locker grants exclusive leases on string keys such as "document:<id>".
// Acquire blocks until the lease is held or ctx is done.
type Locker interface {
	Acquire(ctx context.Context, key string) (Release, error)
}

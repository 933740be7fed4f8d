package locationstore

import (
	"context"

	"github.com/phonetap/phonetap-server/platform"
)

// Repo caches the location resolved for this deployment and serialises the
// create step so concurrent first requests do not create duplicates.
type Repo interface {
	// Get returns the cached location, ok is false on a miss
	Get(ctx context.Context) (loc platform.Location, ok bool, err error)

	// Put caches a resolved location
	Put(ctx context.Context, loc platform.Location) error

	// Lock blocks until the create lock is held or ctx is done
	Lock(ctx context.Context) (unlock func(), err error)

	// Clear drops the cached location
	Clear(ctx context.Context) error
}

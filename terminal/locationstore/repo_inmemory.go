package locationstore

import (
	"context"
	"sync"

	"github.com/phonetap/phonetap-server/platform"
)

var _ Repo = (*InMemoryRepo)(nil)

// InMemoryRepo is a single process Repo
type InMemoryRepo struct {
	mu       sync.RWMutex
	location *platform.Location
	sem      chan struct{}
}

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{sem: make(chan struct{}, 1)}
}

func (r *InMemoryRepo) Get(ctx context.Context) (platform.Location, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.location == nil {
		return platform.Location{}, false, nil
	}
	return *r.location, true, nil
}

func (r *InMemoryRepo) Put(ctx context.Context, loc platform.Location) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.location = &loc
	return nil
}

func (r *InMemoryRepo) Lock(ctx context.Context) (func(), error) {
	select {
	case r.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() { once.Do(func() { <-r.sem }) }, nil
}

func (r *InMemoryRepo) Clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.location = nil
	return nil
}

package terminal

import (
	"context"
	"time"

	apperrors "github.com/phonetap/phonetap-server/internal/errors"
	"github.com/phonetap/phonetap-server/platform"
	"github.com/phonetap/phonetap-server/terminal/locationstore"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// DefaultAddress is the postal address used when a location has to be created.
var DefaultAddress = platform.Address{
	Line1:      "123 Business St",
	City:       "San Francisco",
	State:      "CA",
	PostalCode: "94102",
	Country:    "US",
}

const (
	DefaultLocationDisplayName = "PhoneTap Test Location"
	resolveKey                 = "location"
	resolveTimeout             = 45 * time.Second
)

// LocationResolver finds any existing location or creates the default one.
//
// Concurrent resolves in one process share a single upstream round trip, and
// the create step runs under the Repo lock then re-checks the cache, so
// replicas sharing a redis Repo do not create duplicates either.
type LocationResolver struct {
	gateway     platform.Gateway
	repo        locationstore.Repo
	displayName string
	address     platform.Address
	group       singleflight.Group
}

type LocationResolverOption func(*LocationResolver)

func WithDisplayName(name string) LocationResolverOption {
	return func(r *LocationResolver) {
		if name != "" {
			r.displayName = name
		}
	}
}

func NewLocationResolver(gateway platform.Gateway, repo locationstore.Repo, options ...LocationResolverOption) *LocationResolver {
	if repo == nil {
		repo = locationstore.NewInMemoryRepo()
	}
	r := &LocationResolver{
		gateway:     gateway,
		repo:        repo,
		displayName: DefaultLocationDisplayName,
		address:     DefaultAddress,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// ResolveLocation returns the deployment's location, creating it at most once.
func (r *LocationResolver) ResolveLocation(ctx context.Context) (platform.Location, error) {
	if r.gateway == nil {
		log.Error().Msg("Location requested but payment platform credential is not set")
		return platform.Location{}, apperrors.ErrNotConfigured
	}

	if loc, ok, err := r.repo.Get(ctx); err != nil {
		log.Warn().Err(err).Msg("Location cache unavailable, resolving upstream")
	} else if ok {
		return loc, nil
	}

	v, err, shared := r.group.Do(resolveKey, func() (interface{}, error) {
		// detached from any single caller so one cancelled request does not fail the rest
		resolveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), resolveTimeout)
		defer cancel()
		return r.resolve(resolveCtx)
	})
	if err != nil {
		return platform.Location{}, errors.Wrap(err, "[ResolveLocation]")
	}
	if shared {
		log.Debug().Msg("Location resolve shared with a concurrent request")
	}
	return v.(platform.Location), nil
}

func (r *LocationResolver) resolve(ctx context.Context) (platform.Location, error) {
	if loc, found, err := r.listFirst(ctx); err != nil || found {
		return loc, err
	}

	unlock, err := r.repo.Lock(ctx)
	if err != nil {
		return platform.Location{}, errors.Wrap(err, "acquire location lock")
	}
	defer unlock()

	// another replica may have created it while we waited
	if loc, ok, err := r.repo.Get(ctx); err == nil && ok {
		return loc, nil
	}
	if loc, found, err := r.listFirst(ctx); err != nil || found {
		return loc, err
	}

	log.Info().Str("display_name", r.displayName).Msg("Creating new location")
	loc, err := r.gateway.CreateLocation(ctx, platform.LocationParams{
		DisplayName: r.displayName,
		Address:     r.address,
	})
	if err != nil {
		logUpstream(err, "Failed to create location")
		return platform.Location{}, err
	}
	log.Info().Str("location_id", loc.ID).Msg("Created location")
	r.cache(ctx, loc)
	return loc, nil
}

// listFirst asks for a single location; an empty list is not an error.
func (r *LocationResolver) listFirst(ctx context.Context) (platform.Location, bool, error) {
	locations, err := r.gateway.ListLocations(ctx, 1)
	if err != nil {
		logUpstream(err, "List locations failed")
		return platform.Location{}, false, err
	}
	if len(locations) == 0 {
		return platform.Location{}, false, nil
	}
	log.Info().Str("location_id", locations[0].ID).Msg("Using existing location")
	r.cache(ctx, locations[0])
	return locations[0], true, nil
}

func (r *LocationResolver) cache(ctx context.Context, loc platform.Location) {
	if err := r.repo.Put(ctx, loc); err != nil {
		log.Warn().Err(err).Str("location_id", loc.ID).Msg("Failed to cache location")
	}
}

// Forget drops the cached location so the next resolve goes upstream again.
// Used when the cached id is no longer known to the platform.
func (r *LocationResolver) Forget(ctx context.Context) error {
	return r.repo.Clear(ctx)
}

// RefreshLocation forgets the cached location then resolves it upstream.
func (r *LocationResolver) RefreshLocation(ctx context.Context) (platform.Location, error) {
	if r.gateway == nil {
		return platform.Location{}, apperrors.ErrNotConfigured
	}
	if err := r.Forget(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to drop cached location")
	}
	return r.ResolveLocation(ctx)
}

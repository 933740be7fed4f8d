package fakeplatform

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	apperrors "github.com/phonetap/phonetap-server/internal/errors"
	"github.com/phonetap/phonetap-server/platform"
)

// Operation names used for call counting and failure injection
const (
	OpConnectionToken = "create connection token"
	OpListLocations   = "list locations"
	OpCreateLocation  = "create location"
	OpPaymentIntent   = "create payment intent"
	OpAccount         = "create account"
	OpAccountLink     = "create account link"
)

var _ platform.Gateway = (*FakePlatform)(nil)

// FakePlatform is an in-memory payment platform. Every call is counted and any
// operation can be made to fail.
type FakePlatform struct {
	lock      sync.Mutex
	locations []platform.Location
	intents   map[string]platform.PaymentIntent
	accounts  map[string]platform.Account
	calls     map[string]int
	failures  map[string]error

	// LastIntentParams and LastAccountParams record the most recent submissions
	LastIntentParams      platform.PaymentIntentParams
	LastLocationParams    platform.LocationParams
	LastAccountParams     platform.AccountParams
	LastAccountLinkParams platform.AccountLinkParams

	// BeforeCall runs outside the lock before each operation (tests use it to widen races)
	BeforeCall func(op string)
}

func New() *FakePlatform {
	return &FakePlatform{
		intents:  make(map[string]platform.PaymentIntent),
		accounts: make(map[string]platform.Account),
		calls:    make(map[string]int),
		failures: make(map[string]error),
	}
}

// Fail makes every subsequent call of op return err. A nil err clears the failure.
func (f *FakePlatform) Fail(op string, err error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if err == nil {
		delete(f.failures, op)
		return
	}
	f.failures[op] = err
}

// Reject makes op fail the way the real platform does for a 4xx/5xx response.
func (f *FakePlatform) Reject(op string, status int, message string) {
	f.Fail(op, &apperrors.UpstreamError{Op: op, Status: status, Message: message})
}

func (f *FakePlatform) Calls(op string) int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.calls[op]
}

func (f *FakePlatform) TotalCalls() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

// SeedLocation adds a location as if it had been created out of band.
func (f *FakePlatform) SeedLocation(loc platform.Location) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.locations = append(f.locations, loc)
}

// RemoveLocation deletes a location as if it had been removed out of band.
func (f *FakePlatform) RemoveLocation(id string) {
	f.lock.Lock()
	defer f.lock.Unlock()
	kept := f.locations[:0]
	for _, loc := range f.locations {
		if loc.ID != id {
			kept = append(kept, loc)
		}
	}
	f.locations = kept
}

func (f *FakePlatform) Locations() []platform.Location {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]platform.Location(nil), f.locations...)
}

func (f *FakePlatform) Accounts() []platform.Account {
	f.lock.Lock()
	defer f.lock.Unlock()
	accounts := make([]platform.Account, 0, len(f.accounts))
	for _, a := range f.accounts {
		accounts = append(accounts, a)
	}
	return accounts
}

func (f *FakePlatform) begin(ctx context.Context, op string) error {
	if f.BeforeCall != nil {
		f.BeforeCall(op)
	}
	if err := ctx.Err(); err != nil {
		return &apperrors.UpstreamError{Op: op, Err: err}
	}
	f.lock.Lock()
	defer f.lock.Unlock()
	f.calls[op]++
	return f.failures[op]
}

func (f *FakePlatform) CreateConnectionToken(ctx context.Context) (string, error) {
	if err := f.begin(ctx, OpConnectionToken); err != nil {
		return "", err
	}
	return "pst_test_" + newID(), nil
}

func (f *FakePlatform) ListLocations(ctx context.Context, limit int) ([]platform.Location, error) {
	if err := f.begin(ctx, OpListLocations); err != nil {
		return nil, err
	}
	f.lock.Lock()
	defer f.lock.Unlock()
	if limit <= 0 || limit > len(f.locations) {
		limit = len(f.locations)
	}
	return append([]platform.Location(nil), f.locations[:limit]...), nil
}

func (f *FakePlatform) CreateLocation(ctx context.Context, params platform.LocationParams) (platform.Location, error) {
	if err := f.begin(ctx, OpCreateLocation); err != nil {
		return platform.Location{}, err
	}
	f.lock.Lock()
	defer f.lock.Unlock()
	f.LastLocationParams = params
	loc := platform.Location{ID: "tml_" + newID(), DisplayName: params.DisplayName}
	f.locations = append(f.locations, loc)
	return loc, nil
}

func (f *FakePlatform) CreatePaymentIntent(ctx context.Context, params platform.PaymentIntentParams) (platform.PaymentIntent, error) {
	if err := f.begin(ctx, OpPaymentIntent); err != nil {
		return platform.PaymentIntent{}, err
	}
	if params.AmountMinor <= 0 {
		return platform.PaymentIntent{}, &apperrors.UpstreamError{Op: OpPaymentIntent, Status: http.StatusBadRequest, Message: "amount must be positive"}
	}
	f.lock.Lock()
	defer f.lock.Unlock()
	f.LastIntentParams = params
	id := "pi_" + newID()
	pi := platform.PaymentIntent{
		ID:            id,
		ClientSecret:  id + "_secret_" + newID(),
		AmountMinor:   params.AmountMinor,
		Currency:      params.Currency,
		CaptureMethod: params.CaptureMethod,
		Status:        platform.PaymentIntentRequiresPaymentMethod,
	}
	f.intents[id] = pi
	return pi, nil
}

func (f *FakePlatform) CreateAccount(ctx context.Context, params platform.AccountParams) (platform.Account, error) {
	if err := f.begin(ctx, OpAccount); err != nil {
		return platform.Account{}, err
	}
	f.lock.Lock()
	defer f.lock.Unlock()
	f.LastAccountParams = params
	acct := platform.Account{ID: "acct_" + newID(), Email: params.Email}
	f.accounts[acct.ID] = acct
	return acct, nil
}

func (f *FakePlatform) CreateAccountLink(ctx context.Context, params platform.AccountLinkParams) (platform.AccountLink, error) {
	if err := f.begin(ctx, OpAccountLink); err != nil {
		return platform.AccountLink{}, err
	}
	f.lock.Lock()
	defer f.lock.Unlock()
	f.LastAccountLinkParams = params
	if _, ok := f.accounts[params.Account]; !ok {
		return platform.AccountLink{}, &apperrors.UpstreamError{Op: OpAccountLink, Status: http.StatusBadRequest, Message: fmt.Sprintf("no such account: %s", params.Account)}
	}
	return platform.AccountLink{URL: "https://connect.example.test/setup/" + params.Account}, nil
}

func newID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:16]
}

package stripeplatform

import (
	"context"
	"errors"
	"net/http"
	"time"

	apperrors "github.com/phonetap/phonetap-server/internal/errors"
	"github.com/phonetap/phonetap-server/internal/logging"
	"github.com/phonetap/phonetap-server/platform"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
)

var _ platform.Gateway = (*StripePlatform)(nil)

type Config struct {
	SecretKey         string
	APIURL            string // empty uses api.stripe.com
	Timeout           time.Duration
	MaxNetworkRetries int64
	HTTPClient        *http.Client // optional, overrides Timeout
}

// StripePlatform implements platform.Gateway with stripe-go. The client is
// scoped to this value; the stripe package level key is never set.
type StripePlatform struct {
	api *client.API
}

// New returns ErrNotConfigured when no secret key is provided.
func New(cfg Config) (*StripePlatform, error) {
	if cfg.SecretKey == "" {
		return nil, apperrors.ErrNotConfigured
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	newBackendConfig := func() *stripe.BackendConfig {
		bc := &stripe.BackendConfig{
			HTTPClient:        httpClient,
			LeveledLogger:     logging.NewLeveledLogger("stripe"),
			MaxNetworkRetries: stripe.Int64(cfg.MaxNetworkRetries),
			EnableTelemetry:   stripe.Bool(false),
		}
		if cfg.APIURL != "" {
			bc.URL = stripe.String(cfg.APIURL)
		}
		return bc
	}

	backends := &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, newBackendConfig()),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, newBackendConfig()),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, newBackendConfig()),
	}

	return &StripePlatform{api: client.New(cfg.SecretKey, backends)}, nil
}

func (s *StripePlatform) CreateConnectionToken(ctx context.Context) (string, error) {
	params := &stripe.TerminalConnectionTokenParams{}
	params.Context = ctx

	token, err := s.api.TerminalConnectionTokens.New(params)
	if err != nil {
		return "", upstreamError("create connection token", err)
	}
	return token.Secret, nil
}

func (s *StripePlatform) ListLocations(ctx context.Context, limit int) ([]platform.Location, error) {
	if limit <= 0 {
		limit = 1
	}
	params := &stripe.TerminalLocationListParams{}
	params.Context = ctx
	params.Limit = stripe.Int64(int64(limit))

	locations := make([]platform.Location, 0, limit)
	iter := s.api.TerminalLocations.List(params)
	for len(locations) < limit && iter.Next() {
		loc := iter.TerminalLocation()
		locations = append(locations, platform.Location{ID: loc.ID, DisplayName: loc.DisplayName})
	}
	if err := iter.Err(); err != nil {
		return nil, upstreamError("list locations", err)
	}
	return locations, nil
}

func (s *StripePlatform) CreateLocation(ctx context.Context, p platform.LocationParams) (platform.Location, error) {
	params := &stripe.TerminalLocationParams{
		DisplayName: stripe.String(p.DisplayName),
		Address: &stripe.AddressParams{
			Line1:      stripe.String(p.Address.Line1),
			City:       stripe.String(p.Address.City),
			Country:    stripe.String(p.Address.Country),
			State:      stripe.String(p.Address.State),
			PostalCode: stripe.String(p.Address.PostalCode),
		},
	}
	params.Context = ctx

	loc, err := s.api.TerminalLocations.New(params)
	if err != nil {
		return platform.Location{}, upstreamError("create location", err)
	}
	return platform.Location{ID: loc.ID, DisplayName: loc.DisplayName}, nil
}

func (s *StripePlatform) CreatePaymentIntent(ctx context.Context, p platform.PaymentIntentParams) (platform.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(p.AmountMinor),
		Currency:           stripe.String(p.Currency),
		CaptureMethod:      stripe.String(string(p.CaptureMethod)),
		PaymentMethodTypes: stripe.StringSlice(p.PaymentMethodTypes),
	}
	params.Context = ctx

	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return platform.PaymentIntent{}, upstreamError("create payment intent", err)
	}
	return platform.PaymentIntent{
		ID:            pi.ID,
		ClientSecret:  pi.ClientSecret,
		AmountMinor:   pi.Amount,
		Currency:      string(pi.Currency),
		CaptureMethod: platform.CaptureMethod(pi.CaptureMethod),
		Status:        platform.PaymentIntentStatus(pi.Status),
	}, nil
}

func (s *StripePlatform) CreateAccount(ctx context.Context, p platform.AccountParams) (platform.Account, error) {
	params := &stripe.AccountParams{
		Type:    stripe.String(p.Type),
		Country: stripe.String(p.Country),
		TOSAcceptance: &stripe.AccountTOSAcceptanceParams{
			ServiceAgreement: stripe.String(p.ServiceAgreement),
		},
	}
	if p.Email != "" {
		params.Email = stripe.String(p.Email)
	}
	if p.RequestTransfers {
		params.Capabilities = &stripe.AccountCapabilitiesParams{
			Transfers: &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
		}
	}
	if p.Name != "" {
		params.AddMetadata("name", p.Name)
	}
	params.Context = ctx

	acct, err := s.api.Accounts.New(params)
	if err != nil {
		return platform.Account{}, upstreamError("create account", err)
	}
	return platform.Account{ID: acct.ID, Email: acct.Email}, nil
}

func (s *StripePlatform) CreateAccountLink(ctx context.Context, p platform.AccountLinkParams) (platform.AccountLink, error) {
	params := &stripe.AccountLinkParams{
		Account:    stripe.String(p.Account),
		RefreshURL: stripe.String(p.RefreshURL),
		ReturnURL:  stripe.String(p.ReturnURL),
		Type:       stripe.String(p.Type),
	}
	if p.Collect != "" {
		params.Collect = stripe.String(p.Collect)
	}
	params.Context = ctx

	link, err := s.api.AccountLinks.New(params)
	if err != nil {
		return platform.AccountLink{}, upstreamError("create account link", err)
	}
	return platform.AccountLink{URL: link.URL, ExpiresAt: link.ExpiresAt}, nil
}

func upstreamError(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return &apperrors.UpstreamError{
			Op:        op,
			Status:    stripeErr.HTTPStatusCode,
			Code:      string(stripeErr.Code),
			RequestID: stripeErr.RequestID,
			Message:   stripeErr.Msg,
			Err:       err,
		}
	}
	return &apperrors.UpstreamError{Op: op, Err: err}
}

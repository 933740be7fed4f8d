// Package connect creates connected sub-merchant accounts and their hosted
// onboarding links. The payment platform is the system of record; completion
// is only ever observed through the return URL query flag.
package connect

import (
	"context"
	"strings"

	apperrors "github.com/phonetap/phonetap-server/internal/errors"
	"github.com/phonetap/phonetap-server/platform"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Fixed account and link parameters for sub-merchant onboarding
const (
	DefaultCountry   = "JM"
	accountType      = "custom"
	serviceAgreement = "recipient"
	linkType         = "account_onboarding"
	linkCollect      = "eventually_due"
	returnPath       = "/getpaid"
)

// OnboardingStatus is what the return redirect tells us about onboarding
type OnboardingStatus string

const (
	OnboardingCompleted OnboardingStatus = "completed"
	OnboardingRefresh   OnboardingStatus = "refresh"
	OnboardingUnknown   OnboardingStatus = "unknown"
)

// Result of a successful onboarding start
type Result struct {
	AccountID     string
	OnboardingURL string
}

// Onboarding is the account onboarding initiator.
type Onboarding struct {
	gateway platform.Gateway
	baseURL string
	country string
}

// OnboardingOption defines a function type to modify the Onboarding instance.
type OnboardingOption func(*Onboarding)

// WithCountry overrides the connected account country
func WithCountry(country string) OnboardingOption {
	return func(o *Onboarding) {
		if country != "" {
			o.country = strings.ToUpper(country)
		}
	}
}

// NewOnboarding builds the initiator. baseURL is the deployment's public
// origin and is the only thing the redirect targets depend on.
func NewOnboarding(gateway platform.Gateway, baseURL string, options ...OnboardingOption) *Onboarding {
	o := &Onboarding{
		gateway: gateway,
		baseURL: strings.TrimRight(baseURL, "/"),
		country: DefaultCountry,
	}
	for _, opt := range options {
		opt(o)
	}
	return o
}

func (o *Onboarding) RefreshURL() string {
	return o.baseURL + returnPath + "?refresh=true"
}

func (o *Onboarding) ReturnURL() string {
	return o.baseURL + returnPath + "?success=true"
}

// CreateConnectedAccount creates the account then its onboarding link.
//
// The calls are sequential and nothing is rolled back: when the link fails the
// account is left behind and the error is a PartialError carrying its id. The
// id is for the server log, callers must not hand it to the client.
func (o *Onboarding) CreateConnectedAccount(ctx context.Context, email, name string) (Result, error) {
	if o.gateway == nil {
		log.Error().Msg("Onboarding requested but payment platform credential is not set")
		return Result{}, apperrors.ErrNotConfigured
	}

	log.Info().Str("email", email).Str("country", o.country).Msg("Creating connected account")
	acct, err := o.gateway.CreateAccount(ctx, platform.AccountParams{
		Type:             accountType,
		Country:          o.country,
		Email:            strings.TrimSpace(email),
		Name:             strings.TrimSpace(name),
		RequestTransfers: true,
		ServiceAgreement: serviceAgreement,
	})
	if err != nil {
		logUpstream(err, "Failed to create connected account")
		return Result{}, errors.Wrap(err, "[CreateConnectedAccount]")
	}
	log.Info().Str("account_id", acct.ID).Msg("Created connected account")

	link, err := o.gateway.CreateAccountLink(ctx, platform.AccountLinkParams{
		Account:    acct.ID,
		RefreshURL: o.RefreshURL(),
		ReturnURL:  o.ReturnURL(),
		Type:       linkType,
		Collect:    linkCollect,
	})
	if err != nil {
		logUpstream(err, "Failed to create onboarding link")
		log.Error().Str("orphaned_account_id", acct.ID).Msg("Connected account left without an onboarding link")
		return Result{}, errors.Wrap(&apperrors.PartialError{
			Op:         "create account link",
			OrphanedID: acct.ID,
			Err:        err,
		}, "[CreateConnectedAccount]")
	}

	return Result{AccountID: acct.ID, OnboardingURL: link.URL}, nil
}

// StatusFromQuery reads the flag the platform appends to the return redirect.
func StatusFromQuery(success, refresh string) OnboardingStatus {
	switch {
	case success == "true":
		return OnboardingCompleted
	case refresh == "true":
		return OnboardingRefresh
	default:
		return OnboardingUnknown
	}
}

func logUpstream(err error, msg string) {
	event := log.Error().Err(err)
	var upstream *apperrors.UpstreamError
	if apperrors.As(err, &upstream) {
		event = event.Str("op", upstream.Op).Int("upstream_status", upstream.Status).
			Str("upstream_request_id", upstream.RequestID)
	}
	event.Msg(msg)
}

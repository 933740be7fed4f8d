package terminal

import (
	"context"
	"math"
	"strings"

	apperrors "github.com/phonetap/phonetap-server/internal/errors"
	"github.com/phonetap/phonetap-server/platform"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const DefaultCurrency = "usd"

// IntentRef is what the client needs to collect against an intent.
type IntentRef struct {
	ID           string
	ClientSecret string
	AmountMinor  int64
	Currency     string
}

// PaymentIntentFactory creates card-present intents with automatic capture.
// Card-not-present checkout is not supported by design of the flow.
type PaymentIntentFactory struct {
	gateway platform.Gateway
}

func NewPaymentIntentFactory(gateway platform.Gateway) *PaymentIntentFactory {
	return &PaymentIntentFactory{gateway: gateway}
}

// ToMinorUnits converts a major unit amount to minor units, rounding half away from zero.
// Non-positive, non-finite or sub-cent amounts are rejected.
func ToMinorUnits(amount float64) (int64, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return 0, apperrors.ErrInvalidAmount
	}
	minor := math.Round(amount * 100)
	if minor < 1 || minor > math.MaxInt64/2 {
		return 0, apperrors.ErrInvalidAmount
	}
	return int64(minor), nil
}

// NormaliseCurrency lower-cases an ISO 4217 code and applies the default.
func NormaliseCurrency(currency string) (string, error) {
	currency = strings.ToLower(strings.TrimSpace(currency))
	if currency == "" {
		return DefaultCurrency, nil
	}
	if len(currency) != 3 {
		return "", apperrors.ErrInvalidRequest
	}
	for _, c := range currency {
		if c < 'a' || c > 'z' {
			return "", apperrors.ErrInvalidRequest
		}
	}
	return currency, nil
}

// CreateIntent validates before any upstream call is made.
func (f *PaymentIntentFactory) CreateIntent(ctx context.Context, amount float64, currency string) (IntentRef, error) {
	minor, err := ToMinorUnits(amount)
	if err != nil {
		log.Info().Float64("amount", amount).Msg("Invalid amount")
		return IntentRef{}, err
	}
	code, err := NormaliseCurrency(currency)
	if err != nil {
		log.Info().Str("currency", currency).Msg("Invalid currency")
		return IntentRef{}, err
	}
	if f.gateway == nil {
		log.Error().Msg("Payment intent requested but payment platform credential is not set")
		return IntentRef{}, apperrors.ErrNotConfigured
	}

	log.Info().Int64("amount_minor", minor).Str("currency", code).Msg("Creating payment intent")
	pi, err := f.gateway.CreatePaymentIntent(ctx, platform.PaymentIntentParams{
		AmountMinor:        minor,
		Currency:           code,
		CaptureMethod:      platform.CaptureMethodAutomatic,
		PaymentMethodTypes: []string{platform.PaymentMethodCardPresent},
	})
	if err != nil {
		logUpstream(err, "Failed to create payment intent")
		return IntentRef{}, errors.Wrap(err, "[CreateIntent]")
	}

	return IntentRef{ID: pi.ID, ClientSecret: pi.ClientSecret, AmountMinor: pi.AmountMinor, Currency: pi.Currency}, nil
}

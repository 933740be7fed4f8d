// Package platform defines the payment platform operations the server
// orchestrates. The platform is the system of record; nothing here is persisted.
package platform

import "context"

// Gateway is the set of upstream calls made by the terminal and connect flows.
type Gateway interface {
	CreateConnectionToken(ctx context.Context) (string, error)
	ListLocations(ctx context.Context, limit int) ([]Location, error)
	CreateLocation(ctx context.Context, params LocationParams) (Location, error)
	CreatePaymentIntent(ctx context.Context, params PaymentIntentParams) (PaymentIntent, error)
	CreateAccount(ctx context.Context, params AccountParams) (Account, error)
	CreateAccountLink(ctx context.Context, params AccountLinkParams) (AccountLink, error)
}

type Address struct {
	Line1      string `json:"line1"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Location is a physical acceptance point readers are registered to.
type Location struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type LocationParams struct {
	DisplayName string
	Address     Address
}

type CaptureMethod string

const (
	CaptureMethodAutomatic CaptureMethod = "automatic"
)

const PaymentMethodCardPresent = "card_present"

type PaymentIntentStatus string

const (
	PaymentIntentRequiresPaymentMethod PaymentIntentStatus = "requires_payment_method"
	PaymentIntentRequiresConfirmation  PaymentIntentStatus = "requires_confirmation"
	PaymentIntentRequiresAction        PaymentIntentStatus = "requires_action"
	PaymentIntentProcessing            PaymentIntentStatus = "processing"
	PaymentIntentSucceeded             PaymentIntentStatus = "succeeded"
	PaymentIntentCanceled              PaymentIntentStatus = "canceled"
)

type PaymentIntentParams struct {
	AmountMinor        int64 // minor units (cents)
	Currency           string
	CaptureMethod      CaptureMethod
	PaymentMethodTypes []string
}

type PaymentIntent struct {
	ID            string
	ClientSecret  string
	AmountMinor   int64
	Currency      string
	CaptureMethod CaptureMethod
	Status        PaymentIntentStatus
}

type AccountParams struct {
	Type             string // e.g. "custom"
	Country          string
	Email            string
	Name             string
	RequestTransfers bool
	ServiceAgreement string // e.g. "recipient"
}

type Account struct {
	ID    string
	Email string
}

type AccountLinkParams struct {
	Account    string
	RefreshURL string
	ReturnURL  string
	Type       string // "account_onboarding"
	Collect    string // "eventually_due"
}

type AccountLink struct {
	URL       string
	ExpiresAt int64
}

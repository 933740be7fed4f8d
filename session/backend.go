package session

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	apperrors "github.com/phonetap/phonetap-server/internal/errors"
	"github.com/phonetap/phonetap-server/internal/utils"
	"github.com/pkg/errors"
)

// Server paths called by the client
const (
	PathConnectionToken = "/terminal/token"
	PathLocation        = "/terminal/location"
	PathPaymentIntent   = "/terminal/payment-intent"
	PathConnectAccount  = "/connect/account"
)

var _ Backend = (*HTTPBackend)(nil)

type BackendConfig struct {
	BaseURL      string
	Timeout      time.Duration
	Retries      int    // network level retries only
	SessionToken string // bearer token when the server requires a session
}

// HTTPBackend calls the terminal server over HTTP.
type HTTPBackend struct {
	client *resty.Client
}

type apiError struct {
	Error string `json:"error"`
}

type tokenResponse struct {
	Secret string `json:"secret"`
}

type paymentIntentRequest struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency,omitempty"`
}

type connectAccountRequest struct {
	Email string  `json:"email,omitempty"`
	Name  *string `json:"name,omitempty"`
}

// AccountRef is the server's answer to an onboarding request
type AccountRef struct {
	AccountID     string `json:"accountId"`
	OnboardingURL string `json:"onboardingUrl"`
}

func NewHTTPBackend(cfg BackendConfig) *HTTPBackend {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(200 * time.Millisecond).
		// a response of any status is an answer, only transport failures are retried
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			return err != nil
		})
	if cfg.SessionToken != "" {
		client.SetAuthToken(cfg.SessionToken)
	}
	return &HTTPBackend{client: client}
}

func (b *HTTPBackend) ConnectionToken(ctx context.Context) (string, error) {
	var out tokenResponse
	if err := b.post(ctx, PathConnectionToken, nil, &out); err != nil {
		return "", err
	}
	if out.Secret == "" {
		return "", errors.Wrap(apperrors.ErrUpstreamRejected, "empty connection token")
	}
	return out.Secret, nil
}

func (b *HTTPBackend) Location(ctx context.Context) (LocationRef, error) {
	return b.location(ctx, PathLocation)
}

// RefreshLocation asks the server to drop its cached location and resolve again.
func (b *HTTPBackend) RefreshLocation(ctx context.Context) (LocationRef, error) {
	return b.location(ctx, PathLocation+"?refresh=true")
}

func (b *HTTPBackend) location(ctx context.Context, path string) (LocationRef, error) {
	var out LocationRef
	if err := b.post(ctx, path, nil, &out); err != nil {
		return LocationRef{}, err
	}
	if out.ID == "" {
		return LocationRef{}, errors.Wrap(apperrors.ErrUpstreamRejected, "empty location id")
	}
	return out, nil
}

func (b *HTTPBackend) PaymentIntent(ctx context.Context, amount float64, currency string) (IntentRef, error) {
	var out IntentRef
	err := b.post(ctx, PathPaymentIntent, paymentIntentRequest{Amount: amount, Currency: currency}, &out)
	return out, err
}

// CreateAccount starts onboarding for a connected account.
func (b *HTTPBackend) CreateAccount(ctx context.Context, email, name string) (AccountRef, error) {
	var out AccountRef
	req := connectAccountRequest{Email: email}
	if name != "" {
		req.Name = utils.Ptr(name)
	}
	err := b.post(ctx, PathConnectAccount, req, &out)
	return out, err
}

func (b *HTTPBackend) post(ctx context.Context, path string, body, out interface{}) error {
	var apiErr apiError
	req := b.client.R().SetContext(ctx).SetResult(out).SetError(&apiErr)
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Post(path)
	if err != nil {
		return &apperrors.UpstreamError{Op: "POST " + path, Err: err}
	}
	if resp.IsError() {
		return responseError(path, resp.StatusCode(), apiErr.Error)
	}
	return nil
}

func responseError(path string, status int, message string) error {
	upstream := &apperrors.UpstreamError{Op: "POST " + path, Status: status, Message: message}
	switch status {
	case http.StatusBadRequest:
		if path == PathPaymentIntent {
			return errors.Wrap(apperrors.ErrInvalidAmount, upstream.Error())
		}
		return errors.Wrap(apperrors.ErrInvalidRequest, upstream.Error())
	case http.StatusUnauthorized:
		return errors.Wrap(apperrors.ErrUnauthorized, upstream.Error())
	default:
		return upstream
	}
}

package stripeplatform_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/phonetap/phonetap-server/internal/errors"
	"github.com/phonetap/phonetap-server/platform"
	"github.com/phonetap/phonetap-server/platform/stripeplatform"
	"github.com/stretchr/testify/require"
)

const testSecretKey = "sk_test_123"

// fakeStripe records the last request and answers with a canned response
type fakeStripe struct {
	t      *testing.T
	status int
	body   string
	hits   atomic.Int32
	method string
	path   string
	query  url.Values
	form   url.Values
	authz  string
}

func newFakeStripe(t *testing.T, status int, body string) (*fakeStripe, *stripeplatform.StripePlatform) {
	t.Helper()
	fs := &fakeStripe{t: t, status: status, body: body}
	srv := httptest.NewServer(http.HandlerFunc(fs.serve))
	t.Cleanup(srv.Close)

	sp, err := stripeplatform.New(stripeplatform.Config{
		SecretKey:         testSecretKey,
		APIURL:            srv.URL,
		Timeout:           5 * time.Second,
		MaxNetworkRetries: 1,
	})
	require.NoError(t, err)
	return fs, sp
}

func (fs *fakeStripe) serve(w http.ResponseWriter, r *http.Request) {
	fs.hits.Add(1)
	require.NoError(fs.t, r.ParseForm())
	fs.method = r.Method
	fs.path = r.URL.Path
	fs.query = r.URL.Query()
	fs.form = r.PostForm
	fs.authz = r.Header.Get("Authorization")

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Request-Id", "req_test_1")
	w.WriteHeader(fs.status)
	_, _ = w.Write([]byte(fs.body))
}

// arrayValue returns the first element of a form encoded array, accepting both
// indexed (key[0]) and bracket (key[]) encodings.
func arrayValue(form url.Values, key string) string {
	if v := form.Get(key + "[0]"); v != "" {
		return v
	}
	return form.Get(key + "[]")
}

func TestNew_RequiresSecretKey(t *testing.T) {
	_, err := stripeplatform.New(stripeplatform.Config{})
	require.ErrorIs(t, err, apperrors.ErrNotConfigured)
}

func TestCreateConnectionToken(t *testing.T) {
	fs, sp := newFakeStripe(t, http.StatusOK, `{"object":"terminal.connection_token","secret":"pst_test_abc"}`)

	secret, err := sp.CreateConnectionToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "pst_test_abc", secret)
	require.Equal(t, http.MethodPost, fs.method)
	require.Equal(t, "/v1/terminal/connection_tokens", fs.path)
	require.Equal(t, "Bearer "+testSecretKey, fs.authz)
}

func TestCreatePaymentIntent_FormEncoding(t *testing.T) {
	fs, sp := newFakeStripe(t, http.StatusOK, `{
		"id":"pi_123","object":"payment_intent","client_secret":"pi_123_secret_456",
		"amount":2500,"currency":"usd","capture_method":"automatic","status":"requires_payment_method"
	}`)

	pi, err := sp.CreatePaymentIntent(context.Background(), platform.PaymentIntentParams{
		AmountMinor:        2500,
		Currency:           "usd",
		CaptureMethod:      platform.CaptureMethodAutomatic,
		PaymentMethodTypes: []string{platform.PaymentMethodCardPresent},
	})
	require.NoError(t, err)

	require.Equal(t, "/v1/payment_intents", fs.path)
	require.Equal(t, "2500", fs.form.Get("amount"))
	require.Equal(t, "usd", fs.form.Get("currency"))
	require.Equal(t, "automatic", fs.form.Get("capture_method"))
	require.Equal(t, "card_present", arrayValue(fs.form, "payment_method_types"))

	require.Equal(t, "pi_123", pi.ID)
	require.Equal(t, "pi_123_secret_456", pi.ClientSecret)
	require.Equal(t, int64(2500), pi.AmountMinor)
	require.Equal(t, platform.PaymentIntentRequiresPaymentMethod, pi.Status)
}

func TestListLocations(t *testing.T) {
	fs, sp := newFakeStripe(t, http.StatusOK, `{
		"object":"list","url":"/v1/terminal/locations","has_more":true,
		"data":[{"id":"tml_1","object":"terminal.location","display_name":"Front Desk"}]
	}`)

	locations, err := sp.ListLocations(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, []platform.Location{{ID: "tml_1", DisplayName: "Front Desk"}}, locations)
	require.Equal(t, http.MethodGet, fs.method)
	require.Equal(t, "1", fs.query.Get("limit"))
	require.Equal(t, int32(1), fs.hits.Load(), "a single page is enough")
}

func TestListLocations_Empty(t *testing.T) {
	_, sp := newFakeStripe(t, http.StatusOK, `{"object":"list","url":"/v1/terminal/locations","has_more":false,"data":[]}`)

	locations, err := sp.ListLocations(context.Background(), 1)
	require.NoError(t, err)
	require.Empty(t, locations)
}

func TestCreateLocation_Address(t *testing.T) {
	fs, sp := newFakeStripe(t, http.StatusOK, `{"id":"tml_new","object":"terminal.location","display_name":"PhoneTap Test Location"}`)

	loc, err := sp.CreateLocation(context.Background(), platform.LocationParams{
		DisplayName: "PhoneTap Test Location",
		Address: platform.Address{
			Line1: "123 Business St", City: "San Francisco", State: "CA", PostalCode: "94102", Country: "US",
		},
	})
	require.NoError(t, err)
	require.Equal(t, "tml_new", loc.ID)
	require.Equal(t, "/v1/terminal/locations", fs.path)
	require.Equal(t, "PhoneTap Test Location", fs.form.Get("display_name"))
	require.Equal(t, "123 Business St", fs.form.Get("address[line1]"))
	require.Equal(t, "San Francisco", fs.form.Get("address[city]"))
	require.Equal(t, "CA", fs.form.Get("address[state]"))
	require.Equal(t, "94102", fs.form.Get("address[postal_code]"))
	require.Equal(t, "US", fs.form.Get("address[country]"))
}

func TestCreateAccountAndLink(t *testing.T) {
	fs, sp := newFakeStripe(t, http.StatusOK, `{"id":"acct_1","object":"account","email":"m@example.com"}`)

	acct, err := sp.CreateAccount(context.Background(), platform.AccountParams{
		Type: "custom", Country: "JM", Email: "m@example.com", Name: "Market Stall",
		RequestTransfers: true, ServiceAgreement: "recipient",
	})
	require.NoError(t, err)
	require.Equal(t, "acct_1", acct.ID)
	require.Equal(t, "/v1/accounts", fs.path)
	require.Equal(t, "custom", fs.form.Get("type"))
	require.Equal(t, "JM", fs.form.Get("country"))
	require.Equal(t, "m@example.com", fs.form.Get("email"))
	require.Equal(t, "true", fs.form.Get("capabilities[transfers][requested]"))
	require.Equal(t, "recipient", fs.form.Get("tos_acceptance[service_agreement]"))
	require.Equal(t, "Market Stall", fs.form.Get("metadata[name]"))

	fs.body = `{"object":"account_link","url":"https://connect.stripe.com/setup/c/acct_1/abc","expires_at":1700000000}`
	link, err := sp.CreateAccountLink(context.Background(), platform.AccountLinkParams{
		Account:    "acct_1",
		RefreshURL: "http://localhost:3000/getpaid?refresh=true",
		ReturnURL:  "http://localhost:3000/getpaid?success=true",
		Type:       "account_onboarding",
		Collect:    "eventually_due",
	})
	require.NoError(t, err)
	require.Equal(t, "https://connect.stripe.com/setup/c/acct_1/abc", link.URL)
	require.Equal(t, "/v1/account_links", fs.path)
	require.Equal(t, "acct_1", fs.form.Get("account"))
	require.Equal(t, "account_onboarding", fs.form.Get("type"))
	require.Equal(t, "eventually_due", fs.form.Get("collect"))
	require.Equal(t, "http://localhost:3000/getpaid?success=true", fs.form.Get("return_url"))
}

func TestUpstreamRejection_IsNotRetried(t *testing.T) {
	fs, sp := newFakeStripe(t, http.StatusBadRequest, `{"error":{"type":"invalid_request_error","code":"parameter_invalid_integer","message":"Invalid integer: -5"}}`)

	_, err := sp.CreatePaymentIntent(context.Background(), platform.PaymentIntentParams{AmountMinor: -5, Currency: "usd"})
	require.Error(t, err)
	require.ErrorIs(t, err, apperrors.ErrUpstreamRejected)

	var upstream *apperrors.UpstreamError
	require.ErrorAs(t, err, &upstream)
	require.Equal(t, http.StatusBadRequest, upstream.Status)
	require.Equal(t, "create payment intent", upstream.Op)
	require.Equal(t, "Invalid integer: -5", upstream.Message)
	require.Equal(t, int32(1), fs.hits.Load())
}

func TestUpstreamRejection_Auth(t *testing.T) {
	_, sp := newFakeStripe(t, http.StatusUnauthorized, `{"error":{"type":"invalid_request_error","message":"Invalid API Key provided"}}`)

	_, err := sp.CreateConnectionToken(context.Background())
	require.ErrorIs(t, err, apperrors.ErrUpstreamRejected)
	require.NotContains(t, err.Error(), testSecretKey)
}

package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/phonetap/phonetap-server/internal/config"
	"github.com/phonetap/phonetap-server/platform"
	"github.com/phonetap/phonetap-server/platform/fakeplatform"
	"github.com/phonetap/phonetap-server/server"
	"github.com/phonetap/phonetap-server/server/sessiontoken"
	"github.com/phonetap/phonetap-server/session"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, gateway platform.Gateway) *server.Server {
	t.Helper()
	t.Setenv("ENV", "TEST")
	t.Setenv("BASE_URL", "https://tap.example.com")
	t.Setenv("SESSION_SIGNING_KEY", "")
	t.Setenv("ALLOWED_ORIGINS", "https://tap.example.com")
	t.Setenv("CONNECT_COUNTRY", "")
	t.Setenv("LOCATION_DISPLAY_NAME", "")
	if gateway == nil {
		return server.New(config.New(), nil, nil)
	}
	return server.New(config.New(), gateway, nil)
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestNotConfigured_EveryEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	for _, path := range []string{
		server.RouteTerminalToken,
		server.RouteTerminalLocation,
		server.RouteTerminalPaymentIntent,
		server.RouteConnectAccount,
		server.RouteAPIConnectionToken,
		server.RouteAPILocation,
		server.RouteAPIPaymentIntent,
		server.RouteAPIStripeConnect,
	} {
		rec := post(t, s, path, `{"amount": 0, "email": "a@example.com"}`)
		require.Equal(t, http.StatusInternalServerError, rec.Code, path)
		require.Equal(t, map[string]interface{}{"error": "Stripe not configured"}, decode(t, rec), path)
	}
}

func TestConnectionToken(t *testing.T) {
	fp := fakeplatform.New()
	rec := post(t, newTestServer(t, fp), server.RouteTerminalToken, "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.HasPrefix(decode(t, rec)["secret"].(string), "pst_test_"))
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestConnectionToken_UpstreamBodyNotLeaked(t *testing.T) {
	fp := fakeplatform.New()
	fp.Reject(fakeplatform.OpConnectionToken, http.StatusUnauthorized, "Invalid API Key provided: sk_test_leaky")

	rec := post(t, newTestServer(t, fp), server.RouteTerminalToken, "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "Failed to create connection token", decode(t, rec)["error"])
	require.NotContains(t, rec.Body.String(), "sk_test_leaky")
}

func TestLocation_IdempotentAcrossRequests(t *testing.T) {
	fp := fakeplatform.New()
	s := newTestServer(t, fp)

	first := decode(t, post(t, s, server.RouteTerminalLocation, ""))
	second := decode(t, post(t, s, server.RouteAPILocation, ""))

	require.NotEmpty(t, first["locationId"])
	require.Equal(t, first["locationId"], second["locationId"])
	require.Equal(t, "PhoneTap Test Location", first["displayName"])
	require.Len(t, fp.Locations(), 1)
}

func TestLocation_RefreshDropsCachedLocation(t *testing.T) {
	fp := fakeplatform.New()
	s := newTestServer(t, fp)

	first := decode(t, post(t, s, server.RouteTerminalLocation, ""))
	fp.RemoveLocation(first["locationId"].(string))

	refreshed := decode(t, post(t, s, server.RouteTerminalLocation+"?refresh=true", ""))
	require.NotEqual(t, first["locationId"], refreshed["locationId"])
	require.Len(t, fp.Locations(), 1)
}

func TestLocation_UpstreamFailure(t *testing.T) {
	fp := fakeplatform.New()
	fp.Reject(fakeplatform.OpListLocations, http.StatusServiceUnavailable, "maintenance window details")

	rec := post(t, newTestServer(t, fp), server.RouteTerminalLocation, "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "Failed to create location", decode(t, rec)["error"])
	require.NotContains(t, rec.Body.String(), "maintenance")
}

func TestPaymentIntent_CardPresent(t *testing.T) {
	fp := fakeplatform.New()
	rec := post(t, newTestServer(t, fp), server.RouteTerminalPaymentIntent, `{"amount": 25.00, "currency": "usd"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.NotEmpty(t, body["clientSecret"])
	require.NotEmpty(t, body["paymentIntentId"])
	require.Equal(t, platform.PaymentIntentParams{
		AmountMinor:        2500,
		Currency:           "usd",
		CaptureMethod:      platform.CaptureMethodAutomatic,
		PaymentMethodTypes: []string{platform.PaymentMethodCardPresent},
	}, fp.LastIntentParams)
}

func TestPaymentIntent_DefaultCurrency(t *testing.T) {
	fp := fakeplatform.New()
	rec := post(t, newTestServer(t, fp), server.RouteAPIPaymentIntent, `{"amount": 3}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "usd", fp.LastIntentParams.Currency)
	require.Equal(t, int64(300), fp.LastIntentParams.AmountMinor)
}

func TestPaymentIntent_BadRequests(t *testing.T) {
	tests := []struct {
		body    string
		message string
	}{
		{`{"amount": 0}`, "Invalid amount"},
		{`{"amount": -10}`, "Invalid amount"},
		{`{}`, "Invalid amount"},
		{``, "Invalid amount"},
		{`{"amount": 5, "currency": "dollars"}`, "Invalid currency"},
		{`{"amount": "five"}`, "Invalid request body"},
		{`not json`, "Invalid request body"},
	}

	fp := fakeplatform.New()
	s := newTestServer(t, fp)
	for _, tt := range tests {
		rec := post(t, s, server.RouteTerminalPaymentIntent, tt.body)
		require.Equal(t, http.StatusBadRequest, rec.Code, tt.body)
		require.Equal(t, tt.message, decode(t, rec)["error"], tt.body)
	}
	require.Zero(t, fp.TotalCalls())
}

func TestPaymentIntent_UpstreamFailure(t *testing.T) {
	fp := fakeplatform.New()
	fp.Reject(fakeplatform.OpPaymentIntent, http.StatusBadRequest, "card_present not enabled for acct_secret")

	rec := post(t, newTestServer(t, fp), server.RouteTerminalPaymentIntent, `{"amount": 10}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "Failed to create payment intent", decode(t, rec)["error"])
	require.NotContains(t, rec.Body.String(), "acct_secret")
}

func TestConnectAccount(t *testing.T) {
	fp := fakeplatform.New()
	rec := post(t, newTestServer(t, fp), server.RouteConnectAccount, `{"email": "vendor@example.com", "name": "Vendor"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.True(t, strings.HasPrefix(body["accountId"].(string), "acct_"))
	require.NotEmpty(t, body["onboardingUrl"])

	require.Equal(t, "JM", fp.LastAccountParams.Country)
	require.Equal(t, "https://tap.example.com/getpaid?refresh=true", fp.LastAccountLinkParams.RefreshURL)
	require.Equal(t, "https://tap.example.com/getpaid?success=true", fp.LastAccountLinkParams.ReturnURL)
}

func TestConnectAccount_LinkFailureHidesAccount(t *testing.T) {
	fp := fakeplatform.New()
	fp.Reject(fakeplatform.OpAccountLink, http.StatusBadRequest, "refresh_url invalid")

	rec := post(t, newTestServer(t, fp), server.RouteConnectAccount, `{"email": "vendor@example.com"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "Failed to create onboarding link", decode(t, rec)["error"])

	accounts := fp.Accounts()
	require.Len(t, accounts, 1, "the account is not rolled back")
	require.NotContains(t, rec.Body.String(), accounts[0].ID)
}

func TestConnectAccount_AccountFailure(t *testing.T) {
	fp := fakeplatform.New()
	fp.Reject(fakeplatform.OpAccount, http.StatusBadRequest, "country not supported")

	rec := post(t, newTestServer(t, fp), server.RouteAPIStripeConnect, `{"email": "vendor@example.com"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "Failed to create Stripe account", decode(t, rec)["error"])
	require.Zero(t, fp.Calls(fakeplatform.OpAccountLink))
}

func TestConnectReturn(t *testing.T) {
	s := newTestServer(t, fakeplatform.New())

	for query, want := range map[string]string{
		"?success=true": "completed",
		"?refresh=true": "refresh",
		"":              "unknown",
	} {
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, server.RouteConnectReturn+query, nil))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, want, decode(t, rec)["onboarding"], query)
	}
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(t, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, server.RouteHealth, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.Equal(t, "ok", body["status"])
	require.Equal(t, false, body["configured"])
}

func TestCorsPreflight(t *testing.T) {
	s := newTestServer(t, fakeplatform.New())

	req := httptest.NewRequest(http.MethodOptions, server.RouteTerminalPaymentIntent, nil)
	req.Header.Set("Origin", "https://tap.example.com")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "https://tap.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	require.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")

	req = httptest.NewRequest(http.MethodOptions, server.RouteTerminalPaymentIntent, nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestIDIsEchoed(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, server.RouteTerminalToken, nil)
	req.Header.Set("X-Request-ID", "req-abc")
	rec := httptest.NewRecorder()
	newTestServer(t, fakeplatform.New()).ServeHTTP(rec, req)

	require.Equal(t, "req-abc", rec.Header().Get("X-Request-ID"))
}

func TestPanicIsRecovered(t *testing.T) {
	fp := fakeplatform.New()
	fp.BeforeCall = func(op string) { panic("boom") }

	rec := post(t, newTestServer(t, fp), server.RouteTerminalToken, "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "Internal server error", decode(t, rec)["error"])
}

func TestRequireSession(t *testing.T) {
	const key = "signing-key"
	t.Setenv("ENV", "TEST")
	t.Setenv("SESSION_SIGNING_KEY", key)
	fp := fakeplatform.New()
	s := server.New(config.New(), fp, nil)

	rec := post(t, s, server.RouteTerminalToken, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Zero(t, fp.TotalCalls())

	req := httptest.NewRequest(http.MethodPost, server.RouteTerminalToken, nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := sessiontoken.Issue(key, "merchant-1", "merchant@example.com", time.Hour)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodPost, server.RouteConnectAccount, bytes.NewBufferString(`{"name": "Stall"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "merchant@example.com", fp.LastAccountParams.Email, "email falls back to the signed in merchant")
}

func TestSessionChargesThroughServer(t *testing.T) {
	fp := fakeplatform.New()
	srv := httptest.NewServer(newTestServer(t, fp))
	defer srv.Close()

	backend := session.NewHTTPBackend(session.BackendConfig{BaseURL: srv.URL, Timeout: 5 * time.Second})
	var sdk *session.SimulatedSDK
	sess := session.New(
		session.SimulatedFactory(func(s *session.SimulatedSDK) { sdk = s }),
		backend,
		session.WithSimulatedReader(true),
		session.WithoutCompatibilityCheck(),
	)

	reader, err := sess.Start(context.Background())
	require.NoError(t, err)
	require.Equal(t, session.SimulatedReaderID, reader.ID)
	require.Equal(t, fp.Locations()[0].ID, reader.Location)
	require.Equal(t, 1, sdk.TokensFetched())
	require.Equal(t, 1, fp.Calls(fakeplatform.OpConnectionToken))

	pi, err := sess.Charge(context.Background(), 12.50, "usd")
	require.NoError(t, err)
	require.Equal(t, platform.PaymentIntentSucceeded, pi.Status)
	require.Equal(t, int64(1250), fp.LastIntentParams.AmountMinor)
	require.Equal(t, session.Settled, sess.State())

	_, err = sess.Charge(context.Background(), 0, "usd")
	require.Error(t, err)
	require.Equal(t, session.ReaderConnected, sess.State(), "invalid amounts are refused before any network call")
}

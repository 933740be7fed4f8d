package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Terminal Routes
	RouteTerminalToken         = "/terminal/token"
	RouteTerminalLocation      = "/terminal/location"
	RouteTerminalPaymentIntent = "/terminal/payment-intent"

	// Connect Routes
	RouteConnectAccount = "/connect/account"
	RouteConnectReturn  = "/connect/return"

	// Paths the web client has always called, kept as aliases
	RouteAPIConnectionToken = "/api/terminal/connection-token"
	RouteAPILocation        = "/api/terminal/location"
	RouteAPIPaymentIntent   = "/api/terminal/payment-intent"
	RouteAPIStripeConnect   = "/api/stripe/connect"

	RouteHealth = "/healthz"
)

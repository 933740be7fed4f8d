package server

func (s *Server) initRoutes() {
	s.RegisterRouteHandler("GET "+RouteHealth, ChainMiddleware(s.HealthHandler(), s.StdMiddleware()...))

	// Terminal
	s.RegisterRouteHandler("POST "+RouteTerminalToken, ChainMiddleware(s.ConnectionTokenHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteTerminalLocation, ChainMiddleware(s.LocationHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteTerminalPaymentIntent, ChainMiddleware(s.PaymentIntentHandler(), s.APIMiddleware()...))

	// Connect
	s.RegisterRouteHandler("POST "+RouteConnectAccount, ChainMiddleware(s.ConnectAccountHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteConnectReturn, ChainMiddleware(s.ConnectReturnHandler(), s.StdMiddleware()...))

	// Aliases
	s.RegisterRouteHandler("POST "+RouteAPIConnectionToken, ChainMiddleware(s.ConnectionTokenHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAPILocation, ChainMiddleware(s.LocationHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAPIPaymentIntent, ChainMiddleware(s.PaymentIntentHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAPIStripeConnect, ChainMiddleware(s.ConnectAccountHandler(), s.APIMiddleware()...))

	// CORS preflight for every route
	s.RegisterRouteHandler("OPTIONS /", ChainMiddleware(s.PreflightHandler(), s.StdMiddleware()...))
}

package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/phonetap/phonetap-server/connect"
	"github.com/phonetap/phonetap-server/internal/config"
	"github.com/phonetap/phonetap-server/platform"
	"github.com/phonetap/phonetap-server/terminal"
	"github.com/phonetap/phonetap-server/terminal/locationstore"
	"github.com/rs/zerolog/log"
)

type Server struct {
	env    string // Environment (e.g., "DEV", "PROD")
	mux    *http.ServeMux
	routes []string
	config config.Config

	configured bool
	tokens     *terminal.TokenProvider
	locations  *terminal.LocationResolver
	intents    *terminal.PaymentIntentFactory
	onboarding *connect.Onboarding
}

// New wires the terminal and connect flows onto gateway. A nil gateway is
// allowed: every API route then answers 500 "Stripe not configured".
func New(config config.Config, gateway platform.Gateway, locationRepo locationstore.Repo) *Server {
	if locationRepo == nil {
		locationRepo = locationstore.NewInMemoryRepo()
	}

	s := &Server{
		env:        config.GetEnv(),
		mux:        http.NewServeMux(),
		config:     config,
		configured: gateway != nil,
		tokens:     terminal.NewTokenProvider(gateway),
		locations:  terminal.NewLocationResolver(gateway, locationRepo, terminal.WithDisplayName(config.GetLocationDisplayName())),
		intents:    terminal.NewPaymentIntentFactory(gateway),
		onboarding: connect.NewOnboarding(gateway, config.GetBaseURL(), connect.WithCountry(config.GetConnectCountry())),
	}
	if !s.configured {
		log.Warn().Msg("Payment platform credential not set, API routes will answer 500")
	}

	s.initRoutes()
	s.logRoutes()

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) Routes() []string {
	return append([]string(nil), s.routes...)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	log.Info().Msg(fmt.Sprintf("[%-19s] %s", colourMethod(method), path))
}

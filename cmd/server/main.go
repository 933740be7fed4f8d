package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/phonetap/phonetap-server/internal/config"
	apperrors "github.com/phonetap/phonetap-server/internal/errors"
	"github.com/phonetap/phonetap-server/internal/logging"
	"github.com/phonetap/phonetap-server/platform"
	"github.com/phonetap/phonetap-server/platform/fakeplatform"
	"github.com/phonetap/phonetap-server/platform/stripeplatform"
	"github.com/phonetap/phonetap-server/server"
	"github.com/phonetap/phonetap-server/terminal/locationstore"
	"github.com/rs/zerolog/log"
)

func main() {
	config.LoadDotEnv()
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Error running server")
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	logging.Setup(c.GetEnv(), c.GetLogLevel())
	displayAppname(c.GetAppName())

	gateway, err := newGateway(c)
	if err != nil {
		return err
	}
	repo, closeRepo, err := newLocationRepo(c)
	if err != nil {
		return err
	}
	defer closeRepo()

	srv := &http.Server{
		Addr:              c.GetPort(),
		Handler:           server.New(c, gateway, repo),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() { serveErr <- listenAndServe(srv) }()

	select {
	case err := <-serveErr:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(srv)
}

// newGateway returns a nil Gateway when no credential is configured so the
// server still starts and reports the configuration error per request.
func newGateway(c config.Config) (platform.Gateway, error) {
	if c.GetUseFakePlatform() {
		log.Warn().Msg("Using the in-memory payment platform")
		return fakeplatform.New(), nil
	}
	sp, err := stripeplatform.New(stripeplatform.Config{
		SecretKey:         c.GetSecretKey(),
		APIURL:            c.GetAPIURL(),
		Timeout:           c.GetUpstreamTimeout(),
		MaxNetworkRetries: c.GetUpstreamMaxRetries(),
	})
	if errors.Is(err, apperrors.ErrNotConfigured) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("[newGateway] %w", err)
	}
	return sp, nil
}

func newLocationRepo(c config.Config) (locationstore.Repo, func(), error) {
	if c.GetRedisURL() == "" {
		return locationstore.NewInMemoryRepo(), func() {}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	repo, err := locationstore.NewRedisRepo(ctx, c.GetRedisURL(),
		locationstore.WithPrefix(c.GetRedisKeyPrefix()),
		locationstore.WithCacheTTL(c.GetLocationCacheTTL()))
	if err != nil {
		return nil, nil, err
	}
	log.Info().Msg("Location cache using redis")
	return repo, func() { _ = repo.Close() }, nil
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}

package session

import (
	"context"
	"strings"
	"sync"

	"github.com/phonetap/phonetap-server/platform"
	"github.com/rs/zerolog/log"
)

// SimulatedSDK is an in-memory terminal SDK. It fetches a connection token on
// connect like the real SDK does, and can be told to fail any step.
type SimulatedSDK struct {
	mu        sync.Mutex
	fetch     TokenFetcher
	readers   []Reader
	connected *Reader
	events    chan Event
	tokens    int

	// FinalStatus is what ProcessPayment reports, succeeded when empty
	FinalStatus platform.PaymentIntentStatus

	FailDiscover ErrorKind
	FailConnect  ErrorKind
	FailCollect  ErrorKind
	FailProcess  ErrorKind

	// OnCollect runs while a payment method is being collected
	OnCollect func()
}

var _ SDK = (*SimulatedSDK)(nil)

// NewSimulatedSDK returns an SDK that discovers the given readers.
func NewSimulatedSDK(fetch TokenFetcher, readers ...Reader) *SimulatedSDK {
	return &SimulatedSDK{
		fetch:   fetch,
		readers: readers,
		events:  make(chan Event, 8),
	}
}

// SimulatedFactory builds a Factory whose SDK is handed to configure before use.
func SimulatedFactory(configure func(*SimulatedSDK), readers ...Reader) Factory {
	return func(fetch TokenFetcher) (SDK, error) {
		sdk := NewSimulatedSDK(fetch, readers...)
		if configure != nil {
			configure(sdk)
		}
		return sdk, nil
	}
}

func (s *SimulatedSDK) DiscoverReaders(ctx context.Context, cfg DiscoveryConfig) Result[[]Reader] {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailDiscover != KindNone {
		return Fail[[]Reader](s.FailDiscover, "discovery failed")
	}
	found := make([]Reader, 0, len(s.readers))
	for _, r := range s.readers {
		if r.Location == "" || r.Location == cfg.Location {
			r.Location = cfg.Location
			found = append(found, r)
		}
	}
	return Ok(found)
}

func (s *SimulatedSDK) ConnectReader(ctx context.Context, reader Reader) Result[Reader] {
	if s.fetch == nil {
		return Fail[Reader](KindTokenFetchFailed, "no connection token fetcher")
	}
	if _, err := s.fetch(ctx); err != nil {
		return Fail[Reader](KindTokenFetchFailed, err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens++
	if s.FailConnect != KindNone {
		return Fail[Reader](s.FailConnect, "connect failed")
	}
	reader.Status = ReaderOnline
	s.connected = &reader
	return Ok(reader)
}

func (s *SimulatedSDK) DisconnectReader(ctx context.Context) Result[struct{}] {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = nil
	return Ok(struct{}{})
}

func (s *SimulatedSDK) CollectPaymentMethod(ctx context.Context, clientSecret string, cfg CollectConfig) Result[PaymentIntent] {
	s.mu.Lock()
	connected := s.connected != nil
	failure := s.FailCollect
	hook := s.OnCollect
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	if !connected {
		return Fail[PaymentIntent](KindConnectionFailed, "no reader connected")
	}
	if failure != KindNone {
		return Fail[PaymentIntent](failure, "collect failed")
	}
	if err := ctx.Err(); err != nil {
		return Fail[PaymentIntent](KindCanceled, err.Error())
	}
	return Ok(PaymentIntent{
		ID:           intentIDFromSecret(clientSecret),
		ClientSecret: clientSecret,
		Status:       platform.PaymentIntentRequiresConfirmation,
	})
}

func (s *SimulatedSDK) ProcessPayment(ctx context.Context, intent PaymentIntent) Result[PaymentIntent] {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailProcess != KindNone {
		return Fail[PaymentIntent](s.FailProcess, "process failed")
	}
	intent.Status = s.FinalStatus
	if intent.Status == "" {
		intent.Status = platform.PaymentIntentSucceeded
	}
	return Ok(intent)
}

func (s *SimulatedSDK) Events() <-chan Event {
	return s.events
}

// Disconnect drops the connected reader and reports it as unexpected.
func (s *SimulatedSDK) Disconnect() {
	s.mu.Lock()
	var reader Reader
	if s.connected != nil {
		reader = *s.connected
	}
	s.connected = nil
	s.mu.Unlock()

	select {
	case s.events <- Event{Type: EventUnexpectedReaderDisconnect, Reader: reader, Message: "reader disconnected"}:
	default:
		log.Warn().Str("reader_id", reader.ID).Msg("Event buffer full, dropping reader disconnect")
	}
}

func (s *SimulatedSDK) Connected() (Reader, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected == nil {
		return Reader{}, false
	}
	return *s.connected, true
}

// TokensFetched counts connection tokens fetched by successful connects
func (s *SimulatedSDK) TokensFetched() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens
}

// intentIDFromSecret recovers "pi_123" from "pi_123_secret_abc"
func intentIDFromSecret(secret string) string {
	if i := strings.Index(secret, "_secret_"); i > 0 {
		return secret[:i]
	}
	return secret
}

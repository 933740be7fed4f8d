package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/phonetap/phonetap-server/internal/errors"
	"github.com/phonetap/phonetap-server/platform"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultCurrency       = "usd"
	DiscoveryMethod       = "tap_to_pay"
	SimulatedReaderID     = "tmr_mock_tap_to_pay"
	simulatedReaderLabel  = "iPhone Tap to Pay (Test Mode)"
	defaultSuccessDisplay = 3 * time.Second
	defaultFailureDisplay = 5 * time.Second
)

// LocationRef is the location the reader is discovered against
type LocationRef struct {
	ID          string `json:"locationId"`
	DisplayName string `json:"displayName"`
}

// IntentRef is what the server hands back for a new payment intent
type IntentRef struct {
	ClientSecret    string `json:"clientSecret"`
	PaymentIntentID string `json:"paymentIntentId"`
}

// Backend is the server side of the flow as seen from the client.
type Backend interface {
	ConnectionToken(ctx context.Context) (string, error)
	Location(ctx context.Context) (LocationRef, error)
	PaymentIntent(ctx context.Context, amount float64, currency string) (IntentRef, error)
}

// Options tune a Session. The zero value is usable.
type Options struct {
	// AllowSimulatedReader substitutes a placeholder reader when discovery finds none
	AllowSimulatedReader bool
	// SimulatedDiscovery asks the SDK for its simulated readers
	SimulatedDiscovery bool
	Device             Device
	// SkipCompatibilityCheck is for hosts where the Device is not meaningful (CLI, tests)
	SkipCompatibilityCheck bool
	SuccessDisplay         time.Duration
	FailureDisplay         time.Duration
	Now                    func() time.Time
}

type Option func(*Options)

func WithSimulatedReader(allow bool) Option {
	return func(o *Options) { o.AllowSimulatedReader = allow }
}

func WithSimulatedDiscovery(simulated bool) Option {
	return func(o *Options) { o.SimulatedDiscovery = simulated }
}

func WithDevice(d Device) Option {
	return func(o *Options) { o.Device = d }
}

func WithoutCompatibilityCheck() Option {
	return func(o *Options) { o.SkipCompatibilityCheck = true }
}

func WithDisplayWindows(success, failure time.Duration) Option {
	return func(o *Options) {
		o.SuccessDisplay = success
		o.FailureDisplay = failure
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Options) { o.Now = now }
}

// Snapshot is a copy of the session for rendering.
type Snapshot struct {
	ID            string
	State         State
	Reader        *Reader
	Readers       []Reader
	ClientSecret  string
	Intent        *PaymentIntent
	LastError     error
	Reason        string
	StatusMessage string
	Compatibility *CompatibilityReport
}

// Session drives one terminal through discover, connect, collect and process.
// It is owned by a single caller; concurrent operations are refused with
// ErrSessionBusy rather than queued. SDK events are applied by Watch.
type Session struct {
	id      string
	factory Factory
	backend Backend
	opts    Options
	logger  zerolog.Logger

	mu            sync.Mutex
	sdk           SDK
	state         State
	busy          bool
	closed        bool
	attempt       uint64 // bumped when an event invalidates in-flight work
	readers       []Reader
	reader        *Reader
	location      LocationRef
	secret        string
	intent        *PaymentIntent
	lastError     error
	reason        string
	statusMessage string
	statusUntil   time.Time
	compat        *CompatibilityReport
}

// New returns an uninitialized session. A nil factory means the host has no
// terminal SDK; Initialize will then fail with ErrSdkUnavailable.
func New(factory Factory, backend Backend, options ...Option) *Session {
	opts := Options{
		SuccessDisplay: defaultSuccessDisplay,
		FailureDisplay: defaultFailureDisplay,
		Now:            time.Now,
	}
	for _, opt := range options {
		opt(&opts)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	id := uuid.New().String()
	return &Session{
		id:      id,
		factory: factory,
		backend: backend,
		opts:    opts,
		state:   Uninitialized,
		logger:  log.With().Str("session_id", id).Logger(),
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Initialize constructs the SDK with a token fetcher bound to the backend.
func (s *Session) Initialize(ctx context.Context) error {
	attempt, err := s.begin(Uninitialized)
	if err != nil {
		return err
	}
	defer s.end()

	if s.factory == nil {
		return s.fail(attempt, apperrors.ErrSdkUnavailable, "Terminal SDK not loaded")
	}

	s.logger.Debug().Msg("Creating terminal SDK instance")
	sdk, err := s.construct()
	if err != nil {
		return s.fail(attempt, errors.Wrap(apperrors.ErrSdkUnavailable, err.Error()), "Failed to initialize terminal")
	}
	if sdk == nil {
		return s.fail(attempt, apperrors.ErrSdkUnavailable, "Terminal SDK not loaded")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sdk = sdk
	return s.transitionLocked(Initialized)
}

func (s *Session) construct() (sdk SDK, err error) {
	defer func() {
		if p := recover(); p != nil {
			sdk, err = nil, errors.Errorf("sdk construction panicked: %v", p)
		}
	}()
	return s.factory(s.fetchToken)
}

func (s *Session) fetchToken(ctx context.Context) (string, error) {
	secret, err := s.backend.ConnectionToken(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to fetch connection token")
		return "", err
	}
	return secret, nil
}

// Start runs Initialize, DiscoverReaders and ConnectReader in sequence, the way
// a freshly mounted page does.
func (s *Session) Start(ctx context.Context) (Reader, error) {
	if s.State() == Uninitialized {
		if err := s.Initialize(ctx); err != nil {
			return Reader{}, err
		}
	}
	if _, err := s.DiscoverReaders(ctx); err != nil {
		return Reader{}, err
	}
	return s.ConnectReader(ctx)
}

// DiscoverReaders resolves the location and lists readers for it. It may be
// called from Failed, Settled or ReaderConnected to start over.
//
// When nothing is found and AllowSimulatedReader is set, a single placeholder
// reader is returned instead of an error so the flow can run in test mode.
func (s *Session) DiscoverReaders(ctx context.Context) ([]Reader, error) {
	attempt, err := s.begin(Initialized, ReadersDiscovered, ReaderConnected, Settled, Failed)
	if err != nil {
		return nil, err
	}
	defer s.end()

	s.mu.Lock()
	if s.sdk == nil {
		s.mu.Unlock()
		return nil, s.fail(attempt, apperrors.ErrSdkUnavailable, "Terminal SDK not loaded")
	}
	if s.state != Initialized {
		if err := s.transitionLocked(Initialized); err != nil {
			s.mu.Unlock()
			return nil, err
		}
	}
	sdk := s.sdk
	s.mu.Unlock()

	if !s.opts.SkipCompatibilityCheck {
		report := CheckCompatibility(s.opts.Device)
		s.logger.Info().Bool("iphone", report.IsIPhone).Bool("secure", report.IsSecure).
			Bool("safari", report.IsSafari).Bool("ios_15_4", report.IOS15_4Plus).Msg("Compatibility check")
		for _, w := range report.Warnings {
			s.logger.Warn().Msg(w)
		}
		s.mu.Lock()
		s.compat = &report
		s.mu.Unlock()
		if !report.Compatible {
			return nil, s.fail(attempt, apperrors.ErrDeviceIncompatible, strings.Join(report.Incompatible, "; "))
		}
	}

	loc, err := s.backend.Location(ctx)
	if err != nil {
		return nil, s.fail(attempt, errors.Wrap(err, "resolve location"), "Failed to get location")
	}
	if err := s.stale(attempt); err != nil {
		return nil, err
	}
	s.logger.Info().Str("location_id", loc.ID).Msg("Using location")

	found := guard(func() Result[[]Reader] {
		return sdk.DiscoverReaders(ctx, DiscoveryConfig{
			Method:    DiscoveryMethod,
			Location:  loc.ID,
			Simulated: s.opts.SimulatedDiscovery,
		})
	})
	if !found.OK {
		return nil, s.fail(attempt, errors.Wrap(found.AsError(), "discover readers"), "Failed to discover readers")
	}
	readers := found.Value
	if len(readers) == 0 {
		if !s.opts.AllowSimulatedReader {
			return nil, s.fail(attempt, apperrors.ErrNoReader, "No Tap to Pay reader available")
		}
		s.logger.Warn().Str("location_id", loc.ID).Msg("No readers found, using a simulated reader")
		readers = []Reader{SimulatedReader(loc.ID)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attempt != attempt {
		return nil, s.lastErrorLocked()
	}
	s.location = loc
	s.readers = append([]Reader(nil), readers...)
	if err := s.transitionLocked(ReadersDiscovered); err != nil {
		return nil, err
	}
	return append([]Reader(nil), readers...), nil
}

// SimulatedReader is the placeholder used when discovery comes back empty.
func SimulatedReader(locationID string) Reader {
	return Reader{
		ID:         SimulatedReaderID,
		Label:      simulatedReaderLabel,
		DeviceType: DeviceTypeTapToPay,
		Status:     ReaderOnline,
		Location:   locationID,
		Simulated:  true,
	}
}

// ConnectReader connects the first discovered reader, disconnecting any
// reader this session already holds.
func (s *Session) ConnectReader(ctx context.Context) (Reader, error) {
	attempt, err := s.begin(ReadersDiscovered)
	if err != nil {
		return Reader{}, err
	}
	defer s.end()

	s.mu.Lock()
	if len(s.readers) == 0 {
		s.mu.Unlock()
		return Reader{}, s.fail(attempt, apperrors.ErrNoReader, "No reader to connect")
	}
	target := s.readers[0]
	previous := s.reader
	sdk := s.sdk
	s.mu.Unlock()

	if previous != nil {
		s.logger.Info().Str("reader_id", previous.ID).Msg("Disconnecting previous reader")
		if res := guard(func() Result[struct{}] { return sdk.DisconnectReader(ctx) }); !res.OK {
			s.logger.Warn().Str("kind", string(res.Err)).Str("reason", res.Message).Msg("Disconnect of previous reader failed")
		}
		s.mu.Lock()
		s.reader = nil
		s.mu.Unlock()
	}

	s.logger.Info().Str("reader_id", target.ID).Str("label", target.Label).Msg("Connecting to reader")
	res := guard(func() Result[Reader] { return sdk.ConnectReader(ctx, target) })
	if !res.OK {
		return Reader{}, s.fail(attempt, errors.Wrap(res.AsError(), "connect reader"), "Failed to connect reader")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attempt != attempt {
		return Reader{}, s.lastErrorLocked()
	}
	connected := res.Value
	if connected.ID == "" {
		connected = target
	}
	s.reader = &connected
	if err := s.transitionLocked(ReaderConnected); err != nil {
		return Reader{}, err
	}
	s.logger.Info().Str("reader_id", connected.ID).Msg("Reader connected")
	return connected, nil
}

// Charge creates an intent for amount (major units), collects a payment
// method on the connected reader and processes it. A Settled or Failed session
// that still holds a reader is re-armed first.
func (s *Session) Charge(ctx context.Context, amount float64, currency string) (PaymentIntent, error) {
	if err := s.rearmForCharge(); err != nil {
		return PaymentIntent{}, err
	}

	attempt, err := s.begin(ReaderConnected)
	if err != nil {
		return PaymentIntent{}, err
	}
	defer s.end()

	if !(amount > 0) {
		s.mu.Lock()
		s.setStatusLocked("Please enter a valid amount", s.opts.FailureDisplay)
		s.mu.Unlock()
		return PaymentIntent{}, apperrors.ErrInvalidAmount
	}
	if currency == "" {
		currency = DefaultCurrency
	}

	s.mu.Lock()
	s.secret, s.intent = "", nil
	s.setStatusLocked("Creating payment...", 0)
	sdk := s.sdk
	s.mu.Unlock()

	ref, err := s.backend.PaymentIntent(ctx, amount, currency)
	if err != nil {
		return PaymentIntent{}, s.fail(attempt, errors.Wrap(err, "create payment intent"), "Failed to create payment intent")
	}
	if ref.ClientSecret == "" {
		return PaymentIntent{}, s.fail(attempt, errors.Wrap(apperrors.ErrUpstreamRejected, "empty client secret"), "Failed to create payment intent")
	}

	s.mu.Lock()
	if s.attempt != attempt {
		defer s.mu.Unlock()
		return PaymentIntent{}, s.lastErrorLocked()
	}
	if s.reader == nil {
		s.mu.Unlock()
		return PaymentIntent{}, s.fail(attempt, apperrors.ErrNoReader, "Reader not connected")
	}
	s.secret = ref.ClientSecret
	if err := s.transitionLocked(CollectingPayment); err != nil {
		s.mu.Unlock()
		return PaymentIntent{}, err
	}
	s.setStatusLocked("Tap card or device...", 0)
	s.mu.Unlock()
	s.logger.Info().Str("payment_intent_id", ref.PaymentIntentID).Float64("amount", amount).Str("currency", currency).Msg("Collecting payment method")

	collected := guard(func() Result[PaymentIntent] {
		return sdk.CollectPaymentMethod(ctx, ref.ClientSecret, CollectConfig{EnableCustomerCancellation: true})
	})
	if !collected.OK {
		return PaymentIntent{}, s.fail(attempt, errors.Wrap(collected.AsError(), "collect payment method"), "Failed to collect payment method")
	}
	if err := s.advance(attempt, ProcessingPayment, collected.Value, "Processing payment..."); err != nil {
		return PaymentIntent{}, err
	}

	processed := guard(func() Result[PaymentIntent] { return sdk.ProcessPayment(ctx, collected.Value) })
	if !processed.OK {
		return PaymentIntent{}, s.fail(attempt, errors.Wrap(processed.AsError(), "process payment"), "Payment failed")
	}
	if processed.Value.Status != platform.PaymentIntentSucceeded {
		return PaymentIntent{}, s.fail(attempt, errors.Wrapf(apperrors.ErrPaymentFailed, "intent status %s", processed.Value.Status), "Payment failed")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attempt != attempt {
		return PaymentIntent{}, s.lastErrorLocked()
	}
	pi := processed.Value
	s.intent = &pi
	if err := s.transitionLocked(Settled); err != nil {
		return PaymentIntent{}, err
	}
	s.setStatusLocked("Payment successful!", s.opts.SuccessDisplay)
	s.logger.Info().Str("payment_intent_id", pi.ID).Msg("Payment succeeded")
	return pi, nil
}

func (s *Session) advance(attempt uint64, to State, pi PaymentIntent, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attempt != attempt {
		return s.lastErrorLocked()
	}
	s.intent = &pi
	if err := s.transitionLocked(to); err != nil {
		return err
	}
	s.setStatusLocked(status, 0)
	return nil
}

func (s *Session) rearmForCharge() error {
	s.mu.Lock()
	terminal := s.state.Terminal() && !s.busy && s.reader != nil
	s.mu.Unlock()
	if !terminal {
		return nil
	}
	_, err := s.Rearm()
	return err
}

// Rearm ends the current charge attempt. With a reader still held the session
// returns to ReaderConnected, otherwise to Initialized for a fresh discovery.
func (s *Session) Rearm() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.state, apperrors.ErrSessionClosed
	}
	if s.busy {
		return s.state, apperrors.ErrSessionBusy
	}
	if !s.state.Terminal() {
		return s.state, errors.Wrapf(apperrors.ErrInvalidTransition, "rearm from %s", s.state)
	}
	if s.sdk == nil {
		return s.state, errors.Wrapf(apperrors.ErrInvalidTransition, "rearm from %s without an sdk", s.state)
	}

	next := Initialized
	if s.reader != nil {
		next = ReaderConnected
	}
	if err := s.transitionLocked(next); err != nil {
		return s.state, err
	}
	s.secret, s.intent = "", nil
	s.reason, s.lastError = "", nil
	s.statusMessage = ""
	return next, nil
}

// Watch applies SDK events until ctx is done or the SDK closes its channel.
func (s *Session) Watch(ctx context.Context) {
	s.mu.Lock()
	sdk := s.sdk
	s.mu.Unlock()
	if sdk == nil {
		return
	}
	events := sdk.Events()
	if events == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.HandleEvent(ev)
		}
	}
}

// HandleEvent applies a single SDK event. An unexpected disconnect fails the
// session unless it has already settled, and any in-flight step is discarded.
func (s *Session) HandleEvent(ev Event) {
	switch ev.Type {
	case EventUnexpectedReaderDisconnect:
		s.mu.Lock()
		defer s.mu.Unlock()
		s.logger.Warn().Str("reader_id", ev.Reader.ID).Str("state", string(s.state)).Msg("Reader disconnected unexpectedly")
		s.reader = nil
		s.attempt++
		if s.state == Settled || s.closed {
			return
		}
		s.failLocked(apperrors.ErrReaderDisconnected, "Reader disconnected")
	case EventConnectionStatusChange:
		s.logger.Debug().Str("reader_id", ev.Reader.ID).Str("message", ev.Message).Msg("Connection status change")
	default:
		s.logger.Debug().Str("event", string(ev.Type)).Msg("Ignoring SDK event")
	}
}

// Close disconnects the reader. The session cannot be used afterwards.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.attempt++
	sdk, reader := s.sdk, s.reader
	s.reader = nil
	s.mu.Unlock()

	if sdk == nil || reader == nil {
		return nil
	}
	res := guard(func() Result[struct{}] { return sdk.DisconnectReader(ctx) })
	if !res.OK {
		s.logger.Warn().Str("kind", string(res.Err)).Msg("Disconnect on close failed")
		return res.AsError()
	}
	return nil
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:           s.id,
		State:        s.state,
		Readers:      append([]Reader(nil), s.readers...),
		ClientSecret: s.secret,
		LastError:    s.lastError,
		Reason:       s.reason,
	}
	if s.reader != nil {
		r := *s.reader
		snap.Reader = &r
	}
	if s.intent != nil {
		pi := *s.intent
		snap.Intent = &pi
	}
	if s.compat != nil {
		c := *s.compat
		snap.Compatibility = &c
	}
	if s.statusUntil.IsZero() || s.opts.Now().Before(s.statusUntil) {
		snap.StatusMessage = s.statusMessage
	}
	return snap
}

// begin claims the session for one operation started from one of the allowed states
func (s *Session) begin(allowed ...State) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, apperrors.ErrSessionClosed
	}
	if s.busy {
		return 0, apperrors.ErrSessionBusy
	}
	for _, st := range allowed {
		if s.state == st {
			s.busy = true
			return s.attempt, nil
		}
	}
	return 0, errors.Wrapf(apperrors.ErrInvalidTransition, "operation not allowed in state %s", s.state)
}

func (s *Session) end() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
}

// stale reports the recorded failure when an event has overtaken the current step
func (s *Session) stale(attempt uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attempt != attempt {
		return s.lastErrorLocked()
	}
	return nil
}

func (s *Session) lastErrorLocked() error {
	if s.lastError != nil {
		return s.lastError
	}
	return apperrors.ErrSessionClosed
}

func (s *Session) transitionLocked(to State) error {
	if !CanTransition(s.state, to) {
		return errors.Wrapf(apperrors.ErrInvalidTransition, "%s -> %s", s.state, to)
	}
	s.logger.Debug().Str("from", string(s.state)).Str("to", string(to)).Msg("Session transition")
	s.state = to
	return nil
}

// fail records err as the reason the attempt ended. When an event has already
// ended it, the failure recorded then is kept and returned instead.
func (s *Session) fail(attempt uint64, err error, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return err
	}
	if s.attempt != attempt {
		s.logger.Debug().Err(err).Msg("Step failed after the attempt had already ended")
		return s.lastErrorLocked()
	}
	s.failLocked(err, reason)
	return err
}

func (s *Session) failLocked(err error, reason string) {
	s.logger.Error().Err(err).Str("from", string(s.state)).Msg(reason)
	if s.state != Failed {
		if CanTransition(s.state, Failed) {
			s.state = Failed
		} else {
			s.logger.Warn().Str("state", string(s.state)).Msg("Failure recorded without leaving state")
		}
	}
	s.lastError = err
	s.reason = reason
	s.setStatusLocked(reason, s.opts.FailureDisplay)
}

// setStatusLocked sets the user facing message; a zero window keeps it until replaced
func (s *Session) setStatusLocked(message string, window time.Duration) {
	s.statusMessage = message
	if window > 0 {
		s.statusUntil = s.opts.Now().Add(window)
	} else {
		s.statusUntil = time.Time{}
	}
}

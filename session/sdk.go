package session

import (
	"context"
	"fmt"

	apperrors "github.com/phonetap/phonetap-server/internal/errors"
	"github.com/phonetap/phonetap-server/platform"
)

// ErrorKind classifies a failed SDK call
type ErrorKind string

const (
	KindNone              ErrorKind = ""
	KindUnavailable       ErrorKind = "sdk_unavailable"
	KindDiscoveryFailed   ErrorKind = "discovery_failed"
	KindConnectionFailed  ErrorKind = "connection_failed"
	KindReaderDisconnect  ErrorKind = "reader_disconnected"
	KindCollectFailed     ErrorKind = "collect_failed"
	KindCanceled          ErrorKind = "canceled"
	KindProcessFailed     ErrorKind = "process_failed"
	KindDeclined          ErrorKind = "declined"
	KindTokenFetchFailed  ErrorKind = "token_fetch_failed"
	KindUnexpectedFailure ErrorKind = "unexpected"
)

// Result is the outcome of one SDK call. Value is only meaningful when OK.
type Result[T any] struct {
	OK      bool
	Value   T
	Err     ErrorKind
	Message string
}

func Ok[T any](value T) Result[T] {
	return Result[T]{OK: true, Value: value}
}

func Fail[T any](kind ErrorKind, message string) Result[T] {
	return Result[T]{Err: kind, Message: message}
}

// AsError converts a failed result into an error, nil when OK
func (r Result[T]) AsError() error {
	if r.OK {
		return nil
	}
	return &SDKError{Kind: r.Err, Message: r.Message}
}

// SDKError is a failed Result lifted into the error chain
type SDKError struct {
	Kind    ErrorKind
	Message string
}

func (e *SDKError) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *SDKError) Unwrap() error {
	switch e.Kind {
	case KindUnavailable:
		return apperrors.ErrSdkUnavailable
	case KindReaderDisconnect:
		return apperrors.ErrReaderDisconnected
	case KindCollectFailed, KindCanceled, KindProcessFailed, KindDeclined:
		return apperrors.ErrPaymentFailed
	default:
		return nil
	}
}

type ReaderStatus string

const (
	ReaderOnline  ReaderStatus = "online"
	ReaderOffline ReaderStatus = "offline"
)

// DeviceTypeTapToPay is the software reader built into the phone
const DeviceTypeTapToPay = "tap_to_pay"

type Reader struct {
	ID         string       `json:"id"`
	Label      string       `json:"label"`
	DeviceType string       `json:"device_type"`
	Status     ReaderStatus `json:"status"`
	Location   string       `json:"location"`
	Simulated  bool         `json:"simulated,omitempty"`
}

// PaymentIntent as observed through the SDK. The session never changes its status.
type PaymentIntent struct {
	ID           string                       `json:"id"`
	ClientSecret string                       `json:"-"`
	AmountMinor  int64                        `json:"amount"`
	Currency     string                       `json:"currency"`
	Status       platform.PaymentIntentStatus `json:"status"`
}

type DiscoveryConfig struct {
	Method    string
	Location  string
	Simulated bool
}

type CollectConfig struct {
	EnableCustomerCancellation bool
}

type EventType string

const (
	EventUnexpectedReaderDisconnect EventType = "unexpectedReaderDisconnect"
	EventConnectionStatusChange     EventType = "connectionStatusChange"
)

type Event struct {
	Type    EventType
	Reader  Reader
	Message string
}

// SDK is the port to the terminal SDK. Implementations report failures
// through Result, and connection loss through Events instead of callbacks.
type SDK interface {
	DiscoverReaders(ctx context.Context, cfg DiscoveryConfig) Result[[]Reader]
	ConnectReader(ctx context.Context, reader Reader) Result[Reader]
	DisconnectReader(ctx context.Context) Result[struct{}]
	CollectPaymentMethod(ctx context.Context, clientSecret string, cfg CollectConfig) Result[PaymentIntent]
	ProcessPayment(ctx context.Context, intent PaymentIntent) Result[PaymentIntent]
	Events() <-chan Event
}

// TokenFetcher produces connection tokens on demand for the SDK
type TokenFetcher func(ctx context.Context) (string, error)

// Factory constructs the SDK for the host environment. A nil Factory means no SDK is present.
type Factory func(fetch TokenFetcher) (SDK, error)

// guard turns a panicking SDK call into a failed Result
func guard[T any](call func() Result[T]) (result Result[T]) {
	defer func() {
		if p := recover(); p != nil {
			result = Fail[T](KindUnexpectedFailure, fmt.Sprint(p))
		}
	}()
	return call()
}

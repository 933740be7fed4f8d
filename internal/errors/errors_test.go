package errors_test

import (
	"fmt"
	"testing"

	apperrors "github.com/phonetap/phonetap-server/internal/errors"
	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestUpstreamError_MatchesSentinel(t *testing.T) {
	err := &apperrors.UpstreamError{Op: "create location", Status: 402, Message: "card declined"}

	require.True(t, apperrors.Is(err, apperrors.ErrUpstreamRejected))
	require.False(t, apperrors.Is(err, apperrors.ErrUpstreamRejectedPartial))
	require.Contains(t, err.Error(), "402")
}

func TestUpstreamError_NetworkFailure(t *testing.T) {
	cause := fmt.Errorf("dial tcp: connection refused")
	err := &apperrors.UpstreamError{Op: "create connection token", Err: cause}

	require.True(t, apperrors.Is(err, apperrors.ErrUpstreamRejected))
	require.True(t, apperrors.Is(err, cause))
	require.Contains(t, err.Error(), "connection refused")
}

func TestPartialError_SurvivesWrapping(t *testing.T) {
	link := &apperrors.UpstreamError{Op: "create account link", Status: 400}
	err := pkgerrors.Wrap(&apperrors.PartialError{Op: "onboard", OrphanedID: "acct_1", Err: link}, "[Onboard]")

	require.True(t, apperrors.Is(err, apperrors.ErrUpstreamRejectedPartial))
	require.True(t, apperrors.Is(err, apperrors.ErrUpstreamRejected))

	var partial *apperrors.PartialError
	require.True(t, apperrors.As(err, &partial))
	require.Equal(t, "acct_1", partial.OrphanedID)
}

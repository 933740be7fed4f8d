package terminal

import (
	"context"

	apperrors "github.com/phonetap/phonetap-server/internal/errors"
	"github.com/phonetap/phonetap-server/platform"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// TokenProvider issues short lived connection tokens for the client SDK.
type TokenProvider struct {
	gateway platform.Gateway
}

func NewTokenProvider(gateway platform.Gateway) *TokenProvider {
	return &TokenProvider{gateway: gateway}
}

// IssueConnectionToken returns an opaque secret. Rotation is left to the SDK.
func (p *TokenProvider) IssueConnectionToken(ctx context.Context) (string, error) {
	if p.gateway == nil {
		log.Error().Msg("Connection token requested but payment platform credential is not set")
		return "", apperrors.ErrNotConfigured
	}

	log.Debug().Msg("Creating connection token")
	secret, err := p.gateway.CreateConnectionToken(ctx)
	if err != nil {
		logUpstream(err, "Failed to create connection token")
		return "", errors.Wrap(err, "[IssueConnectionToken]")
	}
	if secret == "" {
		return "", errors.Wrap(&apperrors.UpstreamError{Op: "create connection token", Message: "empty secret"}, "[IssueConnectionToken]")
	}
	return secret, nil
}

// logUpstream writes the upstream diagnostics to the server log only
func logUpstream(err error, msg string) {
	event := log.Error().Err(err)
	var upstream *apperrors.UpstreamError
	if apperrors.As(err, &upstream) {
		event = event.Str("op", upstream.Op).Int("upstream_status", upstream.Status).
			Str("upstream_code", upstream.Code).Str("upstream_request_id", upstream.RequestID)
	}
	event.Msg(msg)
}

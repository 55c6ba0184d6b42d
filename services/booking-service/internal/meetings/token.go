// Package meetings holds what the provider clients share.
package meetings

import (
	"context"
	"sync"

	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/model"
	"golang.org/x/oauth2"
)

// TokenSource returns a source seeded from in's stored token. Every token it
// hands out, refreshed or not, is copied back into in so callers can persist a
// rotated refresh token.
func TokenSource(ctx context.Context, cfg *oauth2.Config, in *model.Integration) oauth2.TokenSource {
	return &syncingSource{
		src: cfg.TokenSource(ctx, &oauth2.Token{
			AccessToken:  in.AccessToken,
			RefreshToken: in.RefreshToken,
			Expiry:       in.ExpiresAt,
		}),
		in: in,
	}
}

type syncingSource struct {
	mu  sync.Mutex
	src oauth2.TokenSource
	in  *model.Integration
}

func (s *syncingSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.in.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		s.in.RefreshToken = tok.RefreshToken
	}
	s.in.ExpiresAt = tok.Expiry
	return tok, nil
}

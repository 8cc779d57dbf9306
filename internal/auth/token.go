// Package auth supplies bearer credentials for the remote file store. How a
// credential is acquired (browser consent, refresh token, CLI login) is left
// to the TokenSource implementation.
package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/starford/taboard/internal/apperr"
)

// TokenSource obtains a bearer credential. Interactive calls may prompt the
// user; silent calls must fail with apperr.ErrAuth instead.
type TokenSource interface {
	Token(ctx context.Context, interactive bool) (string, error)
}

// TokenSourceFunc adapts a function to TokenSource.
type TokenSourceFunc func(ctx context.Context, interactive bool) (string, error)

func (f TokenSourceFunc) Token(ctx context.Context, interactive bool) (string, error) {
	return f(ctx, interactive)
}

// StaticTokenSource returns a fixed token, typically taken from configuration.
type StaticTokenSource struct {
	token string
}

// NewStatic creates a StaticTokenSource.
func NewStatic(token string) *StaticTokenSource {
	return &StaticTokenSource{token: strings.TrimSpace(token)}
}

func (s *StaticTokenSource) Token(ctx context.Context, _ bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.token == "" {
		return "", fmt.Errorf("auth: no credential configured: %w", apperr.ErrAuth)
	}
	return s.token, nil
}

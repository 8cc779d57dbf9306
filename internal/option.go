package internal

import (
	"io"

	"github.com/starford/taboard/internal/auth"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config    *Config
	logOutput io.Writer
	tokens    auth.TokenSource
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithLogOutput redirects logs, e.g. to stderr when stdout carries the MCP
// transport.
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOutput = w
	}
}

// WithTokenSource overrides the remote credential source. By default the
// configured static credential is used.
func WithTokenSource(ts auth.TokenSource) Option {
	return func(a *application) {
		a.tokens = ts
	}
}

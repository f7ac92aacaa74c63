package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/fwojciec/medic"
	"github.com/fwojciec/medic/gemini"
	"github.com/fwojciec/medic/openrouter"
	"github.com/fwojciec/medic/postgres"
	"github.com/fwojciec/medic/sqlite"
)

// newProvider constructs the reasoning provider and vision model. Both
// adapters serve the two roles from one client.
func newProvider(ctx context.Context, cfg config) (medic.Provider, medic.VisionModel, error) {
	switch cfg.provider {
	case providerOpenRouter:
		opts := []openrouter.Option{openrouter.WithAppTitle("medic")}
		if cfg.baseURL != "" {
			opts = append(opts, openrouter.WithBaseURL(cfg.baseURL))
		}
		c := openrouter.New(cfg.apiKey, opts...)
		return c, c, nil
	case providerGemini:
		opts := []gemini.Option{gemini.WithVisionModel(cfg.visionModel)}
		if cfg.baseURL != "" {
			opts = append(opts, gemini.WithBaseURL(cfg.baseURL))
		}
		c, err := gemini.New(ctx, cfg.apiKey, opts...)
		if err != nil {
			return nil, nil, err
		}
		return c, c, nil
	default:
		return nil, nil, fmt.Errorf("unknown provider %q", cfg.provider)
	}
}

// store is a closable SessionStore.
type store interface {
	medic.SessionStore
	Close() error
}

// openStore opens PostgreSQL for postgres:// DSNs and SQLite otherwise.
func openStore(ctx context.Context, dsn string) (store, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		s, err := postgres.Open(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		return s, nil
	}
	s, err := sqlite.New(dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	return s, nil
}

// Command medic serves the medical-assistant orchestration engine over HTTP.
//
// Usage:
//
//	OPENROUTER_API_KEY=sk-... medic [flags]
//	GEMINI_API_KEY=gk-...     medic [flags]
//
// Flags (each falls back to the MEDIC_* environment variable of the same name):
//
//	-addr string             Listen address (default ":8000")
//	-provider string         Provider: openrouter, gemini (auto-detected from env vars if omitted)
//	-model string            Reasoning model ID (default: provider default)
//	-vision-model string     Vision model ID (default: provider default)
//	-base-url string         Override the provider API base URL
//	-db string               SQLite path or postgres:// DSN (default "medic.db")
//	-max-iterations int      Reasoning iteration cap (default 5)
//	-tool-timeout duration   Per tool call timeout (default 15s)
//	-request-timeout duration Whole request timeout (default 2m)
//	-log-level string        debug, info, warn, error (default "info")
//
// TAVILY_API_KEY enables the web search tool.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fwojciec/medic/agent"
	"github.com/fwojciec/medic/goldmark"
	"github.com/fwojciec/medic/gopdf"
	medichttp "github.com/fwojciec/medic/http"
	"github.com/fwojciec/medic/prometheus"
	"github.com/fwojciec/medic/tavily"
	"github.com/fwojciec/medic/tools"
	"github.com/fwojciec/medic/vision"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(os.Args[1:], os.Getenv, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "medic: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, getenv func(string) string, stderr io.Writer) error {
	cfg, err := parseConfig(args, getenv)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.logLevel}))

	// Handle OS signals for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, visionModel, err := newProvider(ctx, cfg)
	if err != nil {
		return err
	}

	sessions, err := openStore(ctx, cfg.db)
	if err != nil {
		return err
	}
	defer sessions.Close()

	obs := prometheus.New()

	toolOpts := []tools.Option{
		tools.WithTimeout(cfg.toolTimeout),
		tools.WithLogger(logger),
		tools.WithObserver(obs),
	}
	var registry *tools.Registry
	if cfg.tavilyKey != "" {
		registry, err = tools.Default(tavily.New(cfg.tavilyKey), toolOpts...)
	} else {
		logger.Warn("TAVILY_API_KEY not set, web search disabled")
		registry, err = tools.Default(nil, toolOpts...)
	}
	if err != nil {
		return fmt.Errorf("tools: %w", err)
	}

	analyzer := vision.New(visionModel,
		vision.WithModel(cfg.visionModel),
		vision.WithLogger(logger),
	)

	agentOpts := []agent.Option{
		agent.WithStore(sessions),
		agent.WithVision(analyzer),
		agent.WithMaxIterations(cfg.maxIterations),
		agent.WithRequestTimeout(cfg.requestTimeout),
		agent.WithLogger(logger),
		agent.WithObserver(obs),
	}
	if cfg.model != "" {
		agentOpts = append(agentOpts, agent.WithModel(cfg.model))
	}
	orchestrator := agent.New(provider, registry, agentOpts...)

	srv := medichttp.New(orchestrator,
		medichttp.WithStore(sessions),
		medichttp.WithHTMLRenderer(goldmark.New()),
		medichttp.WithPDFRenderer(gopdf.New()),
		medichttp.WithObserver(obs),
		medichttp.WithLogger(logger),
	)

	logger.Info("listening",
		"addr", cfg.addr,
		"provider", cfg.provider,
		"vision_model", cfg.visionModel,
		"web_search", cfg.tavilyKey != "",
	)
	return srv.ListenAndServe(ctx, cfg.addr, shutdownTimeout)
}

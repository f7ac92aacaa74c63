package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"
)

const (
	providerOpenRouter = "openrouter"
	providerGemini     = "gemini"
)

// Vision model defaults per provider.
var defaultVisionModels = map[string]string{
	providerOpenRouter: "openai/gpt-4o",
	providerGemini:     "gemini-2.5-flash",
}

// config is the resolved process configuration.
type config struct {
	addr           string
	provider       string
	model          string
	visionModel    string
	baseURL        string
	db             string
	maxIterations  int
	toolTimeout    time.Duration
	requestTimeout time.Duration
	logLevel       slog.Level

	apiKey    string
	tavilyKey string
}

// parseConfig parses flags. Each flag defaults to its MEDIC_* environment
// variable, read through getenv.
func parseConfig(args []string, getenv func(string) string) (config, error) {
	env := func(name, fallback string) string {
		if v := getenv(name); v != "" {
			return v
		}
		return fallback
	}

	fs := flag.NewFlagSet("medic", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var (
		addr           = fs.String("addr", env("MEDIC_ADDR", ":8000"), "Listen address")
		provider       = fs.String("provider", env("MEDIC_PROVIDER", ""), "Provider: openrouter, gemini (auto-detected from env vars if omitted)")
		model          = fs.String("model", env("MEDIC_MODEL", ""), "Reasoning model ID (provider-specific)")
		visionModel    = fs.String("vision-model", env("MEDIC_VISION_MODEL", ""), "Vision model ID (provider-specific)")
		baseURL        = fs.String("base-url", env("MEDIC_BASE_URL", ""), "Override the provider API base URL")
		db             = fs.String("db", env("MEDIC_DB", "medic.db"), "SQLite path or postgres:// DSN")
		maxIterations  = fs.String("max-iterations", env("MEDIC_MAX_ITERATIONS", "5"), "Reasoning iteration cap")
		toolTimeout    = fs.String("tool-timeout", env("MEDIC_TOOL_TIMEOUT", "15s"), "Per tool call timeout")
		requestTimeout = fs.String("request-timeout", env("MEDIC_REQUEST_TIMEOUT", "2m"), "Whole request timeout")
		logLevel       = fs.String("log-level", env("MEDIC_LOG_LEVEL", "info"), "debug, info, warn, error")
	)
	if err := fs.Parse(args); err != nil {
		return config{}, fmt.Errorf("flags: %w", err)
	}

	cfg := config{
		addr:        *addr,
		model:       *model,
		visionModel: *visionModel,
		baseURL:     *baseURL,
		db:          *db,
		tavilyKey:   getenv("TAVILY_API_KEY"),
	}

	n, err := strconv.Atoi(*maxIterations)
	if err != nil || n < 1 {
		return config{}, fmt.Errorf("invalid -max-iterations %q: must be a positive integer", *maxIterations)
	}
	cfg.maxIterations = n
	if cfg.toolTimeout, err = parsePositiveDuration("tool-timeout", *toolTimeout); err != nil {
		return config{}, err
	}
	if cfg.requestTimeout, err = parsePositiveDuration("request-timeout", *requestTimeout); err != nil {
		return config{}, err
	}
	if err := cfg.logLevel.UnmarshalText([]byte(*logLevel)); err != nil {
		return config{}, fmt.Errorf("invalid -log-level %q: %w", *logLevel, err)
	}

	cfg.provider, cfg.apiKey, err = resolveProvider(*provider,
		firstNonEmpty(getenv("OPENROUTER_API_KEY"), getenv("OPENAI_API_KEY")),
		firstNonEmpty(getenv("GEMINI_API_KEY"), getenv("GOOGLE_API_KEY")),
	)
	if err != nil {
		return config{}, err
	}
	if cfg.visionModel == "" {
		cfg.visionModel = defaultVisionModels[cfg.provider]
	}
	return cfg, nil
}

// resolveProvider selects the provider and its key. Without an explicit
// choice exactly one key must be present.
func resolveProvider(providerFlag, openrouterKey, geminiKey string) (name, key string, err error) {
	name = providerFlag
	if name == "" {
		switch {
		case openrouterKey != "" && geminiKey != "":
			return "", "", errors.New("multiple API keys found (OPENROUTER_API_KEY, GEMINI_API_KEY): use -provider flag to select")
		case openrouterKey != "":
			name = providerOpenRouter
		case geminiKey != "":
			name = providerGemini
		default:
			return "", "", errors.New("no API key found: set OPENROUTER_API_KEY or GEMINI_API_KEY")
		}
	}

	switch name {
	case providerOpenRouter:
		if openrouterKey == "" {
			return "", "", errors.New("OPENROUTER_API_KEY not set")
		}
		return name, openrouterKey, nil
	case providerGemini:
		if geminiKey == "" {
			return "", "", errors.New("GEMINI_API_KEY not set")
		}
		return name, geminiKey, nil
	default:
		return "", "", fmt.Errorf("unknown provider %q: must be %q or %q", name, providerOpenRouter, providerGemini)
	}
}

func parsePositiveDuration(name, v string) (time.Duration, error) {
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid -%s %q: must be a positive duration", name, v)
	}
	return d, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// Package tools implements the closed tool registry offered to the
// reasoning model and the request-scoped executor that runs model-requested
// calls.
//
// Every failure a tool can have (unknown name, schema violation, handler
// error, timeout) is reported as a ToolResult with IsError set and an
// {"error": "..."} payload, so the model can recover and the turn is never
// aborted by a tool.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/fwojciec/medic"
	"github.com/xeipuuv/gojsonschema"
)

const defaultTimeout = 15 * time.Second

// Handler executes one tool call with schema-validated arguments and returns
// the JSON payload handed back to the model.
type Handler func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

// Typed adapts a function over decoded arguments into a Handler.
func Typed[A, R any](fn func(ctx context.Context, args A) (R, error)) Handler {
	return func(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
		var args A
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
		res, err := fn(ctx, args)
		if err != nil {
			return nil, err
		}
		return json.Marshal(res)
	}
}

type entry struct {
	tool    medic.Tool
	schema  *gojsonschema.Schema
	handler Handler
}

// Registry maps the known tool names to declarations and handlers. It is
// built once at startup and read-only afterwards, so one Registry may serve
// concurrent requests.
type Registry struct {
	entries  map[medic.ToolName]*entry
	order    []medic.ToolName
	timeout  time.Duration
	logger   *slog.Logger
	observer medic.Observer
}

// Option configures a [Registry].
type Option func(*Registry)

// WithTimeout sets the per-call timeout. Default is 15s.
func WithTimeout(d time.Duration) Option {
	return func(r *Registry) { r.timeout = d }
}

// WithLogger sets the logger. Default discards.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithObserver sets the metrics observer.
func WithObserver(o medic.Observer) Option {
	return func(r *Registry) { r.observer = o }
}

// NewRegistry creates an empty [Registry].
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		entries:  make(map[medic.ToolName]*entry),
		timeout:  defaultTimeout,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		observer: medic.NopObserver{},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register adds a tool. The name must be one of medic.ToolNames, the
// parameter schema must compile, and each name may be registered once.
func (r *Registry) Register(tool medic.Tool, h Handler) error {
	if _, err := medic.ParseToolName(string(tool.Name)); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	if _, ok := r.entries[tool.Name]; ok {
		return fmt.Errorf("register %s: already registered: %w", tool.Name, medic.ErrValidation)
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(tool.Parameters))
	if err != nil {
		return fmt.Errorf("register %s: invalid schema: %v: %w", tool.Name, err, medic.ErrValidation)
	}
	r.entries[tool.Name] = &entry{tool: tool, schema: schema, handler: h}
	r.order = append(r.order, tool.Name)
	return nil
}

// Tools returns the declarations in registration order.
func (r *Registry) Tools() []medic.Tool {
	tools := make([]medic.Tool, len(r.order))
	for i, n := range r.order {
		tools[i] = r.entries[n].tool
	}
	return tools
}

// NewExecutor returns an executor whose cache lives as long as one request.
func (r *Registry) NewExecutor() *Executor {
	return &Executor{
		reg:   r,
		cache: make(map[string]*medic.ToolResult),
	}
}

func (r *Registry) validate(e *entry, args json.RawMessage) error {
	res, err := e.schema.Validate(gojsonschema.NewBytesLoader(args))
	if err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if !res.Valid() {
		msgs := make([]string, len(res.Errors()))
		for i, d := range res.Errors() {
			msgs[i] = d.String()
		}
		return fmt.Errorf("invalid arguments: %v", msgs)
	}
	return nil
}

// errorResult builds the error-marker result returned to the model.
func errorResult(msg string) *medic.ToolResult {
	payload, _ := json.Marshal(map[string]string{"error": msg})
	return &medic.ToolResult{Payload: payload, IsError: true}
}

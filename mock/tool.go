package mock

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/fwojciec/medic"
)

var _ medic.ToolExecutor = (*ToolExecutor)(nil)

// ToolExecutor is a test double for medic.ToolExecutor. It records the
// names it was asked to run; ExecuteFn supplies the outcome.
type ToolExecutor struct {
	ExecuteFn func(ctx context.Context, name string, args json.RawMessage) (*medic.ToolResult, error)

	mu    sync.Mutex
	names []string
}

// Execute records name and delegates to ExecuteFn.
func (e *ToolExecutor) Execute(ctx context.Context, name string, args json.RawMessage) (*medic.ToolResult, error) {
	e.mu.Lock()
	e.names = append(e.names, name)
	e.mu.Unlock()
	return e.ExecuteFn(ctx, name, args)
}

// Names returns the tool names executed so far, in call order.
func (e *ToolExecutor) Names() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.names...)
}

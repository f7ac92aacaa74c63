package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fwojciec/medic"
	"golang.org/x/sync/singleflight"
)

// Compile-time interface check.
var _ medic.ToolExecutor = (*Executor)(nil)

// Executor runs tool calls for a single request. Successful results of
// cacheable tools are reused for identical arguments, and concurrent
// identical calls share one invocation. It is safe for concurrent use.
type Executor struct {
	reg   *Registry
	group singleflight.Group

	mu    sync.Mutex
	cache map[string]*medic.ToolResult
}

// Execute dispatches a tool call by name. It never returns a non-nil error;
// every failure is an IsError result.
func (e *Executor) Execute(ctx context.Context, name string, args json.RawMessage) (*medic.ToolResult, error) {
	tn, err := medic.ParseToolName(name)
	if err != nil {
		return errorResult(fmt.Sprintf("unknown tool: %s", name)), nil
	}
	ent, ok := e.reg.entries[tn]
	if !ok {
		return errorResult(fmt.Sprintf("tool not available: %s", name)), nil
	}
	canon, err := canonical(args)
	if err != nil {
		return errorResult(fmt.Sprintf("invalid arguments: %s", err)), nil
	}
	if err := e.reg.validate(ent, canon); err != nil {
		e.reg.logger.Warn("tool arguments rejected", "tool", tn, "error", err)
		return errorResult(err.Error()), nil
	}

	if !tn.Cacheable() {
		return e.run(ctx, ent, canon), nil
	}

	key := string(tn) + "\x00" + string(canon)
	if res := e.cached(key); res != nil {
		e.reg.logger.Debug("tool cache hit", "tool", tn)
		return res, nil
	}
	ran := false
	v, _, _ := e.group.Do(key, func() (any, error) {
		ran = true
		if res := e.cached(key); res != nil {
			return res, nil
		}
		res := e.run(ctx, ent, canon)
		if !res.IsError {
			e.mu.Lock()
			e.cache[key] = res
			e.mu.Unlock()
		}
		return res, nil
	})
	// Do reports shared to the caller that ran fn too; only joiners reuse.
	res := *v.(*medic.ToolResult)
	if !ran && !res.IsError {
		res.Cached = true
	}
	return &res, nil
}

func (e *Executor) cached(key string) *medic.ToolResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	res, ok := e.cache[key]
	if !ok {
		return nil
	}
	cp := *res
	cp.Cached = true
	return &cp
}

func (e *Executor) run(ctx context.Context, ent *entry, args json.RawMessage) *medic.ToolResult {
	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, e.reg.timeout)
	defer cancel()

	payload, err := ent.handler(callCtx, args)
	elapsed := time.Since(start)
	switch {
	case err == nil && callCtx.Err() == nil:
		e.reg.observer.ObserveToolCall(ent.tool.Name, "ok", elapsed)
		e.reg.logger.Info("tool executed", "tool", ent.tool.Name, "duration", elapsed)
		return &medic.ToolResult{Payload: payload}
	case errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		e.reg.observer.ObserveToolCall(ent.tool.Name, "timeout", elapsed)
		e.reg.logger.Warn("tool timed out", "tool", ent.tool.Name, "timeout", e.reg.timeout)
		return errorResult(fmt.Sprintf("%s timed out after %s", ent.tool.Name, e.reg.timeout))
	case err == nil:
		err = callCtx.Err()
		fallthrough
	default:
		e.reg.observer.ObserveToolCall(ent.tool.Name, "error", elapsed)
		e.reg.logger.Warn("tool failed", "tool", ent.tool.Name, "error", err)
		return errorResult(fmt.Sprintf("%s failed: %s", ent.tool.Name, err))
	}
}

// canonical re-encodes args with sorted object keys so that equivalent
// argument objects share a cache key. Empty args become {}.
func canonical(args json.RawMessage) (json.RawMessage, error) {
	if len(bytes.TrimSpace(args)) == 0 {
		return json.RawMessage(`{}`), nil
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(args))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

package agent

import (
	"context"
	"errors"

	"github.com/fwojciec/medic"
)

var errTerminated = errors.New("agent: event after terminal event")

// emitter delivers events to the consumer of one request. It is used from
// the request goroutine only. Sends give up when ctx (the caller's context,
// not the request deadline) is canceled, so a timed-out request can still
// report its terminal event.
type emitter struct {
	ctx    context.Context
	ch     chan<- medic.StreamEvent
	closed bool
}

func (e *emitter) emit(ev medic.StreamEvent) error {
	if e.closed {
		return errTerminated
	}
	select {
	case e.ch <- ev:
	case <-e.ctx.Done():
		return e.ctx.Err()
	}
	if medic.IsTerminal(ev) {
		e.closed = true
	}
	return nil
}

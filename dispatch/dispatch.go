// Package dispatch implements the Protocol Dispatcher (spec §4.3): an
// ordered list of handlers tried in registration order against a
// negotiated protocol identifier, each free to continue reading from
// the session, hand control back, or fail.
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/libp2p/go-libp2p/core/protocol"

	"github.com/gosuda/p2pcore/frame"
)

// Result is what a Handler's Handle method returns to tell the
// dispatcher what to do next.
type Result int

const (
	// Continue means the handler consumed the stream itself and the
	// dispatcher should take no further action for this connection.
	Continue Result = iota
	// Stop means the handler is done and the connection should be
	// closed cleanly.
	Stop
	// ErrorResult means the handler failed; the dispatcher surfaces the
	// accompanying error to its caller.
	ErrorResult
)

// Handler is one entry in the dispatcher's ordered list. CanHandle
// reports whether a handler is willing to serve a negotiated protocol
// identifier; Handle runs it; Shutdown releases any resources the
// handler holds, called once when the dispatcher itself is torn down.
type Handler interface {
	CanHandle(protocolID protocol.ID) bool
	Handle(ctx context.Context, protocolID protocol.ID, codec *frame.VarintCodec) (Result, error)
	Shutdown(ctx context.Context) error
}

// ErrNoHandler is returned when no registered handler claims a
// negotiated protocol identifier.
var ErrNoHandler = errors.New("dispatch: no handler for protocol")

// Dispatcher holds an ordered list of handlers and tries them in
// registration order (spec §4.3: "first handler that claims the
// protocol wins").
type Dispatcher struct {
	handlers []Handler
}

// New returns an empty dispatcher.
func New() *Dispatcher {
	return &Dispatcher{}
}

// Register appends a handler to the end of the dispatch order.
func (d *Dispatcher) Register(h Handler) {
	d.handlers = append(d.handlers, h)
}

// Dispatch finds the first handler willing to serve protocolID and
// runs it. It returns ErrNoHandler if none claims the identifier.
func (d *Dispatcher) Dispatch(ctx context.Context, protocolID protocol.ID, codec *frame.VarintCodec) (Result, error) {
	for _, h := range d.handlers {
		if !h.CanHandle(protocolID) {
			continue
		}
		result, err := h.Handle(ctx, protocolID, codec)
		if err != nil {
			return ErrorResult, fmt.Errorf("dispatch: handler for %q: %w", protocolID, err)
		}
		return result, nil
	}
	return ErrorResult, fmt.Errorf("%w: %q", ErrNoHandler, protocolID)
}

// Shutdown calls Shutdown on every registered handler, in registration
// order, collecting all errors rather than stopping at the first one.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	var errs []error
	for _, h := range d.handlers {
		if err := h.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

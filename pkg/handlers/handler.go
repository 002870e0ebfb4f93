// Package handlers composes domain aggregates, the event store, the
// ledger projection, the audit log, and idempotency into the six command
// handlers this module exposes: CreateUser, Transfer, Mint, Burn,
// UpdateUser, DeactivateUser.
package handlers

import (
	"context"

	"github.com/atplabs/ledger/pkg/domain"
)

// Envelope carries the cross-cutting fields every command handler needs
// regardless of its concrete command type.
type Envelope struct {
	CommandType   string
	CommandID     string
	CorrelationID string
	IdempotencyKey *string
	OpContext     domain.OperationContext
}

// HandlerFunc is the uniform shape every command handler and middleware
// layer is built against. cmd and result are the concrete per-command
// request/response structs (e.g. TransferCommand/TransferResult);
// middleware never needs to know their shape.
type HandlerFunc func(ctx context.Context, env Envelope, cmd any) (result any, err error)

// Middleware wraps a HandlerFunc with cross-cutting behavior.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares in the order given: the first middleware
// listed is the outermost.
func Chain(h HandlerFunc, mw ...Middleware) HandlerFunc {
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}

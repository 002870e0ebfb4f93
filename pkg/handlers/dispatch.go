package handlers

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/atplabs/ledger/pkg/domain"
)

// Dispatcher maps a command type name to the HandlerFunc adapter that
// decodes its JSON payload and invokes the concrete handler — the uniform
// entry point cmd/ledgerd's "exec" subcommand and any future HTTP
// collaborator both call through, so LoggingMiddleware/RecoveryMiddleware
// wrap every command type identically regardless of its concrete Go types.
type Dispatcher struct {
	deps     Deps
	handlers map[string]HandlerFunc
}

// NewDispatcher registers all six command handlers this package exposes.
func NewDispatcher(deps Deps) *Dispatcher {
	d := &Dispatcher{deps: deps, handlers: make(map[string]HandlerFunc)}

	d.register("create_user", func(ctx context.Context, env Envelope, raw any) (any, error) {
		var cmd CreateUserCommand
		if err := decodeCommand(raw, &cmd); err != nil {
			return nil, err
		}
		return CreateUser(ctx, deps, cmd, env.idempotencyUUID(), env.OpContext)
	})
	d.register("transfer", func(ctx context.Context, env Envelope, raw any) (any, error) {
		var cmd TransferCommand
		if err := decodeCommand(raw, &cmd); err != nil {
			return nil, err
		}
		return Transfer(ctx, deps, cmd, env.idempotencyUUID(), env.OpContext)
	})
	d.register("mint", func(ctx context.Context, env Envelope, raw any) (any, error) {
		var cmd MintCommand
		if err := decodeCommand(raw, &cmd); err != nil {
			return nil, err
		}
		return Mint(ctx, deps, cmd, env.idempotencyUUID(), env.OpContext)
	})
	d.register("burn", func(ctx context.Context, env Envelope, raw any) (any, error) {
		var cmd BurnCommand
		if err := decodeCommand(raw, &cmd); err != nil {
			return nil, err
		}
		return Burn(ctx, deps, cmd, env.idempotencyUUID(), env.OpContext)
	})
	d.register("update_user", func(ctx context.Context, env Envelope, raw any) (any, error) {
		var cmd UpdateUserCommand
		if err := decodeCommand(raw, &cmd); err != nil {
			return nil, err
		}
		return UpdateUser(ctx, deps, cmd, env.idempotencyUUID(), env.OpContext)
	})
	d.register("deactivate_user", func(ctx context.Context, env Envelope, raw any) (any, error) {
		var cmd DeactivateUserCommand
		if err := decodeCommand(raw, &cmd); err != nil {
			return nil, err
		}
		return DeactivateUser(ctx, deps, cmd, env.idempotencyUUID(), env.OpContext)
	})

	return d
}

func (d *Dispatcher) register(commandType string, fn HandlerFunc) {
	d.handlers[commandType] = fn
}

// Dispatch looks up env.CommandType and invokes it with payload as the raw
// (typically JSON-decoded-to-map or still-encoded) command body. wrap lets
// the caller install middleware (LoggingMiddleware, RecoveryMiddleware, ...)
// around every dispatch uniformly.
func (d *Dispatcher) Dispatch(ctx context.Context, env Envelope, payload any, wrap ...Middleware) (any, error) {
	h, ok := d.handlers[env.CommandType]
	if !ok {
		return nil, domain.ErrInvalidRequest("unknown command type: " + env.CommandType)
	}
	return Chain(h, wrap...)(ctx, env, payload)
}

func (e Envelope) idempotencyUUID() *uuid.UUID {
	if e.IdempotencyKey == nil {
		return nil
	}
	id, err := uuid.Parse(*e.IdempotencyKey)
	if err != nil {
		return nil
	}
	return &id
}

// decodeCommand unmarshals a []byte or string payload into out; any other
// value (a typed struct, a map, a json.RawMessage) is marshaled to JSON
// and then unmarshaled into out.
func decodeCommand(raw any, out any) error {
	switch v := raw.(type) {
	case []byte:
		return json.Unmarshal(v, out)
	case string:
		return json.Unmarshal([]byte(v), out)
	default:
		b, err := json.Marshal(raw)
		if err != nil {
			return fmt.Errorf("re-marshal command payload: %w", err)
		}
		return json.Unmarshal(b, out)
	}
}

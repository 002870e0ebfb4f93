package domain

import (
	"net"

	"github.com/google/uuid"
)

// OperationContext carries actor and tracing metadata through every
// command, from the HTTP collaborator (out of scope) down to the audit
// log row it produces.
type OperationContext struct {
	APIKeyID      *uuid.UUID
	RequestUserID *uuid.UUID
	CorrelationID string
	ClientIP      net.IP
}

// EnsureCorrelationID returns ctx with a freshly generated CorrelationID if
// one was not already supplied by the caller.
func (ctx OperationContext) EnsureCorrelationID() OperationContext {
	if ctx.CorrelationID == "" {
		ctx.CorrelationID = uuid.NewString()
	}
	return ctx
}

// WithRequestUserID returns a copy of ctx with RequestUserID set.
func (ctx OperationContext) WithRequestUserID(id uuid.UUID) OperationContext {
	ctx.RequestUserID = &id
	return ctx
}

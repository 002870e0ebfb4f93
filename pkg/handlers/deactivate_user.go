package handlers

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/atplabs/ledger/pkg/domain"
	"github.com/atplabs/ledger/pkg/idempotency"
	"github.com/atplabs/ledger/pkg/store"
)

// DeactivateUserCommand soft-deletes a user.
type DeactivateUserCommand struct {
	UserID uuid.UUID
	Reason *string
}

type DeactivateUserResult struct {
	UserID uuid.UUID
}

func DeactivateUser(ctx context.Context, d Deps, cmd DeactivateUserCommand, idempotencyKey *uuid.UUID, opCtx domain.OperationContext) (*DeactivateUserResult, error) {
	user, err := loadUser(ctx, d.Events, cmd.UserID)
	if err != nil {
		return nil, err
	}

	event, err := user.Deactivate(cmd.Reason)
	if err != nil {
		return nil, err
	}

	data, err := encodeEvent(event)
	if err != nil {
		return nil, err
	}

	var requestHash string
	if idempotencyKey != nil {
		h, err := idempotency.ComputeRequestHash(cmd)
		if err != nil {
			return nil, err
		}
		requestHash = h
	}

	ops := []store.AggregateOp{{AggregateType: "User", AggregateID: user.ID(), ExpectedVersion: user.Version(), EventType: event.EventType(), EventData: data}}
	result, err := d.Events.AppendAtomic(ctx, ops, idempotencyKey, requestHash, opCtx)
	if err != nil {
		return nil, fmt.Errorf("append deactivate-user event: %w", err)
	}

	if result.AlreadyProcessed {
		recordReplayHit(d)
		var cached DeactivateUserResult
		if err := json.Unmarshal(result.CachedResponseBody, &cached); err != nil {
			return nil, err
		}
		return &cached, nil
	}

	updated := user.Apply(event)
	if err := saveUserSnapshotIfNeeded(ctx, d.Events, updated); err != nil {
		return nil, err
	}

	resourceType, resourceID := "user", cmd.UserID.String()
	before, _ := encodeEvent(map[string]string{"status": string(user.Status())})
	after, _ := encodeEvent(map[string]string{"status": string(updated.Status())})
	if _, err := d.Audit.Record(ctx, "deactivate_user", opCtx.RequestUserID, &resourceType, &resourceID, before, after, []string{"status"}, clientIPString(opCtx)); err != nil {
		// best-effort: see recordMovementAudit's note on audit as a secondary trail.
	}

	out := &DeactivateUserResult{UserID: cmd.UserID}
	if err := completeIdempotent(ctx, d, idempotencyKey, result.EventIDs[0], out); err != nil {
		return nil, err
	}
	return out, nil
}

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

// UpdateUserCommand changes display_name and/or email.
type UpdateUserCommand struct {
	UserID  uuid.UUID
	Changes domain.UserChanges
}

type UpdateUserResult struct {
	UserID uuid.UUID
}

func UpdateUser(ctx context.Context, d Deps, cmd UpdateUserCommand, idempotencyKey *uuid.UUID, opCtx domain.OperationContext) (*UpdateUserResult, error) {
	user, err := loadUser(ctx, d.Events, cmd.UserID)
	if err != nil {
		return nil, err
	}

	event, err := user.Update(cmd.Changes)
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
		return nil, fmt.Errorf("append update-user event: %w", err)
	}

	if result.AlreadyProcessed {
		recordReplayHit(d)
		var cached UpdateUserResult
		if err := json.Unmarshal(result.CachedResponseBody, &cached); err != nil {
			return nil, err
		}
		return &cached, nil
	}

	updated := user.Apply(event)
	if err := saveUserSnapshotIfNeeded(ctx, d.Events, updated); err != nil {
		return nil, err
	}

	before, _ := encodeEvent(userAuditSnapshot{DisplayName: user.DisplayName(), Email: user.Email()})
	after, _ := encodeEvent(userAuditSnapshot{DisplayName: updated.DisplayName(), Email: updated.Email()})
	resourceType, resourceID := "user", cmd.UserID.String()
	if _, err := d.Audit.Record(ctx, "update_user", opCtx.RequestUserID, &resourceType, &resourceID, before, after, changedUserFields(cmd.Changes), clientIPString(opCtx)); err != nil {
		// best-effort: see recordMovementAudit's note on audit as a secondary trail.
	}

	out := &UpdateUserResult{UserID: cmd.UserID}
	if err := completeIdempotent(ctx, d, idempotencyKey, result.EventIDs[0], out); err != nil {
		return nil, err
	}
	return out, nil
}

// userAuditSnapshot is the before/after shape recorded for update_user audit
// entries.
type userAuditSnapshot struct {
	DisplayName *string `json:"display_name"`
	Email       string  `json:"email"`
}

func changedUserFields(c domain.UserChanges) []string {
	var fields []string
	if c.DisplayName != nil {
		fields = append(fields, "display_name")
	}
	if c.Email != nil {
		fields = append(fields, "email")
	}
	return fields
}

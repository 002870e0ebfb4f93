package handlers

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/atplabs/ledger/pkg/domain"
)

// encodeEvent marshals any concrete domain event to its JSON wire form for
// store.AggregateOp.EventData.
func encodeEvent(event any) ([]byte, error) {
	return json.Marshal(event)
}

// decodeAccountEvent reconstructs the concrete AccountEvent a stored row's
// event_type names, so a loaded event stream can be folded back through
// Account.Apply.
func decodeAccountEvent(eventType string, data []byte) (domain.AccountEvent, error) {
	switch eventType {
	case "AccountCreated":
		var e domain.AccountCreated
		return e, json.Unmarshal(data, &e)
	case "MoneyDebited":
		var e domain.MoneyDebited
		return e, json.Unmarshal(data, &e)
	case "MoneyCredited":
		var e domain.MoneyCredited
		return e, json.Unmarshal(data, &e)
	case "AccountFrozen":
		var e domain.AccountFrozen
		return e, json.Unmarshal(data, &e)
	case "AccountUnfrozen":
		var e domain.AccountUnfrozen
		return e, json.Unmarshal(data, &e)
	default:
		return nil, fmt.Errorf("unknown account event type: %s", eventType)
	}
}

func decodeUserEvent(eventType string, data []byte) (domain.UserEvent, error) {
	switch eventType {
	case "UserCreated":
		var e domain.UserCreated
		return e, json.Unmarshal(data, &e)
	case "UserUpdated":
		var e domain.UserUpdated
		return e, json.Unmarshal(data, &e)
	case "UserDeactivated":
		var e domain.UserDeactivated
		return e, json.Unmarshal(data, &e)
	case "UserReactivated":
		var e domain.UserReactivated
		return e, json.Unmarshal(data, &e)
	default:
		return nil, fmt.Errorf("unknown user event type: %s", eventType)
	}
}

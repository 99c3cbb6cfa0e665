package audit

import (
	"context"

	id "attest/pkg/domain"
)

// Store persists the append-only audit trail. Implementations must preserve
// append order: List and ListByPrincipal return events in the order they were
// appended so callers can assert on exact event sequences.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByPrincipal(ctx context.Context, principal id.Principal) ([]Event, error)
	List(ctx context.Context) ([]Event, error)
}

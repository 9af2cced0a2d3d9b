// Package outbox is the durable webhook delivery queue: accepting an
// event and delivering it to the external gateway are decoupled by a
// table that survives delivery failures.
package outbox

import (
	"encoding/json"
	"errors"
	"time"
)

// Listing status filters.
const (
	StatusPending    = "pending"
	StatusDispatched = "dispatched"
)

var (
	// ErrEntryNotFound is returned when an entry does not exist or is no
	// longer a retryable target (already dispatched)
	ErrEntryNotFound = errors.New("outbox entry not found")
)

// Entry is one outbound webhook delivery.
type Entry struct {
	EntryID      string          `db:"entry_id"`
	Kind         string          `db:"kind"`
	Destination  string          `db:"destination"`
	Body         json.RawMessage `db:"body"`
	Attempts     int             `db:"attempts"`
	LastError    *string         `db:"last_error"`
	RunAt        time.Time       `db:"run_at"`
	DispatchedAt *time.Time      `db:"dispatched_at"`
	CreatedAt    time.Time       `db:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"`
}

// Dispatched reports whether the entry reached its destination. A
// dispatched entry is terminal.
func (e *Entry) Dispatched() bool {
	return e.DispatchedAt != nil
}

// Stats are the counts surfaced by the status endpoint.
type Stats struct {
	Pending    int `db:"pending" json:"pending"`
	Failed     int `db:"failed" json:"failed"`
	Dispatched int `db:"dispatched" json:"dispatched"`
}

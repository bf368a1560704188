// Package events records structured pipeline events in sqlite for
// observability: stage transitions, abort causes, intake decisions, and
// retention cleanup cycles. The event log is advisory only — completion
// truth lives in the ledger, never here.
package events

import "time"

// Type identifies what happened
type Type string

const (
	// TypeIntakeAccepted indicates a webhook delivery was admitted as work
	TypeIntakeAccepted Type = "intake_accepted"
	// TypeIntakeSkipped indicates a delivery was dropped before admission
	// (duplicate, draft, already completed, uninteresting action)
	TypeIntakeSkipped Type = "intake_skipped"
	// TypeStageChanged indicates a pipeline moved to a new stage
	TypeStageChanged Type = "stage_changed"
	// TypeItemCompleted indicates a pipeline committed its review record
	TypeItemCompleted Type = "item_completed"
	// TypeItemAborted indicates a pipeline hit a terminal failure
	TypeItemAborted Type = "item_aborted"
	// TypeDuplicateShortCircuit indicates the external duplicate guard
	// found an existing review and skipped generation
	TypeDuplicateShortCircuit Type = "duplicate_short_circuit"
	// TypeCleanupCompleted indicates an event retention cycle finished
	TypeCleanupCompleted Type = "cleanup_completed"
)

// Severity indicates how much a human should care
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Event is one row in the event log
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Severity  Severity  `json:"severity"`
	ItemID    int64     `json:"item_id,omitempty"` // 0 when not item-scoped
	Message   string    `json:"message"`
	Data      string    `json:"data,omitempty"` // JSON blob, free-form
	CreatedAt time.Time `json:"created_at"`
}

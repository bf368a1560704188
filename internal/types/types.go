// Package types defines the shared data model for the review scheduler:
// work items admitted from webhook deliveries, review records persisted to
// the completion ledger, and the enums both carry.
package types

import (
	"fmt"
	"strings"
	"time"
)

// WorkItem is one unit of review work derived from a pull request event.
// The ID is the forge's stable numeric identifier for the pull request and
// is the canonical deduplication key; Number is the human-facing PR number.
// A WorkItem is immutable once admitted.
type WorkItem struct {
	ID           int64     `json:"id"`
	Number       int       `json:"number"`
	Locator      string    `json:"locator"` // "owner/repo#number"
	Title        string    `json:"title,omitempty"`
	Author       string    `json:"author,omitempty"`
	ChangedLines int       `json:"changed_lines"`
	UpdatedAt    time.Time `json:"updated_at"`
	ReceivedAt   time.Time `json:"received_at"`
}

// Validate checks that the item carries the fields the pipeline depends on
func (w *WorkItem) Validate() error {
	if w.ID <= 0 {
		return fmt.Errorf("item id must be positive (got %d)", w.ID)
	}
	if w.Number <= 0 {
		return fmt.Errorf("pull request number must be positive (got %d)", w.Number)
	}
	if strings.TrimSpace(w.Locator) == "" {
		return fmt.Errorf("locator is required")
	}
	if w.ChangedLines < 0 {
		return fmt.Errorf("changed_lines cannot be negative (got %d)", w.ChangedLines)
	}
	return nil
}

// Verdict is the tri-state outcome recorded for a finished pipeline
type Verdict string

const (
	// VerdictApprove means the review found no blocking problems
	VerdictApprove Verdict = "approve"
	// VerdictComment means the review was posted as non-blocking feedback
	VerdictComment Verdict = "comment"
	// VerdictSkipped means the item was resolved without generating a
	// review, e.g. an existing review was found by the duplicate guard
	VerdictSkipped Verdict = "skipped"
)

// IsValid checks if the verdict value is valid
func (v Verdict) IsValid() bool {
	switch v {
	case VerdictApprove, VerdictComment, VerdictSkipped:
		return true
	}
	return false
}

// Tier is the depth-of-review classification derived from the changed-lines
// count. It is recomputed on every pipeline run and recorded on the review
// record for observability only.
type Tier string

const (
	TierQuick    Tier = "quick"
	TierStandard Tier = "standard"
	TierDeep     Tier = "deep"
)

// IsValid checks if the tier value is valid
func (t Tier) IsValid() bool {
	switch t {
	case TierQuick, TierStandard, TierDeep:
		return true
	}
	return false
}

// ReviewRecord is the persisted outcome of a finished pipeline. Immutable
// once written; the ledger holds at most one record per ItemID.
type ReviewRecord struct {
	ItemID       int64     `json:"item_id" yaml:"item_id"`
	Number       int       `json:"number" yaml:"number"`
	Locator      string    `json:"locator" yaml:"locator"`
	Tier         Tier      `json:"tier,omitempty" yaml:"tier,omitempty"`
	Verdict      Verdict   `json:"verdict" yaml:"verdict"`
	Summary      string    `json:"summary,omitempty" yaml:"summary,omitempty"`
	Published    bool      `json:"published" yaml:"published"`
	PublishError string    `json:"publish_error,omitempty" yaml:"publish_error,omitempty"`
	ExternalID   string    `json:"external_id,omitempty" yaml:"external_id,omitempty"`
	CompletedAt  time.Time `json:"completed_at" yaml:"completed_at"`
}

// Validate checks if the record has valid field values
func (r *ReviewRecord) Validate() error {
	if r.ItemID <= 0 {
		return fmt.Errorf("item id must be positive (got %d)", r.ItemID)
	}
	if !r.Verdict.IsValid() {
		return fmt.Errorf("invalid verdict: %s", r.Verdict)
	}
	if r.Tier != "" && !r.Tier.IsValid() {
		return fmt.Errorf("invalid tier: %s", r.Tier)
	}
	if r.CompletedAt.IsZero() {
		return fmt.Errorf("completed_at is required")
	}
	return nil
}

// Statistics summarizes ledger contents for the query API and status CLI
type Statistics struct {
	TotalRecords    int             `json:"total_records"`
	ByVerdict       map[Verdict]int `json:"by_verdict"`
	Published       int             `json:"published"`
	Unpublished     int             `json:"unpublished"`
	LastCompletedAt *time.Time      `json:"last_completed_at,omitempty"`
}

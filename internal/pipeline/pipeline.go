// Package pipeline runs one admitted work item to a terminal state:
// fetch the diff, classify review depth, generate the review, publish it,
// and commit the completion record. Each run is independent — the only
// shared state is the ledger and the event log, both internally
// synchronized.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/reviewloop/reviewloop/internal/ai"
	"github.com/reviewloop/reviewloop/internal/events"
	"github.com/reviewloop/reviewloop/internal/forge"
	"github.com/reviewloop/reviewloop/internal/ledger"
	"github.com/reviewloop/reviewloop/internal/tier"
	"github.com/reviewloop/reviewloop/internal/types"
)

// Stage is a pipeline execution phase
type Stage string

const (
	StageFetching    Stage = "fetching"
	StageClassifying Stage = "classifying"
	StageGenerating  Stage = "generating"
	StagePublishing  Stage = "publishing"
	StageCommitting  Stage = "committing"
	StageDone        Stage = "done"
	StageAborted     Stage = "aborted"
)

// Generator is the inference collaborator boundary
type Generator interface {
	Review(ctx context.Context, item *types.WorkItem, t types.Tier, diff string) (*ai.Result, error)
}

// Outcome is the terminal result of one pipeline run
type Outcome struct {
	ItemID int64
	Stage  Stage               // StageDone or StageAborted
	Record *types.ReviewRecord // non-nil only when the commit landed
	Err    error               // cause, when aborted
}

// Completed reports whether the item is now in the ledger
func (o *Outcome) Completed() bool {
	return o.Stage == StageDone
}

// Pipeline executes items. One Pipeline instance serves all items; Run is
// safe to call from many goroutines at once.
type Pipeline struct {
	forge    forge.Client
	reviewer Generator
	ledger   *ledger.Ledger
	events   *events.Log
}

// New creates a pipeline executor
func New(fc forge.Client, reviewer Generator, led *ledger.Ledger, log *events.Log) *Pipeline {
	return &Pipeline{
		forge:    fc,
		reviewer: reviewer,
		ledger:   led,
		events:   log,
	}
}

// Run drives one item to Done or Aborted. It never panics across item
// boundaries and never returns before reaching a terminal state; a failed
// item is reported in the Outcome, not propagated.
func (p *Pipeline) Run(ctx context.Context, item *types.WorkItem) *Outcome {
	// Out-of-band duplicate guard: if the forge already shows our review,
	// the ledger was lost or never flushed. Record the completion without
	// generating or publishing anything.
	existing, err := p.forge.HasExistingReview(ctx, item.Locator)
	if err != nil {
		// Guard is defense-in-depth, not a gate: on probe failure proceed
		// with the normal pipeline.
		fmt.Fprintf(os.Stderr, "warning: duplicate probe failed for %s: %v\n", item.Locator, err)
	} else if existing {
		p.logEvent(ctx, events.TypeDuplicateShortCircuit, events.SeverityInfo, item.ID,
			fmt.Sprintf("existing review found for %s, skipping generation", item.Locator), nil)
		record := &types.ReviewRecord{
			ItemID:      item.ID,
			Number:      item.Number,
			Locator:     item.Locator,
			Verdict:     types.VerdictSkipped,
			Summary:     "review already present on the pull request",
			CompletedAt: time.Now().UTC(),
		}
		return p.commit(ctx, item, record)
	}

	// Fetching
	p.setStage(ctx, item, StageFetching)
	diff, err := p.forge.FetchDiff(ctx, item.Locator)
	if err != nil {
		return p.abort(ctx, item, StageFetching, fmt.Errorf("failed to fetch diff: %w", err))
	}

	// Classifying: pure and total, cannot fail
	p.setStage(ctx, item, StageClassifying)
	reviewTier := tier.Classify(item.ChangedLines)

	// Generating: no retry here — a dropped item runs again only if the
	// triggering event is redelivered
	p.setStage(ctx, item, StageGenerating)
	result, err := p.reviewer.Review(ctx, item, reviewTier, diff)
	if err != nil {
		return p.abort(ctx, item, StageGenerating, fmt.Errorf("review generation failed: %w", err))
	}

	record := &types.ReviewRecord{
		ItemID:      item.ID,
		Number:      item.Number,
		Locator:     item.Locator,
		Tier:        reviewTier,
		Verdict:     result.Verdict,
		Summary:     result.Summary,
		CompletedAt: time.Now().UTC(),
	}

	// Publishing: best-effort. A publish failure is recorded on the
	// record and does not block the commit — an unrecorded-but-published
	// item breaks dedup, a recorded-but-unpublished one only loses a
	// comment.
	p.setStage(ctx, item, StagePublishing)
	externalID, err := p.forge.PublishReview(ctx, item.Locator, renderBody(result), result.Verdict)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: publish failed for %s: %v\n", item.Locator, err)
		record.Published = false
		record.PublishError = err.Error()
	} else {
		record.Published = true
		record.ExternalID = externalID
	}

	return p.commit(ctx, item, record)
}

// commit writes the record to the ledger and reaches a terminal state
func (p *Pipeline) commit(ctx context.Context, item *types.WorkItem, record *types.ReviewRecord) *Outcome {
	p.setStage(ctx, item, StageCommitting)
	if err := p.ledger.Commit(record); err != nil {
		// The item stays uncompleted: a redelivered event will reprocess
		// it, and the duplicate guard absorbs most double-publish cases.
		return p.abort(ctx, item, StageCommitting, fmt.Errorf("ledger commit failed: %w", err))
	}

	p.logEvent(ctx, events.TypeItemCompleted, events.SeverityInfo, item.ID,
		fmt.Sprintf("completed %s: verdict=%s published=%v", item.Locator, record.Verdict, record.Published),
		map[string]any{"verdict": string(record.Verdict), "tier": string(record.Tier)})
	fmt.Printf("completed %s: verdict=%s tier=%s published=%v\n",
		item.Locator, record.Verdict, record.Tier, record.Published)

	return &Outcome{ItemID: item.ID, Stage: StageDone, Record: record}
}

// abort reaches the terminal Aborted state with full context logged
func (p *Pipeline) abort(ctx context.Context, item *types.WorkItem, at Stage, cause error) *Outcome {
	p.logEvent(ctx, events.TypeItemAborted, events.SeverityError, item.ID,
		fmt.Sprintf("aborted %s at %s: %v", item.Locator, at, cause),
		map[string]any{"stage": string(at)})
	fmt.Fprintf(os.Stderr, "aborted %s at stage %s: %v\n", item.Locator, at, cause)

	return &Outcome{ItemID: item.ID, Stage: StageAborted, Err: cause}
}

func (p *Pipeline) setStage(ctx context.Context, item *types.WorkItem, s Stage) {
	p.logEvent(ctx, events.TypeStageChanged, events.SeverityInfo, item.ID,
		fmt.Sprintf("%s entered %s", item.Locator, s), map[string]any{"stage": string(s)})
}

// logEvent stores an observability event; failures are warned, never fatal
func (p *Pipeline) logEvent(ctx context.Context, t events.Type, sev events.Severity, itemID int64, msg string, data map[string]any) {
	if p.events == nil {
		return
	}
	ev := &events.Event{Type: t, Severity: sev, ItemID: itemID, Message: msg}
	if data != nil {
		if blob, err := json.Marshal(data); err == nil {
			ev.Data = string(blob)
		}
	}
	if err := p.events.Store(ctx, ev); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to store event: %v\n", err)
	}
}

// renderBody formats a review result as the published review text
func renderBody(result *ai.Result) string {
	if len(result.Findings) == 0 {
		return result.Summary
	}

	body := result.Summary + "\n"
	for _, f := range result.Findings {
		body += fmt.Sprintf("\n- **%s** (%s): %s", f.File, f.Severity, f.Comment)
	}
	return body
}

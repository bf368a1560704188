// Package scheduler owns the dedup-critical state: the pending set of
// admitted work items and the reconciliation that keeps exactly one
// pipeline running per item that is pending but not yet completed.
//
// All pending-set mutation happens under one mutex (single-writer
// discipline); pipelines run as independent goroutines and hold no lock
// across their network calls.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/reviewloop/reviewloop/internal/ledger"
	"github.com/reviewloop/reviewloop/internal/pipeline"
	"github.com/reviewloop/reviewloop/internal/types"
)

// Runner executes one item to a terminal state. *pipeline.Pipeline is the
// production implementation; tests substitute fakes.
type Runner interface {
	Run(ctx context.Context, item *types.WorkItem) *pipeline.Outcome
}

// Scheduler reconciles pending work against the completion ledger
type Scheduler struct {
	runner     Runner
	ledger     *ledger.Ledger
	instanceID string

	mu      sync.Mutex
	pending map[int64]*types.WorkItem
	order   []int64 // arrival order, for observability only
	active  map[int64]struct{}
	running bool

	ctx context.Context
	wg  sync.WaitGroup
}

// New creates a scheduler. Start must be called before Admit accepts work.
func New(runner Runner, led *ledger.Ledger) *Scheduler {
	return &Scheduler{
		runner:     runner,
		ledger:     led,
		instanceID: uuid.New().String(),
		pending:    make(map[int64]*types.WorkItem),
		active:     make(map[int64]struct{}),
	}
}

// InstanceID identifies this scheduler process in logs and events
func (s *Scheduler) InstanceID() string {
	return s.instanceID
}

// Start makes the scheduler accept admissions. The context is inherited by
// every pipeline run.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	s.ctx = ctx
	s.running = true
	fmt.Printf("scheduler started (instance %s, %d completed items in ledger)\n",
		s.instanceID, s.ledger.Len())
	return nil
}

// Admit offers an item to the scheduler. Returns false without side
// effects when the item is already completed (per the ledger), already
// pending, or the scheduler is not running. On true, reconciliation has
// run and a pipeline exists for the item.
func (s *Scheduler) Admit(item *types.WorkItem) bool {
	if err := item.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: rejecting invalid work item: %v\n", err)
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return false
	}
	// Admission-time dedup: the first half of the double guard
	if s.ledger.IsCompleted(item.ID) {
		return false
	}
	if _, exists := s.pending[item.ID]; exists {
		return false
	}

	s.pending[item.ID] = item
	s.order = append(s.order, item.ID)
	s.reconcileLocked()
	return true
}

// reconcileLocked spawns a pipeline for every pending item that is neither
// completed nor already running. Callers hold s.mu.
func (s *Scheduler) reconcileLocked() {
	for _, id := range s.order {
		item, ok := s.pending[id]
		if !ok {
			continue
		}
		if _, running := s.active[id]; running {
			continue
		}
		if s.ledger.IsCompleted(id) {
			continue
		}

		s.active[id] = struct{}{}
		s.wg.Add(1)
		go s.runItem(item)
	}
}

// runItem executes one pipeline and resolves the item on any terminal
// state. The ledger is re-checked at spawn time, not admission time: the
// second half of the double guard, covering a commit that landed between
// admission and spawn.
func (s *Scheduler) runItem(item *types.WorkItem) {
	defer s.wg.Done()
	defer s.resolve(item.ID)

	if s.ledger.IsCompleted(item.ID) {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			// One item's panic must never take down the scheduler
			fmt.Fprintf(os.Stderr, "panic in pipeline for item %d: %v\n", item.ID, r)
		}
	}()

	s.runner.Run(s.ctx, item)
}

// resolve removes an item from the pending set after its pipeline reached
// a terminal state. Safe against duplicate calls for the same id.
func (s *Scheduler) resolve(itemID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pending, itemID)
	delete(s.active, itemID)
	for i, id := range s.order {
		if id == itemID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Pending returns a snapshot of queued and in-flight items in arrival order
func (s *Scheduler) Pending() []*types.WorkItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*types.WorkItem, 0, len(s.order))
	for _, id := range s.order {
		if item, ok := s.pending[id]; ok {
			out = append(out, item)
		}
	}
	return out
}

// PendingCount returns the number of unresolved items
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Stop refuses further admissions and waits for in-flight pipelines until
// the context expires; pipelines still running at that point are abandoned
// (they have not committed, so a redelivered event reprocesses them).
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.running = false
	inFlight := len(s.active)
	s.mu.Unlock()

	if inFlight > 0 {
		fmt.Printf("scheduler stopping with %d pipeline(s) in flight\n", inFlight)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown grace period expired, abandoning in-flight pipelines: %w", ctx.Err())
	}
}

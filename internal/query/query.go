// Package query is the read-only projection of the completion ledger and
// event log for external observers. It has no mutation capability.
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/reviewloop/reviewloop/internal/events"
	"github.com/reviewloop/reviewloop/internal/ledger"
	"github.com/reviewloop/reviewloop/internal/types"
)

// PendingLister exposes the scheduler's pending snapshot
type PendingLister interface {
	Pending() []*types.WorkItem
}

// Service answers read-only queries. Safe to call concurrently with
// commits: the ledger hands out snapshots, never live internal state.
type Service struct {
	ledger  *ledger.Ledger
	events  *events.Log
	pending PendingLister
}

// NewService creates a query service. events and pending may be nil when
// the corresponding surface is not wanted (e.g. offline CLI inspection).
func NewService(led *ledger.Ledger, log *events.Log, pending PendingLister) *Service {
	return &Service{ledger: led, events: log, pending: pending}
}

// List returns all completion records in commit order
func (s *Service) List() []*types.ReviewRecord {
	return s.ledger.All()
}

// Stats aggregates the ledger by verdict and publish outcome
func (s *Service) Stats() *types.Statistics {
	records := s.ledger.All()

	stats := &types.Statistics{
		TotalRecords: len(records),
		ByVerdict:    make(map[types.Verdict]int),
	}
	for _, rec := range records {
		stats.ByVerdict[rec.Verdict]++
		if rec.Published {
			stats.Published++
		} else {
			stats.Unpublished++
		}
		if stats.LastCompletedAt == nil || rec.CompletedAt.After(*stats.LastCompletedAt) {
			completedAt := rec.CompletedAt
			stats.LastCompletedAt = &completedAt
		}
	}
	return stats
}

// RecentEvents returns the newest pipeline events
func (s *Service) RecentEvents(ctx context.Context, limit int) ([]*events.Event, error) {
	if s.events == nil {
		return nil, nil
	}
	return s.events.Recent(ctx, limit)
}

// Register mounts the read-only API on a mux
func (s *Service) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/records", s.handleRecords)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc("/api/pending", s.handlePending)
}

func (s *Service) handleRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.List())
}

func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.Stats())
}

func (s *Service) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	evs, err := s.RecentEvents(r.Context(), limit)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to query events: %v", err), http.StatusInternalServerError)
		return
	}
	if evs == nil {
		evs = []*events.Event{}
	}
	writeJSON(w, evs)
}

func (s *Service) handlePending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	items := []*types.WorkItem{}
	if s.pending != nil {
		items = s.pending.Pending()
	}
	writeJSON(w, items)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

// Package intake receives pull request webhook deliveries, verifies them,
// and converts the interesting ones into work items for the scheduler.
// Malformed or unauthenticated deliveries are rejected here and never
// reach the scheduler.
package intake

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/reviewloop/reviewloop/internal/events"
	"github.com/reviewloop/reviewloop/internal/types"
)

// maxBodyBytes caps webhook payload size
const maxBodyBytes = 10 << 20

// admittedActions are the pull_request actions that represent reviewable
// changes. Everything else (labeled, assigned, closed, ...) is ignored.
var admittedActions = map[string]bool{
	"opened":           true,
	"reopened":         true,
	"synchronize":      true,
	"ready_for_review": true,
}

// Admitter is the scheduler boundary
type Admitter interface {
	Admit(item *types.WorkItem) bool
}

// Server handles webhook deliveries
type Server struct {
	admitter Admitter
	events   *events.Log
	secret   []byte
}

// NewServer creates the intake server. The secret is required: deliveries
// without a valid HMAC signature are rejected.
func NewServer(admitter Admitter, log *events.Log, secret string) (*Server, error) {
	if secret == "" {
		return nil, fmt.Errorf("webhook secret is required")
	}
	return &Server{
		admitter: admitter,
		events:   log,
		secret:   []byte(secret),
	}, nil
}

// Register mounts the intake endpoints on a mux
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/webhook", s.handleWebhook)
	mux.HandleFunc("/healthz", s.handleHealth)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

// webhookPayload is the subset of the pull_request event we consume
type webhookPayload struct {
	Action      string `json:"action"`
	PullRequest struct {
		ID        int64     `json:"id"`
		Number    int       `json:"number"`
		Title     string    `json:"title"`
		Draft     bool      `json:"draft"`
		Additions int       `json:"additions"`
		Deletions int       `json:"deletions"`
		UpdatedAt time.Time `json:"updated_at"`
		User      struct {
			Login string `json:"login"`
		} `json:"user"`
	} `json:"pull_request"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if !s.verifySignature(r.Header.Get("X-Hub-Signature-256"), body) {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	if eventType := r.Header.Get("X-GitHub-Event"); eventType != "pull_request" {
		// Authenticated but uninteresting (ping, issues, ...)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	if !admittedActions[payload.Action] {
		s.respond(w, false, "action not reviewable")
		return
	}
	if payload.PullRequest.Draft {
		s.logSkip(r, payload.PullRequest.ID, "draft pull request")
		s.respond(w, false, "draft pull request")
		return
	}

	item := &types.WorkItem{
		ID:           payload.PullRequest.ID,
		Number:       payload.PullRequest.Number,
		Locator:      fmt.Sprintf("%s#%d", payload.Repository.FullName, payload.PullRequest.Number),
		Title:        payload.PullRequest.Title,
		Author:       payload.PullRequest.User.Login,
		ChangedLines: payload.PullRequest.Additions + payload.PullRequest.Deletions,
		UpdatedAt:    payload.PullRequest.UpdatedAt,
		ReceivedAt:   time.Now().UTC(),
	}
	if err := item.Validate(); err != nil {
		http.Error(w, fmt.Sprintf("malformed payload: %v", err), http.StatusBadRequest)
		return
	}

	admitted := s.admitter.Admit(item)
	if admitted {
		s.logEvent(r, events.TypeIntakeAccepted, item.ID,
			fmt.Sprintf("admitted %s (%s, %d changed lines)", item.Locator, payload.Action, item.ChangedLines))
	} else {
		s.logSkip(r, item.ID, "duplicate or already completed")
	}
	s.respond(w, admitted, "")
}

// verifySignature checks the GitHub HMAC-SHA256 delivery signature
func (s *Server) verifySignature(header string, body []byte) bool {
	const prefix = "sha256="
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return false
	}
	want, err := hex.DecodeString(header[len(prefix):])
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}

func (s *Server) respond(w http.ResponseWriter, admitted bool, reason string) {
	status := http.StatusOK
	if admitted {
		status = http.StatusAccepted
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"admitted": admitted,
		"reason":   reason,
	})
}

func (s *Server) logSkip(r *http.Request, itemID int64, reason string) {
	s.logEvent(r, events.TypeIntakeSkipped, itemID, reason)
}

func (s *Server) logEvent(r *http.Request, t events.Type, itemID int64, msg string) {
	if s.events == nil {
		return
	}
	ev := &events.Event{Type: t, Severity: events.SeverityInfo, ItemID: itemID, Message: msg}
	if err := s.events.Store(r.Context(), ev); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to store intake event: %v\n", err)
	}
}

package forge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewloop/reviewloop/internal/types"
)

func TestParseLocator(t *testing.T) {
	tests := []struct {
		in        string
		want      Locator
		expectErr bool
	}{
		{"acme/widgets#17", Locator{"acme", "widgets", 17}, false},
		{"a/b#1", Locator{"a", "b", 1}, false},
		{"acme/widgets", Locator{}, true},
		{"acme#17", Locator{}, true},
		{"/widgets#17", Locator{}, true},
		{"acme/widgets#", Locator{}, true},
		{"acme/widgets#zero", Locator{}, true},
		{"acme/widgets#0", Locator{}, true},
		{"", Locator{}, true},
	}

	for _, tt := range tests {
		got, err := ParseLocator(tt.in)
		if tt.expectErr {
			if err == nil {
				t.Errorf("ParseLocator(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseLocator(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLocator(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func newTestClient(t *testing.T, handler http.Handler) *GitHubClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewGitHubClient(GitHubConfig{
		BaseURL:  srv.URL,
		Token:    "test-token",
		BotLogin: "reviewloop[bot]",
	})
	require.NoError(t, err)
	return c
}

func TestFetchDiff(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/widgets/pulls/17", r.URL.Path)
		assert.Equal(t, "application/vnd.github.v3.diff", r.Header.Get("Accept"))
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.Write([]byte("diff --git a/main.go b/main.go\n+hello\n"))
	}))

	diff, err := c.FetchDiff(context.Background(), "acme/widgets#17")
	require.NoError(t, err)
	assert.Contains(t, diff, "diff --git")
}

func TestFetchDiffEmpty(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("   \n"))
	}))

	_, err := c.FetchDiff(context.Background(), "acme/widgets#17")
	assert.ErrorIs(t, err, ErrEmptyDiff)
}

func TestFetchDiffHTTPError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))

	_, err := c.FetchDiff(context.Background(), "acme/widgets#17")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrEmptyDiff)
}

func TestPublishReview(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/repos/acme/widgets/pulls/17/reviews", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "APPROVE", body["event"])
		assert.Equal(t, "ship it", body["body"])

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]int64{"id": 991})
	}))

	id, err := c.PublishReview(context.Background(), "acme/widgets#17", "ship it", types.VerdictApprove)
	require.NoError(t, err)
	assert.Equal(t, "991", id)
}

func TestPublishReviewCommentVerdict(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "COMMENT", body["event"])
		json.NewEncoder(w).Encode(map[string]int64{"id": 1})
	}))

	_, err := c.PublishReview(context.Background(), "acme/widgets#17", "nits", types.VerdictComment)
	require.NoError(t, err)
}

func TestHasExistingReview(t *testing.T) {
	tests := []struct {
		name   string
		logins []string
		want   bool
	}{
		{"no reviews", nil, false},
		{"other reviewers only", []string{"alice", "bob"}, false},
		{"bot reviewed", []string{"alice", "reviewloop[bot]"}, true},
		{"case insensitive", []string{"ReviewLoop[bot]"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				type user struct {
					Login string `json:"login"`
				}
				var reviews []map[string]user
				for _, l := range tt.logins {
					reviews = append(reviews, map[string]user{"user": {Login: l}})
				}
				json.NewEncoder(w).Encode(reviews)
			}))

			got, err := c.HasExistingReview(context.Background(), "acme/widgets#17")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

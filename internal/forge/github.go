package forge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/reviewloop/reviewloop/internal/types"
)

const defaultBaseURL = "https://api.github.com"

// GitHubClient implements Client against the GitHub REST API
type GitHubClient struct {
	baseURL    string
	token      string
	botLogin   string // login whose reviews count as "ours" for the duplicate guard
	httpClient *http.Client
}

// GitHubConfig configures the GitHub client
type GitHubConfig struct {
	BaseURL  string // override for GitHub Enterprise or tests; default api.github.com
	Token    string
	BotLogin string
	Timeout  time.Duration // per-request timeout (default: 30s)
}

// NewGitHubClient creates a GitHub-backed forge client
func NewGitHubClient(cfg GitHubConfig) (*GitHubClient, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("github token is required")
	}
	if cfg.BotLogin == "" {
		return nil, fmt.Errorf("bot login is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &GitHubClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      cfg.Token,
		botLogin:   cfg.BotLogin,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// FetchDiff returns the unified diff for a pull request. An empty diff is
// reported as ErrEmptyDiff so the pipeline can abort cleanly.
func (c *GitHubClient) FetchDiff(ctx context.Context, locator string) (string, error) {
	loc, err := ParseLocator(locator)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/repos/%s/%s/pulls/%d", c.baseURL, loc.Owner, loc.Repo, loc.Number)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build diff request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3.diff")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch diff for %s: %w", locator, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("diff request for %s returned %s", locator, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read diff for %s: %w", locator, err)
	}

	diff := string(body)
	if strings.TrimSpace(diff) == "" {
		return "", ErrEmptyDiff
	}
	return diff, nil
}

// PublishReview posts a pull request review. The verdict maps onto GitHub's
// review event: approve → APPROVE, everything else → COMMENT.
func (c *GitHubClient) PublishReview(ctx context.Context, locator, body string, verdict types.Verdict) (string, error) {
	loc, err := ParseLocator(locator)
	if err != nil {
		return "", err
	}

	event := "COMMENT"
	if verdict == types.VerdictApprove {
		event = "APPROVE"
	}

	payload, err := json.Marshal(map[string]string{
		"body":  body,
		"event": event,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode review: %w", err)
	}

	url := fmt.Sprintf("%s/repos/%s/%s/pulls/%d/reviews", c.baseURL, loc.Owner, loc.Repo, loc.Number)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build review request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to publish review for %s: %w", locator, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("review request for %s returned %s", locator, resp.Status)
	}

	var created struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		// The review landed; a malformed response body only costs us the
		// external reference id.
		return "", nil
	}
	return fmt.Sprintf("%d", created.ID), nil
}

// HasExistingReview reports whether the bot account already has a review on
// the pull request.
func (c *GitHubClient) HasExistingReview(ctx context.Context, locator string) (bool, error) {
	loc, err := ParseLocator(locator)
	if err != nil {
		return false, err
	}

	url := fmt.Sprintf("%s/repos/%s/%s/pulls/%d/reviews?per_page=100", c.baseURL, loc.Owner, loc.Repo, loc.Number)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("failed to build reviews request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to list reviews for %s: %w", locator, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("reviews request for %s returned %s", locator, resp.Status)
	}

	var reviews []struct {
		User struct {
			Login string `json:"login"`
		} `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reviews); err != nil {
		return false, fmt.Errorf("failed to decode reviews for %s: %w", locator, err)
	}

	for _, r := range reviews {
		if strings.EqualFold(r.User.Login, c.botLogin) {
			return true, nil
		}
	}
	return false, nil
}

func (c *GitHubClient) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
}

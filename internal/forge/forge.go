// Package forge talks to the code-hosting service. The pipeline only
// depends on the Client interface; the GitHub implementation lives in
// github.go and tests substitute fakes.
package forge

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/reviewloop/reviewloop/internal/types"
)

// ErrEmptyDiff is returned by FetchDiff when the pull request has no
// reviewable content. The pipeline treats it as an abort, not a retry.
var ErrEmptyDiff = errors.New("pull request diff is empty")

// Client is what the pipeline needs from the code-hosting service
type Client interface {
	// FetchDiff returns the unified diff for a pull request
	FetchDiff(ctx context.Context, locator string) (string, error)

	// PublishReview posts a review and returns the service's review id
	PublishReview(ctx context.Context, locator, body string, verdict types.Verdict) (string, error)

	// HasExistingReview reports whether this bot already reviewed the
	// pull request (the external half of the duplicate guard)
	HasExistingReview(ctx context.Context, locator string) (bool, error)
}

// Locator identifies a pull request as "owner/repo#number"
type Locator struct {
	Owner  string
	Repo   string
	Number int
}

func (l Locator) String() string {
	return fmt.Sprintf("%s/%s#%d", l.Owner, l.Repo, l.Number)
}

// ParseLocator parses the "owner/repo#number" form
func ParseLocator(s string) (Locator, error) {
	slash := strings.Index(s, "/")
	hash := strings.LastIndex(s, "#")
	if slash <= 0 || hash <= slash+1 || hash == len(s)-1 {
		return Locator{}, fmt.Errorf("invalid locator %q (want owner/repo#number)", s)
	}

	num, err := strconv.Atoi(s[hash+1:])
	if err != nil || num <= 0 {
		return Locator{}, fmt.Errorf("invalid pull request number in locator %q", s)
	}

	return Locator{
		Owner:  s[:slash],
		Repo:   s[slash+1 : hash],
		Number: num,
	}, nil
}

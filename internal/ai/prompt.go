package ai

import (
	"fmt"
	"strings"

	"github.com/reviewloop/reviewloop/internal/types"
)

// maxDiffChars caps the diff included in a prompt. Oversized diffs are
// truncated from the end; the model is told when that happened.
const maxDiffChars = 180_000

// tierInstructions is the depth-specific part of the review prompt
var tierInstructions = map[types.Tier]string{
	types.TierQuick: `This is a small change. Do a quick pass: flag only clear bugs,
broken error handling, or security problems. Keep the summary to two or
three sentences and report at most three findings.`,
	types.TierStandard: `Do a standard review: correctness, error handling, edge cases, and
obvious design problems. Skip pure style nits unless they hide a bug.`,
	types.TierDeep: `This is a large change. Do a thorough review: correctness, error
handling, concurrency hazards, API design, naming, and test coverage.
Call out risky areas that deserve a human second look, and say explicitly
if the change should be split.`,
}

// buildReviewPrompt builds the tier-scoped prompt for one pull request
func buildReviewPrompt(item *types.WorkItem, tier types.Tier, diff string) string {
	truncated := false
	if len(diff) > maxDiffChars {
		diff = diff[:maxDiffChars]
		truncated = true
	}

	var b strings.Builder
	fmt.Fprintf(&b, `You are a code reviewer for pull request %s.

Title: %s
Author: %s
Changed lines: %d

%s

Respond with ONLY a JSON object, no prose before or after:
{
  "verdict": "approve" or "comment",
  "summary": "overall assessment, addressed to the author",
  "findings": [
    {"file": "path/to/file.go", "severity": "issue" or "nit", "comment": "what and why"}
  ]
}

Use "approve" only when nothing needs to change. An empty findings array is
fine for an approval.

Diff:
`, item.Locator, item.Title, item.Author, item.ChangedLines, tierInstructions[tier])

	b.WriteString(diff)
	if truncated {
		b.WriteString("\n\n[diff truncated for length — review what is shown]")
	}
	return b.String()
}

package ai

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/reviewloop/reviewloop/internal/types"
)

// Pre-compiled patterns for cleaning model output. Models wrap JSON in
// markdown fences or pad it with prose often enough that direct parsing
// alone would throw away good reviews.
var (
	codeFenceRegex  = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?([\\s\\S]*?)\\n?```")
	jsonObjectRegex = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
)

// parseResult parses model output into a Result. Strategy sequence:
//  1. Direct JSON parse
//  2. Strip markdown code fences and retry
//  3. Extract the outermost JSON object from mixed content and retry
//
// Returns ok=false when every strategy fails; callers degrade to
// fallbackResult rather than discarding the response.
func parseResult(text string) (*Result, bool) {
	candidates := []string{strings.TrimSpace(text)}

	if m := codeFenceRegex.FindStringSubmatch(text); m != nil {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	if m := jsonObjectRegex.FindString(text); m != "" {
		candidates = append(candidates, m)
	}

	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		var result Result
		if err := json.Unmarshal([]byte(candidate), &result); err != nil {
			continue
		}
		if result.Summary == "" && len(result.Findings) == 0 {
			continue // parsed but empty, likely matched the wrong fragment
		}
		normalize(&result)
		return &result, true
	}

	return nil, false
}

// normalize fills defaults so downstream code never sees an invalid verdict
func normalize(r *Result) {
	if !r.Verdict.IsValid() || r.Verdict == types.VerdictSkipped {
		// Unknown or out-of-place verdicts degrade to non-blocking feedback
		r.Verdict = types.VerdictComment
	}
	for i := range r.Findings {
		if r.Findings[i].Severity != "issue" && r.Findings[i].Severity != "nit" {
			r.Findings[i].Severity = "nit"
		}
	}
}

// fallbackResult wraps unparseable model output in a minimal comment-only
// result. The text is still useful to a human even when it is not JSON.
func fallbackResult(text string) *Result {
	summary := strings.TrimSpace(text)
	if summary == "" {
		summary = "The reviewer produced no readable output for this change."
	}
	const maxFallbackChars = 4000
	if len(summary) > maxFallbackChars {
		summary = summary[:maxFallbackChars] + "\n\n[truncated]"
	}
	return &Result{
		Verdict:  types.VerdictComment,
		Summary:  summary,
		Fallback: true,
	}
}

// Package tier maps a pull request's changed-lines count to a review depth.
package tier

import "github.com/reviewloop/reviewloop/internal/types"

// Thresholds for the changed-lines step function. A diff of QuickMax lines
// or fewer gets a quick pass; anything above StandardMax gets a deep review.
const (
	QuickMax    = 50
	StandardMax = 300
)

// Classify returns the review tier for a changed-lines count. It is a total
// function: any count, including zero, maps to a tier, and the same count
// always maps to the same tier.
func Classify(changedLines int) types.Tier {
	switch {
	case changedLines <= QuickMax:
		return types.TierQuick
	case changedLines <= StandardMax:
		return types.TierStandard
	default:
		return types.TierDeep
	}
}

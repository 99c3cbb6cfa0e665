// Package reputation holds the scoring rules for trust signals. It is a pure
// computation layer: persistence and event emission stay with the callers so
// the saturation law can be tested in isolation.
package reputation

// Score bounds and per-event deltas. All scores live in [0, MaxScore].
const (
	InitialScore = 100
	MaxScore     = 1000

	DeltaVerified           = 100
	DeltaVerificationPulled = -50
	DeltaCredentialAdded    = 50
	DeltaCredentialRevoked  = -30
)

// ApplyDelta computes the next score, saturating at both bounds. Positive
// deltas cap at MaxScore, non-positive deltas floor at zero; the result never
// leaves [0, MaxScore] regardless of input.
func ApplyDelta(current, delta int) int {
	next := current + delta
	if next > MaxScore {
		return MaxScore
	}
	if next < 0 {
		return 0
	}
	return next
}

package ragcore

import "sync"

// Router decides, from the classifier's confidence in the current
// utterance, whether the retrieval-augmented pipeline should handle the
// turn instead of the primary dialogue policy.
type Router struct {
	Threshold float64
}

func (r Router) ShouldRetrieve(confidence float64) bool {
	return confidence < r.Threshold
}

// MaxFallbackStreak is the number of consecutive unhandled turns after
// which the assistant stops retrying retrieval and offers a human.
const MaxFallbackStreak = 3

// FallbackTracker counts consecutive fallback turns per conversation. The
// streak resets whenever a turn clears the confidence threshold.
type FallbackTracker struct {
	mu      sync.Mutex
	streaks map[string]int
}

func NewFallbackTracker() *FallbackTracker {
	return &FallbackTracker{
		streaks: make(map[string]int),
	}
}

// Bump records another fallback for the sender and returns the new streak.
func (t *FallbackTracker) Bump(sender string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.streaks[sender]++
	return t.streaks[sender]
}

func (t *FallbackTracker) Reset(sender string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.streaks, sender)
}

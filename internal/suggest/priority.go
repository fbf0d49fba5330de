package suggest

import "math"

const (
	minPriority     = 1
	maxPriority     = 10
	neutralPriority = 5

	modeBoost       = 2
	confidenceScale = 4.0
)

var baseWeights = map[Category]int{
	CategorySpelling:       9,
	CategoryDemonetization: 9,
	CategoryToneRewrite:    8,
	CategorySEO:            8,
	CategoryGrammar:        7,
	CategoryStyle:          5,
	CategoryEngagement:     5,
	CategoryPlatform:       5,
	CategorySlang:          1,
}

// BaseWeight is the mode-independent weight of a category.
func BaseWeight(c Category) int {
	if weight, ok := baseWeights[c]; ok {
		return weight
	}
	return neutralPriority
}

// Priority ranks s under mode. The result is always within [1,10].
func Priority(s Suggestion, mode Mode) int {
	if mode == ModeUserChoice {
		return neutralPriority
	}

	score := float64(BaseWeight(s.Category) + modeAdjustment(s.Category, mode))
	score += math.Round((s.confidence() - 0.5) * confidenceScale)
	return clamp(int(score), minPriority, maxPriority)
}

func modeAdjustment(c Category, mode Mode) int {
	switch mode {
	case ModeGrammarFirst:
		switch c {
		case CategoryGrammar, CategorySpelling:
			return modeBoost
		case CategoryToneRewrite:
			return -modeBoost
		}
	case ModeToneFirst:
		switch c {
		case CategoryToneRewrite:
			return modeBoost
		case CategoryGrammar, CategorySpelling:
			return -modeBoost
		}
	}
	return 0
}

// Overlapping returns the suggestions in items whose ranges intersect s,
// excluding s itself.
func Overlapping(s Suggestion, items []Suggestion) []Suggestion {
	out := make([]Suggestion, 0)
	for _, item := range items {
		if item.ID == s.ID {
			continue
		}
		if s.Overlaps(item) {
			out = append(out, item)
		}
	}
	return out
}

// competes reports whether accepting a must retire b.
func competes(a, b Suggestion) bool {
	return a.Overlaps(b) || a.ConflictsWithID(b.ID) || b.ConflictsWithID(a.ID)
}

func clamp(value, low, high int) int {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}

package suggest

import "maps"

// Analytics summarizes the current batch.
type Analytics struct {
	Total             int              `json:"total"`
	Visible           int              `json:"visible"`
	ByCategory        map[Category]int `json:"byCategory"`
	ByStatus          map[Status]int   `json:"byStatus"`
	AverageConfidence float64          `json:"averageConfidence"`
	OverlappingPairs  int              `json:"overlappingPairs"`
}

func computeAnalytics(all, active []Suggestion) Analytics {
	out := Analytics{
		Total:      len(all),
		Visible:    len(active),
		ByCategory: make(map[Category]int),
		ByStatus:   make(map[Status]int),
	}
	var confidenceSum float64
	for i, item := range all {
		out.ByCategory[item.Category]++
		out.ByStatus[item.Status]++
		confidenceSum += item.confidence()
		if item.Status != StatusPending {
			continue
		}
		for _, other := range all[i+1:] {
			if other.Status == StatusPending && item.Overlaps(other) {
				out.OverlappingPairs++
			}
		}
	}
	if len(all) > 0 {
		out.AverageConfidence = confidenceSum / float64(len(all))
	}
	return out
}

func (a Analytics) clone() Analytics {
	out := a
	out.ByCategory = maps.Clone(a.ByCategory)
	out.ByStatus = maps.Clone(a.ByStatus)
	return out
}

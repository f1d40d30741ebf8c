package models

import "strings"

// ItineraryFilter narrows the dashboard list.
type ItineraryFilter struct {
	Search string
	Status string
}

// Matches applies the filter the same way the database query does.
func (f ItineraryFilter) Matches(it *Itinerary) bool {
	if f.Status != "" && f.Status != "all" && it.Status != f.Status {
		return false
	}
	q := strings.ToLower(strings.TrimSpace(f.Search))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(it.Title), q) ||
		strings.Contains(strings.ToLower(it.Destination), q)
}

// DashboardStats are the counters shown above the itinerary list.
type DashboardStats struct {
	Total     int `json:"total"`
	Active    int `json:"active"` // shared + feedback
	Feedback  int `json:"feedback"`
	Completed int `json:"completed"`
}

// ComputeStats counts itineraries by status.
func ComputeStats(items []*Itinerary) DashboardStats {
	stats := DashboardStats{Total: len(items)}
	for _, it := range items {
		switch it.Status {
		case StatusShared:
			stats.Active++
		case StatusFeedback:
			stats.Active++
			stats.Feedback++
		case StatusCompleted:
			stats.Completed++
		}
	}
	return stats
}

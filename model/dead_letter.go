package model

import (
	"sort"
	"time"
)

// DLQStats represents aggregate statistics for a dead letter queue.
// Used for monitoring reports and the DLQ inspection endpoint.
type DLQStats struct {
	TotalItems           int               `json:"totalItems"`
	ByOriginalEventType  map[EventType]int `json:"byOriginalEventType"`
	OldestItemAgeSeconds int64             `json:"oldestItemAge"`
	NewestItemAgeSeconds int64             `json:"newestItemAge"`
	TopErrorMessage      string            `json:"topErrorMessage"`
	LastUpdated          time.Time         `json:"lastUpdated"`
}

// ComputeDLQStats aggregates dead-lettered events as of now. Item age is
// measured from the time the logical event was first published.
func ComputeDLQStats(events []Event, now time.Time) DLQStats {
	stats := DLQStats{
		TotalItems:          len(events),
		ByOriginalEventType: make(map[EventType]int),
		LastUpdated:         now,
	}
	if len(events) == 0 {
		return stats
	}

	errorCounts := make(map[string]int)
	var oldest, newest time.Time
	for i, e := range events {
		original := e.Metadata.OriginalEventType
		if original == "" {
			original = e.EventType
		}
		stats.ByOriginalEventType[original]++

		if e.Metadata.ErrorMessage != "" {
			errorCounts[e.Metadata.ErrorMessage]++
		}

		seen := e.FirstSeenAt()
		if i == 0 || seen.Before(oldest) {
			oldest = seen
		}
		if i == 0 || seen.After(newest) {
			newest = seen
		}
	}

	stats.OldestItemAgeSeconds = int64(now.Sub(oldest).Seconds())
	stats.NewestItemAgeSeconds = int64(now.Sub(newest).Seconds())
	stats.TopErrorMessage = topKey(errorCounts)
	return stats
}

// topKey returns the most frequent key, breaking ties alphabetically.
func topKey(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	top, best := "", 0
	for _, k := range keys {
		if counts[k] > best {
			top, best = k, counts[k]
		}
	}
	return top
}

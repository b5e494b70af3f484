package utils

import "time"

const (
	BucketToday     = "today"
	BucketThisWeek  = "this_week"
	BucketThisMonth = "this_month"
	BucketOlder     = "older"
)

var BucketOrder = []string{BucketToday, BucketThisWeek, BucketThisMonth, BucketOlder}

// RecencyBucket classifies t relative to now for list headers.
// Weeks start on Monday.
func RecencyBucket(now, t time.Time) string {
	t = t.In(now.Location())
	y, m, d := now.Date()
	startOfDay := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	if !t.Before(startOfDay) {
		return BucketToday
	}
	offset := (int(now.Weekday()) + 6) % 7
	if !t.Before(startOfDay.AddDate(0, 0, -offset)) {
		return BucketThisWeek
	}
	if !t.Before(time.Date(y, m, 1, 0, 0, 0, 0, now.Location())) {
		return BucketThisMonth
	}
	return BucketOlder
}

type Bucket[T any] struct {
	Key   string `json:"key"`
	Items []T    `json:"items"`
}

// GroupByRecency keeps the input order within each bucket and drops empty
// buckets.
func GroupByRecency[T any](now time.Time, items []T, at func(T) time.Time) []Bucket[T] {
	grouped := make(map[string][]T, len(BucketOrder))
	for _, it := range items {
		k := RecencyBucket(now, at(it))
		grouped[k] = append(grouped[k], it)
	}
	out := make([]Bucket[T], 0, len(BucketOrder))
	for _, k := range BucketOrder {
		if len(grouped[k]) > 0 {
			out = append(out, Bucket[T]{Key: k, Items: grouped[k]})
		}
	}
	return out
}

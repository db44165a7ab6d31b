package analytics

import "time"

// Period is a reporting window selector.
type Period string

const (
	Period24h     Period = "24h"
	Period7d      Period = "7d"
	Period30d     Period = "30d"
	Period90d     Period = "90d"
	Period365d    Period = "365d"
	DefaultPeriod        = Period7d
)

// Interval is the bucket granularity for a period's time series.
type Interval int

const (
	IntervalHour Interval = iota
	IntervalDay
	IntervalWeek
	IntervalMonth
)

// ParsePeriod maps a query value to a Period, defaulting to 7d for empty
// or unknown input.
func ParsePeriod(s string) Period {
	switch Period(s) {
	case Period24h, Period7d, Period30d, Period90d, Period365d:
		return Period(s)
	}
	return DefaultPeriod
}

// Window returns the start of the period's window and its bucket interval.
func (p Period) Window(now time.Time) (time.Time, Interval) {
	now = now.UTC()
	switch p {
	case Period24h:
		return now.Add(-24 * time.Hour), IntervalHour
	case Period30d:
		return now.AddDate(0, 0, -30), IntervalDay
	case Period90d:
		return now.AddDate(0, 0, -90), IntervalWeek
	case Period365d:
		return now.AddDate(0, 0, -365), IntervalMonth
	default:
		return now.AddDate(0, 0, -7), IntervalDay
	}
}

// Bucket is a half-open slot [Start, End): a row exactly on End belongs to
// the next bucket.
type Bucket struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether ts falls inside the bucket.
func (b Bucket) Contains(ts time.Time) bool {
	return !ts.Before(b.Start) && ts.Before(b.End)
}

// MakeBuckets builds contiguous non-overlapping buckets spanning
// [start, end). Month buckets follow calendar-month boundaries; the first
// and last may be partial.
func MakeBuckets(start, end time.Time, interval Interval) []Bucket {
	start, end = start.UTC(), end.UTC()
	var buckets []Bucket
	for cur := start; cur.Before(end); {
		next := nextBoundary(cur, interval)
		if next.After(end) {
			next = end
		}
		buckets = append(buckets, Bucket{Start: cur, End: next})
		cur = next
	}
	return buckets
}

func nextBoundary(cur time.Time, interval Interval) time.Time {
	switch interval {
	case IntervalHour:
		return cur.Add(time.Hour)
	case IntervalWeek:
		return cur.AddDate(0, 0, 7)
	case IntervalMonth:
		return time.Date(cur.Year(), cur.Month()+1, 1, 0, 0, 0, 0, time.UTC)
	default:
		return cur.AddDate(0, 0, 1)
	}
}

// Sample is a timestamped value to be summed per bucket.
type Sample struct {
	At    time.Time
	Value int64
}

// SumInBuckets distributes samples into buckets by timestamp and sums
// their values. Samples outside every bucket are dropped.
func SumInBuckets(samples []Sample, buckets []Bucket) []int64 {
	sums := make([]int64, len(buckets))
	for _, sample := range samples {
		ts := sample.At.UTC()
		for i, b := range buckets {
			if b.Contains(ts) {
				sums[i] += sample.Value
				break
			}
		}
	}
	return sums
}

// CountInBuckets counts timestamps per bucket.
func CountInBuckets(times []time.Time, buckets []Bucket) []int64 {
	samples := make([]Sample, len(times))
	for i, ts := range times {
		samples[i] = Sample{At: ts, Value: 1}
	}
	return SumInBuckets(samples, buckets)
}

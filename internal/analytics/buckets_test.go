package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParsePeriod(t *testing.T) {
	testCases := []struct {
		input    string
		expected Period
	}{
		{"24h", Period24h},
		{"7d", Period7d},
		{"30d", Period30d},
		{"90d", Period90d},
		{"365d", Period365d},
		{"", DefaultPeriod},
		{"14d", DefaultPeriod},
		{"week", DefaultPeriod},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, ParsePeriod(tc.input), "input %q", tc.input)
	}
}

func TestPeriodWindow(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	testCases := []struct {
		period   Period
		start    time.Time
		interval Interval
	}{
		{Period24h, now.Add(-24 * time.Hour), IntervalHour},
		{Period7d, now.AddDate(0, 0, -7), IntervalDay},
		{Period30d, now.AddDate(0, 0, -30), IntervalDay},
		{Period90d, now.AddDate(0, 0, -90), IntervalWeek},
		{Period365d, now.AddDate(0, 0, -365), IntervalMonth},
	}

	for _, tc := range testCases {
		start, interval := tc.period.Window(now)
		assert.Equal(t, tc.start, start, "period %s", tc.period)
		assert.Equal(t, tc.interval, interval, "period %s", tc.period)
	}
}

func TestMakeBuckets(t *testing.T) {
	t.Run("Seven daily buckets cover a 7d window", func(t *testing.T) {
		end := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
		start := end.AddDate(0, 0, -7)

		buckets := MakeBuckets(start, end, IntervalDay)

		assert.Len(t, buckets, 7)
		assert.Equal(t, start, buckets[0].Start)
		assert.Equal(t, end, buckets[len(buckets)-1].End)
		for i := 1; i < len(buckets); i++ {
			assert.Equal(t, buckets[i-1].End, buckets[i].Start, "buckets must be contiguous")
		}
	})

	t.Run("Partial trailing bucket clamps to the window end", func(t *testing.T) {
		start := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
		end := time.Date(2024, 3, 12, 6, 30, 0, 0, time.UTC)

		buckets := MakeBuckets(start, end, IntervalDay)

		assert.Len(t, buckets, 3)
		assert.Equal(t, end, buckets[2].End)
	})

	t.Run("Month buckets align to calendar boundaries", func(t *testing.T) {
		start := time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)
		end := time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)

		buckets := MakeBuckets(start, end, IntervalMonth)

		assert.Len(t, buckets, 4)
		assert.Equal(t, start, buckets[0].Start)
		assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), buckets[0].End)
		assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), buckets[1].End)
		assert.Equal(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), buckets[2].End)
		assert.Equal(t, end, buckets[3].End)
	})

	t.Run("Empty window yields no buckets", func(t *testing.T) {
		at := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
		assert.Empty(t, MakeBuckets(at, at, IntervalDay))
	})
}

func TestBucketContains(t *testing.T) {
	bucket := Bucket{
		Start: time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC),
	}

	assert.True(t, bucket.Contains(bucket.Start), "start is inclusive")
	assert.True(t, bucket.Contains(bucket.End.Add(-time.Nanosecond)))
	assert.False(t, bucket.Contains(bucket.End), "end is exclusive")
	assert.False(t, bucket.Contains(bucket.Start.Add(-time.Nanosecond)))
}

func TestSumInBuckets(t *testing.T) {
	start := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 3)
	buckets := MakeBuckets(start, end, IntervalDay)

	samples := []Sample{
		{At: start.Add(2 * time.Hour), Value: 5},
		{At: start.Add(23 * time.Hour), Value: 1},
		{At: start.AddDate(0, 0, 1), Value: 10}, // day boundary belongs to the second bucket
		{At: start.AddDate(0, 0, 2).Add(time.Minute), Value: 3},
		{At: end, Value: 100},                      // outside the window, dropped
		{At: start.Add(-time.Second), Value: 100},  // before the window, dropped
	}

	sums := SumInBuckets(samples, buckets)

	assert.Equal(t, []int64{6, 10, 3}, sums)

	var total int64
	for _, s := range sums {
		total += s
	}
	assert.Equal(t, int64(19), total, "in-window samples are counted exactly once")
}

func TestCountInBuckets(t *testing.T) {
	start := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	buckets := MakeBuckets(start, start.AddDate(0, 0, 2), IntervalDay)

	counts := CountInBuckets([]time.Time{
		start,
		start.Add(time.Hour),
		start.AddDate(0, 0, 1).Add(time.Hour),
	}, buckets)

	assert.Equal(t, []int64{2, 1}, counts)
}

package models

import (
	"math"
	"sort"
	"time"
)

// CacheStats is a point-in-time snapshot of memcache.Cache counters (spec
// C3 "Stats"). Reads return a copy, never a live pointer, so callers can't
// mutate the cache's internal counters.
//
// Grounded on the teacher's MetricSnapshot (pkg/models/metrics.go), renamed
// and trimmed to the fields spec.md §4.2 names.
type CacheStats struct {
	EntryCount  int     `json:"entryCount"`
	Size        int     `json:"size"`
	MaxSize     int     `json:"maxSize"`
	MaxEntries  int     `json:"maxEntries"`
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	Evictions   int64   `json:"evictions"`
	Expirations int64   `json:"expirations"`
	HitRatio    float64 `json:"hitRatio"`
}

// ComputeHitRatio returns hits/(hits+misses), or 0 when there have been no
// lookups yet.
func ComputeHitRatio(hits, misses int64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// LatencySummary is a statistical summary of a set of latency samples.
// No fetchkit package computes one internally; callers build it from their
// own samples with CalculateLatencySummary. Adapted from the
// teacher's LatencySummary (pkg/models/metrics.go): same percentile math,
// narrowed to what an in-process cache actually reports.
type LatencySummary struct {
	Count uint64        `json:"count"`
	Sum   time.Duration `json:"sum"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	P50   time.Duration `json:"p50"`
	P90   time.Duration `json:"p90"`
	P99   time.Duration `json:"p99"`
}

// AvgLatency returns the mean of the summarized samples.
func (l LatencySummary) AvgLatency() time.Duration {
	if l.Count == 0 {
		return 0
	}
	return l.Sum / time.Duration(l.Count)
}

// CalculateLatencySummary computes an exact latency summary from raw
// samples. Complexity O(n log n) for the percentile sort.
func CalculateLatencySummary(samples []time.Duration) LatencySummary {
	if len(samples) == 0 {
		return LatencySummary{}
	}
	sorted := make([]time.Duration, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, s := range sorted {
		sum += s
	}

	return LatencySummary{
		Count: uint64(len(sorted)),
		Sum:   sum,
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		P50:   percentile(sorted, 0.50),
		P90:   percentile(sorted, 0.90),
		P99:   percentile(sorted, 0.99),
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := p * float64(len(sorted)-1)
	lower := int(math.Floor(idx))
	upper := int(math.Ceil(idx))
	if lower == upper {
		return sorted[lower]
	}
	weight := idx - float64(lower)
	return time.Duration(float64(sorted[lower])*(1-weight) + float64(sorted[upper])*weight)
}

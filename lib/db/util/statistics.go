package util

import (
	"math"
	"sync"
)

// ----------------------------------------------------------------------------
// Distribution statistics
// ----------------------------------------------------------------------------

type Stats struct {
	StdDeviation float64 `json:"std_deviation"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Mean         float64 `json:"mean"`
	MinMaxRatio  float64 `json:"min_max_ratio"`
}

// NewStats computes the standard deviation, minimum, and maximum values
// from an array of float64 values.
func NewStats(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}

	minV, maxV := values[0], values[0]
	var sum float64
	for _, v := range values {
		sum += v
		minV = math.Min(minV, v)
		maxV = math.Max(maxV, v)
	}
	mean := sum / float64(len(values))

	var sumSquaredDiffs float64
	for _, v := range values {
		diff := v - mean
		sumSquaredDiffs += diff * diff
	}

	// empty shards next to empty shards are perfectly balanced
	minMaxRatio := 1.0
	if maxV > 0 {
		minMaxRatio = minV / maxV
	}

	return Stats{
		StdDeviation: math.Sqrt(sumSquaredDiffs / float64(len(values))),
		Min:          minV,
		Max:          maxV,
		Mean:         mean,
		MinMaxRatio:  minMaxRatio,
	}
}

type DistributionStats struct {
	Stats
	DistributionQuality float64 `json:"distribution_quality"`
}

// NewDistributionStats rates how evenly entries are spread over the shards.
// A quality of 1 means every shard holds the same number of entries.
func NewDistributionStats(shardSizes []float64) DistributionStats {
	stats := NewStats(shardSizes)

	// coefficient of variation
	var cv float64
	if stats.Mean > 0 {
		cv = stats.StdDeviation / stats.Mean
	}

	return DistributionStats{
		Stats:               stats,
		DistributionQuality: (1.0-math.Min(1.0, cv))*0.5 + stats.MinMaxRatio*0.5,
	}
}

// ----------------------------------------------------------------------------
// SizeHistogram
// ----------------------------------------------------------------------------

// SizeHistogram tracks the distribution of record sizes in exponential
// buckets from 16 bytes up to 4 GB.
type SizeHistogram struct {
	mutex      sync.RWMutex
	boundaries []int
	buckets    []int64 // len(boundaries)+1, the last one collects larger values
	count      int64
	sum        int64
}

// NewSizeHistogram creates a new size histogram with default bucket boundaries
func NewSizeHistogram() *SizeHistogram {
	boundaries := []int{
		16, 64, 256, 1024, 4096,
		16384, 65536, 262144, 1048576,
		4194304, 16777216, 67108864,
		268435456, 1073741824, 4294967296,
	}
	return &SizeHistogram{
		boundaries: boundaries,
		buckets:    make([]int64, len(boundaries)+1),
	}
}

// AddSample adds a size sample to the histogram
//
// Thread-safe: This method is safe for concurrent use
func (h *SizeHistogram) AddSample(size int) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	bucketIndex := len(h.boundaries)
	for i, boundary := range h.boundaries {
		if size <= boundary {
			bucketIndex = i
			break
		}
	}

	h.buckets[bucketIndex]++
	h.count++
	h.sum += int64(size)
}

// AverageSize returns the average size across all samples
func (h *SizeHistogram) AverageSize() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if h.count == 0 {
		return 0
	}
	return int(h.sum / h.count)
}

// MedianEstimate estimates the median size based on the histogram
func (h *SizeHistogram) MedianEstimate() int {
	return h.GetPercentileEstimate(50)
}

// GetPercentileEstimate returns an estimate for the given percentile (0-100).
// The estimate is the middle of the bucket the percentile falls into.
func (h *SizeHistogram) GetPercentileEstimate(percentile int) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if h.count == 0 || percentile < 0 || percentile > 100 {
		return 0
	}

	targetCount := int64(math.Ceil(float64(h.count) * float64(percentile) / 100.0))
	cumulativeCount := int64(0)

	for i, count := range h.buckets {
		cumulativeCount += count
		if cumulativeCount < targetCount {
			continue
		}
		switch {
		case i == 0:
			return h.boundaries[0] / 2
		case i < len(h.boundaries):
			return (h.boundaries[i-1] + h.boundaries[i]) / 2
		default:
			return h.boundaries[len(h.boundaries)-1] * 2
		}
	}

	return int(h.sum / h.count)
}

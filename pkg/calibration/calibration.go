// Package calibration measures how well predicted probabilities match
// observed outcome frequencies.
package calibration

import (
	"math"

	"github.com/osintlab/trendwatch/pkg/models"
)

// Bucket is one decile of the reliability diagram.
type Bucket struct {
	// Low and High bound the predicted-probability decile [Low, High).
	Low  float64 `json:"low"`
	High float64 `json:"high"`

	Count             int     `json:"count"`
	MeanPredicted     float64 `json:"mean_predicted"`
	ObservedFrequency float64 `json:"observed_frequency"`
}

// Midpoint returns the center of the bucket's probability band.
func (b *Bucket) Midpoint() float64 {
	return (b.Low + b.High) / 2
}

// Error returns |observed − bucket midpoint|, 0 when empty. The band's
// midpoint is the reference, not the mean prediction inside it.
func (b *Bucket) Error() float64 {
	if b.Count == 0 {
		return 0
	}
	return math.Abs(b.ObservedFrequency - b.Midpoint())
}

// Report is the full calibration picture over resolved outcomes.
type Report struct {
	SampleCount int      `json:"sample_count"`
	BrierScore  float64  `json:"brier_score"`
	Buckets     []Bucket `json:"buckets"`

	// LowSampleTrends are trend ids with too few resolved outcomes to trust.
	LowSampleTrends []string `json:"low_sample_trends,omitempty"`

	// SourceReliability and TierReliability are advisory diagnostics: they
	// feed no alert and no score, only the report.
	SourceReliability []*models.SourceReliability `json:"source_reliability,omitempty"`
	TierReliability   []*models.TierReliability   `json:"tier_reliability,omitempty"`
}

const bucketCount = 10

// Build computes the aggregate Brier score and the ten-decile reliability
// diagram over resolved outcomes. Unresolved outcomes never reach here.
func Build(outcomes []*models.TrendOutcome) *Report {
	report := &Report{Buckets: make([]Bucket, bucketCount)}
	for i := range report.Buckets {
		report.Buckets[i].Low = float64(i) / bucketCount
		report.Buckets[i].High = float64(i+1) / bucketCount
	}

	var brierSum float64
	predictedSums := make([]float64, bucketCount)
	occurredCounts := make([]int, bucketCount)

	for _, o := range outcomes {
		if !o.Outcome.Resolved() {
			continue
		}
		actual := 0.0
		if o.Outcome == models.OutcomeOccurred {
			actual = 1.0
		}
		p := o.PredictedProbability
		brierSum += (p - actual) * (p - actual)
		report.SampleCount++

		idx := bucketIndex(p)
		report.Buckets[idx].Count++
		predictedSums[idx] += p
		if actual == 1.0 {
			occurredCounts[idx]++
		}
	}

	if report.SampleCount > 0 {
		report.BrierScore = brierSum / float64(report.SampleCount)
	}
	for i := range report.Buckets {
		if report.Buckets[i].Count == 0 {
			continue
		}
		n := float64(report.Buckets[i].Count)
		report.Buckets[i].MeanPredicted = predictedSums[i] / n
		report.Buckets[i].ObservedFrequency = float64(occurredCounts[i]) / n
	}
	return report
}

func bucketIndex(p float64) int {
	idx := int(p * bucketCount)
	if idx >= bucketCount {
		idx = bucketCount - 1
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}

// Severity grades a drift alert.
type Severity string

// Alert severities.
const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is one detected calibration problem.
type Alert struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`

	BrierScore  float64 `json:"brier_score,omitempty"`
	BucketLow   float64 `json:"bucket_low,omitempty"`
	BucketHigh  float64 `json:"bucket_high,omitempty"`
	BucketError float64 `json:"bucket_error,omitempty"`
}

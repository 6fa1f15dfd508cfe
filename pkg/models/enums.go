package models

// SourceType identifies the collector family that produces items for a source.
type SourceType string

// Source type constants.
const (
	SourceTypeRSS      SourceType = "rss"
	SourceTypeGDELT    SourceType = "gdelt"
	SourceTypeTelegram SourceType = "telegram"
	SourceTypeAPI      SourceType = "api"
)

// SourceTier ranks the editorial weight of a source.
type SourceTier string

// Source tier constants, ordered by weight.
const (
	TierPrimary    SourceTier = "primary"
	TierWire       SourceTier = "wire"
	TierMajor      SourceTier = "major"
	TierRegional   SourceTier = "regional"
	TierAggregator SourceTier = "aggregator"
)

// ReportingType distinguishes firsthand reporting from relays.
type ReportingType string

// Reporting type constants.
const (
	ReportingFirsthand  ReportingType = "firsthand"
	ReportingSecondary  ReportingType = "secondary"
	ReportingAggregator ReportingType = "aggregator"
)

// ProcessingStatus is the pipeline state of a RawItem.
type ProcessingStatus string

// Processing status constants. Transitions are monotone except the reaper,
// which resets processing → pending after a timeout.
const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusClassified ProcessingStatus = "classified"
	StatusNoise      ProcessingStatus = "noise"
	StatusError      ProcessingStatus = "error"
)

// LifecycleStatus is the maturity state of an Event.
type LifecycleStatus string

// Event lifecycle constants.
const (
	LifecycleEmerging  LifecycleStatus = "emerging"
	LifecycleConfirmed LifecycleStatus = "confirmed"
	LifecycleFading    LifecycleStatus = "fading"
	LifecycleArchived  LifecycleStatus = "archived"
)

// Direction is the sign an indicator applies to a trend's log-odds.
type Direction string

// Indicator direction constants.
const (
	DirectionEscalatory   Direction = "escalatory"
	DirectionDeEscalatory Direction = "de_escalatory"
)

// Multiplier returns the signed multiplier for the direction.
func (d Direction) Multiplier() float64 {
	if d == DirectionDeEscalatory {
		return -1
	}
	return 1
}

// Outcome classifies how a prediction resolved.
type Outcome string

// Outcome constants.
const (
	OutcomeOccurred    Outcome = "occurred"
	OutcomeDidNotOccur Outcome = "did_not_occur"
	OutcomePartial     Outcome = "partial"
	OutcomeSuperseded  Outcome = "superseded"
	OutcomeOngoing     Outcome = "ongoing"
)

// Resolved reports whether the outcome counts toward calibration.
func (o Outcome) Resolved() bool {
	return o == OutcomeOccurred || o == OutcomeDidNotOccur
}

// FeedbackAction is a manual correction applied by an operator.
type FeedbackAction string

// Feedback action constants.
const (
	FeedbackPin             FeedbackAction = "pin"
	FeedbackMarkNoise       FeedbackAction = "mark_noise"
	FeedbackInvalidate      FeedbackAction = "invalidate"
	FeedbackOverrideDelta   FeedbackAction = "override_delta"
	FeedbackCorrectCategory FeedbackAction = "correct_category"
)

// GapStatus is the triage state of a taxonomy gap.
type GapStatus string

// Taxonomy gap status constants.
const (
	GapOpen     GapStatus = "open"
	GapResolved GapStatus = "resolved"
	GapRejected GapStatus = "rejected"
)

// GapReason explains why a Tier-2 impact could not be applied.
type GapReason string

// Taxonomy gap reason constants.
const (
	GapUnknownTrendID    GapReason = "unknown_trend_id"
	GapUnknownSignalType GapReason = "unknown_signal_type"
)

// Tier identifies which LLM routing tier a call belongs to.
type Tier string

// Tier constants. TierEmbedding shares the usage ledger but is not an LLM
// routing tier.
const (
	Tier1         Tier = "tier1"
	Tier2         Tier = "tier2"
	TierEmbedding Tier = "embedding"
)

// RiskLevel buckets a probability for reporting.
type RiskLevel string

// Risk level constants.
const (
	RiskLow      RiskLevel = "low"
	RiskGuarded  RiskLevel = "guarded"
	RiskElevated RiskLevel = "elevated"
	RiskHigh     RiskLevel = "high"
	RiskSevere   RiskLevel = "severe"
)

// DirectionTrend maps probability movement over a window to a label.
type DirectionTrend string

// Direction trend constants.
const (
	TrendRisingFast  DirectionTrend = "rising_fast"
	TrendRising      DirectionTrend = "rising"
	TrendStable      DirectionTrend = "stable"
	TrendFalling     DirectionTrend = "falling"
	TrendFallingFast DirectionTrend = "falling_fast"
)

// ConfidenceRating grades how much evidence backs a probability.
type ConfidenceRating string

// Confidence rating constants.
const (
	ConfidenceLow    ConfidenceRating = "low"
	ConfidenceMedium ConfidenceRating = "medium"
	ConfidenceHigh   ConfidenceRating = "high"
)

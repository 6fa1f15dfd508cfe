// Package pipeline runs items from ingestion through classification,
// embedding, clustering, deep analysis, and evidence application.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/osintlab/trendwatch/pkg/config"
	"github.com/osintlab/trendwatch/pkg/llm"
	"github.com/osintlab/trendwatch/pkg/models"
	"github.com/osintlab/trendwatch/pkg/trend"
)

// TrendStore is the trend persistence surface the applier needs. Satisfied by
// services.TrendService.
type TrendStore interface {
	Get(ctx context.Context, id string) (*models.Trend, error)
	PriorEvidence(ctx context.Context, trendID, signalType string) (int, *time.Time, error)
	ApplyEvidence(ctx context.Context, ev *models.TrendEvidence) (bool, error)
}

// GapRecorder queues unknown taxonomy references for review. Satisfied by
// services.GapService.
type GapRecorder interface {
	Record(ctx context.Context, gap *models.TaxonomyGap) error
}

// Applier converts validated Tier-2 impacts into evidence ledger rows.
// Impacts naming an unknown trend or signal type become taxonomy gaps; valid
// impacts become exactly one ledger row and one log-odds move each.
type Applier struct {
	registry *config.TrendRegistry
	novelty  trend.NoveltyConfig
	trends   TrendStore
	gaps     GapRecorder
	logger   *slog.Logger
}

// NewApplier creates an Applier.
func NewApplier(registry *config.TrendRegistry, novelty trend.NoveltyConfig, trends TrendStore, gaps GapRecorder) *Applier {
	return &Applier{
		registry: registry,
		novelty:  novelty,
		trends:   trends,
		gaps:     gaps,
		logger:   slog.With("component", "evidence_applier"),
	}
}

// ApplyResult summarizes one event's evidence application.
type ApplyResult struct {
	Applied int
	Skipped int // idempotent replays
	Gaps    int
}

// Apply processes every impact for one event. Partial application is
// deliberate: a gap in one impact never blocks the rest.
func (a *Applier) Apply(ctx context.Context, event *models.Event, source *models.Source, impacts []llm.Impact, now time.Time) (*ApplyResult, error) {
	result := &ApplyResult{}

	for _, impact := range impacts {
		if gapReason, ok := a.checkTaxonomy(impact); !ok {
			if err := a.recordGap(ctx, event, impact, gapReason); err != nil {
				return result, err
			}
			result.Gaps++
			continue
		}

		applied, err := a.applyOne(ctx, event, source, impact, now)
		if err != nil {
			return result, fmt.Errorf("impact (%s, %s): %w", impact.TrendID, impact.SignalType, err)
		}
		if applied {
			result.Applied++
		} else {
			result.Skipped++
		}
	}
	return result, nil
}

func (a *Applier) checkTaxonomy(impact llm.Impact) (models.GapReason, bool) {
	if !a.registry.Has(impact.TrendID) {
		return models.GapUnknownTrendID, false
	}
	if !a.registry.HasSignal(impact.TrendID, impact.SignalType) {
		return models.GapUnknownSignalType, false
	}
	return "", true
}

func (a *Applier) recordGap(ctx context.Context, event *models.Event, impact llm.Impact, reason models.GapReason) error {
	return a.gaps.Record(ctx, &models.TaxonomyGap{
		Reason:     reason,
		TrendID:    impact.TrendID,
		SignalType: impact.SignalType,
		EventID:    &event.ID,
		Payload: fmt.Sprintf("severity=%.2f confidence=%.2f reasoning=%s",
			impact.Severity, impact.Confidence, impact.Reasoning),
	})
}

func (a *Applier) applyOne(ctx context.Context, event *models.Event, source *models.Source, impact llm.Impact, now time.Time) (bool, error) {
	t, err := a.trends.Get(ctx, impact.TrendID)
	if err != nil {
		return false, err
	}
	indicator, ok := t.Indicator(impact.SignalType)
	if !ok {
		// Registry and database views of the definition disagree; treat as a
		// gap rather than guessing a weight.
		if err := a.recordGap(ctx, event, impact, models.GapUnknownSignalType); err != nil {
			return false, err
		}
		return false, nil
	}

	priorCount, lastSeen, err := a.trends.PriorEvidence(ctx, impact.TrendID, impact.SignalType)
	if err != nil {
		return false, err
	}

	ageDays := now.Sub(event.FirstSeenAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}

	inputs := trend.DeltaInputs{
		BaseWeight:          indicator.Weight,
		Credibility:         trend.SourceCredibility(source),
		CorroborationFactor: corroborationForEvent(event),
		Novelty:             trend.Novelty(a.novelty, priorCount, lastSeen, now),
		EvidenceAgeDays:     ageDays,
		TemporalDecayFactor: trend.TemporalDecayFactor(ageDays, t.IndicatorHalfLife(impact.SignalType)),
		Severity:            impact.Severity,
		Confidence:          impact.Confidence,
		Direction:           indicator.Direction,
	}
	delta := trend.Delta(inputs)

	definitionHash := ""
	if t.Definition != nil {
		if definitionHash, err = t.Definition.Hash(); err != nil {
			return false, err
		}
	}

	return a.trends.ApplyEvidence(ctx, &models.TrendEvidence{
		TrendID:             impact.TrendID,
		EventID:             event.ID,
		SignalType:          impact.SignalType,
		BaseWeight:          inputs.BaseWeight,
		Credibility:         inputs.Credibility,
		CorroborationFactor: inputs.CorroborationFactor,
		Novelty:             inputs.Novelty,
		EvidenceAgeDays:     inputs.EvidenceAgeDays,
		TemporalDecayFactor: inputs.TemporalDecayFactor,
		Severity:            inputs.Severity,
		Confidence:          inputs.Confidence,
		DirectionMultiplier: inputs.Direction.Multiplier(),
		DeltaLogOdds:        delta,
		Reasoning:           impact.Reasoning,
		TrendDefinitionHash: definitionHash,
	})
}

// corroborationForEvent approximates independence-weighted source mass with
// unit weight per distinct source, penalized when the claim graph holds a
// contradiction.
func corroborationForEvent(event *models.Event) float64 {
	weights := make([]float64, event.UniqueSourceCount)
	for i := range weights {
		weights[i] = 1
	}
	return trend.CorroborationFactor(weights, event.Contradicted || event.Claims.HasContradiction())
}

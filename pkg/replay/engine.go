package replay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/osintlab/trendwatch/pkg/models"
	"github.com/osintlab/trendwatch/pkg/services"
	"github.com/osintlab/trendwatch/pkg/trend"
)

// TrendStore is the read surface the engine needs. Satisfied by
// services.TrendService.
type TrendStore interface {
	Get(ctx context.Context, id string) (*models.Trend, error)
	ActiveEvidenceSince(ctx context.Context, trendID string, since time.Time) ([]*models.TrendEvidence, error)
	SnapshotAtOrBefore(ctx context.Context, trendID string, ts time.Time) (*models.TrendSnapshot, error)
}

// OutcomeStore supplies recorded predictions for challenger scoring.
// Satisfied by services.OutcomeService.
type OutcomeStore interface {
	ForTrend(ctx context.Context, trendID string) ([]*models.TrendOutcome, error)
}

// Promotion thresholds: a challenger wins with a ≥2% relative Brier
// improvement, unless its projected cost regresses more than 10%.
const (
	promotionBrierImprovement = 0.02
	promotionCostRegression   = 1.10
)

// Engine runs counterfactual simulations and challenger evaluations against
// the live ledger, read-only.
type Engine struct {
	trends   TrendStore
	outcomes OutcomeStore
	logger   *slog.Logger
}

// NewEngine creates a replay Engine.
func NewEngine(trends TrendStore, outcomes OutcomeStore) *Engine {
	return &Engine{
		trends:   trends,
		outcomes: outcomes,
		logger:   slog.With("component", "replay"),
	}
}

// Simulation compares the recorded trajectory with a counterfactual one.
type Simulation struct {
	TrendID string `json:"trend_id"`

	Actual         []Point `json:"actual"`
	Counterfactual []Point `json:"counterfactual"`

	ActualLogOdds         float64 `json:"actual_log_odds"`
	CounterfactualLogOdds float64 `json:"counterfactual_log_odds"`
	ActualProbability     float64 `json:"actual_probability"`
	CounterfactualProb    float64 `json:"counterfactual_probability"`
	ProbabilityShift      float64 `json:"probability_shift"`
}

// RemoveEvent answers "where would this trend be if that event had never
// happened": the trajectory is rebuilt from the ledger with the event's
// evidence excluded.
func (e *Engine) RemoveEvent(ctx context.Context, trendID, eventID string, since time.Time) (*Simulation, error) {
	t, evidence, start, startLO, err := e.load(ctx, trendID, since)
	if err != nil {
		return nil, err
	}
	return e.compare(t, evidence, WithoutEvent(evidence, eventID), start, startLO), nil
}

// InjectSignal answers "what would this hypothetical signal do": a synthetic
// evidence row is appended and the trajectory rebuilt.
func (e *Engine) InjectSignal(ctx context.Context, trendID string, sig InjectedSignal, since time.Time) (*Simulation, error) {
	t, evidence, start, startLO, err := e.load(ctx, trendID, since)
	if err != nil {
		return nil, err
	}
	if t.Definition == nil {
		return nil, fmt.Errorf("trend %s has no definition", trendID)
	}
	if _, ok := t.Definition.Indicators[sig.SignalType]; !ok {
		return nil, fmt.Errorf("trend %s does not define signal type %q: %w",
			trendID, sig.SignalType, services.ErrNotFound)
	}
	if sig.At.IsZero() {
		sig.At = time.Now().UTC()
	}
	return e.compare(t, evidence, WithInjected(evidence, t.Definition, sig), start, startLO), nil
}

func (e *Engine) load(ctx context.Context, trendID string, since time.Time) (*models.Trend, []*models.TrendEvidence, time.Time, float64, error) {
	t, err := e.trends.Get(ctx, trendID)
	if err != nil {
		return nil, nil, time.Time{}, 0, err
	}

	evidence, err := e.trends.ActiveEvidenceSince(ctx, trendID, since)
	if err != nil {
		return nil, nil, time.Time{}, 0, fmt.Errorf("failed to load evidence for replay: %w", err)
	}

	// Anchor on the last snapshot before the window so evidence older than
	// the window is still accounted for.
	startLO := t.BaselineLogOdds
	start := since
	snap, err := e.trends.SnapshotAtOrBefore(ctx, trendID, since)
	switch {
	case err == nil:
		startLO = snap.LogOdds
		start = snap.Timestamp
	case errors.Is(err, services.ErrNotFound):
		// No snapshot yet: replay from the baseline.
	default:
		return nil, nil, time.Time{}, 0, fmt.Errorf("failed to load anchor snapshot: %w", err)
	}
	return t, evidence, start, startLO, nil
}

func (e *Engine) compare(t *models.Trend, actual, counterfactual []*models.TrendEvidence, start time.Time, startLO float64) *Simulation {
	until := time.Now().UTC()
	sim := &Simulation{
		TrendID:        t.ID,
		Actual:         Rebuild(startLO, t.BaselineLogOdds, t.DecayHalfLifeDays, actual, start, until),
		Counterfactual: Rebuild(startLO, t.BaselineLogOdds, t.DecayHalfLifeDays, counterfactual, start, until),
	}
	sim.ActualLogOdds = sim.Actual[len(sim.Actual)-1].LogOdds
	sim.CounterfactualLogOdds = sim.Counterfactual[len(sim.Counterfactual)-1].LogOdds
	sim.ActualProbability = trend.LogOddsToProb(sim.ActualLogOdds)
	sim.CounterfactualProb = trend.LogOddsToProb(sim.CounterfactualLogOdds)
	sim.ProbabilityShift = sim.ActualProbability - sim.CounterfactualProb
	return sim
}

// Assessment is the champion/challenger verdict for one trend definition.
type Assessment struct {
	TrendID string `json:"trend_id"`

	ChampionBrier   float64 `json:"champion_brier"`
	ChallengerBrier float64 `json:"challenger_brier"`
	// Improvement is the relative Brier gain; positive favors the challenger.
	Improvement float64 `json:"improvement"`
	// CostRatio is projected challenger spend over champion spend; 1.0 when
	// the challenger changes weights only.
	CostRatio float64 `json:"cost_ratio"`

	// Latency is the wall time to replay the window under each definition.
	ChampionLatencyMs   float64 `json:"champion_latency_ms"`
	ChallengerLatencyMs float64 `json:"challenger_latency_ms"`

	SampleCount int    `json:"sample_count"`
	Promote     bool   `json:"promote"`
	Reason      string `json:"reason"`
}

// EvaluateChallenger replays the ledger under a candidate definition and
// scores both definitions against recorded outcomes. costRatio ≤ 0 means the
// challenger's cost profile is unchanged.
func (e *Engine) EvaluateChallenger(ctx context.Context, trendID string, challenger *models.TrendDefinition, since time.Time, costRatio float64) (*Assessment, error) {
	t, evidence, start, startLO, err := e.load(ctx, trendID, since)
	if err != nil {
		return nil, err
	}
	outcomes, err := e.outcomes.ForTrend(ctx, trendID)
	if err != nil {
		return nil, fmt.Errorf("failed to load outcomes for challenger evaluation: %w", err)
	}

	until := time.Now().UTC()
	championStart := time.Now()
	champion := Rebuild(startLO, t.BaselineLogOdds, t.DecayHalfLifeDays, evidence, start, until)
	championLatency := time.Since(championStart)

	challengerStart := time.Now()
	rebuilt := Rebuild(startLO, t.BaselineLogOdds, t.DecayHalfLifeDays,
		Reweighted(evidence, challenger), start, until)
	challengerLatency := time.Since(challengerStart)

	if costRatio <= 0 {
		costRatio = 1.0
	}
	assessment := &Assessment{
		TrendID:             trendID,
		CostRatio:           costRatio,
		ChampionLatencyMs:   championLatency.Seconds() * 1e3,
		ChallengerLatencyMs: challengerLatency.Seconds() * 1e3,
	}

	var champSum, challSum float64
	for _, o := range outcomes {
		if !o.Outcome.Resolved() {
			continue
		}
		actual := 0.0
		if o.Outcome == models.OutcomeOccurred {
			actual = 1.0
		}
		pc := trend.LogOddsToProb(At(champion, t.BaselineLogOdds, t.DecayHalfLifeDays, o.PredictionDate))
		pr := trend.LogOddsToProb(At(rebuilt, t.BaselineLogOdds, t.DecayHalfLifeDays, o.PredictionDate))
		champSum += (pc - actual) * (pc - actual)
		challSum += (pr - actual) * (pr - actual)
		assessment.SampleCount++
	}

	if assessment.SampleCount == 0 {
		assessment.Reason = "no resolved outcomes to score against"
		return assessment, nil
	}

	n := float64(assessment.SampleCount)
	assessment.ChampionBrier = champSum / n
	assessment.ChallengerBrier = challSum / n
	if assessment.ChampionBrier > 0 {
		assessment.Improvement = (assessment.ChampionBrier - assessment.ChallengerBrier) / assessment.ChampionBrier
	}

	switch {
	case assessment.CostRatio > promotionCostRegression:
		assessment.Reason = fmt.Sprintf("cost regression %.0f%% exceeds the %.0f%% allowance",
			(assessment.CostRatio-1)*100, (promotionCostRegression-1)*100)
	case assessment.Improvement < promotionBrierImprovement:
		assessment.Reason = fmt.Sprintf("Brier improvement %.1f%% below the %.0f%% bar",
			assessment.Improvement*100, promotionBrierImprovement*100)
	default:
		assessment.Promote = true
		assessment.Reason = fmt.Sprintf("Brier improved %.1f%% at %.2fx cost",
			assessment.Improvement*100, assessment.CostRatio)
	}

	e.logger.Info("Challenger evaluated",
		"trend_id", trendID,
		"champion_brier", assessment.ChampionBrier,
		"challenger_brier", assessment.ChallengerBrier,
		"champion_latency_ms", assessment.ChampionLatencyMs,
		"challenger_latency_ms", assessment.ChallengerLatencyMs,
		"promote", assessment.Promote)
	return assessment, nil
}

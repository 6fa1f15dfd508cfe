// Package replay rebuilds trend trajectories from the evidence ledger for
// counterfactual analysis and champion/challenger definition evaluation.
// Everything here is side-effect free: replays never touch live state.
package replay

import (
	"sort"
	"time"

	"github.com/osintlab/trendwatch/pkg/models"
	"github.com/osintlab/trendwatch/pkg/trend"
)

// Point is one step of a rebuilt trajectory.
type Point struct {
	Time    time.Time `json:"time"`
	LogOdds float64   `json:"log_odds"`
	// EvidenceID is the ledger row applied at this point, "" for the origin.
	EvidenceID string `json:"evidence_id,omitempty"`
}

// Rebuild replays ledger rows in time order, decaying toward the baseline
// between rows with the trend half-life. startLogOdds anchors the trajectory
// at start (usually a snapshot, or the baseline itself). The input slice is
// not modified.
func Rebuild(startLogOdds, baseline, halfLifeDays float64, evidence []*models.TrendEvidence, start, until time.Time) []Point {
	rows := make([]*models.TrendEvidence, 0, len(evidence))
	for _, ev := range evidence {
		if !ev.CreatedAt.Before(start) && !ev.CreatedAt.After(until) {
			rows = append(rows, ev)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].CreatedAt.Before(rows[j].CreatedAt) })

	points := make([]Point, 0, len(rows)+2)
	current := startLogOdds
	cursor := start
	points = append(points, Point{Time: start, LogOdds: current})

	for _, ev := range rows {
		elapsedDays := ev.CreatedAt.Sub(cursor).Hours() / 24
		current = trend.Decay(current, baseline, elapsedDays, halfLifeDays)
		current += ev.DeltaLogOdds
		cursor = ev.CreatedAt
		points = append(points, Point{Time: cursor, LogOdds: current, EvidenceID: ev.ID})
	}

	if until.After(cursor) {
		elapsedDays := until.Sub(cursor).Hours() / 24
		current = trend.Decay(current, baseline, elapsedDays, halfLifeDays)
		points = append(points, Point{Time: until, LogOdds: current})
	}
	return points
}

// At returns the trajectory's log-odds at t: the last point at or before t,
// decayed forward to t. Before the first point it is the first point's value.
func At(points []Point, baseline, halfLifeDays float64, t time.Time) float64 {
	if len(points) == 0 {
		return baseline
	}
	last := points[0]
	for _, p := range points {
		if p.Time.After(t) {
			break
		}
		last = p
	}
	elapsedDays := t.Sub(last.Time).Hours() / 24
	if elapsedDays <= 0 {
		return last.LogOdds
	}
	return trend.Decay(last.LogOdds, baseline, elapsedDays, halfLifeDays)
}

// WithoutEvent filters out all ledger rows produced by one event.
func WithoutEvent(evidence []*models.TrendEvidence, eventID string) []*models.TrendEvidence {
	kept := make([]*models.TrendEvidence, 0, len(evidence))
	for _, ev := range evidence {
		if ev.EventID != eventID {
			kept = append(kept, ev)
		}
	}
	return kept
}

// Reweighted recomputes every row's delta under a challenger definition,
// keeping the recorded credibility, corroboration, novelty, severity, and
// confidence as historical fact. Rows whose signal type the challenger does
// not define are dropped, matching what the applier would have done.
func Reweighted(evidence []*models.TrendEvidence, challenger *models.TrendDefinition) []*models.TrendEvidence {
	out := make([]*models.TrendEvidence, 0, len(evidence))
	for _, ev := range evidence {
		indicator, ok := challenger.Indicators[ev.SignalType]
		if !ok {
			continue
		}
		clone := *ev
		clone.BaseWeight = indicator.Weight
		clone.DirectionMultiplier = indicator.Direction.Multiplier()
		clone.DeltaLogOdds = trend.Delta(trend.DeltaInputs{
			BaseWeight:          indicator.Weight,
			Credibility:         ev.Credibility,
			CorroborationFactor: ev.CorroborationFactor,
			Novelty:             ev.Novelty,
			EvidenceAgeDays:     ev.EvidenceAgeDays,
			TemporalDecayFactor: ev.TemporalDecayFactor,
			Severity:            ev.Severity,
			Confidence:          ev.Confidence,
			Direction:           indicator.Direction,
		})
		out = append(out, &clone)
	}
	return out
}

// InjectedSignal is a hypothetical evidence row for what-if simulation.
type InjectedSignal struct {
	SignalType string
	Severity   float64
	Confidence float64
	At         time.Time
	// Credibility and Corroboration default to 1.0 when zero.
	Credibility   float64
	Corroboration float64
}

// WithInjected appends a synthetic row computed from the definition's
// indicator for the signal. Returns the input unchanged when the signal type
// is not defined.
func WithInjected(evidence []*models.TrendEvidence, def *models.TrendDefinition, sig InjectedSignal) []*models.TrendEvidence {
	indicator, ok := def.Indicators[sig.SignalType]
	if !ok {
		return evidence
	}

	credibility := sig.Credibility
	if credibility == 0 {
		credibility = 1
	}
	corroboration := sig.Corroboration
	if corroboration == 0 {
		corroboration = 1
	}

	inputs := trend.DeltaInputs{
		BaseWeight:          indicator.Weight,
		Credibility:         credibility,
		CorroborationFactor: corroboration,
		Novelty:             1,
		TemporalDecayFactor: 1,
		Severity:            sig.Severity,
		Confidence:          sig.Confidence,
		Direction:           indicator.Direction,
	}

	out := make([]*models.TrendEvidence, 0, len(evidence)+1)
	out = append(out, evidence...)
	out = append(out, &models.TrendEvidence{
		ID:                  "injected",
		SignalType:          sig.SignalType,
		BaseWeight:          inputs.BaseWeight,
		Credibility:         credibility,
		CorroborationFactor: corroboration,
		Novelty:             1,
		TemporalDecayFactor: 1,
		Severity:            sig.Severity,
		Confidence:          sig.Confidence,
		DirectionMultiplier: indicator.Direction.Multiplier(),
		DeltaLogOdds:        trend.Delta(inputs),
		CreatedAt:           sig.At,
	})
	return out
}

package llm

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/osintlab/trendwatch/pkg/models"
)

// EventContext is what the deep analyst sees about one event.
type EventContext struct {
	EventID     string
	Summary     string
	ItemTitles  []string
	PrimaryText string
}

// Analyst is the Tier-2 deep analyzer: structured extraction, claim graph,
// and scored trend impacts for one event.
type Analyst struct {
	caller *Caller
	logger *slog.Logger
}

// NewAnalyst creates an Analyst.
func NewAnalyst(caller *Caller) *Analyst {
	return &Analyst{
		caller: caller,
		logger: slog.With("component", "tier2_analyst"),
	}
}

// maxTier2Text bounds the primary article text sent for deep analysis.
const maxTier2Text = 12000

// Analyze runs one deep-analysis call. The trend catalog pins the valid
// (trend_id, signal_type) vocabulary; anything outside it becomes a taxonomy
// gap downstream, never a silent apply.
func (a *Analyst) Analyze(ctx context.Context, ec EventContext, trendCatalog string) (*Analysis, error) {
	text := TruncateRunes(ec.PrimaryText, maxTier2Text)

	var sb strings.Builder
	fmt.Fprintf(&sb, "event_id: %s\ncurrent_summary: %s\n", ec.EventID, ec.Summary)
	if len(ec.ItemTitles) > 0 {
		fmt.Fprintf(&sb, "mention_titles:\n")
		for _, title := range ec.ItemTitles {
			fmt.Fprintf(&sb, "- %s\n", title)
		}
	}
	sb.WriteString("\nprimary article:\n")
	sb.WriteString(FenceContent(text))

	resp, err := a.caller.Call(ctx, models.Tier2, Request{
		System: "You are a geopolitical analyst. For the event below produce JSON with: " +
			`"summary" (one neutral sentence), "extraction" ({"who":[],"what":"","where":[],"when":""}), ` +
			`"claims" ({"claims":[{"id","text","confidence","item_id"}],"links":[{"from_claim_id","to_claim_id","relation"}]}, ` +
			`relation is "supports" or "contradicts"), "categories" (short tags), ` +
			`and "impacts" ([{"trend_id","signal_type","direction","severity","confidence","reasoning"}], ` +
			`direction is "escalatory" or "de_escalatory", severity and confidence in [0,1], ` +
			"at most one impact per (trend_id, signal_type) pair, " +
			"only trend_ids and signal_types from the catalog). " + safetyRule +
			"\n\nTrend catalog:\n" + trendCatalog,
		User: sb.String(),
	})
	if err != nil {
		return nil, err
	}

	analysis, err := ParseAnalysis(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("event %s: %w", ec.EventID, err)
	}
	return analysis, nil
}

// CatalogPrompt renders the trend registry as the vocabulary block shared by
// both tiers. Output is deterministic for a given registry.
func CatalogPrompt(trends []*models.TrendDefinition) string {
	var sb strings.Builder
	for _, def := range trends {
		fmt.Fprintf(&sb, "- trend_id: %s (%s)\n", def.ID, def.Name)
		signalTypes := make([]string, 0, len(def.Indicators))
		for signalType := range def.Indicators {
			signalTypes = append(signalTypes, signalType)
		}
		sort.Strings(signalTypes)
		for _, signalType := range signalTypes {
			ind := def.Indicators[signalType]
			fmt.Fprintf(&sb, "    signal_type: %s (weight %.2f, %s)\n",
				signalType, ind.Weight, ind.Direction)
		}
	}
	return sb.String()
}

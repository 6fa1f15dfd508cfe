package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/osintlab/trendwatch/pkg/models"
)

// ErrSchemaViolation means the model output did not satisfy the strict
// response contract. The caller treats the output as unusable; it never
// partially applies a malformed response.
var ErrSchemaViolation = errors.New("model output violates response schema")

// Tier1Score is one relevance verdict from the batch classifier.
type Tier1Score struct {
	ItemID    string  `json:"item_id"`
	Relevance float64 `json:"relevance"`
	Rationale string  `json:"rationale,omitempty"`
}

type tier1Response struct {
	Scores []Tier1Score `json:"scores"`
}

// ParseTier1 decodes and validates a batch classifier response. Every score
// must reference a requested item exactly once and sit in [0, 10].
func ParseTier1(content string, requestedIDs []string) ([]Tier1Score, error) {
	var resp tier1Response
	if err := strictUnmarshal(content, &resp); err != nil {
		return nil, err
	}

	requested := make(map[string]bool, len(requestedIDs))
	for _, id := range requestedIDs {
		requested[id] = false
	}

	for _, score := range resp.Scores {
		seen, ok := requested[score.ItemID]
		if !ok {
			return nil, fmt.Errorf("%w: score for unknown item %q", ErrSchemaViolation, score.ItemID)
		}
		if seen {
			return nil, fmt.Errorf("%w: duplicate score for item %q", ErrSchemaViolation, score.ItemID)
		}
		requested[score.ItemID] = true
		if score.Relevance < 0 || score.Relevance > 10 {
			return nil, fmt.Errorf("%w: relevance %.2f for item %q out of [0,10]",
				ErrSchemaViolation, score.Relevance, score.ItemID)
		}
	}
	for id, seen := range requested {
		if !seen {
			return nil, fmt.Errorf("%w: missing score for item %q", ErrSchemaViolation, id)
		}
	}
	return resp.Scores, nil
}

// Impact is one scored trend signal from the deep analyst.
type Impact struct {
	TrendID    string `json:"trend_id"`
	SignalType string `json:"signal_type"`

	// Direction is the model's read of the signal. Advisory: the indicator
	// definition governs the applied sign, but a malformed value still fails
	// the schema.
	Direction  string  `json:"direction,omitempty"`
	Severity   float64 `json:"severity"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

// Analysis is the full deep-analysis output for one event.
type Analysis struct {
	Summary    string             `json:"summary"`
	Extraction *models.Extraction `json:"extraction,omitempty"`
	Claims     *models.ClaimGraph `json:"claims,omitempty"`
	Categories []string           `json:"categories,omitempty"`
	Impacts    []Impact           `json:"impacts"`
}

// ParseAnalysis decodes and validates a deep-analysis response. Severity and
// confidence must sit in [0, 1]; a duplicated (trend_id, signal_type) pair
// rejects the whole response since the ledger can hold only one row per pair
// per event.
func ParseAnalysis(content string) (*Analysis, error) {
	var analysis Analysis
	if err := strictUnmarshal(content, &analysis); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(analysis.Impacts))
	for _, impact := range analysis.Impacts {
		if impact.TrendID == "" || impact.SignalType == "" {
			return nil, fmt.Errorf("%w: impact missing trend_id or signal_type", ErrSchemaViolation)
		}
		pair := impact.TrendID + "\x00" + impact.SignalType
		if seen[pair] {
			return nil, fmt.Errorf("%w: duplicate impact (%s, %s)",
				ErrSchemaViolation, impact.TrendID, impact.SignalType)
		}
		seen[pair] = true

		if impact.Severity < 0 || impact.Severity > 1 {
			return nil, fmt.Errorf("%w: severity %.2f out of [0,1]", ErrSchemaViolation, impact.Severity)
		}
		if impact.Confidence < 0 || impact.Confidence > 1 {
			return nil, fmt.Errorf("%w: confidence %.2f out of [0,1]", ErrSchemaViolation, impact.Confidence)
		}
		if impact.Direction != "" &&
			impact.Direction != string(models.DirectionEscalatory) &&
			impact.Direction != string(models.DirectionDeEscalatory) {
			return nil, fmt.Errorf("%w: direction %q", ErrSchemaViolation, impact.Direction)
		}
	}

	for _, link := range claimLinks(analysis.Claims) {
		if link.Relation != "supports" && link.Relation != "contradicts" {
			return nil, fmt.Errorf("%w: claim relation %q", ErrSchemaViolation, link.Relation)
		}
	}
	return &analysis, nil
}

func claimLinks(g *models.ClaimGraph) []models.ClaimLink {
	if g == nil {
		return nil
	}
	return g.Links
}

// strictUnmarshal extracts the JSON body (tolerating stray code fences) and
// decodes it rejecting unknown fields.
func strictUnmarshal(content string, v any) error {
	body := extractJSON(content)
	if body == "" {
		return fmt.Errorf("%w: no JSON object found", ErrSchemaViolation)
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	return nil
}

// extractJSON returns the first top-level JSON object in the content,
// stripping markdown fences some models still emit.
func extractJSON(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start < 0 || end < start {
		return ""
	}
	return content[start : end+1]
}

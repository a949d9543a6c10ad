package analyze

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// ParseStrict parses raw model output under the full output schema. It accepts
// only a bare JSON object with exact enum values and populated strings.
func ParseStrict(raw string) (*AnalysisResult, error) {
	var result AnalysisResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	if err := result.Validate(); err != nil {
		return nil, fmt.Errorf("validate result: %w", err)
	}
	return &result, nil
}

// looseResult mirrors AnalysisResult with every field optional and loosely
// typed, so almost-right model output can still be decoded.
type looseResult struct {
	Risk struct {
		Label string `json:"label"`
		Score any    `json:"score"`
	} `json:"risk"`
	Stabilization  string `json:"stabilization"`
	Interpretation string `json:"interpretation"`
	NextMove       string `json:"nextMove"`
	FollowUpTexts  *struct {
		Soft    string `json:"soft"`
		Neutral string `json:"neutral"`
		Firm    string `json:"firm"`
	} `json:"followUpTexts"`
}

// ParseLenient salvages near-valid model output: markdown fences are stripped,
// the risk label is coerced to the nearest canonical value (MEDIUM on
// ambiguity), the score is clamped into [0,1] (0.5 when non-numeric), and any
// missing required string is filled from the static fallback. Returns false
// only when no JSON object can be extracted at all.
func ParseLenient(raw string) (*AnalysisResult, bool) {
	extracted := extractJSON(raw)
	if extracted == "" {
		return nil, false
	}

	var loose looseResult
	if err := json.Unmarshal([]byte(extracted), &loose); err != nil {
		return nil, false
	}

	fallback := FallbackResult()
	result := &AnalysisResult{
		Risk: Risk{
			Label: normalizeRiskLabel(loose.Risk.Label),
			Score: clampScore(loose.Risk.Score),
		},
		Stabilization:  firstNonBlank(loose.Stabilization, fallback.Stabilization),
		Interpretation: firstNonBlank(loose.Interpretation, fallback.Interpretation),
		NextMove:       firstNonBlank(loose.NextMove, fallback.NextMove),
	}
	if loose.FollowUpTexts != nil &&
		strings.TrimSpace(loose.FollowUpTexts.Soft) != "" &&
		strings.TrimSpace(loose.FollowUpTexts.Neutral) != "" &&
		strings.TrimSpace(loose.FollowUpTexts.Firm) != "" {
		result.FollowUpTexts = &FollowUpTexts{
			Soft:    loose.FollowUpTexts.Soft,
			Neutral: loose.FollowUpTexts.Neutral,
			Firm:    loose.FollowUpTexts.Firm,
		}
	}
	return result, true
}

// normalizeRiskLabel coerces a free-form label to the nearest canonical value.
func normalizeRiskLabel(label string) RiskLabel {
	normalized := strings.ToUpper(strings.Join(strings.Fields(label), " "))
	normalized = strings.TrimSuffix(normalized, " RISK")
	switch normalized {
	case "LOW":
		return RiskLow
	case "HIGH":
		return RiskHigh
	default:
		return RiskMedium
	}
}

// clampScore coerces a loosely typed score into [0,1], defaulting to 0.5.
func clampScore(v any) float64 {
	var score float64
	switch n := v.(type) {
	case float64:
		score = n
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0.5
		}
		score = parsed
	default:
		return 0.5
	}
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func firstNonBlank(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

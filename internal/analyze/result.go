package analyze

import "fmt"

// RiskLabel is the canonical three-level risk classification.
type RiskLabel string

// Canonical risk labels. The model must emit these exact strings.
const (
	RiskLow    RiskLabel = "LOW RISK"
	RiskMedium RiskLabel = "MEDIUM RISK"
	RiskHigh   RiskLabel = "HIGH RISK"
)

// Risk pairs the label with a numeric score in [0,1].
type Risk struct {
	Label RiskLabel `json:"label"`
	Score float64   `json:"score"`
}

// FollowUpTexts holds one suggested follow-up message per tone.
type FollowUpTexts struct {
	Soft    string `json:"soft"`
	Neutral string `json:"neutral"`
	Firm    string `json:"firm"`
}

// AnalysisResult is the structured verdict returned to the client. Every
// required field is always populated, either from validated model output or
// from the static fallback.
type AnalysisResult struct {
	Risk           Risk           `json:"risk"`
	Stabilization  string         `json:"stabilization"`
	Interpretation string         `json:"interpretation"`
	NextMove       string         `json:"nextMove"`
	FollowUpTexts  *FollowUpTexts `json:"followUpTexts,omitempty"`
}

// Validate checks the strict output schema: exact label values, score range,
// and non-empty required strings.
func (r *AnalysisResult) Validate() error {
	switch r.Risk.Label {
	case RiskLow, RiskMedium, RiskHigh:
	default:
		return fmt.Errorf("invalid risk label %q", r.Risk.Label)
	}
	if r.Risk.Score < 0 || r.Risk.Score > 1 {
		return fmt.Errorf("risk score %v out of range [0,1]", r.Risk.Score)
	}
	if r.Stabilization == "" {
		return fmt.Errorf("stabilization is empty")
	}
	if r.Interpretation == "" {
		return fmt.Errorf("interpretation is empty")
	}
	if r.NextMove == "" {
		return fmt.Errorf("nextMove is empty")
	}
	return nil
}

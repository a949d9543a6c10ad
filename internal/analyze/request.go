// Package analyze implements the situation-analysis pipeline: request
// validation, scenario fingerprinting, prompt construction, and reconciliation
// of model output into a complete result.
package analyze

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// MaxFieldLen bounds every free-text field of an analysis request.
const MaxFieldLen = 2000

// Tone is the requested voice for follow-up suggestions.
type Tone string

// Valid tones.
const (
	ToneSoft    Tone = "soft"
	ToneNeutral Tone = "neutral"
	ToneFirm    Tone = "firm"
)

// AnalysisRequest is one user-submitted situation. It lives for the duration
// of a single HTTP request.
type AnalysisRequest struct {
	Happened     string `json:"happened"`
	YouDid       string `json:"youDid"`
	TheyDid      string `json:"theyDid"`
	Relationship string `json:"relationship,omitempty"`
	Context      string `json:"context,omitempty"`
	Tone         Tone   `json:"tone"`
}

// ValidationError names the first field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ParseRequest decodes and validates a raw request body.
func ParseRequest(body []byte) (*AnalysisRequest, error) {
	var req AnalysisRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, &ValidationError{Field: "body", Message: "invalid JSON body"}
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// Validate checks presence, length bounds, and the tone enum. It reports the
// first failing field and has no side effects.
func (r *AnalysisRequest) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"happened", r.Happened},
		{"youDid", r.YouDid},
		{"theyDid", r.TheyDid},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return &ValidationError{Field: f.name, Message: f.name + " is required"}
		}
		if len(f.value) > MaxFieldLen {
			return &ValidationError{
				Field:   f.name,
				Message: fmt.Sprintf("%s must be at most %d characters", f.name, MaxFieldLen),
			}
		}
	}

	optional := []struct {
		name  string
		value string
	}{
		{"relationship", r.Relationship},
		{"context", r.Context},
	}
	for _, f := range optional {
		if len(f.value) > MaxFieldLen {
			return &ValidationError{
				Field:   f.name,
				Message: fmt.Sprintf("%s must be at most %d characters", f.name, MaxFieldLen),
			}
		}
	}

	switch r.Tone {
	case ToneSoft, ToneNeutral, ToneFirm:
	default:
		return &ValidationError{Field: "tone", Message: "tone must be one of soft, neutral, firm"}
	}

	return nil
}

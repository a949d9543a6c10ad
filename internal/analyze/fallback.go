package analyze

// FallbackResult returns the hand-authored result served when the model is
// unreachable or its output cannot be reconciled. Returned fresh each call so
// callers can't mutate shared state.
func FallbackResult() *AnalysisResult {
	return &AnalysisResult{
		Risk: Risk{Label: RiskMedium, Score: 0.5},
		Stabilization: "I know this feels huge. You didn't ruin everything. " +
			"It's rarely as bad as it feels in the moment.",
		Interpretation: "Uncertainty amplifies fear. One grounded read: the situation is " +
			"probably okay, and the other person may not have interpreted it the way you fear.",
		NextMove: "Do nothing for 24 hours. If they don't bring it up, you're probably fine. " +
			"No double texting.",
	}
}

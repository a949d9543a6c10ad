package analyze

import (
	"fmt"
	"strings"
)

// systemPrompt instructs the model to act as a brief, non-judgmental assessor
// and emit exactly one JSON object in the canonical result shape. It is fixed
// and never interpolates user input.
const systemPrompt = `You are a supportive, non-judgmental social coach. You help people assess whether they "messed up" in a social interaction or are overthinking.

Your task: Analyze the situation and return a JSON object with this EXACT structure. No extra keys, no markdown, no explanation outside the JSON.

{
  "risk": { "label": "LOW RISK" | "MEDIUM RISK" | "HIGH RISK", "score": <number 0-1> },
  "stabilization": "1-2 calming sentences that lower the reader's anxiety",
  "interpretation": "short paragraph with the most grounded read on what happened",
  "nextMove": "one concrete recommended next step",
  "followUpTexts": {
    "soft": "a gentle follow-up message they could send",
    "neutral": "a neutral follow-up message they could send",
    "firm": "a direct follow-up message they could send"
  }
}

Rules:
- risk.label must be exactly "LOW RISK", "MEDIUM RISK", or "HIGH RISK"
- risk.score must be a number between 0 and 1
- stabilization is at most 40 words; interpretation at most 80 words; nextMove at most 40 words
- Reference at least two concrete details from the situation so the answer feels personal
- Be kind. Reduce anxiety. Don't catastrophize.`

// strictRetryInstruction is appended to the user prompt on the single retry
// after the first response failed both parse attempts.
const strictRetryInstruction = `

IMPORTANT: Your previous answer was not valid JSON. Respond with ONLY one JSON object using exactly the keys risk (object with label and score), stabilization, interpretation, nextMove, followUpTexts. No markdown fences, no prose, no comments.`

// BuildPrompt renders the system and user prompts from a validated request.
// It is deterministic: identical requests yield byte-identical prompts.
func BuildPrompt(r *AnalysisRequest) (system, user string) {
	relationship := strings.TrimSpace(r.Relationship)
	if relationship == "" {
		relationship = "not specified"
	}
	context := strings.TrimSpace(r.Context)
	if context == "" {
		context = "not specified"
	}

	user = fmt.Sprintf(`Relationship: %s
Context: %s
Tone preference for follow-ups: %s

What happened:
%s

What I said/did:
%s

What they said/did:
%s

Return ONLY the JSON object. No other text.`,
		relationship,
		context,
		r.Tone,
		strings.TrimSpace(r.Happened),
		strings.TrimSpace(r.YouDid),
		strings.TrimSpace(r.TheyDid),
	)

	return systemPrompt, user
}

// BuildStrictRetryPrompt renders the amended user prompt for the one retry
// pass, restating the required keys and forbidding prose and markdown.
func BuildStrictRetryPrompt(r *AnalysisRequest) (system, user string) {
	system, user = BuildPrompt(r)
	return system, user + strictRetryInstruction
}

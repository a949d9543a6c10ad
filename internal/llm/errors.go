package llm

import "fmt"

// ModelError is a typed failure of the completion call. Status carries the
// HTTP status the orchestrator should reflect (504 timeout, 502 malformed
// success payload, or the provider's own status). Unavailable marks failures
// that should surface as a stable "temporarily unavailable" message instead
// of leaking provider internals.
type ModelError struct {
	Status      int
	Code        string
	Type        string
	Message     string
	Unavailable bool
}

func (e *ModelError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("model error (status %d, code %s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("model error (status %d): %s", e.Status, e.Message)
}

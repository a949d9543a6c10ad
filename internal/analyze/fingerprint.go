package analyze

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint returns a stable hash of the normalized request fields, used as
// the per-user scenario cooldown key. Fields are trimmed and joined with NUL,
// which cannot appear in user text, so identical inputs always collide and any
// field change does not.
func Fingerprint(r *AnalysisRequest) string {
	parts := []string{
		strings.TrimSpace(r.Happened),
		strings.TrimSpace(r.YouDid),
		strings.TrimSpace(r.TheyDid),
		strings.TrimSpace(r.Relationship),
		strings.TrimSpace(r.Context),
		strings.TrimSpace(string(r.Tone)),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:])
}

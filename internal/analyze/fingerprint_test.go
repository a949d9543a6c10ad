package analyze

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprint_Stable(t *testing.T) {
	a := validRequest()
	b := validRequest()
	assert.Equal(t, Fingerprint(a), Fingerprint(b))

	// Whitespace around fields does not change the fingerprint.
	b.Happened = "  " + b.Happened + "\n"
	assert.Equal(t, Fingerprint(a), Fingerprint(b))

	assert.Len(t, Fingerprint(a), 64) // sha256 hex
}

func TestFingerprint_ChangesPerField(t *testing.T) {
	base := Fingerprint(validRequest())

	mutations := []func(*AnalysisRequest){
		func(r *AnalysisRequest) { r.Happened = "something else" },
		func(r *AnalysisRequest) { r.YouDid = "something else" },
		func(r *AnalysisRequest) { r.TheyDid = "something else" },
		func(r *AnalysisRequest) { r.Relationship = "coworker" },
		func(r *AnalysisRequest) { r.Context = "slack" },
		func(r *AnalysisRequest) { r.Tone = ToneFirm },
	}

	for i, mutate := range mutations {
		req := validRequest()
		mutate(req)
		assert.NotEqual(t, base, Fingerprint(req), "mutation %d should change fingerprint", i)
	}
}

func TestFingerprint_FieldShiftCollision(t *testing.T) {
	// Moving text between adjacent fields must not collide thanks to the NUL
	// separator.
	a := validRequest()
	a.Happened = "ab"
	a.YouDid = "c"

	b := validRequest()
	b.Happened = "a"
	b.YouDid = "bc"

	assert.NotEqual(t, Fingerprint(a), Fingerprint(b))
}

package analyze

import (
	"context"

	"github.com/rs/zerolog/log"
)

// ModelCaller is the completion client consumed by the pipeline.
type ModelCaller interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Pipeline turns a validated request into a complete result: prompt, model
// call, and the three-stage reconciliation of the model's output.
type Pipeline struct {
	model ModelCaller
}

// NewPipeline creates a Pipeline backed by the given model client.
func NewPipeline(model ModelCaller) *Pipeline {
	return &Pipeline{model: model}
}

// Analyze runs prompt → model → reconcile. The returned result is always
// fully populated. degraded reports that all reconciliation attempts failed
// and the static fallback is being served; the caller should surface that as
// an unavailability status rather than a normal response.
func (p *Pipeline) Analyze(ctx context.Context, req *AnalysisRequest) (result *AnalysisResult, degraded bool) {
	system, user := BuildPrompt(req)

	raw, err := p.model.Complete(ctx, system, user)
	if err == nil {
		if result := reconcileOnce(raw); result != nil {
			return result, false
		}
		log.Warn().Msg("model output failed both parse attempts, retrying with strict prompt")
	} else {
		log.Warn().Err(err).Msg("model call failed, retrying with strict prompt")
	}

	// One retry with the stricter instruction, then give up.
	system, user = BuildStrictRetryPrompt(req)
	raw, err = p.model.Complete(ctx, system, user)
	if err != nil {
		log.Error().Err(err).Msg("model retry failed, serving fallback")
		return FallbackResult(), true
	}
	if result := reconcileOnce(raw); result != nil {
		return result, false
	}

	log.Error().Msg("model retry output failed both parse attempts, serving fallback")
	return FallbackResult(), true
}

// reconcileOnce runs the strict then lenient parse over one raw response.
func reconcileOnce(raw string) *AnalysisResult {
	if result, err := ParseStrict(raw); err == nil {
		return result
	}
	if result, ok := ParseLenient(raw); ok {
		return result
	}
	return nil
}

package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/didifkup/vibecheck/internal/analyze"
	"github.com/didifkup/vibecheck/internal/auth"
	"github.com/didifkup/vibecheck/internal/billing"
	"github.com/didifkup/vibecheck/internal/quota"
)

// maxBodySize bounds request bodies: five 2000-char fields fit comfortably.
const maxBodySize = 64 << 10

// paidStatuses are the subscription states that bypass quota and cooldown.
var paidStatuses = map[string]bool{
	"active":   true,
	"trialing": true,
}

// requireUser resolves the bearer token to a user. On failure it writes the
// response itself and returns nil: a missing or rejected token is a 401, an
// unreachable identity provider is a 500 (fail loud, never silently
// anonymous).
func (s *Service) requireUser(w http.ResponseWriter, r *http.Request) *auth.User {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "Missing or invalid Authorization header")
		return nil
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "Missing Bearer token")
		return nil
	}

	user, err := s.verifier.Verify(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "Unauthorized", "Invalid or expired token")
			return nil
		}
		log.Error().Err(err).
			Str("requestId", RequestIDFromContext(r.Context())).
			Msg("identity verification failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{
			Error:     "SERVER_ERROR",
			RequestID: RequestIDFromContext(r.Context()),
		})
		return nil
	}
	return user
}

// isPaidTier reads the user's subscription status. A store failure is logged
// and treated as free tier, so the quota checks still apply.
func (s *Service) isPaidTier(r *http.Request, userID string) bool {
	status, err := s.profiles.SubscriptionStatus(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Str("userId", userID).Msg("subscription status read failed, treating as free")
		return false
	}
	return paidStatuses[status]
}

// handleAnalyze is the analysis request orchestrator:
// validate → identify → quota → prompt/model/reconcile → persist → respond.
func (s *Service) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestLog := log.With().Str("requestId", RequestIDFromContext(ctx)).Logger()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", "Could not read request body")
		s.metrics.recordAnalyze(ctx, http.StatusBadRequest)
		return
	}

	// Validation runs before any network or paid call so malformed input
	// never consumes quota or model budget.
	req, err := analyze.ParseRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err.Error())
		s.metrics.recordAnalyze(ctx, http.StatusBadRequest)
		return
	}

	user := s.requireUser(w, r)
	if user == nil {
		s.metrics.recordAnalyze(ctx, http.StatusUnauthorized)
		return
	}

	isPaid := s.isPaidTier(r, user.ID)
	fingerprint := analyze.Fingerprint(req)

	if !isPaid {
		if err := s.tracker.ConsumeDaily(ctx, user.ID); err != nil {
			writeError(w, http.StatusPaymentRequired, "LIMIT", "Free limit reached")
			s.metrics.recordAnalyze(ctx, http.StatusPaymentRequired)
			return
		}
		if err := s.tracker.CheckCooldown(ctx, user.ID, fingerprint); err != nil {
			var cooldown *quota.CooldownError
			if errors.As(err, &cooldown) {
				writeJSON(w, http.StatusTooManyRequests, errorBody{
					Error:           "COOLDOWN",
					Message:         "You already checked this recently.",
					RetryAfterHours: cooldown.RetryAfterHours,
				})
				s.metrics.recordAnalyze(ctx, http.StatusTooManyRequests)
				return
			}
		}
	}

	result, degraded := s.pipeline.Analyze(ctx, req)

	// The cooldown record reflects that the model was actually invoked for
	// this fingerprint, so it is refreshed only now.
	if !isPaid {
		s.tracker.RecordScenarioSeen(ctx, user.ID, fingerprint)
	}
	s.sink.Record(user.ID, req, fingerprint, result)

	if degraded {
		s.metrics.recordFallback(ctx)
		requestLog.Warn().Str("userId", user.ID).Msg("serving AI unavailable")
		writeJSON(w, http.StatusServiceUnavailable, errorBody{
			Error:     "AI_UNAVAILABLE",
			Message:   "Analysis is temporarily unavailable. Please try again in a moment.",
			RequestID: RequestIDFromContext(ctx),
		})
		s.metrics.recordAnalyze(ctx, http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, result)
	s.metrics.recordAnalyze(ctx, http.StatusOK)
}

// usageResponse is the body of GET /api/usage.
type usageResponse struct {
	AnalysesUsed int  `json:"analyses_used"`
	Limit        int  `json:"limit"`
	IsPro        bool `json:"is_pro"`
}

// handleUsage reports the caller's remaining daily quota with the same UTC
// read-time reset view the limit check uses.
func (s *Service) handleUsage(w http.ResponseWriter, r *http.Request) {
	user := s.requireUser(w, r)
	if user == nil {
		return
	}

	resp := usageResponse{Limit: s.cfg.FreeDailyLimit, IsPro: s.isPaidTier(r, user.ID)}

	row, err := s.usage.Get(r.Context(), user.ID)
	if err != nil {
		log.Error().Err(err).Str("userId", user.ID).Msg("usage read failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{
			Error:     "SERVER_ERROR",
			RequestID: RequestIDFromContext(r.Context()),
		})
		return
	}
	if row != nil {
		startOfDay := time.Now().UTC().Truncate(24 * time.Hour)
		if !row.UpdatedAt.Before(startOfDay) {
			resp.AnalysesUsed = row.AnalysesUsed
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// historyItem is one entry of GET /api/history.
type historyItem struct {
	ID        int64           `json:"id"`
	Happened  string          `json:"happened"`
	YouDid    string          `json:"youDid"`
	TheyDid   string          `json:"theyDid"`
	Tone      string          `json:"tone"`
	RiskLabel string          `json:"risk_label"`
	Result    json.RawMessage `json:"result"`
	CreatedAt time.Time       `json:"created_at"`
}

// handleHistory returns the caller's most recent analyzed scenarios.
func (s *Service) handleHistory(w http.ResponseWriter, r *http.Request) {
	user := s.requireUser(w, r)
	if user == nil {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	scenarios, err := s.scenarios.ListRecent(r.Context(), user.ID, limit)
	if err != nil {
		log.Error().Err(err).Str("userId", user.ID).Msg("history read failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{
			Error:     "SERVER_ERROR",
			RequestID: RequestIDFromContext(r.Context()),
		})
		return
	}

	items := make([]historyItem, 0, len(scenarios))
	for _, sc := range scenarios {
		items = append(items, historyItem{
			ID:        sc.ID,
			Happened:  sc.Happened,
			YouDid:    sc.YouDid,
			TheyDid:   sc.TheyDid,
			Tone:      sc.Tone,
			RiskLabel: sc.RiskLabel,
			Result:    json.RawMessage(sc.Result),
			CreatedAt: sc.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"scenarios": items})
}

// handleHealthz is the liveness probe.
func (s *Service) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startTime).Round(time.Second).String(),
	})
}

// handleBillingWebhook verifies and applies a payment provider event. It is
// authenticated by signature, not bearer token.
func (s *Service) handleBillingWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Could not read request body")
		return
	}

	err = s.billing.Process(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, billing.ErrBadSignature) {
			writeError(w, http.StatusBadRequest, "BAD_SIGNATURE", "Webhook signature verification failed")
			return
		}
		log.Error().Err(err).Msg("billing webhook processing failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{
			Error:     "SERVER_ERROR",
			RequestID: RequestIDFromContext(r.Context()),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

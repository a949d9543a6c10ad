package httpapi

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm/logger"

	"github.com/didifkup/vibecheck/internal/analyze"
	"github.com/didifkup/vibecheck/internal/auth"
	"github.com/didifkup/vibecheck/internal/billing"
	"github.com/didifkup/vibecheck/internal/config"
	"github.com/didifkup/vibecheck/internal/persist"
	"github.com/didifkup/vibecheck/internal/quota"
	"github.com/didifkup/vibecheck/internal/ratelimit"
	"github.com/didifkup/vibecheck/internal/store"
)

const (
	testToken         = "valid-token"
	testUserID        = "user-1"
	testWebhookSecret = "whsec_test"
)

// fakeVerifier accepts exactly one token.
type fakeVerifier struct {
	user *auth.User
	err  error
}

func (v *fakeVerifier) Verify(_ context.Context, token string) (*auth.User, error) {
	if v.err != nil {
		return nil, v.err
	}
	if token != testToken {
		return nil, auth.ErrInvalidToken
	}
	return v.user, nil
}

// fakePipeline returns a fixed result without touching any model.
type fakePipeline struct {
	result   *analyze.AnalysisResult
	degraded bool
	calls    int
}

func (p *fakePipeline) Analyze(_ context.Context, _ *analyze.AnalysisRequest) (*analyze.AnalysisResult, bool) {
	p.calls++
	if p.result != nil {
		return p.result, p.degraded
	}
	return analyze.FallbackResult(), p.degraded
}

type testEnv struct {
	service  *Service
	store    *store.Store
	pipeline *fakePipeline
	verifier *fakeVerifier
	sink     *persist.Sink
	cfg      *config.Config
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: true}
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithLimiter(t, nil)
}

func newTestEnvWithLimiter(t *testing.T, limiter ratelimit.Limiter) *testEnv {
	t.Helper()
	path := filepath.Join(t.TempDir(), "httpapi.db")
	st, err := store.NewStoreWithDialector(sqlite.Open(path), store.Config{LogLevel: logger.Silent})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := config.Default()
	usage := store.NewUsageStore(st)
	cooldowns := store.NewCooldownStore(st)
	scenarios := store.NewScenarioStore(st)
	streaks := store.NewStreakStore(st)
	profiles := store.NewProfileStore(st)

	pipeline := &fakePipeline{}
	verifier := &fakeVerifier{user: &auth.User{ID: testUserID, Email: "a@example.com"}}
	sink := persist.NewSink(scenarios, streaks)

	service := NewService(Deps{
		Config:    cfg,
		Verifier:  verifier,
		Pipeline:  pipeline,
		Tracker:   quota.NewTracker(usage, cooldowns, cfg.FreeDailyLimit, cfg.CooldownWindow()),
		Sink:      sink,
		Profiles:  profiles,
		Usage:     usage,
		Scenarios: scenarios,
		Billing:   billing.NewProcessor(profiles, testWebhookSecret),
		Limiter:   limiter,
	})

	return &testEnv{service: service, store: st, pipeline: pipeline, verifier: verifier, sink: sink, cfg: cfg}
}

func analyzeBody(happened string) string {
	body, _ := json.Marshal(map[string]string{
		"happened": happened,
		"youDid":   "double texted",
		"theyDid":  "left me on read",
		"tone":     "neutral",
	})
	return string(body)
}

func (e *testEnv) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.service.Router().ServeHTTP(rec, req)
	return rec
}

func authHeaders() map[string]string {
	return map[string]string{"Authorization": "Bearer " + testToken}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestAnalyze_Success(t *testing.T) {
	env := newTestEnv(t)
	env.pipeline.result = &analyze.AnalysisResult{
		Risk:           analyze.Risk{Label: analyze.RiskLow, Score: 0.2},
		Stabilization:  "You're fine.",
		Interpretation: "They're busy.",
		NextMove:       "Wait it out.",
	}

	rec := env.do(http.MethodPost, "/api/analyze", analyzeBody("sent a risky text"), authHeaders())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	risk := body["risk"].(map[string]any)
	assert.Equal(t, "LOW RISK", risk["label"])
	assert.Equal(t, 0.2, risk["score"])
	assert.Equal(t, "Wait it out.", body["nextMove"])
	assert.NotContains(t, body, "followUpTexts", "absent texts are omitted, not null")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestAnalyze_ValidationBeforeAuth(t *testing.T) {
	env := newTestEnv(t)

	// No Authorization header at all; the malformed body must still win.
	rec := env.do(http.MethodPost, "/api/analyze", `{"happened":""}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "Validation failed", body["error"])
	assert.Contains(t, body["message"], "happened")
	assert.Equal(t, 0, env.pipeline.calls)
}

func TestAnalyze_Unauthorized(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name    string
		headers map[string]string
	}{
		{"no header", nil},
		{"wrong scheme", map[string]string{"Authorization": "Basic abc"}},
		{"empty token", map[string]string{"Authorization": "Bearer "}},
		{"rejected token", map[string]string{"Authorization": "Bearer nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodPost, "/api/analyze", analyzeBody("x"), tt.headers)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
	assert.Equal(t, 0, env.pipeline.calls)
}

func TestAnalyze_IdentityProviderDownFailsLoud(t *testing.T) {
	env := newTestEnv(t)
	env.verifier.err = fmt.Errorf("verify token: connection refused")

	rec := env.do(http.MethodPost, "/api/analyze", analyzeBody("x"), authHeaders())
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "SERVER_ERROR", decodeBody(t, rec)["error"])
	assert.Equal(t, 0, env.pipeline.calls)
}

func TestAnalyze_FreeLimitEnforced(t *testing.T) {
	env := newTestEnv(t)

	// Distinct scenarios so the cooldown never interferes with the limit.
	for i := 0; i < env.cfg.FreeDailyLimit; i++ {
		rec := env.do(http.MethodPost, "/api/analyze", analyzeBody(fmt.Sprintf("scenario %d", i)), authHeaders())
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := env.do(http.MethodPost, "/api/analyze", analyzeBody("one too many"), authHeaders())
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, "LIMIT", decodeBody(t, rec)["error"])
	assert.Equal(t, env.cfg.FreeDailyLimit, env.pipeline.calls)
	env.sink.Wait()
}

func TestAnalyze_CooldownOnRepeatScenario(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/analyze", analyzeBody("same scenario"), authHeaders())
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodPost, "/api/analyze", analyzeBody("same scenario"), authHeaders())
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "COOLDOWN", body["error"])
	retryAfter, ok := body["retry_after_hours"].(float64)
	require.True(t, ok, "retry_after_hours must be present: %s", rec.Body.String())
	assert.InDelta(t, 6.0, retryAfter, 0.11)
	assert.Equal(t, 1, env.pipeline.calls, "the repeat never reaches the model")
	env.sink.Wait()
}

func TestAnalyze_PaidTierBypassesQuota(t *testing.T) {
	env := newTestEnv(t)
	profiles := store.NewProfileStore(env.store)
	require.NoError(t, profiles.Upsert(context.Background(), &store.Profile{
		UserID:             testUserID,
		SubscriptionStatus: nullStr("active"),
	}))

	// Same scenario well past the free limit: no 402, no 429.
	for i := 0; i < env.cfg.FreeDailyLimit+2; i++ {
		rec := env.do(http.MethodPost, "/api/analyze", analyzeBody("same scenario"), authHeaders())
		require.Equal(t, http.StatusOK, rec.Code, "request %d: %s", i+1, rec.Body.String())
	}
	env.sink.Wait()

	// Paid requests leave no cooldown record behind.
	fingerprint := analyze.Fingerprint(&analyze.AnalysisRequest{
		Happened: "same scenario", YouDid: "double texted", TheyDid: "left me on read", Tone: analyze.ToneNeutral,
	})
	row, err := store.NewCooldownStore(env.store).Get(context.Background(), testUserID, fingerprint)
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestAnalyze_DegradedReturns503(t *testing.T) {
	env := newTestEnv(t)
	env.pipeline.degraded = true

	rec := env.do(http.MethodPost, "/api/analyze", analyzeBody("x"), authHeaders())
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "AI_UNAVAILABLE", body["error"])
	assert.NotEmpty(t, body["request_id"])
	env.sink.Wait()
}

func TestAnalyze_PersistsScenario(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/analyze", analyzeBody("persist me"), authHeaders())
	require.Equal(t, http.StatusOK, rec.Code)
	env.sink.Wait()

	scenarios, err := store.NewScenarioStore(env.store).ListRecent(context.Background(), testUserID, 10)
	require.NoError(t, err)
	require.Len(t, scenarios, 1)
	assert.Equal(t, "persist me", scenarios[0].Happened)

	streak, err := store.NewStreakStore(env.store).Get(context.Background(), testUserID)
	require.NoError(t, err)
	require.NotNil(t, streak)
	assert.Equal(t, 1, streak.CurrentStreak)
}

func TestAnalyze_OversizedFieldRejected(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/analyze", analyzeBody(strings.Repeat("a", analyze.MaxFieldLen+1)), authHeaders())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, env.pipeline.calls)
}

func TestPreflight_NeverTouchesAuth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodOptions, "/api/analyze", "", map[string]string{
		"Origin": "http://localhost:3000",
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestCORS_ConfiguredOrigin(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.AllowedOrigins = []string{"https://app.example.com"}

	rec := env.do(http.MethodOptions, "/api/analyze", "", map[string]string{
		"Origin": "https://app.example.com",
	})
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = env.do(http.MethodOptions, "/api/analyze", "", map[string]string{
		"Origin": "https://evil.example.com",
	})
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	env := newTestEnvWithLimiter(t, ratelimit.NewMemoryLimiter(2, time.Minute))

	headers := authHeaders()
	headers["X-Forwarded-For"] = "9.9.9.9"

	env.do(http.MethodGet, "/api/usage", "", headers)
	env.do(http.MethodGet, "/api/usage", "", headers)
	rec := env.do(http.MethodGet, "/api/usage", "", headers)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE_LIMITED", decodeBody(t, rec)["error"])

	// Healthz sits outside the limited group.
	rec = env.do(http.MethodGet, "/api/healthz", "", headers)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUsage(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/usage", "", authHeaders())
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(0), body["analyses_used"])
	assert.Equal(t, float64(env.cfg.FreeDailyLimit), body["limit"])
	assert.Equal(t, false, body["is_pro"])

	// One analysis shows up in the counter.
	env.do(http.MethodPost, "/api/analyze", analyzeBody("x"), authHeaders())
	env.sink.Wait()

	rec = env.do(http.MethodGet, "/api/usage", "", authHeaders())
	body = decodeBody(t, rec)
	assert.Equal(t, float64(1), body["analyses_used"])
}

func TestUsage_StaleCounterReadsZero(t *testing.T) {
	env := newTestEnv(t)
	usage := store.NewUsageStore(env.store)
	require.NoError(t, usage.Upsert(context.Background(), testUserID, 2, time.Now().UTC().Add(-48*time.Hour)))

	rec := env.do(http.MethodGet, "/api/usage", "", authHeaders())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decodeBody(t, rec)["analyses_used"])
}

func TestHistory(t *testing.T) {
	env := newTestEnv(t)

	env.do(http.MethodPost, "/api/analyze", analyzeBody("first"), authHeaders())
	env.do(http.MethodPost, "/api/analyze", analyzeBody("second"), authHeaders())
	env.sink.Wait()

	rec := env.do(http.MethodGet, "/api/history?limit=10", "", authHeaders())
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Scenarios []struct {
			Happened  string          `json:"happened"`
			RiskLabel string          `json:"risk_label"`
			Result    json.RawMessage `json:"result"`
		} `json:"scenarios"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Scenarios, 2)
	assert.NotEmpty(t, body.Scenarios[0].RiskLabel)
	assert.NotEmpty(t, body.Scenarios[0].Result)
}

func TestHistory_Unauthorized(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/api/history", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/api/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestBillingWebhook(t *testing.T) {
	env := newTestEnv(t)
	profiles := store.NewProfileStore(env.store)
	require.NoError(t, profiles.Upsert(context.Background(), &store.Profile{
		UserID: testUserID,
		Email:  nullStr("a@example.com"),
	}))

	payload := `{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"customer":"cus_1","customer_details":{"email":"a@example.com"}}}}`
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	signature := fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))

	rec := env.do(http.MethodPost, "/api/billing/webhook", payload, map[string]string{
		"Stripe-Signature": signature,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decodeBody(t, rec)["received"])

	status, err := profiles.SubscriptionStatus(context.Background(), testUserID)
	require.NoError(t, err)
	assert.Equal(t, "active", status)
}

func TestBillingWebhook_BadSignature(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodPost, "/api/billing/webhook", `{"type":"x"}`, map[string]string{
		"Stripe-Signature": "t=1,v1=bogus",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "BAD_SIGNATURE", decodeBody(t, rec)["error"])
}

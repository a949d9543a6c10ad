// Package persist handles the best-effort writes that follow a completed
// analysis: the scenario history row and the engagement streak. Nothing here
// can change the HTTP response; every failure is logged and swallowed.
package persist

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/didifkup/vibecheck/internal/analyze"
	"github.com/didifkup/vibecheck/internal/store"
)

// writeTimeout bounds the detached writes so an unresponsive store can't pin
// goroutines forever.
const writeTimeout = 10 * time.Second

// Sink performs the post-response writes.
type Sink struct {
	scenarios *store.ScenarioStore
	streaks   *store.StreakStore
	now       func() time.Time
	wg        sync.WaitGroup
}

// NewSink creates a Sink.
func NewSink(scenarios *store.ScenarioStore, streaks *store.StreakStore) *Sink {
	return &Sink{
		scenarios: scenarios,
		streaks:   streaks,
		now:       time.Now,
	}
}

// Record queues the scenario insert and streak update on a detached
// goroutine. It returns immediately; the caller's request context is not
// used, so cancellation of the HTTP request does not abort the writes.
func (s *Sink) Record(userID string, req *analyze.AnalysisRequest, fingerprint string, result *analyze.AnalysisResult) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		s.record(ctx, userID, req, fingerprint, result)
	}()
}

// Wait blocks until all queued writes have finished. Used by graceful
// shutdown and tests.
func (s *Sink) Wait() {
	s.wg.Wait()
}

// record runs the two writes independently: one failing write never
// suppresses the other.
func (s *Sink) record(ctx context.Context, userID string, req *analyze.AnalysisRequest, fingerprint string, result *analyze.AnalysisResult) {
	var g errgroup.Group

	g.Go(func() error {
		if err := s.insertScenario(ctx, userID, req, fingerprint, result); err != nil {
			log.Error().Err(err).Str("userId", userID).Msg("scenario insert failed")
		}
		return nil
	})

	g.Go(func() error {
		if err := s.updateStreak(ctx, userID); err != nil {
			log.Error().Err(err).Str("userId", userID).Msg("streak update failed")
		}
		return nil
	})

	_ = g.Wait()
}

func (s *Sink) insertScenario(ctx context.Context, userID string, req *analyze.AnalysisRequest, fingerprint string, result *analyze.AnalysisResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return err
	}
	scenario := &store.Scenario{
		UserID:       userID,
		InputHash:    fingerprint,
		Happened:     req.Happened,
		YouDid:       req.YouDid,
		TheyDid:      req.TheyDid,
		Relationship: nullString(req.Relationship),
		Context:      nullString(req.Context),
		Tone:         string(req.Tone),
		RiskLabel:    string(result.Risk.Label),
		Result:       string(resultJSON),
		CreatedAt:    s.now().UTC(),
	}
	return s.scenarios.Insert(ctx, scenario)
}

func (s *Sink) updateStreak(ctx context.Context, userID string) error {
	row, err := s.streaks.Get(ctx, userID)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	today := now.Format("2006-01-02")
	yesterday := now.AddDate(0, 0, -1).Format("2006-01-02")

	current, best, total := 0, 0, 0
	last := ""
	if row != nil {
		current, best, total = row.CurrentStreak, row.BestStreak, row.TotalChecks
		last = row.LastCheckinDate
	}

	next := NextStreak(last, current, today, yesterday)
	if next > best {
		best = next
	}

	return s.streaks.Upsert(ctx, &store.Streak{
		UserID:          userID,
		LastCheckinDate: today,
		CurrentStreak:   next,
		BestStreak:      best,
		TotalChecks:     total + 1,
		UpdatedAt:       now,
	})
}

// NextStreak computes the new streak value: same calendar day keeps it,
// exactly the previous day increments it, any larger gap resets to 1.
func NextStreak(last string, current int, today, yesterday string) int {
	switch last {
	case today:
		return current
	case yesterday:
		return current + 1
	default:
		return 1
	}
}

func nullString(s string) sql.NullString {
	if strings.TrimSpace(s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

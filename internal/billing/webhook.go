// Package billing processes payment provider webhook events and keeps the
// profile's subscription status in sync. The analysis pipeline only ever
// reads the resulting status; this package is the single writer.
package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/didifkup/vibecheck/internal/store"
)

// signatureTolerance rejects replayed events older than this.
const signatureTolerance = 5 * time.Minute

// ErrBadSignature is returned for missing, malformed, stale, or mismatched
// webhook signatures.
var ErrBadSignature = errors.New("webhook signature verification failed")

// Event is the provider's webhook envelope.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// subscriptionObject covers the fields read from subscription and checkout
// session payloads.
type subscriptionObject struct {
	ID               string `json:"id"`
	Customer         string `json:"customer"`
	Subscription     string `json:"subscription"`
	Status           string `json:"status"`
	CurrentPeriodEnd int64  `json:"current_period_end"`
	CustomerEmail    string `json:"customer_email"`
	CustomerDetails  struct {
		Email string `json:"email"`
	} `json:"customer_details"`
}

// Processor verifies and applies webhook events.
type Processor struct {
	profiles *store.ProfileStore
	secret   string
	now      func() time.Time
}

// NewProcessor creates a Processor with the shared webhook secret.
func NewProcessor(profiles *store.ProfileStore, secret string) *Processor {
	return &Processor{profiles: profiles, secret: secret, now: time.Now}
}

// VerifySignature checks the timestamped HMAC-SHA256 signature header
// (t=<unix>,v1=<hex>) over the raw payload.
func (p *Processor) VerifySignature(payload []byte, header string) error {
	var timestamp int64
	var signatures []string

	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return ErrBadSignature
			}
			timestamp = ts
		case "v1":
			signatures = append(signatures, value)
		}
	}

	if timestamp == 0 || len(signatures) == 0 {
		return ErrBadSignature
	}
	if p.now().Sub(time.Unix(timestamp, 0)) > signatureTolerance {
		return ErrBadSignature
	}

	mac := hmac.New(sha256.New, []byte(p.secret))
	fmt.Fprintf(mac, "%d.%s", timestamp, payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return nil
		}
	}
	return ErrBadSignature
}

// Process verifies the signature and applies the event. Unknown event types
// are acknowledged and ignored.
func (p *Processor) Process(ctx context.Context, payload []byte, signatureHeader string) error {
	if err := p.VerifySignature(payload, signatureHeader); err != nil {
		return err
	}

	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("parse webhook event: %w", err)
	}

	switch event.Type {
	case "checkout.session.completed":
		return p.applySubscription(ctx, &event, "active")
	case "customer.subscription.created", "customer.subscription.updated":
		return p.applySubscription(ctx, &event, "")
	case "customer.subscription.deleted":
		return p.applySubscription(ctx, &event, "canceled")
	default:
		log.Debug().Str("eventType", event.Type).Msg("ignoring webhook event")
		return nil
	}
}

// applySubscription updates the matching profile. statusOverride, when
// non-empty, replaces the status carried by the event object.
func (p *Processor) applySubscription(ctx context.Context, event *Event, statusOverride string) error {
	var obj subscriptionObject
	if err := json.Unmarshal(event.Data.Object, &obj); err != nil {
		return fmt.Errorf("parse event object: %w", err)
	}

	email := strings.TrimSpace(obj.CustomerDetails.Email)
	if email == "" {
		email = strings.TrimSpace(obj.CustomerEmail)
	}
	if email == "" && obj.Customer == "" {
		log.Warn().Str("eventType", event.Type).Str("eventId", event.ID).
			Msg("webhook event has no customer reference, skipping")
		return nil
	}

	status := obj.Status
	if statusOverride != "" {
		status = statusOverride
	}

	subscriptionID := obj.Subscription
	if subscriptionID == "" && strings.HasPrefix(obj.ID, "sub_") {
		subscriptionID = obj.ID
	}

	updates := &store.Profile{
		Email:              nullString(email),
		SubscriptionStatus: nullString(status),
		CustomerID:         nullString(obj.Customer),
		SubscriptionID:     nullString(subscriptionID),
	}
	if obj.CurrentPeriodEnd > 0 {
		updates.CurrentPeriodEnd = sql.NullTime{Time: time.Unix(obj.CurrentPeriodEnd, 0).UTC(), Valid: true}
	}

	if err := p.profiles.UpdateSubscription(ctx, email, obj.Customer, updates); err != nil {
		return fmt.Errorf("apply subscription update: %w", err)
	}

	log.Info().Str("eventType", event.Type).Str("customer", obj.Customer).
		Str("status", status).Msg("subscription status synced")
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

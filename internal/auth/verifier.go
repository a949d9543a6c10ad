// Package auth verifies bearer tokens against the identity provider.
package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
)

// ErrInvalidToken is returned when the identity provider rejects the token or
// resolves no subject. It maps to a 401; transport failures do not use it and
// surface as server errors instead.
var ErrInvalidToken = errors.New("invalid or expired token")

// User is the minimal identity resolved once per request.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// Verifier resolves bearer tokens via the provider's user endpoint.
type Verifier struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
}

// NewVerifier creates a Verifier for the given provider base URL and
// service-role key.
func NewVerifier(baseURL, serviceKey string) *Verifier {
	return &Verifier{
		baseURL:    baseURL,
		serviceKey: serviceKey,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// Verify exchanges an access token for the user it belongs to. A non-success
// provider response or missing subject id yields ErrInvalidToken; failure to
// reach the provider yields a wrapped transport error (fail loud, not
// silently anonymous).
func (v *Verifier) Verify(ctx context.Context, accessToken string) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, fmt.Errorf("create verify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("apikey", v.serviceKey)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reach identity provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, ErrInvalidToken
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("read identity response: %w", err)
	}

	var user User
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("parse identity response: %w", err)
	}
	if user.ID == "" {
		return nil, ErrInvalidToken
	}
	return &user, nil
}

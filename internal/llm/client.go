// Package llm provides the chat-completions client used by the analysis
// pipeline. It issues a single bounded call per invocation and maps transport
// and provider failures to typed errors.
package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/tiktoken-go/tokenizer"
)

// maxResponseSize limits the response body read to prevent memory exhaustion.
const maxResponseSize = 1 << 20 // 1MB

// Provider error codes that mean "the service can't serve anyone right now",
// as opposed to a malformed request.
var unavailableCodes = map[string]bool{
	"insufficient_quota":  true,
	"billing_not_active":  true,
	"rate_limit_exceeded": true,
}

// Config holds the client settings.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	Temperature float64
}

// Client calls an OpenAI-compatible chat completions endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
	codec      tokenizer.Codec
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
	Temperature float64 `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// NewClient creates a completion client. The tokenizer is optional: if the
// encoding can't be loaded, prompt token counts are simply not logged.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 25 * time.Second
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		log.Warn().Err(err).Msg("tokenizer unavailable, prompt token counts disabled")
		codec = nil
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		codec:      codec,
	}
}

// Complete sends one chat completion request and returns the first choice's
// text content. Failures come back as *ModelError; the request context is
// bounded by the configured timeout, so a slow upstream cannot hold the
// request open.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	payload := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: c.cfg.Temperature,
	}
	payload.ResponseFormat.Type = "json_object"

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}

	c.logPromptTokens(system, user)

	url := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return "", &ModelError{Status: http.StatusGatewayTimeout, Message: "model request timed out", Unavailable: true}
		}
		return "", &ModelError{Status: http.StatusBadGateway, Message: "model request failed", Unavailable: true}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return "", &ModelError{Status: http.StatusBadGateway, Message: "read model response", Unavailable: true}
	}

	if httpResp.StatusCode != http.StatusOK {
		return "", classifyError(httpResp.StatusCode, respBody)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", &ModelError{Status: http.StatusBadGateway, Message: "model returned unparsable response"}
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", &ModelError{Status: http.StatusBadGateway, Message: "model returned empty response"}
	}

	return parsed.Choices[0].Message.Content, nil
}

// logPromptTokens records the prompt size for cost observability.
func (c *Client) logPromptTokens(system, user string) {
	if c.codec == nil {
		return
	}
	count, err := c.codec.Count(system + user)
	if err != nil {
		return
	}
	log.Debug().Int("promptTokens", count).Str("model", c.cfg.Model).Msg("sending completion request")
}

// classifyError parses the provider error envelope into a ModelError. Rate
// limiting, quota, billing, and server-side failures are marked unavailable
// so the orchestrator can serve a stable user-facing message.
func classifyError(status int, body []byte) *ModelError {
	modelErr := &ModelError{Status: status}

	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil {
		modelErr.Code = envelope.Error.Code
		modelErr.Type = envelope.Error.Type
		modelErr.Message = envelope.Error.Message
	}
	if modelErr.Message == "" {
		msg := string(body)
		if len(msg) > 200 {
			msg = msg[:200] + "..."
		}
		modelErr.Message = msg
	}

	switch {
	case status == http.StatusTooManyRequests, status >= 500:
		modelErr.Unavailable = true
	case unavailableCodes[modelErr.Code], unavailableCodes[modelErr.Type]:
		modelErr.Unavailable = true
	}

	return modelErr
}

// Package validator extracts scientific-sounding claims from agent output and
// checks them against an external validation endpoint. The endpoint is a
// black-box oracle: its verdict is recorded, never interpreted. Transport
// failures degrade every claim to an "unknown" verdict rather than
// propagating.
package validator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"goa.design/clue/log"
	"golang.org/x/time/rate"
)

// Verdicts returned by the validation endpoint, normalized.
const (
	VerdictTrue    = "true"
	VerdictFalse   = "false"
	VerdictUnknown = "unknown"
)

const transportRetries = 2

type (
	// Validation pairs a claim with the oracle's verdict. When the server was
	// unavailable the verdict is "unknown" with zero confidence.
	Validation struct {
		Claim             Claim           `json:"claim"`
		Validity          string          `json:"validity"`
		Confidence        float64         `json:"confidence"`
		Evidence          string          `json:"evidence,omitempty"`
		ServerUnavailable bool            `json:"server_unavailable"`
		Raw               json.RawMessage `json:"raw_response,omitempty"`
	}

	// Client performs batched claim validation with bounded concurrency.
	Client struct {
		// URL is the validation endpoint.
		URL string

		// Timeout bounds each HTTP attempt and semaphore acquisition.
		Timeout time.Duration

		// HTTPClient is the transport; defaults to a client with Timeout.
		HTTPClient *http.Client

		// Limiter optionally paces outbound requests across the process.
		Limiter *rate.Limiter
	}

	batchRequest struct {
		Mode   string       `json:"mode"`
		Claims []batchClaim `json:"claims"`
	}

	batchClaim struct {
		Text      string `json:"text"`
		Context   string `json:"context"`
		TurnIndex int    `json:"turn_index"`
		Speaker   string `json:"speaker"`
	}

	batchItem struct {
		Validity   string      `json:"validity"`
		Confidence json.Number `json:"confidence"`
		Evidence   string      `json:"evidence"`
	}
)

// NewClient builds a validator client for the given endpoint.
func NewClient(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 12 * time.Second
	}
	return &Client{URL: url, Timeout: timeout}
}

// Validate checks the claims in one batched POST, passing through the
// process-wide concurrency semaphore. The result list is positionally aligned
// with the input: a short server response is padded with "unknown" entries,
// and any transport failure after retries maps every claim to "unknown" with
// ServerUnavailable set.
func (c *Client) Validate(ctx context.Context, claims []Claim) []Validation {
	if len(claims) == 0 {
		return nil
	}
	return withSemaphore(ctx, c.Timeout, func() []Validation {
		return c.validateBatch(ctx, claims)
	})
}

func (c *Client) validateBatch(ctx context.Context, claims []Claim) []Validation {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return unavailable(claims)
		}
	}
	payload := batchRequest{Mode: "batch", Claims: make([]batchClaim, len(claims))}
	for i, cl := range claims {
		payload.Claims[i] = batchClaim{
			Text:      cl.Text,
			Context:   cl.ContextBefore + "\n" + cl.ContextAfter,
			TurnIndex: cl.TurnIndex,
			Speaker:   cl.Speaker,
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return unavailable(claims)
	}

	resp, err := c.postWithRetries(ctx, body)
	if err != nil {
		log.Debug(ctx, log.KV{K: "msg", V: "validator unreachable"}, log.KV{K: "err", V: err.Error()})
		return unavailable(claims)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return unavailable(claims)
	}

	var rawBody json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&rawBody); err != nil {
		return unavailable(claims)
	}
	var rawItems []json.RawMessage
	if err := json.Unmarshal(rawBody, &rawItems); err != nil {
		// Object form with a "results" field.
		var wrapper struct {
			Results []json.RawMessage `json:"results"`
		}
		if err := json.Unmarshal(rawBody, &wrapper); err != nil {
			return unavailable(claims)
		}
		rawItems = wrapper.Results
	}

	out := make([]Validation, 0, len(claims))
	for i, cl := range claims {
		if i >= len(rawItems) {
			out = append(out, Validation{Claim: cl, Validity: VerdictUnknown})
			continue
		}
		out = append(out, normalize(cl, rawItems[i]))
	}
	return out
}

// postWithRetries issues the POST with up to transportRetries retries and a
// linear 0.5·(attempt+1)s backoff before giving up.
func (c *Client) postWithRetries(ctx context.Context, body []byte) (*http.Response, error) {
	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: c.Timeout}
	}
	var lastErr error
	for attempt := 0; attempt <= transportRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := client.Do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 500 * time.Millisecond):
		}
	}
	return nil, fmt.Errorf("validator post after %d attempts: %w", transportRetries+1, lastErr)
}

func normalize(cl Claim, raw json.RawMessage) Validation {
	var item batchItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return Validation{Claim: cl, Validity: VerdictUnknown, Raw: raw}
	}
	validity := strings.ToLower(strings.TrimSpace(item.Validity))
	switch validity {
	case VerdictTrue, VerdictFalse, VerdictUnknown:
	default:
		validity = VerdictUnknown
	}
	confidence, err := item.Confidence.Float64()
	if err != nil {
		confidence = 0
	}
	return Validation{
		Claim:      cl,
		Validity:   validity,
		Confidence: confidence,
		Evidence:   item.Evidence,
		Raw:        raw,
	}
}

func unavailable(claims []Claim) []Validation {
	out := make([]Validation, len(claims))
	for i, cl := range claims {
		out[i] = Validation{Claim: cl, Validity: VerdictUnknown, ServerUnavailable: true}
	}
	return out
}

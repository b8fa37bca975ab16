package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Scorer returns the AI-generation likelihood of text as a percentage.
type Scorer interface {
	Score(ctx context.Context, text string) (int, error)
}

// Client talks to the remote detection endpoint: POST {base}/detect with
// {"essay": text}, answered by a bare number.
type Client struct {
	httpClient       *http.Client
	baseURL          string
	apiKey           string
	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
}

type detectRequest struct {
	Essay string `json:"essay"`
}

// DefaultBaseURL is the endpoint the browser editor used.
const DefaultBaseURL = "https://85gdtn-3000.csb.app"

// NewClient allows customizing HTTP timeout and retry/backoff behavior.
// apiKey is optional and sent as a bearer token when set.
func NewClient(baseURL, apiKey string, httpTimeout time.Duration, retryMax int, baseDelay, maxDelay time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpTimeout <= 0 {
		httpTimeout = 30 * time.Second
	}
	if retryMax <= 0 {
		retryMax = 3
	}
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	if maxDelay <= 0 {
		maxDelay = 4 * time.Second
	}
	return &Client{
		httpClient:       &http.Client{Timeout: httpTimeout},
		baseURL:          strings.TrimRight(baseURL, "/"),
		apiKey:           apiKey,
		retryMaxAttempts: retryMax,
		retryBaseDelay:   baseDelay,
		retryMaxDelay:    maxDelay,
	}
}

// Score posts text to the detector. 429 and 5xx responses and transient
// network errors are retried with exponential backoff.
func (c *Client) Score(ctx context.Context, text string) (int, error) {
	payload, err := json.Marshal(detectRequest{Essay: text})
	if err != nil {
		return 0, fmt.Errorf("marshal request: %w", err)
	}
	endpoint := c.baseURL + "/detect"
	backoff := c.retryBaseDelay

	var lastErr error
	for attempt := 1; attempt <= c.retryMaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		score, wait, err := c.do(ctx, endpoint, payload, backoff)
		if err == nil {
			return score, nil
		}
		lastErr = err
		if wait < 0 || attempt == c.retryMaxAttempts {
			break
		}
		if err := sleepCtx(ctx, wait); err != nil {
			return 0, err
		}
		backoff *= 2
	}
	return 0, lastErr
}

// do performs one attempt. wait >= 0 means the error is retryable after
// that delay; wait < 0 means give up.
func (c *Client) do(ctx context.Context, endpoint string, payload []byte, backoff time.Duration) (int, time.Duration, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, -1, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, text/plain")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return 0, -1, ctx.Err()
		}
		unreachable := &UnreachableError{Host: c.baseURL, Err: err}
		if isRetryableNetErr(err) {
			return 0, c.capped(withJitter(backoff)), unreachable
		}
		return 0, -1, unreachable
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	if err != nil {
		return 0, c.capped(withJitter(backoff)), fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		score, err := ParseScore(body)
		if err != nil {
			return 0, -1, err
		}
		return score, 0, nil
	}

	apiErr := decodeAPIError(resp, body)
	if resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode <= 599) {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := parseRetryAfterSeconds(ra); err == nil && secs >= 0 {
				return 0, time.Duration(secs) * time.Second, classifyAPIError(apiErr, resp)
			}
		}
		return 0, c.capped(withJitter(backoff)), classifyAPIError(apiErr, resp)
	}
	return 0, -1, classifyAPIError(apiErr, resp)
}

func (c *Client) capped(d time.Duration) time.Duration {
	if c.retryMaxDelay > 0 && d > c.retryMaxDelay {
		return c.retryMaxDelay
	}
	return d
}

func decodeAPIError(resp *http.Response, body []byte) *APIError {
	var raw map[string]any
	_ = json.Unmarshal(body, &raw)
	apiErr := &APIError{StatusCode: resp.StatusCode, Raw: raw, RequestID: extractRequestID(resp)}
	src := raw
	if v, ok := raw["error"].(map[string]any); ok {
		src = v
	} else if msg, ok := raw["error"].(string); ok {
		apiErr.Message = msg
	}
	if msg, ok := src["message"].(string); ok {
		apiErr.Message = msg
	}
	if code, ok := src["code"].(string); ok {
		apiErr.Code = code
	}
	if apiErr.Message == "" && raw == nil {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}

var leadingInt = regexp.MustCompile(`^[+-]?\d+`)

// ParseScore reads the detector's answer. The body is normally a bare
// number, possibly fractional or JSON-quoted; objects carrying a "score" or
// "ai_percentage" field are accepted too. Only the integer part is kept.
func ParseScore(body []byte) (int, error) {
	s := strings.TrimSpace(string(body))
	if strings.HasPrefix(s, "{") {
		var obj map[string]any
		if err := json.Unmarshal([]byte(s), &obj); err == nil {
			for _, k := range []string{"score", "ai_percentage", "percentage"} {
				switch v := obj[k].(type) {
				case float64:
					return int(v), nil
				case string:
					return ParseScore([]byte(v))
				}
			}
		}
		return 0, &InvalidResponseError{Body: s}
	}
	s = strings.TrimSpace(strings.Trim(s, `"`))
	m := leadingInt.FindString(s)
	if m == "" {
		return 0, &InvalidResponseError{Body: s}
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, &InvalidResponseError{Body: s}
	}
	return n, nil
}

func isRetryableNetErr(err error) bool {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	return false
}

// parseRetryAfterSeconds tries to interpret Retry-After header value as seconds or HTTP date.
func parseRetryAfterSeconds(v string) (int, error) {
	if s, err := strconv.Atoi(v); err == nil {
		return s, nil
	}
	if t, err := http.ParseTime(v); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return int(d.Seconds()), nil
	}
	return 0, fmt.Errorf("invalid Retry-After: %q", v)
}

// extractRequestID pulls a best-effort request ID from common headers.
func extractRequestID(resp *http.Response) string {
	if resp == nil {
		return ""
	}
	for _, k := range []string{"X-Request-Id", "X-Request-ID", "X-Amzn-Requestid", "Cf-Ray"} {
		if v := resp.Header.Get(k); v != "" {
			return v
		}
	}
	return ""
}

// withJitter returns a backoff duration with +/- 20% jitter applied.
func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 500 * time.Millisecond
	}
	f := 0.8 + rand.Float64()*0.4
	out := time.Duration(float64(d) * f)
	if out <= 0 {
		return d
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

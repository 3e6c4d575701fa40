// Package gemini is the text-generation client used for review summaries.
package gemini

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"friendly_eats/internal/adapters/observability"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel   = "gemini-2.5-flash"
	service        = "gemini"
	endpoint       = "generateContent"
	maxAttempts    = 4
)

var (
	ErrUnauthorized = errors.New("gemini: unauthorized")
	ErrForbidden    = errors.New("gemini: forbidden")
	ErrNotFound     = errors.New("gemini: model not found")
	ErrEmpty        = errors.New("gemini: response has no candidate text")
	ErrCircuitOpen  = gobreaker.ErrOpenState
)

type Client struct {
	base  string
	model string
	hc    *http.Client
	key   string
	rl    *rate.Limiter
	cb    *gobreaker.CircuitBreaker[string]
}

func New(base, key, model string, rps int) (*Client, error) {
	if key == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if base == "" {
		base = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		base:  strings.TrimRight(base, "/"),
		model: model,
		hc:    &http.Client{Timeout: 20 * time.Second},
		key:   key,
		rl:    rate.NewLimiter(rate.Limit(rps), rps),
		cb:    newBreaker(service),
	}, nil
}

// newBreaker opens after 5 straight failed calls and probes again after 30s.
// Caller mistakes (auth, unknown model) do not count as failures.
func newBreaker(name string) *gobreaker.CircuitBreaker[string] {
	return gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 5 },
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden) ||
				errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents          []content `json:"contents"`
	SystemInstruction *content  `json:"systemInstruction,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Summarize sends prompt with a system instruction and returns the first
// candidate's text.
func (c *Client) Summarize(ctx context.Context, prompt, instruction string) (string, error) {
	body := generateRequest{Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}}}
	if instruction != "" {
		body.SystemInstruction = &content{Parts: []part{{Text: instruction}}}
	}
	return c.cb.Execute(func() (string, error) {
		var out generateResponse
		if err := c.post(ctx, fmt.Sprintf("%s/models/%s:generateContent", c.base, c.model), body, &out); err != nil {
			return "", err
		}
		if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
			return "", ErrEmpty
		}
		text := strings.TrimSpace(out.Candidates[0].Content.Parts[0].Text)
		if text == "" {
			return "", ErrEmpty
		}
		return text, nil
	})
}

// outcome is the verdict on one HTTP attempt.
type outcome struct {
	err   error
	retry bool
	wait  time.Duration // server-requested delay; 0 means backoff
}

// post sends in as JSON and decodes the reply into out. 429 and transient
// 5xx answers are retried, honoring Retry-After.
func (c *Client) post(ctx context.Context, url string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	if err := c.rl.Wait(ctx); err != nil {
		return err
	}

	var last outcome
	for i := 0; i < maxAttempts; i++ {
		if i > 0 {
			wait := last.wait
			if wait == 0 {
				wait = backoff(i - 1)
			}
			if !sleepCtx(ctx, wait) {
				return ctx.Err()
			}
			log.Debug().Int("attempt", i+1).Err(last.err).Msg("retrying generateContent")
		}
		last = c.attempt(ctx, url, payload, out)
		if !last.retry {
			return last.err
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", maxAttempts, last.err)
}

func (c *Client) attempt(ctx context.Context, url string, payload []byte, out any) outcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return outcome{err: err}
	}
	req.Header.Set("x-goog-api-key", c.key)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "friendly-eats/1.0")

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		observability.ObserveExternal(service, endpoint, 0, time.Since(start))
		if ctx.Err() != nil {
			return outcome{err: ctx.Err()}
		}
		return outcome{err: err, retry: true}
	}
	defer resp.Body.Close()
	observability.ObserveExternal(service, endpoint, resp.StatusCode, time.Since(start))

	switch code := resp.StatusCode; {
	case code == http.StatusOK:
		return outcome{err: json.NewDecoder(resp.Body).Decode(out)}
	case code == http.StatusUnauthorized:
		return outcome{err: ErrUnauthorized}
	case code == http.StatusForbidden:
		return outcome{err: ErrForbidden}
	case code == http.StatusNotFound:
		return outcome{err: ErrNotFound}
	case code == http.StatusTooManyRequests, code >= 500 && code != http.StatusNotImplemented:
		return outcome{err: fmt.Errorf("remote %d", code), retry: true, wait: retryAfter(resp)}
	default:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return outcome{err: fmt.Errorf("bad status %d: %s", code, strings.TrimSpace(string(b)))}
	}
}

// sleepCtx reports false when ctx ends before d elapses.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter reads Retry-After as seconds or an HTTP date; 0 when absent.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff doubles from 200ms per attempt with up to +50% jitter.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	return base + time.Duration(0.5*f*float64(base))
}

package notify

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

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"cityinfo/internal/adapters/observability"
	"cityinfo/internal/domain"
)

var _ domain.Notifier = (*Webhook)(nil)

var (
	ErrUnauthorized = errors.New("notify: unauthorized")
	ErrRejected     = errors.New("notify: rejected")
)

const maxAttempts = 4

// message is the JSON body posted to the webhook. ID stays the same across
// retries so the receiver can deduplicate.
type message struct {
	ID      string    `json:"id"`
	From    string    `json:"from,omitempty"`
	To      string    `json:"to,omitempty"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	SentAt  time.Time `json:"sent_at"`
}

type Webhook struct {
	url      string
	from, to string
	hc       *http.Client
	rl       *rate.Limiter
}

func NewWebhook(url, from, to string, rps int) (*Webhook, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("webhook URL is required")
	}
	if rps <= 0 {
		rps = 5
	}
	return &Webhook{
		url:  url,
		from: from,
		to:   to,
		hc:   &http.Client{Timeout: 10 * time.Second},
		rl:   rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

func (w *Webhook) Notify(ctx context.Context, subject, body string) error {
	msg := message{
		ID:      uuid.NewString(),
		From:    w.from,
		To:      w.to,
		Subject: subject,
		Body:    body,
		SentAt:  time.Now().UTC(),
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return w.post(ctx, b)
}

// post sends b with client-side rate limiting and retries.
// Retries on 429 and transient 5xx, honoring Retry-After when provided.
func (w *Webhook) post(ctx context.Context, b []byte) error {
	if err := w.rl.Wait(ctx); err != nil {
		return err
	}

	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(b))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "cityinfo/1.0")

		start := time.Now()
		resp, err := w.hc.Do(req)
		if err != nil {
			observability.ObserveExternal("webhook", "notify", 0, time.Since(start))
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			if i < maxAttempts-1 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr
		}
		observability.ObserveExternal("webhook", "notify", resp.StatusCode, time.Since(start))

		switch resp.StatusCode {
		case http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusNoContent:
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return nil

		case http.StatusUnauthorized, http.StatusForbidden:
			resp.Body.Close()
			return ErrUnauthorized

		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			wait := retryAfter(resp)
			resp.Body.Close()
			if wait == 0 {
				wait = backoff(i)
			}
			lastErr = fmt.Errorf("remote %d", resp.StatusCode)
			if i < maxAttempts-1 && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr

		default:
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, strings.TrimSpace(string(msg)))
		}
	}
	return lastErr
}

// sleepCtx waits for d or returns early if ctx is done.
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

// retryAfter parses Retry-After (seconds or HTTP-date). Returns 0 if absent/invalid.
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

// backoff doubles from 100ms per attempt with up to +50% jitter.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 100 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	return base + time.Duration(0.5*f*float64(base))
}

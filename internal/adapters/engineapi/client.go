package engineapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"slices"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "http://localhost:5000/api"
	defaultTimeout = 10 * time.Second

	// El engine es un proceso local; el limiter solo evita martillearlo si el loop se acelera.
	defaultRatePerSec = 5
	defaultBurst      = 2
)

// ErrNotOK indica que el engine respondió 2xx pero con {"ok": false}.
var ErrNotOK = errors.New("engine answered ok=false")

// RetryPolicy define qué se reintenta y cuánto se espera entre intentos.
//
//	backoff(attempt) = min(MaxWait, BaseWait × 2^attempt)
//
// Los errores de transporte siempre se reintentan; los status solo si están en Statuses.
type RetryPolicy struct {
	MaxRetries int
	BaseWait   time.Duration
	MaxWait    time.Duration
	Statuses   []int
}

// DefaultRetryPolicy devuelve 3 reintentos, 500ms base, 5s de techo y 429/5xx de gateway.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseWait:   500 * time.Millisecond,
		MaxWait:    5 * time.Second,
		Statuses: []int{
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
	}
}

// Backoff devuelve la espera antes del reintento número attempt (0-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	wait := time.Duration(math.Pow(2, float64(attempt))) * p.BaseWait
	if p.MaxWait > 0 && wait > p.MaxWait {
		return p.MaxWait
	}
	return wait
}

// Retryable indica si un status HTTP merece otro intento.
func (p RetryPolicy) Retryable(status int) bool {
	return slices.Contains(p.Statuses, status)
}

// Options ajusta el Client. Los valores cero usan los defaults.
type Options struct {
	Timeout    time.Duration
	RatePerSec float64
	Burst      int
	Retry      *RetryPolicy
}

// Client es el HTTP client del engine de trading con rate limiting y retries.
type Client struct {
	http    *http.Client
	baseURL string
	limiter *rate.Limiter
	retry   RetryPolicy
}

// NewClient crea un Client contra baseURL (p.ej. "http://localhost:5000/api").
// Si baseURL está vacío usa el engine local por defecto.
func NewClient(baseURL string, opts Options) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = defaultRatePerSec
	}
	if opts.Burst <= 0 {
		opts.Burst = defaultBurst
	}
	retry := DefaultRetryPolicy()
	if opts.Retry != nil {
		retry = *opts.Retry
	}
	return &Client{
		http:    &http.Client{Timeout: opts.Timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSec), opts.Burst),
		retry:   retry,
	}
}

// get hace un GET con rate limiting y retries.
func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.doWithRetry(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return c.http.Do(req)
	}, out)
}

// post hace un POST JSON con rate limiting y retries.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}
	return c.doWithRetry(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return c.http.Do(req)
	}, out)
}

// doWithRetry ejecuta la función aplicando la RetryPolicy.
func (c *Client) doWithRetry(ctx context.Context, fn func() (*http.Response, error), out any) error {
	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := fn()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if attempt == c.retry.MaxRetries {
				return fmt.Errorf("request failed after %d retries: %w", c.retry.MaxRetries, err)
			}
			if err := c.sleep(ctx, attempt); err != nil {
				return err
			}
			continue
		}

		if c.retry.Retryable(resp.StatusCode) {
			resp.Body.Close()
			if attempt == c.retry.MaxRetries {
				return fmt.Errorf("status %d after %d retries", resp.StatusCode, c.retry.MaxRetries)
			}
			slog.Warn("engine request will be retried", "status", resp.StatusCode, "attempt", attempt+1)
			if err := c.sleep(ctx, attempt); err != nil {
				return err
			}
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}

		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", c.retry.MaxRetries)
}

// sleep espera el backoff del intento, respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) error {
	select {
	case <-time.After(c.retry.Backoff(attempt)):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

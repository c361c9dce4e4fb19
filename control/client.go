// Package control drives the upstream signal control surface: which signal
// components exist, which of their signals are active, and REST mutations to
// toggle them. Mutations are serialized; a request arriving while another is
// in flight is rejected rather than queued.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Martiniu70/control-room-sub000/config"
	"github.com/Martiniu70/control-room-sub000/errors"
	"github.com/Martiniu70/control-room-sub000/metric"
	"github.com/Martiniu70/control-room-sub000/pkg/retry"
)

// ComponentStatus describes one upstream signal component.
type ComponentStatus struct {
	AvailableSignals []string `json:"availableSignals"`
	ActiveSignals    []string `json:"activeSignals"`
	State            string   `json:"state,omitempty"`
}

// Status is the control surface snapshot.
type Status struct {
	Components map[string]ComponentStatus `json:"components"`
}

// Active reports whether a signal is currently active on a component.
func (s Status) Active(component, signal string) bool {
	comp, ok := s.Components[component]
	if !ok {
		return false
	}
	for _, active := range comp.ActiveSignals {
		if active == signal {
			return true
		}
	}
	return false
}

// Client talks to the signal control REST surface. Status reads and mutations
// use separate timeouts; failed requests are retried with backoff except for
// client errors, which fail immediately.
type Client struct {
	cfg     config.ControlConfig
	status  *http.Client
	mutate  *http.Client
	logger  *slog.Logger
	metrics *metric.Metrics

	// inFlight serializes mutations. Concurrent callers get
	// ErrRequestInFlight instead of queueing.
	inFlight atomic.Bool

	mu        sync.RWMutex
	snapshot  Status
	lastError string
	lastFetch time.Time
}

// NewClient creates a control client. Metrics are optional.
func NewClient(cfg config.ControlConfig, logger *slog.Logger, metrics *metric.Metrics) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "control", "NewClient", "base URL required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, errors.WrapInvalid(err, "control", "NewClient", "parse base URL")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		cfg:     cfg,
		status:  &http.Client{Timeout: cfg.StatusTimeout},
		mutate:  &http.Client{Timeout: cfg.MutationTimeout},
		logger:  logger.With("component", "control"),
		metrics: metrics,
	}, nil
}

// retryConfig maps the configured retry count onto attempt semantics: two
// retries means three attempts total.
func (c *Client) retryConfig() retry.Config {
	return retry.Config{
		MaxAttempts:  c.cfg.MaxRetries + 1,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
		AddJitter:    true,
	}
}

// FetchStatus queries the control surface and replaces the cached snapshot.
func (c *Client) FetchStatus(ctx context.Context) (Status, error) {
	var fetched Status

	err := retry.Do(ctx, c.retryConfig(), func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("components"), nil)
		if err != nil {
			return retry.NonRetryable(err)
		}

		resp, err := c.status.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return httpError(resp)
		}

		var decoded Status
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return retry.NonRetryable(fmt.Errorf("decode status: %w", err))
		}
		fetched = decoded
		return nil
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.lastError = err.Error()
		if c.metrics != nil {
			c.metrics.RecordError("control", "status_fetch")
		}
		return Status{}, errors.WrapTransient(err, "control", "FetchStatus", "query control surface")
	}

	c.snapshot = fetched
	c.lastError = ""
	c.lastFetch = time.Now()
	return fetched, nil
}

// Snapshot returns the cached status and the last error string, if any.
func (c *Client) Snapshot() (Status, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot, c.lastError
}

// LastFetch returns when the cached status was last refreshed.
func (c *Client) LastFetch() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastFetch
}

// EnableSignal activates one signal on a component.
func (c *Client) EnableSignal(ctx context.Context, component, signal string) error {
	return c.mutateSurface(ctx, component, "signals", signal, "enable")
}

// DisableSignal deactivates one signal on a component.
func (c *Client) DisableSignal(ctx context.Context, component, signal string) error {
	return c.mutateSurface(ctx, component, "signals", signal, "disable")
}

// EnableComponent activates every signal on a component.
func (c *Client) EnableComponent(ctx context.Context, component string) error {
	return c.mutateSurface(ctx, component, "enable-all")
}

// DisableComponent deactivates every signal on a component.
func (c *Client) DisableComponent(ctx context.Context, component string) error {
	return c.mutateSurface(ctx, component, "disable-all")
}

// EnableAll activates every signal on every component.
func (c *Client) EnableAll(ctx context.Context) error {
	return c.mutateSurface(ctx, "enable-all")
}

// DisableAll deactivates every signal on every component.
func (c *Client) DisableAll(ctx context.Context) error {
	return c.mutateSurface(ctx, "disable-all")
}

// mutateSurface performs one serialized POST mutation followed by a status
// refresh. The in-flight guard is released whether or not the request
// succeeds.
func (c *Client) mutateSurface(ctx context.Context, segments ...string) error {
	if !c.inFlight.CompareAndSwap(false, true) {
		return errors.WrapInvalid(errors.ErrRequestInFlight, "control", "mutate", "serialize mutation")
	}
	defer c.inFlight.Store(false)

	endpoint := c.endpoint(segments...)

	err := retry.Do(ctx, c.retryConfig(), func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
		if err != nil {
			return retry.NonRetryable(err)
		}

		resp, err := c.mutate.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return httpError(resp)
		}
		return nil
	})
	if err != nil {
		c.mu.Lock()
		c.lastError = err.Error()
		c.mu.Unlock()
		if c.metrics != nil {
			c.metrics.RecordError("control", "mutation")
		}
		return errors.WrapTransient(err, "control", "mutate", "post mutation")
	}

	c.logger.Info("control mutation applied", "endpoint", endpoint)

	// The authoritative active-signal sets live upstream; refresh so the
	// cached snapshot reflects the mutation's effect
	if _, err := c.FetchStatus(ctx); err != nil {
		c.logger.Warn("status refresh after mutation failed", "error", err)
	}
	return nil
}

// endpoint joins path segments onto the base URL.
func (c *Client) endpoint(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		parts = append(parts, url.PathEscape(seg))
	}
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/" + strings.Join(parts, "/")
}

// httpError converts a non-success response into an error, marking client
// errors non-retryable.
func httpError(resp *http.Response) error {
	err := fmt.Errorf("unexpected status %d from %s", resp.StatusCode, resp.Request.URL.Path)
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return retry.NonRetryable(err)
	}
	return err
}

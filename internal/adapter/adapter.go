// Package adapter defines the Adapter contract spec §4.1 asks every model
// transport to implement, plus the shared BaseAdapter retry/logging
// scaffolding the concrete providers embed.
//
// Grounded on ai/providers/base.go's BaseClient: same HTTP-client-with-
// timeout-and-retry shape, same exponential-backoff-with-jittered-delay
// ExecuteWithRetry loop, same Logger-based request/response tracing. The
// retry loop here classifies errors through core.IsRetryable instead of
// string-matching "(429)"/"(503)" out of an error message, since every
// adapter in this module returns typed sentinel errors rather than
// formatted strings.
package adapter

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/aipolab/aipo/internal/core"
	"github.com/aipolab/aipo/internal/traffic"
)

// Adapter is the transport contract every model-under-test integration
// implements: send one turn, discover callable tools, and execute a tool
// call the model requested.
type Adapter interface {
	// Invoke sends the full turn history (oldest first, ending in the user
	// turn awaiting a reply) to the model and returns its response.
	Invoke(ctx context.Context, turns []core.Turn) (*core.ModelResponse, error)

	// EnumerateTools reports the tool schema the model was given for this
	// conversation, if any. Adapters that don't support tool use return nil.
	EnumerateTools(ctx context.Context) ([]ToolSchema, error)

	// CallTool executes a tool call on behalf of the harness (for adapters
	// that proxy tool execution rather than letting the model run them).
	CallTool(ctx context.Context, call core.ToolCall) (string, error)

	// Close releases any adapter-held resources (connections, subprocesses).
	Close() error
}

// ToolSchema describes one callable tool exposed to the model.
type ToolSchema struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Constructor builds an Adapter from a validated spec.AdapterSpec. capture
// is the run's traffic recorder (nil when --capture-traffic is off); a
// provider that talks over the network publishes one Event per Invoke to
// it. Each provider package registers one under its AdapterKind in the
// package-level registry.
type Constructor func(spec core.AdapterSpec, logger core.Logger, capture *traffic.Capture) (Adapter, error)

var registry = make(map[core.AdapterKind]Constructor)

// Register adds a provider constructor to the global registry. Provider
// packages call this from an init() func, the way the teacher framework's
// capability registrations work.
func Register(kind core.AdapterKind, ctor Constructor) {
	registry[kind] = ctor
}

// New builds an Adapter for spec using whichever provider registered
// itself under spec.Kind. capture may be nil; passing one wires every
// request/response this adapter makes into the run's traffic pack.
func New(spec core.AdapterSpec, logger core.Logger, capture *traffic.Capture) (Adapter, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	ctor, ok := registry[spec.Kind]
	if !ok {
		return nil, core.NewFrameworkErrorWithID("adapter.New", "config", string(spec.Kind),
			fmt.Errorf("%w: no adapter registered for kind %q", core.ErrInvalidConfiguration, spec.Kind))
	}
	return ctor(spec, logger, capture)
}

// BaseAdapter carries the HTTP client, logger, retry policy, and traffic
// recorder every HTTP-transport provider embeds, mirroring ai/providers/
// base.go's BaseClient.
type BaseAdapter struct {
	HTTPClient *http.Client
	Logger     core.Logger
	MaxRetries int
	RetryDelay time.Duration
	Capture    *traffic.Capture
}

// NewBaseAdapter builds a BaseAdapter with sane defaults. capture may be
// nil, in which case PublishTraffic is a no-op.
func NewBaseAdapter(timeout time.Duration, retry core.RetryPolicy, logger core.Logger, capture *traffic.Capture) *BaseAdapter {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	maxRetries := retry.MaxAttempts
	if maxRetries <= 0 {
		maxRetries = 3
	}
	delay := retry.BaseBackoff
	if delay <= 0 {
		delay = time.Second
	}
	return &BaseAdapter{
		HTTPClient: &http.Client{Timeout: timeout},
		Logger:     logger,
		MaxRetries: maxRetries,
		RetryDelay: delay,
		Capture:    capture,
	}
}

// PublishTraffic records one request/response pair to the adapter's wired
// Capture, per spec §4.13. No-ops when Capture is nil (--capture-traffic
// off, the default).
func (b *BaseAdapter) PublishTraffic(method, url string, reqHeaders map[string]string, reqBody []byte, statusCode int, statusText string, respHeaders map[string]string, respBody []byte, start time.Time) {
	if b.Capture == nil {
		return
	}
	b.Capture.Publish(traffic.Event{
		Method:          method,
		URL:             url,
		RequestHeaders:  reqHeaders,
		RequestBody:     reqBody,
		StatusCode:      statusCode,
		StatusText:      statusText,
		ResponseHeaders: respHeaders,
		ResponseBody:    respBody,
		StartedAt:       start,
		Duration:        time.Since(start),
	})
}

// HeaderMap flattens an http.Header into the single-valued map Event
// carries (HAR entries list headers as name/value pairs; aipo doesn't need
// multi-value header fidelity for its own evidence review).
func HeaderMap(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}

// ExecuteWithRetry runs req with jittered exponential backoff, retrying only on
// errors core.IsRetryable admits (transient/rate-limit), never on auth or
// protocol errors.
func (b *BaseAdapter) ExecuteWithRetry(ctx context.Context, req *http.Request, classify func(*http.Response) error) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= b.MaxRetries; attempt++ {
		reqClone := req.Clone(ctx)

		resp, err := b.HTTPClient.Do(reqClone)
		if err == nil {
			if classErr := classify(resp); classErr == nil {
				return resp, nil
			} else if !core.IsRetryable(classErr) {
				return resp, classErr
			} else {
				resp.Body.Close()
				lastErr = classErr
			}
		} else {
			lastErr = fmt.Errorf("%w: %v", core.ErrTransientError, err)
		}

		if attempt < b.MaxRetries {
			shift := attempt
			if shift > 20 {
				shift = 20
			}
			delay := b.RetryDelay * time.Duration(uint64(1)<<uint(shift))
			delay += time.Duration(rand.Int63n(int64(delay)/2 + 1))

			b.Logger.Debug("adapter retrying request", map[string]interface{}{
				"attempt":     attempt + 1,
				"max_retries": b.MaxRetries,
				"delay":       delay,
				"error":       lastErr.Error(),
			})

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	return nil, fmt.Errorf("%w: after %d retries: %v", core.ErrMaxRetriesExceeded, b.MaxRetries, lastErr)
}

// ClassifyStatus maps an HTTP status code to the Adapter sentinel error
// taxonomy spec §4.1 defines.
func ClassifyStatus(statusCode int) error {
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return core.ErrAuthError
	case statusCode == http.StatusTooManyRequests:
		return core.ErrRateLimitError
	case statusCode >= 500:
		return core.ErrTransientError
	case statusCode >= 400:
		return core.ErrProtocolError
	default:
		return nil
	}
}

// Package faceengine is the HTTP client for the face detection and swap
// model server. Calls are retried on transient failure and guarded by a
// circuit breaker so a failing engine is not hammered by every frame worker.
package faceengine

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pscheid92/faceswap/internal/adapter/metrics"
	"github.com/pscheid92/faceswap/internal/domain"
	"github.com/pscheid92/faceswap/internal/platform/retry"
	"github.com/sony/gobreaker"
)

const maxResponseBytes = 64 << 20

var DefaultRetryPolicy = retry.Policy{
	MaxAttempts:      3,
	InitialBackoff:   200 * time.Millisecond,
	RateLimitBackoff: 2 * time.Second,
	MaxBackoff:       5 * time.Second,
}

type Config struct {
	BaseURL string
	Timeout time.Duration
	Retry   retry.Policy
	// Breaker overrides the default circuit breaker settings. Tests use it
	// to trip quickly.
	Breaker *gobreaker.Settings
}

type Client struct {
	baseURL string
	http    *http.Client
	cb      *gobreaker.CircuitBreaker
	policy  retry.Policy
	metrics *metrics.DependencyMetrics
}

var (
	_ domain.FaceEngine    = (*Client)(nil)
	_ domain.ImageEnhancer = (*Client)(nil)
)

func NewClient(cfg Config, m *metrics.DependencyMetrics) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy
	}

	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		policy:  cfg.Retry,
		metrics: m,
	}

	settings := gobreaker.Settings{
		Name:        "face_engine",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 10 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
	}
	if cfg.Breaker != nil {
		settings = *cfg.Breaker
	}
	settings.IsSuccessful = breakerSuccess
	settings.OnStateChange = c.onStateChange
	c.cb = gobreaker.NewCircuitBreaker(settings)
	return c
}

// breakerSuccess counts rejected input and callers giving up as successes;
// neither says anything about engine health.
func breakerSuccess(err error) bool {
	var se *statusError
	return err == nil || errors.Is(err, context.Canceled) || (errors.As(err, &se) && se.clientError())
}

func (c *Client) onStateChange(name string, from, to gobreaker.State) {
	slog.Warn("Circuit breaker state changed", "component", name, "from", from.String(), "to", to.String())
	if c.metrics == nil {
		return
	}
	c.metrics.CircuitBreakerStateChanges.WithLabelValues(name, to.String()).Inc()
	c.metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// State exposes the breaker state for health reporting.
func (c *Client) State() gobreaker.State {
	return c.cb.State()
}

type detectResponse struct {
	Faces []domain.Face `json:"faces"`
}

type swapRequest struct {
	Image  string      `json:"image"`
	Source domain.Face `json:"source"`
	Target domain.Face `json:"target"`
}

type imageRequest struct {
	Image string `json:"image"`
}

type imageResponse struct {
	Image string `json:"image"`
}

// Detect returns every face the engine finds in image.
func (c *Client) Detect(ctx context.Context, image []byte) ([]domain.Face, error) {
	var resp detectResponse
	req := imageRequest{Image: base64.StdEncoding.EncodeToString(image)}
	if err := c.call(ctx, "detect", "/v1/detect", req, &resp); err != nil {
		return nil, err
	}
	return resp.Faces, nil
}

// LargestFace returns the detection with the largest bounding box area.
func (c *Client) LargestFace(ctx context.Context, image []byte) (*domain.Face, error) {
	faces, err := c.Detect(ctx, image)
	if err != nil {
		return nil, err
	}
	return Largest(faces), nil
}

// Largest picks the face with the largest box. Ties keep the first one.
func Largest(faces []domain.Face) *domain.Face {
	var best *domain.Face
	for i := range faces {
		if best == nil || faces[i].Box.Area() > best.Box.Area() {
			best = &faces[i]
		}
	}
	return best
}

// Swap replaces target in image with source and returns the new image.
func (c *Client) Swap(ctx context.Context, image []byte, source, target domain.Face) ([]byte, error) {
	var resp imageResponse
	req := swapRequest{
		Image:  base64.StdEncoding.EncodeToString(image),
		Source: source,
		Target: target,
	}
	if err := c.call(ctx, "swap", "/v1/swap", req, &resp); err != nil {
		return nil, err
	}
	return decodeImage(resp)
}

// Enhance asks the engine to color-correct and sharpen a swapped image.
func (c *Client) Enhance(ctx context.Context, image []byte) ([]byte, error) {
	var resp imageResponse
	req := imageRequest{Image: base64.StdEncoding.EncodeToString(image)}
	if err := c.call(ctx, "enhance", "/v1/enhance", req, &resp); err != nil {
		return nil, err
	}
	return decodeImage(resp)
}

func decodeImage(resp imageResponse) ([]byte, error) {
	out, err := base64.StdEncoding.DecodeString(resp.Image)
	if err != nil {
		return nil, fmt.Errorf("face engine returned invalid image: %w", err)
	}
	return out, nil
}

func (c *Client) call(ctx context.Context, operation, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", operation, err)
	}

	start := time.Now()
	err = retry.DoVoid(ctx, c.policy, classify, func(ctx context.Context) error {
		_, err := c.cb.Execute(func() (any, error) {
			return nil, c.post(ctx, path, body, out)
		})
		return err
	})
	c.observe(operation, start, err)

	return translate(operation, err)
}

func (c *Client) post(ctx context.Context, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &statusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &statusError{Code: http.StatusBadGateway, Body: "malformed response: " + err.Error()}
	}
	return nil
}

func (c *Client) observe(operation string, start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.FaceEngineRequests.WithLabelValues(operation, status).Inc()
	c.metrics.FaceEngineDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// statusError is a non-200 answer from the engine.
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("face engine returned %d: %s", e.Code, e.Body)
}

func (e *statusError) clientError() bool {
	return e.Code >= 400 && e.Code < 500 && e.Code != http.StatusTooManyRequests
}

func classify(err error) retry.Action {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return retry.Stop
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return retry.Stop
	}

	var se *statusError
	if errors.As(err, &se) {
		switch {
		case se.Code == http.StatusTooManyRequests || se.Code == http.StatusServiceUnavailable:
			return retry.After
		case se.clientError():
			return retry.Stop
		default:
			return retry.Retry
		}
	}
	return retry.Retry
}

// translate maps transport outcomes onto domain errors.
func translate(operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s: %w", operation, errors.Join(domain.ErrEngineUnavailable, err))
	}
	var se *statusError
	if errors.As(err, &se) && (se.Code == http.StatusBadRequest || se.Code == http.StatusUnprocessableEntity) {
		return fmt.Errorf("%s: %w", operation, errors.Join(domain.ErrUnreadableImage, err))
	}
	return fmt.Errorf("face engine %s failed: %w", operation, err)
}

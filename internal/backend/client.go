// Package backend is the HTTP client for the incident API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/linnemanlabs/waypoint/internal/authmw"
	"github.com/linnemanlabs/waypoint/internal/incident"
)

// maxErrorBody caps how much of an error response is kept.
const maxErrorBody = 512

// Config configures a Client.
type Config struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.BaseURL, "backend-url", "http://localhost:8080", "incident API base URL")
	fs.StringVar(&c.APIKey, "backend-api-key", "", "incident API key sent in X-API-Key")
	fs.DurationVar(&c.Timeout, "backend-timeout", 10*time.Second, "per-request timeout for the incident API")
	fs.Float64Var(&c.RequestsPerSecond, "backend-rps", 10, "request rate limit towards the incident API (0 = unlimited)")
}

// Validate checks all configuration fields for correctness.
func (c *Config) Validate() error {
	var errs []error
	if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("invalid BACKEND_URL %q (must be an absolute URL)", c.BaseURL))
	}
	if c.APIKey == "" {
		errs = append(errs, errors.New("BACKEND_API_KEY is required"))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("invalid BACKEND_TIMEOUT %s (must be >0)", c.Timeout))
	}
	if c.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("invalid BACKEND_RPS %g (must be >=0)", c.RequestsPerSecond))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// StatusError is a non-2xx response from the API.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend: status %d", e.Code)
	}
	return fmt.Sprintf("backend: status %d: %s", e.Code, e.Message)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// Client calls the incident API. It is safe for concurrent use.
type Client struct {
	base    string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
}

// New creates a Client from a validated Config.
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Client{
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey: cfg.APIKey,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter: rate.NewLimiter(limit, 1),
	}, nil
}

// ListIncidents fetches one page of incidents.
func (c *Client) ListIncidents(ctx context.Context, limit, offset int) (*incident.Page, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	var page incident.Page
	if err := c.do(ctx, http.MethodGet, "/incidents?"+q.Encode(), nil, http.StatusOK, &page); err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	return &page, nil
}

// GetIncident fetches an incident with its entries. A missing incident
// yields an error for which IsNotFound is true.
func (c *Client) GetIncident(ctx context.Context, id string) (*incident.Detail, error) {
	var d incident.Detail
	if err := c.do(ctx, http.MethodGet, "/incidents/"+url.PathEscape(id), nil, http.StatusOK, &d); err != nil {
		return nil, fmt.Errorf("get incident %s: %w", id, err)
	}
	return &d, nil
}

// CreateIncident persists a new incident.
func (c *Client) CreateIncident(ctx context.Context, req incident.CreateRequest) (*incident.Incident, error) {
	var resp struct {
		Incident incident.Incident `json:"incident"`
	}
	if err := c.do(ctx, http.MethodPost, "/incidents", req, http.StatusCreated, &resp); err != nil {
		return nil, fmt.Errorf("create incident: %w", err)
	}
	return &resp.Incident, nil
}

func (c *Client) do(ctx context.Context, method, path string, in any, want int, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set(authmw.HeaderAPIKey, c.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req) //nolint:gosec // base URL is from trusted config
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != want {
		return statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	se := &StatusError{Code: resp.StatusCode}
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		se.Message = body.Error
	} else {
		se.Message = strings.TrimSpace(string(raw))
	}
	return se
}

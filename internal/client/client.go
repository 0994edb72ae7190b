// Package client talks to a running alarmd daemon over its control API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"git.home.luguber.info/inful/alarmd/internal/api"
	"git.home.luguber.info/inful/alarmd/internal/foundation/errors"
	"git.home.luguber.info/inful/alarmd/internal/registry"
	"git.home.luguber.info/inful/alarmd/internal/settings"
)

const defaultTimeout = 10 * time.Second

// Client is an HTTP client for the control API.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option { return func(cl *Client) { cl.httpClient = c } }

// New creates a client. baseURL may omit the scheme ("127.0.0.1:7468").
func New(baseURL string, opts ...Option) *Client {
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body any) (*http.Request, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "invalid daemon URL").
			WithContext("url", c.baseURL).
			Build()
	}
	u.Path = path.Join(u.Path, endpoint)

	rd := io.Reader(http.NoBody)
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, errors.WrapError(err, errors.CategoryInternal, "failed to marshal request body").Build()
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryInternal, "failed to create request").
			WithContext("method", method).
			WithContext("url", u.String()).
			Build()
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// do executes the request and decodes a 2xx body into result. API error payloads come
// back as classified errors carrying the daemon's category.
func (c *Client) do(ctx context.Context, method, endpoint string, body, result any) error {
	req, err := c.newRequest(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.WrapError(err, errors.CategoryNetwork, "alarmd daemon unreachable").
			WithContext("url", c.baseURL).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if result == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return errors.WrapError(err, errors.CategoryInternal, "malformed daemon response").
			WithContext("endpoint", endpoint).
			Build()
	}
	return nil
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload errors.HTTPErrorResponse
	if err := json.Unmarshal(data, &payload); err != nil || payload.Error == "" {
		return errors.NewError(categoryForStatus(resp.StatusCode), strings.TrimSpace(string(data))).
			WithContext("status", resp.StatusCode).
			Build()
	}
	category := errors.ErrorCategory(payload.Code)
	if payload.Code == "" {
		category = categoryForStatus(resp.StatusCode)
	}
	b := errors.NewError(category, payload.Error)
	for k, v := range payload.Details {
		b = b.WithContext(k, v)
	}
	if payload.Retryable {
		b = b.Retryable()
	}
	return b.Build()
}

func categoryForStatus(status int) errors.ErrorCategory {
	switch status {
	case http.StatusBadRequest:
		return errors.CategoryValidation
	case http.StatusNotFound:
		return errors.CategoryNotFound
	case http.StatusConflict:
		return errors.CategorySession
	case http.StatusForbidden:
		return errors.CategoryPermission
	case http.StatusServiceUnavailable:
		return errors.CategoryRuntime
	default:
		return errors.CategoryInternal
	}
}

func alarmPath(id int64, suffix ...string) string {
	return path.Join(append([]string{"/api/alarms", strconv.FormatInt(id, 10)}, suffix...)...)
}

func (c *Client) ListAlarms(ctx context.Context) ([]api.AlarmView, error) {
	var out []api.AlarmView
	err := c.do(ctx, http.MethodGet, "/api/alarms", nil, &out)
	return out, err
}

func (c *Client) GetAlarm(ctx context.Context, id int64) (api.AlarmView, error) {
	var out api.AlarmView
	err := c.do(ctx, http.MethodGet, alarmPath(id), nil, &out)
	return out, err
}

func (c *Client) CreateAlarm(ctx context.Context, req api.AlarmRequest) (registry.Saved, error) {
	var out registry.Saved
	err := c.do(ctx, http.MethodPost, "/api/alarms", req, &out)
	return out, err
}

func (c *Client) UpdateAlarm(ctx context.Context, id int64, req api.AlarmRequest) (registry.Saved, error) {
	var out registry.Saved
	err := c.do(ctx, http.MethodPut, alarmPath(id), req, &out)
	return out, err
}

func (c *Client) SetEnabled(ctx context.Context, id int64, enabled bool) (registry.Saved, error) {
	action := "disable"
	if enabled {
		action = "enable"
	}
	var out registry.Saved
	err := c.do(ctx, http.MethodPost, alarmPath(id, action), nil, &out)
	return out, err
}

func (c *Client) DeleteAlarm(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, alarmPath(id), nil, nil)
}

func (c *Client) Session(ctx context.Context) (api.SessionResponse, error) {
	var out api.SessionResponse
	err := c.do(ctx, http.MethodGet, "/api/session", nil, &out)
	return out, err
}

func (c *Client) Dismiss(ctx context.Context) (api.SessionResponse, error) {
	var out api.SessionResponse
	err := c.do(ctx, http.MethodPost, "/api/session/dismiss", nil, &out)
	return out, err
}

func (c *Client) Snooze(ctx context.Context) (api.SnoozeResponse, error) {
	var out api.SnoozeResponse
	err := c.do(ctx, http.MethodPost, "/api/session/snooze", nil, &out)
	return out, err
}

// Tap registers one emergency-stop tap.
func (c *Client) Tap(ctx context.Context) (api.TapResponse, error) {
	var out api.TapResponse
	err := c.do(ctx, http.MethodPost, "/api/session/tap", nil, &out)
	return out, err
}

// ShowRinging re-presents the ringing surface, as tapping the ringing indicator does.
func (c *Client) ShowRinging(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/session/indicator", nil, nil)
}

// Trigger queues an ad hoc trigger for alarm id.
func (c *Client) Trigger(ctx context.Context, id int64) (api.TriggerResponse, error) {
	var out api.TriggerResponse
	err := c.do(ctx, http.MethodPost, "/api/triggers/"+strconv.FormatInt(id, 10), nil, &out)
	return out, err
}

// Boot sends the boot-completed signal.
func (c *Client) Boot(ctx context.Context) (api.BootReport, error) {
	var out api.BootReport
	err := c.do(ctx, http.MethodPost, "/api/boot", nil, &out)
	return out, err
}

func (c *Client) Next(ctx context.Context) (api.NextResponse, error) {
	var out api.NextResponse
	err := c.do(ctx, http.MethodGet, "/api/next", nil, &out)
	return out, err
}

func (c *Client) Settings(ctx context.Context) (settings.Settings, error) {
	var out settings.Settings
	err := c.do(ctx, http.MethodGet, "/api/settings", nil, &out)
	return out, err
}

func (c *Client) SaveSettings(ctx context.Context, s settings.Settings) (settings.Settings, error) {
	var out settings.Settings
	err := c.do(ctx, http.MethodPut, "/api/settings", s, &out)
	return out, err
}

// Health returns the daemon health report. An unhealthy daemon answers 503 with the
// same body, so the report is decoded regardless of status.
func (c *Client) Health(ctx context.Context) (api.HealthResponse, error) {
	var out api.HealthResponse
	req, err := c.newRequest(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return out, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return out, errors.WrapError(err, errors.CategoryNetwork, "alarmd daemon unreachable").
			WithContext("url", c.baseURL).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, errors.WrapError(err, errors.CategoryInternal, "malformed health response").Build()
	}
	return out, nil
}

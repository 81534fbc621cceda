package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/askwhyharsh/caddate/internal/location"
	"github.com/askwhyharsh/caddate/internal/tracker"
	apperrors "github.com/askwhyharsh/caddate/pkg/errors"
	"github.com/askwhyharsh/caddate/pkg/logger"
	"github.com/pkg/errors"
)

const DefaultRequestTimeout = 30 * time.Second

var _ tracker.Persister = (*RESTClient)(nil)

// RESTClient talks to the location API with a bearer token.
type RESTClient struct {
	baseURL string
	token   string
	http    *http.Client
	logger  logger.Logger
}

func NewRESTClient(baseURL, token string, log logger.Logger) *RESTClient {
	return &RESTClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: DefaultRequestTimeout},
		logger:  log,
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
		Field   string `json:"field"`
	} `json:"error"`
}

type updateLocationBody struct {
	Latitude  float64    `json:"latitude"`
	Longitude float64    `json:"longitude"`
	Accuracy  *float64   `json:"accuracy,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// UpdateLocation persists fix through POST /api/location.
func (c *RESTClient) UpdateLocation(ctx context.Context, fix tracker.Fix) error {
	body := updateLocationBody{Latitude: fix.Latitude, Longitude: fix.Longitude, Accuracy: fix.Accuracy}
	if !fix.Timestamp.IsZero() {
		body.Timestamp = &fix.Timestamp
	}
	return c.do(ctx, http.MethodPost, "/api/location", body, nil)
}

func (c *RESTClient) Nearby(ctx context.Context, radius float64, limit int) (*location.NearbyResult, error) {
	q := url.Values{}
	if radius > 0 {
		q.Set("radius", strconv.FormatFloat(radius, 'f', -1, 64))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/location/nearby"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var result location.NearbyResult
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *RESTClient) StopSharing(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/location/stop", nil, nil)
}

func (c *RESTClient) Settings(ctx context.Context) (*location.Settings, error) {
	var settings location.Settings
	if err := c.do(ctx, http.MethodGet, "/api/location/settings", nil, &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

func (c *RESTClient) SetSharing(ctx context.Context, sharing bool) (*location.SettingsResult, error) {
	var result location.SettingsResult
	body := map[string]any{"isSharing": sharing}
	if err := c.do(ctx, http.MethodPut, "/api/location/settings", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *RESTClient) do(ctx context.Context, method, path string, in, out any) error {
	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return apperrors.Internal(err, "failed to encode request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return apperrors.Internal(err, "failed to build request")
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.Transient(errors.Wrapf(err, "%s %s", method, path), "location server unreachable")
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && resp.StatusCode < 300 {
		return apperrors.Transient(errors.Wrap(err, "failed to decode response"), "invalid server response")
	}

	if resp.StatusCode >= 300 || !env.Success {
		c.logger.Debug("Location API request failed", "method", method, "path", path, "status", resp.StatusCode)
		return statusError(resp.StatusCode, env)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return apperrors.Transient(errors.Wrap(err, "failed to decode response data"), "invalid server response")
		}
	}
	return nil
}

// statusError maps an error response back onto the error taxonomy.
func statusError(status int, env envelope) error {
	msg, field := http.StatusText(status), ""
	if env.Error != nil {
		msg, field = env.Error.Message, env.Error.Field
	}
	if field != "" {
		msg = strings.TrimPrefix(msg, field+": ")
	}
	cause := errors.New(msg)

	switch {
	case status == http.StatusBadRequest:
		return apperrors.Validation(field, cause)
	case status == http.StatusUnauthorized:
		return apperrors.Unauthorized(cause)
	case status == http.StatusNotFound:
		return apperrors.NotFound(cause)
	case status == http.StatusTooManyRequests:
		return apperrors.RateLimited(cause)
	case status >= 500:
		return apperrors.Transient(cause, msg)
	default:
		return apperrors.Internal(cause, fmt.Sprintf("unexpected status %d", status))
	}
}

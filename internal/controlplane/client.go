// Package controlplane is the consumed side of spec §6's control-plane
// HTTP API: HTTP Basic auth (device id / device token), JSON in and out,
// a bounded per-call deadline (spec §5: "implementers SHOULD set a
// reasonable [timeout] (e.g., 10 s)").
//
// Grounded on the teacher's services/mediamtx_service.go HTTP-client
// shape (a bare *http.Client with a fixed Timeout, manual
// NewRequest/Do/status-check), generalized to the four endpoints this
// spec names and to the RemoteRejected/TransientNetwork taxonomy from §7.
package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/beachvar/stream-supervisor/internal/errs"
)

type Client struct {
	baseURL  string
	deviceID string
	token    string
	http     *http.Client
}

func New(baseURL, deviceID, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL:  baseURL,
		deviceID: deviceID,
		token:    token,
		http:     &http.Client{Timeout: timeout},
	}
}

func (c *Client) authenticate(req *http.Request) {
	req.SetBasicAuth(c.deviceID, c.token)
	req.Header.Set("Content-Type", "application/json")
}

// doJSON performs one request/response round trip, classifying failures
// per spec §7: network/timeout errors and 5xx -> TransientNetwork; 4xx ->
// RemoteRejected (callers inspect the status code via StatusCode(err) to
// special-case 404 as "entity deleted").
func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return errs.New(errs.RemoteRejected, "marshal request", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errs.New(errs.TransientNetwork, "build request", err)
	}
	c.authenticate(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return errs.New(errs.TransientNetwork, "http do", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return errs.New(errs.TransientNetwork, fmt.Sprintf("server error %d", resp.StatusCode), nil)
	}
	if resp.StatusCode >= 400 {
		return &statusError{code: resp.StatusCode, err: errs.New(errs.RemoteRejected, fmt.Sprintf("rejected %d", resp.StatusCode), nil)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errs.New(errs.TransientNetwork, "decode response", err)
	}
	return nil
}

// statusError carries the HTTP status code alongside a RemoteRejected
// error so callers can special-case 404 without string matching.
type statusError struct {
	code int
	err  error
}

func (e *statusError) Error() string { return e.err.Error() }
func (e *statusError) Unwrap() error { return e.err }

// StatusCode extracts the HTTP status code from an error returned by
// this package, or 0 if it isn't a RemoteRejected error.
func StatusCode(err error) int {
	if se, ok := err.(*statusError); ok {
		return se.code
	}
	return 0
}

// FetchState pulls the consolidated declared-state snapshot.
func (c *Client) FetchState(ctx context.Context) (*DeclaredState, error) {
	var state DeclaredState
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/device/state/", nil, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// ReportConnection reports an ingest's connectivity to the control
// plane.
func (c *Client) ReportConnection(ctx context.Context, cameraID string, connected bool, errMsg string) error {
	path := fmt.Sprintf("/api/v1/device/cameras/%s/connection/", cameraID)
	return c.doJSON(ctx, http.MethodPost, path, connectionReport{IsConnected: connected, Error: errMsg}, &successResponse{})
}

// RefreshURL publishes a freshly-signed public HLS URL for a camera.
func (c *Client) RefreshURL(ctx context.Context, cameraID, localHLSURL string) error {
	path := fmt.Sprintf("/api/v1/device/cameras/%s/stream/refresh-url/", cameraID)
	return c.doJSON(ctx, http.MethodPost, path, refreshURLRequest{LocalHLSURL: localHLSURL}, &successResponse{})
}

// BroadcastStatus reports a fan-out's status.
func (c *Client) BroadcastStatus(ctx context.Context, broadcastID, status string, ffmpegPID int, errMsg string) error {
	path := fmt.Sprintf("/api/v1/device/youtube/broadcasts/%s/status/", broadcastID)
	return c.doJSON(ctx, http.MethodPost, path, broadcastStatusRequest{Status: status, FFmpegPID: ffmpegPID, ErrorMessage: errMsg}, &successResponse{})
}

// WithRetry retries fn up to 3 times total with linear backoff
// (0.5s*attempt), per spec §4.4 "Individual per-entity errors ... are
// logged and retried up to 3 times with linear backoff (0.5 s ·
// attempt), then dropped for that tick". Retrying stops early if fn
// returns a non-transient (RemoteRejected, non-5xx) error.
func WithRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !errs.Transient(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
		}
	}
	return lastErr
}

// Package gatewayclient is the narrow collaborator spec §6 scopes out of
// this module's core: an auto-reconnecting WebSocket duplex channel to
// the control plane's realtime gateway, whose only job is to turn
// inbound command frames into reconciler.Hint values. It never carries
// declared state itself.
//
// Grounded on the teacher's handlers/camera_handler.go WebRTC signaling
// handler, the only place in the corpus that speaks gorilla/websocket,
// generalized from a server-side upgrade to a client-side dialer with
// reconnect/backoff.
package gatewayclient

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/beachvar/stream-supervisor/internal/logging"
)

// HintSink receives a decoded command frame. cmd/agent's hintAdapter
// implements this by forwarding to reconciler.HandleHint.
type HintSink interface {
	HandleHint(kind, cameraID string)
}

type frame struct {
	Type     string `json:"type"`
	CameraID string `json:"camera_id"`
}

type Client struct {
	url    string
	token  string
	sink   HintSink
	logger *logging.Logger

	minBackoff time.Duration
	maxBackoff time.Duration
}

func New(gatewayURL, deviceToken string, sink HintSink, logger *logging.Logger) *Client {
	return &Client{
		url:        gatewayURL,
		token:      deviceToken,
		sink:       sink,
		logger:     logger,
		minBackoff: 1 * time.Second,
		maxBackoff: 30 * time.Second,
	}
}

// Run dials and redials the gateway until ctx is cancelled, doubling the
// reconnect backoff after every attempt up to maxBackoff. The backoff is
// not reset after a connection succeeds, so once it reaches maxBackoff
// it stays there.
func (c *Client) Run(ctx context.Context) {
	backoff := c.minBackoff
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := c.runOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			c.logger.Warn("gatewayclient: connection lost: %v, retrying in %s", err, backoff)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}
}

func (c *Client) runOnce(ctx context.Context) error {
	u, err := url.Parse(c.url)
	if err != nil {
		return err
	}
	q := u.Query()
	q.Set("token", c.token)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		_ = conn.Close()
		close(done)
	}()

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return err
		}
		c.sink.HandleHint(f.Type, f.CameraID)
	}
}

// Send pushes an outbound status frame best-effort; the gateway is
// never required for correctness so send failures are logged only.
func (c *Client) Send(conn *websocket.Conn, payload any) {
	b, err := json.Marshal(payload)
	if err != nil {
		c.logger.Warn("gatewayclient: encoding frame: %v", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		c.logger.Warn("gatewayclient: send failed: %v", err)
	}
}

// Package streamclient consumes a push-stream channel: it holds the
// long-lived connection open, decodes line-delimited event frames, and
// reconnects with exponential backoff when the stream drops.
package streamclient

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrSessionInvalidated is returned by Run when the server pushes
// session_invalidated: the session was taken over by another login and
// reconnecting with the same token is pointless.
var ErrSessionInvalidated = errors.New("session invalidated by server")

// Frame is one decoded push event.
type Frame struct {
	Type           string          `json:"type"`
	Notification   json.RawMessage `json:"notification,omitempty"`
	NotificationID *int64          `json:"notification_id,omitempty"`
}

const (
	TypeConnected           = "connected"
	TypeNewNotification     = "new_notification"
	TypeNotificationDeleted = "notification_deleted"
	TypeSessionInvalidated  = "session_invalidated"
)

// Handler receives every decoded frame, including the connected ack.
type Handler func(Frame)

type Client struct {
	BaseURL string
	// Channel is "session" or "notifications".
	Channel string
	UserID  int64
	Token   string

	// HTTPClient defaults to http.DefaultClient. It must not set a
	// Timeout; the stream is expected to stay open indefinitely.
	HTTPClient *http.Client

	// InitialBackoff and MaxBackoff bound the reconnect delay. Defaults:
	// 1s and 30s.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (c *Client) streamURL() string {
	q := url.Values{}
	q.Set("userId", strconv.FormatInt(c.UserID, 10))
	q.Set("sessionToken", c.Token)
	return fmt.Sprintf("%s/v1/stream/%s?%s", c.BaseURL, c.Channel, q.Encode())
}

// Run connects and dispatches frames until ctx is canceled or the session
// is invalidated. Any other disconnect, including a refused connection, is
// retried after a backoff delay; a successful reconnect resets the delay.
func (c *Client) Run(ctx context.Context, handler Handler) error {
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	b := backoff.NewExponentialBackOff()
	if c.InitialBackoff > 0 {
		b.InitialInterval = c.InitialBackoff
	}
	b.MaxInterval = 30 * time.Second
	if c.MaxBackoff > 0 {
		b.MaxInterval = c.MaxBackoff
	}
	b.MaxElapsedTime = 0
	b.Reset()

	for {
		err := c.consume(ctx, httpClient, b, handler)
		if errors.Is(err, ErrSessionInvalidated) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.NextBackOff()):
		}
	}
}

// consume holds one connection open and dispatches its frames.
func (c *Client) consume(ctx context.Context, httpClient *http.Client, b *backoff.ExponentialBackOff, handler Handler) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.streamURL(), nil)
	if err != nil {
		return err
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stream returned status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var frame Frame
		if err := json.Unmarshal(line, &frame); err != nil {
			return fmt.Errorf("decoding frame: %w", err)
		}

		switch frame.Type {
		case TypeConnected:
			// Liveness resumed; start the backoff schedule over.
			b.Reset()
		case TypeSessionInvalidated:
			return ErrSessionInvalidated
		}
		handler(frame)
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return errors.New("stream closed by server")
}

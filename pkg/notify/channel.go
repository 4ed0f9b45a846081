// Package notify delivers low-salt alerts to the user's phone over Bark,
// ntfy and Telegram.
package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// HTTPClient is satisfied by *http.Client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Channel is one push notification service.
type Channel interface {
	Name() string
	// Enabled reports whether the channel is switched on and has the
	// credentials it needs.
	Enabled() bool
	Send(ctx context.Context, title, body string) error
}

// StatusError is returned when a service answers with a non-200 status.
type StatusError struct {
	Channel string
	Code    int
	Body    string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Channel, e.Code)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Channel, e.Code, e.Body)
}

func do(client HTTPClient, channel string, req *http.Request) error {
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return &StatusError{Channel: channel, Code: resp.StatusCode, Body: string(b)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

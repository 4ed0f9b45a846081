package client

import (
	"bufio"
	"context"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/saltlevel/pkg/events"
)

// SubscribeEvents streams daemon events until ctx is done or the daemon
// closes the stream. The returned channel is closed at the end.
func (c *Client) SubscribeEvents(ctx context.Context) <-chan events.Event {
	out := make(chan events.Event, 16)

	go func() {
		defer close(out)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/events", nil)
		if err != nil {
			logrus.WithError(err).Error("failed to create events request")
			return
		}
		req.Header.Set("Accept", "text/event-stream")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() == nil {
				logrus.WithError(err).Error("failed to subscribe to events")
			}
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			logrus.WithField("statusCode", resp.StatusCode).Error("failed to subscribe to events")
			return
		}

		readEvents(ctx, bufio.NewScanner(resp.Body), out)
	}()

	return out
}

// readEvents parses a text/event-stream. Only the event and data fields
// are used.
func readEvents(ctx context.Context, sc *bufio.Scanner, out chan<- events.Event) {
	var (
		name string
		data strings.Builder
	)

	for sc.Scan() {
		line := sc.Text()

		if line == "" {
			if name != "" || data.Len() > 0 {
				ev := events.Event{Name: name, Data: []byte(data.String())}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
			name = ""
			data.Reset()
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			name = value
		case "data":
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(value)
		}
	}

	if err := sc.Err(); err != nil && ctx.Err() == nil {
		logrus.WithError(err).Warn("event stream ended")
	}
}

package client

import (
	"bufio"
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sailmode/sail/pkg/events"
)

// SubscribeEvents tails the daemon's /events SSE stream. The returned
// channel closes when the context is canceled or the stream drops;
// callers that want to survive daemon restarts reconnect in a loop.
func (c *Client) SubscribeEvents(ctx context.Context) <-chan events.Event {
	ch := make(chan events.Event, 16)

	go func() {
		defer close(ch)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://unix/events", nil)
		if err != nil {
			logrus.Errorf("failed to create events request: %v", err)
			return
		}
		req.Header.Set("Accept", "text/event-stream")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			logrus.Errorf("failed to subscribe to events: %v", err)
			return
		}
		defer func() {
			if err := resp.Body.Close(); err != nil {
				logrus.Errorf("failed to close event stream: %v", err)
			}
		}()

		if resp.StatusCode != http.StatusOK {
			logrus.Errorf("event stream returned %d", resp.StatusCode)
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		var name string
		var data string
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "event:"):
				name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			case line == "":
				// Blank line terminates one event.
				if name == "" && data == "" {
					continue
				}
				ev := events.Event{Name: name, Data: []byte(data)}
				name, data = "", ""
				select {
				case ch <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			logrus.Errorf("event stream ended: %v", err)
		}
	}()

	return ch
}

// WaitForEvent blocks until an event with the given name arrives or
// the timeout passes. Convenience for scripts.
func (c *Client) WaitForEvent(ctx context.Context, name string, timeout time.Duration) (events.Event, bool) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for ev := range c.SubscribeEvents(ctx) {
		if ev.Name == name {
			return ev, true
		}
	}
	return events.Event{}, false
}

package client

import (
	"context"
	"strings"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Event is a state-change notification pushed by the server.
type Event struct {
	Type    string `json:"type"`
	Version int64  `json:"version,omitempty"`
	ID      string `json:"id,omitempty"`
}

// Watch opens the state event stream and delivers events until the
// context is cancelled or the connection drops, at which point the
// channel is closed. Callers re-read the state on each event instead of
// polling.
func (c *Client) Watch(ctx context.Context) (<-chan Event, error) {
	wsURL := strings.Replace(c.BaseURL, "http", "ws", 1) + "/ws/state"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, err
	}

	events := make(chan Event)
	go func() {
		defer close(events)
		defer conn.Close(websocket.StatusNormalClosure, "done")
		for {
			var ev Event
			if err := wsjson.Read(ctx, conn, &ev); err != nil {
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}

package clipfeed

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/haileyok/clipfeed/models"
)

// RealtimeEvent is one record mutation broadcast by the gateway.
type RealtimeEvent struct {
	Seq    int64  `json:"seq"`
	Action string `json:"action"`
	Kind   string `json:"kind"`
	PostID string `json:"post_id"`
}

// startRealtime consumes the gateway's record event stream and refreshes
// cached posts when their comments or likes change remotely. Refreshing
// wholesale on every event keeps the cache's replace-never-patch
// contract intact.
func (c *Client) startRealtime(ctx context.Context) error {
	if c.cursorFile != "" {
		go func() {
			ticker := time.NewTicker(5 * time.Second)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := os.WriteFile(c.cursorFile, []byte(c.cursor), 0644); err != nil {
						c.logger.Error("error saving cursor", "error", err)
					}
					c.logger.Debug("saving cursor", "seq", c.cursor)
				}
			}
		}()

		prevCursor, err := c.loadCursor()
		if err != nil {
			if !os.IsNotExist(err) {
				return err
			}
		} else {
			c.cursor = prevCursor
		}
	}

	u, err := url.Parse(c.realtimeHost)
	if err != nil {
		return err
	}
	u.Path = "/v1/realtime"
	if c.cursor != "" {
		u.RawQuery = "cursor=" + c.cursor
	}

	d := websocket.DefaultDialer

	c.logger.Info("connecting to realtime stream", "url", u.String())

	con, _, err := d.Dial(u.String(), http.Header{
		"user-agent": []string{"clipfeed/0.0.0"},
	})
	if err != nil {
		return fmt.Errorf("failed to connect to realtime stream: %w", err)
	}

	go func() {
		<-ctx.Done()
		con.Close()
	}()

	for {
		var evt RealtimeEvent
		if err := con.ReadJSON(&evt); err != nil {
			if ctx.Err() != nil {
				c.logger.Info("realtime stream shut down")
				return nil
			}
			return fmt.Errorf("realtime stream read failed: %w", err)
		}
		go c.handleEvent(ctx, evt)
	}
}

func (c *Client) handleEvent(ctx context.Context, evt RealtimeEvent) {
	c.cursor = fmt.Sprintf("%d", evt.Seq)

	if c.eventsCounter != nil {
		c.eventsCounter.WithLabelValues(evt.Kind, evt.Action).Inc()
	}

	if evt.PostID == "" || !c.cache.Tracked(evt.PostID) {
		return
	}

	switch evt.Kind {
	case models.KindComment:
		if err := c.cache.RefreshComments(ctx, evt.PostID); err != nil {
			c.logger.Error("error refreshing comments from realtime event", "post", evt.PostID, "error", err)
		}
	case models.KindLike:
		if err := c.cache.RefreshLikes(ctx, evt.PostID); err != nil {
			c.logger.Error("error refreshing likes from realtime event", "post", evt.PostID, "error", err)
		}
	}
}

func (c *Client) loadCursor() (string, error) {
	b, err := os.ReadFile(c.cursorFile)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/xraph/mediaq/stream"
)

// errStreamDone ends a watch after a terminal or error event.
var errStreamDone = errors.New("stream done")

// Watch streams lifecycle events of a job. The first event is a snapshot
// of the current state. The channel is closed after a terminal event, a
// watch.error event, ctx cancellation, or a read failure that could not
// be recovered by reconnecting.
func (c *Client) Watch(ctx context.Context, jobID string) (<-chan *stream.Event, error) {
	codec, err := stream.CodecByName(c.format)
	if err != nil {
		return nil, fmt.Errorf("mediaq/client: %w", err)
	}

	conn, err := c.dial(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("mediaq/client: watch: %w", err)
	}

	ch := make(chan *stream.Event, 16)
	go c.watchLoop(ctx, conn, jobID, codec, ch)
	return ch, nil
}

func (c *Client) watchURL(jobID string) string {
	base := c.baseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/v1/jobs/" + jobID + "/watch?format=" + c.format
}

func (c *Client) dial(ctx context.Context, jobID string) (net.Conn, error) {
	conn, _, _, err := ws.Dial(ctx, c.watchURL(jobID))
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return conn, nil
}

func (c *Client) watchLoop(ctx context.Context, conn net.Conn, jobID string, codec stream.Codec, ch chan<- *stream.Event) {
	defer close(ch)

	for {
		err := c.readEvents(ctx, conn, codec, ch)
		_ = conn.Close()
		if errors.Is(err, errStreamDone) || ctx.Err() != nil {
			return
		}

		c.logger.Warn("watch stream dropped",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		if !c.reconnect {
			return
		}
		next, ok := c.redial(ctx, jobID)
		if !ok {
			return
		}
		conn = next
	}
}

// readEvents forwards decoded frames from conn until the stream ends.
func (c *Client) readEvents(ctx context.Context, conn net.Conn, codec stream.Codec, ch chan<- *stream.Event) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		data, _, err := wsutil.ReadServerData(conn)
		if err != nil {
			return err
		}
		evt, err := codec.Decode(data)
		if err != nil {
			c.logger.Warn("watch: invalid frame", slog.String("error", err.Error()))
			continue
		}

		select {
		case ch <- evt:
		case <-ctx.Done():
			return ctx.Err()
		}
		if evt.Terminal() || evt.Type == stream.EventWatchError {
			return errStreamDone
		}
	}
}

func (c *Client) redial(ctx context.Context, jobID string) (net.Conn, bool) {
	delay := c.baseDelay
	for attempt := range c.maxRetries {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, false
		}

		conn, err := c.dial(ctx, jobID)
		if err == nil {
			c.logger.Info("watch reconnected", slog.String("job_id", jobID))
			return conn, true
		}
		c.logger.Warn("watch reconnect failed",
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)
		delay = min(delay*2, 30*time.Second)
	}
	c.logger.Error("watch: max reconnection attempts reached", slog.String("job_id", jobID))
	return nil, false
}

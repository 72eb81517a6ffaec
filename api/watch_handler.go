package api

import (
	"context"
	"errors"
	"log/slog"

	"github.com/xraph/forge"

	"github.com/xraph/mediaq"
	"github.com/xraph/mediaq/id"
	"github.com/xraph/mediaq/stream"
)

// watchJob sends the current snapshot of jobID followed by its lifecycle
// events until a terminal event, ctx is done or send fails. The broker
// subscription is taken before the snapshot is read so no event between
// the two is lost. A terminal event is never dropped by the broker, so the
// stream always ends.
func (a *API) watchJob(ctx context.Context, jobID id.JobID, send func(*stream.Event) error) error {
	broker := a.eng.Broker()
	sub := broker.SubscribeJob(jobID)
	defer broker.RemoveSubscriber(sub.ID())

	j, err := a.eng.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if err := send(stream.NewJobEvent(stream.EventJobSnapshot, j)); err != nil {
		return err
	}
	if j.Status.IsTerminal() {
		return nil
	}

	var dropped int64
	for {
		select {
		case evt, ok := <-sub.C():
			if !ok {
				return nil
			}
			sub.AddCredits(1)
			// After a gap the buffered event may be stale; send the
			// current state instead.
			if d := sub.Dropped(); d > dropped && !evt.Terminal() {
				dropped = d
				cur, err := a.eng.Get(ctx, jobID)
				if err != nil {
					return err
				}
				evt = stream.NewJobEvent(stream.EventJobSnapshot, cur)
			}
			if err := send(evt); err != nil {
				return err
			}
			if evt.Terminal() {
				return nil
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// watchWebSocket streams job events over a WebSocket. ?format=msgpack
// selects binary MessagePack frames; the default is JSON text frames.
func (a *API) watchWebSocket(ctx forge.Context, conn forge.Connection) error {
	codec, err := stream.CodecByName(ctx.Query("format"))
	if err != nil {
		//nolint:errcheck // best-effort error before disconnect
		conn.WriteJSON(stream.NewWatchError(ctx.Param("jobId"), err.Error()))
		return nil
	}

	send := func(evt *stream.Event) error {
		if codec.Name() == stream.CodecNameJSON {
			return conn.WriteJSON(evt)
		}
		data, encErr := codec.Encode(evt)
		if encErr != nil {
			return encErr
		}
		return conn.Write(data)
	}

	raw := ctx.Param("jobId")
	jobID, err := id.ParseJobID(raw)
	if err != nil {
		//nolint:errcheck // best-effort error before disconnect
		send(stream.NewWatchError(raw, "job not found"))
		return nil
	}

	err = a.watchJob(ctx.Context(), jobID, send)
	if errors.Is(err, mediaq.ErrJobNotFound) {
		//nolint:errcheck // best-effort error before disconnect
		send(stream.NewWatchError(raw, "job not found"))
		return nil
	}
	if err != nil {
		a.logger.Debug("job watch ended", slog.String("job_id", raw), slog.String("error", err.Error()))
	}
	return nil
}

// watchSSE streams job events as Server-Sent Events named by event type.
func (a *API) watchSSE(ctx forge.Context, sse forge.Stream) error {
	send := func(evt *stream.Event) error {
		if err := sse.SendJSON(string(evt.Type), evt); err != nil {
			return err
		}
		return sse.Flush()
	}

	raw := ctx.Param("jobId")
	jobID, err := id.ParseJobID(raw)
	if err != nil {
		return send(stream.NewWatchError(raw, "job not found"))
	}

	err = a.watchJob(sse.Context(), jobID, send)
	if errors.Is(err, mediaq.ErrJobNotFound) {
		return send(stream.NewWatchError(raw, "job not found"))
	}
	return err
}

// Package stream fans job lifecycle events out to live subscribers such as
// WebSocket and SSE watchers. The Broker is an ext.Extension, so it sees
// exactly the events the engine emits.
package stream

import (
	"time"

	"github.com/xraph/mediaq/job"
)

// EventType identifies the kind of lifecycle event.
type EventType string

const (
	EventJobCreated   EventType = "job.created"
	EventJobEnqueued  EventType = "job.enqueued"
	EventJobStarted   EventType = "job.started"
	EventJobProgress  EventType = "job.progress"
	EventJobSucceeded EventType = "job.succeeded"
	EventJobRetrying  EventType = "job.retrying"
	EventJobFailed    EventType = "job.failed"

	// EventJobSnapshot is never published by the broker. Watch endpoints
	// send it first so a subscriber starts from the current state.
	EventJobSnapshot EventType = "job.snapshot"

	// EventWatchError ends a watch that cannot be served, for example
	// because the job does not exist. Data.Error holds the reason.
	EventWatchError EventType = "watch.error"
)

// Event is the envelope sent to subscribers.
type Event struct {
	Type      EventType    `json:"type" msgpack:"type"`
	Timestamp time.Time    `json:"ts" msgpack:"ts"`
	Topic     string       `json:"topic" msgpack:"topic"`
	Data      JobEventData `json:"data" msgpack:"data"`
}

// Terminal reports whether the event carries a terminal job status. A
// watcher can stop reading after it.
func (e *Event) Terminal() bool {
	return e.Data.Status.IsTerminal()
}

// JobEventData is the job state carried by every event.
type JobEventData struct {
	JobID       string     `json:"job_id" msgpack:"job_id"`
	Kind        job.Kind   `json:"kind" msgpack:"kind"`
	Status      job.Status `json:"status" msgpack:"status"`
	Progress    int        `json:"progress" msgpack:"progress"`
	Message     string     `json:"message" msgpack:"message"`
	Attempt     int        `json:"attempt" msgpack:"attempt"`
	MaxAttempts int        `json:"max_attempts" msgpack:"max_attempts"`
	Error       string     `json:"error,omitempty" msgpack:"error,omitempty"`
	DelayMs     int64      `json:"delay_ms,omitempty" msgpack:"delay_ms,omitempty"`
	ElapsedMs   int64      `json:"elapsed_ms,omitempty" msgpack:"elapsed_ms,omitempty"`
}

// NewJobEvent builds an event for j on its job topic.
func NewJobEvent(typ EventType, j *job.Job) *Event {
	data := JobEventData{
		JobID:       j.ID.String(),
		Kind:        j.Kind,
		Status:      j.Status,
		Progress:    j.Progress,
		Message:     j.Message,
		Attempt:     j.Attempt,
		MaxAttempts: j.MaxAttempts,
	}
	if j.LastError != nil {
		data.Error = j.LastError.Message
	}
	return &Event{
		Type:      typ,
		Timestamp: time.Now().UTC(),
		Topic:     JobTopic(data.JobID),
		Data:      data,
	}
}

// NewWatchError builds the event that ends a failed watch.
func NewWatchError(jobID, reason string) *Event {
	return &Event{
		Type:      EventWatchError,
		Timestamp: time.Now().UTC(),
		Topic:     JobTopic(jobID),
		Data:      JobEventData{JobID: jobID, Error: reason},
	}
}

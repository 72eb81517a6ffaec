package job_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/xraph/mediaq/job"
)

type audioInput struct {
	Path string `json:"path"`
}

type transcript struct {
	Text string `json:"text"`
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := job.NewRegistry()

	var got audioInput
	def := job.NewDefinition("audio", func(_ context.Context, in audioInput) (*transcript, error) {
		got = in
		return &transcript{Text: "hello"}, nil
	})
	job.RegisterDefinition(r, def)

	h, ok := r.Get("audio")
	if !ok {
		t.Fatal("expected handler to be registered")
	}

	payload, _ := json.Marshal(audioInput{Path: "/tmp/a.wav"})
	out, err := h(context.Background(), payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Path != "/tmp/a.wav" {
		t.Errorf("Path = %q, want %q", got.Path, "/tmp/a.wav")
	}
	var res transcript
	if err := json.Unmarshal(out, &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.Text != "hello" {
		t.Errorf("Text = %q, want %q", res.Text, "hello")
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := job.NewRegistry()
	if _, ok := r.Get("nonexistent"); ok {
		t.Fatal("expected no handler for unregistered kind")
	}
}

func TestRegistry_Kinds(t *testing.T) {
	r := job.NewRegistry()
	noop := func(_ context.Context, _ struct{}) (struct{}, error) { return struct{}{}, nil }

	job.RegisterDefinition(r, job.NewDefinition("video", noop))
	job.RegisterDefinition(r, job.NewDefinition("audio", noop))
	r.Register("raw", func(_ context.Context, p []byte) ([]byte, error) { return p, nil })

	kinds := r.Kinds()
	want := []job.Kind{"audio", "raw", "video"}
	if len(kinds) != len(want) {
		t.Fatalf("expected %d kinds, got %d", len(want), len(kinds))
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("kinds[%d] = %q, want %q", i, kinds[i], want[i])
		}
	}
}

func TestRegistry_InvalidPayloadIsPermanent(t *testing.T) {
	r := job.NewRegistry()
	job.RegisterDefinition(r, job.NewDefinition("audio", func(_ context.Context, _ audioInput) (struct{}, error) {
		t.Fatal("handler should not be called with invalid JSON")
		return struct{}{}, nil
	}))

	h, _ := r.Get("audio")
	_, err := h(context.Background(), []byte("not json"))
	if err == nil {
		t.Fatal("expected error for invalid JSON payload")
	}
	if !job.IsPermanent(err) {
		t.Errorf("decode error should be permanent, got %v", err)
	}
}

func TestRegistry_HandlerErrorPassesThrough(t *testing.T) {
	r := job.NewRegistry()
	sentinel := errors.New("gpu busy")
	job.RegisterDefinition(r, job.NewDefinition("video", func(_ context.Context, _ struct{}) (struct{}, error) {
		return struct{}{}, sentinel
	}))

	h, _ := r.Get("video")
	_, err := h(context.Background(), nil)
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected handler error, got %v", err)
	}
	if job.IsPermanent(err) {
		t.Error("untagged handler error should be transient")
	}
}

func TestRegistry_Defaults(t *testing.T) {
	r := job.NewRegistry()
	job.RegisterDefinition(r, job.NewDefinition("audio",
		func(_ context.Context, _ struct{}) (struct{}, error) { return struct{}{}, nil },
		job.WithMaxAttempts(5),
	))

	opts, ok := r.Defaults("audio")
	if !ok {
		t.Fatal("expected defaults for registered kind")
	}
	if j := job.New("audio", nil, opts...); j.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", j.MaxAttempts)
	}
	if _, ok := r.Defaults("video"); ok {
		t.Error("unregistered kind should have no defaults")
	}
}

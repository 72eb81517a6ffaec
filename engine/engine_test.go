package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	gu "github.com/xraph/go-utils/metrics"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/xraph/mediaq"
	"github.com/xraph/mediaq/backoff"
	"github.com/xraph/mediaq/engine"
	"github.com/xraph/mediaq/id"
	"github.com/xraph/mediaq/job"
	"github.com/xraph/mediaq/stream"
)

type audioInput struct {
	FilePath string `json:"file_path"`
}

type transcript struct {
	Text string `json:"text"`
}

func newEngine(t *testing.T, opts ...engine.Option) *engine.Engine {
	t.Helper()
	cfg := mediaq.DefaultConfig()
	cfg.Concurrency = 2
	base := []engine.Option{
		engine.WithConfig(cfg),
		engine.WithBackoff(backoff.NewConstant(5 * time.Millisecond)),
		engine.WithMetricFactory(gu.NewMetricsCollector("test")),
	}
	eng, err := engine.New(append(base, opts...)...)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = eng.Shutdown(ctx)
	})
	return eng
}

func await(t *testing.T, eng *engine.Engine, jobID id.JobID) *job.Job {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	j, err := eng.Await(ctx, jobID)
	if err != nil {
		t.Fatalf("await %s: %v", jobID, err)
	}
	return j
}

func TestEngine_EndToEnd(t *testing.T) {
	eng := newEngine(t)
	engine.Register(eng, job.NewDefinition(job.KindAudio,
		func(ctx context.Context, in audioInput) (transcript, error) {
			job.ReportProgress(ctx, 50, "Transcribing")
			return transcript{Text: "hello from " + in.FilePath}, nil
		}))

	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	j, err := engine.Enqueue(context.Background(), eng, job.KindAudio, audioInput{FilePath: "a.wav"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if j.Status != job.StatusQueued || j.Attempt != 0 || j.MaxAttempts != 3 {
		t.Errorf("new job = %s attempt %d/%d", j.Status, j.Attempt, j.MaxAttempts)
	}

	final := await(t, eng, j.ID)
	if final.Status != job.StatusSucceeded || final.Attempt != 1 {
		t.Fatalf("final = %s at attempt %d", final.Status, final.Attempt)
	}

	raw, err := eng.Result(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	var out transcript
	if err := json.Unmarshal(raw, &out); err != nil || out.Text != "hello from a.wav" {
		t.Errorf("result = %s (%v)", raw, err)
	}

	m := eng.Metrics()
	if m.JobCreated.Value() != 1 || m.JobStarted.Value() != 1 || m.JobSucceeded.Value() != 1 {
		t.Errorf("counters created=%v started=%v succeeded=%v",
			m.JobCreated.Value(), m.JobStarted.Value(), m.JobSucceeded.Value())
	}
}

func TestEngine_ResultStates(t *testing.T) {
	eng := newEngine(t)
	release := make(chan struct{})
	eng.RegisterFunc(job.KindVideo, func(_ context.Context, payload []byte) ([]byte, error) {
		<-release
		if string(payload) == `"bad"` {
			return nil, job.Permanentf("video file is empty")
		}
		return []byte(`{"objects":1}`), nil
	})
	if err := eng.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	good, err := engine.Enqueue(ctx, eng, job.KindVideo, "good")
	if err != nil {
		t.Fatal(err)
	}
	bad, err := engine.Enqueue(ctx, eng, job.KindVideo, "bad")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := eng.Result(ctx, good.ID); !errors.Is(err, mediaq.ErrJobNotCompleted) {
		t.Errorf("in-flight result: got %v, want ErrJobNotCompleted", err)
	}
	close(release)

	await(t, eng, good.ID)
	failed := await(t, eng, bad.ID)
	if failed.Status != job.StatusFailed || failed.Attempt != 1 {
		t.Fatalf("bad job = %s at attempt %d", failed.Status, failed.Attempt)
	}

	_, err = eng.Result(ctx, bad.ID)
	var fe *job.FailedError
	if !errors.As(err, &fe) || !errors.Is(err, mediaq.ErrJobFailed) {
		t.Fatalf("failed result: got %v", err)
	}
	if fe.Failure == nil || fe.Failure.Message != "video file is empty" {
		t.Errorf("failure = %+v", fe.Failure)
	}

	if _, err := eng.Result(ctx, good.ID); err != nil {
		t.Errorf("succeeded result: %v", err)
	}
}

func TestEngine_NotFound(t *testing.T) {
	eng := newEngine(t)
	ctx := context.Background()
	missing := id.NewJobID()

	if _, err := eng.Get(ctx, missing); !errors.Is(err, mediaq.ErrJobNotFound) {
		t.Errorf("Get: got %v", err)
	}
	if _, err := eng.Result(ctx, missing); !errors.Is(err, mediaq.ErrJobNotFound) {
		t.Errorf("Result: got %v", err)
	}
	if _, err := eng.Await(ctx, missing); !errors.Is(err, mediaq.ErrJobNotFound) {
		t.Errorf("Await: got %v", err)
	}
	if err := eng.Submit(ctx, missing); !errors.Is(err, mediaq.ErrJobNotFound) {
		t.Errorf("Submit: got %v", err)
	}
}

func TestEngine_OptionPrecedence(t *testing.T) {
	cfg := mediaq.DefaultConfig()
	cfg.MaxAttempts = 7
	eng := newEngine(t, engine.WithConfig(cfg))
	eng.RegisterFunc(job.KindAudio, nil, job.WithMaxAttempts(2))

	if j := eng.NewJob(job.KindVideo, nil); j.MaxAttempts != 7 {
		t.Errorf("config default: got %d, want 7", j.MaxAttempts)
	}
	if j := eng.NewJob(job.KindAudio, nil); j.MaxAttempts != 2 {
		t.Errorf("kind default: got %d, want 2", j.MaxAttempts)
	}
	if j := eng.NewJob(job.KindAudio, nil, job.WithMaxAttempts(5)); j.MaxAttempts != 5 {
		t.Errorf("caller option: got %d, want 5", j.MaxAttempts)
	}
}

func TestEngine_SubmitRejectsNonQueued(t *testing.T) {
	eng := newEngine(t)
	eng.RegisterFunc(job.KindAudio, func(_ context.Context, _ []byte) ([]byte, error) {
		return []byte(`{}`), nil
	})
	if err := eng.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	j, err := eng.EnqueueRaw(ctx, job.KindAudio, nil)
	if err != nil {
		t.Fatal(err)
	}
	final := await(t, eng, j.ID)

	if err := eng.Submit(ctx, j.ID); !errors.Is(err, mediaq.ErrInvalidTransition) {
		t.Errorf("resubmit: got %v, want ErrInvalidTransition", err)
	}
	if err := eng.Create(ctx, final); !errors.Is(err, mediaq.ErrInvalidTransition) {
		t.Errorf("create of mutated snapshot: got %v", err)
	}
	fresh := eng.NewJob(job.KindAudio, nil)
	if err := eng.Create(ctx, fresh); err != nil {
		t.Fatal(err)
	}
	if err := eng.Create(ctx, fresh); !errors.Is(err, mediaq.ErrJobAlreadyExists) {
		t.Errorf("duplicate create: got %v", err)
	}
}

func TestEngine_AwaitBeforeAndAfterCompletion(t *testing.T) {
	eng := newEngine(t)
	var calls atomic.Int32
	eng.RegisterFunc(job.KindAudio, func(_ context.Context, _ []byte) ([]byte, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("model busy")
		}
		return []byte(`"ok"`), nil
	})

	ctx := context.Background()
	j := eng.NewJob(job.KindAudio, nil)
	if err := eng.Create(ctx, j); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	early := make([]*job.Job, 5)
	for i := range early {
		wg.Add(1)
		go func() {
			defer wg.Done()
			early[i] = await(t, eng, j.ID)
		}()
	}

	if err := eng.Submit(ctx, j.ID); err != nil {
		t.Fatal(err)
	}
	if err := eng.Start(ctx); err != nil {
		t.Fatal(err)
	}
	wg.Wait()
	late := await(t, eng, j.ID)

	for i, got := range early {
		if got.Status != late.Status || got.Attempt != late.Attempt || string(got.Result) != string(late.Result) {
			t.Errorf("waiter %d saw %s/%d, late saw %s/%d", i, got.Status, got.Attempt, late.Status, late.Attempt)
		}
	}
	if late.Attempt != 2 || late.Status != job.StatusSucceeded {
		t.Errorf("final = %s at attempt %d", late.Status, late.Attempt)
	}
}

func TestEngine_ShutdownReleasesWaiters(t *testing.T) {
	eng := newEngine(t, engine.WithBackoff(backoff.NewConstant(time.Hour)))
	eng.RegisterFunc(job.KindVideo, func(_ context.Context, _ []byte) ([]byte, error) {
		return nil, errors.New("gpu busy")
	})
	if err := eng.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	j, err := eng.EnqueueRaw(context.Background(), job.KindVideo, nil)
	if err != nil {
		t.Fatal(err)
	}

	type result struct {
		j   *job.Job
		err error
	}
	done := make(chan result, 1)
	go func() {
		got, err := eng.Await(context.Background(), j.ID)
		done <- result{got, err}
	}()

	deadline := time.After(5 * time.Second)
	for eng.Stats().Pool.RetriesWaiting == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for retry to be scheduled")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := eng.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	select {
	case r := <-done:
		if !errors.Is(r.err, mediaq.ErrPoolStopped) {
			t.Errorf("await err = %v, want ErrPoolStopped", r.err)
		}
		if r.j == nil || r.j.Status != job.StatusRetrying {
			t.Errorf("await snapshot = %+v, want retrying", r.j)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was not released by shutdown")
	}

	if err := eng.Submit(context.Background(), j.ID); err == nil {
		t.Error("submit after shutdown should fail")
	}
	if err := eng.Start(context.Background()); !errors.Is(err, mediaq.ErrPoolStopped) {
		t.Errorf("restart: got %v", err)
	}
	if err := eng.Shutdown(ctx); err != nil {
		t.Errorf("second shutdown: %v", err)
	}
}

func TestEngine_Ping(t *testing.T) {
	eng := newEngine(t)
	ctx := context.Background()
	if err := eng.Ping(ctx); !errors.Is(err, mediaq.ErrNotStarted) {
		t.Errorf("before start: %v", err)
	}
	if err := eng.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := eng.Ping(ctx); err != nil {
		t.Errorf("running: %v", err)
	}
	if err := eng.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}
	if err := eng.Ping(ctx); !errors.Is(err, mediaq.ErrPoolStopped) {
		t.Errorf("after shutdown: %v", err)
	}
}

func TestEngine_ListAndCounts(t *testing.T) {
	eng := newEngine(t)
	ctx := context.Background()
	for _, k := range []job.Kind{job.KindAudio, job.KindVideo, job.KindAudio} {
		if err := eng.Create(ctx, eng.NewJob(k, nil)); err != nil {
			t.Fatal(err)
		}
	}

	audio, err := eng.List(ctx, job.ListOpts{Kind: job.KindAudio})
	if err != nil {
		t.Fatal(err)
	}
	if len(audio) != 2 {
		t.Errorf("audio jobs = %d, want 2", len(audio))
	}

	counts, err := eng.Counts(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if counts[job.StatusQueued] != 3 || counts[job.StatusSucceeded] != 0 {
		t.Errorf("counts = %v", counts)
	}
}

func TestEngine_SubmitRateLimit(t *testing.T) {
	eng := newEngine(t, engine.WithSubmitRate(1, 1))
	ctx := context.Background()

	first := eng.NewJob(job.KindAudio, nil)
	second := eng.NewJob(job.KindAudio, nil)
	for _, j := range []*job.Job{first, second} {
		if err := eng.Create(ctx, j); err != nil {
			t.Fatal(err)
		}
	}
	if err := eng.Submit(ctx, first.ID); err != nil {
		t.Fatalf("first submit: %v", err)
	}

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := eng.Submit(short, second.ID); err == nil {
		t.Error("second submit should be throttled")
	}
}

func TestEngine_EnqueueRejectedLeavesNoJob(t *testing.T) {
	t.Run("rate limited", func(t *testing.T) {
		eng := newEngine(t, engine.WithSubmitRate(0.001, 1))
		ctx := context.Background()
		if _, err := eng.EnqueueRaw(ctx, job.KindAudio, nil); err != nil {
			t.Fatalf("first enqueue: %v", err)
		}

		short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		if _, err := eng.EnqueueRaw(short, job.KindAudio, nil); err == nil {
			t.Fatal("second enqueue should be throttled")
		}

		jobs, err := eng.List(ctx, job.ListOpts{})
		if err != nil {
			t.Fatal(err)
		}
		if len(jobs) != 1 {
			t.Errorf("stored jobs = %d, want 1", len(jobs))
		}
	})

	t.Run("pending channel full", func(t *testing.T) {
		cfg := mediaq.DefaultConfig()
		cfg.QueueSize = 1
		eng := newEngine(t, engine.WithConfig(cfg))
		ctx := context.Background()

		// Not started, so the first ID fills the buffer.
		if _, err := eng.EnqueueRaw(ctx, job.KindAudio, nil); err != nil {
			t.Fatalf("first enqueue: %v", err)
		}
		short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		if _, err := eng.EnqueueRaw(short, job.KindAudio, nil); !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("second enqueue = %v, want DeadlineExceeded", err)
		}

		counts, err := eng.Counts(ctx, "")
		if err != nil {
			t.Fatal(err)
		}
		if counts[job.StatusQueued] != 1 {
			t.Errorf("queued = %d, want 1", counts[job.StatusQueued])
		}
	})
}

func TestEngine_SlowSubscriberStillGetsTerminalEvent(t *testing.T) {
	eng := newEngine(t)
	eng.RegisterFunc(job.KindAudio, func(ctx context.Context, _ []byte) ([]byte, error) {
		for i := range 1100 {
			job.ReportProgress(ctx, i/11, fmt.Sprintf("step %d", i))
		}
		return []byte(`{}`), nil
	})

	ctx := context.Background()
	j := eng.NewJob(job.KindAudio, nil)
	sub := eng.Broker().SubscribeJob(j.ID)
	defer eng.Broker().RemoveSubscriber(sub.ID())

	if err := eng.Create(ctx, j); err != nil {
		t.Fatal(err)
	}
	if err := eng.Submit(ctx, j.ID); err != nil {
		t.Fatal(err)
	}
	if err := eng.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if final := await(t, eng, j.ID); final.Status != job.StatusSucceeded {
		t.Fatalf("status = %s", final.Status)
	}

	// Nothing was read while the job ran, so the buffer overflowed.
	timeout := time.After(5 * time.Second)
	for {
		select {
		case evt, ok := <-sub.C():
			if !ok {
				t.Fatal("subscriber closed before the terminal event")
			}
			if !evt.Terminal() {
				continue
			}
			if evt.Type != stream.EventJobSucceeded {
				t.Errorf("terminal event = %s", evt.Type)
			}
			if sub.Dropped() == 0 {
				t.Error("expected dropped progress events")
			}
			return
		case <-timeout:
			t.Fatalf("terminal event never arrived, dropped=%d", sub.Dropped())
		}
	}
}

func TestEngine_BrokerReceivesJobEvents(t *testing.T) {
	eng := newEngine(t)
	eng.RegisterFunc(job.KindAudio, func(_ context.Context, _ []byte) ([]byte, error) {
		return []byte(`{}`), nil
	})

	ctx := context.Background()
	j := eng.NewJob(job.KindAudio, nil)
	sub := eng.Broker().SubscribeJob(j.ID)
	defer eng.Broker().RemoveSubscriber(sub.ID())

	if err := eng.Create(ctx, j); err != nil {
		t.Fatal(err)
	}
	if err := eng.Submit(ctx, j.ID); err != nil {
		t.Fatal(err)
	}
	if err := eng.Start(ctx); err != nil {
		t.Fatal(err)
	}

	var types []stream.EventType
	timeout := time.After(5 * time.Second)
	for {
		select {
		case evt := <-sub.C():
			types = append(types, evt.Type)
			if evt.Terminal() {
				if types[0] != stream.EventJobCreated || evt.Type != stream.EventJobSucceeded {
					t.Errorf("event sequence = %v", types)
				}
				return
			}
		case <-timeout:
			t.Fatalf("no terminal event; saw %v", types)
		}
	}
}

func TestEngine_TracerProvider(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	eng := newEngine(t, engine.WithTracerProvider(tp))
	eng.RegisterFunc(job.KindVideo, func(_ context.Context, _ []byte) ([]byte, error) {
		return []byte(`{}`), nil
	})
	if err := eng.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	j, err := eng.EnqueueRaw(context.Background(), job.KindVideo, nil)
	if err != nil {
		t.Fatal(err)
	}
	await(t, eng, j.ID)

	spans := recorder.Ended()
	if len(spans) != 1 || spans[0].Name() != "mediaq.job.attempt" {
		t.Errorf("spans = %d", len(spans))
	}
}

package media_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/xraph/mediaq/job"
	"github.com/xraph/mediaq/media"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memRepo struct {
	mu             sync.Mutex
	transcriptions []*media.Transcription
	videos         []*media.Video
}

func (r *memRepo) SaveTranscription(_ context.Context, t *media.Transcription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t.ID = int64(len(r.transcriptions) + 1)
	r.transcriptions = append(r.transcriptions, t)
	return nil
}

func (r *memRepo) SaveVideo(_ context.Context, v *media.Video) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v.ID = int64(len(r.videos) + 1)
	r.videos = append(r.videos, v)
	return nil
}

func (r *memRepo) ListTranscriptions(context.Context) ([]*media.Transcription, error) {
	return r.transcriptions, nil
}

func (r *memRepo) ListVideos(context.Context) ([]*media.Video, error) {
	return r.videos, nil
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

type progressLog struct {
	mu  sync.Mutex
	pct []int
}

func (p *progressLog) Report(pct int, _ string) {
	p.mu.Lock()
	p.pct = append(p.pct, pct)
	p.mu.Unlock()
}

func TestSummarize(t *testing.T) {
	if got := media.Summarize(nil); got != "No objects detected in the video." {
		t.Errorf("empty summary = %q", got)
	}

	got := media.Summarize([]media.Detection{
		{Label: "person", Timestamp: 1},
		{Label: "dog", Timestamp: 2.3},
		{Label: "person", Timestamp: 3.5},
	})
	want := "Detected objects in the video:\n- person at 1.0s, 3.5s\n- dog at 2.3s"
	if got != want {
		t.Errorf("summary =\n%s\nwant\n%s", got, want)
	}
}

func TestAudioProcessor_Success(t *testing.T) {
	repo := &memRepo{}
	tr := media.TranscriberFunc(func(_ context.Context, _ string) (*media.Transcript, error) {
		return &media.Transcript{Text: "  hello world ", Duration: 2.5}, nil
	})
	p := media.NewAudioProcessor(tr, repo, testLogger())

	progress := &progressLog{}
	ctx := job.WithReporter(context.Background(), progress)
	res, err := p.Process(ctx, media.Input{FilePath: writeFile(t, "a.wav", "RIFF"), Filename: "a.wav"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if res.Text != "hello world" || res.TranscriptionID != 1 || res.Message != "Audio processed successfully" {
		t.Errorf("result = %+v", res)
	}
	if len(res.Segments) != 1 || res.Segments[0].End != 2.5 || res.Segments[0].Text != "hello world" {
		t.Errorf("fallback segment = %+v", res.Segments)
	}
	if len(repo.transcriptions) != 1 || repo.transcriptions[0].Filename != "a.wav" {
		t.Errorf("stored = %+v", repo.transcriptions)
	}
	if len(progress.pct) == 0 || progress.pct[0] != 5 || progress.pct[len(progress.pct)-1] != 95 {
		t.Errorf("progress = %v", progress.pct)
	}
}

func TestAudioProcessor_KeepsSegments(t *testing.T) {
	tr := media.TranscriberFunc(func(_ context.Context, _ string) (*media.Transcript, error) {
		return &media.Transcript{Text: "a b", Segments: []media.Segment{
			{Start: 0, End: 1, Text: "a", Confidence: -0.2},
			{Start: 1, End: 2, Text: "b", Confidence: -0.3},
		}}, nil
	})
	p := media.NewAudioProcessor(tr, &memRepo{}, testLogger())

	res, err := p.Process(context.Background(), media.Input{FilePath: writeFile(t, "b.wav", "x"), Filename: "b.wav"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Segments) != 2 {
		t.Errorf("segments = %+v", res.Segments)
	}
}

func TestProcessors_InputErrorsArePermanent(t *testing.T) {
	never := media.TranscriberFunc(func(context.Context, string) (*media.Transcript, error) {
		t.Fatal("transcriber must not run on bad input")
		return nil, nil
	})
	audio := media.NewAudioProcessor(never, &memRepo{}, testLogger())

	tests := []struct {
		name string
		path string
		want error
	}{
		{"no path", "", media.ErrMissingInput},
		{"missing", filepath.Join(t.TempDir(), "gone.wav"), media.ErrMissingInput},
		{"empty", writeFile(t, "empty.wav", ""), media.ErrEmptyInput},
		{"directory", t.TempDir(), media.ErrMissingInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := audio.Process(context.Background(), media.Input{FilePath: tt.path})
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
			if !job.IsPermanent(err) {
				t.Errorf("%v should be permanent", err)
			}
		})
	}
}

func TestAudioProcessor_TranscriberErrorIsTransient(t *testing.T) {
	tr := media.TranscriberFunc(func(context.Context, string) (*media.Transcript, error) {
		return nil, errors.New("out of memory")
	})
	p := media.NewAudioProcessor(tr, &memRepo{}, testLogger())

	_, err := p.Process(context.Background(), media.Input{FilePath: writeFile(t, "c.wav", "x"), Filename: "c.wav"})
	if err == nil || job.IsPermanent(err) {
		t.Errorf("got %v, want transient error", err)
	}
}

func TestVideoProcessor_Success(t *testing.T) {
	repo := &memRepo{}
	det := media.DetectorFunc(func(_ context.Context, _ string) ([]media.Detection, error) {
		return []media.Detection{{Label: "car", Timestamp: 4, Confidence: 0.9}}, nil
	})
	p := media.NewVideoProcessor(det, repo, testLogger())

	res, err := p.Process(context.Background(), media.Input{FilePath: writeFile(t, "v.mp4", "ftyp"), Filename: "v.mp4"})
	if err != nil {
		t.Fatal(err)
	}
	if res.ObjectsDetectedCount != 1 || res.VideoID != 1 || res.Summary != "Detected objects in the video:\n- car at 4.0s" {
		t.Errorf("result = %+v", res)
	}
	if len(repo.videos) != 1 || repo.videos[0].Summary != res.Summary {
		t.Errorf("stored = %+v", repo.videos)
	}
}

func TestCommandTranscriber(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}
	ctx := context.Background()
	input := writeFile(t, "d.wav", "x")

	ok := media.NewCommandTranscriber("sh", "-c", `printf '{"text":"hi","duration":1.5}'`, "sh")
	tr, err := ok.Transcribe(ctx, input)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Text != "hi" || tr.Duration != 1.5 {
		t.Errorf("transcript = %+v", tr)
	}

	missing := media.NewCommandTranscriber("mediaq-no-such-model")
	if _, err := missing.Transcribe(ctx, input); !errors.Is(err, media.ErrMissingModel) || !job.IsPermanent(err) {
		t.Errorf("missing binary: got %v", err)
	}

	failing := media.NewCommandTranscriber("sh", "-c", "echo boom >&2; exit 3", "sh")
	_, err = failing.Transcribe(ctx, input)
	if err == nil || job.IsPermanent(err) {
		t.Errorf("failing binary: got %v, want transient", err)
	}
}

func TestCommandDetector(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}
	d := media.NewCommandDetector("sh", "-c", `printf '[{"label":"cat","timestamp":2}]'`, "sh")
	dets, err := d.Detect(context.Background(), writeFile(t, "e.mp4", "x"))
	if err != nil {
		t.Fatal(err)
	}
	if len(dets) != 1 || dets[0].Label != "cat" {
		t.Errorf("detections = %+v", dets)
	}
}

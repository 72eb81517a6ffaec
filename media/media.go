package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/xraph/mediaq/job"
)

var (
	ErrMissingInput = errors.New("media: input file not found")
	ErrEmptyInput   = errors.New("media: input file is empty")
	ErrMissingModel = errors.New("media: model binary not available")
)

// Input is the payload of audio and video jobs.
type Input struct {
	FilePath string `json:"file_path"`
	Filename string `json:"filename"`
}

// Segment is one timed span of a transcript.
type Segment struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Transcript is the output of a Transcriber.
type Transcript struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
	// Duration of the input in seconds, used for the whole-file segment
	// when the transcriber returns none.
	Duration float64 `json:"duration"`
}

// Detection is one object found in a video frame.
type Detection struct {
	Label      string  `json:"label"`
	Timestamp  float64 `json:"timestamp"`
	Confidence float64 `json:"confidence"`
}

// Transcription is the stored record of a processed audio file.
type Transcription struct {
	ID        int64     `json:"id"`
	Filename  string    `json:"filename"`
	Text      string    `json:"text"`
	Segments  []Segment `json:"timestamps"`
	Embedding []float32 `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Video is the stored record of a processed video file.
type Video struct {
	ID         int64       `json:"id"`
	Filename   string      `json:"filename"`
	Detections []Detection `json:"detected_objects"`
	Summary    string      `json:"summary"`
	Embedding  []float32   `json:"-"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Repository persists processing records.
type Repository interface {
	// SaveTranscription inserts t and sets its ID and CreatedAt.
	SaveTranscription(ctx context.Context, t *Transcription) error
	// SaveVideo inserts v and sets its ID and CreatedAt.
	SaveVideo(ctx context.Context, v *Video) error
	ListTranscriptions(ctx context.Context) ([]*Transcription, error)
	ListVideos(ctx context.Context) ([]*Video, error)
}

// Transcriber converts an audio file to text.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (*Transcript, error)
}

// TranscriberFunc adapts a function to Transcriber.
type TranscriberFunc func(ctx context.Context, path string) (*Transcript, error)

func (f TranscriberFunc) Transcribe(ctx context.Context, path string) (*Transcript, error) {
	return f(ctx, path)
}

// Detector finds objects in a video file.
type Detector interface {
	Detect(ctx context.Context, path string) ([]Detection, error)
}

// DetectorFunc adapts a function to Detector.
type DetectorFunc func(ctx context.Context, path string) ([]Detection, error)

func (f DetectorFunc) Detect(ctx context.Context, path string) ([]Detection, error) {
	return f(ctx, path)
}

// Embedder maps text to a vector for similarity search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbedderFunc adapts a function to Embedder.
type EmbedderFunc func(ctx context.Context, text string) ([]float32, error)

func (f EmbedderFunc) Embed(ctx context.Context, text string) ([]float32, error) {
	return f(ctx, text)
}

// checkInput rejects missing and empty files permanently. Other stat
// failures are treated as transient.
func checkInput(path string) error {
	if path == "" {
		return job.Permanent(fmt.Errorf("%w: no file path in payload", ErrMissingInput))
	}
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return job.Permanent(fmt.Errorf("%w: %s", ErrMissingInput, path))
	case err != nil:
		return fmt.Errorf("stat input: %w", err)
	case info.IsDir():
		return job.Permanent(fmt.Errorf("%w: %s is a directory", ErrMissingInput, path))
	case info.Size() == 0:
		return job.Permanent(fmt.Errorf("%w: %s", ErrEmptyInput, path))
	}
	return nil
}

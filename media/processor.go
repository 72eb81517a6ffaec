package media

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xraph/mediaq/job"
)

// ProcessorOption configures an AudioProcessor or VideoProcessor.
type ProcessorOption func(*processorOptions)

type processorOptions struct {
	embedder Embedder
}

// WithEmbedder stores an embedding with each record so Searcher can rank
// it. Transcripts are embedded by their text, videos by their summary.
func WithEmbedder(e Embedder) ProcessorOption {
	return func(o *processorOptions) { o.embedder = e }
}

func newProcessorOptions(opts []ProcessorOption) processorOptions {
	var o processorOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// embed returns nil when no embedder is configured.
func (o processorOptions) embed(ctx context.Context, text string) ([]float32, error) {
	if o.embedder == nil {
		return nil, nil
	}
	job.ReportProgress(ctx, 70, "Generating embedding")
	vec, err := o.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	return vec, nil
}

// AudioResult is the result of an audio job.
type AudioResult struct {
	Filename        string    `json:"filename"`
	TranscriptionID int64     `json:"transcription_id"`
	Text            string    `json:"text"`
	Segments        []Segment `json:"segments"`
	Message         string    `json:"message"`
}

// AudioProcessor transcribes uploaded audio.
type AudioProcessor struct {
	transcriber Transcriber
	repo        Repository
	logger      *slog.Logger
	opts        processorOptions
}

// NewAudioProcessor creates an AudioProcessor.
func NewAudioProcessor(t Transcriber, repo Repository, logger *slog.Logger, opts ...ProcessorOption) *AudioProcessor {
	return &AudioProcessor{transcriber: t, repo: repo, logger: logger, opts: newProcessorOptions(opts)}
}

// Definition returns the job definition for the audio kind.
func (p *AudioProcessor) Definition(opts ...job.Option) *job.Definition[Input, AudioResult] {
	return job.NewDefinition(job.KindAudio, p.Process, opts...)
}

// Process runs one transcription attempt.
func (p *AudioProcessor) Process(ctx context.Context, in Input) (AudioResult, error) {
	job.ReportProgress(ctx, 5, "Preparing audio processing")
	if err := checkInput(in.FilePath); err != nil {
		return AudioResult{}, err
	}

	job.ReportProgress(ctx, 20, "Preprocessing audio")
	tr, err := p.transcriber.Transcribe(ctx, in.FilePath)
	if err != nil {
		return AudioResult{}, fmt.Errorf("transcribe %s: %w", in.Filename, err)
	}

	text := strings.TrimSpace(tr.Text)
	segments := tr.Segments
	if len(segments) == 0 {
		segments = []Segment{{Start: 0, End: tr.Duration, Text: text, Confidence: 1.0}}
	}

	vec, err := p.opts.embed(ctx, text)
	if err != nil {
		return AudioResult{}, err
	}

	job.ReportProgress(ctx, 80, "Saving transcription")
	rec := &Transcription{Filename: in.Filename, Text: text, Segments: segments, Embedding: vec}
	if err := p.repo.SaveTranscription(ctx, rec); err != nil {
		return AudioResult{}, fmt.Errorf("save transcription: %w", err)
	}

	job.ReportProgress(ctx, 95, "Finalizing")
	p.logger.Debug("audio processed",
		slog.String("filename", in.Filename),
		slog.Int64("transcription_id", rec.ID),
		slog.Int("segments", len(segments)),
	)
	return AudioResult{
		Filename:        in.Filename,
		TranscriptionID: rec.ID,
		Text:            text,
		Segments:        segments,
		Message:         "Audio processed successfully",
	}, nil
}

// VideoResult is the result of a video job.
type VideoResult struct {
	Filename             string `json:"filename"`
	VideoID              int64  `json:"video_id"`
	ObjectsDetectedCount int    `json:"objects_detected_count"`
	Summary              string `json:"summary"`
	Message              string `json:"message"`
}

// VideoProcessor runs object detection over uploaded video.
type VideoProcessor struct {
	detector Detector
	repo     Repository
	logger   *slog.Logger
	opts     processorOptions
}

// NewVideoProcessor creates a VideoProcessor.
func NewVideoProcessor(d Detector, repo Repository, logger *slog.Logger, opts ...ProcessorOption) *VideoProcessor {
	return &VideoProcessor{detector: d, repo: repo, logger: logger, opts: newProcessorOptions(opts)}
}

// Definition returns the job definition for the video kind.
func (p *VideoProcessor) Definition(opts ...job.Option) *job.Definition[Input, VideoResult] {
	return job.NewDefinition(job.KindVideo, p.Process, opts...)
}

// Process runs one detection attempt.
func (p *VideoProcessor) Process(ctx context.Context, in Input) (VideoResult, error) {
	job.ReportProgress(ctx, 5, "Preparing video processing")
	if err := checkInput(in.FilePath); err != nil {
		return VideoResult{}, err
	}

	job.ReportProgress(ctx, 15, "Detecting objects")
	dets, err := p.detector.Detect(ctx, in.FilePath)
	if err != nil {
		return VideoResult{}, fmt.Errorf("detect %s: %w", in.Filename, err)
	}

	summary := Summarize(dets)
	vec, err := p.opts.embed(ctx, summary)
	if err != nil {
		return VideoResult{}, err
	}

	job.ReportProgress(ctx, 80, "Saving video record")
	rec := &Video{Filename: in.Filename, Detections: dets, Summary: summary, Embedding: vec}
	if err := p.repo.SaveVideo(ctx, rec); err != nil {
		return VideoResult{}, fmt.Errorf("save video: %w", err)
	}

	job.ReportProgress(ctx, 95, "Finalizing")
	p.logger.Debug("video processed",
		slog.String("filename", in.Filename),
		slog.Int64("video_id", rec.ID),
		slog.Int("detections", len(dets)),
	)
	return VideoResult{
		Filename:             in.Filename,
		VideoID:              rec.ID,
		ObjectsDetectedCount: len(dets),
		Summary:              summary,
		Message:              "Video processed successfully",
	}, nil
}

// Summarize renders detections as a human-readable list grouped by label,
// in order of first appearance.
func Summarize(dets []Detection) string {
	if len(dets) == 0 {
		return "No objects detected in the video."
	}

	var labels []string
	times := make(map[string][]string)
	for _, d := range dets {
		if _, seen := times[d.Label]; !seen {
			labels = append(labels, d.Label)
		}
		times[d.Label] = append(times[d.Label], fmt.Sprintf("%.1fs", d.Timestamp))
	}

	var b strings.Builder
	b.WriteString("Detected objects in the video:")
	for _, label := range labels {
		fmt.Fprintf(&b, "\n- %s at %s", label, strings.Join(times[label], ", "))
	}
	return b.String()
}

package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/xraph/mediaq/job"
)

// Command runs an external model binary with one argument appended to
// Args, usually the input path, and decodes its JSON stdout.
type Command struct {
	Binary string
	Args   []string
}

func (c Command) run(ctx context.Context, arg string, out any) error {
	bin, err := exec.LookPath(c.Binary)
	if err != nil {
		return job.Permanent(fmt.Errorf("%w: %s: %w", ErrMissingModel, c.Binary, err))
	}

	args := append(append([]string(nil), c.Args...), arg)
	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.Output()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s: %w", c.Binary, ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("%s exited with %d: %s", c.Binary, exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return fmt.Errorf("run %s: %w", c.Binary, err)
	}

	if err := json.Unmarshal(stdout, out); err != nil {
		return fmt.Errorf("decode %s output: %w", c.Binary, err)
	}
	return nil
}

// CommandTranscriber runs a transcriber binary that prints a Transcript as
// JSON.
type CommandTranscriber struct {
	Command
}

// NewCommandTranscriber creates a CommandTranscriber.
func NewCommandTranscriber(binary string, args ...string) *CommandTranscriber {
	return &CommandTranscriber{Command{Binary: binary, Args: args}}
}

func (t *CommandTranscriber) Transcribe(ctx context.Context, path string) (*Transcript, error) {
	var tr Transcript
	if err := t.run(ctx, path, &tr); err != nil {
		return nil, err
	}
	return &tr, nil
}

// CommandDetector runs a detector binary that prints a JSON array of
// detections.
type CommandDetector struct {
	Command
}

// NewCommandDetector creates a CommandDetector.
func NewCommandDetector(binary string, args ...string) *CommandDetector {
	return &CommandDetector{Command{Binary: binary, Args: args}}
}

func (d *CommandDetector) Detect(ctx context.Context, path string) ([]Detection, error) {
	var dets []Detection
	if err := d.run(ctx, path, &dets); err != nil {
		return nil, err
	}
	return dets, nil
}

// CommandEmbedder runs an embedding binary that takes the text as its last
// argument and prints a JSON array of floats.
type CommandEmbedder struct {
	Command
}

// NewCommandEmbedder creates a CommandEmbedder.
func NewCommandEmbedder(binary string, args ...string) *CommandEmbedder {
	return &CommandEmbedder{Command{Binary: binary, Args: args}}
}

func (e *CommandEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	if err := e.run(ctx, text, &vec); err != nil {
		return nil, err
	}
	return vec, nil
}

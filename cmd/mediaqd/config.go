package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/xraph/mediaq"
)

// defaultAttemptTimeout bounds one processor run when serving.
const defaultAttemptTimeout = 15 * time.Minute

// settings is everything serve needs.
type settings struct {
	Addr        string        `json:"addr"`
	Database    string        `json:"database"`
	UploadDir   string        `json:"upload_dir"`
	Transcriber commandConfig `json:"transcriber"`
	Detector    commandConfig `json:"detector"`

	// Embedder enables embeddings and search when Binary is set.
	Embedder commandConfig `json:"embedder"`
	Engine   mediaq.Config `json:"-"`
}

type commandConfig struct {
	Binary string   `json:"binary"`
	Args   []string `json:"args,omitempty"`
}

// engineFile mirrors mediaq.Config with durations as strings such as "1s".
type engineFile struct {
	Concurrency     int     `json:"concurrency,omitempty"`
	QueueSize       int     `json:"queue_size,omitempty"`
	MaxAttempts     int     `json:"max_attempts,omitempty"`
	BackoffStrategy string  `json:"backoff_strategy,omitempty"`
	BackoffInitial  string  `json:"backoff_initial,omitempty"`
	BackoffMax      string  `json:"backoff_max,omitempty"`
	BackoffJitter   string  `json:"backoff_jitter,omitempty"`
	AttemptTimeout  string  `json:"attempt_timeout,omitempty"`
	ShutdownTimeout string  `json:"shutdown_timeout,omitempty"`
	SubmitRate      float64 `json:"submit_rate,omitempty"`
	SubmitBurst     int     `json:"submit_burst,omitempty"`
}

type settingsFile struct {
	settings
	Engine *engineFile `json:"engine,omitempty"`
}

func defaultSettings() settings {
	cfg := mediaq.DefaultConfig()
	cfg.AttemptTimeout = defaultAttemptTimeout
	return settings{
		Addr:        ":8080",
		Database:    "mediaq.db",
		UploadDir:   "uploads",
		Transcriber: commandConfig{Binary: "mediaq-transcribe"},
		Detector:    commandConfig{Binary: "mediaq-detect"},
		Engine:      cfg,
	}
}

// loadSettings reads path over the defaults. An empty path yields the
// defaults.
func loadSettings(path string) (settings, error) {
	s := defaultSettings()
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("read config: %w", err)
	}

	file := settingsFile{settings: s}
	if err := json.Unmarshal(data, &file); err != nil {
		return s, fmt.Errorf("parse config %s: %w", path, err)
	}
	s = file.settings
	s.Engine = defaultSettings().Engine
	if file.Engine != nil {
		if err := file.Engine.apply(&s.Engine); err != nil {
			return s, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	return s, nil
}

func (f *engineFile) apply(cfg *mediaq.Config) error {
	if f.Concurrency > 0 {
		cfg.Concurrency = f.Concurrency
	}
	if f.QueueSize > 0 {
		cfg.QueueSize = f.QueueSize
	}
	if f.MaxAttempts > 0 {
		cfg.MaxAttempts = f.MaxAttempts
	}
	if f.BackoffStrategy != "" {
		cfg.BackoffStrategy = f.BackoffStrategy
	}
	if f.SubmitRate > 0 {
		cfg.SubmitRate = f.SubmitRate
	}
	if f.SubmitBurst > 0 {
		cfg.SubmitBurst = f.SubmitBurst
	}

	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"backoff_initial", f.BackoffInitial, &cfg.BackoffInitial},
		{"backoff_max", f.BackoffMax, &cfg.BackoffMax},
		{"backoff_jitter", f.BackoffJitter, &cfg.BackoffJitter},
		{"attempt_timeout", f.AttemptTimeout, &cfg.AttemptTimeout},
		{"shutdown_timeout", f.ShutdownTimeout, &cfg.ShutdownTimeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		if v < 0 {
			return fmt.Errorf("%s: negative duration %s", d.name, d.raw)
		}
		*d.dst = v
	}
	return nil
}

func toEngineFile(cfg mediaq.Config) *engineFile {
	return &engineFile{
		Concurrency:     cfg.Concurrency,
		QueueSize:       cfg.QueueSize,
		MaxAttempts:     cfg.MaxAttempts,
		BackoffStrategy: cfg.BackoffStrategy,
		BackoffInitial:  cfg.BackoffInitial.String(),
		BackoffMax:      cfg.BackoffMax.String(),
		BackoffJitter:   cfg.BackoffJitter.String(),
		AttemptTimeout:  cfg.AttemptTimeout.String(),
		ShutdownTimeout: cfg.ShutdownTimeout.String(),
		SubmitRate:      cfg.SubmitRate,
		SubmitBurst:     cfg.SubmitBurst,
	}
}

// settingsFlags binds the flags shared by serve and config show.
type settingsFlags struct {
	configPath string

	addr, database, uploadDir string
	transcriber, detector     string
	embedder                  string
	concurrency, maxAttempts  int
	attemptTimeout            time.Duration
	backoff                   string
}

func (f *settingsFlags) register(fs *pflag.FlagSet) {
	d := defaultSettings()
	fs.StringVar(&f.configPath, "config", "", "JSON config file")
	fs.StringVar(&f.addr, "addr", d.Addr, "HTTP listen address")
	fs.StringVar(&f.database, "db", d.Database, "sqlite database for media records")
	fs.StringVar(&f.uploadDir, "upload-dir", d.UploadDir, "directory for spooled uploads")
	fs.StringVar(&f.transcriber, "transcriber", d.Transcriber.Binary, "transcriber executable")
	fs.StringVar(&f.detector, "detector", d.Detector.Binary, "object detector executable")
	fs.StringVar(&f.embedder, "embedder", d.Embedder.Binary, "text embedding executable, enables search")
	fs.IntVar(&f.concurrency, "concurrency", d.Engine.Concurrency, "worker goroutines")
	fs.IntVar(&f.maxAttempts, "max-attempts", d.Engine.MaxAttempts, "default attempt ceiling")
	fs.DurationVar(&f.attemptTimeout, "attempt-timeout", d.Engine.AttemptTimeout, "per-attempt deadline, 0 for none")
	fs.StringVar(&f.backoff, "backoff", d.Engine.BackoffStrategy, "retry backoff strategy")
}

// resolve loads the config file and applies flags the user set on cmd.
func (f *settingsFlags) resolve(cmd *cobra.Command) (settings, error) {
	s, err := loadSettings(f.configPath)
	if err != nil {
		return s, err
	}

	fs := cmd.Flags()
	set := func(name string, apply func()) {
		if fs.Changed(name) {
			apply()
		}
	}
	set("addr", func() { s.Addr = f.addr })
	set("db", func() { s.Database = f.database })
	set("upload-dir", func() { s.UploadDir = f.uploadDir })
	set("transcriber", func() { s.Transcriber = commandConfig{Binary: f.transcriber} })
	set("detector", func() { s.Detector = commandConfig{Binary: f.detector} })
	set("embedder", func() { s.Embedder = commandConfig{Binary: f.embedder} })
	set("concurrency", func() { s.Engine.Concurrency = f.concurrency })
	set("max-attempts", func() { s.Engine.MaxAttempts = f.maxAttempts })
	set("attempt-timeout", func() { s.Engine.AttemptTimeout = f.attemptTimeout })
	set("backoff", func() { s.Engine.BackoffStrategy = f.backoff })
	return s, nil
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	flags := &settingsFlags{}
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective serve configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := flags.resolve(cmd)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(settingsFile{settings: s, Engine: toEngineFile(s.Engine)})
		},
	}
	flags.register(show.Flags())
	cmd.AddCommand(show)
	return cmd
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/mediaq/api"
	"github.com/xraph/mediaq/engine"
	"github.com/xraph/mediaq/media"
	"github.com/xraph/mediaq/media/sqlite"
	"github.com/xraph/mediaq/upload"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	flags := &settingsFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the queue engine and HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := root.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			s, err := flags.resolve(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, s, logger)
		},
	}
	flags.register(cmd.Flags())
	return cmd
}

// serve runs until ctx is cancelled, then drains the engine within
// ShutdownTimeout.
func serve(ctx context.Context, s settings, logger *slog.Logger) error {
	records, err := sqlite.Open(s.Database)
	if err != nil {
		return err
	}
	defer records.Close()

	spool, err := upload.New(s.UploadDir)
	if err != nil {
		return err
	}

	eng, err := engine.New(
		engine.WithConfig(s.Engine),
		engine.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	transcriber := media.NewCommandTranscriber(s.Transcriber.Binary, s.Transcriber.Args...)
	detector := media.NewCommandDetector(s.Detector.Binary, s.Detector.Args...)
	apiOpts := []api.Option{api.WithUploads(spool), api.WithRecords(records)}
	var procOpts []media.ProcessorOption
	if s.Embedder.Binary != "" {
		embedder := media.NewCommandEmbedder(s.Embedder.Binary, s.Embedder.Args...)
		procOpts = append(procOpts, media.WithEmbedder(embedder))
		apiOpts = append(apiOpts, api.WithSearch(media.NewSearcher(embedder, records)))
	}
	engine.Register(eng, media.NewAudioProcessor(transcriber, records, logger, procOpts...).Definition())
	engine.Register(eng, media.NewVideoProcessor(detector, records, logger, procOpts...).Definition())

	handler := api.New(eng, nil, apiOpts...).Handler()
	srv, cancelRequests := newHTTPServer(s.Addr, handler)
	defer cancelRequests()

	if err := eng.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", slog.String("addr", s.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", slog.Duration("timeout", s.Engine.ShutdownTimeout))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.Engine.ShutdownTimeout)
		defer cancel()
		return shutdown(shutdownCtx, srv, cancelRequests, eng)
	})
	return g.Wait()
}

// newHTTPServer returns a server whose request contexts are cancelled by
// the returned func, which ends open watch streams.
func newHTTPServer(addr string, handler http.Handler) (*http.Server, context.CancelFunc) {
	base, cancel := context.WithCancel(context.Background())
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return base },
	}, cancel
}

// shutdown cancels in-flight requests, then stops the server and drains
// the engine side by side so neither spends the other's share of ctx.
func shutdown(ctx context.Context, srv *http.Server, cancelRequests context.CancelFunc, eng *engine.Engine) error {
	cancelRequests()

	srvDone := make(chan error, 1)
	go func() { srvDone <- srv.Shutdown(ctx) }()
	engErr := eng.Shutdown(ctx)
	return errors.Join(<-srvDone, engErr)
}

// main package for the synthesis service
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"github.com/hawkaii/fastspeech/internal/config"
	"github.com/hawkaii/fastspeech/internal/delivery"
	"github.com/hawkaii/fastspeech/internal/engine"
	"github.com/hawkaii/fastspeech/internal/model"
	"github.com/hawkaii/fastspeech/internal/objectstore"
	"github.com/hawkaii/fastspeech/internal/synth"
	"github.com/hawkaii/fastspeech/internal/worker"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 15 * time.Second
)

func setupLogger(logPath string) (*logger.Logger, error) {
	log, err := logger.New(logPath, "synthesis-service.log")
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func run() error {
	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := setupLogger(os.TempDir())
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	// 2. Load configuration using the central configurator
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// 3. Initialize the final logger based on the loaded configuration
	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, finalLog)
}

// buildEngine wires the model lifecycle and the inference client together.
func buildEngine(ctx context.Context, cfg *config.Config, log *logger.Logger) (*engine.Engine, error) {
	remote, err := objectstore.NewS3Store(ctx, cfg.Remote)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to artifact store: %w", err)
	}

	catalog := model.NewCatalog(cfg.Catalog)
	store := model.NewStore(cfg.Paths.ModelsDir, remote, catalog, log)

	registry, err := model.NewRegistry(store, model.NewDirLoader(), cfg.Cache.MaxModels, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create model registry: %w", err)
	}

	client := synth.NewHTTPClient(
		cfg.Inference.ServiceURL,
		time.Duration(cfg.Inference.TimeoutSeconds)*time.Second,
	)

	return engine.New(cfg.Synthesis, registry, store, catalog, client, log), nil
}

func preload(ctx context.Context, cfg *config.Config, eng *engine.Engine, log *logger.Logger) error {
	keys, err := cfg.PreloadKeys()
	if err != nil {
		return fmt.Errorf("failed to parse preload list: %w", err)
	}

	if len(keys) == 0 {
		return nil
	}

	failures := 0

	for key, keyErr := range eng.Preload(ctx, keys) {
		if keyErr != nil {
			failures++

			log.Error("Preload of %s failed: %v", key, keyErr)
		}
	}

	log.System("Preloaded %d of %d models.", len(keys)-failures, len(keys))

	return nil
}

func serve(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	eng, err := buildEngine(ctx, cfg, log)
	if err != nil {
		return err
	}

	err = preload(ctx, cfg, eng, log)
	if err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)

	if cfg.NATS.URL != "" {
		err = startWorker(groupCtx, group, cfg, eng, log)
		if err != nil {
			return err
		}
	}

	handler := delivery.NewHandler(eng, log)
	server := &http.Server{
		Addr:              cfg.HTTP.ListenAddress,
		Handler:           handler.Router(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	group.Go(func() error {
		log.System("Synthesis service listening on %s", cfg.HTTP.ListenAddress)

		serveErr := server.ListenAndServe()
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", serveErr)
		}

		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		shutdownErr := server.Shutdown(shutdownCtx)
		if shutdownErr != nil {
			return fmt.Errorf("http shutdown: %w", shutdownErr)
		}

		return nil
	})

	err = group.Wait()

	eng.Drain()

	if err != nil {
		return err
	}

	log.System("Synthesis service stopped.")

	return nil
}

// startWorker connects to NATS and runs the job worker alongside the HTTP API.
func startWorker(
	ctx context.Context,
	group *errgroup.Group,
	cfg *config.Config,
	eng *engine.Engine,
	log *logger.Logger,
) error {
	natsConnection, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		natsConnection.Close()

		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	payloadStore, err := objectstore.NewNatsStore(jetstreamContext, cfg.NATS.PayloadBucket)
	if err != nil {
		natsConnection.Close()

		return fmt.Errorf("failed to open payload bucket: %w", err)
	}

	natsWorker := worker.NewNatsWorker(
		natsConnection, cfg.NATS.SynthesisSubject, payloadStore, eng, log,
	)

	group.Go(func() error {
		defer natsConnection.Close()

		log.System("Synthesis worker listening on subject %s", cfg.NATS.SynthesisSubject)

		runErr := natsWorker.Run(ctx)
		if runErr != nil {
			return fmt.Errorf("worker: %w", runErr)
		}

		return nil
	})

	return nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}

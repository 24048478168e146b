// Command nur-worker boots a standalone C12 worker process: claim, dispatch
// by kind, ack/nack, heartbeat, graceful shutdown on signal. Grounded on
// original_source's worker/__main__.py exit-code convention (0 normal, 1
// unrecoverable init failure, 130 interrupt) named explicitly in spec.md
// §6, and the teacher's cmd/orchestrator/main.go signal-driven shutdown.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"nur/internal/config"
	"nur/internal/embedding"
	"nur/internal/llm"
	"nur/internal/observability"
	"nur/internal/queue"
	"nur/internal/service"
	"nur/internal/store/graph"
	"nur/internal/store/relational"
	"nur/internal/store/vector"
	"nur/internal/worker"
)

const (
	exitNormal     = 0
	exitInitFailed = 1
	exitInterrupt  = 130
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		return exitInitFailed
	}

	observability.InitLogger(cfg.Observability.LogPath, cfg.Observability.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Observability)
	if err != nil {
		log.Error().Err(err).Msg("init tracing")
		return exitInitFailed
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	rel, err := relational.Open(ctx, cfg.Database)
	if err != nil {
		log.Error().Err(err).Msg("open relational store")
		return exitInitFailed
	}
	defer rel.Close()

	vec, err := vector.NewQdrant(cfg.Vector.DSN, cfg.Vector.EmbeddingDimensions, cfg.Vector.Metric)
	if err != nil {
		log.Error().Err(err).Msg("open vector store")
		return exitInitFailed
	}
	defer vec.Close()

	g, err := graph.NewPostgres(ctx, rel.Pool, cfg.Graph.GraphName)
	if err != nil {
		log.Error().Err(err).Msg("open graph store")
		return exitInitFailed
	}
	defer g.Close()

	embedder := embedding.NewHTTP(cfg.Embedding, observability.NewHTTPClient(nil))

	provider, err := llm.NewFromConfig(cfg.LLM)
	if err != nil {
		log.Error().Err(err).Msg("build llm provider")
		return exitInitFailed
	}

	q := queue.New(rel, cfg.Queue)
	extractor := service.NewExtractor(provider, cfg)
	resolver := service.NewResolver(embedder, vec, rel, g, provider, cfg)
	w := worker.New(q, rel, vec, g, extractor, resolver, cfg.Queue)

	log.Info().Str("worker_id", cfg.Queue.WorkerID).Int("poll_interval_ms", cfg.Queue.WorkerPollIntervalMs).
		Int("max_attempts", cfg.Queue.MaxAttempts).Str("model", cfg.LLM.EventModel).Msg("nur-worker starting")
	if err := w.Run(ctx); err != nil {
		log.Error().Err(err).Msg("worker loop")
		return exitInitFailed
	}

	if ctx.Err() != nil {
		log.Info().Msg("nur-worker interrupted")
		return exitInterrupt
	}
	return exitNormal
}

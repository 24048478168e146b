// Command nur-server boots the HTTP tool-surface server: it opens the
// relational/vector/graph stores, wires the embedding and LLM clients,
// composes service.Service, and serves rpc.Handler at POST /rpc. Grounded
// on the teacher's cmd/orchestrator/main.go boot sequence (flag-parsed
// config path, signal.NotifyContext graceful shutdown, InitLogger/
// InitTracing before anything else starts).
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"nur/internal/config"
	"nur/internal/embedding"
	"nur/internal/llm"
	"nur/internal/observability"
	"nur/internal/rpc"
	"nur/internal/service"
	"nur/internal/store/graph"
	"nur/internal/store/relational"
	"nur/internal/store/vector"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// Logging isn't initialized yet; this is a startup-fatal
		// ConfigurationError, so stderr is the only channel available.
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		return 1
	}

	observability.InitLogger(cfg.Observability.LogPath, cfg.Observability.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Observability)
	if err != nil {
		log.Error().Err(err).Msg("init tracing")
		return 1
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	rel, err := relational.Open(ctx, cfg.Database)
	if err != nil {
		log.Error().Err(err).Msg("open relational store")
		return 1
	}
	defer rel.Close()

	vec, err := vector.NewQdrant(cfg.Vector.DSN, cfg.Vector.EmbeddingDimensions, cfg.Vector.Metric)
	if err != nil {
		log.Error().Err(err).Msg("open vector store")
		return 1
	}
	defer vec.Close()

	g, err := graph.NewPostgres(ctx, rel.Pool, cfg.Graph.GraphName)
	if err != nil {
		log.Error().Err(err).Msg("open graph store")
		return 1
	}
	defer g.Close()

	embedder := embedding.NewHTTP(cfg.Embedding, observability.NewHTTPClient(nil))

	provider, err := llm.NewFromConfig(cfg.LLM)
	if err != nil {
		log.Error().Err(err).Msg("build llm provider")
		return 1
	}

	svc := service.New(rel, vec, g, provider, embedder, cfg)
	handler := rpc.NewHandler(svc)

	mux := http.NewServeMux()
	mux.Handle("POST /rpc", handler)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("nur-server listening")
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("serve")
			return 1
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down nur-server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("graceful shutdown")
			return 1
		}
	}
	return 0
}

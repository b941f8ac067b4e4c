package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/leadflow-server/leadflow-server/internal/api"
	"github.com/leadflow-server/leadflow-server/internal/batch"
	"github.com/leadflow-server/leadflow-server/internal/config"
	"github.com/leadflow-server/leadflow-server/internal/gateway"
	"github.com/leadflow-server/leadflow-server/internal/knowledge"
	"github.com/leadflow-server/leadflow-server/internal/processor"
	"github.com/leadflow-server/leadflow-server/internal/ratelimit"
	"github.com/leadflow-server/leadflow-server/internal/responder"
	"github.com/leadflow-server/leadflow-server/internal/server"
	"github.com/leadflow-server/leadflow-server/internal/settings"
	"github.com/leadflow-server/leadflow-server/internal/storage"
)

func main() {
	// Command line flags
	var configFile string
	flag.StringVar(&configFile, "config", "config/server.yml", "Configuration file path")
	flag.Parse()

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Load configuration
	cfg, err := config.Load(configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Connect to database
	store, err := storage.NewPostgresStore(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer store.Close()

	log.Info().Msg("Connected to database")

	// Vector search
	searcher, err := knowledge.NewQdrantSearcher(&cfg.Qdrant)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to vector search")
	}
	defer searcher.Close()

	// Pipeline components
	resolver := settings.NewResolver(store, cfg.Settings.CacheTTL)
	limiter := ratelimit.NewLimiter()
	embedder := knowledge.NewOpenAIEmbedder(&cfg.OpenAI)
	retriever := knowledge.NewRetriever(embedder, searcher, store)
	indexer := knowledge.NewIndexer(embedder, searcher, store)
	completer := responder.NewOpenAICompleter(&cfg.OpenAI)
	generator := responder.NewGenerator(completer, store)
	sender := gateway.NewClient(&cfg.Gateway)
	msgProc := processor.NewProcessor(store, resolver, limiter, retriever, generator, sender)
	batchProc := batch.NewProcessor(store, resolver, generator)

	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start REST API server
	apiServer := api.NewRESTServer(cfg, store, resolver, limiter, batchProc, msgProc, indexer)

	// WaitGroup for services
	var wg sync.WaitGroup

	// Start API server
	wg.Add(1)
	go func() {
		defer wg.Done()
		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
		if err := apiServer.ListenAndServe(addr); err != nil {
			log.Fatal().Err(err).Msg("REST API server failed")
		}
	}()

	// Optional: Start NATS subscriber
	if cfg.NATS.URL != "" {
		log.Info().Str("url", cfg.NATS.URL).Msg("Connecting to NATS...")

		nc, err := nats.Connect(cfg.NATS.URL,
			nats.Name(cfg.Server.Name),
			nats.UserInfo(cfg.NATS.Username, cfg.NATS.Password),
			nats.ReconnectWait(cfg.NATS.ReconnectInterval),
			nats.MaxReconnects(cfg.NATS.MaxReconnects),
			nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
				log.Warn().Err(err).Msg("Disconnected from NATS")
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				log.Info().Msg("Reconnected to NATS")
			}),
			nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
				log.Error().
					Err(err).
					Str("subject", sub.Subject).
					Msg("NATS error")
			}),
		)

		if err != nil {
			log.Warn().Err(err).Msg("Failed to connect to NATS, continuing without NATS support")
		} else {
			defer nc.Close()
			log.Info().Msg("Connected to NATS")

			// Start NATS subscriber
			subscriber := server.NewNATSSubscriber(nc, msgProc, limiter, store)

			wg.Add(1)
			go func() {
				defer wg.Done()
				log.Info().Msg("Starting NATS subscriber")
				if err := subscriber.Start(ctx); err != nil {
					log.Error().Err(err).Msg("NATS subscriber stopped")
				}
			}()
		}
	} else {
		log.Info().Msg("NATS not configured, inbound messages arrive over the webhook only")
	}

	// Wait for signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received signal, shutting down")

	// Cancel context
	cancel()

	// Shutdown API server
	if err := apiServer.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown API server gracefully")
	}

	// Wait for all services
	wg.Wait()

	log.Info().Msg("Server stopped")
}

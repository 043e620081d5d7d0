package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"

	"github.com/creativestore/creative-store/pkg/creativestore"
	"github.com/creativestore/creative-store/pkg/creativestore/api"
	"github.com/creativestore/creative-store/pkg/creativestore/config"
	"github.com/creativestore/creative-store/pkg/creativestore/event"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load(
		config.WithLogger(logger),
		config.WithEnv(),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	pubSub := gochannel.NewGoChannel(gochannel.Config{}, event.NewLoggerAdapter(logger))
	defer pubSub.Close()

	runtime, err := cfg.Build(
		creativestore.WithEventSink(event.NewSink(pubSub)),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build service")
	}
	defer runtime.Close()

	server := api.NewServer(runtime.Service, runtime.Renderer, cfg.Environment, logger)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: server.Routes(),
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("environment", cfg.Environment).
			Str("storage", cfg.StorageType).
			Str("locks", cfg.LockType).
			Msg("creative store server starting")

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server exited")
}

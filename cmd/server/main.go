package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"roomchat/internal/config"
	"roomchat/internal/server"
	"roomchat/internal/store"
)

func main() {
	cfgPath := pflag.StringP("config", "c", "./config/config.json", "path to JSON config file")
	pflag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		// Missing or bad config is not fatal; defaults keep the server usable.
		log.Warn().Err(err).Str("path", *cfgPath).Msg("using default config")
	}

	st, err := store.New(cfg.DataDir)
	if err != nil {
		log.Fatal().Err(err).Msg("init store")
	}

	srv := server.New(cfg, st, log.Logger)

	// Clean listener close and persistence drain on SIGINT / SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Info().Msg("shutting down")
		srv.Shutdown()
	}()

	if err := srv.ListenAndServe(); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

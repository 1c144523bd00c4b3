package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/MCSets/mcsets-setstore-plugin/config"
	"github.com/MCSets/mcsets-setstore-plugin/engine"
	"github.com/MCSets/mcsets-setstore-plugin/host"
	"github.com/MCSets/mcsets-setstore-plugin/store"
	"github.com/MCSets/mcsets-setstore-plugin/www"
)

func main() {
	configPath := flag.String("config", "setstore.yaml", "path to config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	port := flag.Int("port", 0, "HTTP port (overrides config)")
	flag.Parse()

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.Web.Port = *port
	}

	level := zerolog.InfoLevel
	if *debug || cfg.Logging.Debug {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).
		With().Timestamp().Logger()

	if !cfg.Configured() {
		log.Warn().Msg("no API key configured, writing default config and exiting")
		if err := cfg.Save(*configPath); err != nil {
			log.Fatal().Err(err).Msg("write default config")
		}
		log.Info().Str("path", *configPath).Msg("edit the config and set api_key, then restart")
		return
	}

	// Open database
	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()

	// Bridge to the game server
	gameHost := host.NewScriptHost(
		cfg.Host.ExecuteCommand,
		cfg.Host.ListPlayersCommand,
		cfg.Host.SendMessageCommand,
		cfg.Host.ServerVersion,
		log,
	)
	defer gameHost.Stop()

	// Create and start engine
	eng := engine.New(engine.Config{
		AppConfig:  cfg,
		ConfigPath: *configPath,
		DB:         db,
		Host:       gameHost,
		Log:        log,
	})
	eng.Start()
	defer eng.Stop()

	// Set up HTTP server
	router, stopWeb := www.NewRouter(eng)
	defer stopWeb()

	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	server := &http.Server{Addr: addr, Handler: router}

	go func() {
		log.Info().Str("addr", addr).Msg("SetStore agent listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutting down")

	// Stop SSE event hub first so long-lived connections close
	stopWeb()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("http server shutdown")
	}
}

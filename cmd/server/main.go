package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cbodonnell/relayhub/pkg/broadcast"
	"github.com/cbodonnell/relayhub/pkg/config"
	"github.com/cbodonnell/relayhub/pkg/game"
	"github.com/cbodonnell/relayhub/pkg/log"
	"github.com/cbodonnell/relayhub/pkg/network"
	"github.com/cbodonnell/relayhub/pkg/queue"
	"github.com/cbodonnell/relayhub/pkg/version"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	parsedLogLevel, err := log.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("Failed to parse log level: %v", err))
	}

	logger := log.New(os.Stdout, parsedLogLevel)
	log.SetDefaultLogger(logger)
	log.Info("Log level set to %s", parsedLogLevel)

	log.Info("Starting relay server version %s", version.Get())
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session := game.NewSession(game.NewSessionOptions{
		MaxUnhandledActions: cfg.MaxUnhandledActions,
	})
	eventQueue := queue.NewInMemoryQueue(cfg.EventQueueSize)
	broadcaster := broadcast.NewBroadcaster(broadcast.NewBroadcasterOptions{
		ClientManager: session.Clients,
	})

	gameManager := game.NewGameManager(game.NewGameManagerOptions{
		Session:     session,
		Broadcaster: broadcaster,
		EventQueue:  eventQueue,
	})

	gameManagerErr := make(chan error, 1)
	go func() {
		log.Info("Starting game manager")
		gameManagerErr <- gameManager.Start(ctx)
	}()

	var tlsConfig *network.TLSConfig
	if cfg.TLSEnabled() {
		tlsConfig = &network.TLSConfig{
			CertFile: cfg.TLSCertFile,
			KeyFile:  cfg.TLSKeyFile,
		}
	}

	wsServer := network.NewWSServer(network.NewWSServerOptions{
		Port:             cfg.Port,
		EventQueue:       eventQueue,
		Stats:            gameManager,
		ClientSendBuffer: cfg.ClientSendBuffer,
		MaxMessageSize:   cfg.MaxMessageSize,
		WriteTimeout:     cfg.WriteTimeout,
		MessageRateLimit: cfg.MessageRateLimit,
		MessageRateBurst: cfg.MessageRateBurst,
		ShutdownTimeout:  cfg.ShutdownTimeout,
		TLS:              tlsConfig,
	})
	if err := wsServer.Start(ctx); err != nil {
		log.Error("Server stopped: %v", err)
		stop()
		<-gameManagerErr
		os.Exit(1)
	}

	if err := <-gameManagerErr; err != nil {
		log.Error("Game manager stopped: %v", err)
		os.Exit(1)
	}
	log.Info("Shutdown complete")
}

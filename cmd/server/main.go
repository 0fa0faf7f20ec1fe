package main

import (
	"chat-relay/auth"
	"chat-relay/infrastructure/rest"
	"chat-relay/infrastructure/ws"
	"chat-relay/internal"
	"chat-relay/moderation"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"
	"chat-relay/storage"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and owns the server lifecycle, so deferred
// cleanup always executes before the process exits.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := internal.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.INFO))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Repositories & domain services
	messageRepository := repositories.NewMessageRepository(db, log, config.LimitMessages)
	membershipRepository := repositories.NewMembershipRepository(db)
	userRepository := repositories.NewUserRepository(db)

	maskRune, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return err
	}
	moderator, err := moderation.NewModeratorFromEmbedded(maskRune)
	if err != nil {
		return fmt.Errorf("moderation setup failed: %w", err)
	}

	registry := runtime.NewRegistry(log, config.DeliveryTimeout)
	gate := services.NewAuthorizationGate(membershipRepository, userRepository)
	groupLocks := services.NewGroupLocks()
	broker := services.NewMessageBroker(log, gate, messageRepository,
		membershipRepository, registry, moderator, groupLocks, config.MaxContentLength)
	coordinator := services.NewGroupCoordinator(log, gate, membershipRepository,
		repositories.NewGroupCascade(db), registry, groupLocks)

	tokens := auth.NewTokenManager(config.JWTSecret, "chat-relay", config.AuthTokenDuration)
	authService := services.NewAuthService(userRepository, tokens)

	files, err := storage.NewDiskStore(config.AttachmentDir, config.MaxAttachmentSize, log)
	if err != nil {
		return fmt.Errorf("attachment store setup failed: %w", err)
	}

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Background workers
	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(
		workers.NewStorageGCWorker(db, config.GCInterval, log),
		workers.NewTelemetryWorker(log, config.MetricInterval, registry),
	)
	supDone := make(chan struct{})
	go func() {
		defer close(supDone)
		sup.Run(ctx)
	}()

	// 6. HTTP server (REST + WebSocket)
	gateway := ws.NewGateway(log, registry, broker, coordinator,
		membershipRepository, config.ConnectionBufferSize,
		ws.Timeouts{
			Write:        config.WriteTimeout,
			PingInterval: config.PingInterval,
			PongWait:     config.PongTimeout,
		}, config.MaxFrameSize)

	restServer := rest.NewServer(log, authService, broker, coordinator,
		messageRepository, membershipRepository, files)

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	httpServer := &http.Server{
		Addr:    address,
		Handler: restServer.Routes(tokens, gateway),
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", address, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 8. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown interrupted", "error", err)
	}
	sup.Stop()
	<-supDone
	log.Info("Program stopped cleanly")

	return nil
}

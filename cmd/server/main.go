package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nexus-backend/internal/config"
	"nexus-backend/internal/database"
	"nexus-backend/internal/handlers"
	"nexus-backend/internal/hub"
	"nexus-backend/internal/live"
	"nexus-backend/internal/middleware"
	"nexus-backend/internal/repository"
	"nexus-backend/internal/router"
	"nexus-backend/internal/secure"
	"nexus-backend/internal/services"
	"nexus-backend/internal/worker"
)

func main() {
	log.Println("🚀 Starting Nexus Backend...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("✗ PostgreSQL connection failed: %v", err)
	}
	defer pool.Close()
	log.Println("✓ PostgreSQL connected")

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL)
	if err != nil {
		log.Fatalf("✗ Redis connection failed: %v", err)
	}
	defer redisClients.Close()
	log.Println("✓ Redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(pool, "migrations"); err != nil {
		log.Fatalf("✗ Database migration failed: %v", err)
	}
	log.Println("✓ Database migrations applied")

	// ──── Step 5: Load Signing Keys ────
	privateKey, err := secure.LoadPrivateKey(cfg.RSAPrivateKeyPath)
	if err != nil {
		log.Fatalf("✗ RSA private key load failed: %v", err)
	}
	log.Println("✓ RSA keypair loaded")

	// ──── Initialize Repositories ────
	userRepo := repository.NewUserRepo(pool)
	groupRepo := repository.NewGroupRepo(pool)
	messageRepo := repository.NewMessageRepo(pool)
	announcementRepo := repository.NewAnnouncementRepo(pool)
	documentRepo := repository.NewDocumentRepo(pool)

	// ──── Initialize Services ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	emailService := services.NewEmailService(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.FrontendURL)
	faceService := services.NewFaceVerifyService(cfg.FaceAPIURL)
	extractService := services.NewDocExtractService()
	authService := services.NewAuthService(userRepo, jwtAuth, faceService)
	notifier := services.NewNotifier(redisClients.Queue)

	// ──── Step 6: Start Live Event Fabric ────
	broker := live.NewBroker()
	publisher := live.NewPublisher(broker, redisClients.PubSub)
	bridge := live.NewBridge(broker, redisClients.PubSub)
	bridge.Start()
	defer bridge.Stop()
	log.Println("✓ Live event bridge started")

	announcementService := services.NewAnnouncementService(announcementRepo, userRepo, publisher, notifier)
	documentService := services.NewDocumentService(documentRepo, userRepo, extractService, faceService, publisher, notifier, cfg.StoragePath)

	// ──── Initialize Handlers ────
	authHandler := handlers.NewAuthHandler(authService)
	faceHandler, err := handlers.NewFaceHandler(authService, privateKey, cfg.CaptureBurstSize)
	if err != nil {
		log.Fatalf("✗ Face handler initialization failed: %v", err)
	}
	messageHandler := handlers.NewMessageHandler(messageRepo, userRepo)
	announcementHandler := handlers.NewAnnouncementHandler(announcementService)
	documentHandler := handlers.NewDocumentHandler(documentService)

	// ──── Step 7: Start Notification Worker Pool ────
	workerPool := worker.NewPool(redisClients.Queue, emailService, userRepo, groupRepo, 5)
	workerPool.Start()
	log.Println("✓ Notification worker pool started (5 goroutines)")

	// ──── Step 8: Start Chat Hub ────
	registry := hub.NewRegistry()
	chatHub := hub.NewHub(registry, messageRepo, jwtAuth, userRepo)
	log.Println("✓ Chat hub started")

	// ──── Step 9: Start HTTP Server ────
	r := router.New(
		jwtAuth,
		authHandler,
		faceHandler,
		messageHandler,
		announcementHandler,
		documentHandler,
		chatHub,
		live.NewSSEHandler(broker, jwtAuth, userRepo),
		cfg.StoragePath,
		cfg.FrontendURL,
	)

	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		// No write timeout: the SSE feed holds its response open indefinitely.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		workerPool.Stop()
		bridge.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ Nexus Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/ws/group/{groupID}", cfg.Port)
	log.Printf("  SSE: http://localhost:%s/sse/groups/{groupID}/feed", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}

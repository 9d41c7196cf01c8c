package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/studyforge/api/internal/auth"
	"github.com/studyforge/api/internal/client"
	"github.com/studyforge/api/internal/config"
	"github.com/studyforge/api/internal/fetch"
	"github.com/studyforge/api/internal/handler"
	"github.com/studyforge/api/internal/middleware"
	"github.com/studyforge/api/internal/pipeline"
	"github.com/studyforge/api/internal/queue"
	"github.com/studyforge/api/internal/service"
	"github.com/studyforge/api/internal/store"
	"github.com/studyforge/api/internal/worker"
	ws "github.com/studyforge/api/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Initialize stores
	jobStore := store.NewJobStore(redisClient, time.Duration(cfg.Worker.JobRetentionDays)*24*time.Hour)
	transcriptCache := store.NewTranscriptCache(redisClient, store.DefaultTranscriptTTL)

	// Initialize task queue client. The credential audience contract is
	// validated here so a misconfigured worker address fails at startup.
	queueClient, err := queue.NewClient(asynqClient, &cfg.Worker)
	if err != nil {
		log.Fatalf("Failed to initialize task queue: %v", err)
	}

	// Initialize outbound clients
	var routes fetch.RouteProvider
	var proxyProvider *client.ProxyRouteProvider
	if len(cfg.Proxy.URLs) > 0 {
		proxyProvider, err = client.NewProxyRouteProvider(cfg.Proxy.URLs)
		if err != nil {
			log.Fatalf("Failed to initialize proxy routes: %v", err)
		}
		routes = proxyProvider
	}

	llmClient := client.NewLLMClient(&cfg.LLM)
	transcriptClient := client.NewTranscriptClient(&cfg.Transcription, proxyProvider)
	transcriptFetcher := fetch.NewFetcher(transcriptClient, transcriptCache, routes)

	var audioResolver pipeline.AudioResolver
	storageClient, err := client.NewR2Client(&cfg.Storage)
	if err != nil {
		log.Printf("Warning: storage not configured, storagePath submissions disabled: %v", err)
	} else {
		audioResolver = storageClient
	}

	// Initialize pipeline and worker
	analysisPipeline := pipeline.NewPersonaPipeline(llmClient, transcriptFetcher, audioResolver)
	credentialVerifier := queue.NewCredentialVerifier(cfg.Worker.TaskSecret, queueClient.Audience())
	dispatcher := worker.NewDispatcher(jobStore, analysisPipeline, credentialVerifier, hub)

	runner := worker.NewRunner(cfg.Worker.Concurrency, 100)
	runner.Start()

	// Initialize services
	submissionService := service.NewSubmissionService(jobStore, queueClient)

	// Initialize handlers
	processHandler := handler.NewProcessHandler(submissionService, validate)
	jobsHandler := handler.NewJobsHandler(jobStore)
	tasksHandler := handler.NewTasksHandler(credentialVerifier, dispatcher, runner, queueClient.Deadline())

	// Initialize middleware
	authMiddleware := buildAuthMiddleware(cfg)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    50 * 1024 * 1024, // 50MB
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"redis":         redisClient.Ping(c.Context()).Err() == nil,
				"llm":           llmClient.IsConfigured(),
				"transcription": transcriptClient.IsConfigured(),
				"storage":       storageClient != nil && storageClient.IsConfigured(),
			},
		})
	})

	// Worker entry point: gated by the task credential, not user auth
	app.Post("/tasks/run-analysis", tasksHandler.RunAnalysis)

	// API routes
	api := app.Group("/api", authMiddleware.Authenticate())

	api.Post("/process", rateLimiter.SubmitLimit(cfg.RateLimit.SubmitPerMin), processHandler.Process)
	api.Post("/process-bulk", rateLimiter.BulkLimit(cfg.RateLimit.BulkPerHour), processHandler.ProcessBulk)
	api.Get("/jobs/:jobId", jobsHandler.GetStatus)
	api.Get("/jobs/:jobId/result", jobsHandler.GetResult)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		jobID := c.Params("jobId")
		hub.HandleConnection(c, jobID)
	}))

	// Start Asynq worker server
	workerServer := newWorkerServer(cfg)
	workerMux := asynq.NewServeMux()
	workerMux.HandleFunc(queue.TaskTypeAnalysis, dispatcher.ProcessTask)
	go func() {
		if err := workerServer.Run(workerMux); err != nil {
			log.Printf("Asynq worker error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		workerServer.Shutdown()
		runner.Stop()
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func buildAuthMiddleware(cfg *config.Config) *middleware.AuthMiddleware {
	if cfg.OIDC.Issuer != "" {
		verifier, err := auth.NewJWKSVerifier(&cfg.OIDC)
		if err != nil {
			log.Printf("Warning: JWKS verifier unavailable, falling back to HMAC tokens: %v", err)
			return middleware.NewLegacyAuthMiddleware(cfg.JWT.Secret)
		}
		return middleware.NewAuthMiddlewareWithFallback(verifier, cfg.JWT.Secret)
	}
	return middleware.NewLegacyAuthMiddleware(cfg.JWT.Secret)
}

func newWorkerServer(cfg *config.Config) *asynq.Server {
	return asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			Queues: map[string]int{
				queue.QueueAnalysis: 10,
			},
		},
	)
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}

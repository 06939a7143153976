package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
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

	"github.com/wadesconner/rtm-mixer/internal/client"
	"github.com/wadesconner/rtm-mixer/internal/config"
	"github.com/wadesconner/rtm-mixer/internal/engine"
	"github.com/wadesconner/rtm-mixer/internal/handler"
	"github.com/wadesconner/rtm-mixer/internal/middleware"
	"github.com/wadesconner/rtm-mixer/internal/pipeline"
	"github.com/wadesconner/rtm-mixer/internal/service"
	"github.com/wadesconner/rtm-mixer/internal/worker"
	ws "github.com/wadesconner/rtm-mixer/internal/websocket"
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

	// Initialize the DSP engine and the pipeline built on it
	ffmpegEngine := engine.NewFFmpeg(&cfg.Engine)
	if !ffmpegEngine.Available() {
		log.Printf("Warning: engine binary %q not found, mixing disabled", cfg.Engine.FFmpegPath)
	}
	outputSpec := pipeline.OutputSpecFor(cfg.Output.SampleRate, cfg.Output.Channels, cfg.Output.Bitrate)
	stageTimeout := time.Duration(cfg.Engine.StageTimeout) * time.Second
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	runner := pipeline.NewStageRunner(ffmpegEngine, outputSpec, stageTimeout, isDebug)
	orchestrator := pipeline.NewOrchestrator(runner, cfg.Engine.KeepArtifacts)

	// Initialize external clients
	ttsClient := client.NewTTSClient(&cfg.TTS)

	// Initialize R2 client (optional - continues if not configured)
	var storageClient client.StorageClient
	if cfg.R2.AccessKeyID != "" && cfg.R2.SecretAccessKey != "" {
		r2Client, err := client.NewR2Client(&cfg.R2)
		if err != nil {
			log.Printf("Warning: R2 client not initialized: %v", err)
		} else {
			storageClient = r2Client
		}
	} else {
		log.Println("Info: R2 storage not configured, serving outputs from local disk only")
	}

	// Initialize services
	mixService := service.NewMixService(redisClient, asynqClient, orchestrator, ffmpegEngine, cfg.Engine.WorkDir)
	narrateService := service.NewNarrateService(ttsClient)

	// Initialize handlers
	mixHandler := handler.NewMixHandler(mixService, cfg.Engine.KeepArtifacts)
	narrateHandler := handler.NewNarrateHandler(narrateService, validate)

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    3 * handler.MaxUploadBytes,
	})

	// Global middleware
	app.Use(recover.New())
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams}\n"
		log.Println("Debug logging enabled, intermediate artifacts retained")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"engine":  ffmpegEngine.Available(),
				"tts":     ttsClient.IsConfigured(),
				"storage": storageClient != nil,
				"auth":    cfg.JWT.Secret != "",
			},
		})
	})

	// API routes
	api := app.Group("/api", authMiddleware.Authenticate())

	// Mix routes
	mix := api.Group("/mix")
	mix.Post("/", rateLimiter.MixLimit(cfg.RateLimit.MixPerHour), mixHandler.Mix)
	mix.Post("/start", rateLimiter.MixLimit(cfg.RateLimit.MixPerHour), mixHandler.StartMix)
	mix.Get("/status/:jobId", mixHandler.GetStatus)
	mix.Get("/result/:jobId", mixHandler.GetResult)
	mix.Get("/download/:jobId", mixHandler.Download)

	// Narration routes
	api.Post("/narrate", rateLimiter.NarrateLimit(cfg.RateLimit.NarratePerMin), narrateHandler.Narrate)

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
	go startWorkerServer(cfg, mixService, orchestrator, ffmpegEngine, storageClient, hub)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func startWorkerServer(
	cfg *config.Config,
	mixService *service.MixService,
	orchestrator *pipeline.Orchestrator,
	eng engine.Engine,
	storageClient client.StorageClient,
	hub *ws.Hub,
) {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			// Engine runs are CPU bound, keep concurrency low.
			Concurrency: 2,
			Queues: map[string]int{
				"mix": 10,
			},
			LogLevel: asynqLogLevel,
		},
	)

	mixWorker := worker.NewMixWorker(mixService, orchestrator, eng, storageClient, hub)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeMix, mixWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
	}
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

package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/storyscroll/api/internal/client"
	"github.com/storyscroll/api/internal/config"
	"github.com/storyscroll/api/internal/logger"
	"github.com/storyscroll/api/internal/media"
	"github.com/storyscroll/api/internal/pipeline"
	"github.com/storyscroll/api/internal/registry"
	"github.com/storyscroll/api/internal/server"
	"github.com/storyscroll/api/internal/service"
	"github.com/storyscroll/api/internal/source"
	ws "github.com/storyscroll/api/internal/websocket"
	"github.com/storyscroll/api/internal/worker"
)

// @title          StoryScroll API
// @version        0.1.0
// @description    Backend API for StoryScroll, narrated story videos over gameplay footage.
// @host           localhost:8000
// @BasePath       /
// @schemes        http https
// @securityDefinitions.apikey BearerAuth
// @in             header
// @name           Authorization
// @description    Enter your bearer token in the format **Bearer &lt;token&gt;**
func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLog, err := logger.New(cfg.Server.Env, cfg.Server.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer appLog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	// Rate limiting and the Reddit cache only use Redis when it answers at startup
	var sharedRedis *redis.Client
	pingCtx, cancelPing := context.WithTimeout(ctx, 3*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		appLog.Warn("redis not available, rate limiting, caching and sweeps disabled", "addr", cfg.Redis.Addr, "error", err)
	} else {
		sharedRedis = redisClient
	}
	cancelPing()

	// Initialize R2 client (optional - outputs stay local if not configured)
	var r2Client *client.R2Client
	storage := "local"
	if cfg.R2.AccessKeyID != "" && cfg.R2.SecretAccessKey != "" {
		r2Client, err = client.NewR2Client(&cfg.R2)
		if err != nil {
			appLog.Warn("R2 client not initialized", "error", err)
			r2Client = nil
		} else {
			storage = "r2"
		}
	} else {
		appLog.Info("R2 storage not configured, serving outputs locally")
	}

	synthesizer, ttsProvider := newSynthesizer(cfg, appLog)
	appLog.Info("tts provider selected", "provider", ttsProvider)

	// WebSocket hub
	hubCtx, stopHub := context.WithCancel(context.Background())
	hub := ws.NewHub(appLog.With("component", "websocket"))
	go hub.Run(hubCtx)

	// Pipeline
	jobs := registry.New()
	deps := pipeline.Deps{
		Store:       jobs,
		Resolver:    source.NewResolver(cfg.Storage.WorkDir, nil),
		Synthesizer: synthesizer,
		Prober:      media.NewProber(cfg.Media.FFprobePath),
		Compositor:  media.NewCompositor(cfg.Media.FFmpegPath),
		Notifier:    hub,
		Logger:      appLog.With("component", "pipeline"),
	}
	if r2Client != nil {
		deps.Publisher = r2Client
	}
	executor := pipeline.NewExecutor(deps, pipeline.Options{
		WorkDir:   cfg.Storage.WorkDir,
		OutputDir: cfg.Storage.OutputDir,
		Timeouts: pipeline.Timeouts{
			Download:  config.Seconds(cfg.Pipeline.DownloadTimeout),
			Synthesis: config.Seconds(cfg.Pipeline.SynthesisTimeout),
			Probe:     config.Seconds(cfg.Pipeline.ProbeTimeout),
			Composite: config.Seconds(cfg.Pipeline.CompositeTimeout),
			Publish:   config.Seconds(cfg.Pipeline.PublishTimeout),
		},
		MaxConcurrentComposites: cfg.Pipeline.MaxConcurrentComposites,
		Encoder: media.CompositeOptions{
			Width:        cfg.Pipeline.Width,
			Height:       cfg.Pipeline.Height,
			CRF:          cfg.Pipeline.CRF,
			Preset:       cfg.Pipeline.Preset,
			AudioBitrate: cfg.Pipeline.AudioBitrate,
		},
	})

	// Initialize services
	videoService := service.NewVideoService(cfg.Storage.VideosDir)
	storyService := service.NewStoryService(cfg.Storage.UploadsDir)
	redditService := service.NewRedditService(client.NewRedditClient(&cfg.Reddit), sharedRedis, config.Seconds(cfg.Reddit.CacheTTL), appLog.With("component", "reddit"))
	var remote service.RemoteStore
	if r2Client != nil {
		remote = r2Client
	}
	generateService := service.NewGenerateService(jobs, executor, videoService, remote, appLog.With("component", "generate"))

	app := server.New(server.Deps{
		Config:      cfg,
		Log:         appLog,
		Redis:       sharedRedis,
		Hub:         hub,
		Generate:    generateService,
		Story:       storyService,
		Videos:      videoService,
		Reddit:      redditService,
		TTSProvider: ttsProvider,
		Storage:     storage,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		addr := ":" + cfg.Server.Port
		appLog.Info("server starting", "addr", addr, "env", cfg.Server.Env)
		return app.Listen(addr)
	})

	if sharedRedis != nil && cfg.Sweep.Enabled {
		g.Go(func() error {
			return runSweeper(gctx, cfg, jobs, remote, appLog.With("component", "sweep"))
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		appLog.Info("shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			appLog.Error("server shutdown error", "error", err)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := generateService.Shutdown(shutdownCtx); err != nil {
			appLog.Warn("jobs did not finish cleanup before timeout", "error", err)
		}
		stopHub()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		appLog.Fatal("server error", "error", err)
	}
	appLog.Info("server stopped")
}

// newSynthesizer picks the narration provider: the configured one, or
// ElevenLabs when an API key is present and espeak otherwise.
func newSynthesizer(cfg *config.Config, log *logger.Logger) (pipeline.Synthesizer, string) {
	eleven := client.NewElevenLabsClient(&cfg.TTS.ElevenLabs)
	espeak := media.NewEspeakSynthesizer(cfg.TTS.EspeakPath, cfg.Pipeline.DefaultVoice)

	switch strings.ToLower(cfg.TTS.Provider) {
	case "elevenlabs":
		if !eleven.IsConfigured() {
			log.Warn("elevenlabs selected but ELEVENLABS_API_KEY is empty")
		}
		return eleven, eleven.Name()
	case "espeak":
		return espeak, espeak.Name()
	case "":
	default:
		log.Warn("unknown tts provider, choosing automatically", "provider", cfg.TTS.Provider)
	}

	if eleven.IsConfigured() {
		return eleven, eleven.Name()
	}
	return espeak, espeak.Name()
}

// runSweeper schedules maintenance:sweep and serves it until ctx is done.
func runSweeper(ctx context.Context, cfg *config.Config, jobs *registry.Registry, remote worker.RemoteStore, log *logger.Logger) error {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	task, err := worker.NewSweepTask(cfg.Sweep.Retention)
	if err != nil {
		return err
	}

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Logger:   log.SugaredLogger,
		LogLevel: asynqLogLevel,
	})
	if _, err := scheduler.Register(cfg.Sweep.Schedule, task); err != nil {
		return err
	}

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 1,
		Queues: map[string]int{
			worker.QueueSweep: 1,
		},
		Logger:   log.SugaredLogger,
		LogLevel: asynqLogLevel,
	})

	sweepWorker := worker.NewSweepWorker(jobs, cfg.Storage.OutputDir, cfg.Storage.WorkDir, remote, log)

	mux := asynq.NewServeMux()
	mux.HandleFunc(worker.TaskTypeSweep, sweepWorker.ProcessTask)

	if err := srv.Start(mux); err != nil {
		return err
	}
	if err := scheduler.Start(); err != nil {
		srv.Shutdown()
		return err
	}
	log.Info("sweep scheduled", "schedule", cfg.Sweep.Schedule, "retention_hours", cfg.Sweep.Retention)

	<-ctx.Done()
	scheduler.Shutdown()
	srv.Shutdown()
	return nil
}

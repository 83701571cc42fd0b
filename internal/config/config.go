package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	filePath := os.Getenv(envKey + "_FILE")
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	os.Setenv(envKey, strings.TrimSpace(string(data)))
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Storage   StorageConfig
	Pipeline  PipelineConfig
	TTS       TTSConfig
	Media     MediaConfig
	R2        R2Config
	Reddit    RedditConfig
	Sweep     SweepConfig
}

type ServerConfig struct {
	Port         string
	Env          string
	LogLevel     string
	BodyLimitMB  int
	AllowOrigins string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type AuthConfig struct {
	Enabled bool
	Gateway bool
}

type RateLimitConfig struct {
	GeneratePerHour int
	StoryPerMin     int
	RedditPerMin    int
	UploadPerHour   int
}

// StorageConfig holds the local directories the service reads and writes.
type StorageConfig struct {
	OutputDir  string
	WorkDir    string
	VideosDir  string
	UploadsDir string
}

type PipelineConfig struct {
	DownloadTimeout         int // seconds
	SynthesisTimeout        int // seconds
	ProbeTimeout            int // seconds
	CompositeTimeout        int // seconds
	PublishTimeout          int // seconds
	MaxConcurrentComposites int
	DefaultVoice            string
	Width                   int
	Height                  int
	CRF                     int
	Preset                  string
	AudioBitrate            string
}

type TTSConfig struct {
	Provider   string // "elevenlabs", "espeak" or empty for auto
	ElevenLabs ElevenLabsConfig
	EspeakPath string
}

type ElevenLabsConfig struct {
	APIKey  string
	BaseURL string
	ModelID string
	VoiceID string
}

type MediaConfig struct {
	FFmpegPath  string
	FFprobePath string
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type RedditConfig struct {
	BaseURL   string
	UserAgent string
	Timeout   int // seconds
	CacheTTL  int // seconds
}

type SweepConfig struct {
	Enabled   bool
	Schedule  string
	Retention int // hours
}

// Seconds converts a config value in seconds to a duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func Load() (*Config, error) {
	readSecret("REDIS_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("ELEVENLABS_API_KEY")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	bindings := map[string]string{
		"server.port":                        "SERVER_PORT",
		"server.env":                         "SERVER_ENV",
		"server.log_level":                   "LOG_LEVEL",
		"server.body_limit_mb":               "BODY_LIMIT_MB",
		"server.allow_origins":               "CORS_ALLOW_ORIGINS",
		"redis.addr":                         "REDIS_ADDR",
		"redis.password":                     "REDIS_PASSWORD",
		"redis.db":                           "REDIS_DB",
		"jwt.secret":                         "JWT_SECRET",
		"jwt.expiration":                     "JWT_EXPIRATION",
		"auth.enabled":                       "AUTH_ENABLED",
		"auth.gateway":                       "GATEWAY_ENABLED",
		"storage.output_dir":                 "OUTPUT_DIR",
		"storage.work_dir":                   "WORK_DIR",
		"storage.videos_dir":                 "VIDEOS_DIR",
		"storage.uploads_dir":                "UPLOADS_DIR",
		"pipeline.download_timeout":          "DOWNLOAD_TIMEOUT",
		"pipeline.synthesis_timeout":         "SYNTHESIS_TIMEOUT",
		"pipeline.probe_timeout":             "PROBE_TIMEOUT",
		"pipeline.composite_timeout":         "COMPOSITE_TIMEOUT",
		"pipeline.publish_timeout":           "PUBLISH_TIMEOUT",
		"pipeline.max_concurrent_composites": "MAX_CONCURRENT_COMPOSITES",
		"pipeline.default_voice":             "DEFAULT_VOICE",
		"tts.provider":                       "TTS_PROVIDER",
		"tts.elevenlabs.api_key":             "ELEVENLABS_API_KEY",
		"tts.elevenlabs.base_url":            "ELEVENLABS_BASE_URL",
		"tts.elevenlabs.model_id":            "ELEVENLABS_MODEL_ID",
		"tts.elevenlabs.voice_id":            "ELEVENLABS_VOICE_ID",
		"tts.espeak_path":                    "ESPEAK_PATH",
		"media.ffmpeg_path":                  "FFMPEG_PATH",
		"media.ffprobe_path":                 "FFPROBE_PATH",
		"r2.account_id":                      "R2_ACCOUNT_ID",
		"r2.access_key_id":                   "R2_ACCESS_KEY_ID",
		"r2.secret_access_key":               "R2_SECRET_ACCESS_KEY",
		"r2.bucket_name":                     "R2_BUCKET_NAME",
		"r2.public_url":                      "R2_PUBLIC_URL",
		"reddit.base_url":                    "REDDIT_BASE_URL",
		"reddit.cache_ttl":                   "REDDIT_CACHE_TTL",
		"sweep.enabled":                      "SWEEP_ENABLED",
		"sweep.schedule":                     "SWEEP_SCHEDULE",
		"sweep.retention":                    "SWEEP_RETENTION_HOURS",
	}
	for key, env := range bindings {
		_ = v.BindEnv(key, env)
	}

	setDefaults(v)

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:         v.GetString("server.port"),
			Env:          v.GetString("server.env"),
			LogLevel:     v.GetString("server.log_level"),
			BodyLimitMB:  v.GetInt("server.body_limit_mb"),
			AllowOrigins: v.GetString("server.allow_origins"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     v.GetString("jwt.secret"),
			Expiration: v.GetInt("jwt.expiration"),
		},
		Auth: AuthConfig{
			Enabled: v.GetBool("auth.enabled"),
			Gateway: v.GetBool("auth.gateway"),
		},
		RateLimit: RateLimitConfig{
			GeneratePerHour: v.GetInt("ratelimit.generate_per_hour"),
			StoryPerMin:     v.GetInt("ratelimit.story_per_min"),
			RedditPerMin:    v.GetInt("ratelimit.reddit_per_min"),
			UploadPerHour:   v.GetInt("ratelimit.upload_per_hour"),
		},
		Storage: StorageConfig{
			OutputDir:  v.GetString("storage.output_dir"),
			WorkDir:    v.GetString("storage.work_dir"),
			VideosDir:  v.GetString("storage.videos_dir"),
			UploadsDir: v.GetString("storage.uploads_dir"),
		},
		Pipeline: PipelineConfig{
			DownloadTimeout:         v.GetInt("pipeline.download_timeout"),
			SynthesisTimeout:        v.GetInt("pipeline.synthesis_timeout"),
			ProbeTimeout:            v.GetInt("pipeline.probe_timeout"),
			CompositeTimeout:        v.GetInt("pipeline.composite_timeout"),
			PublishTimeout:          v.GetInt("pipeline.publish_timeout"),
			MaxConcurrentComposites: v.GetInt("pipeline.max_concurrent_composites"),
			DefaultVoice:            v.GetString("pipeline.default_voice"),
			Width:                   v.GetInt("pipeline.width"),
			Height:                  v.GetInt("pipeline.height"),
			CRF:                     v.GetInt("pipeline.crf"),
			Preset:                  v.GetString("pipeline.preset"),
			AudioBitrate:            v.GetString("pipeline.audio_bitrate"),
		},
		TTS: TTSConfig{
			Provider: v.GetString("tts.provider"),
			ElevenLabs: ElevenLabsConfig{
				APIKey:  v.GetString("tts.elevenlabs.api_key"),
				BaseURL: v.GetString("tts.elevenlabs.base_url"),
				ModelID: v.GetString("tts.elevenlabs.model_id"),
				VoiceID: v.GetString("tts.elevenlabs.voice_id"),
			},
			EspeakPath: v.GetString("tts.espeak_path"),
		},
		Media: MediaConfig{
			FFmpegPath:  v.GetString("media.ffmpeg_path"),
			FFprobePath: v.GetString("media.ffprobe_path"),
		},
		R2: R2Config{
			AccountID:       v.GetString("r2.account_id"),
			AccessKeyID:     v.GetString("r2.access_key_id"),
			SecretAccessKey: v.GetString("r2.secret_access_key"),
			BucketName:      v.GetString("r2.bucket_name"),
			PublicURL:       v.GetString("r2.public_url"),
		},
		Reddit: RedditConfig{
			BaseURL:   v.GetString("reddit.base_url"),
			UserAgent: v.GetString("reddit.user_agent"),
			Timeout:   v.GetInt("reddit.timeout"),
			CacheTTL:  v.GetInt("reddit.cache_ttl"),
		},
		Sweep: SweepConfig{
			Enabled:   v.GetBool("sweep.enabled"),
			Schedule:  v.GetString("sweep.schedule"),
			Retention: v.GetInt("sweep.retention"),
		},
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.body_limit_mb", 512)
	v.SetDefault("server.allow_origins", "http://localhost:3000,http://127.0.0.1:3000")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "change-me-in-production")
	v.SetDefault("jwt.expiration", 24)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.gateway", false)
	v.SetDefault("ratelimit.generate_per_hour", 20)
	v.SetDefault("ratelimit.story_per_min", 60)
	v.SetDefault("ratelimit.reddit_per_min", 30)
	v.SetDefault("ratelimit.upload_per_hour", 30)

	v.SetDefault("storage.output_dir", "output")
	v.SetDefault("storage.work_dir", "tmp")
	v.SetDefault("storage.videos_dir", "videos")
	v.SetDefault("storage.uploads_dir", "uploads")

	// Pipeline defaults
	v.SetDefault("pipeline.download_timeout", 120)
	v.SetDefault("pipeline.synthesis_timeout", 180)
	v.SetDefault("pipeline.probe_timeout", 30)
	v.SetDefault("pipeline.composite_timeout", 900)
	v.SetDefault("pipeline.publish_timeout", 300)
	v.SetDefault("pipeline.max_concurrent_composites", 2)
	v.SetDefault("pipeline.default_voice", "en")
	v.SetDefault("pipeline.width", 1080)
	v.SetDefault("pipeline.height", 1920)
	v.SetDefault("pipeline.crf", 23)
	v.SetDefault("pipeline.preset", "fast")
	v.SetDefault("pipeline.audio_bitrate", "192k")

	// TTS defaults
	v.SetDefault("tts.provider", "")
	v.SetDefault("tts.elevenlabs.base_url", "https://api.elevenlabs.io")
	v.SetDefault("tts.elevenlabs.model_id", "eleven_multilingual_v2")
	v.SetDefault("tts.elevenlabs.voice_id", "21m00Tcm4TlvDq8ikWAM")
	v.SetDefault("tts.espeak_path", "espeak-ng")

	v.SetDefault("media.ffmpeg_path", "ffmpeg")
	v.SetDefault("media.ffprobe_path", "ffprobe")

	v.SetDefault("reddit.base_url", "https://www.reddit.com")
	v.SetDefault("reddit.user_agent", "StoryScroll/0.1 (story video generator)")
	v.SetDefault("reddit.timeout", 10)
	v.SetDefault("reddit.cache_ttl", 120)

	v.SetDefault("sweep.enabled", true)
	v.SetDefault("sweep.schedule", "@every 1h")
	v.SetDefault("sweep.retention", 24)
}

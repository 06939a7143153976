package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Engine    EngineConfig
	Output    OutputConfig
	TTS       TTSConfig
	R2        R2Config
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type RateLimitConfig struct {
	MixPerHour    int
	NarratePerMin  int
}

// EngineConfig locates the external DSP engine and scopes its runs.
type EngineConfig struct {
	FFmpegPath    string
	FFprobePath   string
	WorkDir       string
	StageTimeout  int // seconds, per pipeline stage
	KeepArtifacts bool
}

// OutputConfig is the encoding applied to every stage output.
type OutputConfig struct {
	SampleRate int
	Channels   int
	Bitrate    string
}

type TTSConfig struct {
	APIKey  string
	BaseURL string
	Voice   string
	Timeout int // seconds
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("TTS_API_KEY")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("engine.ffmpeg_path", "FFMPEG_PATH")
	_ = viper.BindEnv("engine.ffprobe_path", "FFPROBE_PATH")
	_ = viper.BindEnv("engine.work_dir", "MIX_WORK_DIR")
	_ = viper.BindEnv("engine.stage_timeout", "STAGE_TIMEOUT")
	_ = viper.BindEnv("engine.keep_artifacts", "KEEP_ARTIFACTS")
	_ = viper.BindEnv("output.sample_rate", "OUTPUT_SAMPLE_RATE")
	_ = viper.BindEnv("output.channels", "OUTPUT_CHANNELS")
	_ = viper.BindEnv("output.bitrate", "OUTPUT_BITRATE")
	_ = viper.BindEnv("tts.api_key", "TTS_API_KEY")
	_ = viper.BindEnv("tts.base_url", "TTS_BASE_URL")
	_ = viper.BindEnv("tts.voice", "TTS_VOICE")
	_ = viper.BindEnv("tts.timeout", "TTS_TIMEOUT")
	_ = viper.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = viper.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = viper.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = viper.BindEnv("r2.public_url", "R2_PUBLIC_URL")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "")
	viper.SetDefault("ratelimit.mix_per_hour", 20)
	viper.SetDefault("ratelimit.narrate_per_min", 10)

	// Engine defaults
	viper.SetDefault("engine.ffmpeg_path", "ffmpeg")
	viper.SetDefault("engine.ffprobe_path", "ffprobe")
	viper.SetDefault("engine.work_dir", os.TempDir())
	viper.SetDefault("engine.stage_timeout", 300)
	viper.SetDefault("engine.keep_artifacts", false)

	// Output encoding defaults
	viper.SetDefault("output.sample_rate", 48000)
	viper.SetDefault("output.channels", 2)
	viper.SetDefault("output.bitrate", "192k")

	// TTS defaults
	viper.SetDefault("tts.base_url", "https://api.deepgram.com")
	viper.SetDefault("tts.voice", "aura-stella-en")
	viper.SetDefault("tts.timeout", 60)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     viper.GetString("server.port"),
			Env:      viper.GetString("server.env"),
			LogLevel: viper.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret: viper.GetString("jwt.secret"),
		},
		RateLimit: RateLimitConfig{
			MixPerHour:   viper.GetInt("ratelimit.mix_per_hour"),
			NarratePerMin: viper.GetInt("ratelimit.narrate_per_min"),
		},
		Engine: EngineConfig{
			FFmpegPath:    viper.GetString("engine.ffmpeg_path"),
			FFprobePath:   viper.GetString("engine.ffprobe_path"),
			WorkDir:       viper.GetString("engine.work_dir"),
			StageTimeout:  viper.GetInt("engine.stage_timeout"),
			KeepArtifacts: viper.GetBool("engine.keep_artifacts"),
		},
		Output: OutputConfig{
			SampleRate: viper.GetInt("output.sample_rate"),
			Channels:   viper.GetInt("output.channels"),
			Bitrate:    viper.GetString("output.bitrate"),
		},
		TTS: TTSConfig{
			APIKey:  viper.GetString("tts.api_key"),
			BaseURL: viper.GetString("tts.base_url"),
			Voice:   viper.GetString("tts.voice"),
			Timeout: viper.GetInt("tts.timeout"),
		},
		R2: R2Config{
			AccountID:       viper.GetString("r2.account_id"),
			AccessKeyID:     viper.GetString("r2.access_key_id"),
			SecretAccessKey: viper.GetString("r2.secret_access_key"),
			BucketName:      viper.GetString("r2.bucket_name"),
			PublicURL:       viper.GetString("r2.public_url"),
		},
	}

	// Debug log level keeps intermediates for inspection, same switch the
	// CLI mixer honored via RTM_DEBUG.
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		cfg.Engine.KeepArtifacts = true
	}

	return cfg, nil
}

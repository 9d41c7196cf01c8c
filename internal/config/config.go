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
	Server        ServerConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Worker        WorkerConfig
	LLM           LLMConfig
	Transcription TranscriptionConfig
	Storage       StorageConfig
	Proxy         ProxyConfig
	RateLimit     RateLimitConfig
	OIDC          OIDCConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	ApiDomain string
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

// WorkerConfig addresses the background worker. BaseURL is the worker's
// root address and doubles as the audience of every task credential; the
// queue client refuses to start when it carries a sub-path.
type WorkerConfig struct {
	BaseURL             string
	TaskSecret          string
	DispatchDeadlineMin int
	Concurrency         int
	RetentionHours      int
	JobRetentionDays    int
}

type LLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type TranscriptionConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
}

type StorageConfig struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
}

type ProxyConfig struct {
	URLs []string
}

type RateLimitConfig struct {
	SubmitPerMin int
	BulkPerHour  int
}

type OIDCConfig struct {
	Domain   string
	ClientID string
	Issuer   string
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("WORKER_TASK_SECRET")
	readSecret("LLM_API_KEY")
	readSecret("TRANSCRIPTION_API_KEY")
	readSecret("STORAGE_ACCESS_KEY_ID")
	readSecret("STORAGE_SECRET_ACCESS_KEY")
	readSecret("OIDC_CLIENT_ID")

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
	_ = viper.BindEnv("server.api_domain", "API_DOMAIN")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = viper.BindEnv("worker.base_url", "WORKER_BASE_URL")
	_ = viper.BindEnv("worker.task_secret", "WORKER_TASK_SECRET")
	_ = viper.BindEnv("worker.dispatch_deadline_min", "WORKER_DISPATCH_DEADLINE_MIN")
	_ = viper.BindEnv("worker.concurrency", "WORKER_CONCURRENCY")
	_ = viper.BindEnv("worker.retention_hours", "WORKER_RETENTION_HOURS")
	_ = viper.BindEnv("worker.job_retention_days", "WORKER_JOB_RETENTION_DAYS")
	_ = viper.BindEnv("llm.api_key", "LLM_API_KEY")
	_ = viper.BindEnv("llm.base_url", "LLM_BASE_URL")
	_ = viper.BindEnv("llm.model", "LLM_MODEL")
	_ = viper.BindEnv("transcription.api_key", "TRANSCRIPTION_API_KEY")
	_ = viper.BindEnv("transcription.base_url", "TRANSCRIPTION_BASE_URL")
	_ = viper.BindEnv("transcription.default_model", "TRANSCRIPTION_DEFAULT_MODEL")
	_ = viper.BindEnv("storage.account_id", "STORAGE_ACCOUNT_ID")
	_ = viper.BindEnv("storage.access_key_id", "STORAGE_ACCESS_KEY_ID")
	_ = viper.BindEnv("storage.secret_access_key", "STORAGE_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("storage.bucket_name", "STORAGE_BUCKET_NAME")
	_ = viper.BindEnv("proxy.urls", "PROXY_URLS")
	_ = viper.BindEnv("ratelimit.submit_per_min", "RATELIMIT_SUBMIT_PER_MIN")
	_ = viper.BindEnv("ratelimit.bulk_per_hour", "RATELIMIT_BULK_PER_HOUR")
	_ = viper.BindEnv("oidc.domain", "OIDC_DOMAIN")
	_ = viper.BindEnv("oidc.client_id", "OIDC_CLIENT_ID")
	_ = viper.BindEnv("oidc.issuer", "OIDC_ISSUER")

	// Defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiration", 24)

	// Worker defaults
	viper.SetDefault("worker.base_url", "http://localhost:8080")
	viper.SetDefault("worker.dispatch_deadline_min", 15)
	viper.SetDefault("worker.concurrency", 10)
	viper.SetDefault("worker.retention_hours", 24)
	viper.SetDefault("worker.job_retention_days", 7)

	// LLM defaults
	viper.SetDefault("llm.base_url", "https://api.groq.com/openai/v1")
	viper.SetDefault("llm.model", "llama-3.3-70b-versatile")

	// Transcription defaults
	viper.SetDefault("transcription.base_url", "https://api.assemblyai.com/v2")
	viper.SetDefault("transcription.default_model", "universal")

	// Rate limit defaults
	viper.SetDefault("ratelimit.submit_per_min", 10)
	viper.SetDefault("ratelimit.bulk_per_hour", 5)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	var proxyURLs []string
	for _, u := range strings.Split(viper.GetString("proxy.urls"), ",") {
		if u = strings.TrimSpace(u); u != "" {
			proxyURLs = append(proxyURLs, u)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:      viper.GetString("server.port"),
			Env:       viper.GetString("server.env"),
			LogLevel:  viper.GetString("server.log_level"),
			ApiDomain: viper.GetString("server.api_domain"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     viper.GetString("jwt.secret"),
			Expiration: viper.GetInt("jwt.expiration"),
		},
		Worker: WorkerConfig{
			BaseURL:             viper.GetString("worker.base_url"),
			TaskSecret:          viper.GetString("worker.task_secret"),
			DispatchDeadlineMin: viper.GetInt("worker.dispatch_deadline_min"),
			Concurrency:         viper.GetInt("worker.concurrency"),
			RetentionHours:      viper.GetInt("worker.retention_hours"),
			JobRetentionDays:    viper.GetInt("worker.job_retention_days"),
		},
		LLM: LLMConfig{
			APIKey:  viper.GetString("llm.api_key"),
			BaseURL: viper.GetString("llm.base_url"),
			Model:   viper.GetString("llm.model"),
		},
		Transcription: TranscriptionConfig{
			APIKey:       viper.GetString("transcription.api_key"),
			BaseURL:      viper.GetString("transcription.base_url"),
			DefaultModel: viper.GetString("transcription.default_model"),
		},
		Storage: StorageConfig{
			AccountID:       viper.GetString("storage.account_id"),
			AccessKeyID:     viper.GetString("storage.access_key_id"),
			SecretAccessKey: viper.GetString("storage.secret_access_key"),
			BucketName:      viper.GetString("storage.bucket_name"),
		},
		Proxy: ProxyConfig{
			URLs: proxyURLs,
		},
		RateLimit: RateLimitConfig{
			SubmitPerMin: viper.GetInt("ratelimit.submit_per_min"),
			BulkPerHour:  viper.GetInt("ratelimit.bulk_per_hour"),
		},
		OIDC: OIDCConfig{
			Domain:   viper.GetString("oidc.domain"),
			ClientID: viper.GetString("oidc.client_id"),
			Issuer:   viper.GetString("oidc.issuer"),
		},
	}

	return cfg, nil
}

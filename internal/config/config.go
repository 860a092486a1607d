// Package config 负责加载和管理应用程序的配置。
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// 全局配置变量，由命令行入口加载后填充，供装配层使用。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Log           LogConfig           `mapstructure:"log"`
	Queue         QueueConfig         `mapstructure:"queue"`
	Tika          TikaConfig          `mapstructure:"tika"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	VectorStore   VectorStoreConfig   `mapstructure:"vector_store"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	LLM           LLMConfig           `mapstructure:"llm"`
	RAG           RAGConfig           `mapstructure:"rag"`
	Ingest        IngestConfig        `mapstructure:"ingest"`
	RateLimit     RateLimitConfig     `mapstructure:"ratelimit"`
	Telemetry     TelemetryConfig     `mapstructure:"telemetry"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port        string   `mapstructure:"port"`
	Mode        string   `mapstructure:"mode"`
	CORSOrigins []string `mapstructure:"cors_origins"`
	MaxUploadMB int64    `mapstructure:"max_upload_mb"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// PostgresConfig 仅在 vector_store.backend=pgvector 时使用。
type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储 JWT 相关的配置。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
	RefreshTokenExpireDays int    `mapstructure:"refresh_token_expire_days"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// QueueConfig 选择后台摄取任务的投递方式。
type QueueConfig struct {
	Backend     string           `mapstructure:"backend"` // kafka | asynq | local
	MaxAttempts int              `mapstructure:"max_attempts"`
	Kafka       KafkaConfig      `mapstructure:"kafka"`
	Asynq       AsynqConfig      `mapstructure:"asynq"`
	Local       LocalQueueConfig `mapstructure:"local"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// AsynqConfig 存储 asynq worker 的配置，Redis 连接复用 database.redis。
type AsynqConfig struct {
	Concurrency int           `mapstructure:"concurrency"`
	Queue       string        `mapstructure:"queue"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// LocalQueueConfig 进程内 worker 池。
type LocalQueueConfig struct {
	Workers int `mapstructure:"workers"`
	Buffer  int `mapstructure:"buffer"`
}

// TikaConfig 存储 Tika 服务器相关的配置，为空时不启用 Tika 兜底。
type TikaConfig struct {
	ServerURL    string        `mapstructure:"server_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxTextBytes int64         `mapstructure:"max_text_bytes"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// VectorStoreConfig 选择向量索引后端。
type VectorStoreConfig struct {
	Backend string `mapstructure:"backend"` // elasticsearch | pgvector | memory
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	Provider   string        `mapstructure:"provider"` // openai | google
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	Model      string        `mapstructure:"model"`
	Dimensions int           `mapstructure:"dimensions"`
	BatchSize  int           `mapstructure:"batch_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	APIKey  string              `mapstructure:"api_key"`
	BaseURL string              `mapstructure:"base_url"`
	Model   string              `mapstructure:"model"`
	Timeout time.Duration       `mapstructure:"timeout"`
	Answer  LLMGenerationConfig `mapstructure:"answer"`
	Summary LLMGenerationConfig `mapstructure:"summary"`
	Breaker BreakerConfig       `mapstructure:"breaker"`
}

// LLMGenerationConfig 配置生成相关参数。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// BreakerConfig 配置 LLM 调用的熔断器。
type BreakerConfig struct {
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`
	OpenTimeout         time.Duration `mapstructure:"open_timeout"`
}

// RAGConfig 检索增强相关的参数。
type RAGConfig struct {
	ChunkSize        int `mapstructure:"chunk_size"`
	ChunkOverlap     int `mapstructure:"chunk_overlap"`
	TopK             int `mapstructure:"top_k"`
	GlobalTopK       int `mapstructure:"global_top_k"`
	MaxQuestionChars int `mapstructure:"max_question_chars"`
	SummaryClipChars int `mapstructure:"summary_clip_chars"`
	ExcerptChars     int `mapstructure:"excerpt_chars"`
}

// IngestConfig 摄取流程相关的配置。
type IngestConfig struct {
	AutoStart     bool          `mapstructure:"auto_start"`
	LockTTL       time.Duration `mapstructure:"lock_ttl"`
	StaleAfter    time.Duration `mapstructure:"stale_after"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	SeedDir       string        `mapstructure:"seed_dir"`
	SeedOwner     string        `mapstructure:"seed_owner"`
}

// RateLimitConfig 每用户每分钟请求数，0 表示不限流。
type RateLimitConfig struct {
	AskPerMinute    int `mapstructure:"ask_per_minute"`
	UploadPerMinute int `mapstructure:"upload_per_minute"`
}

// TelemetryConfig OpenTelemetry 链路追踪配置。
type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8081")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.max_upload_mb", 50)

	v.SetDefault("database.mysql.dsn", "root:root@tcp(127.0.0.1:3306)/smartdoc?charset=utf8mb4&parseTime=True&loc=Local")
	v.SetDefault("database.postgres.dsn", "")
	v.SetDefault("database.redis.addr", "127.0.0.1:6379")
	v.SetDefault("database.redis.password", "")
	v.SetDefault("database.redis.db", 0)

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.access_token_expire_hours", 24)
	v.SetDefault("jwt.refresh_token_expire_days", 7)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output_path", "")

	v.SetDefault("queue.backend", "kafka")
	v.SetDefault("queue.max_attempts", 3)
	v.SetDefault("queue.kafka.brokers", "127.0.0.1:9092")
	v.SetDefault("queue.kafka.topic", "document-ingest")
	v.SetDefault("queue.kafka.group_id", "smartdoc-ingest")
	v.SetDefault("queue.asynq.concurrency", 4)
	v.SetDefault("queue.asynq.queue", "critical")
	v.SetDefault("queue.asynq.timeout", "30m")
	v.SetDefault("queue.local.workers", 2)
	v.SetDefault("queue.local.buffer", 64)

	v.SetDefault("tika.server_url", "")
	v.SetDefault("tika.timeout", "2m")
	v.SetDefault("tika.max_text_bytes", 32<<20)

	v.SetDefault("elasticsearch.addresses", "http://127.0.0.1:9200")
	v.SetDefault("elasticsearch.username", "")
	v.SetDefault("elasticsearch.password", "")
	v.SetDefault("elasticsearch.index_name", "document_chunks")

	v.SetDefault("minio.endpoint", "127.0.0.1:9000")
	v.SetDefault("minio.access_key_id", "")
	v.SetDefault("minio.secret_access_key", "")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket_name", "smartdoc")

	v.SetDefault("vector_store.backend", "elasticsearch")

	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.base_url", "https://api.openai.com/v1")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimensions", 0)
	v.SetDefault("embedding.batch_size", 16)
	v.SetDefault("embedding.timeout", "30s")

	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("llm.model", "llama-3.3-70b-versatile")
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.answer.temperature", 0.2)
	v.SetDefault("llm.answer.top_p", 0)
	v.SetDefault("llm.answer.max_tokens", 800)
	v.SetDefault("llm.summary.temperature", 0.3)
	v.SetDefault("llm.summary.top_p", 0)
	v.SetDefault("llm.summary.max_tokens", 500)
	v.SetDefault("llm.breaker.consecutive_failures", 5)
	v.SetDefault("llm.breaker.open_timeout", "30s")

	v.SetDefault("rag.chunk_size", 1000)
	v.SetDefault("rag.chunk_overlap", 200)
	v.SetDefault("rag.top_k", 3)
	v.SetDefault("rag.global_top_k", 5)
	v.SetDefault("rag.max_question_chars", 500)
	v.SetDefault("rag.summary_clip_chars", 15000)
	v.SetDefault("rag.excerpt_chars", 200)

	v.SetDefault("ingest.auto_start", true)
	v.SetDefault("ingest.lock_ttl", "30m")
	v.SetDefault("ingest.stale_after", "45m")
	v.SetDefault("ingest.sweep_interval", "5m")
	v.SetDefault("ingest.seed_dir", "initfile")
	v.SetDefault("ingest.seed_owner", "admin")

	v.SetDefault("ratelimit.ask_per_minute", 20)
	v.SetDefault("ratelimit.upload_per_minute", 5)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "smartdoc-go")
	v.SetDefault("telemetry.endpoint", "localhost:4317")
	v.SetDefault("telemetry.sample_ratio", 0.1)
}

// Load 读取配置文件（可选）、.env 文件（可选）和 SMARTDOC_ 前缀的环境变量。
// 环境变量优先级最高，例如 SMARTDOC_LLM_API_KEY 覆盖 llm.api_key。
func Load(configPath string) (Config, error) {
	var cfg Config

	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return cfg, fmt.Errorf("加载 .env 文件失败: %w", err)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("SMARTDOC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return cfg, fmt.Errorf("读取配置文件失败: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("无法访问配置文件: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate 检查互相依赖的配置项。
func (c Config) Validate() error {
	if c.RAG.ChunkSize <= 0 {
		return fmt.Errorf("rag.chunk_size 必须大于 0, 当前为 %d", c.RAG.ChunkSize)
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("rag.chunk_overlap 必须在 [0, chunk_size) 之间, 当前为 %d", c.RAG.ChunkOverlap)
	}
	if c.RAG.TopK <= 0 || c.RAG.GlobalTopK <= 0 {
		return errors.New("rag.top_k 和 rag.global_top_k 必须大于 0")
	}
	if c.RAG.MaxQuestionChars <= 0 {
		return errors.New("rag.max_question_chars 必须大于 0")
	}
	if c.Ingest.LockTTL <= 0 || c.Ingest.StaleAfter <= c.Ingest.LockTTL {
		return fmt.Errorf("ingest.stale_after (%s) 必须大于 ingest.lock_ttl (%s)", c.Ingest.StaleAfter, c.Ingest.LockTTL)
	}
	switch c.Queue.Backend {
	case "kafka", "asynq", "local":
	default:
		return fmt.Errorf("未知的 queue.backend: %q", c.Queue.Backend)
	}
	switch c.VectorStore.Backend {
	case "elasticsearch", "memory":
	case "pgvector":
		if c.Database.Postgres.DSN == "" {
			return errors.New("vector_store.backend=pgvector 需要配置 database.postgres.dsn")
		}
	default:
		return fmt.Errorf("未知的 vector_store.backend: %q", c.VectorStore.Backend)
	}
	switch c.Embedding.Provider {
	case "openai", "google":
	default:
		return fmt.Errorf("未知的 embedding.provider: %q", c.Embedding.Provider)
	}
	return nil
}

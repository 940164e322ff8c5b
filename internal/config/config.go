// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Log       LogConfig       `mapstructure:"log"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Tika      TikaConfig      `mapstructure:"tika"`
	MinIO     MinIOConfig     `mapstructure:"minio"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	LLM       LLMConfig       `mapstructure:"llm"`
	RAG       RAGConfig       `mapstructure:"rag"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

// TikaConfig 存储 Tika 服务器相关的配置。
type TikaConfig struct {
	ServerURL string `mapstructure:"server_url"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
	// BatchSize 控制每次调用 Embedding API 的条目数，用于遵守 token 速率预算。
	BatchSize int `mapstructure:"batch_size"`
	// BatchDelayMs 为批次之间的协作式延迟（毫秒）。
	BatchDelayMs int `mapstructure:"batch_delay_ms"`
}

// LLMConfig 存储大语言模型相关的配置。
// 同时支持 OpenAI 兼容与 Anthropic 两种 API 形态的凭证。
type LLMConfig struct {
	OpenAI       LLMProviderConfig `mapstructure:"openai"`
	Anthropic    LLMProviderConfig `mapstructure:"anthropic"`
	DefaultModel string            `mapstructure:"default_model"`
}

// LLMProviderConfig 是单个 LLM 提供方的连接配置。
type LLMProviderConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// RAGConfig 集中存放检索增强生成相关的调优参数。
type RAGConfig struct {
	// TopK 为单次向量检索返回的分块数。
	TopK int `mapstructure:"top_k"`
	// MaxVisualFindings 为拼入上下文的视觉识别结果上限。
	MaxVisualFindings int `mapstructure:"max_visual_findings"`
	// MaxCalloutChunks 为通过详图索引扩展补充的分块上限。
	MaxCalloutChunks int `mapstructure:"max_callout_chunks"`
	// ChunkContentLimit 为单页文本入库的最大字符数，超出部分截断。
	ChunkContentLimit int `mapstructure:"chunk_content_limit"`
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("读取配置文件失败: %w", err))
	}

	if err := viper.Unmarshal(&Conf); err != nil {
		panic(fmt.Errorf("无法将配置解析到结构体中: %w", err))
	}

	applyDefaults()
}

// applyDefaults 为未配置的调优参数填充默认值。
func applyDefaults() {
	if Conf.Embedding.BatchSize <= 0 {
		Conf.Embedding.BatchSize = 5
	}
	if Conf.Embedding.BatchDelayMs <= 0 {
		Conf.Embedding.BatchDelayMs = 500
	}
	if Conf.RAG.TopK <= 0 {
		Conf.RAG.TopK = 10
	}
	if Conf.RAG.MaxVisualFindings <= 0 {
		Conf.RAG.MaxVisualFindings = 5
	}
	if Conf.RAG.MaxCalloutChunks <= 0 {
		Conf.RAG.MaxCalloutChunks = 5
	}
	if Conf.RAG.ChunkContentLimit <= 0 {
		Conf.RAG.ChunkContentLimit = 8000
	}
}

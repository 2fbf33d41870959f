// Package config 提供了云函数引擎的配置管理功能。
// 该包负责从 YAML 配置文件加载配置，并支持通过环境变量覆盖敏感配置项（如密码和密钥）。
// 配置包含了服务器、认证、执行引擎、存储、事件、日志、指标和遥测等多个方面的设置。
package config

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 是应用程序的主配置结构体，包含所有子系统的配置。
// 该结构体通过 YAML 标签与配置文件进行映射。
type Config struct {
	// Server 服务器配置，包括 HTTP 端口、指标端口等
	Server ServerConfig `yaml:"server"`
	// Auth 认证配置，包括 JWT 密钥和有效期
	Auth AuthConfig `yaml:"auth"`
	// Engine 执行引擎配置，指定运行时变体与执行预算
	Engine EngineConfig `yaml:"engine"`
	// Storage 存储配置，包括 PostgreSQL、Redis 和对象存储根目录
	Storage StorageConfig `yaml:"storage"`
	// Events 事件配置，包括 NATS 消息队列连接信息
	Events EventsConfig `yaml:"events"`
	// Logging 日志配置，包括日志级别和格式
	Logging LoggingConfig `yaml:"logging"`
	// Metrics 指标配置，用于 Prometheus 监控
	Metrics MetricsConfig `yaml:"metrics"`
	// Telemetry 遥测配置，用于分布式追踪
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig 服务器配置结构体。
type ServerConfig struct {
	// HTTPPort HTTP API 服务端口
	// 默认值：8080
	HTTPPort int `yaml:"http_port"`
	// MetricsPort 指标服务端口，用于 Prometheus 指标暴露
	// 默认值：9090
	MetricsPort int `yaml:"metrics_port"`
	// ShutdownTimeout 优雅关闭超时时间
	// 默认值：30 秒
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AuthConfig 认证配置结构体。
// 定义了令牌能力（getToken/parseToken）所使用的 JWT 设置。
type AuthConfig struct {
	// JWTSecret JWT 签名密钥，可通过环境变量 HALO_AUTH_JWT_SECRET 或
	// HALO_AUTH_JWT_SECRET_FILE（文件路径）覆盖
	JWTSecret string `yaml:"jwt_secret"`
	// JWTExpiration JWT 令牌过期时间
	// 默认值：24 小时
	JWTExpiration time.Duration `yaml:"jwt_expiration"`
}

// EngineConfig 执行引擎配置结构体。
// 定义了运行时变体的选择与每次调用的执行预算。
type EngineConfig struct {
	// Mode 运行时变体，可选值为 "goja"（进程内 JS 解释器）或 "wasm"（wazero）
	// 默认值：goja
	Mode string `yaml:"mode"`
	// Timeout 单次执行的时间预算，超出后以执行超时失败
	// 默认值：30 秒
	Timeout time.Duration `yaml:"timeout"`
	// MaxLogLines 单次执行可产生的最大日志行数
	// 默认值：1000
	MaxLogLines int `yaml:"max_log_lines"`
	// MaxDepth 嵌套调用的最大深度，超出后以递归上限失败
	// 默认值：8
	MaxDepth int `yaml:"max_depth"`
	// Namespace 对象存储能力的默认命名空间（租户/应用标识）
	// 默认值：default
	Namespace string `yaml:"namespace"`
}

// StorageConfig 存储配置结构体。
// 包含各种数据存储后端的配置。
type StorageConfig struct {
	// Postgres PostgreSQL 数据库配置
	Postgres PostgresConfig `yaml:"postgres"`
	// Redis Redis 缓存配置
	Redis RedisConfig `yaml:"redis"`
	// BlobRoot 对象存储的本地根目录
	// 默认值：/var/halo/blobs
	BlobRoot string `yaml:"blob_root"`
}

// PostgresConfig PostgreSQL 数据库配置结构体。
type PostgresConfig struct {
	// Host 数据库主机地址
	Host string `yaml:"host"`
	// Port 数据库端口号
	Port int `yaml:"port"`
	// Database 数据库名称
	Database string `yaml:"database"`
	// User 数据库用户名
	User string `yaml:"user"`
	// Password 数据库密码，可通过环境变量 HALO_POSTGRES_PASSWORD 或
	// HALO_POSTGRES_PASSWORD_FILE（文件路径）覆盖
	Password string `yaml:"password"`
	// MaxConnections 最大连接数
	MaxConnections int `yaml:"max_connections"`
}

// RedisConfig Redis 缓存配置结构体。
// Redis 用作函数定义的读缓存；未启用时直接访问 PostgreSQL。
type RedisConfig struct {
	// Enabled 是否启用 Redis 定义缓存
	Enabled bool `yaml:"enabled"`
	// Address Redis 服务器地址，格式为 "host:port"
	Address string `yaml:"address"`
	// Password Redis 密码，可通过环境变量 HALO_REDIS_PASSWORD 或
	// HALO_REDIS_PASSWORD_FILE（文件路径）覆盖
	Password string `yaml:"password"`
	// DB Redis 数据库编号（0-15）
	DB int `yaml:"db"`
	// CacheTTL 定义缓存的有效期
	// 默认值：30 秒
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// EventsConfig 事件配置结构体。
type EventsConfig struct {
	// Enabled 是否启用 NATS 事件总线；未启用时 emit 能力为进程内空实现
	Enabled bool `yaml:"enabled"`
	// NatsURL NATS 消息服务器 URL，如 "nats://localhost:4222"
	NatsURL string `yaml:"nats_url"`
}

// LoggingConfig 日志配置结构体。
type LoggingConfig struct {
	// Level 日志级别，可选值：debug、info、warn、error
	Level string `yaml:"level"`
	// Format 日志格式，可选值：json、text
	Format string `yaml:"format"`
}

// MetricsConfig 指标配置结构体。
type MetricsConfig struct {
	// Enabled 是否启用指标收集
	Enabled bool `yaml:"enabled"`
	// Namespace 指标命名空间前缀
	Namespace string `yaml:"namespace"`
}

// TelemetryConfig 遥测配置结构体。
// 定义了分布式追踪的相关设置，支持 OpenTelemetry 协议。
type TelemetryConfig struct {
	// Enabled 是否启用遥测
	Enabled bool `yaml:"enabled"`
	// Endpoint OTLP 端点地址（如 "tempo:4317"）
	// 默认值：tempo:4317
	Endpoint string `yaml:"endpoint"`
	// ServiceName 服务名称，用于追踪标识
	// 默认值：halo-engine
	ServiceName string `yaml:"service_name"`
	// SampleRate 采样率，范围 0.0 到 1.0
	// 默认值：0.1（10% 采样）
	SampleRate float64 `yaml:"sample_rate"`
	// Environment 环境标识（如 production、staging、development）
	// 默认值：development
	Environment string `yaml:"environment"`
}

// Load 从指定路径加载配置文件。
// 该函数会读取 YAML 配置文件，应用默认值，并处理环境变量覆盖。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()
	return cfg, nil
}

// Default 返回一份仅含默认值的配置，用于测试和本地模式。
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyEnvOverrides 应用环境变量覆盖。
// 该方法允许通过环境变量覆盖敏感配置项，支持两种方式：
// 1. 直接设置环境变量（如 HALO_POSTGRES_PASSWORD）
// 2. 通过 _FILE 后缀指定包含密钥的文件路径（如 HALO_POSTGRES_PASSWORD_FILE）
// _FILE 方式优先级更高，适用于 Docker Secrets 等场景。
func (c *Config) applyEnvOverrides() {
	if v := readEnvOrFile("HALO_POSTGRES_PASSWORD", "HALO_POSTGRES_PASSWORD_FILE"); v != "" {
		c.Storage.Postgres.Password = v
	}
	if v := readEnvOrFile("HALO_REDIS_PASSWORD", "HALO_REDIS_PASSWORD_FILE"); v != "" {
		c.Storage.Redis.Password = v
	}
	if v := readEnvOrFile("HALO_AUTH_JWT_SECRET", "HALO_AUTH_JWT_SECRET_FILE"); v != "" {
		c.Auth.JWTSecret = v
	}
}

// readEnvOrFile 从环境变量或文件读取配置值。
// 优先从 fileKey 指定的文件路径读取，文件不存在或读取失败时回退到 envKey。
func readEnvOrFile(envKey, fileKey string) string {
	if filePath := strings.TrimSpace(os.Getenv(fileKey)); filePath != "" {
		if b, err := os.ReadFile(filePath); err == nil {
			return strings.TrimSpace(string(b))
		}
	}
	return strings.TrimSpace(os.Getenv(envKey))
}

// applyDefaults 应用默认配置值。
// 该方法为未设置的配置项填充合理的默认值，确保应用可以正常运行。
func (c *Config) applyDefaults() {
	// HTTP 端口默认为 8080
	if c.Server.HTTPPort == 0 {
		c.Server.HTTPPort = 8080
	}
	// 指标端口默认为 9090
	if c.Server.MetricsPort == 0 {
		c.Server.MetricsPort = 9090
	}
	// 优雅关闭超时默认为 30 秒
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	// JWT 过期时间默认为 24 小时
	if c.Auth.JWTExpiration == 0 {
		c.Auth.JWTExpiration = 24 * time.Hour
	}
	// 运行时变体默认为 goja
	if c.Engine.Mode == "" {
		c.Engine.Mode = "goja"
	}
	// 执行时间预算默认为 30 秒
	if c.Engine.Timeout == 0 {
		c.Engine.Timeout = 30 * time.Second
	}
	// 日志行数上限默认为 1000
	if c.Engine.MaxLogLines == 0 {
		c.Engine.MaxLogLines = 1000
	}
	// 嵌套调用深度上限默认为 8
	if c.Engine.MaxDepth == 0 {
		c.Engine.MaxDepth = 8
	}
	// 存储命名空间默认为 default
	if c.Engine.Namespace == "" {
		c.Engine.Namespace = "default"
	}
	// 对象存储根目录默认为 /var/halo/blobs
	if c.Storage.BlobRoot == "" {
		c.Storage.BlobRoot = "/var/halo/blobs"
	}
	// 定义缓存有效期默认为 30 秒
	if c.Storage.Redis.CacheTTL == 0 {
		c.Storage.Redis.CacheTTL = 30 * time.Second
	}
	// 指标命名空间默认为 halo
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "halo"
	}
	// 遥测服务名称默认为 halo-engine
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "halo-engine"
	}
	// OTLP 端点默认为 tempo:4317
	if c.Telemetry.Endpoint == "" {
		c.Telemetry.Endpoint = "tempo:4317"
	}
	// 采样率默认为 10%
	if c.Telemetry.SampleRate == 0 {
		c.Telemetry.SampleRate = 0.1
	}
	// 环境标识默认为 development
	if c.Telemetry.Environment == "" {
		c.Telemetry.Environment = "development"
	}
}

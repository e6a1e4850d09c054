// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Session   SessionConfig   `mapstructure:"session"`
	Intercept InterceptConfig `mapstructure:"intercept"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Export    ExportConfig    `mapstructure:"export"`
	Database  DatabaseConfig  `mapstructure:"database"`
	MinIO     MinIOConfig     `mapstructure:"minio"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
}

// ServerConfig 存储服务器相关的配置。PublicURL 是注入脚本回调本服务时使用的地址，
// AllowedOrigins 是允许跨域调用的页面来源。
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Mode           string   `mapstructure:"mode"`
	PublicURL      string   `mapstructure:"public_url"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// SessionConfig 存储会话令牌 (JWT) 相关的配置。
type SessionConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

// InterceptConfig 描述需要拦截的两个接口以及接入模式。
// Mode: "sync" 在 HTTP 请求内直接处理；"kafka" 投递到 Kafka 由消费者顺序处理。
type InterceptConfig struct {
	InfoURL      string `mapstructure:"info_url"`
	HistoriesURL string `mapstructure:"histories_url"`
	Mode         string `mapstructure:"mode"`
}

// CacheConfig 存储响应缓存相关的配置。Backend 取值 "memory" 或 "redis"。
type CacheConfig struct {
	Backend string        `mapstructure:"backend"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// ExportConfig 存储导出相关的配置。
// Store 取值 "local" 或 "minio"；AnchorID/HeaderClass/HeaderText 会写入注入脚本。
type ExportConfig struct {
	Delay       time.Duration `mapstructure:"delay"`
	Store       string        `mapstructure:"store"`
	LocalDir    string        `mapstructure:"local_dir"`
	Audit       bool          `mapstructure:"audit"`
	AnchorID    string        `mapstructure:"anchor_id"`
	HeaderClass string        `mapstructure:"header_class"`
	HeaderText  string        `mapstructure:"header_text"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置，仅用于导出审计记录。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string        `mapstructure:"endpoint"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	UseSSL          bool          `mapstructure:"use_ssl"`
	BucketName      string        `mapstructure:"bucket_name"`
	PresignExpiry   time.Duration `mapstructure:"presign_expiry"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Brokers     string `mapstructure:"brokers"`
	Topic       string `mapstructure:"topic"`
	ExportTopic string `mapstructure:"export_topic"`
	GroupID     string `mapstructure:"group_id"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.public_url", "http://127.0.0.1:8080")
	v.SetDefault("server.allowed_origins", []string{"https://beta.character.ai"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output_path", "")
	v.SetDefault("session.secret", "")
	v.SetDefault("session.expire_hours", 12)
	v.SetDefault("intercept.info_url", "https://beta.character.ai/chat/character/info/")
	v.SetDefault("intercept.histories_url", "https://beta.character.ai/chat/character/histories/")
	v.SetDefault("intercept.mode", "sync")
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl", 6*time.Hour)
	v.SetDefault("export.delay", 2*time.Second)
	v.SetDefault("export.store", "local")
	v.SetDefault("export.local_dir", "./exports")
	v.SetDefault("export.audit", false)
	v.SetDefault("export.anchor_id", "injected-chat-dl-link")
	v.SetDefault("export.header_class", "home-sec-header")
	v.SetDefault("export.header_text", "Your Past Conversations with")
	v.SetDefault("database.mysql.dsn", "")
	v.SetDefault("database.redis.addr", "127.0.0.1:6379")
	v.SetDefault("database.redis.password", "")
	v.SetDefault("database.redis.db", 0)
	v.SetDefault("minio.endpoint", "")
	v.SetDefault("minio.access_key_id", "")
	v.SetDefault("minio.secret_access_key", "")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket_name", "chat-dumps")
	v.SetDefault("minio.presign_expiry", 15*time.Minute)
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", "127.0.0.1:9092")
	v.SetDefault("kafka.topic", "chat-dumper-intercepts")
	v.SetDefault("kafka.export_topic", "chat-dumper-exports")
	v.SetDefault("kafka.group_id", "chat-dumper-consumer")
}

// Load 读取指定路径的 YAML 文件，叠加 CHATDUMP_ 前缀的环境变量，返回解析后的配置。
// configPath 为空时只使用默认值与环境变量。
func Load(configPath string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("CHATDUMP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate 检查互相依赖的配置项。
func (c Config) Validate() error {
	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("不支持的缓存后端: %q", c.Cache.Backend)
	}
	switch c.Export.Store {
	case "local", "minio":
	default:
		return fmt.Errorf("不支持的导出存储: %q", c.Export.Store)
	}
	switch c.Intercept.Mode {
	case "sync":
	case "kafka":
		if !c.Kafka.Enabled {
			return fmt.Errorf("intercept.mode=kafka 需要开启 kafka.enabled")
		}
	default:
		return fmt.Errorf("不支持的拦截模式: %q", c.Intercept.Mode)
	}
	if c.Intercept.InfoURL == "" || c.Intercept.HistoriesURL == "" {
		return fmt.Errorf("intercept.info_url 与 intercept.histories_url 不能为空")
	}
	if c.Intercept.InfoURL == c.Intercept.HistoriesURL {
		return fmt.Errorf("intercept.info_url 与 intercept.histories_url 不能相同")
	}
	if c.Session.Secret == "" {
		return fmt.Errorf("session.secret 不能为空")
	}
	if c.Export.Audit && c.Database.MySQL.DSN == "" {
		return fmt.Errorf("export.audit 需要配置 database.mysql.dsn")
	}
	return nil
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = cfg
}

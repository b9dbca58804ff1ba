package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config 全局配置结构体
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	JWT          JWTConfig          `mapstructure:"jwt"`
	App          AppConfig          `mapstructure:"app"`
	Log          LogConfig          `mapstructure:"log"`
	Ledger       LedgerConfig       `mapstructure:"ledger"`
	Realtime     RealtimeConfig     `mapstructure:"realtime"`
	Notification NotificationConfig `mapstructure:"notification"`
	Push         PushConfig         `mapstructure:"push"`
	Sentry       SentryConfig       `mapstructure:"sentry"`
	Tracing      TracingConfig      `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	Port     string `mapstructure:"port"`
	SSLMode  string `mapstructure:"sslmode"`
	TimeZone string `mapstructure:"timezone"`
}

// DSN 返回 gorm postgres 驱动使用的 key=value 格式连接串
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		d.Host, d.User, d.Password, d.DBName, d.Port, d.SSLMode, d.TimeZone)
}

// URL 返回 golang-migrate 使用的 URL 格式连接串
func (d DatabaseConfig) URL() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.DBName + "?sslmode=" + d.SSLMode
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Expire int64  `mapstructure:"expire"` // 小时
}

type AppConfig struct {
	Env   string `mapstructure:"env"`
	Debug bool   `mapstructure:"debug"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// 交互账本策略
const (
	StrategyAtomic     = "atomic"
	StrategyBestEffort = "best_effort"
)

// LedgerConfig 账本相关配置
type LedgerConfig struct {
	InteractionStrategy string        `mapstructure:"interaction_strategy"` // atomic, best_effort
	CreatorSharePercent int64         `mapstructure:"creator_share_percent"`
	RecountInterval     time.Duration `mapstructure:"recount_interval"`
	RecountLockTTL      time.Duration `mapstructure:"recount_lock_ttl"`
	RelationCacheTTL    time.Duration `mapstructure:"relation_cache_ttl"`
}

// 实时总线驱动
const (
	RealtimeMemory = "memory"
	RealtimeRedis  = "redis"
	RealtimeNATS   = "nats"
)

type RealtimeConfig struct {
	Driver     string `mapstructure:"driver"` // memory, redis, nats
	NATSURL    string `mapstructure:"nats_url"`
	BufferSize int    `mapstructure:"buffer_size"`
}

type NotificationConfig struct {
	Workers   int  `mapstructure:"workers"`
	QueueSize int  `mapstructure:"queue_size"`
	MaxRetry  int  `mapstructure:"max_retry"`
	Push      bool `mapstructure:"push"`
}

type PushConfig struct {
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	AppKey          int64  `mapstructure:"app_key"`
	RegionID        string `mapstructure:"region_id"` // e.g., "cn-hangzhou"
}

type SentryConfig struct {
	DSN string `mapstructure:"dsn"`
}

type TracingConfig struct {
	Endpoint    string `mapstructure:"endpoint"` // OTLP HTTP, e.g. localhost:4318
	ServiceName string `mapstructure:"service_name"`
}

var GlobalConfig Config

// Validate 验证配置
func (c *Config) Validate() error {
	// JWT 配置验证
	if c.JWT.Secret == "" || c.JWT.Secret == "your_super_secret_key" {
		return errors.New("please set a secure JWT secret in production")
	}
	if len(c.JWT.Secret) < 32 {
		return errors.New("JWT secret should be at least 32 characters")
	}

	// 数据库配置验证
	if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
		return errors.New("database configuration is incomplete")
	}

	// Redis 配置验证
	if c.Redis.Addr == "" {
		return errors.New("redis address is required")
	}

	// 账本配置验证
	switch c.Ledger.InteractionStrategy {
	case StrategyAtomic, StrategyBestEffort:
	default:
		return fmt.Errorf("unknown interaction strategy %q", c.Ledger.InteractionStrategy)
	}
	if c.Ledger.CreatorSharePercent < 0 || c.Ledger.CreatorSharePercent > 100 {
		return errors.New("creator share percent must be within [0, 100]")
	}

	switch c.Realtime.Driver {
	case RealtimeMemory, RealtimeRedis:
	case RealtimeNATS:
		if c.Realtime.NATSURL == "" {
			return errors.New("realtime.nats_url is required for the nats driver")
		}
	default:
		return fmt.Errorf("unknown realtime driver %q", c.Realtime.Driver)
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.timezone", "UTC")
	v.SetDefault("jwt.expire", 24)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.debug", true)
	v.SetDefault("log.level", "info")

	v.SetDefault("ledger.interaction_strategy", StrategyAtomic)
	v.SetDefault("ledger.creator_share_percent", 90)
	v.SetDefault("ledger.recount_interval", 10*time.Minute)
	v.SetDefault("ledger.recount_lock_ttl", 5*time.Minute)
	v.SetDefault("ledger.relation_cache_ttl", 30*time.Second)

	v.SetDefault("realtime.driver", RealtimeMemory)
	v.SetDefault("realtime.buffer_size", 64)

	v.SetDefault("notification.workers", 4)
	v.SetDefault("notification.queue_size", 1000)
	v.SetDefault("notification.max_retry", 3)

	v.SetDefault("tracing.service_name", "creator-ledger")
}

// Load 读取配置文件与环境变量，返回未校验的配置
func Load(env string, paths ...string) (*Config, error) {
	// 根据环境选择配置文件
	configName := "config"
	if env != "" && env != "dev" {
		configName = "config." + env
	}

	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{"./configs", "."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		log.Printf("Warning: Config file not found, using defaults or env vars: %v", err)
	}

	// 绑定环境变量
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// 手动覆盖，以防 viper 无法正确解析复杂结构或环境变量
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Database.Host = host
	}
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		cfg.Redis.Addr = redisAddr
	}
	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		cfg.JWT.Secret = jwtSecret
	}
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		cfg.Realtime.NATSURL = natsURL
	}

	return &cfg, nil
}

// LoadConfig 加载配置
func LoadConfig() {
	// 获取环境变量，默认为dev
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}

	cfg, err := Load(env)
	if err != nil {
		log.Fatalf("Unable to load config: %v", err)
	}

	// 验证配置
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	GlobalConfig = *cfg
	log.Printf("Configuration loaded and validated successfully. Environment: %s", GlobalConfig.App.Env)
}

package config

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Business BusinessConfig `mapstructure:"business"`
	Auth     AuthConfig     `mapstructure:"auth"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig 数据库配置，Driver 取值 postgres 或 mysql
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	SSLMode      string `mapstructure:"ssl_mode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	LogLevel     string `mapstructure:"log_level"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Enabled bool             `mapstructure:"enabled"`
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	SaleEvents         string `mapstructure:"sale_events"`
	PaymentRecorded    string `mapstructure:"payment_recorded"`
	InstallmentOverdue string `mapstructure:"installment_overdue"`
}

type BusinessConfig struct {
	Timezone            string  `mapstructure:"timezone"`
	MaxInstallments     int     `mapstructure:"max_installments"`
	RoundingTolerance   float64 `mapstructure:"rounding_tolerance"`
	OverdueScanSeconds  int     `mapstructure:"overdue_scan_seconds"`
	OutboxIntervalMs    int     `mapstructure:"outbox_interval_ms"`
	ReconcileSeconds    int     `mapstructure:"reconcile_seconds"`
	MaxRetryCount       int     `mapstructure:"max_retry_count"`
	SummaryCacheSeconds int     `mapstructure:"summary_cache_seconds"`
}

type AuthConfig struct {
	JWTSecret         string `mapstructure:"jwt_secret"`
	TokenTTLMinutes   int    `mapstructure:"token_ttl_minutes"`
	BootstrapEmail    string `mapstructure:"bootstrap_email"`
	BootstrapPassword string `mapstructure:"bootstrap_password"`
}

// Location 返回业务时区，用于计算"今天"，加载失败时退回 UTC
func (b BusinessConfig) Location() *time.Location {
	if b.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		log.Printf("[Config] 加载时区失败，使用 UTC: tz=%s, err=%v", b.Timezone, err)
		return time.UTC
	}
	return loc
}

var GlobalConfig *Config

// LoadConfig 加载配置文件
//
// .env 先于 YAML 读取，环境变量 CLOSET_<SECTION>_<KEY> 覆盖文件中的值
func LoadConfig(configPath string) *Config {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("CLOSET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		log.Fatalf("读取配置文件失败: %v", err)
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}

	if err := config.Validate(); err != nil {
		log.Fatalf("配置校验失败: %v", err)
	}

	GlobalConfig = config
	return config
}

var ErrMissingJWTSecret = errors.New("auth.jwt_secret 未配置")

// Validate 启动前必须满足的配置项
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return ErrMissingJWTSecret
	}
	return nil
}

// Default 返回只包含默认值的配置，测试和本地工具使用
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		log.Fatalf("解析默认配置失败: %v", err)
	}
	return config
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "closet")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic.sale_events", "closet.sale.events")
	v.SetDefault("kafka.topic.payment_recorded", "closet.installment.payment_recorded")
	v.SetDefault("kafka.topic.installment_overdue", "closet.installment.overdue")

	v.SetDefault("business.timezone", "America/Sao_Paulo")
	v.SetDefault("business.max_installments", 24)
	v.SetDefault("business.rounding_tolerance", 0.01)
	v.SetDefault("business.overdue_scan_seconds", 300)
	v.SetDefault("business.outbox_interval_ms", 500)
	v.SetDefault("business.reconcile_seconds", 600)
	v.SetDefault("business.max_retry_count", 5)
	v.SetDefault("business.summary_cache_seconds", 60)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl_minutes", 720)
	v.SetDefault("auth.bootstrap_email", "")
	v.SetDefault("auth.bootstrap_password", "")
}

package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Stream   StreamConfig   `mapstructure:"stream"`
	Batcher  BatcherConfig  `mapstructure:"batcher"`
	Presence PresenceConfig `mapstructure:"presence"`
	Session  SessionConfig  `mapstructure:"session"`
	Storage  StorageConfig  `mapstructure:"storage"`
}

type AppConfig struct {
	Name     string `mapstructure:"name"`
	NodeID   int64  `mapstructure:"node_id"`
	LogLevel string `mapstructure:"log_level"`
}

type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// StreamConfig 消息流配置
type StreamConfig struct {
	InitialPageSize int           `mapstructure:"initial_page_size"` // 初始加载条数
	OlderPageSize   int           `mapstructure:"older_page_size"`   // 向上翻页条数
	PollInterval    time.Duration `mapstructure:"poll_interval"`     // 兜底轮询间隔
}

// BatcherConfig 消息批量写入配置
type BatcherConfig struct {
	BatchSize     int           `mapstructure:"batch_size"`     // 批量大小阈值
	FlushInterval time.Duration `mapstructure:"flush_interval"` // 兜底刷新间隔
}

// PresenceConfig 输入状态配置
type PresenceConfig struct {
	TypingQuietPeriod time.Duration `mapstructure:"typing_quiet_period"` // 无续约自动清除时间
}

type SessionConfig struct {
	Secret string `mapstructure:"secret"`
}

type StorageConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Load 从指定路径加载配置
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// applyDefaults 填充缺省值
func applyDefaults(cfg *Config) {
	if cfg.Stream.InitialPageSize <= 0 {
		cfg.Stream.InitialPageSize = 50
	}
	if cfg.Stream.OlderPageSize <= 0 {
		cfg.Stream.OlderPageSize = 20
	}
	if cfg.Stream.PollInterval <= 0 {
		cfg.Stream.PollInterval = time.Second
	}
	if cfg.Batcher.BatchSize <= 0 {
		cfg.Batcher.BatchSize = 100
	}
	if cfg.Batcher.FlushInterval <= 0 {
		cfg.Batcher.FlushInterval = time.Second
	}
	if cfg.Presence.TypingQuietPeriod <= 0 {
		cfg.Presence.TypingQuietPeriod = 2 * time.Second
	}
}

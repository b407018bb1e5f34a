package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var config = viper.New()

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	Server     struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Lock struct {
		DefaultTTL time.Duration `mapstructure:"DEFAULT_TTL"`
	} `mapstructure:"LOCK"`
	RateLimit struct {
		ClaimLimit  int64         `mapstructure:"CLAIM_LIMIT"`
		ClaimWindow time.Duration `mapstructure:"CLAIM_WINDOW"`
	} `mapstructure:"RATE_LIMIT"`
	Cron struct {
		TickInterval time.Duration `mapstructure:"TICK_INTERVAL"`
	} `mapstructure:"CRON"`
	Notification struct {
		Timeout time.Duration `mapstructure:"TIMEOUT"`
	} `mapstructure:"NOTIFICATION"`
	Fulfillment struct {
		MaxActiveStrikes int64 `mapstructure:"MAX_ACTIVE_STRIKES"`
		DefaultThreshold int64 `mapstructure:"DEFAULT_THRESHOLD"`
	} `mapstructure:"FULFILLMENT"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

func LoadConfig() *Config {
	config.SetConfigName("config")
	config.SetConfigType("yaml")
	config.AddConfigPath(".")

	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()

	if err := config.ReadInConfig(); err != nil {
		zap.L().Error("failed to read config file", zap.Error(err))
		os.Exit(1)
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		zap.L().Error("failed to unmarshal config", zap.Error(err))
		os.Exit(1)
	}

	applyDefaults(&cfg)

	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Lock.DefaultTTL == 0 {
		cfg.Lock.DefaultTTL = 15 * time.Minute
	}
	if cfg.RateLimit.ClaimLimit == 0 {
		cfg.RateLimit.ClaimLimit = 30
	}
	if cfg.RateLimit.ClaimWindow == 0 {
		cfg.RateLimit.ClaimWindow = time.Hour
	}
	if cfg.Cron.TickInterval == 0 {
		cfg.Cron.TickInterval = 5 * time.Minute
	}
	if cfg.Notification.Timeout == 0 {
		cfg.Notification.Timeout = 30 * time.Second
	}
	if cfg.Fulfillment.MaxActiveStrikes == 0 {
		cfg.Fulfillment.MaxActiveStrikes = 2
	}
	if cfg.Fulfillment.DefaultThreshold == 0 {
		cfg.Fulfillment.DefaultThreshold = 1000
	}
}

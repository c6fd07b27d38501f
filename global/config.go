package global

import (
	"context"
	"strings"
	"time"

	"PPInbox/logger"
	"PPInbox/service/mgo"
	redissrv "PPInbox/service/storage/redis"
	"PPInbox/tools/ids"

	"github.com/spf13/viper"
)

// AppConfig 全量配置；默认值可被 ppinbox.yaml / PPINBOX_* 环境变量覆盖
type AppConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
	LogLevel string `mapstructure:"log_level"`
	NodeID   int64  `mapstructure:"node_id"`

	MongoURI      string `mapstructure:"mongo_uri"`
	MongoDatabase string `mapstructure:"mongo_database"`
	MongoUsername string `mapstructure:"mongo_username"`
	MongoPassword string `mapstructure:"mongo_password"`
	MongoMaxPool  uint64 `mapstructure:"mongo_max_pool"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisPool     int    `mapstructure:"redis_pool"`

	NatsServers  []string `mapstructure:"nats_servers"`
	NatsUsername string   `mapstructure:"nats_username"`
	NatsPassword string   `mapstructure:"nats_password"`

	AppSecret   string `mapstructure:"app_secret"`   // webhook 验签密钥
	VerifyToken string `mapstructure:"verify_token"` // 握手 token
	JWTSecret   string `mapstructure:"jwt_secret"`

	RateLimit     int64 `mapstructure:"rate_limit"`
	RateWindowSec int   `mapstructure:"rate_window_sec"`

	FanoutWorkers int `mapstructure:"fanout_workers"`
	FanoutQueue   int `mapstructure:"fanout_queue"`
}

// Load 读配置：yaml 可缺省，环境变量永远生效
func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("ppinbox")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/ppinbox")
	v.SetEnvPrefix("PPINBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("http_addr", ":8080")
	v.SetDefault("log_level", "debug")
	v.SetDefault("node_id", 1)
	v.SetDefault("mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("mongo_database", "ppinbox")
	v.SetDefault("mongo_max_pool", 20)
	v.SetDefault("redis_addr", "127.0.0.1:6379")
	v.SetDefault("redis_db", 0)
	v.SetDefault("redis_pool", 16)
	v.SetDefault("nats_servers", []string{"nats://127.0.0.1:4222"})
	v.SetDefault("rate_limit", 120)
	v.SetDefault("rate_window_sec", 60)
	v.SetDefault("fanout_workers", 4)
	v.SetDefault("fanout_queue", 1024)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// 没有配置文件：默认值 + 环境变量
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ConfigAll 按依赖顺序起基础设施；Mongo 异步重连，这里等首次就绪
func ConfigAll(ctx context.Context, cfg *AppConfig) error {
	ids.SetNodeID(cfg.NodeID)

	if err := redissrv.InitRedis(redissrv.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		PoolSize: cfg.RedisPool,
	}); err != nil {
		return err
	}

	mgo.StartAsync(ctx, &mgo.Config{
		Uri:         cfg.MongoURI,
		Database:    cfg.MongoDatabase,
		Username:    cfg.MongoUsername,
		Password:    cfg.MongoPassword,
		MaxPoolSize: cfg.MongoMaxPool,
	})
	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := mgo.WaitReady(waitCtx); err != nil {
		return err
	}

	logger.Info("[global] infrastructure ready")
	return nil
}

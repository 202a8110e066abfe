package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	TZ     string `envconfig:"TZ" default:"UTC"`
	Port   int    `envconfig:"PORT" default:"8080"`

	MetricsPort int `envconfig:"METRICS_PORT" default:"9090"`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	Gemini struct {
		APIKey string `envconfig:"GEMINI_API_KEY"`
		Model  string `envconfig:"GEMINI_MODEL" default:"gemini-2.5-flash"`
	} `envconfig:""`

	Expo struct {
		PushURL string `envconfig:"EXPO_PUSH_URL" default:"https://exp.host/--/api/v2/push/send"`
	} `envconfig:""`

	Scheduler struct {
		Interval time.Duration `envconfig:"SCHEDULER_INTERVAL" default:"1m"`
		Workers  int           `envconfig:"SCHEDULER_WORKERS" default:"4"`
	} `envconfig:""`

	Room struct {
		TypingWindow     time.Duration `envconfig:"ROOM_TYPING_WINDOW" default:"2s"`
		QueueSize        int           `envconfig:"ROOM_QUEUE_SIZE" default:"64"`
		SubscribeRetries int           `envconfig:"ROOM_SUBSCRIBE_RETRIES" default:"3"`
		RetryBackoff     time.Duration `envconfig:"ROOM_RETRY_BACKOFF" default:"500ms"`
	} `envconfig:""`

	Digest struct {
		Language string `envconfig:"DIGEST_LANGUAGE" default:"id"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}

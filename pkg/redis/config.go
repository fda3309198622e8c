package redis

import "time"

type Config struct {
	URL             string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	ConnectAttempts int           `env:"REDIS_CONNECT_ATTEMPTS" envDefault:"5"`
	ConnectBackoff  time.Duration `env:"REDIS_CONNECT_BACKOFF" envDefault:"1s"`
	ConnectTimeout  time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"`
}

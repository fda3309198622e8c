// Package config fills typed config structs from environment variables
// with github.com/caarlos0/env, layered over dotenv files read by
// github.com/joho/godotenv.
//
// Load parses each config type once per process:
//
//	type ServiceConfig struct {
//	    StoreURL string        `env:"NOTIFY_STORE_URL,required"`
//	    Pending  time.Duration `env:"NOTIFY_PENDING_INTERVAL" envDefault:"5m"`
//	}
//	cfg, err := config.Load[ServiceConfig]()
//
// A Loader skips the cache and can take a prefix, extra dotenv files or an
// explicit variable map:
//
//	err := config.NewLoader(config.WithPrefix("REPLICA_")).Load(&cfg)
package config

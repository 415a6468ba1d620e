package store

import (
	"fmt"

	"github.com/weiawesome/wes-io-live/pkg/database"
)

type Config struct {
	Driver   string // memory, redis, database
	Redis    RedisConfig
	Database database.Config
}

// New builds the backend selected by cfg.Driver.
func New(cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(cfg.Redis)
	case "database":
		db, err := database.New(&cfg.Database)
		if err != nil {
			return nil, err
		}
		return NewGormStore(db)
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", cfg.Driver)
	}
}

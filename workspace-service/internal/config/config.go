package config

import (
	"time"

	pkgconfig "github.com/weiawesome/wes-io-live/pkg/config"
	"github.com/weiawesome/wes-io-live/pkg/database"
	pkglog "github.com/weiawesome/wes-io-live/pkg/log"
	"github.com/weiawesome/wes-io-live/pkg/pubsub"
)

type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	Room      RoomConfig
	Store     StoreConfig
	LLM       LLMConfig
	Events    pubsub.Config
	Log       pkglog.Config
}

type ServerConfig struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type WebSocketConfig struct {
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	PongWait        time.Duration `mapstructure:"pong_wait"`
	WriteWait       time.Duration `mapstructure:"write_wait"`
	MaxMessageSize  int64         `mapstructure:"max_message_size"`
	SendBuffer      int           `mapstructure:"send_buffer"`
	CheckOrigin     bool          `mapstructure:"check_origin"`
	ReadBufferSize  int           `mapstructure:"read_buffer_size"`
	WriteBufferSize int           `mapstructure:"write_buffer_size"`
}

// RoomConfig tunes a single room actor.
type RoomConfig struct {
	MaxHistory        int           `mapstructure:"max_history"`
	HistoryFlushEvery int           `mapstructure:"history_flush_every"`
	PinnedFlushDelay  time.Duration `mapstructure:"pinned_flush_delay"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	StaleTimeout      time.Duration `mapstructure:"stale_timeout"`
	AIContextMessages int           `mapstructure:"ai_context_messages"`
	AITimeout         time.Duration `mapstructure:"ai_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval"`
	MailboxSize       int           `mapstructure:"mailbox_size"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	WriteAttempts     int           `mapstructure:"write_attempts"`
	WriteBackoff      time.Duration `mapstructure:"write_backoff"`
}

type StoreConfig struct {
	Driver   string // memory, redis, database
	Redis    RedisConfig
	Database database.Config
}

type RedisConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string `mapstructure:"key_prefix"`
}

type LLMConfig struct {
	BaseURL     string `mapstructure:"base_url"`
	APIKey      string `mapstructure:"api_key"`
	Model       string
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// DefaultRoomConfig returns the room tuning used when nothing is configured.
func DefaultRoomConfig() RoomConfig {
	return RoomConfig{
		MaxHistory:        50,
		HistoryFlushEvery: 5,
		PinnedFlushDelay:  time.Second,
		HeartbeatInterval: 30 * time.Second,
		StaleTimeout:      45 * time.Second,
		AIContextMessages: 30,
		AITimeout:         60 * time.Second,
		IdleTimeout:       5 * time.Minute,
		SweepInterval:     time.Minute,
		MailboxSize:       256,
		WriteTimeout:      5 * time.Second,
		WriteAttempts:     3,
		WriteBackoff:      100 * time.Millisecond,
	}
}

// DefaultWebSocketConfig returns the websocket settings used when nothing is configured.
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		PingInterval:    30 * time.Second,
		PongWait:        60 * time.Second,
		WriteWait:       10 * time.Second,
		MaxMessageSize:  256 * 1024,
		SendBuffer:      256,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	room := DefaultRoomConfig()
	ws := DefaultWebSocketConfig()
	events := pubsub.DefaultConfig()

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8787)
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("websocket.ping_interval", ws.PingInterval.String())
	v.SetDefault("websocket.pong_wait", ws.PongWait.String())
	v.SetDefault("websocket.write_wait", ws.WriteWait.String())
	v.SetDefault("websocket.max_message_size", ws.MaxMessageSize)
	v.SetDefault("websocket.send_buffer", ws.SendBuffer)
	v.SetDefault("websocket.check_origin", false)
	v.SetDefault("websocket.read_buffer_size", ws.ReadBufferSize)
	v.SetDefault("websocket.write_buffer_size", ws.WriteBufferSize)
	v.SetDefault("room.max_history", room.MaxHistory)
	v.SetDefault("room.history_flush_every", room.HistoryFlushEvery)
	v.SetDefault("room.pinned_flush_delay", room.PinnedFlushDelay.String())
	v.SetDefault("room.heartbeat_interval", room.HeartbeatInterval.String())
	v.SetDefault("room.stale_timeout", room.StaleTimeout.String())
	v.SetDefault("room.ai_context_messages", room.AIContextMessages)
	v.SetDefault("room.ai_timeout", room.AITimeout.String())
	v.SetDefault("room.idle_timeout", room.IdleTimeout.String())
	v.SetDefault("room.sweep_interval", room.SweepInterval.String())
	v.SetDefault("room.mailbox_size", room.MailboxSize)
	v.SetDefault("room.write_timeout", room.WriteTimeout.String())
	v.SetDefault("room.write_attempts", room.WriteAttempts)
	v.SetDefault("room.write_backoff", room.WriteBackoff.String())
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.redis.address", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.key_prefix", "workspace")
	v.SetDefault("store.database.driver", "sqlite")
	v.SetDefault("store.database.file_path", "workspace.db")
	v.SetDefault("store.database.host", "localhost")
	v.SetDefault("store.database.port", 5432)
	v.SetDefault("store.database.sslmode", "disable")
	v.SetDefault("store.database.max_idle_conns", 5)
	v.SetDefault("store.database.max_open_conns", 20)
	v.SetDefault("store.database.conn_max_lifetime", 30)
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("events.driver", events.Driver)
	v.SetDefault("events.redis.address", events.Redis.Address)
	v.SetDefault("events.redis.pool_size", events.Redis.PoolSize)
	v.SetDefault("events.redis.read_timeout", events.Redis.ReadTimeout.String())
	v.SetDefault("events.redis.write_timeout", events.Redis.WriteTimeout.String())
	v.SetDefault("events.kafka.brokers", events.Kafka.Brokers)
	v.SetDefault("events.kafka.topic", events.Kafka.Topic)
	v.SetDefault("events.kafka.partitions", events.Kafka.Partitions)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("log.service_name", "workspace-service")

	// Override from environment
	v.BindEnv("server.port", "PORT")
	v.BindEnv("store.driver", "STORE_DRIVER")
	v.BindEnv("store.redis.address", "REDIS_ADDRESS")
	v.BindEnv("store.redis.password", "REDIS_PASSWORD")
	v.BindEnv("store.database.driver", "DB_DRIVER")
	v.BindEnv("store.database.host", "DB_HOST")
	v.BindEnv("store.database.port", "DB_PORT")
	v.BindEnv("store.database.user", "DB_USER")
	v.BindEnv("store.database.password", "DB_PASSWORD")
	v.BindEnv("store.database.dbname", "DB_NAME")
	v.BindEnv("store.database.file_path", "DB_FILE_PATH")
	v.BindEnv("llm.base_url", "LLM_BASE_URL")
	v.BindEnv("llm.api_key", "LLM_API_KEY")
	v.BindEnv("llm.model", "LLM_MODEL")
	v.BindEnv("events.driver", "EVENTS_DRIVER")
	v.BindEnv("events.redis.address", "EVENTS_REDIS_ADDRESS")
	v.BindEnv("events.kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("events.kafka.topic", "KAFKA_TOPIC")
	v.BindEnv("log.level", "LOG_LEVEL")
	v.BindEnv("log.pretty", "LOG_PRETTY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.Server.ShutdownTimeout = pkgconfig.Duration(v, "server.shutdown_timeout", 10*time.Second)
	cfg.WebSocket.PingInterval = pkgconfig.Duration(v, "websocket.ping_interval", ws.PingInterval)
	cfg.WebSocket.PongWait = pkgconfig.Duration(v, "websocket.pong_wait", ws.PongWait)
	cfg.WebSocket.WriteWait = pkgconfig.Duration(v, "websocket.write_wait", ws.WriteWait)
	cfg.Room.PinnedFlushDelay = pkgconfig.Duration(v, "room.pinned_flush_delay", room.PinnedFlushDelay)
	cfg.Room.HeartbeatInterval = pkgconfig.Duration(v, "room.heartbeat_interval", room.HeartbeatInterval)
	cfg.Room.StaleTimeout = pkgconfig.Duration(v, "room.stale_timeout", room.StaleTimeout)
	cfg.Room.AITimeout = pkgconfig.Duration(v, "room.ai_timeout", room.AITimeout)
	cfg.Room.IdleTimeout = pkgconfig.Duration(v, "room.idle_timeout", room.IdleTimeout)
	cfg.Room.SweepInterval = pkgconfig.Duration(v, "room.sweep_interval", room.SweepInterval)
	cfg.Room.WriteTimeout = pkgconfig.Duration(v, "room.write_timeout", room.WriteTimeout)
	cfg.Room.WriteBackoff = pkgconfig.Duration(v, "room.write_backoff", room.WriteBackoff)
	cfg.Events.Redis.ReadTimeout = pkgconfig.Duration(v, "events.redis.read_timeout", events.Redis.ReadTimeout)
	cfg.Events.Redis.WriteTimeout = pkgconfig.Duration(v, "events.redis.write_timeout", events.Redis.WriteTimeout)

	return &cfg, nil
}

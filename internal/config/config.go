package config

import "time"

// Config is the root configuration for a relay instance.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Store     StoreConfig     `yaml:"store"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr              string        `yaml:"addr" env:"RELAY_ADDR"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" env:"RELAY_SHUTDOWN_TIMEOUT"`
	// AllowedOrigins restricts WebSocket upgrades by Origin header. Empty allows any.
	AllowedOrigins []string `yaml:"allowed_origins" env:"RELAY_ALLOWED_ORIGINS" envSeparator:","`
}

// WebSocketConfig holds per-connection transport settings.
type WebSocketConfig struct {
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	PongWait       time.Duration `yaml:"pong_wait"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	MaxMessageSize int64         `yaml:"max_message_size" env:"RELAY_MAX_MESSAGE_SIZE"`
	SendBufferSize int           `yaml:"send_buffer_size"`
}

// StoreConfig selects and configures the document store used by persist/load.
type StoreConfig struct {
	// Driver is one of memory, postgres, redis, sqlite.
	Driver string `yaml:"driver" env:"RELAY_STORE_DRIVER"`
	// PersistOnShutdown saves every non-empty room document before exit.
	PersistOnShutdown bool `yaml:"persist_on_shutdown" env:"RELAY_PERSIST_ON_SHUTDOWN"`

	Postgres DBConfig     `yaml:"postgres"`
	Redis    RedisConfig  `yaml:"redis"`
	SQLite   SQLiteConfig `yaml:"sqlite"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host" env:"RELAY_POSTGRES_HOST"`
	Port     int    `yaml:"port" env:"RELAY_POSTGRES_PORT"`
	Name     string `yaml:"name" env:"RELAY_POSTGRES_DB"`
	User     string `yaml:"user" env:"RELAY_POSTGRES_USER"`
	Password string `yaml:"password" env:"RELAY_POSTGRES_PASSWORD"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// RedisConfig holds the Redis store connection.
type RedisConfig struct {
	Addr      string        `yaml:"addr" env:"RELAY_REDIS_ADDR"`
	Password  string        `yaml:"password" env:"RELAY_REDIS_PASSWORD"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"`
}

// SQLiteConfig holds the SQLite store location.
type SQLiteConfig struct {
	Path string `yaml:"path" env:"RELAY_SQLITE_PATH"`
}

// MetricsConfig sizes the in-process metrics buffers.
type MetricsConfig struct {
	LatencyWindow int `yaml:"latency_window"`
	EventLogSize  int `yaml:"event_log_size"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" env:"RELAY_LOG_LEVEL"`
	Format string `yaml:"format" env:"RELAY_LOG_FORMAT"`
}

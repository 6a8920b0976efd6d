package main

import "time"

type Config struct {
	Host     string `env:"HOST,default=0.0.0.0"`
	Port     int    `env:"PORT,default=8080" validate:"gt=0,lte=65535"`
	LogLevel string `env:"LOG_LEVEL,default=INFO"`
	NodeID   string `env:"NODE_ID"`

	StoreDriver        string `env:"STORE_DRIVER,default=badger" validate:"oneof=badger postgres"`
	BadgerFilepath     string `env:"BADGER_FILEPATH" validate:"required_if=StoreDriver badger"`
	PostgresDSN        string `env:"POSTGRES_DSN" validate:"required_if=StoreDriver postgres"`
	LimitNotifications *int   `env:"LIMIT_NOTIFICATIONS"`
	SeedFile           string `env:"SEED_FILE"`

	RedisAddr        string        `env:"REDIS_ADDR"`
	RedisEmitChannel string        `env:"REDIS_EMIT_CHANNEL,default=realtime:emit"`
	PresenceTTL      time.Duration `env:"PRESENCE_TTL,default=90s" validate:"gt=0"`

	JWTSecret      string `env:"JWT_SECRET,required=true" validate:"min=16"`
	EmitKeyHash    string `env:"EMIT_KEY_HASH"`
	AuthRequired   bool   `env:"AUTH_REQUIRED,default=false"`
	AllowedOrigins string `env:"ALLOWED_ORIGINS"`

	KeepaliveInterval    time.Duration `env:"KEEPALIVE_INTERVAL,default=30s" validate:"gt=0"`
	KeepaliveTimeout     time.Duration `env:"KEEPALIVE_TIMEOUT,default=10s" validate:"gt=0,ltefield=KeepaliveInterval"`
	KeepaliveConcurrency int           `env:"KEEPALIVE_CONCURRENCY,default=64" validate:"gt=0"`

	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=256" validate:"gt=0"`
	WriteTimeout         time.Duration `env:"WRITE_TIMEOUT,default=10s" validate:"gt=0"`
	MaxFrameBytes        int64         `env:"MAX_FRAME_BYTES,default=65536" validate:"gt=0"`
	MembershipTimeout    time.Duration `env:"MEMBERSHIP_TIMEOUT,default=5s" validate:"gt=0"`
	FallbackTimeout      time.Duration `env:"FALLBACK_TIMEOUT,default=5s" validate:"gt=0"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=1s" validate:"gt=0"`
	MonitoringInterval   time.Duration `env:"MONITORING_INTERVAL,default=5s" validate:"gt=0"`
	ShutdownTimeout      time.Duration `env:"SHUTDOWN_TIMEOUT,default=15s" validate:"gt=0"`
}

package main

import (
	"time"

	"github.com/spf13/viper"
)

func initViperDefaults() {
	// Telegram
	viper.SetDefault("telegram.token", "")
	viper.SetDefault("telegram.base_url", "https://api.telegram.org")
	viper.SetDefault("telegram.webhook_url", "")

	// HTTP server
	viper.SetDefault("server.bind", "0.0.0.0")
	viper.SetDefault("server.port", 8443)

	// Storage
	viper.SetDefault("storage.path", "data/quizbot.db")

	// Sessions
	viper.SetDefault("session.retention", time.Hour)
	viper.SetDefault("session.sweep_interval", 10*time.Minute)

	// Delivery
	viper.SetDefault("delivery.max_attempts", 3)
	viper.SetDefault("delivery.base_delay", 2*time.Second)
	viper.SetDefault("delivery.retry_after_cap", time.Minute)
	viper.SetDefault("delivery.poll_pause", 50*time.Millisecond)

	// Rate limiting
	viper.SetDefault("ratelimit.short.max", 60)
	viper.SetDefault("ratelimit.short.window", time.Minute)
	viper.SetDefault("ratelimit.short.cooldown", 5*time.Minute)
	viper.SetDefault("ratelimit.long.max", 1000)
	viper.SetDefault("ratelimit.long.window", time.Hour)
	viper.SetDefault("ratelimit.long.cooldown", 5*time.Minute)

	// Engine
	viper.SetDefault("engine.event_timeout", 30*time.Second)
	viper.SetDefault("engine.max_concurrency", 8)
	viper.SetDefault("engine.queue_size", 16)

	// Health
	viper.SetDefault("health.interval", time.Minute)
	viper.SetDefault("health.memory_percent", 90.0)
	viper.SetDefault("health.cpu_percent", 85.0)
	viper.SetDefault("health.max_errors", 50)

	// Logging
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.add_source", false)
}

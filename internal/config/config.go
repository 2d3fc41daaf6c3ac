package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Pomodoro PomodoroConfig
	Limits   LimitConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	Path string
}

type JWTConfig struct {
	Secret    []byte
	ExpiresIn time.Duration
}

type PomodoroConfig struct {
	Work           time.Duration
	Break          time.Duration
	LongBreak      time.Duration
	LongBreakEvery int
	TickInterval   time.Duration
}

type LimitConfig struct {
	// Events per second a single websocket client may send, and the burst
	// allowance on top.
	WSEventsPerSecond float64
	WSBurst           int
}

func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	return &Config{
		Server: ServerConfig{
			Port:         getEnvOrDefault("PORT", "8080"),
			ReadTimeout:  getDurationOrDefault("READ_TIMEOUT", "15s"),
			WriteTimeout: getDurationOrDefault("WRITE_TIMEOUT", "15s"),
		},
		Database: DatabaseConfig{
			Path: getEnvOrDefault("STUDYDEN_DB_PATH", "./data/studyden.db"),
		},
		JWT: JWTConfig{
			Secret:    []byte(getEnvOrFatal("JWT_SECRET")),
			ExpiresIn: getDurationOrDefault("JWT_EXPIRES_IN", "24h"),
		},
		Pomodoro: PomodoroConfig{
			Work:           getDurationOrDefault("POMODORO_WORK", "25m"),
			Break:          getDurationOrDefault("POMODORO_BREAK", "5m"),
			LongBreak:      getDurationOrDefault("POMODORO_LONG_BREAK", "15m"),
			LongBreakEvery: getIntOrDefault("POMODORO_LONG_BREAK_EVERY", 4),
			TickInterval:   getDurationOrDefault("POMODORO_TICK_INTERVAL", "1s"),
		},
		Limits: LimitConfig{
			WSEventsPerSecond: getFloatOrDefault("WS_EVENTS_PER_SECOND", 100),
			WSBurst:           getIntOrDefault("WS_BURST", 200),
		},
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrFatal(key string) string {
	value := os.Getenv(key)
	if value == "" {
		log.Fatal().Str("key", key).Msg("required environment variable is missing")
	}
	return value
}

func getDurationOrDefault(key, defaultValue string) time.Duration {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		log.Fatal().Str("key", key).Str("value", value).Msg("invalid duration")
	}
	return duration
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Fatal().Str("key", key).Str("value", value).Msg("invalid integer")
	}
	return intValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Fatal().Str("key", key).Str("value", value).Msg("invalid number")
	}
	return floatValue
}

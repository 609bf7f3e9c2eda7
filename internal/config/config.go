// Package config loads server settings from the environment, optionally
// backed by a .env file, following the layered-defaults convention used
// throughout the reference stack.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds every ambient setting the server binary needs. Fields map
// 1:1 onto the CHAT_* environment variables; each has a sane default so
// the server runs with zero configuration.
type Config struct {
	DBPath     string
	MaxClients int
	LogDir     string
	RateLimit  int
}

// Load reads a .env file if one is present in the working directory
// (silently ignored if missing, since production deployments set real
// environment variables instead) and returns a Config populated from
// CHAT_DB_PATH, CHAT_MAX_CLIENTS, CHAT_LOG_DIR and CHAT_RATE_LIMIT.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		DBPath:     getString("CHAT_DB_PATH", "chat_server.db"),
		MaxClients: getInt("CHAT_MAX_CLIENTS", 100),
		LogDir:     getString("CHAT_LOG_DIR", "logs"),
		RateLimit:  getInt("CHAT_RATE_LIMIT", 10),
	}
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

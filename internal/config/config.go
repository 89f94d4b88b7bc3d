package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds server configuration read from the environment.
type Config struct {
	Port          string
	DBPath        string
	LogLevel      string
	LogFormat     string
	StaticDir     string
	AdminUsername string
	AdminPassword string

	// LoginLimit requests per LoginWindowSeconds per client IP on the
	// login endpoint.
	LoginLimit         int
	LoginWindowSeconds int
}

// Load reads configuration from environment variables, pulling in a
// .env file first when GUESTPASS_ENV=dev.
func Load() Config {
	if os.Getenv("GUESTPASS_ENV") == "dev" {
		godotenv.Load()
	}

	return Config{
		Port:               getEnv("GUESTPASS_PORT", "8787"),
		DBPath:             getEnv("GUESTPASS_DB_PATH", "guestpass.db"),
		LogLevel:           getEnv("GUESTPASS_LOG_LEVEL", "info"),
		LogFormat:          getEnv("GUESTPASS_LOG_FORMAT", "text"),
		StaticDir:          getEnv("GUESTPASS_STATIC_DIR", "web"),
		AdminUsername:      getEnv("GUESTPASS_ADMIN_USERNAME", ""),
		AdminPassword:      getEnv("GUESTPASS_ADMIN_PASSWORD", ""),
		LoginLimit:         getEnvInt("GUESTPASS_LOGIN_LIMIT", 10),
		LoginWindowSeconds: getEnvInt("GUESTPASS_LOGIN_WINDOW_SECONDS", 60),
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

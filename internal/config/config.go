package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port         string
	StoreAdapter string
	LogLevel     string

	// Token settings
	AccessSecret    string
	RefreshSecret   string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// Optional bearer-token enforcement on /users routes
	ProtectUserRoutes bool

	// MongoDB connection settings
	MongoURI string
	MongoDB  string

	// SQLite settings
	SQLiteFile string

	// PostgreSQL connection settings
	PostgresDSN      string
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getduration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return d, nil
}

// BuildPostgresDSN constructs a PostgreSQL DSN from individual components or returns the provided DSN
func (c *Config) BuildPostgresDSN() (string, error) {
	// If DSN is provided directly, use it
	if c.PostgresDSN != "" {
		return c.PostgresDSN, nil
	}

	// Build DSN from individual components
	if c.PostgresHost == "" {
		return "", errors.New("POSTGRES_HOST or POSTGRES_DSN must be set")
	}
	if c.PostgresUser == "" {
		return "", errors.New("POSTGRES_USER must be set")
	}
	if c.PostgresDB == "" {
		return "", errors.New("POSTGRES_DB must be set")
	}

	port := c.PostgresPort
	if port == "" {
		port = "5432"
	}

	sslMode := c.PostgresSSLMode
	if sslMode == "" {
		sslMode = "disable" // Default to disable for local development
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=%s",
		c.PostgresHost, port, c.PostgresUser, c.PostgresDB, sslMode)

	if c.PostgresPassword != "" {
		dsn += " password=" + c.PostgresPassword
	}

	return dsn, nil
}

func New() (*Config, error) {
	c := &Config{
		Port:         getenv("PORT", "8080"),
		StoreAdapter: getenv("STORE_ADAPTER", "mongo"), // Default to the document store
		LogLevel:     getenv("LOG_LEVEL", "info"),

		AccessSecret:      getenv("ACCESS_SECRET_KEY", "change-me"),
		RefreshSecret:     getenv("REFRESH_SECRET_KEY", "change-me-too"),
		ProtectUserRoutes: getenv("PROTECT_USER_ROUTES", "0") == "1",

		// MongoDB settings
		MongoURI: getenv("MONGO_URI", getenv("DATABASE_URL", "mongodb://localhost:27017")),
		MongoDB:  getenv("MONGO_DB", "userhub"),

		// SQLite settings
		SQLiteFile: getenv("SQLITE_FILE", "./data/userhub.db"),

		// PostgreSQL settings
		PostgresDSN:      getenv("POSTGRES_DSN", ""),
		PostgresHost:     getenv("POSTGRES_HOST", getenv("DB_HOST", "localhost")),
		PostgresPort:     getenv("POSTGRES_PORT", getenv("DB_PORT", "5432")),
		PostgresUser:     getenv("POSTGRES_USER", getenv("DB_USER", "userhub")),
		PostgresPassword: getenv("POSTGRES_PASSWORD", getenv("DB_PASSWORD", "")),
		PostgresDB:       getenv("POSTGRES_DB", getenv("DB_NAME", "userhub")),
		PostgresSSLMode:  getenv("POSTGRES_SSLMODE", getenv("DB_SSLMODE", "disable")),
	}

	var err error
	if c.AccessTokenTTL, err = getduration("ACCESS_TOKEN_TTL", 3*time.Minute); err != nil {
		return nil, err
	}
	if c.RefreshTokenTTL, err = getduration("REFRESH_TOKEN_TTL", 24*time.Hour); err != nil {
		return nil, err
	}

	switch c.StoreAdapter {
	case "mongo":
		// MONGO_URI defaults to a local instance; nothing further to validate
	case "postgres":
		dsn, err := c.BuildPostgresDSN()
		if err != nil {
			return nil, fmt.Errorf("postgres configuration error: %w", err)
		}
		c.PostgresDSN = dsn
	case "sqlite":
		if c.SQLiteFile == "" {
			return nil, errors.New("SQLITE_FILE must be set when STORE_ADAPTER=sqlite")
		}
	case "memory":
		// nothing to validate
	default:
		return nil, fmt.Errorf("unsupported STORE_ADAPTER: %s (supported: mongo, postgres, sqlite, memory)", c.StoreAdapter)
	}

	// Validate token secrets in production
	env := strings.ToLower(getenv("ENV", getenv("NODE_ENV", "")))
	if env == "production" || env == "prod" {
		if c.AccessSecret == "" || c.AccessSecret == "change-me" {
			return nil, errors.New("ACCESS_SECRET_KEY must be set in production")
		}
		if c.RefreshSecret == "" || c.RefreshSecret == "change-me-too" {
			return nil, errors.New("REFRESH_SECRET_KEY must be set in production")
		}
	}
	if c.AccessSecret == c.RefreshSecret {
		return nil, errors.New("ACCESS_SECRET_KEY and REFRESH_SECRET_KEY must differ")
	}

	// normalize port
	if _, err := strconv.Atoi(c.Port); err != nil {
		return nil, fmt.Errorf("invalid PORT: %s", c.Port)
	}

	return c, nil
}

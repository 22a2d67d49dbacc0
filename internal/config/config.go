package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/geocheckin/geocheckin/internal/domain/geo"
)

// Storage backends selectable through STORE_DRIVER.
const (
	DriverMemory   = "memory"
	DriverBolt     = "bolt"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Config holds service configuration.
type Config struct {
	ServerAddr      string
	LogLevel        string
	ShutdownTimeout time.Duration

	StoreDriver   string
	DatabaseURL   string
	MigrationsDir string
	BoltPath      string
	MongoURI      string
	MongoDB       string

	// DefaultHostLocation is used when a session is opened without coordinates.
	DefaultHostLocation geo.Coordinate

	// CORSAllowedOrigins lists browser origins allowed to call the API.
	CORSAllowedOrigins []string
}

// Load reads configuration from environment.
func Load() (*Config, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		user := getenv("POSTGRES_USER", "geocheckin")
		pass := getenv("POSTGRES_PASSWORD", "geocheckin_pass")
		db := getenv("POSTGRES_DB", "geocheckin")
		host := getenv("POSTGRES_HOST", "localhost")
		port := getenv("POSTGRES_PORT", "5432")
		sslmode := getenv("DATABASE_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, sslmode)
	}

	driver := strings.ToLower(getenv("STORE_DRIVER", DriverMemory))
	switch driver {
	case DriverMemory, DriverBolt, DriverPostgres, DriverMongo:
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", driver)
	}

	loc := geo.Coordinate{
		Latitude:  parseFloat(getenv("DEFAULT_HOST_LAT", ""), 21.96309),
		Longitude: parseFloat(getenv("DEFAULT_HOST_LNG", ""), 70.77614),
	}
	if loc.Latitude < -90 || loc.Latitude > 90 || loc.Longitude < -180 || loc.Longitude > 180 {
		return nil, fmt.Errorf("default host location out of range: %v", loc)
	}

	return &Config{
		ServerAddr:          getenv("SERVER_ADDR", "0.0.0.0:8080"),
		LogLevel:            getenv("LOG_LEVEL", "info"),
		ShutdownTimeout:     parseDuration(getenv("SHUTDOWN_TIMEOUT", "10s"), 10*time.Second),
		StoreDriver:         driver,
		DatabaseURL:         dsn,
		MigrationsDir:       getenv("MIGRATIONS_DIR", "internal/migrations"),
		BoltPath:            getenv("BOLT_PATH", "data/attendance.db"),
		MongoURI:            getenv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:             getenv("MONGO_DB", "geocheckin"),
		DefaultHostLocation: loc,
		CORSAllowedOrigins:  parseList(getenv("CORS_ALLOWED_ORIGINS", "*")),
	}, nil
}

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

func parseDuration(val string, def time.Duration) time.Duration {
	if val == "" {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return def
	}
	return d
}

func parseFloat(val string, def float64) float64 {
	if val == "" {
		return def
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return def
	}
	return f
}

func parseList(val string) []string {
	out := []string{}
	for _, p := range strings.Split(val, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

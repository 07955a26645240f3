// Package config loads the relay server settings from the environment. A
// .env file in the working directory is read first when present; variables
// already set in the environment win over it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// DefaultSigningKey is used when SIGNING_KEY is unset. It must never be used
// in production.
const DefaultSigningKey = "SOME_RANDOM_KEY_SOME_RANDOM_KEY_"

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds every setting the server reads at startup.
//
// Fields:
//   - Port: RELAY_PORT (default "8080")
//   - Workers: RELAY_WORKERS, concurrent request bound (default 10)
//   - LogLevel: RELAY_LOG_LEVEL, a logrus level name (default "info")
//   - LogRequests: RELAY_LOG_REQUESTS, access log verbosity 0-2 (default 1)
//   - CorsOrigin: RELAY_CORS_ORIGIN (default "*")
//   - MaxBodyBytes: RELAY_MAX_BODY (default 10 MiB)
//   - RequestTimeout: RELAY_REQUEST_TIMEOUT (default 30s)
//   - RateLimit, RateBurst: RELAY_RATE_LIMIT per second and RELAY_RATE_BURST (default 20/40)
//   - FilesDir: RELAY_FILES_DIR (default "./data/files")
//   - SigningKey: SIGNING_KEY, exactly 32 bytes
//   - SessionTTL: SESSION_TTL (default 24h)
//   - Store: RELAY_STORE, "postgres" or "memory" (default "postgres")
//   - Database: DATABASE_* connection settings
type Config struct {
	Port           string
	Workers        int64
	LogLevel       logrus.Level
	LogRequests    int
	CorsOrigin     string
	MaxBodyBytes   int64
	RequestTimeout time.Duration
	RateLimit      float64
	RateBurst      int
	FilesDir       string
	SigningKey     []byte
	SessionTTL     time.Duration
	Store          string
	Database       DatabaseConfiguration

	// DefaultKey is true when SigningKey fell back to DefaultSigningKey.
	DefaultKey bool
}

// Lookup reads one variable, like os.LookupEnv.
type Lookup func(key string) (string, bool)

func lookupEnv(key string) (string, bool) {
	return os.LookupEnv(key)
}

func get(lookup Lookup, key string) string {
	v, _ := lookup(key)
	return strings.TrimSpace(v)
}

// Load reads the given .env files (".env" when none are named) into the
// environment, skipping missing ones, and then builds the Config.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: %s: %w", f, err)
		}
	}
	return FromLookup(lookupEnv)
}

// FromLookup builds a Config from lookup without touching the environment.
func FromLookup(lookup Lookup) (Config, error) {
	p := parser{lookup: lookup}
	cfg := Config{
		Port:           p.str("RELAY_PORT", "8080"),
		Workers:        p.int64("RELAY_WORKERS", 10),
		LogRequests:    int(p.int64("RELAY_LOG_REQUESTS", 1)),
		CorsOrigin:     p.str("RELAY_CORS_ORIGIN", "*"),
		MaxBodyBytes:   p.int64("RELAY_MAX_BODY", 10<<20),
		RequestTimeout: p.duration("RELAY_REQUEST_TIMEOUT", 30*time.Second),
		RateLimit:      p.float("RELAY_RATE_LIMIT", 20),
		RateBurst:      int(p.int64("RELAY_RATE_BURST", 40)),
		FilesDir:       p.str("RELAY_FILES_DIR", "./data/files"),
		SessionTTL:     p.duration("SESSION_TTL", 24*time.Hour),
		Store:          strings.ToLower(p.str("RELAY_STORE", StorePostgres)),
		Database:       databaseFrom(lookup, "localhost", 5432, "postgres", "postgres", "relay"),
	}

	level, err := logrus.ParseLevel(p.str("RELAY_LOG_LEVEL", "info"))
	if err != nil {
		p.fail("RELAY_LOG_LEVEL", err)
	}
	cfg.LogLevel = level

	key := p.str("SIGNING_KEY", "")
	if key == "" {
		key = DefaultSigningKey
		cfg.DefaultKey = true
	}
	if len(key) != 32 {
		p.fail("SIGNING_KEY", fmt.Errorf("must be 32 bytes, got %d", len(key)))
	}
	cfg.SigningKey = []byte(key)

	if cfg.Store != StorePostgres && cfg.Store != StoreMemory {
		p.fail("RELAY_STORE", fmt.Errorf("unknown store %q", cfg.Store))
	}
	if cfg.LogRequests < 0 || cfg.LogRequests > 2 {
		p.fail("RELAY_LOG_REQUESTS", fmt.Errorf("must be 0, 1 or 2"))
	}
	if p.err != nil {
		return Config{}, p.err
	}
	return cfg, nil
}

// parser remembers the first malformed value so Load reports one error.
type parser struct {
	lookup Lookup
	err    error
}

func (p *parser) fail(key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("config: %s: %w", key, err)
	}
}

func (p *parser) str(key string, fallback string) string {
	if v := get(p.lookup, key); v != "" {
		return v
	}
	return fallback
}

func (p *parser) int64(key string, fallback int64) int64 {
	v := get(p.lookup, key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		p.fail(key, err)
		return fallback
	}
	return n
}

func (p *parser) float(key string, fallback float64) float64 {
	v := get(p.lookup, key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, err)
		return fallback
	}
	return n
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	v := get(p.lookup, key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, err)
		return fallback
	}
	return d
}

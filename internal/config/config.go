package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// MinSecretBytes is the smallest decoded signing key accepted for HMAC-SHA256.
const MinSecretBytes = 32

const (
	DefaultIssuer   = "maru-management-api"
	DefaultAudience = "maru-management-client"
)

// Config holds all configuration required by the API process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App        AppConfig
	DB         DBConfig
	Redis      RedisConfig
	Auth       AuthConfig
	Permission PermissionConfig
}

type AppConfig struct {
	Env  string
	Port int

	// LogLevel overrides the env default level (debug, info, warn, error).
	LogLevel string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string

	// Pool sizing. Zero keeps the connection helper's defaults.
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type AuthConfig struct {
	// JWTSecret is the base64 encoding of the HMAC key.
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// Leeway is the clock skew tolerated on exp/iat. Zero means none.
	Leeway time.Duration

	// RotateRefreshTokens issues a fresh refresh token on every refresh
	// instead of handing the presented one back.
	RotateRefreshTokens bool

	// CookieSecure controls the Secure attribute on token cookies.
	CookieSecure bool

	// DevUsername and DevPassword seed the local login account. Both are
	// ignored in production.
	DevUsername string
	DevPassword string
}

type PermissionConfig struct {
	// CacheBackend is "memory" or "redis".
	CacheBackend string
	// CacheTTL bounds how long a positive decision is memoized. Zero means until invalidated.
	CacheTTL time.Duration
}

// LoadDotEnv reads KEY=VALUE files into the process environment. Variables
// already set win over file values. Missing files are not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	c.App.LogLevel = strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))
	c.DB.MaxOpenConns, parseErrs = optionalInt(parseErrs, "DB_MAX_OPEN_CONNS")
	c.DB.MaxIdleConns, parseErrs = optionalInt(parseErrs, "DB_MAX_IDLE_CONNS")
	c.DB.ConnMaxLifetime, parseErrs = optionalDuration(parseErrs, "DB_CONN_MAX_LIFETIME")

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	if v := strings.TrimSpace(os.Getenv("REDIS_PORT")); v != "" {
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")
	if v := strings.TrimSpace(os.Getenv("REDIS_DB")); v != "" {
		n, err := mustInt("REDIS_DB")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.DB = n
	}

	c.Auth.JWTSecret = strings.TrimSpace(os.Getenv("JWT_SECRET"))
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate().
	c.Auth.AccessTokenTTL, parseErrs = optionalDuration(parseErrs, "JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL, parseErrs = optionalDuration(parseErrs, "JWT_REFRESH_TTL")
	c.Auth.Leeway, parseErrs = optionalDuration(parseErrs, "JWT_LEEWAY")
	c.Auth.RotateRefreshTokens = boolEnv("JWT_ROTATE_REFRESH", false)
	c.Auth.CookieSecure = boolEnv("COOKIE_SECURE", true)
	c.Auth.DevUsername = strings.TrimSpace(os.Getenv("DEV_LOGIN_USERNAME"))
	c.Auth.DevPassword = os.Getenv("DEV_LOGIN_PASSWORD")

	c.Permission.CacheBackend = strings.TrimSpace(os.Getenv("PERMISSION_CACHE"))
	c.Permission.CacheTTL, parseErrs = optionalDuration(parseErrs, "PERMISSION_CACHE_TTL")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks the config and fills defaults in place.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.MaxOpenConns < 0 || c.DB.MaxIdleConns < 0 {
		errs = append(errs, errors.New("DB_MAX_OPEN_CONNS and DB_MAX_IDLE_CONNS must not be negative"))
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	switch strings.ToLower(c.App.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error, got %q", c.App.LogLevel))
	}

	if err := validateSecret(c.Auth.JWTSecret); err != nil {
		errs = append(errs, err)
	}
	if c.Auth.JWTIssuer == "" {
		c.Auth.JWTIssuer = DefaultIssuer
	}
	if c.Auth.JWTAudience == "" {
		c.Auth.JWTAudience = DefaultAudience
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 30 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 14 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}
	if c.Auth.Leeway < 0 {
		errs = append(errs, fmt.Errorf("JWT_LEEWAY must not be negative, got %s", c.Auth.Leeway))
	}
	if c.IsProduction() {
		c.Auth.DevUsername, c.Auth.DevPassword = "", ""
	} else {
		if c.Auth.DevUsername == "" {
			c.Auth.DevUsername = "test@example.com"
		}
		if c.Auth.DevPassword == "" {
			c.Auth.DevPassword = "test1234"
		}
	}

	switch c.Permission.CacheBackend {
	case "":
		c.Permission.CacheBackend = "memory"
	case "memory":
	case "redis":
		if c.Redis.Host == "" {
			errs = append(errs, errors.New("REDIS_HOST is required when PERMISSION_CACHE=redis"))
		}
		if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
			errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
		}
		if c.Redis.DB < 0 {
			errs = append(errs, fmt.Errorf("REDIS_DB must not be negative, got %d", c.Redis.DB))
		}
	default:
		errs = append(errs, fmt.Errorf("PERMISSION_CACHE must be one of memory, redis, got %q", c.Permission.CacheBackend))
	}
	if c.Permission.CacheTTL < 0 {
		errs = append(errs, fmt.Errorf("PERMISSION_CACHE_TTL must not be negative, got %s", c.Permission.CacheTTL))
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// DecodeSecret returns the raw signing key bytes.
func (a AuthConfig) DecodeSecret() ([]byte, error) {
	if a.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	key, err := base64.StdEncoding.DecodeString(a.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("JWT_SECRET must be base64: %w", err)
	}
	if len(key) < MinSecretBytes {
		return nil, fmt.Errorf("JWT_SECRET must decode to at least %d bytes, got %d", MinSecretBytes, len(key))
	}
	return key, nil
}

func validateSecret(secret string) error {
	_, err := AuthConfig{JWTSecret: secret}.DecodeSecret()
	return err
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalInt(errs []error, key string) (int, []error) {
	if strings.TrimSpace(os.Getenv(key)) == "" {
		return 0, errs
	}
	n, err := mustInt(key)
	return appendParseErr(errs, n, err)
}

// optionalDuration leaves an unset key at zero so Validate can apply its
// default; a set but unparseable value is a parse error.
func optionalDuration(errs []error, key string) (time.Duration, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, errs
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s must be a duration such as 15m, got %q", key, v))
	}
	return d, errs
}

func boolEnv(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}

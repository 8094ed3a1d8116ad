package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App    AppConfig
	DB     DBConfig
	Redis  RedisConfig
	Auth   AuthConfig
	Twilio TwilioConfig
	Engine EngineConfig
	Pool   PoolConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode is kept explicit for AWS-ready posture.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret string
	JWTIssuer string
	JWTAudience string
	AccessTokenTTL time.Duration
	RefreshTokenTTL time.Duration
}

type TwilioConfig struct {
	AccountSID    string
	AuthToken     string
	WebhookSecret string

	// FromNumber is the caller id presented on outbound campaign calls.
	FromNumber string

	// AnswerURL serves call instructions; StatusCallbackURL receives
	// status webhooks. Both must be publicly reachable by the provider.
	AnswerURL         string
	StatusCallbackURL string
}

// EngineConfig bounds the campaign execution engine. Durations are optional
// in env; defaults applied in Validate().
type EngineConfig struct {
	// GlobalMaxCalls caps concurrent calls across all clients.
	GlobalMaxCalls int

	// DefaultClientMaxCalls applies to clients without a persisted limit.
	DefaultClientMaxCalls int

	HeartbeatPeriod     time.Duration
	OrphanThreshold     time.Duration
	OrphanSweepInterval time.Duration

	CallTimeout       time.Duration
	CallSweepInterval time.Duration

	// DialRate paces dispatches in calls per second; DialBurst is the burst
	// size. Zero rate disables pacing.
	DialRate  float64
	DialBurst int
}

type PoolConfig struct {
	// FreshnessWindow expires unreturned endpoint checkouts.
	FreshnessWindow time.Duration
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
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

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate() based on env.
	c.Auth.AccessTokenTTL = mustDuration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = mustDuration("JWT_REFRESH_TTL")

	c.Twilio.AccountSID = strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID"))
	c.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	c.Twilio.WebhookSecret = os.Getenv("TWILIO_WEBHOOK_SECRET")
	c.Twilio.FromNumber = strings.TrimSpace(os.Getenv("TWILIO_FROM_NUMBER"))
	c.Twilio.AnswerURL = strings.TrimSpace(os.Getenv("TWILIO_ANSWER_URL"))
	c.Twilio.StatusCallbackURL = strings.TrimSpace(os.Getenv("TWILIO_STATUS_CALLBACK_URL"))

	c.Engine.GlobalMaxCalls = optionalInt("ENGINE_GLOBAL_MAX_CALLS")
	c.Engine.DefaultClientMaxCalls = optionalInt("ENGINE_CLIENT_MAX_CALLS")
	c.Engine.HeartbeatPeriod = mustDuration("ENGINE_HEARTBEAT_PERIOD")
	c.Engine.OrphanThreshold = mustDuration("ENGINE_ORPHAN_THRESHOLD")
	c.Engine.OrphanSweepInterval = mustDuration("ENGINE_ORPHAN_SWEEP_INTERVAL")
	c.Engine.CallTimeout = mustDuration("ENGINE_CALL_TIMEOUT")
	c.Engine.CallSweepInterval = mustDuration("ENGINE_CALL_SWEEP_INTERVAL")
	c.Engine.DialRate = optionalFloat("ENGINE_DIAL_RATE")
	c.Engine.DialBurst = optionalInt("ENGINE_DIAL_BURST")

	c.Pool.FreshnessWindow = mustDuration("POOL_FRESHNESS_WINDOW")

	c.applyEngineDefaults()

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) applyEngineDefaults() {
	if c.Engine.GlobalMaxCalls <= 0 {
		c.Engine.GlobalMaxCalls = 50
	}
	if c.Engine.DefaultClientMaxCalls <= 0 {
		c.Engine.DefaultClientMaxCalls = 5
	}
	if c.Engine.HeartbeatPeriod <= 0 {
		c.Engine.HeartbeatPeriod = 30 * time.Second
	}
	if c.Engine.OrphanThreshold <= 0 {
		// A small multiple of the heartbeat period.
		c.Engine.OrphanThreshold = 3 * c.Engine.HeartbeatPeriod
	}
	if c.Engine.OrphanSweepInterval <= 0 {
		c.Engine.OrphanSweepInterval = time.Minute
	}
	if c.Engine.CallTimeout <= 0 {
		c.Engine.CallTimeout = 5 * time.Minute
	}
	if c.Engine.CallSweepInterval <= 0 {
		c.Engine.CallSweepInterval = time.Minute
	}
	if c.Engine.DialBurst <= 0 {
		c.Engine.DialBurst = 1
	}
	if c.Pool.FreshnessWindow <= 0 {
		c.Pool.FreshnessWindow = 5 * time.Minute
	}
}

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
			// Allowed values are enforced below.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}

	if c.Auth.AccessTokenTTL <= 0 {
		// Default: short-lived access tokens.
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		// Default: longer-lived refresh tokens.
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	if c.Engine.HeartbeatPeriod > 0 && c.Engine.OrphanThreshold > 0 && c.Engine.OrphanThreshold <= c.Engine.HeartbeatPeriod {
		errs = append(errs, errors.New("ENGINE_ORPHAN_THRESHOLD must be greater than ENGINE_HEARTBEAT_PERIOD"))
	}
	if c.Engine.DialRate < 0 {
		errs = append(errs, fmt.Errorf("ENGINE_DIAL_RATE must be >= 0, got %f", c.Engine.DialRate))
	}
	if c.IsProduction() {
		if c.Twilio.FromNumber == "" {
			errs = append(errs, errors.New("TWILIO_FROM_NUMBER is required in production"))
		}
		if c.Twilio.StatusCallbackURL == "" {
			errs = append(errs, errors.New("TWILIO_STATUS_CALLBACK_URL is required in production"))
		}
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

func optionalInt(key string) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func optionalFloat(key string) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
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

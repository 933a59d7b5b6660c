// Package config provides application configuration loaded from environment variables.
// Use the package-level Get() function to obtain the singleton Config instance.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ──────────────────────────────────────────────────────────────────────────────
// Sub-config structs
// ──────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port                 string        // e.g. "8080"
	BackofficePort       string        // e.g. "8081"
	Env                  string        // "development" | "production"
	ReadTimeout          time.Duration // default 10s
	WriteTimeout         time.Duration // default 10s
	BackofficeAllowedIPs string        // comma-separated IPs; "" = allow all
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	DSN             string        // full postgres DSN
	MaxOpenConns    int           // default 25
	MaxIdleConns    int           // default 10
	ConnMaxLifetime time.Duration // default 5m
}

// JWTConfig holds JWT signing settings.
type JWTConfig struct {
	AccessSecret  string        // must be set
	RefreshSecret string        // must be set
	AccessTTL     time.Duration // default 15m
	RefreshTTL    time.Duration // default 720h (30 days)
}

// TradeConfig holds the trading-core's fee and bet-size defaults (spec.md §6).
type TradeConfig struct {
	FeeRate        float64 // TRADE_FEE_PERCENT / 100, e.g. 0.02 = 2%
	DefaultMinBet  float64 // seeded onto new markets when not specified
	DefaultMaxBet  float64
	AdminIDs       []string // external-identity ids granted admin privileges
}

// LMSRConfig holds the LMSR engine's tunables.
type LMSRConfig struct {
	DefaultLiquidityB float64 // seeded onto new lmsr markets when not specified
	// BinarySearchIterations is fixed at lmsr.BinarySearchIterations (50) per
	// spec.md §4.1; kept here only as documentation of its provenance, not
	// re-derived or overridable — SharesForAmount does not read this field.
	BinarySearchIterations int
}

// PrivateBetConfig holds the private-bet subsystem's timing and fee rules.
type PrivateBetConfig struct {
	MinLeadTime   time.Duration // minimum closes_at - now() at create, default 5m
	VotingWindow  time.Duration // voting_deadline = time the bet enters voting + VotingWindow (unset before then, not derived from closes_at), default 24h
	FeeRate       float64       // platform cut of the pool on resolve, default 0.02
}

// LiquidityConfig holds the house exposure monitor's warning thresholds.
type LiquidityConfig struct {
	MinLiquidityB      float64 // LMSR markets below this liquidity_b get flagged as thin
	CLOBImbalanceRatio float64 // bid/ask reservation ratio below this is flagged imbalanced
	ReserveFloor       float64 // aggregate open-market exposure above this is flagged
}

// IdentityConfig holds the external identity provider's shared secret and
// freshness window. The provider itself is outside this module; this config
// parameterises service.TelegramVerifier, which checks the provider's
// signatures.
type IdentityConfig struct {
	BotToken   string        // shared secret with the external identity provider
	MaxAuthAge time.Duration // reject tokens older than this, default 24h
}

// ──────────────────────────────────────────────────────────────────────────────
// Top-level Config
// ──────────────────────────────────────────────────────────────────────────────

// Config is the root configuration object for the entire application.
type Config struct {
	Server     ServerConfig
	DB         DBConfig
	JWT        JWTConfig
	Trade      TradeConfig
	LMSR       LMSRConfig
	PrivateBet PrivateBetConfig
	Liquidity  LiquidityConfig
	Identity   IdentityConfig
}

// IsProd returns true when running in the production environment.
func (c *Config) IsProd() bool {
	return c.Server.Env == "production"
}

// Validate checks that all required configuration values are present and valid.
// Every failed check is collected and returned together via errors.Join.
func (c *Config) Validate() error {
	var errs []error

	// JWT secrets are mandatory
	if c.JWT.AccessSecret == "" {
		errs = append(errs, errors.New("JWT_ACCESS_SECRET must be set"))
	}
	if c.JWT.RefreshSecret == "" {
		errs = append(errs, errors.New("JWT_REFRESH_SECRET must be set"))
	}

	// In production, DB DSN must be explicit
	if c.IsProd() && c.DB.DSN == "" {
		errs = append(errs, errors.New("DATABASE_DSN must be set in production"))
	}

	if c.Trade.FeeRate < 0 || c.Trade.FeeRate >= 1 {
		errs = append(errs, fmt.Errorf(
			"TRADE_FEE_PERCENT must resolve to a rate in [0, 1), got %.4f", c.Trade.FeeRate))
	}
	if c.LMSR.DefaultLiquidityB <= 0 {
		errs = append(errs, fmt.Errorf(
			"LMSR_DEFAULT_LIQUIDITY_B must be > 0, got %.4f", c.LMSR.DefaultLiquidityB))
	}
	if c.PrivateBet.FeeRate < 0 || c.PrivateBet.FeeRate >= 1 {
		errs = append(errs, fmt.Errorf(
			"PRIVATE_BET_FEE_RATE must resolve to a rate in [0, 1), got %.4f", c.PrivateBet.FeeRate))
	}
	if c.PrivateBet.MinLeadTime <= 0 {
		errs = append(errs, errors.New("PRIVATE_BET_MIN_LEAD_TIME must be positive"))
	}
	if c.Liquidity.MinLiquidityB <= 0 {
		errs = append(errs, errors.New("LIQUIDITY_MIN_B must be > 0"))
	}
	if c.Liquidity.CLOBImbalanceRatio <= 0 || c.Liquidity.CLOBImbalanceRatio >= 1 {
		errs = append(errs, errors.New("LIQUIDITY_CLOB_IMBALANCE_RATIO must be in (0, 1)"))
	}
	if c.Identity.BotToken == "" {
		errs = append(errs, errors.New("IDENTITY_BOT_TOKEN must be set"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// IsAdmin reports whether an external identity id is in the configured
// admin allow-list.
func (c *Config) IsAdmin(externalID string) bool {
	for _, id := range c.Trade.AdminIDs {
		if id == externalID {
			return true
		}
	}
	return false
}

// ──────────────────────────────────────────────────────────────────────────────
// Singleton
// ──────────────────────────────────────────────────────────────────────────────

var (
	instance *Config
	once     sync.Once
	loadErr  error
)

// Get returns the singleton Config, loading it once from environment variables.
// Panics if loading fails — call this early in main() to catch misconfigurations
// at startup.
func Get() *Config {
	once.Do(func() {
		instance, loadErr = load()
	})
	if loadErr != nil {
		panic(fmt.Sprintf("config: failed to load: %v", loadErr))
	}
	return instance
}

// MustLoad loads and validates configuration. Intended for use in main().
// Panics on any error so misconfiguration is caught immediately at boot.
func MustLoad() *Config {
	cfg := Get()
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("config: validation failed: %v", err))
	}
	return cfg
}

// ──────────────────────────────────────────────────────────────────────────────
// Internal loader
// ──────────────────────────────────────────────────────────────────────────────

func load() (*Config, error) {
	cfg := &Config{}

	// ── Server ────────────────────────────────────────────────────────────────
	cfg.Server = ServerConfig{
		Port:                 getEnv("SERVER_PORT", "8080"),
		BackofficePort:       getEnv("BACKOFFICE_PORT", "8081"),
		Env:                  getEnv("ENVIRONMENT", "development"),
		ReadTimeout:          getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
		WriteTimeout:         getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
		BackofficeAllowedIPs: getEnv("BACKOFFICE_ALLOWED_IPS", ""),
	}

	// ── Database ──────────────────────────────────────────────────────────────
	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		// Build DSN from individual components for convenience in dev
		dsn = fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			getEnv("DB_HOST", "localhost"),
			getEnv("DB_PORT", "5432"),
			getEnv("DB_USER", "postgres"),
			getEnv("DB_PASSWORD", ""),
			getEnv("DB_NAME", "evetabi_prediction"),
			getEnv("DB_SSLMODE", "disable"),
		)
	}

	maxOpen, err := getInt("DB_MAX_OPEN_CONNS", 25)
	if err != nil {
		return nil, fmt.Errorf("DB_MAX_OPEN_CONNS: %w", err)
	}
	maxIdle, err := getInt("DB_MAX_IDLE_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("DB_MAX_IDLE_CONNS: %w", err)
	}

	cfg.DB = DBConfig{
		DSN:             dsn,
		MaxOpenConns:    maxOpen,
		MaxIdleConns:    maxIdle,
		ConnMaxLifetime: getDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}

	// ── JWT ───────────────────────────────────────────────────────────────────
	cfg.JWT = JWTConfig{
		AccessSecret:  getEnv("JWT_ACCESS_SECRET", ""),
		RefreshSecret: getEnv("JWT_REFRESH_SECRET", ""),
		AccessTTL:     getDuration("JWT_ACCESS_TTL", 15*time.Minute),
		RefreshTTL:    getDuration("JWT_REFRESH_TTL", 30*24*time.Hour),
	}

	// ── Trade ─────────────────────────────────────────────────────────────────
	feePercent, err := getFloat("TRADE_FEE_PERCENT", 2.0)
	if err != nil {
		return nil, fmt.Errorf("TRADE_FEE_PERCENT: %w", err)
	}
	defaultMinBet, err := getFloat("TRADE_DEFAULT_MIN_BET", 1.0)
	if err != nil {
		return nil, fmt.Errorf("TRADE_DEFAULT_MIN_BET: %w", err)
	}
	defaultMaxBet, err := getFloat("TRADE_DEFAULT_MAX_BET", 10000.0)
	if err != nil {
		return nil, fmt.Errorf("TRADE_DEFAULT_MAX_BET: %w", err)
	}
	cfg.Trade = TradeConfig{
		FeeRate:       feePercent / 100,
		DefaultMinBet: defaultMinBet,
		DefaultMaxBet: defaultMaxBet,
		AdminIDs:      splitCSV(getEnv("ADMIN_IDS", "")),
	}

	// ── LMSR ──────────────────────────────────────────────────────────────────
	liquidityB, err := getFloat("LMSR_DEFAULT_LIQUIDITY_B", 100.0)
	if err != nil {
		return nil, fmt.Errorf("LMSR_DEFAULT_LIQUIDITY_B: %w", err)
	}
	iterations, err := getInt("LMSR_BINARY_SEARCH_ITERATIONS", 50)
	if err != nil {
		return nil, fmt.Errorf("LMSR_BINARY_SEARCH_ITERATIONS: %w", err)
	}
	cfg.LMSR = LMSRConfig{
		DefaultLiquidityB:      liquidityB,
		BinarySearchIterations: iterations,
	}

	// ── Private Bet ───────────────────────────────────────────────────────────
	feeRate, err := getFloat("PRIVATE_BET_FEE_RATE", 0.02)
	if err != nil {
		return nil, fmt.Errorf("PRIVATE_BET_FEE_RATE: %w", err)
	}
	cfg.PrivateBet = PrivateBetConfig{
		MinLeadTime:  getDuration("PRIVATE_BET_MIN_LEAD_TIME", 5*time.Minute),
		VotingWindow: getDuration("PRIVATE_BET_VOTING_WINDOW", 24*time.Hour),
		FeeRate:      feeRate,
	}

	// ── Liquidity monitor ──────────────────────────────────────────────────────
	minLiquidityB, err := getFloat("LIQUIDITY_MIN_B", 20.0)
	if err != nil {
		return nil, fmt.Errorf("LIQUIDITY_MIN_B: %w", err)
	}
	imbalanceRatio, err := getFloat("LIQUIDITY_CLOB_IMBALANCE_RATIO", 0.20)
	if err != nil {
		return nil, fmt.Errorf("LIQUIDITY_CLOB_IMBALANCE_RATIO: %w", err)
	}
	reserveFloor, err := getFloat("LIQUIDITY_RESERVE_FLOOR", 50000.0)
	if err != nil {
		return nil, fmt.Errorf("LIQUIDITY_RESERVE_FLOOR: %w", err)
	}
	cfg.Liquidity = LiquidityConfig{
		MinLiquidityB:      minLiquidityB,
		CLOBImbalanceRatio: imbalanceRatio,
		ReserveFloor:       reserveFloor,
	}

	// ── Identity provider ──────────────────────────────────────────────────────
	cfg.Identity = IdentityConfig{
		BotToken:   getEnv("IDENTITY_BOT_TOKEN", ""),
		MaxAuthAge: getDuration("IDENTITY_MAX_AUTH_AGE", 24*time.Hour),
	}

	return cfg, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Helper functions
// ──────────────────────────────────────────────────────────────────────────────

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", v)
	}
	return n, nil
}

func getFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float %q", v)
	}
	return f, nil
}

// getDuration parses an env var as a Go duration string (e.g. "15m", "2s").
// Falls back to defaultVal if the variable is unset or empty.
func getDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		// Fall back to default silently; do not crash on parse error
		return defaultVal
	}
	return d
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

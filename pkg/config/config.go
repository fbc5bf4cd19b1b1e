package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	CORS         CORSConfig
	Log          LogConfig
	Admin        AdminConfig
	Invites      InviteConfig
	Certificates CertificateConfig
	Mail         MailConfig
	Outbox       OutboxConfig
	Audit        AuditConfig
	Cache        CacheConfig
	Chat         ChatConfig
	Exports      ExportConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
	Issuer            string
	Audience          []string
	SingleSession     bool
	VerifyLinkBaseURL string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// AdminConfig pins the protected platform administrator account.
type AdminConfig struct {
	Email    string
	Name     string
	Password string
}

// InviteConfig controls invite token lifetime and the link base shown in mail.
type InviteConfig struct {
	TTL         time.Duration
	LinkBaseURL string
}

// CertificateConfig controls certificate rendering and signed downloads.
type CertificateConfig struct {
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
	IssuerName      string
}

// MailConfig selects the mail sender backend.
type MailConfig struct {
	Backend        string
	FromName       string
	FromAddress    string
	SendgridAPIKey string
}

// OutboxConfig tunes the durable delivery workers.
type OutboxConfig struct {
	Workers      int
	MaxRetries   int
	RetryDelay   time.Duration
	PollInterval time.Duration
}

// AuditConfig bounds audit log growth.
type AuditConfig struct {
	Retention     time.Duration
	PruneInterval time.Duration
}

// CacheConfig governs read caching for curriculum and summaries.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// ChatConfig names the always-present global channel.
type ChatConfig struct {
	GlobalChannelName string
}

// ExportConfig controls roster/progress export storage.
type ExportConfig struct {
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
	CleanupInterval time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
		Issuer:            v.GetString("JWT_ISSUER"),
		Audience:          splitAndTrim(v.GetString("JWT_AUDIENCE")),
		SingleSession:     v.GetBool("SINGLE_SESSION"),
		VerifyLinkBaseURL: v.GetString("VERIFY_LINK_BASE_URL"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Admin = AdminConfig{
		Email:    v.GetString("ADMIN_EMAIL"),
		Name:     v.GetString("ADMIN_NAME"),
		Password: v.GetString("ADMIN_PASSWORD"),
	}

	cfg.Invites = InviteConfig{
		TTL:         parseDuration(v.GetString("INVITE_TTL"), 7*24*time.Hour),
		LinkBaseURL: v.GetString("INVITE_LINK_BASE_URL"),
	}

	cfg.Certificates = CertificateConfig{
		StorageDir:      v.GetString("CERTIFICATES_STORAGE_DIR"),
		SignedURLSecret: v.GetString("CERTIFICATES_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("CERTIFICATES_SIGNED_URL_TTL"), 24*time.Hour),
		IssuerName:      v.GetString("CERTIFICATES_ISSUER_NAME"),
	}

	cfg.Mail = MailConfig{
		Backend:        v.GetString("MAIL_BACKEND"),
		FromName:       v.GetString("MAIL_FROM_NAME"),
		FromAddress:    v.GetString("MAIL_FROM_ADDRESS"),
		SendgridAPIKey: v.GetString("SENDGRID_API_KEY"),
	}

	cfg.Outbox = OutboxConfig{
		Workers:      v.GetInt("OUTBOX_WORKERS"),
		MaxRetries:   v.GetInt("OUTBOX_MAX_RETRIES"),
		RetryDelay:   parseDuration(v.GetString("OUTBOX_RETRY_DELAY"), 30*time.Second),
		PollInterval: parseDuration(v.GetString("OUTBOX_POLL_INTERVAL"), 15*time.Second),
	}

	cfg.Audit = AuditConfig{
		Retention:     parseDuration(v.GetString("AUDIT_RETENTION"), 90*24*time.Hour),
		PruneInterval: parseDuration(v.GetString("AUDIT_PRUNE_INTERVAL"), 24*time.Hour),
	}

	cfg.Cache = CacheConfig{
		Enabled: v.GetBool("ENABLE_CACHE"),
		TTL:     parseDuration(v.GetString("CACHE_TTL"), 10*time.Minute),
	}

	cfg.Chat = ChatConfig{
		GlobalChannelName: v.GetString("CHAT_GLOBAL_CHANNEL_NAME"),
	}

	cfg.Exports = ExportConfig{
		StorageDir:      v.GetString("EXPORTS_STORAGE_DIR"),
		SignedURLSecret: v.GetString("EXPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("EXPORTS_SIGNED_URL_TTL"), 24*time.Hour),
		CleanupInterval: parseDuration(v.GetString("EXPORTS_CLEANUP_INTERVAL"), time.Hour),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "bbl_platform")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "1h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")
	v.SetDefault("JWT_ISSUER", "bbl-api")
	v.SetDefault("JWT_AUDIENCE", "bbl-clients")
	v.SetDefault("SINGLE_SESSION", true)
	v.SetDefault("VERIFY_LINK_BASE_URL", "http://localhost:3000")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ADMIN_EMAIL", "admin@buildbiblicalleaders.org")
	v.SetDefault("ADMIN_NAME", "Platform Admin")
	v.SetDefault("ADMIN_PASSWORD", "changeme")

	v.SetDefault("INVITE_TTL", "168h")
	v.SetDefault("INVITE_LINK_BASE_URL", "http://localhost:3000")

	v.SetDefault("CERTIFICATES_STORAGE_DIR", "./certificates")
	v.SetDefault("CERTIFICATES_SIGNED_URL_SECRET", "dev_certificates_secret")
	v.SetDefault("CERTIFICATES_SIGNED_URL_TTL", "24h")
	v.SetDefault("CERTIFICATES_ISSUER_NAME", "Build Biblical Leaders")

	v.SetDefault("MAIL_BACKEND", "console")
	v.SetDefault("MAIL_FROM_NAME", "Build Biblical Leaders")
	v.SetDefault("MAIL_FROM_ADDRESS", "no-reply@buildbiblicalleaders.org")
	v.SetDefault("SENDGRID_API_KEY", "")

	v.SetDefault("OUTBOX_WORKERS", 2)
	v.SetDefault("OUTBOX_MAX_RETRIES", 5)
	v.SetDefault("OUTBOX_RETRY_DELAY", "30s")
	v.SetDefault("OUTBOX_POLL_INTERVAL", "15s")

	v.SetDefault("AUDIT_RETENTION", "2160h")
	v.SetDefault("AUDIT_PRUNE_INTERVAL", "24h")

	v.SetDefault("ENABLE_CACHE", false)
	v.SetDefault("CACHE_TTL", "10m")

	v.SetDefault("CHAT_GLOBAL_CHANNEL_NAME", "Global Collective")

	v.SetDefault("EXPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("EXPORTS_SIGNED_URL_SECRET", "dev_exports_secret")
	v.SetDefault("EXPORTS_SIGNED_URL_TTL", "24h")
	v.SetDefault("EXPORTS_CLEANUP_INTERVAL", "1h")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
// It is constructed once at process start and passed explicitly; nothing in
// the codebase reads ambient global state.
type Config struct {
	AppPort string
	AppEnv  string

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables

	JWTSecret        string
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration
	PasscodeTTL      time.Duration
	PasscodeLength   int
	RevocationPrune  time.Duration // interval between expired-entry sweeps
	PermissionsCache time.Duration // role → permission-set cache TTL

	SMTPHost     string
	SMTPPort     string
	SMTPFrom     string
	SMTPUsername string
	SMTPPassword string

	SNSRegion string

	AllowedOrigins []string // CORS allowed origins
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Users       string
	Passcodes   string
	Revocations string
	Roles       string
	AuditLogs   string
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort: getEnv("APP_PORT", "3000"),
		AppEnv:  getEnv("APP_ENV", "development"),

		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Users:       getEnv("DYNAMO_TABLE_USERS", "users"),
			Passcodes:   getEnv("DYNAMO_TABLE_PASSCODES", "passcodes"),
			Revocations: getEnv("DYNAMO_TABLE_REVOCATIONS", "revoked_tokens"),
			Roles:       getEnv("DYNAMO_TABLE_ROLES", "roles"),
			AuditLogs:   getEnv("DYNAMO_TABLE_AUDIT_LOGS", "audit_logs"),
		},

		JWTSecret:        getEnv("JWT_SECRET", ""),
		AccessTokenTTL:   getEnvMinutes("ACCESS_TOKEN_EXPIRE_MINUTES", 30),
		RefreshTokenTTL:  getEnvDays("REFRESH_TOKEN_EXPIRE_DAYS", 7),
		PasscodeTTL:      getEnvMinutes("OTP_EXPIRE_MINUTES", 5),
		PasscodeLength:   getEnvInt("OTP_LENGTH", 6),
		RevocationPrune:  getEnvMinutes("REVOCATION_PRUNE_MINUTES", 60),
		PermissionsCache: getEnvMinutes("PERMISSIONS_CACHE_MINUTES", 1),

		SMTPHost:     getEnv("SMTP_HOST", "localhost"),
		SMTPPort:     getEnv("SMTP_PORT", "1025"),
		SMTPFrom:     getEnv("SMTP_FROM", "noreply@example.com"),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),

		SNSRegion: getEnv("SNS_REGION", "us-east-1"),

		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvMinutes(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Minute
}

func getEnvDays(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * 24 * time.Hour
}

package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultJWTSigningKey = "dev-secret-key-change-in-production"
	defaultAdminPassword = "admin123"

	minTokenLength = 6
	maxTokenLength = 8
)

// Server captures process level configuration.
type Server struct {
	Addr        string
	Environment string
	LogLevel    string

	DatabaseURL string
	Redis       RedisConfig
	Kafka       KafkaConfig

	// AuditSampleRate is the share of operations audit events (lookups,
	// downloads) that reach the sink. Compliance and security events are always kept.
	AuditSampleRate float64

	JWTSigningKey string
	AdminTokenTTL time.Duration
	AdminUsername string
	AdminPassword string

	Certificates CertificateConfig

	VerifyRateLimit int

	// TrustedProxies lists CIDRs or addresses whose forwarding headers name the client.
	TrustedProxies []string

	PDFRenderTimeout time.Duration
	RequestTimeout   time.Duration
}

// RedisConfig configures the optional verification cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CacheTTL     time.Duration
}

// KafkaConfig configures the optional audit stream.
type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

// CertificateConfig carries institution branding and number shape.
type CertificateConfig struct {
	InstitutionName string
	NumberPrefix    string
	TokenLength     int
	FrontendURL     string
}

// UsesDevSigningKey reports whether the JWT key was left at its development default.
func (s Server) UsesDevSigningKey() bool {
	return s.JWTSigningKey == defaultJWTSigningKey
}

// UsesDevAdminPassword reports whether the seeded admin kept the default password.
func (s Server) UsesDevAdminPassword() bool {
	return s.AdminPassword == defaultAdminPassword
}

// IsDevelopment reports whether the process runs with ENVIRONMENT=development.
func (s Server) IsDevelopment() bool {
	return strings.EqualFold(s.Environment, "development")
}

// Validate rejects development credentials outside development: anyone who has
// read the defaults could otherwise mint admin tokens or log in.
func (s Server) Validate() error {
	if s.IsDevelopment() {
		return nil
	}
	var errs []error
	if s.UsesDevSigningKey() {
		errs = append(errs, errors.New("JWT_SIGNING_KEY must be set outside development"))
	}
	if s.UsesDevAdminPassword() {
		errs = append(errs, errors.New("ADMIN_PASSWORD must be set outside development"))
	}
	return errors.Join(errs...)
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	return Server{
		Addr:        envString("CERTIFY_ADDR", ":8080"),
		Environment: envString("ENVIRONMENT", "development"),
		LogLevel:    envString("LOG_LEVEL", "info"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			CacheTTL:     envDuration("REDIS_CACHE_TTL", 10*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers:    envList("KAFKA_BROKERS"),
			AuditTopic: envString("KAFKA_AUDIT_TOPIC", "certify.audit"),
		},
		AuditSampleRate: envFloat("AUDIT_SAMPLE_RATE", 1),

		JWTSigningKey: envString("JWT_SIGNING_KEY", defaultJWTSigningKey),
		AdminTokenTTL: envDuration("ADMIN_TOKEN_TTL", 8*time.Hour),
		AdminUsername: envString("ADMIN_USERNAME", "admin"),
		AdminPassword: envString("ADMIN_PASSWORD", defaultAdminPassword),

		Certificates: CertificateConfig{
			InstitutionName: envString("INSTITUTION_NAME", "Puntland State University"),
			NumberPrefix:    envString("CERTIFICATE_PREFIX", "PSU-"),
			TokenLength:     clamp(envInt("CERTIFICATE_TOKEN_LENGTH", maxTokenLength), minTokenLength, maxTokenLength),
			FrontendURL:     strings.TrimRight(envString("FRONTEND_URL", "https://psu-certificate-verification.netlify.app"), "/"),
		},

		VerifyRateLimit:  envInt("VERIFY_RATE_LIMIT", 60),
		TrustedProxies:   envList("TRUSTED_PROXIES"),
		PDFRenderTimeout: envDuration("PDF_RENDER_TIMEOUT", 20*time.Second),
		RequestTimeout:   30 * time.Second,
	}
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func envFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 || f > 1 {
		return fallback
	}
	return f
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

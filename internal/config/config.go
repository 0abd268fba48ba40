// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	LogLevel    string
	Server      ServerConfig
	Database    DatabaseConfig
	JWT         JWTConfig
	Redis       RedisConfig
	AWS         AWSConfig
	Blockchain  BlockchainConfig
	Payment     PaymentConfig
	WhatsApp    WhatsAppConfig
	Assistant   AssistantConfig
	Email       EmailConfig
	Tokens      TokenConfig
	I18n        I18nConfig
	Frontend    FrontendConfig
}

type FrontendConfig struct {
	BaseURL        string
	AllowedOrigins string
}

type ServerConfig struct {
	Port         string
	Host         string
	ReadTimeout  int
	WriteTimeout int
	IdleTimeout  int
}

type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  int
	LogLevel     string
}

type JWTConfig struct {
	SecretKey       string
	AccessTokenTTL  int // in hours
	RefreshTokenTTL int // in hours
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	S3Bucket        string
	CloudFrontURL   string
}

// BlockchainConfig describes the single target network and the escrow
// contract deployed on it.
type BlockchainConfig struct {
	Network         string
	RPCURL          string
	ChainID         int64
	PrivateKey      string
	ContractAddress string
	TokenDecimals   int32
	TokenSymbol     string
	TxTimeout       time.Duration
}

type PaymentConfig struct {
	StripeSecretKey      string
	StripePublishableKey string
	MobileMoneyProvider  string
	DefaultCurrency      string
	PlatformFeePercent   float64
	PendingTTL           time.Duration
	SweepInterval        time.Duration
}

type WhatsAppConfig struct {
	Enabled       bool
	APIBaseURL    string
	PhoneNumberID string
	AccessToken   string
	VerifyToken   string
	AppSecret     string
	SessionTTL    time.Duration
}

type AssistantConfig struct {
	Endpoint  string
	APIKey    string
	Model     string
	Version   string
	MaxTokens int
	Timeout   time.Duration
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	FromEmail    string
	FromName     string
}

// TokenConfig holds the reward for each claim type and the timezone used to
// decide what "today" means for daily claims.
type TokenConfig struct {
	SignupReward            int64
	EmailVerificationReward int64
	ProfileCompletionReward int64
	FirstListingReward      int64
	DailyReward             int64
	Timezone                string
}

type I18nConfig struct {
	DefaultLocale string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	config := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "localhost"),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 60),
			IdleTimeout:  getEnvAsInt("SERVER_IDLE_TIMEOUT", 60),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", ""),
			Database:     getEnv("DB_NAME", "campushub"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  getEnvAsInt("DB_MAX_LIFETIME", 300),
			LogLevel:     getEnv("DB_LOG_LEVEL", "warn"),
		},
		JWT: JWTConfig{
			SecretKey:       getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
			AccessTokenTTL:  getEnvAsInt("JWT_ACCESS_TTL", 24),   // 24 hours
			RefreshTokenTTL: getEnvAsInt("JWT_REFRESH_TTL", 168), // 7 days
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "eu-west-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			S3Bucket:        getEnv("AWS_S3_BUCKET", "campushub-listings"),
			CloudFrontURL:   getEnv("AWS_CLOUDFRONT_URL", ""),
		},
		Blockchain: BlockchainConfig{
			Network:         getEnv("BLOCKCHAIN_NETWORK", "base"),
			RPCURL:          getEnv("BLOCKCHAIN_RPC_URL", ""),
			ChainID:         int64(getEnvAsInt("BLOCKCHAIN_CHAIN_ID", 8453)),
			PrivateKey:      getEnv("BLOCKCHAIN_PRIVATE_KEY", ""),
			ContractAddress: getEnv("BLOCKCHAIN_CONTRACT_ADDRESS", ""),
			TokenDecimals:   int32(getEnvAsInt("BLOCKCHAIN_TOKEN_DECIMALS", 18)),
			TokenSymbol:     getEnv("BLOCKCHAIN_TOKEN_SYMBOL", "ETH"),
			TxTimeout:       getEnvAsDuration("BLOCKCHAIN_TX_TIMEOUT", 2*time.Minute),
		},
		Payment: PaymentConfig{
			StripeSecretKey:      getEnv("STRIPE_SECRET_KEY", ""),
			StripePublishableKey: getEnv("STRIPE_PUBLISHABLE_KEY", ""),
			MobileMoneyProvider:  getEnv("MOBILE_MONEY_PROVIDER", "sandbox"),
			DefaultCurrency:      getEnv("DEFAULT_CURRENCY", "GHS"),
			PlatformFeePercent:   getEnvAsFloat("PLATFORM_FEE_PERCENT", 0),
			PendingTTL:           getEnvAsDuration("PAYMENT_PENDING_TTL", 30*time.Minute),
			SweepInterval:        getEnvAsDuration("PAYMENT_SWEEP_INTERVAL", 10*time.Minute),
		},
		WhatsApp: WhatsAppConfig{
			Enabled:       getEnvAsBool("WHATSAPP_ENABLED", false),
			APIBaseURL:    getEnv("WHATSAPP_API_BASE_URL", "https://graph.facebook.com/v19.0"),
			PhoneNumberID: getEnv("WHATSAPP_PHONE_NUMBER_ID", ""),
			AccessToken:   getEnv("WHATSAPP_ACCESS_TOKEN", ""),
			VerifyToken:   getEnv("WHATSAPP_VERIFY_TOKEN", ""),
			AppSecret:     getEnv("WHATSAPP_APP_SECRET", ""),
			SessionTTL:    getEnvAsDuration("WHATSAPP_SESSION_TTL", 24*time.Hour),
		},
		Assistant: AssistantConfig{
			Endpoint:  getEnv("ASSISTANT_ENDPOINT", "https://api.anthropic.com/v1/messages"),
			APIKey:    getEnv("ASSISTANT_API_KEY", ""),
			Model:     getEnv("ASSISTANT_MODEL", "claude-3-5-haiku-latest"),
			Version:   getEnv("ASSISTANT_API_VERSION", "2023-06-01"),
			MaxTokens: getEnvAsInt("ASSISTANT_MAX_TOKENS", 1024),
			Timeout:   getEnvAsDuration("ASSISTANT_TIMEOUT", 30*time.Second),
		},
		Email: EmailConfig{
			SMTPHost:     getEnv("SMTP_HOST", ""),
			SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			FromEmail:    getEnv("FROM_EMAIL", "noreply@campushub.app"),
			FromName:     getEnv("FROM_NAME", "CampusHub"),
		},
		Tokens: TokenConfig{
			SignupReward:            int64(getEnvAsInt("TOKENS_SIGNUP_REWARD", 50)),
			EmailVerificationReward: int64(getEnvAsInt("TOKENS_EMAIL_VERIFICATION_REWARD", 25)),
			ProfileCompletionReward: int64(getEnvAsInt("TOKENS_PROFILE_COMPLETION_REWARD", 20)),
			FirstListingReward:      int64(getEnvAsInt("TOKENS_FIRST_LISTING_REWARD", 30)),
			DailyReward:             int64(getEnvAsInt("TOKENS_DAILY_REWARD", 10)),
			Timezone:                getEnv("TOKENS_TIMEZONE", "Africa/Accra"),
		},
		I18n: I18nConfig{
			DefaultLocale: getEnv("DEFAULT_LOCALE", "en"),
		},
		Frontend: FrontendConfig{
			BaseURL:        getEnv("FRONTEND_BASE_URL", "http://localhost:3000"),
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
	}

	return config, config.Validate()
}

func (c *Config) Validate() error {
	if c.JWT.SecretKey == "your-secret-key-change-in-production" && c.Environment == "production" {
		return fmt.Errorf("JWT secret key must be changed in production")
	}

	if c.Database.Password == "" && c.Environment == "production" {
		return fmt.Errorf("database password is required in production")
	}

	if c.WhatsApp.Enabled && c.WhatsApp.VerifyToken == "" {
		return fmt.Errorf("WHATSAPP_VERIFY_TOKEN is required when the WhatsApp bot is enabled")
	}
	if c.WhatsApp.Enabled && c.WhatsApp.AppSecret == "" {
		return fmt.Errorf("WHATSAPP_APP_SECRET is required when the WhatsApp bot is enabled")
	}

	if _, err := time.LoadLocation(c.Tokens.Timezone); err != nil {
		return fmt.Errorf("invalid TOKENS_TIMEZONE %q: %w", c.Tokens.Timezone, err)
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(strings.ToLower(value)); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

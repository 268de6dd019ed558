// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the MCP server and the receipt bot.
type Config struct {
	// Process settings
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "text" or "json"
	Port      string // HTTP transport

	// Chain settings
	RPCURL           string
	ChainID          int64
	PrivateKey       string // Hex-encoded, optional 0x prefix
	SeedPhrase       string // BIP-39 mnemonic, used when PrivateKey is empty
	USDCContract     string
	NFTContract      string
	EthMainnetRPCURL string
	EthSepoliaRPCURL string

	// Third-party API keys
	EtherscanAPIKey string
	NeynarAPIKey    string
	TalentAPIKey    string

	// Provider base URLs (overridable for tests and self-hosted proxies)
	BinanceURL     string
	CoinGeckoURL   string
	DexscreenerURL string
	EtherscanURL   string
	NeynarURL      string
	TalentURL      string
	MorphoURL      string

	// Upstream client behaviour
	UpstreamTimeout     time.Duration
	UpstreamMaxAttempts int

	// Storage and observability
	DatabaseURL  string // PostgreSQL, optional (in-memory when empty)
	OTLPEndpoint string
	RateLimitRPM int

	// Receipt bot
	TelegramBotToken  string
	BaseRPCURL        string
	ReceiptDataDir    string
	ReceiptHMACSecret string
}

// Defaults target Base mainnet.
const (
	DefaultRPCURL           = "https://mainnet.base.org"
	DefaultChainID          = 8453
	DefaultUSDCContract     = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913" // Base USDC
	DefaultSepoliaUSDC      = "0x036CbD53842c5426634e7929541eC2318f3dCF7e" // Base Sepolia USDC
	DefaultNFTContract      = "0x123456789abcdef123456789abcdef123456789a"
	DefaultEthMainnetRPCURL = "https://ethereum.publicnode.com"
	DefaultPort             = "8080"
	DefaultEnv              = "development"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
	DefaultRateLimitRPM     = 120
	DefaultUpstreamTimeout  = 30 * time.Second
	DefaultUpstreamAttempts = 2

	DefaultBinanceURL     = "https://api.binance.com"
	DefaultCoinGeckoURL   = "https://api.coingecko.com"
	DefaultDexscreenerURL = "https://api.dexscreener.com"
	DefaultEtherscanURL   = "https://api.etherscan.io"
	DefaultNeynarURL      = "https://api.neynar.com"
	DefaultTalentURL      = "https://api.talentprotocol.com"
	DefaultMorphoURL      = "https://blue-api.morpho.org/graphql"
)

var hexKeyRegex = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)
var addressRegex = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// Load reads configuration for the MCP server.
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := fromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadBot reads configuration for the receipt bot, which additionally
// requires a Telegram token.
func LoadBot() (*Config, error) {
	_ = godotenv.Load()

	cfg := fromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.TelegramBotToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	return cfg, nil
}

func fromEnv() *Config {
	chainID := getEnvInt64("CHAIN_ID", DefaultChainID)
	usdcDefault := DefaultUSDCContract
	if chainID == 84532 {
		usdcDefault = DefaultSepoliaUSDC
	}

	return &Config{
		Env:                 getEnv("ENV", DefaultEnv),
		LogLevel:            getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:           getEnv("LOG_FORMAT", DefaultLogFormat),
		Port:                getEnv("PORT", DefaultPort),
		RPCURL:              getEnv("RPC_URL", DefaultRPCURL),
		ChainID:             chainID,
		PrivateKey:          os.Getenv("PRIVATE_KEY"),
		SeedPhrase:          strings.TrimSpace(os.Getenv("SEED_PHRASE")),
		USDCContract:        getEnv("USDC_CONTRACT", usdcDefault),
		NFTContract:         getEnv("NFT_CONTRACT_ADDRESS", DefaultNFTContract),
		EthMainnetRPCURL:    getEnv("ETH_MAINNET_RPC_URL", DefaultEthMainnetRPCURL),
		EthSepoliaRPCURL:    os.Getenv("ETH_SEPOLIA_RPC_URL"),
		EtherscanAPIKey:     os.Getenv("ETHERSCAN_API_KEY"),
		NeynarAPIKey:        os.Getenv("NEYNAR_API_KEY"),
		TalentAPIKey:        os.Getenv("TALENTPROTOCOL_API_KEY"),
		BinanceURL:          getEnv("BINANCE_API_URL", DefaultBinanceURL),
		CoinGeckoURL:        getEnv("COINGECKO_API_URL", DefaultCoinGeckoURL),
		DexscreenerURL:      getEnv("DEXSCREENER_API_URL", DefaultDexscreenerURL),
		EtherscanURL:        getEnv("ETHERSCAN_API_URL", DefaultEtherscanURL),
		NeynarURL:           getEnv("NEYNAR_API_URL", DefaultNeynarURL),
		TalentURL:           getEnv("TALENT_API_URL", DefaultTalentURL),
		MorphoURL:           getEnv("MORPHO_API_URL", DefaultMorphoURL),
		UpstreamTimeout:     getEnvDuration("UPSTREAM_TIMEOUT", DefaultUpstreamTimeout),
		UpstreamMaxAttempts: int(getEnvInt64("UPSTREAM_MAX_ATTEMPTS", DefaultUpstreamAttempts)),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		OTLPEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		RateLimitRPM:        int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimitRPM)),
		TelegramBotToken:    os.Getenv("TELEGRAM_BOT_TOKEN"),
		BaseRPCURL:          getEnv("BASE_RPC_URL", DefaultRPCURL),
		ReceiptDataDir:      getEnv("RECEIPT_DATA_DIR", "."),
		ReceiptHMACSecret:   os.Getenv("RECEIPT_HMAC_SECRET"),
	}
}

// Validate checks that configuration values are well-formed
func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("RPC_URL is required")
	}

	if c.ChainID != 8453 && c.ChainID != 84532 {
		return fmt.Errorf("CHAIN_ID %d is not supported (use 8453 or 84532)", c.ChainID)
	}

	// Allow both with and without 0x prefix
	if c.PrivateKey != "" && !hexKeyRegex.MatchString(strings.TrimPrefix(c.PrivateKey, "0x")) {
		return fmt.Errorf("PRIVATE_KEY must be 64 hex characters (with or without 0x prefix)")
	}

	if c.SeedPhrase != "" {
		if words := len(strings.Fields(c.SeedPhrase)); words != 12 && words != 15 && words != 18 && words != 21 && words != 24 {
			return fmt.Errorf("SEED_PHRASE must contain 12, 15, 18, 21 or 24 words, got %d", words)
		}
	}

	if !addressRegex.MatchString(c.USDCContract) {
		return fmt.Errorf("USDC_CONTRACT must be a 0x-prefixed 20-byte address")
	}
	if !addressRegex.MatchString(c.NFTContract) {
		return fmt.Errorf("NFT_CONTRACT_ADDRESS must be a 0x-prefixed 20-byte address")
	}

	if c.UpstreamMaxAttempts < 1 {
		c.UpstreamMaxAttempts = 1
	}

	return nil
}

// HasSigner reports whether a signing key source is configured.
func (c *Config) HasSigner() bool {
	return c.PrivateKey != "" || c.SeedPhrase != ""
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}

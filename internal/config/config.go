package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config stores all configuration for the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Trading  TradingConfig
	Exchange ExchangeConfig
}

// ServerConfig defines the HTTP server settings.
type ServerConfig struct {
	Port string `mapstructure:"port"`
}

// DatabaseConfig defines the sqlite database settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// AuthConfig defines JWT settings.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// TradingConfig defines the arbitrage-related settings.
type TradingConfig struct {
	BaseCoin           string `mapstructure:"base_coin"`
	DefaultStartAmount string `mapstructure:"default_start_amount"`
	CommissionRate     string `mapstructure:"commission_rate"`
	SlippageTolerance  string `mapstructure:"slippage_tolerance"`
	DepthLimit         int    `mapstructure:"depth_limit"`
}

// ExchangeConfig defines settings for the simulated exchanges registered at
// startup.
type ExchangeConfig struct {
	Names           []string `mapstructure:"names"`
	MinLatencyMS    int      `mapstructure:"min_latency_ms"`
	MaxLatencyMS    int      `mapstructure:"max_latency_ms"`
	SuccessRate     float64  `mapstructure:"success_rate"`
	LiquidityFactor float64  `mapstructure:"liquidity_factor"`
	FeeRate         float64  `mapstructure:"fee_rate"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err = viper.ReadInConfig(); err != nil {
		// A missing file is fine; defaults and env vars still apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return
		}
		err = nil
	}

	err = viper.Unmarshal(&config)
	return
}

func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("database.path", "triarb.db")
	viper.SetDefault("auth.jwt_secret", "triarb-secret-key")
	viper.SetDefault("trading.base_coin", "USDT")
	viper.SetDefault("trading.default_start_amount", "100.0")
	viper.SetDefault("trading.commission_rate", "0.10")
	viper.SetDefault("trading.slippage_tolerance", "0.02")
	viper.SetDefault("trading.depth_limit", 10)
	viper.SetDefault("exchange.names", []string{"binance", "bybit"})
	viper.SetDefault("exchange.min_latency_ms", 5)
	viper.SetDefault("exchange.max_latency_ms", 50)
	viper.SetDefault("exchange.success_rate", 0.95)
	viper.SetDefault("exchange.liquidity_factor", 0.9)
	viper.SetDefault("exchange.fee_rate", 0.001)
}

// Package types provides configuration types for the trading backend.
package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration loaded at startup.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	OKX       OKXConfig       `mapstructure:"okx"`
	Trading   TradingConfig   `mapstructure:"trading"`
	Optimizer OptimizerConfig `mapstructure:"optimizer"`
	Review    ReviewConfig    `mapstructure:"review"`
	Data      DataConfig      `mapstructure:"data"`
}

// ServerConfig represents HTTP server configuration.
type ServerConfig struct {
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	ReadTimeout   time.Duration `mapstructure:"readTimeout"`
	WriteTimeout  time.Duration `mapstructure:"writeTimeout"`
	EnableMetrics bool          `mapstructure:"enableMetrics"`
}

// OKXConfig represents exchange connectivity configuration.
type OKXConfig struct {
	APIKey        string `mapstructure:"apiKey"`
	SecretKey     string `mapstructure:"secretKey"`
	Passphrase    string `mapstructure:"passphrase"`
	RESTURL       string `mapstructure:"restUrl"`
	PublicWSURL   string `mapstructure:"publicWsUrl"`
	PrivateWSURL  string `mapstructure:"privateWsUrl"`
	Simulated     bool   `mapstructure:"simulated"`
	InstID        string `mapstructure:"instId"`
	BarInterval   string `mapstructure:"barInterval"`
	TradeMode     string `mapstructure:"tradeMode"`
	ContractValue float64 `mapstructure:"contractValue"`
}

// TradingConfig represents live agent configuration.
type TradingConfig struct {
	InitialStrategyID int     `mapstructure:"initialStrategyId"`
	Leverage          int     `mapstructure:"leverage"`
	RiskPercent       float64 `mapstructure:"riskPercent"`
	OrderSize         float64 `mapstructure:"orderSize"`
	MinBars           int     `mapstructure:"minBars"`
	StateFile         string  `mapstructure:"stateFile"`
}

// OptimizerConfig represents parameter search configuration.
type OptimizerConfig struct {
	MaxLeverage  int       `mapstructure:"maxLeverage"`
	RiskPercents []float64 `mapstructure:"riskPercents"`
	MDDFloor     float64   `mapstructure:"mddFloor"`
}

// ReviewConfig represents periodic strategy review configuration.
type ReviewConfig struct {
	WindowDays     int     `mapstructure:"windowDays"`
	MinROIDeltaPct float64 `mapstructure:"minRoiDeltaPct"`
}

// DataConfig represents data storage configuration.
type DataConfig struct {
	DataDir        string `mapstructure:"dataDir"`
	BackfillLimit  int    `mapstructure:"backfillLimit"`
	BatchWorkers   int    `mapstructure:"batchWorkers"`
	StartingEquity float64 `mapstructure:"startingEquity"`
}

// LoadConfig reads configuration from the given file path (or from
// "config.yaml" in the working directory when path is empty), applies
// defaults, and overlays TRADING_* environment variables.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("TRADING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// no file is fine, defaults and env carry the day
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 15*time.Second)
	v.SetDefault("server.writeTimeout", 15*time.Second)
	v.SetDefault("server.enableMetrics", true)

	v.SetDefault("okx.restUrl", "https://www.okx.com")
	v.SetDefault("okx.publicWsUrl", "wss://ws.okx.com:8443/ws/v5/public")
	v.SetDefault("okx.privateWsUrl", "wss://ws.okx.com:8443/ws/v5/private")
	v.SetDefault("okx.instId", "BTC-USDT-SWAP")
	v.SetDefault("okx.barInterval", "30m")
	v.SetDefault("okx.tradeMode", "isolated")
	v.SetDefault("okx.contractValue", 0.01)

	v.SetDefault("trading.initialStrategyId", 0)
	v.SetDefault("trading.leverage", 1)
	v.SetDefault("trading.riskPercent", 10)
	v.SetDefault("trading.orderSize", 0.01)
	v.SetDefault("trading.minBars", 50)
	v.SetDefault("trading.stateFile", "agent_state.json")

	v.SetDefault("optimizer.maxLeverage", 10)
	v.SetDefault("optimizer.riskPercents", []float64{10, 20, 30, 50})
	v.SetDefault("optimizer.mddFloor", -50)

	v.SetDefault("review.windowDays", 14)
	v.SetDefault("review.minRoiDeltaPct", 3)

	v.SetDefault("data.dataDir", "data")
	v.SetDefault("data.backfillLimit", 300)
	v.SetDefault("data.batchWorkers", 4)
	v.SetDefault("data.startingEquity", 10000)
}

// Validate rejects configurations the rest of the system cannot run with.
func (c *Config) Validate() error {
	if c.Trading.Leverage < 1 {
		return fmt.Errorf("trading.leverage must be >= 1, got %d", c.Trading.Leverage)
	}
	if c.Trading.RiskPercent <= 0 || c.Trading.RiskPercent > 100 {
		return fmt.Errorf("trading.riskPercent must be in (0, 100], got %v", c.Trading.RiskPercent)
	}
	if c.Optimizer.MaxLeverage < 1 {
		return fmt.Errorf("optimizer.maxLeverage must be >= 1, got %d", c.Optimizer.MaxLeverage)
	}
	if len(c.Optimizer.RiskPercents) == 0 {
		return fmt.Errorf("optimizer.riskPercents must not be empty")
	}
	if c.Review.WindowDays < 1 {
		return fmt.Errorf("review.windowDays must be >= 1, got %d", c.Review.WindowDays)
	}
	if c.Data.StartingEquity <= 0 {
		return fmt.Errorf("data.startingEquity must be positive, got %v", c.Data.StartingEquity)
	}
	return nil
}

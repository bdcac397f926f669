package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required,oneof=development staging production test"`

	Log struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"console" validate:"oneof=json console"`
		Output string `yaml:"output" default:"stdout"`
		// Collector publishes aggregated warn/error digests to Kafka.
		Collector struct {
			Enabled   bool          `yaml:"enabled"`
			Interval  time.Duration `yaml:"interval" default:"30s"`
			Threshold int           `yaml:"threshold" default:"100"`
			Topic     string        `yaml:"topic" default:"cryptosignal-logs"`
		} `yaml:"collector"`
	} `yaml:"log"`

	Server struct {
		Enabled         bool          `yaml:"enabled" default:"true"`
		Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		// Per-client request budget for the HTTP API.
		RateLimit struct {
			Burst     float64 `yaml:"burst" default:"20" validate:"gt=0"`
			PerSecond float64 `yaml:"per_second" default:"2" validate:"gt=0"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`

	Symbols []SymbolConfig `yaml:"symbols" validate:"required,min=1,dive"`

	Providers struct {
		CoinGecko     ProviderConfig `yaml:"coingecko"`
		CryptoCompare ProviderConfig `yaml:"cryptocompare"`
	} `yaml:"providers"`

	QuoteCurrency string `yaml:"quote_currency" default:"eur" validate:"required,lowercase"`

	Cache struct {
		PriceTTL     time.Duration `yaml:"price_ttl" default:"120s" validate:"gt=0"`
		HistoryTTL   time.Duration `yaml:"history_ttl" default:"900s" validate:"gt=0"`
		AnalysisTTL  time.Duration `yaml:"analysis_ttl" default:"300s" validate:"gt=0"`
		SyntheticTTL time.Duration `yaml:"synthetic_ttl" default:"60s" validate:"gt=0"`
	} `yaml:"cache"`

	Indicators IndicatorConfig `yaml:"indicators"`
	Scoring    ScoringConfig   `yaml:"scoring"`
	Risk       RiskConfig      `yaml:"risk"`

	Pipeline struct {
		Workers     int           `yaml:"workers" default:"4" validate:"gte=1,lte=64"`
		HistoryDays int           `yaml:"history_days" default:"7" validate:"gte=1,lte=365"`
		Timeout     time.Duration `yaml:"timeout" default:"60s"`
	} `yaml:"pipeline"`

	Synthetic struct {
		HistoryPoints int     `yaml:"history_points" default:"168" validate:"gte=50"`
		HourlyVol     float64 `yaml:"hourly_vol" default:"0.02" validate:"gt=0,lt=1"`
		SpotVol       float64 `yaml:"spot_vol" default:"0.02" validate:"gt=0,lt=1"`
	} `yaml:"synthetic"`

	Scheduler struct {
		Enabled bool          `yaml:"enabled" default:"true"`
		Spec    string        `yaml:"spec" default:"@every 5m"`
		LockTTL time.Duration `yaml:"lock_ttl" default:"4m"`
	} `yaml:"scheduler"`

	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic" default:"signals"`
		RequestTopic string   `yaml:"request_topic" default:"signal-requests"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"500ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"cryptosignal"`
			Workers    int           `yaml:"workers" default:"2"`
			BufferSize int           `yaml:"buffer_size" default:"64"`
			RetryMax   int           `yaml:"retry_max" default:"2"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"200ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"1048576"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"cryptosignal"`
	} `yaml:"redis"`

	Stream struct {
		Enabled        bool          `yaml:"enabled"`
		URL            string        `yaml:"url" default:"wss://stream.binance.com:9443/stream"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
	} `yaml:"stream"`
}

// SymbolConfig maps a ticker to the identifiers each upstream uses for it.
type SymbolConfig struct {
	Symbol        string  `yaml:"symbol" validate:"required,uppercase"`
	CoinGeckoID   string  `yaml:"coingecko_id" validate:"required"`
	CryptoCompare string  `yaml:"cryptocompare"`
	StreamSymbol  string  `yaml:"stream_symbol"`
	BaselinePrice float64 `yaml:"baseline_price" validate:"gt=0"`
}

type ProviderConfig struct {
	Enabled        bool          `yaml:"enabled" default:"true"`
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	CallsPerMinute float64       `yaml:"calls_per_minute" default:"30" validate:"gt=0"`
	PriceTimeout   time.Duration `yaml:"price_timeout" default:"10s"`
	HistoryTimeout time.Duration `yaml:"history_timeout" default:"25s"`
}

type IndicatorConfig struct {
	RSIPeriod      int     `yaml:"rsi_period" default:"14" validate:"gte=2"`
	MACDFast       int     `yaml:"macd_fast" default:"12" validate:"gte=2"`
	MACDSlow       int     `yaml:"macd_slow" default:"26" validate:"gtfield=MACDFast"`
	MACDSignal     int     `yaml:"macd_signal" default:"9" validate:"gte=2"`
	BollingerPer   int     `yaml:"bollinger_period" default:"20" validate:"gte=2"`
	BollingerK     float64 `yaml:"bollinger_k" default:"2" validate:"gt=0"`
	SMAShort       int     `yaml:"sma_short" default:"20" validate:"gte=2"`
	SMALong        int     `yaml:"sma_long" default:"50" validate:"gtfield=SMAShort"`
	StochPeriod    int     `yaml:"stoch_period" default:"14" validate:"gte=2"`
	StochSmooth    int     `yaml:"stoch_smooth" default:"3" validate:"gte=1"`
	LevelsLookback int     `yaml:"levels_lookback" default:"100" validate:"gte=10"`
	VolWindow      int     `yaml:"vol_window" default:"24" validate:"gte=2"`
}

type ScoringConfig struct {
	RSIStrongOversold   float64 `yaml:"rsi_strong_oversold" default:"20"`
	RSIOversold         float64 `yaml:"rsi_oversold" default:"30"`
	RSIOverbought       float64 `yaml:"rsi_overbought" default:"70"`
	RSIStrongOverbought float64 `yaml:"rsi_strong_overbought" default:"80"`

	StrongBuy  float64 `yaml:"strong_buy" default:"75"`
	Buy        float64 `yaml:"buy" default:"65"`
	Sell       float64 `yaml:"sell" default:"35"`
	StrongSell float64 `yaml:"strong_sell" default:"25"`

	HighUpper       float64 `yaml:"high_upper" default:"70"`
	HighLower       float64 `yaml:"high_lower" default:"30"`
	MediumUpper     float64 `yaml:"medium_upper" default:"55"`
	MediumLower     float64 `yaml:"medium_lower" default:"45"`
	HighMinFactors  int     `yaml:"high_min_factors" default:"3"`
	MediumMinFactor int     `yaml:"medium_min_factors" default:"2"`

	MomentumPct      float64 `yaml:"momentum_pct" default:"5" validate:"gt=0"`
	VolumeMultiplier float64 `yaml:"volume_multiplier" default:"1.5" validate:"gt=0"`
	ProximityPct     float64 `yaml:"proximity_pct" default:"2" validate:"gt=0"`
}

type RiskConfig struct {
	HighFloorSL      float64 `yaml:"high_floor_sl" default:"0.03" validate:"gt=0,lt=1"`
	HighVolSL        float64 `yaml:"high_vol_sl" default:"1.5" validate:"gt=0"`
	HighRewardRatio  float64 `yaml:"high_reward_ratio" default:"2.5" validate:"gte=2"`
	OtherFloorSL     float64 `yaml:"other_floor_sl" default:"0.04" validate:"gt=0,lt=1"`
	OtherVolSL       float64 `yaml:"other_vol_sl" default:"2" validate:"gt=0"`
	OtherRewardRatio float64 `yaml:"other_reward_ratio" default:"2" validate:"gte=1.67"`
	HoldStopPct      float64 `yaml:"hold_stop_pct" default:"0.04" validate:"gt=0,lt=1"`
	HoldTakePct      float64 `yaml:"hold_take_pct" default:"0.06" validate:"gt=0"`
	DefaultVol       float64 `yaml:"default_volatility" default:"0.03" validate:"gt=0"`
}

var validate = validator.New()

// DefaultSymbols is the symbol set used when the config lists none.
func DefaultSymbols() []SymbolConfig {
	return []SymbolConfig{
		{Symbol: "BTC", CoinGeckoID: "bitcoin", CryptoCompare: "BTC", StreamSymbol: "btcusdt", BaselinePrice: 100000},
		{Symbol: "ETH", CoinGeckoID: "ethereum", CryptoCompare: "ETH", StreamSymbol: "ethusdt", BaselinePrice: 3500},
		{Symbol: "XRP", CoinGeckoID: "ripple", CryptoCompare: "XRP", StreamSymbol: "xrpusdt", BaselinePrice: 0.6},
	}
}

// Default returns a fully defaulted, valid configuration.
func Default() *Config {
	var c Config
	if err := defaults.Set(&c); err != nil {
		panic(err)
	}
	c.normalize()
	return &c
}

// normalize fills values that depend on other fields. It runs after YAML decoding,
// so it must never touch a field the file may have set explicitly.
func (c *Config) normalize() {
	if c.Providers.CoinGecko.BaseURL == "" {
		c.Providers.CoinGecko.BaseURL = "https://api.coingecko.com/api/v3"
	}
	if c.Providers.CryptoCompare.BaseURL == "" {
		c.Providers.CryptoCompare.BaseURL = "https://min-api.cryptocompare.com"
	}
	if len(c.Symbols) == 0 {
		c.Symbols = DefaultSymbols()
	}
	known := make(map[string]SymbolConfig)
	for _, d := range DefaultSymbols() {
		known[d.Symbol] = d
	}
	for i := range c.Symbols {
		s := &c.Symbols[i]
		s.Symbol = strings.ToUpper(s.Symbol)
		if s.BaselinePrice == 0 {
			s.BaselinePrice = 100
			if d, ok := known[s.Symbol]; ok {
				s.BaselinePrice = d.BaselinePrice
			}
		}
		if s.CryptoCompare == "" {
			s.CryptoCompare = s.Symbol
		}
		if s.StreamSymbol == "" {
			s.StreamSymbol = strings.ToLower(s.Symbol) + "usdt"
		}
	}
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.normalize()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads .env (if present), then YAML, then applies environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var (
		c   *Config
		err error
	)
	if _, statErr := os.Stat(path); statErr == nil {
		c, err = Load(path)
		if err != nil {
			return nil, err
		}
	} else {
		c = Default()
	}

	c.applyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("COINGECKO_API_KEY"); v != "" {
		c.Providers.CoinGecko.APIKey = v
	}
	if v := getenv("CRYPTOCOMPARE_API_KEY"); v != "" {
		c.Providers.CryptoCompare.APIKey = v
	}
	if v := getenv("SYMBOLS"); v != "" {
		c.Symbols = filterSymbols(c.Symbols, strings.Split(v, ","))
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		host, port, ok := strings.Cut(v, ":")
		c.Redis.Host = host
		if ok {
			if p, err := strconv.Atoi(port); err == nil {
				c.Redis.Port = p
			}
		}
		c.Redis.Enabled = true
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v := getenv("HTTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
}

// filterSymbols keeps the configured entries named in want, preserving the order of want.
// Unknown tickers are dropped.
func filterSymbols(all []SymbolConfig, want []string) []SymbolConfig {
	byName := make(map[string]SymbolConfig, len(all))
	for _, s := range all {
		byName[s.Symbol] = s
	}
	out := make([]SymbolConfig, 0, len(want))
	for _, w := range want {
		if s, ok := byName[strings.ToUpper(strings.TrimSpace(w))]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	s := c.Scoring
	if !(s.StrongBuy > s.Buy && s.Buy > s.Sell && s.Sell > s.StrongSell) {
		return fmt.Errorf("scoring thresholds must satisfy strong_buy > buy > sell > strong_sell")
	}
	if !(s.RSIStrongOversold < s.RSIOversold && s.RSIOversold < s.RSIOverbought && s.RSIOverbought < s.RSIStrongOverbought) {
		return fmt.Errorf("rsi thresholds must be strictly increasing")
	}
	if !(s.HighLower <= s.MediumLower && s.MediumUpper <= s.HighUpper) {
		return fmt.Errorf("high confidence band must be outside the medium band")
	}
	if !c.Providers.CoinGecko.Enabled && !c.Providers.CryptoCompare.Enabled {
		return fmt.Errorf("at least one provider must be enabled")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}

	seen := make(map[string]bool, len(c.Symbols))
	for _, sym := range c.Symbols {
		if seen[sym.Symbol] {
			return fmt.Errorf("duplicate symbol %s", sym.Symbol)
		}
		seen[sym.Symbol] = true
	}
	return nil
}

// Symbol returns the config entry for a ticker.
func (c *Config) Symbol(symbol string) (SymbolConfig, bool) {
	symbol = strings.ToUpper(symbol)
	for _, s := range c.Symbols {
		if s.Symbol == symbol {
			return s, true
		}
	}
	return SymbolConfig{}, false
}

// SymbolNames lists the configured tickers in config order.
func (c *Config) SymbolNames() []string {
	out := make([]string, len(c.Symbols))
	for i, s := range c.Symbols {
		out[i] = s.Symbol
	}
	return out
}

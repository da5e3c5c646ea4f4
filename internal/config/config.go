package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-viper/mapstructure/v2"
	"github.com/holiman/uint256"
	"github.com/skara-labs/crowdgate/internal/model"
	"github.com/skara-labs/crowdgate/internal/pkg/logger"
	"github.com/skara-labs/crowdgate/internal/sale"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Limits     LimitsConfig     `mapstructure:"limits"`
	Sale       SaleConfig       `mapstructure:"sale"`
	Bonus      BonusConfig      `mapstructure:"bonus"`
	Vesting    VestingConfig    `mapstructure:"vesting"`
	Allocation AllocationConfig `mapstructure:"allocation"`
	Postsale   PostsaleConfig   `mapstructure:"postsale"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	// ReadOnly rejects every state-changing request.
	ReadOnly bool `mapstructure:"read_only"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	// EventDir receives a daily JSONL journal of sale events when set.
	EventDir string `mapstructure:"event_dir"`
}

type AuthConfig struct {
	// AdminKey authorizes owner operations. Requests carrying it act as the sale owner.
	AdminKey string `mapstructure:"admin_key"`
	// RequireCaller rejects non-admin writes without an X-Caller-Address header.
	RequireCaller bool `mapstructure:"require_caller"`
	// VerifySignatures requires writes to carry an EIP-712 signature by the caller.
	VerifySignatures bool          `mapstructure:"verify_signatures"`
	ChainID          int64         `mapstructure:"chain_id"`
	SignatureMaxAge  time.Duration `mapstructure:"signature_max_age"`
	// RPCURL enables EIP-1271 checks for callers that are contract wallets.
	RPCURL             string        `mapstructure:"rpc_url"`
	ContractCacheTTL   time.Duration `mapstructure:"contract_cache_ttl"`
	ContractRPCTimeout time.Duration `mapstructure:"contract_rpc_timeout"`
	ContractRPCRetries int           `mapstructure:"contract_rpc_retries"`
}

type DatabaseConfig struct {
	DSN                       string        `mapstructure:"dsn"`
	MaxOpenConns              int           `mapstructure:"max_open_conns"`
	MaxIdleConns              int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime           time.Duration `mapstructure:"conn_max_lifetime"`
	IdempotencyRetentionHours int           `mapstructure:"idempotency_retention_hours"`
	// IdempotencyLockTimeout lets a retry take over a key whose first
	// request never finished, e.g. after a crash.
	IdempotencyLockTimeout time.Duration `mapstructure:"idempotency_lock_timeout"`
	EventRetentionDays     int           `mapstructure:"event_retention_days"`
	CleanupIntervalMinutes int           `mapstructure:"cleanup_interval_minutes"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	// KeyPrefix namespaces every key so several sales can share one Redis.
	KeyPrefix             string `mapstructure:"key_prefix"`
	IdempotencyTTLSeconds int    `mapstructure:"idempotency_ttl_seconds"`
	EventListKey          string `mapstructure:"event_list_key"`
	EventListMax          int    `mapstructure:"event_list_max"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type LimitsConfig struct {
	PurchaseQPS   float64 `mapstructure:"purchase_qps"`
	PurchaseBurst int     `mapstructure:"purchase_burst"`
	EventBuffer   int     `mapstructure:"event_buffer"`
}

// SaleConfig carries amounts as decimal ether strings, e.g. "2.5".
type SaleConfig struct {
	Cap                   string        `mapstructure:"cap"`
	PresaleCap            string        `mapstructure:"presale_cap"`
	InvestmentLow         string        `mapstructure:"investment_low"`
	InvestmentMedium      string        `mapstructure:"investment_medium"`
	Rate                  uint64        `mapstructure:"rate"`
	StartTime             time.Time     `mapstructure:"start_time"`
	EndTime               time.Time     `mapstructure:"end_time"`
	Owner                 string        `mapstructure:"owner"`
	PresaleStart          time.Time     `mapstructure:"presale_start"`
	PresaleMinInvestment  string        `mapstructure:"presale_min_investment"`
	WhitelistOffset       time.Duration `mapstructure:"whitelist_offset"`
	WhitelistDayLength    time.Duration `mapstructure:"whitelist_day_length"`
	OpenBonusLength       time.Duration `mapstructure:"open_bonus_length"`
	DefaultDayOneBoundary string        `mapstructure:"default_day_one_boundary"`
	SaleAccount           string        `mapstructure:"sale_account"`
}

type BonusConfig struct {
	PresaleLow    uint16 `mapstructure:"presale_low"`
	PresaleMedium uint16 `mapstructure:"presale_medium"`
	PresaleHigh   uint16 `mapstructure:"presale_high"`
	DayOne        uint16 `mapstructure:"day_one"`
	DayTwo        uint16 `mapstructure:"day_two"`
	OpenBonus     uint16 `mapstructure:"open_bonus"`
}

type VestingConfig struct {
	BaseCliff            time.Duration `mapstructure:"base_cliff"`
	LowMultiplier        uint64        `mapstructure:"low_multiplier"`
	MediumMultiplier     uint64        `mapstructure:"medium_multiplier"`
	HighMultiplier       uint64        `mapstructure:"high_multiplier"`
	VestRegularPurchases bool          `mapstructure:"vest_regular_purchases"`
}

type AllocationConfig struct {
	SalePct     uint64 `mapstructure:"sale_pct"`
	PostsalePct uint64 `mapstructure:"postsale_pct"`
	// SafetyAllocation is in base token units.
	SafetyAllocation uint64 `mapstructure:"safety_allocation"`
}

type PostsaleConfig struct {
	Cliff     time.Duration `mapstructure:"cliff"`
	Duration  time.Duration `mapstructure:"duration"`
	Revocable bool          `mapstructure:"revocable"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_only", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.event_dir", "logs")
	v.SetDefault("auth.admin_key", "")
	v.SetDefault("auth.require_caller", false)
	v.SetDefault("auth.verify_signatures", false)
	v.SetDefault("auth.chain_id", 1)
	v.SetDefault("auth.signature_max_age", 5*time.Minute)
	v.SetDefault("auth.rpc_url", "")
	v.SetDefault("auth.contract_cache_ttl", time.Minute)
	v.SetDefault("auth.contract_rpc_timeout", 5*time.Second)
	v.SetDefault("auth.contract_rpc_retries", 2)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.key_prefix", "crowdgate")
	v.SetDefault("redis.idempotency_ttl_seconds", 86400)
	v.SetDefault("redis.event_list_key", "sale_events")
	v.SetDefault("redis.event_list_max", 10000)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.idempotency_retention_hours", 168)
	v.SetDefault("database.idempotency_lock_timeout", 30*time.Second)
	v.SetDefault("database.event_retention_days", 365)
	v.SetDefault("database.cleanup_interval_minutes", 60)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("limits.purchase_qps", 2.0)
	v.SetDefault("limits.purchase_burst", 5)
	v.SetDefault("limits.event_buffer", 1000)

	v.SetDefault("sale.cap", "12230")
	v.SetDefault("sale.presale_cap", "7338")
	v.SetDefault("sale.investment_low", "100")
	v.SetDefault("sale.investment_medium", "500")
	v.SetDefault("sale.rate", 1000)
	v.SetDefault("sale.presale_min_investment", "5")
	v.SetDefault("sale.whitelist_offset", time.Minute)
	v.SetDefault("sale.whitelist_day_length", 24*time.Hour)
	v.SetDefault("sale.open_bonus_length", 24*time.Hour)
	v.SetDefault("sale.default_day_one_boundary", "2")

	rates := sale.DefaultBonusRates()
	v.SetDefault("bonus.presale_low", uint16(rates.PresaleLow))
	v.SetDefault("bonus.presale_medium", uint16(rates.PresaleMedium))
	v.SetDefault("bonus.presale_high", uint16(rates.PresaleHigh))
	v.SetDefault("bonus.day_one", uint16(rates.DayOne))
	v.SetDefault("bonus.day_two", uint16(rates.DayTwo))
	v.SetDefault("bonus.open_bonus", uint16(rates.OpenBonus))

	v.SetDefault("vesting.base_cliff", 90*24*time.Hour)
	v.SetDefault("vesting.low_multiplier", 1)
	v.SetDefault("vesting.medium_multiplier", 2)
	v.SetDefault("vesting.high_multiplier", 4)
	v.SetDefault("vesting.vest_regular_purchases", false)

	v.SetDefault("allocation.sale_pct", 70)
	v.SetDefault("allocation.postsale_pct", 30)
	v.SetDefault("allocation.safety_allocation", 1000)

	v.SetDefault("postsale.cliff", 90*24*time.Hour)
	v.SetDefault("postsale.duration", 365*24*time.Hour)
	v.SetDefault("postsale.revocable", true)
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	// e.g. CROWDGATE_SALE_START_TIME
	v.SetEnvPrefix("crowdgate")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	// keys without a default are only seen by Unmarshal once bound
	for _, key := range []string{"sale.owner", "sale.start_time", "sale.end_time", "sale.presale_start", "sale.sale_account", "database.dsn", "redis.addr", "redis.password", "redis.db"} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			logger.Info("No config file found, using defaults and env vars")
		} else {
			return nil, err
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeHookFunc(time.RFC3339),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SaleConfig converts the loaded settings into the sale's own config.
func (c *Config) SaleConfig() (sale.Config, error) {
	var out sale.Config
	amounts := []struct {
		name string
		raw  string
		dst  **uint256.Int
	}{
		{"sale.cap", c.Sale.Cap, &out.Cap},
		{"sale.presale_cap", c.Sale.PresaleCap, &out.PresaleCap},
		{"sale.investment_low", c.Sale.InvestmentLow, &out.InvestmentLowThreshold},
		{"sale.investment_medium", c.Sale.InvestmentMedium, &out.InvestmentMediumThreshold},
		{"sale.presale_min_investment", c.Sale.PresaleMinInvestment, &out.PresaleMinInvestment},
		{"sale.default_day_one_boundary", c.Sale.DefaultDayOneBoundary, &out.DefaultDayOneBoundary},
	}
	for _, a := range amounts {
		v, err := model.ParseUnits(a.raw)
		if err != nil {
			return out, fmt.Errorf("%s: %w", a.name, err)
		}
		*a.dst = v
	}
	if !common.IsHexAddress(c.Sale.Owner) {
		return out, fmt.Errorf("sale.owner: invalid address %q", c.Sale.Owner)
	}
	out.Owner = common.HexToAddress(c.Sale.Owner)
	if c.Sale.SaleAccount != "" {
		if !common.IsHexAddress(c.Sale.SaleAccount) {
			return out, fmt.Errorf("sale.sale_account: invalid address %q", c.Sale.SaleAccount)
		}
		out.SaleAccount = common.HexToAddress(c.Sale.SaleAccount)
	}

	out.Rate = uint256.NewInt(c.Sale.Rate)
	out.StartTime = c.Sale.StartTime
	out.EndTime = c.Sale.EndTime
	out.PresaleStart = c.Sale.PresaleStart
	out.WhitelistOffset = c.Sale.WhitelistOffset
	out.WhitelistDayLength = c.Sale.WhitelistDayLength
	out.OpenBonusLength = c.Sale.OpenBonusLength
	out.Bonus = sale.BonusRates{
		PresaleLow:    sale.BasisPoints(c.Bonus.PresaleLow),
		PresaleMedium: sale.BasisPoints(c.Bonus.PresaleMedium),
		PresaleHigh:   sale.BasisPoints(c.Bonus.PresaleHigh),
		DayOne:        sale.BasisPoints(c.Bonus.DayOne),
		DayTwo:        sale.BasisPoints(c.Bonus.DayTwo),
		OpenBonus:     sale.BasisPoints(c.Bonus.OpenBonus),
	}
	out.Vesting = sale.VestingTerms{
		BaseCliff:            c.Vesting.BaseCliff,
		LowMultiplier:        c.Vesting.LowMultiplier,
		MediumMultiplier:     c.Vesting.MediumMultiplier,
		HighMultiplier:       c.Vesting.HighMultiplier,
		VestRegularPurchases: c.Vesting.VestRegularPurchases,
	}
	out.Allocation = sale.AllocationTerms{
		SalePct:          c.Allocation.SalePct,
		PostsalePct:      c.Allocation.PostsalePct,
		SafetyAllocation: uint256.NewInt(c.Allocation.SafetyAllocation),
	}
	out.Postsale = sale.PostsaleTerms{
		Cliff:     c.Postsale.Cliff,
		Duration:  c.Postsale.Duration,
		Revocable: c.Postsale.Revocable,
	}
	return out, out.Validate()
}

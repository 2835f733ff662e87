// Package config loads application and strategy settings from .env files,
// environment variables (prefix RSIBOT_), an optional config file and
// command-line flags, in increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"rsi-options-engine/internal/markethours"
)

// Config holds all application configuration.
type Config struct {
	Service  string
	LogLevel string

	// Infrastructure
	MetricsAddr   string
	JournalPath   string // SQLite trade journal
	CandleDBPath  string // SQLite historical candles
	PostgresDSN   string
	RedisAddr     string
	RedisPassword string
	RedisStream   string

	// Live feed
	FeedURL string
	Legs    []string

	// Alerts
	TelegramToken  string
	TelegramChatID int64
	WebhookURL     string
	AlertQueue     int

	Holidays []string

	Strategy Strategy
}

// Defaults registers every key with its default value.
func Defaults(v *viper.Viper) {
	d := DefaultStrategy()
	v.SetDefault("service", "rsi-options-engine")
	v.SetDefault("log_level", "info")
	v.SetDefault("metrics_addr", ":9090")
	v.SetDefault("journal_path", "data/trades.db")
	v.SetDefault("candle_db_path", "data/candles.db")
	v.SetDefault("postgres_dsn", "")
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_stream", "rsibot:events")
	v.SetDefault("feed_url", "ws://localhost:9001/ws")
	v.SetDefault("legs", []string{"NIFTY:CE:WEEK:+0", "NIFTY:PE:WEEK:+0"})
	v.SetDefault("telegram_token", "")
	v.SetDefault("telegram_chat_id", 0)
	v.SetDefault("webhook_url", "")
	v.SetDefault("alert_queue", 256)
	v.SetDefault("holidays", []string{})
	v.SetDefault("strategy_file", "")

	v.SetDefault("strategy.rsi_period", d.RSIPeriod)
	v.SetDefault("strategy.rsi_threshold", d.RSIThreshold)
	v.SetDefault("strategy.entry_levels", []string{"5", "10", "15"})
	v.SetDefault("strategy.tranche_fractions", []string{"33.33", "33.33", "33.34"})
	v.SetDefault("strategy.target_pct", d.TargetPct.String())
	v.SetDefault("strategy.stop_loss_pct", d.StopLossPct.String())
	v.SetDefault("strategy.window_start", d.Window.Start.String())
	v.SetDefault("strategy.window_end", d.Window.End.String())
	v.SetDefault("strategy.candle_interval", d.CandleInterval)
	v.SetDefault("strategy.capital_per_position", d.CapitalPerPosition.String())
	v.SetDefault("strategy.initial_capital", d.InitialCapital.String())
}

// Load reads configuration. flags may be nil; bound flags override
// everything else. A "config" key names an optional YAML/TOML/JSON file.
// The returned strategy has been validated; a *ConfigurationError means the
// run must not start.
func Load(flags *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	Defaults(v)
	v.SetEnvPrefix("RSIBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}
	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}
	return FromViper(v)
}

// FromViper builds and validates a Config from an already-populated viper.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Service:        v.GetString("service"),
		LogLevel:       v.GetString("log_level"),
		MetricsAddr:    v.GetString("metrics_addr"),
		JournalPath:    v.GetString("journal_path"),
		CandleDBPath:   v.GetString("candle_db_path"),
		PostgresDSN:    v.GetString("postgres_dsn"),
		RedisAddr:      v.GetString("redis_addr"),
		RedisPassword:  v.GetString("redis_password"),
		RedisStream:    v.GetString("redis_stream"),
		FeedURL:        v.GetString("feed_url"),
		Legs:           splitList(v.GetStringSlice("legs")),
		TelegramToken:  v.GetString("telegram_token"),
		TelegramChatID: v.GetInt64("telegram_chat_id"),
		WebhookURL:     v.GetString("webhook_url"),
		AlertQueue:     v.GetInt("alert_queue"),
		Holidays:       splitList(v.GetStringSlice("holidays")),
	}

	s, err := strategyFromViper(v)
	if err != nil {
		return nil, &ConfigurationError{err: err}
	}
	if file := v.GetString("strategy_file"); file != "" {
		if s, err = LoadStrategyFile(file, s); err != nil {
			return nil, &ConfigurationError{err: err}
		}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if err := markethours.AddHolidays(cfg.Holidays...); err != nil {
		return nil, &ConfigurationError{err: err}
	}
	cfg.Strategy = s
	return cfg, nil
}

func strategyFromViper(v *viper.Viper) (Strategy, error) {
	s := Strategy{
		RSIPeriod:      v.GetInt("strategy.rsi_period"),
		RSIThreshold:   v.GetFloat64("strategy.rsi_threshold"),
		CandleInterval: v.GetDuration("strategy.candle_interval"),
	}
	var err error
	if s.EntryLevels, err = parseDecimals(splitList(v.GetStringSlice("strategy.entry_levels"))); err != nil {
		return s, fmt.Errorf("strategy.entry_levels: %w", err)
	}
	if s.Fractions, err = parseDecimals(splitList(v.GetStringSlice("strategy.tranche_fractions"))); err != nil {
		return s, fmt.Errorf("strategy.tranche_fractions: %w", err)
	}
	for key, dst := range map[string]*decimal.Decimal{
		"strategy.target_pct":           &s.TargetPct,
		"strategy.stop_loss_pct":        &s.StopLossPct,
		"strategy.capital_per_position": &s.CapitalPerPosition,
		"strategy.initial_capital":      &s.InitialCapital,
	} {
		if *dst, err = decimal.NewFromString(v.GetString(key)); err != nil {
			return s, fmt.Errorf("%s: %w", key, err)
		}
	}
	if s.Window.Start, err = markethours.ParseClock(v.GetString("strategy.window_start")); err != nil {
		return s, err
	}
	if s.Window.End, err = markethours.ParseClock(v.GetString("strategy.window_end")); err != nil {
		return s, err
	}
	return s, nil
}

// splitList flattens comma-separated entries, as env vars arrive as one string.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, p := range strings.Split(item, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

func TestDefaultStrategyIsValid(t *testing.T) {
	s := DefaultStrategy()
	assert.NoError(t, s.Validate())
	assert.Equal(t, 3, s.Tranches())
}

func TestValidateCollectsEveryViolation(t *testing.T) {
	s := DefaultStrategy()
	s.RSIPeriod = 0
	s.TargetPct = decimal.NewFromInt(-10)
	s.Fractions[2] = decimal.RequireFromString("33.33")
	s.CandleInterval = 7 * time.Minute

	err := s.Validate()
	assert.Error(t, err)

	var cfgErr *ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
	msg := err.Error()
	for _, want := range []string{"rsi period", "target", "sum to 99.99", "candle interval"} {
		assert.True(t, strings.Contains(msg, want))
	}
}

func TestValidateRejectsNonIncreasingLevels(t *testing.T) {
	s := DefaultStrategy()
	s.EntryLevels[1] = decimal.NewFromInt(5)
	assert.Error(t, s.Validate())

	s = DefaultStrategy()
	s.Fractions = s.Fractions[:2]
	assert.Error(t, s.Validate())
}

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	Defaults(v)
	cfg, err := FromViper(v)
	assert.NoError(t, err)

	assert.Equal(t, 14, cfg.Strategy.RSIPeriod)
	assert.Equal(t, "33.34", cfg.Strategy.Fractions[2].String())
	assert.Equal(t, "09:18", cfg.Strategy.Window.Start.String())
	assert.Equal(t, "15:15", cfg.Strategy.Window.End.String())
	assert.Equal(t, time.Minute, cfg.Strategy.CandleInterval)
	assert.Equal(t, []string{"NIFTY:CE:WEEK:+0", "NIFTY:PE:WEEK:+0"}, cfg.Legs)
}

func TestFromViperCommaSeparatedOverrides(t *testing.T) {
	v := viper.New()
	Defaults(v)
	v.Set("strategy.entry_levels", "4,8,12")
	v.Set("legs", "BANKNIFTY:CE:WEEK:+1, BANKNIFTY:PE:WEEK:-1")

	cfg, err := FromViper(v)
	assert.NoError(t, err)
	assert.Equal(t, "8", cfg.Strategy.EntryLevels[1].String())
	assert.Equal(t, []string{"BANKNIFTY:CE:WEEK:+1", "BANKNIFTY:PE:WEEK:-1"}, cfg.Legs)
}

func TestFromViperRejectsBadStrategy(t *testing.T) {
	v := viper.New()
	Defaults(v)
	v.Set("strategy.stop_loss_pct", "-5")

	_, err := FromViper(v)
	var cfgErr *ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestLoadStrategyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	profile := `
rsi_period: 9
entry_levels: [4, 8, 12]
target_pct: "7.5"
window_end: "15:00"
candle_interval: 5m
`
	assert.NoError(t, os.WriteFile(path, []byte(profile), 0o644))

	s, err := LoadStrategyFile(path, DefaultStrategy())
	assert.NoError(t, err)
	assert.Equal(t, 9, s.RSIPeriod)
	assert.Equal(t, "12", s.EntryLevels[2].String())
	assert.Equal(t, "7.5", s.TargetPct.String())
	assert.Equal(t, "15:00", s.Window.End.String())
	assert.Equal(t, 5*time.Minute, s.CandleInterval)
	// untouched fields keep the base value
	assert.Equal(t, "20", s.StopLossPct.String())
	assert.NoError(t, s.Validate())
}

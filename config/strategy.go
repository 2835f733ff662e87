package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"rsi-options-engine/internal/markethours"
)

// ConfigurationError aggregates every invalid strategy parameter found at startup.
type ConfigurationError struct {
	err error
}

func (e *ConfigurationError) Error() string { return "invalid configuration: " + e.err.Error() }
func (e *ConfigurationError) Unwrap() error { return e.err }

var hundred = decimal.NewFromInt(100)

// Strategy is the validated parameter set consumed by the lifecycle engine.
// Percentages are expressed in percent (5 means 5%).
type Strategy struct {
	RSIPeriod    int
	RSIThreshold float64

	EntryLevels []decimal.Decimal // premium rise over base per tranche
	Fractions   []decimal.Decimal // position share per tranche, sums to 100

	TargetPct   decimal.Decimal
	StopLossPct decimal.Decimal

	Window         markethours.Window
	CandleInterval time.Duration

	CapitalPerPosition decimal.Decimal // allocation per leg position
	InitialCapital     decimal.Decimal
}

// DefaultStrategy returns the stock parameters.
func DefaultStrategy() Strategy {
	return Strategy{
		RSIPeriod:    14,
		RSIThreshold: 70,
		EntryLevels: []decimal.Decimal{
			decimal.NewFromInt(5), decimal.NewFromInt(10), decimal.NewFromInt(15),
		},
		Fractions: []decimal.Decimal{
			decimal.RequireFromString("33.33"),
			decimal.RequireFromString("33.33"),
			decimal.RequireFromString("33.34"),
		},
		TargetPct:          decimal.NewFromInt(10),
		StopLossPct:        decimal.NewFromInt(20),
		Window:             markethours.DefaultWindow,
		CandleInterval:     time.Minute,
		CapitalPerPosition: decimal.NewFromInt(100000),
		InitialCapital:     decimal.NewFromInt(1000000),
	}
}

// Tranches returns the number of ladder steps.
func (s *Strategy) Tranches() int { return len(s.EntryLevels) }

// Validate checks every range eagerly and reports all violations at once.
func (s *Strategy) Validate() error {
	var errs []error
	if s.RSIPeriod < 1 {
		errs = append(errs, fmt.Errorf("rsi period %d must be positive", s.RSIPeriod))
	}
	if s.RSIThreshold <= 0 || s.RSIThreshold >= 100 {
		errs = append(errs, fmt.Errorf("rsi threshold %.2f must be inside (0, 100)", s.RSIThreshold))
	}
	if len(s.EntryLevels) == 0 {
		errs = append(errs, errors.New("at least one entry level is required"))
	}
	if len(s.EntryLevels) != len(s.Fractions) {
		errs = append(errs, fmt.Errorf("%d entry levels but %d tranche fractions", len(s.EntryLevels), len(s.Fractions)))
	}
	for i, l := range s.EntryLevels {
		if !l.IsPositive() {
			errs = append(errs, fmt.Errorf("entry level %d (%s%%) must be positive", i+1, l))
		}
		if i > 0 && !l.GreaterThan(s.EntryLevels[i-1]) {
			errs = append(errs, fmt.Errorf("entry level %d (%s%%) must exceed level %d", i+1, l, i))
		}
	}
	sum := decimal.Zero
	for i, f := range s.Fractions {
		if !f.IsPositive() {
			errs = append(errs, fmt.Errorf("tranche fraction %d (%s%%) must be positive", i+1, f))
		}
		sum = sum.Add(f)
	}
	if len(s.Fractions) > 0 && !sum.Equal(hundred) {
		errs = append(errs, fmt.Errorf("tranche fractions sum to %s%%, want exactly 100%%", sum))
	}
	if !s.TargetPct.IsPositive() || s.TargetPct.GreaterThanOrEqual(hundred) {
		errs = append(errs, fmt.Errorf("target %s%% must be inside (0, 100)", s.TargetPct))
	}
	if !s.StopLossPct.IsPositive() {
		errs = append(errs, fmt.Errorf("stop loss %s%% must be positive", s.StopLossPct))
	}
	if err := s.Window.Validate(); err != nil {
		errs = append(errs, err)
	}
	if s.CandleInterval < time.Second || (24*time.Hour)%s.CandleInterval != 0 {
		errs = append(errs, fmt.Errorf("candle interval %s must be at least 1s and divide a day", s.CandleInterval))
	}
	if !s.CapitalPerPosition.IsPositive() {
		errs = append(errs, fmt.Errorf("capital per position %s must be positive", s.CapitalPerPosition))
	}
	if s.InitialCapital.IsNegative() {
		errs = append(errs, fmt.Errorf("initial capital %s must not be negative", s.InitialCapital))
	}

	if len(errs) > 0 {
		return &ConfigurationError{err: errors.Join(errs...)}
	}
	return nil
}

// strategyFile is the YAML shape of a strategy profile. Unset fields keep
// the value they override.
type strategyFile struct {
	RSIPeriod          *int      `yaml:"rsi_period"`
	RSIThreshold       *float64  `yaml:"rsi_threshold"`
	EntryLevels        []string  `yaml:"entry_levels"`
	Fractions          []string  `yaml:"tranche_fractions"`
	TargetPct          *string   `yaml:"target_pct"`
	StopLossPct        *string   `yaml:"stop_loss_pct"`
	WindowStart        *string   `yaml:"window_start"`
	WindowEnd          *string   `yaml:"window_end"`
	CandleInterval     *duration `yaml:"candle_interval"`
	CapitalPerPosition *string   `yaml:"capital_per_position"`
	InitialCapital     *string   `yaml:"initial_capital"`
}

type duration time.Duration

func (d *duration) UnmarshalYAML(n *yaml.Node) error {
	v, err := time.ParseDuration(n.Value)
	if err != nil {
		return err
	}
	*d = duration(v)
	return nil
}

// LoadStrategyFile applies a YAML strategy profile on top of base.
// The result is not validated.
func LoadStrategyFile(path string, base Strategy) (Strategy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read strategy profile: %w", err)
	}
	var f strategyFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return base, fmt.Errorf("parse strategy profile %s: %w", path, err)
	}
	return f.apply(base)
}

func (f *strategyFile) apply(s Strategy) (Strategy, error) {
	var err error
	if f.RSIPeriod != nil {
		s.RSIPeriod = *f.RSIPeriod
	}
	if f.RSIThreshold != nil {
		s.RSIThreshold = *f.RSIThreshold
	}
	if f.EntryLevels != nil {
		if s.EntryLevels, err = parseDecimals(f.EntryLevels); err != nil {
			return s, fmt.Errorf("entry_levels: %w", err)
		}
	}
	if f.Fractions != nil {
		if s.Fractions, err = parseDecimals(f.Fractions); err != nil {
			return s, fmt.Errorf("tranche_fractions: %w", err)
		}
	}
	for _, p := range []struct {
		src *string
		dst *decimal.Decimal
		key string
	}{
		{f.TargetPct, &s.TargetPct, "target_pct"},
		{f.StopLossPct, &s.StopLossPct, "stop_loss_pct"},
		{f.CapitalPerPosition, &s.CapitalPerPosition, "capital_per_position"},
		{f.InitialCapital, &s.InitialCapital, "initial_capital"},
	} {
		if p.src == nil {
			continue
		}
		if *p.dst, err = decimal.NewFromString(*p.src); err != nil {
			return s, fmt.Errorf("%s: %w", p.key, err)
		}
	}
	if f.WindowStart != nil {
		if s.Window.Start, err = markethours.ParseClock(*f.WindowStart); err != nil {
			return s, err
		}
	}
	if f.WindowEnd != nil {
		if s.Window.End, err = markethours.ParseClock(*f.WindowEnd); err != nil {
			return s, err
		}
	}
	if f.CandleInterval != nil {
		s.CandleInterval = time.Duration(*f.CandleInterval)
	}
	return s, nil
}

func parseDecimals(vals []string) ([]decimal.Decimal, error) {
	out := make([]decimal.Decimal, 0, len(vals))
	for _, v := range vals {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

package replay

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"rsi-options-engine/internal/markethours"
	"rsi-options-engine/internal/model"
)

// Columns of the historical candle file. Extra columns are ignored.
var csvColumns = []string{
	"timestamp", "leg", "open", "high", "low", "close",
	"volume", "open_interest", "implied_volatility",
}

// required columns; the rest default to zero.
var csvRequired = csvColumns[:6]

// Accepted timestamp layouts. Layouts without an offset are read as IST.
var tsLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
}

// LoadCSV reads a candle file from path.
func LoadCSV(path string) ([]model.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open candle file")
	}
	defer f.Close()

	candles, err := ReadCSV(bufio.NewReader(f))
	return candles, errors.Wrap(err, path)
}

// ReadCSV parses one-minute candles with a header row naming the columns.
// Prices are rupees and are converted to paise. Rows are returned ordered
// by timestamp then leg; rows of one leg keep their file order on ties.
func ReadCSV(r io.Reader) ([]model.Candle, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, errors.Wrap(err, "read header")
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		col[h] = i
	}
	for _, name := range csvRequired {
		if _, ok := col[name]; !ok {
			return nil, errors.Errorf("missing column %q", name)
		}
	}

	var candles []model.Candle
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		c, err := parseRow(rec, col)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		candles = append(candles, c)
	}

	sort.SliceStable(candles, func(i, j int) bool {
		a, b := candles[i], candles[j]
		if !a.TS.Equal(b.TS) {
			return a.TS.Before(b.TS)
		}
		return a.Leg.Key() < b.Leg.Key()
	})
	return candles, nil
}

func parseRow(rec []string, col map[string]int) (model.Candle, error) {
	field := func(name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var c model.Candle
	var err error
	if c.TS, err = ParseTime(field("timestamp")); err != nil {
		return c, err
	}
	if c.Leg, err = model.ParseLeg(field("leg")); err != nil {
		return c, err
	}
	for name, dst := range map[string]*int64{"open": &c.Open, "high": &c.High, "low": &c.Low, "close": &c.Close} {
		d, err := decimal.NewFromString(field(name))
		if err != nil {
			return c, errors.Wrapf(err, "%s", name)
		}
		*dst = model.Paise(d)
	}
	if c.High < c.Low || c.Open > c.High || c.Open < c.Low || c.Close > c.High || c.Close < c.Low {
		return c, errors.Errorf("inconsistent bar o=%d h=%d l=%d c=%d", c.Open, c.High, c.Low, c.Close)
	}

	if s := field("volume"); s != "" {
		if c.Volume, err = parseInt(s); err != nil {
			return c, errors.Wrap(err, "volume")
		}
	}
	if s := field("open_interest"); s != "" {
		if c.OI, err = parseInt(s); err != nil {
			return c, errors.Wrap(err, "open_interest")
		}
	}
	if s := field("implied_volatility"); s != "" {
		if c.IV, err = strconv.ParseFloat(s, 64); err != nil {
			return c, errors.Wrap(err, "implied_volatility")
		}
	}
	return c, nil
}

// parseInt accepts integral values written as floats ("1200.0").
func parseInt(s string) (int64, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	return int64(f), err
}

// ParseTime reads a timestamp in any accepted layout.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range tsLayouts {
		if t, err := time.ParseInLocation(layout, s, markethours.IST); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Errorf("unrecognised timestamp %q", s)
}

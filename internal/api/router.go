// Package api provides read-only HTTP endpoints over the trade journal.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/bytedance/sonic"

	"rsi-options-engine/internal/markethours"
	"rsi-options-engine/internal/model"
	"rsi-options-engine/internal/report"
)

// TradeStore reads journaled trades for a trading day; "" means all days.
type TradeStore interface {
	Trades(ctx context.Context, day string) ([]model.TradeRecord, error)
}

// NewRouter sets up the API routes:
//
//	GET /api/v1/trades?day=YYYY-MM-DD
//	GET /api/v1/summary?day=YYYY-MM-DD
//
// day defaults to today in exchange time; day=all selects every day.
func NewRouter(store TradeStore, tranches int, now func() time.Time) *http.ServeMux {
	if now == nil {
		now = time.Now
	}
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/trades", func(w http.ResponseWriter, r *http.Request) {
		trades, ok := load(w, r, store, now)
		if !ok {
			return
		}
		if trades == nil {
			trades = []model.TradeRecord{}
		}
		writeJSON(w, http.StatusOK, trades)
	})

	mux.HandleFunc("/api/v1/summary", func(w http.ResponseWriter, r *http.Request) {
		trades, ok := load(w, r, store, now)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Total       report.Summary      `json:"total"`
			Instruments []report.Instrument `json:"instruments"`
		}{
			Total:       report.Summarize(trades, tranches),
			Instruments: report.ByInstrument(trades, tranches),
		})
	})

	return mux
}

func load(w http.ResponseWriter, r *http.Request, store TradeStore, now func() time.Time) ([]model.TradeRecord, bool) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return nil, false
	}
	day := r.URL.Query().Get("day")
	switch day {
	case "":
		day = markethours.DayKey(now())
	case "all":
		day = ""
	default:
		if _, err := time.Parse("2006-01-02", day); err != nil {
			writeError(w, http.StatusBadRequest, "day must be YYYY-MM-DD")
			return nil, false
		}
	}
	trades, err := store.Trades(r.Context(), day)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return trades, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	body, err := sonic.Marshal(v)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(body)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	body, _ := sonic.Marshal(map[string]string{"error": msg})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(body)
}

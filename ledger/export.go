package ledger

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// csvHeader is the fixed export column order; downstream tooling indexes by
// position, do not reorder.
var csvHeader = []string{
	"id", "signalId", "strategy", "side", "session",
	"entryPrice", "entryFillPrice", "exitPrice",
	"entryTime", "exitTime", "holdMinutes",
	"firstHit", "exitReason", "result",
	"realizedPnl", "realizedR", "feesPaid", "mfe", "mae", "day",
}

// ExportHistory renders the full history ring as "json" or "csv".
func (l *Ledger) ExportHistory(format string) ([]byte, error) {
	switch format {
	case "json":
		return json.MarshalIndent(l.history, "", "  ")
	case "csv":
		return exportCSV(l.history)
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
}

func exportCSV(trades []ClosedTrade) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, t := range trades {
		row := []string{
			t.ID,
			t.SignalID,
			string(t.Strategy),
			t.Side.String(),
			string(t.Session),
			fmtFloat(t.EntryPrice),
			fmtFloat(t.EntryFillPrice),
			fmtFloat(t.ExitPrice),
			t.EntryTime.UTC().Format(time.RFC3339Nano),
			t.ExitTime.UTC().Format(time.RFC3339Nano),
			fmtFloat(t.HoldMinutes),
			string(t.FirstHit),
			t.ExitReason,
			t.Result,
			fmtFloat(t.RealizedPnl),
			fmtFloat(t.RealizedR),
			fmtFloat(t.FeesPaid),
			fmtFloat(t.MFE),
			fmtFloat(t.MAE),
			t.Day,
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func fmtFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ParseHistory decodes a persisted history payload. Malformed input (wrong
// shape, not an array) yields an empty history instead of an error so that
// engine construction never fails on a corrupt snapshot.
func ParseHistory(raw []byte) []ClosedTrade {
	if len(raw) == 0 {
		return nil
	}
	var trades []ClosedTrade
	if err := json.Unmarshal(raw, &trades); err != nil {
		return nil
	}
	return trades
}

// Package perf derives daily performance summaries from closed trades.
// Everything here is a pure function of its input: no state, no clock.
package perf

import (
	"trade-sim-go/ledger"
	"trade-sim-go/market"
)

// Summary aggregates one bucket of closed trades.
type Summary struct {
	Trades     int     `json:"trades"`
	Wins       int     `json:"wins"`
	Losses     int     `json:"losses"`
	Breakevens int     `json:"breakevens"`
	NetR       float64 `json:"netR"`
	NetPercent float64 `json:"netPercent"` // 账户百分比口径的净盈亏
	AvgR       float64 `json:"avgR"`
	WinRate    float64 `json:"winRate"`
	LossRate   float64 `json:"lossRate"`
	Expectancy float64 `json:"expectancy"` // winRate·avgWin − lossRate·avgLoss
}

// DailyPerformance is the full derived report: day totals plus
// independent per-session and per-strategy breakdowns.
type DailyPerformance struct {
	Day        string                       `json:"day"`
	Total      Summary                      `json:"total"`
	Sessions   map[market.Session]Summary   `json:"sessions"`
	Strategies map[market.Strategy]Summary  `json:"strategies"`
}

// ComputeDaily folds the given day's closed trades into a report.
// Trades from other days are skipped so callers can pass full history.
func ComputeDaily(trades []ledger.ClosedTrade, day string) DailyPerformance {
	report := DailyPerformance{
		Day:        day,
		Sessions:   make(map[market.Session]Summary, len(market.Sessions)),
		Strategies: make(map[market.Strategy]Summary, len(market.Strategies)),
	}
	var dayTrades []ledger.ClosedTrade
	for _, t := range trades {
		if t.Day == day {
			dayTrades = append(dayTrades, t)
		}
	}
	report.Total = summarize(dayTrades)
	for _, sess := range market.Sessions {
		report.Sessions[sess] = summarize(filter(dayTrades, func(t ledger.ClosedTrade) bool {
			return t.Session == sess
		}))
	}
	for _, strat := range market.Strategies {
		report.Strategies[strat] = summarize(filter(dayTrades, func(t ledger.ClosedTrade) bool {
			return t.Strategy == strat
		}))
	}
	return report
}

func filter(trades []ledger.ClosedTrade, keep func(ledger.ClosedTrade) bool) []ledger.ClosedTrade {
	var out []ledger.ClosedTrade
	for _, t := range trades {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}

func summarize(trades []ledger.ClosedTrade) Summary {
	var s Summary
	var winR, lossR float64
	for _, t := range trades {
		s.Trades++
		s.NetR += t.RealizedR
		s.NetPercent += t.RealizedPnl * 100
		switch t.Result {
		case ledger.ResultWin:
			s.Wins++
			winR += t.RealizedR
		case ledger.ResultLoss:
			s.Losses++
			lossR += -t.RealizedR
		default:
			s.Breakevens++
		}
	}
	if s.Trades == 0 {
		return s
	}
	n := float64(s.Trades)
	s.AvgR = s.NetR / n
	s.WinRate = float64(s.Wins) / n
	s.LossRate = float64(s.Losses) / n
	var avgWin, avgLoss float64
	if s.Wins > 0 {
		avgWin = winR / float64(s.Wins)
	}
	if s.Losses > 0 {
		avgLoss = lossR / float64(s.Losses)
	}
	s.Expectancy = s.WinRate*avgWin - s.LossRate*avgLoss
	return s
}

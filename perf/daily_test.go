package perf_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-sim-go/ledger"
	"trade-sim-go/market"
	"trade-sim-go/perf"
)

func trade(r float64, sess market.Session, strat market.Strategy, day string) ledger.ClosedTrade {
	return ledger.ClosedTrade{
		Session:     sess,
		Strategy:    strat,
		Result:      ledger.Classify(r),
		RealizedR:   r,
		RealizedPnl: r * 0.01,
		Day:         day,
	}
}

func TestComputeDailyTotals(t *testing.T) {
	day := "2025-06-02"
	trades := []ledger.ClosedTrade{
		trade(2, market.SessionLondon, market.StrategyBreakout, day),
		trade(-1, market.SessionLondon, market.StrategyReversal, day),
		trade(0.05, market.SessionAsia, market.StrategyBreakout, day),
		trade(1, market.SessionNewYork, market.StrategyAbsorption, "2025-06-01"), // 别的交易日，跳过
	}

	report := perf.ComputeDaily(trades, day)
	assert.Equal(t, day, report.Day)
	total := report.Total
	assert.Equal(t, 3, total.Trades)
	assert.Equal(t, 1, total.Wins)
	assert.Equal(t, 1, total.Losses)
	assert.Equal(t, 1, total.Breakevens)
	assert.InDelta(t, 1.05, total.NetR, 1e-9)
	assert.InDelta(t, 1.05/3, total.AvgR, 1e-9)
	assert.InDelta(t, 1.0/3, total.WinRate, 1e-9)

	// 期望值 = winRate·avgWin − lossRate·avgLoss
	assert.InDelta(t, (1.0/3)*2-(1.0/3)*1, total.Expectancy, 1e-9)
}

func TestComputeDailyGrid(t *testing.T) {
	day := "2025-06-02"
	trades := []ledger.ClosedTrade{
		trade(2, market.SessionLondon, market.StrategyBreakout, day),
		trade(-1, market.SessionLondon, market.StrategyReversal, day),
	}

	report := perf.ComputeDaily(trades, day)
	// 全部时段与策略都有槽位，空桶零值
	require.Len(t, report.Sessions, len(market.Sessions))
	require.Len(t, report.Strategies, len(market.Strategies))
	assert.Equal(t, 2, report.Sessions[market.SessionLondon].Trades)
	assert.Equal(t, 0, report.Sessions[market.SessionAsia].Trades)
	assert.Equal(t, 1, report.Strategies[market.StrategyBreakout].Wins)
	assert.Equal(t, 1, report.Strategies[market.StrategyReversal].Losses)
}

func TestComputeDailyEmpty(t *testing.T) {
	report := perf.ComputeDaily(nil, "2025-06-02")
	assert.Equal(t, 0, report.Total.Trades)
	assert.Equal(t, 0.0, report.Total.WinRate)
	assert.Equal(t, 0.0, report.Total.Expectancy)
}

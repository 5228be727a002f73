package engine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-sim-go/config"
	"trade-sim-go/engine"
	"trade-sim-go/invalidation"
	"trade-sim-go/ledger"
	"trade-sim-go/market"
)

var t0 = time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)

func autoSignal(id string) market.Signal {
	return market.Signal{
		ID: id, Ts: t0, Side: market.Long,
		Strategy: market.StrategyBreakout, Session: market.SessionLondon,
		Entry: 100, Stop: 99, Target1: 102, Target2: 103,
		Confidence: 80,
		Book:       &market.BookConfirmation{Confirmed: true, Confidence: 80},
	}
}

func weakSignal(id string) market.Signal {
	s := autoSignal(id)
	s.Confidence = 40
	s.Book = nil
	return s
}

func trade(id int64, price float64, after time.Duration) market.Trade {
	return market.Trade{ID: id, Price: price, Qty: 1, Ts: t0.Add(after)}
}

func newEngine() *engine.Engine {
	return engine.New(config.Default(), engine.Options{})
}

func TestAutoTakeRequiresConfirmation(t *testing.T) {
	eng := newEngine()
	eng.OnSignals([]market.Signal{autoSignal("a"), weakSignal("b")})

	snap := eng.Snapshot()
	require.Len(t, snap.Pending, 1)
	assert.Equal(t, "a", snap.Pending[0].SignalID)
	assert.True(t, snap.Pending[0].AutoTaken)
}

// 低置信信号进缓存，手动跟单仍然可用。
func TestTakeSignalManual(t *testing.T) {
	eng := newEngine()
	eng.OnSignals([]market.Signal{weakSignal("b")})
	require.Len(t, eng.Snapshot().Pending, 0)

	pt := eng.TakeSignal("b")
	require.NotNil(t, pt)
	assert.False(t, pt.AutoTaken)

	assert.Nil(t, eng.TakeSignal("missing"))
}

func TestVersionBumpsOnObservableChange(t *testing.T) {
	eng := newEngine()
	v0 := eng.Version()

	eng.OnSignals([]market.Signal{autoSignal("a")})
	v1 := eng.Version()
	assert.Greater(t, v1, v0) // 挂单创建

	// 无持仓无挂单变化的 tick 不动版本
	eng2 := newEngine()
	before := eng2.Version()
	eng2.OnTrade(trade(1, 50, time.Second))
	assert.Equal(t, before, eng2.Version())

	// 成交触发挂单
	eng.OnTrade(trade(1, 100, time.Second))
	v2 := eng.Version()
	assert.Greater(t, v2, v1)
	assert.Len(t, eng.Snapshot().Positions, 1)
}

func TestUpdateSettingsNoopKeepsVersion(t *testing.T) {
	eng := newEngine()
	v0 := eng.Version()

	assert.False(t, eng.UpdateSettings(config.Patch{}))
	same := config.Default().RiskPercent
	assert.False(t, eng.UpdateSettings(config.Patch{RiskPercent: &same}))
	assert.Equal(t, v0, eng.Version())

	risk := 0.02
	assert.True(t, eng.UpdateSettings(config.Patch{RiskPercent: &risk}))
	assert.Greater(t, eng.Version(), v0)
	assert.Equal(t, 0.02, eng.Snapshot().Settings.RiskPercent)
}

func TestUpdateClockOffset(t *testing.T) {
	eng := newEngine()
	require.True(t, eng.UpdateClockOffset(3600_000))
	v := eng.Version()
	assert.False(t, eng.UpdateClockOffset(3600_000)) // 相同偏移是 no-op
	assert.Equal(t, v, eng.Version())
	assert.Equal(t, int64(3600_000), eng.Snapshot().ClockOffsetMs)
}

func TestCancelPending(t *testing.T) {
	eng := newEngine()
	eng.OnSignals([]market.Signal{autoSignal("a")})
	v := eng.Version()

	require.True(t, eng.CancelPending("a"))
	assert.Greater(t, eng.Version(), v)
	assert.Len(t, eng.Snapshot().Pending, 0)

	v = eng.Version()
	assert.False(t, eng.CancelPending("a"))
	assert.Equal(t, v, eng.Version())
}

// 止损全亏走完整链路：账本 → 风控计数 → 当日绩效。
func TestClosedTradeFlowsToGuardrailsAndPerf(t *testing.T) {
	eng := newEngine()
	eng.OnSignals([]market.Signal{autoSignal("a")})
	eng.OnTrade(trade(1, 100, time.Second))
	eng.OnTrade(trade(2, 99, 2*time.Second))

	snap := eng.Snapshot()
	assert.Len(t, snap.Positions, 0)
	require.Len(t, snap.Recent, 1)
	assert.Equal(t, ledger.ResultLoss, snap.Recent[0].Result)
	assert.InDelta(t, -3.04, snap.Guardrails.NetRToday, 0.01)
	assert.Equal(t, 1, snap.Daily.Total.Losses)
	assert.Equal(t, 1, snap.Daily.Sessions[market.SessionLondon].Trades)
}

// 乱序批次按 (ts, id) 排序后施加：先触发入场，再触发止损。
func TestOnTradesSortsBatch(t *testing.T) {
	eng := newEngine()
	eng.OnSignals([]market.Signal{autoSignal("a")})

	eng.OnTrades([]market.Trade{
		trade(5, 99, 2*time.Second), // 止损价，但时间在后
		trade(2, 100, time.Second),  // 入场触发在前
	})

	snap := eng.Snapshot()
	require.Len(t, snap.Recent, 1)
	assert.Equal(t, ledger.ReasonStop, snap.Recent[0].ExitReason)
}

// 同一时间戳内按成交 id 升序施加：空头在同一毫秒同时见到止损价与
// 目标价时，id 靠前的止损先成立。
func TestOnTradesSameTimestampTieBreak(t *testing.T) {
	eng := newEngine()
	sig := autoSignal("s")
	sig.Side = market.Short
	sig.Stop = 101
	sig.Target1 = 98
	sig.Target2 = 97
	eng.OnSignals([]market.Signal{sig})
	eng.OnTrade(trade(1, 100, time.Second)) // 触发入场

	ts := t0.Add(2 * time.Second)
	eng.OnTrades([]market.Trade{
		{ID: 11, Price: 97, Qty: 1, Ts: ts},  // 目标价，id 靠后
		{ID: 10, Price: 102, Qty: 1, Ts: ts}, // 止损价，id 靠前
	})

	snap := eng.Snapshot()
	require.Len(t, snap.Recent, 1)
	assert.Equal(t, ledger.ReasonStop, snap.Recent[0].ExitReason)
}

func TestFlattenPosition(t *testing.T) {
	eng := newEngine()
	eng.OnSignals([]market.Signal{autoSignal("a")})
	eng.OnTrade(trade(1, 100, time.Second))
	id := eng.Snapshot().Positions[0].ID

	px := 100.4
	require.True(t, eng.FlattenPosition(id, &px))
	snap := eng.Snapshot()
	assert.Len(t, snap.Positions, 0)
	assert.Equal(t, ledger.ReasonManual, snap.Recent[0].ExitReason)
	assert.Equal(t, 100.4, snap.Recent[0].ExitPrice)

	assert.False(t, eng.FlattenPosition(id, nil))
}

func TestApplyInvalidationActionThroughFacade(t *testing.T) {
	eng := newEngine()
	eng.OnSignals([]market.Signal{autoSignal("a")})
	eng.OnTrade(trade(1, 100, time.Second))

	// 制造 legacy 事件：先喂入场基准 bar，再喂逆向 bar 与反向信号
	eng.OnBars([]market.Bar{{Index: 1, Ts: t0, Delta: 50, CumDelta: 1000, POC: 101.5, Open: 101, Close: 101.2}})
	eng.OnBars([]market.Bar{{Index: 2, Ts: t0.Add(time.Minute), Delta: -60, CumDelta: 800, POC: 100.5, Open: 101, Close: 100.5}})
	opp := autoSignal("opp")
	opp.Side = market.Short
	opp.Book = nil
	opp.Confidence = 80
	opp.Ts = t0.Add(2 * time.Minute)
	eng.OnSignals([]market.Signal{opp})

	snap := eng.Snapshot()
	require.NotEmpty(t, snap.Events)
	evID := snap.Events[len(snap.Events)-1].ID

	require.True(t, eng.ApplyInvalidationAction(evID, invalidation.ActionHold))
	assert.False(t, eng.ApplyInvalidationAction(evID, invalidation.ActionClose))
}

func TestSnapshotIsImmutableCopy(t *testing.T) {
	eng := newEngine()
	eng.OnSignals([]market.Signal{autoSignal("a")})
	eng.OnTrade(trade(1, 100, time.Second))
	px := 102.0
	require.True(t, eng.FlattenPosition(eng.Snapshot().Positions[0].ID, &px))
	eng.OnSignals([]market.Signal{autoSignal("b")})

	snap := eng.Snapshot()
	require.Len(t, snap.History, 1) // 全量历史随快照携带
	origR := snap.History[0].RealizedR
	snap.Pending[0].Entry = 12345 // 改拷贝不影响核心
	snap.History[0].RealizedR = -99

	again := eng.Snapshot()
	assert.Equal(t, 100.0, again.Pending[0].Entry)
	assert.Equal(t, origR, again.History[0].RealizedR)
	assert.Equal(t, snap.Version, again.Version)
}

func TestPersistenceRoundTrip(t *testing.T) {
	eng := newEngine()
	risk := 0.02
	eng.UpdateSettings(config.Patch{RiskPercent: &risk})
	eng.OnSignals([]market.Signal{autoSignal("a")})
	eng.OnTrade(trade(1, 100, time.Second))
	eng.OnTrade(trade(2, 99, 2*time.Second))

	raw, err := eng.PersistSnapshot()
	require.NoError(t, err)

	restored := engine.NewFromPersistence(raw, engine.Options{})
	snap := restored.Snapshot()
	assert.Equal(t, 0.02, snap.Settings.RiskPercent)
	assert.Len(t, snap.Recent, 1)
}

func TestNewFromPersistenceMalformed(t *testing.T) {
	restored := engine.NewFromPersistence([]byte("garbage"), engine.Options{})
	snap := restored.Snapshot()
	assert.Equal(t, config.Default().RiskPercent, snap.Settings.RiskPercent)
	assert.Empty(t, snap.Recent)

	restored = engine.NewFromPersistence(nil, engine.Options{})
	assert.Equal(t, uint64(0), restored.Version())
}

package engine

import (
	"sort"
	"time"

	"trade-sim-go/config"
	"trade-sim-go/infrastructure/monitor"
	"trade-sim-go/invalidation"
	"trade-sim-go/ledger"
	"trade-sim-go/market"
	"trade-sim-go/risk"
)

// autoTakeConfidence 自动跟单的信号置信度下限，且要求盘口确认。
const autoTakeConfidence = 70.0

// EventSink 结构化事件出口。
type EventSink func(event string, fields map[string]interface{})

// Engine 决策核心的门面：把信号/行情/成交事件编排进账本、失效评估器
// 与风控，并维护单调递增的状态版本号。
//
// 单线程同步模型：每个公开方法在返回前完成整个状态迁移，宿主负责串行
// 调用。核心内部不取墙钟，全部时间来自事件流，保证回放逐位一致。
type Engine struct {
	settings config.TradingSettings

	signals *market.SignalCache
	bars    *market.BarWindow
	mktCtx  *market.MarketContext

	book  *ledger.Ledger
	eval  *invalidation.Evaluator
	guard *risk.Guardrails

	version       uint64
	clockOffsetMs int64
	lastEventTime time.Time

	sink EventSink
	mon  *monitor.Monitor
}

// Options 引擎可选依赖。
type Options struct {
	Sink    EventSink
	Monitor *monitor.Monitor
	// History 持久化快照里的历史平仓记录；坏形状的输入由调用方先
	// 经 ledger.ParseHistory 过滤。
	History []ledger.ClosedTrade
}

func New(settings config.TradingSettings, opts Options) *Engine {
	settings = config.Clamp(settings)
	e := &Engine{
		settings: settings,
		signals:  market.NewSignalCache(),
		bars:     market.NewBarWindow(),
		sink:     opts.Sink,
		mon:      opts.Monitor,
	}
	e.guard = risk.New(settings.Guardrails, e.guardSink)
	e.book = ledger.New(settings, e.guard, e.forward)
	e.eval = invalidation.NewEvaluator(settings, e.book, e.forward)

	e.book.Observe(e.eval.OnPositionClosed)
	e.book.Observe(e.guard.OnClosedTrade)
	e.book.Observe(func(t ledger.ClosedTrade) {
		e.mon.IncClosed(t.Result)
	})

	if len(opts.History) > 0 {
		e.book.RestoreHistory(opts.History)
	}
	return e
}

// NewFromPersistence 从持久化快照重建引擎。坏载荷防御性忽略：
// 配置回退默认值、历史回退为空，构造永不失败。
func NewFromPersistence(raw []byte, opts Options) *Engine {
	snap := ParsePersistSnapshot(raw)
	opts.History = snap.History
	return New(snap.Settings, opts)
}

func (e *Engine) forward(event string, fields map[string]interface{}) {
	if e.sink != nil {
		e.sink(event, fields)
	}
}

func (e *Engine) guardSink(event string, fields map[string]interface{}) {
	if event == "guardrail_denied" {
		e.mon.IncGuardrailDenial()
	}
	e.forward(event, fields)
}

// Version 当前状态版本。任何可观察变化都会递增，no-op 不会。
func (e *Engine) Version() uint64 { return e.version }

func (e *Engine) bump() {
	e.version++
	e.mon.SetVersion(e.version)
	e.mon.SetOpenPositions(e.book.OpenCount())
	e.mon.SetPendingOrders(e.book.PendingCount())
}

func (e *Engine) advanceClock(ts time.Time) {
	if ts.After(e.lastEventTime) {
		e.lastEventTime = ts
	}
}

// OnSignals 摄入一批外部信号。新信号可触发自动跟单与一轮失效评估；
// 已见过的 id 只刷新缓存。
func (e *Engine) OnSignals(sigs []market.Signal) {
	changed := false
	for _, sig := range sigs {
		e.advanceClock(sig.Ts)
		if !e.signals.Put(sig) {
			continue
		}
		if e.shouldAutoTake(sig) {
			if pt := e.book.CreatePendingFromSignal(sig, true, e.lastEventTime); pt != nil {
				changed = true
			}
		}
	}
	if e.evaluate() || changed {
		e.bump()
	}
}

// shouldAutoTake：盘口确认且置信度过线才自动跟单。
func (e *Engine) shouldAutoTake(sig market.Signal) bool {
	return sig.Book != nil && sig.Book.Confirmed && sig.Confidence >= autoTakeConfidence
}

// OnBars 摄入一批 footprint bar。
func (e *Engine) OnBars(bars []market.Bar) {
	for _, b := range bars {
		e.advanceClock(b.Ts)
		e.bars.Push(b)
		e.book.SetBarIndex(b.Index)
	}
	if e.evaluate() {
		e.bump()
	}
}

// OnTrade 摄入单笔逐笔成交：驱动挂单触发与持仓出场，然后评估失效。
func (e *Engine) OnTrade(t market.Trade) {
	e.advanceClock(t.Ts)
	e.mon.IncTick()
	openBefore := e.book.OpenCount()
	changed := e.book.OnTick(t)
	if e.book.OpenCount() > openBefore {
		e.mon.IncFill()
	}
	fired := e.evaluate()
	if changed || fired {
		e.bump()
	}
}

// OnTrades 批量摄入，按 (时间戳, 成交 id) 升序施加。
func (e *Engine) OnTrades(batch []market.Trade) {
	sorted := append([]market.Trade(nil), batch...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Ts.Equal(sorted[j].Ts) {
			return sorted[i].ID < sorted[j].ID
		}
		return sorted[i].Ts.Before(sorted[j].Ts)
	})
	for _, t := range sorted {
		e.OnTrade(t)
	}
}

// evaluate 跑一轮失效评估，返回是否有可观察变化。
// objective 路径下即使没有新事件，持仓的 KPI 也会随评估刷新。
func (e *Engine) evaluate() bool {
	ctx := invalidation.Context{
		Signals: e.signals,
		Bars:    e.bars,
		Market:  e.mktCtx,
		Now:     e.lastEventTime,
	}
	fired := e.eval.Evaluate(ctx)
	if fired > 0 {
		return true
	}
	return e.settings.Objective.Enabled && e.book.OpenCount() > 0
}

// TakeSignal 手动跟单。信号必须在缓存里；返回创建的挂单或 nil。
func (e *Engine) TakeSignal(signalID string) *ledger.PendingTrade {
	sig, ok := e.signals.Get(signalID)
	if !ok {
		return nil
	}
	pt := e.book.CreatePendingFromSignal(sig, false, e.lastEventTime)
	if pt != nil {
		e.bump()
	}
	return pt
}

// CancelPending 撤销挂单；不存在返回 false 且版本不变。
func (e *Engine) CancelPending(signalID string) bool {
	if !e.book.CancelPending(signalID) {
		return false
	}
	e.bump()
	return true
}

// FlattenPosition 手动全平。price 为 nil 时按最近成交价。
func (e *Engine) FlattenPosition(id string, price *float64) bool {
	if !e.book.FlattenPosition(id, price, ledger.ReasonManual, e.lastEventTime) {
		return false
	}
	e.bump()
	return true
}

// ApplyInvalidationAction 处理失效事件。
func (e *Engine) ApplyInvalidationAction(eventID string, action invalidation.Action) bool {
	if !e.eval.ApplyAction(eventID, action, e.lastEventTime) {
		return false
	}
	e.bump()
	return true
}

// UpdateSettings 套用部分配置。收敛后无实际变化返回 false 且版本不变。
func (e *Engine) UpdateSettings(patch config.Patch) bool {
	next, changed := patch.Apply(e.settings)
	if !changed {
		return false
	}
	e.settings = next
	e.book.SetSettings(next)
	e.eval.SetSettings(next)
	e.guard.SetSettings(next.Guardrails)
	e.forward("settings_updated", map[string]interface{}{
		"risk_percent": next.RiskPercent,
		"objective":    next.Objective.Enabled,
	})
	e.bump()
	return true
}

// ReplaceSettings 整体换入配置（热加载路径）。语义与 UpdateSettings
// 一致：先收敛，无实际变化不动版本。
func (e *Engine) ReplaceSettings(next config.TradingSettings) bool {
	next = config.Clamp(next)
	if config.Equal(e.settings, next) {
		return false
	}
	e.settings = next
	e.book.SetSettings(next)
	e.eval.SetSettings(next)
	e.guard.SetSettings(next.Guardrails)
	e.forward("settings_updated", map[string]interface{}{
		"risk_percent": next.RiskPercent,
		"objective":    next.Objective.Enabled,
	})
	e.bump()
	return true
}

// UpdateMarketContext 推送最新盘口上下文。
func (e *Engine) UpdateMarketContext(mc market.MarketContext) {
	e.advanceClock(mc.Ts)
	e.mktCtx = &mc
	if e.evaluate() {
		e.bump()
	}
}

// UpdateClockOffset 校正服务器时差（毫秒），只移动日切边界。
func (e *Engine) UpdateClockOffset(ms int64) bool {
	if ms == e.clockOffsetMs {
		return false
	}
	e.clockOffsetMs = ms
	e.book.SetClockOffset(ms)
	e.guard.SetClockOffset(ms)
	e.bump()
	return true
}

// ResetDay 手动日切。
func (e *Engine) ResetDay() {
	e.guard.ResetDay(e.lastEventTime)
	e.bump()
}

// ExportHistory 导出全量历史，format 取 "json" 或 "csv"。
func (e *Engine) ExportHistory(format string) ([]byte, error) {
	return e.book.ExportHistory(format)
}

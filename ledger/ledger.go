package ledger

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"trade-sim-go/config"
	"trade-sim-go/market"
)

const (
	// RecentCap 最近平仓环容量，History 满后最旧的先淘汰。
	RecentCap  = 50
	HistoryCap = 500

	eps = 1e-9
)

// EntryGuard 下单前校验（由账户级风控实现）。
type EntryGuard interface {
	AllowEntry(sig market.Signal, auto bool, now time.Time) bool
}

// EventSink 结构化事件出口，核心不直接依赖日志库。
type EventSink func(event string, fields map[string]interface{})

// CloseObserver 平仓回调，同一状态迁移内同步执行。
type CloseObserver func(trade ClosedTrade)

// Ledger 持有挂单、持仓与历史，是全部资金运算的唯一入口。
// 非并发安全：引擎保证串行调用（见引擎说明）。
type Ledger struct {
	settings config.TradingSettings

	pendingOrder []string // signal id 插入序，保证遍历确定性
	pending      map[string]*PendingTrade

	positionOrder []string
	positions     map[string]*Position

	recent  []ClosedTrade
	history []ClosedTrade

	guard     EntryGuard
	observers []CloseObserver
	sink      EventSink

	curBarIndex   int
	clockOffsetMs int64
	seq           uint64
}

func New(settings config.TradingSettings, guard EntryGuard, sink EventSink) *Ledger {
	return &Ledger{
		settings:  config.Clamp(settings),
		pending:   make(map[string]*PendingTrade),
		positions: make(map[string]*Position),
		guard:     guard,
		sink:      sink,
	}
}

// Observe 注册平仓回调。
func (l *Ledger) Observe(fn CloseObserver) {
	if fn != nil {
		l.observers = append(l.observers, fn)
	}
}

// SetSettings 替换配置；已开仓位保留其入场时的风险参数。
func (l *Ledger) SetSettings(s config.TradingSettings) {
	l.settings = config.Clamp(s)
}

// SetBarIndex 记录最新 bar 序号，新开仓位带上它。
func (l *Ledger) SetBarIndex(idx int) { l.curBarIndex = idx }

// SetClockOffset 校正服务器时差，只影响 day key 推导。
func (l *Ledger) SetClockOffset(ms int64) { l.clockOffsetMs = ms }

// DayKey 按校正后的时钟推导日历日。
func (l *Ledger) DayKey(ts time.Time) string {
	return ts.Add(time.Duration(l.clockOffsetMs) * time.Millisecond).UTC().Format("2006-01-02")
}

// RestoreHistory 从持久化快照恢复历史（容量裁剪，最旧的丢弃）。
func (l *Ledger) RestoreHistory(trades []ClosedTrade) {
	if len(trades) > HistoryCap {
		trades = trades[len(trades)-HistoryCap:]
	}
	l.history = append(l.history[:0], trades...)
	n := len(trades)
	if n > RecentCap {
		n = RecentCap
	}
	l.recent = append(l.recent[:0], trades[len(trades)-n:]...)
}

// CreatePendingFromSignal 按信号建挂单。拒绝条件（返回 nil）：
// 同 id 已有挂单或持仓；风险距离约为零；信号自带 TP1 不足 2:1；风控拒绝。
// 接受后 target1/target2 从 entry/stop 重算为 2R/3R，忽略信号自带目标。
func (l *Ledger) CreatePendingFromSignal(sig market.Signal, auto bool, now time.Time) *PendingTrade {
	if _, ok := l.pending[sig.ID]; ok {
		return nil
	}
	for _, id := range l.positionOrder {
		if l.positions[id].SignalID == sig.ID {
			return nil
		}
	}
	rpu := math.Abs(sig.Entry - sig.Stop)
	if rpu < eps {
		return nil
	}
	if math.Abs(sig.Target1-sig.Entry)/rpu < 2-eps {
		return nil
	}
	if l.guard != nil && !l.guard.AllowEntry(sig, auto, now) {
		return nil
	}

	dir := sig.Side.Direction()
	pt := &PendingTrade{
		SignalID:    sig.ID,
		Side:        sig.Side,
		Strategy:    sig.Strategy,
		Session:     sig.Session,
		Entry:       sig.Entry,
		Stop:        sig.Stop,
		Target1:     sig.Entry + 2*rpu*dir,
		Target2:     sig.Entry + 3*rpu*dir,
		RiskPerUnit: rpu,
		CreatedAt:   now,
		ExpiresAt:   sig.Ts.Add(time.Duration(l.settings.RetestWindowMin * float64(time.Minute))),
		AutoTaken:   auto,
	}
	l.pending[sig.ID] = pt
	l.pendingOrder = append(l.pendingOrder, sig.ID)
	l.emit("pending_created", map[string]interface{}{
		"signal_id": sig.ID,
		"side":      sig.Side.String(),
		"entry":     pt.Entry,
		"stop":      pt.Stop,
		"target1":   pt.Target1,
		"expires":   pt.ExpiresAt,
		"auto":      auto,
	})
	return pt
}

// CancelPending 手动撤单。
func (l *Ledger) CancelPending(signalID string) bool {
	if _, ok := l.pending[signalID]; !ok {
		return false
	}
	l.removePending(signalID)
	l.emit("pending_cancelled", map[string]interface{}{"signal_id": signalID})
	return true
}

// OnTick 处理一笔逐笔成交：先处理挂单的过期/触发，再逐仓更新并按固定
// 优先级检查出场。返回是否有可观察状态变化。
func (l *Ledger) OnTick(t market.Trade) bool {
	changed := false

	for _, id := range append([]string(nil), l.pendingOrder...) {
		pt, ok := l.pending[id]
		if !ok {
			continue
		}
		if t.Ts.After(pt.ExpiresAt) {
			l.removePending(id)
			l.emit("pending_expired", map[string]interface{}{"signal_id": id})
			changed = true
			continue
		}
		if touchesEntry(pt.Side, t.Price, pt.Entry) {
			l.fillPending(pt, t)
			changed = true
		}
	}

	for _, id := range append([]string(nil), l.positionOrder...) {
		pos, ok := l.positions[id]
		if !ok {
			continue
		}
		l.applyTickToPosition(pos, t)
		changed = true
	}
	return changed
}

func touchesEntry(side market.Side, price, entry float64) bool {
	if side == market.Long {
		return price <= entry+eps
	}
	return price >= entry-eps
}

func (l *Ledger) fillPending(pt *PendingTrade, t market.Trade) {
	dir := pt.Side.Direction()
	slip := l.settings.SlippageTicks * l.settings.TickSize
	fill := pt.Entry + slip*dir // 滑点永远对交易者不利
	riskAmount := l.settings.RiskPercent
	size := riskAmount / pt.RiskPerUnit

	pos := &Position{
		ID:             l.newID(pt.SignalID),
		SignalID:       pt.SignalID,
		Side:           pt.Side,
		Strategy:       pt.Strategy,
		Session:        pt.Session,
		EntryPrice:     pt.Entry,
		EntryFillPrice: fill,
		Stop:           pt.Stop,
		Target1:        pt.Target1,
		Target2:        pt.Target2,
		EntryTime:      t.Ts,
		EntryBarIndex:  l.curBarIndex,
		Size:           size,
		Remaining:      size,
		PartialSize:    size * l.settings.PartialTakePct,
		RiskAmount:     riskAmount,
		RiskPerUnit:    pt.RiskPerUnit,
		FirstHit:       FirstHitNone,
		LastPrice:      fill,
	}
	if l.settings.TimeStopMinutes > 0 {
		pos.TimeStopAt = t.Ts.Add(time.Duration(l.settings.TimeStopMinutes * float64(time.Minute)))
	}
	// 入场腿手续费随开仓计提
	entryFee := math.Abs(fill*size) * l.feeRate()
	pos.FeesPaid += entryFee
	pos.RealizedPnl -= entryFee
	pos.RealizedR = pos.RealizedPnl / pos.RiskAmount

	l.removePending(pt.SignalID)
	l.positions[pos.ID] = pos
	l.positionOrder = append(l.positionOrder, pos.ID)
	l.emit("position_opened", map[string]interface{}{
		"position_id": pos.ID,
		"signal_id":   pos.SignalID,
		"side":        pos.Side.String(),
		"entry_fill":  fill,
		"size":        size,
		"stop":        pos.Stop,
		"target1":     pos.Target1,
		"target2":     pos.Target2,
	})
}

// applyTickToPosition 固定出场优先级：TP1 部分止盈 → TP2 → 止损 → 时间止损。
// TP2 先于止损检查；该顺序是既有引擎行为，调整会破坏场景回放一致性。
func (l *Ledger) applyTickToPosition(pos *Position, t market.Trade) {
	dir := pos.Side.Direction()
	pos.LastPrice = t.Price
	progress := pos.ProgressR(t.Price)
	if progress > pos.MFE {
		pos.MFE = progress
	}
	if progress < pos.MAE {
		pos.MAE = progress
	}

	if !pos.Target1Hit && touchesTarget(dir, t.Price, pos.Target1) {
		qty := math.Min(pos.PartialSize, pos.Remaining)
		if qty >= pos.Remaining-eps {
			l.closeLeg(pos, pos.Remaining, pos.Target1, ReasonTP1, FirstHitTP1, t.Ts)
			return
		}
		l.closeLeg(pos, qty, pos.Target1, ReasonTP1, FirstHitTP1, t.Ts)
		pos.Target1Hit = true
		pos.Stop = pos.EntryFillPrice + l.settings.BreakevenTicks*l.settings.TickSize*dir
		l.emit("stop_to_breakeven", map[string]interface{}{
			"position_id": pos.ID,
			"stop":        pos.Stop,
		})
	}

	if _, ok := l.positions[pos.ID]; !ok {
		return
	}

	switch {
	case touchesTarget(dir, t.Price, pos.Target2):
		l.closeLeg(pos, pos.Remaining, pos.Target2, ReasonTP2, FirstHitTP2, t.Ts)
	case touchesStop(dir, t.Price, pos.Stop):
		slip := l.settings.SlippageTicks * l.settings.TickSize
		fill := pos.Stop - slip*dir
		reason := ReasonStop
		if pos.Target1Hit {
			reason = ReasonBreakeven
		}
		l.closeLeg(pos, pos.Remaining, fill, reason, FirstHitStop, t.Ts)
	case !pos.TimeStopAt.IsZero() && !t.Ts.Before(pos.TimeStopAt):
		l.closeLeg(pos, pos.Remaining, t.Price, ReasonTimeStop, FirstHitTimeStop, t.Ts)
	}
}

func touchesTarget(dir, price, target float64) bool {
	return (target-price)*dir <= eps
}

func touchesStop(dir, price, stop float64) bool {
	return (price-stop)*dir <= eps
}

// FlattenPosition 强制全平。price 为 nil 时用最近成交价。
func (l *Ledger) FlattenPosition(id string, price *float64, reason string, now time.Time) bool {
	pos, ok := l.positions[id]
	if !ok {
		return false
	}
	px := pos.LastPrice
	if price != nil {
		px = *price
	}
	if reason == "" {
		reason = ReasonManual
	}
	l.closeLeg(pos, pos.Remaining, px, reason, FirstHitInvalidation, now)
	return true
}

// ReducePosition 按比例市价减仓；减到约零则按失效原因终结。
func (l *Ledger) ReducePosition(id string, fraction float64, now time.Time) bool {
	pos, ok := l.positions[id]
	if !ok || fraction <= 0 {
		return false
	}
	if fraction > 1 {
		fraction = 1
	}
	qty := pos.Remaining * fraction
	if pos.Remaining-qty < eps {
		l.closeLeg(pos, pos.Remaining, pos.LastPrice, ReasonInvalidation, FirstHitInvalidation, now)
		return true
	}
	l.closeLeg(pos, qty, pos.LastPrice, ReasonInvalidation, FirstHitInvalidation, now)
	return true
}

// TightenStop 把止损收到入场与原止损的中点（entry - 0.5·rpu·dir），
// 只允许单调收紧。
func (l *Ledger) TightenStop(id string) bool {
	pos, ok := l.positions[id]
	if !ok {
		return false
	}
	dir := pos.Side.Direction()
	newStop := pos.EntryPrice - 0.5*pos.RiskPerUnit*dir
	if (newStop-pos.Stop)*dir <= eps {
		return false
	}
	pos.Stop = newStop
	l.emit("stop_tightened", map[string]interface{}{
		"position_id": pos.ID,
		"stop":        newStop,
	})
	return true
}

// closeLeg 平掉 qty；Remaining 归零时在同一迁移内转为 ClosedTrade。
func (l *Ledger) closeLeg(pos *Position, qty, price float64, reason string, hit FirstHit, now time.Time) {
	if qty > pos.Remaining {
		qty = pos.Remaining
	}
	dir := pos.Side.Direction()
	fee := math.Abs(price*qty) * l.feeRate()
	net := (price-pos.EntryFillPrice)*qty*dir - fee
	pos.RealizedPnl += net
	pos.FeesPaid += fee
	pos.RealizedR = pos.RealizedPnl / pos.RiskAmount
	pos.Remaining -= qty
	if pos.Remaining < 0 {
		panic(fmt.Sprintf("ledger: negative remaining size on %s", pos.ID))
	}
	if pos.FirstHit == FirstHitNone {
		pos.FirstHit = hit
	}

	if pos.Remaining > eps {
		l.emit("position_reduced", map[string]interface{}{
			"position_id": pos.ID,
			"qty":         qty,
			"price":       price,
			"reason":      reason,
			"remaining":   pos.Remaining,
			"realized_r":  pos.RealizedR,
		})
		return
	}
	pos.Remaining = 0
	l.finalize(pos, price, reason, now)
}

func (l *Ledger) finalize(pos *Position, exitPrice float64, reason string, now time.Time) {
	trade := ClosedTrade{
		ID:             pos.ID,
		SignalID:       pos.SignalID,
		Strategy:       pos.Strategy,
		Side:           pos.Side,
		Session:        pos.Session,
		EntryPrice:     pos.EntryPrice,
		EntryFillPrice: pos.EntryFillPrice,
		ExitPrice:      exitPrice,
		EntryTime:      pos.EntryTime,
		ExitTime:       now,
		HoldMinutes:    now.Sub(pos.EntryTime).Minutes(),
		FirstHit:       pos.FirstHit,
		ExitReason:     reason,
		Result:         Classify(pos.RealizedR),
		RealizedPnl:    pos.RealizedPnl,
		RealizedR:      pos.RealizedR,
		FeesPaid:       pos.FeesPaid,
		MFE:            pos.MFE,
		MAE:            pos.MAE,
		Day:            l.DayKey(now),
	}

	delete(l.positions, pos.ID)
	for i, id := range l.positionOrder {
		if id == pos.ID {
			l.positionOrder = append(l.positionOrder[:i], l.positionOrder[i+1:]...)
			break
		}
	}
	l.recent = append(l.recent, trade)
	if len(l.recent) > RecentCap {
		l.recent = l.recent[len(l.recent)-RecentCap:]
	}
	l.history = append(l.history, trade)
	if len(l.history) > HistoryCap {
		l.history = l.history[len(l.history)-HistoryCap:]
	}

	l.emit("position_closed", map[string]interface{}{
		"position_id": trade.ID,
		"signal_id":   trade.SignalID,
		"reason":      trade.ExitReason,
		"result":      trade.Result,
		"realized_r":  trade.RealizedR,
		"hold_min":    trade.HoldMinutes,
	})
	for _, fn := range l.observers {
		fn(trade)
	}
}

func (l *Ledger) removePending(signalID string) {
	delete(l.pending, signalID)
	for i, id := range l.pendingOrder {
		if id == signalID {
			l.pendingOrder = append(l.pendingOrder[:i], l.pendingOrder[i+1:]...)
			break
		}
	}
}

func (l *Ledger) feeRate() float64 {
	// FeePercent 按百分比数值存储：0.02 表示 0.02%
	return l.settings.FeePercent / 100
}

// newID：signal id + 序号的命名 UUID，重放时 id 也保持确定。
func (l *Ledger) newID(signalID string) string {
	l.seq++
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("pos:%s:%d", signalID, l.seq))).String()
}

func (l *Ledger) emit(event string, fields map[string]interface{}) {
	if l.sink != nil {
		l.sink(event, fields)
	}
}

// ---- 只读访问，全部返回拷贝 ----

func (l *Ledger) Pending() []PendingTrade {
	out := make([]PendingTrade, 0, len(l.pendingOrder))
	for _, id := range l.pendingOrder {
		out = append(out, *l.pending[id])
	}
	return out
}

func (l *Ledger) Positions() []Position {
	out := make([]Position, 0, len(l.positionOrder))
	for _, id := range l.positionOrder {
		out = append(out, *l.positions[id])
	}
	return out
}

// Position 返回单仓拷贝。
func (l *Ledger) Position(id string) (Position, bool) {
	pos, ok := l.positions[id]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

func (l *Ledger) Recent() []ClosedTrade {
	return append([]ClosedTrade(nil), l.recent...)
}

func (l *Ledger) History() []ClosedTrade {
	return append([]ClosedTrade(nil), l.history...)
}

// HistoryForDay 取指定日历日的平仓记录。
func (l *Ledger) HistoryForDay(day string) []ClosedTrade {
	var out []ClosedTrade
	for _, t := range l.history {
		if t.Day == day {
			out = append(out, t)
		}
	}
	return out
}

func (l *Ledger) OpenCount() int    { return len(l.positionOrder) }
func (l *Ledger) PendingCount() int { return len(l.pendingOrder) }

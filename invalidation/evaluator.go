package invalidation

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"trade-sim-go/config"
	"trade-sim-go/ledger"
	"trade-sim-go/market"
)

// EventSink 结构化事件出口。
type EventSink func(event string, fields map[string]interface{})

// Context 一次评估的只读上下文。Market 是推送来的最新盘口上下文，
// objective 路径在它比最后一根 bar 新时把它当作最鲜活的 depth 读数。
type Context struct {
	Signals *market.SignalCache
	Bars    *market.BarWindow
	Market  *market.MarketContext
	Now     time.Time
}

// KPI objective 路径对外暴露的每仓位评分快照。
type KPI struct {
	PositionID   string    `json:"positionId"`
	Prints       float64   `json:"prints"`
	Depth        float64   `json:"depth"`
	Combined     float64   `json:"combined"`
	ActiveTier   Tier      `json:"activeTier,omitempty"`
	PersistSince time.Time `json:"persistSince,omitempty"`
}

// Evaluator 失效评估器。两条策略互斥，由 Objective.Enabled 选择，
// 输出同一种事件形态。非并发安全，引擎串行驱动。
type Evaluator struct {
	settings config.TradingSettings
	book     *ledger.Ledger

	events []*Event
	byID   map[string]*Event
	meta   map[string]*positionMeta

	sink EventSink
	seq  uint64
}

func NewEvaluator(settings config.TradingSettings, book *ledger.Ledger, sink EventSink) *Evaluator {
	return &Evaluator{
		settings: config.Clamp(settings),
		book:     book,
		byID:     make(map[string]*Event),
		meta:     make(map[string]*positionMeta),
		sink:     sink,
	}
}

// SetSettings 热更新评估参数。
func (e *Evaluator) SetSettings(s config.TradingSettings) {
	e.settings = config.Clamp(s)
}

// Evaluate 对全部持仓跑一轮评估。返回本轮新产生的事件数。
func (e *Evaluator) Evaluate(ctx Context) int {
	fired := 0
	for _, pos := range e.book.Positions() {
		meta := e.ensureMeta(pos, ctx)
		var ev *Event
		if e.settings.Objective.Enabled {
			ev = e.evaluateObjective(pos, meta, ctx)
		} else if e.settings.Invalidation.Enabled {
			ev = e.evaluateLegacy(pos, meta, ctx)
		}
		if ev != nil {
			fired++
		}
	}
	return fired
}

// ensureMeta 首次见到仓位时捕获入场 bar 的累计 delta 与 POC。
func (e *Evaluator) ensureMeta(pos ledger.Position, ctx Context) *positionMeta {
	meta, ok := e.meta[pos.ID]
	if !ok {
		meta = &positionMeta{}
		e.meta[pos.ID] = meta
	}
	if !meta.entryCaptured && ctx.Bars != nil {
		if bar, ok := ctx.Bars.Last(); ok {
			meta.entryBarTs = bar.Ts
			meta.entryCumDelta = bar.CumDelta
			meta.entryPOC = bar.POC
			meta.entryCaptured = true
		}
	}
	return meta
}

func (e *Evaluator) evaluateLegacy(pos ledger.Position, meta *positionMeta, ctx Context) *Event {
	s := e.settings.Invalidation
	if !meta.lastEventAt.IsZero() && ctx.Now.Sub(meta.lastEventAt) < legacyCooldown {
		return nil
	}
	fired, score := scoreLegacy(pos, meta, ctx, s, e.settings.TickSize)
	if len(fired) == 0 {
		return nil
	}
	tier := legacyTier(score)
	ev := &Event{
		ID:          e.newID(pos.ID),
		PositionID:  pos.ID,
		Policy:      PolicyLegacy,
		Ts:          ctx.Now,
		Triggers:    fired,
		Score:       score,
		Tier:        tier,
		Recommended: legacyAction(tier),
	}
	for _, t := range fired {
		ev.Evidence = append(ev.Evidence, EvidencePair{Label: t.Kind.String(), Value: t.Evidence})
	}
	meta.lastEventAt = ctx.Now
	e.push(ev)

	if s.AutoClose && score >= s.AutoCloseScore {
		e.autoClose(ev, ctx.Now)
	}
	return ev
}

func (e *Evaluator) evaluateObjective(pos ledger.Position, meta *positionMeta, ctx Context) *Event {
	s := e.settings.Objective
	sc := scoreObjective(pos, meta, ctx, s)
	meta.lastPrints = sc.prints
	meta.lastDepth = sc.depth
	meta.lastScore = sc.combined

	// 双确认：两个子分都过线才起跑持续性计时；任一回落即清零
	confirmed := sc.prints >= s.PrintsThreshold && sc.depth >= s.DepthThreshold
	if confirmed {
		if meta.persistStart.IsZero() {
			meta.persistStart = ctx.Now
			if bar, ok := ctx.Bars.Last(); ok {
				meta.persistStartBar = bar.Index
			}
		}
	} else {
		meta.persistStart = time.Time{}
	}

	// 滞回带：合成分跌到激活档位阈值减去滞回幅度之下，解除档位
	if meta.activeTier != "" && sc.combined < tierThreshold(meta.activeTier, s)-s.Hysteresis {
		meta.activeTier = ""
	}

	severeOverride := sc.severeSweep && s.SweepOverride

	// 宽限期：除 severe 扫单外全部压制
	inGrace := s.GraceSeconds > 0 && ctx.Now.Sub(pos.EntryTime).Seconds() < s.GraceSeconds
	if inGrace && !severeOverride {
		return nil
	}

	if !confirmed && !severeOverride {
		return nil
	}

	// 持续性：秒数或 bar 数满足其一；severe 扫单直接放行
	if !severeOverride {
		elapsed := ctx.Now.Sub(meta.persistStart).Seconds()
		barsSince := 0
		if ctx.Bars != nil {
			barsSince = ctx.Bars.SinceIndex(meta.persistStartBar) - 1
			if barsSince < 0 {
				barsSince = 0
			}
		}
		secOK := s.PersistSeconds > 0 && elapsed >= s.PersistSeconds
		barOK := s.PersistBars > 0 && barsSince >= s.PersistBars
		if !secOK && !barOK && (s.PersistSeconds > 0 || s.PersistBars > 0) {
			return nil
		}
	}

	tier := objectiveTier(sc.combined, s)
	if severeOverride && tierRank(tier) < tierRank(TierSevere) {
		tier = TierSevere
	}
	if tier == "" {
		return nil
	}
	// 升档重发；同档且已激活则压制
	if meta.activeTier != "" && tierRank(tier) <= tierRank(meta.activeTier) {
		return nil
	}

	action := objectiveAction(tier)
	protected := action == ActionClose && winnerProtected(pos, sc, s)
	if protected {
		action = ActionTighten
	}

	ev := &Event{
		ID:          e.newID(pos.ID),
		PositionID:  pos.ID,
		Policy:      PolicyObjective,
		Ts:          ctx.Now,
		PrintsScore: sc.prints,
		DepthScore:  sc.depth,
		Score:       sc.combined,
		Tier:        tier,
		Evidence:    sc.evidence,
		Recommended: action,
	}
	if protected {
		ev.Evidence = append(ev.Evidence, EvidencePair{Label: "winner_protection", Value: fmt.Sprintf("mfe %.2fR, close downgraded", pos.MFE)})
	}
	meta.activeTier = tier
	e.push(ev)

	if s.AutoCloseSevere && tier == TierSevere && !protected {
		e.autoClose(ev, ctx.Now)
	}
	return ev
}

// autoClose 原子地平仓并把事件标记为已解决。
func (e *Evaluator) autoClose(ev *Event, now time.Time) {
	if e.book.FlattenPosition(ev.PositionID, nil, ledger.ReasonInvalidation, now) {
		ev.AutoClosed = true
		ev.Resolved = true
		ev.ActionTaken = ActionClose
	}
}

// ApplyAction 手动处理事件：close / reduce(50%) / tighten / hold。
// hold 只标记解决，不动仓位。事件不存在或已解决返回 false。
func (e *Evaluator) ApplyAction(eventID string, action Action, now time.Time) bool {
	ev, ok := e.byID[eventID]
	if !ok || ev.Resolved {
		return false
	}
	switch action {
	case ActionClose:
		e.book.FlattenPosition(ev.PositionID, nil, ledger.ReasonInvalidation, now)
	case ActionReduce:
		e.book.ReducePosition(ev.PositionID, 0.5, now)
	case ActionTighten:
		e.book.TightenStop(ev.PositionID)
	case ActionHold:
		// 仅解决
	default:
		return false
	}
	ev.Resolved = true
	ev.ActionTaken = action
	e.emit("invalidation_action", map[string]interface{}{
		"event_id":    eventID,
		"position_id": ev.PositionID,
		"action":      string(action),
	})
	return true
}

// OnPositionClosed 平仓清理：未决事件标记解决，私有记忆丢弃。
// 由引擎注册为 ledger 平仓回调。
func (e *Evaluator) OnPositionClosed(trade ledger.ClosedTrade) {
	for _, ev := range e.events {
		if ev.PositionID == trade.ID && !ev.Resolved {
			ev.Resolved = true
		}
	}
	delete(e.meta, trade.ID)
}

// Events 事件环快照（拷贝），旧的在前。
func (e *Evaluator) Events() []Event {
	out := make([]Event, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, *ev)
	}
	return out
}

// Event 按 id 取单个事件拷贝。
func (e *Evaluator) Event(id string) (Event, bool) {
	ev, ok := e.byID[id]
	if !ok {
		return Event{}, false
	}
	return *ev, true
}

// KPIs objective 路径的每仓位评分快照，按持仓顺序输出。
func (e *Evaluator) KPIs() []KPI {
	var out []KPI
	for _, pos := range e.book.Positions() {
		meta, ok := e.meta[pos.ID]
		if !ok {
			continue
		}
		out = append(out, KPI{
			PositionID:   pos.ID,
			Prints:       meta.lastPrints,
			Depth:        meta.lastDepth,
			Combined:     meta.lastScore,
			ActiveTier:   meta.activeTier,
			PersistSince: meta.persistStart,
		})
	}
	return out
}

func (e *Evaluator) push(ev *Event) {
	e.events = append(e.events, ev)
	e.byID[ev.ID] = ev
	if len(e.events) > EventRingCap {
		evict := e.events[0]
		e.events = e.events[1:]
		delete(e.byID, evict.ID)
	}
	e.emit("invalidation_event", map[string]interface{}{
		"event_id":    ev.ID,
		"position_id": ev.PositionID,
		"policy":      string(ev.Policy),
		"score":       ev.Score,
		"tier":        string(ev.Tier),
		"recommended": string(ev.Recommended),
		"auto_closed": ev.AutoClosed,
	})
}

func (e *Evaluator) newID(positionID string) string {
	e.seq++
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("inv:%s:%d", positionID, e.seq))).String()
}

func (e *Evaluator) emit(event string, fields map[string]interface{}) {
	if e.sink != nil {
		e.sink(event, fields)
	}
}

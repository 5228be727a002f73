package risk

import (
	"fmt"
	"time"

	"trade-sim-go/config"
	"trade-sim-go/ledger"
	"trade-sim-go/market"
)

// AuditLogCap 审计日志容量，最旧的先淘汰。
const AuditLogCap = 100

// EventSink 结构化事件出口。
type EventSink func(event string, fields map[string]interface{})

// Guardrails 日内风控状态机，独立于任何仓位。
// 所有时间都来自事件流，时钟偏移只影响日切边界。
type Guardrails struct {
	settings config.RiskGuardrailSettings

	day          string
	resetAt      time.Time
	tradesToday  int
	netRToday    float64
	consecLosses int
	sessions     map[market.Session]SessionCounters

	lossCooldownUntil time.Time
	dailyStopUntil    time.Time
	lossCooldownArmed bool // 每个连亏序列只武装一次
	dailyStopArmed    bool // 每日只武装一次

	lastBlock *Block
	audit     []AuditEntry

	clockOffsetMs int64
	sink          EventSink
}

func New(settings config.RiskGuardrailSettings, sink EventSink) *Guardrails {
	return &Guardrails{
		settings: settings,
		sessions: make(map[market.Session]SessionCounters),
		sink:     sink,
	}
}

// SetSettings 热更新上限；已武装的冷却不回收。
func (g *Guardrails) SetSettings(s config.RiskGuardrailSettings) { g.settings = s }

// SetClockOffset 校正服务器时差（毫秒）。
func (g *Guardrails) SetClockOffset(ms int64) { g.clockOffsetMs = ms }

func (g *Guardrails) adjusted(ts time.Time) time.Time {
	return ts.Add(time.Duration(g.clockOffsetMs) * time.Millisecond).UTC()
}

func (g *Guardrails) dayKey(ts time.Time) string {
	return g.adjusted(ts).Format("2006-01-02")
}

// nextReset 下一次日切时刻（本地事件时钟）。
func (g *Guardrails) nextReset(ts time.Time) time.Time {
	adj := g.adjusted(ts)
	next := adj.Truncate(24 * time.Hour).Add(24 * time.Hour)
	return next.Add(-time.Duration(g.clockOffsetMs) * time.Millisecond)
}

// rollDay 日历日变化时全量复位：计数、冷却、封锁。
func (g *Guardrails) rollDay(now time.Time) {
	key := g.dayKey(now)
	if key == g.day {
		return
	}
	g.day = key
	g.resetAt = now
	g.tradesToday = 0
	g.netRToday = 0
	g.consecLosses = 0
	g.sessions = make(map[market.Session]SessionCounters)
	g.lossCooldownUntil = time.Time{}
	g.dailyStopUntil = time.Time{}
	g.lossCooldownArmed = false
	g.dailyStopArmed = false
	g.lastBlock = nil
	g.record(now, "day_reset", key)
}

// ResetDay 手动复位（跳过日切判断）。
func (g *Guardrails) ResetDay(now time.Time) {
	g.day = ""
	g.rollDay(now)
}

// activeBlocks 由当前计数对照上限即时推导，不单独存储。
func (g *Guardrails) activeBlocks(now time.Time) []Block {
	s := g.settings
	var blocks []Block
	dayEnd := g.nextReset(now)

	if s.MaxDailyLossR > 0 && g.netRToday <= -s.MaxDailyLossR {
		// 配置了日亏冷却时只锁到冷却结束，否则锁到日切。
		exp := dayEnd
		expired := false
		if s.DailyStopCooldown > 0 && !g.dailyStopUntil.IsZero() {
			exp = g.dailyStopUntil
			expired = !now.Before(g.dailyStopUntil)
		}
		if !expired {
			blocks = append(blocks, Block{
				Kind:      BlockDailyLoss,
				Reason:    fmt.Sprintf("daily loss %.2fR <= -%.2fR", g.netRToday, s.MaxDailyLossR),
				ExpiresAt: exp,
			})
		}
	}
	if s.MaxDailyTrades > 0 && g.tradesToday >= s.MaxDailyTrades {
		blocks = append(blocks, Block{
			Kind:      BlockDailyTrades,
			Reason:    fmt.Sprintf("daily trade cap %d reached", s.MaxDailyTrades),
			ExpiresAt: dayEnd,
		})
	}
	if s.MaxConsecLosses > 0 && g.consecLosses >= s.MaxConsecLosses {
		blocks = append(blocks, Block{
			Kind:      BlockConsecLosses,
			Reason:    fmt.Sprintf("%d consecutive losses", g.consecLosses),
			ExpiresAt: dayEnd,
		})
	}
	if !g.lossCooldownUntil.IsZero() && now.Before(g.lossCooldownUntil) {
		blocks = append(blocks, Block{
			Kind:      BlockLossCooldown,
			Reason:    "loss streak cooldown",
			ExpiresAt: g.lossCooldownUntil,
		})
	}
	if !g.dailyStopUntil.IsZero() && now.Before(g.dailyStopUntil) {
		blocks = append(blocks, Block{
			Kind:      BlockDailyStopCooldown,
			Reason:    "daily stop cooldown",
			ExpiresAt: g.dailyStopUntil,
		})
	}
	for _, sess := range market.Sessions {
		sc := g.sessions[sess]
		if s.MaxSessionTrades > 0 && sc.Trades >= s.MaxSessionTrades {
			blocks = append(blocks, Block{
				Kind:      BlockSessionTrades,
				Session:   sess,
				Reason:    fmt.Sprintf("session %s trade cap %d reached", sess, s.MaxSessionTrades),
				ExpiresAt: dayEnd,
			})
		}
		if s.MaxSessionLosses > 0 && sc.Losses >= s.MaxSessionLosses {
			blocks = append(blocks, Block{
				Kind:      BlockSessionLosses,
				Session:   sess,
				Reason:    fmt.Sprintf("session %s loss cap %d reached", sess, s.MaxSessionLosses),
				ExpiresAt: dayEnd,
			})
		}
	}
	for _, sess := range s.BlockedSessions {
		blocks = append(blocks, Block{
			Kind:    BlockSessionDisallowed,
			Session: sess,
			Reason:  fmt.Sprintf("session %s disallowed", sess),
		})
	}
	for _, w := range s.NewsWindows {
		if inWindow(g.adjusted(now), w) {
			blocks = append(blocks, Block{
				Kind:   BlockNewsWindow,
				Reason: fmt.Sprintf("news window %s", w.Label),
			})
		}
	}
	return blocks
}

func inWindow(adj time.Time, w config.NewsWindow) bool {
	start, err1 := parseClock(w.Start)
	end, err2 := parseClock(w.End)
	if err1 != nil || err2 != nil {
		return false
	}
	minute := adj.Hour()*60 + adj.Minute()
	if start <= end {
		return minute >= start && minute < end
	}
	// 跨午夜窗口
	return minute >= start || minute < end
}

func parseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, err
	}
	return h*60 + m, nil
}

// EvaluateEntry 入场裁决：时段级封锁只拦对应时段，其余全拦。
func (g *Guardrails) EvaluateEntry(session market.Session, now time.Time) Decision {
	g.rollDay(now)
	for _, b := range g.activeBlocks(now) {
		if b.Session != "" && b.Session != session {
			continue
		}
		blocked := b
		g.lastBlock = &blocked
		g.record(now, "entry_denied", b.Reason)
		if g.sink != nil {
			g.sink("guardrail_denied", map[string]interface{}{
				"kind":    string(b.Kind),
				"session": string(session),
				"reason":  b.Reason,
			})
		}
		return Decision{Allowed: false, Reason: b.Reason, ExpiresAt: b.ExpiresAt}
	}
	return Decision{Allowed: true}
}

// AllowEntry 实现 ledger.EntryGuard。
func (g *Guardrails) AllowEntry(sig market.Signal, auto bool, now time.Time) bool {
	return g.EvaluateEntry(sig.Session, now).Allowed
}

// OnClosedTrade 平仓入账：更新全局与分时段计数，非亏损清空连亏，
// 必要时武装冷却（连亏冷却每序列一次，日亏冷却每日一次）。
func (g *Guardrails) OnClosedTrade(trade ledger.ClosedTrade) {
	now := trade.ExitTime
	g.rollDay(now)

	g.tradesToday++
	g.netRToday += trade.RealizedR
	sc := g.sessions[trade.Session]
	sc.Trades++
	sc.NetR += trade.RealizedR

	if trade.Result == ledger.ResultLoss {
		g.consecLosses++
		sc.Losses++
	} else {
		g.consecLosses = 0
		g.lossCooldownArmed = false
	}
	g.sessions[trade.Session] = sc

	s := g.settings
	if s.LossCooldownTrig > 0 && g.consecLosses >= s.LossCooldownTrig && !g.lossCooldownArmed {
		g.lossCooldownUntil = now.Add(time.Duration(s.LossCooldownMin * float64(time.Minute)))
		g.lossCooldownArmed = true
		g.record(now, "loss_cooldown_armed", fmt.Sprintf("%d losses in a row", g.consecLosses))
	}
	if s.MaxDailyLossR > 0 && g.netRToday <= -s.MaxDailyLossR && !g.dailyStopArmed {
		g.dailyStopArmed = true
		if s.DailyStopCooldown > 0 {
			g.dailyStopUntil = now.Add(time.Duration(s.DailyStopCooldown * float64(time.Minute)))
		}
		g.record(now, "daily_stop_armed", fmt.Sprintf("netR %.2f", g.netRToday))
	}
}

// Status 派生汇总：locked > cooldown > limited > ok。
func (g *Guardrails) Status(now time.Time) Status {
	g.rollDay(now)
	blocks := g.activeBlocks(now)
	status := StatusOK
	for _, b := range blocks {
		switch b.Kind {
		case BlockDailyLoss, BlockConsecLosses:
			return StatusLocked
		case BlockLossCooldown, BlockDailyStopCooldown:
			status = StatusCooldown
		default:
			if status == StatusOK {
				status = StatusLimited
			}
		}
	}
	return status
}

// State 当前状态快照（拷贝）。
func (g *Guardrails) State(now time.Time) State {
	g.rollDay(now)
	sessions := make(map[market.Session]SessionCounters, len(g.sessions))
	for k, v := range g.sessions {
		sessions[k] = v
	}
	var last *Block
	if g.lastBlock != nil {
		b := *g.lastBlock
		last = &b
	}
	return State{
		Day:               g.day,
		ResetAt:           g.resetAt,
		TradesToday:       g.tradesToday,
		NetRToday:         g.netRToday,
		ConsecLosses:      g.consecLosses,
		Sessions:          sessions,
		Blocks:            g.activeBlocks(now),
		LossCooldownUntil: g.lossCooldownUntil,
		DailyStopUntil:    g.dailyStopUntil,
		LastBlock:         last,
		AuditLog:          append([]AuditEntry(nil), g.audit...),
	}
}

func (g *Guardrails) record(ts time.Time, event, detail string) {
	g.audit = append(g.audit, AuditEntry{Ts: ts, Event: event, Detail: detail})
	if len(g.audit) > AuditLogCap {
		g.audit = g.audit[len(g.audit)-AuditLogCap:]
	}
}

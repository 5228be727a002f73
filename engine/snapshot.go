package engine

import (
	"encoding/json"
	"time"

	"trade-sim-go/config"
	"trade-sim-go/invalidation"
	"trade-sim-go/ledger"
	"trade-sim-go/perf"
	"trade-sim-go/risk"
)

// Snapshot 引擎状态的不可变快照：全部切片与 map 都是拷贝，
// 调用方拿到后怎么改都不影响核心。
type Snapshot struct {
	Version       uint64                 `json:"version"`
	Ts            time.Time              `json:"ts"`
	Settings      config.TradingSettings `json:"settings"`
	Pending       []ledger.PendingTrade  `json:"pending"`
	Positions     []ledger.Position      `json:"positions"`
	Recent        []ledger.ClosedTrade   `json:"recent"`
	History       []ledger.ClosedTrade   `json:"history"`
	Daily         perf.DailyPerformance  `json:"daily"`
	Events        []invalidation.Event   `json:"events"`
	KPIs          []invalidation.KPI     `json:"kpis,omitempty"`
	Guardrails    risk.State             `json:"guardrails"`
	Status        risk.Status            `json:"status"`
	ClockOffsetMs int64                  `json:"clockOffsetMs"`
}

// Snapshot 生成当前状态快照。同一版本号下内容恒定。
func (e *Engine) Snapshot() Snapshot {
	day := e.book.DayKey(e.lastEventTime)
	history := e.book.History()
	snap := Snapshot{
		Version:       e.version,
		Ts:            e.lastEventTime,
		Settings:      e.settings,
		Pending:       e.book.Pending(),
		Positions:     e.book.Positions(),
		Recent:        e.book.Recent(),
		History:       history,
		Daily:         perf.ComputeDaily(history, day),
		Events:        e.eval.Events(),
		Guardrails:    e.guard.State(e.lastEventTime),
		Status:        e.guard.Status(e.lastEventTime),
		ClockOffsetMs: e.clockOffsetMs,
	}
	if e.settings.Objective.Enabled {
		snap.KPIs = e.eval.KPIs()
	}
	e.mon.SetNetRToday(snap.Guardrails.NetRToday)
	e.mon.SetGuardrailStatus(statusLevel(snap.Status))
	return snap
}

func statusLevel(s risk.Status) int {
	switch s {
	case risk.StatusLimited:
		return 1
	case risk.StatusCooldown:
		return 2
	case risk.StatusLocked:
		return 3
	default:
		return 0
	}
}

// PersistSnapshot 落盘载荷：只含配置与全量历史，其余状态开盘重建。
type PersistSnapshot struct {
	Settings config.TradingSettings `json:"settings"`
	History  []ledger.ClosedTrade   `json:"history"`
}

// PersistSnapshot 序列化可落盘状态。
func (e *Engine) PersistSnapshot() ([]byte, error) {
	return json.Marshal(PersistSnapshot{
		Settings: e.settings,
		History:  e.book.History(),
	})
}

// ParsePersistSnapshot 解析落盘载荷。坏输入不报错：配置回退默认值，
// 历史里坏形状的记录被丢弃。
func ParsePersistSnapshot(raw []byte) PersistSnapshot {
	out := PersistSnapshot{Settings: config.Default()}
	if len(raw) == 0 {
		return out
	}
	loaded := PersistSnapshot{Settings: config.Default()}
	if err := json.Unmarshal(raw, &loaded); err != nil {
		return out
	}
	out.Settings = config.Clamp(loaded.Settings)
	out.History = sanitizeHistory(loaded.History)
	return out
}

// sanitizeHistory 丢弃缺 id 或缺日期键的记录。
func sanitizeHistory(trades []ledger.ClosedTrade) []ledger.ClosedTrade {
	out := make([]ledger.ClosedTrade, 0, len(trades))
	for _, t := range trades {
		if t.ID == "" || t.Day == "" {
			continue
		}
		out = append(out, t)
	}
	return out
}

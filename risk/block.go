package risk

import (
	"time"

	"trade-sim-go/market"
)

// BlockKind 风控封锁类型。
type BlockKind string

const (
	BlockDailyLoss         BlockKind = "daily_loss"
	BlockDailyTrades       BlockKind = "daily_trades"
	BlockConsecLosses      BlockKind = "consec_losses"
	BlockSessionTrades     BlockKind = "session_trades"
	BlockSessionLosses     BlockKind = "session_losses"
	BlockSessionDisallowed BlockKind = "session_disallowed"
	BlockNewsWindow        BlockKind = "news_window"
	BlockLossCooldown      BlockKind = "loss_cooldown"
	BlockDailyStopCooldown BlockKind = "daily_stop_cooldown"
)

// Block 一条活跃封锁。Session 为空表示对全部时段生效；
// ExpiresAt 零值表示持续到下一次日切。
type Block struct {
	Kind      BlockKind      `json:"kind"`
	Session   market.Session `json:"session,omitempty"`
	Reason    string         `json:"reason"`
	ExpiresAt time.Time      `json:"expiresAt,omitempty"`
}

// Decision 入场裁决。拒绝不是错误：结构化给出原因与解封时间。
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Reason    string    `json:"reason,omitempty"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

// Status 汇总状态，派生值不落盘。
type Status string

const (
	StatusOK       Status = "ok"
	StatusLimited  Status = "limited"
	StatusCooldown Status = "cooldown"
	StatusLocked   Status = "locked"
)

// AuditEntry 审计日志条目。
type AuditEntry struct {
	Ts     time.Time `json:"ts"`
	Event  string    `json:"event"`
	Detail string    `json:"detail"`
}

// SessionCounters 分时段计数。
type SessionCounters struct {
	Trades int     `json:"trades"`
	Losses int     `json:"losses"`
	NetR   float64 `json:"netR"`
}

// State 日内风控状态机的全部可见状态。
type State struct {
	Day               string                             `json:"day"`
	ResetAt           time.Time                          `json:"resetAt"`
	TradesToday       int                                `json:"tradesToday"`
	NetRToday         float64                            `json:"netRToday"`
	ConsecLosses      int                                `json:"consecLosses"`
	Sessions          map[market.Session]SessionCounters `json:"sessions"`
	Blocks            []Block                            `json:"blocks"`
	LossCooldownUntil time.Time                          `json:"lossCooldownUntil"`
	DailyStopUntil    time.Time                          `json:"dailyStopUntil"`
	LastBlock         *Block                             `json:"lastBlock,omitempty"`
	AuditLog          []AuditEntry                       `json:"auditLog"`
}

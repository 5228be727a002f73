package ledger

import (
	"time"

	"trade-sim-go/market"
)

// FirstHit 记录仓位第一次触发的出场类型。
type FirstHit string

const (
	FirstHitNone         FirstHit = "none"
	FirstHitTP1          FirstHit = "tp1"
	FirstHitTP2          FirstHit = "tp2"
	FirstHitStop         FirstHit = "stop"
	FirstHitTimeStop     FirstHit = "timestop"
	FirstHitInvalidation FirstHit = "invalidation"
)

// 出场原因常量。reason 同时出现在 ClosedTrade 与事件日志里。
const (
	ReasonTP1          = "tp1"
	ReasonTP2          = "tp2"
	ReasonStop         = "stop"
	ReasonBreakeven    = "breakeven"
	ReasonTimeStop     = "timestop"
	ReasonInvalidation = "invalidation"
	ReasonManual       = "manual"
)

// 结果分类。
const (
	ResultWin       = "win"
	ResultLoss      = "loss"
	ResultBreakeven = "breakeven"
)

// PendingTrade 等待回踩触发的挂单，按信号 id 唯一。
type PendingTrade struct {
	SignalID    string          `json:"signalId"`
	Side        market.Side     `json:"side"`
	Strategy    market.Strategy `json:"strategy"`
	Session     market.Session  `json:"session"`
	Entry       float64         `json:"entry"`
	Stop        float64         `json:"stop"`
	Target1     float64         `json:"target1"`
	Target2     float64         `json:"target2"`
	RiskPerUnit float64         `json:"riskPerUnit"`
	CreatedAt   time.Time       `json:"createdAt"`
	ExpiresAt   time.Time       `json:"expiresAt"`
	AutoTaken   bool            `json:"autoTaken"`
}

// Position 持仓，唯一的可变敞口单元。
// 不变量：0 <= Remaining <= Size；Remaining 归零即原子地转为 ClosedTrade。
type Position struct {
	ID             string          `json:"id"`
	SignalID       string          `json:"signalId"`
	Side           market.Side     `json:"side"`
	Strategy       market.Strategy `json:"strategy"`
	Session        market.Session  `json:"session"`
	EntryPrice     float64         `json:"entryPrice"`     // 请求入场价
	EntryFillPrice float64         `json:"entryFillPrice"` // 含滑点成交价
	Stop           float64         `json:"stop"`           // TP1 后会移动
	Target1        float64         `json:"target1"`
	Target2        float64         `json:"target2"`
	EntryTime      time.Time       `json:"entryTime"`
	EntryBarIndex  int             `json:"entryBarIndex"`
	Size           float64         `json:"size"`
	Remaining      float64         `json:"remaining"`
	PartialSize    float64         `json:"partialSize"`
	RiskAmount     float64         `json:"riskAmount"` // 账户风险比例，R 的分母
	RiskPerUnit    float64         `json:"riskPerUnit"`
	TimeStopAt     time.Time       `json:"timeStopAt"` // 零值表示未启用
	Target1Hit     bool            `json:"target1Hit"`
	FirstHit       FirstHit        `json:"firstHit"`
	RealizedPnl    float64         `json:"realizedPnl"` // 含手续费
	RealizedR      float64         `json:"realizedR"`
	FeesPaid       float64         `json:"feesPaid"`
	MFE            float64         `json:"mfe"` // R，>= 0
	MAE            float64         `json:"mae"` // R，<= 0
	LastPrice      float64         `json:"lastPrice"`
}

// ProgressR 当前带符号的 R 进度。
func (p *Position) ProgressR(price float64) float64 {
	if p.RiskPerUnit == 0 {
		return 0
	}
	return (price - p.EntryFillPrice) * p.Side.Direction() / p.RiskPerUnit
}

// ClosedTrade 完全出场后的只读快照。
type ClosedTrade struct {
	ID             string          `json:"id"`
	SignalID       string          `json:"signalId"`
	Strategy       market.Strategy `json:"strategy"`
	Side           market.Side     `json:"side"`
	Session        market.Session  `json:"session"`
	EntryPrice     float64         `json:"entryPrice"`
	EntryFillPrice float64         `json:"entryFillPrice"`
	ExitPrice      float64         `json:"exitPrice"`
	EntryTime      time.Time       `json:"entryTime"`
	ExitTime       time.Time       `json:"exitTime"`
	HoldMinutes    float64         `json:"holdMinutes"`
	FirstHit       FirstHit        `json:"firstHit"`
	ExitReason     string          `json:"exitReason"`
	Result         string          `json:"result"`
	RealizedPnl    float64         `json:"realizedPnl"`
	RealizedR      float64         `json:"realizedR"`
	FeesPaid       float64         `json:"feesPaid"`
	MFE            float64         `json:"mfe"`
	MAE            float64         `json:"mae"`
	Day            string          `json:"day"`
}

// breakevenBandR：|R| 在该带内按保本计，不计入连亏也不算赢。
const breakevenBandR = 0.1

// Classify 按已实现 R 分胜负。
func Classify(realizedR float64) string {
	switch {
	case realizedR > breakevenBandR:
		return ResultWin
	case realizedR < -breakevenBandR:
		return ResultLoss
	default:
		return ResultBreakeven
	}
}

package market

import "time"

// Side 仓位方向。
type Side int

const (
	Long Side = iota + 1
	Short
)

// Direction 返回 +1/-1，便于带符号的价格运算。
func (s Side) Direction() float64 {
	if s == Short {
		return -1
	}
	return 1
}

// Opposite 返回反方向。
func (s Side) Opposite() Side {
	if s == Long {
		return Short
	}
	return Long
}

func (s Side) String() string {
	switch s {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return "unknown"
	}
}

// Session 交易时段标签（4个）。
type Session string

const (
	SessionAsia    Session = "asia"
	SessionLondon  Session = "london"
	SessionNewYork Session = "newyork"
	SessionOff     Session = "off"
)

// Sessions 固定顺序的全部时段，汇总统计按该顺序输出。
var Sessions = []Session{SessionAsia, SessionLondon, SessionNewYork, SessionOff}

// Strategy 信号策略标签（3个）。
type Strategy string

const (
	StrategyBreakout   Strategy = "breakout"
	StrategyReversal   Strategy = "reversal"
	StrategyAbsorption Strategy = "absorption"
)

// Strategies 固定顺序的全部策略标签。
var Strategies = []Strategy{StrategyBreakout, StrategyReversal, StrategyAbsorption}

// Trade represents a normalized execution tick. ID is the exchange trade id;
// batches are applied in (Ts, ID) order.
type Trade struct {
	ID         int64     `json:"id"`
	Price      float64   `json:"price"`
	Qty        float64   `json:"qty"`
	Ts         time.Time `json:"ts"`
	BuyerMaker bool      `json:"buyerMaker"`
}

// BookConfirmation 信号附带的盘口确认元数据（由外部盘口分析器产出）。
type BookConfirmation struct {
	Confirmed  bool    `json:"confirmed"`
	Confidence float64 `json:"confidence"`
	Absorption bool    `json:"absorption"`
	Sweep      bool    `json:"sweep"`
	Spoof      bool    `json:"spoof"`
}

// Signal 外部探测器产出的候选交易信号，核心只读。
type Signal struct {
	ID         string            `json:"id"`
	Ts         time.Time         `json:"ts"`
	Side       Side              `json:"side"`
	Strategy   Strategy          `json:"strategy"`
	Session    Session           `json:"session"`
	Entry      float64           `json:"entry"`
	Stop       float64           `json:"stop"`
	Target1    float64           `json:"target1"`
	Target2    float64           `json:"target2"`
	Confidence float64           `json:"confidence"` // 0-100
	Book       *BookConfirmation `json:"book,omitempty"`
}

// SweepEvent 扫单事件（外部盘口分析器产出，随 Bar 或 MarketContext 下发）。
type SweepEvent struct {
	Ts     time.Time `json:"ts"`
	Side   Side      `json:"side"` // 被扫的方向：Long 表示买方流动性被扫
	Volume float64   `json:"volume"`
	Levels int       `json:"levels"`
}

// DepthMetrics 盘口衍生指标，按 bar 聚合。
type DepthMetrics struct {
	AvgOFI          float64      `json:"avgOfi"`
	NetOFI          float64      `json:"netOfi"`
	BidReplenish    float64      `json:"bidReplenish"` // 最优买档补充率 0-1+
	AskReplenish    float64      `json:"askReplenish"`
	AbsorptionBuy   bool         `json:"absorptionBuy"`
	AbsorptionSell  bool         `json:"absorptionSell"`
	Sweeps          []SweepEvent `json:"sweeps,omitempty"`
	SpoofCount      int          `json:"spoofCount"`
	StackedBuyRows  int          `json:"stackedBuyRows"` // 连续同向失衡档数
	StackedSellRows int          `json:"stackedSellRows"`
	StackedPrice    float64      `json:"stackedPrice"` // 失衡带起始价
}

// Bar is one footprint bar: time bucket, OHLC, per-bar delta and running
// cumulative delta, point of control, plus optional depth metrics.
type Bar struct {
	Index     int           `json:"index"`
	Ts        time.Time     `json:"ts"`
	Open      float64       `json:"open"`
	High      float64       `json:"high"`
	Low       float64       `json:"low"`
	Close     float64       `json:"close"`
	Volume    float64       `json:"volume"`
	Delta     float64       `json:"delta"`
	CumDelta  float64       `json:"cumDelta"`
	POC       float64       `json:"poc"`
	Depth     *DepthMetrics `json:"depth,omitempty"`
}

// MarketContext 当前盘口上下文，由 UpdateMarketContext 推送。
type MarketContext struct {
	Ts           time.Time    `json:"ts"`
	OFI          float64      `json:"ofi"`
	BidReplenish float64      `json:"bidReplenish"`
	AskReplenish float64      `json:"askReplenish"`
	Sweeps       []SweepEvent `json:"sweeps,omitempty"`
}

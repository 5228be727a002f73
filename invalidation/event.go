package invalidation

import "time"

// EventRingCap 失效事件环容量。
const EventRingCap = 200

// Tier 事件严重度分层。legacy 路径产出 low/medium/high，
// objective 路径产出 medium/high/severe。
type Tier string

const (
	TierLow    Tier = "low"
	TierMedium Tier = "medium"
	TierHigh   Tier = "high"
	TierSevere Tier = "severe"
)

func tierRank(t Tier) int {
	switch t {
	case TierLow:
		return 1
	case TierMedium:
		return 2
	case TierHigh:
		return 3
	case TierSevere:
		return 4
	default:
		return 0
	}
}

// Action 对失效事件可执行的处理。
type Action string

const (
	ActionClose   Action = "close"
	ActionReduce  Action = "reduce" // 固定减半
	ActionTighten Action = "tighten"
	ActionHold    Action = "hold"
)

// Policy 事件来自哪条评估路径。
type Policy string

const (
	PolicyLegacy    Policy = "legacy"
	PolicyObjective Policy = "objective"
)

// TriggerKind legacy 七个触发器的固定枚举。
type TriggerKind int

const (
	TriggerOppositeSignal TriggerKind = iota
	TriggerStackedImbalance
	TriggerDeltaFlip
	TriggerCumDeltaBreak
	TriggerPOCRecapture
	TriggerStaleDecay
	TriggerSweepNoFollow
	triggerKindCount
)

func (k TriggerKind) String() string {
	switch k {
	case TriggerOppositeSignal:
		return "opposite_signal"
	case TriggerStackedImbalance:
		return "stacked_imbalance"
	case TriggerDeltaFlip:
		return "delta_flip"
	case TriggerCumDeltaBreak:
		return "cum_delta_break"
	case TriggerPOCRecapture:
		return "poc_recapture"
	case TriggerStaleDecay:
		return "stale_decay"
	case TriggerSweepNoFollow:
		return "sweep_no_follow"
	default:
		return "unknown"
	}
}

// TriggerResult 单个触发器的输出：severity 0-1.5。
type TriggerResult struct {
	Kind     TriggerKind `json:"kind"`
	Severity float64     `json:"severity"`
	Evidence string      `json:"evidence"`
}

// EvidencePair 人类可读的证据对。
type EvidencePair struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Event 一次失效判定。追加写入有界环，最旧的先淘汰。
type Event struct {
	ID          string          `json:"id"`
	PositionID  string          `json:"positionId"`
	Policy      Policy          `json:"policy"`
	Ts          time.Time       `json:"ts"`
	Triggers    []TriggerResult `json:"triggers,omitempty"` // legacy
	PrintsScore float64         `json:"printsScore"`        // objective
	DepthScore  float64         `json:"depthScore"`
	Score       float64         `json:"score"` // 0-100 合成分
	Tier        Tier            `json:"tier"`
	Evidence    []EvidencePair  `json:"evidence"`
	Recommended Action          `json:"recommended"`
	AutoClosed  bool            `json:"autoClosed"`
	Resolved    bool            `json:"resolved"`
	ActionTaken Action          `json:"actionTaken,omitempty"`
}

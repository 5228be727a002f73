package invalidation

import "time"

// positionMeta 仓位私有记忆，仅在持仓期间存在，平仓即丢弃，不对外暴露。
type positionMeta struct {
	entryBarTs       time.Time
	entryCumDelta    float64
	entryPOC         float64
	entryCaptured    bool

	lastEventAt      time.Time // legacy 每仓位事件冷却

	persistStart     time.Time // objective 持续性计时起点，零值表示未起跑
	persistStartBar  int

	activeTier       Tier // objective 当前激活档位（滞回带用）
	lastPrints       float64
	lastDepth        float64
	lastScore        float64
}

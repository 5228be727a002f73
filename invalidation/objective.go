package invalidation

import (
	"fmt"
	"math"

	"trade-sim-go/config"
	"trade-sim-go/ledger"
	"trade-sim-go/market"
)

// objective 路径：prints 与 depth 两个独立 0-100 子分，双确认后起跑
// 持续性计时，宽限期内只有 severe 扫单可以穿透。

type objectiveScores struct {
	prints      float64
	depth       float64
	combined    float64
	severeSweep bool
	evidence    []EvidencePair
}

// scorePrints 成交流子分：逆向 delta 持续、POC 位移、逆向收盘、累计 delta 破位。
func scorePrints(pos ledger.Position, meta *positionMeta, ctx Context, s config.ObjectiveInvalidationSettings) (float64, []EvidencePair) {
	if ctx.Bars == nil || ctx.Bars.Len() == 0 {
		return 0, nil
	}
	dir := pos.Side.Direction()
	var score float64
	var ev []EvidencePair

	// 逆向 delta 持续性：最近 4 根里逆向的占比，最多 35 分
	tail := ctx.Bars.Tail(4)
	adverse := 0
	for _, b := range tail {
		if b.Delta*dir < 0 {
			adverse++
		}
	}
	if adverse > 0 {
		pts := 35 * float64(adverse) / float64(len(tail))
		score += pts
		ev = append(ev, EvidencePair{"delta_persistence", fmt.Sprintf("%d/%d bars adverse", adverse, len(tail))})
	}

	last, _ := ctx.Bars.Last()

	// POC 位移：最后一根 POC 相对入场价逆向，最多 25 分
	displacement := (pos.EntryFillPrice - last.POC) * dir
	if displacement > 0 && pos.RiskPerUnit > 0 {
		pts := math.Min(25, 25*displacement/pos.RiskPerUnit)
		score += pts
		ev = append(ev, EvidencePair{"poc_displacement", fmt.Sprintf("%.2f against entry", displacement)})
	}

	// 逆向收盘：15 分
	if (last.Close-last.Open)*dir < 0 {
		score += 15
		ev = append(ev, EvidencePair{"adverse_close", fmt.Sprintf("close %.2f vs open %.2f", last.Close, last.Open)})
	}

	// 累计 delta 破位：25 分
	if meta.entryCaptured && (meta.entryCumDelta-last.CumDelta)*dir > 0 {
		score += 25
		ev = append(ev, EvidencePair{"cum_delta_break", fmt.Sprintf("%.0f below entry level", (meta.entryCumDelta-last.CumDelta)*dir)})
	}

	if score > 100 {
		score = 100
	}
	return score, ev
}

// scoreDepth 盘口子分：逆向 OFI 持续、支撑侧补充率塌陷、severe 扫单。
// 盘口上下文比最后一根 bar 新时作为最鲜活读数参与：OFI 计入持续性窗口，
// 补充率覆盖 bar 聚合值，扫单一并检查；过期的上下文被忽略。
func scoreDepth(pos ledger.Position, ctx Context, s config.ObjectiveInvalidationSettings) (float64, bool, []EvidencePair) {
	if ctx.Bars == nil || ctx.Bars.Len() == 0 {
		return 0, false, nil
	}
	dir := pos.Side.Direction()
	var score float64
	var ev []EvidencePair
	severe := false

	last, _ := ctx.Bars.Last()
	mc := ctx.Market
	if mc != nil && !mc.Ts.After(last.Ts) {
		mc = nil
	}

	// 逆向 OFI 持续：最多 45 分
	n := s.OFIPersistBars
	if n <= 0 {
		n = 3
	}
	tail := ctx.Bars.Tail(n)
	adverse, total := 0, len(tail)
	for _, b := range tail {
		if b.Depth != nil && b.Depth.NetOFI*dir < 0 {
			adverse++
		}
	}
	if mc != nil {
		total++
		if mc.OFI*dir < 0 {
			adverse++
		}
	}
	if adverse > 0 {
		score += 45 * float64(adverse) / float64(total)
		ev = append(ev, EvidencePair{"ofi_persistence", fmt.Sprintf("%d/%d readings adverse ofi", adverse, total)})
	}

	// 支撑侧补充率：多头看买侧，空头看卖侧，最多 30 分
	replenish, haveReplenish := 0.0, false
	if mc != nil {
		replenish = mc.BidReplenish
		if pos.Side == market.Short {
			replenish = mc.AskReplenish
		}
		haveReplenish = true
	} else if last.Depth != nil {
		replenish = last.Depth.BidReplenish
		if pos.Side == market.Short {
			replenish = last.Depth.AskReplenish
		}
		haveReplenish = true
	}
	if haveReplenish && s.ReplenishFloor > 0 && replenish < s.ReplenishFloor {
		score += 30 * (1 - replenish/s.ReplenishFloor)
		ev = append(ev, EvidencePair{"replenish_collapse", fmt.Sprintf("%.2f < floor %.2f", replenish, s.ReplenishFloor)})
	}

	// severe 扫单：时效窗口内扫掉本方向流动性，25 分
	var sweeps []market.SweepEvent
	if mc != nil {
		sweeps = append(sweeps, mc.Sweeps...)
	}
	for _, b := range ctx.Bars.Tail(3) {
		if b.Depth != nil {
			sweeps = append(sweeps, b.Depth.Sweeps...)
		}
	}
	for _, sw := range sweeps {
		if sw.Side != pos.Side {
			continue
		}
		if s.SweepRecencySec > 0 && ctx.Now.Sub(sw.Ts).Seconds() > s.SweepRecencySec {
			continue
		}
		score += 25
		severe = true
		ev = append(ev, EvidencePair{"severe_sweep", fmt.Sprintf("vol %.0f across %d levels", sw.Volume, sw.Levels)})
		break
	}

	if score > 100 {
		score = 100
	}
	return score, severe, ev
}

func scoreObjective(pos ledger.Position, meta *positionMeta, ctx Context, s config.ObjectiveInvalidationSettings) objectiveScores {
	prints, pev := scorePrints(pos, meta, ctx, s)
	depth, severe, dev := scoreDepth(pos, ctx, s)
	return objectiveScores{
		prints:      prints,
		depth:       depth,
		combined:    prints*s.PrintsWeight + depth*s.DepthWeight,
		severeSweep: severe,
		evidence:    append(pev, dev...),
	}
}

func objectiveTier(combined float64, s config.ObjectiveInvalidationSettings) Tier {
	switch {
	case combined >= s.SevereScore:
		return TierSevere
	case combined >= s.HighScore:
		return TierHigh
	case combined >= s.MediumScore:
		return TierMedium
	default:
		return ""
	}
}

func objectiveAction(tier Tier) Action {
	switch tier {
	case TierSevere:
		return ActionClose
	case TierHigh:
		return ActionReduce
	default:
		return ActionTighten
	}
}

func tierThreshold(tier Tier, s config.ObjectiveInvalidationSettings) float64 {
	switch tier {
	case TierSevere:
		return s.SevereScore
	case TierHigh:
		return s.HighScore
	case TierMedium:
		return s.MediumScore
	default:
		return 0
	}
}

// winnerProtected 赢家保护：已接近 TP1 或浮盈足够、且盘口压力并非独立强压
// 时，把平仓建议降级为收紧止损。
func winnerProtected(pos ledger.Position, sc objectiveScores, s config.ObjectiveInvalidationSettings) bool {
	if sc.depth >= s.StrongDepthScore && s.StrongDepthScore > 0 {
		return false
	}
	if pos.MFE >= s.WinnerProtectMFE && s.WinnerProtectMFE > 0 {
		return true
	}
	if pos.RiskPerUnit <= 0 {
		return false
	}
	dir := pos.Side.Direction()
	targetDist := (pos.Target1 - pos.EntryFillPrice) * dir
	progress := (pos.LastPrice - pos.EntryFillPrice) * dir
	if targetDist <= 0 {
		return false
	}
	return s.WinnerProtectProg > 0 && progress/targetDist >= s.WinnerProtectProg
}

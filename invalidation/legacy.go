package invalidation

import (
	"fmt"
	"math"
	"time"

	"trade-sim-go/config"
	"trade-sim-go/ledger"
	"trade-sim-go/market"
)

// legacy 路径：七个独立触发器，每个至多产出一条 (severity, evidence)。
// 聚合分 = Σ(weight × min(severity, 1.2))，收敛到 100。

// 固定整数权重。
var legacyWeights = [triggerKindCount]float64{
	TriggerOppositeSignal:   25,
	TriggerStackedImbalance: 15,
	TriggerDeltaFlip:        15,
	TriggerCumDeltaBreak:    20,
	TriggerPOCRecapture:     10,
	TriggerStaleDecay:       10,
	TriggerSweepNoFollow:    20,
}

const (
	severityCap     = 1.2
	legacyEmitFloor = 40.0
	legacyHighBar   = 85.0
	legacyMediumBar = 65.0
	// legacyCooldown 同一仓位两次事件的最小间隔。
	legacyCooldown = 60 * time.Second
	// barMinutes bar 周期，回看窗口按分钟 bar 折算。
	barMinutes = 1
)

// triggerFunc 纯函数：命中返回 (result, true)。
type triggerFunc func(pos ledger.Position, meta *positionMeta, ctx Context, s config.InvalidationSettings, tick float64) (TriggerResult, bool)

var legacyTriggers = [triggerKindCount]triggerFunc{
	TriggerOppositeSignal:   triggerOppositeSignal,
	TriggerStackedImbalance: triggerStackedImbalance,
	TriggerDeltaFlip:        triggerDeltaFlip,
	TriggerCumDeltaBreak:    triggerCumDeltaBreak,
	TriggerPOCRecapture:     triggerPOCRecapture,
	TriggerStaleDecay:       triggerStaleDecay,
	TriggerSweepNoFollow:    triggerSweepNoFollow,
}

// scoreLegacy 跑全部触发器并聚合；低于下限返回 (nil, 0)。
func scoreLegacy(pos ledger.Position, meta *positionMeta, ctx Context, s config.InvalidationSettings, tick float64) ([]TriggerResult, float64) {
	var fired []TriggerResult
	score := 0.0
	for kind := TriggerKind(0); kind < triggerKindCount; kind++ {
		res, ok := legacyTriggers[kind](pos, meta, ctx, s, tick)
		if !ok {
			continue
		}
		fired = append(fired, res)
		score += legacyWeights[kind] * math.Min(res.Severity, severityCap)
	}
	if score > 100 {
		score = 100
	}
	if score < legacyEmitFloor {
		return nil, 0
	}
	return fired, score
}

func legacyTier(score float64) Tier {
	switch {
	case score >= legacyHighBar:
		return TierHigh
	case score >= legacyMediumBar:
		return TierMedium
	default:
		return TierLow
	}
}

func legacyAction(tier Tier) Action {
	switch tier {
	case TierHigh:
		return ActionClose
	case TierMedium:
		return ActionReduce
	default:
		return ActionTighten
	}
}

// 1. 回看窗口内出现同策略反向信号。
func triggerOppositeSignal(pos ledger.Position, _ *positionMeta, ctx Context, s config.InvalidationSettings, _ float64) (TriggerResult, bool) {
	if ctx.Signals == nil || s.LookbackBars <= 0 {
		return TriggerResult{}, false
	}
	cutoff := ctx.Now.Add(-time.Duration(s.LookbackBars*barMinutes) * time.Minute)
	for _, sig := range ctx.Signals.Recent(ctx.Signals.Len()) {
		if sig.Ts.Before(cutoff) || sig.Ts.Before(pos.EntryTime) {
			continue
		}
		if sig.Side != pos.Side.Opposite() || sig.Strategy != pos.Strategy {
			continue
		}
		sev := math.Min(1.5, 0.5+sig.Confidence/100)
		return TriggerResult{
			Kind:     TriggerOppositeSignal,
			Severity: sev,
			Evidence: fmt.Sprintf("opposite %s signal %s conf=%.0f", sig.Strategy, sig.ID, sig.Confidence),
		}, true
	}
	return TriggerResult{}, false
}

// 2. 入场价附近出现逆向堆叠失衡带且仍在时效内。
func triggerStackedImbalance(pos ledger.Position, _ *positionMeta, ctx Context, s config.InvalidationSettings, tick float64) (TriggerResult, bool) {
	if ctx.Bars == nil {
		return TriggerResult{}, false
	}
	bar, ok := ctx.Bars.Last()
	if !ok || bar.Depth == nil {
		return TriggerResult{}, false
	}
	if s.StackedWindowSec > 0 && ctx.Now.Sub(bar.Ts).Seconds() > s.StackedWindowSec {
		return TriggerResult{}, false
	}
	rows := bar.Depth.StackedSellRows // 压在多头上方的卖方失衡
	if pos.Side == market.Short {
		rows = bar.Depth.StackedBuyRows
	}
	if rows < 3 {
		return TriggerResult{}, false
	}
	if math.Abs(bar.Depth.StackedPrice-pos.EntryFillPrice) > s.StackedProximity*tick {
		return TriggerResult{}, false
	}
	return TriggerResult{
		Kind:     TriggerStackedImbalance,
		Severity: math.Min(1.5, float64(rows)/3),
		Evidence: fmt.Sprintf("%d stacked rows at %.2f", rows, bar.Depth.StackedPrice),
	}, true
}

// 3. delta 连续翻转为逆向且 POC 同向漂移。
func triggerDeltaFlip(pos ledger.Position, _ *positionMeta, ctx Context, s config.InvalidationSettings, _ float64) (TriggerResult, bool) {
	if ctx.Bars == nil || s.DeltaFlipBars <= 0 {
		return TriggerResult{}, false
	}
	tail := ctx.Bars.Tail(s.DeltaFlipBars)
	if len(tail) < s.DeltaFlipBars {
		return TriggerResult{}, false
	}
	dir := pos.Side.Direction()
	for _, b := range tail {
		if b.Delta*dir >= 0 {
			return TriggerResult{}, false
		}
	}
	pocDrift := (tail[len(tail)-1].POC - tail[0].POC) * dir
	if pocDrift >= 0 {
		return TriggerResult{}, false
	}
	return TriggerResult{
		Kind:     TriggerDeltaFlip,
		Severity: math.Min(1.5, 0.6+0.2*float64(len(tail))),
		Evidence: fmt.Sprintf("%d bars adverse delta, poc drift %.2f", len(tail), pocDrift),
	}, true
}

// 4. 累计 delta 跌破入场时刻的累计 delta。
func triggerCumDeltaBreak(pos ledger.Position, meta *positionMeta, ctx Context, _ config.InvalidationSettings, _ float64) (TriggerResult, bool) {
	if ctx.Bars == nil || !meta.entryCaptured {
		return TriggerResult{}, false
	}
	bar, ok := ctx.Bars.Last()
	if !ok {
		return TriggerResult{}, false
	}
	dir := pos.Side.Direction()
	breakAmt := (meta.entryCumDelta - bar.CumDelta) * dir
	if breakAmt <= 0 {
		return TriggerResult{}, false
	}
	scale := avgAbsDelta(ctx.Bars.Tail(10))
	sev := 0.8
	if scale > 0 {
		sev = math.Min(1.5, 0.8+0.2*breakAmt/scale)
	}
	return TriggerResult{
		Kind:     TriggerCumDeltaBreak,
		Severity: sev,
		Evidence: fmt.Sprintf("cum delta broke entry level by %.0f", breakAmt),
	}, true
}

// 5. 最后一根 bar 的 POC 回收到入场价之外且 delta 逆向。
func triggerPOCRecapture(pos ledger.Position, _ *positionMeta, ctx Context, _ config.InvalidationSettings, _ float64) (TriggerResult, bool) {
	if ctx.Bars == nil {
		return TriggerResult{}, false
	}
	bar, ok := ctx.Bars.Last()
	if !ok {
		return TriggerResult{}, false
	}
	dir := pos.Side.Direction()
	if (bar.POC-pos.EntryFillPrice)*dir >= 0 || bar.Delta*dir >= 0 {
		return TriggerResult{}, false
	}
	return TriggerResult{
		Kind:     TriggerPOCRecapture,
		Severity: 0.7,
		Evidence: fmt.Sprintf("poc %.2f recaptured beyond entry %.2f", bar.POC, pos.EntryFillPrice),
	}, true
}

// 6. 持仓超时且没有足够的顺向进展。
func triggerStaleDecay(pos ledger.Position, _ *positionMeta, ctx Context, s config.InvalidationSettings, _ float64) (TriggerResult, bool) {
	if s.StaleMinutes <= 0 {
		return TriggerResult{}, false
	}
	holdMin := ctx.Now.Sub(pos.EntryTime).Minutes()
	if holdMin <= s.StaleMinutes || pos.MFE >= s.StaleMinMFE {
		return TriggerResult{}, false
	}
	return TriggerResult{
		Kind:     TriggerStaleDecay,
		Severity: math.Min(1.5, 0.5+0.5*(holdMin/s.StaleMinutes-1)),
		Evidence: fmt.Sprintf("held %.0fm, mfe %.2fR", holdMin, pos.MFE),
	}, true
}

// 7. 高量扫单后无跟进（bar 收回逆向）。
func triggerSweepNoFollow(pos ledger.Position, _ *positionMeta, ctx Context, s config.InvalidationSettings, _ float64) (TriggerResult, bool) {
	if ctx.Bars == nil {
		return TriggerResult{}, false
	}
	bar, ok := ctx.Bars.Last()
	if !ok || bar.Depth == nil || len(bar.Depth.Sweeps) == 0 {
		return TriggerResult{}, false
	}
	avgVol := avgVolume(ctx.Bars.Tail(10))
	dir := pos.Side.Direction()
	for _, sw := range bar.Depth.Sweeps {
		if sw.Side != pos.Side {
			continue // 只关心扫掉本方向流动性的事件
		}
		if avgVol > 0 && sw.Volume < s.SweepVolumeFactor*avgVol {
			continue
		}
		// 无跟进：扫单 bar 收盘没有顺着扫单方向走
		if (bar.Close-bar.Open)*dir >= 0 {
			continue
		}
		return TriggerResult{
			Kind:     TriggerSweepNoFollow,
			Severity: 1.0,
			Evidence: fmt.Sprintf("sweep vol %.0f (%.1fx avg), no follow-through", sw.Volume, sw.Volume/math.Max(avgVol, 1)),
		}, true
	}
	return TriggerResult{}, false
}

func avgAbsDelta(bars []market.Bar) float64 {
	if len(bars) == 0 {
		return 0
	}
	sum := 0.0
	for _, b := range bars {
		sum += math.Abs(b.Delta)
	}
	return sum / float64(len(bars))
}

func avgVolume(bars []market.Bar) float64 {
	if len(bars) == 0 {
		return 0
	}
	sum := 0.0
	for _, b := range bars {
		sum += b.Volume
	}
	return sum / float64(len(bars))
}

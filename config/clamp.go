package config

// 配置永远不拒绝，只收敛：比例收到 [0,1]，分数收到 [0,100]，
// 计数收到非负整数，分层阈值保证 severe >= high >= medium。

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clamp100(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func nonNeg(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func nonNegInt(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

// Clamp 将全部数值字段收敛进合法区间并返回副本。
func Clamp(s TradingSettings) TradingSettings {
	s.RiskPercent = clamp01(s.RiskPercent)
	s.FeePercent = nonNeg(s.FeePercent)
	if s.TickSize <= 0 {
		s.TickSize = Default().TickSize
	}
	s.SlippageTicks = nonNeg(s.SlippageTicks)
	s.PartialTakePct = clamp01(s.PartialTakePct)
	s.TimeStopMinutes = nonNeg(s.TimeStopMinutes)
	s.RetestWindowMin = nonNeg(s.RetestWindowMin)
	s.BreakevenTicks = nonNeg(s.BreakevenTicks)

	inv := &s.Invalidation
	inv.AutoCloseScore = clamp100(inv.AutoCloseScore)
	inv.LookbackBars = nonNegInt(inv.LookbackBars)
	inv.StaleMinutes = nonNeg(inv.StaleMinutes)
	inv.StaleMinMFE = nonNeg(inv.StaleMinMFE)
	inv.StackedProximity = nonNeg(inv.StackedProximity)
	inv.StackedWindowSec = nonNeg(inv.StackedWindowSec)
	inv.SweepVolumeFactor = nonNeg(inv.SweepVolumeFactor)
	inv.DeltaFlipBars = nonNegInt(inv.DeltaFlipBars)

	obj := &s.Objective
	obj.PrintsThreshold = clamp100(obj.PrintsThreshold)
	obj.DepthThreshold = clamp100(obj.DepthThreshold)
	obj.PrintsWeight = clamp01(obj.PrintsWeight)
	obj.DepthWeight = clamp01(obj.DepthWeight)
	if obj.PrintsWeight+obj.DepthWeight == 0 {
		obj.PrintsWeight = Default().Objective.PrintsWeight
		obj.DepthWeight = Default().Objective.DepthWeight
	}
	obj.SevereScore = clamp100(obj.SevereScore)
	obj.HighScore = clamp100(obj.HighScore)
	obj.MediumScore = clamp100(obj.MediumScore)
	// 分层阈值排序 severe >= high >= medium
	if obj.HighScore > obj.SevereScore {
		obj.HighScore = obj.SevereScore
	}
	if obj.MediumScore > obj.HighScore {
		obj.MediumScore = obj.HighScore
	}
	obj.Hysteresis = clamp100(obj.Hysteresis)
	obj.PersistSeconds = nonNeg(obj.PersistSeconds)
	obj.PersistBars = nonNegInt(obj.PersistBars)
	obj.GraceSeconds = nonNeg(obj.GraceSeconds)
	obj.SweepRecencySec = nonNeg(obj.SweepRecencySec)
	obj.WinnerProtectMFE = nonNeg(obj.WinnerProtectMFE)
	obj.WinnerProtectProg = clamp01(obj.WinnerProtectProg)
	obj.StrongDepthScore = clamp100(obj.StrongDepthScore)
	obj.OFIPersistBars = nonNegInt(obj.OFIPersistBars)
	obj.ReplenishFloor = clamp01(obj.ReplenishFloor)

	gr := &s.Guardrails
	gr.MaxDailyLossR = nonNeg(gr.MaxDailyLossR)
	gr.MaxDailyTrades = nonNegInt(gr.MaxDailyTrades)
	gr.MaxConsecLosses = nonNegInt(gr.MaxConsecLosses)
	gr.LossCooldownTrig = nonNegInt(gr.LossCooldownTrig)
	gr.LossCooldownMin = nonNeg(gr.LossCooldownMin)
	gr.DailyStopCooldown = nonNeg(gr.DailyStopCooldown)
	gr.MaxSessionTrades = nonNegInt(gr.MaxSessionTrades)
	gr.MaxSessionLosses = nonNegInt(gr.MaxSessionLosses)

	return s
}

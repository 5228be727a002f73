package config

import "trade-sim-go/market"

// Patch 部分更新：nil 字段保持原值。Apply 返回收敛后的新配置，
// changed 通过逐字段比较得出，不依赖序列化相等。

type InvalidationPatch struct {
	Enabled           *bool    `yaml:"enabled" json:"enabled,omitempty"`
	AutoClose         *bool    `yaml:"autoClose" json:"autoClose,omitempty"`
	AutoCloseScore    *float64 `yaml:"autoCloseScore" json:"autoCloseScore,omitempty"`
	LookbackBars      *int     `yaml:"lookbackBars" json:"lookbackBars,omitempty"`
	StaleMinutes      *float64 `yaml:"staleMinutes" json:"staleMinutes,omitempty"`
	StaleMinMFE       *float64 `yaml:"staleMinMfe" json:"staleMinMfe,omitempty"`
	StackedProximity  *float64 `yaml:"stackedProximity" json:"stackedProximity,omitempty"`
	StackedWindowSec  *float64 `yaml:"stackedWindowSec" json:"stackedWindowSec,omitempty"`
	SweepVolumeFactor *float64 `yaml:"sweepVolumeFactor" json:"sweepVolumeFactor,omitempty"`
	DeltaFlipBars     *int     `yaml:"deltaFlipBars" json:"deltaFlipBars,omitempty"`
}

type ObjectivePatch struct {
	Enabled           *bool    `yaml:"enabled" json:"enabled,omitempty"`
	PrintsThreshold   *float64 `yaml:"printsThreshold" json:"printsThreshold,omitempty"`
	DepthThreshold    *float64 `yaml:"depthThreshold" json:"depthThreshold,omitempty"`
	PrintsWeight      *float64 `yaml:"printsWeight" json:"printsWeight,omitempty"`
	DepthWeight       *float64 `yaml:"depthWeight" json:"depthWeight,omitempty"`
	SevereScore       *float64 `yaml:"severeScore" json:"severeScore,omitempty"`
	HighScore         *float64 `yaml:"highScore" json:"highScore,omitempty"`
	MediumScore       *float64 `yaml:"mediumScore" json:"mediumScore,omitempty"`
	Hysteresis        *float64 `yaml:"hysteresis" json:"hysteresis,omitempty"`
	PersistSeconds    *float64 `yaml:"persistSeconds" json:"persistSeconds,omitempty"`
	PersistBars       *int     `yaml:"persistBars" json:"persistBars,omitempty"`
	GraceSeconds      *float64 `yaml:"graceSeconds" json:"graceSeconds,omitempty"`
	SweepOverride     *bool    `yaml:"sweepOverride" json:"sweepOverride,omitempty"`
	SweepRecencySec   *float64 `yaml:"sweepRecencySec" json:"sweepRecencySec,omitempty"`
	WinnerProtectMFE  *float64 `yaml:"winnerProtectMfe" json:"winnerProtectMfe,omitempty"`
	WinnerProtectProg *float64 `yaml:"winnerProtectProg" json:"winnerProtectProg,omitempty"`
	StrongDepthScore  *float64 `yaml:"strongDepthScore" json:"strongDepthScore,omitempty"`
	AutoCloseSevere   *bool    `yaml:"autoCloseSevere" json:"autoCloseSevere,omitempty"`
	OFIPersistBars    *int     `yaml:"ofiPersistBars" json:"ofiPersistBars,omitempty"`
	ReplenishFloor    *float64 `yaml:"replenishFloor" json:"replenishFloor,omitempty"`
}

type GuardrailPatch struct {
	MaxDailyLossR     *float64          `yaml:"maxDailyLossR" json:"maxDailyLossR,omitempty"`
	MaxDailyTrades    *int              `yaml:"maxDailyTrades" json:"maxDailyTrades,omitempty"`
	MaxConsecLosses   *int              `yaml:"maxConsecLosses" json:"maxConsecLosses,omitempty"`
	LossCooldownTrig  *int              `yaml:"lossCooldownTrig" json:"lossCooldownTrig,omitempty"`
	LossCooldownMin   *float64          `yaml:"lossCooldownMin" json:"lossCooldownMin,omitempty"`
	DailyStopCooldown *float64          `yaml:"dailyStopCooldown" json:"dailyStopCooldown,omitempty"`
	MaxSessionTrades  *int              `yaml:"maxSessionTrades" json:"maxSessionTrades,omitempty"`
	MaxSessionLosses  *int              `yaml:"maxSessionLosses" json:"maxSessionLosses,omitempty"`
	BlockedSessions   *[]market.Session `yaml:"blockedSessions" json:"blockedSessions,omitempty"`
	NewsWindows       *[]NewsWindow     `yaml:"newsWindows" json:"newsWindows,omitempty"`
}

type Patch struct {
	RiskPercent     *float64 `yaml:"riskPercent" json:"riskPercent,omitempty"`
	FeePercent      *float64 `yaml:"feePercent" json:"feePercent,omitempty"`
	TickSize        *float64 `yaml:"tickSize" json:"tickSize,omitempty"`
	SlippageTicks   *float64 `yaml:"slippageTicks" json:"slippageTicks,omitempty"`
	PartialTakePct  *float64 `yaml:"partialTakePct" json:"partialTakePct,omitempty"`
	TimeStopMinutes *float64 `yaml:"timeStopMinutes" json:"timeStopMinutes,omitempty"`
	RetestWindowMin *float64 `yaml:"retestWindowMin" json:"retestWindowMin,omitempty"`
	BreakevenTicks  *float64 `yaml:"breakevenTicks" json:"breakevenTicks,omitempty"`

	Invalidation *InvalidationPatch `yaml:"invalidation" json:"invalidation,omitempty"`
	Objective    *ObjectivePatch    `yaml:"objective" json:"objective,omitempty"`
	Guardrails   *GuardrailPatch    `yaml:"guardrails" json:"guardrails,omitempty"`
}

func setF(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}

func setI(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setB(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

// Apply 将补丁套到 cur 上，收敛后返回；changed 表示收敛后是否与 cur 不同。
func (p Patch) Apply(cur TradingSettings) (TradingSettings, bool) {
	next := cur

	setF(&next.RiskPercent, p.RiskPercent)
	setF(&next.FeePercent, p.FeePercent)
	setF(&next.TickSize, p.TickSize)
	setF(&next.SlippageTicks, p.SlippageTicks)
	setF(&next.PartialTakePct, p.PartialTakePct)
	setF(&next.TimeStopMinutes, p.TimeStopMinutes)
	setF(&next.RetestWindowMin, p.RetestWindowMin)
	setF(&next.BreakevenTicks, p.BreakevenTicks)

	if ip := p.Invalidation; ip != nil {
		inv := &next.Invalidation
		setB(&inv.Enabled, ip.Enabled)
		setB(&inv.AutoClose, ip.AutoClose)
		setF(&inv.AutoCloseScore, ip.AutoCloseScore)
		setI(&inv.LookbackBars, ip.LookbackBars)
		setF(&inv.StaleMinutes, ip.StaleMinutes)
		setF(&inv.StaleMinMFE, ip.StaleMinMFE)
		setF(&inv.StackedProximity, ip.StackedProximity)
		setF(&inv.StackedWindowSec, ip.StackedWindowSec)
		setF(&inv.SweepVolumeFactor, ip.SweepVolumeFactor)
		setI(&inv.DeltaFlipBars, ip.DeltaFlipBars)
	}

	if op := p.Objective; op != nil {
		obj := &next.Objective
		setB(&obj.Enabled, op.Enabled)
		setF(&obj.PrintsThreshold, op.PrintsThreshold)
		setF(&obj.DepthThreshold, op.DepthThreshold)
		setF(&obj.PrintsWeight, op.PrintsWeight)
		setF(&obj.DepthWeight, op.DepthWeight)
		setF(&obj.SevereScore, op.SevereScore)
		setF(&obj.HighScore, op.HighScore)
		setF(&obj.MediumScore, op.MediumScore)
		setF(&obj.Hysteresis, op.Hysteresis)
		setF(&obj.PersistSeconds, op.PersistSeconds)
		setI(&obj.PersistBars, op.PersistBars)
		setF(&obj.GraceSeconds, op.GraceSeconds)
		setB(&obj.SweepOverride, op.SweepOverride)
		setF(&obj.SweepRecencySec, op.SweepRecencySec)
		setF(&obj.WinnerProtectMFE, op.WinnerProtectMFE)
		setF(&obj.WinnerProtectProg, op.WinnerProtectProg)
		setF(&obj.StrongDepthScore, op.StrongDepthScore)
		setB(&obj.AutoCloseSevere, op.AutoCloseSevere)
		setI(&obj.OFIPersistBars, op.OFIPersistBars)
		setF(&obj.ReplenishFloor, op.ReplenishFloor)
	}

	if gp := p.Guardrails; gp != nil {
		gr := &next.Guardrails
		setF(&gr.MaxDailyLossR, gp.MaxDailyLossR)
		setI(&gr.MaxDailyTrades, gp.MaxDailyTrades)
		setI(&gr.MaxConsecLosses, gp.MaxConsecLosses)
		setI(&gr.LossCooldownTrig, gp.LossCooldownTrig)
		setF(&gr.LossCooldownMin, gp.LossCooldownMin)
		setF(&gr.DailyStopCooldown, gp.DailyStopCooldown)
		setI(&gr.MaxSessionTrades, gp.MaxSessionTrades)
		setI(&gr.MaxSessionLosses, gp.MaxSessionLosses)
		if gp.BlockedSessions != nil {
			gr.BlockedSessions = append([]market.Session(nil), (*gp.BlockedSessions)...)
		}
		if gp.NewsWindows != nil {
			gr.NewsWindows = append([]NewsWindow(nil), (*gp.NewsWindows)...)
		}
	}

	next = Clamp(next)
	return next, !Equal(cur, next)
}

// Equal 逐字段比较两份配置（含切片内容）。
func Equal(a, b TradingSettings) bool {
	if a.RiskPercent != b.RiskPercent ||
		a.FeePercent != b.FeePercent ||
		a.TickSize != b.TickSize ||
		a.SlippageTicks != b.SlippageTicks ||
		a.PartialTakePct != b.PartialTakePct ||
		a.TimeStopMinutes != b.TimeStopMinutes ||
		a.RetestWindowMin != b.RetestWindowMin ||
		a.BreakevenTicks != b.BreakevenTicks {
		return false
	}
	if a.Invalidation != b.Invalidation {
		return false
	}
	if a.Objective != b.Objective {
		return false
	}
	ga, gb := a.Guardrails, b.Guardrails
	if ga.MaxDailyLossR != gb.MaxDailyLossR ||
		ga.MaxDailyTrades != gb.MaxDailyTrades ||
		ga.MaxConsecLosses != gb.MaxConsecLosses ||
		ga.LossCooldownTrig != gb.LossCooldownTrig ||
		ga.LossCooldownMin != gb.LossCooldownMin ||
		ga.DailyStopCooldown != gb.DailyStopCooldown ||
		ga.MaxSessionTrades != gb.MaxSessionTrades ||
		ga.MaxSessionLosses != gb.MaxSessionLosses {
		return false
	}
	if len(ga.BlockedSessions) != len(gb.BlockedSessions) {
		return false
	}
	for i := range ga.BlockedSessions {
		if ga.BlockedSessions[i] != gb.BlockedSessions[i] {
			return false
		}
	}
	if len(ga.NewsWindows) != len(gb.NewsWindows) {
		return false
	}
	for i := range ga.NewsWindows {
		if ga.NewsWindows[i] != gb.NewsWindows[i] {
			return false
		}
	}
	return true
}

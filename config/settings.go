package config

import "trade-sim-go/market"

// NewsWindow 新闻静默窗口，窗口内禁止新开仓。
type NewsWindow struct {
	Start string `yaml:"start"` // "13:25" UTC
	End   string `yaml:"end"`   // "13:45" UTC
	Label string `yaml:"label"`
}

// InvalidationSettings legacy 七触发器加权评估的阈值与开关。
type InvalidationSettings struct {
	Enabled            bool    `yaml:"enabled"`
	AutoClose          bool    `yaml:"autoClose"`
	AutoCloseScore     float64 `yaml:"autoCloseScore"`     // 达到该分数自动平仓
	LookbackBars       int     `yaml:"lookbackBars"`       // 反向信号回看 bar 数
	StaleMinutes       float64 `yaml:"staleMinutes"`       // 持仓衰减阈值（分钟）
	StaleMinMFE        float64 `yaml:"staleMinMfe"`        // 低于该 MFE 视为无进展（R）
	StackedProximity   float64 `yaml:"stackedProximity"`   // 失衡带距入场价的 tick 数
	StackedWindowSec   float64 `yaml:"stackedWindowSec"`   // 失衡带有效时间窗（秒）
	SweepVolumeFactor  float64 `yaml:"sweepVolumeFactor"`  // 扫单量相对均量的倍数
	DeltaFlipBars      int     `yaml:"deltaFlipBars"`      // delta 翻转判定窗口
}

// ObjectiveInvalidationSettings 客观双因子评估（prints + depth）的配置。
// enabled=true 时 legacy 路径整体停用。
type ObjectiveInvalidationSettings struct {
	Enabled           bool    `yaml:"enabled"`
	PrintsThreshold   float64 `yaml:"printsThreshold"`   // prints 子分入场阈值 0-100
	DepthThreshold    float64 `yaml:"depthThreshold"`    // depth 子分入场阈值 0-100
	PrintsWeight      float64 `yaml:"printsWeight"`      // 合成权重，二者和为 1
	DepthWeight       float64 `yaml:"depthWeight"`
	SevereScore       float64 `yaml:"severeScore"`       // 合成分分层阈值
	HighScore         float64 `yaml:"highScore"`
	MediumScore       float64 `yaml:"mediumScore"`
	Hysteresis        float64 `yaml:"hysteresis"`        // 低于档位阈值该幅度才解除
	PersistSeconds    float64 `yaml:"persistSeconds"`    // 持续性：秒或 bar 满足其一
	PersistBars       int     `yaml:"persistBars"`
	GraceSeconds      float64 `yaml:"graceSeconds"`      // 开仓宽限期
	SweepOverride     bool    `yaml:"sweepOverride"`     // severe 扫单可穿透宽限期
	SweepRecencySec   float64 `yaml:"sweepRecencySec"`   // 扫单时效窗口
	WinnerProtectMFE  float64 `yaml:"winnerProtectMfe"`  // 已有浮盈（R）触发赢家保护
	WinnerProtectProg float64 `yaml:"winnerProtectProg"` // 距 TP1 进度触发赢家保护 0-1
	StrongDepthScore  float64 `yaml:"strongDepthScore"`  // depth 独立强压时保护失效
	AutoCloseSevere   bool    `yaml:"autoCloseSevere"`
	OFIPersistBars    int     `yaml:"ofiPersistBars"`    // OFI 逆向持续 bar 数
	ReplenishFloor    float64 `yaml:"replenishFloor"`    // 补充率低于该值计入 depth 分
}

// RiskGuardrailSettings 账户级风控上限。
type RiskGuardrailSettings struct {
	MaxDailyLossR      float64          `yaml:"maxDailyLossR"`      // 当日净亏 R 上限（正数）
	MaxDailyTrades     int              `yaml:"maxDailyTrades"`
	MaxConsecLosses    int              `yaml:"maxConsecLosses"`    // 连亏锁定阈值
	LossCooldownTrig   int              `yaml:"lossCooldownTrig"`   // 连亏冷却触发笔数
	LossCooldownMin    float64          `yaml:"lossCooldownMin"`    // 连亏冷却时长（分钟）
	DailyStopCooldown  float64          `yaml:"dailyStopCooldown"`  // 日亏冷却时长（分钟），0 表示锁到次日
	MaxSessionTrades   int              `yaml:"maxSessionTrades"`   // 单时段笔数上限
	MaxSessionLosses   int              `yaml:"maxSessionLosses"`   // 单时段亏损笔数上限
	BlockedSessions    []market.Session `yaml:"blockedSessions"`
	NewsWindows        []NewsWindow     `yaml:"newsWindows"`
}

// TradingSettings 引擎全部可配置项；所有写入路径统一走 Clamp。
type TradingSettings struct {
	RiskPercent     float64 `yaml:"riskPercent"`     // 单笔账户风险比例 0-1
	FeePercent      float64 `yaml:"feePercent"`      // 手续费，百分比数值（0.02 = 0.02%）
	TickSize        float64 `yaml:"tickSize"`
	SlippageTicks   float64 `yaml:"slippageTicks"`   // 成交滑点（tick），方向对交易者不利
	PartialTakePct  float64 `yaml:"partialTakePct"`  // TP1 部分止盈比例 0-1
	TimeStopMinutes float64 `yaml:"timeStopMinutes"` // 0 表示不启用
	RetestWindowMin float64 `yaml:"retestWindowMin"` // 挂单回踩有效期（分钟）
	BreakevenTicks  float64 `yaml:"breakevenTicks"`  // TP1 后止损移至保本+该偏移

	Invalidation InvalidationSettings          `yaml:"invalidation"`
	Objective    ObjectiveInvalidationSettings `yaml:"objective"`
	Guardrails   RiskGuardrailSettings         `yaml:"guardrails"`
}

// Default returns the baseline settings every construction path starts from.
func Default() TradingSettings {
	return TradingSettings{
		RiskPercent:     0.01,
		FeePercent:      0.02,
		TickSize:        1,
		SlippageTicks:   1,
		PartialTakePct:  0.5,
		TimeStopMinutes: 90,
		RetestWindowMin: 30,
		BreakevenTicks:  0,
		Invalidation: InvalidationSettings{
			Enabled:           true,
			AutoClose:         false,
			AutoCloseScore:    85,
			LookbackBars:      12,
			StaleMinutes:      45,
			StaleMinMFE:       0.5,
			StackedProximity:  6,
			StackedWindowSec:  180,
			SweepVolumeFactor: 2.5,
			DeltaFlipBars:     3,
		},
		Objective: ObjectiveInvalidationSettings{
			Enabled:           false,
			PrintsThreshold:   55,
			DepthThreshold:    50,
			PrintsWeight:      0.6,
			DepthWeight:       0.4,
			SevereScore:       80,
			HighScore:         65,
			MediumScore:       50,
			Hysteresis:        8,
			PersistSeconds:    45,
			PersistBars:       2,
			GraceSeconds:      120,
			SweepOverride:     true,
			SweepRecencySec:   90,
			WinnerProtectMFE:  1.2,
			WinnerProtectProg: 0.75,
			StrongDepthScore:  75,
			AutoCloseSevere:   false,
			OFIPersistBars:    3,
			ReplenishFloor:    0.35,
		},
		Guardrails: RiskGuardrailSettings{
			MaxDailyLossR:     3,
			MaxDailyTrades:    10,
			MaxConsecLosses:   5,
			LossCooldownTrig:  3,
			LossCooldownMin:   45,
			DailyStopCooldown: 0,
			MaxSessionTrades:  5,
			MaxSessionLosses:  3,
		},
	}
}

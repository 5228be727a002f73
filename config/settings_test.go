package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-sim-go/config"
	"trade-sim-go/market"
)

func TestClampRanges(t *testing.T) {
	s := config.Default()
	s.RiskPercent = 1.5
	s.FeePercent = -0.1
	s.TickSize = 0
	s.PartialTakePct = -0.3
	s.Objective.PrintsThreshold = 140
	s.Guardrails.MaxDailyTrades = -5

	out := config.Clamp(s)
	assert.Equal(t, 1.0, out.RiskPercent)
	assert.Equal(t, 0.0, out.FeePercent)
	assert.Equal(t, 1.0, out.TickSize) // 非法 tick 回退默认值
	assert.Equal(t, 0.0, out.PartialTakePct)
	assert.Equal(t, 100.0, out.Objective.PrintsThreshold)
	assert.Equal(t, 0, out.Guardrails.MaxDailyTrades)
}

// 分层阈值乱序时强制 severe >= high >= medium。
func TestClampTierOrdering(t *testing.T) {
	s := config.Default()
	s.Objective.SevereScore = 60
	s.Objective.HighScore = 90
	s.Objective.MediumScore = 70

	out := config.Clamp(s)
	assert.Equal(t, 60.0, out.Objective.SevereScore)
	assert.Equal(t, 60.0, out.Objective.HighScore)
	assert.Equal(t, 60.0, out.Objective.MediumScore)
}

func TestClampZeroWeightsFallBack(t *testing.T) {
	s := config.Default()
	s.Objective.PrintsWeight = 0
	s.Objective.DepthWeight = 0

	out := config.Clamp(s)
	assert.Equal(t, config.Default().Objective.PrintsWeight, out.Objective.PrintsWeight)
	assert.Equal(t, config.Default().Objective.DepthWeight, out.Objective.DepthWeight)
}

func TestPatchApplyPartial(t *testing.T) {
	cur := config.Default()
	risk := 0.02
	enabled := true
	patch := config.Patch{
		RiskPercent: &risk,
		Objective:   &config.ObjectivePatch{Enabled: &enabled},
	}

	next, changed := patch.Apply(cur)
	assert.True(t, changed)
	assert.Equal(t, 0.02, next.RiskPercent)
	assert.True(t, next.Objective.Enabled)
	// 未触及字段保持原值
	assert.Equal(t, cur.FeePercent, next.FeePercent)
	assert.Equal(t, cur.Invalidation, next.Invalidation)
}

func TestPatchApplyNoop(t *testing.T) {
	cur := config.Default()

	// 空补丁
	_, changed := config.Patch{}.Apply(cur)
	assert.False(t, changed)

	// 写入与现值相同
	same := cur.RiskPercent
	_, changed = config.Patch{RiskPercent: &same}.Apply(cur)
	assert.False(t, changed)

	// 越界值收敛后与现值相同也算 no-op
	cur.RiskPercent = 1.0
	over := 5.0
	_, changed = config.Patch{RiskPercent: &over}.Apply(cur)
	assert.False(t, changed)
}

func TestPatchGuardrailSlices(t *testing.T) {
	cur := config.Default()
	blocked := []market.Session{market.SessionOff}
	next, changed := config.Patch{
		Guardrails: &config.GuardrailPatch{BlockedSessions: &blocked},
	}.Apply(cur)
	require.True(t, changed)
	assert.Equal(t, blocked, next.Guardrails.BlockedSessions)

	// 内容相同的切片按值比较，不算变化
	_, changed = config.Patch{
		Guardrails: &config.GuardrailPatch{BlockedSessions: &blocked},
	}.Apply(next)
	assert.False(t, changed)
}

func TestLoadDefaultsAndYAML(t *testing.T) {
	// 空路径返回默认值
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)

	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("riskPercent: 0.02\nguardrails:\n  maxDailyLossR: 5\n"), 0o644))
	cfg, err = config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.02, cfg.RiskPercent)
	assert.Equal(t, 5.0, cfg.Guardrails.MaxDailyLossR)
	// 未指定字段回落默认值
	assert.Equal(t, config.Default().FeePercent, cfg.FeePercent)
}

func TestLoadErrors(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("riskPercent: [broken"), 0o644))
	_, err = config.Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TS_RISK_PERCENT", "0.03")
	t.Setenv("TS_MAX_DAILY_LOSS_R", "2")

	cfg, err := config.LoadWithEnvOverrides("")
	require.NoError(t, err)
	assert.Equal(t, 0.03, cfg.RiskPercent)
	assert.Equal(t, 2.0, cfg.Guardrails.MaxDailyLossR)
}

func TestEqualDetectsSliceDiff(t *testing.T) {
	a := config.Default()
	b := config.Default()
	assert.True(t, config.Equal(a, b))

	b.Guardrails.NewsWindows = []config.NewsWindow{{Start: "13:25", End: "13:45", Label: "cpi"}}
	assert.False(t, config.Equal(a, b))
}

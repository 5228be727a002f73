package risk_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-sim-go/config"
	"trade-sim-go/ledger"
	"trade-sim-go/market"
	"trade-sim-go/risk"
)

var day0 = time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

func closed(r float64, session market.Session, at time.Time) ledger.ClosedTrade {
	return ledger.ClosedTrade{
		ID:        "t",
		Session:   session,
		Result:    ledger.Classify(r),
		RealizedR: r,
		ExitTime:  at,
		Day:       at.UTC().Format("2006-01-02"),
	}
}

func newGuard(mut func(*config.RiskGuardrailSettings)) *risk.Guardrails {
	s := config.Default().Guardrails
	if mut != nil {
		mut(&s)
	}
	return risk.New(s, nil)
}

func TestAllowsWhenClean(t *testing.T) {
	g := newGuard(nil)
	d := g.EvaluateEntry(market.SessionLondon, day0)
	assert.True(t, d.Allowed)
	assert.Equal(t, risk.StatusOK, g.Status(day0))
}

// 连亏 3 笔武装冷却；冷却内拒单，到期放行；每个连亏序列只武装一次。
func TestLossStreakCooldown(t *testing.T) {
	g := newGuard(func(s *config.RiskGuardrailSettings) {
		s.LossCooldownTrig = 3
		s.LossCooldownMin = 45
		s.MaxConsecLosses = 99
		s.MaxDailyLossR = 0
		s.MaxSessionLosses = 0
	})

	for i := 0; i < 3; i++ {
		g.OnClosedTrade(closed(-1, market.SessionLondon, day0.Add(time.Duration(i)*time.Minute)))
	}
	assert.False(t, g.EvaluateEntry(market.SessionLondon, day0.Add(3*time.Minute)).Allowed)
	assert.Equal(t, risk.StatusCooldown, g.Status(day0.Add(3*time.Minute)))

	// 冷却结束后放行（连亏计数仍在，但未到锁定阈值）
	after := day0.Add(48 * time.Minute)
	assert.True(t, g.EvaluateEntry(market.SessionLondon, after).Allowed)

	// 第 4 连亏不重复武装冷却
	g.OnClosedTrade(closed(-1, market.SessionLondon, after))
	assert.True(t, g.EvaluateEntry(market.SessionLondon, after.Add(time.Minute)).Allowed)
}

func TestWinResetsStreak(t *testing.T) {
	g := newGuard(func(s *config.RiskGuardrailSettings) {
		s.LossCooldownTrig = 3
		s.MaxSessionLosses = 0
	})
	g.OnClosedTrade(closed(-1, market.SessionLondon, day0))
	g.OnClosedTrade(closed(-1, market.SessionLondon, day0.Add(time.Minute)))
	g.OnClosedTrade(closed(1.5, market.SessionLondon, day0.Add(2*time.Minute)))

	st := g.State(day0.Add(3 * time.Minute))
	assert.Equal(t, 0, st.ConsecLosses)
	assert.True(t, g.EvaluateEntry(market.SessionLondon, day0.Add(3*time.Minute)).Allowed)
}

// 日亏触线即锁定到日切。
func TestDailyLossLocksUntilReset(t *testing.T) {
	g := newGuard(func(s *config.RiskGuardrailSettings) {
		s.MaxDailyLossR = 3
		s.LossCooldownTrig = 0
		s.MaxConsecLosses = 0
		s.MaxSessionLosses = 0
	})
	g.OnClosedTrade(closed(-1.6, market.SessionAsia, day0))
	g.OnClosedTrade(closed(-1.6, market.SessionAsia, day0.Add(time.Minute)))

	assert.False(t, g.EvaluateEntry(market.SessionLondon, day0.Add(2*time.Minute)).Allowed)
	assert.Equal(t, risk.StatusLocked, g.Status(day0.Add(2*time.Minute)))

	// 次日自动复位
	next := day0.Add(24 * time.Hour)
	assert.True(t, g.EvaluateEntry(market.SessionLondon, next).Allowed)
	assert.Equal(t, risk.StatusOK, g.Status(next))
}

// 配置了日亏冷却时，冷却到期即解锁，不必等日切。
func TestDailyStopCooldownShortensLock(t *testing.T) {
	g := newGuard(func(s *config.RiskGuardrailSettings) {
		s.MaxDailyLossR = 3
		s.DailyStopCooldown = 60
		s.LossCooldownTrig = 0
		s.MaxConsecLosses = 0
		s.MaxSessionLosses = 0
	})
	g.OnClosedTrade(closed(-3.2, market.SessionAsia, day0))

	assert.False(t, g.EvaluateEntry(market.SessionLondon, day0.Add(30*time.Minute)).Allowed)
	assert.True(t, g.EvaluateEntry(market.SessionLondon, day0.Add(61*time.Minute)).Allowed)
}

func TestConsecLossesLock(t *testing.T) {
	g := newGuard(func(s *config.RiskGuardrailSettings) {
		s.MaxConsecLosses = 2
		s.LossCooldownTrig = 0
		s.MaxDailyLossR = 0
		s.MaxSessionLosses = 0
	})
	g.OnClosedTrade(closed(-1, market.SessionLondon, day0))
	g.OnClosedTrade(closed(-1, market.SessionLondon, day0.Add(time.Minute)))

	assert.Equal(t, risk.StatusLocked, g.Status(day0.Add(2*time.Minute)))
	assert.False(t, g.EvaluateEntry(market.SessionNewYork, day0.Add(2*time.Minute)).Allowed)
}

// 时段级封锁只拦对应时段。
func TestSessionScopedBlocks(t *testing.T) {
	g := newGuard(func(s *config.RiskGuardrailSettings) {
		s.MaxSessionTrades = 2
		s.MaxDailyTrades = 99
		s.LossCooldownTrig = 0
		s.MaxSessionLosses = 0
	})
	g.OnClosedTrade(closed(0.5, market.SessionAsia, day0))
	g.OnClosedTrade(closed(0.5, market.SessionAsia, day0.Add(time.Minute)))

	now := day0.Add(2 * time.Minute)
	assert.False(t, g.EvaluateEntry(market.SessionAsia, now).Allowed)
	assert.True(t, g.EvaluateEntry(market.SessionLondon, now).Allowed)
	assert.Equal(t, risk.StatusLimited, g.Status(now))
}

func TestBlockedSessions(t *testing.T) {
	g := newGuard(func(s *config.RiskGuardrailSettings) {
		s.BlockedSessions = []market.Session{market.SessionOff}
	})
	assert.False(t, g.EvaluateEntry(market.SessionOff, day0).Allowed)
	assert.True(t, g.EvaluateEntry(market.SessionLondon, day0).Allowed)
}

func TestNewsWindowBlocksAll(t *testing.T) {
	g := newGuard(func(s *config.RiskGuardrailSettings) {
		s.NewsWindows = []config.NewsWindow{{Start: "13:25", End: "13:45", Label: "cpi"}}
	})
	inside := time.Date(2025, 6, 2, 13, 30, 0, 0, time.UTC)
	outside := time.Date(2025, 6, 2, 13, 45, 0, 0, time.UTC) // 窗口右开
	assert.False(t, g.EvaluateEntry(market.SessionLondon, inside).Allowed)
	assert.True(t, g.EvaluateEntry(market.SessionLondon, outside).Allowed)
}

// 跨午夜窗口两侧都生效。
func TestNewsWindowMidnightWrap(t *testing.T) {
	g := newGuard(func(s *config.RiskGuardrailSettings) {
		s.NewsWindows = []config.NewsWindow{{Start: "23:50", End: "00:10", Label: "rollover"}}
	})
	late := time.Date(2025, 6, 2, 23, 55, 0, 0, time.UTC)
	early := time.Date(2025, 6, 3, 0, 5, 0, 0, time.UTC)
	mid := time.Date(2025, 6, 3, 12, 0, 0, 0, time.UTC)
	assert.False(t, g.EvaluateEntry(market.SessionOff, late).Allowed)
	assert.False(t, g.EvaluateEntry(market.SessionOff, early).Allowed)
	assert.True(t, g.EvaluateEntry(market.SessionOff, mid).Allowed)
}

func TestDayRolloverResetsCounters(t *testing.T) {
	g := newGuard(nil)
	g.OnClosedTrade(closed(-1, market.SessionLondon, day0))

	st := g.State(day0.Add(time.Minute))
	assert.Equal(t, 1, st.TradesToday)

	st = g.State(day0.Add(24 * time.Hour))
	assert.Equal(t, 0, st.TradesToday)
	assert.Equal(t, 0.0, st.NetRToday)
	assert.Equal(t, "2025-06-03", st.Day)
}

// 时钟偏移只移动日切边界。
func TestClockOffsetShiftsDayKey(t *testing.T) {
	g := newGuard(nil)
	g.SetClockOffset(3 * 60 * 60 * 1000) // +3h

	late := time.Date(2025, 6, 2, 22, 0, 0, 0, time.UTC) // 校正后已是 6-03
	st := g.State(late)
	assert.Equal(t, "2025-06-03", st.Day)
}

func TestManualResetDay(t *testing.T) {
	g := newGuard(func(s *config.RiskGuardrailSettings) {
		s.MaxDailyLossR = 1
		s.MaxSessionLosses = 0
		s.LossCooldownTrig = 0
		s.MaxConsecLosses = 0
	})
	g.OnClosedTrade(closed(-1.5, market.SessionLondon, day0))
	require.Equal(t, risk.StatusLocked, g.Status(day0.Add(time.Minute)))

	g.ResetDay(day0.Add(2 * time.Minute))
	assert.Equal(t, risk.StatusOK, g.Status(day0.Add(3*time.Minute)))
}

func TestAuditTrailRecordsDenials(t *testing.T) {
	g := newGuard(func(s *config.RiskGuardrailSettings) {
		s.BlockedSessions = []market.Session{market.SessionOff}
	})
	g.EvaluateEntry(market.SessionOff, day0)

	st := g.State(day0)
	require.NotNil(t, st.LastBlock)
	assert.Equal(t, risk.BlockSessionDisallowed, st.LastBlock.Kind)
	found := false
	for _, e := range st.AuditLog {
		if e.Event == "entry_denied" {
			found = true
		}
	}
	assert.True(t, found)
}

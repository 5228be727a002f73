package sim

import (
	"context"
	"time"

	"trade-sim-go/engine"
	"trade-sim-go/market"
)

// Runner 把回放事件流喂给引擎。Speed 是时间倍速（2 = 两倍速），
// Instant 为 true 时忽略事件间隔直接推满。
type Runner struct {
	Engine  *engine.Engine
	Speed   float64
	Instant bool
}

// Summary 一次回放的统计。
type Summary struct {
	Events       int
	Signals      int
	Bars         int
	Ticks        int
	FinalVersion uint64
}

// Run 按事件顺序回放。非 Instant 模式下按相邻事件的逻辑时间差
// 除以倍速等待；ctx 取消立即返回已完成部分的统计。
func (r *Runner) Run(ctx context.Context, events []Event) (Summary, error) {
	var sum Summary
	speed := r.Speed
	if speed <= 0 {
		speed = 1
	}
	var prev time.Time
	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			sum.FinalVersion = r.Engine.Version()
			return sum, err
		}
		if !r.Instant {
			ts := ev.Ts()
			if !prev.IsZero() && !ts.IsZero() && ts.After(prev) {
				gap := time.Duration(float64(ts.Sub(prev)) / speed)
				if err := wait(ctx, gap); err != nil {
					sum.FinalVersion = r.Engine.Version()
					return sum, err
				}
			}
			if !ts.IsZero() {
				prev = ts
			}
		}
		r.apply(ev, &sum)
		sum.Events++
	}
	sum.FinalVersion = r.Engine.Version()
	return sum, nil
}

func (r *Runner) apply(ev Event, sum *Summary) {
	switch ev.Type {
	case EventSignal:
		if ev.Signal != nil {
			r.Engine.OnSignals([]market.Signal{*ev.Signal})
			sum.Signals++
		}
	case EventBar:
		if ev.Bar != nil {
			r.Engine.OnBars([]market.Bar{*ev.Bar})
			sum.Bars++
		}
	case EventTrade:
		if ev.Trade != nil {
			r.Engine.OnTrade(*ev.Trade)
			sum.Ticks++
		}
	case EventTrades:
		r.Engine.OnTrades(ev.Trades)
		sum.Ticks += len(ev.Trades)
	case EventMarket:
		if ev.Market != nil {
			r.Engine.UpdateMarketContext(*ev.Market)
		}
	case EventSettings:
		if ev.Patch != nil {
			r.Engine.UpdateSettings(*ev.Patch)
		}
	case EventClock:
		if ev.OffsetMs != nil {
			r.Engine.UpdateClockOffset(*ev.OffsetMs)
		}
	case EventResetDay:
		r.Engine.ResetDay()
	}
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

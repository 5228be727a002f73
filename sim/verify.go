package sim

import (
	"bytes"
	"context"
	"fmt"

	"trade-sim-go/config"
	"trade-sim-go/engine"
)

// VerifyDeterminism 用同一份事件流跑两个全新引擎并比对结果：
// 版本号与导出的全量历史必须逐位一致。不一致时返回描述差异的错误。
func VerifyDeterminism(settings config.TradingSettings, events []Event) error {
	run := func() (uint64, []byte, error) {
		eng := engine.New(settings, engine.Options{})
		r := &Runner{Engine: eng, Instant: true}
		sum, err := r.Run(context.Background(), events)
		if err != nil {
			return 0, nil, err
		}
		hist, err := eng.ExportHistory("json")
		if err != nil {
			return 0, nil, err
		}
		return sum.FinalVersion, hist, nil
	}

	v1, h1, err := run()
	if err != nil {
		return err
	}
	v2, h2, err := run()
	if err != nil {
		return err
	}
	if v1 != v2 {
		return fmt.Errorf("version diverged: %d vs %d", v1, v2)
	}
	if !bytes.Equal(h1, h2) {
		return fmt.Errorf("history diverged after %d events", len(events))
	}
	return nil
}

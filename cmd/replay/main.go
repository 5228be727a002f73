package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"trade-sim-go/config"
	"trade-sim-go/engine"
	"trade-sim-go/infrastructure/logger"
	"trade-sim-go/sim"
)

// replay 离线回放工具：把 JSONL 事件流喂给全新引擎，输出当日绩效
// 汇总。-config 可传逗号分隔的多份预设，同一份数据逐一回放对比；
// 可选导出全量历史 CSV，或做两遍回放的确定性校验。
//
// 用法：
//
//	go run ./cmd/replay -feed data/session.jsonl -speed 0 -out history.csv
//	go run ./cmd/replay -feed data/session.jsonl -config a.yaml,b.yaml
func main() {
	_ = godotenv.Load()

	cfgPaths := flag.String("config", "", "配置文件路径，逗号分隔可传多份预设，留空用默认值")
	feedPath := flag.String("feed", "", "回放数据文件（JSONL）")
	speed := flag.Float64("speed", 0, "回放倍速，0 表示瞬时推满")
	outPath := flag.String("out", "", "若指定则导出全量历史 CSV（仅单预设时生效）")
	verify := flag.Bool("verify", false, "跑两遍并校验结果逐位一致")
	logLevel := flag.String("logLevel", "warn", "日志级别")
	flag.Parse()

	if *feedPath == "" {
		log.Fatal("必须指定 -feed")
	}

	presets, err := loadPresets(*cfgPaths)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	events, err := sim.ReadFeedFile(*feedPath)
	if err != nil {
		log.Fatalf("读取回放数据失败: %v", err)
	}

	if *verify {
		for _, p := range presets {
			if err := sim.VerifyDeterminism(p.settings, events); err != nil {
				log.Fatalf("确定性校验失败 (%s): %v", p.label, err)
			}
		}
		fmt.Printf("determinism ok: %d events, %d preset(s)\n", len(events), len(presets))
		return
	}

	logCfg := logger.DefaultConfig()
	logCfg.Level = *logLevel
	logCfg.Format = "console"
	lg, err := logger.New(logCfg)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer lg.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reports := make([]map[string]interface{}, 0, len(presets))
	var last *engine.Engine
	for _, p := range presets {
		eng := engine.New(p.settings, engine.Options{Sink: lg.EventSink()})
		runner := &sim.Runner{Engine: eng, Speed: *speed, Instant: *speed <= 0}

		sum, err := runner.Run(ctx, events)
		if err != nil {
			log.Fatalf("回放中断 (%s): %v", p.label, err)
		}

		snap := eng.Snapshot()
		reports = append(reports, map[string]interface{}{
			"preset":  p.label,
			"events":  sum.Events,
			"signals": sum.Signals,
			"bars":    sum.Bars,
			"ticks":   sum.Ticks,
			"version": sum.FinalVersion,
			"status":  snap.Status,
			"daily":   snap.Daily,
		})
		last = eng
	}

	out, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		log.Fatalf("汇总序列化失败: %v", err)
	}
	fmt.Println(string(out))

	if *outPath != "" {
		if len(presets) > 1 {
			log.Fatal("-out 只支持单预设回放")
		}
		csv, err := last.ExportHistory("csv")
		if err != nil {
			log.Fatalf("导出历史失败: %v", err)
		}
		if err := os.WriteFile(*outPath, csv, 0o644); err != nil {
			log.Fatalf("写入 %s 失败: %v", *outPath, err)
		}
		fmt.Printf("history written to %s\n", *outPath)
	}
}

type preset struct {
	label    string
	settings config.TradingSettings
}

func loadPresets(paths string) ([]preset, error) {
	if paths == "" {
		return []preset{{label: "default", settings: config.Default()}}, nil
	}
	var out []preset
	for _, p := range strings.Split(paths, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		s, err := config.LoadWithEnvOverrides(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		out = append(out, preset{label: p, settings: s})
	}
	if len(out) == 0 {
		return []preset{{label: "default", settings: config.Default()}}, nil
	}
	return out, nil
}

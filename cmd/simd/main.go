package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/joho/godotenv"

	"trade-sim-go/config"
	"trade-sim-go/engine"
	"trade-sim-go/infrastructure/logger"
	"trade-sim-go/infrastructure/monitor"
	"trade-sim-go/sim"
)

// simd 长驻模拟守护进程：从 stdin 逐行接收 JSONL 事件流（与回放
// 数据格式相同），实时驱动引擎。配置文件支持热加载，状态定期落盘。
func main() {
	_ = godotenv.Load()

	cfgPath := flag.String("config", "configs/settings.yaml", "配置文件路径")
	statePath := flag.String("state", "", "状态落盘路径，留空则不持久化")
	metricsAddr := flag.String("metricsAddr", ":9100", "Prometheus metrics 监听地址，留空则关闭")
	logLevel := flag.String("logLevel", "info", "日志级别")
	logFile := flag.String("logFile", "", "日志文件路径，留空只输出 stdout")
	snapshotSec := flag.Int("snapshotSec", 60, "状态落盘间隔（秒）")
	flag.Parse()

	logCfg := logger.DefaultConfig()
	logCfg.Level = *logLevel
	if *logFile != "" {
		logCfg.Outputs = append(logCfg.Outputs, "file")
		logCfg.OutputFile = *logFile
	}
	lg, err := logger.New(logCfg)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer lg.Close()

	settings, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		lg.Sugar().Warnf("加载配置失败，使用默认值: %v", err)
		settings = config.Default()
	}

	mon := monitor.New(monitor.DefaultConfig())
	if *metricsAddr != "" {
		mon.StartServer(*metricsAddr)
	}

	eng := newEngine(settings, *statePath, lg, mon)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// stdin 读取与配置热加载都收敛到主循环，引擎保持单线程驱动
	lines := make(chan string, 256)
	go readLines(ctx, lines)

	reload := make(chan config.TradingSettings, 1)
	if *cfgPath != "" {
		go func() {
			w := config.Watcher{Path: *cfgPath, Cooldown: 2 * time.Second}
			_ = w.Start(ctx, func(s config.TradingSettings) {
				select {
				case reload <- s:
				default:
				}
			})
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var persistTick <-chan time.Time
	if *statePath != "" && *snapshotSec > 0 {
		ticker := time.NewTicker(time.Duration(*snapshotSec) * time.Second)
		defer ticker.Stop()
		persistTick = ticker.C
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	lg.LogEngine("simd_started", map[string]interface{}{"config": *cfgPath})

loop:
	for {
		select {
		case <-quit:
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			applyLine(eng, lg, line)
		case s := <-reload:
			if eng.ReplaceSettings(s) {
				lg.LogEngine("config_reloaded", map[string]interface{}{"path": *cfgPath})
			}
		case <-persistTick:
			persist(eng, *statePath, lg)
		}
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	cancel()
	persist(eng, *statePath, lg)
	lg.LogEngine("simd_exit", map[string]interface{}{"version": eng.Version()})
}

func newEngine(settings config.TradingSettings, statePath string, lg *logger.Logger, mon *monitor.Monitor) *engine.Engine {
	opts := engine.Options{Sink: lg.EventSink(), Monitor: mon}
	if statePath != "" {
		if raw, err := os.ReadFile(statePath); err == nil {
			eng := engine.NewFromPersistence(raw, opts)
			lg.LogEngine("state_restored", map[string]interface{}{"path": statePath})
			eng.ReplaceSettings(settings)
			return eng
		}
	}
	return engine.New(settings, opts)
}

func readLines(ctx context.Context, out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		case out <- scanner.Text():
		}
	}
}

func applyLine(eng *engine.Engine, lg *logger.Logger, line string) {
	if line == "" {
		return
	}
	var ev sim.Event
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		lg.Sugar().Warnf("丢弃坏事件行: %v", err)
		return
	}
	r := sim.Runner{Engine: eng, Instant: true}
	if _, err := r.Run(context.Background(), []sim.Event{ev}); err != nil {
		lg.Sugar().Warnf("事件处理失败: %v", err)
	}
}

func persist(eng *engine.Engine, path string, lg *logger.Logger) {
	if path == "" {
		return
	}
	raw, err := eng.PersistSnapshot()
	if err != nil {
		lg.Sugar().Warnf("状态序列化失败: %v", err)
		return
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		lg.Sugar().Warnf("状态写入失败: %v", err)
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		lg.Sugar().Warnf("状态落盘失败: %v", err)
	}
}

package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitor Prometheus监控指标收集器。所有方法对 nil 接收者安全，
// 方便测试与回放场景不接监控直接跑。
type Monitor struct {
	registry *prometheus.Registry

	// 仓位指标
	openPositions prometheus.Gauge
	pendingOrders prometheus.Gauge
	netRToday     prometheus.Gauge

	// 引擎指标
	engineVersion prometheus.Gauge
	ticksTotal    prometheus.Counter
	fillsTotal    prometheus.Counter
	closedTotal   *prometheus.CounterVec

	// 失效/风控指标
	invalidationEvents *prometheus.CounterVec
	guardrailDenials   prometheus.Counter
	guardrailStatus    prometheus.Gauge // 0 ok / 1 limited / 2 cooldown / 3 locked
}

// Config 监控配置
type Config struct {
	Namespace string
	Subsystem string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Namespace: "tradesim",
		Subsystem: "engine",
	}
}

// New 创建新的Monitor实例
func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Monitor{
		registry: reg,
		openPositions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "open_positions", Help: "当前持仓数",
		}),
		pendingOrders: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "pending_orders", Help: "当前挂单数",
		}),
		netRToday: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "net_r_today", Help: "当日净R",
		}),
		engineVersion: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "version", Help: "引擎状态版本号",
		}),
		ticksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "ticks_total", Help: "已处理逐笔成交数",
		}),
		fillsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "fills_total", Help: "挂单触发成交数",
		}),
		closedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "closed_trades_total", Help: "平仓笔数",
		}, []string{"result"}),
		invalidationEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "invalidation_events_total", Help: "失效事件数",
		}, []string{"tier"}),
		guardrailDenials: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "guardrail_denials_total", Help: "风控拒单数",
		}),
		guardrailStatus: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "guardrail_status", Help: "风控状态 0=ok 1=limited 2=cooldown 3=locked",
		}),
	}
}

func (m *Monitor) SetOpenPositions(n int) {
	if m == nil {
		return
	}
	m.openPositions.Set(float64(n))
}

func (m *Monitor) SetPendingOrders(n int) {
	if m == nil {
		return
	}
	m.pendingOrders.Set(float64(n))
}

func (m *Monitor) SetNetRToday(r float64) {
	if m == nil {
		return
	}
	m.netRToday.Set(r)
}

func (m *Monitor) SetVersion(v uint64) {
	if m == nil {
		return
	}
	m.engineVersion.Set(float64(v))
}

func (m *Monitor) IncTick() {
	if m == nil {
		return
	}
	m.ticksTotal.Inc()
}

func (m *Monitor) IncFill() {
	if m == nil {
		return
	}
	m.fillsTotal.Inc()
}

func (m *Monitor) IncClosed(result string) {
	if m == nil {
		return
	}
	m.closedTotal.WithLabelValues(result).Inc()
}

func (m *Monitor) IncInvalidation(tier string) {
	if m == nil {
		return
	}
	m.invalidationEvents.WithLabelValues(tier).Inc()
}

func (m *Monitor) IncGuardrailDenial() {
	if m == nil {
		return
	}
	m.guardrailDenials.Inc()
}

func (m *Monitor) SetGuardrailStatus(level int) {
	if m == nil {
		return
	}
	m.guardrailStatus.Set(float64(level))
}

// Handler 返回 /metrics 处理器。
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer 在 addr 上启动指标服务器。
func (m *Monitor) StartServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	go func() {
		_ = http.ListenAndServe(addr, mux)
	}()
}

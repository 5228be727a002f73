package sim

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"trade-sim-go/config"
	"trade-sim-go/market"
)

// 回放事件类型。
const (
	EventSignal   = "signal"
	EventBar      = "bar"
	EventTrade    = "trade"
	EventTrades   = "trades" // 乱序批次，引擎内部按 (ts,id) 排序
	EventMarket   = "market"
	EventSettings = "settings"
	EventClock    = "clock"
	EventResetDay = "reset_day"
)

// Event 回放数据流的一行：类型加上对应载荷，每行一个 JSON 对象。
type Event struct {
	Type     string                `json:"type"`
	Signal   *market.Signal        `json:"signal,omitempty"`
	Bar      *market.Bar           `json:"bar,omitempty"`
	Trade    *market.Trade         `json:"trade,omitempty"`
	Trades   []market.Trade        `json:"trades,omitempty"`
	Market   *market.MarketContext `json:"market,omitempty"`
	Patch    *config.Patch         `json:"patch,omitempty"`
	OffsetMs *int64                `json:"offsetMs,omitempty"`
}

// Ts 事件的逻辑时间，用于回放节奏控制；没有载荷时间的事件返回零值。
func (e Event) Ts() time.Time {
	switch {
	case e.Signal != nil:
		return e.Signal.Ts
	case e.Bar != nil:
		return e.Bar.Ts
	case e.Trade != nil:
		return e.Trade.Ts
	case len(e.Trades) > 0:
		return e.Trades[0].Ts
	case e.Market != nil:
		return e.Market.Ts
	}
	return time.Time{}
}

// ReadFeed 从 r 逐行解析回放事件。空行与 # 注释行跳过，
// 坏行带行号报错。
func ReadFeed(r io.Reader) ([]Event, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	var events []Event
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(text), &ev); err != nil {
			return nil, fmt.Errorf("feed line %d: %w", line, err)
		}
		if ev.Type == "" {
			return nil, fmt.Errorf("feed line %d: missing type", line)
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read feed: %w", err)
	}
	return events, nil
}

// ReadFeedFile 从文件读取回放事件。
func ReadFeedFile(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open feed %s: %w", path, err)
	}
	defer f.Close()
	return ReadFeed(f)
}

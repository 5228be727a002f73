package market

// SignalCacheCap 信号缓存容量，超出后最旧的先淘汰。
const SignalCacheCap = 200

// BarWindowCap 近期 bar 窗口容量（约 6 小时的分钟 bar）。
const BarWindowCap = 360

// SignalCache 保存最近看到的外部信号，评估器做反向信号回看时使用。
// 插入序即时间序；重复 id 只刷新内容不改变位置。
type SignalCache struct {
	order []string
	byID  map[string]Signal
}

func NewSignalCache() *SignalCache {
	return &SignalCache{byID: make(map[string]Signal, SignalCacheCap)}
}

// Put 返回 true 表示是新信号；已见过的 id 只刷新内容。
func (c *SignalCache) Put(sig Signal) bool {
	if _, ok := c.byID[sig.ID]; ok {
		c.byID[sig.ID] = sig
		return false
	}
	c.order = append(c.order, sig.ID)
	c.byID[sig.ID] = sig
	if len(c.order) > SignalCacheCap {
		evict := c.order[0]
		c.order = c.order[1:]
		delete(c.byID, evict)
	}
	return true
}

func (c *SignalCache) Get(id string) (Signal, bool) {
	sig, ok := c.byID[id]
	return sig, ok
}

func (c *SignalCache) Len() int { return len(c.order) }

// Recent 返回最近 n 条信号，新的在后。
func (c *SignalCache) Recent(n int) []Signal {
	if n > len(c.order) {
		n = len(c.order)
	}
	out := make([]Signal, 0, n)
	for _, id := range c.order[len(c.order)-n:] {
		out = append(out, c.byID[id])
	}
	return out
}

// BarWindow keeps the most recent footprint bars in arrival order.
// Capacity is fixed; oldest bars are dropped on overflow.
type BarWindow struct {
	bars []Bar
}

func NewBarWindow() *BarWindow {
	return &BarWindow{bars: make([]Bar, 0, BarWindowCap)}
}

func (w *BarWindow) Push(b Bar) {
	w.bars = append(w.bars, b)
	if len(w.bars) > BarWindowCap {
		w.bars = w.bars[len(w.bars)-BarWindowCap:]
	}
}

func (w *BarWindow) Len() int { return len(w.bars) }

// Last returns the most recent bar and false when the window is empty.
func (w *BarWindow) Last() (Bar, bool) {
	if len(w.bars) == 0 {
		return Bar{}, false
	}
	return w.bars[len(w.bars)-1], true
}

// Tail 返回最近 n 根 bar，旧的在前。
func (w *BarWindow) Tail(n int) []Bar {
	if n > len(w.bars) {
		n = len(w.bars)
	}
	return w.bars[len(w.bars)-n:]
}

// SinceIndex 返回 index 之后（含）的 bar 数量，persistence 以 bar 计数时使用。
func (w *BarWindow) SinceIndex(index int) int {
	count := 0
	for i := len(w.bars) - 1; i >= 0; i-- {
		if w.bars[i].Index < index {
			break
		}
		count++
	}
	return count
}

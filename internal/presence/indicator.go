package presence

import (
	"sync"
	"time"

	"sudooom.im.chat/internal/model"
)

// DefaultQuietPeriod 默认静默期：无续约事件则自动清除指示器
const DefaultQuietPeriod = 2 * time.Second

// Indicator 输入状态指示器（消费端）
// 收到对方的输入事件置为 true，静默期内无新事件自动回落为 false。
// 单个定时器，每次事件重置，不叠加
type Indicator struct {
	mu       sync.Mutex
	quiet    time.Duration
	timer    *time.Timer
	typing   bool
	stopped  bool
	onChange func(bool) // 状态翻转回调（可选）
}

// NewIndicator 创建输入状态指示器
func NewIndicator(quietPeriod time.Duration, onChange func(bool)) *Indicator {
	if quietPeriod <= 0 {
		quietPeriod = DefaultQuietPeriod
	}
	return &Indicator{
		quiet:    quietPeriod,
		onChange: onChange,
	}
}

// Observe 消费一条输入事件
func (i *Indicator) Observe(event model.TypingEvent) {
	i.mu.Lock()
	if i.stopped {
		i.mu.Unlock()
		return
	}

	changed := !i.typing
	i.typing = true

	if i.timer == nil {
		i.timer = time.AfterFunc(i.quiet, i.expire)
	} else {
		i.timer.Reset(i.quiet)
	}
	i.mu.Unlock()

	if changed && i.onChange != nil {
		i.onChange(true)
	}
}

// expire 静默期到期，清除指示器
func (i *Indicator) expire() {
	i.mu.Lock()
	if i.stopped || !i.typing {
		i.mu.Unlock()
		return
	}
	i.typing = false
	i.mu.Unlock()

	if i.onChange != nil {
		i.onChange(false)
	}
}

// Typing 返回当前指示器状态
func (i *Indicator) Typing() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.typing
}

// Stop 停止指示器，释放定时器
func (i *Indicator) Stop() {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.stopped = true
	i.typing = false
	if i.timer != nil {
		i.timer.Stop()
	}
}

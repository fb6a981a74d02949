package task

import (
	"sync"
	"time"
)

const (
	// SlotCount 时间轮槽位数量 (60秒)
	SlotCount = 60
)

// slot 时间轮槽位
type slot struct {
	mu    sync.Mutex
	tasks map[string]*Task // key: taskID
}

func newSlot() *slot {
	return &slot{tasks: make(map[string]*Task)}
}

func (s *slot) add(task *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = task
}

func (s *slot) remove(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[taskID]; exists {
		delete(s.tasks, taskID)
		return true
	}
	return false
}

// getAndClear 取出所有任务并清空槽位
func (s *slot) getAndClear() []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.tasks) == 0 {
		return nil
	}

	tasks := make([]*Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		tasks = append(tasks, task)
	}
	s.tasks = make(map[string]*Task)

	return tasks
}

func (s *slot) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// TimeWheel 时间轮
type TimeWheel struct {
	slots       [SlotCount]*slot
	currentSlot int
	slotMu      sync.RWMutex // 当前槽位索引锁
	ticker      *time.Ticker // 1秒定时器
}

// NewTimeWheel 创建时间轮
func NewTimeWheel() *TimeWheel {
	tw := &TimeWheel{
		ticker: time.NewTicker(time.Second),
	}
	for i := 0; i < SlotCount; i++ {
		tw.slots[i] = newSlot()
	}
	return tw
}

// AddTask 添加任务到时间轮
func (tw *TimeWheel) AddTask(task *Task) error {
	if task.Delay < 1 || task.Delay > SlotCount {
		task.Delay = 1 // 默认1秒
	}

	tw.slotMu.RLock()
	targetSlot := (tw.currentSlot + task.Delay) % SlotCount
	tw.slotMu.RUnlock()

	tw.slots[targetSlot].add(task)
	return nil
}

// RemoveTask 从时间轮删除任务
// delay 必须与添加时相同，且需在同一个 tick 内调用才能命中
func (tw *TimeWheel) RemoveTask(taskID string, delay int) bool {
	if delay < 1 || delay > SlotCount {
		delay = 1
	}

	tw.slotMu.RLock()
	targetSlot := (tw.currentSlot + delay) % SlotCount
	tw.slotMu.RUnlock()

	return tw.slots[targetSlot].remove(taskID)
}

// Tick 推进时间轮 (由调度器调用)
func (tw *TimeWheel) Tick() []*Task {
	tw.slotMu.Lock()
	tw.currentSlot = (tw.currentSlot + 1) % SlotCount
	currentSlot := tw.currentSlot
	tw.slotMu.Unlock()

	return tw.slots[currentSlot].getAndClear()
}

// GetCurrentSlot 获取当前槽位索引
func (tw *TimeWheel) GetCurrentSlot() int {
	tw.slotMu.RLock()
	defer tw.slotMu.RUnlock()
	return tw.currentSlot
}

// GetTicker 获取定时器
func (tw *TimeWheel) GetTicker() *time.Ticker {
	return tw.ticker
}

// Stop 停止时间轮
func (tw *TimeWheel) Stop() {
	tw.ticker.Stop()
}

// GetTotalTaskCount 获取所有槽位的任务总数
func (tw *TimeWheel) GetTotalTaskCount() int {
	total := 0
	for i := 0; i < SlotCount; i++ {
		total += tw.slots[i].count()
	}
	return total
}

package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Scheduler 任务调度器
// 秒级时间轮 + 工作协程池。兜底轮询和其它延迟操作都由它驱动
type Scheduler struct {
	wheel      *TimeWheel
	workerPool *WorkerPool
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	logger     *slog.Logger
	running    bool
	runningMu  sync.RWMutex
}

// NewScheduler 创建任务调度器
func NewScheduler(workerCount int) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		wheel:      NewTimeWheel(),
		workerPool: NewWorkerPool(workerCount),
		ctx:        ctx,
		cancel:     cancel,
		logger:     slog.Default(),
	}
}

// Start 启动调度器
func (s *Scheduler) Start() error {
	s.runningMu.Lock()
	if s.running {
		s.runningMu.Unlock()
		return fmt.Errorf("调度器已经在运行中")
	}
	s.running = true
	s.runningMu.Unlock()

	s.workerPool.Start()

	s.wg.Add(1)
	go s.tickLoop()

	s.logger.Info("任务调度器已启动")
	return nil
}

// tickLoop 时钟循环协程
func (s *Scheduler) tickLoop() {
	defer s.wg.Done()

	ticker := s.wheel.GetTicker()

	for {
		select {
		case <-s.ctx.Done():
			return

		case <-ticker.C:
			s.onTick()
		}
	}
}

// onTick 时钟触发处理
func (s *Scheduler) onTick() {
	tasks := s.wheel.Tick()
	if len(tasks) == 0 {
		return
	}

	s.workerPool.SubmitBatch(tasks)
}

// Stop 停止调度器
func (s *Scheduler) Stop() {
	s.runningMu.Lock()
	if !s.running {
		s.runningMu.Unlock()
		return
	}
	s.running = false
	s.runningMu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.wheel.Stop()
	s.workerPool.Stop()

	s.logger.Info("任务调度器已停止")
}

// AddTask 添加任务
func (s *Scheduler) AddTask(task *Task) error {
	s.runningMu.RLock()
	defer s.runningMu.RUnlock()

	if !s.running {
		return fmt.Errorf("调度器未运行")
	}
	if task == nil || task.ID == "" {
		return fmt.Errorf("任务不合法")
	}

	return s.wheel.AddTask(task)
}

// RemoveTask 删除任务
func (s *Scheduler) RemoveTask(taskID string, delay int) error {
	s.runningMu.RLock()
	defer s.runningMu.RUnlock()

	if !s.running {
		return fmt.Errorf("调度器未运行")
	}

	if !s.wheel.RemoveTask(taskID, delay) {
		return fmt.Errorf("任务不存在: %s", taskID)
	}
	return nil
}

// IsRunning 检查调度器是否运行中
func (s *Scheduler) IsRunning() bool {
	s.runningMu.RLock()
	defer s.runningMu.RUnlock()
	return s.running
}

// GetStats 获取调度器统计信息
func (s *Scheduler) GetStats() map[string]any {
	return map[string]any{
		"running":        s.IsRunning(),
		"currentSlot":    s.wheel.GetCurrentSlot(),
		"totalTaskCount": s.wheel.GetTotalTaskCount(),
		"workerCount":    s.workerPool.workerCount,
	}
}

package guard

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"

	"sudooom.im.chat/internal/model"
	"sudooom.im.chat/internal/notify"
	"sudooom.im.chat/internal/stream"
	"sudooom.im.chat/internal/task"
	"sudooom.im.chat/pkg/proto"
)

// Fetcher 兜底轮询需要的读取能力
type Fetcher interface {
	ListRecent(ctx context.Context, conversationID int64, limit int) ([]model.Message, error)
}

// Subscriber 会话变更订阅能力
type Subscriber interface {
	SubscribeConversation(conversationID int64, fn func(proto.ChangeEvent)) (*notify.Subscription, error)
}

// Guard 一致性守卫
//
// 推送订阅与定时轮询是两个独立的生产者，喂给同一个幂等合并入口
// (stream.Controller.ApplyIncoming)，因此重复送达无害。推送通道
// 不保证送达，轮询保证最终一致。会话关闭时两者必须一起注销，
// 避免切换会话时累积泄漏的订阅和定时任务
type Guard struct {
	conversationID int64
	controller     *stream.Controller
	fetcher        Fetcher
	subscriber     Subscriber
	scheduler      *task.Scheduler
	pageSize       int
	pollDelay      int // 轮询间隔秒数
	logger         *slog.Logger

	sub     *notify.Subscription
	taskID  string
	stopped atomic.Bool
}

// NewGuard 创建一致性守卫
func NewGuard(conversationID int64, controller *stream.Controller, fetcher Fetcher, subscriber Subscriber, scheduler *task.Scheduler, pageSize int) *Guard {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &Guard{
		conversationID: conversationID,
		controller:     controller,
		fetcher:        fetcher,
		subscriber:     subscriber,
		scheduler:      scheduler,
		pageSize:       pageSize,
		pollDelay:      1,
		taskID:         fmt.Sprintf("guard:poll:%d", conversationID),
		logger:         slog.Default(),
	}
}

// Start 启动推送订阅和兜底轮询
func (g *Guard) Start(ctx context.Context) error {
	sub, err := g.subscriber.SubscribeConversation(g.conversationID, g.onChange)
	if err != nil {
		return err
	}
	g.sub = sub

	if err := g.schedulePoll(); err != nil {
		// 订阅与轮询要么都挂上，要么都不挂
		g.sub.Unsubscribe()
		g.sub = nil
		return err
	}

	g.logger.Debug("Consistency guard started", "conversationId", g.conversationID)
	return nil
}

// Stop 停止守卫：注销订阅并终止轮询
func (g *Guard) Stop() {
	if !g.stopped.CompareAndSwap(false, true) {
		return
	}

	if g.sub != nil {
		if err := g.sub.Unsubscribe(); err != nil {
			g.logger.Warn("Failed to unsubscribe conversation changes",
				"conversationId", g.conversationID, "error", err)
		}
	}
	// 轮询任务下一次触发时发现 stopped，自行不再续约；
	// 同一 tick 内能直接摘除就摘除
	_ = g.scheduler.RemoveTask(g.taskID, g.pollDelay)

	g.logger.Debug("Consistency guard stopped", "conversationId", g.conversationID)
}

// onChange 推送通道回调
func (g *Guard) onChange(event proto.ChangeEvent) {
	if g.stopped.Load() {
		return
	}
	// Ack 不携带消息内容，确认由 MessageChange 的 ClientMsgId 完成
	if event.MessageChange == nil {
		return
	}
	g.controller.ApplyIncoming(notify.FromMessageChange(event.MessageChange))
}

// poll 一次兜底拉取，完成后自我续约
func (g *Guard) poll(ctx context.Context, _ string) error {
	if g.stopped.Load() {
		return nil
	}

	msgs, err := g.fetcher.ListRecent(ctx, g.conversationID, g.pageSize)
	if err != nil {
		// 拉取失败非致命：本地序列保持原样，下个周期重试
		g.logger.Warn("Fallback poll failed",
			"conversationId", g.conversationID, "error", err)
	} else {
		for i := range msgs {
			g.controller.ApplyIncoming(msgs[i])
		}
	}

	if g.stopped.Load() {
		return nil
	}
	return g.schedulePoll()
}

// schedulePoll 挂上下一次轮询任务
func (g *Guard) schedulePoll() error {
	t := task.NewTask(g.taskID, strconv.FormatInt(g.conversationID, 10), g.pollDelay, g.poll)
	return g.scheduler.AddTask(t)
}

package guard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"sudooom.im.chat/internal/model"
	"sudooom.im.chat/internal/notify"
	"sudooom.im.chat/internal/stream"
	"sudooom.im.chat/internal/task"
	"sudooom.im.chat/pkg/proto"
)

// emptyStore 打开会话用的空存储
type emptyStore struct{}

func (emptyStore) ListRecent(ctx context.Context, conversationID int64, limit int) ([]model.Message, error) {
	return nil, nil
}

func (emptyStore) ListBefore(ctx context.Context, conversationID, beforeID int64, limit int) ([]model.Message, error) {
	return nil, nil
}

// fakeFetcher 兜底轮询数据源
type fakeFetcher struct {
	mu   sync.Mutex
	msgs []model.Message
	err  error
}

func (f *fakeFetcher) ListRecent(ctx context.Context, conversationID int64, limit int) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]model.Message, len(f.msgs))
	copy(out, f.msgs)
	return out, nil
}

func (f *fakeFetcher) append(msg model.Message) {
	f.mu.Lock()
	f.msgs = append(f.msgs, msg)
	f.mu.Unlock()
}

// fakeSubscriber 捕获订阅回调，测试里手动注入事件
type fakeSubscriber struct {
	mu         sync.Mutex
	fn         func(proto.ChangeEvent)
	err        error
	subscribed int
}

func (s *fakeSubscriber) SubscribeConversation(conversationID int64, fn func(proto.ChangeEvent)) (*notify.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.subscribed++
	s.fn = fn
	return &notify.Subscription{}, nil
}

func (s *fakeSubscriber) push(event proto.ChangeEvent) {
	s.mu.Lock()
	fn := s.fn
	s.mu.Unlock()
	if fn != nil {
		fn(event)
	}
}

func openController(t *testing.T, conversationID int64) *stream.Controller {
	t.Helper()
	c := stream.NewController(emptyStore{}, nil, 1001, stream.Config{}, nil)
	if err := c.Open(context.Background(), conversationID); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return c
}

func confirmedMsg(id, conversationID int64, content string) model.Message {
	return model.Message{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       2001,
		Content:        content,
		CreatedAt:      time.UnixMilli(id * 1000),
		State:          model.DeliveryConfirmed,
	}
}

func TestGuardPushPath(t *testing.T) {
	scheduler := task.NewScheduler(2)
	scheduler.Start()
	defer scheduler.Stop()

	controller := openController(t, 100)
	subscriber := &fakeSubscriber{}
	g := NewGuard(100, controller, &fakeFetcher{}, subscriber, scheduler, 50)

	if err := g.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer g.Stop()

	if subscriber.subscribed != 1 {
		t.Fatalf("期望订阅1次, 实际 = %d", subscriber.subscribed)
	}

	// 推送一条消息变更
	subscriber.push(proto.ChangeEvent{MessageChange: &proto.MessageChange{
		ServerMsgId:    7,
		ConversationId: 100,
		SenderId:       2001,
		Content:        "hello",
		Timestamp:      1000,
	}})

	msgs := controller.Messages()
	if len(msgs) != 1 || msgs[0].ID != 7 {
		t.Fatalf("期望收到 ID 7 的消息, 实际 = %+v", msgs)
	}

	// 纯 Ack 事件不携带消息内容，应被忽略
	subscriber.push(proto.ChangeEvent{MessageAck: &proto.MessageAck{
		ClientMsgId: "tmp-1",
		ServerMsgId: 8,
	}})

	if len(controller.Messages()) != 1 {
		t.Errorf("Ack 事件不应进入序列, 实际 = %d 条", len(controller.Messages()))
	}
}

func TestGuardPollPath(t *testing.T) {
	scheduler := task.NewScheduler(2)
	scheduler.Start()
	defer scheduler.Stop()

	controller := openController(t, 100)
	fetcher := &fakeFetcher{}
	fetcher.append(confirmedMsg(1, 100, "a"))
	fetcher.append(confirmedMsg(2, 100, "b"))

	g := NewGuard(100, controller, fetcher, &fakeSubscriber{}, scheduler, 50)
	if err := g.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer g.Stop()

	// 等待至少一个轮询周期
	time.Sleep(2500 * time.Millisecond)

	if len(controller.Messages()) != 2 {
		t.Fatalf("期望轮询补齐2条消息, 实际 = %d", len(controller.Messages()))
	}

	// 轮询自我续约：新消息在下个周期被补上
	fetcher.append(confirmedMsg(3, 100, "c"))
	time.Sleep(2 * time.Second)

	if len(controller.Messages()) != 3 {
		t.Errorf("期望续约轮询补齐第3条, 实际 = %d", len(controller.Messages()))
	}
}

func TestGuardPollIdempotentWithPush(t *testing.T) {
	scheduler := task.NewScheduler(2)
	scheduler.Start()
	defer scheduler.Stop()

	controller := openController(t, 100)
	fetcher := &fakeFetcher{}
	fetcher.append(confirmedMsg(1, 100, "a"))
	subscriber := &fakeSubscriber{}

	g := NewGuard(100, controller, fetcher, subscriber, scheduler, 50)
	if err := g.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer g.Stop()

	// 同一条消息：推送先到，轮询随后也会送达
	subscriber.push(proto.ChangeEvent{MessageChange: &proto.MessageChange{
		ServerMsgId:    1,
		ConversationId: 100,
		SenderId:       2001,
		Content:        "a",
		Timestamp:      1000,
	}})

	time.Sleep(2500 * time.Millisecond)

	if len(controller.Messages()) != 1 {
		t.Errorf("双通道送达应合并为1条, 实际 = %d", len(controller.Messages()))
	}
}

func TestGuardPollErrorRetries(t *testing.T) {
	scheduler := task.NewScheduler(2)
	scheduler.Start()
	defer scheduler.Stop()

	controller := openController(t, 100)
	fetcher := &fakeFetcher{err: errors.New("store down")}

	g := NewGuard(100, controller, fetcher, &fakeSubscriber{}, scheduler, 50)
	if err := g.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer g.Stop()

	time.Sleep(2 * time.Second)

	// 存储恢复后轮询应继续工作
	fetcher.mu.Lock()
	fetcher.err = nil
	fetcher.msgs = append(fetcher.msgs, confirmedMsg(1, 100, "recovered"))
	fetcher.mu.Unlock()

	time.Sleep(2 * time.Second)

	if len(controller.Messages()) != 1 {
		t.Errorf("期望恢复后补齐1条, 实际 = %d", len(controller.Messages()))
	}
}

func TestGuardStop(t *testing.T) {
	scheduler := task.NewScheduler(2)
	scheduler.Start()
	defer scheduler.Stop()

	controller := openController(t, 100)
	subscriber := &fakeSubscriber{}

	g := NewGuard(100, controller, &fakeFetcher{}, subscriber, scheduler, 50)
	if err := g.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	g.Stop()
	// 重复 Stop 应安全
	g.Stop()

	// 停止后的推送事件被忽略
	subscriber.push(proto.ChangeEvent{MessageChange: &proto.MessageChange{
		ServerMsgId:    9,
		ConversationId: 100,
		Timestamp:      1000,
	}})

	if len(controller.Messages()) != 0 {
		t.Error("停止后不应再接收事件")
	}
}

func TestGuardStartSubscribeError(t *testing.T) {
	scheduler := task.NewScheduler(2)
	scheduler.Start()
	defer scheduler.Stop()

	controller := openController(t, 100)
	subscriber := &fakeSubscriber{err: errors.New("nats down")}

	g := NewGuard(100, controller, &fakeFetcher{}, subscriber, scheduler, 50)
	if err := g.Start(context.Background()); err == nil {
		t.Fatal("期望订阅失败")
	}
}

func TestGuardStartScheduleError(t *testing.T) {
	// 调度器未启动，挂载轮询任务会失败
	scheduler := task.NewScheduler(2)

	controller := openController(t, 100)
	g := NewGuard(100, controller, &fakeFetcher{}, &fakeSubscriber{}, scheduler, 50)

	if err := g.Start(context.Background()); err == nil {
		t.Fatal("期望启动失败")
	}
}

package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"

	"sudooom.im.chat/pkg/proto"
)

// Subscription 订阅句柄
type Subscription struct {
	sub *nats.Subscription
}

// Unsubscribe 取消订阅
func (s *Subscription) Unsubscribe() error {
	if s == nil || s.sub == nil {
		return nil
	}
	return s.sub.Unsubscribe()
}

// ChangeSubscriber 变更通知订阅器（客户端侧）
type ChangeSubscriber struct {
	nc     *nats.Conn
	logger *slog.Logger
}

// NewChangeSubscriber 创建变更通知订阅器
func NewChangeSubscriber(nc *nats.Conn) *ChangeSubscriber {
	return &ChangeSubscriber{
		nc:     nc,
		logger: slog.Default(),
	}
}

// SubscribeConversation 订阅单个会话的消息变更
func (s *ChangeSubscriber) SubscribeConversation(conversationID int64, fn func(proto.ChangeEvent)) (*Subscription, error) {
	subject := BuildConversationSubject(conversationID)
	sub, err := s.nc.Subscribe(subject, func(msg *nats.Msg) {
		var event proto.ChangeEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			s.logger.Error("Failed to unmarshal change event", "subject", subject, "error", err)
			return
		}
		fn(event)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Subscribed to conversation changes", "subject", subject)
	return &Subscription{sub: sub}, nil
}

// SubscribeDirectory 订阅用户的目录失效信号
func (s *ChangeSubscriber) SubscribeDirectory(userID int64, fn func(proto.DirectoryChange)) (*Subscription, error) {
	subject := BuildDirectorySubject(userID)
	sub, err := s.nc.Subscribe(subject, func(msg *nats.Msg) {
		var change proto.DirectoryChange
		if err := json.Unmarshal(msg.Data, &change); err != nil {
			s.logger.Error("Failed to unmarshal directory change", "subject", subject, "error", err)
			return
		}
		fn(change)
	})
	if err != nil {
		return nil, err
	}

	return &Subscription{sub: sub}, nil
}

// UpstreamHandler 上行消息处理器接口
type UpstreamHandler interface {
	HandleSendMessage(ctx context.Context, req *proto.SendMessage)
	HandleConversationRead(ctx context.Context, event *proto.ConversationRead)
}

// UpstreamSubscriberConfig Worker Pool 配置
type UpstreamSubscriberConfig struct {
	WorkerCount int // Worker 数量
	BufferSize  int // 消息缓冲区大小
}

// UpstreamSubscriber 上行消息订阅器（chatd 侧）
type UpstreamSubscriber struct {
	nc           *nats.Conn
	handler      UpstreamHandler
	logger       *slog.Logger
	subscription *nats.Subscription
	config       UpstreamSubscriberConfig
	msgChan      chan *nats.Msg
	wg           sync.WaitGroup
	cancelFunc   context.CancelFunc
}

// NewUpstreamSubscriber 创建上行消息订阅器
func NewUpstreamSubscriber(nc *nats.Conn, handler UpstreamHandler, config UpstreamSubscriberConfig) *UpstreamSubscriber {
	// 设置默认值
	if config.WorkerCount <= 0 {
		config.WorkerCount = 50
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 10000
	}

	return &UpstreamSubscriber{
		nc:      nc,
		handler: handler,
		logger:  slog.Default(),
		config:  config,
	}
}

// Start 启动订阅
func (s *UpstreamSubscriber) Start(ctx context.Context) error {
	s.msgChan = make(chan *nats.Msg, s.config.BufferSize)

	workerCtx, cancel := context.WithCancel(ctx)
	s.cancelFunc = cancel

	for i := 0; i < s.config.WorkerCount; i++ {
		s.wg.Add(1)
		go s.worker(workerCtx)
	}

	// 队列组订阅，多实例负载均衡
	sub, err := s.nc.QueueSubscribe(SubjectUpstream, QueueGroupChatd, func(msg *nats.Msg) {
		select {
		case s.msgChan <- msg:
		default:
			// 缓冲区满，丢弃并记录；兜底轮询保证最终一致
			s.logger.Warn("Upstream buffer full, dropping message", "bufferSize", s.config.BufferSize)
		}
	})
	if err != nil {
		cancel()
		return err
	}

	s.subscription = sub
	s.logger.Info("Upstream subscriber started",
		"subject", SubjectUpstream,
		"workerCount", s.config.WorkerCount,
		"bufferSize", s.config.BufferSize,
	)
	return nil
}

// worker 工作协程
func (s *UpstreamSubscriber) worker(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-s.msgChan:
			if !ok {
				return
			}
			s.handleUpstream(ctx, msg.Data)
		}
	}
}

// handleUpstream 处理上行消息
func (s *UpstreamSubscriber) handleUpstream(ctx context.Context, data []byte) {
	var envelope proto.UpstreamEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		s.logger.Error("Failed to unmarshal upstream envelope", "error", err)
		return
	}

	switch {
	case envelope.SendMessage != nil:
		s.handler.HandleSendMessage(ctx, envelope.SendMessage)
	case envelope.ConversationRead != nil:
		s.handler.HandleConversationRead(ctx, envelope.ConversationRead)
	}
}

// Stop 停止订阅
func (s *UpstreamSubscriber) Stop() error {
	if s.cancelFunc != nil {
		s.cancelFunc()
	}

	if s.subscription != nil {
		if err := s.subscription.Unsubscribe(); err != nil {
			s.logger.Error("Failed to unsubscribe", "error", err)
		}
	}

	if s.msgChan != nil {
		close(s.msgChan)
	}

	s.wg.Wait()

	s.logger.Info("Upstream subscriber stopped")
	return nil
}

// GetBufferUsage 获取缓冲区使用情况（用于监控）
func (s *UpstreamSubscriber) GetBufferUsage() (current int, capacity int) {
	if s.msgChan == nil {
		return 0, 0
	}
	return len(s.msgChan), cap(s.msgChan)
}

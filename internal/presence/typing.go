package presence

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"sudooom.im.chat/internal/model"
)

// TypingChannelPrefix 输入状态频道前缀
// 完整格式: chat:typing:{conversation_id}
const TypingChannelPrefix = "chat:typing:"

// BuildTypingChannel 构建会话的输入状态频道名
func BuildTypingChannel(conversationID int64) string {
	return TypingChannelPrefix + strconv.FormatInt(conversationID, 10)
}

// TypingChannel 输入状态广播通道
// 纯 Pub/Sub，不落库、不保证送达；丢事件只会导致指示器缺失或
// 延迟清除，不影响消息正确性
type TypingChannel struct {
	redisClient *redis.Client
	logger      *slog.Logger
}

// NewTypingChannel 创建输入状态通道
func NewTypingChannel(redisClient *redis.Client) *TypingChannel {
	return &TypingChannel{
		redisClient: redisClient,
		logger:      slog.Default(),
	}
}

// Announce 广播"正在输入"
// 调用方在每次输入变化时调用，通道本身不限流
func (c *TypingChannel) Announce(ctx context.Context, conversationID, senderID int64) error {
	event := model.TypingEvent{
		ConversationID: conversationID,
		SenderID:       senderID,
		EmittedAt:      time.Now().UnixMilli(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return c.redisClient.Publish(ctx, BuildTypingChannel(conversationID), data).Err()
}

// Watch 订阅会话的输入状态事件，过滤掉自己发出的事件
// 返回的 TypingWatch 必须在会话关闭时 Stop
func (c *TypingChannel) Watch(ctx context.Context, conversationID, selfID int64, fn func(model.TypingEvent)) (*TypingWatch, error) {
	pubsub := c.redisClient.Subscribe(ctx, BuildTypingChannel(conversationID))

	// 等待订阅确认，避免 Watch 返回后事件还未开始投递
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	watch := &TypingWatch{
		pubsub: pubsub,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(watch.done)
		for msg := range pubsub.Channel() {
			var event model.TypingEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				c.logger.Warn("Failed to unmarshal typing event", "error", err)
				continue
			}
			if event.SenderID == selfID {
				continue
			}
			fn(event)
		}
	}()

	return watch, nil
}

// TypingWatch 输入状态订阅句柄
type TypingWatch struct {
	pubsub *redis.PubSub
	done   chan struct{}
}

// Stop 停止订阅并等待消费协程退出
func (w *TypingWatch) Stop() error {
	err := w.pubsub.Close()
	<-w.done
	return err
}

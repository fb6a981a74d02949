package service

import (
	"context"
	"log/slog"

	"sudooom.im.chat/internal/model"
	"sudooom.im.chat/internal/notify"
	"sudooom.im.chat/internal/repository"
	apperrors "sudooom.im.chat/pkg/errors"
)

// ChatService 消息写入编排
//
// 落库 -> 发布消息变更 -> 双方目录失效。变更通知发布失败只记录
// 日志：推送通道本就不保证送达，兜底轮询会补上
type ChatService struct {
	batcher   *MessageBatcher
	convRepo  *repository.ConversationRepository
	publisher *notify.ChangePublisher
	logger    *slog.Logger
}

// NewChatService 创建消息服务
func NewChatService(batcher *MessageBatcher, convRepo *repository.ConversationRepository, publisher *notify.ChangePublisher) *ChatService {
	return &ChatService{
		batcher:   batcher,
		convRepo:  convRepo,
		publisher: publisher,
		logger:    slog.Default(),
	}
}

// Send 持久化一条消息并广播变更
// 实现 stream.Sender：返回带服务端 ID 与时间戳的确认记录
func (s *ChatService) Send(ctx context.Context, msg *model.Message) (*model.Message, error) {
	if msg.Content == "" && msg.ImageURL == "" {
		return nil, apperrors.ErrEmptyMessage
	}

	confirmed := *msg
	if _, err := s.batcher.SaveMessageSync(&confirmed); err != nil {
		s.logger.Error("Failed to save message",
			"conversationId", msg.ConversationID,
			"clientMsgId", msg.ClientMsgID,
			"error", err)
		return nil, apperrors.ErrSendFailed.Wrap(err)
	}

	s.broadcast(ctx, &confirmed)
	return &confirmed, nil
}

// broadcast 发布消息变更和目录失效信号
func (s *ChatService) broadcast(ctx context.Context, msg *model.Message) {
	if err := s.publisher.PublishMessageChange(msg); err != nil {
		s.logger.Warn("Failed to publish message change", "serverMsgId", msg.ID, "error", err)
	}

	// 发送者的目录立即失效
	if err := s.publisher.PublishDirectoryChange(msg.SenderID, msg.ConversationID); err != nil {
		s.logger.Warn("Failed to publish directory change", "userId", msg.SenderID, "error", err)
	}

	// 对端的目录失效
	peer, err := s.convRepo.GetPeer(ctx, msg.ConversationID, msg.SenderID)
	if err != nil {
		s.logger.Warn("Failed to resolve peer for directory change",
			"conversationId", msg.ConversationID, "error", err)
		return
	}
	if err := s.publisher.PublishDirectoryChange(peer.UserID, msg.ConversationID); err != nil {
		s.logger.Warn("Failed to publish directory change", "userId", peer.UserID, "error", err)
	}
}

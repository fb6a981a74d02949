package notify

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"sudooom.im.chat/internal/model"
	"sudooom.im.chat/pkg/proto"
)

// ChangePublisher 变更通知发布器
// 每次落库写入后发布对应事件；送达语义为至少一次，
// 消费端按消息 ID 幂等合并，重复与延迟都无害
type ChangePublisher struct {
	nc     *nats.Conn
	logger *slog.Logger
}

// NewChangePublisher 创建变更通知发布器
func NewChangePublisher(nc *nats.Conn) *ChangePublisher {
	return &ChangePublisher{
		nc:     nc,
		logger: slog.Default(),
	}
}

// PublishMessageChange 发布消息行变更到会话 Subject
func (p *ChangePublisher) PublishMessageChange(msg *model.Message) error {
	event := proto.ChangeEvent{MessageChange: ToMessageChange(msg)}
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to marshal change event", "error", err)
		return err
	}

	subject := BuildConversationSubject(msg.ConversationID)
	if err := p.nc.Publish(subject, data); err != nil {
		p.logger.Error("Failed to publish message change", "conversationId", msg.ConversationID, "error", err)
		return err
	}

	p.logger.Debug("Published message change", "subject", subject, "serverMsgId", msg.ID)
	return nil
}

// PublishAck 发布发送确认到会话 Subject
func (p *ChangePublisher) PublishAck(ack *proto.MessageAck) error {
	event := proto.ChangeEvent{MessageAck: ack}
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to marshal ack", "error", err)
		return err
	}

	subject := BuildConversationSubject(ack.ConversationId)
	if err := p.nc.Publish(subject, data); err != nil {
		p.logger.Error("Failed to publish ack", "conversationId", ack.ConversationId, "error", err)
		return err
	}
	return nil
}

// PublishDirectoryChange 发布目录失效信号给指定用户
func (p *ChangePublisher) PublishDirectoryChange(userID, conversationID int64) error {
	change := proto.DirectoryChange{
		UserId:         userID,
		ConversationId: conversationID,
	}
	data, err := json.Marshal(change)
	if err != nil {
		return err
	}

	if err := p.nc.Publish(BuildDirectorySubject(userID), data); err != nil {
		p.logger.Error("Failed to publish directory change", "userId", userID, "error", err)
		return err
	}
	return nil
}

// ToMessageChange 将消息实体转为变更事件载荷
func ToMessageChange(msg *model.Message) *proto.MessageChange {
	change := &proto.MessageChange{
		ServerMsgId:    msg.ID,
		ClientMsgId:    msg.ClientMsgID,
		ConversationId: msg.ConversationID,
		SenderId:       msg.SenderID,
		Content:        msg.Content,
		ImageUrl:       msg.ImageURL,
		Seen:           msg.Seen,
		Timestamp:      msg.CreatedAt.UnixMilli(),
	}
	if msg.SeenAt != nil {
		change.SeenAt = msg.SeenAt.UnixMilli()
	}
	return change
}

// FromMessageChange 将变更事件载荷还原为消息实体
func FromMessageChange(change *proto.MessageChange) model.Message {
	msg := model.Message{
		ID:             change.ServerMsgId,
		ClientMsgID:    change.ClientMsgId,
		ConversationID: change.ConversationId,
		SenderID:       change.SenderId,
		Content:        change.Content,
		ImageURL:       change.ImageUrl,
		Seen:           change.Seen,
		CreatedAt:      time.UnixMilli(change.Timestamp),
		State:          model.DeliveryConfirmed,
	}
	if change.SeenAt > 0 {
		seenAt := time.UnixMilli(change.SeenAt)
		msg.SeenAt = &seenAt
	}
	return msg
}

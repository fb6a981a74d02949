package handler

import (
	"context"
	"log/slog"

	"sudooom.im.chat/internal/model"
	"sudooom.im.chat/internal/notify"
	"sudooom.im.chat/internal/readstate"
	"sudooom.im.chat/internal/service"
	"sudooom.im.chat/pkg/proto"
)

// ChatHandler 上行消息处理器实现
type ChatHandler struct {
	chatService *service.ChatService
	tracker     *readstate.Tracker
	publisher   *notify.ChangePublisher
	logger      *slog.Logger
}

// NewChatHandler 创建上行消息处理器
func NewChatHandler(chatService *service.ChatService, tracker *readstate.Tracker, publisher *notify.ChangePublisher) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		tracker:     tracker,
		publisher:   publisher,
		logger:      slog.Default(),
	}
}

// HandleSendMessage 处理发送请求
func (h *ChatHandler) HandleSendMessage(ctx context.Context, req *proto.SendMessage) {
	msg := &model.Message{
		ClientMsgID:    req.ClientMsgId,
		ConversationID: req.ConversationId,
		SenderID:       req.SenderId,
		Content:        req.Content,
		ImageURL:       req.ImageUrl,
	}

	confirmed, err := h.chatService.Send(ctx, msg)
	if err != nil {
		h.logger.Error("Failed to handle send message",
			"conversationId", req.ConversationId,
			"clientMsgId", req.ClientMsgId,
			"error", err)
		return
	}

	// 回 ACK 给发送端（临时 ID 与服务端 ID 的对应关系）
	ack := &proto.MessageAck{
		ClientMsgId:    confirmed.ClientMsgID,
		ServerMsgId:    confirmed.ID,
		ConversationId: confirmed.ConversationID,
		Timestamp:      confirmed.CreatedAt.UnixMilli(),
	}
	if err := h.publisher.PublishAck(ack); err != nil {
		h.logger.Warn("Failed to publish ack", "clientMsgId", confirmed.ClientMsgID, "error", err)
	}
}

// HandleConversationRead 处理会话已读
func (h *ChatHandler) HandleConversationRead(ctx context.Context, event *proto.ConversationRead) {
	if _, err := h.tracker.MarkConversationRead(ctx, event.ConversationId, event.UserId); err != nil {
		h.logger.Error("Failed to mark conversation read",
			"conversationId", event.ConversationId,
			"userId", event.UserId,
			"error", err)
	}
}

package readstate

import (
	"context"
	"log/slog"

	"sudooom.im.chat/internal/model"
)

// Store 已读状态需要的存储能力
type Store interface {
	MarkSeen(ctx context.Context, id int64) error
	MarkConversationSeen(ctx context.Context, conversationID, viewerID int64) (int64, error)
	CountUnseen(ctx context.Context, conversationID, viewerID int64) (int, error)
}

// Notifier 目录失效通知能力
type Notifier interface {
	PublishDirectoryChange(userID, conversationID int64) error
}

// Tracker 送达与已读状态跟踪
// seen 只允许 false -> true，未读数一律重新统计而不是增减维护：
// "标记已读"和"收到新消息"会竞争，增减计数会漂移
type Tracker struct {
	store    Store
	notifier Notifier // 可为 nil（纯本地场景）
	logger   *slog.Logger
}

// NewTracker 创建已读状态跟踪器
func NewTracker(store Store, notifier Notifier) *Tracker {
	return &Tracker{
		store:    store,
		notifier: notifier,
		logger:   slog.Default(),
	}
}

// MarkMessageSeen 标记单条消息已读（幂等）
func (t *Tracker) MarkMessageSeen(ctx context.Context, messageID int64) error {
	return t.store.MarkSeen(ctx, messageID)
}

// MarkConversationRead 标记会话全部已读
// viewer 滚动到底部或打开含未读消息的会话时调用
func (t *Tracker) MarkConversationRead(ctx context.Context, conversationID, viewerID int64) (int64, error) {
	affected, err := t.store.MarkConversationSeen(ctx, conversationID, viewerID)
	if err != nil {
		return 0, err
	}

	if affected > 0 && t.notifier != nil {
		// 未读角标变化，让 viewer 的目录刷新
		if err := t.notifier.PublishDirectoryChange(viewerID, conversationID); err != nil {
			t.logger.Warn("Failed to publish directory change after mark read",
				"conversationId", conversationID,
				"viewerId", viewerID,
				"error", err)
		}
	}

	t.logger.Debug("Conversation marked read",
		"conversationId", conversationID,
		"viewerId", viewerID,
		"affected", affected)
	return affected, nil
}

// UnreadCount 从存储重新统计会话未读数
func (t *Tracker) UnreadCount(ctx context.Context, conversationID, viewerID int64) (int, error) {
	return t.store.CountUnseen(ctx, conversationID, viewerID)
}

// ComputeUnread 对消息序列做未读统计（纯函数）
// 未读 = 对方发送且 seen = false 的消息数
func ComputeUnread(msgs []model.Message, viewerID int64) int {
	count := 0
	for i := range msgs {
		if msgs[i].SenderID != viewerID && !msgs[i].Seen {
			count++
		}
	}
	return count
}

package model

import (
	"fmt"
	"time"
)

// Conversation 会话实体（两人私聊）
type Conversation struct {
	ID        int64     `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// Participant 会话成员关系
type Participant struct {
	ConversationID int64     `json:"conversationId" db:"conversation_id"`
	UserID         int64     `json:"userId" db:"user_id"`
	JoinedAt       time.Time `json:"joinedAt" db:"joined_at"`
}

// Profile 成员展示信息
type Profile struct {
	UserID    int64  `json:"userId" db:"user_id"`
	Username  string `json:"username" db:"username"`
	AvatarURL string `json:"avatarUrl,omitempty" db:"avatar_url"`
}

// PlaceholderProfile 成员资料缺失时的占位身份
// 资料不一致不应导致整个会话视图失败，降级展示
func PlaceholderProfile(userID int64) Profile {
	return Profile{
		UserID:   userID,
		Username: fmt.Sprintf("用户 %d", userID),
	}
}

// LastMessage 目录列表用的最后一条消息快照
type LastMessage struct {
	ID        int64     `json:"id"`
	SenderID  int64     `json:"senderId"`
	Content   string    `json:"content"`
	Seen      bool      `json:"seen"`
	CreatedAt time.Time `json:"createdAt"`
}

// ConversationView 目录中的一条会话
// last_message 与 unread_count 是派生数据，只由目录刷新路径写入
type ConversationView struct {
	ConversationID int64        `json:"conversationId"`
	Peer           Profile      `json:"peer"`
	LastMessage    *LastMessage `json:"lastMessage,omitempty"`
	UnreadCount    int          `json:"unreadCount"`
	UpdateAt       int64        `json:"updateAt"` // 最后活动毫秒时间戳，无消息时为 0
}

package model

import "time"

// DeliveryState 消息投递状态
// 乐观消息先以 Pending 出现在本地序列中，服务端确认后整体替换为
// Confirmed 记录，而不是原地修改 ID
type DeliveryState int

const (
	DeliveryPending   DeliveryState = 0 // 本地乐观状态，尚未落库
	DeliveryConfirmed DeliveryState = 1 // 服务端已确认
)

// Message 消息实体
type Message struct {
	ID             int64         `json:"id" db:"id"`                 // 服务端ID，Pending 时为 0
	ClientMsgID    string        `json:"clientMsgId" db:"client_msg_id"` // 客户端临时ID
	ConversationID int64         `json:"conversationId" db:"conversation_id"`
	SenderID       int64         `json:"senderId" db:"sender_id"`
	Content        string        `json:"content" db:"content"`
	ImageURL       string        `json:"imageUrl,omitempty" db:"image_url"`
	CreatedAt      time.Time     `json:"createdAt" db:"created_at"`
	Seen           bool          `json:"seen" db:"seen"`
	SeenAt         *time.Time    `json:"seenAt,omitempty" db:"seen_at"`
	State          DeliveryState `json:"-"`
}

// Before 判断消息在会话序列中是否排在 other 之前
// 排序键为 (created_at, id) 升序；Pending 消息 ID 为 0，
// 同一时间戳下排在已确认消息之前，确认后重排
func (m *Message) Before(other *Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	if m.ID != other.ID {
		return m.ID < other.ID
	}
	return m.ClientMsgID < other.ClientMsgID
}

// Confirmed 判断消息是否已被服务端确认
func (m *Message) Confirmed() bool {
	return m.State == DeliveryConfirmed
}

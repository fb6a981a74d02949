package model

// TypingEvent 输入状态事件（仅广播，不落库）
type TypingEvent struct {
	ConversationID int64 `json:"conversationId"`
	SenderID       int64 `json:"senderId"`
	EmittedAt      int64 `json:"emittedAt"` // 毫秒时间戳
}

package proto

// ============== 上行消息 (Client -> Chatd) ==============

// UpstreamEnvelope 上行消息封装
type UpstreamEnvelope struct {
	SendMessage      *SendMessage      `json:"SendMessage,omitempty"`
	ConversationRead *ConversationRead `json:"ConversationRead,omitempty"`
}

// SendMessage 发送消息请求
type SendMessage struct {
	ClientMsgId    string `json:"ClientMsgId"`
	ConversationId int64  `json:"ConversationId"`
	SenderId       int64  `json:"SenderId"`
	Content        string `json:"Content"`
	ImageUrl       string `json:"ImageUrl,omitempty"`
}

// ConversationRead 会话已读事件
type ConversationRead struct {
	ConversationId int64 `json:"ConversationId"`
	UserId         int64 `json:"UserId"`
}

// ============== 变更通知 (Chatd -> Client) ==============

// ChangeEvent 消息行变更事件
// 通过 chat.conv.{id}.changes 推送，至少一次送达，可能重复
type ChangeEvent struct {
	MessageChange *MessageChange `json:"MessageChange,omitempty"`
	MessageAck    *MessageAck    `json:"MessageAck,omitempty"`
}

// MessageChange 消息新增或更新
type MessageChange struct {
	ServerMsgId    int64  `json:"ServerMsgId"`
	ClientMsgId    string `json:"ClientMsgId"`
	ConversationId int64  `json:"ConversationId"`
	SenderId       int64  `json:"SenderId"`
	Content        string `json:"Content"`
	ImageUrl       string `json:"ImageUrl,omitempty"`
	Seen           bool   `json:"Seen"`
	SeenAt         int64  `json:"SeenAt,omitempty"` // 毫秒时间戳，0 表示未读
	Timestamp      int64  `json:"Timestamp"`        // created_at 毫秒时间戳
}

// MessageAck 发送确认（客户端临时 ID 与服务端 ID 的对应关系）
type MessageAck struct {
	ClientMsgId    string `json:"ClientMsgId"`
	ServerMsgId    int64  `json:"ServerMsgId"`
	ConversationId int64  `json:"ConversationId"`
	Timestamp      int64  `json:"Timestamp"`
}

// DirectoryChange 会话目录失效信号
// 通过 chat.user.{id}.directory 推送，收到后应触发目录刷新
type DirectoryChange struct {
	UserId         int64 `json:"UserId"`
	ConversationId int64 `json:"ConversationId"`
}

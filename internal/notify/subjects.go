package notify

import "strconv"

// NATS Subject 常量定义
const (
	// SubjectUpstream Client -> Chatd 上行消息
	SubjectUpstream = "chat.upstream"

	// QueueGroupChatd chatd 服务队列组名称
	QueueGroupChatd = "chatd-group"

	// 会话变更通知前缀，完整格式: chat.conv.{conversation_id}.changes
	subjectConvPrefix = "chat.conv."
	subjectConvSuffix = ".changes"

	// 目录失效通知前缀，完整格式: chat.user.{user_id}.directory
	subjectUserPrefix = "chat.user."
	subjectUserSuffix = ".directory"
)

// BuildConversationSubject 构建会话变更 Subject
func BuildConversationSubject(conversationID int64) string {
	return subjectConvPrefix + strconv.FormatInt(conversationID, 10) + subjectConvSuffix
}

// BuildDirectorySubject 构建用户目录失效 Subject
func BuildDirectorySubject(userID int64) string {
	return subjectUserPrefix + strconv.FormatInt(userID, 10) + subjectUserSuffix
}

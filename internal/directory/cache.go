package directory

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"sudooom.im.chat/internal/model"
)

const (
	// 目录索引 Key 前缀（ZSet，score 为最后活动毫秒时间戳）
	// 完整格式: chat:dir:{user_id}
	dirIndexPrefix = "chat:dir:"

	// 会话预览 Key 前缀（Hash）
	// 完整格式: chat:preview:{user_id}:{conversation_id}
	previewPrefix = "chat:preview:"

	// previewTTL 预览缓存过期时间
	previewTTL = 24 * time.Hour
)

// BuildDirectoryIndexKey 构建目录索引 Key
func BuildDirectoryIndexKey(userID int64) string {
	return dirIndexPrefix + strconv.FormatInt(userID, 10)
}

// BuildPreviewKey 构建会话预览 Key
func BuildPreviewKey(userID, conversationID int64) string {
	return previewPrefix + strconv.FormatInt(userID, 10) + ":" + strconv.FormatInt(conversationID, 10)
}

// Cache 目录预览缓存（基于 Redis）
// 派生数据：last_message 快照和重新统计后的未读数。
// 只由目录刷新路径写入，其它组件不得直接改写这些字段
type Cache struct {
	redisClient *redis.Client
	logger      *slog.Logger
}

// NewCache 创建目录缓存
func NewCache(redisClient *redis.Client) *Cache {
	return &Cache{
		redisClient: redisClient,
		logger:      slog.Default(),
	}
}

// Put 整体重写用户的目录缓存
func (c *Cache) Put(ctx context.Context, userID int64, views []model.ConversationView) error {
	idxKey := BuildDirectoryIndexKey(userID)

	pipe := c.redisClient.Pipeline()
	pipe.Del(ctx, idxKey)

	for _, view := range views {
		previewKey := BuildPreviewKey(userID, view.ConversationID)

		fields := map[string]any{
			"peer_id":      view.Peer.UserID,
			"peer_name":    view.Peer.Username,
			"peer_avatar":  view.Peer.AvatarURL,
			"unread_count": view.UnreadCount,
			"update_at":    view.UpdateAt,
		}
		if view.LastMessage != nil {
			fields["last_msg_id"] = view.LastMessage.ID
			fields["last_sender_id"] = view.LastMessage.SenderID
			fields["last_content"] = view.LastMessage.Content
			fields["last_seen"] = boolField(view.LastMessage.Seen)
			fields["last_at"] = view.LastMessage.CreatedAt.UnixMilli()
		}

		pipe.Del(ctx, previewKey)
		pipe.HSet(ctx, previewKey, fields)
		pipe.Expire(ctx, previewKey, previewTTL)
		// 无消息的会话 score 为 0，ZRevRange 下自然排在最后
		pipe.ZAdd(ctx, idxKey, redis.Z{
			Score:  float64(view.UpdateAt),
			Member: strconv.FormatInt(view.ConversationID, 10),
		})
	}
	pipe.Expire(ctx, idxKey, previewTTL)

	_, err := pipe.Exec(ctx)
	return err
}

// Get 读取用户的目录缓存
// 返回 (views, hit, err)；索引不存在视为未命中，调用方应回源刷新
func (c *Cache) Get(ctx context.Context, userID int64, offset, limit int64) ([]model.ConversationView, bool, error) {
	idxKey := BuildDirectoryIndexKey(userID)

	members, err := c.redisClient.ZRevRange(ctx, idxKey, offset, offset+limit-1).Result()
	if err != nil {
		return nil, false, err
	}
	if len(members) == 0 {
		exists, err := c.redisClient.Exists(ctx, idxKey).Result()
		if err != nil {
			return nil, false, err
		}
		// 空索引是有效的缓存结果（用户没有会话）
		return []model.ConversationView{}, exists > 0, nil
	}

	pipe := c.redisClient.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(members))
	for i, m := range members {
		conversationID, _ := strconv.ParseInt(m, 10, 64)
		cmds[i] = pipe.HGetAll(ctx, BuildPreviewKey(userID, conversationID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, false, err
	}

	views := make([]model.ConversationView, 0, len(members))
	for i, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			// 预览 Hash 缺失或过期，整体视为未命中回源
			return nil, false, nil
		}

		conversationID, _ := strconv.ParseInt(members[i], 10, 64)
		view := model.ConversationView{
			ConversationID: conversationID,
			Peer: model.Profile{
				UserID:    parseInt64(data["peer_id"]),
				Username:  data["peer_name"],
				AvatarURL: data["peer_avatar"],
			},
			UnreadCount: int(parseInt64(data["unread_count"])),
			UpdateAt:    parseInt64(data["update_at"]),
		}
		if view.Peer.Username == "" {
			view.Peer = model.PlaceholderProfile(view.Peer.UserID)
		}
		if lastID := parseInt64(data["last_msg_id"]); lastID > 0 {
			view.LastMessage = &model.LastMessage{
				ID:        lastID,
				SenderID:  parseInt64(data["last_sender_id"]),
				Content:   data["last_content"],
				Seen:      data["last_seen"] == "1",
				CreatedAt: time.UnixMilli(parseInt64(data["last_at"])),
			}
		}
		views = append(views, view)
	}

	return views, true, nil
}

// Invalidate 删除用户的目录索引，强制下次读取回源
func (c *Cache) Invalidate(ctx context.Context, userID int64) error {
	return c.redisClient.Del(ctx, BuildDirectoryIndexKey(userID)).Err()
}

func parseInt64(str string) int64 {
	v, _ := strconv.ParseInt(str, 10, 64)
	return v
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

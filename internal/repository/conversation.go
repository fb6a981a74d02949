package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sudooom.im.chat/internal/model"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrConversationUnusable = errors.New("conversation membership incomplete")
	ErrProfileNotFound      = errors.New("profile not found")
)

// ConversationRepository 会话数据访问
type ConversationRepository struct {
	db *pgxpool.Pool
}

// NewConversationRepository 创建会话仓库
func NewConversationRepository(db *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// FindDirect 查找两个用户之间的私聊会话
func (r *ConversationRepository) FindDirect(ctx context.Context, userID, otherID int64) (*model.Conversation, error) {
	query := `
		SELECT c.id, c.created_at
		FROM conversations c
		JOIN conversation_participants p1 ON p1.conversation_id = c.id AND p1.user_id = $1
		JOIN conversation_participants p2 ON p2.conversation_id = c.id AND p2.user_id = $2
		ORDER BY c.id
		LIMIT 1
	`
	conv := &model.Conversation{}
	err := r.db.QueryRow(ctx, query, userID, otherID).Scan(&conv.ID, &conv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	return conv, nil
}

// CreateDirect 创建私聊会话及双方成员关系
// 成员行写入失败时不做回滚（外部存储不保证事务），
// 返回 ErrConversationUnusable，调用方应视会话不可用并重试创建
func (r *ConversationRepository) CreateDirect(ctx context.Context, userID, otherID int64) (*model.Conversation, error) {
	conv := &model.Conversation{}
	err := r.db.QueryRow(ctx,
		`INSERT INTO conversations (created_at) VALUES (NOW()) RETURNING id, created_at`,
	).Scan(&conv.ID, &conv.CreatedAt)
	if err != nil {
		return nil, err
	}

	tag, err := r.db.Exec(ctx,
		`INSERT INTO conversation_participants (conversation_id, user_id, joined_at) VALUES ($1, $2, NOW()), ($1, $3, NOW())`,
		conv.ID, userID, otherID,
	)
	if err != nil {
		return nil, ErrConversationUnusable
	}
	if tag.RowsAffected() != 2 {
		return nil, ErrConversationUnusable
	}

	return conv, nil
}

// GetPeer 获取会话中除 viewer 外的另一位成员资料
func (r *ConversationRepository) GetPeer(ctx context.Context, conversationID, viewerID int64) (model.Profile, error) {
	query := `
		SELECT p.user_id, COALESCE(u.username, ''), COALESCE(u.avatar_url, '')
		FROM conversation_participants p
		LEFT JOIN users u ON u.id = p.user_id
		WHERE p.conversation_id = $1 AND p.user_id <> $2
		LIMIT 1
	`
	var profile model.Profile
	err := r.db.QueryRow(ctx, query, conversationID, viewerID).Scan(
		&profile.UserID,
		&profile.Username,
		&profile.AvatarURL,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Profile{}, ErrProfileNotFound
		}
		return model.Profile{}, err
	}
	return profile, nil
}

// IsParticipant 判断用户是否为会话成员
func (r *ConversationRepository) IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM conversation_participants WHERE conversation_id = $1 AND user_id = $2)`,
		conversationID, userID,
	).Scan(&exists)
	return exists, err
}

// ListDirectory 查询用户的会话目录
// 每条会话带对端资料、最后一条消息快照和重新统计的未读数。
// 排序：最后消息时间倒序，无消息的会话排在最后
func (r *ConversationRepository) ListDirectory(ctx context.Context, userID int64) ([]model.ConversationView, error) {
	query := `
		SELECT c.id,
		       p.user_id,
		       COALESCE(u.username, ''),
		       COALESCE(u.avatar_url, ''),
		       m.id, m.sender_id, m.content, m.seen, m.created_at,
		       (SELECT COUNT(*) FROM messages mm
		         WHERE mm.conversation_id = c.id AND mm.sender_id <> $1 AND mm.seen = FALSE)
		FROM conversations c
		JOIN conversation_participants me ON me.conversation_id = c.id AND me.user_id = $1
		JOIN conversation_participants p ON p.conversation_id = c.id AND p.user_id <> $1
		LEFT JOIN users u ON u.id = p.user_id
		LEFT JOIN LATERAL (
			SELECT id, sender_id, content, seen, created_at
			FROM messages
			WHERE conversation_id = c.id
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		) m ON TRUE
		ORDER BY m.created_at DESC NULLS LAST, c.id
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	views := make([]model.ConversationView, 0)
	for rows.Next() {
		var view model.ConversationView
		var lastID, lastSender *int64
		var lastContent *string
		var lastSeen *bool
		var lastCreated *time.Time

		err := rows.Scan(
			&view.ConversationID,
			&view.Peer.UserID,
			&view.Peer.Username,
			&view.Peer.AvatarURL,
			&lastID, &lastSender, &lastContent, &lastSeen, &lastCreated,
			&view.UnreadCount,
		)
		if err != nil {
			return nil, err
		}

		// 资料缺失时降级为占位身份
		if view.Peer.Username == "" {
			view.Peer = model.PlaceholderProfile(view.Peer.UserID)
		}

		if lastID != nil {
			view.LastMessage = &model.LastMessage{
				ID:        *lastID,
				SenderID:  *lastSender,
				Content:   *lastContent,
				Seen:      *lastSeen,
				CreatedAt: *lastCreated,
			}
			view.UpdateAt = lastCreated.UnixMilli()
		}

		views = append(views, view)
	}

	return views, rows.Err()
}

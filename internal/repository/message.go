package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sudooom.im.chat/internal/model"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository 消息数据访问
type MessageRepository struct {
	db *pgxpool.Pool
}

// NewMessageRepository 创建消息仓库
func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: db}
}

// Insert 写入消息
// ID 与 created_at 由调用方预先生成（雪花ID，时间同序）
func (r *MessageRepository) Insert(ctx context.Context, msg *model.Message) error {
	query := `
		INSERT INTO messages (id, client_msg_id, conversation_id, sender_id, content, image_url, seen, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
	`
	_, err := r.db.Exec(ctx, query,
		msg.ID,
		msg.ClientMsgID,
		msg.ConversationID,
		msg.SenderID,
		msg.Content,
		msg.ImageURL,
		msg.CreatedAt,
	)
	return err
}

// GetByID 根据 ID 查找消息
func (r *MessageRepository) GetByID(ctx context.Context, id int64) (*model.Message, error) {
	query := `
		SELECT id, client_msg_id, conversation_id, sender_id, content, COALESCE(image_url, ''), seen, seen_at, created_at
		FROM messages WHERE id = $1
	`
	msg := &model.Message{State: model.DeliveryConfirmed}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&msg.ID,
		&msg.ClientMsgID,
		&msg.ConversationID,
		&msg.SenderID,
		&msg.Content,
		&msg.ImageURL,
		&msg.Seen,
		&msg.SeenAt,
		&msg.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	return msg, nil
}

// ListRecent 查询会话最近 limit 条消息，按 (created_at, id) 升序返回
func (r *MessageRepository) ListRecent(ctx context.Context, conversationID int64, limit int) ([]model.Message, error) {
	query := `
		SELECT id, client_msg_id, conversation_id, sender_id, content, COALESCE(image_url, ''), seen, seen_at, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	reverse(msgs)
	return msgs, nil
}

// ListBefore 查询严格早于 beforeID 的最多 limit 条消息，按升序返回
// 雪花ID与生成时间同序，按 id 过滤即等价于按 (created_at, id) 过滤
func (r *MessageRepository) ListBefore(ctx context.Context, conversationID, beforeID int64, limit int) ([]model.Message, error) {
	query := `
		SELECT id, client_msg_id, conversation_id, sender_id, content, COALESCE(image_url, ''), seen, seen_at, created_at
		FROM messages
		WHERE conversation_id = $1 AND id < $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`
	rows, err := r.db.Query(ctx, query, conversationID, beforeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	reverse(msgs)
	return msgs, nil
}

// MarkSeen 标记单条消息已读（幂等，只允许 false -> true）
func (r *MessageRepository) MarkSeen(ctx context.Context, id int64) error {
	query := `UPDATE messages SET seen = TRUE, seen_at = NOW() WHERE id = $1 AND seen = FALSE`
	_, err := r.db.Exec(ctx, query, id)
	return err
}

// MarkConversationSeen 标记会话中对方发送的全部未读消息为已读
// 返回受影响的行数
func (r *MessageRepository) MarkConversationSeen(ctx context.Context, conversationID, viewerID int64) (int64, error) {
	query := `
		UPDATE messages SET seen = TRUE, seen_at = NOW()
		WHERE conversation_id = $1 AND sender_id <> $2 AND seen = FALSE
	`
	tag, err := r.db.Exec(ctx, query, conversationID, viewerID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CountUnseen 统计会话中 viewer 的未读数
// 未读数始终重新统计，不做增减维护，避免与已读标记竞争产生漂移
func (r *MessageRepository) CountUnseen(ctx context.Context, conversationID, viewerID int64) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages WHERE conversation_id = $1 AND sender_id <> $2 AND seen = FALSE`,
		conversationID, viewerID,
	).Scan(&count)
	return count, err
}

// scanMessages 扫描消息行
func scanMessages(rows pgx.Rows) ([]model.Message, error) {
	msgs := make([]model.Message, 0)
	for rows.Next() {
		msg := model.Message{State: model.DeliveryConfirmed}
		err := rows.Scan(
			&msg.ID,
			&msg.ClientMsgID,
			&msg.ConversationID,
			&msg.SenderID,
			&msg.Content,
			&msg.ImageURL,
			&msg.Seen,
			&msg.SeenAt,
			&msg.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// reverse 原地反转（查询按倒序取最近一页，展示按升序）
func reverse(msgs []model.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}

package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"sudooom.im.chat/internal/model"
	"sudooom.im.chat/pkg/snowflake"
)

// BatchSender 批量写入需要的数据库能力（pgxpool.Pool 满足）
type BatchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// MessageBatcherConfig 批量写入配置
type MessageBatcherConfig struct {
	BatchSize     int           // 批量大小阈值
	FlushInterval time.Duration // 兜底刷新间隔
}

// messageToSave 待保存的消息
type messageToSave struct {
	Msg        *model.Message
	ResultChan chan error // 用于通知保存结果
}

// MessageBatcher 消息批量写入器
// 服务端 ID 和时间戳在入队前预先分配，写入失败通过 ResultChan 回报。
// 队列抽干即落库：批量只在持续高压下自然形成，低负载时单条消息
// 也会立即写入，同步发送方不会被定时器拖住
type MessageBatcher struct {
	db       BatchSender
	sf       *snowflake.Node
	config   MessageBatcherConfig
	msgChan  chan *messageToSave
	logger   *slog.Logger
	wg       sync.WaitGroup
	stopChan chan struct{}
}

// NewMessageBatcher 创建消息批量写入器
func NewMessageBatcher(db BatchSender, sf *snowflake.Node, config MessageBatcherConfig) *MessageBatcher {
	// 设置默认值
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = time.Second
	}

	return &MessageBatcher{
		db:       db,
		sf:       sf,
		config:   config,
		msgChan:  make(chan *messageToSave, config.BatchSize*10),
		logger:   slog.Default(),
		stopChan: make(chan struct{}),
	}
}

// Start 启动批量写入器
func (b *MessageBatcher) Start(ctx context.Context) {
	b.wg.Add(1)
	go b.worker(ctx)
	b.logger.Info("MessageBatcher started",
		"batchSize", b.config.BatchSize,
		"flushInterval", b.config.FlushInterval,
	)
}

// Stop 停止批量写入器
func (b *MessageBatcher) Stop() {
	close(b.stopChan)
	b.wg.Wait()
	b.logger.Info("MessageBatcher stopped")
}

// assign 预分配服务端 ID 与时间戳，标记为已确认
func (b *MessageBatcher) assign(msg *model.Message) {
	msg.ID = b.sf.Generate().Int64()
	msg.CreatedAt = time.Now()
	msg.State = model.DeliveryConfirmed
}

// SaveMessage 异步保存消息（立即返回 serverMsgId，不等待落库）
func (b *MessageBatcher) SaveMessage(msg *model.Message) (int64, error) {
	b.assign(msg)

	item := &messageToSave{
		Msg:        msg,
		ResultChan: make(chan error, 1),
	}

	select {
	case b.msgChan <- item:
		return msg.ID, nil
	default:
		// 队列满，记录警告，同步等待
		b.logger.Warn("Message batch queue full, waiting...")
		b.msgChan <- item
		return msg.ID, nil
	}
}

// SaveMessageSync 同步保存消息（等待写入完成）
func (b *MessageBatcher) SaveMessageSync(msg *model.Message) (int64, error) {
	b.assign(msg)

	item := &messageToSave{
		Msg:        msg,
		ResultChan: make(chan error, 1),
	}

	b.msgChan <- item

	err := <-item.ResultChan
	return msg.ID, err
}

// worker 后台工作协程
func (b *MessageBatcher) worker(ctx context.Context) {
	defer b.wg.Done()

	batch := make([]*messageToSave, 0, b.config.BatchSize)
	ticker := time.NewTicker(b.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if len(batch) > 0 {
				b.flush(ctx, batch)
			}
			return
		case <-b.stopChan:
			// 停止信号，刷入剩余消息
			if len(batch) > 0 {
				b.flush(context.Background(), batch)
			}
			return
		case item := <-b.msgChan:
			batch = append(batch, item)
			// 继续吸收已排队的消息，队列抽干或批量到达阈值立即落库
		drain:
			for len(batch) < b.config.BatchSize {
				select {
				case more := <-b.msgChan:
					batch = append(batch, more)
				default:
					break drain
				}
			}
			b.flush(ctx, batch)
			batch = make([]*messageToSave, 0, b.config.BatchSize)
		case <-ticker.C:
			// 兜底刷入
			if len(batch) > 0 {
				b.flush(ctx, batch)
				batch = make([]*messageToSave, 0, b.config.BatchSize)
			}
		}
	}
}

// flush 批量写入数据库
func (b *MessageBatcher) flush(ctx context.Context, batch []*messageToSave) {
	if len(batch) == 0 {
		return
	}

	startTime := time.Now()

	pgBatch := &pgx.Batch{}
	query := `
		INSERT INTO messages (id, client_msg_id, conversation_id, sender_id, content, image_url, seen, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
	`

	for _, item := range batch {
		pgBatch.Queue(query,
			item.Msg.ID,
			item.Msg.ClientMsgID,
			item.Msg.ConversationID,
			item.Msg.SenderID,
			item.Msg.Content,
			item.Msg.ImageURL,
			item.Msg.CreatedAt,
		)
	}

	br := b.db.SendBatch(ctx, pgBatch)
	defer func(br pgx.BatchResults) {
		if err := br.Close(); err != nil {
			b.logger.Error("Failed to close batch results", "error", err)
		}
	}(br)

	var batchErr error
	for i := 0; i < len(batch); i++ {
		_, err := br.Exec()
		if err != nil {
			batchErr = err
			b.logger.Error("Failed to save message in batch",
				"serverMsgId", batch[i].Msg.ID,
				"error", err,
			)
		}
		// 通知等待的调用者
		if batch[i].ResultChan != nil {
			select {
			case batch[i].ResultChan <- err:
			default:
			}
		}
	}

	elapsed := time.Since(startTime)
	if batchErr != nil {
		b.logger.Error("Batch flush completed with errors",
			"count", len(batch),
			"elapsed", elapsed,
		)
	} else {
		b.logger.Debug("Batch flush completed",
			"count", len(batch),
			"elapsed", elapsed,
		)
	}
}

// GetQueueSize 获取当前队列大小（用于监控）
func (b *MessageBatcher) GetQueueSize() int {
	return len(b.msgChan)
}

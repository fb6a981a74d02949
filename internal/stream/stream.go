package stream

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"sudooom.im.chat/internal/model"
	"sudooom.im.chat/internal/storage"
	apperrors "sudooom.im.chat/pkg/errors"
)

// State 会话流状态
type State int

const (
	StateIdle         State = 0 // 未打开会话
	StateLoading      State = 1 // 初始页加载中
	StateReady        State = 2 // 已就绪，接收实时更新
	StateLoadingOlder State = 3 // 向上翻页加载中
)

// Store 消息读取能力
type Store interface {
	ListRecent(ctx context.Context, conversationID int64, limit int) ([]model.Message, error)
	ListBefore(ctx context.Context, conversationID, beforeID int64, limit int) ([]model.Message, error)
}

// Sender 持久化发送能力
// 返回服务端确认后的消息（带服务端 ID 与时间戳）
type Sender interface {
	Send(ctx context.Context, msg *model.Message) (*model.Message, error)
}

// Config 会话流配置
type Config struct {
	InitialPageSize int // 初始加载条数
	OlderPageSize   int // 向上翻页条数
}

// Controller 单个打开会话的消息流控制器
//
// 持有该会话唯一的有序消息序列，推送、轮询、翻页得到的数据都经过
// 同一个按 ID 幂等合并入口，最终展示顺序始终是 (created_at, id) 升序。
// 序列只被本控制器修改。
type Controller struct {
	viewerID int64
	store    Store
	sender   Sender
	cfg      Config
	logger   *slog.Logger
	onUpdate func() // 序列变化回调（可选，用于触发重绘）

	mu             sync.Mutex
	state          State
	conversationID int64
	msgs           []model.Message
	noMore         bool // 已到达历史起点，不再发起翻页
}

// NewController 创建消息流控制器
func NewController(store Store, sender Sender, viewerID int64, cfg Config, onUpdate func()) *Controller {
	if cfg.InitialPageSize <= 0 {
		cfg.InitialPageSize = 50
	}
	if cfg.OlderPageSize <= 0 {
		cfg.OlderPageSize = 20
	}
	return &Controller{
		viewerID: viewerID,
		store:    store,
		sender:   sender,
		cfg:      cfg,
		logger:   slog.Default(),
		onUpdate: onUpdate,
		state:    StateIdle,
	}
}

// Open 打开会话并加载最近一页
// Idle -> Loading -> Ready；加载失败回到 Idle，错误可重试
func (c *Controller) Open(ctx context.Context, conversationID int64) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return apperrors.ErrServerError.Wrap(errStreamBusy)
	}
	c.state = StateLoading
	c.conversationID = conversationID
	c.msgs = nil
	c.noMore = false
	c.mu.Unlock()

	page, err := c.store.ListRecent(ctx, conversationID, c.cfg.InitialPageSize)

	c.mu.Lock()
	// 加载期间会话可能已被关闭甚至重新打开
	if c.state != StateLoading || c.conversationID != conversationID {
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		c.state = StateIdle
		c.conversationID = 0
		c.mu.Unlock()
		return apperrors.ErrStoreUnavailable.Wrap(err)
	}

	// 加载期间推送已经合并进序列，初始页同样走幂等合并
	for i := range page {
		c.mergeLocked(page[i])
	}
	if len(page) < c.cfg.InitialPageSize {
		c.noMore = true
	}
	c.state = StateReady
	c.mu.Unlock()

	c.notifyUpdate()
	return nil
}

// Close 关闭会话，回到 Idle
// 订阅与轮询的注销由一致性守卫负责，这里只清空本地序列
func (c *Controller) Close() {
	c.mu.Lock()
	c.state = StateIdle
	c.conversationID = 0
	c.msgs = nil
	c.noMore = false
	c.mu.Unlock()

	c.notifyUpdate()
}

// State 返回当前状态
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ConversationID 返回当前打开的会话 ID，Idle 时为 0
func (c *Controller) ConversationID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversationID
}

// Messages 返回消息序列的副本（升序）
func (c *Controller) Messages() []model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]model.Message, len(c.msgs))
	copy(out, c.msgs)
	return out
}

// HasMore 是否还有更早的历史
func (c *Controller) HasMore() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.noMore
}

// LoadOlder 向上翻页，取严格早于当前最早已确认消息的一页
// 对重复触发幂等：非 Ready 状态或已到历史起点时直接返回
func (c *Controller) LoadOlder(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateReady || c.noMore {
		c.mu.Unlock()
		return nil
	}
	anchor := c.oldestConfirmedLocked()
	if anchor == 0 {
		// 序列里没有已确认消息，无从翻页
		c.mu.Unlock()
		return nil
	}
	c.state = StateLoadingOlder
	conversationID := c.conversationID
	c.mu.Unlock()

	page, err := c.store.ListBefore(ctx, conversationID, anchor, c.cfg.OlderPageSize)

	c.mu.Lock()
	// 翻页期间会话可能已被关闭
	if c.state != StateLoadingOlder || c.conversationID != conversationID {
		c.mu.Unlock()
		return nil
	}
	c.state = StateReady
	if err != nil {
		c.mu.Unlock()
		return apperrors.ErrStoreUnavailable.Wrap(err)
	}

	for i := range page {
		c.mergeLocked(page[i])
	}
	if len(page) < c.cfg.OlderPageSize {
		// 短页即历史起点，之后不再发起翻页
		c.noMore = true
	}
	c.mu.Unlock()

	c.notifyUpdate()
	return nil
}

// ApplyIncoming 合并一条新观察到的消息（来自推送或轮询）
// 按 ID 幂等：同一条消息被推送和轮询各送达一次，结果与送达一次相同
func (c *Controller) ApplyIncoming(msg model.Message) {
	c.mu.Lock()
	if c.state == StateIdle || msg.ConversationID != c.conversationID {
		c.mu.Unlock()
		return
	}
	changed := c.mergeLocked(msg)
	c.mu.Unlock()

	if changed {
		c.notifyUpdate()
	}
}

// Send 乐观发送
// 立即以 Pending 状态追加到本地序列，落库成功后用确认记录整体替换
// （服务端 ID + 服务端时间戳），失败则移除 Pending 条目并返回错误。
// 单条失败不阻塞后续发送
func (c *Controller) Send(ctx context.Context, content, imageURL string) (*model.Message, error) {
	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		return nil, apperrors.ErrSendFailed.Wrap(errStreamClosed)
	}
	conversationID := c.conversationID

	pending := model.Message{
		ClientMsgID:    uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       c.viewerID,
		Content:        content,
		ImageURL:       imageURL,
		CreatedAt:      time.Now(),
		State:          model.DeliveryPending,
	}
	c.msgs = append(c.msgs, pending)
	c.sortLocked()
	c.mu.Unlock()

	c.notifyUpdate()

	confirmed, err := c.sender.Send(ctx, &pending)
	if err != nil {
		c.removePending(pending.ClientMsgID)
		return nil, apperrors.ErrSendFailed.Wrap(err)
	}

	c.mu.Lock()
	if c.conversationID == conversationID {
		c.mergeLocked(*confirmed)
	}
	c.mu.Unlock()

	c.notifyUpdate()
	return confirmed, nil
}

// SendImage 先上传附件，再发送携带引用 URL 的图片消息
// 上传失败不产生乐观条目：没有引用 URL 的图片消息无法展示
func (c *Controller) SendImage(ctx context.Context, uploader storage.Uploader, name string, r io.Reader) (*model.Message, error) {
	url, err := uploader.Upload(ctx, name, r)
	if err != nil {
		return nil, apperrors.ErrSendFailed.Wrap(err)
	}
	return c.Send(ctx, "", url)
}

// mergeLocked 幂等合并一条消息，返回序列是否变化
// 匹配优先级：服务端 ID > 客户端临时 ID > 新消息插入
func (c *Controller) mergeLocked(msg model.Message) bool {
	if msg.ID != 0 {
		if i := c.indexByIDLocked(msg.ID); i >= 0 {
			return c.updateLocked(i, msg)
		}
		if msg.ClientMsgID != "" {
			if i := c.indexByClientIDLocked(msg.ClientMsgID); i >= 0 {
				// 确认记录替换乐观条目，时间戳换成服务端时间后重排
				c.msgs[i] = msg
				c.sortLocked()
				return true
			}
		}
	} else if msg.ClientMsgID != "" && c.indexByClientIDLocked(msg.ClientMsgID) >= 0 {
		// 重复的 Pending，忽略
		return false
	}

	c.msgs = append(c.msgs, msg)
	c.sortLocked()
	return true
}

// updateLocked 更新已存在的条目
// created_at 不可变，seen 只允许 false -> true
func (c *Controller) updateLocked(i int, msg model.Message) bool {
	cur := &c.msgs[i]
	changed := false
	if msg.Seen && !cur.Seen {
		cur.Seen = true
		cur.SeenAt = msg.SeenAt
		changed = true
	}
	return changed
}

// sortLocked 重建 (created_at, id) 升序
func (c *Controller) sortLocked() {
	sort.SliceStable(c.msgs, func(a, b int) bool {
		return c.msgs[a].Before(&c.msgs[b])
	})
}

// oldestConfirmedLocked 返回最早的已确认消息 ID，没有则返回 0
func (c *Controller) oldestConfirmedLocked() int64 {
	for i := range c.msgs {
		if c.msgs[i].ID != 0 {
			return c.msgs[i].ID
		}
	}
	return 0
}

func (c *Controller) indexByIDLocked(id int64) int {
	for i := range c.msgs {
		if c.msgs[i].ID == id {
			return i
		}
	}
	return -1
}

func (c *Controller) indexByClientIDLocked(clientID string) int {
	for i := range c.msgs {
		if c.msgs[i].ClientMsgID == clientID {
			return i
		}
	}
	return -1
}

// removePending 移除发送失败的乐观条目
func (c *Controller) removePending(clientID string) {
	c.mu.Lock()
	if i := c.indexByClientIDLocked(clientID); i >= 0 && !c.msgs[i].Confirmed() {
		c.msgs = append(c.msgs[:i], c.msgs[i+1:]...)
	}
	c.mu.Unlock()

	c.notifyUpdate()
}

func (c *Controller) notifyUpdate() {
	if c.onUpdate != nil {
		c.onUpdate()
	}
}

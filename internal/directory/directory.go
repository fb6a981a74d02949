package directory

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"sudooom.im.chat/internal/model"
	"sudooom.im.chat/internal/notify"
	"sudooom.im.chat/internal/repository"
	apperrors "sudooom.im.chat/pkg/errors"
	"sudooom.im.chat/pkg/proto"
)

// Store 目录需要的存储能力
type Store interface {
	ListDirectory(ctx context.Context, userID int64) ([]model.ConversationView, error)
	FindDirect(ctx context.Context, userID, otherID int64) (*model.Conversation, error)
	CreateDirect(ctx context.Context, userID, otherID int64) (*model.Conversation, error)
}

// Subscriber 目录失效信号订阅能力
type Subscriber interface {
	SubscribeDirectory(userID int64, fn func(proto.DirectoryChange)) (*notify.Subscription, error)
}

// DefaultRefreshInterval Watch 的兜底刷新间隔
const DefaultRefreshInterval = 10 * time.Second

// MaxDirectorySize 目录单次返回的最大会话数
// 缓存命中与回源两条路径按同一上限截断，保证结果一致
const MaxDirectorySize = 200

// Directory 会话目录
// 维护当前用户的会话列表（最近活动优先），每条带对端资料、
// 最后一条消息快照和未读数。预览缓存只由这里的刷新路径写入
type Directory struct {
	store      Store
	cache      *Cache // 可为 nil，纯回源模式
	subscriber Subscriber
	logger     *slog.Logger
}

// NewDirectory 创建会话目录
func NewDirectory(store Store, cache *Cache, subscriber Subscriber) *Directory {
	return &Directory{
		store:      store,
		cache:      cache,
		subscriber: subscriber,
		logger:     slog.Default(),
	}
}

// List 获取用户的会话目录
// 优先走缓存，未命中回源并重建缓存
func (d *Directory) List(ctx context.Context, userID int64) ([]model.ConversationView, error) {
	if d.cache != nil {
		views, hit, err := d.cache.Get(ctx, userID, 0, MaxDirectorySize)
		if err != nil {
			// 缓存故障不阻塞目录，回源
			d.logger.Warn("Directory cache read failed", "userId", userID, "error", err)
		} else if hit {
			return views, nil
		}
	}
	return d.Refresh(ctx, userID)
}

// Refresh 从存储重新拉取目录并重写缓存
// 触发来源：变更通知、用户主动刷新、兜底定时器
func (d *Directory) Refresh(ctx context.Context, userID int64) ([]model.ConversationView, error) {
	views, err := d.store.ListDirectory(ctx, userID)
	if err != nil {
		return nil, apperrors.ErrStoreUnavailable.Wrap(err)
	}

	if d.cache != nil {
		if err := d.cache.Put(ctx, userID, views); err != nil {
			d.logger.Warn("Directory cache write failed", "userId", userID, "error", err)
		}
	}

	if len(views) > MaxDirectorySize {
		views = views[:MaxDirectorySize]
	}
	return views, nil
}

// FindOrCreate 查找或创建两个用户之间的私聊会话
//
// 先查后建，不依赖事务级唯一约束；插入失败后重新查询一次，
// 容忍双方并发创建的竞争。成员行写入不完整时返回
// ErrConversationUnusable，调用方不应选中该会话，应重试创建
func (d *Directory) FindOrCreate(ctx context.Context, userID, otherID int64) (int64, error) {
	if userID == otherID {
		return 0, apperrors.ErrSelfConversation
	}

	conv, err := d.store.FindDirect(ctx, userID, otherID)
	if err == nil {
		return conv.ID, nil
	}
	if !errors.Is(err, repository.ErrConversationNotFound) {
		return 0, apperrors.ErrStoreUnavailable.Wrap(err)
	}

	conv, err = d.store.CreateDirect(ctx, userID, otherID)
	if err == nil {
		return conv.ID, nil
	}
	if errors.Is(err, repository.ErrConversationUnusable) {
		return 0, apperrors.ErrConversationUnusable.Wrap(err)
	}

	// 插入失败可能是对方刚创建了同一会话，重查一次
	conv, findErr := d.store.FindDirect(ctx, userID, otherID)
	if findErr == nil {
		return conv.ID, nil
	}

	return 0, apperrors.ErrStoreUnavailable.Wrap(err)
}

// Watch 订阅目录变化
// 变更通知与兜底定时器并行驱动刷新，两者在 Stop 时一起注销
func (d *Directory) Watch(ctx context.Context, userID int64, interval time.Duration, onUpdate func([]model.ConversationView)) (*Watch, error) {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}

	watch := &Watch{
		stopChan: make(chan struct{}),
	}

	refresh := func() {
		// 注销后残留的通知不再触发刷新
		select {
		case <-watch.stopChan:
			return
		default:
		}

		refreshCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		views, err := d.Refresh(refreshCtx, userID)
		if err != nil {
			// 读失败可重试，保留上一次的视图
			d.logger.Warn("Directory refresh failed", "userId", userID, "error", err)
			return
		}
		if onUpdate != nil {
			onUpdate(views)
		}
	}

	sub, err := d.subscriber.SubscribeDirectory(userID, func(change proto.DirectoryChange) {
		refresh()
	})
	if err != nil {
		return nil, err
	}
	watch.sub = sub

	watch.wg.Add(1)
	go func() {
		defer watch.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				// 上下文取消等同于 Stop：订阅和定时器一起注销
				watch.teardown()
				return
			case <-watch.stopChan:
				return
			case <-ticker.C:
				refresh()
			}
		}
	}()

	return watch, nil
}

// Watch 目录订阅句柄
type Watch struct {
	sub      *notify.Subscription
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// teardown 注销订阅并通知刷新路径停止
func (w *Watch) teardown() {
	w.stopOnce.Do(func() {
		w.sub.Unsubscribe()
		close(w.stopChan)
	})
}

// Stop 注销订阅并停止兜底定时器
func (w *Watch) Stop() {
	w.teardown()
	w.wg.Wait()
}

package readstate

import (
	"context"
	"errors"
	"testing"
	"time"

	"sudooom.im.chat/internal/model"
)

type fakeStore struct {
	seenIDs      []int64
	affected     int64
	markErr      error
	unseen       int
	countErr     error
	convCalls    int
	lastConvID   int64
	lastViewerID int64
}

func (s *fakeStore) MarkSeen(ctx context.Context, id int64) error {
	if s.markErr != nil {
		return s.markErr
	}
	s.seenIDs = append(s.seenIDs, id)
	return nil
}

func (s *fakeStore) MarkConversationSeen(ctx context.Context, conversationID, viewerID int64) (int64, error) {
	s.convCalls++
	s.lastConvID = conversationID
	s.lastViewerID = viewerID
	if s.markErr != nil {
		return 0, s.markErr
	}
	return s.affected, nil
}

func (s *fakeStore) CountUnseen(ctx context.Context, conversationID, viewerID int64) (int, error) {
	if s.countErr != nil {
		return 0, s.countErr
	}
	return s.unseen, nil
}

type fakeNotifier struct {
	published [][2]int64 // (userID, conversationID)
}

func (n *fakeNotifier) PublishDirectoryChange(userID, conversationID int64) error {
	n.published = append(n.published, [2]int64{userID, conversationID})
	return nil
}

func TestMarkConversationRead(t *testing.T) {
	store := &fakeStore{affected: 3}
	notifier := &fakeNotifier{}
	tracker := NewTracker(store, notifier)

	affected, err := tracker.MarkConversationRead(context.Background(), 100, 1001)
	if err != nil {
		t.Fatalf("MarkConversationRead failed: %v", err)
	}
	if affected != 3 {
		t.Errorf("期望影响3条, 实际 = %d", affected)
	}
	if store.lastConvID != 100 || store.lastViewerID != 1001 {
		t.Errorf("期望 (100, 1001), 实际 = (%d, %d)", store.lastConvID, store.lastViewerID)
	}

	// 未读角标变化，viewer 的目录收到失效信号
	if len(notifier.published) != 1 {
		t.Fatalf("期望1次目录失效, 实际 = %d", len(notifier.published))
	}
	if notifier.published[0] != [2]int64{1001, 100} {
		t.Errorf("期望发布给 (1001, 100), 实际 = %v", notifier.published[0])
	}
}

func TestMarkConversationReadNoChange(t *testing.T) {
	store := &fakeStore{affected: 0}
	notifier := &fakeNotifier{}
	tracker := NewTracker(store, notifier)

	// 会话里没有未读消息，重复标记
	affected, err := tracker.MarkConversationRead(context.Background(), 100, 1001)
	if err != nil {
		t.Fatalf("MarkConversationRead failed: %v", err)
	}
	if affected != 0 {
		t.Errorf("期望影响0条, 实际 = %d", affected)
	}

	// 无变化不应发布失效信号
	if len(notifier.published) != 0 {
		t.Errorf("期望0次目录失效, 实际 = %d", len(notifier.published))
	}
}

func TestMarkConversationReadStoreError(t *testing.T) {
	store := &fakeStore{markErr: errors.New("connection reset")}
	notifier := &fakeNotifier{}
	tracker := NewTracker(store, notifier)

	_, err := tracker.MarkConversationRead(context.Background(), 100, 1001)
	if err == nil {
		t.Fatal("期望错误")
	}
	if len(notifier.published) != 0 {
		t.Error("存储失败时不应发布失效信号")
	}
}

func TestMarkConversationReadNilNotifier(t *testing.T) {
	store := &fakeStore{affected: 2}
	tracker := NewTracker(store, nil)

	if _, err := tracker.MarkConversationRead(context.Background(), 100, 1001); err != nil {
		t.Fatalf("纯本地模式不应失败: %v", err)
	}
}

func TestMarkMessageSeen(t *testing.T) {
	store := &fakeStore{}
	tracker := NewTracker(store, nil)

	if err := tracker.MarkMessageSeen(context.Background(), 42); err != nil {
		t.Fatalf("MarkMessageSeen failed: %v", err)
	}
	if len(store.seenIDs) != 1 || store.seenIDs[0] != 42 {
		t.Errorf("期望标记 ID 42, 实际 = %v", store.seenIDs)
	}
}

func TestUnreadCount(t *testing.T) {
	store := &fakeStore{unseen: 7}
	tracker := NewTracker(store, nil)

	count, err := tracker.UnreadCount(context.Background(), 100, 1001)
	if err != nil {
		t.Fatalf("UnreadCount failed: %v", err)
	}
	if count != 7 {
		t.Errorf("期望未读数 7, 实际 = %d", count)
	}
}

func TestComputeUnread(t *testing.T) {
	now := time.Now()
	viewer := int64(1001)
	peer := int64(2001)

	msgs := []model.Message{
		{ID: 1, SenderID: peer, Seen: false, CreatedAt: now},
		{ID: 2, SenderID: peer, Seen: true, CreatedAt: now},
		{ID: 3, SenderID: viewer, Seen: false, CreatedAt: now}, // 自己发的不计未读
		{ID: 4, SenderID: peer, Seen: false, CreatedAt: now},
	}

	if got := ComputeUnread(msgs, viewer); got != 2 {
		t.Errorf("期望未读数 2, 实际 = %d", got)
	}
}

func TestComputeUnreadEmpty(t *testing.T) {
	if got := ComputeUnread(nil, 1001); got != 0 {
		t.Errorf("期望未读数 0, 实际 = %d", got)
	}
}

func TestComputeUnreadAllSeen(t *testing.T) {
	now := time.Now()
	msgs := []model.Message{
		{ID: 1, SenderID: 2001, Seen: true, CreatedAt: now},
		{ID: 2, SenderID: 2001, Seen: true, CreatedAt: now},
	}

	if got := ComputeUnread(msgs, 1001); got != 0 {
		t.Errorf("期望未读数 0, 实际 = %d", got)
	}
}

package realtime

import (
	"sync"

	messagingModel "creator_ledger/internal/domain/messaging/model"
	notificationModel "creator_ledger/internal/domain/notification/model"
)

// ListView 扁平列表的本地状态（会话消息、通知流）
type ListView[T any] struct {
	mu          sync.RWMutex
	localUserID uint64
	items       []*T
	idOf        func(*T) uint64
	newestFirst bool
}

func newListView[T any](localUserID uint64, idOf func(*T) uint64, newestFirst bool) *ListView[T] {
	return &ListView[T]{localUserID: localUserID, idOf: idOf, newestFirst: newestFirst}
}

// ConversationView 会话消息，按时间正序
type ConversationView = ListView[messagingModel.Message]

// NotificationView 通知，最新在前
type NotificationView = ListView[notificationModel.Notification]

func NewConversationView(localUserID uint64) *ConversationView {
	return newListView(localUserID, func(m *messagingModel.Message) uint64 { return m.ID }, false)
}

func NewNotificationView(localUserID uint64) *NotificationView {
	return newListView(localUserID, func(n *notificationModel.Notification) uint64 { return n.ID }, true)
}

// Load 用基线替换当前状态
func (v *ListView[T]) Load(baseline []*T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.items = make([]*T, 0, len(baseline))
	for _, item := range baseline {
		cp := *item
		v.items = append(v.items, &cp)
	}
}

// Apply 合并一条变更事件，返回状态是否改变
func (v *ListView[T]) Apply(ev Event) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch ev.Op {
	case OpInsert:
		if ev.OriginUserID == v.localUserID {
			return false
		}
		var item T
		if err := ev.Decode(&item); err != nil {
			return false
		}
		return v.insertLocked(&item)
	case OpUpdate:
		var item T
		if err := ev.Decode(&item); err != nil {
			return false
		}
		if i := v.indexLocked(v.idOf(&item)); i >= 0 {
			v.items[i] = &item
			return true
		}
		return false
	case OpDelete:
		if i := v.indexLocked(ev.RecordID); i >= 0 {
			v.items = append(v.items[:i:i], v.items[i+1:]...)
			return true
		}
		return false
	}
	return false
}

// AddLocal 乐观写入本地创建的记录
func (v *ListView[T]) AddLocal(item *T) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	cp := *item
	return v.insertLocked(&cp)
}

func (v *ListView[T]) insertLocked(item *T) bool {
	if v.indexLocked(v.idOf(item)) >= 0 {
		return false
	}
	if v.newestFirst {
		v.items = append([]*T{item}, v.items...)
	} else {
		v.items = append(v.items, item)
	}
	return true
}

func (v *ListView[T]) indexLocked(id uint64) int {
	for i, item := range v.items {
		if v.idOf(item) == id {
			return i
		}
	}
	return -1
}

// Snapshot 返回列表拷贝
func (v *ListView[T]) Snapshot() []*T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]*T, len(v.items))
	for i, item := range v.items {
		cp := *item
		out[i] = &cp
	}
	return out
}

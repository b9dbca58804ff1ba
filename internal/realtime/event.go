package realtime

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ScopeKind 变更订阅范围
type ScopeKind string

const (
	ScopeThread        ScopeKind = "thread"        // 帖子评论串
	ScopeConversation  ScopeKind = "conversation"  // 私信会话
	ScopeNotifications ScopeKind = "notifications" // 用户通知流
)

// Scope 一个订阅范围，例如 thread:42
type Scope struct {
	Kind ScopeKind `json:"kind"`
	ID   uint64    `json:"id"`
}

func ThreadScope(postID uint64) Scope { return Scope{Kind: ScopeThread, ID: postID} }

func ConversationScope(conversationID uint64) Scope {
	return Scope{Kind: ScopeConversation, ID: conversationID}
}

func NotificationScope(userID uint64) Scope { return Scope{Kind: ScopeNotifications, ID: userID} }

func (s Scope) String() string {
	return string(s.Kind) + ":" + strconv.FormatUint(s.ID, 10)
}

// ParseScope 解析 kind:id 格式
func ParseScope(s string) (Scope, error) {
	kind, id, ok := strings.Cut(s, ":")
	if !ok {
		return Scope{}, fmt.Errorf("invalid scope %q", s)
	}
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return Scope{}, fmt.Errorf("invalid scope id %q: %w", s, err)
	}
	switch ScopeKind(kind) {
	case ScopeThread, ScopeConversation, ScopeNotifications:
		return Scope{Kind: ScopeKind(kind), ID: n}, nil
	}
	return Scope{}, fmt.Errorf("unknown scope kind %q", kind)
}

// Op 变更类型
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
	// OpResync 本地通道重新拉取了基线，只在本地回调中出现，不经过总线
	OpResync Op = "resync"
)

// Event 变更事件
// OriginUserID 为触发变更的用户，用于本地回声抑制
type Event struct {
	Scope        Scope           `json:"scope"`
	Op           Op              `json:"op"`
	RecordID     uint64          `json:"recordId"`
	ParentID     *uint64         `json:"parentId,omitempty"`
	OriginUserID uint64          `json:"originUserId"`
	Record       json.RawMessage `json:"record,omitempty"`
	At           time.Time       `json:"at"`
}

// NewEvent 构造事件，record 为 nil 时不携带记录（删除事件）
func NewEvent(scope Scope, op Op, recordID uint64, parentID *uint64, originUserID uint64, record interface{}) (Event, error) {
	ev := Event{
		Scope:        scope,
		Op:           op,
		RecordID:     recordID,
		ParentID:     parentID,
		OriginUserID: originUserID,
		At:           time.Now().UTC(),
	}
	if record != nil {
		data, err := json.Marshal(record)
		if err != nil {
			return Event{}, fmt.Errorf("marshal %s record: %w", scope.Kind, err)
		}
		ev.Record = data
	}
	return ev, nil
}

// Decode 反序列化事件携带的记录
func (e Event) Decode(dest interface{}) error {
	if len(e.Record) == 0 {
		return fmt.Errorf("event %s/%s %d carries no record", e.Scope, e.Op, e.RecordID)
	}
	return json.Unmarshal(e.Record, dest)
}

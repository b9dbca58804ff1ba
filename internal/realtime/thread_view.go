package realtime

import (
	"sort"
	"sync"

	interactionModel "creator_ledger/internal/domain/interaction/model"
)

// ThreadView 帖子评论树的本地状态
// 一级评论按时间排列，回复挂在一级评论下；index 包含所有已加载的评论
type ThreadView struct {
	mu          sync.RWMutex
	localUserID uint64
	roots       []*interactionModel.Comment
	index       map[uint64]*interactionModel.Comment
}

func NewThreadView(localUserID uint64) *ThreadView {
	return &ThreadView{
		localUserID: localUserID,
		index:       make(map[uint64]*interactionModel.Comment),
	}
}

// Load 用基线替换当前状态，父评论不在基线中的回复被丢弃
func (v *ThreadView) Load(baseline []*interactionModel.Comment) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.roots = nil
	v.index = make(map[uint64]*interactionModel.Comment, len(baseline))

	sorted := make([]*interactionModel.Comment, len(baseline))
	copy(sorted, baseline)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	for _, c := range sorted {
		if !c.IsReply() {
			v.insertLocked(c)
		}
	}
	for _, c := range sorted {
		if c.IsReply() {
			v.insertLocked(c)
		}
	}
}

// Apply 合并一条变更事件，返回状态是否改变
func (v *ThreadView) Apply(ev Event) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch ev.Op {
	case OpInsert:
		// 本地用户的插入已经乐观写入，回声直接丢弃
		if ev.OriginUserID == v.localUserID {
			return false
		}
		var c interactionModel.Comment
		if err := ev.Decode(&c); err != nil {
			return false
		}
		return v.insertLocked(&c)
	case OpUpdate:
		var c interactionModel.Comment
		if err := ev.Decode(&c); err != nil {
			return false
		}
		return v.replaceLocked(&c)
	case OpDelete:
		return v.removeLocked(ev.RecordID)
	}
	return false
}

// AddLocal 乐观写入本地用户刚创建的评论
func (v *ThreadView) AddLocal(c *interactionModel.Comment) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.insertLocked(c)
}

func (v *ThreadView) insertLocked(c *interactionModel.Comment) bool {
	if _, exists := v.index[c.ID]; exists {
		return false
	}
	node := cloneComment(c)
	node.Replies = nil

	if node.IsReply() {
		parent, ok := v.index[*node.ParentID]
		if !ok || parent.IsReply() {
			return false
		}
		parent.Replies = append(parent.Replies, node)
	} else {
		v.roots = append(v.roots, node)
	}
	v.index[node.ID] = node
	return true
}

// replaceLocked 按 ID 替换内容，保留已有回复；未加载的记录忽略
func (v *ThreadView) replaceLocked(c *interactionModel.Comment) bool {
	existing, ok := v.index[c.ID]
	if !ok {
		return false
	}
	replies := existing.Replies
	parentID := existing.ParentID
	*existing = *cloneComment(c)
	existing.Replies = replies
	existing.ParentID = parentID
	return true
}

// removeLocked 只删除指定 ID，不推断级联删除
func (v *ThreadView) removeLocked(id uint64) bool {
	node, ok := v.index[id]
	if !ok {
		return false
	}
	delete(v.index, id)

	if node.IsReply() {
		if parent, ok := v.index[*node.ParentID]; ok {
			parent.Replies = removeComment(parent.Replies, id)
		}
		return true
	}
	v.roots = removeComment(v.roots, id)
	return true
}

func removeComment(list []*interactionModel.Comment, id uint64) []*interactionModel.Comment {
	for i, c := range list {
		if c.ID == id {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}

// Contains 是否已加载某条评论
func (v *ThreadView) Contains(id uint64) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.index[id]
	return ok
}

// Snapshot 返回评论树的深拷贝
func (v *ThreadView) Snapshot() []*interactionModel.Comment {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make([]*interactionModel.Comment, len(v.roots))
	for i, root := range v.roots {
		cp := cloneComment(root)
		cp.Replies = make([]*interactionModel.Comment, len(root.Replies))
		for j, r := range root.Replies {
			cp.Replies[j] = cloneComment(r)
		}
		out[i] = cp
	}
	return out
}

func cloneComment(c *interactionModel.Comment) *interactionModel.Comment {
	cp := *c
	if c.ParentID != nil {
		pid := *c.ParentID
		cp.ParentID = &pid
	}
	return &cp
}

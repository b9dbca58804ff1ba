// Package entitlement 判断查看者能否看到帖子内容。
// 纯函数，无 I/O；关系标记由调用方批量查询后传入。
package entitlement

import "creator_ledger/internal/domain/content/model"

// Relations 查看者与帖子作者、帖子本身的关系
type Relations struct {
	IsFollowing  bool `json:"isFollowing"`
	IsSubscribed bool `json:"isSubscribed"` // 仅统计有效订阅
	IsPurchased  bool `json:"isPurchased"`
}

// CanView 按优先级依次判断：
//  1. 作者本人始终可见
//  2. 付费帖未购买不可见
//  3. NSFW 帖未订阅不可见
//  4. 订阅者可见的帖未订阅不可见
//  5. 粉丝可见的帖既未关注也未订阅不可见
//  6. 其余可见
//
// viewerID 为 0 表示匿名访问
func CanView(post *model.Post, viewerID uint64, isFollowing, isSubscribed, isPurchased bool) bool {
	if viewerID != 0 && post.OwnerID == viewerID {
		return true
	}
	if post.UnlockPrice > 0 && !isPurchased {
		return false
	}
	if post.IsNSFW && !isSubscribed {
		return false
	}
	switch post.Visibility {
	case model.VisibilitySubscribers:
		if !isSubscribed {
			return false
		}
	case model.VisibilityFollowers:
		if !isFollowing && !isSubscribed {
			return false
		}
	}
	return true
}

// Resolve CanView 的 Relations 版本
func Resolve(post *model.Post, viewerID uint64, rel Relations) bool {
	return CanView(post, viewerID, rel.IsFollowing, rel.IsSubscribed, rel.IsPurchased)
}

// ValidVisibility 是否为合法的可见性取值
func ValidVisibility(v string) bool {
	switch v {
	case model.VisibilityPublic, model.VisibilityFollowers, model.VisibilitySubscribers:
		return true
	}
	return false
}

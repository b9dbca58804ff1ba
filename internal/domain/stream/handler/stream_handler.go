package handler

import (
	"context"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	contentService "creator_ledger/internal/domain/content/service"
	interactionModel "creator_ledger/internal/domain/interaction/model"
	messagingModel "creator_ledger/internal/domain/messaging/model"
	notificationModel "creator_ledger/internal/domain/notification/model"
	"creator_ledger/internal/pkg/apperr"
	commonHandler "creator_ledger/internal/pkg/common"
	"creator_ledger/internal/realtime"
	"creator_ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Heartbeat SSE 心跳间隔
const Heartbeat = 25 * time.Second

// ConversationLoader 加载会话，用于参与者校验
type ConversationLoader interface {
	GetConversation(ctx context.Context, id uint64) (*messagingModel.Conversation, error)
}

// StreamHandler 实时订阅 (SSE)
// 连接建立后先推送一次 snapshot，之后逐条推送 change；
// 消费过慢或通道重新拉取基线后补发 snapshot
type StreamHandler struct {
	bus           realtime.Subscriber
	fetcher       realtime.BaselineFetcher
	posts         contentService.ContentService
	conversations ConversationLoader
	log           *zap.Logger
}

func NewStreamHandler(bus realtime.Subscriber, fetcher realtime.BaselineFetcher, posts contentService.ContentService, conversations ConversationLoader, log *zap.Logger) *StreamHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &StreamHandler{bus: bus, fetcher: fetcher, posts: posts, conversations: conversations, log: log}
}

// feed 订阅回调与 SSE 写循环之间的缓冲
type feed struct {
	events chan realtime.Event
	lagged atomic.Bool
}

func newFeed() *feed {
	return &feed{events: make(chan realtime.Event, 64)}
}

func (f *feed) push(ev realtime.Event) {
	if ev.Op == realtime.OpResync {
		f.lagged.Store(true)
		return
	}
	select {
	case f.events <- ev:
	default:
		f.lagged.Store(true)
	}
}

// serve 写 SSE 直到客户端断开
func (h *StreamHandler) serve(c *gin.Context, f *feed, snapshot func() interface{}, stop func()) {
	defer stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("snapshot", snapshot())
	c.Writer.Flush()

	ticker := time.NewTicker(Heartbeat)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case ev := <-f.events:
			if f.lagged.Swap(false) {
				c.SSEvent("snapshot", snapshot())
				return true
			}
			c.SSEvent("change", ev)
		case <-ticker.C:
			if f.lagged.Swap(false) {
				c.SSEvent("snapshot", snapshot())
				return true
			}
			c.SSEvent("ping", time.Now().Unix())
		}
		return true
	})
}

func (h *StreamHandler) client(uid uint64) *realtime.Client {
	return realtime.NewClient(h.bus, h.fetcher, uid, h.log)
}

// Thread 订阅帖子评论串，需要帖子可见
// @Summary 订阅评论串
// @Tags Stream
// @Produce text/event-stream
// @Param id path int true "帖子ID"
// @Router /stream/threads/{id} [get]
func (h *StreamHandler) Thread(c *gin.Context) {
	uid, ok := commonHandler.MustUser(c)
	if !ok {
		return
	}
	postID, ok := commonHandler.ParseID(c, "id")
	if !ok {
		return
	}
	_, visible, err := h.posts.CanViewPost(c.Request.Context(), postID, uid)
	if err != nil {
		response.FromError(c, err)
		return
	}
	if !visible {
		response.FromError(c, apperr.Permission("post is not visible"))
		return
	}

	f := newFeed()
	view, stop, err := h.client(uid).SubscribeToThread(c.Request.Context(), postID, func(ev realtime.Event, _ []*interactionModel.Comment) {
		f.push(ev)
	})
	if err != nil {
		response.FromError(c, apperr.Transient("subscribe thread", err))
		return
	}
	h.serve(c, f, func() interface{} { return view.Snapshot() }, stop)
}

// Conversation 订阅私信会话，只有参与者可以订阅
func (h *StreamHandler) Conversation(c *gin.Context) {
	uid, ok := commonHandler.MustUser(c)
	if !ok {
		return
	}
	convID, ok := commonHandler.ParseID(c, "id")
	if !ok {
		return
	}
	conv, err := h.conversations.GetConversation(c.Request.Context(), convID)
	if err != nil {
		response.FromError(c, apperr.FromStore("conversation", err))
		return
	}
	if !conv.HasParticipant(uid) {
		response.Error(c, http.StatusForbidden, response.ErrNoPermission, "not a participant of this conversation")
		return
	}

	f := newFeed()
	view, stop, err := h.client(uid).SubscribeToConversation(c.Request.Context(), convID, func(ev realtime.Event, _ []*messagingModel.Message) {
		f.push(ev)
	})
	if err != nil {
		response.FromError(c, apperr.Transient("subscribe conversation", err))
		return
	}
	// 快照按查看者隐藏付费内容
	h.serve(c, f, func() interface{} {
		msgs := view.Snapshot()
		for i, m := range msgs {
			msgs[i] = m.Redacted(uid)
		}
		return msgs
	}, stop)
}

func (h *StreamHandler) Notifications(c *gin.Context) {
	uid, ok := commonHandler.MustUser(c)
	if !ok {
		return
	}
	f := newFeed()
	view, stop, err := h.client(uid).SubscribeToNotifications(c.Request.Context(), func(ev realtime.Event, _ []*notificationModel.Notification) {
		f.push(ev)
	})
	if err != nil {
		response.FromError(c, apperr.Transient("subscribe notifications", err))
		return
	}
	h.serve(c, f, func() interface{} { return view.Snapshot() }, stop)
}

package service

import (
	"strconv"

	"creator_ledger/internal/domain/messaging/model"
	"creator_ledger/pkg/utils"
)

const previewLength = 60

// Preview 会话列表中展示的最后一条消息摘要
// 礼物消息需要传入礼物名称，其余类型忽略 giftName
func Preview(msg *model.Message, giftName string) string {
	switch msg.Type {
	case model.TypeTip:
		return "[tip] " + strconv.FormatInt(msg.Amount, 10)
	case model.TypeGift:
		return "[gift] " + giftName
	case model.TypeMedia:
		return "[media]"
	case model.TypePayPerView:
		return "[pay-per-view]"
	default:
		return utils.Truncate(msg.Content, previewLength)
	}
}

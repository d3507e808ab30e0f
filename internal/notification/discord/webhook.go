package discord

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/assist-by/sentinel/internal/domain"
	"github.com/assist-by/sentinel/internal/notification"
)

// SendError는 에러 알림을 전송합니다
func (c *Client) SendError(err error) error {
	embed := NewEmbed(c.now()).
		SetTitle("에러 발생").
		SetDescription(fmt.Sprintf("```%v```", err)).
		SetColor(domain.ColorError)

	return c.sendToWebhook(c.errorWebhook, WebhookMessage{Embeds: []Embed{*embed}})
}

// SendInfo는 일반 정보 알림을 전송합니다
func (c *Client) SendInfo(message string) error {
	embed := NewEmbed(c.now()).
		SetDescription(message).
		SetColor(domain.ColorInfo)

	return c.sendToWebhook(c.tradeWebhook, WebhookMessage{Embeds: []Embed{*embed}})
}

// SendTradeInfo는 등록된 포지션 정보를 전송합니다
func (c *Client) SendTradeInfo(info notification.TradeInfo) error {
	title := fmt.Sprintf("포지션 진입: %s %s", info.Side, info.Symbol)
	if info.Degraded {
		title = "⚠️ " + title + " (보호 주문 누락)"
	}

	embed := NewEmbed(c.now()).
		SetTitle(title).
		SetDescription(fmt.Sprintf(
			"**수량**: %s\n**진입가**: $%s\n**포지션 가치**: $%s\n**레버리지**: %dx\n**잔고**: $%s",
			info.Quantity, info.EntryPrice, info.PositionValue().StringFixed(2), info.Leverage, info.Balance.StringFixed(2),
		)).
		SetColor(notification.GetColorForTrade(info.Side, info.Degraded)).
		AddPriceField("손절가", info.StopLoss).
		AddPriceField("익절가", info.TakeProfit)

	if len(info.Warnings) > 0 {
		embed.AddField("경고", strings.Join(info.Warnings, "\n"), false)
	}

	return c.sendToWebhook(c.tradeWebhook, WebhookMessage{Embeds: []Embed{*embed}})
}

// SendCloseReport는 일괄 청산 결과를 전송합니다
func (c *Client) SendCloseReport(results []domain.ClosureResult) error {
	total := decimal.Zero
	failed := 0

	embed := NewEmbed(c.now()).SetTitle("포지션 일괄 청산")
	for _, r := range results {
		value := fmt.Sprintf("%s (%s USDT)", r.Status, r.RealizedPnL.StringFixed(2))
		if r.Status == domain.ClosureError {
			failed++
			value = fmt.Sprintf("%s: %s", r.Status, r.Error)
		} else {
			total = total.Add(r.RealizedPnL)
		}
		embed.AddField(r.Symbol, value, true)
	}

	embed.SetDescription(fmt.Sprintf("**청산**: %d건, **실패**: %d건\n**실현 손익 합계**: %s USDT",
		len(results)-failed, failed, total.StringFixed(2)))
	if failed > 0 {
		embed.SetColor(domain.ColorWarning)
	} else {
		embed.SetColor(domain.ColorInfo)
	}

	return c.sendToWebhook(c.tradeWebhook, WebhookMessage{Embeds: []Embed{*embed}})
}

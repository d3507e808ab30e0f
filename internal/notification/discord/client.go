// Package discord는 Discord 웹훅으로 거래 알림을 전송합니다.
package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/assist-by/sentinel/internal/notification"
)

var _ notification.Notifier = (*Client)(nil)

// Client는 Discord 웹훅 클라이언트입니다
type Client struct {
	tradeWebhook string
	errorWebhook string
	timeout      time.Duration
	http         *resty.Client
	now          func() time.Time
	logger       *logrus.Entry
}

// ClientOption은 클라이언트 생성 옵션을 정의합니다
type ClientOption func(*Client)

// WithTimeout은 HTTP 타임아웃을 설정합니다
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithLogger는 로거를 설정합니다
func WithLogger(logger *logrus.Entry) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient는 새로운 Discord 클라이언트를 생성합니다. 빈 웹훅 URL은 전송을 생략합니다
func NewClient(tradeWebhook, errorWebhook string, opts ...ClientOption) *Client {
	c := &Client{
		tradeWebhook: tradeWebhook,
		errorWebhook: errorWebhook,
		timeout:      10 * time.Second,
		now:          time.Now,
		logger:       logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.http = resty.New().
		SetTimeout(c.timeout).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() == 429 || r.StatusCode() >= 500
		})
	c.logger = c.logger.WithField("component", "discord")
	return c
}

// sendToWebhook은 웹훅으로 메시지를 전송합니다
func (c *Client) sendToWebhook(webhookURL string, msg WebhookMessage) error {
	if webhookURL == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(msg).
		Post(webhookURL)
	if err != nil {
		return fmt.Errorf("웹훅 전송 실패: %w", err)
	}

	// Discord는 성공 시 204를 반환
	if resp.IsError() {
		return fmt.Errorf("웹훅 응답 오류: status=%d, body=%s", resp.StatusCode(), resp.String())
	}
	return nil
}

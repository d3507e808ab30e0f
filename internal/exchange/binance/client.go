// internal/exchange/binance/client.go
package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

const (
	mainnetURL = "https://fapi.binance.com"
	testnetURL = "https://testnet.binancefuture.com"

	recvWindow = "10000"
)

// signedQueryKey는 서명이 필요한 요청의 파라미터를 요청 컨텍스트에 싣는 키입니다
type signedQueryKey struct{}

type signedQuery struct {
	endpoint string
	params   url.Values
}

// Client는 바이낸스 USDT-M 선물 API 클라이언트를 구현합니다
type Client struct {
	apiKey           string
	secretKey        string
	baseURL          string
	timeout          time.Duration
	maxRetries       int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	http             *resty.Client
	limiter          *RateLimiter
	logger           *logrus.Entry
	serverTimeOffset int64 // 서버 시간과의 차이를 저장
	mu               sync.RWMutex
}

// ClientOption은 클라이언트 생성 옵션을 정의합니다
type ClientOption func(*Client)

// WithTimeout은 HTTP 요청 타임아웃을 설정합니다
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithBaseURL은 기본 URL을 설정합니다
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithTestnet은 테스트넷 사용 여부를 설정합니다
func WithTestnet(useTestnet bool) ClientOption {
	return func(c *Client) {
		if useTestnet {
			c.baseURL = testnetURL
		} else {
			c.baseURL = mainnetURL
		}
	}
}

// WithRetry는 재시도 횟수와 지수 백오프 범위를 설정합니다
func WithRetry(maxRetries int, baseDelay, maxDelay time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.retryBaseDelay = baseDelay
		c.retryMaxDelay = maxDelay
	}
}

// WithRateLimit은 분당 최대 요청 수를 설정합니다
func WithRateLimit(requestsPerMinute int) ClientOption {
	return func(c *Client) {
		c.limiter = NewRateLimiter(requestsPerMinute, time.Minute)
	}
}

// WithLogger는 로거를 설정합니다
func WithLogger(logger *logrus.Entry) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient는 새로운 바이낸스 API 클라이언트를 생성합니다
func NewClient(apiKey, secretKey string, opts ...ClientOption) *Client {
	c := &Client{
		apiKey:         apiKey,
		secretKey:      secretKey,
		baseURL:        mainnetURL,
		timeout:        10 * time.Second,
		maxRetries:     3,
		retryBaseDelay: 500 * time.Millisecond,
		retryMaxDelay:  8 * time.Second,
		limiter:        NewRateLimiter(1200, time.Minute),
		logger:         logrus.NewEntry(logrus.StandardLogger()),
	}

	// 옵션 적용
	for _, opt := range opts {
		opt(c)
	}

	// 조회/취소 요청만 resty가 자동 재시도합니다. 주문 생성은 placeOrder가 직접 처리합니다
	c.http = resty.New().
		SetBaseURL(c.baseURL).
		SetTimeout(c.timeout).
		SetRetryCount(c.maxRetries).
		SetRetryWaitTime(c.retryBaseDelay).
		SetRetryMaxWaitTime(c.retryMaxDelay).
		AddRetryCondition(isRetryableResp).
		OnBeforeRequest(c.beforeAttempt)

	c.logger = c.logger.WithField("component", "binance")
	return c
}

func isRetryableResp(r *resty.Response, err error) bool {
	if r == nil || r.Request == nil {
		return false
	}

	switch r.Request.Method {
	case http.MethodGet, http.MethodDelete:
	default:
		return false
	}

	if err != nil {
		return true
	}

	return isRetryableStatus(r.StatusCode())
}

func isRetryableStatus(code int) bool {
	return code == http.StatusRequestTimeout ||
		code == http.StatusTooManyRequests ||
		(code >= 500 && code <= 599)
}

// doRequest는 HTTP 요청을 실행하고 응답 본문을 반환합니다
func (c *Client) doRequest(ctx context.Context, method, endpoint string, params url.Values, needSign bool) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}

	path := endpoint
	if needSign {
		// 타임스탬프와 서명은 시도마다 beforeAttempt에서 새로 붙입니다
		ctx = context.WithValue(ctx, signedQueryKey{}, &signedQuery{endpoint: endpoint, params: params})
	} else if query := params.Encode(); query != "" {
		path += "?" + query
	}

	req := c.http.R().SetContext(ctx)
	if needSign {
		req.SetHeader("X-MBX-APIKEY", c.apiKey)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("API 요청 실패: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		return nil, parseAPIError(resp.StatusCode(), resp.Body())
	}

	return resp.Body(), nil
}

// beforeAttempt는 resty의 재시도를 포함한 모든 시도 직전에 실행됩니다.
// 요청 제한을 기다린 뒤, 서명 요청이면 현재 시각으로 타임스탬프와 서명을 다시 만듭니다.
func (c *Client) beforeAttempt(_ *resty.Client, r *resty.Request) error {
	ctx := r.Context()
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("요청 제한 대기 중단: %w", err)
	}

	sq, ok := ctx.Value(signedQueryKey{}).(*signedQuery)
	if !ok {
		return nil
	}
	r.URL = sq.endpoint + "?" + c.signQuery(sq.params)
	return nil
}

// signQuery는 타임스탬프를 포함한 쿼리 문자열 끝에 서명을 붙여 반환합니다
func (c *Client) signQuery(params url.Values) string {
	signed := make(url.Values, len(params)+2)
	for k, v := range params {
		signed[k] = v
	}
	signed.Set("timestamp", strconv.FormatInt(c.getServerTime(), 10))
	signed.Set("recvWindow", recvWindow)

	query := signed.Encode()
	// 서명은 항상 마지막 파라미터
	return query + "&signature=" + c.sign(query)
}

// sign은 요청에 대한 서명을 생성합니다
func (c *Client) sign(payload string) string {
	h := hmac.New(sha256.New, []byte(c.secretKey))
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

// getServerTime은 현재 서버 시간을 반환합니다
func (c *Client) getServerTime() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Now().UnixMilli() + c.serverTimeOffset
}

// GetServerTime은 서버 시간을 조회합니다
func (c *Client) GetServerTime(ctx context.Context) (time.Time, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/fapi/v1/time", nil, false)
	if err != nil {
		return time.Time{}, err
	}

	var result struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return time.Time{}, fmt.Errorf("서버 시간 파싱 실패: %w", err)
	}

	return time.UnixMilli(result.ServerTime), nil
}

// SyncTime은 바이낸스 서버와 시간을 동기화합니다
func (c *Client) SyncTime(ctx context.Context) error {
	serverTime, err := c.GetServerTime(ctx)
	if err != nil {
		return fmt.Errorf("서버 시간 조회 실패: %w", err)
	}

	c.mu.Lock()
	c.serverTimeOffset = serverTime.UnixMilli() - time.Now().UnixMilli()
	offset := c.serverTimeOffset
	c.mu.Unlock()

	c.logger.WithField("offset_ms", offset).Debug("서버 시간 동기화 완료")
	return nil
}

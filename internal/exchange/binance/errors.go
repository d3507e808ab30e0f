package binance

import (
	"encoding/json"
	"errors"
	"fmt"
)

// APIError는 바이낸스가 반환한 에러 응답입니다
type APIError struct {
	Status  int    `json:"-"` // HTTP 상태 코드
	Code    int    `json:"code"`
	Message string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API 에러(HTTP %d, 코드: %d): %s", e.Status, e.Code, e.Message)
}

func parseAPIError(status int, body []byte) error {
	apiErr := &APIError{Status: status}
	if err := json.Unmarshal(body, apiErr); err != nil || (apiErr.Code == 0 && apiErr.Message == "") {
		apiErr.Message = string(body)
	}
	return apiErr
}

// IsRetryableError는 재시도해도 되는 에러인지 확인합니다.
// 전송 계층 에러와 408/429/5xx만 재시도하며 400/401/403 등 거래소 거절은 재시도하지 않습니다.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return isRetryableStatus(apiErr.Status)
	}

	return true
}

// hasCode는 에러가 특정 바이낸스 에러 코드인지 확인합니다
func hasCode(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

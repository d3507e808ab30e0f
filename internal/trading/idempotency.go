package trading

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// Leg는 브래킷 주문의 구성 요소입니다
type Leg string

const (
	LegEntry      Leg = "en"
	LegStop       Leg = "sl"
	LegTakeProfit Leg = "tp"
)

// clientOrderNamespace는 클라이언트 주문 ID 파생용 UUID 네임스페이스입니다
var clientOrderNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("sentinel.client-order"))

// ClientOrderID는 시그널 ID와 구성 요소로부터 결정적인 주문 ID를 만듭니다.
// 같은 입력은 항상 같은 ID가 되므로 재전송된 주문을 거래소가 중복으로 인식합니다.
// 바이낸스 제한(36자)에 맞춰 "en-" + 32자리 16진수 형식을 사용합니다.
func ClientOrderID(signalID string, leg Leg) string {
	id := uuid.NewSHA1(clientOrderNamespace, []byte(signalID+"/"+string(leg)))
	return string(leg) + "-" + hex.EncodeToString(id[:])
}

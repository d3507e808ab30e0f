package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/assist-by/sentinel/internal/domain"
	"github.com/assist-by/sentinel/internal/trading"
)

// maxSignalLine은 시그널 한 줄의 최대 크기입니다
const maxSignalLine = 64 * 1024

type submitFunc func(ctx context.Context, sig domain.Signal) trading.ExecutionReport

// parseFailure는 디코딩할 수 없는 입력 줄의 출력 형식입니다
type parseFailure struct {
	Line    int    `json:"line"`
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// processSignals는 JSON Lines 형식의 시그널을 읽어 각각 제출하고 결과를 한 줄씩 출력합니다.
// 시그널은 읽는 즉시 별도 고루틴에서 처리되며 모든 처리가 끝나면 반환합니다.
func processSignals(ctx context.Context, r io.Reader, w io.Writer, submit submitFunc, log *logrus.Entry) error {
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		enc = json.NewEncoder(w)
	)
	emit := func(v interface{}) {
		mu.Lock()
		defer mu.Unlock()
		if err := enc.Encode(v); err != nil {
			log.WithError(err).Error("결과 출력 실패")
		}
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxSignalLine)

	line := 0
	for scanner.Scan() {
		line++
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		sig, err := domain.ParseSignal(data)
		if err != nil {
			log.WithError(err).WithField("line", line).Warn("시그널 파싱 실패")
			emit(parseFailure{Line: line, Error: err.Error()})
			continue
		}

		wg.Add(1)
		go func(sig domain.Signal) {
			defer wg.Done()
			emit(submit(ctx, sig))
		}(sig)
	}

	wg.Wait()
	return scanner.Err()
}

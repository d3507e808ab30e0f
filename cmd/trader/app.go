package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/assist-by/sentinel/internal/config"
	"github.com/assist-by/sentinel/internal/exchange/binance"
	"github.com/assist-by/sentinel/internal/journal"
	"github.com/assist-by/sentinel/internal/notification/discord"
	"github.com/assist-by/sentinel/internal/position"
	"github.com/assist-by/sentinel/internal/risk"
	"github.com/assist-by/sentinel/internal/trading"
)

// app은 실행에 필요한 구성 요소를 묶습니다
type app struct {
	cfg     *config.Config
	log     *logrus.Entry
	store   *journal.Store
	client  *binance.Client
	discord *discord.Client
	engine  *trading.Engine
}

// loadBase는 설정, 로거, 거래 기록 저장소만 준비합니다 (거래소 연결 없음)
func loadBase() (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	log, err := config.SetupLogger(cfg.App)
	if err != nil {
		return nil, err
	}

	store, err := journal.Open(cfg.Journal.Driver, cfg.Journal.DSN, log)
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, log: log, store: store}, nil
}

// bootstrap은 거래소 연결과 실행 엔진까지 모두 준비합니다
func bootstrap(ctx context.Context) (*app, error) {
	a, err := loadBase()
	if err != nil {
		return nil, err
	}

	a.discord = discord.NewClient(a.cfg.Discord.TradeWebhook, a.cfg.Discord.ErrorWebhook,
		discord.WithLogger(a.log))

	a.client = binance.NewClient(
		a.cfg.Binance.APIKey,
		a.cfg.Binance.SecretKey,
		binance.WithTimeout(a.cfg.Binance.Timeout),
		binance.WithTestnet(a.cfg.Binance.UseTestnet),
		binance.WithRetry(a.cfg.Binance.MaxRetries, a.cfg.Binance.RetryBaseDelay, a.cfg.Binance.RetryMaxDelay),
		binance.WithRateLimit(a.cfg.Binance.RequestsPerMinute),
		binance.WithLogger(a.log),
	)

	// 바이낸스 서버와 시간 동기화
	if err := a.client.SyncTime(ctx); err != nil {
		a.notifyError(fmt.Errorf("바이낸스 서버 시간 동기화 실패: %w", err))
		return nil, fmt.Errorf("바이낸스 서버 시간 동기화 실패: %w", err)
	}

	if err := a.client.EnsureOneWayMode(ctx); err != nil {
		return nil, fmt.Errorf("단방향 포지션 모드 설정 실패: %w", err)
	}

	balance, err := a.client.GetAccountBalance(ctx)
	if err != nil {
		return nil, fmt.Errorf("잔고 조회 실패: %w", err)
	}

	guard := risk.NewGuard(a.cfg.Risk, balance, risk.WithLogger(a.log))
	tracker := position.NewTracker(a.client, guard,
		position.WithJournal(a.store),
		position.WithProtection(a.cfg.Risk.UseStopLoss, a.cfg.Risk.UseTakeProfit),
		position.WithTrackerLogger(a.log),
	)

	history, err := a.store.List(ctx)
	if err != nil {
		return nil, err
	}
	tracker.Restore(history)

	// 재시작 전에 열린 포지션을 거래소 기준으로 다시 추적
	if err := tracker.Reconcile(ctx); err != nil {
		return nil, fmt.Errorf("초기 포지션 조정 실패: %w", err)
	}

	a.engine = trading.NewEngine(a.cfg.Risk, a.client, guard, tracker, a.discord, a.log)

	mode := "메인넷"
	if a.cfg.Binance.UseTestnet {
		mode = "테스트넷"
	}
	a.log.WithFields(logrus.Fields{
		"mode":    mode,
		"balance": balance.String(),
		"open":    len(tracker.GetOpen()),
		"history": len(history),
	}).Info("실행 엔진 준비 완료")

	return a, nil
}

func (a *app) notifyError(err error) {
	if a.discord == nil {
		return
	}
	if nerr := a.discord.SendError(err); nerr != nil {
		a.log.WithError(nerr).Warn("에러 알림 전송 실패")
	}
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.WithError(err).Warn("저장소 종료 실패")
		}
	}
}

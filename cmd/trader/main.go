package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	osSignal "os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	"golang.org/x/sync/errgroup"

	"github.com/assist-by/sentinel/internal/domain"
	"github.com/assist-by/sentinel/internal/position"
	"github.com/assist-by/sentinel/internal/report"
	"github.com/assist-by/sentinel/internal/scheduler"
	"github.com/assist-by/sentinel/internal/server"
	"github.com/assist-by/sentinel/internal/trading"
)

var Version = "dev"

func main() {
	app := cli.NewApp()
	app.Name = "sentinel"
	app.Usage = "리스크 관리형 선물 브래킷 주문 실행기"
	app.Version = Version

	app.Commands = []cli.Command{
		runCMD,
		executeCMD,
		closeAllCMD,
		reportCMD,
		exportCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	runCMD = cli.Command{
		Name:   "run",
		Usage:  "시그널 스트림을 읽어 실행하고 조정 루프와 운영 서버를 유지합니다",
		Action: runAction,
		Flags: []cli.Flag{
			cli.StringFlag{Name: "signals", Value: "-", Usage: "JSON Lines 시그널 파일 (- 은 표준 입력)"},
			cli.BoolFlag{Name: "exit-on-eof", Usage: "입력이 끝나면 종료"},
		},
		Description: `Read JSON-lines signals and keep reconciling until interrupted`,
	}
	executeCMD = cli.Command{
		Name:        "execute",
		Usage:       "시그널 하나를 실행하고 결과를 JSON으로 출력합니다",
		ArgsUsage:   "'<signal json>'",
		Action:      executeAction,
		Description: `Execute a single signal`,
	}
	closeAllCMD = cli.Command{
		Name:        "close-all",
		Usage:       "모든 열린 포지션을 청산합니다",
		Action:      closeAllAction,
		Description: `Close every open position independently and report per symbol`,
	}
	reportCMD = cli.Command{
		Name:        "report",
		Usage:       "거래 이력과 성과 지표를 출력합니다",
		Action:      reportAction,
		Description: `Render trade history and performance metrics`,
	}
	exportCMD = cli.Command{
		Name:   "export",
		Usage:  "거래 이력을 엑셀 파일로 저장합니다",
		Action: exportAction,
		Flags: []cli.Flag{
			cli.StringFlag{Name: "out", Value: "trades.xlsx", Usage: "저장할 파일 경로"},
		},
		Description: `Export trade history to xlsx`,
	}
)

func signalContext() (context.Context, context.CancelFunc) {
	return osSignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runAction(c *cli.Context) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := bootstrap(ctx)
	if err != nil {
		logrus.WithError(err).Error("초기화 실패")
		return err
	}
	defer a.close()

	if err := a.discord.SendInfo("🚀 실행기가 시작되었습니다."); err != nil {
		a.log.WithError(err).Warn("시작 알림 전송 실패")
	}

	var input io.Reader = os.Stdin
	if path := c.String("signals"); path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("시그널 파일 열기 실패: %w", err)
		}
		defer f.Close()
		input = f
	}

	reconcile := scheduler.NewScheduler(a.cfg.App.ReconcileInterval, trading.NewReconcileTask(a.engine), a.log)
	ops := server.New(a.engine.Tracker(), a.engine, a.log, server.WithControlToken(a.cfg.App.OpsToken))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ops.Start(gctx, a.cfg.App.MetricsAddr)
	})
	g.Go(func() error {
		err := reconcile.Start(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	// 표준 입력은 취소로 깨울 수 없으므로 시그널 입력은 그룹 밖에서 읽습니다
	go func() {
		err := processSignals(gctx, input, os.Stdout, a.engine.Submit, a.log.WithField("cmd", "run"))
		if err != nil {
			a.log.WithError(err).Error("시그널 입력 읽기 실패")
		} else {
			a.log.Info("시그널 입력이 끝났습니다")
		}
		if c.Bool("exit-on-eof") {
			cancel()
		}
	}()

	err = g.Wait()
	a.log.Info("실행기를 종료합니다")
	return err
}

func executeAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.NewExitError("시그널 JSON 하나가 필요합니다", 2)
	}
	sig, err := domain.ParseSignal([]byte(c.Args().First()))
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	rep := a.engine.Submit(ctx, sig)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return err
	}
	if !rep.Success {
		return cli.NewExitError(fmt.Sprintf("시그널 처리 실패: %s", rep.State), 1)
	}
	return nil
}

func closeAllAction(_ *cli.Context) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	results := a.engine.CloseAll(ctx)
	report.RenderClosures(os.Stdout, results)

	for _, r := range results {
		if r.Status == domain.ClosureError {
			return cli.NewExitError("일부 포지션을 청산하지 못했습니다", 1)
		}
	}
	return nil
}

func reportAction(_ *cli.Context) error {
	a, err := loadBase()
	if err != nil {
		return err
	}
	defer a.close()

	history, err := a.store.List(context.Background())
	if err != nil {
		return err
	}
	report.RenderTrades(os.Stdout, history)
	report.RenderPerformance(os.Stdout, position.CalculatePerformance(history))
	return nil
}

func exportAction(c *cli.Context) error {
	a, err := loadBase()
	if err != nil {
		return err
	}
	defer a.close()

	history, err := a.store.List(context.Background())
	if err != nil {
		return err
	}

	out := c.String("out")
	if err := report.ExportXLSX(out, history, position.CalculatePerformance(history)); err != nil {
		return err
	}
	a.log.WithField("path", out).Infof("거래 기록 %d건을 저장했습니다", len(history))
	return nil
}

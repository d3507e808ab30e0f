package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Binance는 바이낸스 선물 API 설정입니다
type Binance struct {
	APIKey            string        `envconfig:"BINANCE_API_KEY" required:"true"`
	SecretKey         string        `envconfig:"BINANCE_SECRET_KEY" required:"true"`
	UseTestnet        bool          `envconfig:"BINANCE_USE_TESTNET" default:"false"`
	Timeout           time.Duration `envconfig:"BINANCE_TIMEOUT" default:"10s"`
	MaxRetries        int           `envconfig:"BINANCE_MAX_RETRIES" default:"3"`
	RetryBaseDelay    time.Duration `envconfig:"BINANCE_RETRY_BASE_DELAY" default:"500ms"`
	RetryMaxDelay     time.Duration `envconfig:"BINANCE_RETRY_MAX_DELAY" default:"8s"`
	RequestsPerMinute int           `envconfig:"BINANCE_REQUESTS_PER_MINUTE" default:"1200"`
}

// Risk는 시작 시 한 번 로드되고 이후 읽기 전용으로 사용되는 리스크 설정입니다
type Risk struct {
	MaxPositions         int     `envconfig:"MAX_POSITIONS" default:"3"`
	MaxRiskPerTrade      float64 `envconfig:"MAX_RISK_PER_TRADE" default:"0.035"`
	MaxDailyLossFraction float64 `envconfig:"MAX_DAILY_LOSS_FRACTION" default:"0.05"`
	MinConfidence        float64 `envconfig:"MIN_CONFIDENCE" default:"0.6"`
	DefaultLeverage      int     `envconfig:"DEFAULT_LEVERAGE" default:"3"`
	MaxLeverage          int     `envconfig:"MAX_LEVERAGE" default:"10"`
	UseStopLoss          bool    `envconfig:"USE_STOP_LOSS" default:"true"`
	UseTakeProfit        bool    `envconfig:"USE_TAKE_PROFIT" default:"true"`
	DefaultStopDistance  float64 `envconfig:"DEFAULT_STOP_DISTANCE" default:"0.02"`
	MaxNotionalFraction  float64 `envconfig:"MAX_NOTIONAL_FRACTION" default:"0.10"`
}

// Journal은 거래 이력 저장소 설정입니다
type Journal struct {
	Driver string `envconfig:"JOURNAL_DRIVER" default:"sqlite"`
	DSN    string `envconfig:"JOURNAL_DSN" default:"sentinel.db"`
}

// Discord는 디스코드 웹훅 설정입니다 (비어 있으면 알림 생략)
type Discord struct {
	TradeWebhook string `envconfig:"DISCORD_TRADE_WEBHOOK"`
	ErrorWebhook string `envconfig:"DISCORD_ERROR_WEBHOOK"`
}

// App은 프로세스 수준 설정입니다
type App struct {
	ReconcileInterval time.Duration `envconfig:"RECONCILE_INTERVAL" default:"1m"`
	MetricsAddr       string        `envconfig:"METRICS_ADDR" default:"127.0.0.1:9102"`
	OpsToken          string        `envconfig:"OPS_TOKEN"` // 설정되면 거래 중지/재개 API에 Bearer 토큰 필요
	LogLevel          string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat         string        `envconfig:"LOG_FORMAT" default:"text"`
}

type Config struct {
	Binance Binance
	Risk    Risk
	Journal Journal
	Discord Discord
	App     App
}

// DefaultRisk는 환경변수 없이 사용할 수 있는 기본 리스크 설정을 반환합니다
func DefaultRisk() Risk {
	return Risk{
		MaxPositions:         3,
		MaxRiskPerTrade:      0.035,
		MaxDailyLossFraction: 0.05,
		MinConfidence:        0.6,
		DefaultLeverage:      3,
		MaxLeverage:          10,
		UseStopLoss:          true,
		UseTakeProfit:        true,
		DefaultStopDistance:  0.02,
		MaxNotionalFraction:  0.10,
	}
}

// ValidateConfig는 설정이 유효한지 확인합니다.
func ValidateConfig(cfg *Config) error {
	if err := ValidateRisk(cfg.Risk); err != nil {
		return err
	}

	if cfg.Binance.Timeout <= 0 || cfg.Binance.Timeout > 15*time.Second {
		return fmt.Errorf("BINANCE_TIMEOUT은 0보다 크고 15초 이하이어야 합니다")
	}

	if cfg.Binance.MaxRetries < 0 || cfg.Binance.MaxRetries > 10 {
		return fmt.Errorf("BINANCE_MAX_RETRIES는 0 이상 10 이하이어야 합니다")
	}

	if cfg.Binance.RetryBaseDelay <= 0 || cfg.Binance.RetryMaxDelay < cfg.Binance.RetryBaseDelay {
		return fmt.Errorf("재시도 대기 시간 설정이 잘못되었습니다 (기본: %v, 최대: %v)",
			cfg.Binance.RetryBaseDelay, cfg.Binance.RetryMaxDelay)
	}

	if cfg.Binance.RequestsPerMinute < 1 {
		return fmt.Errorf("BINANCE_REQUESTS_PER_MINUTE는 1 이상이어야 합니다")
	}

	switch cfg.Journal.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("지원하지 않는 JOURNAL_DRIVER: %s", cfg.Journal.Driver)
	}

	if cfg.App.ReconcileInterval < 5*time.Second {
		return fmt.Errorf("RECONCILE_INTERVAL은 5초 이상이어야 합니다")
	}

	return nil
}

// ValidateRisk는 리스크 설정 값의 범위를 확인합니다.
func ValidateRisk(r Risk) error {
	if r.MaxPositions < 1 {
		return fmt.Errorf("MAX_POSITIONS는 1 이상이어야 합니다")
	}

	fractions := map[string]float64{
		"MAX_RISK_PER_TRADE":      r.MaxRiskPerTrade,
		"MAX_DAILY_LOSS_FRACTION": r.MaxDailyLossFraction,
		"DEFAULT_STOP_DISTANCE":   r.DefaultStopDistance,
		"MAX_NOTIONAL_FRACTION":   r.MaxNotionalFraction,
	}
	for name, v := range fractions {
		if v <= 0 || v > 1 {
			return fmt.Errorf("%s는 0 초과 1 이하이어야 합니다 (현재: %v)", name, v)
		}
	}

	if r.MinConfidence < 0 || r.MinConfidence > 1 {
		return fmt.Errorf("MIN_CONFIDENCE는 0 이상 1 이하이어야 합니다")
	}

	if r.DefaultLeverage < 1 || r.MaxLeverage > 125 || r.DefaultLeverage > r.MaxLeverage {
		return fmt.Errorf("레버리지는 1 <= 기본값(%d) <= 최대값(%d) <= 125 이어야 합니다",
			r.DefaultLeverage, r.MaxLeverage)
	}

	return nil
}

// LoadConfig는 환경변수에서 설정을 로드합니다.
func LoadConfig() (*Config, error) {
	// .env 파일이 없으면 환경변수만 사용
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf(".env 파일 로드 실패: %w", err)
	}

	var cfg Config
	// 환경변수를 구조체로 파싱
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("환경변수 처리 실패: %w", err)
	}

	// 설정값 검증
	if err := ValidateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("설정값 검증 실패: %w", err)
	}

	return &cfg, nil
}

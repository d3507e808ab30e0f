// Package journal은 거래 기록을 데이터베이스에 추가 전용으로 저장합니다.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/assist-by/sentinel/internal/domain"
)

// tradeRow는 trade_records 테이블의 행입니다
type tradeRow struct {
	ID                uint            `gorm:"primaryKey"`
	RecordID          string          `gorm:"size:64;uniqueIndex;not null"`
	PositionID        string          `gorm:"size:64;index;not null"`
	SignalID          string          `gorm:"size:64"`
	Symbol            string          `gorm:"size:32;index;not null"`
	Side              string          `gorm:"size:8;not null"`
	Quantity          decimal.Decimal `gorm:"type:numeric"`
	EntryPrice        decimal.Decimal `gorm:"type:numeric"`
	Leverage          int
	ExitPrice         decimal.Decimal `gorm:"type:numeric"`
	RealizedPnL       decimal.Decimal `gorm:"column:realized_pnl;type:numeric"`
	EntryOrderID      string          `gorm:"size:64"`
	StopOrderID       string          `gorm:"size:64"`
	TakeProfitOrderID string          `gorm:"size:64"`
	Status            string          `gorm:"size:16;index;not null"`
	Reason            string          `gorm:"size:64"`
	Warnings          string          `gorm:"type:text"`
	Strategy          string          `gorm:"size:64"`
	OpenedAt          time.Time
	ClosedAt          *time.Time
	CreatedAt         time.Time
}

func (tradeRow) TableName() string {
	return "trade_records"
}

func toRow(rec domain.TradeRecord) (tradeRow, error) {
	warnings := ""
	if len(rec.Warnings) > 0 {
		b, err := json.Marshal(rec.Warnings)
		if err != nil {
			return tradeRow{}, err
		}
		warnings = string(b)
	}
	return tradeRow{
		RecordID:          rec.ID,
		PositionID:        rec.PositionID,
		SignalID:          rec.SignalID,
		Symbol:            rec.Symbol,
		Side:              string(rec.Side),
		Quantity:          rec.Quantity,
		EntryPrice:        rec.EntryPrice,
		Leverage:          rec.Leverage,
		ExitPrice:         rec.ExitPrice,
		RealizedPnL:       rec.RealizedPnL,
		EntryOrderID:      rec.EntryOrderID,
		StopOrderID:       rec.StopOrderID,
		TakeProfitOrderID: rec.TakeProfitOrderID,
		Status:            string(rec.Status),
		Reason:            rec.Reason,
		Warnings:          warnings,
		Strategy:          rec.Strategy,
		OpenedAt:          rec.OpenedAt.UTC(),
		ClosedAt:          rec.ClosedAt,
	}, nil
}

func (r tradeRow) toRecord() domain.TradeRecord {
	var warnings []string
	if r.Warnings != "" {
		// 손상된 경고 목록은 원문 그대로 보존
		if err := json.Unmarshal([]byte(r.Warnings), &warnings); err != nil {
			warnings = []string{r.Warnings}
		}
	}
	return domain.TradeRecord{
		ID:                r.RecordID,
		PositionID:        r.PositionID,
		SignalID:          r.SignalID,
		Symbol:            r.Symbol,
		Side:              domain.Side(r.Side),
		Quantity:          r.Quantity,
		EntryPrice:        r.EntryPrice,
		Leverage:          r.Leverage,
		ExitPrice:         r.ExitPrice,
		RealizedPnL:       r.RealizedPnL,
		EntryOrderID:      r.EntryOrderID,
		StopOrderID:       r.StopOrderID,
		TakeProfitOrderID: r.TakeProfitOrderID,
		Status:            domain.TradeStatus(r.Status),
		Reason:            r.Reason,
		Warnings:          warnings,
		Strategy:          r.Strategy,
		OpenedAt:          r.OpenedAt,
		ClosedAt:          r.ClosedAt,
	}
}

// Store는 gorm 기반 거래 기록 저장소입니다
type Store struct {
	db     *gorm.DB
	logger *logrus.Entry
}

// Open은 드라이버(sqlite, postgres)와 DSN으로 저장소를 열고 마이그레이션합니다
func Open(driver, dsn string, log *logrus.Entry) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("지원하지 않는 저장소 드라이버: %s", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("저장소 연결 실패: %w", err)
	}

	if driver == "postgres" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("DB 핸들 조회 실패: %w", err)
		}
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(1 * time.Hour)
	}

	s := New(db, log)
	if err := s.Migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// New는 이미 열린 gorm.DB로 저장소를 생성합니다
func New(db *gorm.DB, log *logrus.Entry) *Store {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Store{db: db, logger: log.WithField("component", "journal")}
}

// Migrate는 trade_records 테이블을 생성하거나 갱신합니다
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&tradeRow{}); err != nil {
		return fmt.Errorf("저장소 마이그레이션 실패: %w", err)
	}
	return nil
}

// Append는 거래 기록 한 건을 추가합니다. 이미 저장된 기록 ID는 무시합니다
func (s *Store) Append(ctx context.Context, rec domain.TradeRecord) error {
	row, err := toRow(rec)
	if err != nil {
		return fmt.Errorf("거래 기록 변환 실패: %w", err)
	}

	err = s.db.WithContext(ctx).Create(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			s.logger.WithField("record", rec.ID).Debug("이미 저장된 거래 기록")
			return nil
		}
		return fmt.Errorf("거래 기록 저장 실패 [%s]: %w", rec.Symbol, err)
	}
	return nil
}

// List는 저장된 거래 기록을 추가된 순서대로 반환합니다
func (s *Store) List(ctx context.Context) ([]domain.TradeRecord, error) {
	var rows []tradeRow
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("거래 기록 조회 실패: %w", err)
	}

	records := make([]domain.TradeRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, r.toRecord())
	}
	return records, nil
}

// Close는 데이터베이스 연결을 닫습니다
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

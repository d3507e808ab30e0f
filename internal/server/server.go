// Package server는 운영용 HTTP 엔드포인트(상태, 지표, 포지션, 거래 중지)를 제공합니다.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/assist-by/sentinel/internal/domain"
	"github.com/assist-by/sentinel/internal/monitoring"
)

// PositionSource는 포지션과 거래 이력 조회 인터페이스입니다 (position.Tracker)
type PositionSource interface {
	GetOpen() []domain.Position
	GetHistory() []domain.TradeRecord
	Performance() domain.PerformanceMetrics
}

// RiskControl은 거래 중지/재개와 계정 상태 조회 인터페이스입니다 (trading.Engine)
type RiskControl interface {
	Halt(reason string)
	Resume()
	Account() domain.AccountState
}

// Server는 운영용 HTTP 서버입니다
type Server struct {
	positions PositionSource
	control   RiskControl
	token     string
	logger    *logrus.Entry
}

// Option은 Server 생성 옵션입니다
type Option func(*Server)

// WithControlToken은 거래 중지/재개 요청에 필요한 Bearer 토큰을 설정합니다
func WithControlToken(token string) Option {
	return func(s *Server) {
		s.token = token
	}
}

// New는 새로운 운영 서버를 생성합니다
func New(positions PositionSource, control RiskControl, logger *logrus.Entry, opts ...Option) *Server {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Server{positions: positions, control: control, logger: logger.WithField("component", "server")}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router는 라우터를 구성합니다
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			s.logger.WithError(err).Error("/healthz 응답 실패")
		}
	})
	r.Handle("/metrics", monitoring.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/account", s.handleAccount)
		r.Get("/positions", s.handlePositions)
		r.Get("/trades", s.handleTrades)
		r.Get("/performance", s.handlePerformance)
		r.Group(func(r chi.Router) {
			r.Use(s.requireToken)
			r.Post("/halt", s.handleHalt)
			r.Post("/resume", s.handleResume)
		})
	})
	return r
}

// requireToken은 토큰이 설정된 경우 Authorization 헤더를 확인합니다
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			next.ServeHTTP(w, r)
			return
		}
		want := "Bearer " + s.token
		got := r.Header.Get("Authorization")
		if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			s.logger.WithField("remote", r.RemoteAddr).Warn("인증되지 않은 운영 API 요청")
			s.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "인증이 필요합니다"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleAccount(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.control.Account())
}

func (s *Server) handlePositions(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.positions.GetOpen())
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	history := s.positions.GetHistory()
	if symbol := r.URL.Query().Get("symbol"); symbol != "" {
		filtered := history[:0:0]
		for _, rec := range history {
			if rec.Symbol == symbol {
				filtered = append(filtered, rec)
			}
		}
		history = filtered
	}
	s.writeJSON(w, http.StatusOK, history)
}

func (s *Server) handlePerformance(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.positions.Performance())
}

type haltRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleHalt(w http.ResponseWriter, r *http.Request) {
	var req haltRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "잘못된 요청 본문입니다"})
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "운영자 요청"
	}

	s.control.Halt(req.Reason)
	s.logger.WithField("reason", req.Reason).Warn("운영 API로 신규 진입을 중지했습니다")
	s.writeJSON(w, http.StatusOK, s.control.Account())
}

func (s *Server) handleResume(w http.ResponseWriter, _ *http.Request) {
	s.control.Resume()
	s.logger.Info("운영 API로 신규 진입을 재개했습니다")
	s.writeJSON(w, http.StatusOK, s.control.Account())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("응답 인코딩 실패")
	}
}

// Start는 ctx가 끝날 때까지 서버를 실행하고 종료 시 정상 종료를 시도합니다
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("운영 서버 시작: %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("운영 서버 종료 중...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.WithError(err).Error("운영 서버 종료 실패")
		return err
	}
	return nil
}

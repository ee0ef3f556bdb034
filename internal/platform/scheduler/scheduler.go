// Package scheduler は登録済み銘柄の定時一括更新を実行します。
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"

	"marketdata_backend/internal/feature/prices/usecase"
)

// DefaultSchedule は米国市場の引け後（UTC）の既定実行時刻です。
const DefaultSchedule = "22:30"

const jobTag = "refresh-all"

// Refresher は一括更新を行うユースケースです。
type Refresher interface {
	RefreshAll(ctx context.Context, jobID string, symbols []string) (usecase.RefreshReport, error)
}

// Scheduler は平日の指定時刻（UTC）に一括更新を起動します。
type Scheduler struct {
	cron      *gocron.Scheduler
	refresher Refresher
	at        string
	timeout   time.Duration
}

// LoadSchedule は REFRESH_SCHEDULE（HH:MM、UTC）を返します。未設定なら DefaultSchedule です。
func LoadSchedule() string {
	if v := os.Getenv("REFRESH_SCHEDULE"); v != "" {
		return v
	}
	return DefaultSchedule
}

// NewScheduler は新しい Scheduler を生成します。timeout は1回の一括更新に許す時間です。
func NewScheduler(refresher Refresher, at string, timeout time.Duration) (*Scheduler, error) {
	if _, err := cronExpr(at); err != nil {
		return nil, err
	}
	return &Scheduler{
		cron:      gocron.NewScheduler(time.UTC),
		refresher: refresher,
		at:        at,
		timeout:   timeout,
	}, nil
}

// Start はジョブを登録して非同期に開始します。
func (s *Scheduler) Start() error {
	expr, err := cronExpr(s.at)
	if err != nil {
		return err
	}
	// 前回の実行が終わっていなければ次の起動はスキップする
	if _, err := s.cron.Cron(expr).Tag(jobTag).SingletonMode().Do(s.runRefresh); err != nil {
		return fmt.Errorf("schedule refresh-all: %w", err)
	}
	s.cron.StartAsync()
	slog.Info("scheduler started", "schedule", expr)
	return nil
}

// Stop は実行中のジョブの完了を待たずにスケジューラを停止します。
func (s *Scheduler) Stop() {
	s.cron.Stop()
	slog.Info("scheduler stopped")
}

func (s *Scheduler) runRefresh() {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	jobID := uuid.NewString()
	if _, err := s.refresher.RefreshAll(ctx, jobID, nil); err != nil {
		slog.Error("scheduled refresh-all failed", "job_id", jobID, "error", err)
	}
}

// cronExpr は "HH:MM" を平日のみ実行するcron式に変換します。
func cronExpr(at string) (string, error) {
	t, err := time.Parse("15:04", at)
	if err != nil {
		return "", fmt.Errorf("invalid schedule %q: want HH:MM", at)
	}
	return fmt.Sprintf("%d %d * * 1-5", t.Minute(), t.Hour()), nil
}

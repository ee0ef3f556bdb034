package handler

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"marketdata_backend/internal/feature/prices/transport/http/dto"
	"marketdata_backend/internal/feature/prices/usecase"
)

// BatchRefresher は登録済み銘柄の一括更新を行うユースケースです。
type BatchRefresher interface {
	RefreshAll(ctx context.Context, jobID string, symbols []string) (usecase.RefreshReport, error)
}

// RefreshAllHandler は内部向けの一括更新エンドポイントを処理します。
type RefreshAllHandler struct {
	uc     BatchRefresher
	secret string
	// run はジョブを起動します。テストでは同期実行に差し替えます。
	run func(func())
}

// NewRefreshAllHandler は新しい RefreshAllHandler を生成します。secret が空の場合、エンドポイントは常に拒否します。
func NewRefreshAllHandler(uc BatchRefresher, secret string) *RefreshAllHandler {
	return &RefreshAllHandler{uc: uc, secret: secret, run: func(f func()) { go f() }}
}

// RefreshAll はジョブIDを発行して一括更新をバックグラウンドで開始し、200とメッセージを返します。
// 完了は待たないため、進捗はログで確認します。
//
// エンドポイント例:
// POST /internal/refresh-all?secret=...
func (h *RefreshAllHandler) RefreshAll(c *gin.Context) {
	got := c.Query("secret")
	if got == "" {
		got = c.GetHeader("X-Refresh-Secret")
	}
	if h.secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "unauthorized"})
		return
	}

	jobID := uuid.NewString()
	ctx := context.WithoutCancel(c.Request.Context())
	h.run(func() {
		if _, err := h.uc.RefreshAll(ctx, jobID, nil); err != nil {
			slog.Error("refresh-all job failed", "job_id", jobID, "error", err)
		}
	})

	c.JSON(http.StatusOK, dto.RefreshAllResponse{
		Message: "Full data refresh started in the background (job " + jobID + ").",
		JobID:   jobID,
		Status:  "started",
	})
}

// Package handler はpricesフィーチャーのHTTPハンドラーを提供します。
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"marketdata_backend/internal/feature/prices/domain/entity"
	"marketdata_backend/internal/feature/prices/transport/http/dto"
	"marketdata_backend/internal/feature/prices/usecase"
)

// HistoryUsecase は価格履歴のユースケースインターフェースを定義します。
// Goの慣例に従い、インターフェースは利用者（handler）側で定義します。
type HistoryUsecase interface {
	GetHistory(ctx context.Context, symbol string, forceRefresh bool, limit int) (entity.History, error)
	RefreshSymbol(ctx context.Context, symbol string) (usecase.RefreshResult, error)
	ListStaleSymbols(ctx context.Context, asOf time.Time) ([]string, error)
}

// QuoteUsecase はライブ株価のユースケースインターフェースを定義します。
type QuoteUsecase interface {
	GetLiveQuote(ctx context.Context, symbol string) (entity.LiveQuote, bool)
}

// PricesHandler は価格履歴とライブ株価のHTTPリクエストを処理します。
type PricesHandler struct {
	history HistoryUsecase
	quotes  QuoteUsecase
	now     func() time.Time
}

// NewPricesHandler は新しい PricesHandler を生成します。
func NewPricesHandler(history HistoryUsecase, quotes QuoteUsecase) *PricesHandler {
	return &PricesHandler{history: history, quotes: quotes, now: time.Now}
}

// GetHistory は保存済みの価格履歴を新しい順に返します。
//
// エンドポイント例:
// GET /api/stocks/:symbol?refresh=true&limit=30&live=true
func (h *PricesHandler) GetHistory(c *gin.Context) {
	symbol := c.Param("symbol")
	refresh, _ := strconv.ParseBool(c.DefaultQuery("refresh", "false"))
	live, _ := strconv.ParseBool(c.DefaultQuery("live", "false"))
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "limit must be a non-negative integer"})
		return
	}

	hist, err := h.history.GetHistory(c.Request.Context(), symbol, refresh, limit)
	if err != nil {
		writeError(c, err)
		return
	}

	out := dto.HistoryResponse{
		Symbol: hist.Symbol,
		Prices: make([]dto.PricePointResponse, 0, len(hist.Points)),
	}
	for _, p := range hist.Points {
		out.Prices = append(out.Prices, dto.PricePointResponse{
			Date:   p.Date.UTC().Format(entity.DateLayout),
			Open:   p.Open,
			High:   p.High,
			Low:    p.Low,
			Close:  p.Close,
			Volume: p.Volume,
		})
	}
	// ライブ株価は取得できなければ省略する
	if live {
		if q, ok := h.quotes.GetLiveQuote(c.Request.Context(), hist.Symbol); ok {
			qr := toQuoteResponse(q)
			out.Live = &qr
		}
	}
	c.JSON(http.StatusOK, out)
}

// GetQuote はライブ株価を返します。取得できない場合は503を返します。
//
// エンドポイント例:
// GET /api/quotes/:symbol
func (h *PricesHandler) GetQuote(c *gin.Context) {
	symbol, err := usecase.NormalizeSymbol(c.Param("symbol"))
	if err != nil {
		writeError(c, err)
		return
	}
	q, ok := h.quotes.GetLiveQuote(c.Request.Context(), symbol)
	if !ok {
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{Error: "live quote unavailable"})
		return
	}
	c.JSON(http.StatusOK, toQuoteResponse(q))
}

// Refresh は鮮度判定に関係なく銘柄を同期し、その結果を返します。
//
// エンドポイント例:
// POST /api/stocks/:symbol/refresh
func (h *PricesHandler) Refresh(c *gin.Context) {
	res, err := h.history.RefreshSymbol(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		writeError(c, err)
		return
	}
	out := dto.RefreshResponse{Symbol: res.Symbol, Updated: res.Updated, Reason: res.Reason}
	if res.LatestDate != nil {
		d := res.LatestDate.UTC().Format(entity.DateLayout)
		out.LatestDate = &d
	}
	c.JSON(http.StatusOK, out)
}

// ListStale は as_of（省略時は今日、UTC）時点で再取得が必要な銘柄を返します。
//
// エンドポイント例:
// GET /api/stale?as_of=2024-03-04
func (h *PricesHandler) ListStale(c *gin.Context) {
	asOf := h.now().UTC()
	if s := c.Query("as_of"); s != "" {
		d, err := time.Parse(entity.DateLayout, s)
		if err != nil {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "as_of must be YYYY-MM-DD"})
			return
		}
		asOf = d
	}

	symbols, err := h.history.ListStaleSymbols(c.Request.Context(), asOf)
	if err != nil {
		writeError(c, err)
		return
	}
	if symbols == nil {
		symbols = []string{}
	}
	c.JSON(http.StatusOK, dto.StaleResponse{AsOf: asOf.Format(entity.DateLayout), Symbols: symbols})
}

func toQuoteResponse(q entity.LiveQuote) dto.QuoteResponse {
	res := dto.QuoteResponse{
		Symbol:        q.Symbol,
		Name:          q.Name,
		CapturedAt:    q.CapturedAt.UTC().Format(time.RFC3339),
		CurrentPrice:  q.CurrentPrice,
		DayHigh:       q.DayHigh,
		DayLow:        q.DayLow,
		MarketCap:     q.MarketCap,
		PreviousClose: q.PreviousClose,
	}
	if !q.QuotedAt.IsZero() {
		res.QuotedAt = q.QuotedAt.UTC().Format(time.RFC3339)
	}
	return res
}

// writeError はユースケースのエラーをHTTPステータスに変換します。
// ストア障害の詳細はログにのみ出力します。
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, usecase.ErrInvalidSymbol):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	case errors.Is(err, usecase.ErrSymbolNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: err.Error()})
	case errors.Is(err, usecase.ErrTemporarilyUnavailable):
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{Error: err.Error()})
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{Error: usecase.ErrTemporarilyUnavailable.Error()})
	default:
		slog.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}
}

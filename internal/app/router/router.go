package router

import (
	"time"

	"github.com/gin-gonic/gin"

	priceshandler "marketdata_backend/internal/feature/prices/transport/handler"
	symbollisthandler "marketdata_backend/internal/feature/symbollist/transport/handler"
	"marketdata_backend/internal/platform/http/handler"
)

func NewRouter(prices *priceshandler.PricesHandler, refreshAll *priceshandler.RefreshAllHandler,
	symbol *symbollisthandler.SymbolHandler, readiness map[string]handler.Check) *gin.Engine {
	r := gin.Default()

	// 導通確認用
	r.GET("/healthz", handler.Health)
	r.HEAD("/healthz", handler.Health)
	// DB・Redisの疎通確認
	r.GET("/readyz", handler.Ready(2*time.Second, readiness))

	// 銘柄一覧
	r.GET("/symbols", symbol.List)

	api := r.Group("/api")
	{
		// 日足履歴（必要に応じて同期してから返す）
		api.GET("/stocks/:symbol", prices.GetHistory)
		// 鮮度に関係なく同期
		api.POST("/stocks/:symbol/refresh", prices.Refresh)
		// ライブ株価
		api.GET("/quotes/:symbol", prices.GetQuote)
		// 再取得が必要な銘柄
		api.GET("/stale", prices.ListStale)
	}

	// 外部スケジューラ向け。REFRESH_SECRET で保護する
	r.POST("/internal/refresh-all", refreshAll.RefreshAll)

	return r
}

package cache

import (
	"strings"
	"sync"
	"time"

	"marketdata_backend/internal/feature/prices/domain/entity"
	"marketdata_backend/internal/feature/prices/usecase"
)

// DefaultQuoteTTL はライブ株価キャッシュの既定の有効期間です。
const DefaultQuoteTTL = 60 * time.Second

// QuoteCache は銘柄ごとの最新ライブ株価を保持するメモリキャッシュです。
// 期限切れの判定は読み取り時に行い、期限切れのエントリはその場で削除します。
// 永続性はなく、いつ破棄しても正しさには影響しません。
type QuoteCache struct {
	mu      sync.Mutex
	entries map[string]entity.LiveQuote
	ttl     time.Duration
	now     func() time.Time
}

var _ usecase.QuoteCache = (*QuoteCache)(nil)

// NewQuoteCache は新しい QuoteCache を生成します。ttl が0以下の場合は DefaultQuoteTTL を使用します。
func NewQuoteCache(ttl time.Duration) *QuoteCache {
	if ttl <= 0 {
		ttl = DefaultQuoteTTL
	}
	return &QuoteCache{
		entries: make(map[string]entity.LiveQuote),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get は有効期間内のエントリを返します。存在しないか期限切れの場合は false を返します。
func (c *QuoteCache) Get(symbol string) (entity.LiveQuote, bool) {
	key := strings.ToUpper(symbol)

	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.entries[key]
	if !ok {
		return entity.LiveQuote{}, false
	}
	if c.now().Sub(q.CapturedAt) > c.ttl {
		delete(c.entries, key)
		return entity.LiveQuote{}, false
	}
	return q, true
}

// Put はエントリを無条件に上書きします。
func (c *QuoteCache) Put(symbol string, q entity.LiveQuote) {
	c.mu.Lock()
	c.entries[strings.ToUpper(symbol)] = q
	c.mu.Unlock()
}

// Len は保持しているエントリ数（期限切れを含む）を返します。
func (c *QuoteCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

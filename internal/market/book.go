package market

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"lighter-sdk/internal/lighter/ws"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Top is the best bid and ask of one market. A side without liquidity has
// its Has flag unset.
type Top struct {
	MarketIndex int
	Bid         decimal.Decimal
	Ask         decimal.Decimal
	HasBid      bool
	HasAsk      bool
	UpdatedAt   time.Time
}

type bookSide map[string]Level

type book struct {
	bids    bookSide
	asks    bookSide
	updated time.Time
}

// BookCache keeps streamed order books and answers top-of-book queries while
// the data is fresh.
type BookCache struct {
	ws     *ws.Client
	log    *zap.Logger
	maxAge time.Duration
	now    func() time.Time

	mu    sync.RWMutex
	books map[int]*book
	onTop func(Top)
}

func NewBookCache(wsClient *ws.Client, maxAge time.Duration, log *zap.Logger) *BookCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &BookCache{
		ws:     wsClient,
		log:    log,
		maxAge: maxAge,
		now:    time.Now,
		books:  make(map[int]*book),
	}
}

// SetTopObserver registers a callback run after every applied book message.
func (b *BookCache) SetTopObserver(fn func(Top)) {
	b.mu.Lock()
	b.onTop = fn
	b.mu.Unlock()
}

// Run subscribes to the given markets and consumes the stream until ctx ends.
func (b *BookCache) Run(ctx context.Context, markets []int) error {
	if b.ws == nil {
		return nil
	}
	if err := b.ws.Connect(ctx); err != nil {
		return err
	}
	for _, idx := range markets {
		if err := b.ws.SubscribeOrderBook(ctx, idx); err != nil {
			return err
		}
	}
	b.log.Info("order book stream started", zap.Ints("markets", markets))
	return b.ws.Run(ctx, b.HandleMessage)
}

// BestBidAsk returns the cached top of book. It fails with ErrStaleBook when the
// market has no data newer than the configured max age.
func (b *BookCache) BestBidAsk(_ context.Context, marketIndex int) (Top, error) {
	top, ok := b.Top(marketIndex)
	if !ok {
		return Top{}, ErrStaleBook
	}
	return top, nil
}

func (b *BookCache) Top(marketIndex int) (Top, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bk, ok := b.books[marketIndex]
	if !ok {
		return Top{}, false
	}
	if b.maxAge > 0 && b.now().Sub(bk.updated) > b.maxAge {
		return Top{}, false
	}
	return bk.top(marketIndex), true
}

func (b *BookCache) HandleMessage(msg json.RawMessage) {
	dec := json.NewDecoder(strings.NewReader(string(msg)))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		b.log.Debug("ws decode error", zap.Error(err))
		return
	}
	msgType := stringFromAny(payload["type"])
	if !strings.HasSuffix(msgType, "order_book") {
		return
	}
	idx, ok := marketFromChannel(stringFromAny(payload["channel"]))
	if !ok {
		b.log.Debug("order book message without market", zap.String("type", msgType))
		return
	}
	data, ok := toMap(payload["order_book"])
	if !ok {
		return
	}
	snapshot := strings.HasPrefix(msgType, "subscribed")
	b.apply(idx, data, snapshot)
}

func (b *BookCache) apply(marketIndex int, data map[string]any, snapshot bool) {
	b.mu.Lock()
	bk, ok := b.books[marketIndex]
	if !ok || snapshot {
		bk = &book{bids: make(bookSide), asks: make(bookSide)}
		b.books[marketIndex] = bk
	}
	bk.bids.apply(parseLevels(data["bids"]))
	bk.asks.apply(parseLevels(data["asks"]))
	bk.updated = b.now()
	top := bk.top(marketIndex)
	fn := b.onTop
	b.mu.Unlock()
	if fn != nil {
		fn(top)
	}
}

func (s bookSide) apply(levels []Level) {
	for _, lvl := range levels {
		key := lvl.Price.String()
		if !lvl.Size.IsPositive() {
			delete(s, key)
			continue
		}
		s[key] = lvl
	}
}

func (bk *book) top(marketIndex int) Top {
	top := Top{MarketIndex: marketIndex, UpdatedAt: bk.updated}
	for _, lvl := range bk.bids {
		if lvl.Price.IsPositive() && (!top.HasBid || lvl.Price.GreaterThan(top.Bid)) {
			top.Bid = lvl.Price
			top.HasBid = true
		}
	}
	for _, lvl := range bk.asks {
		if lvl.Price.IsPositive() && (!top.HasAsk || lvl.Price.LessThan(top.Ask)) {
			top.Ask = lvl.Price
			top.HasAsk = true
		}
	}
	return top
}

// marketFromChannel accepts both "order_book:3" and "order_book/3".
func marketFromChannel(channel string) (int, bool) {
	i := strings.LastIndexAny(channel, ":/")
	if i < 0 || i == len(channel)-1 {
		return 0, false
	}
	idx, err := strconv.Atoi(channel[i+1:])
	if err != nil || idx < 0 {
		return 0, false
	}
	return idx, true
}

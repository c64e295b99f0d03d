package app

import (
	"context"
	"time"

	"lighter-sdk/internal/exec"
	"lighter-sdk/internal/market"
	"lighter-sdk/internal/session"
	"lighter-sdk/internal/timescale"
)

const alertTimeout = 10 * time.Second

func (a *App) wireObservers() {
	a.client.Executor().SetObserver(a.onAttempt)
	a.client.Session().OnReady(a.onReady)
	if a.books != nil {
		a.books.SetTopObserver(a.onTop)
	}
}

func (a *App) onReady(ready *session.Ready) {
	if !a.alerts.Enabled() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), alertTimeout)
		defer cancel()
		a.alerts.SessionReady(ctx, ready)
	}()
}

func (a *App) onAttempt(at exec.Attempt) {
	ticker := a.tickerFor(attemptMarket(at))
	a.audit.EnqueueOrder(orderRecord(at, ticker))
	if at.Err == nil || !a.alerts.Enabled() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), alertTimeout)
		defer cancel()
		a.alerts.AttemptFailed(ctx, at, ticker)
	}()
}

func (a *App) onTop(top market.Top) {
	a.audit.EnqueueTop(bookTop(top, a.tickerFor(top.MarketIndex)))
}

func (a *App) tickerFor(marketIndex int) string {
	reg, err := a.client.Registry()
	if err != nil {
		return ""
	}
	ticker, _ := reg.Ticker(marketIndex)
	return ticker
}

func attemptMarket(at exec.Attempt) int {
	if at.Kind == exec.KindCancel {
		return at.Cancel.MarketIndex
	}
	return at.Create.MarketIndex
}

func orderRecord(at exec.Attempt, ticker string) timescale.OrderRecord {
	rec := timescale.OrderRecord{
		Time:      at.Started.UTC(),
		Kind:      string(at.Kind),
		Ticker:    ticker,
		TxHash:    at.Result.TxHash,
		Duplicate: at.Duplicate,
		LatencyMS: at.Duration.Milliseconds(),
	}
	if at.Err != nil {
		rec.Error = at.Err.Error()
	}
	switch at.Kind {
	case exec.KindCancel:
		rec.MarketIndex = at.Cancel.MarketIndex
		rec.OrderIndex = at.Cancel.OrderIndex
	default:
		rec.MarketIndex = at.Create.MarketIndex
		rec.ClientOrderIndex = at.Create.ClientOrderIndex
		rec.BaseAmount = at.Create.BaseAmount
		rec.Price = at.Create.Price
		rec.IsAsk = at.Create.IsAsk
		rec.TimeInForce = at.Create.TimeInForce
		rec.ReduceOnly = at.Create.ReduceOnly != 0
	}
	return rec
}

func bookTop(top market.Top, ticker string) timescale.BookTop {
	out := timescale.BookTop{
		Time:        top.UpdatedAt.UTC(),
		MarketIndex: top.MarketIndex,
		Ticker:      ticker,
	}
	if out.Time.IsZero() {
		out.Time = time.Now().UTC()
	}
	if top.HasBid {
		out.Bid = top.Bid.String()
	}
	if top.HasAsk {
		out.Ask = top.Ask.String()
	}
	return out
}

package timescale

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"lighter-sdk/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const writeTimeout = 3 * time.Second

// OrderRecord is one submission attempt as handed to the exchange.
type OrderRecord struct {
	Time             time.Time
	Kind             string
	Ticker           string
	MarketIndex      int
	ClientOrderIndex int64
	OrderIndex       int64
	BaseAmount       int64
	Price            int64
	IsAsk            bool
	TimeInForce      int
	ReduceOnly       bool
	TxHash           string
	Duplicate        bool
	Error            string
	LatencyMS        int64
}

// BookTop is a sampled best bid and ask. Prices are decimal strings; an empty
// side is stored as NULL.
type BookTop struct {
	Time        time.Time
	MarketIndex int
	Ticker      string
	Bid         string
	Ask         string
}

type Writer struct {
	db        *sql.DB
	log       *zap.Logger
	schema    string
	orders    chan OrderRecord
	tops      chan BookTop
	started   atomic.Bool
	dropOrder atomic.Uint64
	dropTop   atomic.Uint64
}

// New opens the audit database. It returns a nil writer when disabled; every
// method of a nil writer is a no-op.
func New(cfg config.TimescaleConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("timescale dsn is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	w := newWriter(db, cfg.Schema, cfg.QueueSize, log)
	if err := w.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

func newWriter(db *sql.DB, schema string, queueSize int, log *zap.Logger) *Writer {
	schema = strings.TrimSpace(schema)
	if schema == "" {
		schema = "public"
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{
		db:     db,
		log:    log,
		schema: schema,
		orders: make(chan OrderRecord, queueSize),
		tops:   make(chan BookTop, queueSize),
	}
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

// EnqueueOrder never blocks. A full queue drops the record and warns once.
func (w *Writer) EnqueueOrder(rec OrderRecord) {
	if w == nil {
		return
	}
	select {
	case w.orders <- rec:
	default:
		if w.dropOrder.Add(1) == 1 {
			w.log.Warn("timescale order queue full")
		}
	}
}

func (w *Writer) EnqueueTop(top BookTop) {
	if w == nil {
		return
	}
	select {
	case w.tops <- top:
	default:
		if w.dropTop.Add(1) == 1 {
			w.log.Warn("timescale book top queue full")
		}
	}
}

// Dropped returns how many order records and book tops were discarded.
func (w *Writer) Dropped() (orders, tops uint64) {
	if w == nil {
		return 0, 0
	}
	return w.dropOrder.Load(), w.dropTop.Load()
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-w.orders:
			w.writeOrder(ctx, rec)
		case top := <-w.tops:
			w.writeTop(ctx, top)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("timescale db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		kind TEXT NOT NULL,
		ticker TEXT NOT NULL,
		market_index INTEGER NOT NULL,
		client_order_index BIGINT NOT NULL,
		order_index BIGINT NOT NULL,
		base_amount BIGINT NOT NULL,
		price BIGINT NOT NULL,
		is_ask BOOLEAN NOT NULL,
		time_in_force INTEGER NOT NULL,
		reduce_only BOOLEAN NOT NULL,
		tx_hash TEXT NOT NULL,
		duplicate BOOLEAN NOT NULL,
		error TEXT NOT NULL,
		latency_ms BIGINT NOT NULL
	)`, w.table("order_audit"))); err != nil {
		return err
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		market_index INTEGER NOT NULL,
		ticker TEXT NOT NULL,
		bid NUMERIC,
		ask NUMERIC
	)`, w.table("book_tops"))); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		w.log.Warn("timescale extension ensure failed", zap.Error(err))
		return nil
	}
	for _, name := range []string{"order_audit", "book_tops"} {
		if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table(name))); err != nil {
			w.log.Warn("timescale hypertable create failed", zap.String("table", name), zap.Error(err))
		}
	}
	return nil
}

func (w *Writer) writeOrder(ctx context.Context, rec OrderRecord) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, kind, ticker, market_index, client_order_index, order_index, base_amount, price,
		is_ask, time_in_force, reduce_only, tx_hash, duplicate, error, latency_ms
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
	)`, w.table("order_audit"))
	if _, err := w.db.ExecContext(ctx, query, orderArgs(rec)...); err != nil {
		w.log.Warn("timescale order insert failed", zap.Error(err))
	}
}

func (w *Writer) writeTop(ctx context.Context, top BookTop) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (ts, market_index, ticker, bid, ask) VALUES ($1,$2,$3,$4,$5)`, w.table("book_tops"))
	if _, err := w.db.ExecContext(ctx, query,
		top.Time,
		top.MarketIndex,
		top.Ticker,
		nullable(top.Bid),
		nullable(top.Ask),
	); err != nil {
		w.log.Warn("timescale book top insert failed", zap.Error(err))
	}
}

func orderArgs(rec OrderRecord) []any {
	return []any{
		rec.Time,
		rec.Kind,
		rec.Ticker,
		rec.MarketIndex,
		rec.ClientOrderIndex,
		rec.OrderIndex,
		rec.BaseAmount,
		rec.Price,
		rec.IsAsk,
		rec.TimeInForce,
		rec.ReduceOnly,
		rec.TxHash,
		rec.Duplicate,
		rec.Error,
		rec.LatencyMS,
	}
}

func nullable(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}

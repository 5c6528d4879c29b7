package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fundingarb/internal/store"
)

// Recorder implements store.Recorder on PostgreSQL.
type Recorder struct {
	pool *pgxpool.Pool
}

func NewRecorder(pool *pgxpool.Pool) *Recorder {
	return &Recorder{pool: pool}
}

func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return pool, nil
}

// RecordOpen inserts a trade record. The ON CONFLICT clause makes a duplicate
// open for the same (exchange, symbol, open_time) land on the existing row.
func (r *Recorder) RecordOpen(ctx context.Context, open store.TradeOpen) (int64, error) {
	const insert = `
		INSERT INTO trade_records (
			symbol, exchange, open_time, open_price, quantity,
			leverage, direction, open_order_id, margin_amount, close_order_status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'OPEN')
		ON CONFLICT (exchange, symbol, open_time) DO NOTHING
		RETURNING id`

	var id int64
	err := r.pool.QueryRow(ctx, insert,
		open.Symbol, open.Exchange, open.OpenTime, open.OpenPrice, open.Quantity,
		open.Leverage, open.Direction, open.OrderID, open.Margin,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("postgres: record open %s/%s: %w", open.Exchange, open.Symbol, err)
	}

	// Conflict path: the record already exists, return its id.
	const sel = `
		SELECT id FROM trade_records
		WHERE exchange = $1 AND symbol = $2 AND open_time = $3`
	if err := r.pool.QueryRow(ctx, sel, open.Exchange, open.Symbol, open.OpenTime).Scan(&id); err != nil {
		return 0, fmt.Errorf("postgres: lookup existing record %s/%s: %w", open.Exchange, open.Symbol, err)
	}
	return id, nil
}

func (r *Recorder) RecordClose(ctx context.Context, recordID int64, close store.TradeClose) error {
	const query = `
		UPDATE trade_records SET
			close_price        = $2,
			close_order_id     = $3,
			close_order_status = $4,
			close_time         = $5
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query,
		recordID, close.ClosePrice, close.CloseOrderID, close.CloseStatus, close.CloseTime,
	)
	if err != nil {
		return fmt.Errorf("postgres: record close %d: %w", recordID, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

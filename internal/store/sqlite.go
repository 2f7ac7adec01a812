package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	_ "github.com/glebarez/go-sqlite"

	"quote-engine/market"
	"quote-engine/order"
	"quote-engine/strategy"
)

// SQLiteStore 持久化实现。uint64 字段按位存成 INTEGER（int64）。
type SQLiteStore struct {
	db   *sql.DB
	sink EventSink
}

func NewSQLite(dbPath string, sink EventSink) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// 单连接，避免 WAL 下多连接写冲突
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS strategy_state (
			trader TEXT NOT NULL,
			market TEXT NOT NULL,
			bid_price INTEGER NOT NULL,
			bid_seq INTEGER NOT NULL,
			bid_size INTEGER NOT NULL,
			ask_price INTEGER NOT NULL,
			ask_seq INTEGER NOT NULL,
			ask_size INTEGER NOT NULL,
			last_update_height INTEGER NOT NULL,
			last_update_unix INTEGER NOT NULL,
			quote_edge_bps INTEGER NOT NULL,
			quote_size_atoms INTEGER NOT NULL,
			post_only INTEGER NOT NULL,
			behavior INTEGER NOT NULL,
			PRIMARY KEY (trader, market)
		);
	`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create strategy_state table: %w", err)
	}
	return &SQLiteStore{db: db, sink: sink}, nil
}

const stateColumns = `trader, market, bid_price, bid_seq, bid_size, ask_price, ask_seq, ask_size,
	last_update_height, last_update_unix, quote_edge_bps, quote_size_atoms, post_only, behavior`

func stateArgs(st order.StrategyState) []interface{} {
	postOnly := 0
	if st.PostOnly {
		postOnly = 1
	}
	return []interface{}{
		st.Trader.String(), st.Market.String(),
		int64(st.Bid.PriceInTicks), int64(st.Bid.SequenceNumber), int64(st.Bid.InitialSizeInBaseLots),
		int64(st.Ask.PriceInTicks), int64(st.Ask.SequenceNumber), int64(st.Ask.InitialSizeInBaseLots),
		int64(st.LastUpdateHeight), st.LastUpdateUnix,
		int64(st.QuoteEdgeInBps), int64(st.QuoteSizeInQuoteAtoms), postOnly, int64(st.Behavior),
	}
}

func (s *SQLiteStore) Create(ctx context.Context, st order.StrategyState) error {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO strategy_state ("+stateColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT(trader, market) DO NOTHING",
		stateArgs(st)...,
	)
	if err != nil {
		return fmt.Errorf("failed to insert strategy state: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrExists, st.Key())
	}
	s.emit("state_created", st.Key())
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, key order.Key) (order.StrategyState, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+stateColumns+" FROM strategy_state WHERE trader = ? AND market = ?",
		key.Trader.String(), key.Market.String(),
	)
	st, err := scanState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return order.StrategyState{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return st, err
}

func (s *SQLiteStore) Save(ctx context.Context, st order.StrategyState) error {
	args := stateArgs(st)
	res, err := s.db.ExecContext(ctx, `
		UPDATE strategy_state SET
			bid_price = ?, bid_seq = ?, bid_size = ?,
			ask_price = ?, ask_seq = ?, ask_size = ?,
			last_update_height = ?, last_update_unix = ?,
			quote_edge_bps = ?, quote_size_atoms = ?, post_only = ?, behavior = ?
		WHERE trader = ? AND market = ?`,
		append(append([]interface{}{}, args[2:]...), args[0], args[1])...,
	)
	if err != nil {
		return fmt.Errorf("failed to update strategy state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update strategy state: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, st.Key())
	}
	s.emit("state_saved", st.Key())
	return nil
}

func (s *SQLiteStore) Keys(ctx context.Context) ([]order.Key, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT trader, market FROM strategy_state")
	if err != nil {
		return nil, fmt.Errorf("failed to query keys: %w", err)
	}
	defer rows.Close()

	var keys []order.Key
	for rows.Next() {
		var trader, mkt string
		if err := rows.Scan(&trader, &mkt); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		k, err := parseKey(trader, mkt)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) emit(event string, key order.Key) {
	if s.sink != nil {
		s.sink(event, map[string]interface{}{"key": key.String()})
	}
}

func parseKey(trader, mkt string) (order.Key, error) {
	t, err := market.ParseAddress(trader)
	if err != nil {
		return order.Key{}, err
	}
	m, err := market.ParseAddress(mkt)
	if err != nil {
		return order.Key{}, err
	}
	return order.Key{Trader: t, Market: m}, nil
}

func scanState(row *sql.Row) (order.StrategyState, error) {
	var (
		trader, mkt                        string
		bidPrice, bidSeq, bidSize          int64
		askPrice, askSeq, askSize          int64
		height, unix, edge, size, postOnly int64
		behavior                           int64
	)
	if err := row.Scan(&trader, &mkt, &bidPrice, &bidSeq, &bidSize, &askPrice, &askSeq, &askSize,
		&height, &unix, &edge, &size, &postOnly, &behavior); err != nil {
		return order.StrategyState{}, err
	}
	key, err := parseKey(trader, mkt)
	if err != nil {
		return order.StrategyState{}, err
	}
	if behavior < 0 || behavior > math.MaxUint8 {
		return order.StrategyState{}, fmt.Errorf("%w: %d", strategy.ErrInvalidBehavior, behavior)
	}
	b, err := strategy.ParseBehavior(uint8(behavior))
	if err != nil {
		return order.StrategyState{}, err
	}
	return order.StrategyState{
		Trader:                key.Trader,
		Market:                key.Market,
		Bid:                   order.OrderDescriptor{PriceInTicks: uint64(bidPrice), SequenceNumber: uint64(bidSeq), InitialSizeInBaseLots: uint64(bidSize)},
		Ask:                   order.OrderDescriptor{PriceInTicks: uint64(askPrice), SequenceNumber: uint64(askSeq), InitialSizeInBaseLots: uint64(askSize)},
		LastUpdateHeight:      uint64(height),
		LastUpdateUnix:        unix,
		QuoteEdgeInBps:        uint64(edge),
		QuoteSizeInQuoteAtoms: uint64(size),
		PostOnly:              postOnly != 0,
		Behavior:              b,
	}, nil
}

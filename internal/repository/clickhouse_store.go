package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"VolCast/internal/domain/models"
	domrepo "VolCast/internal/domain/repository"
	pkgch "VolCast/pkg/clickhouse"
	applogger "VolCast/pkg/logger"
)

// ClickHouseTickStore persists live-ingested ticks and serves them back
// by time range, acting as an alternative TickSource backend for symbols
// that arrive over the stream instead of day archives.
type ClickHouseTickStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

// NewClickHouseTickStore creates tick storage over an existing client.
func NewClickHouseTickStore(ch *pkgch.Client, table string) *ClickHouseTickStore {
	return &ClickHouseTickStore{db: ch.DB(), table: table}
}

// SetLogger injects a structured logger.
func (s *ClickHouseTickStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *ClickHouseTickStore) Store(ctx context.Context, t *models.Tick) error {
	q := fmt.Sprintf("INSERT INTO %s (ts, symbol, price, size, side) VALUES (?, ?, ?, ?, ?)", s.table)
	_, err := s.db.ExecContext(ctx, q, t.Timestamp, t.Symbol, t.Price, t.Size, t.Side.String())
	return err
}

func (s *ClickHouseTickStore) StoreBatch(ctx context.Context, ticks []*models.Tick) error {
	if len(ticks) == 0 {
		return nil
	}
	// Multi-row VALUES insert, chunked to bound the statement size.
	const chunk = 2000
	for lo := 0; lo < len(ticks); lo += chunk {
		hi := lo + chunk
		if hi > len(ticks) {
			hi = len(ticks)
		}
		values := make([]string, 0, hi-lo)
		args := make([]interface{}, 0, (hi-lo)*5)
		for _, t := range ticks[lo:hi] {
			if t == nil || t.Symbol == "" || t.Timestamp.IsZero() {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?)")
			args = append(args, t.Timestamp, t.Symbol, t.Price, t.Size, t.Side.String())
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (ts, symbol, price, size, side) VALUES %s", s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return err
		}
	}
	return nil
}

func (s *ClickHouseTickStore) Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]models.Tick, error) {
	q := fmt.Sprintf("SELECT symbol, ts, price, size, side FROM %s WHERE symbol = ? AND ts >= ? AND ts <= ? ORDER BY ts ASC LIMIT ?", s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, from, to, limit)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse ticks query error",
				applogger.String("stage", "load"),
				applogger.String("symbol", symbol),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("query ticks: %w", err)
	}
	defer rows.Close()

	var out []models.Tick
	for rows.Next() {
		var t models.Tick
		var ts time.Time
		var side string
		if err := rows.Scan(&t.Symbol, &ts, &t.Price, &t.Size, &side); err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		t.Timestamp = ts
		t.Side = models.ParseSide(side)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *ClickHouseTickStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseTickStore) Close() error {
	return nil // connection pool owned by pkg client
}

var _ domrepo.Storage = (*ClickHouseTickStore)(nil)

// ClickHousePredictionLog records every served prediction for audit and
// later drift analysis. Failures are logged, never surfaced to callers.
type ClickHousePredictionLog struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

// NewClickHousePredictionLog creates the audit sink.
func NewClickHousePredictionLog(ch *pkgch.Client, table string, l *applogger.Logger) *ClickHousePredictionLog {
	return &ClickHousePredictionLog{db: ch.DB(), table: table, l: l}
}

func (s *ClickHousePredictionLog) Record(ctx context.Context, p *models.VolatilityPrediction) error {
	contrib, err := json.Marshal(p.ContributingModels)
	if err != nil {
		contrib = []byte("{}")
	}
	q := fmt.Sprintf(`INSERT INTO %s
        (ts, symbol, horizon_days, predicted_vol, ci_lower, ci_upper, confidence, coverage, contributing, model_version)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table)
	_, err = s.db.ExecContext(ctx, q,
		p.Timestamp,
		p.Symbol,
		p.HorizonDays,
		p.PredictedVolatility,
		p.ConfidenceInterval[0],
		p.ConfidenceInterval[1],
		p.ModelConfidence,
		p.FeatureCoverage,
		string(contrib),
		p.ModelVersion,
	)
	if err != nil && s.l != nil {
		s.l.Error("prediction log insert error",
			applogger.String("stage", "predict"),
			applogger.String("symbol", p.Symbol),
			applogger.Error(err),
		)
	}
	return err
}

var _ domrepo.PredictionSink = (*ClickHousePredictionLog)(nil)

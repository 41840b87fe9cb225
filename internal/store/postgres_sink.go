package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dunamismax/pixelbench/internal/domain"
	_ "github.com/lib/pq"
)

const stepResultsSchemaSQL = `
CREATE TABLE IF NOT EXISTS step_results (
	id BIGSERIAL PRIMARY KEY,
	session_id TEXT NOT NULL,
	arch TEXT NOT NULL,
	mode TEXT NOT NULL,
	workload TEXT NOT NULL DEFAULT '',
	run_id INTEGER NOT NULL,
	run_type TEXT NOT NULL,
	step_name TEXT NOT NULL,
	function_id TEXT NOT NULL,
	logic_time_ms DOUBLE PRECISION NOT NULL,
	round_trip_ms DOUBLE PRECISION NOT NULL,
	success BOOLEAN NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS step_results_variant_idx ON step_results (arch, mode, workload);
`

// PostgresSink writes rows to the step_results table under fixed labels.
type PostgresSink struct {
	db     *sql.DB
	labels Labels
}

func NewPostgresSink(ctx context.Context, dsn string, labels Labels) (*PostgresSink, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	sink := &PostgresSink{db: db, labels: labels}
	if err := sink.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return sink, nil
}

func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, stepResultsSchemaSQL); err != nil {
		return fmt.Errorf("ensure step_results schema: %w", err)
	}
	return nil
}

func (s *PostgresSink) Close() error {
	return s.db.Close()
}

func (s *PostgresSink) Write(ctx context.Context, row domain.StepResult) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO step_results
		 (session_id, arch, mode, workload, run_id, run_type, step_name, function_id, logic_time_ms, round_trip_ms, success, error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		s.labels.SessionID,
		s.labels.Arch,
		s.labels.Mode,
		s.labels.Workload,
		row.RunID,
		row.RunType,
		row.StepName,
		row.FunctionID,
		row.LogicTimeMS,
		row.RoundTripMS,
		row.Success,
		row.Error,
	)
	if err != nil {
		return fmt.Errorf("insert step result: %w", err)
	}
	return nil
}

// Means averages successful BENCHMARK rows per step for one variant. An
// empty workload matches every workload.
func (s *PostgresSink) Means(ctx context.Context, variant Labels, metric Metric) (map[string]float64, error) {
	query, err := meansQuery(metric)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, domain.RunTypeBenchmark, variant.Arch, variant.Mode, variant.Workload)
	if err != nil {
		return nil, fmt.Errorf("query variant means: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var (
			step string
			mean float64
		)
		if err := rows.Scan(&step, &mean); err != nil {
			return nil, fmt.Errorf("scan variant mean: %w", err)
		}
		out[step] = mean
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate variant means: %w", err)
	}
	return out, nil
}

func meansQuery(metric Metric) (string, error) {
	switch metric {
	case MetricLogic, MetricRoundTrip:
	default:
		return "", errors.New("unknown metric " + string(metric))
	}

	return strings.Join([]string{
		"SELECT step_name, AVG(" + string(metric) + ")",
		"FROM step_results",
		"WHERE success AND run_type = $1 AND arch = $2 AND mode = $3 AND ($4 = '' OR workload = $4)",
		"GROUP BY step_name",
	}, " "), nil
}

package infra

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// SQLExecutor is the subset of pgx used by the postgres-backed stores.
type SQLExecutor interface {
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
}

// SQLRunner logs every statement it forwards to the pool, tagged with the
// statement verb.
type SQLRunner struct {
	Pool   *pgxpool.Pool
	Logger zerolog.Logger
}

func NewSQLRunner(pool *pgxpool.Pool, logger zerolog.Logger) *SQLRunner {
	return &SQLRunner{Pool: pool, Logger: logger}
}

func (r *SQLRunner) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	verb := statementVerb(query)
	tag, err := r.Pool.Exec(ctx, query, args...)
	if err != nil {
		r.Logger.Error().Err(err).Str("stmt", verb).Msg("sql: exec failed")
		return tag, err
	}
	r.Logger.Debug().Str("stmt", verb).Int64("rows", tag.RowsAffected()).Msg("sql: exec")
	return tag, nil
}

func (r *SQLRunner) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	verb := statementVerb(query)
	r.Logger.Debug().Str("stmt", verb).Msg("sql: query_row")
	return loggingRow{row: r.Pool.QueryRow(ctx, query, args...), logger: r.Logger, verb: verb}
}

type loggingRow struct {
	row    pgx.Row
	logger zerolog.Logger
	verb   string
}

func (l loggingRow) Scan(dest ...any) error {
	err := l.row.Scan(dest...)
	if err != nil && err != pgx.ErrNoRows {
		l.logger.Error().Err(err).Str("stmt", l.verb).Msg("sql: scan failed")
	}
	return err
}

func statementVerb(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return "empty"
	}
	return strings.ToLower(fields[0])
}

var _ SQLExecutor = (*SQLRunner)(nil)

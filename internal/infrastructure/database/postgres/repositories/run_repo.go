// Package repositories implements the domain repositories on PostgreSQL.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/turtacn/kgeval/internal/domain/run"
	"github.com/turtacn/kgeval/internal/infrastructure/database/postgres"
	"github.com/turtacn/kgeval/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/kgeval/pkg/errors"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

const runColumns = `id, dataset, net_name, epoch, model_id, backend, margin_start, margin_end,
	correct, total, accuracy, relations, skipped, report_dir, started_at, finished_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

type postgresRunRepo struct {
	conn   *postgres.Connection
	logger logging.Logger
}

// NewPostgresRunRepo returns a run.Repository over conn.
func NewPostgresRunRepo(conn *postgres.Connection, log logging.Logger) run.Repository {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &postgresRunRepo{conn: conn, logger: log}
}

// Save inserts rec.  A record with an existing id is left untouched so that
// redelivered events are harmless.
func (r *postgresRunRepo) Save(ctx context.Context, rec *run.Record) error {
	if rec == nil || rec.ID == "" {
		return errors.New(errors.ErrCodeValidation, "run record requires an id")
	}
	relations, err := json.Marshal(nonNilRelations(rec.Relations))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode relations")
	}
	skipped, err := json.Marshal(nonNilInts(rec.Skipped))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode skipped relations")
	}

	query := `INSERT INTO validation_runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO NOTHING`
	_, err = r.conn.DB().ExecContext(ctx, query,
		rec.ID, rec.Dataset, rec.NetName, rec.Epoch, rec.ModelID, rec.Backend, rec.Start, rec.End,
		rec.Correct, rec.Total, rec.Accuracy, relations, skipped, rec.ReportDir, rec.StartedAt, rec.FinishedAt,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to save run").WithDetail(rec.ID)
	}
	r.logger.Debug("run saved", logging.String("id", rec.ID), logging.Int("epoch", rec.Epoch))
	return nil
}

func (r *postgresRunRepo) Get(ctx context.Context, id string) (*run.Record, error) {
	query := `SELECT ` + runColumns + ` FROM validation_runs WHERE id = $1`
	rec, err := scanRun(r.conn.DB().QueryRowContext(ctx, query, id))
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.New(errors.ErrCodeRunNotFound, "run not found").WithDetail(id)
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to get run").WithDetail(id)
	}
	return rec, nil
}

// List returns runs newest first.
func (r *postgresRunRepo) List(ctx context.Context, filter run.ListFilter) ([]*run.Record, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Dataset != "" {
		args = append(args, filter.Dataset)
		where = append(where, fmt.Sprintf("dataset = $%d", len(args)))
	}
	if filter.NetName != "" {
		args = append(args, filter.NetName)
		where = append(where, fmt.Sprintf("net_name = $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	var sb strings.Builder
	sb.WriteString("SELECT " + runColumns + " FROM validation_runs")
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	args = append(args, limit, offset)
	fmt.Fprintf(&sb, " ORDER BY finished_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.conn.DB().QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list runs")
	}
	defer rows.Close()

	out := make([]*run.Record, 0)
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan run")
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate runs")
	}
	return out, nil
}

func scanRun(row scanner) (*run.Record, error) {
	var (
		rec                run.Record
		relations, skipped []byte
	)
	err := row.Scan(
		&rec.ID, &rec.Dataset, &rec.NetName, &rec.Epoch, &rec.ModelID, &rec.Backend, &rec.Start, &rec.End,
		&rec.Correct, &rec.Total, &rec.Accuracy, &relations, &skipped, &rec.ReportDir, &rec.StartedAt, &rec.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(relations) > 0 {
		if err := json.Unmarshal(relations, &rec.Relations); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "malformed relations column")
		}
	}
	if len(skipped) > 0 {
		if err := json.Unmarshal(skipped, &rec.Skipped); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "malformed skipped column")
		}
	}
	return &rec, nil
}

func nonNilRelations(in []run.RelationOutcome) []run.RelationOutcome {
	if in == nil {
		return []run.RelationOutcome{}
	}
	return in
}

func nonNilInts(in []int) []int {
	if in == nil {
		return []int{}
	}
	return in
}

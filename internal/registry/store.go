package registry

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id                        TEXT PRIMARY KEY,
	provider                      TEXT NOT NULL,
	model                         TEXT NOT NULL,
	git_commit                    TEXT NOT NULL,
	has_summary                   INTEGER NOT NULL,
	wrapper_count                 INTEGER NOT NULL,
	neutral_train_indicator_mean  REAL,
	neutral_eval_indicator_mean   REAL,
	selected_wrapper              TEXT NOT NULL,
	baseline_wrapper              TEXT NOT NULL,
	selected_eval_indicator_mean  REAL,
	baseline_eval_indicator_mean  REAL,
	path                          TEXT NOT NULL,
	indexed_at                    TEXT NOT NULL
);
`

// Store keeps the run index in SQLite.
type Store struct {
	db *sql.DB
}

// OpenStore opens or creates the index database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open index db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert inserts or replaces entries by run id in one transaction.
func (s *Store) Upsert(ctx context.Context, entries []Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO runs
		(run_id, provider, model, git_commit, has_summary, wrapper_count,
		 neutral_train_indicator_mean, neutral_eval_indicator_mean,
		 selected_wrapper, baseline_wrapper,
		 selected_eval_indicator_mean, baseline_eval_indicator_mean,
		 path, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			provider = excluded.provider,
			model = excluded.model,
			git_commit = excluded.git_commit,
			has_summary = excluded.has_summary,
			wrapper_count = excluded.wrapper_count,
			neutral_train_indicator_mean = excluded.neutral_train_indicator_mean,
			neutral_eval_indicator_mean = excluded.neutral_eval_indicator_mean,
			selected_wrapper = excluded.selected_wrapper,
			baseline_wrapper = excluded.baseline_wrapper,
			selected_eval_indicator_mean = excluded.selected_eval_indicator_mean,
			baseline_eval_indicator_mean = excluded.baseline_eval_indicator_mean,
			path = excluded.path,
			indexed_at = excluded.indexed_at`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, e := range entries {
		hasSummary := 0
		if e.HasSummary {
			hasSummary = 1
		}
		if _, err := stmt.ExecContext(ctx,
			e.RunID, e.Provider, e.Model, e.GitCommit, hasSummary, e.WrapperCount,
			nullable(e.NeutralTrainMean), nullable(e.NeutralEvalMean),
			e.SelectedWrapper, e.BaselineWrapper,
			nullable(e.SelectedEvalMean), nullable(e.BaselineEvalMean),
			e.Path, now,
		); err != nil {
			return fmt.Errorf("upsert %s: %w", e.RunID, err)
		}
	}
	return tx.Commit()
}

// List returns every indexed run ordered by run id.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, provider, model, git_commit, has_summary, wrapper_count,
		       neutral_train_indicator_mean, neutral_eval_indicator_mean,
		       selected_wrapper, baseline_wrapper,
		       selected_eval_indicator_mean, baseline_eval_indicator_mean, path
		FROM runs ORDER BY run_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                                          Entry
			hasSummary                                 int
			neutralTrain, neutralEval, selEval, bsEval sql.NullFloat64
		)
		if err := rows.Scan(
			&e.RunID, &e.Provider, &e.Model, &e.GitCommit, &hasSummary, &e.WrapperCount,
			&neutralTrain, &neutralEval,
			&e.SelectedWrapper, &e.BaselineWrapper,
			&selEval, &bsEval, &e.Path,
		); err != nil {
			return nil, err
		}
		e.HasSummary = hasSummary == 1
		e.NeutralTrainMean = fromNull(neutralTrain)
		e.NeutralEvalMean = fromNull(neutralEval)
		e.SelectedEvalMean = fromNull(selEval)
		e.BaselineEvalMean = fromNull(bsEval)
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullable(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func fromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

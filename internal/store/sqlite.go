package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/mre-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL DEFAULT 'running',
	output_path TEXT NOT NULL DEFAULT '',
	summary     TEXT,
	error       TEXT NOT NULL DEFAULT '',
	started_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS run_skips (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	kind        TEXT NOT NULL,
	detail      TEXT NOT NULL,
	company_id  TEXT NOT NULL,
	document_id TEXT NOT NULL,
	page_number INTEGER NOT NULL,
	row_index  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS run_records (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id          TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	company_id      TEXT NOT NULL,
	deposit_name    TEXT NOT NULL,
	category        TEXT NOT NULL,
	commodity       TEXT NOT NULL,
	tonnage         REAL NOT NULL,
	grade           REAL NOT NULL,
	contained_metal REAL NOT NULL,
	source          TEXT NOT NULL,
	document_id     TEXT NOT NULL,
	page_number     INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_run_skips_run_id ON run_skips(run_id);
CREATE INDEX IF NOT EXISTS idx_run_records_run_id ON run_records(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, outputPath string) (*model.RunSummary, error) {
	sum := &model.RunSummary{
		ID:         uuid.New().String(),
		Status:     model.RunStatusRunning,
		StartedAt:  time.Now().UTC(),
		OutputPath: outputPath,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, output_path, started_at) VALUES (?, ?, ?, ?)`,
		sum.ID, string(sum.Status), sum.OutputPath, sum.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return sum, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, run *model.Run) error {
	sum := run.Summary
	if sum.FinishedAt.IsZero() {
		sum.FinishedAt = time.Now().UTC()
	}
	summaryJSON, err := json.Marshal(sum)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal summary")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`UPDATE runs SET status = ?, summary = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(sum.Status), string(summaryJSON), sum.Error, sum.FinishedAt, sum.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", sum.ID)
	}
	if err := checkRowsAffected(res, "run", sum.ID); err != nil {
		return err
	}

	skipStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO run_skips (run_id, kind, detail, company_id, document_id, page_number, row_index)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare skip insert")
	}
	defer skipStmt.Close() //nolint:errcheck
	for _, sk := range run.Skips {
		if _, err := skipStmt.ExecContext(ctx, sum.ID, string(sk.Kind), sk.Detail,
			sk.CompanyID, sk.DocumentID, sk.PageNumber, sk.Row); err != nil {
			return eris.Wrap(err, "sqlite: insert skip")
		}
	}

	recStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO run_records (run_id, company_id, deposit_name, category, commodity, tonnage, grade,
		 contained_metal, source, document_id, page_number) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare record insert")
	}
	defer recStmt.Close() //nolint:errcheck
	for _, r := range run.Records {
		if _, err := recStmt.ExecContext(ctx, sum.ID, r.CompanyID, r.DepositName, string(r.Category),
			string(r.Commodity), r.Tonnage, r.Grade, r.ContainedMetal, string(r.Source),
			r.DocumentID, r.PageNumber); err != nil {
			return eris.Wrap(err, "sqlite: insert record")
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit run")
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, output_path, summary, error, started_at, finished_at FROM runs WHERE id = ?`,
		runID,
	)
	sum, err := scanRun(row)
	if err != nil {
		return nil, err
	}
	run := &model.Run{Summary: *sum}

	skipRows, err := s.db.QueryContext(ctx,
		`SELECT kind, detail, company_id, document_id, page_number, row_index
		 FROM run_skips WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list skips %s", runID)
	}
	defer skipRows.Close() //nolint:errcheck
	for skipRows.Next() {
		var sk model.Skip
		if err := skipRows.Scan(&sk.Kind, &sk.Detail, &sk.CompanyID, &sk.DocumentID, &sk.PageNumber, &sk.Row); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan skip")
		}
		run.Skips = append(run.Skips, sk)
	}
	if err := skipRows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: list skips iterate")
	}

	recRows, err := s.db.QueryContext(ctx,
		`SELECT company_id, deposit_name, category, commodity, tonnage, grade, contained_metal,
		 source, document_id, page_number FROM run_records WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list records %s", runID)
	}
	defer recRows.Close() //nolint:errcheck
	for recRows.Next() {
		var r model.MRERecord
		if err := recRows.Scan(&r.CompanyID, &r.DepositName, &r.Category, &r.Commodity, &r.Tonnage,
			&r.Grade, &r.ContainedMetal, &r.Source, &r.DocumentID, &r.PageNumber); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		run.Records = append(run.Records, r)
	}
	return run, eris.Wrap(recRows.Err(), "sqlite: list records iterate")
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.RunSummary, error) {
	query := `SELECT id, status, output_path, summary, error, started_at, finished_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.RunSummary
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

// scanRun reads a runs row. The stored summary carries the counts; the
// columns are authoritative for identity, status and timing.
func scanRun(row scannable) (*model.RunSummary, error) {
	var (
		sum         model.RunSummary
		summaryJSON sql.NullString
		finishedAt  sql.NullTime
		id          string
		status      string
		outputPath  string
		errMsg      string
		startedAt   time.Time
	)

	err := row.Scan(&id, &status, &outputPath, &summaryJSON, &errMsg, &startedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if summaryJSON.Valid {
		if err := json.Unmarshal([]byte(summaryJSON.String), &sum); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal summary")
		}
	}
	sum.ID = id
	sum.Status = model.RunStatus(status)
	sum.OutputPath = outputPath
	sum.Error = errMsg
	sum.StartedAt = startedAt
	if finishedAt.Valid {
		sum.FinishedAt = finishedAt.Time
	}
	return &sum, nil
}

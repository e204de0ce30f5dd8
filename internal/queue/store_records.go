package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const recordColumns = "task_id, url, title, outcome, output_path, error_kind, error_message, format, model, path_used, started_at, finished_at"

// Record upserts rec, replacing any earlier result for the same task id.
func (s *Store) Record(ctx context.Context, rec Record) error {
	if strings.TrimSpace(rec.TaskID) == "" {
		return errors.New("record task result: task id required")
	}
	if _, ok := ParseOutcome(string(rec.Outcome)); !ok {
		return fmt.Errorf("record task result: %q is not a terminal outcome", rec.Outcome)
	}
	finished := rec.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	started := rec.StartedAt
	if started.IsZero() {
		started = finished
	}

	_, err := s.execWithRetry(ctx,
		`INSERT INTO task_results (`+recordColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(task_id) DO UPDATE SET
            url = excluded.url,
            title = excluded.title,
            outcome = excluded.outcome,
            output_path = excluded.output_path,
            error_kind = excluded.error_kind,
            error_message = excluded.error_message,
            format = excluded.format,
            model = excluded.model,
            path_used = excluded.path_used,
            started_at = excluded.started_at,
            finished_at = excluded.finished_at`,
		rec.TaskID,
		rec.URL,
		nullableString(rec.Title),
		string(rec.Outcome),
		nullableString(rec.OutputPath),
		nullableString(rec.ErrorKind),
		nullableString(rec.ErrorMessage),
		nullableString(rec.Format),
		nullableString(rec.Model),
		nullableString(string(rec.PathUsed)),
		formatTime(started),
		formatTime(finished),
	)
	if err != nil {
		return fmt.Errorf("record task result: %w", err)
	}
	return nil
}

// Get returns the record for id, or nil when none is stored.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+recordColumns+` FROM task_results WHERE task_id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task result: %w", err)
	}
	return rec, nil
}

// FindByPrefix resolves an abbreviated task id. It returns nil when nothing
// matches and an error when the prefix is ambiguous.
func (s *Store) FindByPrefix(ctx context.Context, prefix string) (*Record, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return nil, errors.New("find task result: empty id")
	}
	if rec, err := s.Get(ctx, prefix); err != nil || rec != nil {
		return rec, err
	}
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+recordColumns+` FROM task_results WHERE task_id LIKE ? ESCAPE '\' LIMIT 2`, escaped+"%")
	if err != nil {
		return nil, fmt.Errorf("find task result: %w", err)
	}
	records, err := collect(rows)
	if err != nil {
		return nil, err
	}
	switch len(records) {
	case 0:
		return nil, nil
	case 1:
		return &records[0], nil
	default:
		return nil, fmt.Errorf("find task result: id prefix %q is ambiguous", prefix)
	}
}

// List returns the most recently finished records first. limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM task_results ORDER BY finished_at DESC, task_id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list task results: %w", err)
	}
	return collect(rows)
}

// Delete removes the record for id. It reports whether a row existed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM task_results WHERE task_id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete task result: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete task result: %w", err)
	}
	return n > 0, nil
}

// Prune removes records that finished before cutoff and returns how many
// were deleted.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM task_results WHERE finished_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune task results: %w", err)
	}
	return res.RowsAffected()
}

// Summarize counts records per outcome.
func (s *Store) Summarize(ctx context.Context) (Summary, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT outcome, COUNT(1) FROM task_results GROUP BY outcome`)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize task results: %w", err)
	}
	defer rows.Close()

	var summary Summary
	for rows.Next() {
		var (
			outcome string
			count   int
		)
		if err := rows.Scan(&outcome, &count); err != nil {
			return Summary{}, err
		}
		summary.Total += count
		switch Outcome(outcome) {
		case OutcomeDone:
			summary.Done += count
		case OutcomeFailed:
			summary.Failed += count
		case OutcomeCancelled:
			summary.Cancelled += count
		}
	}
	return summary, rows.Err()
}

func collect(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()
	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task result: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		rec          Record
		title        sql.NullString
		outcome      string
		outputPath   sql.NullString
		errorKind    sql.NullString
		errorMessage sql.NullString
		format       sql.NullString
		model        sql.NullString
		pathUsed     sql.NullString
		startedRaw   string
		finishedRaw  string
	)
	if err := scanner.Scan(
		&rec.TaskID,
		&rec.URL,
		&title,
		&outcome,
		&outputPath,
		&errorKind,
		&errorMessage,
		&format,
		&model,
		&pathUsed,
		&startedRaw,
		&finishedRaw,
	); err != nil {
		return nil, err
	}
	rec.Title = title.String
	rec.Outcome = Outcome(outcome)
	rec.OutputPath = outputPath.String
	rec.ErrorKind = errorKind.String
	rec.ErrorMessage = errorMessage.String
	rec.Format = format.String
	rec.Model = model.String
	rec.PathUsed = PathUsed(pathUsed.String)
	rec.StartedAt = parseTime(startedRaw)
	rec.FinishedAt = parseTime(finishedRaw)
	return &rec, nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

// Timestamps are stored as fixed-width UTC text so lexical order matches
// chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Lllllllleong/gazetteflow/internal/models"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS student_records (
	seq         INTEGER PRIMARY KEY,
	seat_no     TEXT NOT NULL DEFAULT '',
	name        TEXT NOT NULL DEFAULT '',
	grand_total INTEGER,
	sgpa        TEXT NOT NULL DEFAULT '[]',
	cgpa        REAL,
	remark      TEXT NOT NULL DEFAULT '',
	subjects    TEXT NOT NULL DEFAULT '[]'
)`

const selectRecords = `SELECT seat_no, name, grand_total, sgpa, cgpa, remark, subjects FROM student_records`

// SQLite is a Store backed by a single SQLite file. Nested fields are kept as JSON.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the database at path. ":memory:" is
// accepted for tests.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path must be provided")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create student_records table: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) ReplaceAll(ctx context.Context, records []models.StudentRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin replace transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM student_records"); err != nil {
		return fmt.Errorf("failed to clear student_records: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO student_records (seq, seat_no, name, grand_total, sgpa, cgpa, remark, subjects) VALUES (?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		sgpa, err := json.Marshal(nonNilFloats(r.SGPA))
		if err != nil {
			return fmt.Errorf("record %d: failed to encode sgpa: %w", i, err)
		}
		subjects, err := json.Marshal(nonNilSubjects(r.Subjects))
		if err != nil {
			return fmt.Errorf("record %d: failed to encode subjects: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx, i+1, r.SeatNo, r.Name, nullInt(r.GrandTotal), string(sgpa), nullFloat(r.CGPA), r.Remark, string(subjects)); err != nil {
			return fmt.Errorf("failed to insert record %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit replace transaction: %w", err)
	}
	return nil
}

func (s *SQLite) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM student_records").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

func (s *SQLite) AverageCGPA(ctx context.Context) (float64, bool, error) {
	var avg sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, "SELECT AVG(cgpa) FROM student_records WHERE cgpa IS NOT NULL").Scan(&avg); err != nil {
		return 0, false, fmt.Errorf("failed to average cgpa: %w", err)
	}
	return avg.Float64, avg.Valid, nil
}

func (s *SQLite) CountByRemark(ctx context.Context) ([]models.RemarkCount, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT remark, COUNT(*) FROM student_records GROUP BY remark")
	if err != nil {
		return nil, fmt.Errorf("failed to group by remark: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var remark string
		var n int
		if err := rows.Scan(&remark, &n); err != nil {
			return nil, fmt.Errorf("failed to scan remark group: %w", err)
		}
		counts[remark] += n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read remark groups: %w", err)
	}
	return groupRemarks(counts), nil
}

func (s *SQLite) CGPAValues(ctx context.Context) ([]float64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT cgpa FROM student_records WHERE cgpa IS NOT NULL AND cgpa != 0 ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("failed to project cgpa: %w", err)
	}
	defer rows.Close()

	values := []float64{}
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan cgpa: %w", err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cgpa values: %w", err)
	}
	return values, nil
}

// Find sorts in SQL. Pattern filters run in Go over the sorted rows, so the limit is
// pushed down to SQL only when there is nothing to filter.
func (s *SQLite) Find(ctx context.Context, q Query) ([]models.StudentRecord, error) {
	var sb strings.Builder
	sb.WriteString(selectRecords)
	sb.WriteString(" ORDER BY ")
	if col := sortColumn(q.Sort); col != "" {
		dir := "ASC"
		if q.Descending {
			dir = "DESC"
		}
		fmt.Fprintf(&sb, "%s IS NULL, %s %s, ", col, col, dir)
	}
	sb.WriteString("seq")
	var args []any
	if q.Filter.IsZero() && q.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out []models.StudentRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		if q.Filter.Matches(r) {
			out = append(out, r)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}
	return limit(out, q.Limit), nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func sortColumn(f SortField) string {
	switch f {
	case SortGrandTotal:
		return "grand_total"
	case SortCGPA:
		return "cgpa"
	}
	return ""
}

func scanRecord(rows *sql.Rows) (models.StudentRecord, error) {
	var (
		r          models.StudentRecord
		grandTotal sql.NullInt64
		cgpa       sql.NullFloat64
		sgpa       string
		subjects   string
	)
	if err := rows.Scan(&r.SeatNo, &r.Name, &grandTotal, &sgpa, &cgpa, &r.Remark, &subjects); err != nil {
		return r, fmt.Errorf("failed to scan record: %w", err)
	}
	if grandTotal.Valid {
		v := int(grandTotal.Int64)
		r.GrandTotal = &v
	}
	if cgpa.Valid {
		v := cgpa.Float64
		r.CGPA = &v
	}
	if err := json.Unmarshal([]byte(sgpa), &r.SGPA); err != nil {
		return r, fmt.Errorf("failed to decode sgpa: %w", err)
	}
	if len(r.SGPA) == 0 {
		r.SGPA = nil
	}
	if err := json.Unmarshal([]byte(subjects), &r.Subjects); err != nil {
		return r, fmt.Errorf("failed to decode subjects: %w", err)
	}
	r.Subjects = nonNilSubjects(r.Subjects)
	return r, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nonNilFloats(v []float64) []float64 {
	if v == nil {
		return []float64{}
	}
	return v
}

func nonNilSubjects(v []models.SubjectScore) []models.SubjectScore {
	if v == nil {
		return []models.SubjectScore{}
	}
	return v
}

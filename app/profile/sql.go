package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/tutorbot/core/logger"
)

// SQLStore implements Store over sqlx. Queries are written with '?' and
// rebound for the connected driver, so the same code serves postgres and sqlite.
type SQLStore struct {
	db *sqlx.DB
}

// NewSQLStore wraps an open connection. The schema must already be migrated.
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

type userRow struct {
	TelegramID   int64          `db:"telegram_id"`
	Role         string         `db:"role"`
	Name         string         `db:"name"`
	Surname      string         `db:"surname"`
	PasswordHash string         `db:"password_hash"`
	City         sql.NullString `db:"city"`
	School       sql.NullInt64  `db:"school"`
	StudentClass sql.NullString `db:"student_class"`
	Ref          sql.NullString `db:"ref"`
}

func (r userRow) record() Record {
	return Record{
		TelegramID:   r.TelegramID,
		Role:         Role(r.Role),
		Name:         r.Name,
		Surname:      r.Surname,
		PasswordHash: r.PasswordHash,
		City:         r.City.String,
		School:       int(r.School.Int64),
		StudentClass: r.StudentClass.String,
		Ref:          r.Ref.String,
	}
}

func records(rows []userRow) []Record {
	out := make([]Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.record())
	}
	return out
}

const userColumns = `u.telegram_id, u.role, u.name, u.surname, u.password_hash, u.city, u.school, u.student_class, u.ref`

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(n int) any {
	if n == 0 {
		return nil
	}
	return n
}

func (s *SQLStore) logQuery(ctx context.Context, op string, start time.Time, err error) {
	attrs := []slog.Attr{
		slog.String("op", op),
		slog.Int64("duration_ms", logger.RoundMS(time.Since(start)).Milliseconds()),
	}
	switch {
	case expectedMiss(err):
		attrs = append(attrs, slog.String("status", "skip"), slog.String("err", err.Error()))
		logger.Debug(ctx, "service.profiles", "query.done", attrs...)
		return
	case err != nil:
		attrs = append(attrs, slog.String("status", "fail"), slog.String("err", logger.SanitizeLimit(err.Error(), 256)))
		logger.Warn(ctx, "service.profiles", "query.failed", attrs...)
		return
	}
	attrs = append(attrs, slog.String("status", "ok"))
	logger.Debug(ctx, "service.profiles", "query.done", attrs...)
}

// expectedMiss reports errors that are ordinary outcomes rather than store failures.
func expectedMiss(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrExists)
}

func (s *SQLStore) GetProfile(ctx context.Context, id int64) (rec Record, err error) {
	defer func(start time.Time) { s.logQuery(ctx, "get_profile", start, err) }(time.Now())

	var row userRow
	q := s.db.Rebind(`SELECT ` + userColumns + ` FROM users u WHERE u.telegram_id = ?`)
	if err := s.db.GetContext(ctx, &row, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("get profile %d: %w", id, err)
	}
	return row.record(), nil
}

func (s *SQLStore) CreateProfile(ctx context.Context, id int64, p NewProfile) (err error) {
	defer func(start time.Time) { s.logQuery(ctx, "create_profile", start, err) }(time.Now())
	if err := p.validate(); err != nil {
		return err
	}
	hash, err := HashPassword(p.Password)
	if err != nil {
		return err
	}

	var exists int
	q := s.db.Rebind(`SELECT COUNT(*) FROM users WHERE telegram_id = ?`)
	if err := s.db.GetContext(ctx, &exists, q, id); err != nil {
		return fmt.Errorf("create profile %d: %w", id, err)
	}
	if exists > 0 {
		return ErrExists
	}

	q = s.db.Rebind(`INSERT INTO users (telegram_id, role, name, surname, password_hash, city, school, student_class, ref)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, q, id, string(p.Role), p.Name, p.Surname, hash,
		nullString(p.City), nullInt(p.School), nullString(p.StudentClass), nullString(p.Ref)); err != nil {
		return fmt.Errorf("create profile %d: %w", id, err)
	}
	return nil
}

func (s *SQLStore) UpdateField(ctx context.Context, id int64, key string, value any) (err error) {
	defer func(start time.Time) { s.logQuery(ctx, "update_field", start, err) }(time.Now())
	col, v, err := column(key, value)
	if err != nil {
		return err
	}
	// col comes from the fixed set returned by column.
	q := s.db.Rebind(`UPDATE users SET ` + col + ` = ? WHERE telegram_id = ?`)
	res, err := s.db.ExecContext(ctx, q, v, id)
	if err != nil {
		return fmt.Errorf("update %s for %d: %w", key, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) DeleteProfile(ctx context.Context, id int64) (deleted bool, err error) {
	defer func(start time.Time) { s.logQuery(ctx, "delete_profile", start, err) }(time.Now())
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("delete profile %d: %w", id, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, stmt := range []string{
		`DELETE FROM assignments WHERE teacher_id = ? OR student_id = ?`,
		`DELETE FROM applications WHERE teacher_id = ? OR student_id = ?`,
		`DELETE FROM teacher_students WHERE teacher_id = ? OR student_id = ?`,
	} {
		if _, err = tx.ExecContext(ctx, tx.Rebind(stmt), id, id); err != nil {
			return false, fmt.Errorf("delete profile %d: %w", id, err)
		}
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM users WHERE telegram_id = ?`), id)
	if err != nil {
		return false, fmt.Errorf("delete profile %d: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("delete profile %d: %w", id, err)
	}
	return n > 0, nil
}

func (s *SQLStore) Search(ctx context.Context, c Criteria) (out []Record, err error) {
	defer func(start time.Time) { s.logQuery(ctx, "search", start, err) }(time.Now())
	q := `SELECT ` + userColumns + ` FROM users u WHERE 1 = 1`
	var args []any
	if c.Role != "" {
		q += ` AND u.role = ?`
		args = append(args, string(c.Role))
	}
	if c.City != "" {
		q += ` AND u.city = ?`
		args = append(args, c.City)
	}
	if c.School != 0 {
		q += ` AND u.school = ?`
		args = append(args, c.School)
	}
	if c.StudentClass != "" {
		q += ` AND u.student_class = ?`
		args = append(args, c.StudentClass)
	}
	q += ` ORDER BY u.surname, u.name, u.telegram_id`

	var rows []userRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("search profiles: %w", err)
	}
	return records(rows), nil
}

func (s *SQLStore) rolesPresent(ctx context.Context, teacherID, studentID int64) (bool, error) {
	var n int
	q := s.db.Rebind(`SELECT COUNT(*) FROM users
		WHERE (telegram_id = ? AND role = 'teacher') OR (telegram_id = ? AND role = 'student')`)
	if err := s.db.GetContext(ctx, &n, q, teacherID, studentID); err != nil {
		return false, err
	}
	return n == 2, nil
}

func (s *SQLStore) AddApplication(ctx context.Context, teacherID, studentID int64) (added bool, err error) {
	defer func(start time.Time) { s.logQuery(ctx, "add_application", start, err) }(time.Now())
	ok, err := s.rolesPresent(ctx, teacherID, studentID)
	if err != nil {
		return false, fmt.Errorf("add application: %w", err)
	}
	if !ok {
		return false, ErrNotFound
	}
	var linked int
	q := s.db.Rebind(`SELECT COUNT(*) FROM teacher_students WHERE teacher_id = ? AND student_id = ?`)
	if err := s.db.GetContext(ctx, &linked, q, teacherID, studentID); err != nil {
		return false, fmt.Errorf("add application: %w", err)
	}
	if linked > 0 {
		return false, nil
	}
	q = s.db.Rebind(`INSERT INTO applications (teacher_id, student_id) VALUES (?, ?) ON CONFLICT DO NOTHING`)
	res, err := s.db.ExecContext(ctx, q, teacherID, studentID)
	if err != nil {
		return false, fmt.Errorf("add application: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SQLStore) ListApplications(ctx context.Context, studentID int64) (out []Record, err error) {
	defer func(start time.Time) { s.logQuery(ctx, "list_applications", start, err) }(time.Now())
	q := s.db.Rebind(`SELECT ` + userColumns + ` FROM applications a
		JOIN users u ON u.telegram_id = a.teacher_id
		WHERE a.student_id = ? ORDER BY a.created_at, u.telegram_id`)
	var rows []userRow
	if err := s.db.SelectContext(ctx, &rows, q, studentID); err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	return records(rows), nil
}

func (s *SQLStore) AcceptApplication(ctx context.Context, studentID, teacherID int64) (accepted bool, err error) {
	defer func(start time.Time) { s.logQuery(ctx, "accept_application", start, err) }(time.Now())
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("accept application: %w", err)
	}
	defer func() {
		if err != nil || !accepted {
			_ = tx.Rollback()
		}
	}()
	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM applications WHERE teacher_id = ? AND student_id = ?`), teacherID, studentID)
	if err != nil {
		return false, fmt.Errorf("accept application: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}
	if _, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO teacher_students (teacher_id, student_id) VALUES (?, ?)`), teacherID, studentID); err != nil {
		return false, fmt.Errorf("accept application: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("accept application: %w", err)
	}
	return true, nil
}

func (s *SQLStore) RejectApplication(ctx context.Context, studentID, teacherID int64) (rejected bool, err error) {
	defer func(start time.Time) { s.logQuery(ctx, "reject_application", start, err) }(time.Now())
	q := s.db.Rebind(`DELETE FROM applications WHERE teacher_id = ? AND student_id = ?`)
	res, err := s.db.ExecContext(ctx, q, teacherID, studentID)
	if err != nil {
		return false, fmt.Errorf("reject application: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SQLStore) ListStudents(ctx context.Context, teacherID int64) (out []Record, err error) {
	defer func(start time.Time) { s.logQuery(ctx, "list_students", start, err) }(time.Now())
	q := s.db.Rebind(`SELECT ` + userColumns + ` FROM teacher_students l
		JOIN users u ON u.telegram_id = l.student_id
		WHERE l.teacher_id = ? ORDER BY u.surname, u.name, u.telegram_id`)
	var rows []userRow
	if err := s.db.SelectContext(ctx, &rows, q, teacherID); err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	return records(rows), nil
}

func (s *SQLStore) ListTeachers(ctx context.Context, studentID int64) (out []Record, err error) {
	defer func(start time.Time) { s.logQuery(ctx, "list_teachers", start, err) }(time.Now())
	q := s.db.Rebind(`SELECT ` + userColumns + ` FROM teacher_students l
		JOIN users u ON u.telegram_id = l.teacher_id
		WHERE l.student_id = ? ORDER BY u.surname, u.name, u.telegram_id`)
	var rows []userRow
	if err := s.db.SelectContext(ctx, &rows, q, studentID); err != nil {
		return nil, fmt.Errorf("list teachers: %w", err)
	}
	return records(rows), nil
}

func (s *SQLStore) AddAssignment(ctx context.Context, a Assignment) (id int64, err error) {
	defer func(start time.Time) { s.logQuery(ctx, "add_assignment", start, err) }(time.Now())
	ok, err := s.rolesPresent(ctx, a.TeacherID, a.StudentID)
	if err != nil {
		return 0, fmt.Errorf("add assignment: %w", err)
	}
	if !ok {
		return 0, ErrNotFound
	}
	q := s.db.Rebind(`INSERT INTO assignments (teacher_id, student_id, body) VALUES (?, ?, ?) RETURNING id`)
	if err := s.db.GetContext(ctx, &id, q, a.TeacherID, a.StudentID, a.Body); err != nil {
		return 0, fmt.Errorf("add assignment: %w", err)
	}
	return id, nil
}

func (s *SQLStore) ListAssignments(ctx context.Context, studentID int64) (out []Assignment, err error) {
	defer func(start time.Time) { s.logQuery(ctx, "list_assignments", start, err) }(time.Now())
	q := s.db.Rebind(`SELECT id, teacher_id, student_id, body FROM assignments
		WHERE student_id = ? ORDER BY id DESC`)
	var rows []struct {
		ID        int64  `db:"id"`
		TeacherID int64  `db:"teacher_id"`
		StudentID int64  `db:"student_id"`
		Body      string `db:"body"`
	}
	if err := s.db.SelectContext(ctx, &rows, q, studentID); err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	out = make([]Assignment, 0, len(rows))
	for _, r := range rows {
		out = append(out, Assignment(r))
	}
	return out, nil
}

package certificate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mind-engage/coursetrack/internal/apperr"
	"github.com/mind-engage/coursetrack/internal/db"
)

type SQLStore struct{ db *sql.DB }

func NewSQLStore(dbh *sql.DB) *SQLStore { return &SQLStore{db: dbh} }

const certCols = `id, certificate_id, learner_id, course_id, issue_date, completion_date`

func scanCert(row interface{ Scan(...any) error }) (Certificate, error) {
	var c Certificate
	var issued, completed int64
	if err := row.Scan(&c.ID, &c.CertificateID, &c.LearnerID, &c.CourseID, &issued, &completed); err != nil {
		return Certificate{}, err
	}
	c.IssueDate = db.FromMillis(issued)
	c.CompletionDate = db.FromMillis(completed)
	return c, nil
}

// Insert is a plain INSERT; the table's unique constraints decide races.
func (s *SQLStore) Insert(ctx context.Context, c Certificate) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO certificates (`+certCols+`) VALUES ($1,$2,$3,$4,$5,$6)`,
		c.ID, c.CertificateID, c.LearnerID, c.CourseID, db.Millis(c.IssueDate), db.Millis(c.CompletionDate))
	if db.IsUniqueViolation(err) {
		return apperr.Conflict("certificate for %s/%s violates uniqueness", c.LearnerID, c.CourseID)
	}
	if err != nil {
		return fmt.Errorf("insert certificate: %w", err)
	}
	return nil
}

func (s *SQLStore) one(ctx context.Context, where string, args ...any) (Certificate, error) {
	c, err := scanCert(s.db.QueryRowContext(ctx, `SELECT `+certCols+` FROM certificates WHERE `+where, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return Certificate{}, apperr.NotFound("certificate not found")
	}
	if err != nil {
		return Certificate{}, fmt.Errorf("get certificate: %w", err)
	}
	return c, nil
}

func (s *SQLStore) GetByPair(ctx context.Context, learnerID, courseID string) (Certificate, error) {
	return s.one(ctx, `learner_id=$1 AND course_id=$2`, learnerID, courseID)
}

func (s *SQLStore) Get(ctx context.Context, id string) (Certificate, error) {
	return s.one(ctx, `id=$1`, id)
}

func (s *SQLStore) GetByCertificateID(ctx context.Context, certificateID string) (Certificate, error) {
	return s.one(ctx, `certificate_id=$1`, certificateID)
}

func (s *SQLStore) ListByLearner(ctx context.Context, learnerID string) ([]Certificate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+certCols+` FROM certificates WHERE learner_id=$1 ORDER BY issue_date DESC`, learnerID)
	if err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	defer rows.Close()
	out := []Certificate{}
	for rows.Next() {
		c, err := scanCert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

package progress

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mind-engage/coursetrack/internal/apperr"
	"github.com/mind-engage/coursetrack/internal/db"
)

type SQLStore struct{ db *sql.DB }

func NewSQLStore(dbh *sql.DB) *SQLStore { return &SQLStore{db: dbh} }

const recordCols = `learner_id, course_id, lessons_json, quizzes_json, assignments_json,
	overall_percent, last_accessed_at, created_at, version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		r                 Record
		lj, qj, aj        string
		accessed, created int64
	)
	if err := row.Scan(&r.LearnerID, &r.CourseID, &lj, &qj, &aj,
		&r.OverallPercent, &accessed, &created, &r.Version); err != nil {
		return Record{}, err
	}
	if err := json.Unmarshal([]byte(lj), &r.Lessons); err != nil {
		return Record{}, fmt.Errorf("decode lessons: %w", err)
	}
	if err := json.Unmarshal([]byte(qj), &r.Quizzes); err != nil {
		return Record{}, fmt.Errorf("decode quizzes: %w", err)
	}
	if err := json.Unmarshal([]byte(aj), &r.Assignments); err != nil {
		return Record{}, fmt.Errorf("decode assignments: %w", err)
	}
	if r.Lessons == nil {
		r.Lessons = map[string]LessonState{}
	}
	if r.Quizzes == nil {
		r.Quizzes = map[string]QuizState{}
	}
	if r.Assignments == nil {
		r.Assignments = map[string]AssignmentState{}
	}
	r.LastAccessedAt = db.FromMillis(accessed)
	r.CreatedAt = db.FromMillis(created)
	return r, nil
}

func encodeStates(r Record) (lj, qj, aj string, err error) {
	b1, err := json.Marshal(r.Lessons)
	if err != nil {
		return
	}
	b2, err := json.Marshal(r.Quizzes)
	if err != nil {
		return
	}
	b3, err := json.Marshal(r.Assignments)
	if err != nil {
		return
	}
	return string(b1), string(b2), string(b3), nil
}

func (s *SQLStore) Get(ctx context.Context, learnerID, courseID string) (Record, error) {
	r, err := scanRecord(s.db.QueryRowContext(ctx,
		`SELECT `+recordCols+` FROM progress WHERE learner_id=$1 AND course_id=$2`, learnerID, courseID))
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, apperr.NotFound("progress not found")
	}
	if err != nil {
		return Record{}, fmt.Errorf("get progress: %w", err)
	}
	return r, nil
}

func (s *SQLStore) Create(ctx context.Context, rec Record) (Record, error) {
	lj, qj, aj, err := encodeStates(rec)
	if err != nil {
		return Record{}, err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO progress
		(learner_id, course_id, lessons_json, quizzes_json, assignments_json,
		 overall_percent, last_accessed_at, created_at, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,1)
		ON CONFLICT (learner_id, course_id) DO NOTHING`,
		rec.LearnerID, rec.CourseID, lj, qj, aj, rec.OverallPercent,
		db.Millis(rec.LastAccessedAt), db.Millis(rec.CreatedAt))
	if err != nil {
		return Record{}, fmt.Errorf("create progress: %w", err)
	}
	return s.Get(ctx, rec.LearnerID, rec.CourseID)
}

func (s *SQLStore) Update(ctx context.Context, rec Record) (Record, error) {
	lj, qj, aj, err := encodeStates(rec)
	if err != nil {
		return Record{}, err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE progress
		SET lessons_json=$1, quizzes_json=$2, assignments_json=$3, overall_percent=$4,
		    last_accessed_at=$5, version=version+1
		WHERE learner_id=$6 AND course_id=$7 AND version=$8`,
		lj, qj, aj, rec.OverallPercent, db.Millis(rec.LastAccessedAt),
		rec.LearnerID, rec.CourseID, rec.Version)
	if err != nil {
		return Record{}, fmt.Errorf("update progress: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Record{}, err
	}
	if n == 0 {
		return Record{}, ErrVersionConflict
	}
	out := rec.Clone()
	out.Version++
	return out, nil
}

func (s *SQLStore) ListByCourse(ctx context.Context, courseID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordCols+` FROM progress WHERE course_id=$1 ORDER BY learner_id`, courseID)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	defer rows.Close()
	out := []Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

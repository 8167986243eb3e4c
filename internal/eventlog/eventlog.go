// Package eventlog is the append-only record of progress and certificate events.
package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mind-engage/coursetrack/internal/db"
)

const (
	LessonCompleted     = "LessonCompleted"
	QuizAttempted       = "QuizAttempted"
	AssignmentSubmitted = "AssignmentSubmitted"
	AssignmentGraded    = "AssignmentGraded"
	CertificateIssued   = "CertificateIssued"
	Enrolled            = "Enrolled"
)

type Event struct {
	Seq       int64           `json:"seq"`
	SiteID    string          `json:"site_id"`
	Type      string          `json:"type"`
	Key       string          `json:"key"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
}

// Appender is what producers depend on.
type Appender interface {
	Append(ctx context.Context, typ, key string, payload any) error
}

// Key is the natural key of a learner's progress in a course.
func Key(learnerID, courseID string) string { return learnerID + "|" + courseID }

type Repo struct {
	db     *sql.DB
	siteID string
}

func NewRepo(dbh *sql.DB, siteID string) *Repo {
	if siteID == "" {
		siteID = "local"
	}
	return &Repo{db: dbh, siteID: siteID}
}

func (r *Repo) Append(ctx context.Context, typ, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", typ, err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO event_log (site_id, typ, key, data, created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		r.siteID, typ, key, string(data), db.Millis(time.Now()))
	return err
}

// List returns events for key after seq, oldest first. An empty key lists all.
func (r *Repo) List(ctx context.Context, key string, after int64, limit int) ([]Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT seq, site_id, typ, key, data, created_at FROM event_log WHERE seq > $1`
	args := []any{after}
	if key != "" {
		q += ` AND key = $2 ORDER BY seq LIMIT $3`
		args = append(args, key, limit)
	} else {
		q += ` ORDER BY seq LIMIT $2`
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()
	out := []Event{}
	for rows.Next() {
		var (
			e       Event
			data    string
			created int64
		)
		if err := rows.Scan(&e.Seq, &e.SiteID, &e.Type, &e.Key, &data, &created); err != nil {
			return nil, err
		}
		e.Data = json.RawMessage(data)
		e.CreatedAt = db.FromMillis(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Nop discards events.
type Nop struct{}

func (Nop) Append(context.Context, string, string, any) error { return nil }

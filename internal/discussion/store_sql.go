package discussion

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

// upvoteAttempts bounds compare-and-swap retries on the upvote set.
const upvoteAttempts = 10

const discussionCols = `id, course_id, author_id, title, content, is_resolved, upvotes_json, created_at`

func scanDiscussion(row interface{ Scan(...any) error }) (Discussion, string, error) {
	var (
		d       Discussion
		upvotes string
		created int64
	)
	if err := row.Scan(&d.ID, &d.CourseID, &d.AuthorID, &d.Title, &d.Content, &d.IsResolved, &upvotes, &created); err != nil {
		return Discussion{}, "", err
	}
	if err := json.Unmarshal([]byte(upvotes), &d.Upvotes); err != nil {
		return Discussion{}, "", fmt.Errorf("decode upvotes: %w", err)
	}
	if d.Upvotes == nil {
		d.Upvotes = []string{}
	}
	d.CreatedAt = db.FromMillis(created)
	return d, upvotes, nil
}

func (s *SQLStore) CreateDiscussion(ctx context.Context, d Discussion) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO discussions (`+discussionCols+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		d.ID, d.CourseID, d.AuthorID, d.Title, d.Content, false, "[]", db.Millis(d.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert discussion: %w", err)
	}
	return nil
}

func (s *SQLStore) ListDiscussions(ctx context.Context, courseID string) ([]Discussion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+discussionCols+` FROM discussions WHERE course_id=$1 ORDER BY created_at DESC`, courseID)
	if err != nil {
		return nil, fmt.Errorf("list discussions: %w", err)
	}
	defer rows.Close()
	out := []Discussion{}
	for rows.Next() {
		d, _, err := scanDiscussion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQLStore) getRaw(ctx context.Context, id string) (Discussion, string, error) {
	d, raw, err := scanDiscussion(s.db.QueryRowContext(ctx, `SELECT `+discussionCols+` FROM discussions WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Discussion{}, "", apperr.NotFound("discussion not found")
	}
	if err != nil {
		return Discussion{}, "", fmt.Errorf("get discussion: %w", err)
	}
	return d, raw, nil
}

// GetDiscussion loads a discussion with its replies, oldest first.
func (s *SQLStore) GetDiscussion(ctx context.Context, id string) (Discussion, error) {
	d, _, err := s.getRaw(ctx, id)
	if err != nil {
		return Discussion{}, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, discussion_id, author_id, content, is_instructor, created_at
		FROM discussion_replies WHERE discussion_id=$1 ORDER BY created_at, id`, id)
	if err != nil {
		return Discussion{}, fmt.Errorf("list replies: %w", err)
	}
	defer rows.Close()
	d.Replies = []Reply{}
	for rows.Next() {
		var r Reply
		var created int64
		if err := rows.Scan(&r.ID, &r.DiscussionID, &r.AuthorID, &r.Content, &r.IsInstructor, &created); err != nil {
			return Discussion{}, err
		}
		r.CreatedAt = db.FromMillis(created)
		d.Replies = append(d.Replies, r)
	}
	return d, rows.Err()
}

func (s *SQLStore) AddReply(ctx context.Context, r Reply) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO discussion_replies
		(id, discussion_id, author_id, content, is_instructor, created_at) VALUES ($1,$2,$3,$4,$5,$6)`,
		r.ID, r.DiscussionID, r.AuthorID, r.Content, r.IsInstructor, db.Millis(r.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert reply: %w", err)
	}
	return nil
}

func (s *SQLStore) SetResolved(ctx context.Context, id string, resolved bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE discussions SET is_resolved=$1 WHERE id=$2`, resolved, id)
	if err != nil {
		return fmt.Errorf("resolve discussion: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("discussion not found")
	}
	return nil
}

// ToggleUpvote compares against the upvote set it read, so concurrent
// toggles by different users are not lost.
func (s *SQLStore) ToggleUpvote(ctx context.Context, id, userID string) ([]string, error) {
	for attempt := 0; attempt < upvoteAttempts; attempt++ {
		d, raw, err := s.getRaw(ctx, id)
		if err != nil {
			return nil, err
		}
		next := toggle(d.Upvotes, userID)
		b, err := json.Marshal(next)
		if err != nil {
			return nil, err
		}
		res, err := s.db.ExecContext(ctx,
			`UPDATE discussions SET upvotes_json=$1 WHERE id=$2 AND upvotes_json=$3`, string(b), id, raw)
		if err != nil {
			return nil, fmt.Errorf("upvote: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			return next, nil
		}
	}
	return nil, apperr.Conflict("discussion was modified concurrently, try again")
}

const announcementCols = `id, course_id, author_id, title, content, created_at`

func scanAnnouncement(row interface{ Scan(...any) error }) (Announcement, error) {
	var a Announcement
	var created int64
	if err := row.Scan(&a.ID, &a.CourseID, &a.AuthorID, &a.Title, &a.Content, &created); err != nil {
		return Announcement{}, err
	}
	a.CreatedAt = db.FromMillis(created)
	return a, nil
}

func (s *SQLStore) CreateAnnouncement(ctx context.Context, a Announcement) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO announcements (`+announcementCols+`) VALUES ($1,$2,$3,$4,$5,$6)`,
		a.ID, a.CourseID, a.AuthorID, a.Title, a.Content, db.Millis(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert announcement: %w", err)
	}
	return nil
}

func (s *SQLStore) GetAnnouncement(ctx context.Context, id string) (Announcement, error) {
	a, err := scanAnnouncement(s.db.QueryRowContext(ctx, `SELECT `+announcementCols+` FROM announcements WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Announcement{}, apperr.NotFound("announcement not found")
	}
	if err != nil {
		return Announcement{}, fmt.Errorf("get announcement: %w", err)
	}
	return a, nil
}

func (s *SQLStore) ListAnnouncements(ctx context.Context, courseID string) ([]Announcement, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+announcementCols+` FROM announcements WHERE course_id=$1 ORDER BY created_at DESC`, courseID)
	if err != nil {
		return nil, fmt.Errorf("list announcements: %w", err)
	}
	defer rows.Close()
	out := []Announcement{}
	for rows.Next() {
		a, err := scanAnnouncement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLStore) UpdateAnnouncement(ctx context.Context, a Announcement) error {
	res, err := s.db.ExecContext(ctx, `UPDATE announcements SET title=$1, content=$2 WHERE id=$3`, a.Title, a.Content, a.ID)
	if err != nil {
		return fmt.Errorf("update announcement: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("announcement not found")
	}
	return nil
}

func (s *SQLStore) DeleteAnnouncement(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM announcements WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete announcement: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("announcement not found")
	}
	return nil
}

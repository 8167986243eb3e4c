package discussion

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/coursetrack/internal/apperr"
	"github.com/mind-engage/coursetrack/internal/catalog"
	"github.com/mind-engage/coursetrack/internal/gate"
)

type Catalog interface {
	GetCourse(ctx context.Context, id string) (catalog.Course, error)
}

// Boards applies course access rules on top of the store. Learners, the
// course instructor and admins can read and post; resolving threads and
// managing announcements is for the instructor or an admin.
type Boards struct {
	store   *SQLStore
	catalog Catalog

	Now func() time.Time
}

func NewBoards(store *SQLStore, cat Catalog) *Boards {
	return &Boards{store: store, catalog: cat, Now: time.Now}
}

func (b *Boards) course(ctx context.Context, p gate.Principal, courseID string, rel gate.Relation) (catalog.Course, error) {
	c, err := b.catalog.GetCourse(ctx, courseID)
	if err != nil {
		return catalog.Course{}, err
	}
	return c, gate.Authorize(p, c, rel)
}

func required(field, v string, max int) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", apperr.InvalidInput("%s is required", field)
	}
	if max > 0 && len(v) > max {
		return "", apperr.InvalidInput("%s cannot be more than %d characters", field, max)
	}
	return v, nil
}

func (b *Boards) List(ctx context.Context, p gate.Principal, courseID string) ([]Discussion, error) {
	if _, err := b.course(ctx, p, courseID, gate.Participant); err != nil {
		return nil, err
	}
	return b.store.ListDiscussions(ctx, courseID)
}

func (b *Boards) Create(ctx context.Context, p gate.Principal, courseID, title, content string) (Discussion, error) {
	if _, err := b.course(ctx, p, courseID, gate.Participant); err != nil {
		return Discussion{}, err
	}
	title, err := required("title", title, 200)
	if err != nil {
		return Discussion{}, err
	}
	content, err = required("content", content, 0)
	if err != nil {
		return Discussion{}, err
	}
	d := Discussion{
		ID:        uuid.NewString(),
		CourseID:  courseID,
		AuthorID:  p.UserID,
		Title:     title,
		Content:   content,
		Upvotes:   []string{},
		CreatedAt: b.Now().UTC(),
	}
	return d, b.store.CreateDiscussion(ctx, d)
}

// load fetches a discussion and checks rel against its course.
func (b *Boards) load(ctx context.Context, p gate.Principal, id string, rel gate.Relation) (Discussion, catalog.Course, error) {
	d, err := b.store.GetDiscussion(ctx, id)
	if err != nil {
		return Discussion{}, catalog.Course{}, err
	}
	c, err := b.course(ctx, p, d.CourseID, rel)
	if err != nil {
		return Discussion{}, catalog.Course{}, err
	}
	return d, c, nil
}

func (b *Boards) Get(ctx context.Context, p gate.Principal, id string) (Discussion, error) {
	d, _, err := b.load(ctx, p, id, gate.Participant)
	return d, err
}

// Reply flags replies written by the course instructor.
func (b *Boards) Reply(ctx context.Context, p gate.Principal, id, content string) (Discussion, error) {
	_, c, err := b.load(ctx, p, id, gate.Participant)
	if err != nil {
		return Discussion{}, err
	}
	content, err = required("content", content, 0)
	if err != nil {
		return Discussion{}, err
	}
	r := Reply{
		ID:           uuid.NewString(),
		DiscussionID: id,
		AuthorID:     p.UserID,
		Content:      content,
		IsInstructor: c.InstructorID == p.UserID,
		CreatedAt:    b.Now().UTC(),
	}
	if err := b.store.AddReply(ctx, r); err != nil {
		return Discussion{}, err
	}
	return b.store.GetDiscussion(ctx, id)
}

func (b *Boards) Resolve(ctx context.Context, p gate.Principal, id string) (Discussion, error) {
	d, _, err := b.load(ctx, p, id, gate.AdminOrInstructor)
	if err != nil {
		return Discussion{}, err
	}
	if err := b.store.SetResolved(ctx, id, true); err != nil {
		return Discussion{}, err
	}
	d.IsResolved = true
	return d, nil
}

// Upvote toggles the caller's vote and returns the vote count.
func (b *Boards) Upvote(ctx context.Context, p gate.Principal, id string) (int, error) {
	if _, _, err := b.load(ctx, p, id, gate.Participant); err != nil {
		return 0, err
	}
	votes, err := b.store.ToggleUpvote(ctx, id, p.UserID)
	if err != nil {
		return 0, err
	}
	return len(votes), nil
}

func (b *Boards) Announcements(ctx context.Context, p gate.Principal, courseID string) ([]Announcement, error) {
	if _, err := b.course(ctx, p, courseID, gate.Participant); err != nil {
		return nil, err
	}
	return b.store.ListAnnouncements(ctx, courseID)
}

func (b *Boards) Announce(ctx context.Context, p gate.Principal, courseID, title, content string) (Announcement, error) {
	if _, err := b.course(ctx, p, courseID, gate.AdminOrInstructor); err != nil {
		return Announcement{}, err
	}
	title, err := required("title", title, 200)
	if err != nil {
		return Announcement{}, err
	}
	content, err = required("content", content, 0)
	if err != nil {
		return Announcement{}, err
	}
	a := Announcement{
		ID:        uuid.NewString(),
		CourseID:  courseID,
		AuthorID:  p.UserID,
		Title:     title,
		Content:   content,
		CreatedAt: b.Now().UTC(),
	}
	return a, b.store.CreateAnnouncement(ctx, a)
}

func (b *Boards) loadAnnouncement(ctx context.Context, p gate.Principal, id string) (Announcement, error) {
	a, err := b.store.GetAnnouncement(ctx, id)
	if err != nil {
		return Announcement{}, err
	}
	if _, err := b.course(ctx, p, a.CourseID, gate.AdminOrInstructor); err != nil {
		return Announcement{}, err
	}
	return a, nil
}

// UpdateAnnouncement changes the non-empty fields.
func (b *Boards) UpdateAnnouncement(ctx context.Context, p gate.Principal, id, title, content string) (Announcement, error) {
	a, err := b.loadAnnouncement(ctx, p, id)
	if err != nil {
		return Announcement{}, err
	}
	if t := strings.TrimSpace(title); t != "" {
		a.Title = t
	}
	if c := strings.TrimSpace(content); c != "" {
		a.Content = c
	}
	return a, b.store.UpdateAnnouncement(ctx, a)
}

func (b *Boards) DeleteAnnouncement(ctx context.Context, p gate.Principal, id string) error {
	if _, err := b.loadAnnouncement(ctx, p, id); err != nil {
		return err
	}
	return b.store.DeleteAnnouncement(ctx, id)
}

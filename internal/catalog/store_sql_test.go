package catalog

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/coursetrack/internal/apperr"
	"github.com/mind-engage/coursetrack/internal/db"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	dbh, err := db.OpenMemory(context.Background(), "catalog_"+strings.ReplaceAll(t.Name(), "/", "_"))
	require.NoError(t, err)
	t.Cleanup(func() { dbh.Close() })
	return NewSQLStore(dbh)
}

func seedCourse(t *testing.T, s *SQLStore, title string, published bool) Course {
	t.Helper()
	c, err := s.CreateCourse(context.Background(), Course{
		Title:        title,
		Description:  "desc",
		InstructorID: "inst-1",
		IsPublished:  published,
	})
	require.NoError(t, err)
	return c
}

func TestCreateAndGetCourse(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	c := seedCourse(t, s, "Intro to Go!", true)
	assert.Equal(t, "intro-to-go", c.Slug)
	assert.Equal(t, "Other", c.Category)
	assert.Equal(t, "Beginner", c.Difficulty)

	l1, err := s.AddLesson(ctx, c.ID, Lesson{Title: "Setup"})
	require.NoError(t, err)
	l2, err := s.AddLesson(ctx, c.ID, Lesson{Title: "Types", ContentType: "video", VideoURL: "https://v/1"})
	require.NoError(t, err)
	assert.Equal(t, 1, l1.Order)
	assert.Equal(t, 2, l2.Order)
	assert.Equal(t, "text", l1.ContentType)

	q, err := s.AddQuiz(ctx, c.ID, Quiz{
		Title:        "Basics",
		PassingScore: 60,
		Questions: []Question{
			{Prompt: "2+2", Options: []string{"3", "4"}, CorrectAnswer: 1},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, q.MaxAttempts)

	a, err := s.AddAssignment(ctx, c.ID, Assignment{Title: "Essay"})
	require.NoError(t, err)
	assert.Equal(t, 100.0, a.MaxScore)

	got, err := s.GetCourse(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, got.Lessons, 2)
	assert.Equal(t, "Setup", got.Lessons[0].Title)
	require.Len(t, got.Quizzes, 1)
	assert.Equal(t, 1, got.Quizzes[0].Questions[0].CorrectAnswer)
	require.Len(t, got.Assignments, 1)
	assert.Empty(t, got.Enrollments)

	o := got.Outline()
	require.NoError(t, o.Validate())
	assert.Len(t, o.Lessons, 2)
	assert.Len(t, o.Quizzes, 1)
	assert.Len(t, o.Assignments, 1)
}

func TestGetCourseNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetCourse(context.Background(), "missing")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestCreateCourseValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateCourse(ctx, Course{Title: "  ", InstructorID: "i"})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = s.CreateCourse(ctx, Course{Title: "x", InstructorID: "i", Category: "Cooking"})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = s.CreateCourse(ctx, Course{Title: "x", InstructorID: "i", Price: -1})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestAddQuizRejectsBadAnswerKey(t *testing.T) {
	s := newTestStore(t)
	c := seedCourse(t, s, "Quizzed", true)
	_, err := s.AddQuiz(context.Background(), c.ID, Quiz{
		Title:     "Broken",
		Questions: []Question{{Prompt: "?", Options: []string{"a", "b"}, CorrectAnswer: 2}},
	})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestEnrollTwiceConflicts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	c := seedCourse(t, s, "Enrollable", true)

	require.NoError(t, s.Enroll(ctx, c.ID, "stu-1"))
	err := s.Enroll(ctx, c.ID, "stu-1")
	assert.ErrorIs(t, err, apperr.ErrConflict)

	assert.ErrorIs(t, s.Enroll(ctx, "nope", "stu-1"), apperr.ErrNotFound)

	got, err := s.GetCourse(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, got.IsEnrolled("stu-1"))
	assert.False(t, got.IsEnrolled("stu-2"))
}

func TestRateReplacesAndAverages(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	c := seedCourse(t, s, "Rated", true)

	avg, err := s.Rate(ctx, c.ID, Rating{UserID: "u1", Rating: 5})
	require.NoError(t, err)
	assert.Equal(t, 5.0, avg)

	avg, err = s.Rate(ctx, c.ID, Rating{UserID: "u2", Rating: 4})
	require.NoError(t, err)
	assert.Equal(t, 4.5, avg)

	// a second rating from the same user replaces the first
	avg, err = s.Rate(ctx, c.ID, Rating{UserID: "u1", Rating: 1})
	require.NoError(t, err)
	assert.Equal(t, 2.5, avg)

	_, err = s.Rate(ctx, c.ID, Rating{UserID: "u3", Rating: 6})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	got, err := s.GetCourse(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2.5, got.AverageRating)
	assert.Len(t, got.Ratings, 2)
}

func TestListCoursesFilters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	goC := seedCourse(t, s, "Go Concurrency", true)
	_ = seedCourse(t, s, "Design Basics", true)
	_ = seedCourse(t, s, "Draft Go", false)

	all, err := s.ListCourses(ctx, ListOpts{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	found, err := s.ListCourses(ctx, ListOpts{Q: "go"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, goC.ID, found[0].ID)

	withDrafts, err := s.ListCourses(ctx, ListOpts{Q: "go", Unpublished: true})
	require.NoError(t, err)
	assert.Len(t, withDrafts, 2)

	byTitle, err := s.ListCourses(ctx, ListOpts{Sort: "title"})
	require.NoError(t, err)
	require.Len(t, byTitle, 2)
	assert.Equal(t, "Design Basics", byTitle[0].Title)

	require.NoError(t, s.Enroll(ctx, goC.ID, "stu-9"))
	mine, err := s.ListCourses(ctx, ListOpts{StudentID: "stu-9"})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, goC.ID, mine[0].ID)
}

func TestUpdateAndDeleteCourse(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	c := seedCourse(t, s, "Old Title", false)

	c.Title = "New Title"
	c.IsPublished = true
	up, err := s.UpdateCourse(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, "new-title", up.Slug)
	assert.True(t, up.IsPublished)

	require.NoError(t, s.DeleteCourse(ctx, c.ID))
	assert.ErrorIs(t, s.DeleteCourse(ctx, c.ID), apperr.ErrNotFound)
}

package catalog

import "context"

type ListOpts struct {
	Q            string
	Category     string
	Sort         string // newest|rating|title (default newest)
	InstructorID string // courses taught by
	StudentID    string // courses enrolled in
	Unpublished  bool   // include drafts
	Limit        int
	Offset       int
}

type Store interface {
	CreateCourse(ctx context.Context, c Course) (Course, error)
	UpdateCourse(ctx context.Context, c Course) (Course, error)
	DeleteCourse(ctx context.Context, id string) error
	GetCourse(ctx context.Context, id string) (Course, error) // with lessons, quizzes, assignments, enrollments, ratings
	ListCourses(ctx context.Context, opts ListOpts) ([]Course, error)

	AddLesson(ctx context.Context, courseID string, l Lesson) (Lesson, error)
	AddAssignment(ctx context.Context, courseID string, a Assignment) (Assignment, error)

	AddQuiz(ctx context.Context, courseID string, q Quiz) (Quiz, error)
	GetQuiz(ctx context.Context, id string) (Quiz, error)
	UpdateQuiz(ctx context.Context, q Quiz) (Quiz, error)
	DeleteQuiz(ctx context.Context, id string) error

	// Enroll fails with a Conflict when the student is already enrolled.
	Enroll(ctx context.Context, courseID, studentID string) error
	// Rate inserts or replaces the user's rating and returns the new average.
	Rate(ctx context.Context, courseID string, r Rating) (float64, error)
}

package progress

import (
	"context"
	"errors"
	"time"

	"github.com/mind-engage/coursetrack/internal/apperr"
	"github.com/mind-engage/coursetrack/internal/catalog"
	"github.com/mind-engage/coursetrack/internal/certificate"
	"github.com/mind-engage/coursetrack/internal/eventlog"
	"github.com/mind-engage/coursetrack/internal/gate"
	"github.com/mind-engage/coursetrack/internal/logger"
	"github.com/mind-engage/coursetrack/internal/quiz"
)

const DefaultMaxRetries = 3

type Catalog interface {
	GetCourse(ctx context.Context, id string) (catalog.Course, error)
}

type Issuer interface {
	IssueIfComplete(ctx context.Context, learnerID, courseID string, percent int) (*certificate.Certificate, error)
}

type Engine struct {
	catalog Catalog
	store   Store
	issuer  Issuer
	events  eventlog.Appender
	log     *logger.Logger

	Now func() time.Time
	// MaxRetries bounds re-reads after an optimistic version conflict.
	MaxRetries int
}

func NewEngine(cat Catalog, store Store, issuer Issuer, events eventlog.Appender, log *logger.Logger) *Engine {
	if events == nil {
		events = eventlog.Nop{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{
		catalog:    cat,
		store:      store,
		issuer:     issuer,
		events:     events,
		log:        log.With("service", "ProgressEngine"),
		Now:        time.Now,
		MaxRetries: DefaultMaxRetries,
	}
}

func (e *Engine) now() time.Time { return e.Now().UTC() }

func (e *Engine) course(ctx context.Context, p gate.Principal, courseID string, rel gate.Relation) (catalog.Course, error) {
	c, err := e.catalog.GetCourse(ctx, courseID)
	if err != nil {
		return catalog.Course{}, err
	}
	if err := gate.Authorize(p, c, rel); err != nil {
		return catalog.Course{}, err
	}
	return c, nil
}

// Seed creates the learner's record from the course outline if it does not
// exist yet. Enrollment calls it directly; it performs no gate check.
func (e *Engine) Seed(ctx context.Context, learnerID string, course catalog.Course) (Record, error) {
	o := course.Outline()
	if err := o.Validate(); err != nil {
		return Record{}, err
	}
	return e.store.Create(ctx, NewRecord(learnerID, o, e.now()))
}

func (e *Engine) load(ctx context.Context, learnerID string, course catalog.Course) (Record, error) {
	rec, err := e.store.Get(ctx, learnerID, course.ID)
	if errors.Is(err, apperr.ErrNotFound) {
		return e.Seed(ctx, learnerID, course)
	}
	return rec, err
}

// GetOrCreate returns the caller's record in a course they are enrolled in,
// creating it on first access.
func (e *Engine) GetOrCreate(ctx context.Context, p gate.Principal, courseID string) (Record, error) {
	c, err := e.course(ctx, p, courseID, gate.Enrolled)
	if err != nil {
		return Record{}, err
	}
	rec, err := e.load(ctx, p.UserID, c)
	if err != nil {
		return Record{}, err
	}
	// Heals a completion whose certificate write failed earlier.
	e.issue(ctx, rec)
	return rec, nil
}

// mutate applies fn to a fresh copy of the record and writes it with a
// version check, re-reading on conflict up to MaxRetries times.
func (e *Engine) mutate(ctx context.Context, learnerID string, c catalog.Course, fn func(*Record) error) (Record, error) {
	for attempt := 0; ; attempt++ {
		rec, err := e.load(ctx, learnerID, c)
		if err != nil {
			return Record{}, err
		}
		next := rec.Clone()
		if err := fn(&next); err != nil {
			return Record{}, err
		}
		saved, err := e.store.Update(ctx, next)
		if errors.Is(err, ErrVersionConflict) {
			if attempt >= e.MaxRetries {
				e.log.Warn("progress update gave up", "learner_id", learnerID, "course_id", c.ID, "attempts", attempt+1)
				return Record{}, apperr.Conflict("progress was modified concurrently, try again")
			}
			e.log.Debug("progress version conflict, retrying", "learner_id", learnerID, "course_id", c.ID, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return Record{}, err
		}
		return saved, nil
	}
}

func (e *Engine) issue(ctx context.Context, rec Record) {
	if e.issuer == nil || rec.OverallPercent < 100 {
		return
	}
	if _, err := e.issuer.IssueIfComplete(ctx, rec.LearnerID, rec.CourseID, rec.OverallPercent); err != nil {
		e.log.Error("certificate issuance failed", "learner_id", rec.LearnerID, "course_id", rec.CourseID, "error", err)
	}
}

func (e *Engine) emit(ctx context.Context, typ string, rec Record, payload map[string]any) {
	payload["overall_progress_percent"] = rec.OverallPercent
	if err := e.events.Append(ctx, typ, eventlog.Key(rec.LearnerID, rec.CourseID), payload); err != nil {
		e.log.Warn("event append failed", "type", typ, "error", err)
	}
}

func (e *Engine) MarkLessonComplete(ctx context.Context, p gate.Principal, courseID, lessonID string, timeSpent int64) (Record, error) {
	if timeSpent < 0 {
		return Record{}, apperr.InvalidInput("time spent cannot be negative")
	}
	c, err := e.course(ctx, p, courseID, gate.Enrolled)
	if err != nil {
		return Record{}, err
	}
	rec, err := e.mutate(ctx, p.UserID, c, func(r *Record) error {
		return r.CompleteLesson(lessonID, timeSpent, e.now())
	})
	if err != nil {
		return Record{}, err
	}
	e.emit(ctx, eventlog.LessonCompleted, rec, map[string]any{"lesson_id": lessonID, "time_spent_seconds": timeSpent})
	e.issue(ctx, rec)
	return rec, nil
}

// RecordQuizAttempt records a score computed elsewhere. The quiz's attempt
// limit and current passing score apply as they do for SubmitQuiz.
func (e *Engine) RecordQuizAttempt(ctx context.Context, p gate.Principal, courseID, quizID string, score float64) (Record, error) {
	c, err := e.course(ctx, p, courseID, gate.Enrolled)
	if err != nil {
		return Record{}, err
	}
	q, ok := c.Quiz(quizID)
	if !ok {
		return Record{}, apperr.NotFound("quiz %s not found in course", quizID)
	}
	return e.recordQuiz(ctx, p, c, q, score)
}

// recordQuiz grades the attempt against the quiz as the course defines it
// now, so the stored passing score always matches the one used for scoring.
func (e *Engine) recordQuiz(ctx context.Context, p gate.Principal, c catalog.Course, q catalog.Quiz, score float64) (Record, error) {
	rec, err := e.mutate(ctx, p.UserID, c, func(r *Record) error {
		if st, ok := r.Quizzes[q.ID]; ok && q.MaxAttempts > 0 && st.Attempts >= q.MaxAttempts {
			return apperr.Forbidden("maximum of %d attempts reached", q.MaxAttempts)
		}
		r.SetPassingScore(q.ID, q.PassingScore)
		return r.RecordQuizAttempt(q.ID, score, e.now())
	})
	if err != nil {
		return Record{}, err
	}
	e.emit(ctx, eventlog.QuizAttempted, rec, map[string]any{"quiz_id": q.ID, "score": score})
	e.issue(ctx, rec)
	return rec, nil
}

// SubmitQuiz scores answers against the course's quiz and records the
// attempt.
func (e *Engine) SubmitQuiz(ctx context.Context, p gate.Principal, courseID, quizID string, answers map[int]int) (Record, quiz.Result, error) {
	c, err := e.course(ctx, p, courseID, gate.Enrolled)
	if err != nil {
		return Record{}, quiz.Result{}, err
	}
	q, ok := c.Quiz(quizID)
	if !ok {
		return Record{}, quiz.Result{}, apperr.NotFound("quiz %s not found in course", quizID)
	}
	if len(q.Questions) > 0 && len(answers) == 0 {
		return Record{}, quiz.Result{}, apperr.InvalidInput("answers required")
	}
	res := quiz.ScoreQuiz(q, answers)
	rec, err := e.recordQuiz(ctx, p, c, q, res.Percent)
	if err != nil {
		return Record{}, quiz.Result{}, err
	}
	return rec, res, nil
}

func (e *Engine) RecordAssignmentSubmission(ctx context.Context, p gate.Principal, courseID, assignmentID, ref string) (Record, error) {
	c, err := e.course(ctx, p, courseID, gate.Enrolled)
	if err != nil {
		return Record{}, err
	}
	rec, err := e.mutate(ctx, p.UserID, c, func(r *Record) error {
		return r.SubmitAssignment(assignmentID, ref, e.now())
	})
	if err != nil {
		return Record{}, err
	}
	e.emit(ctx, eventlog.AssignmentSubmitted, rec, map[string]any{"assignment_id": assignmentID, "submission_ref": ref})
	e.issue(ctx, rec)
	return rec, nil
}

// RecordAssignmentGrade grades a learner's submission. The caller must be the
// course instructor or an admin.
func (e *Engine) RecordAssignmentGrade(ctx context.Context, p gate.Principal, courseID, learnerID, assignmentID string, grade float64, feedback string) (Record, error) {
	c, err := e.course(ctx, p, courseID, gate.AdminOrInstructor)
	if err != nil {
		return Record{}, err
	}
	if _, err := e.store.Get(ctx, learnerID, courseID); err != nil {
		return Record{}, err
	}
	rec, err := e.mutate(ctx, learnerID, c, func(r *Record) error {
		return r.GradeAssignment(assignmentID, grade, feedback, e.now())
	})
	if err != nil {
		return Record{}, err
	}
	e.emit(ctx, eventlog.AssignmentGraded, rec, map[string]any{"assignment_id": assignmentID, "grade": grade, "grader_id": p.UserID})
	return rec, nil
}

func (e *Engine) GetLessonState(ctx context.Context, p gate.Principal, courseID, lessonID string) (LessonState, error) {
	rec, err := e.GetOrCreate(ctx, p, courseID)
	if err != nil {
		return LessonState{}, err
	}
	st, ok := rec.Lessons[lessonID]
	if !ok {
		return LessonState{}, apperr.NotFound("lesson %s not found in progress", lessonID)
	}
	return st, nil
}

// ListCourseProgress returns every learner's record in a course.
func (e *Engine) ListCourseProgress(ctx context.Context, p gate.Principal, courseID string) ([]Record, error) {
	if _, err := e.course(ctx, p, courseID, gate.AdminOrInstructor); err != nil {
		return nil, err
	}
	return e.store.ListByCourse(ctx, courseID)
}

func (e *Engine) GetLearnerProgress(ctx context.Context, p gate.Principal, courseID, learnerID string) (Record, error) {
	if _, err := e.course(ctx, p, courseID, gate.AdminOrInstructor); err != nil {
		return Record{}, err
	}
	return e.store.Get(ctx, learnerID, courseID)
}

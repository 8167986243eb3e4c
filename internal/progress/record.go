// Package progress owns the per learner, per course progress record and the
// aggregate completion percentage.
package progress

import (
	"math"
	"time"

	"github.com/mind-engage/coursetrack/internal/apperr"
	"github.com/mind-engage/coursetrack/internal/catalog"
)

type LessonState struct {
	Completed        bool       `json:"completed"`
	CompletedAt      *time.Time `json:"completed_at"`
	TimeSpentSeconds int64      `json:"time_spent_seconds"`
}

type QuizState struct {
	Completed     bool       `json:"completed"`
	BestScore     float64    `json:"best_score"`
	LastScore     float64    `json:"last_score"`
	Attempts      int        `json:"attempts"`
	LastAttemptAt *time.Time `json:"last_attempt_at"`
	PassingScore  float64    `json:"passing_score"`
}

type AssignmentState struct {
	Submitted     bool       `json:"submitted"`
	SubmissionRef *string    `json:"submission_ref"`
	Grade         *float64   `json:"grade"`
	Feedback      *string    `json:"feedback"`
	SubmittedAt   *time.Time `json:"submitted_at"`
	GradedAt      *time.Time `json:"graded_at"`
	MaxScore      float64    `json:"max_score"`
}

// Record is keyed by (LearnerID, CourseID). Its item set is frozen at
// creation from the course outline; later outline edits do not reseed it.
type Record struct {
	LearnerID      string                     `json:"learner_id"`
	CourseID       string                     `json:"course_id"`
	Lessons        map[string]LessonState     `json:"lessons"`
	Quizzes        map[string]QuizState       `json:"quizzes"`
	Assignments    map[string]AssignmentState `json:"assignments"`
	OverallPercent int                        `json:"overall_progress_percent"`
	LastAccessedAt time.Time                  `json:"last_accessed_at"`
	CreatedAt      time.Time                  `json:"created_at"`
	Version        int64                      `json:"version"`
}

// NewRecord seeds one not-started entry per outline item.
func NewRecord(learnerID string, o catalog.Outline, now time.Time) Record {
	r := Record{
		LearnerID:      learnerID,
		CourseID:       o.CourseID,
		Lessons:        make(map[string]LessonState, len(o.Lessons)),
		Quizzes:        make(map[string]QuizState, len(o.Quizzes)),
		Assignments:    make(map[string]AssignmentState, len(o.Assignments)),
		LastAccessedAt: now,
		CreatedAt:      now,
	}
	for _, l := range o.Lessons {
		r.Lessons[l.ID] = LessonState{}
	}
	for _, q := range o.Quizzes {
		r.Quizzes[q.ID] = QuizState{PassingScore: q.PassingScore}
	}
	for _, a := range o.Assignments {
		r.Assignments[a.ID] = AssignmentState{MaxScore: a.MaxScore}
	}
	return r
}

// Clone returns a deep copy so callers never share map storage.
func (r Record) Clone() Record {
	out := r
	out.Lessons = make(map[string]LessonState, len(r.Lessons))
	for k, v := range r.Lessons {
		out.Lessons[k] = v
	}
	out.Quizzes = make(map[string]QuizState, len(r.Quizzes))
	for k, v := range r.Quizzes {
		out.Quizzes[k] = v
	}
	out.Assignments = make(map[string]AssignmentState, len(r.Assignments))
	for k, v := range r.Assignments {
		out.Assignments[k] = v
	}
	return out
}

// Counts returns the number of completed items and the total item count.
// Lessons and quizzes count when completed, assignments when submitted.
func (r Record) Counts() (completed, total int) {
	total = len(r.Lessons) + len(r.Quizzes) + len(r.Assignments)
	for _, l := range r.Lessons {
		if l.Completed {
			completed++
		}
	}
	for _, q := range r.Quizzes {
		if q.Completed {
			completed++
		}
	}
	for _, a := range r.Assignments {
		if a.Submitted {
			completed++
		}
	}
	return completed, total
}

// Percent rounds 100*completed/total half up. An empty course is at 0.
func Percent(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return (200*completed + total) / (2 * total)
}

// Recompute is the only writer of OverallPercent.
func (r *Record) Recompute() {
	r.OverallPercent = Percent(r.Counts())
}

func (r *Record) touch(now time.Time) {
	r.LastAccessedAt = now
	r.Recompute()
}

// CompleteLesson marks a lesson completed and adds timeSpent seconds.
// completedAt is only set on the first completion.
func (r *Record) CompleteLesson(lessonID string, timeSpent int64, now time.Time) error {
	if timeSpent < 0 {
		return apperr.InvalidInput("time spent cannot be negative")
	}
	st, ok := r.Lessons[lessonID]
	if !ok {
		return apperr.NotFound("lesson %s not found in progress", lessonID)
	}
	if !st.Completed {
		st.Completed = true
		at := now
		st.CompletedAt = &at
	}
	st.TimeSpentSeconds += timeSpent
	r.Lessons[lessonID] = st
	r.touch(now)
	return nil
}

// SetPassingScore replaces the threshold copied when the record was seeded.
// Unknown quizzes are ignored.
func (r *Record) SetPassingScore(quizID string, score float64) {
	if st, ok := r.Quizzes[quizID]; ok {
		st.PassingScore = score
		r.Quizzes[quizID] = st
	}
}

// RecordQuizAttempt counts an attempt. BestScore only ratchets up and a
// passed quiz stays passed.
func (r *Record) RecordQuizAttempt(quizID string, score float64, now time.Time) error {
	if math.IsNaN(score) || score < 0 || score > 100 {
		return apperr.InvalidInput("score must be within [0,100], got %v", score)
	}
	st, ok := r.Quizzes[quizID]
	if !ok {
		return apperr.NotFound("quiz %s not found in progress", quizID)
	}
	st.Attempts++
	at := now
	st.LastAttemptAt = &at
	st.LastScore = score
	if score > st.BestScore {
		st.BestScore = score
	}
	if score >= st.PassingScore {
		st.Completed = true
	}
	r.Quizzes[quizID] = st
	r.touch(now)
	return nil
}

// SubmitAssignment stores the submission reference. Resubmissions replace
// the reference and refresh SubmittedAt.
func (r *Record) SubmitAssignment(assignmentID, ref string, now time.Time) error {
	if ref == "" {
		return apperr.InvalidInput("submission reference required")
	}
	st, ok := r.Assignments[assignmentID]
	if !ok {
		return apperr.NotFound("assignment %s not found in progress", assignmentID)
	}
	st.Submitted = true
	s := ref
	st.SubmissionRef = &s
	at := now
	st.SubmittedAt = &at
	r.Assignments[assignmentID] = st
	r.touch(now)
	return nil
}

// GradeAssignment records a grade. It does not move OverallPercent.
func (r *Record) GradeAssignment(assignmentID string, grade float64, feedback string, now time.Time) error {
	st, ok := r.Assignments[assignmentID]
	if !ok {
		return apperr.NotFound("assignment %s not found in progress", assignmentID)
	}
	if !st.Submitted {
		return apperr.InvalidInput("assignment %s has not been submitted", assignmentID)
	}
	maxScore := st.MaxScore
	if maxScore <= 0 {
		maxScore = 100
	}
	if math.IsNaN(grade) || grade < 0 || grade > maxScore {
		return apperr.InvalidInput("grade must be within [0,%v], got %v", maxScore, grade)
	}
	g, f, at := grade, feedback, now
	st.Grade = &g
	st.Feedback = &f
	st.GradedAt = &at
	r.Assignments[assignmentID] = st
	r.LastAccessedAt = now
	return nil
}

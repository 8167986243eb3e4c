package progress

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/coursetrack/internal/apperr"
	"github.com/mind-engage/coursetrack/internal/catalog"
)

var t0 = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

func outline(lessons, quizzes, assignments int) catalog.Outline {
	o := catalog.Outline{CourseID: "c1"}
	for i := 0; i < lessons; i++ {
		o.Lessons = append(o.Lessons, catalog.LessonRef{ID: "l" + string(rune('a'+i)), Order: i + 1})
	}
	for i := 0; i < quizzes; i++ {
		o.Quizzes = append(o.Quizzes, catalog.QuizRef{ID: "q" + string(rune('a'+i)), PassingScore: 70})
	}
	for i := 0; i < assignments; i++ {
		o.Assignments = append(o.Assignments, catalog.AssignmentRef{ID: "a" + string(rune('a'+i)), MaxScore: 100})
	}
	return o
}

func TestPercentRoundsHalfUp(t *testing.T) {
	cases := []struct{ done, total, want int }{
		{0, 0, 0},
		{0, 3, 0},
		{1, 3, 33},
		{2, 3, 67},
		{3, 3, 100},
		{1, 8, 13},  // 12.5
		{1, 200, 1}, // 0.5
		{5, 7, 71},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Percent(tc.done, tc.total), "%d/%d", tc.done, tc.total)
	}
}

func TestNewRecordSeedsNotStarted(t *testing.T) {
	r := NewRecord("stu", outline(2, 1, 1), t0)
	assert.Len(t, r.Lessons, 2)
	assert.Len(t, r.Quizzes, 1)
	assert.Len(t, r.Assignments, 1)
	assert.Equal(t, 0, r.OverallPercent)
	assert.Equal(t, 70.0, r.Quizzes["qa"].PassingScore)
	for _, l := range r.Lessons {
		assert.False(t, l.Completed)
		assert.Nil(t, l.CompletedAt)
	}
}

func TestEmptyOutlineStaysAtZero(t *testing.T) {
	r := NewRecord("stu", outline(0, 0, 0), t0)
	r.Recompute()
	assert.Equal(t, 0, r.OverallPercent)
}

func TestCompleteLessonAccumulatesTime(t *testing.T) {
	r := NewRecord("stu", outline(2, 1, 0), t0)

	require.NoError(t, r.CompleteLesson("la", 30, t0))
	first := *r.Lessons["la"].CompletedAt
	require.NoError(t, r.CompleteLesson("la", 30, t0.Add(time.Hour)))

	st := r.Lessons["la"]
	assert.True(t, st.Completed)
	assert.Equal(t, int64(60), st.TimeSpentSeconds)
	assert.True(t, st.CompletedAt.Equal(first))
	assert.True(t, r.LastAccessedAt.Equal(t0.Add(time.Hour)))
	assert.Equal(t, 33, r.OverallPercent)
}

func TestCompleteLessonErrors(t *testing.T) {
	r := NewRecord("stu", outline(1, 0, 0), t0)
	assert.ErrorIs(t, r.CompleteLesson("nope", 1, t0), apperr.ErrNotFound)
	assert.ErrorIs(t, r.CompleteLesson("la", -1, t0), apperr.ErrInvalidInput)
	assert.False(t, r.Lessons["la"].Completed)
}

func TestQuizScoreRatchet(t *testing.T) {
	r := NewRecord("stu", outline(0, 1, 0), t0)
	scores := []float64{40, 85, 60, 20}
	for i, s := range scores {
		require.NoError(t, r.RecordQuizAttempt("qa", s, t0.Add(time.Duration(i)*time.Minute)))
	}
	st := r.Quizzes["qa"]
	assert.Equal(t, 4, st.Attempts)
	assert.Equal(t, 85.0, st.BestScore)
	assert.Equal(t, 20.0, st.LastScore)
	assert.True(t, st.Completed, "passed quiz stays passed")
	assert.Equal(t, 100, r.OverallPercent)
}

func TestQuizAttemptValidation(t *testing.T) {
	r := NewRecord("stu", outline(0, 1, 0), t0)
	assert.ErrorIs(t, r.RecordQuizAttempt("qa", 101, t0), apperr.ErrInvalidInput)
	assert.ErrorIs(t, r.RecordQuizAttempt("qa", -0.5, t0), apperr.ErrInvalidInput)
	assert.ErrorIs(t, r.RecordQuizAttempt("qa", math.NaN(), t0), apperr.ErrInvalidInput)
	assert.ErrorIs(t, r.RecordQuizAttempt("qz", 50, t0), apperr.ErrNotFound)
	assert.Equal(t, 0, r.Quizzes["qa"].Attempts)
}

func TestAssignmentSubmitAndGrade(t *testing.T) {
	r := NewRecord("stu", outline(1, 0, 1), t0)

	assert.ErrorIs(t, r.GradeAssignment("aa", 90, "good", t0), apperr.ErrInvalidInput)
	assert.ErrorIs(t, r.SubmitAssignment("zz", "ref", t0), apperr.ErrNotFound)
	assert.ErrorIs(t, r.SubmitAssignment("aa", "", t0), apperr.ErrInvalidInput)

	require.NoError(t, r.SubmitAssignment("aa", "blob://1", t0))
	assert.Equal(t, 50, r.OverallPercent)

	later := t0.Add(time.Hour)
	require.NoError(t, r.SubmitAssignment("aa", "blob://2", later))
	st := r.Assignments["aa"]
	assert.Equal(t, "blob://2", *st.SubmissionRef)
	assert.True(t, st.SubmittedAt.Equal(later))

	require.NoError(t, r.GradeAssignment("aa", 90, "good", later))
	assert.ErrorIs(t, r.GradeAssignment("aa", 101, "", later), apperr.ErrInvalidInput)
	st = r.Assignments["aa"]
	assert.Equal(t, 90.0, *st.Grade)
	assert.Equal(t, "good", *st.Feedback)
	assert.Equal(t, 50, r.OverallPercent, "grading does not move progress")
}

func TestCloneDoesNotShareMaps(t *testing.T) {
	r := NewRecord("stu", outline(1, 0, 0), t0)
	c := r.Clone()
	require.NoError(t, c.CompleteLesson("la", 5, t0))
	assert.False(t, r.Lessons["la"].Completed)
}

// Random mutation sequences: the stored percent always matches a recount,
// lesson completion and time are monotone, and best score is the max seen.
func TestRecordProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 200; round++ {
		o := outline(rng.Intn(4), rng.Intn(3), rng.Intn(3))
		r := NewRecord("stu", o, t0)
		best := map[string]float64{}
		attempts := map[string]int{}

		for step := 0; step < 30; step++ {
			prev := r.Clone()
			now := t0.Add(time.Duration(step) * time.Second)
			switch rng.Intn(3) {
			case 0:
				if len(o.Lessons) > 0 {
					id := o.Lessons[rng.Intn(len(o.Lessons))].ID
					require.NoError(t, r.CompleteLesson(id, int64(rng.Intn(100)), now))
				}
			case 1:
				if len(o.Quizzes) > 0 {
					id := o.Quizzes[rng.Intn(len(o.Quizzes))].ID
					s := float64(rng.Intn(101))
					require.NoError(t, r.RecordQuizAttempt(id, s, now))
					attempts[id]++
					if s > best[id] {
						best[id] = s
					}
				}
			case 2:
				if len(o.Assignments) > 0 {
					id := o.Assignments[rng.Intn(len(o.Assignments))].ID
					require.NoError(t, r.SubmitAssignment(id, "ref", now))
				}
			}

			done, total := 0, 0
			for _, l := range r.Lessons {
				total++
				if l.Completed {
					done++
				}
			}
			for _, q := range r.Quizzes {
				total++
				if q.Completed {
					done++
				}
			}
			for _, a := range r.Assignments {
				total++
				if a.Submitted {
					done++
				}
			}
			want := 0
			if total > 0 {
				want = int(math.Floor(100*float64(done)/float64(total) + 0.5))
			}
			require.Equal(t, want, r.OverallPercent)
			require.GreaterOrEqual(t, r.OverallPercent, prev.OverallPercent)

			for id, l := range r.Lessons {
				p := prev.Lessons[id]
				require.True(t, !p.Completed || l.Completed)
				require.GreaterOrEqual(t, l.TimeSpentSeconds, p.TimeSpentSeconds)
			}
			for id, q := range r.Quizzes {
				require.Equal(t, best[id], q.BestScore)
				require.Equal(t, attempts[id], q.Attempts)
			}
		}
	}
}

package http

import (
	nethttp "net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/coursetrack/internal/auth"
	"github.com/mind-engage/coursetrack/internal/catalog"
	"github.com/mind-engage/coursetrack/internal/gate"
	"github.com/mind-engage/coursetrack/internal/progress"
	"github.com/mind-engage/coursetrack/internal/quiz"
)

// quizWithCourse loads the quiz in the URL and checks rel against its course.
func quizWithCourse(r *nethttp.Request, store catalog.Store, rel gate.Relation) (catalog.Quiz, catalog.Course, error) {
	q, err := store.GetQuiz(r.Context(), chi.URLParam(r, "quizID"))
	if err != nil {
		return catalog.Quiz{}, catalog.Course{}, err
	}
	c, err := store.GetCourse(r.Context(), q.CourseID)
	if err != nil {
		return catalog.Quiz{}, catalog.Course{}, err
	}
	if err := gate.Authorize(auth.PrincipalFromContext(r.Context()), c, rel); err != nil {
		return catalog.Quiz{}, catalog.Course{}, err
	}
	return q, c, nil
}

// GetQuizHandler returns the full quiz to its instructor and admins and the
// answer-free version to enrolled learners.
func GetQuizHandler(store catalog.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		q, c, err := quizWithCourse(r, store, gate.Participant)
		if err != nil {
			fail(w, r, err)
			return
		}
		if gate.Allowed(auth.PrincipalFromContext(r.Context()), c, gate.AdminOrInstructor) {
			ok(w, nethttp.StatusOK, q)
			return
		}
		ok(w, nethttp.StatusOK, q.ForLearner())
	}
}

func UpdateQuizHandler(store catalog.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		q, _, err := quizWithCourse(r, store, gate.AdminOrInstructor)
		if err != nil {
			fail(w, r, err)
			return
		}
		var req quizInput
		if err := decode(r, &req); err != nil {
			fail(w, r, err)
			return
		}
		next := req.quiz()
		next.ID, next.CourseID = q.ID, q.CourseID
		if next.Order == 0 {
			next.Order = q.Order
		}
		updated, err := store.UpdateQuiz(r.Context(), next)
		if err != nil {
			fail(w, r, err)
			return
		}
		ok(w, nethttp.StatusOK, updated)
	}
}

func DeleteQuizHandler(store catalog.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		q, _, err := quizWithCourse(r, store, gate.AdminOrInstructor)
		if err != nil {
			fail(w, r, err)
			return
		}
		if err := store.DeleteQuiz(r.Context(), q.ID); err != nil {
			fail(w, r, err)
			return
		}
		okMessage(w, "quiz deleted")
	}
}

type submission struct {
	Result   quiz.Result     `json:"result"`
	Progress progress.Record `json:"progress"`
}

// SubmitQuizHandler scores {"answers": {"0": 2, "1": 0}} (question index to
// option index) and records the attempt.
func SubmitQuizHandler(store catalog.Store, engine *progress.Engine) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		q, err := store.GetQuiz(r.Context(), chi.URLParam(r, "quizID"))
		if err != nil {
			fail(w, r, err)
			return
		}
		var req struct {
			Answers map[int]int `json:"answers"`
		}
		if err := decode(r, &req); err != nil {
			fail(w, r, err)
			return
		}
		rec, res, err := engine.SubmitQuiz(r.Context(), auth.PrincipalFromContext(r.Context()), q.CourseID, q.ID, req.Answers)
		if err != nil {
			fail(w, r, err)
			return
		}
		ok(w, nethttp.StatusOK, submission{Result: res, Progress: rec})
	}
}

package http

import (
	"time"

	nethttp "net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/coursetrack/internal/apperr"
	"github.com/mind-engage/coursetrack/internal/auth"
	"github.com/mind-engage/coursetrack/internal/catalog"
	"github.com/mind-engage/coursetrack/internal/eventlog"
	"github.com/mind-engage/coursetrack/internal/gate"
	"github.com/mind-engage/coursetrack/internal/progress"
)

// courseView hides quiz answer keys from callers who do not teach the course.
type courseView struct {
	catalog.Course
	Quizzes []catalog.LearnerQuiz `json:"quizzes,omitempty"`
}

func viewCourse(p gate.Principal, c catalog.Course) any {
	if gate.Allowed(p, c, gate.AdminOrInstructor) {
		return c
	}
	v := courseView{Course: c, Quizzes: make([]catalog.LearnerQuiz, 0, len(c.Quizzes))}
	for _, q := range c.Quizzes {
		v.Quizzes = append(v.Quizzes, q.ForLearner())
	}
	return v
}

// ownedCourse loads the course in the URL and requires the caller to teach
// it or be an admin.
func ownedCourse(r *nethttp.Request, store catalog.Store) (catalog.Course, error) {
	c, err := store.GetCourse(r.Context(), chi.URLParam(r, "courseID"))
	if err != nil {
		return catalog.Course{}, err
	}
	if err := gate.Authorize(auth.PrincipalFromContext(r.Context()), c, gate.AdminOrInstructor); err != nil {
		return catalog.Course{}, err
	}
	return c, nil
}

type courseInput struct {
	Title       *string  `json:"title" validate:"omitempty,notblank,max=100"`
	Description *string  `json:"description" validate:"omitempty,max=2000"`
	Category    *string  `json:"category" validate:"omitempty,oneof=Business Technology Design Marketing Other"`
	Price       *float64 `json:"price" validate:"omitempty,gte=0"`
	Difficulty  *string  `json:"difficulty" validate:"omitempty,oneof=Beginner Intermediate Advanced"`
	IsPublished *bool    `json:"is_published"`
}

func (in courseInput) apply(c *catalog.Course) {
	if in.Title != nil {
		c.Title = *in.Title
	}
	if in.Description != nil {
		c.Description = *in.Description
	}
	if in.Category != nil {
		c.Category = *in.Category
	}
	if in.Price != nil {
		c.Price = *in.Price
	}
	if in.Difficulty != nil {
		c.Difficulty = *in.Difficulty
	}
	if in.IsPublished != nil {
		c.IsPublished = *in.IsPublished
	}
}

// ListCoursesHandler lists published courses. Query: q, category, sort,
// instructor_id, mine=1 (enrolled courses), all=1 (admins see drafts).
func ListCoursesHandler(store catalog.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		p := auth.PrincipalFromContext(r.Context())
		q := r.URL.Query()
		opts := catalog.ListOpts{
			Q:            q.Get("q"),
			Category:     q.Get("category"),
			Sort:         q.Get("sort"),
			InstructorID: q.Get("instructor_id"),
			Limit:        queryInt(r, "limit", 50),
			Offset:       queryInt(r, "offset", 0),
		}
		if q.Get("mine") == "1" {
			opts.StudentID = p.UserID
		}
		// drafts are visible to admins and to instructors listing their own courses
		if q.Get("all") == "1" && (p.IsAdmin() || (opts.InstructorID != "" && opts.InstructorID == p.UserID)) {
			opts.Unpublished = true
		}
		courses, err := store.ListCourses(r.Context(), opts)
		if err != nil {
			fail(w, r, err)
			return
		}
		okList(w, courses)
	}
}

func GetCourseHandler(store catalog.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		p := auth.PrincipalFromContext(r.Context())
		c, err := store.GetCourse(r.Context(), chi.URLParam(r, "courseID"))
		if err != nil {
			fail(w, r, err)
			return
		}
		if !c.IsPublished && !gate.Allowed(p, c, gate.AdminOrInstructor) {
			fail(w, r, apperr.NotFound("course not found"))
			return
		}
		ok(w, nethttp.StatusOK, viewCourse(p, c))
	}
}

func CreateCourseHandler(store catalog.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var req courseInput
		if err := decode(r, &req); err != nil {
			fail(w, r, err)
			return
		}
		if req.Title == nil {
			fail(w, r, apperr.InvalidInput("please add a title"))
			return
		}
		var c catalog.Course
		req.apply(&c)
		c.InstructorID = auth.SubjectFromContext(r.Context())
		created, err := store.CreateCourse(r.Context(), c)
		if err != nil {
			fail(w, r, err)
			return
		}
		ok(w, nethttp.StatusCreated, created)
	}
}

func UpdateCourseHandler(store catalog.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		c, err := ownedCourse(r, store)
		if err != nil {
			fail(w, r, err)
			return
		}
		var req courseInput
		if err := decode(r, &req); err != nil {
			fail(w, r, err)
			return
		}
		req.apply(&c)
		updated, err := store.UpdateCourse(r.Context(), c)
		if err != nil {
			fail(w, r, err)
			return
		}
		ok(w, nethttp.StatusOK, updated)
	}
}

func DeleteCourseHandler(store catalog.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		c, err := ownedCourse(r, store)
		if err != nil {
			fail(w, r, err)
			return
		}
		if err := store.DeleteCourse(r.Context(), c.ID); err != nil {
			fail(w, r, err)
			return
		}
		okMessage(w, "course deleted")
	}
}

func AddLessonHandler(store catalog.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		c, err := ownedCourse(r, store)
		if err != nil {
			fail(w, r, err)
			return
		}
		var req struct {
			Title       string `json:"title" validate:"notblank,max=200"`
			Description string `json:"description"`
			Content     string `json:"content"`
			ContentType string `json:"content_type" validate:"omitempty,oneof=video pdf text"`
			VideoURL    string `json:"video_url" validate:"omitempty,url"`
			Duration    int    `json:"duration" validate:"gte=0"`
			Order       int    `json:"order" validate:"gte=0"`
		}
		if err := decode(r, &req); err != nil {
			fail(w, r, err)
			return
		}
		l, err := store.AddLesson(r.Context(), c.ID, catalog.Lesson{
			Title: req.Title, Description: req.Description, Content: req.Content,
			ContentType: req.ContentType, VideoURL: req.VideoURL, Duration: req.Duration, Order: req.Order,
		})
		if err != nil {
			fail(w, r, err)
			return
		}
		ok(w, nethttp.StatusCreated, l)
	}
}

type quizInput struct {
	Title        string             `json:"title" validate:"notblank,max=200"`
	Description  string             `json:"description"`
	Questions    []catalog.Question `json:"questions" validate:"dive"`
	PassingScore float64            `json:"passing_score" validate:"gte=0,lte=100"`
	TimeLimitMin int                `json:"time_limit_min" validate:"gte=0"`
	MaxAttempts  int                `json:"max_attempts" validate:"gte=0"`
	Order        int                `json:"order" validate:"gte=0"`
}

func (in quizInput) quiz() catalog.Quiz {
	return catalog.Quiz{
		Title: in.Title, Description: in.Description, Questions: in.Questions,
		PassingScore: in.PassingScore, TimeLimitMin: in.TimeLimitMin, MaxAttempts: in.MaxAttempts, Order: in.Order,
	}
}

func AddQuizHandler(store catalog.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		c, err := ownedCourse(r, store)
		if err != nil {
			fail(w, r, err)
			return
		}
		var req quizInput
		if err := decode(r, &req); err != nil {
			fail(w, r, err)
			return
		}
		q, err := store.AddQuiz(r.Context(), c.ID, req.quiz())
		if err != nil {
			fail(w, r, err)
			return
		}
		ok(w, nethttp.StatusCreated, q)
	}
}

func AddAssignmentHandler(store catalog.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		c, err := ownedCourse(r, store)
		if err != nil {
			fail(w, r, err)
			return
		}
		var req struct {
			Title       string     `json:"title" validate:"notblank,max=200"`
			Description string     `json:"description"`
			DueAt       *time.Time `json:"due_at"`
			MaxScore    float64    `json:"max_score" validate:"gte=0"`
			Order       int        `json:"order" validate:"gte=0"`
		}
		if err := decode(r, &req); err != nil {
			fail(w, r, err)
			return
		}
		a, err := store.AddAssignment(r.Context(), c.ID, catalog.Assignment{
			Title: req.Title, Description: req.Description, DueAt: req.DueAt, MaxScore: req.MaxScore, Order: req.Order,
		})
		if err != nil {
			fail(w, r, err)
			return
		}
		ok(w, nethttp.StatusCreated, a)
	}
}

// EnrollHandler enrolls the caller and seeds their progress record from the
// course outline as it stands now.
func EnrollHandler(store catalog.Store, engine *progress.Engine, events eventlog.Appender) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		p := auth.PrincipalFromContext(r.Context())
		courseID := chi.URLParam(r, "courseID")
		c, err := store.GetCourse(r.Context(), courseID)
		if err != nil {
			fail(w, r, err)
			return
		}
		if !c.IsPublished {
			fail(w, r, apperr.NotFound("course not found"))
			return
		}
		if err := store.Enroll(r.Context(), courseID, p.UserID); err != nil {
			fail(w, r, err)
			return
		}
		rec, err := engine.Seed(r.Context(), p.UserID, c)
		if err != nil {
			fail(w, r, err)
			return
		}
		if err := events.Append(r.Context(), eventlog.Enrolled, eventlog.Key(p.UserID, courseID), map[string]any{"course_id": courseID}); err != nil {
			loggerFrom(r.Context()).Warn("event append failed", "type", eventlog.Enrolled, "error", err)
		}
		ok(w, nethttp.StatusCreated, rec)
	}
}

func RateCourseHandler(store catalog.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		p := auth.PrincipalFromContext(r.Context())
		c, err := store.GetCourse(r.Context(), chi.URLParam(r, "courseID"))
		if err != nil {
			fail(w, r, err)
			return
		}
		if !c.IsEnrolled(p.UserID) {
			fail(w, r, apperr.Forbidden("you must be enrolled to rate this course"))
			return
		}
		var req struct {
			Rating int    `json:"rating" validate:"required,min=1,max=5"`
			Review string `json:"review" validate:"max=500"`
		}
		if err := decode(r, &req); err != nil {
			fail(w, r, err)
			return
		}
		avg, err := store.Rate(r.Context(), c.ID, catalog.Rating{UserID: p.UserID, Rating: req.Rating, Review: req.Review})
		if err != nil {
			fail(w, r, err)
			return
		}
		ok(w, nethttp.StatusOK, map[string]any{"average_rating": avg})
	}
}

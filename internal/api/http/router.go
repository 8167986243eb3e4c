package http

import (
	"context"
	"database/sql"
	"time"

	nethttp "net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mind-engage/coursetrack/internal/auth"
	"github.com/mind-engage/coursetrack/internal/catalog"
	"github.com/mind-engage/coursetrack/internal/certificate"
	"github.com/mind-engage/coursetrack/internal/discussion"
	"github.com/mind-engage/coursetrack/internal/eventlog"
	"github.com/mind-engage/coursetrack/internal/logger"
	"github.com/mind-engage/coursetrack/internal/progress"
	"github.com/mind-engage/coursetrack/internal/rbac"
	"github.com/mind-engage/coursetrack/internal/storage"
)

// Pinger is an optional dependency checked by /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services is everything the handlers depend on.
type Services struct {
	Log *logger.Logger
	DB  *sql.DB

	Tokens   *auth.Service
	Users    auth.UserLookup
	Accounts *auth.Accounts

	Catalog      catalog.Store
	Engine       *progress.Engine
	Certificates certificate.Store
	Verifier     *certificate.Verifier
	Boards       *discussion.Boards
	Blobs        storage.BlobStore
	Events       *eventlog.Repo

	// Extra readiness checks, such as the redis cache.
	Ready []Pinger

	CORSOrigins    []string
	RequestTimeout time.Duration
}

func NewRouter(s Services) nethttp.Handler {
	if s.Log == nil {
		s.Log = logger.Nop()
	}
	if s.RequestTimeout <= 0 {
		s.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(s.Log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		w.WriteHeader(nethttp.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.DB.PingContext(ctx); err != nil {
			nethttp.Error(w, "db not ready", nethttp.StatusServiceUnavailable)
			return
		}
		for _, p := range s.Ready {
			if err := p.Ping(ctx); err != nil {
				nethttp.Error(w, "dependency not ready", nethttp.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(nethttp.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	// Public
	r.Post("/auth/register", RegisterHandler(s.Accounts))
	r.Post("/auth/login", LoginHandler(s.Accounts))
	r.Post("/auth/forgotpassword", ForgotPasswordHandler(s.Accounts))
	r.Put("/auth/resetpassword/{token}", ResetPasswordHandler(s.Accounts))
	r.Get("/certificates/verify/{certificateID}", VerifyCertificateHandler(s.Verifier))

	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(s.Tokens, s.Users))

		pr.Get("/auth/me", MeHandler(s.Accounts))
		pr.With(rbac.Require("user:change_password")).Post("/auth/change-password", ChangePasswordHandler(s.Accounts))
		pr.With(rbac.Require("user:update_profile")).Put("/auth/updateprofile", UpdateProfileHandler(s.Accounts))

		pr.Route("/users", func(ur chi.Router) {
			ur.Use(rbac.Require("user:manage"))
			ur.Get("/", ListUsersHandler(s.Accounts))
			ur.Patch("/{userID}", UpdateUserHandler(s.Accounts))
		})

		pr.Route("/courses", func(cr chi.Router) {
			cr.With(rbac.Require("course:view")).Get("/", ListCoursesHandler(s.Catalog))
			cr.With(rbac.Require("course:create")).Post("/", CreateCourseHandler(s.Catalog))
			cr.Route("/{courseID}", func(one chi.Router) {
				one.With(rbac.Require("course:view")).Get("/", GetCourseHandler(s.Catalog))
				one.Group(func(own chi.Router) {
					own.Use(rbac.Require("course:edit_own"))
					own.Put("/", UpdateCourseHandler(s.Catalog))
					own.Delete("/", DeleteCourseHandler(s.Catalog))
					own.Post("/lessons", AddLessonHandler(s.Catalog))
					own.Post("/quizzes", AddQuizHandler(s.Catalog))
					own.Post("/assignments", AddAssignmentHandler(s.Catalog))
				})
				one.With(rbac.Require("course:enroll")).Post("/enroll", EnrollHandler(s.Catalog, s.Engine, s.Events))
				one.With(rbac.Require("course:rate")).Post("/ratings", RateCourseHandler(s.Catalog))
			})
		})

		pr.Route("/quizzes/{quizID}", func(qr chi.Router) {
			qr.With(rbac.Require("quiz:view")).Get("/", GetQuizHandler(s.Catalog))
			qr.With(rbac.Require("quiz:manage")).Put("/", UpdateQuizHandler(s.Catalog))
			qr.With(rbac.Require("quiz:manage")).Delete("/", DeleteQuizHandler(s.Catalog))
			qr.With(rbac.Require("quiz:submit")).Post("/submit", SubmitQuizHandler(s.Catalog, s.Engine))
		})

		pr.Route("/progress/{courseID}", func(pg chi.Router) {
			pg.Group(func(own chi.Router) {
				own.Use(rbac.Require("progress:own"))
				own.Get("/", GetProgressHandler(s.Engine))
				own.Get("/lessons/{lessonID}", GetLessonProgressHandler(s.Engine))
				own.Put("/lessons/{lessonID}", CompleteLessonHandler(s.Engine))
				own.Post("/quizzes/{quizID}", RecordQuizScoreHandler(s.Engine))
				own.Post("/assignments/{assignmentID}", SubmitAssignmentHandler(s.Catalog, s.Engine, s.Blobs))
			})
			pg.With(rbac.Require("assignment:grade")).Put("/assignments/{assignmentID}/grade/{userID}", GradeAssignmentHandler(s.Engine))
			pg.Group(func(staff chi.Router) {
				staff.Use(rbac.Require("progress:view_course"))
				staff.Get("/assignments/{assignmentID}/submissions/{userID}", DownloadSubmissionHandler(s.Engine, s.Blobs))
				staff.Get("/students", ListCourseProgressHandler(s.Engine))
				staff.Get("/students/{userID}", GetStudentProgressHandler(s.Engine))
				staff.Get("/students/{userID}/events", StudentEventsHandler(s.Engine, s.Events))
			})
		})

		pr.Route("/certificates", func(cr chi.Router) {
			cr.Use(rbac.Require("certificate:own"))
			cr.Get("/", ListCertificatesHandler(s.Certificates))
			cr.Get("/{id}", GetCertificateHandler(s.Certificates))
		})

		pr.Route("/discussions", func(dr chi.Router) {
			dr.With(rbac.Require("course:view")).Get("/course/{courseID}", ListDiscussionsHandler(s.Boards))
			dr.With(rbac.Require("discussion:post")).Post("/course/{courseID}", CreateDiscussionHandler(s.Boards))
			dr.With(rbac.Require("course:view")).Get("/{id}", GetDiscussionHandler(s.Boards))
			dr.With(rbac.Require("discussion:post")).Post("/{id}/replies", ReplyHandler(s.Boards))
			dr.With(rbac.Require("discussion:resolve")).Put("/{id}/resolve", ResolveHandler(s.Boards))
			dr.With(rbac.Require("discussion:post")).Put("/{id}/upvote", UpvoteHandler(s.Boards))
		})

		pr.Route("/announcements", func(ar chi.Router) {
			ar.With(rbac.Require("course:view")).Get("/course/{courseID}", ListAnnouncementsHandler(s.Boards))
			ar.Group(func(mg chi.Router) {
				mg.Use(rbac.Require("announcement:manage"))
				mg.Post("/course/{courseID}", CreateAnnouncementHandler(s.Boards))
				mg.Put("/{id}", UpdateAnnouncementHandler(s.Boards))
				mg.Delete("/{id}", DeleteAnnouncementHandler(s.Boards))
			})
		})
	})

	return r
}

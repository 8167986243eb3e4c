package http

import (
	"io"
	"mime"
	"path"
	"strings"

	nethttp "net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/coursetrack/internal/apperr"
	"github.com/mind-engage/coursetrack/internal/auth"
	"github.com/mind-engage/coursetrack/internal/catalog"
	"github.com/mind-engage/coursetrack/internal/eventlog"
	"github.com/mind-engage/coursetrack/internal/gate"
	"github.com/mind-engage/coursetrack/internal/progress"
	"github.com/mind-engage/coursetrack/internal/storage"
)

func GetProgressHandler(engine *progress.Engine) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		rec, err := engine.GetOrCreate(r.Context(), auth.PrincipalFromContext(r.Context()), chi.URLParam(r, "courseID"))
		if err != nil {
			fail(w, r, err)
			return
		}
		ok(w, nethttp.StatusOK, rec)
	}
}

func GetLessonProgressHandler(engine *progress.Engine) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		st, err := engine.GetLessonState(r.Context(), auth.PrincipalFromContext(r.Context()),
			chi.URLParam(r, "courseID"), chi.URLParam(r, "lessonID"))
		if err != nil {
			fail(w, r, err)
			return
		}
		ok(w, nethttp.StatusOK, st)
	}
}

// CompleteLessonHandler marks the lesson complete; {"time_spent": seconds}
// is added to the lesson's total.
func CompleteLessonHandler(engine *progress.Engine) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var req struct {
			TimeSpent int64 `json:"time_spent" validate:"gte=0"`
		}
		if r.ContentLength != 0 {
			if err := decode(r, &req); err != nil {
				fail(w, r, err)
				return
			}
		}
		rec, err := engine.MarkLessonComplete(r.Context(), auth.PrincipalFromContext(r.Context()),
			chi.URLParam(r, "courseID"), chi.URLParam(r, "lessonID"), req.TimeSpent)
		if err != nil {
			fail(w, r, err)
			return
		}
		ok(w, nethttp.StatusOK, rec)
	}
}

// RecordQuizScoreHandler records a score computed elsewhere.
func RecordQuizScoreHandler(engine *progress.Engine) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var req struct {
			Score *float64 `json:"score" validate:"required,gte=0,lte=100"`
		}
		if err := decode(r, &req); err != nil {
			fail(w, r, err)
			return
		}
		rec, err := engine.RecordQuizAttempt(r.Context(), auth.PrincipalFromContext(r.Context()),
			chi.URLParam(r, "courseID"), chi.URLParam(r, "quizID"), *req.Score)
		if err != nil {
			fail(w, r, err)
			return
		}
		ok(w, nethttp.StatusOK, rec)
	}
}

// SubmitAssignmentHandler accepts {"submission_ref": "..."} or a multipart
// form with a "file" part, which is stored in the blob store first.
func SubmitAssignmentHandler(store catalog.Store, engine *progress.Engine, blobs storage.BlobStore) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		p := auth.PrincipalFromContext(r.Context())
		courseID, assignmentID := chi.URLParam(r, "courseID"), chi.URLParam(r, "assignmentID")

		var ref string
		mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if mt == "multipart/form-data" {
			c, err := store.GetCourse(r.Context(), courseID)
			if err != nil {
				fail(w, r, err)
				return
			}
			if err := gate.Authorize(p, c, gate.Enrolled); err != nil {
				fail(w, r, err)
				return
			}
			if _, ok := c.Assignment(assignmentID); !ok {
				fail(w, r, apperr.NotFound("assignment %s not found in course", assignmentID))
				return
			}
			r.Body = nethttp.MaxBytesReader(w, r.Body, storage.MaxUploadBytes+(1<<20))
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				fail(w, r, apperr.InvalidInput("bad multipart form: %v", err))
				return
			}
			defer r.MultipartForm.RemoveAll()
			f, hdr, err := r.FormFile("file")
			if err != nil {
				fail(w, r, apperr.InvalidInput("file part required"))
				return
			}
			defer f.Close()
			key := storage.SubmissionKey(courseID, assignmentID, p.UserID, hdr.Filename)
			if ref, err = blobs.Put(r.Context(), key, f); err != nil {
				fail(w, r, err)
				return
			}
		} else {
			var req struct {
				SubmissionRef string `json:"submission_ref" validate:"notblank,max=2048"`
			}
			if err := decode(r, &req); err != nil {
				fail(w, r, err)
				return
			}
			ref = strings.TrimSpace(req.SubmissionRef)
		}

		rec, err := engine.RecordAssignmentSubmission(r.Context(), p, courseID, assignmentID, ref)
		if err != nil {
			fail(w, r, err)
			return
		}
		ok(w, nethttp.StatusOK, rec)
	}
}

func GradeAssignmentHandler(engine *progress.Engine) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var req struct {
			Grade    *float64 `json:"grade" validate:"required,gte=0"`
			Feedback string   `json:"feedback" validate:"max=2000"`
		}
		if err := decode(r, &req); err != nil {
			fail(w, r, err)
			return
		}
		rec, err := engine.RecordAssignmentGrade(r.Context(), auth.PrincipalFromContext(r.Context()),
			chi.URLParam(r, "courseID"), chi.URLParam(r, "userID"), chi.URLParam(r, "assignmentID"), *req.Grade, req.Feedback)
		if err != nil {
			fail(w, r, err)
			return
		}
		ok(w, nethttp.StatusOK, rec)
	}
}

// DownloadSubmissionHandler streams an uploaded submission to the course
// instructor. References that are not uploads are returned as JSON.
func DownloadSubmissionHandler(engine *progress.Engine, blobs storage.BlobStore) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		assignmentID := chi.URLParam(r, "assignmentID")
		rec, err := engine.GetLearnerProgress(r.Context(), auth.PrincipalFromContext(r.Context()),
			chi.URLParam(r, "courseID"), chi.URLParam(r, "userID"))
		if err != nil {
			fail(w, r, err)
			return
		}
		st, found := rec.Assignments[assignmentID]
		if !found || st.SubmissionRef == nil {
			fail(w, r, apperr.NotFound("no submission for assignment %s", assignmentID))
			return
		}
		ref := *st.SubmissionRef
		if !strings.HasPrefix(ref, "submissions/") {
			ok(w, nethttp.StatusOK, map[string]string{"submission_ref": ref})
			return
		}
		rc, err := blobs.Get(r.Context(), ref)
		if err != nil {
			fail(w, r, err)
			return
		}
		defer rc.Close()
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": path.Base(ref)}))
		if _, err := io.Copy(w, rc); err != nil {
			loggerFrom(r.Context()).Warn("submission download interrupted", "ref", ref, "error", err)
		}
	}
}

func ListCourseProgressHandler(engine *progress.Engine) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		recs, err := engine.ListCourseProgress(r.Context(), auth.PrincipalFromContext(r.Context()), chi.URLParam(r, "courseID"))
		if err != nil {
			fail(w, r, err)
			return
		}
		okList(w, recs)
	}
}

func GetStudentProgressHandler(engine *progress.Engine) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		rec, err := engine.GetLearnerProgress(r.Context(), auth.PrincipalFromContext(r.Context()),
			chi.URLParam(r, "courseID"), chi.URLParam(r, "userID"))
		if err != nil {
			fail(w, r, err)
			return
		}
		ok(w, nethttp.StatusOK, rec)
	}
}

// StudentEventsHandler lists a learner's progress events in a course.
// Query: after (sequence number), limit.
func StudentEventsHandler(engine *progress.Engine, events *eventlog.Repo) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		courseID, userID := chi.URLParam(r, "courseID"), chi.URLParam(r, "userID")
		if _, err := engine.GetLearnerProgress(r.Context(), auth.PrincipalFromContext(r.Context()), courseID, userID); err != nil {
			fail(w, r, err)
			return
		}
		evs, err := events.List(r.Context(), eventlog.Key(userID, courseID), int64(queryInt(r, "after", 0)), queryInt(r, "limit", 100))
		if err != nil {
			fail(w, r, err)
			return
		}
		okList(w, evs)
	}
}

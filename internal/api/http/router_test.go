package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"strings"
	"testing"
	"time"

	nethttp "net/http"
	"net/http/httptest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/coursetrack/internal/auth"
	"github.com/mind-engage/coursetrack/internal/cache"
	"github.com/mind-engage/coursetrack/internal/catalog"
	"github.com/mind-engage/coursetrack/internal/certificate"
	"github.com/mind-engage/coursetrack/internal/db"
	"github.com/mind-engage/coursetrack/internal/discussion"
	"github.com/mind-engage/coursetrack/internal/eventlog"
	"github.com/mind-engage/coursetrack/internal/progress"
	"github.com/mind-engage/coursetrack/internal/storage"
)

func init() { auth.BcryptCost = bcrypt.MinCost }

type reply struct {
	Success bool            `json:"success"`
	Count   int             `json:"count"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

type api struct {
	t *testing.T
	h nethttp.Handler
}

func newAPI(t *testing.T) *api {
	t.Helper()
	ctx := context.Background()
	dbh, err := db.OpenMemory(ctx, "api_"+strings.ReplaceAll(t.Name(), "/", "_"))
	require.NoError(t, err)
	t.Cleanup(func() { dbh.Close() })

	blobs, err := storage.NewFSStore(t.TempDir())
	require.NoError(t, err)

	users := auth.NewUserStore(dbh)
	tokens := auth.NewService("test-secret", time.Hour)
	events := eventlog.NewRepo(dbh, "test")
	cat := catalog.NewSQLStore(dbh)
	certs := certificate.NewSQLStore(dbh)
	issuer := certificate.NewIssuer(certs, events, nil)

	h := NewRouter(Services{
		DB:           dbh,
		Tokens:       tokens,
		Users:        users,
		Accounts:     auth.NewAccounts(users, tokens, auth.DefaultLockout, nil),
		Catalog:      cat,
		Engine:       progress.NewEngine(cat, progress.NewSQLStore(dbh), issuer, events, nil),
		Certificates: certs,
		Verifier:     certificate.NewVerifier(certs, cache.Noop{}, time.Minute, nil),
		Boards:       discussion.NewBoards(discussion.NewSQLStore(dbh), cat),
		Blobs:        blobs,
		Events:       events,
		CORSOrigins:  []string{"http://localhost:3000"},
	})
	return &api{t: t, h: h}
}

func (a *api) raw(method, path, token, contentType string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.h.ServeHTTP(rec, req)
	return rec
}

func (a *api) do(method, path, token string, body any) (int, reply) {
	a.t.Helper()
	var rd io.Reader
	ct := ""
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(a.t, err)
		rd, ct = bytes.NewReader(b), "application/json"
	}
	rec := a.raw(method, path, token, ct, rd)
	var out reply
	require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec.Code, out
}

func (a *api) register(name, email, role string) (token, id string) {
	a.t.Helper()
	code, out := a.do("POST", "/auth/register", "", map[string]string{
		"name": name, "email": email, "password": "secret123", "role": role,
	})
	require.Equal(a.t, nethttp.StatusCreated, code, out.Message)
	var s struct {
		Token string    `json:"token"`
		User  auth.User `json:"user"`
	}
	require.NoError(a.t, json.Unmarshal(out.Data, &s))
	return s.Token, s.User.ID
}

func decodeData[T any](t *testing.T, r reply) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(r.Data, &v))
	return v
}

// course creates a published course with one lesson, a two question quiz
// and one assignment.
func (a *api) course(token string) (courseID, lessonID, quizID, assignmentID string) {
	a.t.Helper()
	code, out := a.do("POST", "/courses", token, map[string]any{
		"title": "Intro to Go", "category": "Technology", "is_published": true,
	})
	require.Equal(a.t, nethttp.StatusCreated, code, out.Message)
	courseID = decodeData[catalog.Course](a.t, out).ID

	code, out = a.do("POST", "/courses/"+courseID+"/lessons", token, map[string]any{"title": "Hello"})
	require.Equal(a.t, nethttp.StatusCreated, code, out.Message)
	lessonID = decodeData[catalog.Lesson](a.t, out).ID

	code, out = a.do("POST", "/courses/"+courseID+"/quizzes", token, map[string]any{
		"title": "Basics", "passing_score": 50,
		"questions": []map[string]any{
			{"question": "2+2", "options": []string{"3", "4"}, "correct_answer": 1},
			{"question": "zero value of int", "options": []string{"0", "nil"}, "correct_answer": 0},
		},
	})
	require.Equal(a.t, nethttp.StatusCreated, code, out.Message)
	quizID = decodeData[catalog.Quiz](a.t, out).ID

	code, out = a.do("POST", "/courses/"+courseID+"/assignments", token, map[string]any{"title": "Write a CLI"})
	require.Equal(a.t, nethttp.StatusCreated, code, out.Message)
	assignmentID = decodeData[catalog.Assignment](a.t, out).ID
	return
}

func TestHealthEndpoints(t *testing.T) {
	a := newAPI(t)
	assert.Equal(t, nethttp.StatusOK, a.raw("GET", "/healthz", "", "", nil).Code)
	assert.Equal(t, nethttp.StatusOK, a.raw("GET", "/readyz", "", "", nil).Code)
}

func TestAuthRequired(t *testing.T) {
	a := newAPI(t)
	code, out := a.do("GET", "/courses", "", nil)
	assert.Equal(t, nethttp.StatusUnauthorized, code)
	assert.False(t, out.Success)
}

func TestRegisterValidationMessages(t *testing.T) {
	a := newAPI(t)
	code, out := a.do("POST", "/auth/register", "", map[string]string{
		"name": " ", "email": "not-an-email", "password": "123",
	})
	assert.Equal(t, nethttp.StatusBadRequest, code)
	assert.Contains(t, out.Message, "name")
	assert.Contains(t, out.Message, "email")
	assert.Contains(t, out.Message, "password")

	code, _ = a.do("POST", "/auth/register", "", map[string]string{
		"name": "Eve", "email": "eve@example.com", "password": "secret123", "role": "admin",
	})
	assert.Equal(t, nethttp.StatusBadRequest, code, "admins cannot self-register")
}

func TestLoginAndMe(t *testing.T) {
	a := newAPI(t)
	_, id := a.register("Ann", "ann@example.com", "student")

	code, out := a.do("POST", "/auth/login", "", map[string]string{"email": "ann@example.com", "password": "wrong-pass"})
	assert.Equal(t, nethttp.StatusUnauthorized, code)

	code, out = a.do("POST", "/auth/login", "", map[string]string{"email": "ann@example.com", "password": "secret123"})
	require.Equal(t, nethttp.StatusOK, code, out.Message)
	tok := decodeData[struct {
		Token string `json:"token"`
	}](t, out).Token

	code, out = a.do("GET", "/auth/me", tok, nil)
	require.Equal(t, nethttp.StatusOK, code)
	assert.Equal(t, id, decodeData[auth.User](t, out).ID)
}

func TestPasswordResetAndProfileRoutes(t *testing.T) {
	a := newAPI(t)
	tok, id := a.register("Ann", "ann@example.com", "student")

	code, _ := a.do("POST", "/auth/forgotpassword", "", map[string]string{"email": "nobody@example.com"})
	assert.Equal(t, nethttp.StatusNotFound, code)

	code, out := a.do("POST", "/auth/forgotpassword", "", map[string]string{"email": "ann@example.com"})
	require.Equal(t, nethttp.StatusOK, code, out.Message)
	reset := decodeData[map[string]string](t, out)["reset_token"]
	require.NotEmpty(t, reset)

	code, _ = a.do("PUT", "/auth/resetpassword/"+reset, "", map[string]string{"password": "123"})
	assert.Equal(t, nethttp.StatusBadRequest, code)
	code, out = a.do("PUT", "/auth/resetpassword/"+reset, "", map[string]string{"password": "brand-new-pw"})
	require.Equal(t, nethttp.StatusOK, code, out.Message)
	assert.NotEmpty(t, decodeData[session](t, out).Token)
	code, _ = a.do("PUT", "/auth/resetpassword/"+reset, "", map[string]string{"password": "again-new-pw"})
	assert.Equal(t, nethttp.StatusBadRequest, code)

	code, _ = a.do("POST", "/auth/login", "", map[string]string{"email": "ann@example.com", "password": "secret123"})
	assert.Equal(t, nethttp.StatusUnauthorized, code)
	code, _ = a.do("POST", "/auth/login", "", map[string]string{"email": "ann@example.com", "password": "brand-new-pw"})
	assert.Equal(t, nethttp.StatusOK, code)

	code, _ = a.do("PUT", "/auth/updateprofile", "", map[string]string{"name": "Ann B"})
	assert.Equal(t, nethttp.StatusUnauthorized, code)
	code, out = a.do("PUT", "/auth/updateprofile", tok, map[string]string{"name": "Ann B", "email": "annb@example.com"})
	require.Equal(t, nethttp.StatusOK, code, out.Message)
	u := decodeData[auth.User](t, out)
	assert.Equal(t, id, u.ID)
	assert.Equal(t, "Ann B", u.Name)
	assert.Equal(t, "annb@example.com", u.Email)

	a.register("Bea", "bea@example.com", "student")
	code, _ = a.do("PUT", "/auth/updateprofile", tok, map[string]string{"email": "bea@example.com"})
	assert.Equal(t, nethttp.StatusConflict, code)
}

func TestQuizScoreRouteHonorsAttemptLimit(t *testing.T) {
	a := newAPI(t)
	teach, _ := a.register("Tia", "tia@example.com", "instructor")
	stu, _ := a.register("Sam", "sam@example.com", "student")

	code, out := a.do("POST", "/courses", teach, map[string]any{
		"title": "One Shot", "category": "Technology", "is_published": true,
	})
	require.Equal(t, nethttp.StatusCreated, code, out.Message)
	courseID := decodeData[catalog.Course](t, out).ID
	code, out = a.do("POST", "/courses/"+courseID+"/quizzes", teach, map[string]any{
		"title": "Final", "passing_score": 50, "max_attempts": 1,
		"questions": []map[string]any{{"question": "2+2", "options": []string{"3", "4"}, "correct_answer": 1}},
	})
	require.Equal(t, nethttp.StatusCreated, code, out.Message)
	quizID := decodeData[catalog.Quiz](t, out).ID
	code, out = a.do("POST", "/courses/"+courseID+"/enroll", stu, nil)
	require.Equal(t, nethttp.StatusCreated, code, out.Message)

	code, out = a.do("POST", "/progress/"+courseID+"/quizzes/"+quizID, stu, map[string]any{"score": 40})
	require.Equal(t, nethttp.StatusOK, code, out.Message)
	code, _ = a.do("POST", "/progress/"+courseID+"/quizzes/"+quizID, stu, map[string]any{"score": 100})
	assert.Equal(t, nethttp.StatusForbidden, code)
	code, _ = a.do("POST", "/quizzes/"+quizID+"/submit", stu, map[string]any{"answers": map[string]int{"0": 1}})
	assert.Equal(t, nethttp.StatusForbidden, code)

	code, out = a.do("GET", "/progress/"+courseID, stu, nil)
	require.Equal(t, nethttp.StatusOK, code)
	st := decodeData[progress.Record](t, out).Quizzes[quizID]
	assert.Equal(t, 1, st.Attempts)
	assert.False(t, st.Completed)
}

func TestRoleChecks(t *testing.T) {
	a := newAPI(t)
	stu, _ := a.register("Sam", "sam@example.com", "student")
	code, _ := a.do("POST", "/courses", stu, map[string]any{"title": "Nope"})
	assert.Equal(t, nethttp.StatusForbidden, code)
	code, _ = a.do("GET", "/users", stu, nil)
	assert.Equal(t, nethttp.StatusForbidden, code)
}

func TestCourseLifecycleToCertificate(t *testing.T) {
	a := newAPI(t)
	teach, _ := a.register("Tia", "tia@example.com", "instructor")
	stu, stuID := a.register("Sam", "sam@example.com", "student")
	courseID, lessonID, quizID, assignmentID := a.course(teach)

	// Not enrolled yet.
	code, _ := a.do("GET", "/progress/"+courseID, stu, nil)
	assert.Equal(t, nethttp.StatusForbidden, code)

	code, out := a.do("POST", "/courses/"+courseID+"/enroll", stu, nil)
	require.Equal(t, nethttp.StatusCreated, code, out.Message)
	rec := decodeData[progress.Record](t, out)
	assert.Len(t, rec.Lessons, 1)
	assert.Len(t, rec.Quizzes, 1)
	assert.Len(t, rec.Assignments, 1)

	code, _ = a.do("POST", "/courses/"+courseID+"/enroll", stu, nil)
	assert.Equal(t, nethttp.StatusConflict, code)

	// Learners never see the answer key.
	resp := a.raw("GET", "/quizzes/"+quizID, stu, "", nil)
	require.Equal(t, nethttp.StatusOK, resp.Code)
	assert.NotContains(t, resp.Body.String(), "correct_answer")
	resp = a.raw("GET", "/courses/"+courseID, stu, "", nil)
	require.Equal(t, nethttp.StatusOK, resp.Code)
	assert.NotContains(t, resp.Body.String(), "correct_answer")
	resp = a.raw("GET", "/quizzes/"+quizID, teach, "", nil)
	assert.Contains(t, resp.Body.String(), "correct_answer")

	code, out = a.do("PUT", "/progress/"+courseID+"/lessons/"+lessonID, stu, map[string]any{"time_spent": 120})
	require.Equal(t, nethttp.StatusOK, code, out.Message)
	assert.Equal(t, 33, decodeData[progress.Record](t, out).OverallPercent)

	code, out = a.do("GET", "/progress/"+courseID+"/lessons/"+lessonID, stu, nil)
	require.Equal(t, nethttp.StatusOK, code)
	assert.Equal(t, int64(120), decodeData[progress.LessonState](t, out).TimeSpentSeconds)

	code, out = a.do("POST", "/quizzes/"+quizID+"/submit", stu, map[string]any{"answers": map[string]int{"0": 1, "1": 1}})
	require.Equal(t, nethttp.StatusOK, code, out.Message)
	sub := decodeData[submission](t, out)
	assert.Equal(t, 1, sub.Result.CorrectCount)
	assert.Equal(t, 50.0, sub.Result.Percent)
	assert.True(t, sub.Result.Passed)
	assert.Equal(t, 67, sub.Progress.OverallPercent)

	code, _ = a.do("POST", "/quizzes/"+quizID+"/submit", stu, map[string]any{"answers": map[string]int{}})
	assert.Equal(t, nethttp.StatusBadRequest, code)

	code, _ = a.do("GET", "/certificates", stu, nil)
	assert.Equal(t, nethttp.StatusOK, code)

	// Upload the assignment; this completes the course.
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "main.go")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("package main"))
	require.NoError(t, mw.Close())
	resp = a.raw("POST", "/progress/"+courseID+"/assignments/"+assignmentID, stu, mw.FormDataContentType(), &buf)
	require.Equal(t, nethttp.StatusOK, resp.Code, resp.Body.String())
	var up reply
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &up))
	done := decodeData[progress.Record](t, up)
	assert.Equal(t, 100, done.OverallPercent)
	assert.Equal(t, storage.SubmissionKey(courseID, assignmentID, stuID, "main.go"), *done.Assignments[assignmentID].SubmissionRef)

	code, out = a.do("GET", "/certificates", stu, nil)
	require.Equal(t, nethttp.StatusOK, code)
	require.Equal(t, 1, out.Count)
	cert := decodeData[[]certificate.Certificate](t, out)[0]
	assert.Equal(t, courseID, cert.CourseID)

	code, out = a.do("GET", "/certificates/verify/"+cert.CertificateID, "", nil)
	require.Equal(t, nethttp.StatusOK, code)
	code, _ = a.do("GET", "/certificates/verify/CERT-0000000000000000", "", nil)
	assert.Equal(t, nethttp.StatusNotFound, code)

	code, _ = a.do("GET", "/certificates/"+cert.ID, teach, nil)
	assert.Equal(t, nethttp.StatusForbidden, code, "only the owner or an admin")

	// Instructor side.
	code, _ = a.do("PUT", "/progress/"+courseID+"/assignments/"+assignmentID+"/grade/"+stuID, stu, map[string]any{"grade": 90})
	assert.Equal(t, nethttp.StatusForbidden, code)
	code, out = a.do("PUT", "/progress/"+courseID+"/assignments/"+assignmentID+"/grade/"+stuID, teach, map[string]any{"grade": 90, "feedback": "nice"})
	require.Equal(t, nethttp.StatusOK, code, out.Message)
	graded := decodeData[progress.Record](t, out)
	assert.Equal(t, 90.0, *graded.Assignments[assignmentID].Grade)
	assert.Equal(t, 100, graded.OverallPercent)

	code, out = a.do("GET", "/progress/"+courseID+"/students", teach, nil)
	require.Equal(t, nethttp.StatusOK, code)
	assert.Equal(t, 1, out.Count)

	resp = a.raw("GET", "/progress/"+courseID+"/assignments/"+assignmentID+"/submissions/"+stuID, teach, "", nil)
	require.Equal(t, nethttp.StatusOK, resp.Code)
	assert.Equal(t, "package main", resp.Body.String())

	code, out = a.do("GET", "/progress/"+courseID+"/students/"+stuID+"/events", teach, nil)
	require.Equal(t, nethttp.StatusOK, code)
	evs := decodeData[[]eventlog.Event](t, out)
	var types []string
	for _, e := range evs {
		types = append(types, e.Type)
	}
	assert.Equal(t, []string{
		eventlog.Enrolled, eventlog.LessonCompleted, eventlog.QuizAttempted,
		eventlog.AssignmentSubmitted, eventlog.CertificateIssued, eventlog.AssignmentGraded,
	}, types)
}

func TestRatingsRequireEnrollment(t *testing.T) {
	a := newAPI(t)
	teach, _ := a.register("Tia", "tia@example.com", "instructor")
	stu, _ := a.register("Sam", "sam@example.com", "student")
	courseID, _, _, _ := a.course(teach)

	code, _ := a.do("POST", "/courses/"+courseID+"/ratings", stu, map[string]any{"rating": 5})
	assert.Equal(t, nethttp.StatusForbidden, code)

	code, _ = a.do("POST", "/courses/"+courseID+"/enroll", stu, nil)
	require.Equal(t, nethttp.StatusCreated, code)
	code, _ = a.do("POST", "/courses/"+courseID+"/ratings", stu, map[string]any{"rating": 9})
	assert.Equal(t, nethttp.StatusBadRequest, code)
	code, out := a.do("POST", "/courses/"+courseID+"/ratings", stu, map[string]any{"rating": 4})
	require.Equal(t, nethttp.StatusOK, code, out.Message)
	assert.Equal(t, 4.0, decodeData[map[string]float64](t, out)["average_rating"])
}

func TestCourseEditsBelongToOwner(t *testing.T) {
	a := newAPI(t)
	owner, _ := a.register("Tia", "tia@example.com", "instructor")
	other, _ := a.register("Ola", "ola@example.com", "instructor")
	courseID, _, _, _ := a.course(owner)

	code, _ := a.do("PUT", "/courses/"+courseID, other, map[string]any{"title": "Mine now"})
	assert.Equal(t, nethttp.StatusForbidden, code)

	code, out := a.do("PUT", "/courses/"+courseID, owner, map[string]any{"title": "Go, Again!"})
	require.Equal(t, nethttp.StatusOK, code, out.Message)
	c := decodeData[catalog.Course](t, out)
	assert.Equal(t, "go-again", c.Slug)
	assert.Equal(t, "Technology", c.Category)

	code, _ = a.do("DELETE", "/courses/"+courseID, owner, nil)
	assert.Equal(t, nethttp.StatusOK, code)
	code, _ = a.do("GET", "/courses/"+courseID, owner, nil)
	assert.Equal(t, nethttp.StatusNotFound, code)
}

func TestDiscussionRoutes(t *testing.T) {
	a := newAPI(t)
	teach, _ := a.register("Tia", "tia@example.com", "instructor")
	stu, _ := a.register("Sam", "sam@example.com", "student")
	courseID, _, _, _ := a.course(teach)
	code, _ := a.do("POST", "/courses/"+courseID+"/enroll", stu, nil)
	require.Equal(t, nethttp.StatusCreated, code)

	code, out := a.do("POST", "/discussions/course/"+courseID, stu, map[string]string{"title": "Stuck", "content": "help"})
	require.Equal(t, nethttp.StatusCreated, code, out.Message)
	d := decodeData[discussion.Discussion](t, out)

	code, out = a.do("PUT", "/discussions/"+d.ID+"/upvote", stu, nil)
	require.Equal(t, nethttp.StatusOK, code)
	assert.Equal(t, 1, decodeData[map[string]int](t, out)["upvotes"])

	code, _ = a.do("PUT", "/discussions/"+d.ID+"/resolve", stu, nil)
	assert.Equal(t, nethttp.StatusForbidden, code)
	code, out = a.do("POST", "/discussions/"+d.ID+"/replies", teach, map[string]string{"content": "try this"})
	require.Equal(t, nethttp.StatusCreated, code, out.Message)
	code, out = a.do("PUT", "/discussions/"+d.ID+"/resolve", teach, nil)
	require.Equal(t, nethttp.StatusOK, code)
	assert.True(t, decodeData[discussion.Discussion](t, out).IsResolved)

	code, _ = a.do("POST", "/announcements/course/"+courseID, stu, map[string]string{"title": "x", "content": "y"})
	assert.Equal(t, nethttp.StatusForbidden, code)
	code, out = a.do("POST", "/announcements/course/"+courseID, teach, map[string]string{"title": "Welcome", "content": "hi"})
	require.Equal(t, nethttp.StatusCreated, code, out.Message)
	code, out = a.do("GET", "/announcements/course/"+courseID, stu, nil)
	require.Equal(t, nethttp.StatusOK, code)
	assert.Equal(t, 1, out.Count)
}

package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/coursetrack/internal/apperr"
	"github.com/mind-engage/coursetrack/internal/db"
)

type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLStore(dbh *sql.DB) *SQLStore {
	return &SQLStore{db: dbh, now: time.Now}
}

const courseCols = `c.id, c.title, c.slug, c.description, c.category, c.instructor_id, c.price,
	c.is_published, c.difficulty, c.average_rating, c.created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanCourse(row scanner) (Course, error) {
	var c Course
	var created int64
	err := row.Scan(&c.ID, &c.Title, &c.Slug, &c.Description, &c.Category, &c.InstructorID, &c.Price,
		&c.IsPublished, &c.Difficulty, &c.AverageRating, &created)
	if err != nil {
		return Course{}, err
	}
	c.CreatedAt = db.FromMillis(created)
	return c, nil
}

func (s *SQLStore) CreateCourse(ctx context.Context, c Course) (Course, error) {
	if err := c.Validate(); err != nil {
		return Course{}, err
	}
	if c.InstructorID == "" {
		return Course{}, apperr.InvalidInput("instructor required")
	}
	c.ID = uuid.NewString()
	c.CreatedAt = s.now().UTC()
	c.AverageRating = 0
	_, err := s.db.ExecContext(ctx, `INSERT INTO courses
		(id,title,slug,description,category,instructor_id,price,is_published,difficulty,average_rating,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,0,$10)`,
		c.ID, c.Title, c.Slug, c.Description, c.Category, c.InstructorID, c.Price, c.IsPublished, c.Difficulty,
		db.Millis(c.CreatedAt))
	if err != nil {
		return Course{}, fmt.Errorf("insert course: %w", err)
	}
	return c, nil
}

func (s *SQLStore) UpdateCourse(ctx context.Context, c Course) (Course, error) {
	if err := c.Validate(); err != nil {
		return Course{}, err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE courses
		SET title=$1, slug=$2, description=$3, category=$4, price=$5, is_published=$6, difficulty=$7
		WHERE id=$8`,
		c.Title, c.Slug, c.Description, c.Category, c.Price, c.IsPublished, c.Difficulty, c.ID)
	if err != nil {
		return Course{}, fmt.Errorf("update course: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Course{}, apperr.NotFound("course not found")
	}
	return s.GetCourse(ctx, c.ID)
}

func (s *SQLStore) DeleteCourse(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM courses WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("course not found")
	}
	return nil
}

func (s *SQLStore) GetCourse(ctx context.Context, id string) (Course, error) {
	c, err := scanCourse(s.db.QueryRowContext(ctx, `SELECT `+courseCols+` FROM courses c WHERE c.id=$1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Course{}, apperr.NotFound("course not found")
		}
		return Course{}, fmt.Errorf("get course: %w", err)
	}
	if c.Lessons, err = s.lessons(ctx, id); err != nil {
		return Course{}, err
	}
	if c.Quizzes, err = s.quizzes(ctx, `WHERE course_id=$1`, id); err != nil {
		return Course{}, err
	}
	if c.Assignments, err = s.assignments(ctx, id); err != nil {
		return Course{}, err
	}
	if c.Enrollments, err = s.enrollments(ctx, id); err != nil {
		return Course{}, err
	}
	if c.Ratings, err = s.ratings(ctx, id); err != nil {
		return Course{}, err
	}
	return c, nil
}

func (s *SQLStore) lessons(ctx context.Context, courseID string) ([]Lesson, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,course_id,title,description,content,content_type,video_url,duration,position
		FROM course_lessons WHERE course_id=$1 ORDER BY position, id`, courseID)
	if err != nil {
		return nil, fmt.Errorf("list lessons: %w", err)
	}
	defer rows.Close()
	out := []Lesson{}
	for rows.Next() {
		var l Lesson
		if err := rows.Scan(&l.ID, &l.CourseID, &l.Title, &l.Description, &l.Content, &l.ContentType,
			&l.VideoURL, &l.Duration, &l.Order); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *SQLStore) quizzes(ctx context.Context, where string, arg string) ([]Quiz, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,course_id,title,description,questions_json,passing_score,
		time_limit_min,max_attempts,position FROM course_quizzes `+where+` ORDER BY position, id`, arg)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	defer rows.Close()
	out := []Quiz{}
	for rows.Next() {
		var q Quiz
		var qjson string
		if err := rows.Scan(&q.ID, &q.CourseID, &q.Title, &q.Description, &qjson, &q.PassingScore,
			&q.TimeLimitMin, &q.MaxAttempts, &q.Order); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(qjson), &q.Questions); err != nil {
			return nil, fmt.Errorf("quiz %s questions: %w", q.ID, err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *SQLStore) assignments(ctx context.Context, courseID string) ([]Assignment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,course_id,title,description,due_at,max_score,position
		FROM course_assignments WHERE course_id=$1 ORDER BY position, id`, courseID)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()
	out := []Assignment{}
	for rows.Next() {
		var a Assignment
		var due sql.NullInt64
		if err := rows.Scan(&a.ID, &a.CourseID, &a.Title, &a.Description, &due, &a.MaxScore, &a.Order); err != nil {
			return nil, err
		}
		a.DueAt = db.TimePtr(due)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLStore) enrollments(ctx context.Context, courseID string) ([]Enrollment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT student_id, enrolled_at FROM enrollments
		WHERE course_id=$1 ORDER BY enrolled_at, student_id`, courseID)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	defer rows.Close()
	out := []Enrollment{}
	for rows.Next() {
		var e Enrollment
		var at int64
		if err := rows.Scan(&e.StudentID, &at); err != nil {
			return nil, err
		}
		e.EnrolledAt = db.FromMillis(at)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLStore) ratings(ctx context.Context, courseID string) ([]Rating, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, rating, review, created_at FROM course_ratings
		WHERE course_id=$1 ORDER BY created_at`, courseID)
	if err != nil {
		return nil, fmt.Errorf("list ratings: %w", err)
	}
	defer rows.Close()
	out := []Rating{}
	for rows.Next() {
		var r Rating
		var at int64
		if err := rows.Scan(&r.UserID, &r.Rating, &r.Review, &at); err != nil {
			return nil, err
		}
		r.CreatedAt = db.FromMillis(at)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStore) ListCourses(ctx context.Context, opts ListOpts) ([]Course, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	from := `FROM courses c`
	if opts.StudentID != "" {
		from += ` JOIN enrollments e ON e.course_id=c.id AND e.student_id=` + arg(opts.StudentID)
	}
	if opts.InstructorID != "" {
		where = append(where, `c.instructor_id=`+arg(opts.InstructorID))
	}
	if !opts.Unpublished {
		where = append(where, `c.is_published=`+arg(true))
	}
	if q := strings.ToLower(strings.TrimSpace(opts.Q)); q != "" {
		where = append(where, `LOWER(c.title) LIKE '%' || `+arg(q)+` || '%'`)
	}
	if opts.Category != "" {
		where = append(where, `c.category=`+arg(opts.Category))
	}

	order := `c.created_at DESC`
	switch opts.Sort {
	case "rating":
		order = `c.average_rating DESC, c.created_at DESC`
	case "title":
		order = `c.title ASC`
	}

	sqlStr := `SELECT ` + courseCols + ` ` + from
	if len(where) > 0 {
		sqlStr += ` WHERE ` + strings.Join(where, ` AND `)
	}
	sqlStr += ` ORDER BY ` + order + ` LIMIT ` + arg(limit) + ` OFFSET ` + arg(offset)

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	defer rows.Close()
	out := []Course{}
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLStore) courseExists(ctx context.Context, id string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM courses WHERE id=$1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound("course not found")
	}
	return err
}

func (s *SQLStore) nextPosition(ctx context.Context, table, courseID string) (int, error) {
	var pos int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position),0)+1 FROM `+table+` WHERE course_id=$1`, courseID).Scan(&pos)
	return pos, err
}

func (s *SQLStore) AddLesson(ctx context.Context, courseID string, l Lesson) (Lesson, error) {
	if err := s.courseExists(ctx, courseID); err != nil {
		return Lesson{}, err
	}
	if strings.TrimSpace(l.Title) == "" {
		return Lesson{}, apperr.InvalidInput("lesson title required")
	}
	switch l.ContentType {
	case "":
		l.ContentType = "text"
	case "video", "pdf", "text":
	default:
		return Lesson{}, apperr.InvalidInput("unknown content type %q", l.ContentType)
	}
	if l.Order <= 0 {
		pos, err := s.nextPosition(ctx, "course_lessons", courseID)
		if err != nil {
			return Lesson{}, err
		}
		l.Order = pos
	}
	l.ID = uuid.NewString()
	l.CourseID = courseID
	_, err := s.db.ExecContext(ctx, `INSERT INTO course_lessons
		(id,course_id,title,description,content,content_type,video_url,duration,position)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		l.ID, l.CourseID, l.Title, l.Description, l.Content, l.ContentType, l.VideoURL, l.Duration, l.Order)
	if err != nil {
		return Lesson{}, fmt.Errorf("insert lesson: %w", err)
	}
	return l, nil
}

func (s *SQLStore) AddAssignment(ctx context.Context, courseID string, a Assignment) (Assignment, error) {
	if err := s.courseExists(ctx, courseID); err != nil {
		return Assignment{}, err
	}
	if strings.TrimSpace(a.Title) == "" {
		return Assignment{}, apperr.InvalidInput("assignment title required")
	}
	if a.MaxScore <= 0 {
		a.MaxScore = 100
	}
	if a.Order <= 0 {
		pos, err := s.nextPosition(ctx, "course_assignments", courseID)
		if err != nil {
			return Assignment{}, err
		}
		a.Order = pos
	}
	a.ID = uuid.NewString()
	a.CourseID = courseID
	_, err := s.db.ExecContext(ctx, `INSERT INTO course_assignments
		(id,course_id,title,description,due_at,max_score,position) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		a.ID, a.CourseID, a.Title, a.Description, db.NullMillis(a.DueAt), a.MaxScore, a.Order)
	if err != nil {
		return Assignment{}, fmt.Errorf("insert assignment: %w", err)
	}
	return a, nil
}

func quizDefaults(q *Quiz) {
	if q.Questions == nil {
		q.Questions = []Question{}
	}
	if q.TimeLimitMin <= 0 {
		q.TimeLimitMin = 30
	}
	if q.MaxAttempts <= 0 {
		q.MaxAttempts = 3
	}
}

func (s *SQLStore) AddQuiz(ctx context.Context, courseID string, q Quiz) (Quiz, error) {
	if err := s.courseExists(ctx, courseID); err != nil {
		return Quiz{}, err
	}
	quizDefaults(&q)
	if err := q.Validate(); err != nil {
		return Quiz{}, err
	}
	if q.Order <= 0 {
		pos, err := s.nextPosition(ctx, "course_quizzes", courseID)
		if err != nil {
			return Quiz{}, err
		}
		q.Order = pos
	}
	qj, err := json.Marshal(q.Questions)
	if err != nil {
		return Quiz{}, err
	}
	q.ID = uuid.NewString()
	q.CourseID = courseID
	_, err = s.db.ExecContext(ctx, `INSERT INTO course_quizzes
		(id,course_id,title,description,questions_json,passing_score,time_limit_min,max_attempts,position)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		q.ID, q.CourseID, q.Title, q.Description, string(qj), q.PassingScore, q.TimeLimitMin, q.MaxAttempts, q.Order)
	if err != nil {
		return Quiz{}, fmt.Errorf("insert quiz: %w", err)
	}
	return q, nil
}

func (s *SQLStore) GetQuiz(ctx context.Context, id string) (Quiz, error) {
	qs, err := s.quizzes(ctx, `WHERE id=$1`, id)
	if err != nil {
		return Quiz{}, err
	}
	if len(qs) == 0 {
		return Quiz{}, apperr.NotFound("quiz not found")
	}
	return qs[0], nil
}

func (s *SQLStore) UpdateQuiz(ctx context.Context, q Quiz) (Quiz, error) {
	quizDefaults(&q)
	if err := q.Validate(); err != nil {
		return Quiz{}, err
	}
	qj, err := json.Marshal(q.Questions)
	if err != nil {
		return Quiz{}, err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE course_quizzes
		SET title=$1, description=$2, questions_json=$3, passing_score=$4, time_limit_min=$5, max_attempts=$6
		WHERE id=$7`,
		q.Title, q.Description, string(qj), q.PassingScore, q.TimeLimitMin, q.MaxAttempts, q.ID)
	if err != nil {
		return Quiz{}, fmt.Errorf("update quiz: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Quiz{}, apperr.NotFound("quiz not found")
	}
	return s.GetQuiz(ctx, q.ID)
}

func (s *SQLStore) DeleteQuiz(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM course_quizzes WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete quiz: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("quiz not found")
	}
	return nil
}

func (s *SQLStore) Enroll(ctx context.Context, courseID, studentID string) error {
	if err := s.courseExists(ctx, courseID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO enrollments (course_id, student_id, enrolled_at) VALUES ($1,$2,$3)`,
		courseID, studentID, db.Millis(s.now()))
	if db.IsUniqueViolation(err) {
		return apperr.Conflict("user already enrolled in this course")
	}
	if err != nil {
		return fmt.Errorf("enroll: %w", err)
	}
	return nil
}

func (s *SQLStore) Rate(ctx context.Context, courseID string, r Rating) (float64, error) {
	if r.Rating < 1 || r.Rating > 5 {
		return 0, apperr.InvalidInput("rating must be between 1 and 5")
	}
	if err := s.courseExists(ctx, courseID); err != nil {
		return 0, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO course_ratings (course_id,user_id,rating,review,created_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (course_id, user_id) DO UPDATE SET rating=EXCLUDED.rating, review=EXCLUDED.review`,
		courseID, r.UserID, r.Rating, r.Review, db.Millis(s.now())); err != nil {
		return 0, fmt.Errorf("upsert rating: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `SELECT rating FROM course_ratings WHERE course_id=$1`, courseID)
	if err != nil {
		return 0, err
	}
	var all []Rating
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return 0, err
		}
		all = append(all, Rating{Rating: v})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	avg := AverageRating(all)
	if _, err := tx.ExecContext(ctx, `UPDATE courses SET average_rating=$1 WHERE id=$2`, avg, courseID); err != nil {
		return 0, err
	}
	return avg, tx.Commit()
}

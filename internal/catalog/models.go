package catalog

import (
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/mind-engage/coursetrack/internal/apperr"
)

var Categories = []string{"Business", "Technology", "Design", "Marketing", "Other"}

var Difficulties = []string{"Beginner", "Intermediate", "Advanced"}

type Lesson struct {
	ID          string `json:"id"`
	CourseID    string `json:"course_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Content     string `json:"content,omitempty"`
	ContentType string `json:"content_type"` // video|pdf|text
	VideoURL    string `json:"video_url,omitempty"`
	Duration    int    `json:"duration"` // minutes
	Order       int    `json:"order"`
}

type Question struct {
	Prompt        string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correct_answer"`
	Explanation   string   `json:"explanation,omitempty"`
}

type Quiz struct {
	ID           string     `json:"id"`
	CourseID     string     `json:"course_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Questions    []Question `json:"questions"`
	PassingScore float64    `json:"passing_score"`
	TimeLimitMin int        `json:"time_limit_min"`
	MaxAttempts  int        `json:"max_attempts"`
	Order        int        `json:"order"`
}

// LearnerQuestion is a question without its answer key.
type LearnerQuestion struct {
	Prompt  string   `json:"question"`
	Options []string `json:"options"`
}

type LearnerQuiz struct {
	ID           string            `json:"id"`
	CourseID     string            `json:"course_id"`
	Title        string            `json:"title"`
	Description  string            `json:"description"`
	Questions    []LearnerQuestion `json:"questions"`
	PassingScore float64           `json:"passing_score"`
	TimeLimitMin int               `json:"time_limit_min"`
	MaxAttempts  int               `json:"max_attempts"`
}

// ForLearner hides answer keys and explanations.
func (q Quiz) ForLearner() LearnerQuiz {
	out := LearnerQuiz{
		ID:           q.ID,
		CourseID:     q.CourseID,
		Title:        q.Title,
		Description:  q.Description,
		PassingScore: q.PassingScore,
		TimeLimitMin: q.TimeLimitMin,
		MaxAttempts:  q.MaxAttempts,
		Questions:    make([]LearnerQuestion, 0, len(q.Questions)),
	}
	for _, qq := range q.Questions {
		out.Questions = append(out.Questions, LearnerQuestion{Prompt: qq.Prompt, Options: qq.Options})
	}
	return out
}

// Validate checks the answer key against the options and the passing score range.
func (q Quiz) Validate() error {
	if strings.TrimSpace(q.Title) == "" {
		return apperr.InvalidInput("quiz title required")
	}
	if q.PassingScore < 0 || q.PassingScore > 100 {
		return apperr.InvalidInput("passing score must be within [0,100], got %v", q.PassingScore)
	}
	for i, qq := range q.Questions {
		if len(qq.Options) < 2 {
			return apperr.InvalidInput("question %d needs at least two options", i)
		}
		if qq.CorrectAnswer < 0 || qq.CorrectAnswer >= len(qq.Options) {
			return apperr.InvalidInput("question %d: correct answer %d out of range", i, qq.CorrectAnswer)
		}
	}
	return nil
}

type Assignment struct {
	ID          string     `json:"id"`
	CourseID    string     `json:"course_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	MaxScore    float64    `json:"max_score"`
	Order       int        `json:"order"`
}

type Enrollment struct {
	StudentID  string    `json:"student_id"`
	EnrolledAt time.Time `json:"enrolled_at"`
}

type Rating struct {
	UserID    string    `json:"user_id"`
	Rating    int       `json:"rating"`
	Review    string    `json:"review,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Course struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Slug          string    `json:"slug"`
	Description   string    `json:"description"`
	Category      string    `json:"category"`
	InstructorID  string    `json:"instructor_id"`
	Price         float64   `json:"price"`
	IsPublished   bool      `json:"is_published"`
	Difficulty    string    `json:"difficulty"`
	AverageRating float64   `json:"average_rating"`
	CreatedAt     time.Time `json:"created_at"`

	Lessons     []Lesson     `json:"lessons,omitempty"`
	Quizzes     []Quiz       `json:"quizzes,omitempty"`
	Assignments []Assignment `json:"assignments,omitempty"`
	Enrollments []Enrollment `json:"enrollments,omitempty"`
	Ratings     []Rating     `json:"ratings,omitempty"`
}

func (c Course) IsEnrolled(userID string) bool {
	for _, e := range c.Enrollments {
		if e.StudentID == userID {
			return true
		}
	}
	return false
}

func (c Course) Quiz(id string) (Quiz, bool) {
	for _, q := range c.Quizzes {
		if q.ID == id {
			return q, true
		}
	}
	return Quiz{}, false
}

func (c Course) Assignment(id string) (Assignment, bool) {
	for _, a := range c.Assignments {
		if a.ID == id {
			return a, true
		}
	}
	return Assignment{}, false
}

// Outline is the read-only snapshot the progress engine seeds records from.
type Outline struct {
	CourseID    string
	Lessons     []LessonRef
	Quizzes     []QuizRef
	Assignments []AssignmentRef
}

type LessonRef struct {
	ID    string
	Order int
}

type QuizRef struct {
	ID           string
	Questions    []Question
	PassingScore float64
}

type AssignmentRef struct {
	ID       string
	MaxScore float64
}

func (c Course) Outline() Outline {
	o := Outline{CourseID: c.ID}
	for _, l := range c.Lessons {
		o.Lessons = append(o.Lessons, LessonRef{ID: l.ID, Order: l.Order})
	}
	for _, q := range c.Quizzes {
		o.Quizzes = append(o.Quizzes, QuizRef{ID: q.ID, Questions: q.Questions, PassingScore: q.PassingScore})
	}
	for _, a := range c.Assignments {
		o.Assignments = append(o.Assignments, AssignmentRef{ID: a.ID, MaxScore: a.MaxScore})
	}
	return o
}

// Validate enforces id uniqueness within each list.
func (o Outline) Validate() error {
	seen := map[string]bool{}
	check := func(kind, id string) error {
		k := kind + ":" + id
		if seen[k] {
			return apperr.InvalidInput("duplicate %s id %q in course %s", kind, id, o.CourseID)
		}
		seen[k] = true
		return nil
	}
	for _, l := range o.Lessons {
		if err := check("lesson", l.ID); err != nil {
			return err
		}
	}
	for _, q := range o.Quizzes {
		if err := check("quiz", q.ID); err != nil {
			return err
		}
	}
	for _, a := range o.Assignments {
		if err := check("assignment", a.ID); err != nil {
			return err
		}
	}
	return nil
}

var (
	slugStrip = regexp.MustCompile(`[^\w ]+`)
	slugSpace = regexp.MustCompile(` +`)
)

func Slugify(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = slugStrip.ReplaceAllString(s, "")
	return slugSpace.ReplaceAllString(s, "-")
}

// AverageRating rounds to one decimal; an unrated course averages 0.
func AverageRating(ratings []Rating) float64 {
	if len(ratings) == 0 {
		return 0
	}
	sum := 0
	for _, r := range ratings {
		sum += r.Rating
	}
	return math.Round(float64(sum)/float64(len(ratings))*10) / 10
}

func validCategory(c string) bool {
	for _, k := range Categories {
		if k == c {
			return true
		}
	}
	return false
}

func validDifficulty(d string) bool {
	for _, k := range Difficulties {
		if k == d {
			return true
		}
	}
	return false
}

// Validate normalizes defaults and rejects malformed courses.
func (c *Course) Validate() error {
	c.Title = strings.TrimSpace(c.Title)
	if c.Title == "" {
		return apperr.InvalidInput("please add a title")
	}
	if len(c.Title) > 100 {
		return apperr.InvalidInput("title cannot be more than 100 characters")
	}
	if c.Category == "" {
		c.Category = "Other"
	}
	if !validCategory(c.Category) {
		return apperr.InvalidInput("unknown category %q", c.Category)
	}
	if c.Difficulty == "" {
		c.Difficulty = "Beginner"
	}
	if !validDifficulty(c.Difficulty) {
		return apperr.InvalidInput("unknown difficulty %q", c.Difficulty)
	}
	if c.Price < 0 {
		return apperr.InvalidInput("price cannot be negative")
	}
	c.Slug = Slugify(c.Title)
	return nil
}

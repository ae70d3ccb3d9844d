package models

import (
	"time"

	"github.com/google/uuid"
)

// Role names. They are rows in the roles table, created by provisioning.
const (
	RoleTeacher = "Teacher"
	RoleStudent = "Student"
)

// Exam types
const (
	ExamTypeQuiz = "Quiz"
	ExamTypeExam = "Exam"
)

// User is an account holder, teacher or student.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// FullName returns "First Last", or the username when no name was given.
func (u User) FullName() string {
	name := u.FirstName
	if u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += u.LastName
	}
	if name == "" {
		return u.Username
	}
	return name
}

// Course is a named collection of exams owned by one teacher.
type Course struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	TeacherID   int64     `json:"teacher_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Exam is a timed set of questions with a unique lookup code.
type Exam struct {
	ID          int64         `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	CourseID    int64         `json:"course_id"`
	CreatedAt   time.Time     `json:"created_at"`
	Duration    time.Duration `json:"duration"`
	ExamType    string        `json:"exam_type"`
	Code        uuid.UUID     `json:"code"`

	// Filled by listing queries.
	CourseName string `json:"course_name,omitempty"`
	TeacherID  int64  `json:"teacher_id,omitempty"`
}

// Question belongs to an exam and has one or more choices.
type Question struct {
	ID               int64    `json:"id"`
	ExamID           int64    `json:"exam_id"`
	QuestionText     string   `json:"question_text"`
	ExplanationText  string   `json:"explanation_text"`
	ExplanationVideo *string  `json:"explanation_video"`
	Choices          []Choice `json:"choices,omitempty"`
}

// CorrectChoice returns the first choice flagged correct.
func (q Question) CorrectChoice() (Choice, bool) {
	for _, c := range q.Choices {
		if c.IsCorrect {
			return c, true
		}
	}
	return Choice{}, false
}

// Choice looks up one of the question's choices by ID.
func (q Question) Choice(id int64) (Choice, bool) {
	for _, c := range q.Choices {
		if c.ID == id {
			return c, true
		}
	}
	return Choice{}, false
}

// Choice is one selectable option of a question.
type Choice struct {
	ID         int64  `json:"id"`
	QuestionID int64  `json:"question_id"`
	ChoiceText string `json:"choice_text"`
	IsCorrect  bool   `json:"is_correct"`
}

// UserAnswer is a student's current selection for one question. ChoiceID is nil while unanswered.
type UserAnswer struct {
	ID         int64  `json:"id"`
	UserID     int64  `json:"user_id"`
	QuestionID int64  `json:"question_id"`
	ChoiceID   *int64 `json:"choice_id"`
}

// Answered reports whether a choice is recorded.
func (a UserAnswer) Answered() bool {
	return a.ChoiceID != nil
}

// AnswerInterval is one contiguous span spent on a question. EndTime is nil while open.
type AnswerInterval struct {
	ID           int64      `json:"id"`
	UserAnswerID int64      `json:"user_answer_id"`
	StartTime    time.Time  `json:"start_time"`
	EndTime      *time.Time `json:"end_time"`
}

// Duration of a closed interval; open intervals count zero.
func (i AnswerInterval) Duration() time.Duration {
	if i.EndTime == nil {
		return 0
	}
	return i.EndTime.Sub(i.StartTime)
}

// ExamResult is the finalized outcome of one student's attempt at an exam.
type ExamResult struct {
	ID                  int64     `json:"id"`
	ExamID              int64     `json:"exam_id"`
	UserID              int64     `json:"user_id"`
	Score               int       `json:"score"`
	TotalQuestions      int       `json:"total_questions"`
	Percentage          float64   `json:"percentage"`
	UnansweredQuestions int       `json:"unanswered_questions"`
	IncorrectAnswers    int       `json:"incorrect_answers"`
	AnsweredAt          time.Time `json:"answered_at"`
	StartTime           time.Time `json:"start_time"`
	EndTime             time.Time `json:"end_time"`
	Submitted           bool      `json:"submitted"`
	TimeUp              bool      `json:"time_up"`

	// Filled by listing queries.
	ExamName   string `json:"exam_name,omitempty"`
	CourseName string `json:"course_name,omitempty"`
	Username   string `json:"username,omitempty"`
}

// TotalTime is the wall time between start and end of the attempt.
func (r ExamResult) TotalTime() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// AuditEvent is one row of the teacher action log.
type AuditEvent struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Actor     string    `json:"actor"`
	Target    string    `json:"target"`
	Notes     string    `json:"notes"`
}

// Page selects a window of a listing. Number is 1-based.
type Page struct {
	Number int
	Size   int
}

// Offset of the first row of the page.
func (p Page) Offset() int {
	if p.Number < 1 {
		return 0
	}
	return (p.Number - 1) * p.Size
}

// ExamFilter narrows exam listings.
type ExamFilter struct {
	TeacherID int64
	CourseID  int64 // 0 = all of the teacher's courses
	Search    string
}

// SignUpForm is the registration form.
type SignUpForm struct {
	FirstName string `form:"first_name" binding:"required,notblank"`
	LastName  string `form:"last_name" binding:"required,notblank"`
	Username  string `form:"username" binding:"required,notblank,max=150"`
	UserType  string `form:"user_type" binding:"required"`
	Email     string `form:"email" binding:"required,email"`
	Password1 string `form:"password1" binding:"required,min=8"`
	Password2 string `form:"password2" binding:"required,eqfield=Password1"`
}

// LoginForm is the login form.
type LoginForm struct {
	Username string `form:"username" binding:"required"`
	Password string `form:"password" binding:"required"`
}

// CourseForm creates or edits a course.
type CourseForm struct {
	Name        string `form:"name" binding:"required,notblank,max=100"`
	Description string `form:"description" binding:"required,notblank"`
}

// ExamForm creates or edits an exam. The duration comes from three numeric fields.
type ExamForm struct {
	Name        string `form:"name" binding:"required,notblank,max=100"`
	Description string `form:"description" binding:"required,notblank"`
	ExamType    string `form:"exam_type" binding:"required,oneof=Quiz Exam"`
	Hours       int    `form:"hours" binding:"min=0"`
	Minutes     int    `form:"minutes" binding:"min=0"`
	Seconds     int    `form:"seconds" binding:"min=0"`
}

// Duration assembles the form's time fields.
func (f ExamForm) Duration() time.Duration {
	return time.Duration(f.Hours)*time.Hour + time.Duration(f.Minutes)*time.Minute + time.Duration(f.Seconds)*time.Second
}

// ChoiceInput is one row of the question form.
type ChoiceInput struct {
	ID        int64 // 0 for a new choice
	Text      string
	IsCorrect bool
}

// QuestionInput is a parsed question form.
type QuestionInput struct {
	QuestionText     string
	ExplanationText  string
	ExplanationVideo string
	Choices          []ChoiceInput
	DeleteChoiceIDs  []int64
}

// TeacherStats are the counters on the teacher home page.
type TeacherStats struct {
	Courses   int
	Exams     int
	Questions int
	Results   int
}

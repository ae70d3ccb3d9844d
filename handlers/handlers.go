package handlers

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-contrib/multitemplate"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"exam-portal/apperrors"
	"exam-portal/exam"
	"exam-portal/logger"
	"exam-portal/middleware"
	"exam-portal/models"
	"exam-portal/session"
	"exam-portal/utils"
)

// Store is the persistence the handlers use.
type Store interface {
	exam.Repository

	ListRoles(ctx context.Context) ([]string, error)
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	SearchStudents(ctx context.Context, teacherID int64, query string) ([]models.User, error)

	CreateCourse(ctx context.Context, c *models.Course) error
	GetCourse(ctx context.Context, id int64) (*models.Course, error)
	UpdateCourse(ctx context.Context, c *models.Course) error
	DeleteCourse(ctx context.Context, id int64) error
	CountCourses(ctx context.Context, teacherID int64, search string) (int, error)
	ListCourses(ctx context.Context, teacherID int64, search string, page models.Page) ([]models.Course, error)

	CreateExam(ctx context.Context, e *models.Exam) error
	GetExamByCode(ctx context.Context, code uuid.UUID) (*models.Exam, error)
	UpdateExam(ctx context.Context, e *models.Exam) error
	DeleteExam(ctx context.Context, id int64) error
	CountExams(ctx context.Context, f models.ExamFilter) (int, error)
	ListExams(ctx context.Context, f models.ExamFilter, page models.Page) ([]models.Exam, error)

	CountQuestions(ctx context.Context, examID int64, search string) (int, error)
	SearchQuestions(ctx context.Context, examID int64, search string, page models.Page) ([]models.Question, error)
	CreateQuestion(ctx context.Context, q *models.Question) error
	UpdateQuestion(ctx context.Context, q *models.Question, deleteChoiceIDs []int64) error
	DeleteQuestion(ctx context.Context, id int64) error
	GetChoice(ctx context.Context, id int64) (*models.Choice, error)
	DeleteChoice(ctx context.Context, id int64) error

	ListExamResults(ctx context.Context, examID int64) ([]models.ExamResult, error)
	ListUserResults(ctx context.Context, userID, teacherID int64) ([]models.ExamResult, error)
	TeacherStats(ctx context.Context, teacherID int64) (models.TeacherStats, error)

	LogEvent(ctx context.Context, actor, action, target, notes string)
	ListEvents(ctx context.Context, actor string, limit int) ([]models.AuditEvent, error)
}

// App bundles what the handlers depend on.
type App struct {
	Store    Store
	Exams    *exam.Service
	Sessions *session.Manager
	Checker  *middleware.Checker
}

// Template names
const (
	pageHome          = "home"
	pageLogin         = "login"
	pageSignUp        = "sign_up"
	pageTeacherHome   = "teacher_home"
	pageCourseForm    = "course_form"
	pageCourseList    = "course_list"
	pageCourseDetail  = "course_detail"
	pageExamForm      = "exam_form"
	pageExamList      = "exam_list"
	pageQuestionList  = "question_list"
	pageQuestionForm  = "question_form"
	pageImport        = "question_import"
	pageAnswerExam    = "answer_exam"
	pageResult        = "result"
	pageExamResults   = "exam_results"
	pageStudentSearch = "student_search"
	pageStudentExams  = "student_exams"
	pageExamSearch    = "exam_search"
)

var pages = []string{
	pageHome, pageLogin, pageSignUp, pageTeacherHome, pageCourseForm, pageCourseList,
	pageCourseDetail, pageExamForm, pageExamList, pageQuestionList, pageQuestionForm,
	pageImport, pageAnswerExam, pageResult, pageExamResults, pageStudentSearch,
	pageStudentExams, pageExamSearch,
}

// TemplateFuncs are available in every page.
var TemplateFuncs = template.FuncMap{
	"duration": utils.FormatDuration,
	"clock":    utils.FormatClock,
	"seconds":  func(d time.Duration) int { return int(d.Seconds()) },
	"hasID":    utils.ContainsInt64,
	"selected": func(sel *int64, id int64) bool { return sel != nil && *sel == id },
	"add":      func(a, b int) int { return a + b },
	"str":      utils.StringValue,
	"date":     func(t time.Time) string { return t.Format("2006-01-02 15:04") },
}

// NewRenderer loads every page from dir, each combined with layout.html.
func NewRenderer(dir string) multitemplate.Renderer {
	r := multitemplate.NewRenderer()
	layout := filepath.Join(dir, "layout.html")
	for _, name := range pages {
		r.AddFromFilesFuncs(name, TemplateFuncs, layout, filepath.Join(dir, name+".html"))
	}
	return r
}

// render executes a page with the data every layout needs.
func render(c *gin.Context, status int, page string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	user, ok := middleware.CurrentUser(c)
	if ok {
		data["User"] = user
		data["IsTeacher"] = user.Role == models.RoleTeacher
	}
	data["Flashes"] = session.Get(c).PopFlashes()
	c.HTML(status, page, data)
}

func flash(c *gin.Context, level, message string) {
	session.AddFlash(c, level, message)
}

// fail turns an error into a flash message and a redirect. Validation and conflict
// errors go back to fallback, everything else goes home.
func fail(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		logger.Warn().Err(err).Str("path", c.Request.URL.Path).Msg("Not found")
		flash(c, session.FlashError, "The page you requested was not found.")
		c.Redirect(http.StatusFound, "/")
	case errors.Is(err, apperrors.ErrPermissionDenied):
		middleware.Deny(c)
	case errors.Is(err, apperrors.ErrValidation), errors.Is(err, apperrors.ErrConflict):
		flash(c, session.FlashError, apperrors.Message(err, "The request could not be completed."))
		c.Redirect(http.StatusFound, fallback)
	default:
		logger.Error().Err(err).Str("method", c.Request.Method).Str("path", c.Request.URL.Path).Msg("Request failed")
		flash(c, session.FlashError, "Something went wrong. Please try again.")
		c.Redirect(http.StatusFound, "/")
	}
	c.Abort()
}

// failJSON answers an AJAX request with {"status": "error"}.
func failJSON(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperrors.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, apperrors.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, apperrors.ErrPermissionDenied):
		status = http.StatusForbidden
	default:
		logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("Request failed")
	}
	c.AbortWithStatusJSON(status, gin.H{"status": "error", "message": apperrors.Message(err, http.StatusText(status))})
}

// paramID reads a positive ID from the route. A malformed ID is a not-found.
func paramID(c *gin.Context, name string) (int64, error) {
	id, err := utils.ParseID(c.Param(name))
	if err != nil {
		return 0, apperrors.NotFound(fmt.Sprintf("invalid %s", name))
	}
	return id, nil
}

// user returns the logged-in user. Routes using it sit behind RequireLogin.
func user(c *gin.Context) *models.User {
	u, _ := middleware.CurrentUser(c)
	return u
}

func audit(c *gin.Context, app *App, action, target, notes string) {
	app.Store.LogEvent(c.Request.Context(), user(c).Username, action, target, notes)
}

// NotFound sends unknown paths home.
func NotFound() gin.HandlerFunc {
	return func(c *gin.Context) {
		fail(c, apperrors.NotFound("no route for "+c.Request.URL.Path), "/")
	}
}

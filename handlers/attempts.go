package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"exam-portal/apperrors"
	"exam-portal/exam"
	"exam-portal/models"
	"exam-portal/session"
	"exam-portal/utils"
)

const examNotFound = "Exam not found. Please enter a valid code."

func resultPath(id int64) string {
	return fmt.Sprintf("/student-view-results/%d", id)
}

func pagePath(examID int64, page int) string {
	return fmt.Sprintf("/answer-exam/%d/%d", examID, page)
}

// examPage reads the route's exam ID and page number. The page defaults to 1.
func examPage(c *gin.Context) (int64, int, error) {
	examID, err := paramID(c, "exam_id")
	if err != nil {
		return 0, 0, err
	}
	raw := c.Param("page")
	if raw == "" {
		return examID, 1, nil
	}
	page, err := strconv.Atoi(raw)
	if err != nil {
		return 0, 0, apperrors.NotFound(fmt.Sprintf("invalid page %q", raw))
	}
	return examID, page, nil
}

// parseSubmission reads the question page form. The pressed button is one of next, back
// or submit; the answer field is "answer"; remaining_time is the browser countdown in
// whole seconds.
func parseSubmission(c *gin.Context) exam.Submission {
	var sub exam.Submission
	for _, a := range []exam.Action{exam.ActionSubmit, exam.ActionNext, exam.ActionBack} {
		if _, ok := c.GetPostForm(string(a)); ok {
			sub.Action = a
			break
		}
	}
	if sub.Action == exam.ActionNone {
		sub.Action = exam.Action(c.PostForm("action"))
	}
	if raw, ok := c.GetPostForm("answer"); ok {
		sub.AnswerPresent = true
		if id, err := utils.OptionalID(raw); err == nil {
			sub.ChoiceID = id
		}
	}
	if raw, ok := c.GetPostForm("remaining_time"); ok {
		if secs, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
			d := time.Duration(secs) * time.Second
			sub.ClientRemaining = &d
		}
	}
	return sub
}

// AnswerExamPage shows one question of an exam and starts timing it.
// GET /answer-exam/:exam_id/:page
func AnswerExamPage(app *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		examID, page, err := examPage(c)
		if err != nil {
			fail(c, err, "/")
			return
		}
		out, err := app.Exams.Enter(c.Request.Context(), user(c).ID, examID, page, session.Get(c))
		if err != nil {
			fail(c, err, "/")
			return
		}
		if out.ResultID != 0 {
			flash(c, session.FlashInfo, "You have already submitted this exam.")
			c.Redirect(http.StatusFound, resultPath(out.ResultID))
			return
		}
		v := out.View
		render(c, http.StatusOK, pageAnswerExam, gin.H{
			"Title":            v.Exam.Name,
			"View":             v,
			"RemainingSeconds": int(v.Remaining.Seconds()),
		})
	}
}

// AnswerExam records the answer on a question page and moves on.
// POST /answer-exam/:exam_id/:page
func AnswerExam(app *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		examID, page, err := examPage(c)
		if err != nil {
			fail(c, err, "/")
			return
		}
		out, err := app.Exams.Answer(c.Request.Context(), user(c).ID, examID, page, parseSubmission(c), session.Get(c))
		if err != nil {
			fail(c, err, pagePath(examID, page))
			return
		}
		switch {
		case out.ResultID != 0:
			c.Redirect(http.StatusFound, resultPath(out.ResultID))
		default:
			c.Redirect(http.StatusFound, pagePath(examID, out.RedirectPage))
		}
	}
}

// SaveAnswer stores a choice from the page navigator without leaving the page.
// POST /save-answer
func SaveAnswer(app *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		questionID, err := utils.ParseID(c.PostForm("question_id"))
		if err != nil {
			failJSON(c, apperrors.NotFound("question not found"))
			return
		}
		choiceID, err := utils.OptionalID(c.PostForm("choice_id"))
		if err != nil {
			failJSON(c, apperrors.NotFound("choice not found"))
			return
		}
		if err := app.Exams.SaveAnswer(c.Request.Context(), user(c).ID, questionID, choiceID, session.Get(c)); err != nil {
			failJSON(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "success"})
	}
}

// RemoveUnanswered drops a question from the session's unanswered list.
// POST /remove-unanswered-question
func RemoveUnanswered() gin.HandlerFunc {
	return func(c *gin.Context) {
		questionID, err := utils.ParseID(c.PostForm("question_id"))
		if err != nil {
			failJSON(c, apperrors.Validation("question_id is required"))
			return
		}
		exam.RemoveUnanswered(session.Get(c), questionID)
		c.JSON(http.StatusOK, gin.H{"status": "success"})
	}
}

// ExamSearch finds an exam by its code. A code that is not a UUID shows an empty list.
// GET /exam-search
func ExamSearch(app *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var exams []models.Exam
		raw, searched := c.GetQuery("search")
		raw = strings.TrimSpace(raw)
		if searched {
			e, err := findExam(app, c, raw)
			switch {
			case err == nil:
				exams = append(exams, *e)
			case apperrors.Is(err, apperrors.ErrNotFound, apperrors.ErrValidation):
				flash(c, session.FlashError, examNotFound)
			default:
				fail(c, err, "/exam-search")
				return
			}
		}
		render(c, http.StatusOK, pageExamSearch, gin.H{"Title": "Find an Exam", "Exams": exams, "Search": raw})
	}
}

func findExam(app *App, c *gin.Context, raw string) (*models.Exam, error) {
	code, err := uuid.Parse(raw)
	if err != nil {
		return nil, apperrors.Validation("malformed exam code")
	}
	return app.Store.GetExamByCode(c.Request.Context(), code)
}

// StudentResult shows a student their own result.
// GET /student-view-results/:result_id
func StudentResult(app *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := paramID(c, "result_id")
		if err != nil {
			fail(c, err, "/")
			return
		}
		view, err := app.Exams.Result(c.Request.Context(), id, false)
		if err != nil {
			fail(c, err, "/")
			return
		}
		if view.Result.UserID != user(c).ID {
			fail(c, apperrors.Forbidden("result belongs to another user"), "/")
			return
		}
		render(c, http.StatusOK, pageResult, gin.H{"Title": "Results: " + view.Exam.Name, "Result": view, "ShowTimes": false})
	}
}

// TeacherResult shows a result of the teacher's exam with the time spent per question.
// GET /teacher/exam-result/:result_id
func TeacherResult(app *App) gin.HandlerFunc {
	auth := authorizer{app.Store}
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		id, err := paramID(c, "result_id")
		if err != nil {
			fail(c, err, "/")
			return
		}
		r, err := auth.result(ctx, user(c), id)
		if err != nil {
			fail(c, err, "/")
			return
		}
		view, err := app.Exams.Result(ctx, r.ID, true)
		if err != nil {
			fail(c, err, "/")
			return
		}
		render(c, http.StatusOK, pageResult, gin.H{"Title": "Results: " + view.Exam.Name, "Result": view, "ShowTimes": true})
	}
}

// ExamResults lists every submitted attempt of an exam.
// GET /exam-results/:exam_id
func ExamResults(app *App) gin.HandlerFunc {
	auth := authorizer{app.Store}
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		id, err := paramID(c, "exam_id")
		if err != nil {
			fail(c, err, "/")
			return
		}
		e, err := auth.exam(ctx, user(c), id)
		if err != nil {
			fail(c, err, "/")
			return
		}
		results, err := app.Store.ListExamResults(ctx, e.ID)
		if err != nil {
			fail(c, err, "/")
			return
		}
		render(c, http.StatusOK, pageExamResults, gin.H{"Title": "Results of " + e.Name, "Exam": e, "Results": results})
	}
}

// StudentSearch finds students by username.
// GET /teacher/search-student
func StudentSearch(app *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		query := strings.TrimSpace(c.Query("search"))
		var students []models.User
		if query != "" {
			var err error
			students, err = app.Store.SearchStudents(c.Request.Context(), user(c).ID, query)
			if err != nil {
				fail(c, err, "/teacher-home")
				return
			}
		}
		render(c, http.StatusOK, pageStudentSearch, gin.H{"Title": "Find a Student", "Students": students, "Search": query})
	}
}

// StudentExams lists a student's results in the teacher's courses.
// GET /teacher/student-exams/:student_id
func StudentExams(app *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		id, err := paramID(c, "student_id")
		if err != nil {
			fail(c, err, "/")
			return
		}
		student, err := app.Store.GetUser(ctx, id)
		if err == nil && student.Role != models.RoleStudent {
			err = apperrors.NotFound("student not found")
		}
		if err != nil {
			fail(c, err, "/")
			return
		}
		results, err := app.Store.ListUserResults(ctx, student.ID, user(c).ID)
		if err != nil {
			fail(c, err, "/")
			return
		}
		render(c, http.StatusOK, pageStudentExams, gin.H{
			"Title":   "Exams of " + student.FullName(),
			"Student": student,
			"Results": results,
		})
	}
}

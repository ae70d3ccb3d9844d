package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"exam-portal/models"
	"exam-portal/session"
	"exam-portal/utils"
)

const zeroDuration = "Duration must be greater than zero."

func examFormData(title, action string, course *models.Course, form *models.ExamForm, errs []string) gin.H {
	return gin.H{
		"Title":     title,
		"Action":    action,
		"Course":    course,
		"Form":      form,
		"Errors":    errs,
		"ExamTypes": []string{models.ExamTypeQuiz, models.ExamTypeExam},
	}
}

// ExamNew shows the exam form for a course.
// GET /course/:course_id/teacher-exam
func ExamNew(app *App) gin.HandlerFunc {
	auth := authorizer{app.Store}
	return func(c *gin.Context) {
		id, err := paramID(c, "course_id")
		if err != nil {
			fail(c, err, "/")
			return
		}
		course, err := auth.course(c.Request.Context(), user(c), id)
		if err != nil {
			fail(c, err, "/")
			return
		}
		form := &models.ExamForm{ExamType: models.ExamTypeQuiz}
		render(c, http.StatusOK, pageExamForm, examFormData("New Exam", c.Request.URL.Path, course, form, nil))
	}
}

// ExamCreate stores an exam with a fresh code.
// POST /course/:course_id/teacher-exam
func ExamCreate(app *App) gin.HandlerFunc {
	auth := authorizer{app.Store}
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		id, err := paramID(c, "course_id")
		if err != nil {
			fail(c, err, "/")
			return
		}
		course, err := auth.course(ctx, user(c), id)
		if err != nil {
			fail(c, err, "/")
			return
		}
		var form models.ExamForm
		if err := c.ShouldBind(&form); err != nil {
			render(c, http.StatusBadRequest, pageExamForm, examFormData("New Exam", c.Request.URL.Path, course, &form, formErrors(err)))
			return
		}
		if form.Duration() <= 0 {
			render(c, http.StatusBadRequest, pageExamForm, examFormData("New Exam", c.Request.URL.Path, course, &form, []string{zeroDuration}))
			return
		}
		e := &models.Exam{
			Name:        strings.TrimSpace(form.Name),
			Description: strings.TrimSpace(form.Description),
			CourseID:    course.ID,
			Duration:    form.Duration(),
			ExamType:    form.ExamType,
		}
		if err := app.Store.CreateExam(ctx, e); err != nil {
			fail(c, err, c.Request.URL.Path)
			return
		}
		audit(c, app, "create_exam", fmt.Sprintf("exam:%d", e.ID), fmt.Sprintf("%s (%s)", e.Name, e.Code))
		flash(c, session.FlashSuccess, "Exam created.")
		c.Redirect(http.StatusFound, fmt.Sprintf("/course/%d/teacher-exam-list", course.ID))
	}
}

// listExams renders a filtered, paginated exam list.
func listExams(app *App, c *gin.Context, f models.ExamFilter, course *models.Course) {
	ctx := c.Request.Context()
	total, err := app.Store.CountExams(ctx, f)
	if err != nil {
		fail(c, err, "/")
		return
	}
	p := utils.NewPagination(total, utils.ParsePageNumber(c.Query("exam_page")), utils.ParsePageSize(c.Query("per_page")))
	exams, err := app.Store.ListExams(ctx, f, models.Page{Number: p.CurrentPage, Size: p.PageSize})
	if err != nil {
		fail(c, err, "/")
		return
	}
	title := "Exams"
	if course != nil {
		title = "Exams of " + course.Name
	}
	render(c, http.StatusOK, pageExamList, gin.H{
		"Title":      title,
		"Course":     course,
		"Exams":      exams,
		"Search":     f.Search,
		"Pagination": p,
	})
}

// ExamList lists a course's exams.
// GET /course/:course_id/teacher-exam-list
func ExamList(app *App) gin.HandlerFunc {
	auth := authorizer{app.Store}
	return func(c *gin.Context) {
		id, err := paramID(c, "course_id")
		if err != nil {
			fail(c, err, "/")
			return
		}
		course, err := auth.course(c.Request.Context(), user(c), id)
		if err != nil {
			fail(c, err, "/")
			return
		}
		listExams(app, c, models.ExamFilter{
			TeacherID: course.TeacherID,
			CourseID:  course.ID,
			Search:    strings.TrimSpace(c.Query("search")),
		}, course)
	}
}

// ExamSearchTeacher searches all of the teacher's exams.
// GET /search-teacher-exam-list
func ExamSearchTeacher(app *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		listExams(app, c, models.ExamFilter{
			TeacherID: user(c).ID,
			Search:    strings.TrimSpace(c.Query("search")),
		}, nil)
	}
}

// ExamEditPage shows the exam form filled in.
// GET /exam/:exam_id/edit
func ExamEditPage(app *App) gin.HandlerFunc {
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
		course, err := app.Store.GetCourse(ctx, e.CourseID)
		if err != nil {
			fail(c, err, "/")
			return
		}
		h, m, s := utils.SplitDuration(e.Duration)
		form := &models.ExamForm{
			Name: e.Name, Description: e.Description, ExamType: e.ExamType,
			Hours: h, Minutes: m, Seconds: s,
		}
		render(c, http.StatusOK, pageExamForm, examFormData("Edit Exam", c.Request.URL.Path, course, form, nil))
	}
}

// ExamUpdate saves the exam form. The code never changes.
// POST /exam/:exam_id/edit
func ExamUpdate(app *App) gin.HandlerFunc {
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
		course, err := app.Store.GetCourse(ctx, e.CourseID)
		if err != nil {
			fail(c, err, "/")
			return
		}
		var form models.ExamForm
		if err := c.ShouldBind(&form); err != nil {
			render(c, http.StatusBadRequest, pageExamForm, examFormData("Edit Exam", c.Request.URL.Path, course, &form, formErrors(err)))
			return
		}
		if form.Duration() <= 0 {
			render(c, http.StatusBadRequest, pageExamForm, examFormData("Edit Exam", c.Request.URL.Path, course, &form, []string{zeroDuration}))
			return
		}
		e.Name = strings.TrimSpace(form.Name)
		e.Description = strings.TrimSpace(form.Description)
		e.ExamType = form.ExamType
		e.Duration = form.Duration()
		if err := app.Store.UpdateExam(ctx, e); err != nil {
			fail(c, err, c.Request.URL.Path)
			return
		}
		audit(c, app, "update_exam", fmt.Sprintf("exam:%d", e.ID), e.Name)
		flash(c, session.FlashSuccess, "Exam updated.")
		c.Redirect(http.StatusFound, fmt.Sprintf("/course/%d/teacher-exam-list", e.CourseID))
	}
}

// ExamDelete removes an exam with its questions and results.
// POST /exam/:exam_id/delete
func ExamDelete(app *App) gin.HandlerFunc {
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
		if err := app.Store.DeleteExam(ctx, e.ID); err != nil {
			fail(c, err, fmt.Sprintf("/course/%d/teacher-exam-list", e.CourseID))
			return
		}
		audit(c, app, "delete_exam", fmt.Sprintf("exam:%d", e.ID), e.Name)
		flash(c, session.FlashSuccess, "Exam deleted.")
		c.Redirect(http.StatusFound, fmt.Sprintf("/course/%d/teacher-exam-list", e.CourseID))
	}
}

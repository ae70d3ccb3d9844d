package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"exam-portal/logger"
	"exam-portal/models"
	"exam-portal/session"
	"exam-portal/utils"
)

// TeacherHome renders the teacher dashboard with counters and recent activity.
// GET /teacher-home
func TeacherHome(app *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		u := user(c)
		stats, err := app.Store.TeacherStats(ctx, u.ID)
		if err != nil {
			fail(c, err, "/")
			return
		}
		events, err := app.Store.ListEvents(ctx, u.Username, 10)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to load recent activity")
		}
		render(c, http.StatusOK, pageTeacherHome, gin.H{
			"Title":        "Teacher Dashboard",
			"Stats":        stats,
			"RecentEvents": events,
		})
	}
}

// CourseNew shows the course form.
// GET /teacher-course
func CourseNew() gin.HandlerFunc {
	return func(c *gin.Context) {
		render(c, http.StatusOK, pageCourseForm, gin.H{"Title": "New Course", "Form": &models.CourseForm{}, "Action": "/teacher-course"})
	}
}

// CourseCreate stores a course for the current teacher.
// POST /teacher-course
func CourseCreate(app *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var form models.CourseForm
		if err := c.ShouldBind(&form); err != nil {
			render(c, http.StatusBadRequest, pageCourseForm, gin.H{
				"Title": "New Course", "Form": &form, "Action": "/teacher-course", "Errors": formErrors(err),
			})
			return
		}
		course := &models.Course{
			Name:        strings.TrimSpace(form.Name),
			Description: strings.TrimSpace(form.Description),
			TeacherID:   user(c).ID,
		}
		if err := app.Store.CreateCourse(c.Request.Context(), course); err != nil {
			fail(c, err, "/teacher-course")
			return
		}
		audit(c, app, "create_course", fmt.Sprintf("course:%d", course.ID), course.Name)
		flash(c, session.FlashSuccess, "Course created.")
		c.Redirect(http.StatusFound, "/course-list")
	}
}

// CourseList lists the teacher's courses with search and pagination.
// GET /course-list
func CourseList(app *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		u := user(c)
		search := strings.TrimSpace(c.Query("search"))

		total, err := app.Store.CountCourses(ctx, u.ID, search)
		if err != nil {
			fail(c, err, "/")
			return
		}
		p := utils.NewPagination(total, utils.ParsePageNumber(c.Query("course_page")), utils.ParsePageSize(c.Query("per_page")))
		courses, err := app.Store.ListCourses(ctx, u.ID, search, models.Page{Number: p.CurrentPage, Size: p.PageSize})
		if err != nil {
			fail(c, err, "/")
			return
		}
		render(c, http.StatusOK, pageCourseList, gin.H{
			"Title":      "Courses",
			"Courses":    courses,
			"Search":     search,
			"Pagination": p,
		})
	}
}

// CourseDetail shows one course with its exams.
// GET /course/:course_id
func CourseDetail(app *App) gin.HandlerFunc {
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
		exams, err := app.Store.ListExams(ctx, models.ExamFilter{TeacherID: course.TeacherID, CourseID: course.ID},
			models.Page{Number: 1, Size: utils.MaxPageSize})
		if err != nil {
			fail(c, err, "/course-list")
			return
		}
		render(c, http.StatusOK, pageCourseDetail, gin.H{"Title": course.Name, "Course": course, "Exams": exams})
	}
}

// CourseEditPage shows the course form filled in.
// GET /course/:course_id/edit
func CourseEditPage(app *App) gin.HandlerFunc {
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
		render(c, http.StatusOK, pageCourseForm, gin.H{
			"Title":  "Edit Course",
			"Form":   &models.CourseForm{Name: course.Name, Description: course.Description},
			"Action": fmt.Sprintf("/course/%d/edit", course.ID),
		})
	}
}

// CourseUpdate saves the course form.
// POST /course/:course_id/edit
func CourseUpdate(app *App) gin.HandlerFunc {
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
		action := fmt.Sprintf("/course/%d/edit", course.ID)
		var form models.CourseForm
		if err := c.ShouldBind(&form); err != nil {
			render(c, http.StatusBadRequest, pageCourseForm, gin.H{
				"Title": "Edit Course", "Form": &form, "Action": action, "Errors": formErrors(err),
			})
			return
		}
		course.Name = strings.TrimSpace(form.Name)
		course.Description = strings.TrimSpace(form.Description)
		if err := app.Store.UpdateCourse(ctx, course); err != nil {
			fail(c, err, action)
			return
		}
		audit(c, app, "update_course", fmt.Sprintf("course:%d", course.ID), course.Name)
		flash(c, session.FlashSuccess, "Course updated.")
		c.Redirect(http.StatusFound, "/course-list")
	}
}

// CourseDelete removes a course with everything under it.
// POST /course/:course_id/delete
func CourseDelete(app *App) gin.HandlerFunc {
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
		if err := app.Store.DeleteCourse(ctx, course.ID); err != nil {
			fail(c, err, "/course-list")
			return
		}
		audit(c, app, "delete_course", fmt.Sprintf("course:%d", course.ID), course.Name)
		flash(c, session.FlashSuccess, "Course deleted.")
		c.Redirect(http.StatusFound, "/course-list")
	}
}

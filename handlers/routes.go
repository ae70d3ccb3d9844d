package handlers

import (
	"github.com/gin-contrib/multitemplate"
	"github.com/gin-gonic/gin"

	"exam-portal/middleware"
)

// Router wires middleware and every page route. metrics may be nil; its exposition is
// served separately by MetricsRouter.
func Router(app *App, renderer multitemplate.Renderer, metrics *middleware.Metrics, loginLimiter *middleware.RateLimiter) *gin.Engine {
	router := gin.New()
	router.HTMLRender = renderer

	router.Use(gin.Recovery(), middleware.Logger())
	if metrics != nil {
		router.Use(metrics.Middleware())
	}
	router.Use(app.Sessions.Middleware(), middleware.LoadUser(app.Store))

	router.GET("/", Home(app))
	router.GET("/home", Home(app))
	router.GET("/sign-up", SignUpPage(app))
	router.POST("/sign-up", SignUp(app))
	router.GET("/login", LoginPage())
	router.POST("/login", loginLimiter.Middleware(LoginRateLimited()), Login(app))
	router.POST("/logout", Logout(app))

	authed := router.Group("/")
	authed.Use(middleware.RequireLogin())

	courses := authed.Group("/")
	courses.Use(app.Checker.Require(middleware.PermCourseManage))
	{
		courses.GET("/teacher-home", TeacherHome(app))
		courses.GET("/teacher-course", CourseNew())
		courses.POST("/teacher-course", CourseCreate(app))
		courses.GET("/course-list", CourseList(app))
		courses.GET("/course/:course_id", CourseDetail(app))
		courses.GET("/course/:course_id/edit", CourseEditPage(app))
		courses.POST("/course/:course_id/edit", CourseUpdate(app))
		courses.POST("/course/:course_id/delete", CourseDelete(app))
	}

	exams := authed.Group("/")
	exams.Use(app.Checker.Require(middleware.PermExamManage))
	{
		exams.GET("/course/:course_id/teacher-exam", ExamNew(app))
		exams.POST("/course/:course_id/teacher-exam", ExamCreate(app))
		exams.GET("/course/:course_id/teacher-exam-list", ExamList(app))
		exams.GET("/search-teacher-exam-list", ExamSearchTeacher(app))
		exams.GET("/exam/:exam_id/edit", ExamEditPage(app))
		exams.POST("/exam/:exam_id/edit", ExamUpdate(app))
		exams.POST("/exam/:exam_id/delete", ExamDelete(app))
	}

	questions := authed.Group("/")
	questions.Use(app.Checker.Require(middleware.PermQuestionManage))
	{
		questions.GET("/question-list/:exam_id", QuestionList(app))
		questions.GET("/teacher-exam/:exam_id/create-question", QuestionNew(app))
		questions.POST("/teacher-exam/:exam_id/create-question", QuestionCreate(app))
		questions.GET("/teacher-exam/:exam_id/import-questions", QuestionImportPage(app))
		questions.POST("/teacher-exam/:exam_id/import-questions", QuestionImport(app))
		questions.GET("/edit-exam/:exam_id/edit-question/:question_id", QuestionEditPage(app))
		questions.POST("/edit-exam/:exam_id/edit-question/:question_id", QuestionUpdate(app))
		questions.POST("/question/:question_id/delete", QuestionDelete(app))
		questions.POST("/delete-choice/:choice_id", ChoiceDelete(app))
	}

	results := authed.Group("/")
	results.Use(app.Checker.Require(middleware.PermResultViewAny))
	{
		results.GET("/exam-results/:exam_id", ExamResults(app))
		results.GET("/teacher/search-student", StudentSearch(app))
		results.GET("/teacher/student-exams/:student_id", StudentExams(app))
		results.GET("/teacher/exam-result/:result_id", TeacherResult(app))
	}

	taking := authed.Group("/")
	taking.Use(app.Checker.Require(middleware.PermExamTake))
	{
		taking.GET("/exam-search", ExamSearch(app))
		taking.GET("/answer-exam/:exam_id", AnswerExamPage(app))
		taking.POST("/answer-exam/:exam_id", AnswerExam(app))
		taking.GET("/answer-exam/:exam_id/:page", AnswerExamPage(app))
		taking.POST("/answer-exam/:exam_id/:page", AnswerExam(app))
		taking.POST("/save-answer", SaveAnswer(app))
		taking.POST("/remove-unanswered-question", RemoveUnanswered())
		taking.GET("/student-view-results/:result_id", StudentResult(app))
	}

	router.NoRoute(NotFound())
	return router
}

// MetricsRouter serves /metrics for the internal admin listener.
func MetricsRouter(metrics *middleware.Metrics) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/metrics", metrics.Handler())
	return router
}

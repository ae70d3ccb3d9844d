package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"

	"exam-portal/config"
	"exam-portal/db/dbtest"
	"exam-portal/exam"
	"exam-portal/middleware"
	"exam-portal/models"
	"exam-portal/session"
	"exam-portal/utils"
)

const (
	cookieName = "examportal_session"
	password   = "correct-horse-battery"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	utils.PasswordCost = bcrypt.MinCost
	if err := middleware.RegisterValidators(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type harness struct {
	t      *testing.T
	store  *dbtest.Memory
	router *gin.Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, nil)
}

func newHarnessWith(t *testing.T, metrics *middleware.Metrics) *harness {
	t.Helper()
	store := dbtest.New()
	sessions := session.NewManager(session.NewMemoryStore(), config.SessionConfig{
		SigningKey: "test-signing-key",
		Issuer:     "exam-portal",
		CookieName: cookieName,
		TTL:        time.Hour,
	})
	app := &App{
		Store:    store,
		Exams:    exam.NewService(store),
		Sessions: sessions,
		Checker:  middleware.NewChecker(nil),
	}
	router := Router(app, NewRenderer("../templates"), metrics, middleware.NewRateLimiter(100, time.Minute))
	return &harness{t: t, store: store, router: router}
}

// account creates a user who can log in with password.
func (h *harness) account(username, role string) models.User {
	h.t.Helper()
	hash, err := utils.HashPassword(password)
	if err != nil {
		h.t.Fatal(err)
	}
	u := models.User{Username: username, Email: username + "@school.example", FirstName: username, Role: role, PasswordHash: hash}
	if err := h.store.CreateUser(context.Background(), &u); err != nil {
		h.t.Fatal(err)
	}
	return u
}

// client is one browser: it carries the session cookie between requests.
type client struct {
	h      *harness
	cookie *http.Cookie
}

func (h *harness) client() *client { return &client{h: h} }

func (cl *client) send(req *http.Request) *httptest.ResponseRecorder {
	if cl.cookie != nil {
		req.AddCookie(cl.cookie)
	}
	w := httptest.NewRecorder()
	cl.h.router.ServeHTTP(w, req)
	for _, c := range w.Result().Cookies() {
		if c.Name == cookieName {
			cl.cookie = c
		}
	}
	return w
}

func (cl *client) get(path string) *httptest.ResponseRecorder {
	return cl.send(httptest.NewRequest(http.MethodGet, path, nil))
}

func (cl *client) post(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return cl.send(req)
}

func (cl *client) upload(path, field, filename, content string) *httptest.ResponseRecorder {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		cl.h.t.Fatal(err)
	}
	fw.Write([]byte(content))
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return cl.send(req)
}

func (cl *client) login(username string) {
	cl.h.t.Helper()
	w := cl.post("/login", url.Values{"username": {username}, "password": {password}})
	if w.Code != http.StatusFound {
		cl.h.t.Fatalf("login %s: status %d\n%s", username, w.Code, w.Body.String())
	}
}

func (h *harness) loggedIn(username string) *client {
	cl := h.client()
	cl.login(username)
	return cl
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

func expectRedirect(t *testing.T, w *httptest.ResponseRecorder, location string) {
	t.Helper()
	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302\n%s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Location"); got != location {
		t.Fatalf("Location = %q, want %q", got, location)
	}
}

func expectBody(t *testing.T, w *httptest.ResponseRecorder, status int, fragments ...string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d, want %d\n%s", w.Code, status, w.Body.String())
	}
	for _, f := range fragments {
		if !strings.Contains(w.Body.String(), f) {
			t.Errorf("body does not contain %q\n%s", f, w.Body.String())
		}
	}
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON %q: %v", w.Body.String(), err)
	}
	return body
}

func TestAnonymousRedirectedToLoginAndBack(t *testing.T) {
	h := newHarness(t)
	h.account("teach", models.RoleTeacher)
	cl := h.client()

	expectRedirect(t, cl.get("/course-list"), "/login?next=%2Fcourse-list")
	expectBody(t, cl.get("/login?next=%2Fcourse-list"), http.StatusOK, `name="next" value="/course-list"`)

	w := cl.post("/login", url.Values{"username": {"teach"}, "password": {password}})
	expectRedirect(t, w, "/course-list")
	expectBody(t, cl.get("/course-list"), http.StatusOK, "No courses found.")
}

func TestLoginRejectsBadPassword(t *testing.T) {
	h := newHarness(t)
	h.account("sam", models.RoleStudent)
	cl := h.client()

	w := cl.post("/login", url.Values{"username": {"sam"}, "password": {"wrong-password"}})
	expectBody(t, w, http.StatusUnauthorized, invalidLogin)
	w = cl.post("/login", url.Values{"username": {"nobody"}, "password": {password}})
	expectBody(t, w, http.StatusUnauthorized, invalidLogin)
}

func TestLoginIgnoresForeignNext(t *testing.T) {
	h := newHarness(t)
	h.account("sam", models.RoleStudent)
	cl := h.client()
	w := cl.post("/login", url.Values{"username": {"sam"}, "password": {password}, "next": {"//evil.example/"}})
	expectRedirect(t, w, "/")
}

func TestSignUp(t *testing.T) {
	h := newHarness(t)
	h.account("taken", models.RoleStudent)
	form := url.Values{
		"first_name": {"Ana"}, "last_name": {"Lopez"}, "username": {"ana"},
		"user_type": {models.RoleStudent}, "email": {"ana@school.example"},
		"password1": {"s3cret-pass"}, "password2": {"s3cret-pass"},
	}

	cl := h.client()
	expectRedirect(t, cl.post("/sign-up", form), "/")
	expectBody(t, cl.get("/"), http.StatusOK, "Your account has been created.", "Welcome, Ana Lopez.")

	dup := url.Values{}
	for k, v := range form {
		dup[k] = v
	}
	dup.Set("username", "ana2")
	dup.Set("email", "taken@school.example")
	expectBody(t, h.client().post("/sign-up", dup), http.StatusBadRequest, "Email is already registered")

	mismatch := url.Values{}
	for k, v := range form {
		mismatch[k] = v
	}
	mismatch.Set("username", "ana3")
	mismatch.Set("password2", "different-pass")
	expectBody(t, h.client().post("/sign-up", mismatch), http.StatusBadRequest, "The two password fields didn&#39;t match.")

	badRole := url.Values{}
	for k, v := range form {
		badRole[k] = v
	}
	badRole.Set("username", "ana4")
	badRole.Set("email", "ana4@school.example")
	badRole.Set("user_type", "Principal")
	expectBody(t, h.client().post("/sign-up", badRole), http.StatusBadRequest, "Select a valid account type.")
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	h.account("teach", models.RoleTeacher)
	cl := h.loggedIn("teach")

	expectRedirect(t, cl.post("/logout", nil), "/login")
	expectBody(t, cl.get("/login"), http.StatusOK, "You have been logged out.")
	expectRedirect(t, cl.get("/teacher-home"), "/login?next=%2Fteacher-home")
}

func TestLogoutRequiresPost(t *testing.T) {
	h := newHarness(t)
	h.account("teach", models.RoleTeacher)
	cl := h.loggedIn("teach")

	expectRedirect(t, cl.get("/logout"), "/")
	expectBody(t, cl.get("/teacher-home"), http.StatusOK, "Teacher Dashboard")
}

func TestMetricsOnlyOnAdminRouter(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := middleware.NewMetrics(reg, reg)
	h := newHarnessWith(t, metrics)

	expectRedirect(t, h.client().get("/metrics"), "/")

	w := httptest.NewRecorder()
	MetricsRouter(metrics).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	expectBody(t, w, http.StatusOK, "http_requests_total")
}

func TestStudentDeniedTeacherPages(t *testing.T) {
	h := newHarness(t)
	h.account("sam", models.RoleStudent)
	cl := h.loggedIn("sam")

	for _, path := range []string{"/teacher-home", "/teacher-course", "/course-list", "/teacher/search-student"} {
		expectRedirect(t, cl.get(path), "/")
		expectBody(t, cl.get("/"), http.StatusOK, middleware.DeniedMessage)
	}
}

func TestUnknownPathGoesHome(t *testing.T) {
	h := newHarness(t)
	cl := h.client()
	expectRedirect(t, cl.get("/no/such/page"), "/")
	expectBody(t, cl.get("/"), http.StatusOK, "The page you requested was not found.")
}

func TestCourseLifecycle(t *testing.T) {
	h := newHarness(t)
	teacher := h.account("teach", models.RoleTeacher)
	cl := h.loggedIn("teach")

	expectBody(t, cl.post("/teacher-course", url.Values{"name": {"  "}, "description": {"x"}}), http.StatusBadRequest, "Name is required.")

	expectRedirect(t, cl.post("/teacher-course", url.Values{"name": {"Biology"}, "description": {"Cells and more"}}), "/course-list")
	expectBody(t, cl.get("/course-list"), http.StatusOK, "Course created.", "Biology")

	courses, _ := h.store.ListCourses(context.Background(), teacher.ID, "", models.Page{Number: 1, Size: 10})
	if len(courses) != 1 {
		t.Fatalf("courses = %d", len(courses))
	}
	id := courses[0].ID
	path := "/course/" + itoa(id)

	expectRedirect(t, cl.post(path+"/edit", url.Values{"name": {"Biology II"}, "description": {"More cells"}}), "/course-list")
	expectBody(t, cl.get(path), http.StatusOK, "Biology II", "This course has no exams yet.")

	expectRedirect(t, cl.post(path+"/delete", nil), "/course-list")
	if _, err := h.store.GetCourse(context.Background(), id); err == nil {
		t.Error("course still exists")
	}

	var actions []string
	for _, e := range h.store.Events() {
		actions = append(actions, e.Action)
	}
	if strings.Join(actions, ",") != "create_course,update_course,delete_course" {
		t.Errorf("audit actions = %v", actions)
	}
}

func TestCourseListPagination(t *testing.T) {
	h := newHarness(t)
	teacher := h.account("teach", models.RoleTeacher)
	for i := 0; i < 3; i++ {
		h.store.AddCourse(t, teacher.ID, "Course "+itoa(int64(i)))
	}
	cl := h.loggedIn("teach")

	expectBody(t, cl.get("/course-list?per_page=2&course_page=abc"), http.StatusOK, "Page 1 of 2")
	expectBody(t, cl.get("/course-list?per_page=2&course_page=99"), http.StatusOK, "Page 2 of 2")
	expectBody(t, cl.get("/course-list?search=nothing-like-this"), http.StatusOK, "No courses found.")
}

func TestOtherTeachersRecordsAreDenied(t *testing.T) {
	h := newHarness(t)
	owner := h.account("owner", models.RoleTeacher)
	h.account("other", models.RoleTeacher)
	course := h.store.AddCourse(t, owner.ID, "Chemistry")
	e, qs := h.store.AddExam(t, course.ID, 10*time.Minute, 0)
	cl := h.loggedIn("other")

	for _, path := range []string{
		"/course/" + itoa(course.ID) + "/edit",
		"/exam/" + itoa(e.ID) + "/edit",
		"/question-list/" + itoa(e.ID),
		"/edit-exam/" + itoa(e.ID) + "/edit-question/" + itoa(qs[0].ID),
		"/exam-results/" + itoa(e.ID),
	} {
		expectRedirect(t, cl.get(path), "/")
	}
	w := cl.post("/delete-choice/"+itoa(qs[0].Choices[0].ID), nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("delete-choice status = %d", w.Code)
	}
}

func TestExamCreateAndEdit(t *testing.T) {
	h := newHarness(t)
	teacher := h.account("teach", models.RoleTeacher)
	course := h.store.AddCourse(t, teacher.ID, "Physics")
	cl := h.loggedIn("teach")
	base := "/course/" + itoa(course.ID)

	form := url.Values{"name": {"Midterm"}, "description": {"Forces"}, "exam_type": {models.ExamTypeExam}, "hours": {"0"}, "minutes": {"0"}, "seconds": {"0"}}
	expectBody(t, cl.post(base+"/teacher-exam", form), http.StatusBadRequest, zeroDuration)

	form.Set("minutes", "45")
	expectRedirect(t, cl.post(base+"/teacher-exam", form), base+"/teacher-exam-list")
	exams, _ := h.store.ListExams(context.Background(), models.ExamFilter{TeacherID: teacher.ID}, models.Page{Number: 1, Size: 10})
	if len(exams) != 1 || exams[0].Duration != 45*time.Minute {
		t.Fatalf("exams = %+v", exams)
	}
	e := exams[0]
	expectBody(t, cl.get(base+"/teacher-exam-list"), http.StatusOK, "Midterm", "45 minute(s)", e.Code.String())
	expectBody(t, cl.get("/search-teacher-exam-list?search=mid"), http.StatusOK, "Midterm")

	form.Set("name", "Final")
	form.Set("hours", "1")
	form.Set("minutes", "30")
	expectRedirect(t, cl.post("/exam/"+itoa(e.ID)+"/edit", form), base+"/teacher-exam-list")
	updated, _ := h.store.GetExam(context.Background(), e.ID)
	if updated.Name != "Final" || updated.Duration != 90*time.Minute || updated.Code != e.Code {
		t.Errorf("updated exam = %+v", updated)
	}
}

func TestQuestionRequiresCorrectChoice(t *testing.T) {
	h := newHarness(t)
	teacher := h.account("teach", models.RoleTeacher)
	course := h.store.AddCourse(t, teacher.ID, "History")
	e, _ := h.store.AddExam(t, course.ID, 10*time.Minute)
	cl := h.loggedIn("teach")
	path := "/teacher-exam/" + itoa(e.ID) + "/create-question"

	form := url.Values{
		"question_text":    {"Who crossed the Rubicon?"},
		"choices-0-text":   {"Caesar"},
		"choices-1-text":   {"Pompey"},
		"explanation_text": {"49 BC"},
	}
	expectBody(t, cl.post(path, form), http.StatusBadRequest, "Please mark at least one choice as correct.", "Pompey")
	if n, _ := h.store.CountQuestions(context.Background(), e.ID, ""); n != 0 {
		t.Fatalf("questions stored after rejected form: %d", n)
	}

	form.Set("choices-0-correct", "on")
	expectRedirect(t, cl.post(path, form), "/question-list/"+itoa(e.ID))
	qs, _ := h.store.ListQuestions(context.Background(), e.ID)
	if len(qs) != 1 || len(qs[0].Choices) != 2 || !qs[0].Choices[0].IsCorrect || qs[0].Choices[1].IsCorrect {
		t.Fatalf("stored questions = %+v", qs)
	}
	expectBody(t, cl.get("/question-list/"+itoa(e.ID)), http.StatusOK, "Who crossed the Rubicon?", "Caesar")
}

func TestQuestionEdit(t *testing.T) {
	h := newHarness(t)
	teacher := h.account("teach", models.RoleTeacher)
	course := h.store.AddCourse(t, teacher.ID, "Math")
	e, qs := h.store.AddExam(t, course.ID, 10*time.Minute, 0)
	q := qs[0]
	cl := h.loggedIn("teach")
	path := "/edit-exam/" + itoa(e.ID) + "/edit-question/" + itoa(q.ID)

	expectBody(t, cl.get(path), http.StatusOK, "Question 1", "Choice 3")

	// Keep choice 1 (still correct), rename choice 2, delete choice 3, add one.
	form := url.Values{
		"question_text":     {"Question 1 revised"},
		"choices-0-id":      {itoa(q.Choices[0].ID)},
		"choices-0-text":    {"Choice 1"},
		"choices-0-correct": {"on"},
		"choices-1-id":      {itoa(q.Choices[1].ID)},
		"choices-1-text":    {"Choice 2 renamed"},
		"choices-2-id":      {itoa(q.Choices[2].ID)},
		"choices-2-text":    {"Choice 3"},
		"choices-2-delete":  {"on"},
		"choices-3-text":    {"Choice 4"},
	}
	expectRedirect(t, cl.post(path, form), "/question-list/"+itoa(e.ID))
	got, _ := h.store.GetQuestion(context.Background(), q.ID)
	var texts []string
	for _, ch := range got.Choices {
		texts = append(texts, ch.ChoiceText)
	}
	if got.QuestionText != "Question 1 revised" || strings.Join(texts, "|") != "Choice 1|Choice 2 renamed|Choice 4" {
		t.Errorf("question = %q choices = %v", got.QuestionText, texts)
	}

	// Unchecking the only correct choice is rejected before anything is written.
	form = url.Values{
		"question_text":  {"Nothing correct"},
		"choices-0-id":   {itoa(q.Choices[0].ID)},
		"choices-0-text": {"Choice 1"},
	}
	expectBody(t, cl.post(path, form), http.StatusBadRequest, "Please mark at least one choice as correct.")
	got, _ = h.store.GetQuestion(context.Background(), q.ID)
	if got.QuestionText != "Question 1 revised" {
		t.Errorf("rejected edit was saved: %q", got.QuestionText)
	}

	// Wrong exam in the path.
	expectRedirect(t, cl.get("/edit-exam/"+itoa(e.ID+1000)+"/edit-question/"+itoa(q.ID)), "/")
}

func TestChoiceDeleteJSON(t *testing.T) {
	h := newHarness(t)
	teacher := h.account("teach", models.RoleTeacher)
	course := h.store.AddCourse(t, teacher.ID, "Art")
	_, qs := h.store.AddExam(t, course.ID, time.Minute, 0)
	cl := h.loggedIn("teach")

	w := cl.post("/delete-choice/"+itoa(qs[0].Choices[2].ID), nil)
	if w.Code != http.StatusOK || decodeJSON(t, w)["success"] != true {
		t.Fatalf("delete-choice = %d %s", w.Code, w.Body.String())
	}

	w = cl.post("/delete-choice/"+itoa(qs[0].Choices[0].ID), nil)
	if w.Code != http.StatusBadRequest || decodeJSON(t, w)["status"] != "error" {
		t.Errorf("deleting the only correct choice = %d %s", w.Code, w.Body.String())
	}
	q, err := h.store.GetQuestion(context.Background(), qs[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := q.CorrectChoice(); !ok || len(q.Choices) != 2 {
		t.Errorf("choices after refused delete = %+v", q.Choices)
	}
	w = cl.post("/delete-choice/999999", nil)
	if w.Code != http.StatusNotFound || decodeJSON(t, w)["status"] != "error" {
		t.Errorf("missing choice = %d %s", w.Code, w.Body.String())
	}
}

func TestQuestionImport(t *testing.T) {
	h := newHarness(t)
	teacher := h.account("teach", models.RoleTeacher)
	course := h.store.AddCourse(t, teacher.ID, "Geography")
	e, _ := h.store.AddExam(t, course.ID, 10*time.Minute)
	cl := h.loggedIn("teach")
	path := "/teacher-exam/" + itoa(e.ID) + "/import-questions"

	bad := "question_text,choice_1,correct_1,choice_2,correct_2\n" +
		"Capital of France?,Paris,true,Lyon,false\n" +
		"Capital of Spain?,Madrid,false,Seville,false\n"
	expectBody(t, cl.upload(path, "file", "bank.csv", bad), http.StatusBadRequest, "line 3: correct_1: at least one choice must be marked correct")
	if n, _ := h.store.CountQuestions(context.Background(), e.ID, ""); n != 0 {
		t.Fatalf("partial import stored %d question(s)", n)
	}

	good := "question_text,explanation_text,choice_1,correct_1,choice_2,correct_2\n" +
		"Capital of France?,It is Paris,Paris,true,Lyon,false\n" +
		"Capital of Spain?,,Madrid,yes,Seville,\n"
	expectRedirect(t, cl.upload(path, "file", "bank.csv", good), "/question-list/"+itoa(e.ID))
	if n, _ := h.store.CountQuestions(context.Background(), e.ID, ""); n != 2 {
		t.Errorf("imported %d question(s), want 2", n)
	}
	expectBody(t, cl.get("/question-list/"+itoa(e.ID)), http.StatusOK, "Imported 2 question(s).")
}

func TestTeacherHome(t *testing.T) {
	h := newHarness(t)
	h.account("teach", models.RoleTeacher)
	cl := h.loggedIn("teach")
	cl.post("/teacher-course", url.Values{"name": {"Music"}, "description": {"Scales"}})

	expectBody(t, cl.get("/teacher-home"), http.StatusOK, "Teacher Dashboard", "create_course")
	expectRedirect(t, cl.get("/"), "/teacher-home")
}

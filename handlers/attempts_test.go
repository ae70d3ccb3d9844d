package handlers

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"exam-portal/models"
)

// takingFixture is a two-question exam: question 1 expects choice 1, question 2 choice 2.
type takingFixture struct {
	*harness
	exam      models.Exam
	questions []models.Question
	student   *client
}

func newTakingFixture(t *testing.T) *takingFixture {
	h := newHarness(t)
	teacher := h.account("teach", models.RoleTeacher)
	h.account("sam", models.RoleStudent)
	course := h.store.AddCourse(t, teacher.ID, "Biology")
	e, qs := h.store.AddExam(t, course.ID, 10*time.Minute, 0, 1)
	return &takingFixture{harness: h, exam: e, questions: qs, student: h.loggedIn("sam")}
}

func (f *takingFixture) page(n int) string {
	return "/answer-exam/" + itoa(f.exam.ID) + "/" + itoa(int64(n))
}

func (f *takingFixture) answer(n int, button string, choiceID int64) *httptest.ResponseRecorder {
	return f.student.post(f.page(n), url.Values{
		button:           {"1"},
		"answer":         {itoa(choiceID)},
		"remaining_time": {"590"},
	})
}

// submit answers question 1 correctly and question 2 wrongly and returns the result path.
func (f *takingFixture) submit(t *testing.T) string {
	t.Helper()
	expectRedirect(t, f.answer(1, "next", f.questions[0].Choices[0].ID), f.page(2))
	w := f.answer(2, "submit", f.questions[1].Choices[0].ID)
	if w.Code != http.StatusFound || !strings.HasPrefix(w.Header().Get("Location"), "/student-view-results/") {
		t.Fatalf("submit: %d %q", w.Code, w.Header().Get("Location"))
	}
	return w.Header().Get("Location")
}

func TestExamSearchByCode(t *testing.T) {
	f := newTakingFixture(t)

	expectBody(t, f.student.get("/exam-search?search=not-a-uuid"), http.StatusOK, examNotFound)
	w := f.student.get("/exam-search?search=" + f.exam.Code.String())
	expectBody(t, w, http.StatusOK, f.page(1))
	if strings.Contains(w.Body.String(), examNotFound) {
		t.Error("valid code reported as not found")
	}
	w = f.student.get("/exam-search?search=00000000-0000-0000-0000-000000000000")
	expectBody(t, w, http.StatusOK, examNotFound)
}

func TestTakeExam(t *testing.T) {
	f := newTakingFixture(t)

	expectBody(t, f.student.get("/answer-exam/"+itoa(f.exam.ID)), http.StatusOK,
		"Question 1 of 2", "Question 1", `name="next"`, `id="countdown">00:10:00</span>`)

	expectRedirect(t, f.answer(1, "next", f.questions[0].Choices[0].ID), f.page(2))
	w := f.student.get(f.page(2))
	expectBody(t, w, http.StatusOK, "Question 2 of 2", `name="back"`)
	if strings.Contains(w.Body.String(), `name="next"`) {
		t.Error("last page offers a next button")
	}

	expectRedirect(t, f.answer(2, "back", f.questions[1].Choices[1].ID), f.page(1))
	expectBody(t, f.student.get(f.page(1)), http.StatusOK, "Question 1 of 2")
	expectRedirect(t, f.answer(1, "next", f.questions[0].Choices[0].ID), f.page(2))

	// Change the answer to question 2 to a wrong one and submit.
	w = f.answer(2, "submit", f.questions[1].Choices[0].ID)
	if w.Code != http.StatusFound {
		t.Fatalf("submit status = %d", w.Code)
	}
	result := w.Header().Get("Location")
	if !strings.HasPrefix(result, "/student-view-results/") {
		t.Fatalf("submit redirected to %q", result)
	}
	expectBody(t, f.student.get(result), http.StatusOK, "Score: 1 / 2 (50.00%)", "Incorrect: 1", "Unanswered: 0")

	// The exam cannot be taken twice.
	expectRedirect(t, f.student.get(f.page(1)), result)
	expectBody(t, f.student.get(result), http.StatusOK, "You have already submitted this exam.")
	expectRedirect(t, f.answer(1, "next", f.questions[0].Choices[1].ID), result)

	expectBody(t, f.student.get("/"), http.StatusOK, "Biology", "50.00%")
}

func TestAnswerPageBounds(t *testing.T) {
	f := newTakingFixture(t)

	expectRedirect(t, f.student.get(f.page(3)), "/")
	expectBody(t, f.student.get("/"), http.StatusOK, "The page you requested was not found.")
	expectRedirect(t, f.student.get("/answer-exam/"+itoa(f.exam.ID)+"/abc"), "/")
	expectRedirect(t, f.student.get("/answer-exam/999999/1"), "/")
}

func TestAnswerRejectsChoiceOfAnotherQuestion(t *testing.T) {
	f := newTakingFixture(t)
	f.student.get(f.page(1))

	expectRedirect(t, f.answer(1, "next", f.questions[1].Choices[0].ID), f.page(1))
	expectBody(t, f.student.get(f.page(1)), http.StatusOK, "The selected choice does not belong to this question.")
}

func TestSubmitWithoutAnswersScoresZero(t *testing.T) {
	f := newTakingFixture(t)
	f.student.get(f.page(1))

	w := f.student.post(f.page(1), url.Values{"submit": {"1"}, "remaining_time": {"500"}})
	if w.Code != http.StatusFound {
		t.Fatalf("status = %d", w.Code)
	}
	expectBody(t, f.student.get(w.Header().Get("Location")), http.StatusOK, "Score: 0 / 2 (0.00%)", "Unanswered: 2")
}

func TestSaveAnswer(t *testing.T) {
	f := newTakingFixture(t)
	f.student.get(f.page(1))
	q := f.questions[0]

	w := f.student.post("/save-answer", url.Values{"question_id": {itoa(q.ID)}, "choice_id": {itoa(q.Choices[2].ID)}})
	if w.Code != http.StatusOK || decodeJSON(t, w)["status"] != "success" {
		t.Fatalf("save-answer = %d %s", w.Code, w.Body.String())
	}
	expectBody(t, f.student.get(f.page(1)), http.StatusOK, `value="`+itoa(q.Choices[2].ID)+`" data-question="`+itoa(q.ID)+`" checked`)

	w = f.student.post("/save-answer", url.Values{"question_id": {itoa(q.ID)}, "choice_id": {itoa(f.questions[1].Choices[0].ID)}})
	if w.Code != http.StatusNotFound || decodeJSON(t, w)["status"] != "error" {
		t.Errorf("foreign choice = %d %s", w.Code, w.Body.String())
	}
	w = f.student.post("/save-answer", url.Values{"question_id": {"nope"}})
	if w.Code != http.StatusNotFound {
		t.Errorf("bad question id = %d", w.Code)
	}

	f.submit(t)
	w = f.student.post("/save-answer", url.Values{"question_id": {itoa(q.ID)}, "choice_id": {itoa(q.Choices[0].ID)}})
	if w.Code != http.StatusConflict {
		t.Errorf("save after submit = %d %s", w.Code, w.Body.String())
	}
}

func TestRemoveUnanswered(t *testing.T) {
	f := newTakingFixture(t)
	expectBody(t, f.student.get(f.page(1)), http.StatusOK, `class="unanswered current"`)

	w := f.student.post("/remove-unanswered-question", url.Values{"question_id": {itoa(f.questions[0].ID)}})
	if w.Code != http.StatusOK || decodeJSON(t, w)["status"] != "success" {
		t.Fatalf("remove = %d %s", w.Code, w.Body.String())
	}
	w = f.student.post("/remove-unanswered-question", url.Values{"question_id": {""}})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing id = %d", w.Code)
	}
}

func TestResultVisibility(t *testing.T) {
	f := newTakingFixture(t)
	result := f.submit(t)
	resultID := strings.TrimPrefix(result, "/student-view-results/")

	f.account("other", models.RoleStudent)
	expectRedirect(t, f.loggedIn("other").get(result), "/")

	teacher := f.loggedIn("teach")
	expectBody(t, teacher.get("/teacher/exam-result/"+resultID), http.StatusOK, "Student: sam", "<th>Time</th>", "Score: 1 / 2")
	expectBody(t, teacher.get("/exam-results/"+itoa(f.exam.ID)), http.StatusOK, "sam", "50.00%")

	w := teacher.get("/teacher/search-student?search=sa")
	expectBody(t, w, http.StatusOK, "/teacher/student-exams/")
	sam, _ := f.store.GetUserByUsername(t.Context(), "sam")
	expectBody(t, teacher.get("/teacher/student-exams/"+itoa(sam.ID)), http.StatusOK, "Exams of sam", "Biology", "50.00%")

	f.account("stranger", models.RoleTeacher)
	stranger := f.loggedIn("stranger")
	expectRedirect(t, stranger.get("/teacher/exam-result/"+resultID), "/")
	expectBody(t, stranger.get("/teacher/student-exams/"+itoa(sam.ID)), http.StatusOK, "This student has no results in your courses.")
	expectBody(t, stranger.get("/teacher/search-student?search=sam"), http.StatusOK, "No students found.")
}

package exam

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"exam-portal/apperrors"
	"exam-portal/db/dbtest"
	"exam-portal/models"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func durationPtr(d time.Duration) *time.Duration { return &d }

type fakeProgress struct {
	starts     map[int64]time.Time
	unanswered []int64
}

func newProgress() *fakeProgress { return &fakeProgress{starts: map[int64]time.Time{}} }

func (p *fakeProgress) ExamStart(examID int64) (time.Time, bool) {
	t, ok := p.starts[examID]
	return t, ok
}
func (p *fakeProgress) SetExamStart(examID int64, start time.Time) { p.starts[examID] = start }
func (p *fakeProgress) ClearExam(examID int64)                     { delete(p.starts, examID) }
func (p *fakeProgress) Unanswered() []int64                        { return p.unanswered }
func (p *fakeProgress) SetUnanswered(ids []int64)                  { p.unanswered = ids }

type countingObserver struct {
	saved     int
	finalized []bool
}

func (o *countingObserver) AnswerSaved()                { o.saved++ }
func (o *countingObserver) ResultFinalized(timeUp bool) { o.finalized = append(o.finalized, timeUp) }

type fixture struct {
	repo      *dbtest.Memory
	clock     *fakeClock
	observer  *countingObserver
	svc       *Service
	student   models.User
	exam      models.Exam
	questions []models.Question
	progress  *fakeProgress
}

// newFixture builds an exam whose questions have their correct choice at the given indexes.
func newFixture(t *testing.T, duration time.Duration, correct ...int) *fixture {
	t.Helper()
	repo := dbtest.New()
	teacher := repo.AddUser(t, "teacher", models.RoleTeacher)
	student := repo.AddUser(t, "student", models.RoleStudent)
	course := repo.AddCourse(t, teacher.ID, "Biology")
	exam, qs := repo.AddExam(t, course.ID, duration, correct...)

	clock := newClock()
	observer := &countingObserver{}
	svc := NewService(repo, WithClock(clock.Now), WithTimeGrace(5*time.Second), WithObserver(observer))
	return &fixture{
		repo: repo, clock: clock, observer: observer, svc: svc,
		student: student, exam: exam, questions: qs, progress: newProgress(),
	}
}

func (f *fixture) enter(t *testing.T, page int) Outcome {
	t.Helper()
	out, err := f.svc.Enter(context.Background(), f.student.ID, f.exam.ID, page, f.progress)
	if err != nil {
		t.Fatalf("Enter(page %d): %v", page, err)
	}
	return out
}

func (f *fixture) answer(t *testing.T, page int, sub Submission) Outcome {
	t.Helper()
	out, err := f.svc.Answer(context.Background(), f.student.ID, f.exam.ID, page, sub, f.progress)
	if err != nil {
		t.Fatalf("Answer(page %d): %v", page, err)
	}
	return out
}

func choose(q models.Question, idx int, action Action) Submission {
	id := q.Choices[idx].ID
	return Submission{Action: action, AnswerPresent: true, ChoiceID: &id}
}

func TestSubmitScoresTheAttempt(t *testing.T) {
	f := newFixture(t, 30*time.Minute, 0, 1, 2)
	ctx := context.Background()

	f.enter(t, 1)
	if out := f.answer(t, 1, choose(f.questions[0], 0, ActionNext)); out.RedirectPage != 2 {
		t.Fatalf("next from page 1 = %+v, want redirect to 2", out)
	}
	f.enter(t, 2)
	if out := f.answer(t, 2, choose(f.questions[1], 0, ActionNext)); out.RedirectPage != 3 {
		t.Fatalf("next from page 2 = %+v, want redirect to 3", out)
	}
	f.enter(t, 3)
	f.clock.Advance(time.Minute)
	out := f.answer(t, 3, Submission{Action: ActionSubmit})
	if out.ResultID == 0 {
		t.Fatalf("submit = %+v, want a result", out)
	}

	r, err := f.repo.GetResult(ctx, out.ResultID)
	if err != nil {
		t.Fatal(err)
	}
	if r.Score != 1 || r.IncorrectAnswers != 1 || r.UnansweredQuestions != 1 || r.TotalQuestions != 3 {
		t.Errorf("result counts = %d/%d/%d of %d, want 1/1/1 of 3", r.Score, r.IncorrectAnswers, r.UnansweredQuestions, r.TotalQuestions)
	}
	if r.Percentage != 33.33 {
		t.Errorf("percentage = %v, want 33.33", r.Percentage)
	}
	if !r.Submitted || r.TimeUp {
		t.Errorf("submitted = %v, time up = %v", r.Submitted, r.TimeUp)
	}
	if got := r.TotalTime(); got != time.Minute {
		t.Errorf("total time = %s, want 1m", got)
	}
	if _, ok := f.progress.ExamStart(f.exam.ID); ok {
		t.Error("exam start still in session after submit")
	}
	if f.progress.Unanswered() != nil {
		t.Errorf("unanswered list = %v after submit", f.progress.Unanswered())
	}
	if !reflect.DeepEqual(f.observer.finalized, []bool{false}) {
		t.Errorf("observer finalized = %v", f.observer.finalized)
	}
}

func TestSubmittedExamRedirectsToExistingResult(t *testing.T) {
	f := newFixture(t, 30*time.Minute, 0)
	ctx := context.Background()

	f.enter(t, 1)
	first := f.answer(t, 1, choose(f.questions[0], 0, ActionSubmit))

	again := f.answer(t, 1, choose(f.questions[0], 1, ActionSubmit))
	if again.ResultID != first.ResultID {
		t.Errorf("second submit result = %d, want %d", again.ResultID, first.ResultID)
	}
	if out := f.enter(t, 1); out.ResultID != first.ResultID || out.View != nil {
		t.Errorf("revisit = %+v, want redirect to result %d", out, first.ResultID)
	}

	results, err := f.repo.ListExamResults(ctx, f.exam.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	if results[0].Score != 1 {
		t.Errorf("second submit changed the score to %d", results[0].Score)
	}
}

func TestQuestionTimeSumsIntervals(t *testing.T) {
	f := newFixture(t, 30*time.Minute, 0, 0)
	ctx := context.Background()

	f.enter(t, 1)
	f.clock.Advance(10 * time.Second)
	f.answer(t, 1, Submission{Action: ActionNext})

	f.enter(t, 2)
	f.clock.Advance(3 * time.Second)
	if out := f.answer(t, 2, Submission{Action: ActionBack}); out.RedirectPage != 1 {
		t.Fatalf("back from page 2 = %+v", out)
	}

	out := f.enter(t, 1)
	if out.View.PreviousTime != 10*time.Second {
		t.Errorf("previous time on revisit = %s, want 10s", out.View.PreviousTime)
	}
	f.clock.Advance(5 * time.Second)
	f.answer(t, 1, Submission{Action: ActionNext})

	times, err := f.repo.QuestionTimes(ctx, f.student.ID, f.exam.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got := times[f.questions[0].ID]; got != 15*time.Second {
		t.Errorf("question 1 time = %s, want 15s", got)
	}
	if got := times[f.questions[1].ID]; got != 3*time.Second {
		t.Errorf("question 2 time = %s, want 3s", got)
	}
}

func TestEnterBuildsPageView(t *testing.T) {
	f := newFixture(t, 10*time.Minute, 0, 0, 0)

	out := f.enter(t, 1)
	v := out.View
	if v == nil {
		t.Fatalf("Enter = %+v, want a view", out)
	}
	if v.Question.ID != f.questions[0].ID || v.TotalPages != 3 || !v.HasNext || v.HasPrevious {
		t.Errorf("view = page %d question %d of %d next=%v prev=%v", v.Page, v.Question.ID, v.TotalPages, v.HasNext, v.HasPrevious)
	}
	if v.Remaining != 10*time.Minute {
		t.Errorf("remaining = %s, want 10m", v.Remaining)
	}
	if v.FirstUnansweredPage != 1 || len(v.Unanswered) != 3 {
		t.Errorf("unanswered = %v first page %d", v.Unanswered, v.FirstUnansweredPage)
	}

	f.answer(t, 1, choose(f.questions[0], 2, ActionNext))
	f.clock.Advance(4 * time.Minute)

	v = f.enter(t, 2).View
	if v.Remaining != 6*time.Minute {
		t.Errorf("remaining after 4m = %s, want 6m", v.Remaining)
	}
	want := []int64{f.questions[1].ID, f.questions[2].ID}
	if !reflect.DeepEqual(v.Unanswered, want) || !reflect.DeepEqual(f.progress.Unanswered(), want) {
		t.Errorf("unanswered = %v (session %v), want %v", v.Unanswered, f.progress.Unanswered(), want)
	}
	if v.FirstUnansweredPage != 2 {
		t.Errorf("first unanswered page = %d, want 2", v.FirstUnansweredPage)
	}

	v = f.enter(t, 1).View
	if v.SelectedChoiceID == nil || *v.SelectedChoiceID != f.questions[0].Choices[2].ID {
		t.Errorf("selected choice on revisit = %v", v.SelectedChoiceID)
	}
}

func TestPageOutOfRangeIsNotFound(t *testing.T) {
	f := newFixture(t, 10*time.Minute, 0, 0)
	for _, page := range []int{0, 3} {
		_, err := f.svc.Enter(context.Background(), f.student.ID, f.exam.ID, page, f.progress)
		if !errors.Is(err, apperrors.ErrNotFound) {
			t.Errorf("Enter(page %d) error = %v, want not found", page, err)
		}
	}
	if _, err := f.svc.Enter(context.Background(), f.student.ID, 9999, 1, f.progress); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("unknown exam error = %v, want not found", err)
	}
}

func TestClearingAnAnswer(t *testing.T) {
	f := newFixture(t, 10*time.Minute, 0)
	ctx := context.Background()

	f.enter(t, 1)
	f.answer(t, 1, choose(f.questions[0], 0, ActionNone))
	f.answer(t, 1, Submission{AnswerPresent: true})

	answers, err := f.repo.ListUserAnswers(ctx, f.student.ID, f.exam.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(answers) != 1 || answers[0].ChoiceID != nil {
		t.Errorf("answers = %+v, want one cleared answer", answers)
	}
}

func TestForeignChoiceIsRejected(t *testing.T) {
	f := newFixture(t, 10*time.Minute, 0, 0)
	f.enter(t, 1)

	_, err := f.svc.Answer(context.Background(), f.student.ID, f.exam.ID, 1, choose(f.questions[1], 0, ActionNext), f.progress)
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("error = %v, want validation", err)
	}
	answers, _ := f.repo.ListUserAnswers(context.Background(), f.student.ID, f.exam.ID)
	for _, a := range answers {
		if a.ChoiceID != nil {
			t.Errorf("answer %+v was written", a)
		}
	}
}

func TestClientTimeUpIsOnlyAHint(t *testing.T) {
	f := newFixture(t, 10*time.Minute, 0, 0)

	f.enter(t, 1)
	f.clock.Advance(time.Minute)
	out := f.answer(t, 1, Submission{ClientRemaining: durationPtr(0)})
	if out.ResultID != 0 || out.RedirectPage != 1 {
		t.Fatalf("early client time-up = %+v, want to stay on page 1", out)
	}

	f.enter(t, 1)
	f.clock.Advance(8*time.Minute + 57*time.Second)
	out = f.answer(t, 1, Submission{ClientRemaining: durationPtr(0)})
	if out.ResultID == 0 {
		t.Fatalf("client time-up within grace = %+v, want a result", out)
	}
	r, err := f.repo.GetResult(context.Background(), out.ResultID)
	if err != nil {
		t.Fatal(err)
	}
	if !r.TimeUp {
		t.Error("result not flagged time up")
	}
}

func TestServerExpiryFinalizesWithoutClientSignal(t *testing.T) {
	f := newFixture(t, time.Minute, 0, 0)
	ctx := context.Background()

	f.enter(t, 1)
	f.clock.Advance(30 * time.Second)
	f.answer(t, 1, choose(f.questions[0], 0, ActionNext))
	f.enter(t, 2)
	f.clock.Advance(2 * time.Minute)
	out := f.answer(t, 2, choose(f.questions[1], 0, ActionNext))
	if out.ResultID == 0 {
		t.Fatalf("expired next = %+v, want a result", out)
	}
	r, err := f.repo.GetResult(ctx, out.ResultID)
	if err != nil {
		t.Fatal(err)
	}
	if !r.TimeUp || r.Score != 1 || r.UnansweredQuestions != 1 {
		t.Errorf("result score=%d unanswered=%d time up=%v, want 1/1/true", r.Score, r.UnansweredQuestions, r.TimeUp)
	}
	if got := r.TotalTime(); got != time.Minute {
		t.Errorf("total time = %s, want the 1m budget", got)
	}
	if !r.AnsweredAt.Equal(r.EndTime) {
		t.Errorf("answered at %v, end %v", r.AnsweredAt, r.EndTime)
	}
	if !reflect.DeepEqual(f.observer.finalized, []bool{true}) {
		t.Errorf("observer finalized = %v", f.observer.finalized)
	}
	if f.observer.saved != 1 {
		t.Errorf("observer saw %d saves, want 1", f.observer.saved)
	}
	times, _ := f.repo.QuestionTimes(ctx, f.student.ID, f.exam.ID)
	if got := times[f.questions[1].ID]; got != 30*time.Second {
		t.Errorf("question 2 time = %s, want 30s up to the deadline", got)
	}
}

func TestLateAnswersAreDiscarded(t *testing.T) {
	f := newFixture(t, time.Minute, 0, 0)
	ctx := context.Background()

	f.enter(t, 1)
	f.clock.Advance(3 * time.Hour)

	late := f.questions[1].Choices[0].ID
	if err := f.svc.SaveAnswer(ctx, f.student.ID, f.questions[1].ID, &late, f.progress); !errors.Is(err, apperrors.ErrConflict) {
		t.Errorf("SaveAnswer after the deadline error = %v, want conflict", err)
	}
	out := f.answer(t, 1, choose(f.questions[0], 0, ActionSubmit))
	if out.ResultID == 0 {
		t.Fatalf("late submit = %+v, want a result", out)
	}

	r, err := f.repo.GetResult(ctx, out.ResultID)
	if err != nil {
		t.Fatal(err)
	}
	if r.Score != 0 || r.UnansweredQuestions != 2 || !r.TimeUp {
		t.Errorf("result score=%d unanswered=%d time up=%v, want 0/2/true", r.Score, r.UnansweredQuestions, r.TimeUp)
	}
	if got := r.TotalTime(); got != time.Minute {
		t.Errorf("total time = %s, want 1m", got)
	}
	answers, _ := f.repo.ListUserAnswers(ctx, f.student.ID, f.exam.ID)
	for _, a := range answers {
		if a.ChoiceID != nil {
			t.Errorf("late answer %+v was stored", a)
		}
	}
	if f.observer.saved != 0 {
		t.Errorf("observer saw %d saves, want 0", f.observer.saved)
	}
}

func TestAnswerWithinGraceIsKept(t *testing.T) {
	f := newFixture(t, time.Minute, 0)

	f.enter(t, 1)
	f.clock.Advance(time.Minute + 3*time.Second)
	id := f.questions[0].Choices[0].ID
	if err := f.svc.SaveAnswer(context.Background(), f.student.ID, f.questions[0].ID, &id, f.progress); err != nil {
		t.Fatalf("SaveAnswer within grace: %v", err)
	}
	out := f.answer(t, 1, Submission{ClientRemaining: durationPtr(0)})
	r, err := f.repo.GetResult(context.Background(), out.ResultID)
	if err != nil {
		t.Fatal(err)
	}
	if r.Score != 1 || !r.TimeUp {
		t.Errorf("result score=%d time up=%v, want 1/true", r.Score, r.TimeUp)
	}
	if got := r.TotalTime(); got != time.Minute {
		t.Errorf("total time = %s, want 1m", got)
	}
}

func TestSaveAnswer(t *testing.T) {
	f := newFixture(t, 10*time.Minute, 0, 0)
	ctx := context.Background()
	q := f.questions[0]
	f.enter(t, 1)
	f.progress.SetUnanswered([]int64{f.questions[0].ID, f.questions[1].ID})

	for _, idx := range []int{1, 0} {
		id := q.Choices[idx].ID
		if err := f.svc.SaveAnswer(ctx, f.student.ID, q.ID, &id, f.progress); err != nil {
			t.Fatalf("SaveAnswer: %v", err)
		}
	}
	answers, _ := f.repo.ListUserAnswers(ctx, f.student.ID, f.exam.ID)
	if len(answers) != 1 || *answers[0].ChoiceID != q.Choices[0].ID {
		t.Fatalf("answers after two saves = %+v, want one with the last choice", answers)
	}
	if want := []int64{f.questions[1].ID}; !reflect.DeepEqual(f.progress.Unanswered(), want) {
		t.Errorf("unanswered = %v, want %v", f.progress.Unanswered(), want)
	}

	if err := f.svc.SaveAnswer(ctx, f.student.ID, q.ID, nil, f.progress); err != nil {
		t.Fatalf("clearing SaveAnswer: %v", err)
	}
	if !reflect.DeepEqual(f.progress.Unanswered(), []int64{f.questions[1].ID, q.ID}) {
		t.Errorf("unanswered after clear = %v", f.progress.Unanswered())
	}
	if f.observer.saved != 3 {
		t.Errorf("observer saw %d saves, want 3", f.observer.saved)
	}
}

func TestSaveAnswerErrors(t *testing.T) {
	f := newFixture(t, 10*time.Minute, 0, 0)
	ctx := context.Background()

	foreign := f.questions[1].Choices[0].ID
	if err := f.svc.SaveAnswer(ctx, f.student.ID, f.questions[0].ID, &foreign, f.progress); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("foreign choice error = %v, want not found", err)
	}
	if err := f.svc.SaveAnswer(ctx, f.student.ID, 9999, nil, f.progress); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("unknown question error = %v, want not found", err)
	}
	if err := f.svc.SaveAnswer(ctx, f.student.ID, f.questions[0].ID, nil, f.progress); !errors.Is(err, apperrors.ErrConflict) {
		t.Errorf("save before entering the exam error = %v, want conflict", err)
	}

	f.enter(t, 1)
	f.answer(t, 1, Submission{Action: ActionSubmit})
	if err := f.svc.SaveAnswer(ctx, f.student.ID, f.questions[0].ID, nil, f.progress); !errors.Is(err, apperrors.ErrConflict) {
		t.Errorf("save after submit error = %v, want conflict", err)
	}
}

func TestRemoveUnanswered(t *testing.T) {
	p := newProgress()
	p.SetUnanswered([]int64{1, 2, 3})

	if !RemoveUnanswered(p, 2) {
		t.Error("RemoveUnanswered(2) = false")
	}
	if RemoveUnanswered(p, 2) {
		t.Error("second RemoveUnanswered(2) = true")
	}
	if !reflect.DeepEqual(p.Unanswered(), []int64{1, 3}) {
		t.Errorf("unanswered = %v", p.Unanswered())
	}
}

func TestResultView(t *testing.T) {
	f := newFixture(t, 10*time.Minute, 0, 1)
	ctx := context.Background()

	f.enter(t, 1)
	f.clock.Advance(20 * time.Second)
	f.answer(t, 1, choose(f.questions[0], 0, ActionNext))
	f.enter(t, 2)
	f.clock.Advance(5 * time.Second)
	out := f.answer(t, 2, choose(f.questions[1], 2, ActionSubmit))

	view, err := f.svc.Result(ctx, out.ResultID, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(view.Rows) != 2 {
		t.Fatalf("rows = %d", len(view.Rows))
	}
	if !view.Rows[0].Correct || view.Rows[0].Time != 20*time.Second {
		t.Errorf("row 1 = %+v", view.Rows[0])
	}
	if view.Rows[1].Correct || view.Rows[1].Selected == nil || view.Rows[1].Time != 5*time.Second {
		t.Errorf("row 2 = %+v", view.Rows[1])
	}
	if view.TotalTime != 25*time.Second {
		t.Errorf("total time = %s, want 25s", view.TotalTime)
	}

	plain, err := f.svc.Result(ctx, out.ResultID, false)
	if err != nil {
		t.Fatal(err)
	}
	if plain.Rows[0].Time != 0 {
		t.Errorf("student view carries time %s", plain.Rows[0].Time)
	}

	if _, err := f.svc.Result(ctx, 9999, false); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("unknown result error = %v", err)
	}
}

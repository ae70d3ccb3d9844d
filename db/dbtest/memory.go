// Package dbtest provides an in-memory stand-in for db.Store used by package tests.
package dbtest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"exam-portal/apperrors"
	"exam-portal/models"
)

type state struct {
	nextID    int64
	roles     map[string]bool
	users     map[int64]models.User
	courses   map[int64]models.Course
	exams     map[int64]models.Exam
	questions map[int64]models.Question
	choices   map[int64]models.Choice
	answers   map[int64]models.UserAnswer
	intervals map[int64]models.AnswerInterval
	results   map[int64]models.ExamResult
	events    []models.AuditEvent
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *state) clone() *state {
	return &state{
		nextID:    s.nextID,
		roles:     cloneMap(s.roles),
		users:     cloneMap(s.users),
		courses:   cloneMap(s.courses),
		exams:     cloneMap(s.exams),
		questions: cloneMap(s.questions),
		choices:   cloneMap(s.choices),
		answers:   cloneMap(s.answers),
		intervals: cloneMap(s.intervals),
		results:   cloneMap(s.results),
		events:    append([]models.AuditEvent(nil), s.events...),
	}
}

// Memory keeps every table in maps. It honours the same unique keys as the SQL schema and
// rolls InTx back on error by restoring a snapshot.
type Memory struct {
	mu sync.Mutex
	st *state
}

// New returns an empty store with the Teacher and Student roles.
func New() *Memory {
	return &Memory{st: &state{
		roles:     map[string]bool{models.RoleTeacher: true, models.RoleStudent: true},
		users:     map[int64]models.User{},
		courses:   map[int64]models.Course{},
		exams:     map[int64]models.Exam{},
		questions: map[int64]models.Question{},
		choices:   map[int64]models.Choice{},
		answers:   map[int64]models.UserAnswer{},
		intervals: map[int64]models.AnswerInterval{},
		results:   map[int64]models.ExamResult{},
	}}
}

func (m *Memory) id() int64 {
	m.st.nextID++
	return m.st.nextID
}

type txKey struct{}

// InTx restores the state from before fn when fn fails.
func (m *Memory) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	m.mu.Lock()
	snap := m.st.clone()
	m.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		m.mu.Lock()
		m.st = snap
		m.mu.Unlock()
		return err
	}
	return nil
}

func contains(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func window[T any](items []T, page models.Page) []T {
	start := page.Offset()
	if start >= len(items) {
		return nil
	}
	end := start + page.Size
	if page.Size <= 0 || end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

// --- users ---

// EnsureRoles adds role names.
func (m *Memory) EnsureRoles(_ context.Context, names ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range names {
		m.st.roles[n] = true
	}
	return nil
}

// ListRoles returns role names sorted.
func (m *Memory) ListRoles(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var roles []string
	for r := range m.st.roles {
		roles = append(roles, r)
	}
	sort.Strings(roles)
	return roles, nil
}

func (m *Memory) CreateUser(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.st.roles[u.Role] {
		return apperrors.NotFound("user refers to a missing record")
	}
	for _, other := range m.st.users {
		if other.Username == u.Username {
			return apperrors.Conflict("A user with that username already exists.")
		}
		if other.Email == u.Email {
			return apperrors.Conflict("Email is already registered")
		}
	}
	u.ID = m.id()
	u.CreatedAt = time.Now()
	m.st.users[u.ID] = *u
	return nil
}

func (m *Memory) GetUser(_ context.Context, id int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.st.users[id]
	if !ok {
		return nil, apperrors.NotFound("user not found")
	}
	return &u, nil
}

func (m *Memory) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.st.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, apperrors.NotFound("user not found")
}

func (m *Memory) SearchStudents(_ context.Context, teacherID int64, query string) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[int64]bool{}
	var users []models.User
	for _, r := range m.st.results {
		u := m.st.users[r.UserID]
		if seen[u.ID] || u.Role != models.RoleStudent || !contains(u.Username, query) {
			continue
		}
		if m.teacherOfExam(r.ExamID) != teacherID {
			continue
		}
		seen[u.ID] = true
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (m *Memory) teacherOfExam(examID int64) int64 {
	return m.st.courses[m.st.exams[examID].CourseID].TeacherID
}

// --- courses ---

func (m *Memory) CreateCourse(_ context.Context, c *models.Course) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.st.users[c.TeacherID]; !ok {
		return apperrors.NotFound("course refers to a missing record")
	}
	c.ID = m.id()
	c.CreatedAt = time.Now()
	m.st.courses[c.ID] = *c
	return nil
}

func (m *Memory) GetCourse(_ context.Context, id int64) (*models.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.st.courses[id]
	if !ok {
		return nil, apperrors.NotFound("course not found")
	}
	return &c, nil
}

func (m *Memory) UpdateCourse(_ context.Context, c *models.Course) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.st.courses[c.ID]
	if !ok {
		return apperrors.NotFound("course not found")
	}
	cur.Name, cur.Description = c.Name, c.Description
	m.st.courses[c.ID] = cur
	return nil
}

func (m *Memory) DeleteCourse(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.st.courses[id]; !ok {
		return apperrors.NotFound("course not found")
	}
	for eid, e := range m.st.exams {
		if e.CourseID == id {
			m.deleteExam(eid)
		}
	}
	delete(m.st.courses, id)
	return nil
}

func (m *Memory) filterCourses(teacherID int64, search string) []models.Course {
	var out []models.Course
	for _, c := range m.st.courses {
		if c.TeacherID == teacherID && (contains(c.Name, search) || contains(c.Description, search)) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (m *Memory) CountCourses(_ context.Context, teacherID int64, search string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.filterCourses(teacherID, search)), nil
}

func (m *Memory) ListCourses(_ context.Context, teacherID int64, search string, page models.Page) ([]models.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return window(m.filterCourses(teacherID, search), page), nil
}

// --- exams ---

func (m *Memory) withCourse(e models.Exam) models.Exam {
	c := m.st.courses[e.CourseID]
	e.CourseName = c.Name
	e.TeacherID = c.TeacherID
	return e
}

func (m *Memory) CreateExam(_ context.Context, e *models.Exam) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.st.courses[e.CourseID]; !ok {
		return apperrors.NotFound("exam refers to a missing record")
	}
	if e.Code == uuid.Nil {
		e.Code = uuid.New()
	}
	for _, other := range m.st.exams {
		if other.Code == e.Code {
			return apperrors.Conflict("An exam with this code already exists.")
		}
	}
	e.ID = m.id()
	e.CreatedAt = time.Now()
	*e = m.withCourse(*e)
	m.st.exams[e.ID] = *e
	return nil
}

func (m *Memory) GetExam(_ context.Context, id int64) (*models.Exam, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.st.exams[id]
	if !ok {
		return nil, apperrors.NotFound("exam not found")
	}
	e = m.withCourse(e)
	return &e, nil
}

func (m *Memory) GetExamByCode(_ context.Context, code uuid.UUID) (*models.Exam, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.st.exams {
		if e.Code == code {
			e = m.withCourse(e)
			return &e, nil
		}
	}
	return nil, apperrors.NotFound("exam not found")
}

func (m *Memory) UpdateExam(_ context.Context, e *models.Exam) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.st.exams[e.ID]
	if !ok {
		return apperrors.NotFound("exam not found")
	}
	cur.Name, cur.Description, cur.Duration, cur.ExamType = e.Name, e.Description, e.Duration, e.ExamType
	m.st.exams[e.ID] = cur
	return nil
}

func (m *Memory) DeleteExam(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.st.exams[id]; !ok {
		return apperrors.NotFound("exam not found")
	}
	m.deleteExam(id)
	return nil
}

func (m *Memory) deleteExam(id int64) {
	for qid, q := range m.st.questions {
		if q.ExamID == id {
			m.deleteQuestion(qid)
		}
	}
	for rid, r := range m.st.results {
		if r.ExamID == id {
			delete(m.st.results, rid)
		}
	}
	delete(m.st.exams, id)
}

func (m *Memory) filterExams(f models.ExamFilter) []models.Exam {
	var out []models.Exam
	for _, e := range m.st.exams {
		e = m.withCourse(e)
		if e.TeacherID != f.TeacherID || (f.CourseID != 0 && e.CourseID != f.CourseID) {
			continue
		}
		if contains(e.Name, f.Search) || contains(e.Description, f.Search) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (m *Memory) CountExams(_ context.Context, f models.ExamFilter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.filterExams(f)), nil
}

func (m *Memory) ListExams(_ context.Context, f models.ExamFilter, page models.Page) ([]models.Exam, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return window(m.filterExams(f), page), nil
}

// --- questions ---

func (m *Memory) withChoices(q models.Question) models.Question {
	q.Choices = nil
	for _, c := range m.st.choices {
		if c.QuestionID == q.ID {
			q.Choices = append(q.Choices, c)
		}
	}
	sort.Slice(q.Choices, func(i, j int) bool { return q.Choices[i].ID < q.Choices[j].ID })
	return q
}

func (m *Memory) examQuestions(examID int64, search string) []models.Question {
	var out []models.Question
	for _, q := range m.st.questions {
		if q.ExamID == examID && contains(q.QuestionText, search) {
			out = append(out, m.withChoices(q))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Memory) ListQuestions(_ context.Context, examID int64) ([]models.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.examQuestions(examID, ""), nil
}

func (m *Memory) CountQuestions(_ context.Context, examID int64, search string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.examQuestions(examID, search)), nil
}

func (m *Memory) SearchQuestions(_ context.Context, examID int64, search string, page models.Page) ([]models.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return window(m.examQuestions(examID, search), page), nil
}

func (m *Memory) GetQuestion(_ context.Context, id int64) (*models.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.st.questions[id]
	if !ok {
		return nil, apperrors.NotFound("question not found")
	}
	q = m.withChoices(q)
	return &q, nil
}

func (m *Memory) CreateQuestion(_ context.Context, q *models.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.st.exams[q.ExamID]; !ok {
		return apperrors.NotFound("question refers to a missing record")
	}
	q.ID = m.id()
	for i := range q.Choices {
		q.Choices[i].ID = m.id()
		q.Choices[i].QuestionID = q.ID
		m.st.choices[q.Choices[i].ID] = q.Choices[i]
	}
	stored := *q
	stored.Choices = nil
	m.st.questions[q.ID] = stored
	return nil
}

func (m *Memory) UpdateQuestion(ctx context.Context, q *models.Question, deleteChoiceIDs []int64) error {
	return m.InTx(ctx, func(context.Context) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		cur, ok := m.st.questions[q.ID]
		if !ok {
			return apperrors.NotFound("question not found")
		}
		cur.QuestionText, cur.ExplanationText, cur.ExplanationVideo = q.QuestionText, q.ExplanationText, q.ExplanationVideo
		m.st.questions[q.ID] = cur
		for _, id := range deleteChoiceIDs {
			if c, ok := m.st.choices[id]; ok && c.QuestionID == q.ID {
				m.deleteChoice(id)
			}
		}
		for i := range q.Choices {
			c := &q.Choices[i]
			c.QuestionID = q.ID
			if c.ID == 0 {
				c.ID = m.id()
			} else if old, ok := m.st.choices[c.ID]; !ok || old.QuestionID != q.ID {
				return apperrors.NotFound(fmt.Sprintf("choice %d not found for question %d", c.ID, q.ID))
			}
			m.st.choices[c.ID] = *c
		}
		return nil
	})
}

func (m *Memory) DeleteQuestion(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.st.questions[id]; !ok {
		return apperrors.NotFound("question not found")
	}
	m.deleteQuestion(id)
	return nil
}

func (m *Memory) deleteQuestion(id int64) {
	for cid, c := range m.st.choices {
		if c.QuestionID == id {
			delete(m.st.choices, cid)
		}
	}
	for aid, a := range m.st.answers {
		if a.QuestionID == id {
			for iid, iv := range m.st.intervals {
				if iv.UserAnswerID == aid {
					delete(m.st.intervals, iid)
				}
			}
			delete(m.st.answers, aid)
		}
	}
	delete(m.st.questions, id)
}

func (m *Memory) GetChoice(_ context.Context, id int64) (*models.Choice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.st.choices[id]
	if !ok {
		return nil, apperrors.NotFound("choice not found")
	}
	return &c, nil
}

func (m *Memory) DeleteChoice(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.st.choices[id]; !ok {
		return apperrors.NotFound("choice not found")
	}
	m.deleteChoice(id)
	return nil
}

func (m *Memory) deleteChoice(id int64) {
	for aid, a := range m.st.answers {
		if a.ChoiceID != nil && *a.ChoiceID == id {
			a.ChoiceID = nil
			m.st.answers[aid] = a
		}
	}
	delete(m.st.choices, id)
}

// --- answers and intervals ---

func (m *Memory) ListUserAnswers(_ context.Context, userID, examID int64) ([]models.UserAnswer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.UserAnswer
	for _, a := range m.st.answers {
		if a.UserID == userID && m.st.questions[a.QuestionID].ExamID == examID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out, nil
}

func (m *Memory) findAnswer(userID, questionID int64) (models.UserAnswer, bool) {
	for _, a := range m.st.answers {
		if a.UserID == userID && a.QuestionID == questionID {
			return a, true
		}
	}
	return models.UserAnswer{}, false
}

func (m *Memory) upsertAnswer(userID, questionID int64, choiceID *int64, setChoice bool) (*models.UserAnswer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.st.questions[questionID]; !ok {
		return nil, apperrors.NotFound("answer refers to a missing record")
	}
	a, ok := m.findAnswer(userID, questionID)
	if !ok {
		a = models.UserAnswer{ID: m.id(), UserID: userID, QuestionID: questionID}
	}
	if setChoice {
		if choiceID != nil {
			v := *choiceID
			choiceID = &v
		}
		a.ChoiceID = choiceID
	}
	m.st.answers[a.ID] = a
	return &a, nil
}

func (m *Memory) EnsureUserAnswer(_ context.Context, userID, questionID int64) (*models.UserAnswer, error) {
	return m.upsertAnswer(userID, questionID, nil, false)
}

func (m *Memory) SetAnswerChoice(_ context.Context, userID, questionID int64, choiceID *int64) (*models.UserAnswer, error) {
	return m.upsertAnswer(userID, questionID, choiceID, true)
}

func (m *Memory) OpenInterval(_ context.Context, userAnswerID int64, start time.Time) (*models.AnswerInterval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.st.answers[userAnswerID]; !ok {
		return nil, apperrors.NotFound("interval refers to a missing record")
	}
	iv := models.AnswerInterval{ID: m.id(), UserAnswerID: userAnswerID, StartTime: start}
	m.st.intervals[iv.ID] = iv
	return &iv, nil
}

func (m *Memory) CloseLatestInterval(_ context.Context, userAnswerID int64, end time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var (
		latest models.AnswerInterval
		found  bool
	)
	for _, iv := range m.st.intervals {
		if iv.UserAnswerID != userAnswerID || iv.EndTime != nil {
			continue
		}
		if !found || iv.StartTime.After(latest.StartTime) || (iv.StartTime.Equal(latest.StartTime) && iv.ID > latest.ID) {
			latest, found = iv, true
		}
	}
	if !found {
		return nil
	}
	if end.Before(latest.StartTime) {
		end = latest.StartTime
	}
	latest.EndTime = &end
	m.st.intervals[latest.ID] = latest
	return nil
}

func (m *Memory) ListIntervals(_ context.Context, userAnswerID int64) ([]models.AnswerInterval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AnswerInterval
	for _, iv := range m.st.intervals {
		if iv.UserAnswerID == userAnswerID {
			out = append(out, iv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out, nil
}

func (m *Memory) QuestionTimes(_ context.Context, userID, examID int64) (map[int64]time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	times := make(map[int64]time.Duration)
	for _, iv := range m.st.intervals {
		a := m.st.answers[iv.UserAnswerID]
		if a.UserID != userID || m.st.questions[a.QuestionID].ExamID != examID || iv.EndTime == nil {
			continue
		}
		times[a.QuestionID] += iv.Duration()
	}
	return times, nil
}

// --- results ---

func (m *Memory) decorate(r models.ExamResult) models.ExamResult {
	e := m.st.exams[r.ExamID]
	r.ExamName = e.Name
	r.CourseName = m.st.courses[e.CourseID].Name
	r.Username = m.st.users[r.UserID].Username
	return r
}

func (m *Memory) GetResult(_ context.Context, id int64) (*models.ExamResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.st.results[id]
	if !ok {
		return nil, apperrors.NotFound("exam result not found")
	}
	r = m.decorate(r)
	return &r, nil
}

func (m *Memory) FindResult(_ context.Context, userID, examID int64) (*models.ExamResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.st.results {
		if r.UserID == userID && r.ExamID == examID {
			r = m.decorate(r)
			return &r, nil
		}
	}
	return nil, apperrors.NotFound("exam result not found")
}

func (m *Memory) CreateResult(_ context.Context, r *models.ExamResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.st.results {
		if other.UserID == r.UserID && other.ExamID == r.ExamID {
			return apperrors.Conflict("This exam has already been submitted.")
		}
	}
	if r.Score+r.IncorrectAnswers+r.UnansweredQuestions != r.TotalQuestions {
		return fmt.Errorf("exam result counts do not add up to %d", r.TotalQuestions)
	}
	r.ID = m.id()
	m.st.results[r.ID] = *r
	return nil
}

func (m *Memory) listResults(keep func(models.ExamResult) bool) []models.ExamResult {
	var out []models.ExamResult
	for _, r := range m.st.results {
		if keep(r) {
			out = append(out, m.decorate(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (m *Memory) ListExamResults(_ context.Context, examID int64) ([]models.ExamResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listResults(func(r models.ExamResult) bool { return r.ExamID == examID }), nil
}

func (m *Memory) ListUserResults(_ context.Context, userID, teacherID int64) ([]models.ExamResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listResults(func(r models.ExamResult) bool {
		return r.UserID == userID && (teacherID == 0 || m.teacherOfExam(r.ExamID) == teacherID)
	}), nil
}

// --- stats and audit ---

func (m *Memory) TeacherStats(_ context.Context, teacherID int64) (models.TeacherStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var st models.TeacherStats
	for _, c := range m.st.courses {
		if c.TeacherID == teacherID {
			st.Courses++
		}
	}
	for _, e := range m.st.exams {
		if m.teacherOfExam(e.ID) == teacherID {
			st.Exams++
		}
	}
	for _, q := range m.st.questions {
		if m.teacherOfExam(q.ExamID) == teacherID {
			st.Questions++
		}
	}
	for _, r := range m.st.results {
		if m.teacherOfExam(r.ExamID) == teacherID {
			st.Results++
		}
	}
	return st, nil
}

func (m *Memory) LogEvent(_ context.Context, actor, action, target, notes string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.events = append(m.st.events, models.AuditEvent{
		ID: m.id(), Timestamp: time.Now(), Action: action, Actor: actor, Target: target, Notes: notes,
	})
}

func (m *Memory) ListEvents(_ context.Context, actor string, limit int) ([]models.AuditEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AuditEvent
	for i := len(m.st.events) - 1; i >= 0 && len(out) < limit; i-- {
		if m.st.events[i].Actor == actor {
			out = append(out, m.st.events[i])
		}
	}
	return out, nil
}

// Events returns every recorded audit event, oldest first.
func (m *Memory) Events() []models.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.AuditEvent(nil), m.st.events...)
}

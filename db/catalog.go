package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"exam-portal/apperrors"
	"exam-portal/models"
)

// --- courses ---

// CreateCourse inserts c and sets its ID.
func (s *Store) CreateCourse(ctx context.Context, c *models.Course) error {
	err := s.q(ctx).QueryRow(ctx, `
		INSERT INTO courses (name, description, teacher_id) VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, c.Name, c.Description, c.TeacherID).Scan(&c.ID, &c.CreatedAt)
	return mapError(err, "course")
}

// GetCourse fetches a course by ID.
func (s *Store) GetCourse(ctx context.Context, id int64) (*models.Course, error) {
	var c models.Course
	err := s.q(ctx).QueryRow(ctx, `
		SELECT id, name, description, teacher_id, created_at FROM courses WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Description, &c.TeacherID, &c.CreatedAt)
	if err != nil {
		return nil, mapError(err, "course")
	}
	return &c, nil
}

// UpdateCourse saves name and description.
func (s *Store) UpdateCourse(ctx context.Context, c *models.Course) error {
	tag, err := s.q(ctx).Exec(ctx, `UPDATE courses SET name = $2, description = $3 WHERE id = $1`, c.ID, c.Name, c.Description)
	if err != nil {
		return mapError(err, "course")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("course not found")
	}
	return nil
}

// DeleteCourse removes a course with its exams.
func (s *Store) DeleteCourse(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "courses", "course", id)
}

// CountCourses counts the teacher's courses matching search on name or description.
func (s *Store) CountCourses(ctx context.Context, teacherID int64, search string) (int, error) {
	var n int
	err := s.q(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM courses
		WHERE teacher_id = $1 AND (name ILIKE $2 OR description ILIKE $2)
	`, teacherID, like(search)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count courses: %w", err)
	}
	return n, nil
}

// ListCourses returns one page of the teacher's courses, newest first.
func (s *Store) ListCourses(ctx context.Context, teacherID int64, search string, page models.Page) ([]models.Course, error) {
	rows, err := s.q(ctx).Query(ctx, `
		SELECT id, name, description, teacher_id, created_at FROM courses
		WHERE teacher_id = $1 AND (name ILIKE $2 OR description ILIKE $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4
	`, teacherID, like(search), page.Size, page.Offset())
	if err != nil {
		return nil, fmt.Errorf("failed to query courses: %w", err)
	}
	defer rows.Close()

	var courses []models.Course
	for rows.Next() {
		var c models.Course
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.TeacherID, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan course row: %w", err)
		}
		courses = append(courses, c)
	}
	return courses, rows.Err()
}

// --- exams ---

const examSelect = `
	SELECT e.id, e.name, e.description, e.course_id, e.created_at, e.duration_seconds, e.exam_type, e.code,
		c.name, c.teacher_id
	FROM exams e
	JOIN courses c ON c.id = e.course_id`

func scanExam(row interface{ Scan(...any) error }) (*models.Exam, error) {
	var (
		e       models.Exam
		seconds int64
	)
	err := row.Scan(&e.ID, &e.Name, &e.Description, &e.CourseID, &e.CreatedAt, &seconds, &e.ExamType, &e.Code,
		&e.CourseName, &e.TeacherID)
	if err != nil {
		return nil, err
	}
	e.Duration = time.Duration(seconds) * time.Second
	return &e, nil
}

// CreateExam inserts e, generating its code when unset.
func (s *Store) CreateExam(ctx context.Context, e *models.Exam) error {
	if e.Code == uuid.Nil {
		e.Code = uuid.New()
	}
	err := s.q(ctx).QueryRow(ctx, `
		INSERT INTO exams (course_id, name, description, duration_seconds, exam_type, code)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, e.CourseID, e.Name, e.Description, int64(e.Duration/time.Second), e.ExamType, e.Code).Scan(&e.ID, &e.CreatedAt)
	return mapError(err, "exam")
}

// GetExam fetches an exam with its course name and owner.
func (s *Store) GetExam(ctx context.Context, id int64) (*models.Exam, error) {
	e, err := scanExam(s.q(ctx).QueryRow(ctx, examSelect+` WHERE e.id = $1`, id))
	if err != nil {
		return nil, mapError(err, "exam")
	}
	return e, nil
}

// GetExamByCode looks an exam up by its public code.
func (s *Store) GetExamByCode(ctx context.Context, code uuid.UUID) (*models.Exam, error) {
	e, err := scanExam(s.q(ctx).QueryRow(ctx, examSelect+` WHERE e.code = $1`, code))
	if err != nil {
		return nil, mapError(err, "exam")
	}
	return e, nil
}

// UpdateExam saves the editable exam fields. The code never changes.
func (s *Store) UpdateExam(ctx context.Context, e *models.Exam) error {
	tag, err := s.q(ctx).Exec(ctx, `
		UPDATE exams SET name = $2, description = $3, duration_seconds = $4, exam_type = $5 WHERE id = $1
	`, e.ID, e.Name, e.Description, int64(e.Duration/time.Second), e.ExamType)
	if err != nil {
		return mapError(err, "exam")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("exam not found")
	}
	return nil
}

// DeleteExam removes an exam with its questions, answers and results.
func (s *Store) DeleteExam(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "exams", "exam", id)
}

func examWhere(f models.ExamFilter) (string, []any) {
	where := ` WHERE c.teacher_id = $1 AND (e.name ILIKE $2 OR e.description ILIKE $2)`
	args := []any{f.TeacherID, like(f.Search)}
	if f.CourseID != 0 {
		args = append(args, f.CourseID)
		where += fmt.Sprintf(` AND e.course_id = $%d`, len(args))
	}
	return where, args
}

// CountExams counts exams matching f.
func (s *Store) CountExams(ctx context.Context, f models.ExamFilter) (int, error) {
	where, args := examWhere(f)
	var n int
	err := s.q(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM exams e JOIN courses c ON c.id = e.course_id`+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count exams: %w", err)
	}
	return n, nil
}

// ListExams returns one page of exams matching f, newest first.
func (s *Store) ListExams(ctx context.Context, f models.ExamFilter, page models.Page) ([]models.Exam, error) {
	where, args := examWhere(f)
	args = append(args, page.Size, page.Offset())
	query := examSelect + where + fmt.Sprintf(` ORDER BY e.created_at DESC, e.id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query exams: %w", err)
	}
	defer rows.Close()

	var exams []models.Exam
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan exam row: %w", err)
		}
		exams = append(exams, *e)
	}
	return exams, rows.Err()
}

// --- questions and choices ---

// ListQuestions returns the exam's questions with their choices, ordered by ID.
func (s *Store) ListQuestions(ctx context.Context, examID int64) ([]models.Question, error) {
	rows, err := s.q(ctx).Query(ctx, `
		SELECT id, exam_id, question_text, explanation_text, explanation_video
		FROM questions WHERE exam_id = $1 ORDER BY id
	`, examID)
	if err != nil {
		return nil, fmt.Errorf("failed to query questions: %w", err)
	}
	questions, err := collectQuestions(rows)
	if err != nil {
		return nil, err
	}
	return questions, s.attachChoices(ctx, questions)
}

func collectQuestions(rows pgx.Rows) ([]models.Question, error) {
	defer rows.Close()
	var questions []models.Question
	for rows.Next() {
		var q models.Question
		if err := rows.Scan(&q.ID, &q.ExamID, &q.QuestionText, &q.ExplanationText, &q.ExplanationVideo); err != nil {
			return nil, fmt.Errorf("failed to scan question row: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

func (s *Store) attachChoices(ctx context.Context, questions []models.Question) error {
	if len(questions) == 0 {
		return nil
	}
	ids := make([]int64, len(questions))
	index := make(map[int64]int, len(questions))
	for i, q := range questions {
		ids[i] = q.ID
		index[q.ID] = i
	}
	rows, err := s.q(ctx).Query(ctx, `
		SELECT id, question_id, choice_text, is_correct FROM choices
		WHERE question_id = ANY($1) ORDER BY id
	`, ids)
	if err != nil {
		return fmt.Errorf("failed to query choices: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var c models.Choice
		if err := rows.Scan(&c.ID, &c.QuestionID, &c.ChoiceText, &c.IsCorrect); err != nil {
			return fmt.Errorf("failed to scan choice row: %w", err)
		}
		i := index[c.QuestionID]
		questions[i].Choices = append(questions[i].Choices, c)
	}
	return rows.Err()
}

// GetQuestion fetches a question with its choices.
func (s *Store) GetQuestion(ctx context.Context, id int64) (*models.Question, error) {
	var q models.Question
	err := s.q(ctx).QueryRow(ctx, `
		SELECT id, exam_id, question_text, explanation_text, explanation_video FROM questions WHERE id = $1
	`, id).Scan(&q.ID, &q.ExamID, &q.QuestionText, &q.ExplanationText, &q.ExplanationVideo)
	if err != nil {
		return nil, mapError(err, "question")
	}
	list := []models.Question{q}
	if err := s.attachChoices(ctx, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

// CountQuestions counts the exam's questions whose text contains search.
func (s *Store) CountQuestions(ctx context.Context, examID int64, search string) (int, error) {
	var n int
	err := s.q(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM questions WHERE exam_id = $1 AND question_text ILIKE $2
	`, examID, like(search)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count questions: %w", err)
	}
	return n, nil
}

// SearchQuestions returns one page of the exam's questions whose text contains search.
func (s *Store) SearchQuestions(ctx context.Context, examID int64, search string, page models.Page) ([]models.Question, error) {
	rows, err := s.q(ctx).Query(ctx, `
		SELECT id, exam_id, question_text, explanation_text, explanation_video
		FROM questions WHERE exam_id = $1 AND question_text ILIKE $2
		ORDER BY id LIMIT $3 OFFSET $4
	`, examID, like(search), page.Size, page.Offset())
	if err != nil {
		return nil, fmt.Errorf("failed to query questions: %w", err)
	}
	questions, err := collectQuestions(rows)
	if err != nil {
		return nil, err
	}
	return questions, s.attachChoices(ctx, questions)
}

// CreateQuestion inserts q and its choices, setting all IDs.
func (s *Store) CreateQuestion(ctx context.Context, q *models.Question) error {
	return s.InTx(ctx, func(ctx context.Context) error {
		err := s.q(ctx).QueryRow(ctx, `
			INSERT INTO questions (exam_id, question_text, explanation_text, explanation_video)
			VALUES ($1, $2, $3, $4) RETURNING id
		`, q.ExamID, q.QuestionText, q.ExplanationText, q.ExplanationVideo).Scan(&q.ID)
		if err != nil {
			return mapError(err, "question")
		}
		for i := range q.Choices {
			if err := s.insertChoice(ctx, q.ID, &q.Choices[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) insertChoice(ctx context.Context, questionID int64, c *models.Choice) error {
	c.QuestionID = questionID
	err := s.q(ctx).QueryRow(ctx, `
		INSERT INTO choices (question_id, choice_text, is_correct) VALUES ($1, $2, $3) RETURNING id
	`, questionID, c.ChoiceText, c.IsCorrect).Scan(&c.ID)
	return mapError(err, "choice")
}

// UpdateQuestion saves q's text and choices in one transaction: choices without an ID are
// added, the others updated, and deleteChoiceIDs removed.
func (s *Store) UpdateQuestion(ctx context.Context, q *models.Question, deleteChoiceIDs []int64) error {
	return s.InTx(ctx, func(ctx context.Context) error {
		tag, err := s.q(ctx).Exec(ctx, `
			UPDATE questions SET question_text = $2, explanation_text = $3, explanation_video = $4 WHERE id = $1
		`, q.ID, q.QuestionText, q.ExplanationText, q.ExplanationVideo)
		if err != nil {
			return mapError(err, "question")
		}
		if tag.RowsAffected() == 0 {
			return apperrors.NotFound("question not found")
		}
		if len(deleteChoiceIDs) > 0 {
			_, err := s.q(ctx).Exec(ctx, `DELETE FROM choices WHERE question_id = $1 AND id = ANY($2)`, q.ID, deleteChoiceIDs)
			if err != nil {
				return fmt.Errorf("failed to delete choices: %w", err)
			}
		}
		for i := range q.Choices {
			c := &q.Choices[i]
			if c.ID == 0 {
				if err := s.insertChoice(ctx, q.ID, c); err != nil {
					return err
				}
				continue
			}
			tag, err := s.q(ctx).Exec(ctx, `
				UPDATE choices SET choice_text = $3, is_correct = $4 WHERE id = $1 AND question_id = $2
			`, c.ID, q.ID, c.ChoiceText, c.IsCorrect)
			if err != nil {
				return mapError(err, "choice")
			}
			if tag.RowsAffected() == 0 {
				return apperrors.NotFound(fmt.Sprintf("choice %d not found for question %d", c.ID, q.ID))
			}
		}
		return nil
	})
}

// DeleteQuestion removes a question with its choices and answers.
func (s *Store) DeleteQuestion(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "questions", "question", id)
}

// GetChoice fetches a single choice.
func (s *Store) GetChoice(ctx context.Context, id int64) (*models.Choice, error) {
	var c models.Choice
	err := s.q(ctx).QueryRow(ctx, `
		SELECT id, question_id, choice_text, is_correct FROM choices WHERE id = $1
	`, id).Scan(&c.ID, &c.QuestionID, &c.ChoiceText, &c.IsCorrect)
	if err != nil {
		return nil, mapError(err, "choice")
	}
	return &c, nil
}

// DeleteChoice removes a choice. Answers that selected it become unanswered.
func (s *Store) DeleteChoice(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "choices", "choice", id)
}

// TeacherStats counts what the teacher owns.
func (s *Store) TeacherStats(ctx context.Context, teacherID int64) (models.TeacherStats, error) {
	var st models.TeacherStats
	err := s.q(ctx).QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM courses WHERE teacher_id = $1),
			(SELECT COUNT(*) FROM exams e JOIN courses c ON c.id = e.course_id WHERE c.teacher_id = $1),
			(SELECT COUNT(*) FROM questions q JOIN exams e ON e.id = q.exam_id JOIN courses c ON c.id = e.course_id WHERE c.teacher_id = $1),
			(SELECT COUNT(*) FROM exam_results r JOIN exams e ON e.id = r.exam_id JOIN courses c ON c.id = e.course_id WHERE c.teacher_id = $1)
	`, teacherID).Scan(&st.Courses, &st.Exams, &st.Questions, &st.Results)
	if err != nil {
		return st, fmt.Errorf("failed to count teacher stats: %w", err)
	}
	return st, nil
}

// deleteByID deletes one row from table. table is always a constant from this package.
func (s *Store) deleteByID(ctx context.Context, table, what string, id int64) error {
	tag, err := s.q(ctx).Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, table), id)
	if err != nil {
		return mapError(err, what)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound(what + " not found")
	}
	return nil
}

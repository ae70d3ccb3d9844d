package db

import (
	"context"
	"fmt"
	"time"

	"exam-portal/models"
)

// --- answers and intervals ---

func scanAnswer(row interface{ Scan(...any) error }) (*models.UserAnswer, error) {
	var a models.UserAnswer
	if err := row.Scan(&a.ID, &a.UserID, &a.QuestionID, &a.ChoiceID); err != nil {
		return nil, err
	}
	return &a, nil
}

// ListUserAnswers returns the user's answers to the exam's questions.
func (s *Store) ListUserAnswers(ctx context.Context, userID, examID int64) ([]models.UserAnswer, error) {
	rows, err := s.q(ctx).Query(ctx, `
		SELECT ua.id, ua.user_id, ua.question_id, ua.choice_id
		FROM user_answers ua
		JOIN questions q ON q.id = ua.question_id
		WHERE ua.user_id = $1 AND q.exam_id = $2
		ORDER BY ua.question_id
	`, userID, examID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user answers: %w", err)
	}
	defer rows.Close()

	var answers []models.UserAnswer
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user answer: %w", err)
		}
		answers = append(answers, *a)
	}
	return answers, rows.Err()
}

// EnsureUserAnswer returns the (user, question) answer, creating it without a choice.
func (s *Store) EnsureUserAnswer(ctx context.Context, userID, questionID int64) (*models.UserAnswer, error) {
	// The no-op update makes RETURNING yield the existing row.
	a, err := scanAnswer(s.q(ctx).QueryRow(ctx, `
		INSERT INTO user_answers (user_id, question_id) VALUES ($1, $2)
		ON CONFLICT (user_id, question_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING id, user_id, question_id, choice_id
	`, userID, questionID))
	if err != nil {
		return nil, mapError(err, "answer")
	}
	return a, nil
}

// SetAnswerChoice upserts the (user, question) answer with choiceID; nil clears it.
func (s *Store) SetAnswerChoice(ctx context.Context, userID, questionID int64, choiceID *int64) (*models.UserAnswer, error) {
	a, err := scanAnswer(s.q(ctx).QueryRow(ctx, `
		INSERT INTO user_answers (user_id, question_id, choice_id) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, question_id) DO UPDATE SET choice_id = EXCLUDED.choice_id
		RETURNING id, user_id, question_id, choice_id
	`, userID, questionID, choiceID))
	if err != nil {
		return nil, mapError(err, "answer")
	}
	return a, nil
}

// OpenInterval starts a new interval on a user answer.
func (s *Store) OpenInterval(ctx context.Context, userAnswerID int64, start time.Time) (*models.AnswerInterval, error) {
	iv := models.AnswerInterval{UserAnswerID: userAnswerID, StartTime: start}
	err := s.q(ctx).QueryRow(ctx, `
		INSERT INTO answer_intervals (user_answer_id, start_time) VALUES ($1, $2) RETURNING id
	`, userAnswerID, start).Scan(&iv.ID)
	if err != nil {
		return nil, mapError(err, "interval")
	}
	return &iv, nil
}

// CloseLatestInterval ends the most recently started open interval. A clock that went
// backwards yields a zero-length interval.
func (s *Store) CloseLatestInterval(ctx context.Context, userAnswerID int64, end time.Time) error {
	_, err := s.q(ctx).Exec(ctx, `
		UPDATE answer_intervals SET end_time = GREATEST($2, start_time)
		WHERE id = (
			SELECT id FROM answer_intervals
			WHERE user_answer_id = $1 AND end_time IS NULL
			ORDER BY start_time DESC, id DESC
			LIMIT 1
		)
	`, userAnswerID, end)
	if err != nil {
		return fmt.Errorf("failed to close interval for answer %d: %w", userAnswerID, err)
	}
	return nil
}

// ListIntervals returns the answer's intervals in start order.
func (s *Store) ListIntervals(ctx context.Context, userAnswerID int64) ([]models.AnswerInterval, error) {
	rows, err := s.q(ctx).Query(ctx, `
		SELECT id, user_answer_id, start_time, end_time FROM answer_intervals
		WHERE user_answer_id = $1 ORDER BY start_time, id
	`, userAnswerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query intervals: %w", err)
	}
	defer rows.Close()

	var intervals []models.AnswerInterval
	for rows.Next() {
		var iv models.AnswerInterval
		if err := rows.Scan(&iv.ID, &iv.UserAnswerID, &iv.StartTime, &iv.EndTime); err != nil {
			return nil, fmt.Errorf("failed to scan interval: %w", err)
		}
		intervals = append(intervals, iv)
	}
	return intervals, rows.Err()
}

// QuestionTimes sums closed intervals per question for a user's answers in an exam.
func (s *Store) QuestionTimes(ctx context.Context, userID, examID int64) (map[int64]time.Duration, error) {
	rows, err := s.q(ctx).Query(ctx, `
		SELECT ua.question_id, ai.start_time, ai.end_time
		FROM answer_intervals ai
		JOIN user_answers ua ON ua.id = ai.user_answer_id
		JOIN questions q ON q.id = ua.question_id
		WHERE ua.user_id = $1 AND q.exam_id = $2 AND ai.end_time IS NOT NULL
	`, userID, examID)
	if err != nil {
		return nil, fmt.Errorf("failed to query question times: %w", err)
	}
	defer rows.Close()

	times := make(map[int64]time.Duration)
	for rows.Next() {
		var (
			questionID int64
			iv         models.AnswerInterval
		)
		if err := rows.Scan(&questionID, &iv.StartTime, &iv.EndTime); err != nil {
			return nil, fmt.Errorf("failed to scan question time: %w", err)
		}
		times[questionID] += iv.Duration()
	}
	return times, rows.Err()
}

// --- results ---

const resultSelect = `
	SELECT r.id, r.exam_id, r.user_id, r.score, r.total_questions, r.percentage, r.unanswered_questions,
		r.incorrect_answers, r.answered_at, r.start_time, r.end_time, r.submitted, r.time_up,
		e.name, c.name, u.username
	FROM exam_results r
	JOIN exams e ON e.id = r.exam_id
	JOIN courses c ON c.id = e.course_id
	JOIN users u ON u.id = r.user_id`

func scanResult(row interface{ Scan(...any) error }) (*models.ExamResult, error) {
	var r models.ExamResult
	err := row.Scan(&r.ID, &r.ExamID, &r.UserID, &r.Score, &r.TotalQuestions, &r.Percentage, &r.UnansweredQuestions,
		&r.IncorrectAnswers, &r.AnsweredAt, &r.StartTime, &r.EndTime, &r.Submitted, &r.TimeUp,
		&r.ExamName, &r.CourseName, &r.Username)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetResult fetches a result by ID.
func (s *Store) GetResult(ctx context.Context, id int64) (*models.ExamResult, error) {
	r, err := scanResult(s.q(ctx).QueryRow(ctx, resultSelect+` WHERE r.id = $1`, id))
	if err != nil {
		return nil, mapError(err, "exam result")
	}
	return r, nil
}

// FindResult fetches the user's result for an exam.
func (s *Store) FindResult(ctx context.Context, userID, examID int64) (*models.ExamResult, error) {
	r, err := scanResult(s.q(ctx).QueryRow(ctx, resultSelect+` WHERE r.user_id = $1 AND r.exam_id = $2`, userID, examID))
	if err != nil {
		return nil, mapError(err, "exam result")
	}
	return r, nil
}

// CreateResult inserts r. A second result for the same (user, exam) is a conflict.
func (s *Store) CreateResult(ctx context.Context, r *models.ExamResult) error {
	err := s.q(ctx).QueryRow(ctx, `
		INSERT INTO exam_results (exam_id, user_id, score, total_questions, percentage, unanswered_questions,
			incorrect_answers, answered_at, start_time, end_time, submitted, time_up)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`, r.ExamID, r.UserID, r.Score, r.TotalQuestions, r.Percentage, r.UnansweredQuestions,
		r.IncorrectAnswers, r.AnsweredAt, r.StartTime, r.EndTime, r.Submitted, r.TimeUp).Scan(&r.ID)
	return mapError(err, "exam result")
}

func (s *Store) listResults(ctx context.Context, where string, args ...any) ([]models.ExamResult, error) {
	rows, err := s.q(ctx).Query(ctx, resultSelect+where+` ORDER BY r.answered_at DESC, r.id DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query exam results: %w", err)
	}
	defer rows.Close()

	var results []models.ExamResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan exam result: %w", err)
		}
		results = append(results, *r)
	}
	return results, rows.Err()
}

// ListExamResults returns all results of an exam.
func (s *Store) ListExamResults(ctx context.Context, examID int64) ([]models.ExamResult, error) {
	return s.listResults(ctx, ` WHERE r.exam_id = $1`, examID)
}

// ListUserResults returns a user's results. A non-zero teacherID keeps only results from
// that teacher's courses.
func (s *Store) ListUserResults(ctx context.Context, userID, teacherID int64) ([]models.ExamResult, error) {
	if teacherID == 0 {
		return s.listResults(ctx, ` WHERE r.user_id = $1`, userID)
	}
	return s.listResults(ctx, ` WHERE r.user_id = $1 AND c.teacher_id = $2`, userID, teacherID)
}

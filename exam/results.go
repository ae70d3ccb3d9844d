package exam

import (
	"context"
	"fmt"
	"time"

	"exam-portal/models"
)

// ResultRow is one question of a finalized attempt.
type ResultRow struct {
	Question models.Question
	Selected *models.Choice
	Correct  bool
	// Time is the sum of closed intervals; only filled for teacher views.
	Time time.Duration
}

// ResultView is a finalized attempt with its per-question breakdown.
type ResultView struct {
	Result    models.ExamResult
	Exam      models.Exam
	Rows      []ResultRow
	TotalTime time.Duration
}

// Result loads a result and pairs every question of its exam with the student's choice.
// withTimes adds per-question time spent.
func (s *Service) Result(ctx context.Context, resultID int64, withTimes bool) (*ResultView, error) {
	r, err := s.repo.GetResult(ctx, resultID)
	if err != nil {
		return nil, err
	}
	exam, err := s.repo.GetExam(ctx, r.ExamID)
	if err != nil {
		return nil, err
	}
	questions, err := s.repo.ListQuestions(ctx, r.ExamID)
	if err != nil {
		return nil, fmt.Errorf("failed to load questions for exam %d: %w", r.ExamID, err)
	}
	list, err := s.repo.ListUserAnswers(ctx, r.UserID, r.ExamID)
	if err != nil {
		return nil, fmt.Errorf("failed to load answers for result %d: %w", resultID, err)
	}
	answers := answerMap(list)

	var times map[int64]time.Duration
	if withTimes {
		times, err = s.repo.QuestionTimes(ctx, r.UserID, r.ExamID)
		if err != nil {
			return nil, fmt.Errorf("failed to load question times for result %d: %w", resultID, err)
		}
	}

	view := &ResultView{Result: *r, Exam: *exam, TotalTime: r.TotalTime()}
	for _, q := range questions {
		row := ResultRow{Question: q, Time: times[q.ID]}
		if a, ok := answers[q.ID]; ok && a.ChoiceID != nil {
			if c, found := q.Choice(*a.ChoiceID); found {
				row.Selected = &c
				row.Correct = c.IsCorrect
			}
		}
		view.Rows = append(view.Rows, row)
	}
	return view, nil
}

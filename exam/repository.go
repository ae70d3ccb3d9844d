package exam

import (
	"context"
	"time"

	"exam-portal/models"
)

// Repository is the persistence the exam-taking flow needs. Lookups of missing rows return
// an error wrapping apperrors.ErrNotFound; unique violations wrap apperrors.ErrConflict.
type Repository interface {
	GetExam(ctx context.Context, id int64) (*models.Exam, error)
	// ListQuestions returns the exam's questions with their choices, ordered by ID.
	ListQuestions(ctx context.Context, examID int64) ([]models.Question, error)
	GetQuestion(ctx context.Context, id int64) (*models.Question, error)

	GetResult(ctx context.Context, id int64) (*models.ExamResult, error)
	FindResult(ctx context.Context, userID, examID int64) (*models.ExamResult, error)
	CreateResult(ctx context.Context, r *models.ExamResult) error

	ListUserAnswers(ctx context.Context, userID, examID int64) ([]models.UserAnswer, error)
	// EnsureUserAnswer returns the (user, question) answer, creating it without a choice.
	EnsureUserAnswer(ctx context.Context, userID, questionID int64) (*models.UserAnswer, error)
	// SetAnswerChoice upserts the (user, question) answer with choiceID; nil clears it.
	SetAnswerChoice(ctx context.Context, userID, questionID int64, choiceID *int64) (*models.UserAnswer, error)

	OpenInterval(ctx context.Context, userAnswerID int64, start time.Time) (*models.AnswerInterval, error)
	// CloseLatestInterval sets end on the most recently started open interval. It is a
	// no-op when no interval is open. The stored end is never before the start.
	CloseLatestInterval(ctx context.Context, userAnswerID int64, end time.Time) error
	ListIntervals(ctx context.Context, userAnswerID int64) ([]models.AnswerInterval, error)
	// QuestionTimes sums closed intervals per question for a user's answers in an exam.
	QuestionTimes(ctx context.Context, userID, examID int64) (map[int64]time.Duration, error)

	// InTx runs fn in one transaction. Repository calls made with the ctx passed to fn
	// join it.
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Progress is the per-user session state of exam taking.
type Progress interface {
	ExamStart(examID int64) (time.Time, bool)
	SetExamStart(examID int64, start time.Time)
	ClearExam(examID int64)
	Unanswered() []int64
	SetUnanswered(ids []int64)
}

// Observer is told about finished writes. Used for metrics.
type Observer interface {
	AnswerSaved()
	ResultFinalized(timeUp bool)
}

type nopObserver struct{}

func (nopObserver) AnswerSaved()         {}
func (nopObserver) ResultFinalized(bool) {}

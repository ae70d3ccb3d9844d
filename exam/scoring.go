package exam

import (
	"math"
	"time"

	"exam-portal/models"
)

// Tally is the outcome of scoring one attempt.
type Tally struct {
	Score      int
	Incorrect  int
	Unanswered int
	Total      int
	Percentage float64
}

// Score classifies every question of the exam against the student's answers, keyed by
// question ID. A question with no answer row or a nil choice is unanswered.
func Score(questions []models.Question, answers map[int64]models.UserAnswer) Tally {
	t := Tally{Total: len(questions)}
	for _, q := range questions {
		a, ok := answers[q.ID]
		if !ok || a.ChoiceID == nil {
			t.Unanswered++
			continue
		}
		choice, found := q.Choice(*a.ChoiceID)
		if found && choice.IsCorrect {
			t.Score++
		} else {
			t.Incorrect++
		}
	}
	t.Percentage = Percentage(t.Score, t.Total)
	return t
}

// Percentage is score/total*100 rounded to two decimals. An exam without questions scores 0.
func Percentage(score, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(score)/float64(total)*100*100) / 100
}

// RemainingTime is max(0, duration - (now - start)).
func RemainingTime(duration time.Duration, start, now time.Time) time.Duration {
	remaining := duration - now.Sub(start)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// UnansweredIDs is the set difference of the exam's question IDs and the IDs answered with
// a non-nil choice, kept in exam order.
func UnansweredIDs(questions []models.Question, answers map[int64]models.UserAnswer) []int64 {
	ids := make([]int64, 0, len(questions))
	for _, q := range questions {
		if a, ok := answers[q.ID]; ok && a.Answered() {
			continue
		}
		ids = append(ids, q.ID)
	}
	return ids
}

// TotalTime sums the closed intervals.
func TotalTime(intervals []models.AnswerInterval) time.Duration {
	var total time.Duration
	for _, iv := range intervals {
		total += iv.Duration()
	}
	return total
}

package exam

import (
	"fmt"

	"exam-portal/apperrors"
	"exam-portal/models"
)

// Sequence is an exam's questions in their stable order. Pages are 1-based and hold one
// question each, so page n is index n-1.
type Sequence struct {
	questions []models.Question
}

// NewSequence wraps questions that are already in presentation order.
func NewSequence(questions []models.Question) Sequence {
	return Sequence{questions: questions}
}

// Len is the number of questions, which is also the number of pages.
func (s Sequence) Len() int { return len(s.questions) }

// Questions returns the underlying ordered slice.
func (s Sequence) Questions() []models.Question { return s.questions }

// At returns the question on page.
func (s Sequence) At(page int) (models.Question, error) {
	if page < 1 || page > len(s.questions) {
		return models.Question{}, apperrors.NotFound(fmt.Sprintf("page %d does not exist", page))
	}
	return s.questions[page-1], nil
}

// HasNext reports whether page is followed by another page.
func (s Sequence) HasNext(page int) bool { return page >= 1 && page < len(s.questions) }

// HasPrevious reports whether page is preceded by another page.
func (s Sequence) HasPrevious(page int) bool { return page > 1 && page <= len(s.questions) }

// PageOf returns the page holding questionID.
func (s Sequence) PageOf(questionID int64) (int, bool) {
	for i, q := range s.questions {
		if q.ID == questionID {
			return i + 1, true
		}
	}
	return 0, false
}

// LastPage is the final page number, or 1 for an empty exam.
func (s Sequence) LastPage() int {
	if len(s.questions) == 0 {
		return 1
	}
	return len(s.questions)
}

// IDs lists question IDs in order.
func (s Sequence) IDs() []int64 {
	ids := make([]int64, len(s.questions))
	for i, q := range s.questions {
		ids[i] = q.ID
	}
	return ids
}

// FirstUnansweredPage returns the page of the first question, in exam order, whose ID is in
// unanswered. With nothing unanswered it returns the last page.
func (s Sequence) FirstUnansweredPage(unanswered []int64) int {
	pending := make(map[int64]struct{}, len(unanswered))
	for _, id := range unanswered {
		pending[id] = struct{}{}
	}
	for i, q := range s.questions {
		if _, ok := pending[q.ID]; ok {
			return i + 1
		}
	}
	return s.LastPage()
}

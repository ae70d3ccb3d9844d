package exam

import (
	"context"
	"errors"
	"fmt"
	"time"

	"exam-portal/apperrors"
	"exam-portal/logger"
	"exam-portal/models"
	"exam-portal/utils"
)

// Action is the navigation button a student pressed on a question page.
type Action string

const (
	ActionNone   Action = ""
	ActionNext   Action = "next"
	ActionBack   Action = "back"
	ActionSubmit Action = "submit"
)

// Submission is a parsed POST of a question page.
type Submission struct {
	Action Action
	// AnswerPresent is set when the form carried the question's answer field. ChoiceID nil
	// with AnswerPresent clears the answer.
	AnswerPresent bool
	ChoiceID      *int64
	// ClientRemaining is the countdown value reported by the browser, nil if absent.
	ClientRemaining *time.Duration
}

// Outcome tells the caller what to do after a question page request. Exactly one of
// View, RedirectPage or ResultID is set.
type Outcome struct {
	View         *PageView
	RedirectPage int
	ResultID     int64
}

// PageView is everything the question page renders.
type PageView struct {
	Exam                models.Exam
	Question            models.Question
	Page                int
	TotalPages          int
	HasNext             bool
	HasPrevious         bool
	SelectedChoiceID    *int64
	PreviousTime        time.Duration
	Remaining           time.Duration
	QuestionIDs         []int64
	Unanswered          []int64
	FirstUnansweredPage int
}

// Service drives students through exams.
type Service struct {
	repo      Repository
	now       func() time.Time
	timeGrace time.Duration
	observer  Observer
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithTimeGrace sets how much server-side time may remain when a client-reported
// expiry is still accepted.
func WithTimeGrace(d time.Duration) Option {
	return func(s *Service) { s.timeGrace = d }
}

// WithObserver attaches an observer for saved answers and finalized results.
func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

// NewService creates an exam Service.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		now:       time.Now,
		timeGrace: 5 * time.Second,
		observer:  nopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// attempt is the state shared by Enter and Answer.
type attempt struct {
	exam      *models.Exam
	seq       Sequence
	question  models.Question
	start     time.Time
	now       time.Time
	submitted *models.ExamResult
}

// deadline is when the attempt's time budget runs out.
func (a *attempt) deadline() time.Time { return a.start.Add(a.exam.Duration) }

// end is now, capped at the deadline.
func (a *attempt) end() time.Time {
	if d := a.deadline(); a.now.After(d) {
		return d
	}
	return a.now
}

func (s *Service) load(ctx context.Context, userID, examID int64, page int, progress Progress) (*attempt, error) {
	exam, err := s.repo.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	existing, err := s.findResult(ctx, userID, examID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &attempt{exam: exam, submitted: existing}, nil
	}

	questions, err := s.repo.ListQuestions(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("failed to load questions for exam %d: %w", examID, err)
	}
	seq := NewSequence(questions)
	q, err := seq.At(page)
	if err != nil {
		return nil, err
	}

	now := s.now()
	start, ok := progress.ExamStart(examID)
	if !ok {
		start = now
		progress.SetExamStart(examID, start)
	}
	return &attempt{exam: exam, seq: seq, question: q, start: start, now: now}, nil
}

// findResult returns nil without error when the user has not submitted the exam.
func (s *Service) findResult(ctx context.Context, userID, examID int64) (*models.ExamResult, error) {
	r, err := s.repo.FindResult(ctx, userID, examID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up result for user %d exam %d: %w", userID, examID, err)
	}
	return r, nil
}

// syncUnanswered recomputes the unanswered set and stores it in the session.
func (s *Service) syncUnanswered(ctx context.Context, userID int64, a *attempt, progress Progress) (map[int64]models.UserAnswer, []int64, error) {
	list, err := s.repo.ListUserAnswers(ctx, userID, a.exam.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load answers: %w", err)
	}
	answers := answerMap(list)
	unanswered := UnansweredIDs(a.seq.Questions(), answers)
	progress.SetUnanswered(unanswered)
	return answers, unanswered, nil
}

// Enter handles a GET of a question page: it opens a timing interval for the question and
// returns the page to render, or the result to redirect to when already submitted.
func (s *Service) Enter(ctx context.Context, userID, examID int64, page int, progress Progress) (Outcome, error) {
	a, err := s.load(ctx, userID, examID, page, progress)
	if err != nil {
		return Outcome{}, err
	}
	if a.submitted != nil {
		return Outcome{ResultID: a.submitted.ID}, nil
	}

	answers, unanswered, err := s.syncUnanswered(ctx, userID, a, progress)
	if err != nil {
		return Outcome{}, err
	}

	var ua *models.UserAnswer
	err = s.repo.InTx(ctx, func(ctx context.Context) error {
		var err error
		ua, err = s.repo.EnsureUserAnswer(ctx, userID, a.question.ID)
		if err != nil {
			return err
		}
		_, err = s.repo.OpenInterval(ctx, ua.ID, a.now)
		return err
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to open interval for question %d: %w", a.question.ID, err)
	}

	intervals, err := s.repo.ListIntervals(ctx, ua.ID)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to load intervals: %w", err)
	}

	view := &PageView{
		Exam:                *a.exam,
		Question:            a.question,
		Page:                page,
		TotalPages:          a.seq.Len(),
		HasNext:             a.seq.HasNext(page),
		HasPrevious:         a.seq.HasPrevious(page),
		PreviousTime:        TotalTime(intervals),
		Remaining:           RemainingTime(a.exam.Duration, a.start, a.now),
		QuestionIDs:         a.seq.IDs(),
		Unanswered:          unanswered,
		FirstUnansweredPage: a.seq.FirstUnansweredPage(unanswered),
	}
	if cur, ok := answers[a.question.ID]; ok {
		view.SelectedChoiceID = cur.ChoiceID
	}
	return Outcome{View: view}, nil
}

// Answer handles a POST of a question page: it records the answer, closes the open
// interval and decides where the student goes next, finalizing the attempt on submit or
// when the time budget is spent. A POST arriving later than the grace period after the
// deadline records nothing and finalizes with what was saved in time.
func (s *Service) Answer(ctx context.Context, userID, examID int64, page int, sub Submission, progress Progress) (Outcome, error) {
	a, err := s.load(ctx, userID, examID, page, progress)
	if err != nil {
		return Outcome{}, err
	}
	if a.submitted != nil {
		return Outcome{ResultID: a.submitted.ID}, nil
	}

	if s.overdue(a.deadline(), a.now) {
		logger.Warn().Int64("user_id", userID).Int64("exam_id", examID).
			Dur("late_by", a.now.Sub(a.deadline())).Msg("Discarding answer posted after the exam time ran out")
		err := s.repo.InTx(ctx, func(ctx context.Context) error {
			ua, err := s.repo.EnsureUserAnswer(ctx, userID, a.question.ID)
			if err != nil {
				return err
			}
			return s.repo.CloseLatestInterval(ctx, ua.ID, a.end())
		})
		if err != nil {
			return Outcome{}, fmt.Errorf("failed to close interval for question %d: %w", a.question.ID, err)
		}
		return s.complete(ctx, userID, a, true, progress)
	}

	if sub.AnswerPresent && sub.ChoiceID != nil {
		if _, ok := a.question.Choice(*sub.ChoiceID); !ok {
			return Outcome{}, apperrors.Validation("The selected choice does not belong to this question.")
		}
	}

	err = s.repo.InTx(ctx, func(ctx context.Context) error {
		var (
			ua  *models.UserAnswer
			err error
		)
		if sub.AnswerPresent {
			ua, err = s.repo.SetAnswerChoice(ctx, userID, a.question.ID, sub.ChoiceID)
		} else {
			ua, err = s.repo.EnsureUserAnswer(ctx, userID, a.question.ID)
		}
		if err != nil {
			return err
		}
		return s.repo.CloseLatestInterval(ctx, ua.ID, a.end())
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to record answer for question %d: %w", a.question.ID, err)
	}
	if sub.AnswerPresent {
		s.observer.AnswerSaved()
	}

	if _, _, err := s.syncUnanswered(ctx, userID, a, progress); err != nil {
		return Outcome{}, err
	}

	remaining := RemainingTime(a.exam.Duration, a.start, a.now)
	expired := remaining <= 0
	if !expired {
		switch {
		case sub.Action == ActionNext && a.seq.HasNext(page):
			return Outcome{RedirectPage: page + 1}, nil
		case sub.Action == ActionBack && a.seq.HasPrevious(page):
			return Outcome{RedirectPage: page - 1}, nil
		}
	}

	// The browser's countdown is only a hint; the session start time decides.
	hinted := sub.ClientRemaining != nil && *sub.ClientRemaining <= 0 && remaining <= s.timeGrace
	if sub.ClientRemaining != nil && *sub.ClientRemaining <= 0 && !hinted {
		logger.Warn().Int64("user_id", userID).Int64("exam_id", examID).
			Dur("server_remaining", remaining).Msg("Ignoring client time-up report")
	}

	if expired || sub.Action == ActionSubmit || hinted {
		return s.complete(ctx, userID, a, expired || (hinted && sub.Action != ActionSubmit), progress)
	}
	return Outcome{RedirectPage: page}, nil
}

// complete finalizes the attempt and forgets its session state.
func (s *Service) complete(ctx context.Context, userID int64, a *attempt, timeUp bool, progress Progress) (Outcome, error) {
	id, err := s.finalize(ctx, userID, a, timeUp)
	if err != nil {
		return Outcome{}, err
	}
	progress.ClearExam(a.exam.ID)
	progress.SetUnanswered(nil)
	return Outcome{ResultID: id}, nil
}

// overdue reports whether now is later than the grace period past deadline.
func (s *Service) overdue(deadline, now time.Time) bool {
	return now.Sub(deadline) > s.timeGrace
}

// finalize scores the attempt and stores the result. A result that already exists for
// (user, exam) is returned instead of creating a second one.
func (s *Service) finalize(ctx context.Context, userID int64, a *attempt, timeUp bool) (int64, error) {
	var resultID int64
	err := s.repo.InTx(ctx, func(ctx context.Context) error {
		existing, err := s.findResult(ctx, userID, a.exam.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			resultID = existing.ID
			return nil
		}
		list, err := s.repo.ListUserAnswers(ctx, userID, a.exam.ID)
		if err != nil {
			return err
		}
		tally := Score(a.seq.Questions(), answerMap(list))
		r := &models.ExamResult{
			ExamID:              a.exam.ID,
			UserID:              userID,
			Score:               tally.Score,
			TotalQuestions:      tally.Total,
			Percentage:          tally.Percentage,
			UnansweredQuestions: tally.Unanswered,
			IncorrectAnswers:    tally.Incorrect,
			AnsweredAt:          a.end(),
			StartTime:           a.start,
			EndTime:             a.end(),
			Submitted:           true,
			TimeUp:              timeUp,
		}
		if err := s.repo.CreateResult(ctx, r); err != nil {
			return err
		}
		resultID = r.ID
		return nil
	})
	if errors.Is(err, apperrors.ErrConflict) {
		// Lost a race with a concurrent submit; the other request's result stands.
		existing, ferr := s.findResult(ctx, userID, a.exam.ID)
		if ferr != nil {
			return 0, ferr
		}
		if existing != nil {
			return existing.ID, nil
		}
	}
	if err != nil {
		return 0, fmt.Errorf("failed to finalize exam %d for user %d: %w", a.exam.ID, userID, err)
	}

	s.observer.ResultFinalized(timeUp)
	logger.Info().Int64("user_id", userID).Int64("exam_id", a.exam.ID).Int64("result_id", resultID).
		Bool("time_up", timeUp).Msg("Exam finalized")
	return resultID, nil
}

// SaveAnswer upserts the user's choice for a question outside of page navigation. A nil
// choiceID clears the answer. The exam must have been entered in this session and still
// be within its time budget. The session's unanswered list follows the change.
func (s *Service) SaveAnswer(ctx context.Context, userID, questionID int64, choiceID *int64, progress Progress) error {
	q, err := s.repo.GetQuestion(ctx, questionID)
	if err != nil {
		return err
	}
	if choiceID != nil {
		if _, ok := q.Choice(*choiceID); !ok {
			return apperrors.NotFound(fmt.Sprintf("choice %d not found for question %d", *choiceID, questionID))
		}
	}
	existing, err := s.findResult(ctx, userID, q.ExamID)
	if err != nil {
		return err
	}
	if existing != nil {
		return apperrors.Conflict("This exam has already been submitted.")
	}
	exam, err := s.repo.GetExam(ctx, q.ExamID)
	if err != nil {
		return err
	}
	start, ok := progress.ExamStart(q.ExamID)
	if !ok {
		return apperrors.Conflict("This exam has not been started.")
	}
	if s.overdue(start.Add(exam.Duration), s.now()) {
		return apperrors.Conflict("The time for this exam is up.")
	}

	if _, err := s.repo.SetAnswerChoice(ctx, userID, questionID, choiceID); err != nil {
		return fmt.Errorf("failed to save answer for question %d: %w", questionID, err)
	}
	s.observer.AnswerSaved()

	pending := progress.Unanswered()
	if choiceID != nil {
		progress.SetUnanswered(utils.RemoveInt64(pending, questionID))
	} else if !utils.ContainsInt64(pending, questionID) {
		progress.SetUnanswered(append(pending, questionID))
	}
	return nil
}

// RemoveUnanswered drops questionID from the session's unanswered list. It reports whether
// the ID was present.
func RemoveUnanswered(progress Progress, questionID int64) bool {
	pending := progress.Unanswered()
	if !utils.ContainsInt64(pending, questionID) {
		return false
	}
	progress.SetUnanswered(utils.RemoveInt64(pending, questionID))
	return true
}

func answerMap(list []models.UserAnswer) map[int64]models.UserAnswer {
	m := make(map[int64]models.UserAnswer, len(list))
	for _, a := range list {
		m[a.QuestionID] = a
	}
	return m
}

package session

import (
	"time"

	"exam-portal/utils"
)

// Flash levels
const (
	FlashSuccess = "success"
	FlashError   = "error"
	FlashInfo    = "info"
)

// Flash is a one-shot message shown on the next rendered page.
type Flash struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Data is everything kept server-side for one browser session.
type Data struct {
	UserID int64 `json:"user_id,omitempty"`
	// Next is the path an anonymous visitor asked for before being sent to login.
	Next          string              `json:"next,omitempty"`
	ExamStarts    map[int64]time.Time `json:"exam_starts,omitempty"`
	UnansweredIDs []int64             `json:"unanswered_question_ids,omitempty"`
	Flashes       []Flash             `json:"flashes,omitempty"`

	dirty bool
}

// Authenticated reports whether a user is logged in.
func (d *Data) Authenticated() bool { return d.UserID != 0 }

// Login binds the session to a user.
func (d *Data) Login(userID int64) {
	d.UserID = userID
	d.dirty = true
}

// TakeNext returns and forgets the stored post-login path.
func (d *Data) TakeNext() string {
	next := d.Next
	if next != "" {
		d.Next = ""
		d.dirty = true
	}
	return next
}

// SetNext remembers where to go after login.
func (d *Data) SetNext(path string) {
	d.Next = path
	d.dirty = true
}

// AddFlash queues a message.
func (d *Data) AddFlash(level, message string) {
	d.Flashes = append(d.Flashes, Flash{Level: level, Message: message})
	d.dirty = true
}

// PopFlashes returns queued messages and clears them.
func (d *Data) PopFlashes() []Flash {
	flashes := d.Flashes
	if len(flashes) > 0 {
		d.Flashes = nil
		d.dirty = true
	}
	return flashes
}

// ExamStart returns when the user first opened examID in this session.
func (d *Data) ExamStart(examID int64) (time.Time, bool) {
	t, ok := d.ExamStarts[examID]
	return t, ok
}

// SetExamStart records the start of an exam attempt.
func (d *Data) SetExamStart(examID int64, start time.Time) {
	if d.ExamStarts == nil {
		d.ExamStarts = make(map[int64]time.Time)
	}
	d.ExamStarts[examID] = start
	d.dirty = true
}

// ClearExam forgets the start time of examID.
func (d *Data) ClearExam(examID int64) {
	if _, ok := d.ExamStarts[examID]; ok {
		delete(d.ExamStarts, examID)
		d.dirty = true
	}
}

// ClearExams forgets every exam timing, used at logout.
func (d *Data) ClearExams() {
	d.ExamStarts = nil
	d.UnansweredIDs = nil
	d.dirty = true
}

// Unanswered returns the question IDs the page navigator marks as unanswered.
func (d *Data) Unanswered() []int64 {
	return append([]int64(nil), d.UnansweredIDs...)
}

// SetUnanswered replaces the unanswered list.
func (d *Data) SetUnanswered(ids []int64) {
	d.UnansweredIDs = append([]int64(nil), ids...)
	if len(ids) == 0 {
		d.UnansweredIDs = nil
	}
	d.dirty = true
}

// IsUnanswered reports whether questionID is in the unanswered list.
func (d *Data) IsUnanswered(questionID int64) bool {
	return utils.ContainsInt64(d.UnansweredIDs, questionID)
}

// Dirty reports whether the data changed since it was loaded.
func (d *Data) Dirty() bool { return d.dirty }

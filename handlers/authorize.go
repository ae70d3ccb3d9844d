package handlers

import (
	"context"

	"exam-portal/apperrors"
	"exam-portal/models"
)

// authorizer loads teacher-owned records and rejects anyone but their owner.
type authorizer struct {
	store Store
}

func (a authorizer) course(ctx context.Context, u *models.User, id int64) (*models.Course, error) {
	c, err := a.store.GetCourse(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.TeacherID != u.ID {
		return nil, apperrors.Forbidden("course belongs to another teacher")
	}
	return c, nil
}

func (a authorizer) exam(ctx context.Context, u *models.User, id int64) (*models.Exam, error) {
	e, err := a.store.GetExam(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.TeacherID != u.ID {
		return nil, apperrors.Forbidden("exam belongs to another teacher")
	}
	return e, nil
}

func (a authorizer) question(ctx context.Context, u *models.User, id int64) (*models.Question, *models.Exam, error) {
	q, err := a.store.GetQuestion(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	e, err := a.exam(ctx, u, q.ExamID)
	if err != nil {
		return nil, nil, err
	}
	return q, e, nil
}

// result allows the student who took the exam and the teacher who owns it.
func (a authorizer) result(ctx context.Context, u *models.User, id int64) (*models.ExamResult, error) {
	r, err := a.store.GetResult(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.UserID == u.ID {
		return r, nil
	}
	if _, err := a.exam(ctx, u, r.ExamID); err != nil {
		return nil, err
	}
	return r, nil
}

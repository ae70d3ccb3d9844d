package dbtest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"exam-portal/models"
)

// AddUser creates an account with the given role. The password hash is left empty.
func (m *Memory) AddUser(t testing.TB, username, role string) models.User {
	t.Helper()
	u := models.User{Username: username, Email: username + "@example.com", FirstName: username, Role: role}
	if err := m.CreateUser(context.Background(), &u); err != nil {
		t.Fatalf("add user %s: %v", username, err)
	}
	return u
}

// AddCourse creates a course owned by teacherID.
func (m *Memory) AddCourse(t testing.TB, teacherID int64, name string) models.Course {
	t.Helper()
	c := models.Course{Name: name, Description: name + " description", TeacherID: teacherID}
	if err := m.CreateCourse(context.Background(), &c); err != nil {
		t.Fatalf("add course %s: %v", name, err)
	}
	return c
}

// AddExam creates an exam in courseID with one question per entry of correct. Each question
// gets three choices and correct[i] is the index of its correct choice.
func (m *Memory) AddExam(t testing.TB, courseID int64, duration time.Duration, correct ...int) (models.Exam, []models.Question) {
	t.Helper()
	ctx := context.Background()
	e := models.Exam{Name: "Exam", Description: "An exam", CourseID: courseID, Duration: duration, ExamType: models.ExamTypeExam}
	if err := m.CreateExam(ctx, &e); err != nil {
		t.Fatalf("add exam: %v", err)
	}
	var questions []models.Question
	for i, idx := range correct {
		q := models.Question{ExamID: e.ID, QuestionText: fmt.Sprintf("Question %d", i+1)}
		for j := 0; j < 3; j++ {
			q.Choices = append(q.Choices, models.Choice{ChoiceText: fmt.Sprintf("Choice %d", j+1), IsCorrect: j == idx})
		}
		if err := m.CreateQuestion(ctx, &q); err != nil {
			t.Fatalf("add question: %v", err)
		}
		questions = append(questions, q)
	}
	return e, questions
}

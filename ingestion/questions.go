package ingestion

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"exam-portal/apperrors"
	"exam-portal/logger"
	"exam-portal/models"
	"exam-portal/utils"
)

// MaxChoices is the number of choice_N/correct_N column pairs in a question bank.
const MaxChoices = 6

// Header returns the question bank columns in order.
func Header() []string {
	cols := []string{"question_text", "explanation_text", "explanation_video"}
	for i := 1; i <= MaxChoices; i++ {
		cols = append(cols, fmt.Sprintf("choice_%d", i), fmt.Sprintf("correct_%d", i))
	}
	return cols
}

// RowError locates a problem in the uploaded file. Line 0 means the file as a whole.
type RowError struct {
	Line    int
	Field   string
	Message string
}

func (e *RowError) Error() string {
	switch {
	case e.Line == 0:
		return e.Message
	case e.Field == "":
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	default:
		return fmt.Sprintf("line %d: %s: %s", e.Line, e.Field, e.Message)
	}
}

// Unwrap makes every RowError a validation error.
func (e *RowError) Unwrap() error { return apperrors.ErrValidation }

func rowErr(line int, field, msg string) error {
	logger.Warn().Int("line", line).Str("field", field).Msg("Rejected question bank: " + msg)
	return &RowError{Line: line, Field: field, Message: msg}
}

func parseFlag(v string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "yes", "1", "x":
		return true, true
	case "false", "no", "0", "":
		return false, true
	}
	return false, false
}

// ParseQuestions reads a question bank. The first row names the columns; question_text
// and choice_1 are required, every other column of Header is optional. Rows are checked
// the same way as the question form: text required, at least one choice, at least one
// choice marked correct. Blank lines are skipped.
func ParseQuestions(r io.Reader) ([]models.Question, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, rowErr(0, "", "The file is empty.")
	}
	if err != nil {
		return nil, rowErr(1, "", fmt.Sprintf("unreadable CSV: %v", err))
	}
	index := make(map[string]int, len(header))
	known := make(map[string]bool)
	for _, h := range Header() {
		known[h] = true
	}
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if !known[name] {
			return nil, rowErr(1, name, "unknown column")
		}
		if _, dup := index[name]; dup {
			return nil, rowErr(1, name, "duplicate column")
		}
		index[name] = i
	}
	for _, required := range []string{"question_text", "choice_1"} {
		if _, ok := index[required]; !ok {
			return nil, rowErr(1, required, "missing column")
		}
	}

	var (
		questions []models.Question
		seen      = make(map[string]int)
	)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			line := 0
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				line = pe.Line
			}
			return nil, rowErr(line, "", fmt.Sprintf("unreadable CSV: %v", err))
		}
		line, _ := reader.FieldPos(0)
		get := func(col string) string {
			i, ok := index[col]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}
		if strings.TrimSpace(strings.Join(record, "")) == "" {
			continue
		}

		q, err := parseRow(line, get)
		if err != nil {
			return nil, err
		}
		if first, dup := seen[q.QuestionText]; dup {
			return nil, rowErr(line, "question_text", fmt.Sprintf("duplicate of line %d", first))
		}
		seen[q.QuestionText] = line
		questions = append(questions, q)
	}
	if len(questions) == 0 {
		return nil, rowErr(0, "", "The file contains no questions.")
	}
	return questions, nil
}

func parseRow(line int, get func(string) string) (models.Question, error) {
	q := models.Question{
		QuestionText:    get("question_text"),
		ExplanationText: get("explanation_text"),
	}
	if q.QuestionText == "" {
		return q, rowErr(line, "question_text", "required")
	}
	if video := get("explanation_video"); video != "" {
		if !strings.HasPrefix(video, "http://") && !strings.HasPrefix(video, "https://") {
			return q, rowErr(line, "explanation_video", "must be an http or https URL")
		}
		q.ExplanationVideo = utils.StringPtr(video)
	}

	hasCorrect := false
	for i := 1; i <= MaxChoices; i++ {
		textCol, flagCol := fmt.Sprintf("choice_%d", i), fmt.Sprintf("correct_%d", i)
		text, rawFlag := get(textCol), get(flagCol)
		correct, ok := parseFlag(rawFlag)
		if !ok {
			return q, rowErr(line, flagCol, fmt.Sprintf("%q is not true or false", rawFlag))
		}
		if text == "" {
			if correct {
				return q, rowErr(line, flagCol, "marked correct but "+textCol+" is empty")
			}
			continue
		}
		hasCorrect = hasCorrect || correct
		q.Choices = append(q.Choices, models.Choice{ChoiceText: text, IsCorrect: correct})
	}
	if len(q.Choices) == 0 {
		return q, rowErr(line, "choice_1", "at least one choice is required")
	}
	if !hasCorrect {
		return q, rowErr(line, "correct_1", "at least one choice must be marked correct")
	}
	return q, nil
}

// QuestionWriter stores questions.
type QuestionWriter interface {
	CreateQuestion(ctx context.Context, q *models.Question) error
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ImportQuestions stores questions under examID in one transaction and returns how many
// were created.
func ImportQuestions(ctx context.Context, w QuestionWriter, examID int64, questions []models.Question) (int, error) {
	err := w.InTx(ctx, func(ctx context.Context) error {
		for i := range questions {
			questions[i].ExamID = examID
			if err := w.CreateQuestion(ctx, &questions[i]); err != nil {
				return fmt.Errorf("failed to store question %q: %w", questions[i].QuestionText, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	logger.Info().Int64("exam_id", examID).Int("questions", len(questions)).Msg("Imported question bank")
	return len(questions), nil
}

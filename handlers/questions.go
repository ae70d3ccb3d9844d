package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"exam-portal/apperrors"
	"exam-portal/ingestion"
	"exam-portal/models"
	"exam-portal/session"
	"exam-portal/utils"
)

// maxChoiceRows bounds the choice rows a question form carries.
const maxChoiceRows = 10

// choiceRow is one row of the question form as rendered.
type choiceRow struct {
	Index   int
	ID      int64
	Text    string
	Correct bool
}

func rowsFor(q *models.Question) []choiceRow {
	var rows []choiceRow
	if q != nil {
		for _, ch := range q.Choices {
			rows = append(rows, choiceRow{Index: len(rows), ID: ch.ID, Text: ch.ChoiceText, Correct: ch.IsCorrect})
		}
	}
	for blanks := 0; len(rows) < maxChoiceRows && (blanks < 2 || len(rows) < 4); blanks++ {
		rows = append(rows, choiceRow{Index: len(rows)})
	}
	return rows
}

func checked(v string) bool {
	switch strings.ToLower(v) {
	case "on", "true", "1", "yes":
		return true
	}
	return false
}

// parseQuestionForm reads the question fields and the choices-N-* rows. Rows without an
// ID and without text are empty slots and ignored; rows marked for deletion are collected
// separately.
func parseQuestionForm(c *gin.Context) (models.QuestionInput, []choiceRow, error) {
	in := models.QuestionInput{
		QuestionText:     strings.TrimSpace(c.PostForm("question_text")),
		ExplanationText:  strings.TrimSpace(c.PostForm("explanation_text")),
		ExplanationVideo: strings.TrimSpace(c.PostForm("explanation_video")),
	}
	var rows []choiceRow
	for i := 0; i < maxChoiceRows; i++ {
		prefix := "choices-" + strconv.Itoa(i) + "-"
		rawID := c.PostForm(prefix + "id")
		text := strings.TrimSpace(c.PostForm(prefix + "text"))
		correct := checked(c.PostForm(prefix + "correct"))

		id, err := utils.OptionalID(rawID)
		if err != nil {
			return in, rows, apperrors.FieldValidation(prefix+"id", "Invalid choice.")
		}
		row := choiceRow{Index: i, Text: text, Correct: correct}
		if id != nil {
			row.ID = *id
		}
		rows = append(rows, row)

		switch {
		case id != nil && checked(c.PostForm(prefix+"delete")):
			in.DeleteChoiceIDs = append(in.DeleteChoiceIDs, *id)
		case id == nil && text == "":
		case text == "":
			return in, rows, apperrors.FieldValidation(prefix+"text", "Choice text cannot be empty.")
		default:
			in.Choices = append(in.Choices, models.ChoiceInput{ID: row.ID, Text: text, IsCorrect: correct})
		}
	}
	return in, rows, validateQuestion(in)
}

// validateQuestion runs before any write.
func validateQuestion(in models.QuestionInput) error {
	if in.QuestionText == "" {
		return apperrors.FieldValidation("question_text", "Question text is required.")
	}
	if len(in.Choices) == 0 {
		return apperrors.FieldValidation("choices", "Add at least one choice.")
	}
	for _, ch := range in.Choices {
		if ch.IsCorrect {
			return nil
		}
	}
	return apperrors.FieldValidation("choices", "Please mark at least one choice as correct.")
}

// onlyCorrectChoice reports whether choiceID is the question's last correct choice.
func onlyCorrectChoice(q *models.Question, choiceID int64) bool {
	found := false
	for _, ch := range q.Choices {
		if !ch.IsCorrect {
			continue
		}
		if ch.ID != choiceID {
			return false
		}
		found = true
	}
	return found
}

func questionFromInput(in models.QuestionInput) models.Question {
	q := models.Question{
		QuestionText:     in.QuestionText,
		ExplanationText:  in.ExplanationText,
		ExplanationVideo: utils.StringPtr(in.ExplanationVideo),
	}
	for _, ch := range in.Choices {
		q.Choices = append(q.Choices, models.Choice{ID: ch.ID, ChoiceText: ch.Text, IsCorrect: ch.IsCorrect})
	}
	return q
}

func questionFormData(title, action string, e *models.Exam, q *models.Question, rows []choiceRow, errs []string) gin.H {
	return gin.H{
		"Title":    title,
		"Action":   action,
		"Exam":     e,
		"Question": q,
		"Rows":     rows,
		"Errors":   errs,
	}
}

// QuestionList lists an exam's questions with search and pagination.
// GET /question-list/:exam_id
func QuestionList(app *App) gin.HandlerFunc {
	auth := authorizer{app.Store}
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		id, err := paramID(c, "exam_id")
		if err != nil {
			fail(c, err, "/")
			return
		}
		e, err := auth.exam(ctx, user(c), id)
		if err != nil {
			fail(c, err, "/")
			return
		}
		search := strings.TrimSpace(c.Query("search"))
		total, err := app.Store.CountQuestions(ctx, e.ID, search)
		if err != nil {
			fail(c, err, "/")
			return
		}
		p := utils.NewPagination(total, utils.ParsePageNumber(c.Query("question_page")), utils.ParsePageSize(c.Query("per_page")))
		questions, err := app.Store.SearchQuestions(ctx, e.ID, search, models.Page{Number: p.CurrentPage, Size: p.PageSize})
		if err != nil {
			fail(c, err, "/")
			return
		}
		render(c, http.StatusOK, pageQuestionList, gin.H{
			"Title":      "Questions of " + e.Name,
			"Exam":       e,
			"Questions":  questions,
			"Search":     search,
			"Pagination": p,
		})
	}
}

// QuestionNew shows an empty question form.
// GET /teacher-exam/:exam_id/create-question
func QuestionNew(app *App) gin.HandlerFunc {
	auth := authorizer{app.Store}
	return func(c *gin.Context) {
		id, err := paramID(c, "exam_id")
		if err != nil {
			fail(c, err, "/")
			return
		}
		e, err := auth.exam(c.Request.Context(), user(c), id)
		if err != nil {
			fail(c, err, "/")
			return
		}
		render(c, http.StatusOK, pageQuestionForm, questionFormData("New Question", c.Request.URL.Path, e, &models.Question{}, rowsFor(nil), nil))
	}
}

// QuestionCreate stores a question with its choices.
// POST /teacher-exam/:exam_id/create-question
func QuestionCreate(app *App) gin.HandlerFunc {
	auth := authorizer{app.Store}
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		id, err := paramID(c, "exam_id")
		if err != nil {
			fail(c, err, "/")
			return
		}
		e, err := auth.exam(ctx, user(c), id)
		if err != nil {
			fail(c, err, "/")
			return
		}
		in, rows, err := parseQuestionForm(c)
		q := questionFromInput(in)
		if err != nil {
			render(c, http.StatusBadRequest, pageQuestionForm, questionFormData("New Question", c.Request.URL.Path, e, &q, rows,
				[]string{apperrors.Message(err, "The question is invalid.")}))
			return
		}
		q.ExamID = e.ID
		if err := app.Store.CreateQuestion(ctx, &q); err != nil {
			fail(c, err, c.Request.URL.Path)
			return
		}
		audit(c, app, "create_question", fmt.Sprintf("question:%d", q.ID), fmt.Sprintf("exam:%d", e.ID))
		flash(c, session.FlashSuccess, "Question created.")
		if c.PostForm("add_another") != "" {
			c.Redirect(http.StatusFound, c.Request.URL.Path)
			return
		}
		c.Redirect(http.StatusFound, fmt.Sprintf("/question-list/%d", e.ID))
	}
}

// QuestionEditPage shows the question form with its choices.
// GET /edit-exam/:exam_id/edit-question/:question_id
func QuestionEditPage(app *App) gin.HandlerFunc {
	auth := authorizer{app.Store}
	return func(c *gin.Context) {
		q, e, ok := editTarget(app, auth, c)
		if !ok {
			return
		}
		render(c, http.StatusOK, pageQuestionForm, questionFormData("Edit Question", c.Request.URL.Path, e, q, rowsFor(q), nil))
	}
}

// QuestionUpdate saves the question and adds, updates and deletes its choices in one
// transaction.
// POST /edit-exam/:exam_id/edit-question/:question_id
func QuestionUpdate(app *App) gin.HandlerFunc {
	auth := authorizer{app.Store}
	return func(c *gin.Context) {
		current, e, ok := editTarget(app, auth, c)
		if !ok {
			return
		}
		in, rows, err := parseQuestionForm(c)
		q := questionFromInput(in)
		q.ID = current.ID
		q.ExamID = current.ExamID
		if err != nil {
			render(c, http.StatusBadRequest, pageQuestionForm, questionFormData("Edit Question", c.Request.URL.Path, e, &q, rows,
				[]string{apperrors.Message(err, "The question is invalid.")}))
			return
		}
		if err := app.Store.UpdateQuestion(c.Request.Context(), &q, in.DeleteChoiceIDs); err != nil {
			fail(c, err, c.Request.URL.Path)
			return
		}
		audit(c, app, "update_question", fmt.Sprintf("question:%d", q.ID),
			fmt.Sprintf("%d choice(s), %d deleted", len(q.Choices), len(in.DeleteChoiceIDs)))
		flash(c, session.FlashSuccess, "Question updated.")
		c.Redirect(http.StatusFound, fmt.Sprintf("/question-list/%d", e.ID))
	}
}

// editTarget loads the question named by the route and checks it belongs to the exam in
// the route and the exam to the current teacher.
func editTarget(app *App, auth authorizer, c *gin.Context) (*models.Question, *models.Exam, bool) {
	examID, err := paramID(c, "exam_id")
	if err != nil {
		fail(c, err, "/")
		return nil, nil, false
	}
	questionID, err := paramID(c, "question_id")
	if err != nil {
		fail(c, err, "/")
		return nil, nil, false
	}
	q, e, err := auth.question(c.Request.Context(), user(c), questionID)
	if err == nil && e.ID != examID {
		err = apperrors.NotFound(fmt.Sprintf("question %d is not part of exam %d", questionID, examID))
	}
	if err != nil {
		fail(c, err, "/")
		return nil, nil, false
	}
	return q, e, true
}

// QuestionDelete removes a question.
// POST /question/:question_id/delete
func QuestionDelete(app *App) gin.HandlerFunc {
	auth := authorizer{app.Store}
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		id, err := paramID(c, "question_id")
		if err != nil {
			fail(c, err, "/")
			return
		}
		q, e, err := auth.question(ctx, user(c), id)
		if err != nil {
			fail(c, err, "/")
			return
		}
		if err := app.Store.DeleteQuestion(ctx, q.ID); err != nil {
			fail(c, err, fmt.Sprintf("/question-list/%d", e.ID))
			return
		}
		audit(c, app, "delete_question", fmt.Sprintf("question:%d", q.ID), fmt.Sprintf("exam:%d", e.ID))
		flash(c, session.FlashSuccess, "Question deleted.")
		c.Redirect(http.StatusFound, fmt.Sprintf("/question-list/%d", e.ID))
	}
}

// ChoiceDelete removes one choice from the question form without reloading it.
// POST /delete-choice/:choice_id
func ChoiceDelete(app *App) gin.HandlerFunc {
	auth := authorizer{app.Store}
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		id, err := paramID(c, "choice_id")
		if err != nil {
			failJSON(c, err)
			return
		}
		ch, err := app.Store.GetChoice(ctx, id)
		if err != nil {
			failJSON(c, err)
			return
		}
		q, _, err := auth.question(ctx, user(c), ch.QuestionID)
		if err != nil {
			failJSON(c, err)
			return
		}
		if onlyCorrectChoice(q, ch.ID) {
			failJSON(c, apperrors.Validation("A question needs at least one correct choice."))
			return
		}
		if err := app.Store.DeleteChoice(ctx, ch.ID); err != nil {
			failJSON(c, err)
			return
		}
		audit(c, app, "delete_choice", fmt.Sprintf("choice:%d", ch.ID), fmt.Sprintf("question:%d", ch.QuestionID))
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// QuestionImportPage shows the CSV upload form.
// GET /teacher-exam/:exam_id/import-questions
func QuestionImportPage(app *App) gin.HandlerFunc {
	auth := authorizer{app.Store}
	return func(c *gin.Context) {
		id, err := paramID(c, "exam_id")
		if err != nil {
			fail(c, err, "/")
			return
		}
		e, err := auth.exam(c.Request.Context(), user(c), id)
		if err != nil {
			fail(c, err, "/")
			return
		}
		render(c, http.StatusOK, pageImport, gin.H{"Title": "Import Questions", "Exam": e, "Columns": ingestion.Header()})
	}
}

// QuestionImport loads a CSV question bank into an exam. Either every row is stored or none.
// POST /teacher-exam/:exam_id/import-questions
func QuestionImport(app *App) gin.HandlerFunc {
	auth := authorizer{app.Store}
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		id, err := paramID(c, "exam_id")
		if err != nil {
			fail(c, err, "/")
			return
		}
		e, err := auth.exam(ctx, user(c), id)
		if err != nil {
			fail(c, err, "/")
			return
		}
		reject := func(msg string) {
			render(c, http.StatusBadRequest, pageImport, gin.H{
				"Title": "Import Questions", "Exam": e, "Columns": ingestion.Header(), "Errors": []string{msg},
			})
		}

		fh, err := c.FormFile("file")
		if err != nil {
			reject("Choose a CSV file to upload.")
			return
		}
		f, err := fh.Open()
		if err != nil {
			fail(c, fmt.Errorf("failed to open upload: %w", err), c.Request.URL.Path)
			return
		}
		defer f.Close()

		questions, err := ingestion.ParseQuestions(f)
		if err != nil {
			if errors.Is(err, apperrors.ErrValidation) {
				reject(err.Error())
				return
			}
			fail(c, err, c.Request.URL.Path)
			return
		}
		n, err := ingestion.ImportQuestions(ctx, app.Store, e.ID, questions)
		if err != nil {
			fail(c, err, c.Request.URL.Path)
			return
		}
		audit(c, app, "import_questions", fmt.Sprintf("exam:%d", e.ID), fmt.Sprintf("%d question(s) from %s", n, fh.Filename))
		flash(c, session.FlashSuccess, fmt.Sprintf("Imported %d question(s).", n))
		c.Redirect(http.StatusFound, fmt.Sprintf("/question-list/%d", e.ID))
	}
}

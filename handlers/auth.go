package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"exam-portal/apperrors"
	"exam-portal/logger"
	"exam-portal/middleware"
	"exam-portal/models"
	"exam-portal/session"
	"exam-portal/utils"
)

const invalidLogin = "Invalid username or password."

// safeNext returns the first local path among candidates, or fallback.
func safeNext(fallback string, candidates ...string) string {
	for _, p := range candidates {
		if strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "//") && !strings.HasPrefix(p, "/\\") {
			return p
		}
	}
	return fallback
}

func landingPage(u *models.User) string {
	if u.Role == models.RoleTeacher {
		return "/teacher-home"
	}
	return "/"
}

// formErrors turns binding failures into messages for the form.
func formErrors(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{"The form could not be read."}
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required", "notblank":
			msgs = append(msgs, fmt.Sprintf("%s is required.", fe.Field()))
		case "email":
			msgs = append(msgs, "Enter a valid email address.")
		case "eqfield":
			msgs = append(msgs, "The two password fields didn't match.")
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s.", fe.Field(), fe.Param()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters.", fe.Field(), fe.Param()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s.", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid.", fe.Field()))
		}
	}
	return msgs
}

// LoginPage shows the login form.
// GET /login
func LoginPage() gin.HandlerFunc {
	return func(c *gin.Context) {
		if u, ok := middleware.CurrentUser(c); ok {
			c.Redirect(http.StatusFound, landingPage(u))
			return
		}
		render(c, http.StatusOK, pageLogin, gin.H{"Title": "Log in", "Next": c.Query("next")})
	}
}

// Login checks credentials and starts an authenticated session.
// POST /login
func Login(app *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var form models.LoginForm
		if err := c.ShouldBind(&form); err != nil {
			render(c, http.StatusBadRequest, pageLogin, gin.H{"Title": "Log in", "Errors": formErrors(err), "Next": c.PostForm("next")})
			return
		}
		u, err := app.Store.GetUserByUsername(c.Request.Context(), form.Username)
		if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			fail(c, err, "/login")
			return
		}
		if u == nil || !utils.CheckPassword(u.PasswordHash, form.Password) {
			logger.Warn().Str("username", form.Username).Str("client_ip", c.ClientIP()).Msg("Failed login")
			render(c, http.StatusUnauthorized, pageLogin, gin.H{
				"Title": "Log in", "Errors": []string{invalidLogin}, "Username": form.Username, "Next": c.PostForm("next"),
			})
			return
		}

		data := session.Get(c)
		if err := app.Sessions.Renew(c); err != nil {
			fail(c, fmt.Errorf("failed to renew session: %w", err), "/login")
			return
		}
		data.Login(u.ID)
		next := safeNext(landingPage(u), data.TakeNext(), c.PostForm("next"))
		logger.Info().Str("username", u.Username).Msg("User logged in")
		c.Redirect(http.StatusFound, next)
	}
}

// LoginRateLimited answers a throttled login attempt.
func LoginRateLimited() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger.Warn().Str("client_ip", c.ClientIP()).Msg("Login rate limit exceeded")
		render(c, http.StatusTooManyRequests, pageLogin, gin.H{
			"Title":  "Log in",
			"Errors": []string{"Too many login attempts. Please wait a minute and try again."},
		})
	}
}

// Logout ends the session and forgets exam timing state.
// POST /logout
func Logout(app *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		session.Get(c).ClearExams()
		if err := app.Sessions.Destroy(c); err != nil {
			fail(c, fmt.Errorf("failed to end session: %w", err), "/")
			return
		}
		flash(c, session.FlashInfo, "You have been logged out.")
		c.Redirect(http.StatusFound, middleware.LoginPath)
	}
}

func signUpData(app *App, c *gin.Context, form *models.SignUpForm, errs []string) gin.H {
	roles, err := app.Store.ListRoles(c.Request.Context())
	if err != nil {
		logger.Error().Err(err).Msg("Failed to list roles")
	}
	return gin.H{"Title": "Sign up", "Roles": roles, "Form": form, "Errors": errs}
}

// SignUpPage shows the registration form.
// GET /sign-up
func SignUpPage(app *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		render(c, http.StatusOK, pageSignUp, signUpData(app, c, &models.SignUpForm{}, nil))
	}
}

// SignUp registers an account and logs it in.
// POST /sign-up
func SignUp(app *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		var form models.SignUpForm
		if err := c.ShouldBind(&form); err != nil {
			render(c, http.StatusBadRequest, pageSignUp, signUpData(app, c, &form, formErrors(err)))
			return
		}
		roles, err := app.Store.ListRoles(ctx)
		if err != nil {
			fail(c, err, "/sign-up")
			return
		}
		if !containsString(roles, form.UserType) {
			render(c, http.StatusBadRequest, pageSignUp, signUpData(app, c, &form, []string{"Select a valid account type."}))
			return
		}

		hash, err := utils.HashPassword(form.Password1)
		if err != nil {
			fail(c, err, "/sign-up")
			return
		}
		u := &models.User{
			Username:     strings.TrimSpace(form.Username),
			Email:        strings.TrimSpace(form.Email),
			FirstName:    strings.TrimSpace(form.FirstName),
			LastName:     strings.TrimSpace(form.LastName),
			PasswordHash: hash,
			Role:         form.UserType,
		}
		if err := app.Store.CreateUser(ctx, u); err != nil {
			if errors.Is(err, apperrors.ErrConflict) {
				render(c, http.StatusBadRequest, pageSignUp, signUpData(app, c, &form, []string{apperrors.Message(err, "That account already exists.")}))
				return
			}
			fail(c, err, "/sign-up")
			return
		}

		data := session.Get(c)
		if err := app.Sessions.Renew(c); err != nil {
			fail(c, fmt.Errorf("failed to renew session: %w", err), "/login")
			return
		}
		data.Login(u.ID)
		data.AddFlash(session.FlashSuccess, "Your account has been created.")
		logger.Info().Str("username", u.Username).Str("role", u.Role).Msg("User signed up")
		c.Redirect(http.StatusFound, landingPage(u))
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Home shows a student's results and the exam search box. Teachers go to their dashboard.
// GET /
func Home(app *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := middleware.CurrentUser(c)
		if !ok {
			render(c, http.StatusOK, pageHome, gin.H{"Title": "Exam Portal"})
			return
		}
		if u.Role == models.RoleTeacher {
			c.Redirect(http.StatusFound, "/teacher-home")
			return
		}
		results, err := app.Store.ListUserResults(c.Request.Context(), u.ID, 0)
		if err != nil {
			logger.Error().Err(err).Int64("user_id", u.ID).Msg("Failed to list results")
		}
		render(c, http.StatusOK, pageHome, gin.H{"Title": "Exam Portal", "Results": results})
	}
}

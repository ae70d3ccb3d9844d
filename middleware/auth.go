package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"exam-portal/apperrors"
	"exam-portal/logger"
	"exam-portal/models"
	"exam-portal/session"
)

const userKey = "current_user"

// LoginPath is where anonymous visitors are sent.
const LoginPath = "/login"

// UserLoader fetches accounts by ID.
type UserLoader interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
}

// LoadUser puts the logged-in user, if any, into the gin context. A session pointing at a
// deleted account is logged out.
func LoadUser(users UserLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		data := session.Get(c)
		if !data.Authenticated() {
			c.Next()
			return
		}
		user, err := users.GetUser(c.Request.Context(), data.UserID)
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			data.Login(0)
		case err != nil:
			logger.Error().Err(err).Int64("user_id", data.UserID).Msg("Failed to load session user")
		default:
			c.Set(userKey, user)
		}
		c.Next()
	}
}

// CurrentUser returns the logged-in user.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(userKey)
	if !ok {
		return nil, false
	}
	u, ok := v.(*models.User)
	return u, ok && u != nil
}

// RequireLogin redirects anonymous visitors to the login page, remembering the path they
// asked for so login can send them back.
func RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := CurrentUser(c); ok {
			c.Next()
			return
		}
		next := c.Request.URL.RequestURI()
		if c.Request.Method == http.MethodGet {
			session.Get(c).SetNext(next)
		}
		c.Redirect(http.StatusFound, LoginPath+"?next="+url.QueryEscape(next))
		c.Abort()
	}
}

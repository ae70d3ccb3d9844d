package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"exam-portal/logger"
	"exam-portal/models"
	"exam-portal/session"
)

// Capabilities
const (
	PermCourseManage   = "course:manage"
	PermExamManage     = "exam:manage"
	PermQuestionManage = "question:manage"
	PermResultViewAny  = "result:view_any"
	PermExamTake       = "exam:take"
)

// DeniedMessage is flashed when a capability check fails.
const DeniedMessage = "You do not have permission to do that."

// RolePermissions is the single role to capability table.
var RolePermissions = map[string][]string{
	models.RoleTeacher: {
		"course:*",
		"exam:manage",
		"question:*",
		"result:*",
	},
	models.RoleStudent: {
		PermExamTake,
	},
}

// Checker answers capability questions for roles.
type Checker struct {
	RolePermissions map[string][]string
}

// NewChecker uses RolePermissions when rp is nil.
func NewChecker(rp map[string][]string) *Checker {
	if rp == nil {
		rp = RolePermissions
	}
	return &Checker{RolePermissions: rp}
}

// Has reports whether role grants perm. Patterns ending in "*" match by prefix.
func (c *Checker) Has(role, perm string) bool {
	for _, p := range c.RolePermissions[role] {
		if matchPerm(p, perm) {
			return true
		}
	}
	return false
}

// Any reports whether role grants at least one of perms.
func (c *Checker) Any(role string, perms ...string) bool {
	for _, p := range perms {
		if c.Has(role, p) {
			return true
		}
	}
	return false
}

func matchPerm(pattern, perm string) bool {
	if pattern == "*" || pattern == perm {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(perm, strings.TrimSuffix(pattern, "*"))
	}
	return false
}

// Require lets the request through only when the current user's role grants perm. It must
// run after RequireLogin.
func (c *Checker) Require(perm string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		user, ok := CurrentUser(ctx)
		if ok && c.Has(user.Role, perm) {
			ctx.Next()
			return
		}
		Deny(ctx)
		if ok {
			logger.Warn().Str("user", user.Username).Str("role", user.Role).Str("perm", perm).
				Str("path", ctx.Request.URL.Path).Msg("Capability check failed")
		}
	}
}

// Deny aborts with the permission message and a redirect home.
func Deny(c *gin.Context) {
	session.AddFlash(c, session.FlashError, DeniedMessage)
	c.Redirect(http.StatusFound, "/")
	c.Abort()
}

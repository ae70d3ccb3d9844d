package session

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"exam-portal/config"
	"exam-portal/logger"
)

const (
	dataKey = "session_data"
	idKey   = "session_id"
)

// Manager issues the session cookie and loads session data for each request. The cookie
// holds an HS256 token whose ID claim is the session ID; the data itself lives in the Store.
type Manager struct {
	store      Store
	signingKey []byte
	issuer     string
	cookieName string
	ttl        time.Duration
	secure     bool
	now        func() time.Time
}

// NewManager creates a Manager.
func NewManager(store Store, cfg config.SessionConfig) *Manager {
	return &Manager{
		store:      store,
		signingKey: []byte(cfg.SigningKey),
		issuer:     cfg.Issuer,
		cookieName: cfg.CookieName,
		ttl:        cfg.TTL,
		secure:     cfg.Secure,
		now:        time.Now,
	}
}

func (m *Manager) sign(id string) (string, error) {
	now := m.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:        id,
		Issuer:    m.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
	})
	return token.SignedString(m.signingKey)
}

func (m *Manager) parse(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.signingKey, nil
	}, jwt.WithIssuer(m.issuer), jwt.WithTimeFunc(m.now))
	if err != nil {
		return "", err
	}
	if !token.Valid || claims.ID == "" {
		return "", fmt.Errorf("invalid session token")
	}
	return claims.ID, nil
}

func (m *Manager) setCookie(c *gin.Context, id string) error {
	token, err := m.sign(id)
	if err != nil {
		return fmt.Errorf("failed to sign session token: %w", err)
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(m.cookieName, token, int(m.ttl.Seconds()), "/", "", m.secure, true)
	return nil
}

// Middleware loads the session before the handler and saves it afterwards when it changed.
// A stored session that did not change has its expiry pushed back, so sessions expire after
// TTL of inactivity. A missing, tampered or expired cookie starts a fresh session.
func (m *Manager) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		var (
			id     string
			data   *Data
			stored bool
		)
		if raw, err := c.Cookie(m.cookieName); err == nil {
			if parsed, err := m.parse(raw); err == nil {
				id = parsed
			} else {
				logger.Debug().Err(err).Msg("Discarding session cookie")
			}
		}
		if id != "" {
			loaded, err := m.store.Load(ctx, id)
			if err != nil {
				logger.Error().Err(err).Msg("Failed to load session")
			}
			data = loaded
			stored = loaded != nil
		}
		if data == nil {
			id = uuid.NewString()
			data = &Data{}
		}

		if err := m.setCookie(c, id); err != nil {
			logger.Error().Err(err).Msg("Failed to issue session cookie")
		}
		c.Set(idKey, id)
		c.Set(dataKey, data)

		c.Next()

		data = Get(c)
		// Handlers may have rotated the session.
		current := c.GetString(idKey)
		if !data.Dirty() {
			if stored && current == id {
				if err := m.store.Touch(ctx, id, m.ttl); err != nil {
					logger.Error().Err(err).Msg("Failed to extend session")
				}
			}
			return
		}
		id = current
		if err := m.store.Save(ctx, id, data, m.ttl); err != nil {
			logger.Error().Err(err).Msg("Failed to save session")
		}
	}
}

// Renew moves the session data to a new ID, used after login.
func (m *Manager) Renew(c *gin.Context) error {
	oldID := c.GetString(idKey)
	if oldID != "" {
		if err := m.store.Delete(c.Request.Context(), oldID); err != nil {
			return err
		}
	}
	id := uuid.NewString()
	if err := m.setCookie(c, id); err != nil {
		return err
	}
	c.Set(idKey, id)
	return nil
}

// Destroy drops the session data and starts an empty session, used at logout.
func (m *Manager) Destroy(c *gin.Context) error {
	if err := m.Renew(c); err != nil {
		return err
	}
	c.Set(dataKey, &Data{dirty: true})
	return nil
}

// Get returns the request's session data. Outside of Middleware it returns an empty,
// unsaved session.
func Get(c *gin.Context) *Data {
	if v, ok := c.Get(dataKey); ok {
		if d, ok := v.(*Data); ok {
			return d
		}
	}
	d := &Data{}
	c.Set(dataKey, d)
	return d
}

// AddFlash queues a message on the request's session.
func AddFlash(c *gin.Context, level, message string) {
	Get(c).AddFlash(level, message)
}

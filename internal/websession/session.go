package websession

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"assistchat/internal/observability"
)

const sessionIDContextKey = "websession_id"

// Service identifies browser sessions with a cookie. It is not an
// authentication system: anyone holding the cookie owns the conversation.
type Service struct {
	cookieName     string
	csrfCookieName string
	csrfHeaderName string
	ttl            time.Duration
}

func NewService(ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Service{
		cookieName:     "assistchat_session",
		csrfCookieName: "csrf_token",
		csrfHeaderName: "X-CSRF-Token",
		ttl:            ttl,
	}
}

// Middleware resolves the session id from the cookie, minting one (plus a
// CSRF token) for new browsers.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, err := c.Cookie(s.cookieName)
		if _, perr := uuid.Parse(sessionID); err != nil || perr != nil {
			sessionID = uuid.NewString()
		}
		// refresh both cookies so they expire with the idle session
		s.setSessionCookie(c, sessionID)
		csrfToken, err := c.Cookie(s.csrfCookieName)
		if err != nil || csrfToken == "" {
			if csrfToken, err = NewCSRFToken(); err != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "could not start session"})
				return
			}
			// visible to the CSRF check of this very request
			c.Request.AddCookie(&http.Cookie{Name: s.csrfCookieName, Value: csrfToken})
		}
		s.setCSRFCookie(c, csrfToken)

		c.Set(sessionIDContextKey, sessionID)
		c.Request = c.Request.WithContext(observability.WithSessionID(c.Request.Context(), sessionID))
		c.Next()
	}
}

// SessionIDFromContext retrieves the browser session id set by the middleware.
func SessionIDFromContext(c *gin.Context) (string, bool) {
	val, ok := c.Get(sessionIDContextKey)
	if !ok {
		return "", false
	}
	id, ok := val.(string)
	return id, ok && id != ""
}

// NewCSRFToken returns a random token used for CSRF protection.
func NewCSRFToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate csrf token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func (s *Service) CookieName() string     { return s.cookieName }
func (s *Service) CSRFCookieName() string { return s.csrfCookieName }
func (s *Service) CSRFHeaderName() string { return s.csrfHeaderName }

func (s *Service) setSessionCookie(c *gin.Context, sessionID string) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     s.cookieName,
		Value:    sessionID,
		MaxAge:   int(s.ttl.Seconds()),
		Path:     "/",
		Secure:   gin.Mode() == gin.ReleaseMode,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Service) setCSRFCookie(c *gin.Context, token string) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     s.csrfCookieName,
		Value:    token,
		MaxAge:   int(s.ttl.Seconds()),
		Path:     "/",
		Secure:   gin.Mode() == gin.ReleaseMode,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
}

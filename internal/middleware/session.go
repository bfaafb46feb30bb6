package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/anri-helpdesk/helpdesk/internal/config"
	"github.com/anri-helpdesk/helpdesk/internal/session"
)

const sessionKey = "session"

// Session loads the visitor session named by the cookie before the handler
// runs and saves its changes afterwards. New sessions get their cookie up
// front because the handler may already have written the response when
// Save runs.
func Session(store session.Store, cfg config.SessionConfig, log *slog.Logger) gin.HandlerFunc {
	log = log.With("component", "session")
	sameSite := parseSameSite(cfg.SameSite)
	maxAge := int(cfg.TTL.Seconds())

	return func(c *gin.Context) {
		id, _ := c.Cookie(cfg.CookieName)
		sess, err := store.Load(c.Request.Context(), id)
		if err != nil {
			log.Error("failed to load session", "error", err)
			sess = session.New()
		}

		if sess.ID != id {
			c.SetSameSite(sameSite)
			c.SetCookie(cfg.CookieName, sess.ID, maxAge, "/", "", cfg.Secure, cfg.HTTPOnly)
		}
		c.Set(sessionKey, sess)

		c.Next()

		if !sess.Dirty() && !sess.Destroyed() {
			return
		}
		if err := store.Save(c.Request.Context(), sess); err != nil {
			log.Error("failed to save session", "session", sess.ID, "error", err)
		}
	}
}

// GetSession returns the session attached by Session, or nil.
func GetSession(c *gin.Context) *session.Session {
	v, ok := c.Get(sessionKey)
	if !ok {
		return nil
	}
	sess, _ := v.(*session.Session)
	return sess
}

func parseSameSite(s string) http.SameSite {
	switch strings.ToLower(s) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	case "lax":
		return http.SameSiteLaxMode
	}
	return http.SameSiteDefaultMode
}

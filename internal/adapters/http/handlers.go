package http

import (
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/support-eye/relay/internal/carrier"
	"github.com/support-eye/relay/internal/domain"
	"github.com/support-eye/relay/internal/errs"
	"github.com/support-eye/relay/internal/notify"
	"github.com/support-eye/relay/internal/registry"
)

type SessionHandler struct {
	reg      *registry.Registry
	notifier notify.Notifier
}

func NewSessionHandler(reg *registry.Registry, notifier notify.Notifier) *SessionHandler {
	return &SessionHandler{reg: reg, notifier: notifier}
}

// Login is the technician auth stub: any non-empty credentials mark the
// cookie session as TECHNICIAN. Real authentication is a collaborator
// this service does not own yet.
func (h *SessionHandler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
		return
	}
	s := sessions.Default(c)
	s.Set(sessionRoleKey, string(domain.RoleTechnician))
	if err := s.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not save session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// CreateSession persists a WAITING session and dispatches the SMS
// invite through the client's carrier gateway. A failed dispatch fails
// the request; the caller retries with a fresh session.
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req struct {
		Phone    string `json:"phone" binding:"required"`
		Gateway  string `json:"gateway"`
		Language string `json:"language"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "phone required"})
		return
	}

	gateway := req.Gateway
	if gateway == "" {
		cr, ok := carrier.Detect(req.Phone)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "phone number too short to resolve a carrier"})
			return
		}
		gateway = cr.Gateway
	}

	lang := domain.LangEN
	if domain.Language(req.Language) == domain.LangFR {
		lang = domain.LangFR
	}

	sess, err := h.reg.Create(c.Request.Context(), carrier.Format(req.Phone), gateway)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("create session")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session store unavailable"})
		return
	}

	if err := h.notifier.SendInvite(c.Request.Context(), req.Phone, gateway, lang, sess.Token); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Str("token", sess.Token).Msg("invite dispatch failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "invite dispatch failed"})
		return
	}

	c.JSON(http.StatusCreated, sess)
}

// GetSession returns the session record for a token. Completed and
// unknown tokens are both 404: a consumed link looks expired, not
// merely closed, to whoever probes it.
func (h *SessionHandler) GetSession(c *gin.Context) {
	sess, err := h.reg.Validate(c.Request.Context(), c.Param("token"))
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrUnknownSession), errors.Is(err, errs.ErrSessionClosed):
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found or expired"})
		default:
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session store unavailable"})
		}
		return
	}
	c.JSON(http.StatusOK, sess)
}

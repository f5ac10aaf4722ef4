package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sealflow/sealflow/backend/go-services/internal/config"
	"github.com/sealflow/sealflow/backend/go-services/internal/invitations"
	"github.com/sealflow/sealflow/backend/go-services/internal/tokens"
	"github.com/sealflow/sealflow/backend/go-services/internal/workflow"
)

// AccessHandler exposes the unauthenticated signer endpoints. The only
// credential here is the one-time invitation secret delivered by email.
type AccessHandler struct {
	cfg    *config.Config
	svc    *workflow.Service
	invite *invitations.Service
}

func NewAccessHandler(cfg *config.Config, svc *workflow.Service, invite *invitations.Service) *AccessHandler {
	return &AccessHandler{cfg: cfg, svc: svc, invite: invite}
}

// RegisterAccessRoutes mounts the public signing endpoints.
func (h *AccessHandler) RegisterAccessRoutes(r *gin.Engine) {
	r.POST("/sign/session", h.OpenSession)
	r.POST("/sign", h.Sign)
	r.POST("/sign/decline", h.Decline)
}

// OpenSession validates an invitation secret without consuming it and returns
// a short-lived signing-session JWT plus the envelope the signer is invited
// to. The secret stays single-use: only Sign or Decline consumes it.
func (h *AccessHandler) OpenSession(c *gin.Context) {
	var req struct {
		Secret string `json:"secret" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	token, err := h.invite.Validate(c.Request.Context(), req.Secret)
	if err != nil {
		writeError(c, err)
		return
	}
	e, roster, err := h.svc.Get(c.Request.Context(), token.EnvelopeID)
	if err != nil {
		writeError(c, err)
		return
	}
	session, err := tokens.GenerateSigningSession(h.cfg, token.EnvelopeID, token.SignerID, token.ID, 30*time.Minute)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session":  session,
		"envelope": e,
		"signers":  roster,
	})
}

// credential resolves the request's invitation credential: either the raw
// secret or a session JWT from OpenSession, whose tok claim names the token.
func (h *AccessHandler) credential(c *gin.Context, secret, session string) (rawSecret, tokenID string, ok bool) {
	if secret != "" {
		return secret, "", true
	}
	if session == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "secret or session is required"})
		return "", "", false
	}
	claims, err := tokens.ParseSigningSession(h.cfg, session)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signing session"})
		return "", "", false
	}
	return "", claims.TokenID, true
}

func (h *AccessHandler) Sign(c *gin.Context) {
	var req struct {
		Secret          string `json:"secret"`
		Session         string `json:"session"`
		ConsentRecordID string `json:"consentRecordId"`
		Algorithm       string `json:"algorithm"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	secret, tokenID, ok := h.credential(c, req.Secret, req.Session)
	if !ok {
		return
	}
	rec, err := h.svc.Sign(c.Request.Context(), workflow.SignRequest{
		Secret:          secret,
		TokenID:         tokenID,
		ConsentRecordID: req.ConsentRecordID,
		Algorithm:       req.Algorithm,
		Net:             netContext(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"signature": rec})
}

func (h *AccessHandler) Decline(c *gin.Context) {
	var req struct {
		Secret  string `json:"secret"`
		Session string `json:"session"`
		Reason  string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	secret, tokenID, ok := h.credential(c, req.Secret, req.Session)
	if !ok {
		return
	}
	if err := h.svc.Decline(c.Request.Context(), workflow.DeclineRequest{
		Secret:  secret,
		TokenID: tokenID,
		Reason:  req.Reason,
		Net:     netContext(c),
	}); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "DECLINED"})
}

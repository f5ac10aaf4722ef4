package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sealflow/sealflow/backend/go-services/internal/apperrors"
	"github.com/sealflow/sealflow/backend/go-services/internal/envelope"
	"github.com/sealflow/sealflow/backend/go-services/internal/invitations"
	"github.com/sealflow/sealflow/backend/go-services/internal/storage"
	"github.com/sealflow/sealflow/backend/go-services/internal/workflow"
)

// EnvelopeHandler exposes the owner-facing envelope API. Every route expects
// AuthMiddleware to have stored the verified claims on the context.
type EnvelopeHandler struct {
	svc   *workflow.Service
	store *storage.MinIOStorage
}

func NewEnvelopeHandler(svc *workflow.Service, store *storage.MinIOStorage) *EnvelopeHandler {
	return &EnvelopeHandler{svc: svc, store: store}
}

// RegisterEnvelopeRoutes mounts the authenticated envelope endpoints.
func (h *EnvelopeHandler) RegisterEnvelopeRoutes(rg *gin.RouterGroup) {
	rg.POST("/envelopes", h.Create)
	rg.GET("/envelopes", h.List)
	rg.GET("/envelopes/:id", h.Get)
	rg.DELETE("/envelopes/:id", h.Delete)
	rg.POST("/envelopes/:id/send", h.Send)
	rg.POST("/envelopes/:id/sign", h.SignAsOwner)
	rg.POST("/envelopes/:id/decline", h.DeclineAsOwner)
	rg.POST("/envelopes/:id/finalize", h.Finalize)
	rg.POST("/envelopes/:id/restart", h.Restart)
	rg.POST("/envelopes/:id/signers/:signerId/remind", h.Remind)
	rg.POST("/envelopes/:id/signers/:signerId/revoke", h.RevokeInvitation)
	rg.GET("/envelopes/:id/trail", h.Trail)
	rg.GET("/envelopes/:id/evidence", h.Evidence)
	rg.PUT("/envelopes/:id/document", h.UploadDocument)
	rg.GET("/envelopes/:id/document", h.DownloadDocument)
}

// caller extracts the authenticated subject and email from the OIDC claims.
func caller(c *gin.Context) (sub, email string) {
	v, ok := c.Get("claims")
	if !ok {
		return "", ""
	}
	claims, ok := v.(map[string]interface{})
	if !ok {
		return "", ""
	}
	sub, _ = claims["sub"].(string)
	email, _ = claims["email"].(string)
	return sub, email
}

// writeError maps the error taxonomy onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	code := apperrors.CodeOf(err)
	c.JSON(code.HTTPStatus(), gin.H{"error": err.Error(), "code": string(code)})
}

func netContext(c *gin.Context) invitations.NetworkContext {
	return invitations.NetworkContext{
		IP:        c.ClientIP(),
		UserAgent: c.GetHeader("User-Agent"),
		Country:   c.GetHeader("CF-IPCountry"),
	}
}

func (h *EnvelopeHandler) Create(c *gin.Context) {
	sub, email := caller(c)
	var req struct {
		DocumentID   string                 `json:"documentId"`
		DocumentHash string                 `json:"documentHash"`
		SigningOrder string                 `json:"signingOrder"`
		ExpiresIn    int                    `json:"expiresInHours"`
		Signers      []workflow.SignerInput `json:"signers"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	e, roster, err := h.svc.CreateEnvelope(c.Request.Context(), workflow.CreateEnvelopeInput{
		OwnerID:      sub,
		OwnerEmail:   email,
		DocumentID:   req.DocumentID,
		DocumentHash: req.DocumentHash,
		SigningOrder: req.SigningOrder,
		ExpiresIn:    time.Duration(req.ExpiresIn) * time.Hour,
		Signers:      req.Signers,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"envelope": e, "signers": roster})
}

func (h *EnvelopeHandler) List(c *gin.Context) {
	sub, _ := caller(c)
	out, err := h.svc.ListByOwner(c.Request.Context(), sub)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"envelopes": out})
}

func (h *EnvelopeHandler) Get(c *gin.Context) {
	e, roster, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"envelope": e, "signers": roster})
}

func (h *EnvelopeHandler) Delete(c *gin.Context) {
	sub, _ := caller(c)
	if err := h.svc.Delete(c.Request.Context(), c.Param("id"), sub); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *EnvelopeHandler) Send(c *gin.Context) {
	sub, _ := caller(c)
	invs, err := h.svc.Send(c.Request.Context(), c.Param("id"), sub, netContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invitations": invs})
}

func (h *EnvelopeHandler) SignAsOwner(c *gin.Context) {
	sub, _ := caller(c)
	var req struct {
		ConsentRecordID string `json:"consentRecordId"`
		Algorithm       string `json:"algorithm"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec, err := h.svc.Sign(c.Request.Context(), workflow.SignRequest{
		EnvelopeID:      c.Param("id"),
		OwnerID:         sub,
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

// DeclineAsOwner lets the owner refuse their own signature through the
// authenticated session, the same actor resolution as SignAsOwner.
func (h *EnvelopeHandler) DeclineAsOwner(c *gin.Context) {
	sub, _ := caller(c)
	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.svc.Decline(c.Request.Context(), workflow.DeclineRequest{
		EnvelopeID: c.Param("id"),
		OwnerID:    sub,
		Reason:     req.Reason,
		Net:        netContext(c),
	}); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "DECLINED"})
}

func (h *EnvelopeHandler) Finalize(c *gin.Context) {
	sub, _ := caller(c)
	if err := h.svc.Finalize(c.Request.Context(), c.Param("id"), sub); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "COMPLETED"})
}

func (h *EnvelopeHandler) Restart(c *gin.Context) {
	sub, _ := caller(c)
	if err := h.svc.Restart(c.Request.Context(), c.Param("id"), sub); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "DRAFT"})
}

func (h *EnvelopeHandler) Remind(c *gin.Context) {
	sub, _ := caller(c)
	inv, err := h.svc.Remind(c.Request.Context(), c.Param("id"), c.Param("signerId"), sub, netContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invitation": inv})
}

func (h *EnvelopeHandler) RevokeInvitation(c *gin.Context) {
	sub, _ := caller(c)
	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Reason == "" {
		req.Reason = "revoked by owner"
	}
	if err := h.svc.Revoke(c.Request.Context(), c.Param("id"), c.Param("signerId"), sub, req.Reason); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "REVOKED"})
}

func (h *EnvelopeHandler) Trail(c *gin.Context) {
	trail, err := h.svc.Trail(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": trail})
}

// Evidence returns the signature records, with a presigned download URL for
// the source document when object storage is configured. The access is
// audit-logged before the compliance rules run.
func (h *EnvelopeHandler) Evidence(c *gin.Context) {
	sub, _ := caller(c)
	records, err := h.svc.Evidence(c.Request.Context(), c.Param("id"), sub, true)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := gin.H{"signatures": records}
	if h.store != nil {
		if url, err := h.store.GetPresignedURL(c.Request.Context(), storage.DocumentKey(c.Param("id")), 15*time.Minute); err == nil {
			resp["documentUrl"] = url
		}
	}
	c.JSON(http.StatusOK, resp)
}

// UploadDocument stores the source document bytes for a draft envelope. The
// body is streamed straight to object storage under the envelope's key.
func (h *EnvelopeHandler) UploadDocument(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "object storage not configured"})
		return
	}
	sub, _ := caller(c)
	e, _, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if e.OwnerID != sub {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the envelope owner may upload the document"})
		return
	}
	if e.Status != envelope.StatusDraft {
		c.JSON(http.StatusConflict, gin.H{"error": "document can only be replaced while the envelope is a draft"})
		return
	}
	ct := c.GetHeader("Content-Type")
	if ct == "" {
		ct = "application/octet-stream"
	}
	if err := h.store.UploadFile(c.Request.Context(), storage.DocumentKey(e.ID), c.Request.Body, c.Request.ContentLength, ct); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stored"})
}

// DownloadDocument streams the stored source document back to the owner.
func (h *EnvelopeHandler) DownloadDocument(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "object storage not configured"})
		return
	}
	sub, _ := caller(c)
	e, _, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if e.OwnerID != sub {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the envelope owner may download the document"})
		return
	}
	obj, err := h.store.DownloadFile(c.Request.Context(), storage.DocumentKey(e.ID))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
		return
	}
	defer obj.Close()
	c.DataFromReader(http.StatusOK, -1, "application/octet-stream", obj, nil)
}

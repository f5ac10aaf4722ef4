package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the service.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg *gin.Engine) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.JSON(http.StatusOK, swaggerJSON)
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>sealflow — Swagger</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

// Minimal OpenAPI document describing the main envelope and signing endpoints.
const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "sealflow", "version": "v0.1.0" },
  "paths": {
    "/auth/login": {
      "post": { "summary": "Exchange authorization code / login", "responses": { "200": { "description": "tokens returned" } } }
    },
    "/auth/refresh": {
      "post": { "summary": "Refresh access token", "responses": { "200": { "description": "new access token" }, "401": { "description": "invalid refresh" } } }
    },
    "/auth/logout": {
      "post": { "summary": "Logout and invalidate refresh token", "responses": { "200": { "description": "logged out" } } }
    },
    "/api/envelopes": {
      "post": { "summary": "Create a DRAFT envelope with its signer roster", "responses": { "201": { "description": "envelope created" } } },
      "get": { "summary": "List the caller's envelopes", "responses": { "200": { "description": "envelope list" } } }
    },
    "/api/envelopes/{id}": {
      "get": { "summary": "Get an envelope with its signers", "responses": { "200": { "description": "envelope" }, "404": { "description": "not found" } } },
      "delete": { "summary": "Delete a DRAFT or EXPIRED envelope", "responses": { "204": { "description": "deleted" }, "409": { "description": "wrong state" } } }
    },
    "/api/envelopes/{id}/send": {
      "post": { "summary": "Send the envelope and issue invitation secrets", "responses": { "200": { "description": "invitations issued" } } }
    },
    "/api/envelopes/{id}/sign": {
      "post": { "summary": "Owner signs through the authenticated session", "responses": { "200": { "description": "signature recorded" } } }
    },
    "/api/envelopes/{id}/decline": {
      "post": { "summary": "Owner declines through the authenticated session", "responses": { "200": { "description": "declined" } } }
    },
    "/api/envelopes/{id}/restart": {
      "post": { "summary": "Restart a DECLINED envelope back to DRAFT", "responses": { "200": { "description": "restarted" } } }
    },
    "/api/envelopes/{id}/evidence": {
      "get": { "summary": "Download signature evidence", "responses": { "200": { "description": "signature records" }, "422": { "description": "compliance violation" } } }
    },
    "/api/envelopes/{id}/document": {
      "put": { "summary": "Upload the source document for a DRAFT envelope", "responses": { "200": { "description": "stored" }, "409": { "description": "wrong state" } } },
      "get": { "summary": "Download the source document", "responses": { "200": { "description": "document bytes" }, "404": { "description": "not found" } } }
    },
    "/sign/session": {
      "post": { "summary": "Open a signing session from an invitation secret", "responses": { "200": { "description": "session and envelope" }, "410": { "description": "secret consumed or revoked" } } }
    },
    "/sign": {
      "post": { "summary": "Sign with an invitation secret", "responses": { "200": { "description": "signature recorded" }, "410": { "description": "secret consumed or revoked" } } }
    },
    "/sign/decline": {
      "post": { "summary": "Decline with an invitation secret", "responses": { "200": { "description": "declined" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } }
  }
}`

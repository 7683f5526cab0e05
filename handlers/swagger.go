package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the draft service.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg *gin.Engine) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>shipment drafts - Swagger</title>
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

// Minimal OpenAPI document describing the draft workflow endpoints.
const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "shipment-drafts", "version": "v0.1.0" },
  "paths": {
    "/api/shipments/drafts": {
      "post": {
        "summary": "Start a new draft",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"organization":{"type":"string"}}}}}},
        "responses": { "201": { "description": "draft created" }, "422": { "description": "invalid organization" } }
      }
    },
    "/api/shipments/drafts/{id}": {
      "get": { "summary": "Open a draft (local draft first, then backend record)", "responses": { "200": { "description": "draft" }, "404": { "description": "unknown draft" } } },
      "delete": { "summary": "Discard the local draft", "responses": { "204": { "description": "discarded" } } }
    },
    "/api/shipments/drafts/{id}/sections/{section}": {
      "patch": { "summary": "Set one section-relative field", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"path":{"type":"string"},"value":{}}}}}}, "responses": { "200": { "description": "draft" }, "422": { "description": "invalid path or governed group" } } }
    },
    "/api/shipments/drafts/{id}/sections/{section}/count": {
      "put": { "summary": "Set a repeating group's count", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"group":{"type":"string"},"count":{"type":"integer","nullable":true}}}}}}, "responses": { "200": { "description": "applied, pending or cleared" } } }
    },
    "/api/shipments/drafts/{id}/sections/{section}/confirm": {
      "post": { "summary": "Confirm a pending truncation", "responses": { "200": { "description": "draft" }, "422": { "description": "nothing pending" } } }
    },
    "/api/shipments/drafts/{id}/sections/{section}/cancel": {
      "post": { "summary": "Cancel a pending truncation", "responses": { "200": { "description": "draft" }, "422": { "description": "nothing pending" } } }
    },
    "/api/shipments/drafts/{id}/sections/{section}/entries": {
      "post": { "summary": "Append a row", "responses": { "201": { "description": "index and draft" } } },
      "delete": { "summary": "Remove a row", "parameters": [{"name":"group","in":"query"},{"name":"index","in":"query"}], "responses": { "200": { "description": "draft" } } }
    },
    "/api/shipments/drafts/{id}/sections/{section}/upload": {
      "post": { "summary": "Upload a document into a URL field", "requestBody": { "content": { "multipart/form-data": { "schema": {"type":"object","properties":{"path":{"type":"string"},"file":{"type":"string","format":"binary"}}}}}}, "responses": { "200": { "description": "stored URL" }, "502": { "description": "storage failure" } } }
    },
    "/api/shipments/drafts/{id}/save": {
      "post": { "summary": "Save the draft now", "responses": { "200": { "description": "draft" }, "502": { "description": "backend failure" } } }
    },
    "/api/shipments/drafts/{id}/submit": {
      "post": { "summary": "Submit the final record", "responses": { "200": { "description": "record" }, "409": { "description": "submit in progress" }, "422": { "description": "validation failed or truncation pending" }, "502": { "description": "backend failure" } } }
    },
    "/api/shipments/drafts/{id}/close": {
      "post": { "summary": "Flush and release the editor", "responses": { "204": { "description": "closed" } } }
    },
    "/api/shipments/files/{key}": {
      "get": { "summary": "Download an uploaded document", "responses": { "200": { "description": "file" }, "404": { "description": "unknown key" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } },
    "/metrics": { "get": { "summary": "Prometheus metrics", "responses": { "200": { "description": "metrics" } } } }
  }
}`

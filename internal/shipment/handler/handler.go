package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shipdraft/draft-service/internal/draft"
	"github.com/shipdraft/draft-service/internal/draftstore"
	"github.com/shipdraft/draft-service/internal/shipment/service"
	"github.com/shipdraft/draft-service/internal/storage"
	"github.com/shipdraft/draft-service/pkg/logger"
	"github.com/shipdraft/draft-service/pkg/middleware"
)

// Downloader serves stored uploads back to clients.
type Downloader interface {
	Download(ctx context.Context, key string) (io.ReadCloser, string, error)
}

type groupRequest struct {
	Group string `json:"group" binding:"required"`
}

// writeError maps service and engine errors to HTTP statuses in one place.
func writeError(c *gin.Context, err error, field string) {
	status := http.StatusInternalServerError
	var verr *draft.ValidationError
	switch {
	case errors.As(err, &verr):
		status, field = http.StatusUnprocessableEntity, verr.Field
	case errors.Is(err, service.ErrNotFound), errors.Is(err, draft.ErrUnknownSection), errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, draftstore.ErrLocked), errors.Is(err, draft.ErrSubmitting), errors.Is(err, draft.ErrClosed):
		status = http.StatusConflict
	case errors.Is(err, service.ErrBackend), errors.Is(err, service.ErrStorage):
		status = http.StatusBadGateway
	case errors.Is(err, draft.ErrPendingConfirmation),
		errors.Is(err, draft.ErrNoPendingConfirmation),
		errors.Is(err, draft.ErrInvalidPath),
		errors.Is(err, draft.ErrIndexOutOfRange),
		errors.Is(err, draft.ErrTypeMismatch),
		errors.Is(err, draft.ErrArrayLength),
		errors.Is(err, draft.ErrGovernedGroup),
		errors.Is(err, draft.ErrUnknownGroup),
		errors.Is(err, draft.ErrInvalidCount),
		errors.Is(err, service.ErrNotURLField):
		status = http.StatusUnprocessableEntity
	}
	if status >= http.StatusInternalServerError {
		logger.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	body := gin.H{"error": err.Error()}
	if field != "" {
		body["field"] = field
	}
	c.AbortWithStatusJSON(status, body)
}

// RegisterDraftRoutes mounts the draft workflow under /api/shipments/drafts.
func RegisterDraftRoutes(r gin.IRouter, svc *service.Service) {
	g := r.Group("/api/shipments/drafts")

	respond := func(c *gin.Context, status int) {
		d, err := svc.Open(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err, "")
			return
		}
		c.JSON(status, d)
	}

	g.POST("", func(c *gin.Context) {
		var req struct {
			Organization string `json:"organization"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		createdBy := middleware.Subject(c)
		if createdBy == "" {
			createdBy = "anonymous"
		}
		d, err := svc.Create(c.Request.Context(), req.Organization, createdBy)
		if err != nil {
			writeError(c, err, "organization")
			return
		}
		c.JSON(http.StatusCreated, d)
	})

	g.GET("/:id", func(c *gin.Context) { respond(c, http.StatusOK) })

	g.DELETE("/:id", func(c *gin.Context) {
		if err := svc.Discard(c.Request.Context(), c.Param("id")); err != nil {
			writeError(c, err, "")
			return
		}
		c.Status(http.StatusNoContent)
	})

	g.POST("/:id/save", func(c *gin.Context) {
		d, err := svc.SaveDraft(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err, "")
			return
		}
		c.JSON(http.StatusOK, d)
	})

	g.POST("/:id/submit", func(c *gin.Context) {
		rec, err := svc.Submit(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err, "")
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "record": rec})
	})

	g.POST("/:id/close", func(c *gin.Context) {
		if err := svc.Close(c.Request.Context(), c.Param("id")); err != nil {
			writeError(c, err, "")
			return
		}
		c.Status(http.StatusNoContent)
	})

	sec := g.Group("/:id/sections/:section")

	sec.PATCH("", func(c *gin.Context) {
		var req struct {
			Path  string `json:"path" binding:"required"`
			Value any    `json:"value"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := svc.SetField(c.Request.Context(), c.Param("id"), c.Param("section"), req.Path, req.Value); err != nil {
			writeError(c, err, req.Path)
			return
		}
		respond(c, http.StatusOK)
	})

	sec.PUT("/count", func(c *gin.Context) {
		var req struct {
			Group string `json:"group" binding:"required"`
			Count *int   `json:"count"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		out, err := svc.SetCount(c.Request.Context(), c.Param("id"), c.Param("section"), req.Group, req.Count)
		if err != nil {
			writeError(c, err, req.Group)
			return
		}
		d, err := svc.Open(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err, "")
			return
		}
		c.JSON(http.StatusOK, gin.H{"outcome": out.String(), "draft": d})
	})

	resolve := func(op func(ctx context.Context, id, section, group string) error) gin.HandlerFunc {
		return func(c *gin.Context) {
			var req groupRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if err := op(c.Request.Context(), c.Param("id"), c.Param("section"), req.Group); err != nil {
				writeError(c, err, req.Group)
				return
			}
			respond(c, http.StatusOK)
		}
	}
	sec.POST("/confirm", resolve(svc.Confirm))
	sec.POST("/cancel", resolve(svc.Cancel))

	sec.POST("/entries", func(c *gin.Context) {
		var req groupRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		i, err := svc.AppendEntry(c.Request.Context(), c.Param("id"), c.Param("section"), req.Group)
		if err != nil {
			writeError(c, err, req.Group)
			return
		}
		d, err := svc.Open(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err, "")
			return
		}
		c.JSON(http.StatusCreated, gin.H{"index": i, "draft": d})
	})

	sec.DELETE("/entries", func(c *gin.Context) {
		group := c.Query("group")
		index, err := strconv.Atoi(c.Query("index"))
		if group == "" || err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "group and a numeric index are required"})
			return
		}
		if err := svc.RemoveEntry(c.Request.Context(), c.Param("id"), c.Param("section"), group, index); err != nil {
			writeError(c, err, group)
			return
		}
		respond(c, http.StatusOK)
	})

	sec.POST("/upload", func(c *gin.Context) {
		field := c.PostForm("path")
		fh, err := c.FormFile("file")
		if field == "" || err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "path and file are required"})
			return
		}
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		defer f.Close()
		contentType := fh.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		url, err := svc.Upload(c.Request.Context(), c.Param("id"), c.Param("section"), field, fh.Filename, f, fh.Size, contentType)
		if err != nil {
			writeError(c, err, field)
			return
		}
		c.JSON(http.StatusOK, gin.H{"url": url, "path": field})
	})
}

// RegisterFileRoutes serves uploads at storage.DefaultPublicURL.
func RegisterFileRoutes(r gin.IRouter, files Downloader) {
	r.GET(storage.DefaultPublicURL+"/*key", func(c *gin.Context) {
		key := strings.TrimPrefix(c.Param("key"), "/")
		rc, contentType, err := files.Download(c.Request.Context(), key)
		if err != nil {
			writeError(c, err, "")
			return
		}
		defer rc.Close()
		c.DataFromReader(http.StatusOK, -1, contentType, rc, nil)
	})
}

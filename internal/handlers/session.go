package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/thomasmilici/domux-backend/internal/platform/logger"
	"github.com/thomasmilici/domux-backend/internal/requestdata"
	"github.com/thomasmilici/domux-backend/internal/services"
	"github.com/thomasmilici/domux-backend/internal/types"
)

type SessionHandler struct {
	log          *logger.Logger
	sessions     services.SessionService
	imageService services.ImageService
}

func NewSessionHandler(log *logger.Logger, sessions services.SessionService, imageService services.ImageService) *SessionHandler {
	return &SessionHandler{
		log:          log.With("handler", "SessionHandler"),
		sessions:     sessions,
		imageService: imageService,
	}
}

// POST /api/sessions
func (h *SessionHandler) Create(c *gin.Context) {
	user := requestdata.GetRequestData(c.Request.Context()).User()
	session, err := h.sessions.Create(c.Request.Context(), user)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": session})
}

// GET /api/sessions
func (h *SessionHandler) List(c *gin.Context) {
	user := requestdata.GetRequestData(c.Request.Context()).User()
	sessions, err := h.sessions.ListByUser(c.Request.Context(), user)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{"sessions": sessions})
}

// GET /api/sessions/:id
func (h *SessionHandler) Get(c *gin.Context) {
	user := requestdata.GetRequestData(c.Request.Context()).User()
	session, err := h.sessions.Get(c.Request.Context(), user, c.Param("id"))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{"session": session})
}

type descriptionBody struct {
	Text string `json:"text" binding:"required"`
}

// POST /api/sessions/:id/description
func (h *SessionHandler) AddDescription(c *gin.Context) {
	var body descriptionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	user := requestdata.GetRequestData(c.Request.Context()).User()
	session, err := h.sessions.AddDescriptionItem(c.Request.Context(), user, c.Param("id"), body.Text)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{"session": session})
}

// PUT /api/sessions/:id/description/:index
func (h *SessionHandler) EditDescription(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	var body descriptionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	user := requestdata.GetRequestData(c.Request.Context()).User()
	session, err := h.sessions.EditDescriptionItem(c.Request.Context(), user, c.Param("id"), index, body.Text)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{"session": session})
}

// DELETE /api/sessions/:id/description/:index
func (h *SessionHandler) RemoveDescription(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	user := requestdata.GetRequestData(c.Request.Context()).User()
	session, err := h.sessions.RemoveDescriptionItem(c.Request.Context(), user, c.Param("id"), index)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{"session": session})
}

type contextBody struct {
	Committente *types.Committente `json:"committente"`
	Location    *string            `json:"location"`
}

// PATCH /api/sessions/:id/context
func (h *SessionHandler) PatchContext(c *gin.Context) {
	var body contextBody
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	user := requestdata.GetRequestData(c.Request.Context()).User()
	ctx := c.Request.Context()
	id := c.Param("id")

	var (
		session *types.ProjectSession
		err     error
	)
	if body.Committente != nil {
		if session, err = h.sessions.UpdateCommittente(ctx, user, id, *body.Committente); err != nil {
			RespondAppError(c, err)
			return
		}
	}
	if body.Location != nil {
		if session, err = h.sessions.UpdateLocation(ctx, user, id, *body.Location); err != nil {
			RespondAppError(c, err)
			return
		}
	}
	if session == nil {
		if session, err = h.sessions.Get(ctx, user, id); err != nil {
			RespondAppError(c, err)
			return
		}
	}
	RespondOK(c, gin.H{"session": session})
}

type sessionPatchBody struct {
	ProjectName     *string            `json:"projectName"`
	ProjectType     *types.ProjectType `json:"projectType"`
	Region          *string            `json:"region"`
	PreferredStores *[]string          `json:"preferredStores"`
}

// PATCH /api/sessions/:id
func (h *SessionHandler) Patch(c *gin.Context) {
	var body sessionPatchBody
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	user := requestdata.GetRequestData(c.Request.Context()).User()
	session, err := h.sessions.Update(c.Request.Context(), user, c.Param("id"), services.SessionUpdate{
		ProjectName:     body.ProjectName,
		ProjectType:     body.ProjectType,
		Region:          body.Region,
		PreferredStores: body.PreferredStores,
	})
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{"session": session})
}

// POST /api/sessions/:id/resume
func (h *SessionHandler) Resume(c *gin.Context) {
	user := requestdata.GetRequestData(c.Request.Context()).User()
	session, err := h.sessions.Resume(c.Request.Context(), user, c.Param("id"))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{"session": session})
}

// POST /api/sessions/:id/image
// Multipart upload; the normalized result is returned to the client, which
// holds the image until generation/finalization.
func (h *SessionHandler) UploadImage(c *gin.Context) {
	user := requestdata.GetRequestData(c.Request.Context()).User()
	if _, err := h.sessions.Get(c.Request.Context(), user, c.Param("id")); err != nil {
		RespondAppError(c, err)
		return
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}

	normalized, err := h.imageService.Normalize(c.Request.Context(), raw, fileHeader.Filename)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{
		"image": gin.H{
			"base64":   normalized.Base64,
			"mimeType": normalized.MimeType,
			"fileName": normalized.FileName,
			"width":    normalized.Width,
			"height":   normalized.Height,
			"size":     len(normalized.Bytes),
		},
	})
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thomasmilici/domux-backend/internal/platform/logger"
	"github.com/thomasmilici/domux-backend/internal/requestdata"
	"github.com/thomasmilici/domux-backend/internal/services"
)

type GenerateHandler struct {
	log       *logger.Logger
	sessions  services.SessionService
	generator services.GenerateService
}

func NewGenerateHandler(log *logger.Logger, sessions services.SessionService, generator services.GenerateService) *GenerateHandler {
	return &GenerateHandler{
		log:       log.With("handler", "GenerateHandler"),
		sessions:  sessions,
		generator: generator,
	}
}

type generateBody struct {
	ImageBase64   string `json:"imageBase64"`
	ImageMimeType string `json:"imageMimeType"`
	ImageFileName string `json:"imageFileName"`
}

// POST /api/sessions/:id/generate
func (h *GenerateHandler) Generate(c *gin.Context) {
	var body generateBody
	if err := c.ShouldBindJSON(&body); err != nil && err.Error() != "EOF" {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}

	user := requestdata.GetRequestData(c.Request.Context()).User()
	session, err := h.sessions.Get(c.Request.Context(), user, c.Param("id"))
	if err != nil {
		RespondAppError(c, err)
		return
	}

	var image *services.NormalizedImage
	if body.ImageBase64 != "" {
		mime := body.ImageMimeType
		if mime == "" {
			mime = "image/jpeg"
		}
		image = &services.NormalizedImage{
			Base64:   body.ImageBase64,
			MimeType: mime,
			FileName: body.ImageFileName,
		}
	}

	resp, err := h.generator.Generate(c.Request.Context(), user, services.NewSessionView(session), image)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{
		"computoItems":   resp.Items,
		"reportText":     resp.ReportText,
		"generatedImage": resp.PreviewImageBase64,
		"sources":        resp.Sources,
	})
}

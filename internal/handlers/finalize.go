package handlers

import (
	"encoding/base64"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thomasmilici/domux-backend/internal/platform/logger"
	"github.com/thomasmilici/domux-backend/internal/requestdata"
	"github.com/thomasmilici/domux-backend/internal/services"
	"github.com/thomasmilici/domux-backend/internal/types"
)

type FinalizeHandler struct {
	log      *logger.Logger
	finalize services.FinalizeService
}

func NewFinalizeHandler(log *logger.Logger, finalize services.FinalizeService) *FinalizeHandler {
	return &FinalizeHandler{
		log:      log.With("handler", "FinalizeHandler"),
		finalize: finalize,
	}
}

type suggestTitleBody struct {
	Items []types.ComputoItem `json:"computoItems"`
}

// POST /api/sessions/:id/finalize/title
// Derives the title for user confirmation. No writes happen here, so the
// client abandoning the flow afterwards leaves no trace.
func (h *FinalizeHandler) SuggestTitle(c *gin.Context) {
	var body suggestTitleBody
	if err := c.ShouldBindJSON(&body); err != nil && err.Error() != "EOF" {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	user := requestdata.GetRequestData(c.Request.Context()).User()
	title, err := h.finalize.SuggestTitle(c.Request.Context(), user, c.Param("id"), body.Items)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{"suggestedTitle": title})
}

type finalizeBody struct {
	ProjectName        string                  `json:"projectName" binding:"required"`
	ComputoItems       []types.ComputoItem     `json:"computoItems" binding:"required"`
	ReportText         string                  `json:"reportText"`
	Sources            []types.GroundingSource `json:"sources"`
	SourceImageBase64  string                  `json:"sourceImageBase64"`
	SourceImageMime    string                  `json:"sourceImageMimeType"`
	PreviewImageBase64 string                  `json:"previewImageBase64"`
}

// POST /api/sessions/:id/finalize
func (h *FinalizeHandler) Finalize(c *gin.Context) {
	var body finalizeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}

	in := services.FinalizeInput{
		ConfirmedTitle:     body.ProjectName,
		Items:              body.ComputoItems,
		Report:             body.ReportText,
		Sources:            body.Sources,
		PreviewImageBase64: body.PreviewImageBase64,
	}
	if body.SourceImageBase64 != "" {
		raw, err := base64.StdEncoding.DecodeString(body.SourceImageBase64)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "bad_request", err)
			return
		}
		mime := body.SourceImageMime
		if mime == "" {
			mime = "image/jpeg"
		}
		in.SourceImage = &services.NormalizedImage{
			Bytes:    raw,
			Base64:   body.SourceImageBase64,
			MimeType: mime,
		}
	}

	user := requestdata.GetRequestData(c.Request.Context()).User()
	result, err := h.finalize.Finalize(c.Request.Context(), user, c.Param("id"), in)
	if err != nil {
		RespondAppError(c, err)
		return
	}

	RespondOK(c, gin.H{
		"projectId":         result.ProjectID,
		"projectName":       body.ProjectName,
		"metadata":          result.Metadata,
		"pdfDownloadUrl":    result.PDFDownloadURL,
		"originalImageUrl":  result.OriginalImageURL,
		"generatedImageUrl": result.GeneratedImageURL,
		"artifactBase64":    base64.StdEncoding.EncodeToString(result.ArtifactBytes),
	})
}

package handlers

import (
	"encoding/base64"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thomasmilici/domux-backend/internal/pkg/apperr"
	"github.com/thomasmilici/domux-backend/internal/platform/logger"
	"github.com/thomasmilici/domux-backend/internal/repos"
	"github.com/thomasmilici/domux-backend/internal/requestdata"
	"github.com/thomasmilici/domux-backend/internal/services"
	"github.com/thomasmilici/domux-backend/internal/types"
)

type ProjectHandler struct {
	log      *logger.Logger
	projects repos.ProjectRepo
	sessions services.SessionService
	finalize services.FinalizeService
}

func NewProjectHandler(log *logger.Logger, projects repos.ProjectRepo, sessions services.SessionService, finalize services.FinalizeService) *ProjectHandler {
	return &ProjectHandler{
		log:      log.With("handler", "ProjectHandler"),
		projects: projects,
		sessions: sessions,
		finalize: finalize,
	}
}

// ownedProject loads a project and checks it belongs to the caller.
func (h *ProjectHandler) ownedProject(c *gin.Context) (*types.Project, types.User, error) {
	user := requestdata.GetRequestData(c.Request.Context()).User()
	project, err := h.projects.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		return nil, user, err
	}
	if project.UserID != user.UID {
		return nil, user, apperr.Forbidden("il progetto appartiene a un altro utente")
	}
	return project, user, nil
}

// GET /api/projects
func (h *ProjectHandler) List(c *gin.Context) {
	user := requestdata.GetRequestData(c.Request.Context()).User()
	projects, err := h.projects.ListByUser(c.Request.Context(), user.UID)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{"projects": projects})
}

// GET /api/projects/:id
func (h *ProjectHandler) Get(c *gin.Context) {
	project, _, err := h.ownedProject(c)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{"project": project})
}

type revisionBody struct {
	ParentSessionID string `json:"parentSessionId"`
}

// POST /api/projects/:id/revision
// Opens a child session seeded from the finalized project for a versioned
// re-edit.
func (h *ProjectHandler) NewRevision(c *gin.Context) {
	var body revisionBody
	if err := c.ShouldBindJSON(&body); err != nil && err.Error() != "EOF" {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	project, user, err := h.ownedProject(c)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	session, err := h.sessions.NewRevision(c.Request.Context(), user, project, body.ParentSessionID)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": session})
}

type rebuildBody struct {
	ComputoItems []types.ComputoItem `json:"computoItems" binding:"required"`
	ReportText   string              `json:"reportText"`
}

// POST /api/projects/:id/rebuild
// Re-renders and re-hashes the certified document after an edit. Nothing is
// uploaded or persisted: the client downloads the fresh artifact directly.
func (h *ProjectHandler) Rebuild(c *gin.Context) {
	var body rebuildBody
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	project, user, err := h.ownedProject(c)
	if err != nil {
		RespondAppError(c, err)
		return
	}

	view := services.SessionView{
		UserID:      project.UserID,
		ProjectName: project.ProjectName,
		Location:    project.Location,
		Committente: project.Committente,
	}
	artifact, metadata, err := h.finalize.Rebuild(c.Request.Context(), user, view, body.ComputoItems, body.ReportText, project.Metadata, nil, nil)
	if err != nil {
		RespondAppError(c, err)
		return
	}

	RespondOK(c, gin.H{
		"metadata":       metadata,
		"artifactBase64": base64.StdEncoding.EncodeToString(artifact),
	})
}

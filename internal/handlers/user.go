package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/thomasmilici/domux-backend/internal/platform/logger"
	"github.com/thomasmilici/domux-backend/internal/repos"
	"github.com/thomasmilici/domux-backend/internal/requestdata"
)

type UserHandler struct {
	log   *logger.Logger
	users repos.UserRepo
}

func NewUserHandler(log *logger.Logger, users repos.UserRepo) *UserHandler {
	return &UserHandler{
		log:   log.With("handler", "UserHandler"),
		users: users,
	}
}

// GET /api/me
// Returns the caller's profile, creating it on first sign-in.
func (h *UserHandler) GetMe(c *gin.Context) {
	user := requestdata.GetRequestData(c.Request.Context()).User()
	profile, err := h.users.EnsureProfile(c.Request.Context(), user)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{"profile": profile})
}

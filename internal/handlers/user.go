// internal/handlers/user.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/campushub/backend/internal/i18n"
	"github.com/campushub/backend/internal/services"
	"github.com/campushub/backend/internal/utils"
)

type UserHandler struct {
	userService *services.UserService
}

func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{
		userService: userService,
	}
}

// PUT /users/profile
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	profileID, ok := currentProfile(c)
	if !ok {
		return
	}

	var req services.UpdateProfileRequest
	if !bindAndValidate(c, &req) {
		return
	}

	profile, err := h.userService.UpdateProfile(profileID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyProfileUpdated),
		"user":    profile,
	})
}

// GET /users/:id/public
func (h *UserHandler) GetPublicProfile(c *gin.Context) {
	profileID, ok := paramID(c, "id")
	if !ok {
		return
	}

	profile, err := h.userService.GetPublicProfile(profileID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"user": profile,
	})
}

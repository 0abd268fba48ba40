// internal/handlers/assistant.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/campushub/backend/internal/services"
	"github.com/campushub/backend/internal/utils"
)

type AssistantHandler struct {
	assistantService *services.AssistantService
}

func NewAssistantHandler(assistantService *services.AssistantService) *AssistantHandler {
	return &AssistantHandler{
		assistantService: assistantService,
	}
}

// POST /assistant/chat
func (h *AssistantHandler) Chat(c *gin.Context) {
	if _, ok := currentProfile(c); !ok {
		return
	}

	var req services.ChatRequest
	if !bindAndValidate(c, &req) {
		return
	}

	resp, err := h.assistantService.Chat(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, resp)
}

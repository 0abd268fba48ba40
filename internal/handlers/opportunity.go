// internal/handlers/opportunity.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/campushub/backend/internal/i18n"
	"github.com/campushub/backend/internal/services"
	"github.com/campushub/backend/internal/utils"
)

type OpportunityHandler struct {
	opportunityService *services.OpportunityService
	storageService     *services.StorageService
}

func NewOpportunityHandler(opportunityService *services.OpportunityService, storageService *services.StorageService) *OpportunityHandler {
	return &OpportunityHandler{
		opportunityService: opportunityService,
		storageService:     storageService,
	}
}

// GET /opportunities
func (h *OpportunityHandler) GetOpportunities(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	searchParams := services.OpportunitySearchParams{
		PaginationParams: params,
	}

	if ownerIDStr := c.Query("owner_id"); ownerIDStr != "" {
		if ownerID, err := uuid.Parse(ownerIDStr); err == nil {
			searchParams.OwnerID = &ownerID
		}
	}

	// mine=true lists the caller's listings in every status
	if c.Query("mine") == "true" {
		if profileID, ok := utils.GetProfileIDFromContext(c); ok {
			searchParams.OwnerID = &profileID
		}
	}

	opportunities, total, err := h.opportunityService.Search(searchParams)
	if err != nil {
		respondError(c, err)
		return
	}

	result := utils.CreatePaginationResult(opportunities, total, params)
	utils.PaginatedResponse(c, result)
}

// GET /opportunities/:id
func (h *OpportunityHandler) GetOpportunity(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	opp, err := h.opportunityService.Get(id)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"opportunity": opp,
	})
}

// POST /opportunities
func (h *OpportunityHandler) CreateOpportunity(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	ownerID, ok := currentProfile(c)
	if !ok {
		return
	}

	var req services.CreateOpportunityRequest
	if !bindAndValidate(c, &req) {
		return
	}

	opp, err := h.opportunityService.Create(ownerID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message":     i18n.T(lang, i18n.KeyOpportunityCreated),
		"opportunity": opp,
	})
}

// PUT /opportunities/:id
func (h *OpportunityHandler) UpdateOpportunity(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	ownerID, ok := currentProfile(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req services.UpdateOpportunityRequest
	if !bindAndValidate(c, &req) {
		return
	}

	opp, err := h.opportunityService.Update(ownerID, id, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":     i18n.T(lang, i18n.KeyOpportunityUpdated),
		"opportunity": opp,
	})
}

// DELETE /opportunities/:id
func (h *OpportunityHandler) DeleteOpportunity(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	ownerID, ok := currentProfile(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := h.opportunityService.Delete(ownerID, id); err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyOpportunityDeleted),
	})
}

// POST /opportunities/upload-image
//
// Multipart form with an "image" file. When "opportunity_id" is set the
// uploaded URL is appended to that listing.
func (h *OpportunityHandler) UploadImage(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	ownerID, ok := currentProfile(c)
	if !ok {
		return
	}

	var opportunityID *uuid.UUID
	if raw := c.PostForm("opportunity_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "opportunity_id"), nil)
			return
		}
		opportunityID = &id
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationRequired, "image"), err.Error())
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyFileUploadFailed), err.Error())
		return
	}
	defer file.Close()

	result, err := h.storageService.UploadFile(file, fileHeader, h.storageService.GetDefaultUploadOptions("listings"))
	if err != nil {
		respondError(c, err)
		return
	}

	payload := gin.H{
		"message": i18n.T(lang, i18n.KeyFileUploadSuccess),
		"image":   result,
	}

	if opportunityID != nil {
		opp, err := h.opportunityService.AddImage(ownerID, *opportunityID, result.URL)
		if err != nil {
			// Do not leave an orphaned object behind
			_ = h.storageService.DeleteFile(result.Key)
			respondError(c, err)
			return
		}
		payload["opportunity"] = opp
	}

	utils.CreatedResponse(c, payload)
}

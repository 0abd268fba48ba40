// internal/services/opportunity_service.go
package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/campushub/backend/internal/config"
	"github.com/campushub/backend/internal/models"
	"github.com/campushub/backend/internal/utils"
)

type OpportunityService struct {
	db       *gorm.DB
	cfg      *config.Config
	markdown *MarkdownService
}

type CreateOpportunityRequest struct {
	Kind        models.OpportunityKind `json:"kind" validate:"required,oneof=job internship item"`
	Title       string                 `json:"title" validate:"required,min=3,max=255"`
	Description string                 `json:"description" validate:"required,min=10,max=20000"`
	Price       decimal.Decimal        `json:"price" validate:"gte=0"`
	Currency    string                 `json:"currency,omitempty" validate:"omitempty,len=3,alpha"`
	Location    string                 `json:"location,omitempty" validate:"omitempty,max=255"`
	Company     string                 `json:"company,omitempty" validate:"omitempty,max=255"`
	Tags        []string               `json:"tags,omitempty" validate:"max=10,dive,min=1,max=30"`
	Images      []string               `json:"images,omitempty" validate:"max=8,dive,url"`
}

type UpdateOpportunityRequest struct {
	Title       *string                   `json:"title,omitempty" validate:"omitempty,min=3,max=255"`
	Description *string                   `json:"description,omitempty" validate:"omitempty,min=10,max=20000"`
	Price       *decimal.Decimal          `json:"price,omitempty" validate:"omitempty,gte=0"`
	Location    *string                   `json:"location,omitempty" validate:"omitempty,max=255"`
	Company     *string                   `json:"company,omitempty" validate:"omitempty,max=255"`
	Tags        []string                  `json:"tags,omitempty" validate:"omitempty,max=10,dive,min=1,max=30"`
	Images      []string                  `json:"images,omitempty" validate:"omitempty,max=8,dive,url"`
	Status      *models.OpportunityStatus `json:"status,omitempty" validate:"omitempty,oneof=open closed sold"`
}

type OpportunitySearchParams struct {
	utils.PaginationParams
	OwnerID *uuid.UUID
}

func NewOpportunityService(db *gorm.DB, cfg *config.Config, markdown *MarkdownService) *OpportunityService {
	return &OpportunityService{
		db:       db,
		cfg:      cfg,
		markdown: markdown,
	}
}

func (s *OpportunityService) Create(ownerID uuid.UUID, req *CreateOpportunityRequest) (*models.Opportunity, error) {
	html, err := s.markdown.ToHTMLSanitized(req.Description)
	if err != nil {
		return nil, err
	}

	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = s.cfg.Payment.DefaultCurrency
	}

	opp := &models.Opportunity{
		OwnerID:             ownerID,
		Kind:                req.Kind,
		Title:               strings.TrimSpace(req.Title),
		DescriptionMarkdown: req.Description,
		DescriptionHTML:     html,
		Price:               req.Price,
		Currency:            currency,
		Location:            req.Location,
		Company:             req.Company,
		Tags:                jsonList(req.Tags),
		Images:              jsonList(req.Images),
		Status:              models.OpportunityStatusOpen,
	}

	if err := s.db.Create(opp).Error; err != nil {
		return nil, fmt.Errorf("failed to create opportunity: %w", err)
	}

	return opp, nil
}

// Get loads a listing and counts the view.
func (s *OpportunityService) Get(id uuid.UUID) (*models.Opportunity, error) {
	opp, err := s.find(s.db.Preload("Owner"), id)
	if err != nil {
		return nil, err
	}

	s.db.Model(&models.Opportunity{}).Where("id = ?", id).
		UpdateColumn("view_count", gorm.Expr("view_count + 1"))

	return opp, nil
}

func (s *OpportunityService) Update(ownerID, id uuid.UUID, req *UpdateOpportunityRequest) (*models.Opportunity, error) {
	opp, err := s.find(s.db, id)
	if err != nil {
		return nil, err
	}
	if opp.OwnerID != ownerID {
		return nil, ErrNotOpportunityOwner
	}

	updates := map[string]interface{}{}

	if req.Title != nil {
		updates["title"] = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		html, err := s.markdown.ToHTMLSanitized(*req.Description)
		if err != nil {
			return nil, err
		}
		updates["description_markdown"] = *req.Description
		updates["description_html"] = html
	}
	if req.Price != nil {
		updates["price"] = *req.Price
	}
	if req.Location != nil {
		updates["location"] = *req.Location
	}
	if req.Company != nil {
		updates["company"] = *req.Company
	}
	if req.Tags != nil {
		updates["tags"] = jsonList(req.Tags)
	}
	if req.Images != nil {
		updates["images"] = jsonList(req.Images)
	}
	if req.Status != nil {
		updates["status"] = *req.Status
	}

	if len(updates) > 0 {
		if err := s.db.Model(opp).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("failed to update opportunity: %w", err)
		}
	}

	return s.find(s.db, id)
}

func (s *OpportunityService) Delete(ownerID, id uuid.UUID) error {
	opp, err := s.find(s.db, id)
	if err != nil {
		return err
	}
	if opp.OwnerID != ownerID {
		return ErrNotOpportunityOwner
	}

	if err := s.db.Delete(opp).Error; err != nil {
		return fmt.Errorf("failed to delete opportunity: %w", err)
	}
	return nil
}

func (s *OpportunityService) Search(params OpportunitySearchParams) ([]models.Opportunity, int64, error) {
	query := s.db.Model(&models.Opportunity{})

	if params.Kind != "" {
		query = query.Where("kind = ?", params.Kind)
	}
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	} else if params.OwnerID == nil {
		// Public browsing shows open listings only
		query = query.Where("status = ?", models.OpportunityStatusOpen)
	}
	if params.OwnerID != nil {
		query = query.Where("owner_id = ?", *params.OwnerID)
	}
	if params.Search != "" {
		term := "%" + strings.ToLower(params.Search) + "%"
		query = query.Where("(LOWER(title) LIKE ? OR LOWER(company) LIKE ?)", term, term)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count opportunities: %w", err)
	}

	query = utils.ApplySort(query, params.PaginationParams, []string{"created_at", "price", "title", "view_count"})
	query = utils.ApplyPagination(query, params.PaginationParams)

	var opportunities []models.Opportunity
	if err := query.Find(&opportunities).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list opportunities: %w", err)
	}

	return opportunities, total, nil
}

// Latest returns the newest open listings of a kind.
func (s *OpportunityService) Latest(kind models.OpportunityKind, limit int) ([]models.Opportunity, error) {
	var opportunities []models.Opportunity
	err := s.db.Where("kind = ? AND status = ?", kind, models.OpportunityStatusOpen).
		Order("created_at DESC").
		Limit(limit).
		Find(&opportunities).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list opportunities: %w", err)
	}
	return opportunities, nil
}

// AddImage appends an uploaded image URL to the owner's listing.
func (s *OpportunityService) AddImage(ownerID, id uuid.UUID, url string) (*models.Opportunity, error) {
	opp, err := s.find(s.db, id)
	if err != nil {
		return nil, err
	}
	if opp.OwnerID != ownerID {
		return nil, ErrNotOpportunityOwner
	}

	var images []string
	if len(opp.Images) > 0 {
		if err := json.Unmarshal(opp.Images, &images); err != nil {
			return nil, fmt.Errorf("corrupt images column: %w", err)
		}
	}
	images = append(images, url)

	if err := s.db.Model(opp).Update("images", jsonList(images)).Error; err != nil {
		return nil, fmt.Errorf("failed to update opportunity: %w", err)
	}
	opp.Images = jsonList(images)
	return opp, nil
}

func (s *OpportunityService) find(db *gorm.DB, id uuid.UUID) (*models.Opportunity, error) {
	var opp models.Opportunity
	if err := db.First(&opp, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOpportunityNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &opp, nil
}

func jsonList(values []string) datatypes.JSON {
	if values == nil {
		values = []string{}
	}
	raw, _ := json.Marshal(values)
	return datatypes.JSON(raw)
}

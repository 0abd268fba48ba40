// internal/models/opportunity.go
package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Opportunity is a listing: a job, an internship or an item for sale. The
// owner is the seller of any payment made against it.
type Opportunity struct {
	BaseModel
	OwnerID             uuid.UUID         `json:"owner_id" gorm:"type:uuid;not null;index"`
	Kind                OpportunityKind   `json:"kind" gorm:"type:varchar(20);not null;index"`
	Title               string            `json:"title" gorm:"size:255;not null"`
	DescriptionMarkdown string            `json:"description_markdown" gorm:"type:text"`
	DescriptionHTML     string            `json:"description_html" gorm:"type:text"`
	Price               decimal.Decimal   `json:"price" gorm:"type:decimal(20,6);not null;default:0"`
	Currency            string            `json:"currency" gorm:"size:10;not null"`
	Location            string            `json:"location" gorm:"size:255"`
	Company             string            `json:"company,omitempty" gorm:"size:255"`
	Tags                datatypes.JSON    `json:"tags" gorm:"type:json"`
	Images              datatypes.JSON    `json:"images" gorm:"type:json"`
	Status              OpportunityStatus `json:"status" gorm:"type:varchar(20);not null;default:'open';index"`
	ViewCount           int64             `json:"view_count" gorm:"default:0"`

	// Relationships
	Owner *Profile `json:"owner,omitempty" gorm:"foreignKey:OwnerID"`
}

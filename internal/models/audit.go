// internal/models/audit.go
package models

import (
	"github.com/google/uuid"
)

// AuditLog records every mutating API call.
type AuditLog struct {
	BaseModel
	ProfileID    *uuid.UUID `json:"profile_id" gorm:"type:uuid;index"`
	RequestID    string     `json:"request_id" gorm:"size:64;index"`
	Action       string     `json:"action" gorm:"size:100;not null;index"`
	ResourceType string     `json:"resource_type" gorm:"size:50;not null;index"`
	ResourceID   *uuid.UUID `json:"resource_id" gorm:"type:uuid;index"`
	StatusCode   int        `json:"status_code"`
	NewValues    JSONB      `json:"new_values" gorm:"type:jsonb"`
	IPAddress    string     `json:"ip_address" gorm:"size:45"`
	UserAgent    string     `json:"user_agent" gorm:"type:text"`
}

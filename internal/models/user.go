// internal/models/user.go
package models

import (
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Profile is a marketplace account. Buyers and sellers are both profiles; the
// role on a given payment comes from the payment record, not from here.
type Profile struct {
	BaseModel
	Username               string      `json:"username" gorm:"uniqueIndex;size:50;not null"`
	Email                  string      `json:"email" gorm:"uniqueIndex;size:255;not null"`
	PasswordHash           string      `json:"-" gorm:"size:255;not null"`
	DisplayName            string      `json:"display_name" gorm:"size:100"`
	Role                   ProfileRole `json:"role" gorm:"type:varchar(20);not null;default:'student'"`
	PhoneNumber            *string     `json:"phone_number,omitempty" gorm:"size:20;uniqueIndex"`
	WalletAddress          string      `json:"wallet_address,omitempty" gorm:"size:42"`
	University             string      `json:"university,omitempty" gorm:"size:150"`
	EmailVerificationToken string      `json:"-" gorm:"size:64;index"`
	EmailVerifiedAt        *time.Time  `json:"email_verified_at"`
	LastLoginAt            *time.Time  `json:"last_login_at"`
}

func (p *Profile) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	p.PasswordHash = string(hashedPassword)
	return nil
}

func (p *Profile) CheckPassword(password string) error {
	return bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(password))
}

func (p *Profile) EmailVerified() bool {
	return p.EmailVerifiedAt != nil
}

// Complete reports whether the fields needed for the profile completion
// reward are filled in.
func (p *Profile) Complete() bool {
	return strings.TrimSpace(p.DisplayName) != "" && p.PhoneNumber != nil && *p.PhoneNumber != ""
}

// internal/config/database.go
package config

import (
	"fmt"
)

// DSN builds the PostgreSQL connection string. Timestamps are stored in UTC;
// calendar-day logic converts explicitly.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

package service

import "gorm.io/gorm"

// lockClause is the row-lock suffix for the dialect. SQLite serializes
// writers on its own and rejects FOR UPDATE.
func lockClause(tx *gorm.DB) string {
	if tx.Dialector.Name() == "sqlite" {
		return ""
	}
	return " FOR UPDATE"
}

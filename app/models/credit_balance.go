package models

import (
	"time"
)

// CreditBalance tracks the spendable render credits per user. The balance row
// is only ever mutated inside a transaction holding a row lock; see the
// credits package.
type CreditBalance struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	User         User      `gorm:"foreignKey:UserID" json:"-"`
	Balance      float64   `gorm:"type:decimal(12,2);not null;default:0" json:"balance"`
	TotalCredits float64   `gorm:"type:decimal(12,2);not null;default:0" json:"total_credits"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

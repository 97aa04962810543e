package models

import (
	"time"
)

// Credit ledger entry types. Every deduction is eventually paired with either
// a completed job (consumed) or a refund entry.
const (
	CreditEntryDeduct = "deduct"
	CreditEntryRefund = "refund"
	CreditEntryGrant  = "grant"
)

// CreditTransaction is an append-only ledger row written alongside every
// balance mutation.
type CreditTransaction struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"index;not null" json:"user_id"`
	RenderJobID  *uint     `gorm:"index" json:"render_job_id,omitempty"`
	EntryType    string    `gorm:"type:varchar(20);not null;index" json:"entry_type"`
	Amount       float64   `gorm:"type:decimal(12,2);not null" json:"amount"`
	BalanceAfter float64   `gorm:"type:decimal(12,2);not null" json:"balance_after"`
	Reason       string    `gorm:"type:varchar(255)" json:"reason"`
	CreatedAt    time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

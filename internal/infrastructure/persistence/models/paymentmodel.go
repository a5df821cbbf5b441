package models

import (
	"time"

	"gorm.io/datatypes"
)

type PaymentModel struct {
	ID           uint           `gorm:"primaryKey"`
	PaymentID    string         `gorm:"uniqueIndex;size:191;not null"`
	InvoiceID    string         `gorm:"index:idx_invoice_method;size:64;not null"`
	MethodID     string         `gorm:"index:idx_invoice_method;size:32;not null"`
	Destination  string         `gorm:"size:191;not null"`
	Currency     string         `gorm:"size:10;not null"`
	AmountRaw    uint64         `gorm:"not null"`
	Status       string         `gorm:"size:20;not null;index"`
	Details      datatypes.JSON `gorm:"not null"`
	RelatedTxIDs datatypes.JSON
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (PaymentModel) TableName() string {
	return "payments"
}

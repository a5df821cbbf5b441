package models

import (
	"time"

	"gorm.io/datatypes"
)

// InvoiceStatus values an invoice row can carry. Only New and Processing
// invoices are scanned.
const (
	InvoiceStatusNew        = "new"
	InvoiceStatusProcessing = "processing"
	InvoiceStatusSettled    = "settled"
	InvoiceStatusExpired    = "expired"
)

type InvoiceModel struct {
	ID          uint           `gorm:"primaryKey"`
	InvoiceID   string         `gorm:"uniqueIndex;size:64;not null"`
	SpeedPolicy string         `gorm:"size:20;not null;default:'low'"`
	Status      string         `gorm:"size:20;not null;index"`
	Prompts     datatypes.JSON `gorm:"not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (InvoiceModel) TableName() string {
	return "invoices"
}

// InvoiceAddressModel indexes every receiving address ever handed out for an
// invoice, including addresses rotated away from, so historical destinations
// still resolve to their invoice.
type InvoiceAddressModel struct {
	ID        uint   `gorm:"primaryKey"`
	InvoiceID string `gorm:"index;size:64;not null"`
	MethodID  string `gorm:"uniqueIndex:idx_method_address;size:32;not null"`
	Address   string `gorm:"uniqueIndex:idx_method_address;size:191;not null"`
	CreatedAt time.Time
}

func (InvoiceAddressModel) TableName() string {
	return "invoice_addresses"
}
